package config

import (
	"strconv"
	"strings"
	"time"
)

// TelegramConfig holds the Telegram bot configuration
type TelegramConfig struct {
	Token   string
	AdminID int64
	Debug   bool
}

// LoadTelegramConfig loads the Telegram bot configuration
func LoadTelegramConfig() TelegramConfig {
	cfg := TelegramConfig{
		Token: GetSetting("telegram_token", "TELEGRAM_TOKEN", ""),
		Debug: getBoolSetting("telegram_debug", "TELEGRAM_DEBUG", false),
	}
	if id, err := strconv.ParseInt(GetSetting("admin_telegram_id", "ADMIN_TELEGRAM_ID", "0"), 10, 64); err == nil {
		cfg.AdminID = id
	}
	return cfg
}

// DiscordConfig holds the Discord bot configuration
type DiscordConfig struct {
	Token   string
	GuildID string
}

// LoadDiscordConfig loads the Discord bot configuration
func LoadDiscordConfig() DiscordConfig {
	return DiscordConfig{
		Token:   GetSetting("discord_token", "DISCORD_TOKEN", ""),
		GuildID: GetSetting("guild_id", "GUILD_ID", ""),
	}
}

// APIConfig holds the HTTP API configuration
type APIConfig struct {
	Enabled        bool
	Port           string
	JWTSecret      string
	AllowedOrigins []string
	AdminRate      int
	AdminWindow    time.Duration
}

// LoadAPIConfig loads the HTTP API configuration
func LoadAPIConfig() APIConfig {
	cfg := APIConfig{
		Enabled:        getBoolSetting("api_enabled", "API_ENABLED", true),
		Port:           GetSetting("api_port", "API_PORT", "8080"),
		JWTSecret:      GetSetting("jwt_secret", "JWT_SECRET", ""),
		AllowedOrigins: parseCSV(GetSetting("api_allowed_origins", "API_ALLOWED_ORIGINS", "")),
		AdminRate:      10,
		AdminWindow:    time.Minute,
	}
	if n, err := strconv.Atoi(GetSetting("api_admin_rate", "API_ADMIN_RATE", "")); err == nil && n > 0 {
		cfg.AdminRate = n
	}
	return cfg
}

// SchedulerConfig holds the tick driver configuration
type SchedulerConfig struct {
	Enabled   bool
	Interval  time.Duration
	LeaseKey  string
	LeaseTTL  time.Duration
	FirstTick time.Duration
}

// LoadSchedulerConfig loads the tick driver configuration. interval comes
// from the lifecycle knobs.
func LoadSchedulerConfig(interval time.Duration) SchedulerConfig {
	cfg := SchedulerConfig{
		Enabled:   getBoolSetting("scheduler_enabled", "SCHEDULER_ENABLED", true),
		Interval:  interval,
		LeaseKey:  GetSetting("scheduler_lease_key", "SCHEDULER_LEASE_KEY", "fitbet:tick-lease"),
		FirstTick: 5 * time.Second,
	}
	// The lease must outlive one interval so the holder can renew it.
	cfg.LeaseTTL = 2 * interval
	if cfg.LeaseTTL < time.Minute {
		cfg.LeaseTTL = time.Minute
	}
	return cfg
}

// EventsConfig holds the lifecycle event stream configuration
type EventsConfig struct {
	Stream string
	MaxLen int64
}

// LoadEventsConfig loads the event stream configuration
func LoadEventsConfig() EventsConfig {
	cfg := EventsConfig{
		Stream: GetSetting("events_stream", "EVENTS_STREAM", "fitbet.events"),
		MaxLen: 10000,
	}
	if n, err := strconv.ParseInt(GetSetting("events_max_len", "EVENTS_MAX_LEN", ""), 10, 64); err == nil && n >= 0 {
		cfg.MaxLen = n
	}
	return cfg
}

func parseCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
