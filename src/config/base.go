package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stake-plus/fitbet/src/data"
	"gorm.io/gorm"
)

// Base contains common configuration fields
type Base struct {
	MySQLDSN string
	RedisURL string
	Platform Platform
}

// Platform selects the chat network the bot talks to.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
)

// LoadBase loads the settings cache and the common fields. A nil db skips
// the settings table and relies on the environment alone.
func LoadBase(db *gorm.DB) (Base, error) {
	if db != nil {
		if err := data.LoadSettings(db); err != nil {
			log.Printf("config: load settings: %v (falling back to environment)", err)
		}
	}

	dsn, err := data.GetMySQLDSN()
	if err != nil {
		return Base{}, err
	}

	platform := Platform(strings.ToLower(GetSetting("chat_platform", "CHAT_PLATFORM", string(PlatformTelegram))))
	switch platform {
	case PlatformTelegram, PlatformDiscord:
	default:
		return Base{}, fmt.Errorf("config: unknown chat platform %q", platform)
	}

	return Base{
		MySQLDSN: dsn,
		RedisURL: GetSetting("redis_url", "REDIS_URL", ""),
		Platform: platform,
	}, nil
}

// ParseEnv fills target from environment variables and its envDefault tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// GetSetting retrieves a setting with env fallback
func GetSetting(name, envKey, defaultValue string) string {
	val := data.GetSetting(name)
	if val == "" {
		val = os.Getenv(envKey)
	}
	if val == "" {
		val = defaultValue
	}
	return val
}

func getBoolSetting(name, envKey string, def bool) bool {
	return parseBoolDefault(GetSetting(name, envKey, ""), def)
}

func parseBoolDefault(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// overrideInt replaces *dst with the named database setting when it parses.
func overrideInt(name string, dst *int) {
	raw := strings.TrimSpace(data.GetSetting(name))
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: setting %s=%q is not an integer, keeping %d", name, raw, *dst)
		return
	}
	*dst = v
}

func overrideDuration(name string, dst *time.Duration) {
	raw := strings.TrimSpace(data.GetSetting(name))
	if raw == "" {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: setting %s=%q is not a duration, keeping %s", name, raw, *dst)
		return
	}
	*dst = v
}

func overrideString(name string, dst *string) {
	if raw := strings.TrimSpace(data.GetSetting(name)); raw != "" {
		*dst = raw
	}
}
