package config

import (
	"fmt"
	"time"

	"github.com/stake-plus/fitbet/src/engine"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

// LifecycleConfig holds the challenge timing knobs.
type LifecycleConfig struct {
	DurationUnit          string        `env:"CHALLENGE_DURATION_UNIT" envDefault:"months"`
	CheckinPeriodDays     int           `env:"CHECKIN_PERIOD_DAYS" envDefault:"14"`
	CheckinPeriodMinutes  int           `env:"CHECKIN_PERIOD_MINUTES" envDefault:"0"`
	CheckinWindowHours    int           `env:"CHECKIN_WINDOW_HOURS" envDefault:"48"`
	CheckinWindowMinutes  int           `env:"CHECKIN_WINDOW_MINUTES" envDefault:"0"`
	ReminderHoursBefore   int           `env:"REMINDER_HOURS_BEFORE_CLOSE" envDefault:"12"`
	ReminderMinutesBefore int           `env:"REMINDER_MINUTES_BEFORE_CLOSE" envDefault:"0"`
	OnboardingTimeoutHrs  int           `env:"ONBOARDING_TIMEOUT_HOURS" envDefault:"48"`
	ElectionTimeoutHrs    int           `env:"ELECTION_TIMEOUT_HOURS" envDefault:"24"`
	TickInterval          time.Duration `env:"TICK_INTERVAL"`
}

// LoadLifecycleConfig reads the environment, then applies settings-table
// overrides (call LoadBase first to populate the cache).
func LoadLifecycleConfig() (LifecycleConfig, error) {
	var cfg LifecycleConfig
	if err := ParseEnv(&cfg); err != nil {
		return LifecycleConfig{}, err
	}

	overrideString("challenge_duration_unit", &cfg.DurationUnit)
	overrideInt("checkin_period_days", &cfg.CheckinPeriodDays)
	overrideInt("checkin_period_minutes", &cfg.CheckinPeriodMinutes)
	overrideInt("checkin_window_hours", &cfg.CheckinWindowHours)
	overrideInt("checkin_window_minutes", &cfg.CheckinWindowMinutes)
	overrideInt("reminder_hours_before_close", &cfg.ReminderHoursBefore)
	overrideInt("reminder_minutes_before_close", &cfg.ReminderMinutesBefore)
	overrideInt("onboarding_timeout_hours", &cfg.OnboardingTimeoutHrs)
	overrideInt("election_timeout_hours", &cfg.ElectionTimeoutHrs)
	overrideDuration("tick_interval", &cfg.TickInterval)

	if _, err := fit.ParseDurationUnit(cfg.DurationUnit); err != nil {
		return LifecycleConfig{}, fmt.Errorf("config: CHALLENGE_DURATION_UNIT: %w", err)
	}
	if cfg.CheckinPeriod() <= 0 {
		return LifecycleConfig{}, fmt.Errorf("config: check-in period must be positive")
	}
	if cfg.WindowDuration() <= 0 {
		return LifecycleConfig{}, fmt.Errorf("config: check-in window must be positive")
	}
	return cfg, nil
}

// CheckinPeriod is the spacing between windows. Minutes win over days when set.
func (c LifecycleConfig) CheckinPeriod() time.Duration {
	if c.CheckinPeriodMinutes > 0 {
		return time.Duration(c.CheckinPeriodMinutes) * time.Minute
	}
	return time.Duration(c.CheckinPeriodDays) * 24 * time.Hour
}

// WindowDuration is how long each window stays open.
func (c LifecycleConfig) WindowDuration() time.Duration {
	if c.CheckinWindowMinutes > 0 {
		return time.Duration(c.CheckinWindowMinutes) * time.Minute
	}
	return time.Duration(c.CheckinWindowHours) * time.Hour
}

// ReminderBeforeClose is the remaining open time at which reminders go out.
func (c LifecycleConfig) ReminderBeforeClose() time.Duration {
	if c.ReminderMinutesBefore > 0 {
		return time.Duration(c.ReminderMinutesBefore) * time.Minute
	}
	return time.Duration(c.ReminderHoursBefore) * time.Hour
}

// Interval is how often the scheduler ticks: every minute for sub-hour
// check-in periods, hourly otherwise, unless TICK_INTERVAL is set.
func (c LifecycleConfig) Interval() time.Duration {
	if c.TickInterval > 0 {
		return c.TickInterval
	}
	if c.CheckinPeriod() < time.Hour {
		return time.Minute
	}
	return time.Hour
}

// Engine maps the knobs onto the engine configuration.
func (c LifecycleConfig) Engine() engine.Config {
	unit, _ := fit.ParseDurationUnit(c.DurationUnit)
	return engine.Config{
		DurationUnit:        unit,
		CheckinPeriod:       c.CheckinPeriod(),
		WindowDuration:      c.WindowDuration(),
		ReminderBeforeClose: c.ReminderBeforeClose(),
		OnboardingTimeout:   time.Duration(c.OnboardingTimeoutHrs) * time.Hour,
		ElectionTimeout:     time.Duration(c.ElectionTimeoutHrs) * time.Hour,
	}
}
