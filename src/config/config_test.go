package config

import (
	"testing"
	"time"

	"github.com/stake-plus/fitbet/src/data"
	"github.com/stake-plus/fitbet/src/shared/fit"
)

func TestLifecycleDefaults(t *testing.T) {
	data.SeedSettings(nil)
	cfg, err := LoadLifecycleConfig()
	if err != nil {
		t.Fatal(err)
	}
	got := cfg.Engine()
	if got.DurationUnit != fit.UnitMonths || got.CheckinPeriod != 14*24*time.Hour || got.WindowDuration != 48*time.Hour {
		t.Fatalf("engine config = %+v", got)
	}
	if got.ReminderBeforeClose != 12*time.Hour || got.OnboardingTimeout != 48*time.Hour || got.ElectionTimeout != 24*time.Hour {
		t.Fatalf("engine config = %+v", got)
	}
	if cfg.Interval() != time.Hour {
		t.Fatalf("interval = %s", cfg.Interval())
	}
}

func TestLifecycleMinutesOverrideDays(t *testing.T) {
	data.SeedSettings(nil)
	t.Setenv("CHALLENGE_DURATION_UNIT", "hours")
	t.Setenv("CHECKIN_PERIOD_MINUTES", "30")
	t.Setenv("CHECKIN_WINDOW_MINUTES", "10")
	t.Setenv("REMINDER_MINUTES_BEFORE_CLOSE", "5")
	cfg, err := LoadLifecycleConfig()
	if err != nil {
		t.Fatal(err)
	}
	got := cfg.Engine()
	if got.DurationUnit != fit.UnitHours || got.CheckinPeriod != 30*time.Minute || got.WindowDuration != 10*time.Minute || got.ReminderBeforeClose != 5*time.Minute {
		t.Fatalf("engine config = %+v", got)
	}
	if cfg.Interval() != time.Minute {
		t.Fatalf("interval = %s", cfg.Interval())
	}
}

func TestSettingsOverrideEnvironment(t *testing.T) {
	t.Setenv("CHECKIN_PERIOD_DAYS", "7")
	t.Setenv("TICK_INTERVAL", "90s")
	data.SeedSettings(map[string]string{
		"checkin_period_days":     "3",
		"election_timeout_hours":  "not-a-number",
		"challenge_duration_unit": "days",
	})
	t.Cleanup(func() { data.SeedSettings(nil) })

	cfg, err := LoadLifecycleConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CheckinPeriodDays != 3 || cfg.ElectionTimeoutHrs != 24 || cfg.DurationUnit != "days" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Interval() != 90*time.Second {
		t.Fatalf("interval = %s", cfg.Interval())
	}
}

func TestLifecycleRejectsBadUnit(t *testing.T) {
	data.SeedSettings(nil)
	t.Setenv("CHALLENGE_DURATION_UNIT", "weeks")
	if _, err := LoadLifecycleConfig(); err == nil {
		t.Fatal("expected an error for an unknown unit")
	}
}

func TestAIConfigPicksProviderByKey(t *testing.T) {
	data.SeedSettings(nil)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("AI_MODEL", "")
	t.Setenv("CLAUDE_API_KEY", "sk-test")
	cfg := LoadAIConfig()
	if cfg.Provider != "anthropic" || !cfg.Enabled() || cfg.Model != "claude-haiku-4-5" {
		t.Fatalf("cfg = %+v", cfg)
	}

	t.Setenv("CLAUDE_API_KEY", "")
	if cfg := LoadAIConfig(); cfg.Enabled() {
		t.Fatalf("enabled without a key: %+v", cfg)
	}
}

func TestLoadBasePlatform(t *testing.T) {
	data.SeedSettings(nil)
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/fitbet")
	t.Setenv("CHAT_PLATFORM", "Discord")
	base, err := LoadBase(nil)
	if err != nil {
		t.Fatal(err)
	}
	if base.Platform != PlatformDiscord {
		t.Fatalf("platform = %s", base.Platform)
	}

	t.Setenv("CHAT_PLATFORM", "irc")
	if _, err := LoadBase(nil); err == nil {
		t.Fatal("expected an error for an unknown platform")
	}
}

func TestParseBoolDefault(t *testing.T) {
	cases := map[string]bool{"1": true, "on": true, "NO": false, "off": false, "": true, "maybe": true}
	for in, want := range cases {
		if got := parseBoolDefault(in, true); got != want {
			t.Errorf("parseBoolDefault(%q) = %v", in, got)
		}
	}
}

func TestSchedulerLeaseOutlivesInterval(t *testing.T) {
	if cfg := LoadSchedulerConfig(time.Hour); cfg.LeaseTTL != 2*time.Hour {
		t.Fatalf("ttl = %s", cfg.LeaseTTL)
	}
	if cfg := LoadSchedulerConfig(10 * time.Second); cfg.LeaseTTL != time.Minute {
		t.Fatalf("ttl = %s", cfg.LeaseTTL)
	}
}
