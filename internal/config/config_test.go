package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadRefusesShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("err = %v, want JWT_SECRET complaint", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Errorf("access TTL = %v", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("refresh TTL = %v", cfg.Auth.RefreshTokenTTL)
	}
	if cfg.Auth.MaxFailedAttempts != 5 || cfg.Auth.LockoutDuration != 15*time.Minute {
		t.Errorf("login lockout = %d/%v", cfg.Auth.MaxFailedAttempts, cfg.Auth.LockoutDuration)
	}
	if cfg.Auth.TwoFactorMaxFailed != 5 || cfg.Auth.TwoFactorLockout != 10*time.Minute {
		t.Errorf("2fa lockout = %d/%v", cfg.Auth.TwoFactorMaxFailed, cfg.Auth.TwoFactorLockout)
	}
	if cfg.Storage.RetentionDays != 90 {
		t.Errorf("retention = %d", cfg.Storage.RetentionDays)
	}
	if cfg.Jobs.DailyHourUTC != 3 {
		t.Errorf("daily hour = %d", cfg.Jobs.DailyHourUTC)
	}
	if cfg.SMTP.Enabled() {
		t.Error("smtp enabled without a host")
	}
	if cfg.SMTP.SendTimeout != 10*time.Second {
		t.Errorf("smtp timeout = %v", cfg.SMTP.SendTimeout)
	}
}

func TestLoadOverridesAndValidation(t *testing.T) {
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2")
	t.Setenv("LOCKOUT_DURATION", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "10.0.0.2" {
		t.Errorf("trusted proxies = %v", cfg.Server.TrustedProxies)
	}
	if cfg.Auth.LockoutDuration != 30*time.Minute {
		t.Errorf("lockout duration = %v", cfg.Auth.LockoutDuration)
	}

	t.Setenv("JOBS_DAILY_HOUR_UTC", "24")
	if _, err := Load(); err == nil {
		t.Fatal("hour 24 accepted")
	}
}
