package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_ProtocolDefaults(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"SessionTTL", cfg.Auth.SessionTTL, 30 * time.Minute},
		{"StepUpTokenTTL", cfg.Auth.StepUpTokenTTL, 10 * time.Minute},
		{"TrustedWindow", cfg.Auth.TrustedWindow, 10 * time.Minute},
		{"CodeTTL", cfg.Auth.CodeTTL, 10 * time.Minute},
		{"ThrottleWindow", cfg.Auth.ThrottleWindow, 10 * time.Minute},
		{"ThrottleCooldown", cfg.Auth.ThrottleCooldown, 10 * time.Minute},
		{"ImpersonationFreshness", cfg.Auth.ImpersonationFreshness, 10 * time.Minute},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.Auth.CodeLength != 6 {
		t.Errorf("CodeLength: got %d, want 6", cfg.Auth.CodeLength)
	}
	if cfg.Auth.ThrottleMaxAttempts != 10 {
		t.Errorf("ThrottleMaxAttempts: got %d, want 10", cfg.Auth.ThrottleMaxAttempts)
	}
	if cfg.Auth.TOTPSkewSteps != 1 {
		t.Errorf("TOTPSkewSteps: got %d, want 1", cfg.Auth.TOTPSkewSteps)
	}
}

func TestLoad_DurationAcceptsBareSeconds(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SESSION_TTL", "1800")
	os.Setenv("TRUSTED_WINDOW", "600s")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.SessionTTL != 1800*time.Second {
		t.Errorf("SessionTTL: got %v, want 1800s", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.TrustedWindow != 600*time.Second {
		t.Errorf("TrustedWindow: got %v, want 600s", cfg.Auth.TrustedWindow)
	}
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT_SECRET missing")
	}
}

func TestLoad_RejectsWeakSecretInProduction(t *testing.T) {
	os.Setenv("ENV", "production")
	os.Setenv("JWT_SECRET", "short")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short secret in production")
	}
}

func TestLoad_RejectsBadCodeLength(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("CODE_LENGTH", "12")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range CODE_LENGTH")
	}
}
