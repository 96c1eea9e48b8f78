package config

import (
	"testing"
	"time"
)

func TestLoadRequiresAccessSecret(t *testing.T) {
	t.Setenv("BW_ACCESS_TOKEN_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to fail without an access token secret")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BW_ACCESS_TOKEN_SECRET", "test-secret")
	t.Setenv("BW_JWT_ISSUER", "")
	t.Setenv("BW_ACCESS_TOKEN_TTL", "")
	t.Setenv("BW_REFRESH_TOKEN_TTL", "")
	t.Setenv("BW_RECOVERY_TOKEN_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AccessSecret != "test-secret" {
		t.Fatalf("expected access secret from env, got %q", cfg.AccessSecret)
	}
	if cfg.JWTIssuer != "bulkwala-auth" {
		t.Fatalf("unexpected issuer %q", cfg.JWTIssuer)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("unexpected access TTL %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected refresh TTL %v", cfg.RefreshTokenTTL)
	}
	if cfg.RecoveryTokenTTL != 5*time.Minute {
		t.Fatalf("unexpected recovery TTL %v", cfg.RecoveryTokenTTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BW_ACCESS_TOKEN_SECRET", "test-secret")
	t.Setenv("BW_ACCESS_TOKEN_TTL", "30m")
	t.Setenv("BW_LOGIN_RATE_LIMIT", "3")
	t.Setenv("BW_COOKIE_DOMAIN", ".example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("unexpected access TTL %v", cfg.AccessTokenTTL)
	}
	if cfg.RateLimit.LoginLimit != 3 {
		t.Fatalf("unexpected login limit %d", cfg.RateLimit.LoginLimit)
	}
	if cfg.Cookie.Domain != ".example.com" {
		t.Fatalf("unexpected cookie domain %q", cfg.Cookie.Domain)
	}
}
