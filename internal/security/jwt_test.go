package security

import (
	"errors"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()

	token, err := NewAccessToken("user-1", "seller", "a@b.c", secret, "bulkwala-auth", 15*time.Minute, now)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	claims, err := ParseAccessToken(token, secret)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != "seller" || claims.Email != "a@b.c" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "bulkwala-auth" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestParseAccessTokenWrongSecret(t *testing.T) {
	token, err := NewAccessToken("user-1", "customer", "a@b.c", []byte("secret-a"), "bulkwala-auth", time.Minute, time.Now())
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := ParseAccessToken(token, []byte("secret-b")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := NewAccessToken("user-1", "customer", "a@b.c", secret, "bulkwala-auth", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := ParseAccessToken(token, secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseAccessTokenGarbage(t *testing.T) {
	if _, err := ParseAccessToken("not.a.jwt", []byte("secret")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestExtractBearer(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ExtractBearer(tc.header); got != tc.want {
			t.Fatalf("ExtractBearer(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
