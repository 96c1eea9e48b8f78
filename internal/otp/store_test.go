package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, "test:otp:", ttl), s
}

func TestIssueAndVerify(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Issue(ctx, "+15550001111", "482913"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := store.Verify(ctx, "+15550001111", "482913"); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Single use: the same code must not verify twice.
	if err := store.Verify(ctx, "+15550001111", "482913"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired on reuse, got %v", err)
	}
}

func TestVerifyMismatchBurnsAfterMaxAttempts(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Issue(ctx, "+15550001111", "482913"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	for i := 0; i < maxAttempts; i++ {
		if err := store.Verify(ctx, "+15550001111", "000000"); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i, err)
		}
	}

	// Code is burned even when the right code arrives afterwards.
	if err := store.Verify(ctx, "+15550001111", "482913"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired after burn, got %v", err)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Issue(ctx, "+15550001111", "482913"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := store.Verify(ctx, "+15550001111", "482913"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestReissueReplacesCode(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Issue(ctx, "+15550001111", "111111"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := store.Issue(ctx, "+15550001111", "222222"); err != nil {
		t.Fatalf("reissue: %v", err)
	}

	if err := store.Verify(ctx, "+15550001111", "111111"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected old code rejected, got %v", err)
	}
	if err := store.Verify(ctx, "+15550001111", "222222"); err != nil {
		t.Fatalf("expected new code accepted, got %v", err)
	}
}
