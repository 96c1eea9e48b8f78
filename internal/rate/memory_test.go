package rate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterAllowAndReset(t *testing.T) {
	lim := NewMemory(2, time.Second)
	now := time.Now()

	allowed, retry, err := lim.Allow(context.Background(), "login:1.2.3.4", now)
	if err != nil || !allowed || retry != 0 {
		t.Fatalf("expected allow on first call")
	}

	allowed, retry, err = lim.Allow(context.Background(), "login:1.2.3.4", now)
	if err != nil || !allowed || retry != 0 {
		t.Fatalf("expected allow on second call")
	}

	allowed, retry, err = lim.Allow(context.Background(), "login:1.2.3.4", now)
	if err != nil || allowed {
		t.Fatalf("expected rate limit on third call")
	}
	if retry <= 0 {
		t.Fatalf("expected retryAfter > 0")
	}

	allowed, _, err = lim.Allow(context.Background(), "login:1.2.3.4", now.Add(2*time.Second))
	if err != nil || !allowed {
		t.Fatalf("expected allow after window reset")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	lim := NewMemory(1, time.Minute)
	now := time.Now()

	if allowed, _, _ := lim.Allow(context.Background(), "login:a", now); !allowed {
		t.Fatalf("expected allow for first key")
	}
	if allowed, _, _ := lim.Allow(context.Background(), "login:b", now); !allowed {
		t.Fatalf("expected allow for second key")
	}
	if allowed, _, _ := lim.Allow(context.Background(), "login:a", now); allowed {
		t.Fatalf("expected first key to be limited")
	}
}
