package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-instance fallback used in development when
// Redis is not available. Same semantics as Store: single use, attempt
// budget, TTL.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]*memEntry
	ttl   time.Duration
}

type memEntry struct {
	code     string
	expires  time.Time
	attempts int
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{codes: map[string]*memEntry{}, ttl: ttl}
}

func (s *MemoryStore) Issue(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phone] = &memEntry{code: code, expires: time.Now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Verify(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[phone]
	if !ok || time.Now().After(e.expires) {
		delete(s.codes, phone)
		return ErrCodeExpired
	}
	if e.code != code {
		e.attempts++
		if e.attempts >= maxAttempts {
			delete(s.codes, phone)
		}
		return ErrCodeMismatch
	}
	delete(s.codes, phone)
	return nil
}
