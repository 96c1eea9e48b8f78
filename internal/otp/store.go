// Package otp stores short-lived phone login codes in Redis. Codes
// are single use: verification deletes the key on match, and repeated
// mismatches burn the code so it cannot be brute forced within its
// lifetime.
package otp

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "bw:auth:otp:"
	maxAttempts   = 5
)

var (
	ErrCodeMismatch = errors.New("otp: code mismatch")
	ErrCodeExpired  = errors.New("otp: code expired or not issued")
)

// verifyScript compares the stored code and deletes it on match. On
// mismatch it counts the attempt and deletes the code once the attempt
// budget is spent. Returns 1 match, 0 mismatch, -1 missing.
var verifyScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
  return -1
end
if stored == ARGV[1] then
  redis.call("DEL", KEYS[1], KEYS[2])
  return 1
end
local attempts = redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], redis.call("PTTL", KEYS[1]))
if attempts >= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1], KEYS[2])
end
return 0
`)

type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Issue stores code for the given phone, replacing any previous code
// and resetting the attempt counter.
func (s *Store) Issue(ctx context.Context, phone, code string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.codeKey(phone), code, s.ttl)
	pipe.Del(ctx, s.attemptsKey(phone))
	_, err := pipe.Exec(ctx)
	return err
}

// Verify consumes the stored code for phone if it matches.
func (s *Store) Verify(ctx context.Context, phone, code string) error {
	res, err := verifyScript.Run(ctx, s.client,
		[]string{s.codeKey(phone), s.attemptsKey(phone)},
		code, maxAttempts).Int()
	if err != nil {
		return err
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrCodeMismatch
	default:
		return ErrCodeExpired
	}
}

func (s *Store) codeKey(phone string) string     { return s.prefix + "code:" + phone }
func (s *Store) attemptsKey(phone string) string { return s.prefix + "tries:" + phone }
