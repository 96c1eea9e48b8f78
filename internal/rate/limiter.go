// Package rate provides fixed-window request limiting for the auth
// endpoints. Keys are caller-defined (route plus client IP); the
// in-memory limiter serves single-instance deployments and the Redis
// limiter is shared across replicas.
package rate

import (
	"context"
	"time"
)

// Limiter reports whether a request identified by key is allowed at
// the given time. When denied, retryAfter is the remaining window.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}
