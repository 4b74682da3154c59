package keyvalue

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = errors.New("keyvalue: not found")

// Store is the single key-value abstraction used for pending-verification
// state, rate-limit counters and token blacklisting. Callers never know
// which backend is active.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX sets only if absent; reports whether the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// IncrWithExpire atomically increments a counter. A key with a live TTL
	// keeps its remaining window; a key without one gets ttl stamped.
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
