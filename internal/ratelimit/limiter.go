package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/keyvalue"
)

const (
	counterPrefix  = "rate_limit:"
	cooldownPrefix = "cooldown:"
)

const opTimeout = 5 * time.Second

// Result reports the outcome of one limiter check.
type Result struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter is a fixed-window counter parameterized per call by
// (scope key, limit, window). Every throttled endpoint shares this one
// abstraction instead of carrying its own counter code.
type Limiter struct {
	store keyvalue.Store
}

func NewLimiter(store keyvalue.Store) *Limiter {
	return &Limiter{store: store}
}

// Allow counts a hit against scope and reports whether it fit the limit.
// The increment happens before the comparison, so concurrent callers can
// never undercount.
func (l *Limiter) Allow(ctx context.Context, scope string, limit int, window time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := counterPrefix + scope
	count, err := l.store.IncrWithExpire(ctx, key, window)
	if err != nil {
		return Result{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	res := Result{Count: count, Allowed: count <= int64(limit)}
	if res.Allowed {
		res.Remaining = int64(limit) - count
		return res, nil
	}

	ttl, err := l.store.TTL(ctx, key)
	if err != nil || ttl < 0 {
		ttl = window
	}
	res.RetryAfter = ttl
	return res, nil
}

// Cooldown enforces a minimum spacing between actions on a scope. The first
// caller in a window wins; later callers get the remaining wait time.
func (l *Limiter) Cooldown(ctx context.Context, scope string, d time.Duration) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := cooldownPrefix + scope
	ok, err := l.store.SetNX(ctx, key, "1", d)
	if err != nil {
		return false, 0, fmt.Errorf("failed to set cooldown: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := l.store.TTL(ctx, key)
	if err != nil || ttl < 0 {
		ttl = d
	}
	return false, ttl, nil
}

// Reset clears a scope's counter and cooldown.
func (l *Limiter) Reset(ctx context.Context, scope string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := l.store.Delete(ctx, counterPrefix+scope, cooldownPrefix+scope); err != nil {
		return fmt.Errorf("failed to reset rate limit scope: %w", err)
	}
	return nil
}
