package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/keyvalue"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	store := keyvalue.NewMemoryStore()
	t.Cleanup(store.Close)
	return NewLimiter(store)
}

func TestAllowWithinLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := limiter.Allow(ctx, "login:1.2.3.4:alice", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(i+1), res.Count)
		assert.Equal(t, int64(5-i-1), res.Remaining)
	}
}

func TestAllowOverLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Allow(ctx, "scope", 5, time.Minute)
		require.NoError(t, err)
	}

	res, err := limiter.Allow(ctx, "scope", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(6), res.Count)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)
}

func TestAllowScopesAreIndependent(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, "login:1.1.1.1:alice", 3, time.Minute)
		require.NoError(t, err)
	}

	blocked, err := limiter.Allow(ctx, "login:1.1.1.1:alice", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	other, err := limiter.Allow(ctx, "login:2.2.2.2:alice", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "a different scope must have its own counter")
}

func TestCooldown(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	ok, wait, err := limiter.Cooldown(ctx, "resend:user1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, wait)

	ok, wait, err = limiter.Cooldown(ctx, "resend:user1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
}

func TestReset(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, "scope", 2, time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, limiter.Reset(ctx, "scope"))

	res, err := limiter.Allow(ctx, "scope", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Count)
}
