package keyvalue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/client"
)

// storeFixture runs the same assertions against both backends. advance moves
// the backend's clock without sleeping.
type storeFixture struct {
	store   Store
	advance func(d time.Duration)
}

func fixtures(t *testing.T) map[string]storeFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mem := NewMemoryStore()
	t.Cleanup(mem.Close)
	base := time.Now()
	offset := time.Duration(0)
	mem.now = func() time.Time { return base.Add(offset) }

	return map[string]storeFixture{
		"redis": {
			store:   NewRedisStore(client.NewRedisClientFromExisting(rdb)),
			advance: mr.FastForward,
		},
		"memory": {
			store:   mem,
			advance: func(d time.Duration) { offset += d },
		},
	}
}

func TestStoreSetExAndGet(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := fx.store.Get(ctx, "absent")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, fx.store.SetEx(ctx, "k", "v", time.Minute))
			got, err := fx.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v", got)

			fx.advance(2 * time.Minute)
			_, err = fx.store.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreSetNX(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := fx.store.SetNX(ctx, "lock", "a", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = fx.store.SetNX(ctx, "lock", "b", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "second SetNX on a live key must lose")

			got, err := fx.store.Get(ctx, "lock")
			require.NoError(t, err)
			assert.Equal(t, "a", got)

			fx.advance(2 * time.Minute)
			ok, err = fx.store.SetNX(ctx, "lock", "c", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "SetNX must win again once the key expired")
		})
	}
}

func TestStoreDeleteAndExists(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, fx.store.SetEx(ctx, "a", "1", time.Minute))
			require.NoError(t, fx.store.SetEx(ctx, "b", "2", time.Minute))

			ok, err := fx.store.Exists(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, fx.store.Delete(ctx, "a", "b"))

			ok, err = fx.store.Exists(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)
			ok, err = fx.store.Exists(ctx, "b")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreIncrWithExpire(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for want := int64(1); want <= 3; want++ {
				count, err := fx.store.IncrWithExpire(ctx, "counter", time.Minute)
				require.NoError(t, err)
				assert.Equal(t, want, count)
			}

			// The window must not slide: later increments keep the TTL set by
			// the first one.
			fx.advance(30 * time.Second)
			_, err := fx.store.IncrWithExpire(ctx, "counter", time.Minute)
			require.NoError(t, err)

			ttl, err := fx.store.TTL(ctx, "counter")
			require.NoError(t, err)
			assert.LessOrEqual(t, ttl, 30*time.Second)
			assert.Greater(t, ttl, time.Duration(0))

			fx.advance(31 * time.Second)
			count, err := fx.store.IncrWithExpire(ctx, "counter", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count, "expired counter must restart from 1")
		})
	}
}

func TestStoreExpire(t *testing.T) {
	for name, fx := range fixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, fx.store.SetEx(ctx, "k", "v", time.Hour))
			require.NoError(t, fx.store.Expire(ctx, "k", time.Second))

			fx.advance(2 * time.Second)
			_, err := fx.store.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
