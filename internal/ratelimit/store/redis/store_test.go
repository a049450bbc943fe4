package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(client)
}

func TestIncrWindow(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	t.Run("increments atomically", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := store.IncrWindow(ctx, "ratelimit:a:upload:100", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("first touch arms the ttl", func(t *testing.T) {
		_, err := store.IncrWindow(ctx, "ratelimit:b:upload:100", 30*time.Second)
		require.NoError(t, err)
		assert.InDelta(t, 30*time.Second, mr.TTL("ratelimit:b:upload:100"), float64(time.Second))
	})

	t.Run("counter expires at the boundary", func(t *testing.T) {
		_, err := store.IncrWindow(ctx, "ratelimit:c:upload:100", time.Minute)
		require.NoError(t, err)

		mr.FastForward(61 * time.Second)

		count, err := store.IncrWindow(ctx, "ratelimit:c:upload:100", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "expired window starts a fresh count")
	})
}

func TestCount(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	t.Run("missing key reads as zero", func(t *testing.T) {
		count, err := store.Count(ctx, "quota:a:2025-06")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("reads without mutating", func(t *testing.T) {
		_, err := store.IncrBy(ctx, "quota:a:2025-06", 5, time.Hour)
		require.NoError(t, err)

		for range 3 {
			count, err := store.Count(ctx, "quota:a:2025-06")
			require.NoError(t, err)
			assert.Equal(t, int64(5), count)
		}
	})
}

func TestIncrBy(t *testing.T) {
	mr, store := setupStore(t)
	ctx := context.Background()

	t.Run("accumulates", func(t *testing.T) {
		_, err := store.IncrBy(ctx, "quota:b:2025-06", 2, time.Hour)
		require.NoError(t, err)
		count, err := store.IncrBy(ctx, "quota:b:2025-06", 3, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
	})

	t.Run("repeat increments keep the original ttl", func(t *testing.T) {
		_, err := store.IncrBy(ctx, "quota:c:2025-06", 1, time.Hour)
		require.NoError(t, err)
		mr.FastForward(30 * time.Minute)
		_, err = store.IncrBy(ctx, "quota:c:2025-06", 1, time.Hour)
		require.NoError(t, err)

		assert.LessOrEqual(t, mr.TTL("quota:c:2025-06"), 30*time.Minute)
	})
}

func TestSetMarker(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	created, err := store.SetMarker(ctx, "quota:reset:a:2025-06", time.Hour)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.SetMarker(ctx, "quota:reset:a:2025-06", time.Hour)
	require.NoError(t, err)
	assert.False(t, created, "second attempt in the same period is a no-op")
}

func TestDelete(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	_, err := store.IncrWindow(ctx, "ratelimit:d:upload:100", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "ratelimit:d:upload:100"))

	count, err := store.Count(ctx, "ratelimit:d:upload:100")
	require.NoError(t, err)
	assert.Zero(t, count)
}
