package resilience

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRateLimiter_AllowsWithinBudget(t *testing.T) {
	t.Parallel()
	client := newTestRedis(t)
	rl := NewRateLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow(ctx, "user:1", 3))
	}
	require.False(t, rl.Allow(ctx, "user:1", 3))
}

func TestRateLimiter_SeparateKeysIndependent(t *testing.T) {
	t.Parallel()
	client := newTestRedis(t)
	rl := NewRateLimiter(client)
	ctx := context.Background()

	require.True(t, rl.Allow(ctx, "user:1", 1))
	require.False(t, rl.Allow(ctx, "user:1", 1))
	require.True(t, rl.Allow(ctx, "user:2", 1))
}

func TestRateLimiter_UsesLocalLimiterWithoutClient(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(nil)
	ctx := context.Background()
	require.True(t, rl.Allow(ctx, "user:1", 1))
	require.False(t, rl.Allow(ctx, "user:1", 1))
}
