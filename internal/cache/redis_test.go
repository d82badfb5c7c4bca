package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procsearch/internal/model"
)

func newTestRedisTier(t *testing.T) *RedisTier {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewRedisTier(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestRedisTier_PutThenGetRoundTrips(t *testing.T) {
	t.Parallel()
	tier := newTestRedisTier(t)
	ctx := context.Background()

	row := model.CacheRow{ParamsHash: "k1", FetchedAt: time.Now(), Priority: model.PriorityHot}
	require.NoError(t, tier.Put(ctx, row))

	got, err := tier.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "k1", got.ParamsHash)
}

func TestRedisTier_GetMissReturnsNilNoError(t *testing.T) {
	t.Parallel()
	tier := newTestRedisTier(t)
	got, err := tier.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}
