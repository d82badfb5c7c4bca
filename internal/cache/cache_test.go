package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procsearch/internal/model"
)

// memTier is a trivial in-memory Tier used to exercise Cascade without a
// real Postgres/Redis/filesystem.
type memTier struct {
	name    TierName
	rows    map[string]model.CacheRow
	healthy bool
	puts    int
}

func newMemTier(name TierName) *memTier {
	return &memTier{name: name, rows: make(map[string]model.CacheRow), healthy: true}
}

func (t *memTier) Name() TierName { return t.name }

func (t *memTier) Get(ctx context.Context, paramsHash string) (*model.CacheRow, error) {
	if !t.healthy {
		return nil, assert.AnError
	}
	row, ok := t.rows[paramsHash]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (t *memTier) Put(ctx context.Context, row model.CacheRow) error {
	t.puts++
	t.rows[row.ParamsHash] = row
	return nil
}

func (t *memTier) Health(ctx context.Context) error { return nil }

func TestCascade_MissEverywhereReturnsNil(t *testing.T) {
	t.Parallel()
	c := NewCascade(10, 3, newMemTier(TierPostgres), newMemTier(TierRedis), newMemTier(TierFile))
	entry, status := c.Get(context.Background(), "abc")
	assert.Nil(t, entry)
	assert.Equal(t, model.CacheExpired, status)
}

func TestCascade_HitPropagatesUpward(t *testing.T) {
	t.Parallel()
	pg := newMemTier(TierPostgres)
	redisT := newMemTier(TierRedis)
	file := newMemTier(TierFile)

	file.rows["k1"] = model.CacheRow{ParamsHash: "k1", FetchedAt: time.Now()}

	c := NewCascade(10, 3, pg, redisT, file)
	entry, status := c.Get(context.Background(), "k1")
	require.NotNil(t, entry)
	assert.Equal(t, TierFile, entry.Tier)
	assert.Equal(t, model.CacheFresh, status)

	assert.Equal(t, 1, pg.puts)
	assert.Equal(t, 1, redisT.puts)
}

func TestCascade_FailingTierIsSkipped(t *testing.T) {
	t.Parallel()
	pg := newMemTier(TierPostgres)
	pg.healthy = false
	redisT := newMemTier(TierRedis)
	redisT.rows["k2"] = model.CacheRow{ParamsHash: "k2", FetchedAt: time.Now()}

	c := NewCascade(10, 3, pg, redisT)
	entry, _ := c.Get(context.Background(), "k2")
	require.NotNil(t, entry)
	assert.Equal(t, TierRedis, entry.Tier)
}

func TestCascade_ExpiredRowTreatedAsMissUnlessDegraded(t *testing.T) {
	t.Parallel()
	old := time.Now().Add(-48 * time.Hour)
	pg := newMemTier(TierPostgres)
	pg.rows["k3"] = model.CacheRow{ParamsHash: "k3", FetchedAt: old}

	c := NewCascade(10, 3, pg)
	entry, _ := c.Get(context.Background(), "k3")
	assert.Nil(t, entry)

	until := time.Now().Add(time.Hour)
	pg.rows["k3"] = model.CacheRow{ParamsHash: "k3", FetchedAt: old, DegradedUntil: &until}
	entry2, _ := c.Get(context.Background(), "k3")
	require.NotNil(t, entry2)
}

func TestCascade_AccessCountAndPriorityUpdatedOnHit(t *testing.T) {
	t.Parallel()
	pg := newMemTier(TierPostgres)
	pg.rows["k4"] = model.CacheRow{ParamsHash: "k4", FetchedAt: time.Now(), AccessCount: 9}

	c := NewCascade(10, 3, pg)
	entry, _ := c.Get(context.Background(), "k4")
	require.NotNil(t, entry)
	assert.Equal(t, 10, entry.Row.AccessCount)
	assert.Equal(t, model.PriorityHot, entry.Row.Priority)
}

func TestRecordFetchFailure_IncrementsAndCapsBackoff(t *testing.T) {
	t.Parallel()
	now := time.Now()
	row := model.CacheRow{FailStreak: 0}
	row = RecordFetchFailure(row, now)
	assert.Equal(t, 1, row.FailStreak)
	assert.True(t, row.DegradedUntil.After(now))

	row.FailStreak = 20
	row = RecordFetchFailure(row, now)
	assert.LessOrEqual(t, row.DegradedUntil.Sub(now), maxBackoff)
}
