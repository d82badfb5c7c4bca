// Package cache implements the three-tier read-through/write-through
// cascade described in §4.4: a persistent SQL store (authoritative), a
// central Redis tier, and a local file directory, composed behind one
// Cascade that never lets a lower tier's failure abort the read or
// write.
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/model"
)

// TierName identifies which cascade level served or accepted an entry.
type TierName string

const (
	TierPostgres TierName = "postgres"
	TierRedis    TierName = "redis"
	TierFile     TierName = "file"
)

// Entry is a cache hit: the row plus which tier produced it.
type Entry struct {
	Row  model.CacheRow
	Tier TierName
}

// Tier is one cascade level. Get returns (nil, nil) on a clean miss;
// a non-nil error means the tier itself is unhealthy, which the cascade
// treats as a miss-and-continue (§4.4: "if a tier read fails, proceed to
// the next tier without aborting").
type Tier interface {
	Name() TierName
	Get(ctx context.Context, paramsHash string) (*model.CacheRow, error)
	Put(ctx context.Context, row model.CacheRow) error
	Health(ctx context.Context) error
}

// Cascade composes the three tiers in durability order.
type Cascade struct {
	tiers []Tier

	hotThreshold  int
	warmThreshold int
}

// NewCascade composes tiers in the order they should be read, most
// durable first (§4.4: "persistent store, then KV store, then local
// file"). hotThreshold/warmThreshold drive ClassifyPriority on access.
func NewCascade(hotThreshold, warmThreshold int, tiers ...Tier) *Cascade {
	return &Cascade{tiers: tiers, hotThreshold: hotThreshold, warmThreshold: warmThreshold}
}

// Get reads paramsHash top-down through the tiers. A FRESH/STALE hit is
// lazily propagated to every tier above the one that served it; an
// EXPIRED row is treated as a miss and the read continues to the next
// tier. Returns (nil, EXPIRED-status-no-row) only when nothing usable is
// found anywhere.
func (c *Cascade) Get(ctx context.Context, paramsHash string) (*Entry, model.CacheStatus) {
	for i, tier := range c.tiers {
		row, err := tier.Get(ctx, paramsHash)
		if err != nil {
			continue // tier unhealthy: proceed to the next, per §4.4
		}
		if row == nil {
			continue
		}

		status := model.ClassifyAge(row.FetchedAt, time.Now())
		if status == model.CacheExpired && !c.stillDegradedAuthoritative(*row) {
			continue
		}

		row.AccessCount++
		row.LastAccessed = time.Now()
		row.Priority = model.ClassifyPriority(row.AccessCount, c.hotThreshold, c.warmThreshold)

		c.propagateUp(ctx, i, *row)

		return &Entry{Row: *row, Tier: tier.Name()}, status
	}
	return nil, model.CacheExpired
}

// stillDegradedAuthoritative implements §4.4's health-metadata rule:
// while now < degraded_until, a degraded entry is treated as
// authoritative even past the FRESH/STALE threshold.
func (c *Cascade) stillDegradedAuthoritative(row model.CacheRow) bool {
	return row.DegradedUntil != nil && time.Now().Before(*row.DegradedUntil)
}

// propagateUp lazy-fills every tier above foundAt with row, best-effort.
func (c *Cascade) propagateUp(ctx context.Context, foundAt int, row model.CacheRow) {
	for i := 0; i < foundAt; i++ {
		_ = c.tiers[i].Put(ctx, row)
	}
}

// Tiers returns the cascade's levels in read order, for a health endpoint
// that reports per-tier status.
func (c *Cascade) Tiers() []Tier {
	return c.tiers
}

// Put writes row to every tier best-effort: persistent store first
// (authoritative), then Redis, then file. Failures past the first tier
// log a warning but never fail the write (§4.4).
func (c *Cascade) Put(ctx context.Context, row model.CacheRow) error {
	var firstErr error
	for _, tier := range c.tiers {
		if err := tier.Put(ctx, row); err != nil {
			if tier.Name() == TierPostgres {
				firstErr = err
			}
			logTierWriteFailure(tier.Name(), err)
		}
	}
	return firstErr
}

// RecordFetchFailure applies the §4.4 health-metadata backoff to an
// existing row after a live-refresh attempt failed: increments
// fail_streak and sets degraded_until = now + backoff(fail_streak),
// capped at 60 minutes.
func RecordFetchFailure(row model.CacheRow, now time.Time) model.CacheRow {
	row.FailStreak++
	row.LastAttemptAt = now
	until := now.Add(backoff(row.FailStreak))
	row.DegradedUntil = &until
	return row
}

const maxBackoff = 60 * time.Minute

// backoff is exponential in fail_streak, capped at 60 minutes: 2^n
// minutes per §4.4, e.g. 2, 4, 8, 16, 32, 60(capped)...
func backoff(failStreak int) time.Duration {
	if failStreak <= 0 {
		return 0
	}
	d := time.Duration(1<<uint(failStreak-1)) * 2 * time.Minute
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func logTierWriteFailure(tier TierName, err error) {
	zap.L().Warn("cache: tier write failed", zap.String("tier", string(tier)), zap.Error(err))
}
