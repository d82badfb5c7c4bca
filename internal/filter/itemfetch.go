package filter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/procsearch/internal/model"
)

// ItemFetcher retrieves line-item detail for a bid from its originating
// source, for Stage F's gray-zone item inspection.
type ItemFetcher interface {
	FetchItems(ctx context.Context, rec model.UnifiedProcurement) ([]model.Item, error)
}

type itemCacheEntry struct {
	items   []model.Item
	storedAt time.Time
}

// ItemInspectionBudget bounds Stage F to at most MaxFetches source calls per
// search, each capped at PerFetchTimeout, with a 24h LRU cache keyed by
// dedup_key so repeat searches don't re-fetch the same bid's items.
type ItemInspectionBudget struct {
	fetcher        ItemFetcher
	maxFetches     int
	perFetchTimeout time.Duration

	mu    sync.Mutex
	used  int
	cache map[string]itemCacheEntry
	order []string // LRU eviction order, oldest first
	cap   int
}

// NewItemInspectionBudget builds a per-search budget wrapping fetcher.
// cacheCap bounds the LRU cache size across the process lifetime.
func NewItemInspectionBudget(fetcher ItemFetcher, maxFetches int, perFetchTimeout time.Duration, cacheCap int) *ItemInspectionBudget {
	if cacheCap <= 0 {
		cacheCap = 2000
	}
	return &ItemInspectionBudget{
		fetcher:        fetcher,
		maxFetches:     maxFetches,
		perFetchTimeout: perFetchTimeout,
		cache:          make(map[string]itemCacheEntry),
		cap:            cacheCap,
	}
}

// Inspect fetches (or reuses a cached copy of) rec's items and reports
// whether a majority of items match the sector's keywords. Returns
// (matched=false, ok=false) when the budget is exhausted or the fetch
// fails — callers should treat that as "no verdict", not a rejection.
func (b *ItemInspectionBudget) Inspect(ctx context.Context, rec model.UnifiedProcurement, sector model.Sector) (matched bool, ok bool) {
	items, fromCache := b.itemsFor(rec)
	if !fromCache {
		b.mu.Lock()
		if b.used >= b.maxFetches {
			b.mu.Unlock()
			return false, false
		}
		b.used++
		b.mu.Unlock()

		fetchCtx, cancel := context.WithTimeout(ctx, b.perFetchTimeout)
		fetched, err := b.fetcher.FetchItems(fetchCtx, rec)
		cancel()
		if err != nil {
			return false, false
		}
		items = fetched
		b.store(rec.DedupKey, items)
	}

	if len(items) == 0 {
		return false, false
	}

	matches := 0
	for _, item := range items {
		normalized := NormalizeText(item.Descricao)
		if itemMatchesSector(normalized, item, sector) {
			matches++
		}
	}
	ratio := float64(matches) / float64(len(items))
	return ratio > 0.5, true
}

func itemMatchesSector(normalized string, item model.Item, sector model.Sector) bool {
	for keyword := range sector.Keywords {
		if ContainsWord(normalized, keyword) {
			return true
		}
	}
	// NCM codes and unit/size domain signals boost certain item classes:
	// an item carrying an NCM code the sector cares about counts on its own.
	if item.NCM != "" {
		for keyword := range sector.Keywords {
			if strings.Contains(item.NCM, keyword) {
				return true
			}
		}
	}
	return false
}

func (b *ItemInspectionBudget) itemsFor(rec model.UnifiedProcurement) ([]model.Item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.cache[rec.DedupKey]
	if !ok || time.Since(entry.storedAt) > 24*time.Hour {
		return nil, false
	}
	for i, k := range b.order {
		if k == rec.DedupKey {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.order = append(b.order, rec.DedupKey)
	return entry.items, true
}

func (b *ItemInspectionBudget) store(dedupKey string, items []model.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.cache[dedupKey]; !exists {
		b.order = append(b.order, dedupKey)
	}
	b.cache[dedupKey] = itemCacheEntry{items: items, storedAt: time.Now()}

	for len(b.order) > b.cap {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.cache, oldest)
	}
}
