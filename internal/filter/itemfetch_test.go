package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sells-group/procsearch/internal/model"
)

type fakeItemFetcher struct {
	items map[string][]model.Item
	calls int
	err   error
}

func (f *fakeItemFetcher) FetchItems(ctx context.Context, rec model.UnifiedProcurement) ([]model.Item, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items[rec.DedupKey], nil
}

func TestItemInspectionBudget_MajorityMatchAccepts(t *testing.T) {
	fetcher := &fakeItemFetcher{items: map[string][]model.Item{
		"a": {
			{Descricao: "notebook dell i7"},
			{Descricao: "notebook lenovo i5"},
			{Descricao: "cabo de rede"},
		},
	}}
	budget := NewItemInspectionBudget(fetcher, 5, time.Second, 100)
	sector := model.Sector{Keywords: map[string]struct{}{"notebook": {}}}

	matched, ok := budget.Inspect(context.Background(), model.UnifiedProcurement{DedupKey: "a"}, sector)
	if !ok || !matched {
		t.Fatalf("expected majority match accept, matched=%v ok=%v", matched, ok)
	}
}

func TestItemInspectionBudget_ExhaustedBudgetReturnsNoVerdict(t *testing.T) {
	fetcher := &fakeItemFetcher{items: map[string][]model.Item{"a": {{Descricao: "notebook"}}}}
	budget := NewItemInspectionBudget(fetcher, 0, time.Second, 100)
	sector := model.Sector{Keywords: map[string]struct{}{"notebook": {}}}

	_, ok := budget.Inspect(context.Background(), model.UnifiedProcurement{DedupKey: "a"}, sector)
	if ok {
		t.Fatal("expected no verdict when budget is exhausted")
	}
}

func TestItemInspectionBudget_FetchErrorReturnsNoVerdict(t *testing.T) {
	fetcher := &fakeItemFetcher{err: errors.New("source unavailable")}
	budget := NewItemInspectionBudget(fetcher, 5, time.Second, 100)

	_, ok := budget.Inspect(context.Background(), model.UnifiedProcurement{DedupKey: "a"}, model.Sector{})
	if ok {
		t.Fatal("expected no verdict on fetch error")
	}
}

func TestItemInspectionBudget_CachesAcrossCalls(t *testing.T) {
	fetcher := &fakeItemFetcher{items: map[string][]model.Item{"a": {{Descricao: "notebook"}}}}
	budget := NewItemInspectionBudget(fetcher, 5, time.Second, 100)
	sector := model.Sector{Keywords: map[string]struct{}{"notebook": {}}}
	rec := model.UnifiedProcurement{DedupKey: "a"}

	budget.Inspect(context.Background(), rec, sector)
	budget.Inspect(context.Background(), rec, sector)
	if fetcher.calls != 1 {
		t.Fatalf("expected fetch to happen once due to caching, got %d calls", fetcher.calls)
	}
}
