package filter

import (
	"sync"
	"time"

	"github.com/sells-group/procsearch/internal/model"
)

// RejectReason is the fine-grained rejection code recorded per bid. Several
// codes roll up into the same FilterStats counter; Extra keeps the
// fine-grained breakdown for the admin endpoint and structured logs.
type RejectReason string

const (
	ReasonUF              RejectReason = "uf"
	ReasonStatus          RejectReason = "status"
	ReasonModalidade      RejectReason = "modalidade"
	ReasonValor           RejectReason = "valor"
	ReasonKeywordExcluded RejectReason = "keyword_exclusion"
	ReasonCoOccurrence    RejectReason = "co_occurrence"
	ReasonDensityLow      RejectReason = "density_low"
	ReasonArbiterNao      RejectReason = "arbiter_nao"
	ReasonItemInspection  RejectReason = "item_inspection"
	ReasonMinMatch        RejectReason = "min_match"
	ReasonOther           RejectReason = "other"
)

// bumpStats folds a fine-grained reason into the histogram's named counters
// plus, for the codes with no dedicated counter, the Extra breakdown.
func bumpStats(stats *model.FilterStats, reason RejectReason) {
	switch reason {
	case ReasonUF:
		stats.RejeitadasUF++
	case ReasonValor:
		stats.RejeitadasValor++
	case ReasonMinMatch:
		stats.RejeitadasMinMatch++
	case ReasonKeywordExcluded, ReasonCoOccurrence, ReasonDensityLow, ReasonArbiterNao, ReasonItemInspection:
		stats.RejeitadasKeyword++
		if stats.Extra == nil {
			stats.Extra = make(map[string]int)
		}
		stats.Extra[string(reason)]++
	default:
		stats.RejeitadasOutros++
		if stats.Extra == nil {
			stats.Extra = make(map[string]int)
		}
		stats.Extra[string(reason)]++
	}
}

// RecentRejection is one entry in the in-process admin-endpoint tracker.
type RecentRejection struct {
	SectorID string       `json:"sector_id"`
	DedupKey string       `json:"dedup_key"`
	Objeto   string       `json:"objeto"`
	Reason   RejectReason `json:"reason"`
	At       time.Time    `json:"at"`
}

// RejectionTracker retains the most recent rejections across all searches
// in a bounded ring buffer, for the admin observability endpoint (§4.5).
type RejectionTracker struct {
	mu       sync.Mutex
	capacity int
	entries  []RecentRejection
	next     int
}

// NewRejectionTracker creates a tracker retaining up to capacity entries.
func NewRejectionTracker(capacity int) *RejectionTracker {
	if capacity <= 0 {
		capacity = 200
	}
	return &RejectionTracker{capacity: capacity}
}

// Record appends a rejection, overwriting the oldest entry once the buffer
// is full.
func (t *RejectionTracker) Record(e RecentRejection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) < t.capacity {
		t.entries = append(t.entries, e)
		return
	}
	t.entries[t.next] = e
	t.next = (t.next + 1) % t.capacity
}

// Recent returns a snapshot of the retained rejections, oldest first.
func (t *RejectionTracker) Recent() []RecentRejection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RecentRejection, 0, len(t.entries))
	out = append(out, t.entries[t.next:]...)
	out = append(out, t.entries[:t.next]...)
	return out
}
