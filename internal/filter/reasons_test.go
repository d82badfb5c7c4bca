package filter

import (
	"testing"

	"github.com/sells-group/procsearch/internal/model"
)

func TestBumpStats_RoutesNamedAndExtraCounters(t *testing.T) {
	stats := model.FilterStats{}
	bumpStats(&stats, ReasonUF)
	bumpStats(&stats, ReasonValor)
	bumpStats(&stats, ReasonDensityLow)
	bumpStats(&stats, ReasonDensityLow)

	if stats.RejeitadasUF != 1 || stats.RejeitadasValor != 1 {
		t.Fatalf("named counters not updated: %+v", stats)
	}
	if stats.RejeitadasKeyword != 2 || stats.Extra["density_low"] != 2 {
		t.Fatalf("expected keyword-family reasons to fold into RejeitadasKeyword + Extra, got %+v", stats)
	}
}

func TestRejectionTracker_WrapsAtCapacity(t *testing.T) {
	tracker := NewRejectionTracker(2)
	tracker.Record(RecentRejection{DedupKey: "1"})
	tracker.Record(RecentRejection{DedupKey: "2"})
	tracker.Record(RecentRejection{DedupKey: "3"})

	recent := tracker.Recent()
	if len(recent) != 2 {
		t.Fatalf("expected capacity-bounded length 2, got %d", len(recent))
	}
	// "1" should have been evicted, "2" and "3" retained.
	keys := map[string]bool{recent[0].DedupKey: true, recent[1].DedupKey: true}
	if keys["1"] || !keys["2"] || !keys["3"] {
		t.Fatalf("expected oldest entry evicted, got %+v", recent)
	}
}
