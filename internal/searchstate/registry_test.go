package searchstate

import (
	"context"
	"testing"
	"time"

	"github.com/sells-group/procsearch/internal/model"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(time.Minute, nil, 8)

	sm, tr := reg.Register("search-1")
	if sm.Current() != model.StateCreated {
		t.Fatalf("expected freshly registered search to start CREATED, got %v", sm.Current())
	}

	gotSM, gotTR, ok := reg.Get("search-1")
	if !ok || gotSM != sm || gotTR != tr {
		t.Fatal("expected Get to return the same instances registered")
	}

	if _, _, ok := reg.Get("missing"); ok {
		t.Fatal("expected Get to report false for an unregistered search")
	}
}

func TestRegistry_SweepRemovesTerminalSearches(t *testing.T) {
	reg := NewRegistry(time.Minute, nil, 8)
	sm, _ := reg.Register("search-terminal")

	if err := sm.Transition(model.StateValidating, "validate", nil); err != nil {
		t.Fatal(err)
	}
	if err := sm.Transition(model.StateFailed, "fail", nil); err != nil {
		t.Fatal(err)
	}

	reg.sweepExpired()

	if _, _, ok := reg.Get("search-terminal"); ok {
		t.Fatal("expected terminal search to be swept from the registry")
	}
}

func TestRegistry_SweepRemovesExpiredEntries(t *testing.T) {
	reg := NewRegistry(time.Minute, nil, 8)
	reg.ttl = -time.Second // already-expired TTL; NewRegistry replaces a non-positive TTL with its default
	reg.Register("search-expired")

	reg.sweepExpired()

	if _, _, ok := reg.Get("search-expired"); ok {
		t.Fatal("expected expired search to be swept from the registry")
	}
}

func TestRegistry_WaitForTrackerReturnsOnceRegistered(t *testing.T) {
	reg := NewRegistry(time.Minute, nil, 8)

	go func() {
		time.Sleep(30 * time.Millisecond)
		reg.Register("search-late")
	}()

	var heartbeats int
	sm, tr, ok := reg.WaitForTracker(context.Background(), "search-late", 2*time.Second, func(model.ProgressEvent) {
		heartbeats++
	})
	if !ok || sm == nil || tr == nil {
		t.Fatal("expected WaitForTracker to find the search once registered")
	}
}

func TestRegistry_WaitForTrackerTimesOut(t *testing.T) {
	reg := NewRegistry(time.Minute, nil, 8)

	_, _, ok := reg.WaitForTracker(context.Background(), "never-registered", 100*time.Millisecond, nil)
	if ok {
		t.Fatal("expected WaitForTracker to time out for a search that never registers")
	}
}
