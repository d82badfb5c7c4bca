package searchstate

import (
	"context"
	"testing"
	"time"
)

type fakeRecoveryStore struct {
	stale     []string
	markedIDs []string
	markErr   error
}

func (f *fakeRecoveryStore) ListStaleNonTerminal(ctx context.Context, olderThan time.Time) ([]string, error) {
	return f.stale, nil
}

func (f *fakeRecoveryStore) MarkTimedOut(ctx context.Context, searchID string, reason string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markedIDs = append(f.markedIDs, searchID)
	return nil
}

func TestRunStartupRecovery_MarksEachStaleSearchTimedOut(t *testing.T) {
	store := &fakeRecoveryStore{stale: []string{"search-1", "search-2"}}

	if err := RunStartupRecovery(context.Background(), store, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.markedIDs) != 2 {
		t.Fatalf("expected 2 searches marked timed out, got %d", len(store.markedIDs))
	}
}

func TestRunStartupRecovery_NoStaleSearchesIsNoOp(t *testing.T) {
	store := &fakeRecoveryStore{}

	if err := RunStartupRecovery(context.Background(), store, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.markedIDs) != 0 {
		t.Fatal("expected no searches marked")
	}
}

func TestRunStartupRecovery_ContinuesPastIndividualMarkFailures(t *testing.T) {
	store := &fakeRecoveryStore{
		stale:   []string{"search-1"},
		markErr: errTransientMarkFailure,
	}

	if err := RunStartupRecovery(context.Background(), store, time.Hour); err != nil {
		t.Fatalf("expected recovery to tolerate per-search mark failures, got %v", err)
	}
}

var errTransientMarkFailure = &recoveryTestError{"mark failed"}

type recoveryTestError struct{ msg string }

func (e *recoveryTestError) Error() string { return e.msg }
