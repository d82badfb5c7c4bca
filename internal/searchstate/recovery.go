package searchstate

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RecoveryStore is the minimal persistence contract recovery needs: find
// searches stuck in a non-terminal state past the grace window and mark
// them timed out. The pipeline's persistence layer implements this
// alongside its richer read/write surface for search records.
type RecoveryStore interface {
	ListStaleNonTerminal(ctx context.Context, olderThan time.Time) ([]string, error)
	MarkTimedOut(ctx context.Context, searchID string, reason string) error
}

// RunStartupRecovery scans for searches that were left in a non-terminal
// state by a process that died mid-search (crash, deploy, OOM kill) and
// transitions each to StateTimedOut. graceWindow should exceed the
// longest possible pipeline run so an in-flight search on another replica
// isn't falsely reclaimed.
func RunStartupRecovery(ctx context.Context, store RecoveryStore, graceWindow time.Duration) error {
	stale, err := store.ListStaleNonTerminal(ctx, time.Now().Add(-graceWindow))
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	zap.L().Warn("searchstate: recovering stale non-terminal searches",
		zap.Int("count", len(stale)))

	for _, searchID := range stale {
		if err := store.MarkTimedOut(ctx, searchID, "startup recovery: search found non-terminal past grace window"); err != nil {
			zap.L().Error("searchstate: failed to mark search timed out during recovery",
				zap.String("search_id", searchID), zap.Error(err))
			continue
		}
	}
	return nil
}
