// Package searchstate tracks the lifecycle of a single search: its current
// state, the legal transitions out of it, and the progress events a client
// streams while it runs.
package searchstate

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/model"
)

// StateMachine guards the current state of one search and appends an
// audit trail of transitions. A zero value is not usable; build one with
// NewStateMachine.
type StateMachine struct {
	mu          sync.Mutex
	searchID    string
	current     model.SearchState
	enteredAt   time.Time
	transitions []model.TransitionRecord
}

// NewStateMachine starts a search in StateCreated.
func NewStateMachine(searchID string) *StateMachine {
	return &StateMachine{
		searchID:  searchID,
		current:   model.StateCreated,
		enteredAt: time.Now(),
	}
}

// Current reports the search's present state.
func (sm *StateMachine) Current() model.SearchState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// History returns a copy of the transition log recorded so far.
func (sm *StateMachine) History() []model.TransitionRecord {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]model.TransitionRecord, len(sm.transitions))
	copy(out, sm.transitions)
	return out
}

// Transition moves the search from its current state to to, validating the
// move against model.CanTransition. An illegal transition is logged at
// error level with both states attached and returns ErrInvalidTransition;
// the machine's state is left unchanged so callers can inspect it and
// decide whether to fail the search outright.
func (sm *StateMachine) Transition(to model.SearchState, stage string, details map[string]any) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	if !model.CanTransition(from, to) {
		zap.L().Error("illegal search state transition rejected",
			zap.String("severity", "critical"),
			zap.String("search_id", sm.searchID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("stage", stage),
		)
		return ErrInvalidTransition{From: from, To: to}
	}

	now := time.Now()
	sm.transitions = append(sm.transitions, model.TransitionRecord{
		From:      from,
		To:        to,
		Stage:     stage,
		Details:   mergeDuration(details, now.Sub(sm.enteredAt)),
		Timestamp: now,
	})
	sm.current = to
	sm.enteredAt = now
	return nil
}

func mergeDuration(details map[string]any, d time.Duration) map[string]any {
	out := make(map[string]any, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out["duration_in_state_ms"] = d.Milliseconds()
	return out
}

// ErrInvalidTransition reports a rejected from->to move.
type ErrInvalidTransition struct {
	From model.SearchState
	To   model.SearchState
}

func (e ErrInvalidTransition) Error() string {
	return "searchstate: illegal transition " + string(e.From) + " -> " + string(e.To)
}
