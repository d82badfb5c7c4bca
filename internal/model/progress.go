package model

import "time"

// ProgressEvent is one frame pushed to a search's progress channel and, at
// the HTTP boundary, serialized as an SSE data frame (§3, §6).
type ProgressEvent struct {
	Stage     string         `json:"stage"`
	Progress  int            `json:"progress"` // -1 signals error; 100 + stage "complete" is terminal
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// IsTerminal reports whether this event ends the stream.
func (e ProgressEvent) IsTerminal() bool {
	return (e.Stage == "complete" && e.Progress == 100) || e.Stage == "error"
}

// TransitionRecord is an append-only log entry for a state machine
// transition (§4.7).
type TransitionRecord struct {
	From      SearchState    `json:"from"`
	To        SearchState    `json:"to"`
	Stage     string         `json:"stage"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
