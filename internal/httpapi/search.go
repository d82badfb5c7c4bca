package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/model"
	"github.com/sells-group/procsearch/internal/searchstate"
)

// progressWaitTimeout bounds how long GET /search-progress waits for a
// tracker to be registered before giving up — generous enough to cover a
// client opening the SSE channel slightly ahead of its POST /search call.
const progressWaitTimeout = 30 * time.Second

// handleSearch implements POST /search (§4.10/§6). It blocks on the full
// pipeline run and returns the canonical response envelope; a client that
// wants live progress opens GET /search-progress/{search_id} concurrently
// using the same search_id (client-supplied or echoed back via the
// registry before Run starts).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req model.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SetorID == "" {
		writeError(w, http.StatusBadRequest, "setor_id is required")
		return
	}
	if req.SearchID == "" {
		req.SearchID = uuid.NewString()
	}
	req.UserID = userIDFromRequest(r)
	req.IsAdmin = isAdminRequest(r)

	if s.RateLimiter != nil && req.UserID != "" {
		if !s.RateLimiter.Allow(r.Context(), "search:"+req.UserID, 1) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	sm, tracker := s.Registry.Register(req.SearchID)

	if s.Results != nil {
		if err := s.Results.CreateSession(r.Context(), req.SearchID, req); err != nil {
			zap.L().Warn("httpapi: failed to record search session", zap.String("search_id", req.SearchID), zap.Error(err))
		}
	}

	sources := s.Sources()
	start := time.Now()
	resp, err := s.Pipeline.Run(r.Context(), req, sources, sm, tracker)
	duration := time.Since(start)

	if err != nil {
		SearchDuration.WithLabelValues(string(model.ResponseEmptyFailure)).Observe(duration.Seconds())
		writeJSON(w, http.StatusOK, model.SearchResponse{
			ResponseState: model.ResponseEmptyFailure,
			SearchID:      req.SearchID,
			FilterStats:   model.FilterStats{},
			DegradationGuidance: err.Error(),
		})
		return
	}

	SearchDuration.WithLabelValues(string(resp.ResponseState)).Observe(duration.Seconds())
	writeJSON(w, http.StatusOK, resp)
}

// handleSearchProgress implements GET /search-progress/{search_id} (SSE).
func (s *Server) handleSearchProgress(w http.ResponseWriter, r *http.Request) {
	searchID := chi.URLParam(r, "search_id")
	userID := userIDFromRequest(r)

	release, ok := s.acquireSSESlot(userID)
	if !ok {
		writeError(w, http.StatusTooManyRequests, "too many concurrent progress streams for this user")
		return
	}
	defer release()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	_, tracker, found := s.Registry.WaitForTracker(ctx, searchID, progressWaitTimeout, func(ev model.ProgressEvent) {
		writeSSEFrame(w, ev)
		flusher.Flush()
	})
	if !found {
		writeSSEFrame(w, model.ProgressEvent{Stage: "error", Progress: -1, Message: "search not found or already expired", Timestamp: time.Now()})
		flusher.Flush()
		return
	}

	events, cleanup, subscribed := tracker.Subscribe(ctx)
	if !subscribed {
		events = tracker.Events()
		cleanup = func() {}
	}
	defer cleanup()

	heartbeat := time.NewTicker(searchstate.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSEFrame(w, ev)
			flusher.Flush()
			if ev.IsTerminal() {
				return
			}
		case <-heartbeat.C:
			writeSSEFrame(w, model.ProgressEvent{Stage: "heartbeat", Progress: -1, Message: "heartbeat", Timestamp: time.Now()})
			flusher.Flush()
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, ev model.ProgressEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		zap.L().Warn("httpapi: failed to marshal progress event", zap.Error(err))
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n\n"))
}

// searchResultPending is the body returned while a session exists but
// hasn't produced a response yet (the progressive-delivery path's
// "download_url = null and a pending marker").
type searchResultPending struct {
	SearchID string `json:"search_id"`
	State    string `json:"state"`
	Message  string `json:"message"`
}

// handleSearchResults implements GET /search-results/{search_id}.
func (s *Server) handleSearchResults(w http.ResponseWriter, r *http.Request) {
	searchID := chi.URLParam(r, "search_id")
	if s.Results == nil {
		writeError(w, http.StatusServiceUnavailable, "result store not configured")
		return
	}

	resp, ok, err := s.Results.GetSearchResult(r.Context(), searchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	state, found, err := s.Results.GetSessionState(r.Context(), searchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "search_id not found")
		return
	}
	writeJSON(w, http.StatusAccepted, searchResultPending{
		SearchID: searchID,
		State:    string(state),
		Message:  "search still in progress; poll again or stream GET /search-progress",
	})
}
