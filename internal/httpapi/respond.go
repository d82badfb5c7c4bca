package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// errorBody is the shape of every non-2xx response (§4.10: "must return a
// valid JSON body at every status code, never a traceback").
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("httpapi: failed to encode response body", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// userIDFromRequest reads the caller identity an upstream auth middleware
// already verified. Per the Non-goals boundary, this package never
// authenticates a token itself; X-User-Id is the already-verified
// AuthContext handed down from that middleware.
func userIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

func isAdminRequest(r *http.Request) bool {
	return r.Header.Get("X-Is-Admin") == "true"
}
