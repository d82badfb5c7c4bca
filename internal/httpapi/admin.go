package httpapi

import (
	"net/http"

	"github.com/sells-group/procsearch/internal/filter"
)

type filterStatsBody struct {
	Recent []filter.RecentRejection `json:"recent"`
}

// handleFilterStats implements the supplemented GET /admin/filter-stats
// endpoint: a thin read-only view over the in-process rejection ring
// buffer (§4.5). It authenticates nothing itself: it answers 403 unless
// the X-Is-Admin header, set by the same upstream admin auth boundary as
// the excluded admin CRUD surface (Non-goals), marks the request as admin,
// trusting that header like every other handler trusts the
// upstream-verified AuthContext.
func (s *Server) handleFilterStats(w http.ResponseWriter, r *http.Request) {
	if !isAdminRequest(r) {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}
	if s.Rejections == nil {
		writeJSON(w, http.StatusOK, filterStatsBody{})
		return
	}
	writeJSON(w, http.StatusOK, filterStatsBody{Recent: s.Rejections.Recent()})
}
