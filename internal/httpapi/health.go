package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/cache"
)

// readyBody is GET /health/ready's response (§4.10: "returns {ready,
// uptime_seconds} in < 50ms with no I/O").
type readyBody struct {
	Ready          bool    `json:"ready"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, readyBody{
		Ready:         s.ready.Load(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	})
}

type tierHealth struct {
	Tier      string  `json:"tier"`
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latency_ms"`
}

type cacheHealthBody struct {
	Tiers             []tierHealth `json:"tiers"`
	DegradedKeysCount int          `json:"degraded_keys_count"`
	AvgFailStreak     float64      `json:"avg_fail_streak"`
}

// handleHealthCache implements GET /health/cache: per-tier status with
// latency, plus the degraded_keys_count/avg_fail_streak aggregates the
// persistent tier alone can answer (the other tiers have no bulk query).
func (s *Server) handleHealthCache(w http.ResponseWriter, r *http.Request) {
	body := cacheHealthBody{}
	if s.Cache == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}

	ctx := r.Context()
	for _, tier := range s.Cache.Tiers() {
		start := time.Now()
		err := tier.Health(ctx)
		latency := time.Since(start)

		status := "ok"
		if err != nil {
			status = "unhealthy"
			zap.L().Warn("httpapi: cache tier health check failed", zap.String("tier", string(tier.Name())), zap.Error(err))
		}
		body.Tiers = append(body.Tiers, tierHealth{
			Tier:      string(tier.Name()),
			Status:    status,
			LatencyMs: float64(latency.Microseconds()) / 1000.0,
		})

		if pg, ok := tier.(*cache.PostgresTier); ok {
			if degraded, avg, statErr := pg.DegradedStats(ctx); statErr == nil {
				body.DegradedKeysCount = degraded
				body.AvgFailStreak = avg
			}
		}
	}

	writeJSON(w, http.StatusOK, body)
}
