// Package httpapi is the C10 HTTP/SSE boundary: it accepts POST /search,
// streams progress over GET /search-progress/{search_id}, serves persisted
// results, and exposes health/metrics/admin endpoints. Routing is
// go-chi/chi (route-param extraction for the SSE path), CORS via
// go-chi/cors, graceful shutdown grounded on the teacher's
// cmd/serve.go startServer.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procsearch/internal/cache"
	"github.com/sells-group/procsearch/internal/config"
	"github.com/sells-group/procsearch/internal/filter"
	"github.com/sells-group/procsearch/internal/persistence"
	"github.com/sells-group/procsearch/internal/pipeline"
	"github.com/sells-group/procsearch/internal/resilience"
	"github.com/sells-group/procsearch/internal/searchstate"
)

// SourceSelector builds the Sources a search fans out across. It is a func
// rather than a fixed value so the adapter set (enabled/fallback) can be
// refreshed from config without restarting the server.
type SourceSelector func() pipeline.Sources

// Server wires every collaborator the HTTP boundary touches. RateLimiter
// and Breakers may be nil.
type Server struct {
	Cfg         *config.Config
	Pipeline    *pipeline.SearchPipeline
	Registry    *searchstate.Registry
	Results     *persistence.SearchStore
	Cache       *cache.Cascade
	Breakers    *resilience.SourceBreakers
	RateLimiter *resilience.RateLimiter
	Rejections  *filter.RejectionTracker
	Sources     SourceSelector

	startedAt time.Time
	ready     atomic.Bool

	sseMu    sync.Mutex
	sseConns map[string]int
}

// New builds a Server. Call SetReady(true) once startup (migrations, cache
// schema validation, sector catalog load) has finished.
func New(cfg *config.Config, p *pipeline.SearchPipeline, registry *searchstate.Registry, results *persistence.SearchStore, cascade *cache.Cascade, sources SourceSelector) *Server {
	return &Server{
		Cfg:       cfg,
		Pipeline:  p,
		Registry:  registry,
		Results:   results,
		Cache:     cascade,
		Sources:   sources,
		startedAt: time.Now(),
		sseConns:  make(map[string]int),
	}
}

// SetReady flips the readiness flag GET /health/ready reports.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Router builds the chi mux with every §4.10 route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-User-Id"},
		MaxAge:           300,
	}))

	r.Post("/search", s.handleSearch)
	r.Get("/search-progress/{search_id}", s.handleSearchProgress)
	r.Get("/search-results/{search_id}", s.handleSearchResults)
	r.Get("/health/ready", s.handleHealthReady)
	r.Get("/health/cache", s.handleHealthCache)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/admin/filter-stats", s.handleFilterStats)

	return r
}

// requestLogger emits one structured log line per request, grounded on the
// teacher's zap.L() usage elsewhere rather than chi's stdlib logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Start runs the HTTP server until ctx is cancelled, then drains
// in-flight requests within a grace period.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Cfg.Server.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute, // long-lived SSE streams
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("httpapi: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("httpapi: starting server", zap.Int("port", s.Cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "httpapi: listen")
	}
	return nil
}

// acquireSSESlot enforces ServerConfig.MaxSSEConnsPerUser. release must be
// called once the stream ends.
func (s *Server) acquireSSESlot(userID string) (release func(), ok bool) {
	limit := s.Cfg.Server.MaxSSEConnsPerUser
	if limit <= 0 {
		limit = 3
	}

	s.sseMu.Lock()
	defer s.sseMu.Unlock()
	if s.sseConns[userID] >= limit {
		return nil, false
	}
	s.sseConns[userID]++
	SSEConnections.WithLabelValues(userID).Inc()

	return func() {
		s.sseMu.Lock()
		defer s.sseMu.Unlock()
		s.sseConns[userID]--
		if s.sseConns[userID] <= 0 {
			delete(s.sseConns, userID)
		}
		SSEConnections.WithLabelValues(userID).Dec()
	}, true
}
