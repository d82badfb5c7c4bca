package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the §4.10 scrape-endpoint series: search duration, filter
// decision counts, cache hit/miss, LLM call counts/duration, and
// circuit-breaker state gauges. Registered against the default registry
// so GET /metrics (promhttp.Handler) serves them alongside process and Go
// collectors, matching the pack's promauto convention.
var (
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "procsearch_search_duration_seconds",
		Help:    "End-to-end duration of a search pipeline run, by terminal response state",
		Buckets: prometheus.DefBuckets,
	}, []string{"response_state"})

	FilterDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procsearch_filter_decisions_total",
		Help: "Filter-engine decisions, by reject reason (accepted uses reason=\"accepted\")",
	}, []string{"reason"})

	CacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procsearch_cache_results_total",
		Help: "Cache cascade lookups, by outcome (hit_fresh, hit_stale, miss) and tier",
	}, []string{"outcome", "tier"})

	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procsearch_llm_calls_total",
		Help: "Anthropic API calls, by purpose (arbiter, summary, report) and outcome",
	}, []string{"purpose", "outcome"})

	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "procsearch_llm_call_duration_seconds",
		Help:    "Anthropic API call latency, by purpose",
		Buckets: prometheus.DefBuckets,
	}, []string{"purpose"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "procsearch_circuit_breaker_state",
		Help: "Circuit breaker state per source adapter (0=closed, 1=half_open, 2=open)",
	}, []string{"source"})

	SSEConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "procsearch_sse_connections",
		Help: "Currently open GET /search-progress SSE connections, by user",
	}, []string{"user_id"})
)

// circuitStateValue maps resilience.CircuitState to the gauge's numeric
// convention; kept here rather than in internal/resilience so that
// package stays free of a prometheus dependency.
func circuitStateValue(state int) float64 {
	switch state {
	case 1: // resilience.CircuitOpen
		return 2
	case 2: // resilience.CircuitHalfOpen
		return 1
	default: // resilience.CircuitClosed
		return 0
	}
}
