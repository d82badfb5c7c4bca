package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsHandler is built once; promhttp.Handler reads the default
// registry promauto.New* registered into at package init.
var metricsHandler = promhttp.Handler()

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.Breakers != nil {
		for source, state := range s.Breakers.States() {
			CircuitBreakerState.WithLabelValues(source).Set(circuitStateValue(int(state)))
		}
	}
	metricsHandler.ServeHTTP(w, r)
}
