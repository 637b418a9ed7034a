package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/orgball2608/content-publisher/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) mountMetrics(r chi.Router) {
	metrics.MustRegister()
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}
