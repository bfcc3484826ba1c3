// Package transport serves the driver's operational HTTP surface: liveness,
// readiness and Prometheus metrics.
package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/wiredriver/internal/observability"
)

// Dependencies holds everything the router needs.
type Dependencies struct {
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Readiness observability.ReadinessChecks
	// MetricsPath defaults to /metrics.
	MetricsPath string
}

// NewRouter creates a chi.Router with the middleware pipeline and the
// operational routes.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metricsPath := deps.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(RequestLogging(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	r.Method(http.MethodGet, metricsPath, observability.Handler(gatherer))
	return r
}
