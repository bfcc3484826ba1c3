package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	remoteDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
)

// Metrics holds all Prometheus metric instruments for the driver.
type Metrics struct {
	// HTTP server metrics (metrics and health endpoints)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Command metrics
	CommandExecutionsTotal *prometheus.CounterVec
	CommandDuration        *prometheus.HistogramVec

	// Remote end transport metrics
	RemoteRequestsTotal   *prometheus.CounterVec
	RemoteRequestDuration *prometheus.HistogramVec
	RemoteRetriesTotal    *prometheus.CounterVec
	RemoteRedirectsTotal  prometheus.Counter
	RemoteFailuresTotal   *prometheus.CounterVec

	// Event channel metrics
	EventChannelState   prometheus.Gauge
	EventsReceivedTotal *prometheus.CounterVec
	EventsDroppedTotal  *prometheus.CounterVec
	EventSubscriptions  prometheus.Gauge
	EventListenerPanics *prometheus.CounterVec
	EventCommandsTotal  *prometheus.CounterVec

	// Session store metrics
	SessionStoreOpsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wiredriver_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		// Commands
		CommandExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_command_executions_total",
			Help: "Total number of command executions.",
		}, []string{"command_id", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wiredriver_command_duration_seconds",
			Help:    "Command execution duration in seconds.",
			Buckets: remoteDurationBuckets,
		}, []string{"command_id"}),

		// Remote end
		RemoteRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_remote_requests_total",
			Help: "Total number of HTTP round trips to the remote end.",
		}, []string{"method", "status"}),
		RemoteRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wiredriver_remote_request_duration_seconds",
			Help:    "Remote end round trip duration in seconds.",
			Buckets: remoteDurationBuckets,
		}, []string{"method"}),
		RemoteRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_remote_retries_total",
			Help: "Total number of retried round trips by failure kind.",
		}, []string{"failure_kind"}),
		RemoteRedirectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wiredriver_remote_redirects_total",
			Help: "Total number of redirects followed.",
		}),
		RemoteFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_remote_failures_total",
			Help: "Total number of commands that failed in transport.",
		}, []string{"reason"}),

		// Events
		EventChannelState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wiredriver_event_channel_state",
			Help: "Event channel state (0=unconnected, 1=connected, 2=closed).",
		}),
		EventsReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_events_received_total",
			Help: "Total number of events received.",
		}, []string{"event"}),
		EventsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_events_dropped_total",
			Help: "Total number of frames dropped by reason.",
		}, []string{"reason"}),
		EventSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wiredriver_event_subscriptions",
			Help: "Number of event names with at least one listener.",
		}),
		EventListenerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_event_listener_panics_total",
			Help: "Total number of recovered listener panics.",
		}, []string{"event"}),
		EventCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_event_commands_total",
			Help: "Total number of commands sent over the event channel.",
		}, []string{"method", "status"}),

		// Sessions
		SessionStoreOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wiredriver_session_store_operations_total",
			Help: "Total number of session store operations.",
		}, []string{"operation", "status"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CommandExecutionsTotal,
		m.CommandDuration,
		m.RemoteRequestsTotal,
		m.RemoteRequestDuration,
		m.RemoteRetriesTotal,
		m.RemoteRedirectsTotal,
		m.RemoteFailuresTotal,
		m.EventChannelState,
		m.EventsReceivedTotal,
		m.EventsDroppedTotal,
		m.EventSubscriptions,
		m.EventListenerPanics,
		m.EventCommandsTotal,
		m.SessionStoreOpsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP server request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordCommandExecution records command execution metrics.
func (m *Metrics) RecordCommandExecution(commandID, status string, duration time.Duration) {
	m.CommandExecutionsTotal.WithLabelValues(commandID, status).Inc()
	m.CommandDuration.WithLabelValues(commandID).Observe(duration.Seconds())
}

// RecordRemoteRequest records a single round trip to the remote end.
func (m *Metrics) RecordRemoteRequest(method string, status int, duration time.Duration) {
	m.RemoteRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RemoteRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRemoteRetry records a retried round trip.
func (m *Metrics) RecordRemoteRetry(failureKind string) {
	m.RemoteRetriesTotal.WithLabelValues(failureKind).Inc()
}

// RecordRemoteRedirect records a followed redirect.
func (m *Metrics) RecordRemoteRedirect() {
	m.RemoteRedirectsTotal.Inc()
}

// RecordRemoteFailure records a command that failed in transport.
func (m *Metrics) RecordRemoteFailure(reason string) {
	m.RemoteFailuresTotal.WithLabelValues(reason).Inc()
}

// SetEventChannelState sets the event channel state gauge.
// State: 0=unconnected, 1=connected, 2=closed.
func (m *Metrics) SetEventChannelState(state float64) {
	m.EventChannelState.Set(state)
}

// RecordEventReceived records an event handed to the dispatcher.
func (m *Metrics) RecordEventReceived(event string) {
	m.EventsReceivedTotal.WithLabelValues(event).Inc()
}

// RecordEventDropped records a frame that was not delivered.
func (m *Metrics) RecordEventDropped(reason string) {
	m.EventsDroppedTotal.WithLabelValues(reason).Inc()
}

// SetEventSubscriptions sets the number of subscribed event names.
func (m *Metrics) SetEventSubscriptions(count float64) {
	m.EventSubscriptions.Set(count)
}

// RecordEventListenerPanic records a recovered listener panic.
func (m *Metrics) RecordEventListenerPanic(event string) {
	m.EventListenerPanics.WithLabelValues(event).Inc()
}

// RecordEventCommand records a command sent over the event channel.
func (m *Metrics) RecordEventCommand(method, status string) {
	m.EventCommandsTotal.WithLabelValues(method, status).Inc()
}

// RecordSessionStoreOp records a session store operation.
func (m *Metrics) RecordSessionStoreOp(operation, status string) {
	m.SessionStoreOpsTotal.WithLabelValues(operation, status).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
