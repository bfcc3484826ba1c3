package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	expected := []string{
		"wiredriver_http_requests_total",
		"wiredriver_http_request_duration_seconds",
		"wiredriver_command_executions_total",
		"wiredriver_command_duration_seconds",
		"wiredriver_remote_requests_total",
		"wiredriver_remote_request_duration_seconds",
		"wiredriver_remote_retries_total",
		"wiredriver_remote_redirects_total",
		"wiredriver_remote_failures_total",
		"wiredriver_event_channel_state",
		"wiredriver_events_received_total",
		"wiredriver_events_dropped_total",
		"wiredriver_event_subscriptions",
		"wiredriver_event_listener_panics_total",
		"wiredriver_event_commands_total",
		"wiredriver_session_store_operations_total",
	}

	// Record a value for each vector so it appears in Gather.
	m.RecordHTTPRequest("GET", "/metrics", 200, time.Millisecond)
	m.RecordCommandExecution("status", "success", time.Millisecond)
	m.RecordRemoteRequest("GET", 200, time.Millisecond)
	m.RecordRemoteRetry("conn_reset")
	m.RecordRemoteRedirect()
	m.RecordRemoteFailure("timeout")
	m.SetEventChannelState(1)
	m.RecordEventReceived("log.entryAdded")
	m.RecordEventDropped("unsubscribed")
	m.SetEventSubscriptions(1)
	m.RecordEventListenerPanic("log.entryAdded")
	m.RecordEventCommand("session.subscribe", "success")
	m.RecordSessionStoreOp("put", "success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordCommandExecution(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCommandExecution("clickElement", "success", 150*time.Millisecond)
	m.RecordCommandExecution("clickElement", "failure", 50*time.Millisecond)

	if v := testutil.ToFloat64(m.CommandExecutionsTotal.WithLabelValues("clickElement", "success")); v != 1 {
		t.Errorf("success count = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.CommandExecutionsTotal.WithLabelValues("clickElement", "failure")); v != 1 {
		t.Errorf("failure count = %v, want 1", v)
	}
}

func TestRecordRemoteRequestAndRetries(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRemoteRequest("POST", 200, 100*time.Millisecond)
	m.RecordRemoteRequest("POST", 404, 10*time.Millisecond)
	m.RecordRemoteRetry("addr_not_avail")
	m.RecordRemoteRetry("addr_not_avail")
	m.RecordRemoteRedirect()

	if v := testutil.ToFloat64(m.RemoteRequestsTotal.WithLabelValues("POST", "404")); v != 1 {
		t.Errorf("404 requests = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.RemoteRetriesTotal.WithLabelValues("addr_not_avail")); v != 2 {
		t.Errorf("retries = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.RemoteRedirectsTotal); v != 1 {
		t.Errorf("redirects = %v, want 1", v)
	}
	if testutil.CollectAndCount(m.RemoteRequestDuration) == 0 {
		t.Error("expected remote duration histogram to have observations")
	}
}

func TestEventMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetEventChannelState(2)
	m.RecordEventReceived("log.entryAdded")
	m.RecordEventReceived("log.entryAdded")
	m.RecordEventDropped("malformed")
	m.SetEventSubscriptions(3)

	if v := testutil.ToFloat64(m.EventChannelState); v != 2 {
		t.Errorf("channel state = %v, want 2 (closed)", v)
	}
	if v := testutil.ToFloat64(m.EventsReceivedTotal.WithLabelValues("log.entryAdded")); v != 2 {
		t.Errorf("events received = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.EventsDroppedTotal.WithLabelValues("malformed")); v != 1 {
		t.Errorf("events dropped = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.EventSubscriptions); v != 3 {
		t.Errorf("subscriptions = %v, want 3", v)
	}
}

func TestMetricsMiddleware_recordsRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/sessions/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if v := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/sessions/{sessionId}", "200")); v != 1 {
		t.Errorf("requests total = %v, want 1", v)
	}
}

func TestMetricsMiddleware_capturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if v := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/readyz", "503")); v != 1 {
		t.Errorf("503 requests = %v, want 1", v)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/raw/path", nil))

	if v := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200")); v != 1 {
		t.Errorf("requests = %v, want 1", v)
	}
}

func TestHandler_exposesRegistry(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordRemoteRedirect()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "wiredriver_remote_redirects_total 1") {
		t.Errorf("metrics body missing redirect counter:\n%s", body)
	}
}
