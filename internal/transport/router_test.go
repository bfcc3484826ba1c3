package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/wiredriver/internal/observability"
)

type checker struct{ err error }

func (c checker) HealthCheck(context.Context) error { return c.err }

// testDeps returns Dependencies with a private registry.
func testDeps() Dependencies {
	reg := prometheus.NewRegistry()
	return Dependencies{
		Metrics:  observability.InitMetrics(reg),
		Gatherer: reg,
		Readiness: observability.ReadinessChecks{
			RegistryLoaded: func() bool { return true },
		},
	}
}

// --- Router tests ---

func TestNewRouter_health(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	tests := []struct {
		name   string
		remote error
		want   int
	}{
		{"remote end up", nil, http.StatusOK},
		{"remote end down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			deps := testDeps()
			deps.Readiness.RemoteEnd = checker{tc.remote}
			r := NewRouter(deps)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))

			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestNewRouter_metrics(t *testing.T) {
	deps := testDeps()
	r := NewRouter(deps)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `wiredriver_http_requests_total{method="GET",path_pattern="/healthz",status="200"} 1`) {
		t.Errorf("metrics output missing the /healthz request:\n%s", w.Body.String())
	}
}

func TestNewRouter_customMetricsPath(t *testing.T) {
	deps := testDeps()
	deps.MetricsPath = "/internal/metrics"
	r := NewRouter(deps)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/internal/metrics", nil))
	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != 404 {
		t.Errorf("default path status = %d, want 404", w.Code)
	}
}

// --- Middleware tests ---

func TestRecovery_catchesPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != 500 {
		t.Errorf("status = %d, want 500 after panic", w.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("panic was not logged")
	}
}

func TestRecovery_passesThrough(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRequestID_generated(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CorrelationIDFrom(r.Context()) == "" {
			t.Error("correlation ID should be generated")
		}
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("X-Correlation-Id"); got == "" {
		t.Error("response should have X-Correlation-Id header")
	}
}

func TestRequestID_propagated(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := CorrelationIDFrom(r.Context()); id != "test-corr-123" {
			t.Errorf("correlation ID = %q, want test-corr-123", id)
		}
		w.WriteHeader(200)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-Id", "test-corr-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-Id"); got != "test-corr-123" {
		t.Errorf("response X-Correlation-Id = %q, want test-corr-123", got)
	}
}

func TestSecurityHeaders_onHealth(t *testing.T) {
	r := NewRouter(testDeps())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRequestLogging_capturesStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RequestLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/readyz", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(503) {
		t.Errorf("status = %v, want 503", got)
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn", entries[0].Level)
	}
}
