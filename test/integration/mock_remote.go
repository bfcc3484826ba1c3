package integration

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pitabwire/wiredriver/internal/protocol"
	"github.com/pitabwire/wiredriver/model"
)

// MockRemoteEnd is a configurable WebDriver remote end. Every command of the
// registry it was built from is routed to a per-command response queue, and
// every received request is recorded for later assertion. /bidi upgrades to
// a WebSocket that acknowledges commands and carries pushed events.
type MockRemoteEnd struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.RWMutex
	commands   map[model.CommandID]*commandConfig
	receivedBy map[model.CommandID][]*RecordedRequest
	nextID     int

	wsMu     sync.Mutex
	wsConns  []*websocket.Conn
	wsFrames []map[string]any
}

// RecordedRequest captures one request received by the mock.
type RecordedRequest struct {
	Method     string
	Path       string
	Params     map[string]string
	Headers    http.Header
	Body       map[string]any
	RawBody    []byte
	Subject    string
	ReceivedAt time.Time
}

type commandConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

type mockResponse struct {
	status    int
	body      any
	rawBody   []byte
	location  string
	delay     time.Duration
	connReset bool
}

// CommandMock is a builder for configuring responses for one command.
type CommandMock struct {
	remote *MockRemoteEnd
	id     model.CommandID
}

func newMockRemoteEnd(t *testing.T, registry *protocol.Registry, verifier *tokenVerifier) *MockRemoteEnd {
	t.Helper()

	m := &MockRemoteEnd{
		t:          t,
		commands:   make(map[model.CommandID]*commandConfig),
		receivedBy: make(map[model.CommandID][]*RecordedRequest),
	}

	r := chi.NewRouter()
	if verifier != nil {
		r.Use(verifier.middleware)
	}
	r.Get("/bidi", m.handleWebSocket)
	for _, id := range registry.IDs() {
		tmpl, _ := registry.Resolve(id)
		r.MethodFunc(tmpl.Method, tmpl.Path, m.handleCommand(id))
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeValue(w, http.StatusNotFound, map[string]any{
			"value": errorValue(model.CodeUnknownCommand, req.Method+" "+req.URL.Path),
		})
	})

	m.server = httptest.NewServer(r)
	t.Cleanup(m.close)
	return m
}

// URL returns the base URL of the mock.
func (m *MockRemoteEnd) URL() string {
	return m.server.URL
}

// WebSocketURL returns the event channel URL.
func (m *MockRemoteEnd) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http") + "/bidi"
}

// OnCommand returns a builder for configuring responses for id.
func (m *MockRemoteEnd) OnCommand(id model.CommandID) *CommandMock {
	return &CommandMock{remote: m, id: id}
}

// RespondWith answers with {"value": value}.
func (cm *CommandMock) RespondWith(status int, value any) *CommandMock {
	cm.remote.addResponse(cm.id, &mockResponse{status: status, body: map[string]any{"value": value}})
	return cm
}

// RespondWithBody answers with body as-is.
func (cm *CommandMock) RespondWithBody(status int, body any) *CommandMock {
	cm.remote.addResponse(cm.id, &mockResponse{status: status, body: body})
	return cm
}

// RespondWithRaw answers with an undecoded body.
func (cm *CommandMock) RespondWithRaw(status int, raw string) *CommandMock {
	cm.remote.addResponse(cm.id, &mockResponse{status: status, rawBody: []byte(raw)})
	return cm
}

// RespondWithError answers with a W3C error envelope.
func (cm *CommandMock) RespondWithError(status int, code, message string) *CommandMock {
	cm.remote.addResponse(cm.id, &mockResponse{status: status, body: map[string]any{"value": errorValue(code, message)}})
	return cm
}

// RespondWithRedirect answers with a 303 to location.
func (cm *CommandMock) RespondWithRedirect(location string) *CommandMock {
	cm.remote.addResponse(cm.id, &mockResponse{status: http.StatusSeeOther, location: location})
	return cm
}

// RespondWithDelay answers after delay.
func (cm *CommandMock) RespondWithDelay(delay time.Duration, status int, value any) *CommandMock {
	cm.remote.addResponse(cm.id, &mockResponse{status: status, body: map[string]any{"value": value}, delay: delay})
	return cm
}

// RespondWithConnectionReset aborts the connection with a TCP reset after
// reading the request.
func (cm *CommandMock) RespondWithConnectionReset() *CommandMock {
	cm.remote.addResponse(cm.id, &mockResponse{connReset: true})
	return cm
}

func (m *MockRemoteEnd) addResponse(id model.CommandID, resp *mockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.commands[id]
	if !ok {
		cfg = &commandConfig{}
		m.commands[id] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (m *MockRemoteEnd) handleCommand(id model.CommandID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &RecordedRequest{
			Method:     r.Method,
			Path:       r.URL.Path,
			Params:     make(map[string]string),
			Headers:    r.Header.Clone(),
			Subject:    subjectFrom(r.Context()),
			ReceivedAt: time.Now(),
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				rec.Params[key] = rctx.URLParams.Values[i]
			}
		}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			rec.RawBody = body
			if len(body) > 0 {
				var parsed map[string]any
				if err := json.Unmarshal(body, &parsed); err == nil {
					rec.Body = parsed
				}
			}
		}

		m.mu.Lock()
		m.receivedBy[id] = append(m.receivedBy[id], rec)
		m.mu.Unlock()

		resp := m.nextResponse(id)
		if resp == nil {
			m.defaultResponse(w, id, rec)
			return
		}

		if resp.connReset {
			resetConnection(w)
			return
		}
		if resp.delay > 0 {
			time.Sleep(resp.delay)
		}
		if resp.location != "" {
			http.Redirect(w, r, resp.location, resp.status)
			return
		}
		if resp.rawBody != nil {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(resp.status)
			w.Write(resp.rawBody)
			return
		}
		writeValue(w, resp.status, resp.body)
	}
}

// defaultResponse answers commands nobody configured: status is ready,
// newSession opens a session and everything else returns a null value.
func (m *MockRemoteEnd) defaultResponse(w http.ResponseWriter, id model.CommandID, rec *RecordedRequest) {
	switch id {
	case protocol.Status:
		writeValue(w, http.StatusOK, map[string]any{"value": map[string]any{"ready": true, "message": "ready to create a session"}})
	case protocol.NewSession:
		m.mu.Lock()
		m.nextID++
		sid := "session-" + strconv.Itoa(m.nextID)
		m.mu.Unlock()

		caps := map[string]any{"browserName": "mock", "browserVersion": "1.0"}
		if requested, ok := rec.Body["capabilities"].(map[string]any); ok {
			if match, ok := requested["alwaysMatch"].(map[string]any); ok && match["webSocketUrl"] == true {
				caps["webSocketUrl"] = m.WebSocketURL()
			}
		}
		writeValue(w, http.StatusOK, map[string]any{"value": map[string]any{"sessionId": sid, "capabilities": caps}})
	default:
		writeValue(w, http.StatusOK, map[string]any{"value": nil})
	}
}

func (m *MockRemoteEnd) nextResponse(id model.CommandID) *mockResponse {
	m.mu.RLock()
	cfg, ok := m.commands[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	if len(cfg.responses) == 0 {
		return nil
	}
	idx := cfg.current
	if idx >= len(cfg.responses) {
		// Repeat the last response for subsequent calls.
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// AssertCalled verifies that id was received the expected number of times.
func (m *MockRemoteEnd) AssertCalled(t *testing.T, id model.CommandID, expected int) {
	t.Helper()
	m.mu.RLock()
	actual := len(m.receivedBy[id])
	m.mu.RUnlock()
	if actual != expected {
		t.Errorf("mock remote end: command %q received %d times, want %d", id, actual, expected)
	}
}

// AssertNotCalled verifies that id was never received.
func (m *MockRemoteEnd) AssertNotCalled(t *testing.T, id model.CommandID) {
	t.Helper()
	m.AssertCalled(t, id, 0)
}

// LastRequest returns the last request received for id, or nil.
func (m *MockRemoteEnd) LastRequest(id model.CommandID) *RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reqs := m.receivedBy[id]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// handleWebSocket acknowledges every command and records it.
func (m *MockRemoteEnd) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.wsMu.Lock()
	m.wsConns = append(m.wsConns, conn)
	m.wsMu.Unlock()

	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		m.wsMu.Lock()
		m.wsFrames = append(m.wsFrames, frame)
		err = conn.WriteJSON(map[string]any{"type": "success", "id": frame["id"], "result": map[string]any{}})
		m.wsMu.Unlock()
		if err != nil {
			return
		}
	}
}

// Push sends an event to every connected event channel.
func (m *MockRemoteEnd) Push(method string, params map[string]any) {
	m.wsMu.Lock()
	defer m.wsMu.Unlock()
	for _, c := range m.wsConns {
		_ = c.WriteJSON(map[string]any{"type": "event", "method": method, "params": params})
	}
}

// EventCommands returns the frames received over the event channel.
func (m *MockRemoteEnd) EventCommands() []map[string]any {
	m.wsMu.Lock()
	defer m.wsMu.Unlock()
	return append([]map[string]any(nil), m.wsFrames...)
}

func (m *MockRemoteEnd) close() {
	m.wsMu.Lock()
	for _, c := range m.wsConns {
		c.Close()
	}
	m.wsMu.Unlock()
	m.server.Close()
}

func writeValue(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func errorValue(code, message string) map[string]any {
	return map[string]any{"error": code, "message": message, "stacktrace": ""}
}

// resetConnection hijacks the connection and closes it with SO_LINGER 0 so
// the client reads ECONNRESET.
func resetConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	conn.Close()
}
