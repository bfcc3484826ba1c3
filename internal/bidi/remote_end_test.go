package bidi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// received is a command as seen by the fake remote end.
type received struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// fakeRemoteEnd is a WebSocket server answering commands. Methods listed in
// errors get an error response, methods in hang get none, everything else
// succeeds with {"method": <name>}.
type fakeRemoteEnd struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	commands []received
	errors   map[string]string
	hang     map[string]bool

	writeMu     sync.Mutex
	connected   chan struct{}
	connectOnce sync.Once
}

func newFakeRemoteEnd(t *testing.T) *fakeRemoteEnd {
	t.Helper()
	r := &fakeRemoteEnd{
		t:         t,
		errors:    map[string]string{},
		hang:      map[string]bool{},
		connected: make(chan struct{}),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.mu.Lock()
		if r.conn == nil {
			r.conn = conn
		}
		r.mu.Unlock()
		r.connectOnce.Do(func() { close(r.connected) })
		r.serve(conn)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRemoteEnd) URL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *fakeRemoteEnd) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd received
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}

		r.mu.Lock()
		r.commands = append(r.commands, cmd)
		code, fail := r.errors[cmd.Method]
		hang := r.hang[cmd.Method]
		r.mu.Unlock()

		switch {
		case hang:
		case fail:
			r.write(map[string]any{
				"type": "error", "id": cmd.ID, "error": code,
				"message": "rejected " + cmd.Method, "stacktrace": "frame1\nframe2",
			})
		default:
			r.write(map[string]any{
				"type": "success", "id": cmd.ID, "result": map[string]any{"method": cmd.Method},
			})
		}
	}
}

func (r *fakeRemoteEnd) write(v any) {
	data, err := json.Marshal(v)
	require.NoError(r.t, err)
	r.writeRaw(data)
}

func (r *fakeRemoteEnd) writeRaw(data []byte) {
	<-r.connected
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// push sends an event frame.
func (r *fakeRemoteEnd) push(method string, params map[string]any) {
	r.write(map[string]any{"type": "event", "method": method, "params": params})
}

func (r *fakeRemoteEnd) drop() {
	<-r.connected
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn.Close()
}

func (r *fakeRemoteEnd) commandsFor(method string) []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []received
	for _, c := range r.commands {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (r *fakeRemoteEnd) waitFor(method string, n int) {
	r.t.Helper()
	require.Eventually(r.t, func() bool { return len(r.commandsFor(method)) >= n },
		2*time.Second, 5*time.Millisecond, "remote end never received %d %s", n, method)
}
