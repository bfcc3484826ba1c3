// Package bidi implements the event channel: a WebSocket connection that
// carries commands and asynchronous events outside the HTTP command cycle,
// and the dispatcher that fans events out to listeners.
package bidi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pitabwire/wiredriver/internal/observability"
	"github.com/pitabwire/wiredriver/model"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultCommandTimeout   = 30 * time.Second
	defaultReadLimit        = 32 << 20
)

// ChannelState is the lifecycle state of a Channel. It only moves forward.
type ChannelState int32

const (
	StateUnconnected ChannelState = iota
	StateConnected
	StateClosed
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ChannelState(%d)", int32(s))
	}
}

// Conn is the message transport under a Channel. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// EventSink receives decoded events in wire order on the channel's read
// goroutine, and is told once when the channel closes.
type EventSink interface {
	HandleEvent(ev model.Event)
	HandleClose()
}

// frame is the union of every message the remote end sends.
type frame struct {
	Type       string          `json:"type"`
	ID         *int64          `json:"id"`
	Method     string          `json:"method"`
	Params     map[string]any  `json:"params"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Stacktrace string          `json:"stacktrace"`
}

type outgoing struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type reply struct {
	result json.RawMessage
	err    error
}

type call struct {
	method string
	ch     chan reply
}

// Channel is a persistent bidirectional connection to the remote end.
type Channel struct {
	mu      sync.Mutex
	state   ChannelState
	conn    Conn
	pending map[int64]call
	nextID  int64
	sink    EventSink
	done    chan struct{}

	writeMu sync.Mutex

	handshakeTimeout time.Duration
	commandTimeout   time.Duration
	readLimit        int64
	logger           *zap.Logger
	metrics          *observability.Metrics
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) { c.handshakeTimeout = d }
}

// WithCommandTimeout bounds how long Send waits for a response when the
// caller's context has no deadline.
func WithCommandTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) { c.commandTimeout = d }
}

// WithReadLimit caps the size of a single inbound message.
func WithReadLimit(n int64) ChannelOption {
	return func(c *Channel) { c.readLimit = n }
}

// WithChannelLogger sets the logger.
func WithChannelLogger(l *zap.Logger) ChannelOption {
	return func(c *Channel) { c.logger = l }
}

// WithChannelMetrics records channel state, events and commands.
func WithChannelMetrics(m *observability.Metrics) ChannelOption {
	return func(c *Channel) { c.metrics = m }
}

// NewChannel creates an unconnected channel.
func NewChannel(opts ...ChannelOption) *Channel {
	c := &Channel{
		pending:          make(map[int64]call),
		done:             make(chan struct{}),
		handshakeTimeout: defaultHandshakeTimeout,
		commandTimeout:   defaultCommandTimeout,
		readLimit:        defaultReadLimit,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.setStateMetric(StateUnconnected)
	return c
}

// SetEventSink routes events to sink. Events arriving while no sink is set
// are dropped.
func (c *Channel) SetEventSink(sink EventSink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// State returns the current state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the channel reaches StateClosed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Dial opens a WebSocket to rawURL and connects the channel.
func (c *Channel) Dial(ctx context.Context, rawURL string, header http.Header) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("bidi: dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return fmt.Errorf("bidi: dial %s: %w", rawURL, err)
	}
	conn.SetReadLimit(c.readLimit)

	if err := c.Connect(conn); err != nil {
		conn.Close()
		return err
	}
	c.logger.Info("bidi: channel connected", zap.String("url", rawURL))
	return nil
}

// Connect attaches an established connection and starts the read loop. It
// fails unless the channel is unconnected.
func (c *Channel) Connect(conn Conn) error {
	c.mu.Lock()
	if c.state != StateUnconnected {
		state := c.state
		c.mu.Unlock()
		return &model.ChannelNotReadyError{Operation: "connect", State: state.String()}
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.setStateMetric(StateConnected)
	go c.readLoop(conn)
	return nil
}

// Send issues a command and waits for its response. Error responses come
// back as *model.RemoteError.
func (c *Channel) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}

	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		if state == StateClosed {
			return nil, fmt.Errorf("bidi: %s: %w", method, model.ErrChannelClosed)
		}
		return nil, &model.ChannelNotReadyError{Operation: method, State: state.String()}
	}
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.pending[id] = call{method: method, ch: ch}
	conn := c.conn
	c.mu.Unlock()

	data, err := json.Marshal(outgoing{ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("bidi: %s: marshal params: %w", method, err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		c.recordCommand(method, "write_error")
		return nil, fmt.Errorf("bidi: %s: write: %w", method, err)
	}
	c.logger.Debug("bidi: command sent", zap.Int64("id", id), zap.String("method", method))

	if _, ok := ctx.Deadline(); !ok && c.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.commandTimeout)
		defer cancel()
	}

	select {
	case r := <-ch:
		status := "ok"
		if r.err != nil {
			status = "error"
		}
		c.recordCommand(method, status)
		return r.result, r.err
	case <-ctx.Done():
		c.forget(id)
		c.recordCommand(method, "timeout")
		return nil, fmt.Errorf("bidi: %s: %w", method, ctx.Err())
	}
}

// Close tears the channel down. Pending commands fail with
// model.ErrChannelClosed and the event sink is told to drop its state.
// Closing twice is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
	}
	c.teardown(nil)
	return nil
}

// HealthCheck reports whether the channel is connected.
func (c *Channel) HealthCheck(context.Context) error {
	if s := c.State(); s != StateConnected {
		return fmt.Errorf("bidi: channel %s", s)
	}
	return nil
}

func (c *Channel) teardown(cause error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	conn := c.conn
	pending := c.pending
	c.pending = make(map[int64]call)
	sink := c.sink
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	closedErr := model.ErrChannelClosed
	if cause != nil {
		closedErr = fmt.Errorf("%w: %v", model.ErrChannelClosed, cause)
	}
	for _, p := range pending {
		p.ch <- reply{err: closedErr}
	}
	if sink != nil {
		sink.HandleClose()
	}
	close(c.done)
	c.setStateMetric(StateClosed)

	if cause != nil {
		c.logger.Info("bidi: channel closed by remote end", zap.Error(cause))
	} else {
		c.logger.Info("bidi: channel closed")
	}
}

func (c *Channel) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Channel) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() == StateClosed {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.teardown(err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Channel) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("bidi: dropping malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
		c.recordDropped("malformed")
		return
	}

	if f.ID != nil && f.Type != "event" {
		c.resolve(*f.ID, f)
		return
	}
	if f.Method == "" {
		c.logger.Warn("bidi: dropping frame without id or method", zap.String("type", f.Type))
		c.recordDropped("malformed")
		return
	}

	if c.metrics != nil {
		c.metrics.RecordEventReceived(f.Method)
	}
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink == nil {
		c.recordDropped("no_sink")
		return
	}
	sink.HandleEvent(model.Event{Method: f.Method, Params: f.Params})
}

func (c *Channel) resolve(id int64, f frame) {
	c.mu.Lock()
	p, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("bidi: response for unknown command", zap.Int64("id", id))
		c.recordDropped("orphan_response")
		return
	}

	if f.Type == "error" || f.Error != "" {
		remote := &model.RemoteError{
			CommandID: model.CommandID(p.method),
			Code:      f.Error,
			Message:   f.Message,
		}
		if remote.Code == "" {
			remote.Code = model.CodeUnknownError
		}
		if remote.Message == "" {
			remote.Message = remote.Code
		}
		if f.Stacktrace != "" {
			remote.Stacktrace = strings.Split(f.Stacktrace, "\n")
		}
		p.ch <- reply{err: remote}
		return
	}
	p.ch <- reply{result: f.Result}
}

func (c *Channel) setStateMetric(s ChannelState) {
	if c.metrics != nil {
		c.metrics.SetEventChannelState(float64(s))
	}
}

func (c *Channel) recordCommand(method, status string) {
	if c.metrics != nil {
		c.metrics.RecordEventCommand(method, status)
	}
}

func (c *Channel) recordDropped(reason string) {
	if c.metrics != nil {
		c.metrics.RecordEventDropped(reason)
	}
}
