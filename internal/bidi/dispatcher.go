package bidi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/wiredriver/internal/observability"
	"github.com/pitabwire/wiredriver/model"
)

const subscribeMethod = "session.subscribe"

// eventSource is the part of Channel the dispatcher depends on.
type eventSource interface {
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
	SetEventSink(sink EventSink)
	State() ChannelState
}

// Dispatcher subscribes to events on a channel and fans each event out to
// the listeners registered for its name. The remote subscription for a name
// is requested at most once for the lifetime of the channel.
type Dispatcher struct {
	channel eventSource

	// subscribeMu serializes subscription requests so concurrent first
	// registrations for one name send a single control message.
	subscribeMu sync.Mutex

	mu         sync.RWMutex
	listeners  map[string][]model.Listener
	subscribed map[string]bool
	closed     bool

	logger  *zap.Logger
	metrics *observability.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDispatcherMetrics records subscriptions, drops and listener panics.
func WithDispatcherMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher and installs it as the event sink of ch.
func NewDispatcher(ch eventSource, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		channel:    ch,
		listeners:  make(map[string][]model.Listener),
		subscribed: make(map[string]bool),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	ch.SetEventSink(d)
	return d
}

// On registers listener for eventName. The first registration for a name
// subscribes to it on the channel before returning; later ones only append.
// Listeners run on the channel's read goroutine in registration order and
// must not wait for channel commands.
func (d *Dispatcher) On(ctx context.Context, eventName string, listener model.Listener) error {
	if listener == nil {
		return fmt.Errorf("bidi: nil listener for %q", eventName)
	}
	if err := d.ready("on " + eventName); err != nil {
		return err
	}

	d.subscribeMu.Lock()
	defer d.subscribeMu.Unlock()

	if !d.isSubscribed(eventName) {
		if err := d.subscribe(ctx, []string{eventName}, nil); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("bidi: on %s: %w", eventName, model.ErrChannelClosed)
	}
	d.listeners[eventName] = append(d.listeners[eventName], listener)
	return nil
}

// Subscribe requests events for every name not yet subscribed, in one
// control message, optionally scoped to browsing contexts. Events for a
// name without listeners are still dropped on arrival.
func (d *Dispatcher) Subscribe(ctx context.Context, eventNames []string, contexts ...string) error {
	if err := d.ready(subscribeMethod); err != nil {
		return err
	}

	d.subscribeMu.Lock()
	defer d.subscribeMu.Unlock()

	var fresh []string
	seen := make(map[string]bool, len(eventNames))
	for _, name := range eventNames {
		if name == "" || seen[name] || d.isSubscribed(name) {
			continue
		}
		seen[name] = true
		fresh = append(fresh, name)
	}
	if len(fresh) == 0 {
		return nil
	}
	return d.subscribe(ctx, fresh, contexts)
}

// Subscribed reports whether eventName has been subscribed on the channel.
func (d *Dispatcher) Subscribed(eventName string) bool {
	return d.isSubscribed(eventName)
}

// ListenerCount returns the number of listeners registered for eventName.
func (d *Dispatcher) ListenerCount(eventName string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[eventName])
}

// HandleEvent implements EventSink.
func (d *Dispatcher) HandleEvent(ev model.Event) {
	d.mu.RLock()
	registered := d.listeners[ev.Method]
	snapshot := make([]model.Listener, len(registered))
	copy(snapshot, registered)
	d.mu.RUnlock()

	if len(snapshot) == 0 {
		d.logger.Debug("bidi: dropping event without listeners", zap.String("event", ev.Method))
		if d.metrics != nil {
			d.metrics.RecordEventDropped("no_listener")
		}
		return
	}
	for _, l := range snapshot {
		d.invoke(ev, l)
	}
}

// HandleClose implements EventSink. Every listener and subscription is
// dropped at once.
func (d *Dispatcher) HandleClose() {
	d.mu.Lock()
	d.closed = true
	d.listeners = make(map[string][]model.Listener)
	d.subscribed = make(map[string]bool)
	d.mu.Unlock()
	d.setSubscriptionMetric(0)
}

func (d *Dispatcher) invoke(ev model.Event, l model.Listener) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("bidi: listener panicked",
				zap.String("event", ev.Method),
				zap.Any("panic", r),
			)
			if d.metrics != nil {
				d.metrics.RecordEventListenerPanic(ev.Method)
			}
		}
	}()
	l(ev)
}

func (d *Dispatcher) ready(op string) error {
	if s := d.channel.State(); s != StateConnected {
		return &model.ChannelNotReadyError{Operation: op, State: s.String()}
	}
	return nil
}

func (d *Dispatcher) isSubscribed(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.subscribed[name]
}

// subscribe sends the control message. Callers hold subscribeMu.
func (d *Dispatcher) subscribe(ctx context.Context, names []string, contexts []string) (err error) {
	ctx, span := observability.StartClientSpan(ctx, "bidi "+subscribeMethod,
		observability.AttrEventName.StringSlice(names),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	params := map[string]any{"events": names}
	if len(contexts) > 0 {
		params["contexts"] = contexts
	}
	if _, err = d.channel.Send(ctx, subscribeMethod, params); err != nil {
		return fmt.Errorf("bidi: subscribe %v: %w", names, err)
	}

	d.mu.Lock()
	for _, n := range names {
		d.subscribed[n] = true
	}
	count := len(d.subscribed)
	d.mu.Unlock()

	d.setSubscriptionMetric(count)
	d.logger.Debug("bidi: subscribed", zap.Strings("events", names), zap.Strings("contexts", contexts))
	return nil
}

func (d *Dispatcher) setSubscriptionMetric(n int) {
	if d.metrics != nil {
		d.metrics.SetEventSubscriptions(float64(n))
	}
}
