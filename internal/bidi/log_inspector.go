package bidi

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/wiredriver/model"
)

// LogListener receives decoded log entries.
type LogListener func(model.LogEntry)

type logCategory int

const (
	categoryConsole logCategory = iota
	categoryJavascript
	categoryException
)

// LogInspector layers console, javascript and javascript-exception
// categories over log.entryAdded. A single low-level listener is installed
// the first time any category is requested and branches on the entry type.
//
// An error-level javascript entry reaches each exception listener twice:
// once on the general javascript pass and once on the severity pass.
// Exception listeners never see other levels.
type LogInspector struct {
	dispatcher *Dispatcher
	logger     *zap.Logger

	regMu  sync.Mutex
	routed bool

	mu        sync.RWMutex
	listeners map[logCategory][]LogListener
}

// NewLogInspector subscribes to log.entryAdded, optionally scoped to
// browsing contexts.
func NewLogInspector(ctx context.Context, d *Dispatcher, contexts ...string) (*LogInspector, error) {
	if err := d.Subscribe(ctx, []string{model.LogEntryAdded}, contexts...); err != nil {
		return nil, err
	}
	return &LogInspector{
		dispatcher: d,
		logger:     d.logger,
		listeners:  make(map[logCategory][]LogListener),
	}, nil
}

// OnConsoleLog receives console entries.
func (li *LogInspector) OnConsoleLog(ctx context.Context, l LogListener) error {
	return li.register(ctx, categoryConsole, l)
}

// OnJavaScriptLog receives javascript entries of every level.
func (li *LogInspector) OnJavaScriptLog(ctx context.Context, l LogListener) error {
	return li.register(ctx, categoryJavascript, l)
}

// OnJavaScriptException receives error-level javascript entries.
func (li *LogInspector) OnJavaScriptException(ctx context.Context, l LogListener) error {
	return li.register(ctx, categoryException, l)
}

// OnLog receives every log.entryAdded event with its raw params.
func (li *LogInspector) OnLog(ctx context.Context, l model.Listener) error {
	return li.dispatcher.On(ctx, model.LogEntryAdded, l)
}

// OnGenericLog receives every log entry, decoded, regardless of type.
func (li *LogInspector) OnGenericLog(ctx context.Context, l LogListener) error {
	return li.dispatcher.On(ctx, model.LogEntryAdded, li.decoding(l))
}

// register appends l to c and installs the shared route if no category has
// done so yet.
func (li *LogInspector) register(ctx context.Context, c logCategory, l LogListener) error {
	li.regMu.Lock()
	defer li.regMu.Unlock()

	li.mu.Lock()
	li.listeners[c] = append(li.listeners[c], l)
	li.mu.Unlock()

	if li.routed {
		return nil
	}
	if err := li.dispatcher.On(ctx, model.LogEntryAdded, li.decoding(li.route)); err != nil {
		li.mu.Lock()
		ls := li.listeners[c]
		li.listeners[c] = ls[:len(ls)-1]
		li.mu.Unlock()
		return err
	}
	li.routed = true
	return nil
}

func (li *LogInspector) route(e model.LogEntry) {
	switch e.Type {
	case model.LogTypeConsole:
		li.emit(categoryConsole, e)
	case model.LogTypeJavascript:
		li.emit(categoryJavascript, e)
		if e.Level != model.LogLevelError {
			return
		}
		li.emit(categoryException, e)
		li.emit(categoryException, e)
	}
}

func (li *LogInspector) decoding(l LogListener) model.Listener {
	return func(ev model.Event) {
		entry, err := model.DecodeLogEntry(ev.Params)
		if err != nil {
			li.logger.Warn("bidi: dropping undecodable log entry", zap.Error(err))
			return
		}
		l(entry)
	}
}

func (li *LogInspector) emit(c logCategory, e model.LogEntry) {
	li.mu.RLock()
	snapshot := make([]LogListener, len(li.listeners[c]))
	copy(snapshot, li.listeners[c])
	li.mu.RUnlock()

	for _, l := range snapshot {
		li.call(l, e)
	}
}

func (li *LogInspector) call(l LogListener, e model.LogEntry) {
	defer func() {
		if r := recover(); r != nil {
			li.logger.Error("bidi: log listener panicked", zap.String("type", e.Type), zap.Any("panic", r))
		}
	}()
	l(e)
}
