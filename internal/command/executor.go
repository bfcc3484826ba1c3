// Package command exposes the command execution API: resolve a command id,
// build the wire request, and run it against the remote end.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/wiredriver/internal/invoker"
	"github.com/pitabwire/wiredriver/internal/observability"
	"github.com/pitabwire/wiredriver/model"
)

// requestIDHeader carries the correlation id of a command call.
const requestIDHeader = "X-Request-Id"

// statusCommand is run by HealthCheck.
const statusCommand model.CommandID = "status"

// Resolver maps command ids to templates.
type Resolver interface {
	Resolve(id model.CommandID) (model.CommandTemplate, error)
	Level() model.Level
}

// CommandObserver receives lifecycle events from command execution.
// Implementations may record metrics, audit logs, or other telemetry.
type CommandObserver interface {
	OnCommandExecuted(ctx context.Context, event CommandEvent)
}

// CommandEvent describes the outcome of a command execution.
type CommandEvent struct {
	CommandID     model.CommandID `json:"command_id"`
	SessionID     string          `json:"session_id,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	Success       bool            `json:"success"`
	StatusCode    int             `json:"status_code"`
	Duration      time.Duration   `json:"duration"`
	Error         string          `json:"error,omitempty"`
}

// Executor runs commands against one remote end.
type Executor struct {
	registry  Resolver
	requests  model.RequestExecutor
	observers []CommandObserver
	logger    *zap.Logger
	metrics   *observability.Metrics
	sensitive []string
	newID     func() string
}

// Option configures optional dependencies.
type Option func(*Executor)

// WithObserver adds a command observer.
func WithObserver(obs CommandObserver) Option {
	return func(e *Executor) { e.observers = append(e.observers, obs) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics records command counts and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithSensitiveParams adds parameter names redacted from debug logs.
func WithSensitiveParams(names ...string) Option {
	return func(e *Executor) { e.sensitive = append(e.sensitive, names...) }
}

// NewExecutor creates an Executor.
func NewExecutor(registry Resolver, requests model.RequestExecutor, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		requests: requests,
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Execute resolves commandID, fills {sessionId} from sessionID and the
// remaining placeholders from params, and performs the request. An empty
// sessionID leaves {sessionId} to be supplied through params.
func (e *Executor) Execute(
	ctx context.Context,
	commandID model.CommandID,
	sessionID string,
	params map[string]any,
) (model.ExecutionResult, error) {
	start := time.Now()

	tmpl, err := e.registry.Resolve(commandID)
	if err != nil {
		e.record(commandID, "unknown_command", start)
		return model.ExecutionResult{}, err
	}

	var pathParams map[string]string
	if sessionID != "" {
		pathParams = map[string]string{"sessionId": sessionID}
	}
	req, err := invoker.Build(tmpl, pathParams, params)
	if err != nil {
		e.record(commandID, "invalid_request", start)
		return model.ExecutionResult{}, err
	}

	correlationID := e.newID()
	req.Headers.Set(requestIDHeader, correlationID)

	ctx, span := observability.StartClientSpan(ctx, "command "+string(commandID),
		observability.AttrCommandID.String(string(commandID)),
		observability.AttrSessionID.String(sessionID),
		observability.AttrLevel.String(e.registry.Level().String()),
	)
	ctx = model.WithCallContext(ctx, &model.CallContext{
		CommandID:     commandID,
		SessionID:     sessionID,
		CorrelationID: correlationID,
		TraceID:       observability.TraceIDFromContext(ctx),
	})
	logger := observability.CallLogger(ctx, e.logger)

	if ce := logger.Check(zap.DebugLevel, "command: executing"); ce != nil {
		ce.Write(
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Any("params", observability.RedactParams(params, e.sensitive)),
		)
	}

	result, err := e.requests.Execute(ctx, req)
	duration := time.Since(start)

	var transient *model.TransientConnectionError
	if errors.As(err, &transient) {
		span.SetAttributes(observability.AttrAttempts.Int(transient.Attempts))
	}
	if result.SessionID != "" && sessionID == "" {
		span.SetAttributes(attribute.String("wiredriver.new_session_id", result.SessionID))
		logger.Info("command: session established", zap.String("new_session_id", result.SessionID))
	}
	observability.EndSpanWithError(span, err)

	status := outcome(err)
	e.record(commandID, status, start)

	event := CommandEvent{
		CommandID:     commandID,
		SessionID:     sessionID,
		CorrelationID: correlationID,
		Success:       err == nil,
		StatusCode:    result.StatusCode,
		Duration:      duration,
	}
	if err != nil {
		result = model.ExecutionResult{}
		event.StatusCode = errorStatus(err)
		event.Error = err.Error()
		logger.Warn("command: failed",
			zap.String("outcome", status),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	} else {
		logger.Debug("command: completed",
			zap.Int("status_code", result.StatusCode),
			zap.Duration("duration", duration),
		)
	}
	e.notifyObservers(ctx, event)

	return result, err
}

// HealthCheck runs the status command and fails when the remote end
// reports itself not ready. Remote ends that omit "ready" are treated as
// ready.
func (e *Executor) HealthCheck(ctx context.Context) error {
	result, err := e.Execute(ctx, statusCommand, "", nil)
	if err != nil {
		return err
	}
	value := result.ValueMap()
	if ready, ok := value["ready"].(bool); ok && !ready {
		msg, _ := value["message"].(string)
		return fmt.Errorf("command: remote end not ready: %s", msg)
	}
	return nil
}

func (e *Executor) record(id model.CommandID, status string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordCommandExecution(string(id), status, time.Since(start))
	}
}

func (e *Executor) notifyObservers(ctx context.Context, event CommandEvent) {
	for _, obs := range e.observers {
		obs.OnCommandExecuted(ctx, event)
	}
}

// errorStatus is the HTTP status carried by err, or 0 when the remote end
// never answered.
func errorStatus(err error) int {
	var (
		remote *model.RemoteError
		decode *model.ProtocolDecodeError
	)
	switch {
	case errors.As(err, &remote):
		return remote.StatusCode
	case errors.As(err, &decode):
		return decode.StatusCode
	}
	return 0
}

// outcome labels an execution result for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}

	var (
		remote    *model.RemoteError
		transient *model.TransientConnectionError
		proxy     *model.ProxyConnectionRefusedError
		redirect  *model.TooManyRedirectsError
		timeout   *model.TimeoutError
		decode    *model.ProtocolDecodeError
	)
	switch {
	case errors.As(err, &remote):
		return "remote_error"
	case errors.As(err, &transient):
		return "transient_connection"
	case errors.As(err, &proxy):
		return "proxy_refused"
	case errors.As(err, &redirect):
		return "too_many_redirects"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &decode):
		return "decode_error"
	default:
		return "request_error"
	}
}
