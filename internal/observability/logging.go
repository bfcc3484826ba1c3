package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/wiredriver/internal/config"
	"github.com/pitabwire/wiredriver/model"
)

// Context key for the logger.
type loggerKey struct{}

// NewLogger creates a zap.Logger configured for JSON output to stdout.
//
// Log level usage conventions:
//   - error: Listener panics, unrecoverable channel failures
//   - warn:  Dropped or malformed frames, remote errors
//   - info:  Session and channel lifecycle, command completion
//   - debug: Retries, redirects, subscribe messages, redacted parameters
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or the provided
// fallback if none is found.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// CallLogger returns a logger enriched with CallContext fields.
// If no logger is in the context, the fallback is used.
func CallLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	cc := model.CallContextFrom(ctx)
	if cc == nil {
		return logger
	}

	fields := []zap.Field{
		zap.String("command_id", string(cc.CommandID)),
		zap.String("correlation_id", cc.CorrelationID),
	}
	if cc.SessionID != "" {
		fields = append(fields, zap.String("session_id", cc.SessionID))
	}
	if cc.TraceID != "" {
		fields = append(fields, zap.String("trace_id", cc.TraceID))
	}

	return logger.With(fields...)
}

// defaultSensitiveFields is the default set of parameter names that are
// redacted in debug logging output.
var defaultSensitiveFields = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"access_token":  true,
	"api_key":       true,
	"authorization": true,
	"text":          true,
	"cookie":        true,
}

// RedactParams returns a copy of params with sensitive fields replaced by
// "[REDACTED]". The sensitiveFields list is merged with the defaults.
// Intended for debug-level logging only.
func RedactParams(params map[string]any, sensitiveFields []string) map[string]any {
	if params == nil {
		return nil
	}

	redactSet := make(map[string]bool, len(defaultSensitiveFields)+len(sensitiveFields))
	for k, v := range defaultSensitiveFields {
		redactSet[k] = v
	}
	for _, f := range sensitiveFields {
		redactSet[f] = true
	}

	result := make(map[string]any, len(params))
	for k, v := range params {
		if redactSet[k] {
			result[k] = "[REDACTED]"
		} else if nested, ok := v.(map[string]any); ok {
			result[k] = RedactParams(nested, sensitiveFields)
		} else {
			result[k] = v
		}
	}
	return result
}
