package model

import (
	"context"
	"fmt"
)

// CallContext carries identifying information for one command call. It is
// immutable after construction and safe for concurrent reads.
type CallContext struct {
	CommandID     CommandID
	SessionID     string
	CorrelationID string
	TraceID       string
}

// Validate checks that mandatory fields are present.
func (cc *CallContext) Validate() error {
	if cc.CommandID == "" {
		return fmt.Errorf("CommandID is required")
	}
	return nil
}

type contextKey struct{}

// WithCallContext attaches a CallContext to the given context.
func WithCallContext(ctx context.Context, cc *CallContext) context.Context {
	return context.WithValue(ctx, contextKey{}, cc)
}

// CallContextFrom extracts the CallContext from the context, or returns nil
// if not present.
func CallContextFrom(ctx context.Context) *CallContext {
	cc, _ := ctx.Value(contextKey{}).(*CallContext)
	return cc
}
