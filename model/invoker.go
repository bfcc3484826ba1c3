package model

import (
	"context"
	"net/http"
)

// RequestExecutor performs a resolved request against the remote end.
type RequestExecutor interface {
	Execute(ctx context.Context, req ResolvedRequest) (ExecutionResult, error)
}

// ResolvedRequest is a request with every path placeholder substituted.
// It is built fresh for each call and never shared.
type ResolvedRequest struct {
	CommandID CommandID   `json:"command_id"`
	Method    string      `json:"method"`
	Path      string      `json:"path"`
	Headers   http.Header `json:"headers,omitempty"`
	Body      []byte      `json:"body,omitempty"`
}

// ExecutionResult is a successful response from the remote end.
type ExecutionResult struct {
	StatusCode int    `json:"status_code"`
	Value      any    `json:"value,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Raw        []byte `json:"-"`
}

// ValueMap returns Value as an object, or nil if it is not one.
func (r ExecutionResult) ValueMap() map[string]any {
	m, _ := r.Value.(map[string]any)
	return m
}

// ValueString returns Value as a string, or "" if it is not one.
func (r ExecutionResult) ValueString() string {
	s, _ := r.Value.(string)
	return s
}
