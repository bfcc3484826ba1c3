package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrChannelClosed is returned by event channel operations after Close.
var ErrChannelClosed = errors.New("event channel closed")

// UnknownCommandError is returned when a command id has no registered template.
type UnknownCommandError struct {
	CommandID CommandID
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.CommandID)
}

// DuplicateCommandError is returned when a command id is registered twice.
type DuplicateCommandError struct {
	CommandID CommandID
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("command %q already registered", e.CommandID)
}

// MissingParameterError is returned when a path placeholder has no value.
type MissingParameterError struct {
	CommandID CommandID
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("command %q: missing path parameter %q", e.CommandID, e.Parameter)
}

// InvalidParameterError is returned when a path placeholder is supplied
// through params with a value that is not a string.
type InvalidParameterError struct {
	CommandID CommandID
	Parameter string
	Type      string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("command %q: path parameter %q must be a string, got %s", e.CommandID, e.Parameter, e.Type)
}

// TransientConnectionError is surfaced once the retry bound for a transient
// I/O failure has been exhausted.
type TransientConnectionError struct {
	CommandID CommandID
	URL       string
	Attempts  int
	Cause     error
}

func (e *TransientConnectionError) Error() string {
	return fmt.Sprintf("command %q: %s failed after %d attempts: %v", e.CommandID, e.URL, e.Attempts, e.Cause)
}

func (e *TransientConnectionError) Unwrap() error { return e.Cause }

// ProxyConnectionRefusedError is returned when the connection is refused while
// requests are routed through a proxy. It is not retried.
type ProxyConnectionRefusedError struct {
	CommandID CommandID
	URL       string
	Proxy     string
	Cause     error
}

func (e *ProxyConnectionRefusedError) Error() string {
	return fmt.Sprintf("command %q: %s: connection refused using proxy: %s", e.CommandID, e.URL, e.Proxy)
}

func (e *ProxyConnectionRefusedError) Unwrap() error { return e.Cause }

// TooManyRedirectsError is returned when a redirect chain exceeds the bound.
type TooManyRedirectsError struct {
	CommandID CommandID
	URL       string
	Max       int
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("command %q: too many redirects (max %d) following %s", e.CommandID, e.Max, e.URL)
}

// TimeoutError is returned when connecting or waiting for a response exceeds
// the configured timeout. Timeouts are never retried.
type TimeoutError struct {
	CommandID CommandID
	URL       string
	Cause     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q: %s timed out: %v", e.CommandID, e.URL, e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// RequestError wraps a non-retryable transport failure.
type RequestError struct {
	CommandID CommandID
	URL       string
	Cause     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("command %q: %s: %v", e.CommandID, e.URL, e.Cause)
}

func (e *RequestError) Unwrap() error { return e.Cause }

// ChannelNotReadyError is returned when an event operation is attempted before
// the event channel is connected.
type ChannelNotReadyError struct {
	Operation string
	State     string
}

func (e *ChannelNotReadyError) Error() string {
	return fmt.Sprintf("event channel not ready for %s (state %s)", e.Operation, e.State)
}

// ProtocolDecodeError is returned when a response body cannot be decoded.
type ProtocolDecodeError struct {
	CommandID  CommandID
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

func (e *ProtocolDecodeError) Error() string {
	return fmt.Sprintf("command %q: %s: malformed response body %q: %v", e.CommandID, e.URL, e.Body, e.Cause)
}

func (e *ProtocolDecodeError) Unwrap() error { return e.Cause }

// Remote error codes defined by the W3C WebDriver protocol.
const (
	CodeElementClickIntercepted = "element click intercepted"
	CodeElementNotInteractable  = "element not interactable"
	CodeInsecureCertificate     = "insecure certificate"
	CodeInvalidArgument         = "invalid argument"
	CodeInvalidCookieDomain     = "invalid cookie domain"
	CodeInvalidElementState     = "invalid element state"
	CodeInvalidSelector         = "invalid selector"
	CodeInvalidSessionID        = "invalid session id"
	CodeJavascriptError         = "javascript error"
	CodeMoveTargetOutOfBounds   = "move target out of bounds"
	CodeNoSuchAlert             = "no such alert"
	CodeNoSuchCookie            = "no such cookie"
	CodeNoSuchElement           = "no such element"
	CodeNoSuchFrame             = "no such frame"
	CodeNoSuchWindow            = "no such window"
	CodeNoSuchShadowRoot        = "no such shadow root"
	CodeDetachedShadowRoot      = "detached shadow root"
	CodeScriptTimeout           = "script timeout"
	CodeSessionNotCreated       = "session not created"
	CodeStaleElementReference   = "stale element reference"
	CodeTimeout                 = "timeout"
	CodeUnableToSetCookie       = "unable to set cookie"
	CodeUnableToCaptureScreen   = "unable to capture screen"
	CodeUnexpectedAlertOpen     = "unexpected alert open"
	CodeUnknownCommand          = "unknown command"
	CodeUnknownError            = "unknown error"
	CodeUnknownMethod           = "unknown method"
	CodeUnsupportedOperation    = "unsupported operation"
	CodeElementNotVisible       = "element not visible"
	CodeElementNotSelectable    = "element not selectable"
	CodeInvalidCoordinates      = "invalid coordinates"
)

// Sentinels matched by RemoteError.Is. Several codes share a sentinel.
var (
	ErrNoSuchElement          = errors.New("no such element")
	ErrNoSuchFrame            = errors.New("no such frame")
	ErrNoSuchWindow           = errors.New("no such window")
	ErrNoSuchAlert            = errors.New("no such alert")
	ErrNoSuchCookie           = errors.New("no such cookie")
	ErrNoSuchShadowRoot       = errors.New("no such shadow root")
	ErrStaleElementReference  = errors.New("stale element reference")
	ErrInvalidSessionID       = errors.New("invalid session id")
	ErrSessionNotCreated      = errors.New("session not created")
	ErrInvalidSelector        = errors.New("invalid selector")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrInvalidElementState    = errors.New("invalid element state")
	ErrElementNotInteractable = errors.New("element not interactable")
	ErrJavascript             = errors.New("javascript error")
	ErrScriptTimeout          = errors.New("timeout")
	ErrUnexpectedAlertOpen    = errors.New("unexpected alert open")
	ErrUnknownMethod          = errors.New("unknown method")
	ErrRemote                 = errors.New("remote error")
)

var codeSentinels = map[string]error{
	CodeElementClickIntercepted: ErrElementNotInteractable,
	CodeElementNotInteractable:  ErrElementNotInteractable,
	CodeElementNotVisible:       ErrElementNotInteractable,
	CodeElementNotSelectable:    ErrElementNotInteractable,
	CodeInvalidArgument:         ErrInvalidArgument,
	CodeInvalidCookieDomain:     ErrInvalidArgument,
	CodeInvalidCoordinates:      ErrInvalidArgument,
	CodeMoveTargetOutOfBounds:   ErrInvalidArgument,
	CodeInvalidElementState:     ErrInvalidElementState,
	CodeInvalidSelector:         ErrInvalidSelector,
	CodeInvalidSessionID:        ErrInvalidSessionID,
	CodeJavascriptError:         ErrJavascript,
	CodeNoSuchAlert:             ErrNoSuchAlert,
	CodeNoSuchCookie:            ErrNoSuchCookie,
	CodeNoSuchElement:           ErrNoSuchElement,
	CodeNoSuchFrame:             ErrNoSuchFrame,
	CodeNoSuchWindow:            ErrNoSuchWindow,
	CodeNoSuchShadowRoot:        ErrNoSuchShadowRoot,
	CodeDetachedShadowRoot:      ErrNoSuchShadowRoot,
	CodeScriptTimeout:           ErrScriptTimeout,
	CodeTimeout:                 ErrScriptTimeout,
	CodeSessionNotCreated:       ErrSessionNotCreated,
	CodeStaleElementReference:   ErrStaleElementReference,
	CodeUnexpectedAlertOpen:     ErrUnexpectedAlertOpen,
	CodeUnknownCommand:          ErrUnknownMethod,
	CodeUnknownMethod:           ErrUnknownMethod,
	CodeUnsupportedOperation:    ErrUnknownMethod,
}

// RemoteError is an error reported by the remote end in a response body.
// It implements the error interface.
type RemoteError struct {
	CommandID  CommandID `json:"command_id,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Code       string    `json:"error"`
	Message    string    `json:"message"`
	Stacktrace []string  `json:"stacktrace,omitempty"`
	// AlertText is populated for "unexpected alert open".
	AlertText string `json:"alert_text,omitempty"`
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	var b strings.Builder
	if e.CommandID != "" {
		fmt.Fprintf(&b, "command %q: ", e.CommandID)
	}
	b.WriteString(e.Code)
	if e.Message != "" && e.Message != e.Code {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.AlertText != "" {
		fmt.Fprintf(&b, " (alert text: %q)", e.AlertText)
	}
	return b.String()
}

// Is matches the sentinel for the error's code, and ErrRemote for any code.
func (e *RemoteError) Is(target error) bool {
	if target == ErrRemote {
		return true
	}
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// IsKnownCode reports whether code is a recognised remote error code.
func IsKnownCode(code string) bool {
	if code == CodeUnknownError || code == CodeInsecureCertificate ||
		code == CodeUnableToSetCookie || code == CodeUnableToCaptureScreen {
		return true
	}
	_, ok := codeSentinels[code]
	return ok
}
