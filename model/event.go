package model

import "encoding/json"

// Event is an asynchronous notification pushed by the remote end outside the
// command/response cycle. Params is passed to listeners unchanged.
type Event struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// Listener receives events for a subscribed event name.
type Listener func(Event)

// Log entry levels.
const (
	LogLevelDebug   = "debug"
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// Log entry types used as the category discriminator.
const (
	LogTypeConsole    = "console"
	LogTypeJavascript = "javascript"
)

// LogEntryAdded is the event name carrying log entries.
const LogEntryAdded = "log.entryAdded"

// StackFrame is a single frame of a remote stack trace.
type StackFrame struct {
	URL          string `json:"url"`
	FunctionName string `json:"functionName"`
	LineNumber   int    `json:"lineNumber"`
	ColumnNumber int    `json:"columnNumber"`
}

// StackTrace is the call stack attached to a log entry.
type StackTrace struct {
	CallFrames []StackFrame `json:"callFrames"`
}

// LogEntry is a decoded log.entryAdded payload. Method, Realm and Args are only
// set for console entries.
type LogEntry struct {
	Level      string           `json:"level"`
	Text       string           `json:"text"`
	Timestamp  int64            `json:"timestamp"`
	Type       string           `json:"type"`
	Method     string           `json:"method,omitempty"`
	Realm      string           `json:"realm,omitempty"`
	Args       []map[string]any `json:"args,omitempty"`
	StackTrace *StackTrace      `json:"stackTrace,omitempty"`
}

// DecodeLogEntry converts raw event params into a LogEntry.
func DecodeLogEntry(params map[string]any) (LogEntry, error) {
	var entry LogEntry
	raw, err := json.Marshal(params)
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, err
	}
	return entry, nil
}
