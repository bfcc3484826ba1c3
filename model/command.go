package model

import (
	"net/http"
	"strings"
)

// CommandID is the abstract name of a driver operation, independent of its
// wire representation.
type CommandID string

// Level selects which set of command templates a registry loads.
type Level int

const (
	// LevelLegacy is the JSON wire protocol spoken by older remote ends.
	LevelLegacy Level = iota
	// LevelW3C is the current W3C WebDriver protocol.
	LevelW3C
)

func (l Level) String() string {
	switch l {
	case LevelLegacy:
		return "legacy"
	case LevelW3C:
		return "w3c"
	default:
		return "unknown"
	}
}

// ParseLevel converts a configuration string into a Level.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "0":
		return LevelLegacy, true
	case "w3c", "1", "":
		return LevelW3C, true
	}
	return LevelW3C, false
}

// CommandTemplate maps a command to its HTTP method and path template.
// Path placeholders use {name} syntax. Templates are immutable once registered.
type CommandTemplate struct {
	ID     CommandID `json:"id" yaml:"id"`
	Method string    `json:"method" yaml:"method"`
	Path   string    `json:"path" yaml:"path"`
}

// Placeholders returns the distinct names of the {name} tokens in the path,
// in the order they first appear.
func (t CommandTemplate) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	rest := t.Path
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return names
		}
		if name := rest[open+1 : open+end]; !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		rest = rest[open+end+1:]
	}
}

// CarriesBody reports whether requests for this template send a JSON body.
// GET and DELETE never do.
func (t CommandTemplate) CarriesBody() bool {
	return t.Method == http.MethodPost
}

// IsSupportedMethod reports whether method is one of the verbs the protocol uses.
func IsSupportedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
		return true
	}
	return false
}
