package invoker

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/pitabwire/wiredriver/internal/observability"
)

const (
	contentTypeJSON = "application/json;charset=UTF-8"
	acceptJSON      = "application/json"
)

// HeaderConfig overlays the headers sent with every request. A zero value
// sends the default User-Agent and no extra headers.
type HeaderConfig struct {
	UserAgent string
	Extra     map[string]string
}

// DefaultUserAgent identifies this client and the platform it runs on.
func DefaultUserAgent() string {
	return fmt.Sprintf("wiredriver/%s (go %s)", observability.Version, runtime.GOOS)
}

// defaultHeaders returns the headers every request carries, including
// redirected ones.
func (c HeaderConfig) defaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("Accept", acceptJSON)

	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent()
	}
	h.Set("User-Agent", sanitizeHeader(ua))

	for k, v := range c.Extra {
		h.Set(sanitizeHeader(k), sanitizeHeader(v))
	}
	return h
}

func (c HeaderConfig) clone() HeaderConfig {
	extra := make(map[string]string, len(c.Extra))
	for k, v := range c.Extra {
		extra[k] = v
	}
	return HeaderConfig{UserAgent: c.UserAgent, Extra: extra}
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
