package invoker

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Proxy routes requests through an HTTP proxy, except for hosts matched by
// NoProxy. Entries in NoProxy are "*", an exact host name, an IP address, or
// a CIDR range. Malformed entries never match.
type Proxy struct {
	HTTP    string
	NoProxy []string
}

// NewProxy returns a Proxy for raw, adding the http:// scheme when raw is a
// bare host:port. It returns nil when raw is empty.
func NewProxy(raw string, noProxy []string) *Proxy {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	var entries []string
	for _, e := range noProxy {
		if e = strings.TrimSpace(e); e != "" {
			entries = append(entries, e)
		}
	}
	return &Proxy{HTTP: raw, NoProxy: entries}
}

// ProxyFromEnvironment reads http_proxy and no_proxy, accepting either
// lower or upper case names, lower case first. It returns nil when no proxy
// is configured.
func ProxyFromEnvironment(getenv func(string) string) *Proxy {
	raw := lookupEnv(getenv, "http_proxy", "HTTP_PROXY")
	noProxy := lookupEnv(getenv, "no_proxy", "NO_PROXY")
	return NewProxy(raw, strings.Split(noProxy, ","))
}

func lookupEnv(getenv func(string) string, names ...string) string {
	for _, n := range names {
		if v := getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// URL parses the proxy address.
func (p *Proxy) URL() (*url.URL, error) {
	u, err := url.Parse(p.HTTP)
	if err != nil {
		return nil, fmt.Errorf("invoker: invalid proxy %q: %w", p.HTTP, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invoker: invalid proxy %q: missing host", p.HTTP)
	}
	return u, nil
}

// UsesProxy reports whether requests to host are routed through the proxy.
// host may include a port.
func (p *Proxy) UsesProxy(host string) bool {
	if p == nil {
		return false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)

	for _, entry := range p.NoProxy {
		if entry == "*" || strings.EqualFold(entry, host) {
			return false
		}
		if ip == nil {
			continue
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			if cidr.Contains(ip) {
				return false
			}
			continue
		}
		if other := net.ParseIP(entry); other != nil && other.Equal(ip) {
			return false
		}
	}
	return true
}
