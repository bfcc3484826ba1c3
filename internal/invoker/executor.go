// Package invoker builds wire requests from command templates and performs
// them against the remote end with the retry, redirect, and proxy policy.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/wiredriver/internal/observability"
	"github.com/pitabwire/wiredriver/model"
)

const (
	// DefaultMaxRedirects bounds how many redirects one command follows.
	DefaultMaxRedirects = 20
	defaultTimeout      = 60 * time.Second
	defaultDialTimeout  = 10 * time.Second
	maxResponseBytes    = 128 << 20
)

// Executor performs resolved requests against one remote end. It holds a
// single persistent connection and serializes round trips, so at most one
// request is in flight at a time.
type Executor struct {
	base         string
	host         string
	client       *http.Client
	headers      atomic.Pointer[HeaderConfig]
	auth         Authenticator
	retry        RetryPolicy
	maxRedirects int
	timeout      time.Duration
	dialTimeout  time.Duration
	transport    http.RoundTripper

	proxySource func() *Proxy
	proxyOnce   sync.Once
	proxy       *Proxy

	mu sync.Mutex

	logger  *zap.Logger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithHeaders sets the header overlay applied to every request.
func WithHeaders(h HeaderConfig) Option {
	return func(e *Executor) {
		c := h.clone()
		e.headers.Store(&c)
	}
}

// WithProxy routes requests through p. A nil p disables proxying, including
// discovery from the environment.
func WithProxy(p *Proxy) Option {
	return func(e *Executor) { e.proxySource = func() *Proxy { return p } }
}

// WithProxyFromEnvironment discovers the proxy through getenv on first use.
func WithProxyFromEnvironment(getenv func(string) string) Option {
	return func(e *Executor) { e.proxySource = func() *Proxy { return ProxyFromEnvironment(getenv) } }
}

// WithAuthenticator decorates every request with credentials.
func WithAuthenticator(a Authenticator) Option {
	return func(e *Executor) { e.auth = a }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) { e.retry = p }
}

// WithMaxRedirects bounds the redirect chain for one command.
func WithMaxRedirects(n int) Option {
	return func(e *Executor) { e.maxRedirects = n }
}

// WithTimeout bounds each round trip, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(e *Executor) { e.dialTimeout = d }
}

// WithTransport replaces the HTTP transport. The proxy policy is then the
// transport's responsibility, but ProxyConnectionRefusedError is still
// reported from the configured proxy.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *Executor) { e.transport = rt }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics records round trip metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates an executor for the remote end at serverURL. Any
// userinfo in serverURL is stripped from request URLs; use NewAuthenticator
// to turn it into basic auth.
func NewExecutor(serverURL string, opts ...Option) (*Executor, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invoker: invalid server url %q: %w", serverURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invoker: server url %q must be an absolute http(s) URL", serverURL)
	}
	u.User = nil

	e := &Executor{
		base:         strings.TrimSuffix(u.String(), "/"),
		host:         u.Host,
		retry:        DefaultRetryPolicy(),
		maxRedirects: DefaultMaxRedirects,
		timeout:      defaultTimeout,
		dialTimeout:  defaultDialTimeout,
		proxySource:  func() *Proxy { return ProxyFromEnvironment(os.Getenv) },
		logger:       zap.NewNop(),
		sleep:        sleepContext,
	}
	e.headers.Store(&HeaderConfig{})
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}

	rt := e.transport
	if rt == nil {
		rt = &http.Transport{
			Proxy: e.proxyURL,
			DialContext: (&net.Dialer{
				Timeout:   e.dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        1,
			MaxIdleConnsPerHost: 1,
			MaxConnsPerHost:     1,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	e.client = &http.Client{
		Timeout:   e.timeout,
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return e, nil
}

// BaseURL returns the remote end URL without credentials or trailing slash.
func (e *Executor) BaseURL() string {
	return e.base
}

// Headers returns the current header overlay.
func (e *Executor) Headers() HeaderConfig {
	return e.headers.Load().clone()
}

// SetHeaders replaces the header overlay. Requests already in flight keep
// the previous headers.
func (e *Executor) SetHeaders(h HeaderConfig) {
	c := h.clone()
	e.headers.Store(&c)
}

// Proxy returns the resolved proxy, or nil when requests go direct.
func (e *Executor) Proxy() *Proxy {
	e.proxyOnce.Do(func() {
		if e.proxySource != nil {
			e.proxy = e.proxySource()
		}
	})
	return e.proxy
}

func (e *Executor) proxyURL(req *http.Request) (*url.URL, error) {
	p := e.Proxy()
	if !p.UsesProxy(req.URL.Host) {
		return nil, nil
	}
	return p.URL()
}

// Execute performs req, following redirects and retrying transient
// connection failures. Non-2xx responses and error envelopes come back as
// *model.RemoteError.
func (e *Executor) Execute(ctx context.Context, req model.ResolvedRequest) (model.ExecutionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defaults := e.headers.Load().defaultHeaders()
	headers := defaults.Clone()
	for k, vs := range req.Headers {
		headers[k] = append([]string(nil), vs...)
	}
	observability.InjectTraceHeaders(ctx, headers)

	target := e.base + req.Path
	resp, err := e.roundTripWithRetry(ctx, req.CommandID, req.Method, target, headers, req.Body)
	if err != nil {
		return model.ExecutionResult{}, err
	}

	for redirects := 0; resp.isRedirect(); redirects++ {
		if redirects >= e.maxRedirects {
			e.recordFailure("too_many_redirects")
			return model.ExecutionResult{}, &model.TooManyRedirectsError{CommandID: req.CommandID, URL: target, Max: e.maxRedirects}
		}

		next, err := resolveLocation(target, resp.location)
		if err != nil {
			return model.ExecutionResult{}, &model.RequestError{CommandID: req.CommandID, URL: target, Cause: err}
		}
		e.logger.Debug("invoker: following redirect",
			zap.String("command_id", string(req.CommandID)),
			zap.Int("status", resp.status),
			zap.String("location", next),
			zap.Int("redirect", redirects+1),
		)
		if e.metrics != nil {
			e.metrics.RecordRemoteRedirect()
		}

		target = next
		redirectHeaders := defaults.Clone()
		observability.InjectTraceHeaders(ctx, redirectHeaders)
		resp, err = e.roundTripWithRetry(ctx, req.CommandID, http.MethodGet, target, redirectHeaders, nil)
		if err != nil {
			return model.ExecutionResult{}, err
		}
	}

	result, err := decodeResponse(req.CommandID, target, resp.status, resp.body)
	if err != nil {
		var remote *model.RemoteError
		if errors.As(err, &remote) {
			e.logger.Debug("invoker: remote end reported error",
				zap.String("command_id", string(req.CommandID)),
				zap.Int("status", resp.status),
				zap.String("error", remote.Code),
			)
		}
		return model.ExecutionResult{}, err
	}
	return result, nil
}

type rawResponse struct {
	status   int
	location string
	body     []byte
}

func (r rawResponse) isRedirect() bool {
	return r.status >= 300 && r.status < 400 && r.location != ""
}

// roundTripWithRetry performs one logical request. Retries share a single
// counter, bounded by the rule of the failure being retried.
func (e *Executor) roundTripWithRetry(
	ctx context.Context,
	id model.CommandID,
	method, target string,
	headers http.Header,
	body []byte,
) (rawResponse, error) {
	u, err := url.Parse(target)
	if err != nil {
		return rawResponse{}, &model.RequestError{CommandID: id, URL: target, Cause: err}
	}
	authenticate := e.auth != nil && strings.EqualFold(u.Host, e.host)

	retries := 0
	for {
		resp, err := e.roundTrip(ctx, method, target, headers, body, authenticate)
		if err == nil {
			return resp, nil
		}

		kind := classify(err)
		switch kind {
		case FailureConnRefused:
			e.recordFailure(kind.String())
			if p := e.Proxy(); p.UsesProxy(u.Host) {
				return rawResponse{}, &model.ProxyConnectionRefusedError{CommandID: id, URL: target, Proxy: p.HTTP, Cause: err}
			}
			return rawResponse{}, &model.RequestError{CommandID: id, URL: target, Cause: err}
		case FailureTimeout:
			e.recordFailure(kind.String())
			return rawResponse{}, &model.TimeoutError{CommandID: id, URL: target, Cause: err}
		}

		rule, ok := e.retry.rule(kind)
		if !ok {
			e.recordFailure(kind.String())
			return rawResponse{}, &model.RequestError{CommandID: id, URL: target, Cause: err}
		}
		if retries >= rule.MaxRetries {
			e.recordFailure(kind.String())
			return rawResponse{}, &model.TransientConnectionError{CommandID: id, URL: target, Attempts: retries + 1, Cause: err}
		}
		retries++

		e.logger.Debug("invoker: retrying after connection failure",
			zap.String("command_id", string(id)),
			zap.String("failure_kind", kind.String()),
			zap.Int("retry", retries),
			zap.Int("max", rule.MaxRetries),
			zap.Duration("backoff", rule.Backoff),
			zap.Error(err),
		)
		if e.metrics != nil {
			e.metrics.RecordRemoteRetry(kind.String())
		}

		if rule.Backoff > 0 {
			if err := e.sleep(ctx, rule.Backoff); err != nil {
				return rawResponse{}, &model.RequestError{CommandID: id, URL: target, Cause: err}
			}
		}
	}
}

// roundTrip performs a single HTTP exchange and reads the whole body.
func (e *Executor) roundTrip(
	ctx context.Context,
	method, target string,
	headers http.Header,
	body []byte,
	authenticate bool,
) (rawResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return rawResponse{}, fmt.Errorf("invoker: build request: %w", err)
	}
	req.Header = headers.Clone()
	if authenticate {
		if err := e.auth.Authenticate(req); err != nil {
			return rawResponse{}, fmt.Errorf("invoker: authenticate: %w", err)
		}
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordRemoteRequest(method, 0, time.Since(start))
		}
		return rawResponse{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if e.metrics != nil {
		e.metrics.RecordRemoteRequest(method, resp.StatusCode, time.Since(start))
	}
	if err != nil {
		return rawResponse{}, err
	}

	return rawResponse{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		body:     data,
	}, nil
}

func (e *Executor) recordFailure(reason string) {
	if e.metrics != nil {
		e.metrics.RecordRemoteFailure(reason)
	}
}

func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invoker: invalid redirect location %q: %w", location, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
