// Package integration provides a reusable test harness for end-to-end
// testing of the command and event stack. It wires the real executors,
// session store and event channel against a mock remote end.
package integration

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/wiredriver/internal/bidi"
	"github.com/pitabwire/wiredriver/internal/command"
	"github.com/pitabwire/wiredriver/internal/config"
	"github.com/pitabwire/wiredriver/internal/invoker"
	"github.com/pitabwire/wiredriver/internal/observability"
	"github.com/pitabwire/wiredriver/internal/protocol"
	"github.com/pitabwire/wiredriver/internal/session"
	"github.com/pitabwire/wiredriver/model"
)

const testRedisAddrEnv = "TEST_REDIS_ADDR"

// TestHarness encapsulates a fully wired client stack talking to a mock
// remote end.
type TestHarness struct {
	t *testing.T

	Remote   *MockRemoteEnd
	Registry *protocol.Registry
	Requests *invoker.Executor
	Commands *command.Executor
	Sessions session.Store
	Redis    *miniredis.Miniredis
	Metrics  *observability.Metrics
	Logs     *observer.ObservedLogs

	cfg    *config.Config
	logger *zap.Logger
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	remoteKey string
	clientKey string
	redis     bool
	mutators  []func(*config.Config)
}

// WithJWT makes the remote end require HS256 bearer tokens signed with key,
// and configures the client to mint them.
func WithJWT(key string) HarnessOption {
	return func(c *harnessConfig) {
		c.remoteKey = key
		c.clientKey = key
	}
}

// WithClientSigningKey overrides the key the client signs with.
func WithClientSigningKey(key string) HarnessOption {
	return func(c *harnessConfig) { c.clientKey = key }
}

// WithRedisSessions stores sessions in an in-process Redis.
func WithRedisSessions() HarnessOption {
	return func(c *harnessConfig) { c.redis = true }
}

// WithConfig adjusts the configuration before anything is built.
func WithConfig(fn func(*config.Config)) HarnessOption {
	return func(c *harnessConfig) { c.mutators = append(c.mutators, fn) }
}

// NewTestHarness creates and starts a harness with the given options.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{}
	for _, opt := range opts {
		opt(hc)
	}

	registry := protocol.MustNewRegistry(model.LevelW3C)

	var verifier *tokenVerifier
	if hc.remoteKey != "" {
		verifier = newTokenVerifier(hc.remoteKey)
	}
	remote := newMockRemoteEnd(t, registry, verifier)

	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	cfg := config.Defaults()
	cfg.Remote.URL = remote.URL()
	cfg.Proxy.FromEnvironment = false
	cfg.Transport.Timeout = 5 * time.Second
	cfg.Transport.Retry.AddrNotAvailBackoff = 10 * time.Millisecond
	cfg.BiDi.HandshakeTimeout = 2 * time.Second
	cfg.BiDi.CommandTimeout = 2 * time.Second
	cfg.Headers.Extra = map[string]string{"X-Test-Suite": "integration"}

	if hc.clientKey != "" {
		env[testSigningKeyEnv] = hc.clientKey
		cfg.Auth = config.AuthConfig{
			Strategy: "jwt",
			JWT: config.JWTConfig{
				SigningKeyEnv: testSigningKeyEnv,
				Issuer:        testIssuer,
				Subject:       testSubject,
				Audience:      testAudience,
				TTL:           time.Minute,
			},
		}
	}

	var mr *miniredis.Miniredis
	if hc.redis {
		mr = miniredis.RunT(t)
		env[testRedisAddrEnv] = mr.Addr()
		cfg.Session = config.SessionConfig{
			Driver:    "redis",
			AddrEnv:   testRedisAddrEnv,
			KeyPrefix: "integration:session:",
			TTL:       time.Hour,
		}
	}

	for _, fn := range hc.mutators {
		fn(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("harness config: %v", err)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	metrics := observability.InitMetrics(prometheus.NewRegistry())

	serverURL, err := url.Parse(cfg.Remote.URL)
	if err != nil {
		t.Fatalf("parse remote url: %v", err)
	}
	auth, err := invoker.NewAuthenticator(cfg.Auth, serverURL, getenv)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}

	invokerOpts := []invoker.Option{
		invoker.WithProxy(nil),
		invoker.WithHeaders(invoker.HeaderConfig{UserAgent: cfg.Headers.UserAgent, Extra: cfg.Headers.Extra}),
		invoker.WithRetryPolicy(invoker.NewRetryPolicy(cfg.Transport.Retry.MaxRetries, cfg.Transport.Retry.AddrNotAvailBackoff)),
		invoker.WithMaxRedirects(cfg.Transport.MaxRedirects),
		invoker.WithTimeout(cfg.Transport.Timeout),
		invoker.WithDialTimeout(cfg.Transport.DialTimeout),
		invoker.WithLogger(logger),
		invoker.WithMetrics(metrics),
	}
	if auth != nil {
		invokerOpts = append(invokerOpts, invoker.WithAuthenticator(auth))
	}
	requests, err := invoker.NewExecutor(cfg.Remote.URL, invokerOpts...)
	if err != nil {
		t.Fatalf("request executor: %v", err)
	}

	store, err := session.New(cfg.Session, getenv, metrics)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}

	return &TestHarness{
		t:        t,
		Remote:   remote,
		Registry: registry,
		Requests: requests,
		Commands: command.NewExecutor(registry, requests,
			command.WithLogger(logger),
			command.WithMetrics(metrics),
		),
		Sessions: store,
		Redis:    mr,
		Metrics:  metrics,
		Logs:     logs,
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute runs a command with a short deadline.
func (h *TestHarness) Execute(id model.CommandID, sessionID string, params map[string]any) (model.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.Commands.Execute(ctx, id, sessionID, params)
}

// NewSession opens a session, optionally requesting an event channel, and
// saves it in the session store.
func (h *TestHarness) NewSession(withEvents bool) session.Record {
	h.t.Helper()
	match := map[string]any{"browserName": "mock"}
	if withEvents {
		match["webSocketUrl"] = true
	}
	result, err := h.Execute(protocol.NewSession, "", map[string]any{
		"capabilities": map[string]any{"alwaysMatch": match},
	})
	if err != nil {
		h.t.Fatalf("newSession: %v", err)
	}
	rec, err := session.FromResult(result, h.Requests.BaseURL(), h.Registry.Level())
	if err != nil {
		h.t.Fatalf("session record: %v", err)
	}
	if err := h.Sessions.Save(context.Background(), rec); err != nil {
		h.t.Fatalf("save session: %v", err)
	}
	return rec
}

// OpenEventChannel dials wsURL and returns the connected channel and its
// dispatcher. Both are closed when the test ends.
func (h *TestHarness) OpenEventChannel(wsURL string) (*bidi.Channel, *bidi.Dispatcher) {
	h.t.Helper()
	ch := bidi.NewChannel(
		bidi.WithHandshakeTimeout(h.cfg.BiDi.HandshakeTimeout),
		bidi.WithCommandTimeout(h.cfg.BiDi.CommandTimeout),
		bidi.WithReadLimit(h.cfg.BiDi.ReadLimit),
		bidi.WithChannelLogger(h.logger),
		bidi.WithChannelMetrics(h.Metrics),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Dial(ctx, wsURL, nil); err != nil {
		h.t.Fatalf("dial event channel: %v", err)
	}
	h.t.Cleanup(func() { ch.Close() })
	d := bidi.NewDispatcher(ch,
		bidi.WithDispatcherLogger(h.logger),
		bidi.WithDispatcherMetrics(h.Metrics),
	)
	return ch, d
}
