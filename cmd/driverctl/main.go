// Package main is the entry point for driverctl, a command-line client that
// drives a remote browser-automation endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/wiredriver/internal/command"
	"github.com/pitabwire/wiredriver/internal/config"
	"github.com/pitabwire/wiredriver/internal/invoker"
	"github.com/pitabwire/wiredriver/internal/observability"
	"github.com/pitabwire/wiredriver/internal/protocol"
	"github.com/pitabwire/wiredriver/internal/session"
	"github.com/pitabwire/wiredriver/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

const usage = `usage: driverctl [-config file] <command> [flags] [args]

commands:
  exec <command-id>   run one command and print its value
  new-session         open a session and remember it
  quit <session-id>   delete a session
  sessions            list remembered sessions
  commands            list the commands known at the configured level
  logs                stream browser log entries over the event channel
  serve               expose /metrics, /healthz and /readyz until interrupted

Sessions are remembered across runs only when a redis address is set in
WIREDRIVER_SESSION_REDIS_ADDR (or session.driver is redis); otherwise they
last for a single invocation.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	registry *protocol.Registry
	requests *invoker.Executor
	commands *command.Executor
	sessions session.Store
	out      io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	// Step 1: Parse global flags.
	fs := flag.NewFlagSet("driverctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "driverctl", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}
	defer func() {
		if err := tracingShutdown(context.Background()); err != nil {
			logger.Error("tracing shutdown error", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	metrics := observability.InitMetrics(reg)

	// Step 4: Build the command stack.
	a, err := newApp(cfg, logger, metrics, reg, stdout)
	if err != nil {
		logger.Error("initialization failed", zap.Error(err))
		return 1
	}

	// Step 5: Dispatch the subcommand.
	name, rest := fs.Arg(0), fs.Args()[1:]
	sub, ok := subcommands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		fs.Usage()
		return 2
	}
	ctx = observability.WithLogger(ctx, logger.With(zap.String("subcommand", name)))
	ctx, span := observability.StartSpan(ctx, "driverctl "+name, attribute.String("driverctl.subcommand", name))
	err = sub(ctx, a, rest)
	observability.EndSpanWithError(span, err)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		observability.LoggerFrom(ctx, logger).Error("command failed", zap.Error(err))
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
	return 0
}

func newApp(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics, gatherer prometheus.Gatherer, out io.Writer) (*app, error) {
	level, _ := model.ParseLevel(cfg.Remote.Level)
	registry, err := protocol.NewRegistry(level, cfg.Remote.Extensions...)
	if err != nil {
		return nil, fmt.Errorf("command registry: %w", err)
	}

	requests, err := newRequestExecutor(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	store, err := session.New(cfg.Session, os.Getenv, metrics)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	commands := command.NewExecutor(registry, requests,
		command.WithLogger(logger),
		command.WithMetrics(metrics),
		command.WithSensitiveParams("password", "token", "secret"),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		gatherer: gatherer,
		registry: registry,
		requests: requests,
		commands: commands,
		sessions: store,
		out:      out,
	}, nil
}

// newRequestExecutor builds the HTTP executor from the transport, proxy,
// header and auth sections.
func newRequestExecutor(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*invoker.Executor, error) {
	serverURL, err := parseRemoteURL(cfg.Remote.URL)
	if err != nil {
		return nil, err
	}
	auth, err := invoker.NewAuthenticator(cfg.Auth, serverURL, os.Getenv)
	if err != nil {
		return nil, err
	}

	opts := []invoker.Option{
		invoker.WithHeaders(invoker.HeaderConfig{
			UserAgent: cfg.Headers.UserAgent,
			Extra:     cfg.Headers.Extra,
		}),
		invoker.WithRetryPolicy(invoker.NewRetryPolicy(
			cfg.Transport.Retry.MaxRetries,
			cfg.Transport.Retry.AddrNotAvailBackoff,
		)),
		invoker.WithMaxRedirects(cfg.Transport.MaxRedirects),
		invoker.WithTimeout(cfg.Transport.Timeout),
		invoker.WithDialTimeout(cfg.Transport.DialTimeout),
		invoker.WithLogger(logger),
		invoker.WithMetrics(metrics),
	}
	switch {
	case cfg.Proxy.HTTP != "":
		opts = append(opts, invoker.WithProxy(invoker.NewProxy(cfg.Proxy.HTTP, cfg.Proxy.NoProxy)))
	case cfg.Proxy.FromEnvironment:
		opts = append(opts, invoker.WithProxyFromEnvironment(os.Getenv))
	default:
		opts = append(opts, invoker.WithProxy(nil))
	}
	if auth != nil {
		opts = append(opts, invoker.WithAuthenticator(auth))
	}

	return invoker.NewExecutor(cfg.Remote.URL, opts...)
}
