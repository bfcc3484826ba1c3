package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/wiredriver/internal/bidi"
	"github.com/pitabwire/wiredriver/internal/observability"
	"github.com/pitabwire/wiredriver/internal/protocol"
	"github.com/pitabwire/wiredriver/internal/session"
	"github.com/pitabwire/wiredriver/internal/transport"
	"github.com/pitabwire/wiredriver/model"
)

type subcommand func(ctx context.Context, a *app, args []string) error

var subcommands = map[string]subcommand{
	"exec":        runExec,
	"new-session": runNewSession,
	"quit":        runQuit,
	"sessions":    runSessions,
	"commands":    runCommands,
	"logs":        runLogs,
	"serve":       runServe,
}

func parseRemoteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("remote url %q: %w", raw, err)
	}
	return u, nil
}

// parseParams decodes a JSON object flag. An empty string yields nil.
func parseParams(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	return params, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runExec(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	sessionID := fs.String("session", "", "session id substituted for {sessionId}")
	rawParams := fs.String("params", "", "command parameters as a JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one command id is required")
	}
	params, err := parseParams(*rawParams)
	if err != nil {
		return err
	}

	result, err := a.commands.Execute(ctx, model.CommandID(fs.Arg(0)), *sessionID, params)
	if err != nil {
		return err
	}
	return a.printJSON(result.Value)
}

func runNewSession(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("new-session", flag.ContinueOnError)
	rawCaps := fs.String("capabilities", `{"alwaysMatch":{}}`, "requested capabilities as a JSON object")
	bidiFlag := fs.Bool("bidi", a.cfg.BiDi.Enabled, "request a WebSocket event channel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	caps, err := parseParams(*rawCaps)
	if err != nil {
		return err
	}
	if *bidiFlag {
		if match, ok := caps["alwaysMatch"].(map[string]any); ok {
			match["webSocketUrl"] = true
		}
	}

	params := map[string]any{"capabilities": caps}
	if a.registry.Level() == model.LevelLegacy {
		params = map[string]any{"desiredCapabilities": caps["alwaysMatch"]}
	}
	result, err := a.commands.Execute(ctx, protocol.NewSession, "", params)
	if err != nil {
		return err
	}

	rec, err := session.FromResult(result, a.requests.BaseURL(), a.registry.Level())
	if err != nil {
		return err
	}
	if err := a.sessions.Save(ctx, rec); err != nil {
		return err
	}
	return a.printJSON(rec)
}

func runQuit(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one session id is required")
	}
	id := args[0]
	if _, err := a.commands.Execute(ctx, protocol.DeleteSession, id, nil); err != nil {
		return err
	}
	return a.sessions.Delete(ctx, id)
}

func runSessions(ctx context.Context, a *app, _ []string) error {
	recs, err := a.sessions.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLEVEL\tREMOTE\tCREATED\tEVENTS")
	for _, r := range recs {
		events := "-"
		if r.WebSocketURL != "" {
			events = r.WebSocketURL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Level, r.RemoteURL, r.CreatedAt.Format(time.RFC3339), events)
	}
	return tw.Flush()
}

func runCommands(_ context.Context, a *app, _ []string) error {
	for _, id := range a.registry.IDs() {
		tmpl, err := a.registry.Resolve(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%-28s %-6s %s\n", tmpl.ID, tmpl.Method, tmpl.Path)
	}
	return nil
}

// eventChannelURL picks the WebSocket URL: the remembered session's first,
// then the configured one.
func (a *app) eventChannelURL(ctx context.Context, sessionID string) (string, error) {
	if sessionID != "" {
		rec, found, err := a.sessions.Get(ctx, sessionID)
		if err != nil {
			return "", err
		}
		if found && rec.WebSocketURL != "" {
			return rec.WebSocketURL, nil
		}
	}
	if a.cfg.BiDi.WebSocketURL == "" {
		return "", errors.New("no event channel: open a session with -bidi or set bidi.websocket_url")
	}
	return a.cfg.BiDi.WebSocketURL, nil
}

func (a *app) dialEventChannel(ctx context.Context, wsURL string) (*bidi.Channel, *bidi.Dispatcher, error) {
	logger := observability.LoggerFrom(ctx, a.logger)
	ch := bidi.NewChannel(
		bidi.WithHandshakeTimeout(a.cfg.BiDi.HandshakeTimeout),
		bidi.WithCommandTimeout(a.cfg.BiDi.CommandTimeout),
		bidi.WithReadLimit(a.cfg.BiDi.ReadLimit),
		bidi.WithChannelLogger(logger),
		bidi.WithChannelMetrics(a.metrics),
	)
	if err := ch.Dial(ctx, wsURL, nil); err != nil {
		return nil, nil, err
	}
	d := bidi.NewDispatcher(ch,
		bidi.WithDispatcherLogger(logger),
		bidi.WithDispatcherMetrics(a.metrics),
	)
	return ch, d, nil
}

func runLogs(ctx context.Context, a *app, args []string) error {
	logger := observability.LoggerFrom(ctx, a.logger)
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	sessionID := fs.String("session", "", "remembered session whose event channel to use")
	category := fs.String("category", "all", "one of all, console, javascript, exception")
	var contexts multiFlag
	fs.Var(&contexts, "context", "browsing context to scope the subscription to (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	wsURL, err := a.eventChannelURL(ctx, *sessionID)
	if err != nil {
		return err
	}
	ch, d, err := a.dialEventChannel(ctx, wsURL)
	if err != nil {
		return err
	}
	defer ch.Close()

	inspector, err := bidi.NewLogInspector(ctx, d, contexts...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.out)
	emit := func(e model.LogEntry) {
		if err := enc.Encode(e); err != nil {
			logger.Warn("logs: write failed", zap.Error(err))
		}
	}
	switch *category {
	case "all":
		err = inspector.OnGenericLog(ctx, emit)
	case "console":
		err = inspector.OnConsoleLog(ctx, emit)
	case "javascript":
		err = inspector.OnJavaScriptLog(ctx, emit)
	case "exception":
		err = inspector.OnJavaScriptException(ctx, emit)
	default:
		err = fmt.Errorf("unknown category %q", *category)
	}
	if err != nil {
		return err
	}

	logger.Info("logs: streaming", zap.String("url", wsURL), zap.String("category", *category))
	select {
	case <-ctx.Done():
		return nil
	case <-ch.Done():
		return fmt.Errorf("event channel: %w", model.ErrChannelClosed)
	}
}

func runServe(ctx context.Context, a *app, args []string) error {
	logger := observability.LoggerFrom(ctx, a.logger)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.Observability.Metrics.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	checks := observability.ReadinessChecks{
		RegistryLoaded: func() bool { return a.registry.Len() > 0 },
		RemoteEnd:      a.commands,
		SessionStore:   a.sessions,
	}
	if a.cfg.BiDi.Enabled && a.cfg.BiDi.WebSocketURL != "" {
		ch, _, err := a.dialEventChannel(ctx, a.cfg.BiDi.WebSocketURL)
		if err != nil {
			return err
		}
		defer ch.Close()
		checks.EventChannel = ch
	}

	r := transport.NewRouter(transport.Dependencies{
		Logger:      logger,
		Metrics:     a.metrics,
		Gatherer:    a.gatherer,
		Readiness:   checks,
		MetricsPath: a.cfg.Observability.Metrics.Path,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           observability.TracingMiddleware(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("server started",
		zap.String("addr", *addr),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("commands", a.registry.Len()),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
