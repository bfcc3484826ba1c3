package integration

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/wiredriver/internal/protocol"
)

func TestHarness_Startup(t *testing.T) {
	h := NewTestHarness(t)

	if err := h.Commands.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	h.Remote.AssertCalled(t, protocol.Status, 1)
}

func TestHarness_NotReady(t *testing.T) {
	h := NewTestHarness(t)
	h.Remote.OnCommand(protocol.Status).RespondWith(200, map[string]any{"ready": false, "message": "busy"})

	if err := h.Commands.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck succeeded for a remote end that is not ready")
	}
}

func TestHarness_SessionLifecycle(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []HarnessOption
	}{
		{"memory", nil},
		{"redis", []HarnessOption{WithRedisSessions()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := NewTestHarness(t, tc.opts...)
			ctx := context.Background()

			first := h.NewSession(false)
			second := h.NewSession(false)
			if first.ID == second.ID {
				t.Fatalf("session ids collide: %q", first.ID)
			}
			if first.Capabilities["browserName"] != "mock" {
				t.Errorf("capabilities = %v, want browserName mock", first.Capabilities)
			}
			if first.RemoteURL != h.Remote.URL() {
				t.Errorf("RemoteURL = %q, want %q", first.RemoteURL, h.Remote.URL())
			}

			recs, err := h.Sessions.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(recs) != 2 {
				t.Fatalf("List returned %d records, want 2", len(recs))
			}

			if _, err := h.Execute(protocol.DeleteSession, first.ID, nil); err != nil {
				t.Fatalf("deleteSession: %v", err)
			}
			if got := h.Remote.LastRequest(protocol.DeleteSession).Params["sessionId"]; got != first.ID {
				t.Errorf("deleteSession sessionId = %q, want %q", got, first.ID)
			}
			if err := h.Sessions.Delete(ctx, first.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, found, _ := h.Sessions.Get(ctx, first.ID); found {
				t.Error("deleted session still stored")
			}

			if got := testutil.ToFloat64(h.Metrics.SessionStoreOpsTotal.WithLabelValues("save", "ok")); got != 2 {
				t.Errorf("save ops = %v, want 2", got)
			}
		})
	}
}

func TestHarness_RedisSessionsExpire(t *testing.T) {
	h := NewTestHarness(t, WithRedisSessions())
	rec := h.NewSession(false)

	h.Redis.FastForward(2 * h.cfg.Session.TTL)

	if _, found, err := h.Sessions.Get(context.Background(), rec.ID); err != nil || found {
		t.Errorf("Get after TTL = found %v, err %v; want not found", found, err)
	}
}
