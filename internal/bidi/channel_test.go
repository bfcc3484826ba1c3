package bidi

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/wiredriver/internal/observability"
	"github.com/pitabwire/wiredriver/model"
)

func dialChannel(t *testing.T, r *fakeRemoteEnd, opts ...ChannelOption) *Channel {
	t.Helper()
	ch := NewChannel(opts...)
	require.NoError(t, ch.Dial(context.Background(), r.URL(), nil))
	t.Cleanup(func() { ch.Close() })
	return ch
}

type recordingSink struct {
	events chan model.Event
	closed chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan model.Event, 16), closed: make(chan struct{})}
}

func (s *recordingSink) HandleEvent(ev model.Event) { s.events <- ev }
func (s *recordingSink) HandleClose()              { close(s.closed) }

func (s *recordingSink) next(t *testing.T) model.Event {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return model.Event{}
	}
}

func TestChannelState_String(t *testing.T) {
	assert.Equal(t, "unconnected", StateUnconnected.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "ChannelState(7)", ChannelState(7).String())
}

func TestChannel_sendBeforeConnect(t *testing.T) {
	ch := NewChannel()

	_, err := ch.Send(context.Background(), "session.status", nil)

	var notReady *model.ChannelNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, "unconnected", notReady.State)
	assert.Error(t, ch.HealthCheck(context.Background()))
}

func TestChannel_sendRoundTrip(t *testing.T) {
	r := newFakeRemoteEnd(t)
	ch := dialChannel(t, r)
	require.Equal(t, StateConnected, ch.State())
	require.NoError(t, ch.HealthCheck(context.Background()))

	first, err := ch.Send(context.Background(), "browsingContext.getTree", map[string]any{"maxDepth": 1})
	require.NoError(t, err)
	second, err := ch.Send(context.Background(), "session.status", nil)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(first, &got))
	assert.Equal(t, "browsingContext.getTree", got["method"])
	require.NoError(t, json.Unmarshal(second, &got))
	assert.Equal(t, "session.status", got["method"])

	cmds := r.commandsFor("browsingContext.getTree")
	require.Len(t, cmds, 1)
	assert.EqualValues(t, 1, cmds[0].ID)
	assert.EqualValues(t, 1, cmds[0].Params["maxDepth"])
	assert.EqualValues(t, 2, r.commandsFor("session.status")[0].ID, "ids increase per command")
	assert.NotNil(t, r.commandsFor("session.status")[0].Params, "params default to an empty object")
}

func TestChannel_sendRemoteError(t *testing.T) {
	r := newFakeRemoteEnd(t)
	r.errors["session.subscribe"] = model.CodeInvalidArgument
	ch := dialChannel(t, r)

	_, err := ch.Send(context.Background(), "session.subscribe", map[string]any{"events": []string{"nope"}})

	require.ErrorIs(t, err, model.ErrInvalidArgument)
	var remote *model.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, model.CommandID("session.subscribe"), remote.CommandID)
	assert.Equal(t, "rejected session.subscribe", remote.Message)
	assert.Equal(t, []string{"frame1", "frame2"}, remote.Stacktrace)
}

func TestChannel_closeFailsPendingCommands(t *testing.T) {
	r := newFakeRemoteEnd(t)
	r.hang["script.evaluate"] = true
	ch := dialChannel(t, r)
	sink := newRecordingSink()
	ch.SetEventSink(sink)

	errc := make(chan error, 1)
	go func() {
		_, err := ch.Send(context.Background(), "script.evaluate", nil)
		errc <- err
	}()
	r.waitFor("script.evaluate", 1)

	require.NoError(t, ch.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, model.ErrChannelClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending Send did not return after Close")
	}
	assert.Equal(t, StateClosed, ch.State())
	<-sink.closed
	<-ch.Done()

	_, err := ch.Send(context.Background(), "session.status", nil)
	assert.ErrorIs(t, err, model.ErrChannelClosed)
	assert.NoError(t, ch.Close(), "second Close is a no-op")
}

func TestChannel_remoteDisconnect(t *testing.T) {
	r := newFakeRemoteEnd(t)
	ch := dialChannel(t, r)

	r.drop()

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after the remote end dropped")
	}
	assert.Equal(t, StateClosed, ch.State())
}

func TestChannel_sendTimeout(t *testing.T) {
	r := newFakeRemoteEnd(t)
	r.hang["script.evaluate"] = true
	ch := dialChannel(t, r, WithCommandTimeout(50*time.Millisecond))

	_, err := ch.Send(context.Background(), "script.evaluate", nil)

	assert.True(t, errors.Is(err, context.DeadlineExceeded), "error = %v", err)
}

func TestChannel_eventsInWireOrder(t *testing.T) {
	r := newFakeRemoteEnd(t)
	ch := dialChannel(t, r)
	sink := newRecordingSink()
	ch.SetEventSink(sink)

	for i := 0; i < 5; i++ {
		r.push("log.entryAdded", map[string]any{"seq": i})
	}

	for i := 0; i < 5; i++ {
		ev := sink.next(t)
		assert.Equal(t, "log.entryAdded", ev.Method)
		assert.EqualValues(t, i, ev.Params["seq"])
	}
}

func TestChannel_malformedFramesDropped(t *testing.T) {
	m := observability.InitMetrics(prometheus.NewRegistry())
	r := newFakeRemoteEnd(t)
	ch := dialChannel(t, r, WithChannelMetrics(m))
	sink := newRecordingSink()
	ch.SetEventSink(sink)

	r.writeRaw([]byte("not json"))
	r.write(map[string]any{"type": "event"})
	r.write(map[string]any{"type": "success", "id": 99, "result": map[string]any{}})
	r.push("browsingContext.load", map[string]any{"url": "https://example.com"})

	ev := sink.next(t)
	assert.Equal(t, "browsingContext.load", ev.Method)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDroppedTotal.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDroppedTotal.WithLabelValues("orphan_response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventChannelState))
}

func TestChannel_connectTwice(t *testing.T) {
	r := newFakeRemoteEnd(t)
	ch := dialChannel(t, r)

	err := ch.Dial(context.Background(), r.URL(), nil)

	var notReady *model.ChannelNotReadyError
	assert.ErrorAs(t, err, &notReady)
}

func TestChannel_dialFailure(t *testing.T) {
	ch := NewChannel(WithHandshakeTimeout(time.Second))
	err := ch.Dial(context.Background(), "ws://127.0.0.1:1/session", nil)
	assert.Error(t, err)
	assert.Equal(t, StateUnconnected, ch.State())
}
