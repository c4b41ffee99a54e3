package lavalink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
}

func (r *recordingSink) HandleEvent(ev Event) { r.events = append(r.events, ev) }

func newTestDispatcher(t *testing.T) (*Dispatcher, *Cluster, *recordingSink) {
	t.Helper()
	c := newTestCluster(t, 1)
	sink := &recordingSink{}
	return NewDispatcher(c, sink), c, sink
}

func TestDispatchReady(t *testing.T) {
	d, c, sink := newTestDispatcher(t)

	d.Dispatch(c.Node(0), &Message{Op: OpReady, SessionID: "sess-1", Resumed: true})

	require.Len(t, sink.events, 1)
	assert.Equal(t, KindReady, sink.events[0].Kind)
	assert.True(t, sink.events[0].Resumed)
	assert.Same(t, c.Node(0), sink.events[0].Node)
}

func TestDispatchPlayerUpdate(t *testing.T) {
	d, c, sink := newTestDispatcher(t)

	d.Dispatch(c.Node(0), &Message{
		Op:      OpPlayerUpdate,
		GuildID: "guild-1",
		State:   &PlayerState{Position: 42000, Connected: true},
	})

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, KindPlayerUpdate, ev.Kind)
	assert.Equal(t, "guild-1", ev.GuildID)
	assert.Equal(t, int64(42000), ev.State.Position)
	assert.True(t, ev.State.Connected)

	// A playerUpdate without a state payload is malformed and dropped.
	d.Dispatch(c.Node(0), &Message{Op: OpPlayerUpdate, GuildID: "guild-1"})
	assert.Len(t, sink.events, 1)
}

func TestDispatchStatsGoesToCluster(t *testing.T) {
	d, c, sink := newTestDispatcher(t)

	d.Dispatch(c.Node(0), &Message{Op: OpStats, Players: 7, CPU: &CPU{SystemLoad: 0.2}})

	assert.Empty(t, sink.events, "stats frames never reach sessions")
	got, ok := c.Node(0).LastStats()
	require.True(t, ok)
	assert.Equal(t, 7, got.Players)
}

func TestDispatchEvents(t *testing.T) {
	track := &Track{Encoded: "abc"}

	cases := []struct {
		name string
		msg  Message
		want EventKind
	}{
		{"track start", Message{Op: OpEvent, Type: EventTrackStart, GuildID: "g", Track: track}, KindTrackStart},
		{"track end", Message{Op: OpEvent, Type: EventTrackEnd, GuildID: "g", Track: track, Reason: ReasonFinished}, KindTrackEnd},
		{"track exception", Message{Op: OpEvent, Type: EventTrackException, GuildID: "g", Track: track, Exception: &Exception{Message: "boom"}}, KindTrackException},
		{"track stuck", Message{Op: OpEvent, Type: EventTrackStuck, GuildID: "g", Track: track, ThresholdMs: 10000}, KindTrackStuck},
		{"websocket closed", Message{Op: OpEvent, Type: EventWebSocketClosed, GuildID: "g", Code: 4006, ByRemote: true}, KindWebSocketClosed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, c, sink := newTestDispatcher(t)
			d.Dispatch(c.Node(0), &tc.msg)

			require.Len(t, sink.events, 1)
			ev := sink.events[0]
			assert.Equal(t, tc.want, ev.Kind)
			assert.Equal(t, "g", ev.GuildID)
			assert.Equal(t, tc.msg.Reason, ev.Reason)
			assert.Equal(t, tc.msg.Exception, ev.Exception)
			assert.Equal(t, tc.msg.ThresholdMs, ev.ThresholdMs)
			assert.Equal(t, tc.msg.Code, ev.Code)
			assert.Equal(t, tc.msg.ByRemote, ev.ByRemote)
		})
	}
}

func TestDispatchDropsUnknowns(t *testing.T) {
	d, c, sink := newTestDispatcher(t)

	d.Dispatch(c.Node(0), &Message{Op: Op("somethingNew")})
	d.Dispatch(c.Node(0), &Message{Op: OpEvent, Type: EventType("SomethingNewEvent"), GuildID: "g"})

	assert.Empty(t, sink.events, "unknown ops and event types are dropped, never surfaced")
}
