// internal/lavalink/dispatcher.go
package lavalink

import (
	"context"
	"log"
)

// EventKind is the closed set of things a node can tell us.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindReady
	KindPlayerUpdate
	KindStats
	KindTrackStart
	KindTrackEnd
	KindTrackException
	KindTrackStuck
	KindWebSocketClosed
)

func (k EventKind) String() string {
	switch k {
	case KindReady:
		return "Ready"
	case KindPlayerUpdate:
		return "PlayerUpdate"
	case KindStats:
		return "Stats"
	case KindTrackStart:
		return "TrackStart"
	case KindTrackEnd:
		return "TrackEnd"
	case KindTrackException:
		return "TrackException"
	case KindTrackStuck:
		return "TrackStuck"
	case KindWebSocketClosed:
		return "WebSocketClosed"
	default:
		return "Unknown"
	}
}

// Event is a classified inbound frame. Constructing one by hand and feeding
// it to a session sink is the intended way to test player semantics.
type Event struct {
	Kind    EventKind
	Node    *Node
	GuildID string

	// Ready
	Resumed bool

	// PlayerUpdate
	State PlayerState

	// Track events
	Track       *Track
	Reason      TrackEndReason
	Exception   *Exception
	ThresholdMs int64

	// WebSocketClosed
	Code     int
	ByRemote bool
}

// SessionSink receives classified events. Implemented by the player registry;
// all player semantics live there, never here.
type SessionSink interface {
	HandleEvent(ev Event)
}

// Dispatcher classifies inbound frames and routes them: stats to the cluster,
// everything guild- or node-scoped to the session sink, unknowns to the floor.
type Dispatcher struct {
	cluster  *Cluster
	sessions SessionSink
}

// NewDispatcher wires a dispatcher to its two consumers.
func NewDispatcher(cluster *Cluster, sessions SessionSink) *Dispatcher {
	return &Dispatcher{cluster: cluster, sessions: sessions}
}

// Dispatch classifies one frame and routes it. It runs on the node's reader
// goroutine, so events from a single node arrive in order.
func (d *Dispatcher) Dispatch(n *Node, msg *Message) {
	switch msg.Op {
	case OpReady:
		if msg.Resumed {
			// The unsolicited stats cadence restarts from zero after a
			// resume; refresh health bookkeeping right away.
			go d.refreshStats(n)
		}
		d.sessions.HandleEvent(Event{Kind: KindReady, Node: n, Resumed: msg.Resumed})

	case OpPlayerUpdate:
		if msg.State == nil {
			log.Printf("[WARN] Node %s: playerUpdate without state dropped", n.Name())
			return
		}
		d.sessions.HandleEvent(Event{
			Kind:    KindPlayerUpdate,
			Node:    n,
			GuildID: msg.GuildID,
			State:   *msg.State,
		})

	case OpStats:
		d.cluster.nodeStatsUpdated(n, msg.Stats())

	case OpEvent:
		ev := Event{Kind: classifyEvent(msg.Type), Node: n, GuildID: msg.GuildID}
		if ev.Kind == KindUnknown {
			log.Printf("[WARN] Node %s: unknown event type %q dropped", n.Name(), msg.Type)
			return
		}
		ev.Track = msg.Track
		ev.Reason = msg.Reason
		ev.Exception = msg.Exception
		ev.ThresholdMs = msg.ThresholdMs
		ev.Code = msg.Code
		ev.ByRemote = msg.ByRemote
		d.sessions.HandleEvent(ev)

	default:
		log.Printf("[WARN] Node %s: unknown op %q dropped", n.Name(), msg.Op)
	}
}

// refreshStats pulls a stats snapshot over REST. Off the reader goroutine.
func (d *Dispatcher) refreshStats(n *Node) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRestTimeout)
	defer cancel()
	s, err := n.FetchStats(ctx)
	if err != nil {
		log.Printf("[WARN] Node %s: stats refresh after resume failed: %v", n.Name(), err)
		return
	}
	d.cluster.nodeStatsUpdated(n, s)
}

func classifyEvent(t EventType) EventKind {
	switch t {
	case EventTrackStart:
		return KindTrackStart
	case EventTrackEnd:
		return KindTrackEnd
	case EventTrackException:
		return KindTrackException
	case EventTrackStuck:
		return KindTrackStuck
	case EventWebSocketClosed:
		return KindWebSocketClosed
	default:
		return KindUnknown
	}
}
