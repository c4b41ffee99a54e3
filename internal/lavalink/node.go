// internal/lavalink/node.go
package lavalink

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/davrbx/basslink/internal/version"
)

// ConnectionState is the node-level state machine position.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateAwaitingHandshake
	StateReady
	StateDegraded
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting-handshake"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// NodeConfig describes one backend node. Immutable after load.
type NodeConfig struct {
	Name     string
	Address  string
	Password string
	Secure   bool
}

const (
	handshakeTimeout = 10 * time.Second
	reconnectInitial = 1 * time.Second
	reconnectMax     = 30 * time.Second
)

// Node owns one persistent control-plane socket to one backend node plus the
// REST client for that node. A Node lives for the whole process, reconnecting
// indefinitely; it is never recreated.
type Node struct {
	cfg    NodeConfig
	index  int
	userID string
	codec  Codec
	rest   *restClient

	state      atomic.Int32
	generation atomic.Uint64

	mu        sync.Mutex
	sessionID string
	conn      *websocket.Conn
	stats     Stats
	haveStats bool

	dispatcher *Dispatcher
}

// NewNode builds a node in the Disconnected state. Run starts it.
func NewNode(cfg NodeConfig, index int, userID string, codec Codec, restTimeout time.Duration) *Node {
	return &Node{
		cfg:    cfg,
		index:  index,
		userID: userID,
		codec:  codec,
		rest:   newRestClient(cfg, codec, restTimeout),
	}
}

// Name returns the configured node identifier.
func (n *Node) Name() string { return n.cfg.Name }

// Index returns the node's position in the configured order.
func (n *Node) Index() int { return n.index }

// State returns the current connection state.
func (n *Node) State() ConnectionState { return ConnectionState(n.state.Load()) }

// Generation returns the reconnect counter. REST responses tagged with an
// older generation must be discarded.
func (n *Node) Generation() uint64 { return n.generation.Load() }

// SessionID returns the token issued by the node on handshake, or "".
func (n *Node) SessionID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessionID
}

// LastStats returns the most recent stats frame, if any arrived yet.
func (n *Node) LastStats() (Stats, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats, n.haveStats
}

// Available reports whether the node can serve REST calls for bound sessions.
// Degraded nodes stay available; they are only excluded from new selection.
func (n *Node) Available() bool {
	s := n.State()
	return s == StateReady || s == StateDegraded
}

func (n *Node) setStats(s Stats) {
	n.mu.Lock()
	n.stats = s
	n.haveStats = true
	n.mu.Unlock()
}

// Run drives the connect/read/reconnect loop until ctx is cancelled. It is
// the sole reader of the socket, so events from one node are dispatched in
// arrival order.
func (n *Node) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(reconnectInitial),
		backoff.WithMaxInterval(reconnectMax),
		backoff.WithMaxElapsedTime(0),
	)

	for {
		reachedReady, err := n.connectAndRead(ctx)
		if ctx.Err() != nil {
			n.state.Store(int32(StateDisconnected))
			return
		}
		if reachedReady {
			// A completed handshake resets the backoff window.
			bo.Reset()
		}

		wait := bo.NextBackOff()
		log.Printf("[WARN] Node %s: connection lost (%v), reconnecting in %v", n.cfg.Name, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// connectAndRead performs one dial + handshake + read loop. Any return means
// the socket is gone; the generation is advanced if the node had been Ready.
// reachedReady reports whether the handshake completed.
func (n *Node) connectAndRead(ctx context.Context) (reachedReady bool, err error) {
	n.state.Store(int32(StateConnecting))

	scheme := "ws"
	if n.cfg.Secure {
		scheme = "wss"
	}
	header := http.Header{}
	header.Set("Authorization", n.cfg.Password)
	header.Set("User-Id", n.userID)
	header.Set("Client-Name", version.ClientName())
	if prev := n.SessionID(); prev != "" {
		header.Set("Session-Id", prev)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, scheme+"://"+n.cfg.Address+"/v4/websocket", header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		n.state.Store(int32(StateDisconnected))
		return false, err
	}
	defer conn.Close()

	// Unblock the reader when the run context ends; ReadMessage has no
	// deadline once the node is Ready.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readDone:
		}
	}()

	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()

	n.state.Store(int32(StateAwaitingHandshake))

	// First frame must be a ready op carrying the session id.
	msg, err := n.readFrame(conn, handshakeTimeout)
	if err != nil {
		n.state.Store(int32(StateDisconnected))
		return false, fmt.Errorf("%w: %v", errHandshake, err)
	}
	if msg.Op != OpReady || msg.SessionID == "" {
		n.state.Store(int32(StateDisconnected))
		return false, ErrInvalidMessage
	}

	n.mu.Lock()
	n.sessionID = msg.SessionID
	n.mu.Unlock()
	n.state.Store(int32(StateReady))

	log.Printf("[INFO] Node %s: ready (session %s, resumed=%t)", n.cfg.Name, msg.SessionID, msg.Resumed)

	defer func() {
		n.generation.Add(1)
		n.state.Store(int32(StateDisconnected))
	}()

	if n.dispatcher != nil {
		n.dispatcher.Dispatch(n, msg)
	}

	for {
		msg, err := n.readFrame(conn, 0)
		if err != nil {
			return true, err
		}
		if n.dispatcher != nil {
			n.dispatcher.Dispatch(n, msg)
		}
	}
}

// readFrame reads and decodes one frame, optionally bounded by a deadline.
func (n *Node) readFrame(conn *websocket.Conn, timeout time.Duration) (*Message, error) {
	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := n.codec.Unmarshal(data, &msg); err != nil {
		log.Printf("[WARN] Node %s: undecodable frame dropped: %v", n.cfg.Name, err)
		return &Message{Op: Op("")}, nil
	}
	return &msg, nil
}

// setDegraded flips between Ready and Degraded. Socket loss from either
// state lands in Disconnected through the read loop.
func (n *Node) setDegraded(degraded bool) {
	if degraded {
		n.state.CompareAndSwap(int32(StateReady), int32(StateDegraded))
	} else {
		n.state.CompareAndSwap(int32(StateDegraded), int32(StateReady))
	}
}

// Close force-closes the current socket, if any. Used in tests and shutdown.
func (n *Node) Close() {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
