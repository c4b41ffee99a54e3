// internal/player/registry.go
package player

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/davrbx/basslink/internal/lavalink"
	"github.com/davrbx/basslink/pkg/jobmgr"
)

// DefaultIdleTimeout is how long an exhausted session lingers before it
// leaves on its own.
const DefaultIdleTimeout = 5 * time.Minute

// Registry is the sole authority for session creation and destruction: a
// concurrent guild-to-session mapping plus the sink for classified node
// events.
type Registry struct {
	cluster     *lavalink.Cluster
	jobs        *jobmgr.Manager
	baseCtx     context.Context
	idleTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	notifications chan Notification
}

// NewRegistry builds a registry over a cluster. baseCtx bounds the lifetime
// of all event-driven REST calls.
func NewRegistry(baseCtx context.Context, cluster *lavalink.Cluster, idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		cluster:       cluster,
		jobs:          jobmgr.NewManager(nil),
		baseCtx:       baseCtx,
		idleTimeout:   idleTimeout,
		sessions:      make(map[string]*Session),
		notifications: make(chan Notification, 64), // buffered to reduce drops
	}
}

// Notifications is the outbound event surface consumed by the command layer.
func (r *Registry) Notifications() <-chan Notification { return r.notifications }

// GetOrCreate returns the guild's session, creating it on first use.
func (r *Registry) GetOrCreate(guildID string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[guildID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[guildID]; ok {
		return s
	}
	s = newSession(guildID, r)
	r.sessions[guildID] = s
	return s
}

// Get looks up a live session.
func (r *Registry) Get(guildID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) remove(guildID string) {
	r.mu.Lock()
	delete(r.sessions, guildID)
	r.mu.Unlock()
}

// HandleEvent routes one classified event: Ready fans out to the node's bound
// sessions, guild-scoped events go to the matching session, events for guilds
// with no live session are dropped.
func (r *Registry) HandleEvent(ev lavalink.Event) {
	if ev.Kind == lavalink.KindReady {
		r.handleNodeReady(ev)
		return
	}

	s, ok := r.Get(ev.GuildID)
	if !ok {
		log.Printf("[INFO] Dropping %s event for guild %s with no live session", ev.Kind, ev.GuildID)
		return
	}
	s.handleEvent(ev)
}

// handleNodeReady reconciles sessions bound to a node that just handshook.
// A resumed session keeps its remote players; anything else replays the full
// desired state of every bound session.
func (r *Registry) handleNodeReady(ev lavalink.Event) {
	if ev.Resumed {
		log.Printf("[INFO] Node %s resumed; remote players survived the reconnect", ev.Node.Name())
		return
	}

	r.mu.RLock()
	bound := make([]*Session, 0)
	for _, s := range r.sessions {
		if s.Node() == ev.Node {
			bound = append(bound, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range bound {
		go func(s *Session) {
			ctx, cancel := context.WithTimeout(r.baseCtx, lavalink.DefaultRestTimeout)
			defer cancel()
			s.Resync(ctx)
		}(s)
	}
}

// notify emits a notification without ever blocking a reader goroutine.
func (r *Registry) notify(n Notification) {
	select {
	case r.notifications <- n:
	default:
		log.Printf("[WARN] Notification channel full, dropping %s for guild %s", n.Kind, n.GuildID)
	}
}

// startIdleTimer schedules a best-effort self-leave for an exhausted session.
// Cancelled when playback starts again.
func (r *Registry) startIdleTimer(s *Session) {
	name := "leave:" + s.guildID
	err := r.jobs.StartAsync(name, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-r.baseCtx.Done():
			return nil
		case <-time.After(r.idleTimeout):
		}
		leaveCtx, cancel := context.WithTimeout(r.baseCtx, lavalink.DefaultRestTimeout)
		defer cancel()
		return s.Leave(leaveCtx)
	})
	if err != nil {
		// Timer already pending for this guild.
		return
	}
}

// cancelIdleTimer stops a pending self-leave, if any.
func (r *Registry) cancelIdleTimer(guildID string) {
	_ = r.jobs.Stop("leave:" + guildID)
}
