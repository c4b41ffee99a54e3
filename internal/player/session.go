// internal/player/session.go
package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/davrbx/basslink/internal/lavalink"
)

// LifecycleState is the session-level state machine position.
type LifecycleState int

const (
	StateIdle LifecycleState = iota
	StateJoining
	StateActive
	StateLeaving
	StateDestroyed
)

func (s LifecycleState) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateDestroyed:
		return "destroyed"
	default:
		return "idle"
	}
}

// SubState refines an Active session.
type SubState int

const (
	SubIdle SubState = iota
	SubPlaying
	SubPaused
	SubBuffering
)

var (
	// ErrJoinFailed wraps any failure to open a remote player. Retryable.
	ErrJoinFailed = errors.New("join failed")

	// ErrNotActive is returned by playback commands on a dead session.
	ErrNotActive = errors.New("session is not active")

	// ErrNothingPlaying means there is no current track to act on.
	ErrNothingPlaying = errors.New("no track is currently playing")

	// ErrNoHistory means Previous was called with an empty history.
	ErrNoHistory = errors.New("no previous track")
)

// VoiceHandshake is the externally supplied voice credential set a node needs
// to open a remote player. Opaque to the core; resent in full on resync.
type VoiceHandshake struct {
	ChannelID string
	SessionID string
	Token     string
	Endpoint  string
}

func (h VoiceHandshake) voiceState() lavalink.VoiceState {
	return lavalink.VoiceState{Token: h.Token, Endpoint: h.Endpoint, SessionID: h.SessionID}
}

// playbackState is the shape shared by desired intent and the last
// acknowledged remote state.
type playbackState struct {
	track    *lavalink.Track
	position int64
	paused   bool
	volume   int
	loop     LoopMode
}

// Session reconciles one guild's local intent against its remote player.
// Commands are the single writer of desired state; the event dispatcher is
// the single writer of acknowledged state. The mutex is never held across a
// network call.
type Session struct {
	guildID  string
	registry *Registry

	mu             sync.Mutex
	state          LifecycleState
	sub            SubState
	node           *lavalink.Node // lookup only, the cluster owns it
	handshake      VoiceHandshake
	desired        playbackState
	queue          queue
	history        []lavalink.Track
	acked          playbackState
	ackedConnected bool
	dirty          bool
}

func newSession(guildID string, r *Registry) *Session {
	return &Session{
		guildID:  guildID,
		registry: r,
		desired:  playbackState{volume: 100},
		acked:    playbackState{volume: 100},
	}
}

// GuildID returns the session's guild key.
func (s *Session) GuildID() string { return s.guildID }

// State returns the lifecycle state.
func (s *Session) State() LifecycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Sub returns the Active sub-state.
func (s *Session) Sub() SubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

// Node returns the bound node, or nil before a join.
func (s *Session) Node() *lavalink.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.node
}

// Dirty reports whether desired and acknowledged states have diverged.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// CurrentTrack returns the desired current track.
func (s *Session) CurrentTrack() *lavalink.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired.track
}

// AckedTrack returns the last track the node acknowledged.
func (s *Session) AckedTrack() *lavalink.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked.track
}

// Acked returns the last acknowledged paused flag, volume and position.
func (s *Session) Acked() (paused bool, volume int, position int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked.paused, s.acked.volume, s.acked.position
}

// Queue returns a copy of the pending tracks.
func (s *Session) Queue() []lavalink.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Snapshot()
}

// Loop returns the loop mode.
func (s *Session) Loop() LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired.loop
}

// UpdateHandshake replaces the stored voice credentials. Discord re-issues
// them on voice region changes; the caller follows up with Resync to push
// them to the node.
func (s *Session) UpdateHandshake(handshake VoiceHandshake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handshake = handshake
}

// Join binds a node via the cluster and opens the remote player. On REST
// failure the session returns to Idle and the caller gets ErrJoinFailed; a
// concurrent Leave cancels the join and the late response is discarded.
func (s *Session) Join(ctx context.Context, handshake VoiceHandshake) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: session is %s", ErrJoinFailed, state)
	}
	s.state = StateJoining
	s.handshake = handshake
	paused := s.desired.paused
	volume := s.desired.volume
	s.mu.Unlock()

	node, err := s.registry.cluster.SelectNode()
	if err != nil {
		s.mu.Lock()
		// A concurrent Leave may have torn the session down already; only
		// a still-joining session falls back to Idle.
		if s.state == StateJoining {
			s.state = StateIdle
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.state != StateJoining {
		s.mu.Unlock()
		return nil
	}
	// Bind under the session lock so Leave always observes node and bind
	// together.
	s.node = node
	s.registry.cluster.Bind(node.Index())
	s.mu.Unlock()

	voice := handshake.voiceState()
	snap, err := node.UpdatePlayer(ctx, s.guildID, &lavalink.UpdatePlayer{
		Voice:  &voice,
		Paused: &paused,
		Volume: &volume,
	}, false)

	s.mu.Lock()
	if s.state != StateJoining {
		// Leave won the race; the join response is discarded. Leave
		// handles the unbind, but its destroy may have raced ahead of
		// the create, so tear the remote player down again.
		s.mu.Unlock()
		if err == nil {
			if derr := node.DestroyPlayer(ctx, s.guildID); derr != nil {
				log.Printf("[WARN] Guild %s: destroy after cancelled join failed: %v", s.guildID, derr)
			}
		}
		return nil
	}
	if err != nil {
		s.state = StateIdle
		s.node = nil
		s.mu.Unlock()
		s.registry.cluster.Unbind(node.Index())
		return fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}
	s.state = StateActive
	switch {
	case paused:
		s.sub = SubPaused
	case s.desired.track != nil:
		s.sub = SubPlaying
	default:
		s.sub = SubIdle
	}
	s.mergeAckLocked(snap)
	s.mu.Unlock()

	s.registry.notify(Notification{Kind: NotifySessionJoined, GuildID: s.guildID})
	return nil
}

// Play places tracks according to mode and starts playback when nothing is
// playing. It does not wait for the node: state converges once the matching
// TrackStart event arrives.
func (s *Session) Play(ctx context.Context, tracks []lavalink.Track, mode PlayMode) error {
	if len(tracks) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}

	var start *lavalink.Track
	switch mode {
	case PlayNow:
		if s.desired.track != nil {
			s.pushHistoryLocked(*s.desired.track)
		}
		t := tracks[0]
		s.desired.track = &t
		s.desired.position = 0
		if len(tracks) > 1 {
			s.queue.PushFront(tracks[1:]...)
		}
		start = &t
	case PlayNext:
		s.queue.PushFront(tracks...)
	default:
		s.queue.PushBack(tracks...)
	}

	if start == nil && s.desired.track == nil {
		if t, ok := s.queue.PopFront(); ok {
			s.desired.track = &t
			s.desired.position = 0
			start = &t
		}
	}
	if start != nil {
		s.sub = SubBuffering
	}
	s.dirty = true
	s.mu.Unlock()

	s.registry.cancelIdleTimer(s.guildID)

	if start == nil {
		return nil
	}
	return s.pushCurrentTrack(ctx)
}

// SetPaused pauses or resumes playback. A no-op without a network call when
// desired state already matches.
func (s *Session) SetPaused(ctx context.Context, paused bool) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.desired.paused == paused {
		s.mu.Unlock()
		return nil
	}
	s.desired.paused = paused
	s.dirty = true
	node := s.node
	s.mu.Unlock()

	return s.patch(ctx, node, &lavalink.UpdatePlayer{Paused: &paused})
}

// Pause pauses playback.
func (s *Session) Pause(ctx context.Context) error { return s.SetPaused(ctx, true) }

// Resume resumes playback.
func (s *Session) Resume(ctx context.Context) error { return s.SetPaused(ctx, false) }

// SetVolume sets the player volume (0-1000). Idempotent.
func (s *Session) SetVolume(ctx context.Context, volume int) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.desired.volume == volume {
		s.mu.Unlock()
		return nil
	}
	s.desired.volume = volume
	s.dirty = true
	node := s.node
	s.mu.Unlock()

	return s.patch(ctx, node, &lavalink.UpdatePlayer{Volume: &volume})
}

// Seek moves the playhead of the current track, in milliseconds.
func (s *Session) Seek(ctx context.Context, positionMs int64) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.desired.track == nil {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	if s.desired.position == positionMs {
		s.mu.Unlock()
		return nil
	}
	s.desired.position = positionMs
	s.dirty = true
	node := s.node
	s.mu.Unlock()

	return s.patch(ctx, node, &lavalink.UpdatePlayer{Position: &positionMs})
}

// SetLoop sets the loop mode. Purely local: the node has no loop concept.
func (s *Session) SetLoop(mode LoopMode) {
	s.mu.Lock()
	s.desired.loop = mode
	s.mu.Unlock()
}

// Skip asks the node to stop the current track and relies on the TrackEnd
// event to advance the queue, so local and remote state can never disagree
// about what is playing.
func (s *Session) Skip(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.desired.track == nil {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	node := s.node
	s.mu.Unlock()

	if node == nil || !node.Available() {
		return nil
	}
	_, err := node.UpdatePlayer(ctx, s.guildID, &lavalink.UpdatePlayer{
		Track: &lavalink.UpdatePlayerTrack{Encoded: nil},
	}, false)
	if errors.Is(err, lavalink.ErrStaleResponse) {
		return nil
	}
	return err
}

// Previous replays the most recently finished track, pushing the current one
// back onto the head of the queue.
func (s *Session) Previous(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	if len(s.history) == 0 {
		s.mu.Unlock()
		return ErrNoHistory
	}
	prev := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	if s.desired.track != nil {
		s.queue.PushFront(*s.desired.track)
	}
	s.desired.track = &prev
	s.desired.position = 0
	s.sub = SubBuffering
	s.dirty = true
	s.mu.Unlock()

	return s.pushCurrentTrack(ctx)
}

// Shuffle permutes the pending queue. The current track is untouched.
func (s *Session) Shuffle() {
	s.mu.Lock()
	s.queue.Shuffle()
	s.mu.Unlock()
}

// Leave destroys the remote player, best-effort, and tears the session down.
// Calling it on a Joining session cancels the in-flight join.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateLeaving || s.state == StateDestroyed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateLeaving
	node := s.node
	s.mu.Unlock()

	if node != nil && node.Available() {
		if err := node.DestroyPlayer(ctx, s.guildID); err != nil {
			log.Printf("[WARN] Guild %s: destroy player on %s failed (node reaps it itself): %v", s.guildID, node.Name(), err)
		}
	}

	s.mu.Lock()
	s.state = StateDestroyed
	s.node = nil
	s.mu.Unlock()

	if node != nil {
		s.registry.cluster.Unbind(node.Index())
	}
	s.registry.cancelIdleTimer(s.guildID)
	s.registry.remove(s.guildID)
	s.registry.notify(Notification{Kind: NotifySessionLeft, GuildID: s.guildID})
	return nil
}

// Resync re-issues the full desired state, including the voice handshake.
// Called after a non-resumed node reconnect; safe to call any time.
func (s *Session) Resync(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.dirty = true
	node := s.node
	voice := s.handshake.voiceState()
	paused := s.desired.paused
	volume := s.desired.volume
	update := &lavalink.UpdatePlayer{
		Voice:  &voice,
		Paused: &paused,
		Volume: &volume,
	}
	if s.desired.track != nil {
		encoded := s.desired.track.Encoded
		update.Track = &lavalink.UpdatePlayerTrack{Encoded: &encoded}
		position := s.desired.position
		update.Position = &position
	}
	s.mu.Unlock()

	if node == nil || !node.Available() {
		return
	}
	snap, err := node.UpdatePlayer(ctx, s.guildID, update, false)
	if err != nil {
		if !errors.Is(err, lavalink.ErrStaleResponse) {
			log.Printf("[WARN] Guild %s: resync against %s failed: %v", s.guildID, node.Name(), err)
		}
		return
	}
	s.mu.Lock()
	s.mergeAckLocked(snap)
	s.mu.Unlock()
}

// patch issues a partial update. A disconnected node is not an error: the
// change is already in desired state and replays on reconnect.
func (s *Session) patch(ctx context.Context, node *lavalink.Node, update *lavalink.UpdatePlayer) error {
	if node == nil || !node.Available() {
		return nil
	}
	snap, err := node.UpdatePlayer(ctx, s.guildID, update, false)
	if err != nil {
		if errors.Is(err, lavalink.ErrStaleResponse) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	s.mergeAckLocked(snap)
	s.mu.Unlock()
	return nil
}

// pushCurrentTrack tells the node to play the desired current track.
func (s *Session) pushCurrentTrack(ctx context.Context) error {
	s.mu.Lock()
	node := s.node
	if s.desired.track == nil {
		s.mu.Unlock()
		return nil
	}
	encoded := s.desired.track.Encoded
	position := s.desired.position
	paused := s.desired.paused
	volume := s.desired.volume
	s.mu.Unlock()

	return s.patch(ctx, node, &lavalink.UpdatePlayer{
		Track:    &lavalink.UpdatePlayerTrack{Encoded: &encoded},
		Position: &position,
		Paused:   &paused,
		Volume:   &volume,
	})
}

// mergeAckLocked applies an acknowledged snapshot. Caller holds s.mu.
func (s *Session) mergeAckLocked(p *lavalink.Player) {
	if p == nil {
		return
	}
	s.acked.track = p.Track
	s.acked.paused = p.Paused
	s.acked.volume = p.Volume
	s.acked.position = p.State.Position
	s.ackedConnected = p.State.Connected
	s.dirty = !s.convergedLocked()
}

func (s *Session) convergedLocked() bool {
	if s.desired.paused != s.acked.paused || s.desired.volume != s.acked.volume {
		return false
	}
	return trackEqual(s.desired.track, s.acked.track)
}

// historyLimit bounds the replay history so loop modes cannot grow it forever.
const historyLimit = 100

func (s *Session) pushHistoryLocked(t lavalink.Track) {
	s.history = append(s.history, t)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}

func trackEqual(a, b *lavalink.Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Encoded == b.Encoded
}
