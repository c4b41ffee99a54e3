// internal/player/events.go
package player

import (
	"context"
	"log"

	"github.com/davrbx/basslink/internal/lavalink"
)

// handleEvent applies one classified node event to this session. It runs on
// the node's reader goroutine; anything that needs the network is spun off so
// event processing never blocks on a REST call.
func (s *Session) handleEvent(ev lavalink.Event) {
	switch ev.Kind {
	case lavalink.KindPlayerUpdate:
		s.mu.Lock()
		s.acked.position = ev.State.Position
		s.ackedConnected = ev.State.Connected
		s.mu.Unlock()

	case lavalink.KindTrackStart:
		s.mu.Lock()
		s.acked.track = ev.Track
		if s.state == StateActive {
			if s.desired.paused {
				s.sub = SubPaused
			} else {
				s.sub = SubPlaying
			}
		}
		s.dirty = !s.convergedLocked()
		s.mu.Unlock()
		s.registry.cancelIdleTimer(s.guildID)
		s.registry.notify(Notification{Kind: NotifyTrackChanged, GuildID: s.guildID, Track: ev.Track})

	case lavalink.KindTrackEnd:
		s.onTrackEnd(ev)

	case lavalink.KindTrackException, lavalink.KindTrackStuck:
		s.onTrackFault(ev)

	case lavalink.KindWebSocketClosed:
		s.mu.Lock()
		s.ackedConnected = false
		s.mu.Unlock()
		log.Printf("[WARN] Guild %s: voice websocket closed (code %d, byRemote=%t)", s.guildID, ev.Code, ev.ByRemote)
	}
}

// onTrackEnd advances the queue according to the loop mode. Replaced and
// cleanup reasons are the node echoing our own actions and advance nothing.
func (s *Session) onTrackEnd(ev lavalink.Event) {
	if !ev.Reason.MayStartNext() && ev.Reason != lavalink.ReasonStopped {
		return
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	finished := s.desired.track
	if finished != nil {
		s.pushHistoryLocked(*finished)
	}
	next, ok := s.queue.advance(finished, s.desired.loop)
	if !ok {
		s.desired.track = nil
		s.desired.position = 0
		s.acked.track = nil
		s.sub = SubIdle
		s.mu.Unlock()
		s.registry.notify(Notification{Kind: NotifyQueueExhausted, GuildID: s.guildID})
		s.registry.startIdleTimer(s)
		return
	}
	s.desired.track = &next
	s.desired.position = 0
	s.sub = SubBuffering
	s.dirty = true
	s.mu.Unlock()

	go s.startNext()
}

// onTrackFault drops the failing track, attempts the next one regardless of
// loop mode, and surfaces the fault as a non-fatal playback error.
func (s *Session) onTrackFault(ev lavalink.Event) {
	kind := ErrorException
	message := "playback exception"
	if ev.Kind == lavalink.KindTrackStuck {
		kind = ErrorStuck
		message = "track stuck"
	} else if ev.Exception != nil && ev.Exception.Message != "" {
		message = ev.Exception.Message
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	failing := s.desired.track
	next, ok := s.queue.PopFront()
	if ok {
		s.desired.track = &next
		s.desired.position = 0
		s.sub = SubBuffering
		s.dirty = true
	} else {
		s.desired.track = nil
		s.desired.position = 0
		s.acked.track = nil
		s.sub = SubIdle
	}
	s.mu.Unlock()

	s.registry.notify(Notification{
		Kind:    NotifyPlaybackError,
		GuildID: s.guildID,
		Track:   failing,
		Error:   kind,
		Message: message,
	})

	if ok {
		go s.startNext()
	} else {
		s.registry.startIdleTimer(s)
	}
}

// startNext pushes the freshly chosen current track to the node, off the
// reader goroutine. A playback failure here is surfaced, never fatal.
func (s *Session) startNext() {
	ctx, cancel := context.WithTimeout(s.registry.baseCtx, lavalink.DefaultRestTimeout)
	defer cancel()
	if err := s.pushCurrentTrack(ctx); err != nil {
		s.mu.Lock()
		track := s.desired.track
		s.mu.Unlock()
		log.Printf("[ERR] Guild %s: failed to start next track: %v", s.guildID, err)
		s.registry.notify(Notification{
			Kind:    NotifyPlaybackError,
			GuildID: s.guildID,
			Track:   track,
			Error:   ErrorLoadFailed,
			Message: err.Error(),
		})
	}
}
