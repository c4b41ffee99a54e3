// internal/player/queue.go
package player

import (
	"math/rand"

	"github.com/davrbx/basslink/internal/lavalink"
)

// LoopMode controls how the queue advances when a track ends.
type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopTrack
	LoopQueue
)

func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "off"
	}
}

// PlayMode controls where a new track lands relative to the queue.
type PlayMode int

const (
	// PlayNow replaces the current track immediately.
	PlayNow PlayMode = iota
	// PlayNext inserts after the current track.
	PlayNext
	// PlayEnqueue appends to the tail.
	PlayEnqueue
)

// queue is the ordered sequence of pending tracks. Not safe for concurrent
// use; the owning session's mutex guards it.
type queue struct {
	tracks []lavalink.Track
}

func (q *queue) Len() int { return len(q.tracks) }

// PushFront inserts tracks at the head, preserving their order.
func (q *queue) PushFront(tracks ...lavalink.Track) {
	q.tracks = append(append([]lavalink.Track{}, tracks...), q.tracks...)
}

// PushBack appends tracks at the tail.
func (q *queue) PushBack(tracks ...lavalink.Track) {
	q.tracks = append(q.tracks, tracks...)
}

// PopFront removes and returns the head track.
func (q *queue) PopFront() (lavalink.Track, bool) {
	if len(q.tracks) == 0 {
		return lavalink.Track{}, false
	}
	t := q.tracks[0]
	q.tracks = q.tracks[1:]
	return t, true
}

// Snapshot returns a copy of the pending tracks.
func (q *queue) Snapshot() []lavalink.Track {
	out := make([]lavalink.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Shuffle permutes the pending tracks. The current track is not part of the
// queue and is untouched.
func (q *queue) Shuffle() {
	rand.Shuffle(len(q.tracks), func(i, j int) {
		q.tracks[i], q.tracks[j] = q.tracks[j], q.tracks[i]
	})
}

// Clear drops all pending tracks.
func (q *queue) Clear() {
	q.tracks = q.tracks[:0]
}

// advance computes the next current track after finished ended, honoring the
// loop mode. ok is false when the queue is exhausted.
func (q *queue) advance(finished *lavalink.Track, mode LoopMode) (next lavalink.Track, ok bool) {
	switch mode {
	case LoopTrack:
		if finished != nil {
			return *finished, true
		}
		return q.PopFront()
	case LoopQueue:
		next, ok = q.PopFront()
		if !ok {
			return lavalink.Track{}, false
		}
		if finished != nil {
			q.PushBack(*finished)
		}
		return next, true
	default:
		return q.PopFront()
	}
}
