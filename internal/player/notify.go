// internal/player/notify.go
package player

import "github.com/davrbx/basslink/internal/lavalink"

// NotificationKind is the closed set of things the core tells collaborators.
type NotificationKind int

const (
	NotifySessionJoined NotificationKind = iota
	NotifySessionLeft
	NotifyTrackChanged
	NotifyPlaybackError
	NotifyQueueExhausted
)

func (k NotificationKind) String() string {
	switch k {
	case NotifySessionJoined:
		return "SessionJoined"
	case NotifySessionLeft:
		return "SessionLeft"
	case NotifyTrackChanged:
		return "TrackChanged"
	case NotifyPlaybackError:
		return "PlaybackError"
	case NotifyQueueExhausted:
		return "QueueExhausted"
	default:
		return "Unknown"
	}
}

// ErrorKind narrows a PlaybackError notification.
type ErrorKind int

const (
	ErrorException ErrorKind = iota
	ErrorStuck
	ErrorLoadFailed
)

// Notification is a per-guild event for the command layer. Non-fatal playback
// faults arrive here, never as session failures.
type Notification struct {
	Kind    NotificationKind
	GuildID string
	Track   *lavalink.Track
	Error   ErrorKind
	Message string
}
