// internal/lavalink/model.go
package lavalink

// Wire types for the Lavalink v4 WebSocket and REST APIs.

// Op identifies the kind of an inbound WebSocket message.
type Op string

const (
	OpReady        Op = "ready"
	OpPlayerUpdate Op = "playerUpdate"
	OpStats        Op = "stats"
	OpEvent        Op = "event"
)

// EventType identifies the kind of an "event" op message.
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
)

// Message is the envelope of every inbound WebSocket frame. Only the fields
// matching the op are populated; the dispatcher narrows it into one event kind.
type Message struct {
	Op      Op        `json:"op"`
	Type    EventType `json:"type,omitempty"`
	GuildID string    `json:"guildId,omitempty"`

	// ready
	Resumed   bool   `json:"resumed,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// playerUpdate
	State *PlayerState `json:"state,omitempty"`

	// stats (inlined, the stats op carries these at the top level)
	Players        int         `json:"players,omitempty"`
	PlayingPlayers int         `json:"playingPlayers,omitempty"`
	Uptime         int64       `json:"uptime,omitempty"`
	Memory         *Memory     `json:"memory,omitempty"`
	CPU            *CPU        `json:"cpu,omitempty"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`

	// event
	Track       *Track         `json:"track,omitempty"`
	Reason      TrackEndReason `json:"reason,omitempty"`
	Exception   *Exception     `json:"exception,omitempty"`
	ThresholdMs int64          `json:"thresholdMs,omitempty"`
	Code        int            `json:"code,omitempty"`
	ByRemote    bool           `json:"byRemote,omitempty"`
}

// Stats extracts the node statistics carried by a stats frame.
func (m *Message) Stats() Stats {
	s := Stats{
		Players:        m.Players,
		PlayingPlayers: m.PlayingPlayers,
		Uptime:         m.Uptime,
	}
	if m.Memory != nil {
		s.Memory = *m.Memory
	}
	if m.CPU != nil {
		s.CPU = *m.CPU
	}
	if m.FrameStats != nil {
		s.FrameStats = m.FrameStats
	}
	return s
}

// Stats is a node load snapshot, delivered over the socket once per minute or
// fetched via GET /v4/stats.
type Stats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         Memory      `json:"memory"`
	CPU            CPU         `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

// Memory is the node's JVM memory usage.
type Memory struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

// CPU is the node's processor load.
type CPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

// FrameStats reports audio frames sent/nulled/deficit per minute.
type FrameStats struct {
	Sent    int `json:"sent"`
	Nulled  int `json:"nulled"`
	Deficit int `json:"deficit"`
}

// PlayerState is the periodic authoritative snapshot of a remote player.
type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int64 `json:"ping"`
}

// TrackEndReason explains why a track stopped.
type TrackEndReason string

const (
	ReasonFinished   TrackEndReason = "finished"
	ReasonLoadFailed TrackEndReason = "loadFailed"
	ReasonStopped    TrackEndReason = "stopped"
	ReasonReplaced   TrackEndReason = "replaced"
	ReasonCleanup    TrackEndReason = "cleanup"
)

// MayStartNext reports whether the queue should advance after this reason.
func (r TrackEndReason) MayStartNext() bool {
	return r == ReasonFinished || r == ReasonLoadFailed
}

// Severity of a playback exception reported by the node.
type Severity string

const (
	SeverityCommon     Severity = "common"
	SeveritySuspicious Severity = "suspicious"
	SeverityFault      Severity = "fault"
)

// Exception is an error thrown by the node while handling a track.
type Exception struct {
	Message  string   `json:"message,omitempty"`
	Severity Severity `json:"severity"`
	Cause    string   `json:"cause"`
}

// Track is an immutable handle plus display metadata, produced only by
// load-track responses.
type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`
}

// TrackInfo is the display metadata of a track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri,omitempty"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	SourceName string `json:"sourceName"`
}

// LoadType tags the result of GET /v4/loadtracks.
type LoadType string

const (
	LoadTrack     LoadType = "track"
	LoadPlaylist  LoadType = "playlist"
	LoadSearch    LoadType = "search"
	LoadEmpty     LoadType = "empty"
	LoadTypeError LoadType = "error"
)

// LoadResult is the raw loadtracks response; Data is narrowed by LoadType.
type LoadResult struct {
	LoadType LoadType `json:"loadType"`
	Data     RawData  `json:"data,omitempty"`
}

// RawData defers decoding of the loadType-dependent payload to the codec.
type RawData []byte

// UnmarshalJSON stores the raw bytes for later narrowing.
func (r *RawData) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// MarshalJSON emits the stored bytes verbatim.
func (r RawData) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// Playlist is the data payload of a playlist load result.
type Playlist struct {
	Info   PlaylistInfo `json:"info"`
	Tracks []Track      `json:"tracks"`
}

// PlaylistInfo describes a loaded playlist.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// Player is the remote player snapshot echoed by player REST calls.
type Player struct {
	GuildID string      `json:"guildId"`
	Track   *Track      `json:"track,omitempty"`
	Volume  int         `json:"volume"`
	Paused  bool        `json:"paused"`
	State   PlayerState `json:"state"`
	Voice   VoiceState  `json:"voice"`
}

// VoiceState carries the Discord voice credentials a node needs to connect.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// UpdatePlayer is the body of PATCH /v4/sessions/{session}/players/{guild}.
// Pointer fields are omitted when nil so partial updates stay partial.
type UpdatePlayer struct {
	Track    *UpdatePlayerTrack `json:"track,omitempty"`
	Position *int64             `json:"position,omitempty"`
	EndTime  *int64             `json:"endTime,omitempty"`
	Volume   *int               `json:"volume,omitempty"`
	Paused   *bool              `json:"paused,omitempty"`
	Voice    *VoiceState        `json:"voice,omitempty"`
}

// UpdatePlayerTrack selects the track of an update. An explicit null Encoded
// stops the current track.
type UpdatePlayerTrack struct {
	Encoded    *string `json:"encoded"`
	Identifier string  `json:"identifier,omitempty"`
}

// ErrorResponse is the body Lavalink returns on REST failures.
type ErrorResponse struct {
	Timestamp int64  `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}
