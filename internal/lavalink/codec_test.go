package lavalink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// protocolFrames is a small corpus of real-shaped inbound frames, one per op.
var protocolFrames = map[string]string{
	"ready":        `{"op":"ready","resumed":false,"sessionId":"la3kfltxkqsd7k86"}`,
	"playerUpdate": `{"op":"playerUpdate","guildId":"229087497-02","state":{"time":1500467109,"position":60000,"connected":true,"ping":42}}`,
	"stats":        `{"op":"stats","players":3,"playingPlayers":2,"uptime":123456789,"memory":{"free":123456,"used":654321,"allocated":1048576,"reservable":4194304},"cpu":{"cores":4,"systemLoad":0.5,"lavalinkLoad":0.25},"frameStats":{"sent":3000,"nulled":10,"deficit":-30}}`,
	"trackEnd":     `{"op":"event","type":"TrackEndEvent","guildId":"229087497-02","track":{"encoded":"QAAA...","info":{"identifier":"dQw4w9WgXcQ","isSeekable":true,"author":"RickAstleyVEVO","length":212000,"isStream":false,"position":0,"title":"Never Gonna Give You Up","sourceName":"youtube"}},"reason":"finished"}`,
	"wsClosed":     `{"op":"event","type":"WebSocketClosedEvent","guildId":"229087497-02","code":4006,"reason":"Your session is no longer valid.","byRemote":true}`,
}

func TestNewCodec(t *testing.T) {
	t.Run("known names", func(t *testing.T) {
		for name, want := range map[string]string{"": "std", "std": "std", "sonic": "sonic"} {
			c, err := NewCodec(name)
			require.NoError(t, err)
			assert.Equal(t, want, c.Name())
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := NewCodec("simdjson")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simdjson")
	})
}

// TestCodecEquivalence decodes the same frames with both codecs and requires
// identical results, so the startup choice can never change behavior.
func TestCodecEquivalence(t *testing.T) {
	std, err := NewCodec("std")
	require.NoError(t, err)
	fast, err := NewCodec("sonic")
	require.NoError(t, err)

	for name, raw := range protocolFrames {
		t.Run(name, func(t *testing.T) {
			var a, b Message
			require.NoError(t, std.Unmarshal([]byte(raw), &a))
			require.NoError(t, fast.Unmarshal([]byte(raw), &b))
			assert.Equal(t, a, b)
		})
	}
}

func TestMessageStats(t *testing.T) {
	std, _ := NewCodec("std")

	var msg Message
	require.NoError(t, std.Unmarshal([]byte(protocolFrames["stats"]), &msg))
	require.Equal(t, OpStats, msg.Op)

	s := msg.Stats()
	assert.Equal(t, 3, s.Players)
	assert.Equal(t, 2, s.PlayingPlayers)
	assert.Equal(t, 0.5, s.CPU.SystemLoad)
	require.NotNil(t, s.FrameStats)
	assert.Equal(t, -30, s.FrameStats.Deficit)
}

func TestLoadResultDeferredPayload(t *testing.T) {
	std, _ := NewCodec("std")

	t.Run("playlist payload stays raw until narrowed", func(t *testing.T) {
		raw := `{"loadType":"playlist","data":{"info":{"name":"Mix","selectedTrack":-1},"pluginInfo":{},"tracks":[{"encoded":"abc","info":{"identifier":"x","isSeekable":true,"author":"a","length":1000,"isStream":false,"position":0,"title":"t","sourceName":"youtube"}}]}}`
		var result LoadResult
		require.NoError(t, std.Unmarshal([]byte(raw), &result))
		assert.Equal(t, LoadPlaylist, result.LoadType)

		var playlist Playlist
		require.NoError(t, std.Unmarshal(result.Data, &playlist))
		assert.Equal(t, "Mix", playlist.Info.Name)
		require.Len(t, playlist.Tracks, 1)
		assert.Equal(t, "abc", playlist.Tracks[0].Encoded)
	})

	t.Run("empty result has no data", func(t *testing.T) {
		var result LoadResult
		require.NoError(t, std.Unmarshal([]byte(`{"loadType":"empty","data":{}}`), &result))
		assert.Equal(t, LoadEmpty, result.LoadType)
	})
}

// TestUpdatePlayerTrackNull checks that a stop request serializes the track
// as an explicit null, which the node distinguishes from an omitted field.
func TestUpdatePlayerTrackNull(t *testing.T) {
	for _, name := range []string{"std", "sonic"} {
		t.Run(name, func(t *testing.T) {
			c, err := NewCodec(name)
			require.NoError(t, err)

			data, err := c.Marshal(&UpdatePlayer{Track: &UpdatePlayerTrack{Encoded: nil}})
			require.NoError(t, err)
			assert.Contains(t, string(data), `"encoded":null`)

			// A partial update without a track must omit the field entirely.
			paused := true
			data, err = c.Marshal(&UpdatePlayer{Paused: &paused})
			require.NoError(t, err)
			assert.False(t, strings.Contains(string(data), "track"))
		})
	}
}

func TestTrackEndReasonMayStartNext(t *testing.T) {
	assert.True(t, ReasonFinished.MayStartNext())
	assert.True(t, ReasonLoadFailed.MayStartNext())
	assert.False(t, ReasonStopped.MayStartNext())
	assert.False(t, ReasonReplaced.MayStartNext())
	assert.False(t, ReasonCleanup.MayStartNext())
}
