package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davrbx/basslink/internal/lavalink"
)

func track(encoded string) lavalink.Track {
	return lavalink.Track{Encoded: encoded, Info: lavalink.TrackInfo{Title: encoded}}
}

func encodedOrder(tracks []lavalink.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Encoded
	}
	return out
}

func TestQueueOrdering(t *testing.T) {
	var q queue
	assert.Equal(t, 0, q.Len())

	q.PushBack(track("a"), track("b"))
	q.PushFront(track("x"), track("y"))
	assert.Equal(t, []string{"x", "y", "a", "b"}, encodedOrder(q.Snapshot()))

	got, ok := q.PopFront()
	require.True(t, ok)
	assert.Equal(t, "x", got.Encoded)
	assert.Equal(t, 3, q.Len())

	q.Clear()
	assert.Equal(t, 0, q.Len())
	_, ok = q.PopFront()
	assert.False(t, ok)
}

func TestQueueSnapshotIsACopy(t *testing.T) {
	var q queue
	q.PushBack(track("a"))

	snap := q.Snapshot()
	snap[0] = track("mutated")
	assert.Equal(t, "a", q.Snapshot()[0].Encoded)
}

func TestQueueShuffleKeepsContents(t *testing.T) {
	var q queue
	q.PushBack(track("a"), track("b"), track("c"), track("d"), track("e"))
	q.Shuffle()

	assert.ElementsMatch(t,
		[]string{"a", "b", "c", "d", "e"},
		encodedOrder(q.Snapshot()))
}

func TestQueueAdvance(t *testing.T) {
	finished := track("done")

	t.Run("loop off pops the head", func(t *testing.T) {
		var q queue
		q.PushBack(track("a"), track("b"))

		next, ok := q.advance(&finished, LoopOff)
		require.True(t, ok)
		assert.Equal(t, "a", next.Encoded)
		assert.Equal(t, []string{"b"}, encodedOrder(q.Snapshot()))
	})

	t.Run("loop off exhausts on empty queue", func(t *testing.T) {
		var q queue
		_, ok := q.advance(&finished, LoopOff)
		assert.False(t, ok)
	})

	t.Run("loop track replays the finished track", func(t *testing.T) {
		var q queue
		q.PushBack(track("a"))

		next, ok := q.advance(&finished, LoopTrack)
		require.True(t, ok)
		assert.Equal(t, "done", next.Encoded)
		assert.Equal(t, 1, q.Len(), "queue untouched while looping one track")
	})

	t.Run("loop queue rotates the finished track to the tail", func(t *testing.T) {
		var q queue
		q.PushBack(track("a"), track("b"))

		next, ok := q.advance(&finished, LoopQueue)
		require.True(t, ok)
		assert.Equal(t, "a", next.Encoded)
		assert.Equal(t, []string{"b", "done"}, encodedOrder(q.Snapshot()))
	})

	t.Run("loop queue exhausts on empty queue", func(t *testing.T) {
		var q queue
		_, ok := q.advance(&finished, LoopQueue)
		assert.False(t, ok, "an empty looping queue still goes idle")
	})
}
