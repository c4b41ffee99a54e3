package lavalink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCluster(t *testing.T, size int) *Cluster {
	t.Helper()
	codec, err := NewCodec("std")
	require.NoError(t, err)

	configs := make([]NodeConfig, size)
	for i := range configs {
		configs[i] = NodeConfig{Name: "node-" + string(rune('a'+i)), Address: "127.0.0.1:2333", Password: "x"}
	}
	return NewCluster(configs, "bot-1", codec, time.Second)
}

func setState(c *Cluster, index int, s ConnectionState) {
	c.nodes[index].state.Store(int32(s))
}

func overloadedStats() Stats {
	return Stats{CPU: CPU{SystemLoad: 0.99}}
}

func healthyStats() Stats {
	return Stats{CPU: CPU{SystemLoad: 0.10}}
}

func TestSelectNode(t *testing.T) {
	t.Run("no ready node", func(t *testing.T) {
		c := newTestCluster(t, 2)
		_, err := c.SelectNode()
		assert.ErrorIs(t, err, ErrNoAvailableNode)

		setState(c, 0, StateDegraded)
		_, err = c.SelectNode()
		assert.ErrorIs(t, err, ErrNoAvailableNode, "degraded nodes never take new sessions")
	})

	t.Run("ties break toward the lowest index", func(t *testing.T) {
		c := newTestCluster(t, 3)
		setState(c, 0, StateReady)
		setState(c, 1, StateReady)
		setState(c, 2, StateReady)

		n, err := c.SelectNode()
		require.NoError(t, err)
		assert.Equal(t, 0, n.Index())
	})

	t.Run("fewest bound sessions wins", func(t *testing.T) {
		c := newTestCluster(t, 3)
		setState(c, 0, StateReady)
		setState(c, 1, StateReady)
		setState(c, 2, StateReady)

		c.Bind(0)
		c.Bind(0)
		c.Bind(1)

		n, err := c.SelectNode()
		require.NoError(t, err)
		assert.Equal(t, 2, n.Index())

		c.Bind(2)
		n, err = c.SelectNode()
		require.NoError(t, err)
		assert.Equal(t, 1, n.Index())
	})

	t.Run("non-ready nodes are skipped regardless of load", func(t *testing.T) {
		c := newTestCluster(t, 2)
		setState(c, 0, StateDisconnected)
		setState(c, 1, StateReady)
		c.Bind(1)
		c.Bind(1)
		c.Bind(1)

		n, err := c.SelectNode()
		require.NoError(t, err)
		assert.Equal(t, 1, n.Index())
	})
}

func TestBindUnbind(t *testing.T) {
	c := newTestCluster(t, 1)
	assert.Equal(t, 0, c.BoundSessions(0))

	c.Bind(0)
	c.Bind(0)
	assert.Equal(t, 2, c.BoundSessions(0))

	c.Unbind(0)
	assert.Equal(t, 1, c.BoundSessions(0))

	c.Unbind(0)
	c.Unbind(0) // must not go negative
	assert.Equal(t, 0, c.BoundSessions(0))
}

func TestDegradation(t *testing.T) {
	t.Run("three consecutive overloaded frames degrade", func(t *testing.T) {
		c := newTestCluster(t, 1)
		n := c.Node(0)
		setState(c, 0, StateReady)

		c.nodeStatsUpdated(n, overloadedStats())
		c.nodeStatsUpdated(n, overloadedStats())
		assert.Equal(t, StateReady, n.State(), "two strikes are not enough")

		c.nodeStatsUpdated(n, overloadedStats())
		assert.Equal(t, StateDegraded, n.State())
	})

	t.Run("one healthy frame clears degradation", func(t *testing.T) {
		c := newTestCluster(t, 1)
		n := c.Node(0)
		setState(c, 0, StateReady)

		for i := 0; i < 3; i++ {
			c.nodeStatsUpdated(n, overloadedStats())
		}
		require.Equal(t, StateDegraded, n.State())

		c.nodeStatsUpdated(n, healthyStats())
		assert.Equal(t, StateReady, n.State())
	})

	t.Run("healthy frame resets the strike count", func(t *testing.T) {
		c := newTestCluster(t, 1)
		n := c.Node(0)
		setState(c, 0, StateReady)

		c.nodeStatsUpdated(n, overloadedStats())
		c.nodeStatsUpdated(n, overloadedStats())
		c.nodeStatsUpdated(n, healthyStats())
		c.nodeStatsUpdated(n, overloadedStats())
		c.nodeStatsUpdated(n, overloadedStats())
		assert.Equal(t, StateReady, n.State())
	})

	t.Run("still overloaded after a reconnect re-degrades", func(t *testing.T) {
		c := newTestCluster(t, 1)
		n := c.Node(0)
		setState(c, 0, StateReady)

		for i := 0; i < 3; i++ {
			c.nodeStatsUpdated(n, overloadedStats())
		}
		require.Equal(t, StateDegraded, n.State())

		// A reconnect handshake stores Ready directly; the strike counter
		// is already past the threshold.
		setState(c, 0, StateDisconnected)
		setState(c, 0, StateReady)

		c.nodeStatsUpdated(n, overloadedStats())
		assert.Equal(t, StateDegraded, n.State())
	})

	t.Run("frame deficit also counts as overload", func(t *testing.T) {
		c := newTestCluster(t, 1)
		n := c.Node(0)
		setState(c, 0, StateReady)

		deficit := Stats{FrameStats: &FrameStats{Deficit: 2000}}
		for i := 0; i < 3; i++ {
			c.nodeStatsUpdated(n, deficit)
		}
		assert.Equal(t, StateDegraded, n.State())
	})
}

func TestStatsHookAndSnapshot(t *testing.T) {
	c := newTestCluster(t, 1)
	n := c.Node(0)

	var observed []Stats
	c.OnStats = func(_ *Node, s Stats) { observed = append(observed, s) }

	c.nodeStatsUpdated(n, healthyStats())

	got, ok := n.LastStats()
	require.True(t, ok)
	assert.Equal(t, 0.10, got.CPU.SystemLoad)
	assert.Len(t, observed, 1)
}
