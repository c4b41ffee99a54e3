// internal/lavalink/cluster.go
package lavalink

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/davrbx/basslink/pkg/retrylimit"
	"github.com/davrbx/basslink/pkg/util"
)

// Overload thresholds: a stats frame is overloaded when either trips, and
// three consecutive overloaded frames degrade the node.
const (
	overloadCPU      = 0.95
	overloadDeficit  = 1500
	overloadStrikes  = 3
	versionProbeWork = 4
)

// Cluster coordinates the configured set of nodes. It selects a node for new
// sessions and tracks per-node health and load; it never moves a live session
// between nodes.
type Cluster struct {
	nodes []*Node

	mu      sync.Mutex
	bound   []int // live sessions per node, by index
	strikes []int // consecutive overloaded stats frames, by index

	// OnStats, when set, observes every stats frame. Used by metrics.
	OnStats func(n *Node, s Stats)
}

// NewCluster builds the node set in configured order. The order is load-bearing:
// selection ties break toward the lowest index.
func NewCluster(configs []NodeConfig, userID string, codec Codec, restTimeout time.Duration) *Cluster {
	c := &Cluster{
		nodes:   make([]*Node, 0, len(configs)),
		bound:   make([]int, len(configs)),
		strikes: make([]int, len(configs)),
	}
	for i, cfg := range configs {
		c.nodes = append(c.nodes, NewNode(cfg, i, userID, codec, restTimeout))
	}
	return c
}

// Start attaches the dispatcher and launches one perpetual reader per node.
func (c *Cluster) Start(ctx context.Context, d *Dispatcher) {
	for _, n := range c.nodes {
		n.dispatcher = d
		go n.Run(ctx)
	}
}

// ProbeVersions logs each node's Lavalink version, best-effort, with bounded
// parallelism. Purely informational at startup.
func (c *Cluster) ProbeVersions(ctx context.Context) {
	_ = util.Parallel(c.nodes, versionProbeWork, func(ctx context.Context, n *Node) error {
		err := retrylimit.WithRetryMax(ctx, func() error {
			v, err := n.Version(ctx)
			if err != nil {
				return err
			}
			log.Printf("[INFO] Node %s: Lavalink %s", n.Name(), v)
			return nil
		}, nil, 3)
		if err != nil {
			log.Printf("[WARN] Node %s: version probe failed: %v", n.Name(), err)
		}
		return nil
	})
}

// Nodes returns the configured node set, in order.
func (c *Cluster) Nodes() []*Node { return c.nodes }

// Node returns the node at the given configured index.
func (c *Cluster) Node(i int) *Node { return c.nodes[i] }

// SelectNode returns the Ready, non-degraded node with the fewest bound
// sessions; ties break toward the lowest configured index. It fails with
// ErrNoAvailableNode when no node is Ready.
func (c *Cluster) SelectNode() (*Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var best *Node
	bestCount := 0
	for i, n := range c.nodes {
		if n.State() != StateReady {
			continue
		}
		if best == nil || c.bound[i] < bestCount {
			best = n
			bestCount = c.bound[i]
		}
	}
	if best == nil {
		return nil, ErrNoAvailableNode
	}
	return best, nil
}

// Bind records a new session on a node. Called by the session registry.
func (c *Cluster) Bind(index int) {
	c.mu.Lock()
	c.bound[index]++
	c.mu.Unlock()
}

// Unbind releases a session's slot on a node.
func (c *Cluster) Unbind(index int) {
	c.mu.Lock()
	if c.bound[index] > 0 {
		c.bound[index]--
	}
	c.mu.Unlock()
}

// BoundSessions returns the number of live sessions bound to a node.
func (c *Cluster) BoundSessions(index int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound[index]
}

// nodeStatsUpdated ingests a stats frame: pure bookkeeping, no I/O. Three
// consecutive overloaded frames degrade the node; one healthy frame clears it.
func (c *Cluster) nodeStatsUpdated(n *Node, s Stats) {
	n.setStats(s)

	overloaded := s.CPU.SystemLoad > overloadCPU ||
		(s.FrameStats != nil && s.FrameStats.Deficit > overloadDeficit)

	c.mu.Lock()
	i := n.Index()
	if overloaded {
		c.strikes[i]++
		// >= rather than ==: a reconnect stores Ready directly, so the
		// counter may already be past the threshold when the node comes
		// back still overloaded. setDegraded is idempotent.
		if c.strikes[i] >= overloadStrikes {
			if c.strikes[i] == overloadStrikes {
				log.Printf("[WARN] Node %s: overloaded for %d stats intervals, excluding from selection", n.Name(), overloadStrikes)
			}
			n.setDegraded(true)
		}
	} else {
		if c.strikes[i] >= overloadStrikes {
			log.Printf("[INFO] Node %s: load back to normal, eligible for selection again", n.Name())
		}
		c.strikes[i] = 0
		n.setDegraded(false)
	}
	c.mu.Unlock()

	if c.OnStats != nil {
		c.OnStats(n, s)
	}
}
