// internal/metrics/metrics.go
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davrbx/basslink/internal/lavalink"
)

var (
	// Node metrics, labeled by configured node name.
	NodePlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lavalink_node_players",
		Help: "Players reported by the node in its last stats frame.",
	}, []string{"node"})
	NodePlayingPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lavalink_node_playing_players",
		Help: "Actively playing players reported by the node.",
	}, []string{"node"})
	NodeCPULoad = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lavalink_node_cpu_system_load",
		Help: "System CPU load reported by the node.",
	}, []string{"node"})
	NodeUptime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lavalink_node_uptime_seconds",
		Help: "Node uptime in seconds.",
	}, []string{"node"})
	NodeState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lavalink_node_state",
		Help: "Connection state of the node (0 disconnected through 4 degraded).",
	}, []string{"node"})

	// Session metrics.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "basslink_sessions_active",
		Help: "The current number of live player sessions.",
	})
)

// ObserveStats feeds one node stats frame into the gauges. Hung onto the
// cluster's OnStats hook.
func ObserveStats(n *lavalink.Node, s lavalink.Stats) {
	name := n.Name()
	NodePlayers.WithLabelValues(name).Set(float64(s.Players))
	NodePlayingPlayers.WithLabelValues(name).Set(float64(s.PlayingPlayers))
	NodeCPULoad.WithLabelValues(name).Set(s.CPU.SystemLoad)
	NodeUptime.WithLabelValues(name).Set(float64(s.Uptime) / 1000)
	NodeState.WithLabelValues(name).Set(float64(n.State()))
}

// StartServer exposes /metrics on addr. No-op when addr is empty.
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("[INFO] Starting metrics server on %s/metrics", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[ERR] Metrics server stopped: %v", err)
		}
	}()
}
