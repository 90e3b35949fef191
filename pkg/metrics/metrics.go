package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the number of live game sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "astervoids_active_sessions",
			Help: "Number of live game sessions",
		},
	)

	// ConnectedClients tracks currently open websocket connections.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "astervoids_connected_clients",
			Help: "Number of open websocket connections",
		},
	)

	// SessionObjects tracks synchronized objects across all sessions.
	SessionObjects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "astervoids_session_objects",
			Help: "Number of synchronized objects across all sessions",
		},
	)

	// RPCLatency measures hub RPC handling time per method.
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "astervoids_rpc_latency_seconds",
			Help:    "Hub RPC handling latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// EventsBroadcast counts events fanned out to broadcast groups.
	EventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astervoids_events_broadcast_total",
			Help: "Total events broadcast to groups",
		},
		[]string{"event"},
	)

	// HTTPLatency measures HTTP request latencies.
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "astervoids_http_latency_seconds",
			Help:    "HTTP endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
