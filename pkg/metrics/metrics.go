// Package metrics exposes Prometheus counters and gauges for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks live execution-plane sockets.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_active_connections",
		Help: "Number of authenticated execution-plane WebSocket connections.",
	})

	// SSESubscribers tracks live browser event streams.
	SSESubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sse_subscribers",
		Help: "Number of registered SSE subscribers across all sessions.",
	})

	// HeartbeatTimeouts counts connections dropped by the supervisor.
	HeartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_heartbeat_timeouts_total",
		Help: "Connections closed because no heartbeat arrived in time.",
	})

	// RequestsHandled counts RPC requests by method and outcome.
	RequestsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "RPC request frames handled, by method and outcome.",
	}, []string{"method", "outcome"})

	// FireAndForgetHandled counts side-effect frames by method and outcome.
	FireAndForgetHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_fire_and_forget_total",
		Help: "Fire-and-forget frames handled, by method and outcome.",
	}, []string{"method", "outcome"})

	// EventsForwarded counts runtime events relayed to SSE subscribers.
	EventsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_forwarded_total",
		Help: "Runtime events forwarded to SSE subscribers, by event type.",
	}, []string{"type"})

	// FramesDropped counts inbound frames dropped before dispatch.
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_frames_dropped_total",
		Help: "Inbound frames dropped, by reason.",
	}, []string{"reason"})
)
