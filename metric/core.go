// Package metric provides the Prometheus metrics registry and the core
// platform metrics shared by the router, module lifecycle, and panel
// service.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics (not module-specific)
type Metrics struct {
	// Routing metrics
	EventsEmitted   *prometheus.CounterVec
	EventsRouted    *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	ConnectionsLive prometheus.Gauge
	RouterRebuilds  prometheus.Counter

	// Module lifecycle metrics
	ModuleStarts *prometheus.CounterVec
	ModuleStops  *prometheus.CounterVec
	HookErrors   *prometheus.CounterVec

	// NATS metrics
	NATSConnected prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagelink",
				Subsystem: "router",
				Name:      "events_emitted_total",
				Help:      "Total events emitted by input modules",
			},
			[]string{"input"},
		),

		EventsRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagelink",
				Subsystem: "router",
				Name:      "events_routed_total",
				Help:      "Total events delivered to output modules",
			},
			[]string{"input", "output"},
		),

		EventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "stagelink",
				Subsystem: "router",
				Name:      "events_dropped_total",
				Help:      "Events emitted by inputs with no wired output",
			},
		),

		ConnectionsLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "stagelink",
				Subsystem: "router",
				Name:      "connections_live",
				Help:      "Number of resolved input/output connections",
			},
		),

		RouterRebuilds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "stagelink",
				Subsystem: "router",
				Name:      "rebuilds_total",
				Help:      "Full connection list rebuilds",
			},
		),

		ModuleStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagelink",
				Subsystem: "module",
				Name:      "starts_total",
				Help:      "Module start transitions",
			},
			[]string{"module"},
		),

		ModuleStops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagelink",
				Subsystem: "module",
				Name:      "stops_total",
				Help:      "Module stop transitions",
			},
			[]string{"module"},
		),

		HookErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stagelink",
				Subsystem: "module",
				Name:      "hook_errors_total",
				Help:      "Hook failures caught at the lifecycle boundary",
			},
			[]string{"module", "hook"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "stagelink",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
	}
}
