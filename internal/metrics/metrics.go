// Package metrics exposes relay counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "locshare"

const (
	JoinAccepted = "accepted"
	JoinRejected = "rejected"
	JoinLimited  = "rate_limited"
)

type Metrics struct {
	RoomsCreated  prometheus.Counter
	Connections   prometheus.Gauge
	LiveRooms     prometheus.Gauge
	Joins         *prometheus.CounterVec
	Relayed       prometheus.Counter
	DroppedFrames prometheus.Counter
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests to keep registrations isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RoomsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms issued by the registry.",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live room connections.",
		}),
		LiveRooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_rooms",
			Help:      "Rooms with at least one local member.",
		}),
		Joins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Join attempts by result.",
		}, []string{"result"}),
		Relayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_updates_total",
			Help:      "Location updates accepted for relay.",
		}),
		DroppedFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Frames dropped because a connection's send queue was full.",
		}),
	}
}
