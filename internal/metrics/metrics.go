// Package metrics exposes relay counters to prometheus.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Relay struct {
	Channels prometheus.Gauge
	Online   prometheus.Gauge
	Routed   *prometheus.CounterVec
	Dropped  *prometheus.CounterVec
	Kicked   prometheus.Counter
}

// NewRelay creates the relay collectors and registers them with reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livecall",
			Subsystem: "relay",
			Name:      "channels",
			Help:      "Open signaling channels.",
		}),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livecall",
			Subsystem: "relay",
			Name:      "online_users",
			Help:      "Channels that announced a user.",
		}),
		Routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livecall",
			Subsystem: "relay",
			Name:      "routed_total",
			Help:      "Events forwarded to their addressee.",
		}, []string{"event"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livecall",
			Subsystem: "relay",
			Name:      "dropped_total",
			Help:      "Frames that could not be delivered.",
		}, []string{"reason"}),
		Kicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livecall",
			Subsystem: "relay",
			Name:      "kicked_total",
			Help:      "Channels closed by the backpressure policy.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Channels, m.Online, m.Routed, m.Dropped, m.Kicked)
	}
	return m
}
