package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStreamMetrics() {
	r.StreamClients = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmap_stream_clients",
			Help: "Connected WebSocket clients",
		},
	)

	r.StreamFramesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowmap_stream_frames_total",
			Help: "Frames broadcast to WebSocket clients",
		},
	)

	r.StreamDroppedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowmap_stream_dropped_total",
			Help: "Frames skipped for clients whose send buffer was full",
		},
	)

	r.StreamCommandsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmap_stream_commands_total",
			Help: "Control commands received from WebSocket clients",
		},
		[]string{"op", "status"},
	)
}
