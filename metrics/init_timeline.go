package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTimelineMetrics() {
	r.ConnectionsDroppedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmap_connections_dropped_total",
			Help: "Connections left out of the diagram",
		},
		[]string{"reason"},
	)

	r.ControllersActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmap_controllers_active",
			Help: "Timeline controllers currently alive",
		},
	)

	r.ControllersPrunedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowmap_controllers_pruned_total",
			Help: "Timeline controllers released after a dataset change",
		},
	)

	r.StageTransitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmap_stage_transitions_total",
			Help: "Stage-enter notifications by protocol type",
		},
		[]string{"protocol_type"},
	)

	r.CompletionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowmap_completions_total",
			Help: "Timeline completions by final state",
		},
		[]string{"final_state"},
	)

	r.ParticlesActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmap_particles_active",
			Help: "Packet particles in flight in the last frame",
		},
	)
}
