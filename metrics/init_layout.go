package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initLayoutMetrics() {
	r.LayoutKineticEnergy = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmap_layout_kinetic_energy",
			Help: "Mean kinetic energy per free node after the last layout tick",
		},
	)

	r.LayoutStable = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmap_layout_stable",
			Help: "Whether the layout is below the stability threshold",
		},
	)

	r.LayoutRecoveriesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowmap_layout_recoveries_total",
			Help: "Nodes reset to the canvas center after going non-finite",
		},
	)

	r.LayoutNodesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmap_nodes",
			Help: "Number of nodes in the current dataset",
		},
	)

	r.LayoutConnectionsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmap_connections",
			Help: "Number of renderable connections in the current dataset",
		},
	)
}
