package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initClockMetrics() {
	r.TicksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowmap_ticks_total",
			Help: "Total number of orchestrator ticks",
		},
	)

	r.TickDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowmap_tick_duration_seconds",
			Help:    "Wall time spent inside one orchestrator tick",
			Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		},
	)

	r.DeltaClampedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "flowmap_delta_clamped_total",
			Help: "Ticks whose wall-clock delta exceeded the per-tick maximum",
		},
	)

	r.MasterProgress = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmap_master_progress_ratio",
			Help: "Master clock position as a fraction of the master duration",
		},
	)

	r.Playing = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowmap_playing",
			Help: "Whether playback is running (1) or paused (0)",
		},
	)
}
