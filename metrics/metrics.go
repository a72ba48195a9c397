package metrics

import (
	"time"
)

// RecordTick records one orchestrator tick
func (r *Registry) RecordTick(duration time.Duration, progress float64, playing, clamped bool) {
	r.TicksTotal.Inc()
	r.TickDuration.Observe(duration.Seconds())
	r.MasterProgress.Set(progress)
	r.Playing.Set(boolGauge(playing))
	if clamped {
		r.DeltaClampedTotal.Inc()
	}
}

// RecordLayout updates the layout gauges after a layout tick
func (r *Registry) RecordLayout(kineticEnergy float64, stable bool, recovered int) {
	r.LayoutKineticEnergy.Set(kineticEnergy)
	r.LayoutStable.Set(boolGauge(stable))
	if recovered > 0 {
		r.LayoutRecoveriesTotal.Add(float64(recovered))
	}
}

// RecordDataset updates the topology gauges after a dataset load
func (r *Registry) RecordDataset(nodes, connections int, dropped map[string]int, pruned int) {
	r.LayoutNodesTotal.Set(float64(nodes))
	r.LayoutConnectionsTotal.Set(float64(connections))
	for reason, n := range dropped {
		r.ConnectionsDroppedTotal.WithLabelValues(reason).Add(float64(n))
	}
	if pruned > 0 {
		r.ControllersPrunedTotal.Add(float64(pruned))
	}
}

// RecordStageEnter counts a stage transition
func (r *Registry) RecordStageEnter(protocolType string) {
	r.StageTransitionsTotal.WithLabelValues(protocolType).Inc()
}

// RecordCompletion counts a timeline completion
func (r *Registry) RecordCompletion(finalState string) {
	r.CompletionsTotal.WithLabelValues(finalState).Inc()
}

// RecordCommand counts a control command received over the stream
func (r *Registry) RecordCommand(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.StreamCommandsTotal.WithLabelValues(op, status).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
