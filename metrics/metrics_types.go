// Package metrics exposes the orchestrator's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// Clock Metrics
	TicksTotal        prometheus.Counter
	TickDuration      prometheus.Histogram
	DeltaClampedTotal prometheus.Counter
	MasterProgress    prometheus.Gauge
	Playing           prometheus.Gauge

	// Layout Metrics
	LayoutKineticEnergy    prometheus.Gauge
	LayoutStable           prometheus.Gauge
	LayoutRecoveriesTotal  prometheus.Counter
	LayoutNodesTotal       prometheus.Gauge
	LayoutConnectionsTotal prometheus.Gauge

	// Timeline Metrics
	ConnectionsDroppedTotal *prometheus.CounterVec
	ControllersActive       prometheus.Gauge
	ControllersPrunedTotal  prometheus.Counter
	StageTransitionsTotal   *prometheus.CounterVec
	CompletionsTotal        *prometheus.CounterVec

	// Particle Metrics
	ParticlesActive prometheus.Gauge

	// Stream Metrics
	StreamClients       prometheus.Gauge
	StreamFramesTotal   prometheus.Counter
	StreamDroppedTotal  prometheus.Counter
	StreamCommandsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initClockMetrics()
	r.initLayoutMetrics()
	r.initTimelineMetrics()
	r.initStreamMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
