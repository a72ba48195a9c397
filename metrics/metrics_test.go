package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return m.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return m.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.TicksTotal == nil || r.LayoutStable == nil || r.CompletionsTotal == nil || r.StreamClients == nil {
		t.Fatal("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordTick(t *testing.T) {
	r := NewRegistry()
	r.RecordTick(time.Millisecond, 0.25, true, false)
	r.RecordTick(time.Millisecond, 0.5, false, true)

	if got := counterValue(t, r.TicksTotal); got != 2 {
		t.Errorf("ticks = %v, want 2", got)
	}
	if got := counterValue(t, r.DeltaClampedTotal); got != 1 {
		t.Errorf("clamped = %v, want 1", got)
	}
	if got := gaugeValue(t, r.MasterProgress); got != 0.5 {
		t.Errorf("progress = %v, want 0.5", got)
	}
	if got := gaugeValue(t, r.Playing); got != 0 {
		t.Errorf("playing = %v, want 0", got)
	}
}

func TestRecordLayoutAndDataset(t *testing.T) {
	r := NewRegistry()
	r.RecordLayout(0.5, true, 3)
	r.RecordLayout(0.1, true, 0)
	if got := counterValue(t, r.LayoutRecoveriesTotal); got != 3 {
		t.Errorf("recoveries = %v, want 3", got)
	}
	if got := gaugeValue(t, r.LayoutStable); got != 1 {
		t.Errorf("stable = %v, want 1", got)
	}

	r.RecordDataset(4, 5, map[string]int{"unparsable": 2}, 1)
	dropped, err := r.ConnectionsDroppedTotal.GetMetricWithLabelValues("unparsable")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if got := counterValue(t, dropped); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
	if got := gaugeValue(t, r.LayoutNodesTotal); got != 4 {
		t.Errorf("nodes = %v, want 4", got)
	}
}

func TestRecordCommand(t *testing.T) {
	r := NewRegistry()
	r.RecordCommand("seek", nil)
	r.RecordCommand("seek", errors.New("bad"))
	r.RecordCommand("seek", nil)

	ok, _ := r.StreamCommandsTotal.GetMetricWithLabelValues("seek", "ok")
	if got := counterValue(t, ok); got != 2 {
		t.Errorf("ok = %v, want 2", got)
	}
}

func TestGatherNames(t *testing.T) {
	r := NewRegistry()
	r.RecordStageEnter("tcp-handshake")
	r.RecordCompletion("established")

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "flowmap_") {
			t.Errorf("metric %q lacks the flowmap_ prefix", mf.GetName())
		}
	}
}
