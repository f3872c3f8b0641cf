package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInit(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := Init("test", "roc")

	if m == nil {
		t.Fatal("Init returned nil")
	}
	if m.JobsTotal == nil {
		t.Error("JobsTotal should not be nil")
	}
	if m.JobDuration == nil {
		t.Error("JobDuration should not be nil")
	}
	if m.IterationsTotal == nil {
		t.Error("IterationsTotal should not be nil")
	}
}

func TestGet(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	defaultMetrics = nil

	m := Get()
	if m == nil {
		t.Fatal("Get() should not return nil")
	}

	m2 := Get()
	if m2 != m {
		t.Error("Get() should return the same instance across calls")
	}
}

func TestRecordJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := Init("test", "jobs")

	m.RecordJob("completed", "maximize_efficiency", 1.25, 17, -0.82)
	m.RecordJob("failed", "minimize_pressure_drop", 0.5, 3, 0)

	var out dto.Metric
	if err := m.MemoryUsageBytes.Write(&out); err != nil {
		t.Fatalf("failed to read memory_usage_bytes: %v", err)
	}
	if out.GetGauge().GetValue() <= 0 {
		t.Error("memory_usage_bytes should be sampled above zero after RecordJob")
	}
}

func TestSetServiceInfo(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := Init("test", "info")
	m.SetServiceInfo("1.2.3")
}

func TestHandlerIsNotNil(t *testing.T) {
	if Handler() == nil {
		t.Error("Handler() should return a non-nil http.Handler")
	}
}
