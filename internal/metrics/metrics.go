// Package metrics exposes Prometheus instrumentation for the
// regenerator optimization core: job counts and durations, iteration
// counts, objective values, and process-level gauges.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide instrumentation container.
type Metrics struct {
	JobsTotal        *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	IterationsTotal  *prometheus.HistogramVec
	ObjectiveValue   *prometheus.GaugeVec
	MemoryUsageBytes prometheus.Gauge
	Goroutines       prometheus.Gauge
	ServiceInfo      *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// Init constructs and registers the metric collectors under the given
// namespace/subsystem.
func Init(namespace, subsystem string) *Metrics {
	m := &Metrics{
		JobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_total",
				Help:      "Total number of optimization jobs by terminal status",
			},
			[]string{"status", "objective"},
		),
		JobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "job_duration_seconds",
				Help:      "Duration of optimization jobs",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"objective"},
		),
		IterationsTotal: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "iterations_total",
				Help:      "Number of objective evaluations per job",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"objective"},
		),
		ObjectiveValue: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "final_objective_value",
				Help:      "Raw final objective value of the last completed job",
			},
			[]string{"objective"},
		),
		MemoryUsageBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current process memory usage",
			},
		),
		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),
		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service build information",
			},
			[]string{"version"},
		),
	}
	defaultMetrics = m
	return m
}

// Get returns the process-wide Metrics, initializing a default instance
// if Init has not been called yet.
func Get() *Metrics {
	if defaultMetrics == nil {
		return Init("roc", "")
	}
	return defaultMetrics
}

// RecordJob records the terminal outcome of one job and resamples the
// process-level gauges, since a job's completion is the natural point
// at which to refresh them without running a background ticker.
func (m *Metrics) RecordJob(status, objective string, duration float64, iterations int, finalObjective float64) {
	m.JobsTotal.WithLabelValues(status, objective).Inc()
	m.JobDuration.WithLabelValues(objective).Observe(duration)
	m.IterationsTotal.WithLabelValues(objective).Observe(float64(iterations))
	if status == "completed" {
		m.ObjectiveValue.WithLabelValues(objective).Set(finalObjective)
	}
	m.sampleProcessStats()
}

// sampleProcessStats refreshes the memory and goroutine gauges from the
// Go runtime.
func (m *Metrics) sampleProcessStats() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.MemoryUsageBytes.Set(float64(mem.Alloc))
	m.Goroutines.Set(float64(runtime.NumGoroutine()))
}

// SetServiceInfo records a single build-info gauge sample.
func (m *Metrics) SetServiceInfo(version string) {
	m.ServiceInfo.WithLabelValues(version).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
