// Package metrics holds the Prometheus registry for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry carries every metric the pipeline exports.
type Registry struct {
	registry *prometheus.Registry

	StepDuration   *prometheus.HistogramVec
	PipelineSteps  *prometheus.CounterVec
	PipelineErrors *prometheus.CounterVec

	ProviderRequests *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec

	QueueDepth   prometheus.Gauge
	QueueDropped prometheus.Counter

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	SignalsAdmitted  prometheus.Counter
	SignalsCompleted *prometheus.CounterVec
}

// New builds and registers the full metric set on a private registry.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalrun_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),
		PipelineSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_pipeline_steps_total",
				Help: "Total pipeline step executions by step and result",
			},
			[]string{"step", "result"},
		),
		PipelineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_pipeline_errors_total",
				Help: "Total per-message pipeline errors by step",
			},
			[]string{"step"},
		),
		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_provider_requests_total",
				Help: "Total price provider requests by provider",
			},
			[]string{"provider"},
		),
		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_provider_errors_total",
				Help: "Total price provider failures by provider and kind",
			},
			[]string{"provider", "kind"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalrun_queue_depth",
				Help: "Current priority queue depth",
			},
		),
		QueueDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "signalrun_queue_dropped_total",
				Help: "Messages dropped by the full queue",
			},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_cache_hits_total",
				Help: "Cache hits by cache type",
			},
			[]string{"cache_type"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_cache_misses_total",
				Help: "Cache misses by cache type",
			},
			[]string{"cache_type"},
		),
		SignalsAdmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "signalrun_signals_admitted_total",
				Help: "Signals admitted into active tracking",
			},
		),
		SignalsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalrun_signals_completed_total",
				Help: "Signals completed by reason",
			},
			[]string{"reason"},
		),
	}

	r.registry.MustRegister(
		r.StepDuration, r.PipelineSteps, r.PipelineErrors,
		r.ProviderRequests, r.ProviderErrors,
		r.QueueDepth, r.QueueDropped,
		r.CacheHits, r.CacheMisses,
		r.SignalsAdmitted, r.SignalsCompleted,
	)
	return r
}

// Prometheus exposes the underlying registry for the /metrics handler.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// ObserveStep records one pipeline step execution.
func (r *Registry) ObserveStep(step string, took time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
		r.PipelineErrors.WithLabelValues(step).Inc()
	}
	r.StepDuration.WithLabelValues(step, result).Observe(took.Seconds())
	r.PipelineSteps.WithLabelValues(step, result).Inc()
}
