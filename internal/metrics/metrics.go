// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus collectors for research tasks,
// search backends and language model calls. Collectors live on a
// per-process registry created by New.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deep_research"

// Metrics implements search.Recorder, llm.Recorder and the orchestrator's
// task recorder.
type Metrics struct {
	registry *prometheus.Registry

	tasksSubmitted  *prometheus.CounterVec
	tasksFinished   *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	tasksRunning    prometheus.Gauge
	backendSearches *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	llmCalls        *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tasksSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Research tasks accepted by the orchestrator",
		}, []string{"strategy"}),
		tasksFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Research tasks that reached a terminal status",
		}, []string{"strategy", "status"}), // status: completed, failed, cancelled
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time from a worker starting a task to its terminal status",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"strategy"}),
		tasksRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Research tasks currently held by a worker",
		}),
		backendSearches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_searches_total",
			Help:      "Search backend invocations",
		}, []string{"backend", "outcome"}), // outcome: ok, error, timeout
		backendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_search_seconds",
			Help:      "Search backend call latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"backend"}),
		llmCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Language model calls",
		}, []string{"op", "outcome"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_seconds",
			Help:      "Language model call latency",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"op"}),
	}
}

// ObserveBackend records one backend search.
func (m *Metrics) ObserveBackend(backend, outcome string, elapsed time.Duration) {
	m.backendSearches.WithLabelValues(backend, outcome).Inc()
	m.backendLatency.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// ObserveLLM records one model call.
func (m *Metrics) ObserveLLM(op, outcome string, elapsed time.Duration) {
	m.llmCalls.WithLabelValues(op, outcome).Inc()
	m.llmLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// TaskSubmitted counts an accepted task.
func (m *Metrics) TaskSubmitted(strategy string) {
	m.tasksSubmitted.WithLabelValues(strategy).Inc()
}

// TaskStarted marks a task as held by a worker.
func (m *Metrics) TaskStarted(string) {
	m.tasksRunning.Inc()
}

// TaskFinished records a terminal status. ran is false for tasks cancelled
// before a worker picked them up.
func (m *Metrics) TaskFinished(strategy, status string, elapsed time.Duration, ran bool) {
	m.tasksFinished.WithLabelValues(strategy, status).Inc()
	if ran {
		m.tasksRunning.Dec()
		m.taskDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
