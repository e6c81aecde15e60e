// Package metrics exposes pipeline counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	records       *prometheus.CounterVec
	queryAttempts *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghstats_runs_total",
			Help: "Pipeline runs by terminal status.",
		}, []string{"status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghstats_records_total",
			Help: "Repository stat records by upload outcome.",
		}, []string{"outcome"}),
		queryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghstats_query_attempts_total",
			Help: "GraphQL batch executions by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ghstats_run_duration_seconds",
			Help:    "Wall time of a pipeline run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
	m.registry.MustRegister(m.runs, m.records, m.queryAttempts, m.runDuration)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordsUploaded(created, failed int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues("created").Add(float64(created))
	m.records.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) QueryAttempt(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.queryAttempts.WithLabelValues(result).Inc()
}
