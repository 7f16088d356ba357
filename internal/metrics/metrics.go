// Package metrics registers the Prometheus instruments for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	SyncRuns       *prometheus.CounterVec
	RecordsMerged  *prometheus.CounterVec
	SourceBlocked  *prometheus.CounterVec
	TasksProcessed *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "candidatewatch_sync_runs_total",
			Help: "Sync runs by source and terminal status",
		}, []string{"source", "status"}),
		RecordsMerged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "candidatewatch_records_merged_total",
			Help: "Canonical record writes by source and outcome",
		}, []string{"source", "outcome"}),
		SourceBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "candidatewatch_source_blocked_total",
			Help: "Fetches actively rejected by the upstream source",
		}, []string{"source"}),
		TasksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "candidatewatch_enrichment_tasks_total",
			Help: "Enrichment tasks by drain outcome",
		}, []string{"outcome"}),
		SyncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "candidatewatch_sync_duration_seconds",
			Help:    "Wall-clock duration of sync runs",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"source"}),
	}
}

// ObserveRun records the terminal state of one sync run.
func (m *Metrics) ObserveRun(source, status string, seconds float64) {
	m.SyncRuns.WithLabelValues(source, status).Inc()
	m.SyncDuration.WithLabelValues(source).Observe(seconds)
}

// ObserveMerge records one batch worth of canonical writes.
func (m *Metrics) ObserveMerge(source string, created, updated, skipped int) {
	m.RecordsMerged.WithLabelValues(source, "created").Add(float64(created))
	m.RecordsMerged.WithLabelValues(source, "updated").Add(float64(updated))
	m.RecordsMerged.WithLabelValues(source, "skipped").Add(float64(skipped))
}
