// Package metrics exposes Prometheus instrumentation for the audit pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_files_processed_total",
			Help: "Total number of files consumed from the ingestion queue",
		},
		[]string{"format", "outcome"},
	)

	DocumentsAudited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_documents_audited_total",
			Help: "Total number of documents audited, by final status",
		},
		[]string{"status"},
	)

	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_findings_total",
			Help: "Total rule findings emitted, by code",
		},
		[]string{"code"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audit_batch_duration_seconds",
			Help:    "Wall time of a full pipeline batch",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
		[]string{"stage"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_batch_files",
			Help:    "Number of files per batch, including archive members",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	ReconciliationMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_reconciliation_results_total",
			Help: "Reconciliation outcomes per run",
		},
		[]string{"result"},
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_jobs_active",
			Help: "Number of audit jobs currently running",
		},
	)
)

// ObserveStage records one stage duration.
func ObserveStage(stage string, start time.Time) {
	BatchDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
