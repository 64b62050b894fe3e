// Package metrics provides Prometheus metrics for the order sync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "order_sync"

// Outcome label values
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	// CyclesTotal tracks completed cycles by status
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of sync cycles by status",
		},
		[]string{"status"},
	)

	// CycleDuration tracks cycle duration in seconds
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Duration of sync cycles in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	// LastSuccess is the unix time of the last successful cycle
	LastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync cycle",
		},
	)

	// RowsFetched tracks warehouse rows read per cycle
	RowsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warehouse",
			Name:      "rows_fetched_total",
			Help:      "Total number of warehouse order rows fetched",
		},
	)

	// RecordsWritten tracks CRM writes by object type and outcome
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crm",
			Name:      "records_total",
			Help:      "Total number of CRM record writes by object type and outcome",
		},
		[]string{"object", "outcome"},
	)

	// Retries tracks retried remote calls by operation
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "retries_total",
			Help:      "Total number of retried remote calls",
		},
		[]string{"operation"},
	)

	// SkippedTotal tracks orders and items skipped by reason
	SkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "skipped_total",
			Help:      "Total number of orders and items skipped by reason",
		},
		[]string{"kind", "reason"},
	)
)

// RecordCycle records a finished cycle
func RecordCycle(status string, durationSeconds float64) {
	CyclesTotal.WithLabelValues(status).Inc()
	CycleDuration.Observe(durationSeconds)
}

// RecordWrite records a CRM create or update outcome
func RecordWrite(object, outcome string) {
	RecordsWritten.WithLabelValues(object, outcome).Inc()
}

// RecordRetry records one retried remote call
func RecordRetry(operation string) {
	Retries.WithLabelValues(operation).Inc()
}

// RecordSkip records a skipped order or item
func RecordSkip(kind, reason string) {
	SkippedTotal.WithLabelValues(kind, reason).Inc()
}
