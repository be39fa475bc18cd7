package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the members store and the CSV import
// pipeline. A nil *Metrics is valid and records nothing, so tests can pass
// nil instead of registering collectors.
type Metrics struct {
	// Store mutations by operation (insert, update, delete, delete_all)
	StoreMutations *prometheus.CounterVec

	// Import row outcomes (inserted, updated, skipped_stale, skipped_empty,
	// skipped_invalid)
	ImportRows *prometheus.CounterVec

	// Import run outcomes (done, failed)
	ImportRuns *prometheus.CounterVec

	// Duration of a full import run
	ImportDuration prometheus.Histogram
}

// New creates a Metrics instance with all collectors registered on the
// default registry.
func New() *Metrics {
	return &Metrics{
		StoreMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ffckmembers_store_mutations_total",
			Help: "Total successful store mutations by operation",
		}, []string{"operation"}),

		ImportRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ffckmembers_import_rows_total",
			Help: "Total import rows processed by outcome",
		}, []string{"outcome"}),

		ImportRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ffckmembers_import_runs_total",
			Help: "Total import runs by final status",
		}, []string{"status"}),

		ImportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ffckmembers_import_duration_seconds",
			Help:    "Duration of a full import run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
	}
}

// CountMutation records a successful store mutation.
func (m *Metrics) CountMutation(operation string) {
	if m != nil {
		m.StoreMutations.WithLabelValues(operation).Inc()
	}
}

// CountImportRow records the outcome of one import row.
func (m *Metrics) CountImportRow(outcome string) {
	if m != nil {
		m.ImportRows.WithLabelValues(outcome).Inc()
	}
}

// CountImportRun records the final status of an import run.
func (m *Metrics) CountImportRun(status string) {
	if m != nil {
		m.ImportRuns.WithLabelValues(status).Inc()
	}
}

// ObserveImportDuration records the duration of a full import run.
func (m *Metrics) ObserveImportDuration(d time.Duration) {
	if m != nil {
		m.ImportDuration.Observe(d.Seconds())
	}
}
