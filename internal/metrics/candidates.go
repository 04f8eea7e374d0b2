package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	candidateSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valentine",
			Subsystem: "candidates",
			Name:      "submissions_total",
			Help:      "Public form submissions by outcome.",
		},
		[]string{"outcome"},
	)

	candidateDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valentine",
			Subsystem: "candidates",
			Name:      "deletions_total",
			Help:      "Admin deletions by whether a record was removed.",
		},
		[]string{"deleted"},
	)

	exportedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "valentine",
			Subsystem: "candidates",
			Name:      "exported_rows_total",
			Help:      "Rows written by full CSV exports.",
		},
	)
)

// Submission outcomes.
const (
	OutcomeCreated     = "created"
	OutcomeInvalid     = "invalid"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// ObserveSubmission counts one POST /api/candidates.
func ObserveSubmission(outcome string) {
	candidateSubmissions.WithLabelValues(outcome).Inc()
}

// ObserveDeletion counts one DELETE /api/candidates/:id.
func ObserveDeletion(deleted bool) {
	label := "false"
	if deleted {
		label = "true"
	}
	candidateDeletions.WithLabelValues(label).Inc()
}

// ObserveExportedRows adds n rows to the export counter.
func ObserveExportedRows(n int) {
	exportedRows.Add(float64(n))
}
