package correction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Grading run outcomes recorded in gradebook_grading_runs_total.
const (
	OutcomeOK        = "ok"
	OutcomeFallback  = "fallback"
	OutcomeFailed    = "provider_error"
	OutcomeMalformed = "malformed"
)

// Metrics holds the grading run collectors.
type Metrics struct {
	runs       *prometheus.CounterVec
	copies     prometheus.Counter
	copyErrors prometheus.Counter
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the grading collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradebook",
			Name:      "grading_runs_total",
			Help:      "Grading runs by provider source and outcome.",
		}, []string{"source", "outcome"}),
		copies: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gradebook",
			Name:      "graded_copies_total",
			Help:      "Copies graded across all runs.",
		}),
		copyErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gradebook",
			Name:      "copy_errors_total",
			Help:      "Raw copy entries that could not be graded.",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gradebook",
			Name:      "grading_duration_seconds",
			Help:      "Wall time of grading runs, provider call included.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"source"}),
	}
}

func (m *Metrics) observeRun(source, outcome string, seconds float64) {
	m.runs.WithLabelValues(source, outcome).Inc()
	m.duration.WithLabelValues(source).Observe(seconds)
}
