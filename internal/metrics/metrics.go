// Package metrics holds the Prometheus instruments for the extraction pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Attempts by method and outcome (ok, invalid, error, timeout)
	Attempts *prometheus.CounterVec

	// Method latency including retries
	MethodLatency *prometheus.HistogramVec

	// Runs by final document status
	Runs *prometheus.CounterVec

	// Overall confidence of consolidated decisions
	DecisionConfidence prometheus.Histogram

	// Decisions flagged for human review
	HumanReview prometheus.Counter
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "creditreport_extraction_attempts_total",
			Help: "Extraction attempts by method and outcome",
		}, []string{"method", "outcome"}),

		MethodLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "creditreport_extraction_method_duration_seconds",
			Help:    "Duration of one method run against one document, retries included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method"}),

		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "creditreport_extraction_runs_total",
			Help: "Extraction runs by final document status",
		}, []string{"status"}),

		DecisionConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "creditreport_decision_confidence",
			Help:    "Overall confidence of consolidation decisions",
			Buckets: []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99},
		}),

		HumanReview: f.NewCounter(prometheus.CounterOpts{
			Name: "creditreport_decisions_human_review_total",
			Help: "Consolidation decisions that require human review",
		}),
	}
}

func (m *Metrics) ObserveAttempt(method, outcome string, d time.Duration) {
	if m != nil {
		m.Attempts.WithLabelValues(method, outcome).Inc()
		m.MethodLatency.WithLabelValues(method).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRun(status string) {
	if m != nil {
		m.Runs.WithLabelValues(status).Inc()
	}
}

// ObserveDecision records a decision's confidence and review flag.
func (m *Metrics) ObserveDecision(confidence float64, review bool) {
	if m != nil {
		m.DecisionConfidence.Observe(confidence)
		if review {
			m.HumanReview.Inc()
		}
	}
}
