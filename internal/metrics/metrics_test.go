package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt("local", "ok", time.Second)
		m.IncrementRun("completed")
		m.ObserveDecision(0.5, true)
	})
}

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAttempt("local", "ok", 10*time.Millisecond)
	m.ObserveAttempt("local", "ok", 20*time.Millisecond)
	m.ObserveAttempt("vision", "timeout", time.Second)
	m.IncrementRun("failed")
	m.ObserveDecision(0.65, true)
	m.ObserveDecision(0.95, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Attempts.WithLabelValues("local", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("vision", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HumanReview))
}
