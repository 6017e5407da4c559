package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementAppended("DECLARE", "Accepted")
	m.IncrementAppended("DECLARE", "Accepted")
	m.IncrementTriggerOutcome("REGISTER", "pending")
	m.ObserveTriggerLatency("REGISTER", 120*time.Millisecond)
	m.IncrementDuplicatesDetected()
	m.IncrementIndexFailure("kafka")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActionsAppended.WithLabelValues("DECLARE", "Accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TriggerOutcomes.WithLabelValues("REGISTER", "pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicatesDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexFailures.WithLabelValues("kafka")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TriggerLatency))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementAppended("DECLARE", "Accepted")
		m.ObserveTriggerLatency("REGISTER", time.Second)
		m.IncrementIdempotentReplay()
	})
}
