package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the event module. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ActionsAppended *prometheus.CounterVec

	// Trigger outcomes by action type and outcome (accepted, rejected, pending)
	TriggerOutcomes *prometheus.CounterVec
	TriggerLatency  *prometheus.HistogramVec

	DuplicatesDetected prometheus.Counter
	DuplicateFailures  prometheus.Counter

	IndexFailures    *prometheus.CounterVec
	IdempotentReplay prometheus.Counter
}

// New registers the event metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActionsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_actions_appended_total",
			Help: "Actions appended to the ledger by type and status",
		}, []string{"type", "status"}),

		TriggerOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_trigger_outcomes_total",
			Help: "Confirmation trigger outcomes by action type and outcome",
		}, []string{"type", "outcome"}),

		TriggerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registrar_trigger_duration_seconds",
			Help:    "Duration of confirmation trigger calls",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"type"}),

		DuplicatesDetected: f.NewCounter(prometheus.CounterOpts{
			Name: "registrar_duplicates_detected_total",
			Help: "Declarations flagged as potential duplicates",
		}),

		DuplicateFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "registrar_duplicate_evaluation_failures_total",
			Help: "Duplicate evaluations that failed and were skipped",
		}),

		IndexFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registrar_index_failures_total",
			Help: "Failed index publications by sink",
		}, []string{"sink"}),

		IdempotentReplay: f.NewCounter(prometheus.CounterOpts{
			Name: "registrar_idempotent_replays_total",
			Help: "Requests answered from the idempotency store",
		}),
	}
}

func (m *Metrics) IncrementAppended(actionType, status string) {
	if m != nil {
		m.ActionsAppended.WithLabelValues(actionType, status).Inc()
	}
}

func (m *Metrics) IncrementTriggerOutcome(actionType, outcome string) {
	if m != nil {
		m.TriggerOutcomes.WithLabelValues(actionType, outcome).Inc()
	}
}

func (m *Metrics) ObserveTriggerLatency(actionType string, d time.Duration) {
	if m != nil {
		m.TriggerLatency.WithLabelValues(actionType).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementDuplicatesDetected() {
	if m != nil {
		m.DuplicatesDetected.Inc()
	}
}

func (m *Metrics) IncrementDuplicateFailures() {
	if m != nil {
		m.DuplicateFailures.Inc()
	}
}

func (m *Metrics) IncrementIndexFailure(sink string) {
	if m != nil {
		m.IndexFailures.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) IncrementIdempotentReplay() {
	if m != nil {
		m.IdempotentReplay.Inc()
	}
}
