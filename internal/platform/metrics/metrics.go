// Package metrics exposes Prometheus instruments for the ledger core. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ledger_core"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeReplay  = "replay"
	OutcomeFailure = "failure"
	OutcomeAllow   = "allow"
	OutcomeDeny    = "deny"
)

type Metrics struct {
	ledgerOperations *prometheus.CounterVec
	ledgerDuration   *prometheus.HistogramVec
	auditAppends     prometheus.Counter
	chainValid       prometheus.Gauge
	policyDecisions  *prometheus.CounterVec
	outboxPublishes  *prometheus.CounterVec
}

// New registers the ledger core metrics on reg. A nil registerer yields a no-op instance.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		ledgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger postings and reversals by outcome.",
		}, []string{"operation", "outcome"}),
		ledgerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Duration of ledger transactions in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		auditAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_appends_total",
			Help:      "Audit events appended to the hash chain.",
		}),
		chainValid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_chain_valid",
			Help:      "1 when the last audit chain verification succeeded, 0 otherwise.",
		}),
		policyDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Policy engine decisions by action and outcome.",
		}, []string{"action", "outcome"}),
		outboxPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publishes_total",
			Help:      "Outbox events published to the broker by event type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.ledgerOperations, m.ledgerDuration, m.auditAppends, m.chainValid, m.policyDecisions, m.outboxPublishes)
	return m
}

func (m *Metrics) ObserveLedgerOperation(operation, outcome string, duration time.Duration) {
	if m == nil || m.ledgerOperations == nil {
		return
	}
	m.ledgerOperations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	m.ledgerDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func (m *Metrics) IncAuditAppend() {
	if m == nil || m.auditAppends == nil {
		return
	}
	m.auditAppends.Inc()
}

func (m *Metrics) SetChainValid(valid bool) {
	if m == nil || m.chainValid == nil {
		return
	}
	if valid {
		m.chainValid.Set(1)
		return
	}
	m.chainValid.Set(0)
}

func (m *Metrics) IncPolicyDecision(action string, allowed bool) {
	if m == nil || m.policyDecisions == nil {
		return
	}
	outcome := OutcomeDeny
	if allowed {
		outcome = OutcomeAllow
	}
	m.policyDecisions.WithLabelValues(normalizeLabel(action), outcome).Inc()
}

func (m *Metrics) IncOutboxPublish(eventType string, success bool) {
	if m == nil || m.outboxPublishes == nil {
		return
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	m.outboxPublishes.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
