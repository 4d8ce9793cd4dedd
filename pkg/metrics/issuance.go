package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "epiguard"

// IssuanceMetrics counts issuance core outcomes, transaction retries and
// post-commit side effects.
type IssuanceMetrics struct {
	outcomes    *prometheus.CounterVec
	txRetries   *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
}

// NewIssuanceMetrics registers the issuance metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewIssuanceMetrics(reg prometheus.Registerer) *IssuanceMetrics {
	if reg == nil {
		return &IssuanceMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "issuance_operations_total",
		Help:      "Issuance operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	txRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "issuance_tx_retries_total",
		Help:      "Transactions re-run after a write conflict.",
	}, []string{"operation"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "issuance_side_effects_total",
		Help:      "Post-commit side effects by name and result.",
	}, []string{"effect", "result"})
	reg.MustRegister(outcomes, txRetries, sideEffects)
	return &IssuanceMetrics{
		outcomes:    outcomes,
		txRetries:   txRetries,
		sideEffects: sideEffects,
	}
}

// ObserveOutcome counts one finished operation; outcome is "ok" or an error reason.
func (m *IssuanceMetrics) ObserveOutcome(operation, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(jobLabel(operation), jobLabel(outcome)).Inc()
}

func (m *IssuanceMetrics) IncTxRetry(operation string) {
	if m == nil || m.txRetries == nil {
		return
	}
	m.txRetries.WithLabelValues(jobLabel(operation)).Inc()
}

func (m *IssuanceMetrics) ObserveSideEffect(effect string, err error) {
	if m == nil || m.sideEffects == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sideEffects.WithLabelValues(jobLabel(effect), result).Inc()
}
