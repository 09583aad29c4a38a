package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the privacy budget ledger.
// All methods are safe on a nil receiver.
type Metrics struct {
	Debits        *prometheus.CounterVec
	EpsilonSpent  prometheus.Histogram
	Renewals      prometheus.Counter
	DebitDuration prometheus.Histogram
}

// New creates and registers the privacy budget metrics.
func New() *Metrics {
	return &Metrics{
		Debits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcommons_budget_debits_total",
			Help: "Budget debit attempts by outcome (debited, insufficient, exhausted, refunded, error)",
		}, []string{"outcome"}),
		EpsilonSpent: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthcommons_budget_epsilon_spent",
			Help:    "Epsilon debited per successful query or contribution",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		Renewals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthcommons_budget_renewals_total",
			Help: "Ledger entries renewed at the end of their period",
		}),
		DebitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthcommons_budget_debit_duration_seconds",
			Help:    "Duration of the serialized debit section",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncDebit(outcome string) {
	if m == nil {
		return
	}
	m.Debits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEpsilon(eps float64) {
	if m == nil {
		return
	}
	m.EpsilonSpent.Observe(eps)
}

func (m *Metrics) IncRenewal() {
	if m == nil {
		return
	}
	m.Renewals.Inc()
}

func (m *Metrics) ObserveDebitDuration(seconds float64) {
	if m == nil {
		return
	}
	m.DebitDuration.Observe(seconds)
}
