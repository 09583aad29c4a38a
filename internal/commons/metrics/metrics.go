package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks pool lifecycle and contribution volume. Safe on a nil receiver.
type Metrics struct {
	PoolStatusChanges *prometheus.CounterVec
	Contributions     *prometheus.CounterVec
	LocalEpsilon      prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		PoolStatusChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcommons_pool_status_changes_total",
			Help: "Pool creations and status transitions by resulting status",
		}, []string{"status"}),
		Contributions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcommons_contributions_total",
			Help: "Contributions by data category and outcome",
		}, []string{"category", "outcome"}),
		LocalEpsilon: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthcommons_contribution_local_epsilon",
			Help:    "Local-DP epsilon spent per contribution",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
	}
}

func (m *Metrics) IncPoolStatus(status string) {
	if m == nil {
		return
	}
	m.PoolStatusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) IncContribution(category, outcome string) {
	if m == nil {
		return
	}
	m.Contributions.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) ObserveLocalEpsilon(eps float64) {
	if m == nil {
		return
	}
	m.LocalEpsilon.Observe(eps)
}
