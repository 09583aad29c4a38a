package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks executed and rejected queries. Safe on a nil receiver.
type Metrics struct {
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Queries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcommons_queries_total",
			Help: "Differentially-private queries by type, mechanism and outcome",
		}, []string{"type", "mechanism", "outcome"}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthcommons_query_duration_seconds",
			Help:    "End-to-end query execution time including the budget debit",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}
}

func (m *Metrics) IncQuery(queryType, mechanism, outcome string) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(queryType, mechanism, outcome).Inc()
}

func (m *Metrics) ObserveDuration(queryType string, seconds float64) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(queryType).Observe(seconds)
}
