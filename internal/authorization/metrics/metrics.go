package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the authorization engine. Safe on a nil receiver.
type Metrics struct {
	Checks          *prometheus.CounterVec
	EmergencyAccess prometheus.Counter
	CheckDuration   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcommons_authorization_checks_total",
			Help: "Authorization checks by outcome and reason",
		}, []string{"outcome", "reason"}),
		EmergencyAccess: promauto.NewCounter(prometheus.CounterOpts{
			Name: "healthcommons_emergency_access_total",
			Help: "Break-glass accesses granted without a consent",
		}),
		CheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthcommons_authorization_check_duration_seconds",
			Help:    "Duration of authorization checks including the access log write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncCheck(outcome, reason string) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) IncEmergency() {
	if m == nil {
		return
	}
	m.EmergencyAccess.Inc()
}

func (m *Metrics) ObserveCheckDuration(seconds float64) {
	if m == nil {
		return
	}
	m.CheckDuration.Observe(seconds)
}
