package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts consent lifecycle changes. Safe on a nil receiver.
type Metrics struct {
	Changes       *prometheus.CounterVec
	ActiveByScope *prometheus.GaugeVec
}

func New() *Metrics {
	return &Metrics{
		Changes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "healthcommons_consent_changes_total",
			Help: "Consent lifecycle changes by action (granted, revoked, extended, amended)",
		}, []string{"action"}),
		ActiveByScope: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "healthcommons_consents_active",
			Help: "Consents currently active, by scope",
		}, []string{"scope"}),
	}
}

func (m *Metrics) IncChange(action string) {
	if m == nil {
		return
	}
	m.Changes.WithLabelValues(action).Inc()
}

func (m *Metrics) IncActive(scope string) {
	if m == nil {
		return
	}
	m.ActiveByScope.WithLabelValues(scope).Inc()
}

func (m *Metrics) DecActive(scope string) {
	if m == nil {
		return
	}
	m.ActiveByScope.WithLabelValues(scope).Dec()
}
