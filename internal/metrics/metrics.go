package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"equipshare-backend/internal/domain"
)

// Metrics holds the sharing workflow collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	overdue     prometheus.Gauge
	reconciled  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "equipshare",
			Name:      "transitions_total",
			Help:      "Lifecycle transition attempts by entity, action and outcome.",
		}, []string{"entity", "action", "outcome"}),
		overdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "equipshare",
			Name:      "overdue_transfers",
			Help:      "Delivered transfers past their scheduled return date at the last check.",
		}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "equipshare",
			Name:      "reconciled_total",
			Help:      "Repairs made by the reconciliation job.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.transitions, m.overdue, m.reconciled)
	return m
}

// ObserveTransition counts one attempt; outcome is derived from err.
func (m *Metrics) ObserveTransition(entity, action string, err error) {
	m.transitions.WithLabelValues(entity, action, Outcome(err)).Inc()
}

func (m *Metrics) SetOverdue(n int) {
	m.overdue.Set(float64(n))
}

func (m *Metrics) ObserveReconciled(kind string, n int) {
	m.reconciled.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Outcome names the error class of a transition attempt.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsValidation(err):
		return "validation"
	case domain.IsAuthorization(err):
		return "unauthorized"
	case domain.IsInvalidTransition(err):
		return "invalid_transition"
	case domain.IsConflict(err):
		return "conflict"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsStoreUnavailable(err):
		return "store_unavailable"
	}
	return "error"
}
