// Package metrics exposes curve's per-error-kind counters, outbox pending
// gauge, and circuit-breaker state gauge via prometheus/client_golang,
// generalizing the bff-service/auth-service HTTP middleware's
// promauto.NewCounterVec/NewGaugeVec pattern (middleware/metrics.go) from
// request metrics to the library's own error taxonomy (§7).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/baechuer/curve/breaker"
)

// Metrics implements broker.Metrics and outbox's own counters, all backed
// by a single prometheus registry (the default one unless overridden by
// the embedding application's own registerer).
type Metrics struct {
	errorsTotal     *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
	outboxPending   prometheus.Gauge
	outboxPublished prometheus.Counter
}

// New registers curve's metrics against reg. Pass prometheus.DefaultRegisterer
// to expose them on the embedding application's existing /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curve",
			Name:      "errors_total",
			Help:      "Count of curve pipeline errors by kind (serialization, broker_terminal, dlq_failure, backup_failure, ...).",
		}, []string{"kind"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "curve",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state: 1 for the active state, 0 otherwise, one series per state label.",
		}, []string{"state"}),
		outboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "curve",
			Name:      "outbox_pending",
			Help:      "Most recently observed count of PENDING outbox rows.",
		}),
		outboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "curve",
			Name:      "outbox_published_total",
			Help:      "Total outbox rows marked PUBLISHED.",
		}),
	}
}

// IncError implements broker.Metrics.
func (m *Metrics) IncError(kind string) {
	m.errorsTotal.WithLabelValues(kind).Inc()
}

// ObserveCircuitState implements broker.Metrics, lighting up the gauge
// series for the current state and zeroing the other two.
func (m *Metrics) ObserveCircuitState(state breaker.State) {
	for _, s := range []breaker.State{breaker.Closed, breaker.Open, breaker.HalfOpen} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.circuitState.WithLabelValues(string(s)).Set(v)
	}
}

// SetOutboxPending records the outbox store's latest CountPending result.
func (m *Metrics) SetOutboxPending(n int) {
	m.outboxPending.Set(float64(n))
}

// IncOutboxPublished adds n newly PUBLISHED rows to the running total.
func (m *Metrics) IncOutboxPublished(n int) {
	m.outboxPublished.Add(float64(n))
}
