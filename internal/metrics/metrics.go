// Package metrics exposes ledger counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

const namespace = "batcher"

type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	events     *prometheus.CounterVec
	amounts    *prometheus.CounterVec
	funds      *prometheus.GaugeVec
	sweeps     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and result code.",
		}, []string{"operation", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed ledger events by type.",
		}, []string{"type"}),
		amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_amount_total",
			Help:      "Token units moved, by event type.",
		}, []string{"type"}),
		funds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "custody_funds",
			Help:      "Custody pools as tracked by the ledger.",
		}, []string{"pool"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slashing_sweep_participants_total",
			Help:      "Participants handled by the slashing sweep, by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.operations, m.events, m.amounts, m.funds, m.sweeps)
	m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveOperation(operation, result string) {
	m.operations.WithLabelValues(operation, result).Inc()
}

// ObserveEvents counts committed events and moves the custody gauges by the
// amounts they carry.
func (m *Metrics) ObserveEvents(events []domain.Event) {
	for _, ev := range events {
		m.events.WithLabelValues(string(ev.Type)).Inc()
		if ev.Amount <= 0 {
			continue
		}
		amount := float64(ev.Amount)
		switch ev.Type {
		case domain.EventParticipantJoined, domain.EventBalancePaid:
			m.funds.WithLabelValues("operating").Add(amount)
		case domain.EventParticipantRemoved, domain.EventFundsWithdrawn:
			m.funds.WithLabelValues("operating").Sub(amount)
		case domain.EventParticipantSlashed:
			m.funds.WithLabelValues("operating").Sub(amount)
			m.funds.WithLabelValues("slashed").Add(amount)
		case domain.EventSlashedFundsWithdrawn:
			m.funds.WithLabelValues("slashed").Sub(amount)
		default:
			continue
		}
		m.amounts.WithLabelValues(string(ev.Type)).Add(amount)
	}
}

func (m *Metrics) SetFunds(f domain.Funds) {
	m.funds.WithLabelValues("operating").Set(float64(f.Operating))
	m.funds.WithLabelValues("slashed").Set(float64(f.Slashed))
}

func (m *Metrics) ObserveSweep(slashed, failed int) {
	m.sweeps.WithLabelValues("slashed").Add(float64(slashed))
	m.sweeps.WithLabelValues("failed").Add(float64(failed))
}
