package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace"

// Marketplace records the commerce counters: stock movements, checkout
// outcomes, payment notifications and outbox delivery.
type Marketplace struct {
	stockOps      *prometheus.CounterVec
	stockUnits    *prometheus.CounterVec
	checkouts     *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
	outboxResults *prometheus.CounterVec
}

// NewMarketplace registers the marketplace metrics on reg. A nil registerer
// yields a recorder that drops every observation.
func NewMarketplace(reg prometheus.Registerer) *Marketplace {
	if reg == nil {
		return &Marketplace{}
	}
	m := &Marketplace{
		stockOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "operations_total",
			Help:      "Stock ledger operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		stockUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "units_total",
			Help:      "Units moved by successful stock ledger operations.",
		}, []string{"op"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "attempts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "notifications_total",
			Help:      "Payment gateway notifications by outcome.",
		}, []string{"outcome"}),
		outboxResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox events handled by the publisher by result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.stockOps, m.stockUnits, m.checkouts, m.webhooks, m.outboxResults)
	return m
}

func (m *Marketplace) ObserveStock(op, outcome string, qty int) {
	if m == nil || m.stockOps == nil {
		return
	}
	m.stockOps.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
	if outcome == "applied" && qty > 0 {
		m.stockUnits.WithLabelValues(normalizeLabel(op)).Add(float64(qty))
	}
}

func (m *Marketplace) ObserveCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Marketplace) ObserveWebhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Marketplace) ObserveOutbox(eventType, result string) {
	if m == nil || m.outboxResults == nil {
		return
	}
	m.outboxResults.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

// Handler serves the gathered metrics in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
