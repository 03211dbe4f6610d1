// Package metrics defines the business counters of the sweet shop. HTTP
// request metrics come from the echoprometheus middleware registered next to
// them on the same registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultNamespace = "sweetshop"

type Metrics struct {
	// PurchasesTotal counts purchase attempts by result: ok, insufficient_stock, not_found, error.
	PurchasesTotal *prometheus.CounterVec
	UnitsSold      prometheus.Counter
	RestocksTotal  prometheus.Counter
	UnitsRestocked prometheus.Counter
	// AuthAttempts counts register/login calls by op and result.
	AuthAttempts *prometheus.CounterVec
	EventsFailed *prometheus.CounterVec
}

func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)

	return &Metrics{
		PurchasesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Purchase attempts by result.",
		}, []string{"result"}),
		UnitsSold: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_sold_total",
			Help:      "Units taken out of stock by successful purchases.",
		}),
		RestocksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restocks_total",
			Help:      "Successful restock operations.",
		}),
		UnitsRestocked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_restocked_total",
			Help:      "Units added to stock by restocks.",
		}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Register and login attempts by op and result.",
		}, []string{"op", "result"}),
		EventsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Domain events that could not be published.",
		}, []string{"topic"}),
	}
}

// The Observe helpers accept a nil receiver so services can run without metrics.

func (m *Metrics) ObservePurchase(result string, units int) {
	if m == nil {
		return
	}
	m.PurchasesTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.UnitsSold.Add(float64(units))
	}
}

func (m *Metrics) ObserveRestock(units int) {
	if m == nil {
		return
	}
	m.RestocksTotal.Inc()
	m.UnitsRestocked.Add(float64(units))
}

func (m *Metrics) ObserveAuth(op, result string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveEventFailure(topic string) {
	if m == nil {
		return
	}
	m.EventsFailed.WithLabelValues(topic).Inc()
}
