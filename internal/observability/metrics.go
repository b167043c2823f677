package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors the engine records against.
// Create one per process (or per test) with NewMetrics; the zero value is
// not valid.
type Metrics struct {
	Registry *prometheus.Registry

	BarsProcessed   prometheus.Counter
	OrdersRouted    *prometheus.CounterVec
	FillsApplied    prometheus.Counter
	MarginCalls     *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	EquityGauge     prometheus.Gauge
}

// NewMetrics creates a fresh, registered Metrics bundle.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_bars_processed_total",
			Help: "Number of bars published by the data manager.",
		}),
		OrdersRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_orders_routed_total",
			Help: "Number of orders routed through strategy/risk/order-manager stages.",
		}, []string{"stage"}),
		FillsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_fills_applied_total",
			Help: "Number of fills applied to the portfolio.",
		}),
		MarginCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_margin_calls_total",
			Help: "Number of margin-call diagnostics raised, by symbol.",
		}, []string{"symbol"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_dispatcher_queue_depth",
			Help: "Approximate pending-event count on the dispatcher queue.",
		}),
		EquityGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_portfolio_equity",
			Help: "Current mark-to-market portfolio equity.",
		}),
	}

	reg.MustRegister(m.BarsProcessed, m.OrdersRouted, m.FillsApplied, m.MarginCalls, m.QueueDepth, m.EquityGauge)
	return m
}
