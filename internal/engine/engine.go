// Package engine wires together every component of the backtest pipeline
// into a single aggregate, per design notes §9: one Dispatcher and one
// Store per run, owned explicitly rather than reached through hidden
// globals, so two Engines in the same process (e.g. in a test binary) never
// share state.
package engine

import (
	"fmt"

	"jax-backtest-engine/internal/broker"
	"jax-backtest-engine/internal/datafeed"
	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
	"jax-backtest-engine/internal/observability"
	"jax-backtest-engine/internal/ordermanager"
	"jax-backtest-engine/internal/portfolio"
	"jax-backtest-engine/internal/risk"
	"jax-backtest-engine/internal/strategy"
)

// Engine owns the bus, the shared store, and every wired component for one
// backtest run. Construct with New, register streams with AddBacktestStream, then
// drive the run with Run.
type Engine struct {
	Bus       *eventbus.Dispatcher
	Store     kvstore.Store
	Portfolio *portfolio.Portfolio

	risk          *risk.Manager
	orderManager  *ordermanager.Manager
	broker        *broker.Sim
	strategies    []strategy.Strategy
	streams       []datafeed.DataStream
	metrics       *observability.Metrics
}

// Option customizes Engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	commission broker.CommissionPolicy
	riskPolicy risk.Policy
}

// WithCommissionPolicy overrides the broker's commission policy (default
// ZeroCommission, matching spec.md's Open Question default).
func WithCommissionPolicy(p broker.CommissionPolicy) Option {
	return func(o *engineOptions) { o.commission = p }
}

// WithRiskPolicy overrides the (currently unenforced) risk policy.
func WithRiskPolicy(p risk.Policy) Option {
	return func(o *engineOptions) { o.riskPolicy = p }
}

// New constructs a fresh Engine: its own Dispatcher, its own Store, and the
// full strategy -> risk -> order manager -> broker -> portfolio pipeline
// wired and subscribed. No streams are registered yet; call AddBacktestStream for
// each (symbol, timeframe) pair before Run.
func New(opts ...Option) *Engine {
	o := engineOptions{commission: broker.ZeroCommission{}, riskPolicy: risk.DefaultPolicy()}
	for _, opt := range opts {
		opt(&o)
	}

	bus := eventbus.New()
	store := kvstore.NewInMemoryStore()

	e := &Engine{
		Bus:     bus,
		Store:   store,
		metrics: observability.NewMetrics(),
	}

	e.Portfolio = portfolio.New(bus, store)
	e.Portfolio.SetMetrics(e.metrics)
	e.risk = risk.NewManager(bus, o.riskPolicy)
	e.orderManager = ordermanager.NewManager(bus)
	e.broker = broker.NewSim(bus, store, o.commission, nil)

	bus.Subscribe(market.TopicStrategyOrder, e.onOrderRouted("strategy"))
	bus.Subscribe(market.TopicRiskManagerOrder, e.onOrderRouted("risk_manager"))
	bus.Subscribe(market.TopicOrderManagerOrder, e.onOrderRouted("order_manager"))
	bus.Subscribe(market.TopicBrokerInterfaceFill, e.onFillApplied)

	return e
}

func (e *Engine) onOrderRouted(stage string) func(sender string, payload any) {
	return func(sender string, payload any) {
		e.metrics.OrdersRouted.WithLabelValues(stage).Inc()
	}
}

func (e *Engine) onFillApplied(sender string, payload any) {
	e.metrics.FillsApplied.Inc()
}

// AddBacktestStream registers a finite, pre-sorted bar sequence as a
// stream the engine's DataManager will drive, and attaches the reference
// moving-average crossover strategy to it. Returns an error under the same
// conditions as datafeed.NewBacktestStream.
func (e *Engine) AddBacktestStream(symbol string, tf market.Timeframe, bars []market.Bar, shortWindow, longWindow int) error {
	s, err := datafeed.NewBacktestStream(e.Bus, e.Store, symbol, tf, bars)
	if err != nil {
		return fmt.Errorf("engine: add stream %s/%s: %w", symbol, tf, err)
	}
	e.streams = append(e.streams, s)

	if shortWindow <= 0 || longWindow <= 0 {
		e.strategies = append(e.strategies, strategy.NewMACrossoverStrategy(e.Bus, symbol, tf))
	} else {
		e.strategies = append(e.strategies, strategy.NewMACrossoverStrategyWithWindows(e.Bus, symbol, tf, shortWindow, longWindow))
	}
	return nil
}

// Run drives the backtest to completion: builds the DataManager over every
// registered stream, then repeatedly calls Advance, flushing the
// dispatcher after each bar so the full strategy -> risk -> order ->
// broker -> portfolio cascade for one bar completes before the next bar is
// published (spec.md §5). Returns the number of bars published.
func (e *Engine) Run() (int, error) {
	if len(e.streams) == 0 {
		return 0, fmt.Errorf("engine: Run called with no registered streams")
	}

	dm, err := datafeed.NewDataManager(e.Bus, e.Store, e.streams...)
	if err != nil {
		return 0, fmt.Errorf("engine: build data manager: %w", err)
	}

	bars := 0
	for dm.Advance() {
		e.metrics.QueueDepth.Set(float64(e.Bus.QueueLength()))
		e.Bus.Flush()
		bars++
		e.metrics.BarsProcessed.Inc()
		e.metrics.EquityGauge.Set(e.Portfolio.Equity())
	}
	e.metrics.QueueDepth.Set(float64(e.Bus.QueueLength()))
	return bars, nil
}

// Close shuts down the dispatcher, draining any in-flight deliveries.
func (e *Engine) Close() {
	e.Bus.Close()
}
