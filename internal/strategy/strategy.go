// Package strategy defines the Strategy contract every trading strategy
// implements, plus a reference moving-average crossover strategy.
package strategy

import (
	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/market"
)

// Strategy is the contract the engine imposes on every trading strategy: it
// consumes bar events for exactly one (symbol, timeframe) pair and may emit
// orders in response. One strategy instance is constructed per
// (symbol, timeframe) pair.
type Strategy interface {
	Symbol() string
	Timeframe() market.Timeframe
	// OnBar is invoked by the dispatcher worker for every bar event on this
	// strategy's subscribed topic.
	OnBar(ev market.BarEvent)
}

// Attach subscribes s to its own new_bar_{symbol}_{timeframe} topic on bus.
// Every concrete strategy constructor calls this exactly once.
func Attach(bus *eventbus.Dispatcher, s Strategy) {
	topic := market.BarTopic(s.Symbol(), s.Timeframe())
	bus.Subscribe(topic, func(sender string, payload any) {
		ev, ok := payload.(market.BarEvent)
		if !ok {
			return
		}
		s.OnBar(ev)
	})
}

// Base provides the shared plumbing (bus handle, symbol/timeframe, order
// emission) that concrete strategies embed.
type Base struct {
	bus    *eventbus.Dispatcher
	symbol string
	tf     market.Timeframe
}

// NewBase constructs the shared strategy plumbing for (symbol, timeframe).
func NewBase(bus *eventbus.Dispatcher, symbol string, tf market.Timeframe) Base {
	return Base{bus: bus, symbol: symbol, tf: tf}
}

func (b *Base) Symbol() string              { return b.symbol }
func (b *Base) Timeframe() market.Timeframe { return b.tf }

// EmitOrder publishes an OrderEvent on strategy_order.
func (b *Base) EmitOrder(o market.OrderEvent) {
	b.bus.Publish(market.TopicStrategyOrder, "strategy", o)
}
