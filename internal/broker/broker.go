// Package broker simulates immediate, full, no-slippage order fills.
package broker

import (
	"context"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
	"jax-backtest-engine/internal/observability"
	"jax-backtest-engine/internal/testsupport"
)

// Sim subscribes to order_manager_order and publishes a FillEvent for every
// received order. MARKET orders always fill at shared.last_prices[symbol],
// never a hardcoded symbol; non-MARKET orders fill at the order's own price
// (design notes §9.1, fixing the teacher's original hardcoded/backwards
// type check).
type Sim struct {
	bus        *eventbus.Dispatcher
	store      kvstore.Store
	commission CommissionPolicy
	clock      testsupport.Clock
}

// NewSim constructs a broker simulator and subscribes it to
// order_manager_order. A nil commission defaults to ZeroCommission; a nil
// clock defaults to testsupport.SystemClock, letting tests inject a
// testsupport.ManualClock to pin fill timestamps deterministically.
func NewSim(bus *eventbus.Dispatcher, store kvstore.Store, commission CommissionPolicy, clock testsupport.Clock) *Sim {
	if commission == nil {
		commission = ZeroCommission{}
	}
	if clock == nil {
		clock = testsupport.SystemClock{}
	}
	s := &Sim{bus: bus, store: store, commission: commission, clock: clock}
	bus.Subscribe(market.TopicOrderManagerOrder, s.onOrder)
	return s
}

func (s *Sim) onOrder(sender string, payload any) {
	o, ok := payload.(market.OrderEvent)
	if !ok {
		return
	}

	fillPrice, ok := s.fillPrice(o)
	if !ok {
		observability.LogEvent(context.Background(), "error", "broker_fill_skipped_no_last_price", map[string]any{
			"symbol":   o.Symbol,
			"order_id": o.ID,
		})
		return
	}

	commission := s.commission.Compute(o, fillPrice)
	fill := market.NewFillEvent(s.clock.Now().Unix(), o.Symbol, o.Quantity, o.Side, fillPrice, commission, o.ID)
	s.bus.Publish(market.TopicBrokerInterfaceFill, "broker", fill)
}

// fillPrice implements spec.md §4.7's pricing rule exactly: MARKET orders
// use the last known close for the order's own symbol; any other order
// kind uses the order's own price.
func (s *Sim) fillPrice(o market.OrderEvent) (float64, bool) {
	if o.Kind != market.OrderMarket {
		if o.Price == nil {
			return 0, false
		}
		return *o.Price, true
	}

	v, ok := s.store.Get(kvstore.KeyLastPrices)
	if !ok {
		return 0, false
	}
	lastPrices, ok := v.(map[string]market.Bar)
	if !ok {
		return 0, false
	}
	bar, ok := lastPrices[o.Symbol]
	if !ok {
		return 0, false
	}
	return float64(bar.Close), true
}
