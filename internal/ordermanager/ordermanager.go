// Package ordermanager forwards risk-approved orders to the broker
// simulator. The separation from internal/risk exists so order-lifecycle
// tracking (cancels, modifies, broker-specific encoding) can live here
// without touching risk logic.
package ordermanager

import (
	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/market"
)

// Manager subscribes to risk_manager_order and republishes every order on
// order_manager_order unchanged.
type Manager struct {
	bus *eventbus.Dispatcher
}

// NewManager constructs a Manager and subscribes it to risk_manager_order.
func NewManager(bus *eventbus.Dispatcher) *Manager {
	m := &Manager{bus: bus}
	bus.Subscribe(market.TopicRiskManagerOrder, m.onOrder)
	return m
}

func (m *Manager) onOrder(sender string, payload any) {
	o, ok := payload.(market.OrderEvent)
	if !ok {
		return
	}
	m.bus.Publish(market.TopicOrderManagerOrder, "order_manager", o)
}
