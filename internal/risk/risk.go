// Package risk validates and forwards strategy orders. The current revision
// is pure pass-through; the Policy type gives the insertion point for limits
// (max position, max notional, blackout windows) a typed home without
// changing the wiring contract.
package risk

import (
	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/market"
)

// PortfolioConstraints mirrors the portfolio-level gates a future revision
// of Manager would enforce before forwarding an order.
type PortfolioConstraints struct {
	MaxPositionSize float64
	MaxPositions    int
	MaxDrawdown     float64
}

// PositionLimits mirrors the per-trade gates a future revision of Manager
// would enforce.
type PositionLimits struct {
	MaxRiskPerTrade float64
	MaxLeverage     float64
}

// Policy bundles the constraint sets above. The default Manager ignores
// Policy entirely and forwards every order; it is wired so that enforcement
// can be added without a breaking change to the bus topology.
type Policy struct {
	Portfolio PortfolioConstraints
	Position  PositionLimits
}

// DefaultPolicy returns a conservative policy. Not enforced by Manager in
// this revision.
func DefaultPolicy() Policy {
	return Policy{
		Portfolio: PortfolioConstraints{
			MaxPositionSize: 50_000,
			MaxPositions:    10,
			MaxDrawdown:     0.20,
		},
		Position: PositionLimits{
			MaxRiskPerTrade: 0.02,
			MaxLeverage:     1.0,
		},
	}
}

// Manager subscribes to strategy_order and republishes every order on
// risk_manager_order unchanged.
type Manager struct {
	bus    *eventbus.Dispatcher
	policy Policy
}

// NewManager constructs a Manager and subscribes it to strategy_order.
func NewManager(bus *eventbus.Dispatcher, policy Policy) *Manager {
	m := &Manager{bus: bus, policy: policy}
	bus.Subscribe(market.TopicStrategyOrder, m.onOrder)
	return m
}

// Policy returns the configured (currently unenforced) policy.
func (m *Manager) Policy() Policy { return m.policy }

func (m *Manager) onOrder(sender string, payload any) {
	o, ok := payload.(market.OrderEvent)
	if !ok {
		return
	}
	m.bus.Publish(market.TopicRiskManagerOrder, "risk_manager", o)
}
