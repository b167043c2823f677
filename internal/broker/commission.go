package broker

import (
	"github.com/shopspring/decimal"

	"jax-backtest-engine/internal/market"
)

// CommissionPolicy computes the commission charged on a single fill.
// spec.md leaves commission computation as an external policy hook — the
// mock broker itself never hardcodes zero; callers decide.
type CommissionPolicy interface {
	Compute(o market.OrderEvent, fillPrice float64) float64
}

// ZeroCommission charges nothing, matching the teacher's original default
// wiring where the mock broker does not model fees.
type ZeroCommission struct{}

// Compute always returns 0.
func (ZeroCommission) Compute(o market.OrderEvent, fillPrice float64) float64 { return 0 }

// FlatCommission charges a fixed amount per filled unit. Arithmetic runs
// through shopspring/decimal to avoid float accumulation error across a
// long-running backtest with many fills.
type FlatCommission struct {
	PerUnit float64
}

// Compute returns PerUnit * o.Quantity.
func (c FlatCommission) Compute(o market.OrderEvent, fillPrice float64) float64 {
	perUnit := decimal.NewFromFloat(c.PerUnit)
	qty := decimal.NewFromInt(int64(o.Quantity))
	total := perUnit.Mul(qty)
	f, _ := total.Float64()
	return f
}

// BasisPointsCommission charges a percentage of the fill's notional value,
// expressed in basis points (1 bp = 0.01%).
type BasisPointsCommission struct {
	BasisPoints float64
}

// Compute returns notional * (BasisPoints / 10_000).
func (c BasisPointsCommission) Compute(o market.OrderEvent, fillPrice float64) float64 {
	notional := decimal.NewFromFloat(fillPrice).Mul(decimal.NewFromInt(int64(o.Quantity)))
	rate := decimal.NewFromFloat(c.BasisPoints).Div(decimal.NewFromInt(10_000))
	f, _ := notional.Mul(rate).Float64()
	return f
}
