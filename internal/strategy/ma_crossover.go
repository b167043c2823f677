package strategy

import (
	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/market"
)

// Default window lengths for MACrossoverStrategy, per spec.md §4.4.
const (
	DefaultShortWindow = 50
	DefaultLongWindow  = 200
)

// position tracks the strategy's last emitted signal, kept entirely local
// to the strategy (it is not portfolio state).
type position int

const (
	positionFlat  position = 0
	positionLong  position = 1
	positionShort position = -1
)

// MACrossoverStrategy is the reference strategy: a hysteretic moving-average
// crossover. It emits one MARKET order per crossing and nothing during
// warm-up or while already positioned in the crossing's direction.
type MACrossoverStrategy struct {
	Base

	short int
	long  int

	closes []float32
	pos    position
}

// NewMACrossoverStrategy constructs the reference strategy for
// (symbol, timeframe) with the default S=50/L=200 windows, attaching it to
// bus immediately.
func NewMACrossoverStrategy(bus *eventbus.Dispatcher, symbol string, tf market.Timeframe) *MACrossoverStrategy {
	return NewMACrossoverStrategyWithWindows(bus, symbol, tf, DefaultShortWindow, DefaultLongWindow)
}

// NewMACrossoverStrategyWithWindows allows overriding the short/long window
// lengths, primarily for tests.
func NewMACrossoverStrategyWithWindows(bus *eventbus.Dispatcher, symbol string, tf market.Timeframe, short, long int) *MACrossoverStrategy {
	s := &MACrossoverStrategy{
		Base:  NewBase(bus, symbol, tf),
		short: short,
		long:  long,
	}
	Attach(bus, s)
	return s
}

// OnBar appends the bar's close to the rolling window and, once warmed up,
// emits a MARKET order on a hysteretic MA crossing.
func (s *MACrossoverStrategy) OnBar(ev market.BarEvent) {
	s.closes = append(s.closes, ev.Bar.Close)

	if len(s.closes) >= 2*s.long {
		s.closes = s.closes[len(s.closes)-s.long:]
	}

	if len(s.closes) <= s.long {
		return // warm-up
	}

	shortMA := mean(s.closes[len(s.closes)-s.short:])
	longMA := mean(s.closes[len(s.closes)-s.long:])

	switch {
	case shortMA > longMA && s.pos < positionLong:
		s.pos = positionLong
		s.EmitOrder(market.NewOrderEvent(s.Symbol(), market.OrderMarket, 1, market.SideBuy, nil))
	case shortMA < longMA && s.pos > positionShort:
		s.pos = positionShort
		s.EmitOrder(market.NewOrderEvent(s.Symbol(), market.OrderMarket, 1, market.SideSell, nil))
	}
}

func mean(xs []float32) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	return sum / float64(len(xs))
}
