// Package portfolio implements the cash/position/equity accounting state
// machine driven by the order -> pending -> fill lifecycle (spec.md §4.8).
package portfolio

import (
	"context"
	"fmt"
	"sync"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
	"jax-backtest-engine/internal/observability"
)

// InitialBalance is the starting cash balance of every fresh Portfolio.
const InitialBalance = 100_000

// maintenanceMarginRatio is the 100% maintenance-margin requirement on
// short positions used by CheckMarginRequirements in this revision.
const maintenanceMarginRatio = 1.0

// Portfolio tracks cash, positions, pending orders and mark-to-market
// equity for one backtest run. All mutating handlers run on the dispatcher
// worker goroutine (spec.md §5: "only ever mutated from within the
// dispatcher worker"), so the fields below need no additional locking
// against each other; the mutex only protects reads from other goroutines
// (e.g. an HTTP introspection endpoint) racing the worker.
type Portfolio struct {
	bus   *eventbus.Dispatcher
	store kvstore.Store

	metrics *observability.Metrics

	mu             sync.RWMutex
	balance        float64
	availableBal   float64
	equity         float64
	positions      map[string]int64
	pendingOrders  []market.OrderEvent
	lastPrices     map[string]market.Bar
	subscribedTops map[string]bool
}

// SetMetrics attaches a Metrics bundle so margin-call diagnostics are also
// counted in Prometheus, not just logged. Optional; a Portfolio with no
// metrics attached behaves exactly as before.
func (p *Portfolio) SetMetrics(m *observability.Metrics) {
	p.metrics = m
}

// New constructs a Portfolio with the standard $100,000 starting balance
// and subscribes it to new_data_stream, order_manager_order,
// broker_interface_fill, and every topic already listed in
// shared.data_streams.
func New(bus *eventbus.Dispatcher, store kvstore.Store) *Portfolio {
	p := &Portfolio{
		bus:            bus,
		store:          store,
		balance:        InitialBalance,
		availableBal:   InitialBalance,
		equity:         InitialBalance,
		positions:      make(map[string]int64),
		lastPrices:     make(map[string]market.Bar),
		subscribedTops: make(map[string]bool),
	}
	store.Set(kvstore.KeyAvailableBalance, p.availableBal)

	bus.Subscribe(market.TopicNewDataStream, p.onNewDataStream)
	bus.Subscribe(market.TopicOrderManagerOrder, p.onOrder)
	bus.Subscribe(market.TopicBrokerInterfaceFill, p.onFill)

	if v, ok := store.Get(kvstore.KeyDataStreams); ok {
		if topics, ok := v.([]string); ok {
			for _, topic := range topics {
				p.subscribeBarTopic(topic)
			}
		}
	}

	return p
}

// Balance returns the current cash balance.
func (p *Portfolio) Balance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}

// AvailableBalance returns cash not reserved for pending-order notional.
func (p *Portfolio) AvailableBalance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.availableBal
}

// Equity returns cash plus mark-to-market value of all positions.
func (p *Portfolio) Equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equity
}

// Position returns the signed quantity held of symbol (0 if none).
func (p *Portfolio) Position(symbol string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[symbol]
}

// Positions returns a snapshot of every symbol's signed position.
func (p *Portfolio) Positions() map[string]int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int64, len(p.positions))
	for s, q := range p.positions {
		out[s] = q
	}
	return out
}

// PendingOrders returns a copy of the currently pending order sequence, in
// insertion order.
func (p *Portfolio) PendingOrders() []market.OrderEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]market.OrderEvent, len(p.pendingOrders))
	copy(out, p.pendingOrders)
	return out
}

func (p *Portfolio) onNewDataStream(sender string, payload any) {
	topic, ok := payload.(string)
	if !ok {
		return
	}
	p.subscribeBarTopic(topic)
}

// subscribeBarTopic subscribes to the symbol_{sym}_{tf} directory topic,
// translating it into the new_bar_{sym}_{tf} bar topic it mirrors.
func (p *Portfolio) subscribeBarTopic(dirTopic string) {
	p.mu.Lock()
	if p.subscribedTops[dirTopic] {
		p.mu.Unlock()
		return
	}
	p.subscribedTops[dirTopic] = true
	p.mu.Unlock()

	barTopic, ok := barTopicFromDirectory(dirTopic)
	if !ok {
		return
	}
	p.bus.Subscribe(barTopic, p.onBar)
}

// barTopicFromDirectory converts "symbol_{sym}_{tf}" into
// "new_bar_{sym}_{tf}".
func barTopicFromDirectory(dirTopic string) (string, bool) {
	const prefix = "symbol_"
	if len(dirTopic) <= len(prefix) || dirTopic[:len(prefix)] != prefix {
		return "", false
	}
	return "new_bar_" + dirTopic[len(prefix):], true
}

func (p *Portfolio) onBar(sender string, payload any) {
	ev, ok := payload.(market.BarEvent)
	if !ok {
		return
	}

	p.mu.Lock()
	p.lastPrices[ev.Symbol] = ev.Bar
	p.mu.Unlock()

	p.CheckMarginRequirements()
	p.updateEquity()
}

func (p *Portfolio) onOrder(sender string, payload any) {
	o, ok := payload.(market.OrderEvent)
	if !ok {
		return
	}

	p.mu.Lock()
	p.pendingOrders = append(p.pendingOrders, o)
	p.mu.Unlock()

	p.updateAvailableBalance()
}

func (p *Portfolio) onFill(sender string, payload any) {
	f, ok := payload.(market.FillEvent)
	if !ok {
		return
	}

	p.removePendingOrder(f.OrderRef)
	p.updatePositions(f)
	p.updateBalance(f)
	p.updateAvailableBalance()
	p.updateEquity()
}

// removePendingOrder removes every pending order whose ID matches
// f.OrderRef (normally exactly one). A miss is an orphan fill: log and
// proceed, per spec.md §7.
func (p *Portfolio) removePendingOrder(orderRef uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.pendingOrders[:0:0]
	removed := 0
	for _, o := range p.pendingOrders {
		if o.ID == orderRef {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	p.pendingOrders = kept

	if removed == 0 {
		observability.LogEvent(context.Background(), "warn", "orphan_fill", map[string]any{
			"order_ref": orderRef,
		})
	}
}

func (p *Portfolio) updatePositions(f market.FillEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delta := int64(f.Quantity)
	if f.Side == market.SideSell {
		delta = -delta
	}
	p.positions[f.Symbol] += delta
}

// updateBalance applies a fill's cash effect. A BUY debits
// quantity*fill_price+commission; a SELL credits quantity*fill_price and
// still debits commission. A resulting negative balance is a fatal
// invariant violation (spec.md §3, §7): the run aborts rather than
// silently continuing with broken accounting.
func (p *Portfolio) updateBalance(f market.FillEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	notional := float64(f.Quantity) * f.FillPrice
	sign := -1.0
	if f.Side == market.SideSell {
		sign = 1.0
	}
	p.balance += sign*notional - f.Commission

	if p.balance < 0 {
		panic(fmt.Sprintf("portfolio: balance invariant violated: balance=%.2f after fill order_ref=%d", p.balance, f.OrderRef))
	}
}

// updateAvailableBalance recomputes available_balance = balance -
// sum(reserved(o)) over pending orders, using ref_price(o) = o.Price for
// non-MARKET orders, else the last known close of o.Symbol. A MARKET order
// with no last price is skipped from the reservation sum with a warning,
// per spec.md §3.
func (p *Portfolio) updateAvailableBalance() {
	p.mu.Lock()

	var reserved float64
	for _, o := range p.pendingOrders {
		refPrice, ok := p.refPrice(o)
		if !ok {
			observability.LogEvent(context.Background(), "warn", "reservation_skipped_no_last_price", map[string]any{
				"symbol":   o.Symbol,
				"order_id": o.ID,
			})
			continue
		}
		reserved += float64(o.Quantity) * refPrice
	}
	p.availableBal = p.balance - reserved
	avail := p.availableBal
	p.mu.Unlock()

	p.store.Set(kvstore.KeyAvailableBalance, avail)
}

// refPrice must be called with p.mu held.
func (p *Portfolio) refPrice(o market.OrderEvent) (float64, bool) {
	if o.Kind != market.OrderMarket {
		if o.Price == nil {
			return 0, false
		}
		return *o.Price, true
	}
	bar, ok := p.lastPrices[o.Symbol]
	if !ok {
		return 0, false
	}
	return float64(bar.Close), true
}

// updateEquity recomputes equity = balance + sum(positions[s] *
// last_close(s)). last_close comes from the shared store's last_prices,
// falling back to the last bar this portfolio received for s.
func (p *Portfolio) updateEquity() {
	shared, _ := p.store.Get(kvstore.KeyLastPrices)
	sharedPrices, _ := shared.(map[string]market.Bar)

	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.balance
	for symbol, qty := range p.positions {
		bar, ok := sharedPrices[symbol]
		if !ok {
			bar, ok = p.lastPrices[symbol]
		}
		if !ok {
			continue
		}
		equity += float64(qty) * float64(bar.Close)
	}
	p.equity = equity
}

// CheckMarginRequirements is a diagnostic hook with no enforcement side
// effect in this revision (spec.md §4.8). For every short position it
// compares equity against the position's 100% maintenance margin and logs
// a critical event per breaching symbol; returns true if any short
// breaches.
func (p *Portfolio) CheckMarginRequirements() bool {
	p.mu.RLock()
	equity := p.equity
	positions := make(map[string]int64, len(p.positions))
	for s, q := range p.positions {
		positions[s] = q
	}
	lastPrices := make(map[string]market.Bar, len(p.lastPrices))
	for s, b := range p.lastPrices {
		lastPrices[s] = b
	}
	p.mu.RUnlock()

	called := false
	for symbol, qty := range positions {
		if qty >= 0 {
			continue
		}
		bar, ok := lastPrices[symbol]
		if !ok {
			continue
		}
		notional := float64(-qty) * float64(bar.Close)
		maintenance := notional * maintenanceMarginRatio
		if equity < maintenance {
			called = true
			observability.LogEvent(context.Background(), "critical", "margin_call", map[string]any{
				"symbol":      symbol,
				"equity":      equity,
				"maintenance": maintenance,
			})
			if p.metrics != nil {
				p.metrics.MarginCalls.WithLabelValues(symbol).Inc()
			}
		}
	}
	return called
}
