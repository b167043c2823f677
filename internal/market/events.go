package market

import "sync/atomic"

// idCounter is the process-wide monotonic event ID source. Design note §9
// calls out the source's bug where the event base class never actually
// stamped an ID (a no-op super call); every event constructed here is always
// stamped from this counter instead.
var idCounter uint64

// NextID returns the next monotonically increasing, process-unique event ID.
func NextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

// OrderKind is the order type a strategy or risk manager may submit.
type OrderKind string

const (
	OrderMarket OrderKind = "MARKET"
	OrderLimit  OrderKind = "LIMIT"
	OrderStop   OrderKind = "STOP"
)

// Side is the direction of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// BarEvent carries a single bar for one symbol, published by the DataManager
// on topic "new_bar_{symbol}_{timeframe}".
type BarEvent struct {
	ID     uint64
	Bar    Bar
	Symbol string
}

// NewBarEvent stamps a fresh BarEvent with the next process-unique ID.
func NewBarEvent(bar Bar, symbol string) BarEvent {
	return BarEvent{ID: NextID(), Bar: bar, Symbol: symbol}
}

// OrderEvent is emitted by a strategy and forwarded, unchanged in identity,
// through the risk manager and order manager.
type OrderEvent struct {
	ID       uint64
	Symbol   string
	Kind     OrderKind
	Quantity uint32
	Side     Side
	Price    *float64 // nil for MARKET orders
}

// NewOrderEvent stamps a fresh OrderEvent with the next process-unique ID.
func NewOrderEvent(symbol string, kind OrderKind, qty uint32, side Side, price *float64) OrderEvent {
	return OrderEvent{
		ID:       NextID(),
		Symbol:   symbol,
		Kind:     kind,
		Quantity: qty,
		Side:     side,
		Price:    price,
	}
}

// FillEvent is emitted by the broker simulator once an order is executed.
// OrderRef equals the ID of the OrderEvent it satisfies.
type FillEvent struct {
	ID         uint64
	Timestamp  int64
	Symbol     string
	Quantity   uint32
	Side       Side
	FillPrice  float64
	Commission float64
	OrderRef   uint64
}

// NewFillEvent stamps a fresh FillEvent with the next process-unique ID.
func NewFillEvent(ts int64, symbol string, qty uint32, side Side, fillPrice, commission float64, orderRef uint64) FillEvent {
	return FillEvent{
		ID:         NextID(),
		Timestamp:  ts,
		Symbol:     symbol,
		Quantity:   qty,
		Side:       side,
		FillPrice:  fillPrice,
		Commission: commission,
		OrderRef:   orderRef,
	}
}

// BarTopic returns the routing topic for bar events of one symbol/timeframe.
func BarTopic(symbol string, tf Timeframe) string {
	return "new_bar_" + symbol + "_" + tf.String()
}

// Well-known, stable topics (§6 of spec.md).
const (
	TopicNewDataStream      = "new_data_stream"
	TopicStrategyOrder      = "strategy_order"
	TopicRiskManagerOrder   = "risk_manager_order"
	TopicOrderManagerOrder  = "order_manager_order"
	TopicBrokerInterfaceFill = "broker_interface_fill"
)
