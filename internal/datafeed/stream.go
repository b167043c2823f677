// Package datafeed implements the DataStream abstraction and the DataManager
// multi-stream time-merge scheduler that drives the backtest clock.
package datafeed

import (
	"fmt"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
)

// StreamType distinguishes a finite backtest source from a live one. Both
// satisfy the same DataStream contract; only construction and next_bar
// semantics differ (design note §9: model as an interface, no inheritance
// hierarchy).
type StreamType string

const (
	StreamBacktest StreamType = "backtest"
	StreamLive     StreamType = "live"
)

// DataStream is a polymorphic bar source. Implementations for "backtest"
// return bars from a finite, timestamp-sorted in-memory sequence; "live"
// implementations (see live.go, alpaca.go, polygon.go) pull from an external
// feed and may block or fail.
type DataStream interface {
	Symbol() string
	Timeframe() market.Timeframe
	Type() StreamType
	// NextBar returns the next bar in ascending timestamp order, or
	// (zero, false) when the stream is exhausted (backtest) or no bar is
	// currently available (live).
	NextBar() (market.Bar, bool)
}

// Topic returns the "symbol_{sym}_{tf}" directory entry recorded for a
// stream in the shared store's data_streams list.
func Topic(symbol string, tf market.Timeframe) string {
	return fmt.Sprintf("symbol_%s_%s", symbol, tf.String())
}

// announce publishes new_data_stream and appends the stream's topic to the
// shared store's data_streams directory. Every DataStream constructor calls
// this exactly once.
func announce(bus *eventbus.Dispatcher, store kvstore.Store, symbol string, tf market.Timeframe) {
	topic := Topic(symbol, tf)

	existing, _ := store.Get(kvstore.KeyDataStreams)
	list, _ := existing.([]string)
	list = append(list, topic)
	store.Set(kvstore.KeyDataStreams, list)

	bus.Publish(market.TopicNewDataStream, "datafeed", topic)
}

// BacktestStream replays a finite, caller-supplied, ascending-timestamp bar
// sequence. It is pure compute: NextBar never blocks and never fails.
type BacktestStream struct {
	symbol string
	tf     market.Timeframe
	bars   []market.Bar
	cursor int
}

// NewBacktestStream validates its arguments and constructs a BacktestStream, announcing
// it on bus/store as required by the DataStream contract. bars must already
// be in ascending timestamp order; the stream does not re-sort them.
func NewBacktestStream(bus *eventbus.Dispatcher, store kvstore.Store, symbol string, tf market.Timeframe, bars []market.Bar) (*BacktestStream, error) {
	if symbol == "" {
		return nil, fmt.Errorf("datafeed: symbol must not be empty")
	}
	if !tf.Valid() {
		return nil, fmt.Errorf("datafeed: invalid timeframe %q", tf)
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp < bars[i-1].Timestamp {
			return nil, fmt.Errorf("datafeed: bars for %s must be sorted ascending by timestamp", symbol)
		}
	}

	s := &BacktestStream{symbol: symbol, tf: tf, bars: bars}
	announce(bus, store, symbol, tf)
	return s, nil
}

func (s *BacktestStream) Symbol() string            { return s.symbol }
func (s *BacktestStream) Timeframe() market.Timeframe { return s.tf }
func (s *BacktestStream) Type() StreamType          { return StreamBacktest }

// NextBar returns the next bar in the sequence, or (zero, false) once
// exhausted.
func (s *BacktestStream) NextBar() (market.Bar, bool) {
	if s.cursor >= len(s.bars) {
		return market.Bar{}, false
	}
	b := s.bars[s.cursor]
	s.cursor++
	return b, true
}
