package datafeed

import (
	"fmt"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
)

type slot struct {
	bar      market.Bar
	occupied bool
}

// DataManager owns a fixed set of DataStreams and drives the backtest clock
// by always publishing the globally-earliest buffered bar next: the
// multi-stream time-merge scheduler described in spec.md §4.3.
type DataManager struct {
	bus     *eventbus.Dispatcher
	store   kvstore.Store
	streams []DataStream
	keys    []string // streams[i] buffers under keys[i]; parallel slices preserve registration order for stable tie-breaking
	slots   map[string]*slot
}

// NewDataManager registers streams in the given order (registration order
// breaks timestamp ties) and fails construction if the stream set is empty
// or contains a duplicate (symbol, timeframe) pair.
func NewDataManager(bus *eventbus.Dispatcher, store kvstore.Store, streams ...DataStream) (*DataManager, error) {
	if bus == nil || store == nil {
		return nil, fmt.Errorf("datafeed: DataManager requires a non-nil bus and store")
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("datafeed: DataManager requires at least one stream")
	}

	m := &DataManager{
		bus:   bus,
		store: store,
		slots: make(map[string]*slot),
	}

	seen := make(map[string]bool, len(streams))
	for _, s := range streams {
		key := fmt.Sprintf("%s_%s", s.Symbol(), s.Timeframe().String())
		if seen[key] {
			return nil, fmt.Errorf("datafeed: duplicate stream for %s", key)
		}
		seen[key] = true
		m.streams = append(m.streams, s)
		m.keys = append(m.keys, key)
		m.slots[key] = &slot{}
	}

	return m, nil
}

// Advance pulls bars to fill any empty slots, then publishes the
// earliest-timestamp buffered bar. Ties are broken by registration order.
// Returns false once every stream is exhausted and no slot is occupied.
func (m *DataManager) Advance() bool {
	for i, s := range m.streams {
		sl := m.slots[m.keys[i]]
		if sl.occupied {
			continue
		}
		if bar, ok := s.NextBar(); ok {
			sl.bar = bar
			sl.occupied = true
		}
	}

	bestIdx := -1
	for i := range m.streams {
		sl := m.slots[m.keys[i]]
		if !sl.occupied {
			continue
		}
		if bestIdx == -1 || sl.bar.Timestamp < m.slots[m.keys[bestIdx]].bar.Timestamp {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return false
	}

	stream := m.streams[bestIdx]
	sl := m.slots[m.keys[bestIdx]]
	bar := sl.bar

	lastPrices := m.lastPrices()
	lastPrices[stream.Symbol()] = bar
	m.store.Set(kvstore.KeyLastPrices, lastPrices)

	m.bus.Publish(market.BarTopic(stream.Symbol(), stream.Timeframe()), "datamanager", market.NewBarEvent(bar, stream.Symbol()))

	sl.occupied = false
	return true
}

func (m *DataManager) lastPrices() map[string]market.Bar {
	v, ok := m.store.Get(kvstore.KeyLastPrices)
	if !ok {
		return make(map[string]market.Bar)
	}
	lp, ok := v.(map[string]market.Bar)
	if !ok || lp == nil {
		return make(map[string]market.Bar)
	}
	return lp
}
