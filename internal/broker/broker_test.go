package broker

import (
	"testing"
	"time"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
	"jax-backtest-engine/internal/testsupport"
)

func TestMarketOrderFillsAtLastClose(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()
	store.Set(kvstore.KeyLastPrices, map[string]market.Bar{
		"X": {Timestamp: 1, Open: 150, High: 150, Low: 150, Close: 150, Volume: 1},
	})

	NewSim(bus, store, ZeroCommission{}, nil)

	fills := make(chan market.FillEvent, 1)
	bus.Subscribe(market.TopicBrokerInterfaceFill, func(sender string, payload any) {
		fills <- payload.(market.FillEvent)
	})

	order := market.NewOrderEvent("X", market.OrderMarket, 10, market.SideBuy, nil)
	bus.Publish(market.TopicOrderManagerOrder, "order_manager", order)

	select {
	case f := <-fills:
		if f.FillPrice != 150 {
			t.Fatalf("fill price = %v, want 150 (last close)", f.FillPrice)
		}
		if f.OrderRef != order.ID {
			t.Fatalf("order_ref = %d, want %d", f.OrderRef, order.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fill")
	}
}

func TestLimitOrderFillsAtOrderPrice(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()
	store.Set(kvstore.KeyLastPrices, map[string]market.Bar{
		"X": {Timestamp: 1, Open: 999, High: 999, Low: 999, Close: 999, Volume: 1},
	})

	NewSim(bus, store, ZeroCommission{}, nil)

	fills := make(chan market.FillEvent, 1)
	bus.Subscribe(market.TopicBrokerInterfaceFill, func(sender string, payload any) {
		fills <- payload.(market.FillEvent)
	})

	price := 150.0
	order := market.NewOrderEvent("X", market.OrderLimit, 10, market.SideBuy, &price)
	bus.Publish(market.TopicOrderManagerOrder, "order_manager", order)

	select {
	case f := <-fills:
		if f.FillPrice != 150 {
			t.Fatalf("fill price = %v, want 150 (order price, not last close 999)", f.FillPrice)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fill")
	}
}

func TestMarketOrderWithNoLastPriceIsSkipped(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()

	NewSim(bus, store, ZeroCommission{}, nil)

	fired := false
	bus.Subscribe(market.TopicBrokerInterfaceFill, func(sender string, payload any) {
		fired = true
	})

	order := market.NewOrderEvent("X", market.OrderMarket, 10, market.SideBuy, nil)
	bus.Publish(market.TopicOrderManagerOrder, "order_manager", order)

	time.Sleep(50 * time.Millisecond)
	if fired {
		t.Fatal("expected no fill when last price is missing")
	}
}

func TestFillTimestampUsesInjectedClock(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()
	store.Set(kvstore.KeyLastPrices, map[string]market.Bar{
		"X": {Timestamp: 1, Open: 150, High: 150, Low: 150, Close: 150, Volume: 1},
	})

	clock := testsupport.NewManualClock(time.Unix(1_700_000_000, 0))
	s := &Sim{bus: bus, store: store, commission: ZeroCommission{}, clock: clock}
	bus.Subscribe(market.TopicOrderManagerOrder, s.onOrder)

	fills := make(chan market.FillEvent, 1)
	bus.Subscribe(market.TopicBrokerInterfaceFill, func(sender string, payload any) {
		fills <- payload.(market.FillEvent)
	})

	order := market.NewOrderEvent("X", market.OrderMarket, 10, market.SideBuy, nil)
	bus.Publish(market.TopicOrderManagerOrder, "order_manager", order)

	select {
	case f := <-fills:
		if f.Timestamp != 1_700_000_000 {
			t.Fatalf("timestamp = %d, want %d from the injected clock", f.Timestamp, int64(1_700_000_000))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fill")
	}
}

func TestFlatCommissionChargesPerUnit(t *testing.T) {
	c := FlatCommission{PerUnit: 0.5}
	order := market.NewOrderEvent("X", market.OrderMarket, 10, market.SideBuy, nil)
	got := c.Compute(order, 150)
	if got != 5.0 {
		t.Fatalf("commission = %v, want 5.0", got)
	}
}
