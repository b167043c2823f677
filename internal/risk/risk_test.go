package risk

import (
	"testing"
	"time"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/market"
)

func TestManagerForwardsOrderUnchanged(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	NewManager(bus, DefaultPolicy())

	received := make(chan market.OrderEvent, 1)
	bus.Subscribe(market.TopicRiskManagerOrder, func(sender string, payload any) {
		received <- payload.(market.OrderEvent)
	})

	order := market.NewOrderEvent("X", market.OrderMarket, 10, market.SideBuy, nil)
	bus.Publish(market.TopicStrategyOrder, "strategy", order)

	select {
	case got := <-received:
		if got.ID != order.ID || got.Symbol != order.Symbol || got.Quantity != order.Quantity {
			t.Fatalf("forwarded order mismatch: got %+v, want %+v", got, order)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded order")
	}
}
