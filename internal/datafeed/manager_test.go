package datafeed

import (
	"sync"
	"testing"
	"time"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
)

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

// TestTimeMergeScenarioS1 reproduces spec.md's S1: two streams interleave by
// timestamp regardless of registration-time batching.
func TestTimeMergeScenarioS1(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()

	streamA, err := NewBacktestStream(bus, store, "A", market.Timeframe1Hour, []market.Bar{
		mkBar(100), mkBar(200), mkBar(300),
	})
	if err != nil {
		t.Fatal(err)
	}
	streamB, err := NewBacktestStream(bus, store, "B", market.Timeframe1Hour, []market.Bar{
		mkBar(150), mkBar(250), mkBar(350),
	})
	if err != nil {
		t.Fatal(err)
	}

	type delivery struct {
		symbol string
		ts     int64
	}
	var mu sync.Mutex
	var deliveries []delivery

	record := func(symbol string) eventbus.Callback {
		return func(sender string, payload any) {
			ev := payload.(market.BarEvent)
			mu.Lock()
			deliveries = append(deliveries, delivery{symbol: symbol, ts: ev.Bar.Timestamp})
			mu.Unlock()
		}
	}
	bus.Subscribe(market.BarTopic("A", market.Timeframe1Hour), record("A"))
	bus.Subscribe(market.BarTopic("B", market.Timeframe1Hour), record("B"))

	mgr, err := NewDataManager(bus, store, streamA, streamB)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 6; i++ {
		if !mgr.Advance() {
			t.Fatalf("Advance() call %d unexpectedly returned false", i+1)
		}
	}
	if mgr.Advance() {
		t.Fatal("7th Advance() call should return false (streams exhausted)")
	}

	waitForCondition(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deliveries) == 6
	})

	wantSymbols := []string{"A", "B", "A", "B", "A", "B"}
	wantTimestamps := []int64{100, 150, 200, 250, 300, 350}

	mu.Lock()
	defer mu.Unlock()
	for i := range wantSymbols {
		if deliveries[i].symbol != wantSymbols[i] || deliveries[i].ts != wantTimestamps[i] {
			t.Fatalf("delivery %d = %+v, want symbol=%s ts=%d", i, deliveries[i], wantSymbols[i], wantTimestamps[i])
		}
	}
}

func TestAdvanceReturnsFalseWithNoStreamsOccupied(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()

	s, err := NewBacktestStream(bus, store, "A", market.Timeframe1Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := NewDataManager(bus, store, s)
	if err != nil {
		t.Fatal(err)
	}
	if mgr.Advance() {
		t.Fatal("expected Advance() to return false for an empty stream")
	}
}

func TestAdvanceUpdatesLastPrices(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()

	s, err := NewBacktestStream(bus, store, "X", market.Timeframe1Hour, []market.Bar{mkBar(100)})
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := NewDataManager(bus, store, s)
	if err != nil {
		t.Fatal(err)
	}
	if !mgr.Advance() {
		t.Fatal("expected Advance() to succeed")
	}

	v, ok := store.Get(kvstore.KeyLastPrices)
	if !ok {
		t.Fatal("expected last_prices to be set")
	}
	lp := v.(map[string]market.Bar)
	if lp["X"].Timestamp != 100 {
		t.Fatalf("last_prices[X] = %+v, want timestamp 100", lp["X"])
	}
}

func TestNewDataManagerRejectsEmptyStreamSet(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()

	if _, err := NewDataManager(bus, store); err == nil {
		t.Fatal("expected error constructing DataManager with no streams")
	}
}

func TestNewDataManagerRejectsDuplicateStream(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()

	s1, _ := NewBacktestStream(bus, store, "A", market.Timeframe1Hour, []market.Bar{mkBar(1)})
	s2, _ := NewBacktestStream(bus, store, "A", market.Timeframe1Hour, []market.Bar{mkBar(2)})

	if _, err := NewDataManager(bus, store, s1, s2); err == nil {
		t.Fatal("expected error constructing DataManager with duplicate stream")
	}
}
