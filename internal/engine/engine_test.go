package engine

import (
	"testing"

	"jax-backtest-engine/internal/broker"
	"jax-backtest-engine/internal/market"
)

func bar(ts int64, close float32) market.Bar {
	return market.Bar{Timestamp: ts, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

// TestS1TimeMergeEndToEnd reproduces spec.md's S1 scenario through the full
// Engine wiring rather than the DataManager in isolation.
func TestS1TimeMergeEndToEnd(t *testing.T) {
	e := New()
	defer e.Close()

	barsA := []market.Bar{bar(100, 10), bar(200, 10), bar(300, 10)}
	barsB := []market.Bar{bar(150, 10), bar(250, 10), bar(350, 10)}

	if err := e.AddBacktestStream("A", market.Timeframe1Hour, barsA, 1, 2); err != nil {
		t.Fatalf("add stream A: %v", err)
	}
	if err := e.AddBacktestStream("B", market.Timeframe1Hour, barsB, 1, 2); err != nil {
		t.Fatalf("add stream B: %v", err)
	}

	n, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 6 {
		t.Fatalf("bars published = %d, want 6", n)
	}
}

// TestFullPipelineCarriesOrderThroughToFill drives one bar sequence long
// enough to trigger the reference strategy's first BUY signal and asserts
// the fill lands in the portfolio's position, exercising every stage:
// strategy -> risk -> order manager -> broker -> portfolio.
func TestFullPipelineCarriesOrderThroughToFill(t *testing.T) {
	e := New(WithCommissionPolicy(broker.FlatCommission{PerUnit: 0.1}))
	defer e.Close()

	closes := []float32{10, 10, 10, 10, 11, 12, 13, 14, 15, 16, 17, 18}
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = bar(int64(i)*3600, c)
	}

	if err := e.AddBacktestStream("X", market.Timeframe1Hour, bars, 2, 4); err != nil {
		t.Fatalf("add stream: %v", err)
	}

	if _, err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := e.Portfolio.Position("X"); got != 1 {
		t.Fatalf("position[X] = %d, want 1 (one BUY fill should have gone through)", got)
	}
	if bal := e.Portfolio.Balance(); bal >= 100_000 {
		t.Fatalf("balance = %v, want < 100000 (a BUY fill should have debited cash)", bal)
	}
}

func TestRunWithNoStreamsErrors(t *testing.T) {
	e := New()
	defer e.Close()

	if _, err := e.Run(); err == nil {
		t.Fatal("expected an error running with no registered streams")
	}
}

func TestMultipleEnginesDoNotShareState(t *testing.T) {
	e1 := New()
	defer e1.Close()
	e2 := New()
	defer e2.Close()

	if e1.Bus == e2.Bus {
		t.Fatal("two Engine instances must not share a Dispatcher")
	}
	if e1.Store == e2.Store {
		t.Fatal("two Engine instances must not share a Store")
	}
}
