package datafeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
)

func TestHTTPPollStreamFetchesAndBuffersBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]polledBar{
			{Timestamp: 100, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000},
			{Timestamp: 200, Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 1200},
		})
	}))
	defer srv.Close()

	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()

	s, err := NewHTTPPollStream(bus, store, "X", market.Timeframe1Min, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPPollStream: %v", err)
	}

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	b, ok := s.NextBar()
	if !ok || b.Timestamp != 100 {
		t.Fatalf("NextBar = %+v, %v, want timestamp 100", b, ok)
	}
	b, ok = s.NextBar()
	if !ok || b.Timestamp != 200 {
		t.Fatalf("NextBar = %+v, %v, want timestamp 200", b, ok)
	}
	if _, ok := s.NextBar(); ok {
		t.Fatal("expected buffer to be drained")
	}
}

func TestHTTPPollStreamSkipsAlreadySeenBars(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			json.NewEncoder(w).Encode([]polledBar{{Timestamp: 100, Close: 10}})
		} else {
			json.NewEncoder(w).Encode([]polledBar{{Timestamp: 100, Close: 10}, {Timestamp: 200, Close: 11}})
		}
	}))
	defer srv.Close()

	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()

	s, err := NewHTTPPollStream(bus, store, "X", market.Timeframe1Min, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPPollStream: %v", err)
	}

	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll 1: %v", err)
	}
	if err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll 2: %v", err)
	}

	var got []int64
	for {
		b, ok := s.NextBar()
		if !ok {
			break
		}
		got = append(got, b.Timestamp)
	}
	if len(got) != 2 || got[0] != 100 || got[1] != 200 {
		t.Fatalf("buffered timestamps = %v, want [100 200] (no duplicate for ts=100)", got)
	}
}

func TestHTTPPollStreamSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	bus := eventbus.New()
	defer bus.Close()
	store := kvstore.NewInMemoryStore()

	s, err := NewHTTPPollStream(bus, store, "X", market.Timeframe1Min, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPPollStream: %v", err)
	}

	if err := s.Poll(context.Background()); err == nil {
		t.Fatal("expected Poll to surface the HTTP 500 as an error")
	}
	if _, ok := s.NextBar(); ok {
		t.Fatal("expected no buffered bars after a failed poll")
	}
}
