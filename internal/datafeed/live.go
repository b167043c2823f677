package datafeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
	"jax-backtest-engine/internal/observability"
)

// HTTPPollStream is a DataStream that polls a JSON bars endpoint on a fixed
// interval and buffers whatever new bars arrive since the last poll: a
// resty client guarded by a circuit breaker, following
// libs/marketdata/ib/client.go's client-plus-breaker pattern. The
// Alpaca/Polygon adapters use their own SDK clients and no circuit breaker.
//
// This is the seam spec.md's design notes reserve for a future live feed; a
// backtest never constructs one.
type HTTPPollStream struct {
	symbol string
	tf     market.Timeframe
	url    string

	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[[]market.Bar]

	mu      sync.Mutex
	buffer  []market.Bar
	lastErr error
}

// polledBar is the wire shape expected from the polling endpoint.
type polledBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float32 `json:"open"`
	High      float32 `json:"high"`
	Low       float32 `json:"low"`
	Close     float32 `json:"close"`
	Volume    float64 `json:"volume"`
}

// NewHTTPPollStream constructs a live poller against baseURL, announcing
// itself on the bus/store like any other DataStream.
func NewHTTPPollStream(bus *eventbus.Dispatcher, store kvstore.Store, symbol string, tf market.Timeframe, baseURL string) (*HTTPPollStream, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("datafeed: invalid timeframe %q", tf)
	}

	cb := gobreaker.NewCircuitBreaker[[]market.Bar](gobreaker.Settings{
		Name:        fmt.Sprintf("http-poll-%s", symbol),
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	s := &HTTPPollStream{
		symbol:  symbol,
		tf:      tf,
		url:     baseURL,
		http:    resty.New().SetTimeout(10 * time.Second),
		breaker: cb,
	}
	announce(bus, store, symbol, tf)
	return s, nil
}

func (s *HTTPPollStream) Symbol() string              { return s.symbol }
func (s *HTTPPollStream) Timeframe() market.Timeframe { return s.tf }
func (s *HTTPPollStream) Type() StreamType            { return StreamLive }

// Poll fetches the latest bars from the remote endpoint and appends any that
// are newer than what is already buffered. Call this from the owning
// goroutine on a ticker; NextBar only ever drains the buffer.
func (s *HTTPPollStream) Poll(ctx context.Context) error {
	bars, err := s.breaker.Execute(func() ([]market.Bar, error) {
		var payload []polledBar
		resp, err := s.http.R().
			SetContext(ctx).
			SetResult(&payload).
			SetQueryParam("symbol", s.symbol).
			Get(s.url)
		if err != nil {
			return nil, fmt.Errorf("datafeed: poll %s: %w", s.symbol, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("datafeed: poll %s: http %d", s.symbol, resp.StatusCode())
		}
		out := make([]market.Bar, 0, len(payload))
		for _, p := range payload {
			out = append(out, market.Bar{
				Timestamp: p.Timestamp,
				Open:      p.Open,
				High:      p.High,
				Low:       p.Low,
				Close:     p.Close,
				Volume:    p.Volume,
			})
		}
		return out, nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		observability.LogEvent(ctx, "error", "live_stream_poll_failed", map[string]any{
			"symbol": s.symbol,
			"error":  err,
		})
		return err
	}

	if len(s.buffer) > 0 {
		lastTs := s.buffer[len(s.buffer)-1].Timestamp
		for _, b := range bars {
			if b.Timestamp > lastTs {
				s.buffer = append(s.buffer, b)
			}
		}
	} else {
		s.buffer = append(s.buffer, bars...)
	}
	return nil
}

// NextBar drains the oldest buffered bar, or reports none available.
func (s *HTTPPollStream) NextBar() (market.Bar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		return market.Bar{}, false
	}
	b := s.buffer[0]
	s.buffer = s.buffer[1:]
	return b, true
}
