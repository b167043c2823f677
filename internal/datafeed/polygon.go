package datafeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
	"jax-backtest-engine/internal/observability"
)

// PolygonStream is a live DataStream backed by Polygon.io's aggregates
// (bars) endpoint, grounded on libs/marketdata/provider_polygon.go.
type PolygonStream struct {
	symbol string
	tf     market.Timeframe
	client *polygon.Client

	mu     sync.Mutex
	buffer []market.Bar
}

// NewPolygonStream constructs a live stream against Polygon.io aggregates.
func NewPolygonStream(bus *eventbus.Dispatcher, store kvstore.Store, symbol string, tf market.Timeframe, apiKey string) (*PolygonStream, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("datafeed: invalid timeframe %q", tf)
	}

	s := &PolygonStream{symbol: symbol, tf: tf, client: polygon.New(apiKey)}
	announce(bus, store, symbol, tf)
	return s, nil
}

func (s *PolygonStream) Symbol() string              { return s.symbol }
func (s *PolygonStream) Timeframe() market.Timeframe { return s.tf }
func (s *PolygonStream) Type() StreamType            { return StreamLive }

func polygonTimespan(tf market.Timeframe) (multiplier int, span models.Timespan, err error) {
	switch tf {
	case market.Timeframe1Min:
		return 1, models.Minute, nil
	case market.Timeframe5Min:
		return 5, models.Minute, nil
	case market.Timeframe15Min:
		return 15, models.Minute, nil
	case market.Timeframe30Min:
		return 30, models.Minute, nil
	case market.Timeframe1Hour:
		return 1, models.Hour, nil
	case market.Timeframe1Day:
		return 1, models.Day, nil
	default:
		return 0, "", fmt.Errorf("datafeed: polygon does not support timeframe %q", tf)
	}
}

// Refresh fetches the last day of aggregates and appends any bars newer
// than what is already buffered.
func (s *PolygonStream) Refresh(ctx context.Context) error {
	mult, span, err := polygonTimespan(s.tf)
	if err != nil {
		return err
	}

	end := time.Now()
	start := end.Add(-24 * time.Hour)

	params := models.ListAggsParams{
		Ticker:     s.symbol,
		Multiplier: mult,
		Timespan:   span,
		From:       models.Millis(start),
		To:         models.Millis(end),
	}.WithOrder(models.Asc).WithLimit(50000)

	iter := s.client.ListAggs(ctx, &params)

	s.mu.Lock()
	defer s.mu.Unlock()

	var lastTs int64
	if len(s.buffer) > 0 {
		lastTs = s.buffer[len(s.buffer)-1].Timestamp
	}

	for iter.Next() {
		a := iter.Item()
		ts := time.Time(a.Timestamp).Unix()
		if ts <= lastTs {
			continue
		}
		s.buffer = append(s.buffer, market.Bar{
			Timestamp: ts,
			Open:      float32(a.Open),
			High:      float32(a.High),
			Low:       float32(a.Low),
			Close:     float32(a.Close),
			Volume:    a.Volume,
		})
	}
	if err := iter.Err(); err != nil {
		observability.LogEvent(ctx, "error", "polygon_stream_refresh_failed", map[string]any{
			"symbol": s.symbol,
			"error":  err,
		})
		return fmt.Errorf("datafeed: polygon ListAggs %s: %w", s.symbol, err)
	}
	return nil
}

// NextBar drains the oldest buffered bar.
func (s *PolygonStream) NextBar() (market.Bar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		return market.Bar{}, false
	}
	b := s.buffer[0]
	s.buffer = s.buffer[1:]
	return b, true
}
