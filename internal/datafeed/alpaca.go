package datafeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/kvstore"
	"jax-backtest-engine/internal/market"
	"jax-backtest-engine/internal/observability"
)

// AlpacaStream is a live DataStream backed by Alpaca's market-data bars
// endpoint, grounded on libs/marketdata/provider_alpaca.go's GetCandles.
type AlpacaStream struct {
	symbol string
	tf     market.Timeframe
	client *marketdata.Client

	mu     sync.Mutex
	buffer []market.Bar
}

// AlpacaConfig holds the credentials needed to construct an AlpacaStream.
// BaseURL overrides the default Alpaca market-data endpoint, following
// libs/marketdata/provider_alpaca.go's NewAlpacaProvider; tests point it at
// an httptest.Server instead of the real API.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// NewAlpacaStream constructs a live stream against Alpaca market data.
func NewAlpacaStream(bus *eventbus.Dispatcher, store kvstore.Store, symbol string, tf market.Timeframe, cfg AlpacaConfig) (*AlpacaStream, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("datafeed: invalid timeframe %q", tf)
	}

	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})

	s := &AlpacaStream{symbol: symbol, tf: tf, client: client}
	announce(bus, store, symbol, tf)
	return s, nil
}

func (s *AlpacaStream) Symbol() string              { return s.symbol }
func (s *AlpacaStream) Timeframe() market.Timeframe { return s.tf }
func (s *AlpacaStream) Type() StreamType            { return StreamLive }

func alpacaTimeFrame(tf market.Timeframe) (marketdata.TimeFrame, error) {
	switch tf {
	case market.Timeframe1Min:
		return marketdata.NewTimeFrame(1, marketdata.Min), nil
	case market.Timeframe5Min:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case market.Timeframe15Min:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case market.Timeframe30Min:
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case market.Timeframe1Hour:
		return marketdata.NewTimeFrame(1, marketdata.Hour), nil
	case market.Timeframe1Day:
		return marketdata.NewTimeFrame(1, marketdata.Day), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("datafeed: alpaca does not support timeframe %q", tf)
	}
}

// Refresh fetches the last day of bars and appends any newer than the
// newest bar still buffered to the buffer that NextBar drains from.
func (s *AlpacaStream) Refresh(ctx context.Context) error {
	tf, err := alpacaTimeFrame(s.tf)
	if err != nil {
		return err
	}

	end := time.Now()
	start := end.Add(-24 * time.Hour)

	bars, err := s.client.GetBars(s.symbol, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
	})
	if err != nil {
		observability.LogEvent(ctx, "error", "alpaca_stream_refresh_failed", map[string]any{
			"symbol": s.symbol,
			"error":  err,
		})
		return fmt.Errorf("datafeed: alpaca GetBars %s: %w", s.symbol, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var lastTs int64
	if len(s.buffer) > 0 {
		lastTs = s.buffer[len(s.buffer)-1].Timestamp
	}
	for _, b := range bars {
		ts := b.Timestamp.Unix()
		if ts <= lastTs {
			continue
		}
		s.buffer = append(s.buffer, market.Bar{
			Timestamp: ts,
			Open:      float32(b.Open),
			High:      float32(b.High),
			Low:       float32(b.Low),
			Close:     float32(b.Close),
			Volume:    b.Volume,
		})
	}
	return nil
}

// NextBar drains the oldest buffered bar.
func (s *AlpacaStream) NextBar() (market.Bar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		return market.Bar{}, false
	}
	b := s.buffer[0]
	s.buffer = s.buffer[1:]
	return b, true
}
