package testsupport

import (
	"math"

	"jax-backtest-engine/internal/market"
)

// SyntheticBarSeries generates a deterministic, ascending-timestamp bar
// sequence for tests and demos. It is not a market-data parser: the core's
// contract begins at the in-memory Bar sequence, and this is one way to
// produce one without a fixture file or CSV ingestion dependency.
//
// Close prices follow start + amplitude*sin(i/period), giving a sequence
// with genuine oscillation (useful for exercising a moving-average
// crossover) while remaining fully reproducible.
func SyntheticBarSeries(count int, startTimestamp int64, stepSeconds int64, start, amplitude float64, period float64) []market.Bar {
	bars := make([]market.Bar, 0, count)
	for i := 0; i < count; i++ {
		close := start + amplitude*math.Sin(float64(i)/period)
		spread := amplitude * 0.01
		bar := market.Bar{
			Timestamp: startTimestamp + int64(i)*stepSeconds,
			Open:      float32(close - spread/2),
			High:      float32(close + spread),
			Low:       float32(close - spread - 0.01),
			Close:     float32(close),
			Volume:    1000 + float64(i),
		}
		bars = append(bars, bar)
	}
	return bars
}

// TrendingBarSeries generates a monotonic run of bars: rising when slope is
// positive, falling when negative. Useful for deterministic crossover
// scenarios where a single, unambiguous flip is required.
func TrendingBarSeries(count int, startTimestamp int64, stepSeconds int64, start, slope float64) []market.Bar {
	bars := make([]market.Bar, 0, count)
	for i := 0; i < count; i++ {
		close := start + slope*float64(i)
		bar := market.Bar{
			Timestamp: startTimestamp + int64(i)*stepSeconds,
			Open:      float32(close),
			High:      float32(close + 0.5),
			Low:       float32(close - 0.5 - 0.01),
			Close:     float32(close),
			Volume:    1000,
		}
		bars = append(bars, bar)
	}
	return bars
}
