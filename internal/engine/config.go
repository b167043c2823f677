package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config holds the configuration for a single backtest run: which symbols
// to trade, what strategy windows to use, and where (if anywhere) to
// archive the finished result.
type Config struct {
	// Symbols lists (symbol, timeframe) pairs. cmd/backtest wires a
	// BacktestStream and a reference strategy for the first entry only.
	Symbols []SymbolConfig `json:"symbols" validate:"required,min=1,dive"`
	// ShortWindow/LongWindow override the reference strategy's moving
	// average windows; zero means use the strategy package defaults.
	ShortWindow int `json:"short_window" validate:"gte=0"`
	LongWindow  int `json:"long_window" validate:"gte=0"`
	// CommissionPerUnit is a flat per-unit commission charged by the broker
	// simulator; zero means no commission.
	CommissionPerUnit float64 `json:"commission_per_unit" validate:"gte=0"`
	// ResultStoreDSN names a Postgres result store. It is parsed but not read
	// by Engine or cmd/backtest; no run summary is archived from it.
	ResultStoreDSN string `json:"result_store_dsn"`
}

// SymbolConfig names one stream the engine should drive.
type SymbolConfig struct {
	Symbol    string `json:"symbol" validate:"required"`
	Timeframe string `json:"timeframe" validate:"required"`
}

// LoadConfig reads and validates a JSON config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read config %q: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("engine: parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks struct tags via go-playground/validator.
func (c *Config) Validate() error {
	return validate.Struct(c)
}
