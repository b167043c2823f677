// cmd/backtest is the CLI entry point for the event-driven backtesting
// engine. It wires an Engine against synthetic deterministic bar series
// (CSV ingestion is handled by an external collaborator, not the core) and
// prints the final portfolio snapshot on completion.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"jax-backtest-engine/internal/broker"
	"jax-backtest-engine/internal/engine"
	"jax-backtest-engine/internal/market"
	"jax-backtest-engine/internal/testsupport"
)

var (
	version = "0.1.0"
)

func main() {
	symbol := flag.String("symbol", "SYN", "symbol to drive the synthetic backtest stream for")
	timeframe := flag.String("timeframe", "1h", "timeframe of the synthetic bar series")
	bars := flag.Int("bars", 400, "number of synthetic bars to generate")
	shortWindow := flag.Int("short-window", 0, "strategy short MA window (0 = package default)")
	longWindow := flag.Int("long-window", 0, "strategy long MA window (0 = package default)")
	commissionPerUnit := flag.Float64("commission-per-unit", 0, "flat commission charged per filled unit")
	configPath := flag.String("config", "", "optional JSON config file (overrides flags)")
	flag.Parse()

	log.Printf("jax-backtest-engine v%s", version)

	tf, err := market.ParseTimeframe(*timeframe)
	if err != nil {
		log.Fatalf("invalid timeframe: %v", err)
	}

	runSymbol := *symbol
	runShort, runLong := *shortWindow, *longWindow
	runCommission := *commissionPerUnit

	if *configPath != "" {
		cfg, err := engine.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		runShort = cfg.ShortWindow
		runLong = cfg.LongWindow
		runCommission = cfg.CommissionPerUnit
		if len(cfg.Symbols) > 0 {
			runSymbol = cfg.Symbols[0].Symbol
			if parsed, err := market.ParseTimeframe(cfg.Symbols[0].Timeframe); err == nil {
				tf = parsed
			}
		}
	}

	var commission broker.CommissionPolicy = broker.ZeroCommission{}
	if runCommission > 0 {
		commission = broker.FlatCommission{PerUnit: runCommission}
	}

	e := engine.New(engine.WithCommissionPolicy(commission))
	defer e.Close()

	series := testsupport.SyntheticBarSeries(*bars, 0, int64(tf.Minutes())*60, 100, 10, 20)
	if err := e.AddBacktestStream(runSymbol, tf, series, runShort, runLong); err != nil {
		log.Fatalf("add stream: %v", err)
	}

	n, err := e.Run()
	if err != nil {
		log.Fatalf("run: %v", err)
	}

	fmt.Printf("bars processed:    %d\n", n)
	fmt.Printf("final balance:     %.2f\n", e.Portfolio.Balance())
	fmt.Printf("available balance: %.2f\n", e.Portfolio.AvailableBalance())
	fmt.Printf("final equity:      %.2f\n", e.Portfolio.Equity())
	fmt.Printf("position[%s]:      %d\n", runSymbol, e.Portfolio.Position(runSymbol))

	os.Exit(0)
}
