// Package resultstore archives finished backtest run summaries to
// Postgres. This is scoped narrowly to completed-run archival, not live
// engine state: a run reads and writes nothing here while it is in
// progress, so it does not reintroduce the persistence-across-runs the
// core spec excludes.
package resultstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config mirrors the pool/retry knobs of the teacher's database layer.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
}

// DefaultConfig returns sensible pool/retry defaults.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("resultstore: empty DSN")
	}
	return nil
}

// Store wraps a pooled Postgres connection used to archive run summaries.
type Store struct {
	db *sql.DB
}

// RunSummary is the archived record of one completed backtest run.
type RunSummary struct {
	RunID          string
	StrategyName   string
	Symbols        []string
	StartedAt      time.Time
	FinishedAt     time.Time
	BarsProcessed  int
	FinalBalance   float64
	FinalEquity    float64
	FinalPositions map[string]int64
}

// Connect opens a pooled connection with retry/backoff, following
// libs/database/connection.go's Connect shape in the teacher.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var db *sql.DB
	var err error

	delay := cfg.RetryDelay
	for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}

		db, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			continue
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

		if err = db.PingContext(ctx); err != nil {
			db.Close()
			continue
		}
		return &Store{db: db}, nil
	}
	return nil, fmt.Errorf("resultstore: connect after %d attempts: %w", cfg.RetryAttempts+1, err)
}

// ConnectWithMigrations connects and applies every pending schema
// migration before returning, following
// libs/database/connection.go's ConnectWithMigrations shape in the
// teacher.
func ConnectWithMigrations(ctx context.Context, cfg Config) (*Store, error) {
	s, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(s.db); err != nil {
		s.Close()
		return nil, fmt.Errorf("resultstore: run migrations: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun archives one finished run summary. FinalPositions is not stored.
func (s *Store) SaveRun(ctx context.Context, r RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_summaries
			(run_id, strategy_name, symbols, started_at, finished_at, bars_processed, final_balance, final_equity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			bars_processed = EXCLUDED.bars_processed,
			final_balance = EXCLUDED.final_balance,
			final_equity = EXCLUDED.final_equity
	`, r.RunID, r.StrategyName, r.Symbols, r.StartedAt, r.FinishedAt, r.BarsProcessed, r.FinalBalance, r.FinalEquity)
	if err != nil {
		return fmt.Errorf("resultstore: save run %s: %w", r.RunID, err)
	}
	return nil
}

// LoadRun fetches a previously archived run summary by id. Symbols and
// FinalPositions are left empty in the returned summary.
func (s *Store) LoadRun(ctx context.Context, runID string) (*RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, strategy_name, started_at, finished_at, bars_processed, final_balance, final_equity
		FROM run_summaries WHERE run_id = $1
	`, runID)

	var r RunSummary
	if err := row.Scan(&r.RunID, &r.StrategyName, &r.StartedAt, &r.FinishedAt, &r.BarsProcessed, &r.FinalBalance, &r.FinalEquity); err != nil {
		return nil, fmt.Errorf("resultstore: load run %s: %w", runID, err)
	}
	return &r, nil
}
