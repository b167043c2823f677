// Package observability provides the structured logging, metrics, and ID
// generation used throughout the backtest engine, following the shape of
// libs/observability in the wider trading-assistant codebase this engine was
// extracted from.
package observability

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// runKey is the context key used to thread run/flow identifiers through a
// backtest so every log line for a run can be correlated.
type runKey struct{}

// RunInfo carries the identifiers that should be attached to every log line
// emitted while processing a given backtest run.
type RunInfo struct {
	RunID  string
	Symbol string
}

// WithRunInfo returns a context carrying info for LogEvent to pick up.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runKey{}, info)
}

// RunInfoFromContext extracts RunInfo previously attached with WithRunInfo,
// returning the zero value if none is present.
func RunInfoFromContext(ctx context.Context) RunInfo {
	if info, ok := ctx.Value(runKey{}).(RunInfo); ok {
		return info
	}
	return RunInfo{}
}

// LogEvent emits one structured, newline-delimited JSON log record.
func LogEvent(ctx context.Context, level string, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}

	for k, v := range fields {
		if err, ok := v.(error); ok {
			payload[k] = err.Error()
			continue
		}
		payload[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}
