package observability

import "github.com/google/uuid"

// NewRunID generates a unique identifier for a single backtest run,
// suitable for correlating log lines, metrics, and a persisted RunSummary.
func NewRunID() string {
	return "run_" + uuid.NewString()
}

// NewFlowID generates a unique identifier for one bar's trip through the
// full decision pipeline (bar -> strategy -> risk -> order -> broker ->
// portfolio), useful when tracing a single tick across log lines.
func NewFlowID() string {
	return "flow_" + uuid.NewString()
}
