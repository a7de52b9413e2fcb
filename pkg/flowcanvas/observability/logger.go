// Package observability provides the logging, metrics and tracing used by
// the execution engine and the version manager.
//
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All helpers accept a nil logger, and metrics and tracing have no-op
// implementations for when they are disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds workflow and run context to a logger.
func EnrichLogger(logger *slog.Logger, workflowID, runID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("workflow_id", workflowID),
		slog.String("run_id", runID),
	)
}

// LogRunStart logs the start of an execution run. The run id comes from
// the EnrichLogger context.
func LogRunStart(logger *slog.Logger, entryNodes int) {
	if logger == nil {
		return
	}
	logger.Info("workflow run starting",
		slog.Int("entry_nodes", entryNodes),
	)
}

// LogRunComplete logs the end of a run that did not fail.
func LogRunComplete(logger *slog.Logger, status string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("workflow run finished",
		slog.String("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogRunError logs a failed run.
func LogRunError(logger *slog.Logger, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("workflow run failed",
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogRunRejected logs a run refused before any node was dispatched.
func LogRunRejected(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Warn("workflow run rejected",
		slog.String("error", err.Error()),
	)
}

// LogNodeStart logs node dispatch.
func LogNodeStart(logger *slog.Logger, nodeID, nodeType string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeSkipped logs a node that was not dispatched.
func LogNodeSkipped(logger *slog.Logger, nodeID, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("node skipped",
		slog.String("node_id", nodeID),
		slog.String("reason", reason),
	)
}

// LogNodeError logs node failure.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogSave logs a persisted save. kind is "autosave" or "version".
func LogSave(logger *slog.Logger, workflowID, kind string, version, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("workflow saved",
		slog.String("workflow_id", workflowID),
		slog.String("kind", kind),
		slog.Int("version", version),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogSaveError logs a failed save. The workflow stays dirty.
func LogSaveError(logger *slog.Logger, workflowID, kind string, err error) {
	if logger == nil {
		return
	}
	logger.Error("workflow save failed",
		slog.String("workflow_id", workflowID),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a func reporting elapsed milliseconds since the call.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
