package flowcanvas

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/observability"
)

// ErrorPolicy decides what happens after a node fails.
type ErrorPolicy int

const (
	// AbortOnError stops dispatching after the first failure.
	AbortOnError ErrorPolicy = iota
	// ContinueOnError keeps running branches that do not depend on the
	// failed node.
	ContinueOnError
)

// StatsRecorder receives workflow usage counters. RecordRunStart is called
// once the entry precondition holds, before any node is dispatched.
type StatsRecorder interface {
	RecordRunStart(ctx context.Context, workflowID string, at time.Time)
	RecordRunFinish(ctx context.Context, workflowID string, succeeded bool, at time.Time)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Default: observability.NoopMetrics.
//
// Example:
//
//	engine := flowcanvas.New(flowcanvas.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithSpanManager enables tracing through sm.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(e *Engine) {
		if sm != nil {
			e.spans = sm
		}
	}
}

// WithPublisher publishes run.started, node.finished and run.finished.
func WithPublisher(p event.Publisher) Option {
	return func(e *Engine) { e.bus = p }
}

// WithStats sets the usage counter sink.
func WithStats(s StatsRecorder) Option {
	return func(e *Engine) { e.stats = s }
}

// WithCatalog sets the node type catalogue used to find entry nodes and
// configuration defaults. Default: graph.DefaultCatalog().
func WithCatalog(c *graph.Catalog) Option {
	return func(e *Engine) {
		if c != nil {
			e.catalog = c
		}
	}
}

// WithPolicy sets the failure policy. Default: AbortOnError.
func WithPolicy(p ErrorPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// runConfig holds per-run settings.
type runConfig struct {
	runID      string
	workflowID string
	payload    map[string]any
}

// RunOption configures one run.
type RunOption func(*runConfig)

// WithRunID sets the run identifier. Default: a new UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithWorkflowID names the workflow for logs, events and usage counters.
func WithWorkflowID(id string) RunOption {
	return func(c *runConfig) { c.workflowID = id }
}

// WithPayload sets the data entry nodes start from.
func WithPayload(p map[string]any) RunOption {
	return func(c *runConfig) { c.payload = p }
}
