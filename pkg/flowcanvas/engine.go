package flowcanvas

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/observability"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/registry"
)

// Engine runs workflow graphs. It is safe for concurrent use, but runs one
// workflow at a time.
type Engine struct {
	handlers *registry.Patterns[Handler]
	catalog  *graph.Catalog
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	bus      event.Publisher
	stats    StatsRecorder
	policy   ErrorPolicy

	busy   atomic.Bool
	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates an Engine with no handlers registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		handlers: registry.NewPatterns[Handler](),
		catalog:  graph.DefaultCatalog(),
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds or replaces the handler for a node type. A type ending in
// "*" matches every type with that prefix.
func (e *Engine) Register(nodeType string, h Handler) {
	e.handlers.Register(nodeType, h)
}

// Handles reports whether a handler would serve nodeType.
func (e *Engine) Handles(nodeType string) bool {
	_, _, ok := e.handlers.Lookup(nodeType)
	return ok
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	return e.busy.Load()
}

// Stop cancels the active run. Nodes already dispatched are not undone.
// It returns false when no run is active.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// Run executes the workflow in s.
//
// The returned error is non-nil only when the run is rejected before any
// node is dispatched (ErrMissingEntryNode, ErrRunInProgress). Node
// failures and cancellation are reported through the RunReport.
func (e *Engine) Run(ctx context.Context, s graph.Snapshot, opts ...RunOption) (*RunReport, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if !e.busy.CompareAndSwap(false, true) {
		observability.LogRunRejected(e.logger, ErrRunInProgress)
		return nil, ErrRunInProgress
	}
	defer e.busy.Store(false)

	cfg := runConfig{runID: uuid.New().String()}
	for _, opt := range opts {
		opt(&cfg)
	}

	entries := e.entryNodes(s)
	if len(entries) == 0 {
		observability.LogRunRejected(e.logger, ErrMissingEntryNode)
		return nil, ErrMissingEntryNode
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	r := &run{
		engine: e,
		cfg:    cfg,
		snap:   s,
		logger: observability.EnrichLogger(e.logger, cfg.workflowID, cfg.runID),
	}
	return r.execute(runCtx, entries), nil
}

// entryNodes returns the enabled entry nodes in graph order.
func (e *Engine) entryNodes(s graph.Snapshot) []string {
	var ids []string
	for _, n := range s.Nodes {
		if n.Enabled && e.catalog.IsEntry(n.Type) {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (e *Engine) publish(ctx context.Context, eventType string, cfg runConfig, data any) {
	if e.bus == nil {
		return
	}
	evt := event.New(eventType, "engine", data, event.WithCorrelationID(cfg.runID))
	if err := e.bus.Publish(ctx, evt); err != nil {
		e.logger.Warn("event publish failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

// recordStart and recordFinish run on a context detached from cancellation
// so a stopped run still updates its counters.
func (e *Engine) recordStart(ctx context.Context, workflowID string, at time.Time) {
	if e.stats != nil {
		e.stats.RecordRunStart(context.WithoutCancel(ctx), workflowID, at)
	}
}

func (e *Engine) recordFinish(ctx context.Context, workflowID string, succeeded bool, at time.Time) {
	if e.stats != nil {
		e.stats.RecordRunFinish(context.WithoutCancel(ctx), workflowID, succeeded, at)
	}
}
