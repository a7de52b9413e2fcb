package flowcanvas

import (
	"context"
	"log/slog"
)

// Context is passed to every handler. It extends context.Context with the
// run's identity and a logger enriched with run and node fields.
type Context interface {
	context.Context

	// Logger never returns nil.
	Logger() *slog.Logger

	// RunID returns the unique identifier of this run.
	RunID() string

	// WorkflowID returns the workflow being run, or "".
	WorkflowID() string

	// NodeID returns the node being executed.
	NodeID() string

	// Payload returns the data the run was started with. Entry handlers
	// forward it downstream.
	Payload() map[string]any
}

type nodeContext struct {
	context.Context

	logger     *slog.Logger
	runID      string
	workflowID string
	nodeID     string
	payload    map[string]any
}

func (c *nodeContext) Logger() *slog.Logger    { return c.logger }
func (c *nodeContext) RunID() string           { return c.runID }
func (c *nodeContext) WorkflowID() string      { return c.workflowID }
func (c *nodeContext) NodeID() string          { return c.nodeID }
func (c *nodeContext) Payload() map[string]any { return c.payload }

// forNode returns a context for one node dispatch.
func (c *nodeContext) forNode(ctx context.Context, nodeID, nodeType string) *nodeContext {
	return &nodeContext{
		Context:    ctx,
		logger:     c.logger.With("node_id", nodeID, "node_type", nodeType),
		runID:      c.runID,
		workflowID: c.workflowID,
		nodeID:     nodeID,
		payload:    c.payload,
	}
}

// NewContext builds a Context outside of a run, for exercising handlers
// directly.
func NewContext(ctx context.Context, logger *slog.Logger, runID, nodeID string, payload map[string]any) Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &nodeContext{
		Context: ctx,
		logger:  logger,
		runID:   runID,
		nodeID:  nodeID,
		payload: payload,
	}
}
