package flowcanvas

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/config"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/observability"
)

// run is the state of one execution.
type run struct {
	engine *Engine
	cfg    runConfig
	snap   graph.Snapshot
	logger *slog.Logger

	nodes  map[string]graph.Node
	adj    map[string][]graph.Connection
	inputs map[string]map[string]any
	seen   map[string]bool
	report *RunReport
}

// pending is a queued node. Blocked nodes descend from a failure and are
// recorded as skipped instead of dispatched.
type pending struct {
	id      string
	blocked bool
}

func (r *run) execute(ctx context.Context, entries []string) *RunReport {
	e := r.engine
	start := time.Now()
	r.report = &RunReport{
		RunID:      r.cfg.runID,
		WorkflowID: r.cfg.workflowID,
		StartedAt:  start,
	}

	r.nodes = make(map[string]graph.Node, len(r.snap.Nodes))
	for _, n := range r.snap.Nodes {
		r.nodes[n.ID] = n
	}
	r.adj = make(map[string][]graph.Connection)
	for _, c := range r.snap.Connections {
		r.adj[c.SourceID] = append(r.adj[c.SourceID], c)
	}
	r.inputs = make(map[string]map[string]any)
	r.seen = make(map[string]bool, len(r.snap.Nodes))

	e.recordStart(ctx, r.cfg.workflowID, start)
	observability.LogRunStart(r.logger, len(entries))
	e.publish(ctx, event.TypeRunStarted, r.cfg, map[string]any{
		"workflow_id": r.cfg.workflowID,
		"entry_nodes": entries,
	})

	spanCtx, span := e.spans.StartRunSpan(ctx, r.cfg.workflowID, r.cfg.runID)

	queue := make([]pending, 0, len(r.snap.Nodes))
	for _, id := range entries {
		r.seen[id] = true
		queue = append(queue, pending{id: id})
	}

	status := RunCompleted
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		if err := ctx.Err(); err != nil {
			status = RunCancelled
			r.report.Err = err
			break
		}

		n := r.nodes[p.id]
		switch {
		case p.blocked:
			r.skip(ctx, n, SkipUpstreamFailed)
			queue = r.enqueue(queue, n.ID, true)
			continue
		case !n.Enabled:
			r.skip(ctx, n, SkipDisabled)
			continue
		}

		rec := r.dispatch(spanCtx, n)
		r.report.add(rec)
		e.publish(ctx, event.TypeNodeFinished, r.cfg, rec)

		if rec.Err == nil {
			r.propagate(n.ID, rec.Output)
			queue = r.enqueue(queue, n.ID, false)
			continue
		}

		if r.report.Err == nil {
			r.report.Err = rec.Err
		}
		if ctx.Err() != nil {
			status = RunCancelled
			break
		}
		status = RunError
		if e.policy == AbortOnError {
			break
		}
		queue = r.enqueue(queue, n.ID, true)
	}

	r.report.Status = status
	r.report.FinishedAt = time.Now()
	duration := r.report.Duration()
	durationMs := float64(duration.Microseconds()) / 1000

	var runErr error
	if status != RunCompleted {
		runErr = r.report.Err
	}
	e.spans.EndSpanWithError(span, runErr)
	e.metrics.RecordRun(ctx, string(status), duration)
	e.recordFinish(ctx, r.cfg.workflowID, status == RunCompleted, r.report.FinishedAt)

	switch status {
	case RunCompleted:
		observability.LogRunComplete(r.logger, string(status), durationMs, r.report.Count(NodeSucceeded))
	default:
		lastNode := ""
		if len(r.report.Records) > 0 {
			lastNode = r.report.Records[len(r.report.Records)-1].NodeID
		}
		err := runErr
		if err == nil {
			err = context.Canceled
		}
		observability.LogRunError(r.logger, err, durationMs, lastNode)
	}

	e.publish(context.WithoutCancel(ctx), event.TypeRunFinished, r.cfg, r.report)
	return r.report
}

// enqueue adds the unseen destinations of id.
func (r *run) enqueue(queue []pending, id string, blocked bool) []pending {
	for _, c := range r.adj[id] {
		if r.seen[c.TargetID] {
			continue
		}
		if _, ok := r.nodes[c.TargetID]; !ok {
			continue
		}
		r.seen[c.TargetID] = true
		queue = append(queue, pending{id: c.TargetID, blocked: blocked})
	}
	return queue
}

// propagate delivers out along every connection leaving id. Later writes
// to the same input port replace earlier ones.
func (r *run) propagate(id string, out Output) {
	for _, c := range r.adj[id] {
		v, ok := out[c.SourcePort]
		if !ok {
			continue
		}
		in := r.inputs[c.TargetID]
		if in == nil {
			in = make(map[string]any)
			r.inputs[c.TargetID] = in
		}
		in[c.TargetPort] = v
	}
}

func (r *run) skip(ctx context.Context, n graph.Node, reason string) {
	observability.LogNodeSkipped(r.logger, n.ID, reason)
	rec := NodeRecord{
		NodeID:    n.ID,
		NodeType:  n.Type,
		Status:    NodeSkipped,
		Reason:    reason,
		StartedAt: time.Now(),
	}
	r.report.add(rec)
	r.engine.publish(ctx, event.TypeNodeFinished, r.cfg, rec)
}

// dispatch runs one node's handler with tracing, metrics and logging.
func (r *run) dispatch(ctx context.Context, n graph.Node) NodeRecord {
	e := r.engine
	observability.LogNodeStart(r.logger, n.ID, n.Type)

	nodeCtx, span := e.spans.StartNodeSpan(ctx, n.ID, n.Type)
	start := time.Now()
	out, err := r.invoke(nodeCtx, n)
	duration := time.Since(start)

	e.metrics.RecordNodeExecution(nodeCtx, n.Type, duration, err)
	e.spans.EndSpanWithError(span, err)

	rec := NodeRecord{
		NodeID:    n.ID,
		NodeType:  n.Type,
		Status:    NodeSucceeded,
		Output:    out,
		StartedAt: start,
		Duration:  duration,
	}
	if err != nil {
		rec.Status = NodeFailed
		rec.Output = nil
		rec.Err = err
		observability.LogNodeError(r.logger, n.ID, err)
		return rec
	}
	observability.LogNodeComplete(r.logger, n.ID, float64(duration.Microseconds())/1000)
	return rec
}

// invoke looks up and calls the handler, recovering panics.
func (r *run) invoke(ctx context.Context, n graph.Node) (out Output, err error) {
	h, _, ok := r.engine.handlers.Lookup(n.Type)
	if !ok {
		return nil, &UnregisteredNodeTypeError{NodeID: n.ID, Type: n.Type}
	}

	cfg, err := config.New(n.Config).WithDefaults(r.engine.catalog.Lookup(n.Type).Defaults)
	if err != nil {
		return nil, &NodeError{NodeID: n.ID, Type: n.Type, Err: err}
	}

	in := Input{Node: n.Clone(), Config: cfg, Inputs: r.inputs[n.ID]}
	if in.Inputs == nil {
		in.Inputs = map[string]any{}
	}

	base := &nodeContext{
		logger:     r.logger,
		runID:      r.cfg.runID,
		workflowID: r.cfg.workflowID,
		payload:    r.cfg.payload,
	}
	nctx := base.forNode(ctx, n.ID, n.Type)

	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &PanicError{
				NodeID: n.ID,
				Value:  rec,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	out, err = h.Execute(nctx, in)
	if err != nil {
		var nodeErr *NodeError
		if !errors.As(err, &nodeErr) {
			err = &NodeError{NodeID: n.ID, Type: n.Type, Err: err}
		}
		return nil, err
	}
	return out, nil
}
