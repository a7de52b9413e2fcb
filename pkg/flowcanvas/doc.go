/*
Package flowcanvas executes workflow graphs built on the visual canvas.

# Overview

A workflow is a graph.Snapshot: typed nodes wired output port to input
port. The Engine walks it breadth-first from every enabled entry node
(trigger, webhook, schedule), dispatching each node to the Handler
registered for its type and forwarding the handler's outputs along the
node's outgoing connections.

# Basic Usage

	engine := flowcanvas.New(
	    flowcanvas.WithLogger(logger),
	    flowcanvas.WithStats(manager),
	)
	handlers.RegisterDefaults(engine, invoker)

	report, err := engine.Run(ctx, g.Snapshot(), flowcanvas.WithWorkflowID(id))
	if err != nil {
	    // rejected before dispatch: ErrMissingEntryNode, ErrRunInProgress
	}
	for _, rec := range report.Records {
	    fmt.Println(rec.NodeID, rec.Status)
	}

# Handlers

Handlers are looked up by node type. A registration ending in "*" matches
every type with that prefix, so "agent-*" serves "agent-writer" and
"agent-reviewer". Exact registrations win over patterns:

	engine.Register("output", flowcanvas.HandlerFunc(
	    func(ctx flowcanvas.Context, in flowcanvas.Input) (flowcanvas.Output, error) {
	        return flowcanvas.Output{"result": in.Merged()}, nil
	    }))

A node whose type has no handler fails with *UnregisteredNodeTypeError.

# Data Flow

Every handler returns an Output keyed by output port. For each connection
leaving the node, the value at the connection's source port becomes the
value at the destination's input port. When several connections feed the
same input port, whichever producer ran last wins; connections from the
same producer are applied in insertion order, so the later one wins.

Each node runs at most once per run. A node reached a second time is not
dispatched again, which also keeps cycles from looping.

# Failure Policy

With AbortOnError (the default) the first node failure ends the run. With
ContinueOnError other branches keep running and the failed node's
descendants are recorded as skipped. Disabled nodes are always skipped and
never propagate.

# Concurrency

An Engine runs one workflow at a time. Run returns ErrRunInProgress while
another run is active, and Stop cancels the active run. Side effects of
nodes that already ran are not undone; the report lists them with the run
status set to cancelled.
*/
package flowcanvas
