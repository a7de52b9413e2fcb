package flowcanvas

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
)

func at(x, y float64) graph.Point { return graph.Point{X: x, Y: y} }

func connect(t *testing.T, g *graph.Graph, src, dst graph.Node) {
	t.Helper()
	_, ok := g.Connect(src.ID, graph.PortOutput, dst.ID, graph.PortInput)
	require.True(t, ok)
}

// TestRun_TriggerToOutput tests the smallest runnable workflow.
func TestRun_TriggerToOutput(t *testing.T) {
	g := graph.New()
	a := g.AddNode("trigger", at(0, 0))
	b := g.AddNode("output", at(200, 0))
	connect(t, g, a, b)

	e, _ := newEngine()
	report, err := e.Run(testCtx(), g.Snapshot())

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, report.Status)
	require.Len(t, report.Records, 2)
	assert.Equal(t, a.ID, report.Records[0].NodeID)
	assert.Equal(t, NodeSucceeded, report.Records[0].Status)
	assert.Equal(t, b.ID, report.Records[1].NodeID)
	assert.Equal(t, NodeSucceeded, report.Records[1].Status)
	assert.NoError(t, report.Err)
	assert.False(t, e.Running())
}

// TestRun_MissingEntryNode tests that a graph without an entry node does nothing.
func TestRun_MissingEntryNode(t *testing.T) {
	g := graph.New()
	a := g.AddNode("email", at(0, 0))
	b := g.AddNode("output", at(200, 0))
	connect(t, g, a, b)

	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()
	var mu sync.Mutex
	var events []string
	bus.Subscribe(func(_ context.Context, evt event.Event) error {
		mu.Lock()
		events = append(events, evt.Type)
		mu.Unlock()
		return nil
	})

	stats := &fakeStats{}
	e, tr := newEngine(WithStats(stats), WithPublisher(bus))
	report, err := e.Run(testCtx(), g.Snapshot())

	require.ErrorIs(t, err, ErrMissingEntryNode)
	assert.Nil(t, report)
	assert.Empty(t, tr.Calls())
	assert.Equal(t, 0, stats.starts, "usage counters untouched")
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, events)
	mu.Unlock()
}

// TestRun_DisabledEntryNodeIsMissing tests that a disabled trigger cannot start a run.
func TestRun_DisabledEntryNodeIsMissing(t *testing.T) {
	g := graph.New()
	a := g.AddNode("trigger", at(0, 0))
	g.SetEnabled(a.ID, false)

	e, _ := newEngine()
	_, err := e.Run(testCtx(), g.Snapshot())
	assert.ErrorIs(t, err, ErrMissingEntryNode)
}

// TestRun_DeletedEntryNode tests that removing the trigger cascades and blocks runs.
func TestRun_DeletedEntryNode(t *testing.T) {
	g := graph.New()
	a := g.AddNode("trigger", at(0, 0))
	b := g.AddNode("output", at(200, 0))
	connect(t, g, a, b)

	require.True(t, g.DeleteNode(a.ID))
	assert.Empty(t, g.Connections())

	e, tr := newEngine()
	_, err := e.Run(testCtx(), g.Snapshot())
	assert.ErrorIs(t, err, ErrMissingEntryNode)
	assert.Empty(t, tr.Calls())
}

// TestRun_DataFlowsAlongConnections tests output port to input port delivery.
func TestRun_DataFlowsAlongConnections(t *testing.T) {
	g := graph.New()
	a := g.AddNode("trigger", at(0, 0))
	b := g.AddNode("email", at(0, 100))
	connect(t, g, a, b)

	var got Input
	e := New()
	e.Register("trigger", HandlerFunc(passthrough))
	e.Register("email", HandlerFunc(func(_ Context, in Input) (Output, error) {
		got = in
		return Output{graph.PortOutput: "sent"}, nil
	}))

	report, err := e.Run(testCtx(), g.Snapshot(), WithPayload(map[string]any{"to": "ops@example.com"}))
	require.NoError(t, err)
	require.Equal(t, RunCompleted, report.Status)

	assert.Equal(t, map[string]any{"to": "ops@example.com"}, got.Value(graph.PortInput))
	assert.Equal(t, "ops@example.com", got.Merged()["to"])
	rec, ok := report.Record(b.ID)
	require.True(t, ok)
	assert.Equal(t, Output{graph.PortOutput: "sent"}, rec.Output)
}

// TestRun_LatestProducerWins tests multiple producers into one input port.
func TestRun_LatestProducerWins(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	left := g.AddNode("left", at(-100, 100))
	right := g.AddNode("right", at(100, 100))
	sink := g.AddNode("sink", at(0, 200))
	connect(t, g, trig, left)
	connect(t, g, trig, right)
	connect(t, g, left, sink)
	connect(t, g, right, sink)

	var got any
	e := New()
	e.Register("trigger", HandlerFunc(passthrough))
	e.Register("left", HandlerFunc(func(Context, Input) (Output, error) {
		return Output{graph.PortOutput: "left"}, nil
	}))
	e.Register("right", HandlerFunc(func(Context, Input) (Output, error) {
		return Output{graph.PortOutput: "right"}, nil
	}))
	e.Register("sink", HandlerFunc(func(_ Context, in Input) (Output, error) {
		got = in.Value(graph.PortInput)
		return nil, nil
	}))

	report, err := e.Run(testCtx(), g.Snapshot())
	require.NoError(t, err)
	require.Equal(t, RunCompleted, report.Status)
	assert.Equal(t, "right", got)
	assert.Equal(t, []string{trig.ID, left.ID, right.ID, sink.ID}, recordIDs(report))
}

// TestRun_EachNodeOnce tests that cycles and diamonds dispatch each node once.
func TestRun_EachNodeOnce(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	a := g.AddNode("email", at(0, 100))
	b := g.AddNode("email", at(0, 200))
	connect(t, g, trig, a)
	connect(t, g, a, b)
	connect(t, g, b, a)

	e, tr := newEngine()
	report, err := e.Run(testCtx(), g.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, report.Status)
	assert.Equal(t, []string{trig.ID, a.ID, b.ID}, tr.Calls())
}

// TestRun_UnregisteredNodeType tests that a type without a handler fails its node.
func TestRun_UnregisteredNodeType(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	odd := g.AddNode("mystery", at(0, 100))
	connect(t, g, trig, odd)

	e := New()
	e.Register("trigger", HandlerFunc(passthrough))
	report, err := e.Run(testCtx(), g.Snapshot())

	require.NoError(t, err)
	assert.Equal(t, RunError, report.Status)
	rec, ok := report.Record(odd.ID)
	require.True(t, ok)
	assert.Equal(t, NodeFailed, rec.Status)

	var unreg *UnregisteredNodeTypeError
	require.ErrorAs(t, rec.Err, &unreg)
	assert.Equal(t, "mystery", unreg.Type)
	assert.Equal(t, rec.Err.Error(), rec.Error)
	assert.ErrorAs(t, report.Err, &unreg)
}

// TestRun_AbortOnError tests that dispatch stops at the first failure.
func TestRun_AbortOnError(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	bad := g.AddNode("bad", at(0, 100))
	other := g.AddNode("email", at(200, 100))
	after := g.AddNode("output", at(0, 200))
	connect(t, g, trig, bad)
	connect(t, g, trig, other)
	connect(t, g, bad, after)

	e, tr := newEngine()
	e.Register("bad", tr.wrap(failing))
	report, err := e.Run(testCtx(), g.Snapshot())

	require.NoError(t, err)
	assert.Equal(t, RunError, report.Status)
	assert.Equal(t, []string{trig.ID, bad.ID}, tr.Calls())
	assert.ErrorIs(t, report.Err, errBoom)

	var nodeErr *NodeError
	require.ErrorAs(t, report.Err, &nodeErr)
	assert.Equal(t, bad.ID, nodeErr.NodeID)
	_, ranOther := report.Record(other.ID)
	assert.False(t, ranOther)
}

// TestRun_ContinueOnError tests that independent branches keep running.
func TestRun_ContinueOnError(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	bad := g.AddNode("bad", at(0, 100))
	ok := g.AddNode("email", at(200, 100))
	child := g.AddNode("output", at(0, 200))
	grandchild := g.AddNode("notification", at(0, 300))
	connect(t, g, trig, bad)
	connect(t, g, trig, ok)
	connect(t, g, bad, child)
	connect(t, g, ok, grandchild)

	e, tr := newEngine(WithPolicy(ContinueOnError))
	e.Register("bad", tr.wrap(failing))
	report, err := e.Run(testCtx(), g.Snapshot())

	require.NoError(t, err)
	assert.Equal(t, RunError, report.Status)
	assert.Equal(t, []string{trig.ID, bad.ID, ok.ID, grandchild.ID}, tr.Calls())

	rec, found := report.Record(child.ID)
	require.True(t, found)
	assert.Equal(t, NodeSkipped, rec.Status)
	assert.Equal(t, SkipUpstreamFailed, rec.Reason)
	assert.Equal(t, 1, report.Count(NodeFailed))
	assert.Equal(t, 1, report.Count(NodeSkipped))
}

// TestRun_DisabledNodeIsSkipped tests that disabled nodes do not propagate.
func TestRun_DisabledNodeIsSkipped(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	off := g.AddNode("email", at(0, 100))
	after := g.AddNode("output", at(0, 200))
	connect(t, g, trig, off)
	connect(t, g, off, after)
	g.SetEnabled(off.ID, false)

	e, tr := newEngine()
	report, err := e.Run(testCtx(), g.Snapshot())

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, report.Status)
	assert.Equal(t, []string{trig.ID}, tr.Calls())
	rec, _ := report.Record(off.ID)
	assert.Equal(t, NodeSkipped, rec.Status)
	assert.Equal(t, SkipDisabled, rec.Reason)
	_, found := report.Record(after.ID)
	assert.False(t, found)
}

// TestRun_PanicRecovered tests that a panicking handler fails only its node.
func TestRun_PanicRecovered(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	p := g.AddNode("explode", at(0, 100))
	connect(t, g, trig, p)

	e, _ := newEngine()
	e.Register("explode", HandlerFunc(func(Context, Input) (Output, error) {
		panic("kaboom")
	}))
	report, err := e.Run(testCtx(), g.Snapshot())

	require.NoError(t, err)
	assert.Equal(t, RunError, report.Status)
	var panicErr *PanicError
	require.ErrorAs(t, report.Err, &panicErr)
	assert.Equal(t, p.ID, panicErr.NodeID)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

// TestRun_ConfigMergedOverDefaults tests catalogue defaults reach the handler.
func TestRun_ConfigMergedOverDefaults(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	n := graph.Node{
		ID:      "notify",
		Type:    "notification",
		Inputs:  []string{graph.PortInput},
		Outputs: []string{graph.PortOutput},
		Config:  map[string]any{"message": "hi"},
		Enabled: true,
	}
	snap := g.Snapshot()
	snap.Nodes = append(snap.Nodes, n)
	snap.Connections = append(snap.Connections, graph.Connection{
		ID: "c1", SourceID: trig.ID, SourcePort: graph.PortOutput,
		TargetID: n.ID, TargetPort: graph.PortInput,
	})

	var channel, message string
	e, _ := newEngine()
	e.Register("notification", HandlerFunc(func(_ Context, in Input) (Output, error) {
		channel = in.Config.String("channel", "")
		message = in.Config.String("message", "")
		return nil, nil
	}))
	_, err := e.Run(testCtx(), snap)

	require.NoError(t, err)
	assert.Equal(t, "default", channel)
	assert.Equal(t, "hi", message)
}

// TestRun_PatternHandlers tests prefix registrations and exact precedence.
func TestRun_PatternHandlers(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	writer := g.AddNode("agent-writer", at(0, 100))
	special := g.AddNode("agent-special", at(200, 100))
	connect(t, g, trig, writer)
	connect(t, g, trig, special)

	var mu sync.Mutex
	seen := map[string]string{}
	handle := func(name string) HandlerFunc {
		return func(_ Context, in Input) (Output, error) {
			mu.Lock()
			seen[in.Node.Type] = name
			mu.Unlock()
			return nil, nil
		}
	}

	e := New()
	e.Register("trigger", HandlerFunc(passthrough))
	e.Register("agent-*", handle("pattern"))
	e.Register("agent-special", handle("exact"))

	assert.True(t, e.Handles("agent-anything"))
	assert.False(t, e.Handles("integration-slack"))

	_, err := e.Run(testCtx(), g.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"agent-writer": "pattern", "agent-special": "exact"}, seen)
}

// TestRun_ContextCarriesRunIdentity tests the handler context.
func TestRun_ContextCarriesRunIdentity(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))

	var runID, workflowID, nodeID string
	e := New()
	e.Register("trigger", HandlerFunc(func(ctx Context, _ Input) (Output, error) {
		runID, workflowID, nodeID = ctx.RunID(), ctx.WorkflowID(), ctx.NodeID()
		require.NotNil(t, ctx.Logger())
		return nil, nil
	}))

	report, err := e.Run(testCtx(), g.Snapshot(), WithRunID("run-7"), WithWorkflowID("wf-1"))
	require.NoError(t, err)
	assert.Equal(t, "run-7", runID)
	assert.Equal(t, "wf-1", workflowID)
	assert.Equal(t, trig.ID, nodeID)
	assert.Equal(t, "run-7", report.RunID)
	assert.Equal(t, "wf-1", report.WorkflowID)
}

// TestRun_BusyGuard tests that runs never interleave.
func TestRun_BusyGuard(t *testing.T) {
	g := graph.New()
	g.AddNode("trigger", at(0, 0))

	started := make(chan struct{})
	release := make(chan struct{})
	e := New()
	e.Register("trigger", HandlerFunc(func(Context, Input) (Output, error) {
		close(started)
		<-release
		return nil, nil
	}))

	done := make(chan *RunReport)
	go func() {
		report, _ := e.Run(testCtx(), g.Snapshot())
		done <- report
	}()

	<-started
	assert.True(t, e.Running())
	_, err := e.Run(testCtx(), g.Snapshot())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	report := <-done
	assert.Equal(t, RunCompleted, report.Status)
	assert.False(t, e.Running())
}

// TestStop_CancelsActiveRun tests that stop halts dispatch and reports partial work.
func TestStop_CancelsActiveRun(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	slow := g.AddNode("slow", at(0, 100))
	after := g.AddNode("output", at(0, 200))
	connect(t, g, trig, slow)
	connect(t, g, slow, after)

	started := make(chan struct{})
	e, tr := newEngine()
	e.Register("slow", tr.wrap(func(ctx Context, _ Input) (Output, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	assert.False(t, e.Stop(), "nothing to stop yet")

	done := make(chan *RunReport)
	go func() {
		report, _ := e.Run(testCtx(), g.Snapshot())
		done <- report
	}()

	<-started
	assert.True(t, e.Stop())

	var report *RunReport
	select {
	case report = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}

	assert.Equal(t, RunCancelled, report.Status)
	assert.Equal(t, []string{trig.ID, slow.ID}, tr.Calls())
	assert.ErrorIs(t, report.Err, context.Canceled)
	rec, _ := report.Record(trig.ID)
	assert.Equal(t, NodeSucceeded, rec.Status, "completed work is still reported")
	_, found := report.Record(after.ID)
	assert.False(t, found)
}

// TestRun_CancelledContext tests that a cancelled caller context dispatches nothing.
func TestRun_CancelledContext(t *testing.T) {
	g := graph.New()
	g.AddNode("trigger", at(0, 0))

	ctx, cancel := context.WithCancel(testCtx())
	cancel()

	stats := &fakeStats{}
	e, tr := newEngine(WithStats(stats))
	report, err := e.Run(ctx, g.Snapshot())

	require.NoError(t, err)
	assert.Equal(t, RunCancelled, report.Status)
	assert.Empty(t, tr.Calls())
	assert.Equal(t, 1, stats.starts)
	assert.Equal(t, 0, stats.succeeded)
}

// TestRun_UsageCounters tests the stats hooks on start and finish.
func TestRun_UsageCounters(t *testing.T) {
	g := graph.New()
	trig := g.AddNode("trigger", at(0, 0))
	bad := g.AddNode("bad", at(0, 100))

	stats := &fakeStats{}
	e, _ := newEngine(WithStats(stats))
	e.Register("bad", HandlerFunc(failing))

	_, err := e.Run(testCtx(), g.Snapshot())
	require.NoError(t, err)
	connect(t, g, trig, bad)
	_, err = e.Run(testCtx(), g.Snapshot())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.starts, "counted whatever the node outcomes")
	assert.Equal(t, 2, stats.finishes)
	assert.Equal(t, 1, stats.succeeded)
	assert.False(t, stats.last.IsZero())
}

// TestRun_PublishesEvents tests run lifecycle events on the bus.
func TestRun_PublishesEvents(t *testing.T) {
	g := graph.New()
	a := g.AddNode("trigger", at(0, 0))
	b := g.AddNode("output", at(0, 100))
	connect(t, g, a, b)

	bus := event.NewBus(event.DefaultBusConfig)
	defer bus.Close()
	var mu sync.Mutex
	var got []event.Event
	bus.Subscribe(func(_ context.Context, evt event.Event) error {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
		return nil
	})

	e, _ := newEngine(WithPublisher(bus))
	report, err := e.Run(testCtx(), g.Snapshot(), WithRunID("run-1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 4
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	types := make([]string, len(got))
	for i, evt := range got {
		types[i] = evt.Type
		assert.Equal(t, "run-1", evt.CorrelationID)
	}
	assert.Equal(t, []string{
		event.TypeRunStarted, event.TypeNodeFinished, event.TypeNodeFinished, event.TypeRunFinished,
	}, types)
	assert.Same(t, report, got[3].Data)
}

// TestInput_Merged tests combining map-valued inputs.
func TestInput_Merged(t *testing.T) {
	in := Input{
		Node: graph.Node{Inputs: []string{"a", "b"}},
		Inputs: map[string]any{
			"b":     map[string]any{"x": 2, "z": 3},
			"a":     map[string]any{"x": 1, "y": 1},
			"extra": "raw",
		},
	}
	assert.Equal(t, map[string]any{"x": 2, "y": 1, "z": 3, "extra": "raw"}, in.Merged())
	assert.Nil(t, in.Value("missing"))
}

func recordIDs(r *RunReport) []string {
	ids := make([]string, len(r.Records))
	for i, rec := range r.Records {
		ids[i] = rec.NodeID
	}
	return ids
}
