package flowcanvas

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
)

// passthrough forwards its merged inputs (or the run payload) on "output".
func passthrough(ctx Context, in Input) (Output, error) {
	if len(in.Inputs) == 0 {
		return Output{graph.PortOutput: ctx.Payload()}, nil
	}
	return Output{graph.PortOutput: in.Merged()}, nil
}

// failing always returns errBoom.
var errBoom = errors.New("boom")

func failing(Context, Input) (Output, error) {
	return nil, errBoom
}

// tracker records the order handlers were called in.
type tracker struct {
	mu    sync.Mutex
	calls []string
}

func (tr *tracker) wrap(h HandlerFunc) HandlerFunc {
	return func(ctx Context, in Input) (Output, error) {
		tr.mu.Lock()
		tr.calls = append(tr.calls, in.Node.ID)
		tr.mu.Unlock()
		return h(ctx, in)
	}
}

func (tr *tracker) Calls() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...)
}

// fakeStats is an in-memory StatsRecorder.
type fakeStats struct {
	mu        sync.Mutex
	starts    int
	finishes  int
	succeeded int
	last      time.Time
}

func (s *fakeStats) RecordRunStart(_ context.Context, _ string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.last = at
}

func (s *fakeStats) RecordRunFinish(_ context.Context, _ string, ok bool, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishes++
	if ok {
		s.succeeded++
	}
}

// newEngine returns an engine that handles every type with passthrough.
func newEngine(opts ...Option) (*Engine, *tracker) {
	tr := &tracker{}
	e := New(opts...)
	e.Register("*", tr.wrap(passthrough))
	return e, tr
}

func testCtx() context.Context {
	return context.Background()
}
