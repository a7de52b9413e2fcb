package version

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/storage"
)

var errDiskFull = errors.New("disk full")

var alice = storage.Tenant{UserID: "alice"}

// countingStore wraps a MemoryStore, counts writes per key and can be
// switched into failing mode.
type countingStore struct {
	*storage.MemoryStore

	mu      sync.Mutex
	sets    map[string]int
	failing atomic.Bool
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: storage.NewMemoryStore(), sets: make(map[string]int)}
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.failing.Load() {
		return errDiskFull
	}
	s.mu.Lock()
	s.sets[key]++
	s.mu.Unlock()
	return s.MemoryStore.Set(ctx, key, value, ttl)
}

func (s *countingStore) setCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[key]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newManager returns a manager over a graph holding one trigger node.
func newManager(t *testing.T, store storage.Store, opts ...Option) (*Manager, *graph.Graph, graph.Node) {
	t.Helper()
	g := graph.New()
	n := g.AddNode("trigger", graph.Point{})
	opts = append([]Option{WithLogger(discardLogger()), WithDelay(20 * time.Millisecond)}, opts...)
	m := NewManager(g, store, alice, "wf-1", opts...)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, g, n
}
