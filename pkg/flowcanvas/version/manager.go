package version

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/observability"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/storage"
)

// Defaults for a Manager.
const (
	DefaultDelay        = 2 * time.Second
	DefaultHistoryLimit = 10
)

// Save kinds, as reported in logs, metrics and events.
const (
	KindAutosave = "autosave"
	KindVersion  = "version"
	KindStats    = "stats"
)

// Manager persists one workflow graph.
type Manager struct {
	id        string
	namespace string
	graph     *graph.Graph
	store     storage.Store
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	bus       event.Publisher
	onError   func(error)
	now       func() time.Time
	delay     time.Duration
	limit     int

	// saveMu serialises writes to the store.
	saveMu sync.Mutex

	mu         sync.Mutex
	meta       Metadata
	dirty      bool
	generation uint64 // bumped on every mutation
	lastSaved  time.Time
	timer      *time.Timer
	suppress   int // >0 while the manager itself replaces the graph
	closed     bool
}

var _ flowcanvas.StatsRecorder = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithDelay sets the autosave debounce delay. Default: 2s.
func WithDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithHistoryLimit caps the number of kept versions. Default: 10.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithName sets the workflow name for new workflows.
func WithName(name string) Option {
	return func(m *Manager) { m.meta.Name = name }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records save metrics.
func WithMetrics(r observability.MetricsRecorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithSpanManager traces every save.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(m *Manager) {
		if sm != nil {
			m.spans = sm
		}
	}
}

// WithPublisher publishes workflow.saved and workflow.save_failed.
func WithPublisher(p event.Publisher) Option {
	return func(m *Manager) { m.bus = p }
}

// WithErrorHandler receives failures of timer-driven saves.
func WithErrorHandler(fn func(error)) Option {
	return func(m *Manager) { m.onError = fn }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager starts watching g. The workflow is stored under the tenant's
// namespace with the given id. Call Load to pick up a saved workflow.
func NewManager(g *graph.Graph, store storage.Store, tenant storage.Tenant, id string, opts ...Option) *Manager {
	m := &Manager{
		id:        id,
		namespace: tenant.Namespace(),
		graph:     g,
		store:     store,
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
		now:       time.Now,
		delay:     DefaultDelay,
		limit:     DefaultHistoryLimit,
		meta: Metadata{
			ID:        id,
			Namespace: tenant.Namespace(),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.meta.CreatedAt = m.now().UTC()
	m.meta.UpdatedAt = m.meta.CreatedAt
	g.OnChange(m.onChange)
	return m
}

func (m *Manager) onChange(graph.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.suppress > 0 {
		return
	}
	m.dirty = true
	m.generation++
	m.scheduleLocked()
}

// scheduleLocked restarts the debounce timer. Caller holds mu.
func (m *Manager) scheduleLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.delay, m.fire)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// fire runs on the timer goroutine.
func (m *Manager) fire() {
	if err := m.autosave(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
		m.report(err)
	}
}

func (m *Manager) report(err error) {
	if m.onError != nil {
		m.onError(err)
	}
}

// ID returns the workflow id.
func (m *Manager) ID() string { return m.id }

// Dirty reports whether the graph has unsaved changes.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// LastSaved returns when the workflow was last persisted, or zero.
func (m *Manager) LastSaved() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSaved
}

// Metadata returns a copy of the workflow metadata as last persisted.
func (m *Manager) Metadata() Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta.clone()
}

// History returns the kept versions, oldest first.
func (m *Manager) History() []Version {
	return m.Metadata().Versions
}

// Flush runs a pending autosave now. It is a no-op when nothing is dirty.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	m.stopTimerLocked()
	m.mu.Unlock()
	return m.autosave(ctx)
}

// Close flushes unsaved changes and stops watching the graph. Closing
// twice is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil
	}
	err := m.Flush(ctx)
	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked()
	m.mu.Unlock()
	return err
}

// autosave overwrites the latest version with the current graph, creating
// version 1 for a workflow that has none.
func (m *Manager) autosave(ctx context.Context) error {
	return m.save(ctx, KindAutosave, func(meta *Metadata, s graph.Snapshot, at time.Time) {
		if len(meta.Versions) == 0 {
			meta.Versions = []Version{newVersion(1, s, "", "", at)}
			meta.CurrentVersion = 1
			return
		}
		latest := meta.Versions[len(meta.Versions)-1]
		latest.Nodes, latest.Connections = s.Nodes, s.Connections
		latest.UpdatedAt = at
		meta.Versions[len(meta.Versions)-1] = latest
	}, true)
}

// SaveVersion appends a new version holding the current graph and drops the
// oldest versions beyond the history limit.
func (m *Manager) SaveVersion(ctx context.Context, author, label string) (Version, error) {
	var saved Version
	err := m.save(ctx, KindVersion, func(meta *Metadata, s graph.Snapshot, at time.Time) {
		next := 1
		if latest, ok := meta.Latest(); ok {
			next = latest.Number + 1
		}
		saved = newVersion(next, s, author, label, at)
		meta.Versions = append(meta.Versions, saved)
		if over := len(meta.Versions) - m.limit; over > 0 {
			meta.Versions = append([]Version(nil), meta.Versions[over:]...)
		}
		meta.CurrentVersion = next
	}, false)
	return saved, err
}

// save applies fn to a copy of the metadata, persists it, and commits
// the copy on success. onlyDirty skips clean workflows.
func (m *Manager) save(ctx context.Context, kind string, fn func(*Metadata, graph.Snapshot, time.Time), onlyDirty bool) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if onlyDirty && !m.dirty {
		m.mu.Unlock()
		return nil
	}
	gen := m.generation
	meta := m.meta.clone()
	m.mu.Unlock()

	at := m.now().UTC()
	// Stats saves carry the graph as last saved, so they never settle
	// the dirty flag either way.
	graphSave := kind != KindStats
	var snap graph.Snapshot
	if graphSave {
		snap = m.graph.Snapshot()
	}
	fn(&meta, snap, at)
	meta.UpdatedAt = at

	spanCtx, span := m.spans.StartSaveSpan(ctx, meta.ID, kind)
	size, err := m.persist(spanCtx, meta)
	m.spans.EndSpanWithError(span, err)
	m.metrics.RecordSave(ctx, kind, int64(size), err)
	if err != nil {
		if graphSave {
			m.mu.Lock()
			m.dirty = true
			m.mu.Unlock()
		}
		perr := &PersistenceError{WorkflowID: meta.ID, Op: kind, Err: err}
		observability.LogSaveError(m.logger, meta.ID, kind, err)
		m.publish(ctx, event.TypeSaveFailed, map[string]any{
			"workflow_id": meta.ID,
			"kind":        kind,
			"error":       err.Error(),
		})
		return perr
	}

	m.mu.Lock()
	m.meta = meta
	if graphSave {
		m.lastSaved = at
		if m.generation == gen {
			m.dirty = false
			m.stopTimerLocked()
		}
	}
	m.mu.Unlock()

	observability.LogSave(m.logger, meta.ID, kind, meta.CurrentVersion, size)
	m.publish(ctx, event.TypeWorkflowSaved, map[string]any{
		"workflow_id": meta.ID,
		"kind":        kind,
		"version":     meta.CurrentVersion,
		"size_bytes":  size,
	})
	return nil
}

// persist writes the metadata document and updates the tenant index.
func (m *Manager) persist(ctx context.Context, meta Metadata) (int, error) {
	b, err := json.Marshal(meta)
	if err != nil {
		return 0, err
	}
	if err := m.store.Set(ctx, metaKey(meta.Namespace, meta.ID), b, 0); err != nil {
		return 0, err
	}
	if err := upsertIndex(ctx, m.store, meta); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (m *Manager) publish(ctx context.Context, eventType string, data map[string]any) {
	if m.bus == nil {
		return
	}
	evt := event.New(eventType, "version", data, event.WithTenant(m.namespace))
	if err := m.bus.Publish(ctx, evt); err != nil {
		m.logger.Warn("event publish failed",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

// Load reads the saved workflow and replaces the graph with its latest
// version. The graph is clean afterwards.
func (m *Manager) Load(ctx context.Context) error {
	id := m.id
	meta, err := readMeta(ctx, m.store, m.namespace, id)
	if err != nil {
		return &PersistenceError{WorkflowID: id, Op: "load", Err: err}
	}

	if latest, ok := meta.Latest(); ok {
		if err := m.replace(latest.Snapshot()); err != nil {
			return &PersistenceError{WorkflowID: id, Op: "load", Err: err}
		}
	}

	m.mu.Lock()
	m.meta = meta
	m.dirty = false
	m.lastSaved = meta.UpdatedAt
	m.stopTimerLocked()
	m.mu.Unlock()
	return nil
}

// replace swaps the graph contents without marking it dirty.
func (m *Manager) replace(s graph.Snapshot) error {
	m.mu.Lock()
	m.suppress++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.suppress--
		m.mu.Unlock()
	}()
	return m.graph.Replace(s)
}

// Restore replaces the graph with version n. The graph becomes dirty, so
// the next autosave writes the restored content into the latest version.
func (m *Manager) Restore(n int) error {
	m.mu.Lock()
	v, ok := m.meta.Version(n)
	m.mu.Unlock()
	if !ok {
		return ErrVersionNotFound
	}
	return m.graph.Replace(v.Snapshot())
}
