package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/config"
	fcerrors "github.com/randalmurphal/flowcanvas/pkg/flowcanvas/errors"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/registry"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/storage"
)

// Request is what a tool handler receives.
type Request struct {
	Tool    string
	Session Session
	Args    config.Config
}

// HandlerFunc implements one tool.
type HandlerFunc func(ctx context.Context, req Request) (map[string]any, error)

// Tool describes a registered tool. Names ending in "*" match any tool
// with that prefix.
type Tool struct {
	Name        string
	Description string
	Permission  Permission
	// InputSchema is a JSON Schema object describing the arguments.
	InputSchema map[string]any
	Handler     HandlerFunc
}

// Local is an in-process Invoker.
type Local struct {
	store    storage.Store
	bus      event.Publisher
	logger   *slog.Logger
	tools    *registry.Patterns[Tool]
	limiters *registry.Registry[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	fallback *Session
	now      func() time.Time
}

var _ Invoker = (*Local)(nil)

// LocalOption configures Local.
type LocalOption func(*Local)

// WithRateLimit sets the per-tenant token bucket. Default: 10/s, burst 20.
func WithRateLimit(perSecond float64, burst int) LocalOption {
	return func(l *Local) {
		if perSecond > 0 && burst > 0 {
			l.limit = rate.Limit(perSecond)
			l.burst = burst
		}
	}
}

// WithPublisher publishes events_send calls on p.
func WithPublisher(p event.Publisher) LocalOption {
	return func(l *Local) { l.bus = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithDefaultSession is used when the context carries no session.
func WithDefaultSession(s Session) LocalOption {
	return func(l *Local) { l.fallback = &s }
}

// WithTools registers additional tools.
func WithTools(tools ...Tool) LocalOption {
	return func(l *Local) {
		for _, t := range tools {
			l.tools.Register(t.Name, t)
		}
	}
}

// NewLocal creates a Local with the built-in tools.
func NewLocal(store storage.Store, opts ...LocalOption) *Local {
	l := &Local{
		store:    store,
		logger:   slog.Default(),
		tools:    registry.NewPatterns[Tool](),
		limiters: registry.New[string, *rate.Limiter](),
		limit:    10,
		burst:    20,
		now:      time.Now,
	}
	for _, t := range l.builtins() {
		l.tools.Register(t.Name, t)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register adds or replaces a tool.
func (l *Local) Register(t Tool) {
	l.tools.Register(t.Name, t)
}

// List returns the tools the session may call, sorted by name.
func (l *Local) List(s Session) []Tool {
	var out []Tool
	for _, name := range l.tools.Keys() {
		t, _ := l.tools.Get(name)
		if s.Has(t.Permission) {
			out = append(out, t)
		}
	}
	return out
}

// Invoke implements Invoker. Failures are *errors.ToolError values or wrap
// errors.ErrRateLimited, so callers can classify them with errors.Categorize.
func (l *Local) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	s, ok := SessionFrom(ctx)
	if !ok {
		if l.fallback == nil {
			return nil, &fcerrors.ToolError{Tool: name, StatusCode: 401, Message: "no session"}
		}
		s = *l.fallback
	}

	t, _, ok := l.tools.Lookup(name)
	if !ok {
		return nil, &fcerrors.ToolError{Tool: name, StatusCode: 404, Message: "unknown tool"}
	}
	if !s.Has(t.Permission) {
		return nil, &fcerrors.ToolError{Tool: name, StatusCode: 403, Message: fmt.Sprintf("permission %s required", t.Permission)}
	}

	ns := s.Tenant.Namespace()
	lim := l.limiters.GetOrCreate(ns, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
	if !lim.AllowN(l.now(), 1) {
		l.logger.Warn("tool call rate limited",
			slog.String("tool", name),
			slog.String("namespace", ns),
		)
		return nil, fmt.Errorf("%s for %s: %w", name, ns, fcerrors.ErrRateLimited)
	}

	l.logger.Debug("tool call",
		slog.String("tool", name),
		slog.String("namespace", ns),
	)
	return t.Handler(ctx, Request{Tool: name, Session: s, Args: config.New(args)})
}

func badRequest(tool, msg string) error {
	return &fcerrors.ToolError{Tool: tool, StatusCode: 400, Message: msg}
}

func unavailable(tool string, err error) error {
	return &fcerrors.ToolError{Tool: tool, StatusCode: 503, Message: "backend unavailable", Err: err}
}
