package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/config"
	fcerrors "github.com/randalmurphal/flowcanvas/pkg/flowcanvas/errors"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/event"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/handlers"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/observability"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/storage"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/tools"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/version"
)

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	envFile    string
	userID     string
	orgID      string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "settings file (YAML or JSON)")
	fs.StringVar(&c.envFile, "env", ".env", "env file with FLOWCANVAS_* overrides")
	fs.StringVar(&c.userID, "user", "local", "tenant user id")
	fs.StringVar(&c.orgID, "org", "", "tenant organization id")
}

// app holds the collaborators shared by the commands.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	store    storage.Store
	bus      *event.LocalBus
	tenant   storage.Tenant
}

func newApp(ctx context.Context, errOut io.Writer, f commonFlags) (*app, error) {
	if err := config.LoadEnvFile(f.envFile); err != nil {
		return nil, err
	}
	s, err := config.LoadSettings(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	logger := newLogger(errOut, s.Log)

	store, err := storage.Open(ctx, s.Storage.Backend, s.Storage.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", s.Storage.Backend, err)
	}

	bus := event.NewBus(event.BusConfig{
		NonBlocking: true,
		OnError: func(evt event.Event, sub string, err error) {
			logger.Warn("event handler failed",
				slog.String("type", evt.Type),
				slog.String("subscriber", sub),
				slog.String("error", err.Error()),
			)
		},
	})

	return &app{
		settings: s,
		logger:   logger,
		metrics:  observability.NewMetricsRecorder(),
		spans:    observability.NewSpanManager(),
		store:    store,
		bus:      bus,
		tenant:   storage.Tenant{UserID: f.userID, OrgID: f.orgID},
	}, nil
}

func newLogger(w io.Writer, s config.LogSettings) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (a *app) Close() error {
	return errors.Join(a.bus.Close(), a.store.Close())
}

// manager opens the version manager for workflow id over g.
func (a *app) manager(g *graph.Graph, id string) *version.Manager {
	return version.NewManager(g, a.store, a.tenant, id,
		version.WithDelay(a.settings.Autosave.Delay),
		version.WithHistoryLimit(a.settings.Autosave.HistoryLimit),
		version.WithLogger(a.logger),
		version.WithMetrics(a.metrics),
		version.WithSpanManager(a.spans),
		version.WithPublisher(a.bus),
		version.WithErrorHandler(func(err error) {
			a.logger.Error("background save failed", slog.String("error", err.Error()))
		}),
	)
}

// engine builds an engine with the default handlers over the local tools.
func (a *app) engine(stats flowcanvas.StatsRecorder) *flowcanvas.Engine {
	e := flowcanvas.New(
		flowcanvas.WithLogger(a.logger),
		flowcanvas.WithMetrics(a.metrics),
		flowcanvas.WithSpanManager(a.spans),
		flowcanvas.WithPublisher(a.bus),
		flowcanvas.WithStats(stats),
	)
	retry := fcerrors.NewRetryConfig(fcerrors.WithMaxAttempts(a.settings.Tools.MaxRetries))
	handlers.RegisterDefaults(e, a.tools(), handlers.WithRetry(retry))
	return e
}

// tools builds the local tool set. Integration and agent tools have no
// backend here; they are logged and acknowledged as dry runs.
func (a *app) tools() *tools.Local {
	return tools.NewLocal(a.store,
		tools.WithRateLimit(a.settings.Tools.RatePerSecond, a.settings.Tools.Burst),
		tools.WithPublisher(a.bus),
		tools.WithLogger(a.logger),
		tools.WithDefaultSession(tools.Session{Tenant: a.tenant, Admin: true}),
		tools.WithTools(
			dryRunTool("integration_*", a.logger),
			dryRunTool("agent_*", a.logger),
		),
	)
}

func dryRunTool(name string, logger *slog.Logger) tools.Tool {
	return tools.Tool{
		Name:        name,
		Description: "Logs the call without contacting an external service.",
		Handler: func(_ context.Context, req tools.Request) (map[string]any, error) {
			logger.Info("dry run tool call",
				slog.String("tool", req.Tool),
				slog.String("namespace", req.Session.Tenant.Namespace()),
			)
			return map[string]any{"tool": req.Tool, "dry_run": true, "args": req.Args.Raw()}, nil
		},
	}
}
