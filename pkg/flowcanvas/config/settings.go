package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLOWCANVAS_"

// Settings is the full application configuration.
type Settings struct {
	Autosave AutosaveSettings
	Canvas   CanvasSettings
	Storage  StorageSettings
	Tools    ToolSettings
	Log      LogSettings
}

// AutosaveSettings configures the version manager.
type AutosaveSettings struct {
	Delay        time.Duration // debounce window after the last mutation
	HistoryLimit int           // retained versions per workflow
}

// CanvasSettings configures the interaction controller.
type CanvasSettings struct {
	MinZoom    float64
	MaxZoom    float64
	ZoomIn     float64 // wheel factor for negative deltaY
	ZoomOut    float64 // wheel factor for positive deltaY
	PortRadius float64 // screen pixels
}

// StorageSettings selects the KV backend.
type StorageSettings struct {
	Backend string
	DSN     string // sqlite path, redis address or badger directory; "" means in-memory where supported
}

// ToolSettings configures the local tool set.
type ToolSettings struct {
	RatePerSecond float64
	Burst         int
	MaxRetries    int
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Autosave: AutosaveSettings{Delay: 2 * time.Second, HistoryLimit: 10},
		Canvas: CanvasSettings{
			MinZoom:    0.1,
			MaxZoom:    3.0,
			ZoomIn:     1.1,
			ZoomOut:    0.9,
			PortRadius: 8,
		},
		Storage: StorageSettings{Backend: BackendMemory},
		Tools:   ToolSettings{RatePerSecond: 10, Burst: 20, MaxRetries: 3},
		Log:     LogSettings{Level: "info", Format: "text"},
	}
}

// SettingsFrom reads Settings from a Config tree, falling back to
// DefaultSettings for anything missing:
//
//	autosave: {delay: 2s, history_limit: 10}
//	canvas:   {min_zoom: 0.1, max_zoom: 3, zoom_in: 1.1, zoom_out: 0.9, port_radius: 8}
//	storage:  {backend: sqlite, dsn: flowcanvas.db}
//	tools:    {rate_per_second: 10, burst: 20, max_retries: 3}
//	log:      {level: info, format: text}
func SettingsFrom(c Config) Settings {
	d := DefaultSettings()

	a := c.Sub("autosave")
	cv := c.Sub("canvas")
	st := c.Sub("storage")
	tl := c.Sub("tools")
	lg := c.Sub("log")

	return Settings{
		Autosave: AutosaveSettings{
			Delay:        a.Duration("delay", d.Autosave.Delay),
			HistoryLimit: a.Int("history_limit", d.Autosave.HistoryLimit),
		},
		Canvas: CanvasSettings{
			MinZoom:    cv.Float("min_zoom", d.Canvas.MinZoom),
			MaxZoom:    cv.Float("max_zoom", d.Canvas.MaxZoom),
			ZoomIn:     cv.Float("zoom_in", d.Canvas.ZoomIn),
			ZoomOut:    cv.Float("zoom_out", d.Canvas.ZoomOut),
			PortRadius: cv.Float("port_radius", d.Canvas.PortRadius),
		},
		Storage: StorageSettings{
			Backend: strings.ToLower(st.String("backend", d.Storage.Backend)),
			DSN:     st.String("dsn", d.Storage.DSN),
		},
		Tools: ToolSettings{
			RatePerSecond: tl.Float("rate_per_second", d.Tools.RatePerSecond),
			Burst:         tl.Int("burst", d.Tools.Burst),
			MaxRetries:    tl.Int("max_retries", d.Tools.MaxRetries),
		},
		Log: LogSettings{
			Level:  lg.String("level", d.Log.Level),
			Format: lg.String("format", d.Log.Format),
		},
	}
}

// envKeys maps FLOWCANVAS_* suffixes onto the nested settings tree.
var envKeys = map[string][2]string{
	"AUTOSAVE_DELAY":        {"autosave", "delay"},
	"HISTORY_LIMIT":         {"autosave", "history_limit"},
	"STORAGE_BACKEND":       {"storage", "backend"},
	"STORAGE_DSN":           {"storage", "dsn"},
	"TOOLS_RATE_PER_SECOND": {"tools", "rate_per_second"},
	"TOOLS_BURST":           {"tools", "burst"},
	"TOOLS_MAX_RETRIES":     {"tools", "max_retries"},
	"LOG_LEVEL":             {"log", "level"},
	"LOG_FORMAT":            {"log", "format"},
}

// ApplyEnv returns a copy of c with FLOWCANVAS_* overrides from lookup
// applied. Values stay strings; the typed accessors convert them.
func ApplyEnv(c Config, lookup func(string) (string, bool)) Config {
	out := deepCopy(c.data)
	for suffix, path := range envKeys {
		v, ok := lookup(EnvPrefix + suffix)
		if !ok {
			continue
		}
		section, ok := out[path[0]].(map[string]any)
		if !ok {
			section = make(map[string]any)
			out[path[0]] = section
		}
		section[path[1]] = v
	}
	return New(out)
}

// LoadSettings reads Settings from path (YAML or JSON), applies environment
// overrides and validates the result. An empty path starts from defaults.
func LoadSettings(path string) (Settings, error) {
	c := New(nil)
	if path != "" {
		var err error
		if c, err = FromFile(path); err != nil {
			return Settings{}, err
		}
	}
	s := SettingsFrom(ApplyEnv(c, os.LookupEnv))
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.Autosave.Delay <= 0 {
		errs = append(errs, fmt.Errorf("autosave.delay must be positive, got %s", s.Autosave.Delay))
	}
	if s.Autosave.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("autosave.history_limit must be at least 1, got %d", s.Autosave.HistoryLimit))
	}
	if s.Canvas.MinZoom <= 0 || s.Canvas.MaxZoom < s.Canvas.MinZoom {
		errs = append(errs, fmt.Errorf("canvas zoom range [%g, %g] is invalid", s.Canvas.MinZoom, s.Canvas.MaxZoom))
	}
	if s.Canvas.ZoomIn <= 1 || s.Canvas.ZoomOut <= 0 || s.Canvas.ZoomOut >= 1 {
		errs = append(errs, fmt.Errorf("canvas wheel factors in=%g out=%g are invalid", s.Canvas.ZoomIn, s.Canvas.ZoomOut))
	}
	switch s.Storage.Backend {
	case BackendMemory, BackendSQLite, BackendRedis, BackendBadger:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", s.Storage.Backend))
	}
	if s.Storage.Backend == BackendRedis && s.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required for the redis backend"))
	}
	if s.Tools.RatePerSecond <= 0 || s.Tools.Burst < 1 {
		errs = append(errs, fmt.Errorf("tools rate %g/s burst %d is invalid", s.Tools.RatePerSecond, s.Tools.Burst))
	}
	return errors.Join(errs...)
}
