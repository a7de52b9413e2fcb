/*
Package config provides typed access to loosely typed configuration and the
application settings of flowcanvas.

# Node configuration

Node configuration is a map[string]any edited on the canvas and persisted
verbatim. Config wraps such a map and returns defaults for missing keys or
values of the wrong type:

	cfg := config.New(node.Config)
	to := cfg.String("to", "")
	retries := cfg.Int("retries", 3)
	timeout := cfg.Duration("timeout", 10*time.Second)

WithDefaults overlays a map on catalogue defaults without mutating either:

	merged, err := config.New(node.Config).WithDefaults(def.Defaults)

# Settings

Settings holds the editor and backend settings. Load them from a YAML or
JSON file and apply FLOWCANVAS_* environment overrides:

	_ = config.LoadEnvFile(".env")
	s, err := config.LoadSettings("flowcanvas.yaml")

An empty path yields DefaultSettings with environment overrides applied.
*/
package config
