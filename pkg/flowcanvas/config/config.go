package config

import (
	"fmt"
	"maps"
	"strconv"
	"time"

	"dario.cat/mergo"
)

// Config wraps a map[string]any for typed value extraction.
// Accessors return the supplied default when the key is missing or the
// value cannot be converted.
type Config struct {
	data map[string]any
}

// New creates a Config from data. A nil map yields an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string at key. Numbers and bools are formatted.
func (c Config) String(key, defaultVal string) string {
	switch v := c.data[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return defaultVal
}

// Duration returns the duration at key.
//
// Accepts a time.ParseDuration string, a number of seconds, or a time.Duration.
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	switch v := c.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case time.Duration:
		return v
	}
	return defaultVal
}

// Bool returns the bool at key. The strings accepted by strconv.ParseBool
// are converted.
func (c Config) Bool(key string, defaultVal bool) bool {
	switch v := c.data[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// Int returns the integer at key. Floats convert only without a fractional part.
func (c Config) Int(key string, defaultVal int) int {
	switch v := c.data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// Float returns the float64 at key.
func (c Config) Float(key string, defaultVal float64) float64 {
	switch v := c.data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// StringSlice returns the string slice at key. A []any converts only when
// every element is a string.
func (c Config) StringSlice(key string, defaultVal []string) []string {
	switch v := c.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}

// Any returns the raw value at key.
func (c Config) Any(key string, defaultVal any) any {
	if v, ok := c.data[key]; ok {
		return v
	}
	return defaultVal
}

// Sub returns the nested map at key as a Config, or an empty Config.
func (c Config) Sub(key string) Config {
	switch v := c.data[key].(type) {
	case map[string]any:
		return New(v)
	case Config:
		return v
	}
	return New(nil)
}

// Has reports whether key is present.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Raw returns the underlying map. Callers must not modify it.
func (c Config) Raw() map[string]any {
	return c.data
}

// WithDefaults returns a new Config holding c's values laid over defaults.
// Keys set in c win, including zero values; nested maps are merged
// recursively. Neither input is modified.
func (c Config) WithDefaults(defaults map[string]any) (Config, error) {
	dst := deepCopy(defaults)
	src := deepCopy(c.data)
	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("merge config defaults: %w", err)
	}
	keepExplicit(dst, src)
	return New(dst), nil
}

// keepExplicit copies scalar values from src into dst. mergo skips empty
// source values such as false or "" even with WithOverride.
func keepExplicit(dst, src map[string]any) {
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			if d, ok := dst[k].(map[string]any); ok {
				keepExplicit(d, nested)
				continue
			}
		}
		dst[k] = v
	}
}

func deepCopy(m map[string]any) map[string]any {
	out := maps.Clone(m)
	if out == nil {
		return make(map[string]any)
	}
	for k, v := range out {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopy(nested)
		}
	}
	return out
}
