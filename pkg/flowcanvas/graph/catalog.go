package graph

import (
	"maps"
	"strings"
	"sync"
)

// TypeDef describes the default shape of a node type.
//
// A Type ending in "*" is a prefix pattern: "agent-*" matches "agent-writer"
// and "agent-reviewer". Exact entries take precedence over patterns, and the
// longest matching pattern wins.
type TypeDef struct {
	Type     string
	Inputs   []string
	Outputs  []string
	Entry    bool
	Defaults map[string]any
}

// generic is the shape given to node types nothing in the catalog matches.
var generic = TypeDef{
	Inputs:  []string{PortInput},
	Outputs: []string{PortOutput},
}

// Catalog maps node type tags to their default ports and configuration.
// It is safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	exact    map[string]TypeDef
	patterns map[string]TypeDef // prefix (without '*') -> def
}

// NewCatalog creates a catalog holding the given definitions.
func NewCatalog(defs ...TypeDef) *Catalog {
	c := &Catalog{
		exact:    make(map[string]TypeDef),
		patterns: make(map[string]TypeDef),
	}
	for _, d := range defs {
		c.Register(d)
	}
	return c
}

// DefaultCatalog returns a catalog with the built-in node types.
func DefaultCatalog() *Catalog {
	in := []string{PortInput}
	out := []string{PortOutput}
	return NewCatalog(
		TypeDef{Type: "trigger", Outputs: out, Entry: true},
		TypeDef{Type: "webhook", Outputs: out, Entry: true, Defaults: map[string]any{"method": "POST"}},
		TypeDef{Type: "schedule", Outputs: out, Entry: true, Defaults: map[string]any{"cron": "0 * * * *"}},
		TypeDef{Type: "output", Inputs: in},
		TypeDef{Type: "email", Inputs: in, Outputs: out},
		TypeDef{Type: "notification", Inputs: in, Outputs: out, Defaults: map[string]any{"channel": "default"}},
		TypeDef{Type: "kv-get", Inputs: in, Outputs: out},
		TypeDef{Type: "kv-set", Inputs: in, Outputs: out},
		TypeDef{Type: "artifacts-get", Inputs: in, Outputs: out},
		TypeDef{Type: "artifacts-put", Inputs: in, Outputs: out},
		TypeDef{Type: "artifacts-list", Inputs: in, Outputs: out},
		TypeDef{Type: "events-send", Inputs: in, Outputs: out},
		TypeDef{Type: "agent-*", Inputs: in, Outputs: out, Defaults: map[string]any{"model": "default"}},
		TypeDef{Type: "integration-*", Inputs: in, Outputs: out},
	)
}

// Register adds or replaces a definition.
func (c *Catalog) Register(def TypeDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prefix, ok := strings.CutSuffix(def.Type, "*"); ok {
		c.patterns[prefix] = def
		return
	}
	c.exact[def.Type] = def
}

// Lookup returns the definition for a type tag. Unknown types get one
// generic input and one generic output; the returned Type is always typ.
func (c *Catalog) Lookup(typ string) TypeDef {
	def, _ := c.lookup(typ)
	def.Type = typ
	def.Inputs = append([]string(nil), def.Inputs...)
	def.Outputs = append([]string(nil), def.Outputs...)
	def.Defaults = maps.Clone(def.Defaults)
	return def
}

// Known reports whether typ matches an exact entry or a pattern.
func (c *Catalog) Known(typ string) bool {
	_, ok := c.lookup(typ)
	return ok
}

// IsEntry reports whether nodes of type typ may start an execution.
func (c *Catalog) IsEntry(typ string) bool {
	def, _ := c.lookup(typ)
	return def.Entry
}

func (c *Catalog) lookup(typ string) (TypeDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if def, ok := c.exact[typ]; ok {
		return def, true
	}

	best := ""
	var found *TypeDef
	for prefix, def := range c.patterns {
		if strings.HasPrefix(typ, prefix) && (found == nil || len(prefix) > len(best)) {
			d := def
			best, found = prefix, &d
		}
	}
	if found != nil {
		return *found, true
	}
	return generic, false
}
