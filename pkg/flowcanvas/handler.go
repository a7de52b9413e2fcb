package flowcanvas

import (
	"slices"

	"dario.cat/mergo"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/config"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
)

// Output maps output port names to the values a node produced.
type Output map[string]any

// Input is what a handler receives for one node.
type Input struct {
	// Node is a copy of the node being executed.
	Node graph.Node
	// Config is the node configuration over its type defaults.
	Config config.Config
	// Inputs maps input port names to upstream values. Ports with no
	// producer are absent.
	Inputs map[string]any
}

// Value returns the value delivered to an input port, or nil.
func (in Input) Value(port string) any {
	return in.Inputs[port]
}

// Merged combines every map-valued input into one map, in port order,
// later ports overriding earlier ones. Other values are stored under their
// port name.
func (in Input) Merged() map[string]any {
	out := make(map[string]any)
	for _, port := range in.ports() {
		v, ok := in.Inputs[port]
		if !ok {
			continue
		}
		m, isMap := v.(map[string]any)
		if !isMap {
			out[port] = v
			continue
		}
		if err := mergo.Merge(&out, m, mergo.WithOverride); err != nil {
			out[port] = v
		}
	}
	return out
}

// ports lists declared input ports, then any undeclared ones that still
// received a value.
func (in Input) ports() []string {
	var extra []string
	for p := range in.Inputs {
		if !in.Node.HasPort(p, graph.PolarityInput) {
			extra = append(extra, p)
		}
	}
	slices.Sort(extra)
	return append(slices.Clone(in.Node.Inputs), extra...)
}

// Handler executes nodes of one type.
type Handler interface {
	Execute(ctx Context, in Input) (Output, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx Context, in Input) (Output, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx Context, in Input) (Output, error) {
	return f(ctx, in)
}
