// Package graph provides the workflow graph model: typed nodes with named
// ports, directed connections between them, and the mutation operations the
// canvas applies in response to user gestures.
//
// Invalid connection attempts are silent no-ops. This keeps direct
// manipulation uninterrupted: dragging a wire onto the wrong port simply
// does nothing.
package graph

import "maps"

// Standard port names used by the built-in node types.
const (
	PortInput  = "input"
	PortOutput = "output"
)

// Point is a 2D coordinate. The same type is used for canvas space and
// screen space; callers are responsible for knowing which one they hold.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p * f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// Size is a node's rendered width and height in canvas units.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Polarity is the direction of a port.
type Polarity string

// Port polarities.
const (
	PolarityInput  Polarity = "input"
	PolarityOutput Polarity = "output"
)

// Opposite returns the other polarity.
func (p Polarity) Opposite() Polarity {
	if p == PolarityInput {
		return PolarityOutput
	}
	return PolarityInput
}

// Node is a typed, positioned unit of work in the graph.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Position Point          `json:"position" yaml:"position"`
	Size     *Size          `json:"size,omitempty" yaml:"size,omitempty"`
	Inputs   []string       `json:"inputs" yaml:"inputs"`
	Outputs  []string       `json:"outputs" yaml:"outputs"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Enabled  bool           `json:"enabled" yaml:"enabled"`
}

// HasPort reports whether the node has a port with the given name and polarity.
func (n *Node) HasPort(name string, polarity Polarity) bool {
	ports := n.Inputs
	if polarity == PolarityOutput {
		ports = n.Outputs
	}
	for _, p := range ports {
		if p == name {
			return true
		}
	}
	return false
}

// Ports returns the ordered port names for a polarity.
func (n *Node) Ports(polarity Polarity) []string {
	if polarity == PolarityOutput {
		return n.Outputs
	}
	return n.Inputs
}

// Clone returns a deep copy of the node. Nested values inside Config are
// shared; configuration values are treated as immutable once set.
func (n Node) Clone() Node {
	c := n
	if n.Size != nil {
		s := *n.Size
		c.Size = &s
	}
	c.Inputs = append([]string(nil), n.Inputs...)
	c.Outputs = append([]string(nil), n.Outputs...)
	if n.Config != nil {
		c.Config = maps.Clone(n.Config)
	}
	return c
}

// PortRef identifies one port on one node.
type PortRef struct {
	NodeID   string   `json:"node_id" yaml:"node_id"`
	Port     string   `json:"port" yaml:"port"`
	Polarity Polarity `json:"polarity" yaml:"polarity"`
}

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	ID         string `json:"id" yaml:"id"`
	SourceID   string `json:"source_id" yaml:"source_id"`
	SourcePort string `json:"source_port" yaml:"source_port"`
	TargetID   string `json:"target_id" yaml:"target_id"`
	TargetPort string `json:"target_port" yaml:"target_port"`
}

// sameEndpoints reports whether two connections join the same ports.
func (c Connection) sameEndpoints(srcID, srcPort, dstID, dstPort string) bool {
	return c.SourceID == srcID && c.SourcePort == srcPort &&
		c.TargetID == dstID && c.TargetPort == dstPort
}

// Touches reports whether the connection has nodeID as either endpoint.
func (c Connection) Touches(nodeID string) bool {
	return c.SourceID == nodeID || c.TargetID == nodeID
}
