package canvas

import (
	"math"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
)

// DefaultNodeSize is used for nodes without an explicit size.
var DefaultNodeSize = graph.Size{Width: 180, Height: 72}

// NodeSize returns the node's size, or DefaultNodeSize.
func NodeSize(n graph.Node) graph.Size {
	if n.Size != nil {
		return *n.Size
	}
	return DefaultNodeSize
}

// PortPosition returns the canvas position of the k-th port of the given
// polarity. Ports are spread evenly along the edge: the k-th of n sits at
// width/(n+1)*(k+1). Inputs are on the top edge, outputs on the bottom.
func PortPosition(n graph.Node, polarity graph.Polarity, k int) graph.Point {
	size := NodeSize(n)
	count := len(n.Ports(polarity))
	x := n.Position.X + size.Width/float64(count+1)*float64(k+1)
	y := n.Position.Y
	if polarity == graph.PolarityOutput {
		y += size.Height
	}
	return graph.Point{X: x, Y: y}
}

// PortAnchor returns the canvas position of a named port, if it exists.
func PortAnchor(n graph.Node, ref graph.PortRef) (graph.Point, bool) {
	for k, name := range n.Ports(ref.Polarity) {
		if name == ref.Port {
			return PortPosition(n, ref.Polarity, k), true
		}
	}
	return graph.Point{}, false
}

// contains reports whether canvas point p lies inside the node's box.
func contains(n graph.Node, p graph.Point) bool {
	size := NodeSize(n)
	return p.X >= n.Position.X && p.X <= n.Position.X+size.Width &&
		p.Y >= n.Position.Y && p.Y <= n.Position.Y+size.Height
}

func distance(a, b graph.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// HitKind classifies what lies under the pointer.
type HitKind int

// Hit kinds.
const (
	HitCanvas HitKind = iota
	HitNode
	HitPort
)

// Hit is the result of a hit test.
type Hit struct {
	Kind   HitKind
	NodeID string
	Port   graph.PortRef
}

// HitTest finds what lies under canvas point p. Ports win over node bodies
// so a port on a node's edge stays grabbable; later nodes are drawn on top,
// so they are tested first. radius is the port grab radius in canvas units.
func HitTest(nodes []graph.Node, p graph.Point, radius float64) Hit {
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		for _, pol := range []graph.Polarity{graph.PolarityInput, graph.PolarityOutput} {
			for k, name := range n.Ports(pol) {
				if distance(PortPosition(n, pol, k), p) <= radius {
					return Hit{
						Kind:   HitPort,
						NodeID: n.ID,
						Port:   graph.PortRef{NodeID: n.ID, Port: name, Polarity: pol},
					}
				}
			}
		}
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		if contains(nodes[i], p) {
			return Hit{Kind: HitNode, NodeID: nodes[i].ID}
		}
	}
	return Hit{Kind: HitCanvas}
}
