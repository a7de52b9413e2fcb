// Package canvas implements the pointer-driven interaction state machine of
// the workflow editor, together with the viewport transforms and port
// geometry it relies on.
//
// The Controller owns exactly one gesture at a time:
//
//	Idle --down on node-->  DraggingNode      --up--> Idle
//	Idle --down on port-->  DrawingConnection --up--> Idle (connects on a compatible port)
//	Idle --down on empty--> PanningCanvas     --up--> Idle
//
// All methods must be called from the interaction goroutine.
package canvas

import (
	"log/slog"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/config"
	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
)

// State is the current gesture.
type State int

// Controller states.
const (
	Idle State = iota
	DraggingNode
	PanningCanvas
	DrawingConnection
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DraggingNode:
		return "dragging_node"
	case PanningCanvas:
		return "panning_canvas"
	case DrawingConnection:
		return "drawing_connection"
	default:
		return "unknown"
	}
}

// Controller turns pointer, wheel, drop and keyboard events into graph
// mutations and viewport changes.
type Controller struct {
	graph      *graph.Graph
	view       Viewport
	limits     ZoomLimits
	portRadius float64 // screen pixels
	logger     *slog.Logger

	state    State
	selected string

	// DraggingNode
	dragNode    string
	lastPointer graph.Point

	// PanningCanvas
	panStartOffset  graph.Point
	panStartPointer graph.Point

	// DrawingConnection
	origin  graph.PortRef
	lineEnd graph.Point // canvas space
}

// Option configures a Controller.
type Option func(*Controller)

// WithZoomLimits overrides the zoom clamp and wheel step factors.
func WithZoomLimits(l ZoomLimits) Option {
	return func(c *Controller) {
		if l.Min > 0 && l.Max >= l.Min {
			c.limits = l
		}
	}
}

// WithPortRadius sets the port grab radius in screen pixels. Default: 8.
func WithPortRadius(px float64) Option {
	return func(c *Controller) {
		if px > 0 {
			c.portRadius = px
		}
	}
}

// WithSettings applies the zoom limits, wheel factors and port radius from
// application settings. Invalid values keep the defaults.
func WithSettings(s config.CanvasSettings) Option {
	return func(c *Controller) {
		l := ZoomLimits{Min: s.MinZoom, Max: s.MaxZoom, In: s.ZoomIn, Out: s.ZoomOut}
		if l.In > 1 && l.Out > 0 && l.Out < 1 {
			WithZoomLimits(l)(c)
		}
		WithPortRadius(s.PortRadius)(c)
	}
}

// WithViewport sets the initial offset and zoom. Zoom is clamped.
func WithViewport(v Viewport) Option {
	return func(c *Controller) {
		c.view = v
	}
}

// WithLogger sets the logger used for gesture debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates a controller editing g.
func NewController(g *graph.Graph, opts ...Option) *Controller {
	c := &Controller{
		graph:      g,
		view:       Viewport{Zoom: 1},
		limits:     DefaultZoomLimits(),
		portRadius: DefaultPortRadius,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.view.Zoom == 0 {
		c.view.Zoom = 1
	}
	c.view.Zoom = c.limits.Clamp(c.view.Zoom)
	return c
}

// State returns the active gesture.
func (c *Controller) State() State { return c.state }

// Viewport returns the current offset and zoom.
func (c *Controller) Viewport() Viewport { return c.view }

// Selected returns the id of the selected node, or "".
func (c *Controller) Selected() string { return c.selected }

// ScreenToCanvas converts a screen point using the current viewport.
func (c *Controller) ScreenToCanvas(p graph.Point) graph.Point {
	return c.view.ScreenToCanvas(p)
}

// CanvasToScreen converts a canvas point using the current viewport.
func (c *Controller) CanvasToScreen(p graph.Point) graph.Point {
	return c.view.CanvasToScreen(p)
}

func (c *Controller) hitTest(screen graph.Point) Hit {
	return HitTest(c.graph.Nodes(), c.view.ScreenToCanvas(screen), c.portRadius/c.view.Zoom)
}

func (c *Controller) transition(to State) {
	if c.state != to {
		c.logger.Debug("canvas gesture",
			slog.String("from", c.state.String()),
			slog.String("to", to.String()),
		)
	}
	c.state = to
}

// PointerDown starts a gesture depending on what lies under the pointer.
// It is ignored while another gesture is active.
func (c *Controller) PointerDown(screen graph.Point) {
	if c.state != Idle {
		return
	}

	hit := c.hitTest(screen)
	switch hit.Kind {
	case HitPort:
		c.origin = hit.Port
		c.lineEnd = c.view.ScreenToCanvas(screen)
		c.transition(DrawingConnection)
	case HitNode:
		c.selected = hit.NodeID
		c.dragNode = hit.NodeID
		c.lastPointer = screen
		c.transition(DraggingNode)
	default:
		c.selected = ""
		c.panStartOffset = c.view.Offset
		c.panStartPointer = screen
		c.transition(PanningCanvas)
	}
}

// PointerMove advances the active gesture. Dragging moves the node on every
// call, panning moves the viewport, and drawing only moves the ephemeral
// line end; the graph is never touched while drawing.
func (c *Controller) PointerMove(screen graph.Point) {
	switch c.state {
	case DraggingNode:
		delta := screen.Sub(c.lastPointer).Scale(1 / c.view.Zoom)
		c.lastPointer = screen
		c.graph.MoveNode(c.dragNode, delta)
	case PanningCanvas:
		c.view.Offset = c.panStartOffset.Add(screen.Sub(c.panStartPointer))
	case DrawingConnection:
		c.lineEnd = c.view.ScreenToCanvas(screen)
	}
}

// PointerUp ends the active gesture. When drawing a connection and the
// pointer is released over a port of the opposite polarity, the two ports
// are connected (output to input, whichever end the gesture started from).
// Every other release simply returns to Idle.
func (c *Controller) PointerUp(screen graph.Point) (graph.Connection, bool) {
	defer c.reset()

	if c.state != DrawingConnection {
		return graph.Connection{}, false
	}

	hit := c.hitTest(screen)
	if hit.Kind != HitPort || hit.Port.Polarity != c.origin.Polarity.Opposite() {
		return graph.Connection{}, false
	}

	src, dst := c.origin, hit.Port
	if src.Polarity == graph.PolarityInput {
		src, dst = dst, src
	}
	return c.graph.Connect(src.NodeID, src.Port, dst.NodeID, dst.Port)
}

// Cancel discards the active gesture without side effects.
func (c *Controller) Cancel() {
	c.reset()
}

func (c *Controller) reset() {
	c.dragNode = ""
	c.origin = graph.PortRef{}
	c.transition(Idle)
}

// PendingLine returns the ephemeral connection line in canvas space while
// a connection is being drawn.
func (c *Controller) PendingLine() (from, to graph.Point, ok bool) {
	if c.state != DrawingConnection {
		return graph.Point{}, graph.Point{}, false
	}
	n, found := c.graph.Node(c.origin.NodeID)
	if !found {
		return graph.Point{}, graph.Point{}, false
	}
	from, ok = PortAnchor(n, c.origin)
	return from, c.lineEnd, ok
}

// Wheel applies one zoom tick. Positive deltaY zooms out by the Out factor,
// negative zooms in by the In factor; the result is clamped.
func (c *Controller) Wheel(deltaY float64) {
	c.view.Zoom = c.limits.Step(c.view.Zoom, deltaY)
}

// Drop creates a node from a drag payload (a node type tag) at the drop
// point, converted to canvas space. Empty payloads are ignored.
func (c *Controller) Drop(payload string, screen graph.Point) (graph.Node, bool) {
	if payload == "" {
		return graph.Node{}, false
	}
	n := c.graph.AddNode(payload, c.view.ScreenToCanvas(screen))
	c.selected = n.ID
	return n, true
}

// DeleteSelected deletes the selected node and its connections.
func (c *Controller) DeleteSelected() bool {
	if c.selected == "" || c.state != Idle {
		return false
	}
	id := c.selected
	c.selected = ""
	return c.graph.DeleteNode(id)
}
