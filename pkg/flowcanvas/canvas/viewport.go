package canvas

import "github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"

// Zoom limits and wheel step factors.
const (
	DefaultMinZoom    = 0.1
	DefaultMaxZoom    = 3.0
	DefaultZoomIn     = 1.1
	DefaultZoomOut    = 0.9
	DefaultPortRadius = 8.0
)

// Viewport maps between screen space and canvas space.
//
//	screen = canvas*Zoom + Offset
//	canvas = (screen - Offset) / Zoom
type Viewport struct {
	Offset graph.Point
	Zoom   float64
}

// ScreenToCanvas converts a screen point to canvas coordinates.
func (v Viewport) ScreenToCanvas(p graph.Point) graph.Point {
	return p.Sub(v.Offset).Scale(1 / v.Zoom)
}

// CanvasToScreen converts a canvas point to screen coordinates.
func (v Viewport) CanvasToScreen(p graph.Point) graph.Point {
	return p.Scale(v.Zoom).Add(v.Offset)
}

// ZoomLimits bounds the viewport zoom and defines the wheel step.
type ZoomLimits struct {
	Min float64
	Max float64
	In  float64 // factor per tick with negative deltaY
	Out float64 // factor per tick with positive deltaY
}

// DefaultZoomLimits returns [0.1, 3.0] with 1.1/0.9 steps.
func DefaultZoomLimits() ZoomLimits {
	return ZoomLimits{
		Min: DefaultMinZoom,
		Max: DefaultMaxZoom,
		In:  DefaultZoomIn,
		Out: DefaultZoomOut,
	}
}

// Clamp bounds z to [Min, Max].
func (l ZoomLimits) Clamp(z float64) float64 {
	if z < l.Min {
		return l.Min
	}
	if z > l.Max {
		return l.Max
	}
	return z
}

// Step applies one wheel tick to z. Steps are relative: zoom is multiplied,
// never set. A positive deltaY (wheel pulled towards the user) zooms out.
func (l ZoomLimits) Step(z, deltaY float64) float64 {
	switch {
	case deltaY > 0:
		z *= l.Out
	case deltaY < 0:
		z *= l.In
	}
	return l.Clamp(z)
}
