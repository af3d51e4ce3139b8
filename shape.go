package stagegraph

// Shape is a tagged variant of the three geometric primitives the
// tessellator understands: Rect, RoundedRect, and Path. It is implemented
// as a closed interface (an unexported marker method) rather than an open
// one, so the tessellator's type switch is exhaustive and a future shape
// kind must be added here deliberately.
type Shape interface {
	isShape()
	// ShapeStroke returns the shape's stroke, used by the tessellator to
	// decide whether to emit a stroke ribbon alongside the fill.
	ShapeStroke() Stroke
}

// RectShape is an axis-aligned rectangle in local space, given by two
// opposite corners. Corners need not be ordered; the tessellator
// normalizes them.
type RectShape struct {
	Min, Max Point
	Fill     Color
	Stroke   Stroke
}

func (RectShape) isShape() {}

// ShapeStroke returns the rectangle's stroke.
func (r RectShape) ShapeStroke() Stroke { return r.Stroke }

// Width returns the rectangle's width, regardless of corner order.
func (r RectShape) Width() float64 { return absF(r.Max.X - r.Min.X) }

// Height returns the rectangle's height, regardless of corner order.
func (r RectShape) Height() float64 { return absF(r.Max.Y - r.Min.Y) }

// Corner identifies one of a RoundedRect's four corners, used to index
// its per-corner radii.
type Corner int

const (
	CornerTopLeft Corner = iota
	CornerTopRight
	CornerBottomRight
	CornerBottomLeft
)

// RoundedRect is a rectangle with an independent corner radius per corner.
// A radius of 0 on all four corners covers the same area as a Rect,
// tessellated as a centroid fan (five vertices, four triangles) rather
// than a Rect's two triangles.
type RoundedRect struct {
	Min, Max Point
	Radii    [4]float64 // indexed by Corner
	Fill     Color
	Stroke   Stroke
}

func (RoundedRect) isShape() {}

// ShapeStroke returns the rounded rectangle's stroke.
func (r RoundedRect) ShapeStroke() Stroke { return r.Stroke }

// Width returns the rectangle's width, regardless of corner order.
func (r RoundedRect) Width() float64 { return absF(r.Max.X - r.Min.X) }

// Height returns the rectangle's height, regardless of corner order.
func (r RoundedRect) Height() float64 { return absF(r.Max.Y - r.Min.Y) }

// PathShape is an arbitrary path built from move/line/cubic/close
// segments (see path.go), filled and/or stroked.
type PathShape struct {
	Path   Path
	Fill   Color
	Stroke Stroke
}

func (PathShape) isShape() {}

// ShapeStroke returns the path's stroke.
func (p PathShape) ShapeStroke() Stroke { return p.Stroke }

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// NewRect creates an axis-aligned RectShape from two corner points with
// the given fill color and no stroke.
func NewRect(min, max Point, fill Color) RectShape {
	return RectShape{Min: min, Max: max, Fill: fill}
}

// NewRoundedRect creates a RoundedRect with a uniform corner radius
// applied to all four corners.
func NewRoundedRect(min, max Point, radius float64, fill Color) RoundedRect {
	return RoundedRect{
		Min: min, Max: max,
		Radii: [4]float64{radius, radius, radius, radius},
		Fill:  fill,
	}
}
