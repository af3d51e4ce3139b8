package stagegraph

// Stroke describes how the edge of a shape is drawn: a constant width in
// local (pre-transform) units, and a color. There is no cap, join or dash
// styling; the tessellator emits a simple constant-width ribbon along each
// path segment.
type Stroke struct {
	Width float64
	Color Color
}

// DefaultStroke returns a 1-unit-wide black stroke.
func DefaultStroke() Stroke {
	return Stroke{Width: 1.0, Color: Black}
}

// WithWidth returns a copy of the Stroke with the given width.
func (s Stroke) WithWidth(w float64) Stroke {
	s.Width = w
	return s
}

// WithColor returns a copy of the Stroke with the given color.
func (s Stroke) WithColor(c Color) Stroke {
	s.Color = c
	return s
}
