package stagegraph

// SegmentKind identifies the kind of a single Path segment.
type SegmentKind int

const (
	// SegmentMove starts a new subpath at a point, with no edge drawn.
	SegmentMove SegmentKind = iota
	// SegmentLine draws a straight edge to a point.
	SegmentLine
	// SegmentCubic draws a cubic Bezier edge through two control points
	// to an end point.
	SegmentCubic
	// SegmentClose draws a straight edge back to the current subpath's
	// starting point and marks the subpath closed.
	SegmentClose
)

// Segment is one step of a Path: a move, a line, a cubic Bezier, or a
// close. Only To and the two control points are meaningful for the
// kinds that use them; a close segment carries no points at all.
type Segment struct {
	Kind               SegmentKind
	To                 Point
	Control1, Control2 Point
}

// Path is an ordered sequence of subpath segments: move, line,
// cubic-Bezier, and close. It has no implicit starting point; the first
// segment of a non-empty path is always a move.
type Path struct {
	Segments []Segment
}

// PathBuilder builds a Path through a fluent, position-tracking API:
// begin, line_to, cubic_bezier_to, close, build.
type PathBuilder struct {
	path    Path
	current Point
	start   Point
	open    bool
}

// BuildPath starts a new path builder.
func BuildPath() *PathBuilder {
	return &PathBuilder{}
}

// Begin starts a new subpath at (x, y).
func (b *PathBuilder) Begin(x, y float64) *PathBuilder {
	p := Pt(x, y)
	b.path.Segments = append(b.path.Segments, Segment{Kind: SegmentMove, To: p})
	b.current = p
	b.start = p
	b.open = true
	return b
}

// LineTo draws a straight edge from the current point to (x, y).
func (b *PathBuilder) LineTo(x, y float64) *PathBuilder {
	p := Pt(x, y)
	b.path.Segments = append(b.path.Segments, Segment{Kind: SegmentLine, To: p})
	b.current = p
	return b
}

// CubicBezierTo draws a cubic Bezier edge from the current point through
// the two control points to (x, y).
func (b *PathBuilder) CubicBezierTo(c1x, c1y, c2x, c2y, x, y float64) *PathBuilder {
	to := Pt(x, y)
	b.path.Segments = append(b.path.Segments, Segment{
		Kind:     SegmentCubic,
		To:       to,
		Control1: Pt(c1x, c1y),
		Control2: Pt(c2x, c2y),
	})
	b.current = to
	return b
}

// Close draws a straight edge back to the current subpath's starting
// point. It is a no-op if no subpath is open.
func (b *PathBuilder) Close() *PathBuilder {
	if !b.open {
		return b
	}
	b.path.Segments = append(b.path.Segments, Segment{Kind: SegmentClose})
	b.current = b.start
	b.open = false
	return b
}

// Build returns the constructed Path. The builder can keep being used
// afterwards to append further subpaths to the same underlying path.
func (b *PathBuilder) Build() Path {
	return b.path
}
