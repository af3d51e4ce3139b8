package tessellate

import (
	"math"

	"github.com/gogpu/stagegraph"
)

// Tolerance is the fixed flattening tolerance for curved edges, in
// logical pixels: a fixed small value, roughly 0.01 of a logical pixel.
const Tolerance = 0.01

// DefaultFringeWidth is the renderer-level default fringe/antialiasing
// band width in logical pixels.
const DefaultFringeWidth = 1.0

// minStrokeWidthForFringe is the threshold below which no fringe band is
// emitted for a stroke.
const minStrokeWidthForFringe = 0.01

// Tessellate converts shape into triangle-list Geometry. For a stroked
// shape it adds an antialiasing fringe band fringeWidth wide (in local
// units, like the stroke) outside the stroke ribbon; fills get no fringe.
func Tessellate(shape stagegraph.Shape, fringeWidth float64) Geometry {
	switch s := shape.(type) {
	case stagegraph.RectShape:
		g := tessellateRect(s.Min, s.Max, s.Fill)
		appendStroke(&g, rectOutline(s.Min, s.Max), s.Stroke, fringeWidth)
		return g
	case stagegraph.RoundedRect:
		g := tessellateRoundedRect(s, s.Fill)
		appendStroke(&g, roundedRectOutline(s), s.Stroke, fringeWidth)
		return g
	case stagegraph.PathShape:
		g := tessellatePath(s.Path, s.Fill)
		appendStroke(&g, flattenPath(s.Path), s.Stroke, fringeWidth)
		return g
	default:
		return Geometry{}
	}
}

// tessellateRect emits two triangles covering [min,max], with UVs
// spanning the full bounding box and full coverage (no fringe on the fill
// itself; the fringe is a separate ribbon appended by appendStroke).
func tessellateRect(min, max stagegraph.Point, fill stagegraph.Color) Geometry {
	if min.X > max.X {
		min.X, max.X = max.X, min.X
	}
	if min.Y > max.Y {
		min.Y, max.Y = max.Y, min.Y
	}
	if min.X == max.X || min.Y == max.Y {
		return Geometry{}
	}
	_ = fill // color travels via the per-instance attribute, not per-vertex
	return Geometry{
		Vertices: []Vertex{
			{X: float32(min.X), Y: float32(min.Y), U: 0, V: 0, Coverage: 1},
			{X: float32(max.X), Y: float32(min.Y), U: 1, V: 0, Coverage: 1},
			{X: float32(max.X), Y: float32(max.Y), U: 1, V: 1, Coverage: 1},
			{X: float32(min.X), Y: float32(max.Y), U: 0, V: 1, Coverage: 1},
		},
		Indices: []uint16{0, 1, 2, 0, 2, 3},
	}
}

func rectOutline(min, max stagegraph.Point) []stagegraph.Point {
	return []stagegraph.Point{min, {X: max.X, Y: min.Y}, max, {X: min.X, Y: max.Y}, min}
}

// tessellateRoundedRect fans the interior from the center, flattening
// each corner's quarter-circle arc into straight segments at Tolerance.
func tessellateRoundedRect(r stagegraph.RoundedRect, fill stagegraph.Color) Geometry {
	outline := roundedRectOutline(r)
	return fanFromCentroid(outline, fill)
}

// roundedRectOutline flattens a RoundedRect's boundary into a closed
// polygon, walking corners in order: top-left, top-right, bottom-right,
// bottom-left.
func roundedRectOutline(r stagegraph.RoundedRect) []stagegraph.Point {
	min, max := r.Min, r.Max
	if min.X > max.X {
		min.X, max.X = max.X, min.X
	}
	if min.Y > max.Y {
		min.Y, max.Y = max.Y, min.Y
	}
	w, h := max.X-min.X, max.Y-min.Y
	clamp := func(radius float64) float64 {
		m := math.Min(w, h) / 2
		if radius > m {
			return m
		}
		if radius < 0 {
			return 0
		}
		return radius
	}
	rTL := clamp(r.Radii[stagegraph.CornerTopLeft])
	rTR := clamp(r.Radii[stagegraph.CornerTopRight])
	rBR := clamp(r.Radii[stagegraph.CornerBottomRight])
	rBL := clamp(r.Radii[stagegraph.CornerBottomLeft])

	var pts []stagegraph.Point
	arcSteps := arcSegments(math.Min(w, h))

	arc := func(cx, cy, radius, fromAngle, toAngle float64) {
		if radius <= 0 {
			pts = append(pts, stagegraph.Pt(cx, cy))
			return
		}
		for i := 0; i <= arcSteps; i++ {
			t := fromAngle + (toAngle-fromAngle)*float64(i)/float64(arcSteps)
			pts = append(pts, stagegraph.Pt(cx+radius*math.Cos(t), cy+radius*math.Sin(t)))
		}
	}

	arc(min.X+rTL, min.Y+rTL, rTL, math.Pi, 1.5*math.Pi)
	arc(max.X-rTR, min.Y+rTR, rTR, 1.5*math.Pi, 2*math.Pi)
	arc(max.X-rBR, max.Y-rBR, rBR, 0, 0.5*math.Pi)
	arc(min.X+rBL, max.Y-rBL, rBL, 0.5*math.Pi, math.Pi)
	pts = append(pts, pts[0])
	return pts
}

// arcSegments picks a flattening step count so the chord error stays
// under Tolerance for a given feature size, clamped to 2..32 steps per
// corner; past the cap, large corners exceed Tolerance.
func arcSegments(size float64) int {
	n := int(math.Ceil((math.Pi / 2) / math.Sqrt(8*Tolerance/math.Max(size, 1e-6))))
	if n < 2 {
		return 2
	}
	if n > 32 {
		return 32
	}
	return n
}

// tessellatePath flattens curved segments and fans the resulting polygon
// from its centroid. Self-intersecting paths are not handled with a
// proper winding rule; the tessellator assumes simple (non-crossing)
// subpaths.
func tessellatePath(p stagegraph.Path, fill stagegraph.Color) Geometry {
	outline := flattenPath(p)
	if len(outline) < 3 {
		return Geometry{}
	}
	return fanFromCentroid(outline, fill)
}

// flattenPath walks a Path's segments, flattening cubic Béziers into line
// segments at Tolerance, and returns the resulting polyline(s)
// concatenated (one polyline per subpath, in order).
func flattenPath(p stagegraph.Path) []stagegraph.Point {
	var pts []stagegraph.Point
	var current, start stagegraph.Point
	for _, seg := range p.Segments {
		switch seg.Kind {
		case stagegraph.SegmentMove:
			current, start = seg.To, seg.To
			pts = append(pts, seg.To)
		case stagegraph.SegmentLine:
			current = seg.To
			pts = append(pts, seg.To)
		case stagegraph.SegmentCubic:
			pts = append(pts, flattenCubic(current, seg.Control1, seg.Control2, seg.To)...)
			current = seg.To
		case stagegraph.SegmentClose:
			pts = append(pts, start)
			current = start
		}
	}
	return pts
}

// flattenCubic recursively subdivides a cubic Bézier until the maximum
// deviation of its control polygon from a straight line is under
// Tolerance, then returns the endpoint of each resulting segment
// (excluding the start point, which the caller already has).
func flattenCubic(p0, p1, p2, p3 stagegraph.Point) []stagegraph.Point {
	var out []stagegraph.Point
	var recurse func(a, b, c, d stagegraph.Point, depth int)
	recurse = func(a, b, c, d stagegraph.Point, depth int) {
		if depth >= 16 || cubicFlatEnough(a, b, c, d) {
			out = append(out, d)
			return
		}
		ab := a.Lerp(b, 0.5)
		bc := b.Lerp(c, 0.5)
		cd := c.Lerp(d, 0.5)
		abc := ab.Lerp(bc, 0.5)
		bcd := bc.Lerp(cd, 0.5)
		mid := abc.Lerp(bcd, 0.5)
		recurse(a, ab, abc, mid, depth+1)
		recurse(mid, bcd, cd, d, depth+1)
	}
	recurse(p0, p1, p2, p3, 0)
	return out
}

// cubicFlatEnough reports whether the control points p1, p2 deviate from
// the chord p0-p3 by less than Tolerance.
func cubicFlatEnough(p0, p1, p2, p3 stagegraph.Point) bool {
	d1 := pointLineDistance(p1, p0, p3)
	d2 := pointLineDistance(p2, p0, p3)
	return d1 < Tolerance && d2 < Tolerance
}

func pointLineDistance(p, a, b stagegraph.Point) float64 {
	ab := b.Sub(a)
	length := ab.Length()
	if length < 1e-9 {
		return p.Sub(a).Length()
	}
	return math.Abs(ab.Cross(p.Sub(a))) / length
}

// fanFromCentroid triangulates a simple (non self-intersecting) closed
// polygon as a triangle fan from its centroid. This is exact for convex
// polygons and a reasonable approximation for the mildly concave
// RoundedRect/Path outlines this package emits.
func fanFromCentroid(poly []stagegraph.Point, fill stagegraph.Color) Geometry {
	_ = fill
	if len(poly) < 3 {
		return Geometry{}
	}
	// Drop a duplicated closing point if present.
	pts := poly
	if pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return Geometry{}
	}

	minX, minY, maxX, maxY := pts[0].X, pts[0].Y, pts[0].X, pts[0].Y
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	n := float64(len(pts))
	center := stagegraph.Pt(cx/n, cy/n)
	w, h := maxX-minX, maxY-minY
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}

	uv := func(p stagegraph.Point) (float32, float32) {
		return float32((p.X - minX) / w), float32((p.Y - minY) / h)
	}

	verts := make([]Vertex, 0, len(pts)+1)
	cu, cv := uv(center)
	verts = append(verts, Vertex{X: float32(center.X), Y: float32(center.Y), U: cu, V: cv, Coverage: 1})
	for _, p := range pts {
		u, v := uv(p)
		verts = append(verts, Vertex{X: float32(p.X), Y: float32(p.Y), U: u, V: v, Coverage: 1})
	}

	indices := make([]uint16, 0, len(pts)*3)
	for i := 0; i < len(pts); i++ {
		a := uint16(1 + i)           //nolint:gosec // polygon vertex counts are small
		b := uint16(1 + (i+1)%len(pts)) //nolint:gosec // polygon vertex counts are small
		indices = append(indices, 0, a, b)
	}
	return Geometry{Vertices: verts, Indices: indices}
}

// appendStroke emits a ribbon of quads along outline with the given
// Stroke's width and color, plus a fringe band when the stroke width
// exceeds minStrokeWidthForFringe and fringeWidth > 0. The ribbon itself
// has full coverage; the fringe band, on the ribbon's outer side only,
// fades linearly from 1 at the ribbon's outer edge to 0 at the band's
// outer edge.
func appendStroke(g *Geometry, outline []stagegraph.Point, stroke stagegraph.Stroke, fringeWidth float64) {
	if stroke.Width <= 0 || len(outline) < 2 {
		return
	}
	half := stroke.Width / 2
	fringe := 0.0
	if stroke.Width > minStrokeWidthForFringe && fringeWidth > 0 {
		fringe = fringeWidth
	}

	for i := 0; i < len(outline)-1; i++ {
		a, b := outline[i], outline[i+1]
		edge := b.Sub(a)
		if edge.LengthSquared() < 1e-12 {
			continue
		}
		normal := stagegraph.Pt(-edge.Y, edge.X).Normalize()

		innerA := a.Add(normal.Mul(-half))
		innerB := b.Add(normal.Mul(-half))
		outerA := a.Add(normal.Mul(half))
		outerB := b.Add(normal.Mul(half))

		base := uint16(len(g.Vertices)) //nolint:gosec // per-segment vertex counts are small
		v := func(p stagegraph.Point, coverage float32) Vertex {
			return Vertex{X: float32(p.X), Y: float32(p.Y), U: 0, V: 0, Coverage: coverage}
		}
		g.Vertices = append(g.Vertices, v(innerA, 1), v(innerB, 1), v(outerA, 1), v(outerB, 1))
		g.Indices = append(g.Indices, base, base+1, base+2, base+1, base+3, base+2)

		if fringe > 0 {
			fringeOuterA := a.Add(normal.Mul(half + fringe))
			fringeOuterB := b.Add(normal.Mul(half + fringe))
			fb := uint16(len(g.Vertices)) //nolint:gosec // per-segment vertex counts are small
			g.Vertices = append(g.Vertices, v(outerA, 1), v(outerB, 1), v(fringeOuterA, 0), v(fringeOuterB, 0))
			g.Indices = append(g.Indices, fb, fb+1, fb+2, fb+1, fb+3, fb+2)
		}
	}
}
