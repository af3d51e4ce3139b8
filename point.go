package stagegraph

import "math"

// Point is a position or displacement in the scene's 2D local space
// (origin top-left, Y down). The method set is exactly what curve
// flattening and fringe-band emission in the tessellator need; it is not
// a general vector-math library.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q, the displacement from q to p.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Mul returns p scaled by s.
func (p Point) Mul(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Cross returns the scalar 2D cross product p × q, the signed area of
// the parallelogram the two displacements span. The tessellator's
// flatness test divides it by an edge length to get a point-to-line
// distance.
func (p Point) Cross(q Point) float64 {
	return p.X*q.Y - p.Y*q.X
}

// Length returns the Euclidean length of p as a displacement.
func (p Point) Length() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// LengthSquared returns p's squared length, for degenerate-edge checks
// that don't need the square root.
func (p Point) LengthSquared() float64 {
	return p.X*p.X + p.Y*p.Y
}

// Normalize returns the unit displacement in p's direction, or the zero
// point when p has no length (a degenerate edge; callers skip those).
func (p Point) Normalize() Point {
	length := p.Length()
	if length == 0 {
		return Point{}
	}
	return Point{X: p.X / length, Y: p.Y / length}
}

// Lerp returns the point a fraction t of the way from p to q: t=0 is p,
// t=1 is q. Bézier flattening subdivides with t=0.5 exclusively, but the
// parameter form keeps the midpoint chain readable.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{
		X: p.X + (q.X-p.X)*t,
		Y: p.Y + (q.Y-p.Y)*t,
	}
}
