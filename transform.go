package stagegraph

import "math"

// Transform is a 4x4, row-major transformation matrix. Nodes carry a full
// 4x4 rather than a 2D affine matrix so that perspective transforms (set by
// the host, not authored by this package — see the perspective-transform
// helper in the external-collaborators table) compose the same way plain
// 2D translate/scale/rotate do, and so the instance buffer upload shape
// matches a shader's mat4x4 uniform directly.
type Transform [4][4]float32

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Translate returns a transform that translates by (x, y, z).
func Translate(x, y, z float64) Transform {
	t := Identity()
	t[0][3] = float32(x)
	t[1][3] = float32(y)
	t[2][3] = float32(z)
	return t
}

// Scale returns a transform that scales by (x, y, z).
func Scale(x, y, z float64) Transform {
	t := Identity()
	t[0][0] = float32(x)
	t[1][1] = float32(y)
	t[2][2] = float32(z)
	return t
}

// RotateZ returns a transform that rotates by angle radians around the Z
// axis (the only rotation axis a 2D scene ever needs).
func RotateZ(angle float64) Transform {
	cos := float32(math.Cos(angle))
	sin := float32(math.Sin(angle))
	t := Identity()
	t[0][0], t[0][1] = cos, -sin
	t[1][0], t[1][1] = sin, cos
	return t
}

// Mul returns m multiplied by other (m * other); applying the result to a
// point is equivalent to applying other first, then m.
func (m Transform) Mul(other Transform) Transform {
	var out Transform
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[row][k] * other[k][col]
			}
			out[row][col] = sum
		}
	}
	return out
}

// TransformPoint applies the transform to a 2D point, treating it as
// (x, y, 0, 1) and returning the resulting (x, y) after the implicit
// perspective divide by w.
func (m Transform) TransformPoint(p Point) Point {
	x := m[0][0]*float32(p.X) + m[0][1]*float32(p.Y) + m[0][3]
	y := m[1][0]*float32(p.X) + m[1][1]*float32(p.Y) + m[1][3]
	w := m[3][0]*float32(p.X) + m[3][1]*float32(p.Y) + m[3][3]
	if w != 0 && w != 1 {
		x /= w
		y /= w
	}
	return Point{X: float64(x), Y: float64(y)}
}

// IsIdentity reports whether the transform is exactly the identity.
func (m Transform) IsIdentity() bool {
	return m == Identity()
}

// IsAffineAxisAligned reports whether the transform has no rotation, skew
// or perspective component: only axis-aligned scale (uniform or not) and
// translation in X/Y. The segmented renderer uses this to decide whether
// a clipping Rect can take the cheap hardware-scissor path instead of the
// stencil path.
func (m Transform) IsAffineAxisAligned() bool {
	const eps = 1e-6
	near := func(a, b float32) bool {
		d := a - b
		return d > -eps && d < eps
	}
	return near(m[0][1], 0) && near(m[1][0], 0) &&
		near(m[2][0], 0) && near(m[2][1], 0) &&
		near(m[3][0], 0) && near(m[3][1], 0) && near(m[3][2], 0) &&
		near(m[3][3], 1)
}

// Rows returns the transform's four rows, matching the wire shape an
// instance buffer upload expects.
func (m Transform) Rows() [4][4]float32 {
	return m
}
