package stagegraph

import "testing"

func TestIdentityIsAffineAxisAligned(t *testing.T) {
	id := Identity()
	if !id.IsAffineAxisAligned() {
		t.Fatal("identity should be affine axis-aligned")
	}
	if !id.IsIdentity() {
		t.Fatal("Identity() should report IsIdentity true")
	}
}

func TestTranslateScaleAffineAxisAligned(t *testing.T) {
	tr := Translate(10, 20, 0).Mul(Scale(2, 2, 1))
	if !tr.IsAffineAxisAligned() {
		t.Fatal("translate+scale composition should stay affine axis-aligned")
	}
}

func TestRotateNotAffineAxisAligned(t *testing.T) {
	r := RotateZ(0.4)
	if r.IsAffineAxisAligned() {
		t.Fatal("rotation should not be affine axis-aligned")
	}
}

func TestTransformPoint(t *testing.T) {
	tr := Translate(5, 7, 0)
	p := tr.TransformPoint(Pt(1, 1))
	if p.X != 6 || p.Y != 8 {
		t.Fatalf("TransformPoint = %+v; want {6 8}", p)
	}
}

func TestMulOrderAppliesRightFirst(t *testing.T) {
	m := Translate(10, 0, 0).Mul(Scale(2, 2, 1))
	p := m.TransformPoint(Pt(1, 1))
	if p.X != 12 || p.Y != 2 {
		t.Fatalf("Mul order wrong: TransformPoint = %+v; want {12 2}", p)
	}
}
