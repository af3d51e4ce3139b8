package render

import (
	"testing"

	"github.com/gogpu/stagegraph"
	"github.com/gogpu/stagegraph/drawtree"
)

func TestClampNonNeg(t *testing.T) {
	if got := clampNonNeg(-5); got != 0 {
		t.Errorf("clampNonNeg(-5) = %v, want 0", got)
	}
	if got := clampNonNeg(3.5); got != 3.5 {
		t.Errorf("clampNonNeg(3.5) = %v, want 3.5", got)
	}
}

func newLeafNode(t *testing.T, transform stagegraph.Transform) *drawtree.Node {
	t.Helper()
	tree := drawtree.New()
	id := tree.AddShape(stagegraph.NewRect(
		stagegraph.Point{X: 0, Y: 0}, stagegraph.Point{X: 10, Y: 10}, stagegraph.Color{},
	), drawtree.NoNode, nil)
	tree.SetShapeTransform(id, transform)
	return tree.Node(id)
}

func TestWorldScissorAxisAlignedIdentity(t *testing.T) {
	ctl := &segmentController{width: 480, height: 480}
	node := newLeafNode(t, stagegraph.Identity())
	rect := stagegraph.RectShape{Min: stagegraph.Point{X: 2, Y: 3}, Max: stagegraph.Point{X: 8, Y: 9}}

	got, ok := ctl.worldScissor(node, rect)
	if !ok {
		t.Fatal("worldScissor() ok = false for an axis-aligned identity transform")
	}
	want := struct{ minX, minY, maxX, maxY uint32 }{2, 3, 8, 9}
	if got.MinX != want.minX || got.MinY != want.minY || got.MaxX != want.maxX || got.MaxY != want.maxY {
		t.Errorf("worldScissor() = %+v, want Min(%d,%d) Max(%d,%d)", got, want.minX, want.minY, want.maxX, want.maxY)
	}
}

func TestWorldScissorRejectsRotatedTransform(t *testing.T) {
	ctl := &segmentController{width: 480, height: 480}
	node := newLeafNode(t, stagegraph.RotateZ(0.5))
	rect := stagegraph.RectShape{Min: stagegraph.Point{X: 0, Y: 0}, Max: stagegraph.Point{X: 10, Y: 10}}

	_, ok := ctl.worldScissor(node, rect)
	if ok {
		t.Fatal("worldScissor() ok = true for a rotated (non-axis-aligned) transform; want false")
	}
}

func TestWorldScissorClampsNegativeTranslationToZero(t *testing.T) {
	ctl := &segmentController{width: 480, height: 480}
	node := newLeafNode(t, stagegraph.Translate(-5, -5, 0))
	rect := stagegraph.RectShape{Min: stagegraph.Point{X: 0, Y: 0}, Max: stagegraph.Point{X: 10, Y: 10}}

	got, ok := ctl.worldScissor(node, rect)
	if !ok {
		t.Fatal("worldScissor() ok = false for a translated axis-aligned transform")
	}
	if got.MinX != 0 || got.MinY != 0 {
		t.Errorf("worldScissor() = %+v, want Min clamped to (0, 0)", got)
	}
}

func TestWorldScissorOverflowFallsBackToStencil(t *testing.T) {
	ctl := &segmentController{width: 480, height: 480}
	node := newLeafNode(t, stagegraph.Identity())
	rect := stagegraph.RectShape{Min: stagegraph.Point{X: 0, Y: 0}, Max: stagegraph.Point{X: 500, Y: 10}}

	_, ok := ctl.worldScissor(node, rect)
	if ok {
		t.Fatal("worldScissor() ok = true for a rect wider than the viewport; want stencil fallback")
	}
}

func TestWorldScissorDegenerateRectIsEmpty(t *testing.T) {
	ctl := &segmentController{width: 480, height: 480}
	node := newLeafNode(t, stagegraph.Identity())
	rect := stagegraph.RectShape{Min: stagegraph.Point{X: 5, Y: 5}, Max: stagegraph.Point{X: 5, Y: 5}}

	_, ok := ctl.worldScissor(node, rect)
	if ok {
		t.Fatal("worldScissor() ok = true for a zero-area rect; want false")
	}
}
