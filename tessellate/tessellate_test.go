package tessellate

import (
	"testing"

	"github.com/gogpu/stagegraph"
)

func TestTessellateRectProducesTwoTriangles(t *testing.T) {
	r := stagegraph.NewRect(stagegraph.Pt(0, 0), stagegraph.Pt(10, 10), stagegraph.RGB(255, 0, 0))
	g := Tessellate(r, 0)
	if len(g.Vertices) != 4 {
		t.Fatalf("len(Vertices) = %d; want 4", len(g.Vertices))
	}
	if len(g.Indices) != 6 {
		t.Fatalf("len(Indices) = %d; want 6", len(g.Indices))
	}
}

func TestTessellateDegenerateRectIsEmpty(t *testing.T) {
	r := stagegraph.NewRect(stagegraph.Pt(5, 5), stagegraph.Pt(5, 5), stagegraph.RGB(0, 0, 0))
	g := Tessellate(r, 0)
	if !g.Empty() {
		t.Fatalf("collapsed rect produced non-empty geometry: %+v", g)
	}
}

func TestTessellateRoundedRectZeroRadiusNotEmpty(t *testing.T) {
	rr := stagegraph.RoundedRect{
		Min: stagegraph.Pt(0, 0), Max: stagegraph.Pt(10, 10),
		Fill: stagegraph.RGB(0, 255, 0),
	}
	g := Tessellate(rr, 0)
	if g.Empty() {
		t.Fatal("zero-radius rounded rect produced empty geometry")
	}
}

func TestTessellateOutOfBoundsRectDoesNotCrash(t *testing.T) {
	r := stagegraph.NewRect(stagegraph.Pt(-1000, -1000), stagegraph.Pt(-900, -900), stagegraph.RGB(1, 2, 3))
	g := Tessellate(r, 0)
	if g.Empty() {
		t.Fatal("an off-canvas rect still has valid local geometry; the culling decision belongs to the renderer, not the tessellator")
	}
}

func TestAppendStrokeAddsFringeBand(t *testing.T) {
	r := stagegraph.RectShape{
		Min: stagegraph.Pt(0, 0), Max: stagegraph.Pt(10, 10),
		Fill:   stagegraph.RGB(255, 255, 255),
		Stroke: stagegraph.Stroke{Width: 2, Color: stagegraph.RGB(0, 0, 0)},
	}
	withFringe := Tessellate(r, DefaultFringeWidth)
	noFringe := Tessellate(r, 0)
	if len(withFringe.Vertices) <= len(noFringe.Vertices) {
		t.Fatalf("expected fringe band to add vertices: with=%d without=%d", len(withFringe.Vertices), len(noFringe.Vertices))
	}
}

func TestGeometryAppendRebasesIndices(t *testing.T) {
	var g Geometry
	a := Geometry{
		Vertices: []Vertex{{X: 0}, {X: 1}},
		Indices:  []uint16{0, 1},
	}
	b := Geometry{
		Vertices: []Vertex{{X: 2}, {X: 3}},
		Indices:  []uint16{0, 1},
	}
	g.Append(a)
	g.Append(b)

	if len(g.Vertices) != 4 {
		t.Fatalf("len(Vertices) = %d; want 4", len(g.Vertices))
	}
	want := []uint16{0, 1, 2, 3}
	for i, idx := range g.Indices {
		if idx != want[i] {
			t.Fatalf("Indices[%d] = %d; want %d", i, idx, want[i])
		}
	}
}

func TestTessellatePathTriangle(t *testing.T) {
	b := stagegraph.BuildPath()
	b.Begin(0, 0)
	b.LineTo(10, 0)
	b.LineTo(5, 10)
	b.Close()
	p := b.Build()

	shape := stagegraph.PathShape{Path: p, Fill: stagegraph.RGB(0, 0, 255)}
	g := Tessellate(shape, 0)
	if g.Empty() {
		t.Fatal("triangular path produced empty geometry")
	}
	// Fan-from-centroid of a 3-point polygon: center + 3 verts, 3 tris.
	if len(g.Vertices) != 4 {
		t.Fatalf("len(Vertices) = %d; want 4 (center + 3 corners)", len(g.Vertices))
	}
}
