package stagegraph

import "testing"

func TestPathBuilderTriangle(t *testing.T) {
	p := BuildPath().
		Begin(0, 0).
		LineTo(10, 0).
		LineTo(5, 10).
		Close().
		Build()

	if len(p.Segments) != 4 {
		t.Fatalf("len(Segments) = %d; want 4", len(p.Segments))
	}
	if p.Segments[0].Kind != SegmentMove {
		t.Errorf("Segments[0].Kind = %v; want SegmentMove", p.Segments[0].Kind)
	}
	if p.Segments[3].Kind != SegmentClose {
		t.Errorf("Segments[3].Kind = %v; want SegmentClose", p.Segments[3].Kind)
	}
}

func TestPathBuilderCubic(t *testing.T) {
	p := BuildPath().
		Begin(0, 0).
		CubicBezierTo(1, 1, 2, 2, 3, 3).
		Build()

	if len(p.Segments) != 2 {
		t.Fatalf("len(Segments) = %d; want 2", len(p.Segments))
	}
	seg := p.Segments[1]
	if seg.Kind != SegmentCubic {
		t.Fatalf("Segments[1].Kind = %v; want SegmentCubic", seg.Kind)
	}
	if seg.To != (Point{X: 3, Y: 3}) {
		t.Errorf("Segments[1].To = %+v; want {3 3}", seg.To)
	}
}

func TestCloseWithoutBeginIsNoop(t *testing.T) {
	p := BuildPath().Close().Build()
	if len(p.Segments) != 0 {
		t.Fatalf("len(Segments) = %d; want 0", len(p.Segments))
	}
}
