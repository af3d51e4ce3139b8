package stagegraph

import "testing"

func TestDefaultStroke(t *testing.T) {
	s := DefaultStroke()
	if s.Width != 1.0 {
		t.Fatalf("Width = %v; want 1.0", s.Width)
	}
	if s.Color != Black {
		t.Fatalf("Color = %+v; want Black", s.Color)
	}
}

func TestStrokeWithWidthAndColor(t *testing.T) {
	s := DefaultStroke().WithWidth(3).WithColor(White)
	if s.Width != 3 {
		t.Fatalf("Width = %v; want 3", s.Width)
	}
	if s.Color != White {
		t.Fatalf("Color = %+v; want White", s.Color)
	}
}
