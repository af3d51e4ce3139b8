package stagegraph

import "testing"

func TestColorNormalize(t *testing.T) {
	c := RGBA(255, 128, 0, 64)
	n := c.Normalize()
	if n[0] != 1 {
		t.Fatalf("R = %v; want 1", n[0])
	}
	if n[3] < 0.24 || n[3] > 0.26 {
		t.Fatalf("A = %v; want ~0.251", n[3])
	}
}

func TestColorPremultiply(t *testing.T) {
	c := RGBA(255, 255, 255, 0)
	p := c.Premultiply()
	if p[0] != 0 || p[1] != 0 || p[2] != 0 {
		t.Fatalf("premultiplied fully transparent color should be zero RGB, got %v", p)
	}
}

func TestHex(t *testing.T) {
	cases := []struct {
		in   string
		want Color
	}{
		{"#fff", RGB(255, 255, 255)},
		{"000", RGB(0, 0, 0)},
		{"#ff0000ff", RGBA(255, 0, 0, 255)},
		{"00ff00", RGB(0, 255, 0)},
	}
	for _, tc := range cases {
		if got := Hex(tc.in); got != tc.want {
			t.Errorf("Hex(%q) = %+v; want %+v", tc.in, got, tc.want)
		}
	}
}

func TestColorLerp(t *testing.T) {
	a := RGB(0, 0, 0)
	b := RGB(255, 255, 255)
	mid := a.Lerp(b, 0.5)
	if mid.R < 120 || mid.R > 135 {
		t.Fatalf("Lerp midpoint R = %d; want ~127", mid.R)
	}
}
