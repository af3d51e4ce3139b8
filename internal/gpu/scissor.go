package gpu

// ScissorRect is a pixel-space rectangle in physical (not logical)
// pixels, the unit the GPU's scissor test operates in. Min is inclusive,
// Max is exclusive, matching SetScissorRect(x, y, width, height) once
// width/height are derived.
type ScissorRect struct {
	MinX, MinY uint32
	MaxX, MaxY uint32
}

// Empty reports whether the rect covers zero pixels.
func (r ScissorRect) Empty() bool {
	return r.MaxX <= r.MinX || r.MaxY <= r.MinY
}

// Intersect returns the overlap of r and other. The result is Empty if
// the two rects don't overlap.
func (r ScissorRect) Intersect(other ScissorRect) ScissorRect {
	out := ScissorRect{
		MinX: max(r.MinX, other.MinX),
		MinY: max(r.MinY, other.MinY),
		MaxX: min(r.MaxX, other.MaxX),
		MaxY: min(r.MaxY, other.MaxY),
	}
	if out.Empty() {
		return ScissorRect{}
	}
	return out
}

// WidthHeight returns the rect's extent, clamped to zero if Empty.
func (r ScissorRect) WidthHeight() (uint32, uint32) {
	if r.Empty() {
		return 0, 0
	}
	return r.MaxX - r.MinX, r.MaxY - r.MinY
}
