package render

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/stagegraph"
	"github.com/gogpu/stagegraph/drawtree"
	"github.com/gogpu/stagegraph/effect"
	"github.com/gogpu/stagegraph/tessellate"
)

// newTestRenderer builds a full Renderer over the hardware-free noop hal
// device, enough to drive the whole frame pipeline (prepare, group
// effects, segmented render, submit) without an adapter.
func newTestRenderer(t *testing.T, w, h uint32) *Renderer {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	t.Cleanup(instance.Destroy)
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("noop backend enumerated zero adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(openDev.Device.Destroy)

	r, err := buildRenderer(openDev.Device, openDev.Queue, PhysicalSize{Width: w, Height: h}, 1.0, false, false, 4)
	if err != nil {
		t.Fatalf("buildRenderer: %v", err)
	}
	t.Cleanup(r.Destroy)
	return r
}

const frameTestPassthrough = `
@fragment
fn effect_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
	return textureSample(t_input, s_input, uv);
}
`

func TestDrawFrameSolidRect(t *testing.T) {
	r := newTestRenderer(t, 480, 480)

	id := r.AddShape(stagegraph.NewRect(stagegraph.Pt(10, 10), stagegraph.Pt(70, 70),
		stagegraph.RGB(220, 50, 50)), drawtree.NoNode, nil)

	if err := r.drawFrame(); err != nil {
		t.Fatalf("drawFrame: %v", err)
	}
	if r.tree.Node(id).Resolved() {
		t.Fatal("transient per-node state must be cleared at end of frame")
	}
}

func TestDrawFrameParentChildClip(t *testing.T) {
	r := newTestRenderer(t, 480, 480)

	parent := r.AddShape(stagegraph.NewRect(stagegraph.Pt(10, 10), stagegraph.Pt(55, 70),
		stagegraph.RGB(50, 200, 50)), drawtree.NoNode, nil)
	r.AddShape(stagegraph.NewRect(stagegraph.Pt(30, 20), stagegraph.Pt(75, 60),
		stagegraph.RGB(50, 50, 200)), parent, nil)

	if err := r.drawFrame(); err != nil {
		t.Fatalf("drawFrame: %v", err)
	}
}

func TestDrawFrameRotatedDiamondClip(t *testing.T) {
	r := newTestRenderer(t, 480, 480)

	diamond := stagegraph.RotateZ(0.785398).Mul(stagegraph.Translate(40, 40, 0))
	parent := r.AddShape(stagegraph.NewRect(stagegraph.Pt(-20, -20), stagegraph.Pt(20, 20),
		stagegraph.RGB(50, 200, 50)), drawtree.NoNode, nil)
	r.SetShapeTransform(parent, diamond)
	child := r.AddShape(stagegraph.NewRect(stagegraph.Pt(-12, -12), stagegraph.Pt(12, 12),
		stagegraph.RGB(50, 50, 200)), parent, nil)
	r.SetShapeTransform(child, stagegraph.Identity())

	if err := r.drawFrame(); err != nil {
		t.Fatalf("drawFrame: %v", err)
	}
}

func TestDrawFrameGroupEffect(t *testing.T) {
	r := newTestRenderer(t, 480, 480)

	id := r.AddShape(stagegraph.NewRect(stagegraph.Pt(100, 100), stagegraph.Pt(400, 350),
		stagegraph.RGB(220, 50, 50)), drawtree.NoNode, nil)

	const effectID = effect.ID(1)
	if err := r.LoadEffect(effectID, frameTestPassthrough); err != nil {
		t.Fatalf("LoadEffect: %v", err)
	}
	if err := r.SetGroupEffect(id, effectID, nil); err != nil {
		t.Fatalf("SetGroupEffect: %v", err)
	}

	if err := r.drawFrame(); err != nil {
		t.Fatalf("drawFrame with group effect: %v", err)
	}
	// The subtree and effect-pass pool textures must come back once the
	// frame's encoder has been waited on.
	if r.texPool.Len() == 0 {
		t.Fatal("pool textures acquired for the group effect were not recycled")
	}
}

func TestDrawFrameBackdropUnderScissorParent(t *testing.T) {
	r := newTestRenderer(t, 480, 480)

	r.AddShape(stagegraph.NewRect(stagegraph.Pt(5, 5), stagegraph.Pt(75, 75),
		stagegraph.RGB(220, 180, 50)), drawtree.NoNode, nil)
	scissorParent := r.AddShape(stagegraph.NewRect(stagegraph.Pt(10, 10), stagegraph.Pt(60, 70),
		stagegraph.RGBA(255, 255, 255, 40)), drawtree.NoNode, nil)
	panel := r.AddShape(stagegraph.NewRect(stagegraph.Pt(15, 15), stagegraph.Pt(55, 65),
		stagegraph.RGBA(200, 200, 255, 128)), scissorParent, nil)

	const effectID = effect.ID(1)
	if err := r.LoadEffect(effectID, frameTestPassthrough); err != nil {
		t.Fatalf("LoadEffect: %v", err)
	}
	if err := r.SetBackdropEffect(panel, effectID, nil); err != nil {
		t.Fatalf("SetBackdropEffect: %v", err)
	}

	if err := r.drawFrame(); err != nil {
		t.Fatalf("drawFrame with backdrop under scissor parent: %v", err)
	}
}

func TestDrawFrameCachedShapeReuseSharesGeometry(t *testing.T) {
	r := newTestRenderer(t, 480, 480)

	const key = tessellate.CacheKey(9999)
	tessKey := key
	r.LoadShape(stagegraph.NewRect(stagegraph.Pt(0, 0), stagegraph.Pt(20, 20),
		stagegraph.RGB(10, 20, 30)), key, &tessKey)
	if got := r.tessCache.Len(); got != 1 {
		t.Fatalf("tessellation cache Len() after LoadShape = %d; want 1", got)
	}

	a := r.AddCachedShape(key, drawtree.NoNode)
	b := r.AddCachedShape(key, drawtree.NoNode)
	r.SetShapeTransform(b, stagegraph.Translate(30, 0, 0))

	// Inspect shared geometry mid-prepare, before drawFrame clears the
	// transient state.
	if err := r.aggregator.Prepare(r.tree, r.tessCache, r.fringeWidth); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	aStart, aCount := r.tree.Node(a).IndexRange()
	bStart, bCount := r.tree.Node(b).IndexRange()
	if aStart != bStart || aCount != bCount {
		t.Fatalf("cached-shape nodes got distinct geometry ranges: (%d,%d) vs (%d,%d)",
			aStart, aCount, bStart, bCount)
	}
	if got := r.tessCache.Len(); got != 1 {
		t.Fatalf("tessellation cache Len() after reuse = %d; want 1 (no retessellation)", got)
	}

	if err := r.drawFrame(); err != nil {
		t.Fatalf("drawFrame: %v", err)
	}
}

func TestRenderToBufferFillsTightlyPackedRows(t *testing.T) {
	r := newTestRenderer(t, 100, 50)

	r.AddShape(stagegraph.NewRect(stagegraph.Pt(1, 1), stagegraph.Pt(20, 20),
		stagegraph.RGB(255, 0, 0)), drawtree.NoNode, nil)

	var buf []byte
	if err := r.RenderToBuffer(&buf); err != nil {
		t.Fatalf("RenderToBuffer: %v", err)
	}
	if want := 100 * 50 * 4; len(buf) != want {
		t.Fatalf("RenderToBuffer len = %d; want %d (tightly packed BGRA8)", len(buf), want)
	}
}

func TestRenderToARGB32RejectsShortBuffer(t *testing.T) {
	r := newTestRenderer(t, 64, 64)
	buf := make([]uint32, 10)
	if err := r.RenderToARGB32(buf); err == nil {
		t.Fatal("RenderToARGB32 with a short buffer = nil error; want an error")
	}
}

func TestClearDrawQueueThenDrawFrame(t *testing.T) {
	r := newTestRenderer(t, 32, 32)
	r.AddShape(stagegraph.NewRect(stagegraph.Pt(0, 0), stagegraph.Pt(10, 10),
		stagegraph.RGB(1, 2, 3)), drawtree.NoNode, nil)
	r.ClearDrawQueue()
	if !r.tree.Empty() {
		t.Fatal("tree not empty after ClearDrawQueue")
	}
	if err := r.drawFrame(); err != nil {
		t.Fatalf("drawFrame on an empty tree: %v", err)
	}
}
