package render

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stagegraph"
	"github.com/gogpu/stagegraph/drawtree"
	"github.com/gogpu/stagegraph/internal/gpu"
)

// backdropHandler performs everything a backdrop node's Pre event
// requires: ending the segment controller's open pass, snapshotting the
// frame so far, running the attached effect's pass chain, drawing the
// stencil-only and composite steps under the node's silhouette, and
// reopening a render pass (LoadOp: Load) before returning. immediate
// reports whether the node's stencil increment was already undone
// (true for a leaf node, which has no descendants to gate); when false
// the caller pushes a runtime clip frame so the node's descendants
// render gated on the bumped stencil value and the normal Post handler
// performs the decrement.
type backdropHandler func(ctl *segmentController, node drawtree.NodeID, parentRef uint32) (immediate bool, err error)

// noTextureBound is the sentinel the texture-layer binding tracker
// starts each pass from; no real texture id (including the zero "unset"
// id, which binds the placeholder) compares equal to it.
const noTextureBound = ^uint64(0)

// segmentController drives one contiguous run of traversal events
// through a single GPU render pass per segment, restarting the pass
// (LoadOp: Load) whenever a backdrop node forces a break. It owns
// pipeline-change minimization, texture bind-group minimization, the
// runtime clip stack, and leaf-draw batching for the duration of one
// renderSegments call.
type segmentController struct {
	device  hal.Device
	queue   hal.Queue
	encoder hal.CommandEncoder
	target  *gpu.FrameTarget
	pass    hal.RenderPassEncoder

	scene     *gpu.ScenePipeline
	clip      *gpu.ClipPipelines
	composite *gpu.CompositePipeline

	uniformBindGroup hal.BindGroup

	vertexBuf, indexBuf, instBuf hal.Buffer

	// texBind resolves a texture id to its layer bind group (the shared
	// placeholder for id 0 or an unknown id).
	texBind func(id uint64) hal.BindGroup

	// retire defers destruction of a per-draw bind group until the frame's
	// commands have actually executed on the GPU.
	retire func(bg hal.BindGroup)

	clipStack *clipStack
	batcher   *leafBatcher

	currentPipeline    hal.RenderPipeline
	boundBG, boundFG   uint64
	width, height      uint32

	clear      gputypes.Color
	backdropFn backdropHandler
}

// newSegmentController creates a controller bound to one frame's shared
// GPU resources, ready to drive renderSegments.
func newSegmentController(
	device hal.Device, queue hal.Queue,
	scene *gpu.ScenePipeline, clip *gpu.ClipPipelines, composite *gpu.CompositePipeline,
	uniformBindGroup hal.BindGroup,
	vertexBuf, indexBuf, instBuf hal.Buffer,
	texBind func(id uint64) hal.BindGroup,
	retire func(bg hal.BindGroup),
	width, height uint32,
) *segmentController {
	return &segmentController{
		device: device, queue: queue,
		scene: scene, clip: clip, composite: composite,
		uniformBindGroup: uniformBindGroup,
		vertexBuf: vertexBuf, indexBuf: indexBuf, instBuf: instBuf,
		texBind:   texBind,
		retire:    retire,
		clipStack: newClipStack(),
		width:     width, height: height,
	}
}

// renderSegments walks events (produced by drawtree.Plan) into encoder
// against target, issuing clip, leaf, and composite draws. resultViews
// names nodes whose group effect already produced a result texture;
// backdropFn (shared by the main frame and every group-effect pass; when
// nil, backdrop nodes draw as plain nodes) handles the segment break a
// backdrop node's Pre event forces. clear is the color the first
// segment in this call starts from; a fresh FrameTarget pass always
// opens with LoadOp Clear, resuming segments after a backdrop break use
// LoadOp Load.
func (ctl *segmentController) renderSegments(
	encoder hal.CommandEncoder, target *gpu.FrameTarget, tree *drawtree.Tree,
	events []drawtree.TraversalEvent,
	resultViews map[drawtree.NodeID]hal.TextureView,
	backdropFn backdropHandler, clear gputypes.Color,
) error {
	ctl.encoder = encoder
	ctl.target = target
	ctl.clear = clear
	ctl.backdropFn = backdropFn
	ctl.clipStack.reset()
	ctl.batcher = newLeafBatcher(ctl.drawBatch)

	ctl.beginPass(gputypes.LoadOpClear)
	for _, ev := range events {
		if err := ctl.handleEvent(tree, ev, resultViews); err != nil {
			ctl.endPass()
			return err
		}
	}
	ctl.batcher.Flush()
	ctl.endPass()
	return nil
}

// beginPass opens a render pass over the frame target. Pass boundaries
// reset all pass-scoped GPU state, so the pipeline and texture trackers
// are invalidated and the scissor rect restored from the top of the
// runtime clip stack.
func (ctl *segmentController) beginPass(loadOp gputypes.LoadOp) {
	desc := ctl.target.PassDescriptor("stagegraph_segment", ctl.clear, loadOp)
	ctl.pass = ctl.encoder.BeginRenderPass(desc)
	ctl.currentPipeline = nil
	ctl.boundBG, ctl.boundFG = noTextureBound, noTextureBound
	ctl.pass.SetViewport(0, 0, float32(ctl.width), float32(ctl.height), 0, 1)
	ctl.pass.SetScissorRect(0, 0, ctl.width, ctl.height)
	if scissor, ok := ctl.clipStack.activeScissor(); ok {
		w, h := scissor.WidthHeight()
		ctl.pass.SetScissorRect(scissor.MinX, scissor.MinY, w, h)
	}
}

func (ctl *segmentController) endPass() {
	if ctl.pass != nil {
		ctl.pass.End()
		ctl.pass = nil
	}
}

func (ctl *segmentController) handleEvent(
	tree *drawtree.Tree, ev drawtree.TraversalEvent,
	resultViews map[drawtree.NodeID]hal.TextureView,
) error {
	node := tree.Node(ev.Node)
	if node == nil {
		return nil
	}

	if ev.Kind == drawtree.Post {
		return ctl.handlePost(ev.Node, node)
	}
	return ctl.handlePre(tree, ev.Node, node, resultViews)
}

func (ctl *segmentController) handlePre(
	tree *drawtree.Tree, id drawtree.NodeID, node *drawtree.Node,
	resultViews map[drawtree.NodeID]hal.TextureView,
) error {
	// The runtime clip stack, not the planner's advisory numbering, is
	// authoritative: a scissor or non-clipping ancestor never pushed a
	// real stencil increment, so the value to test against is whatever
	// the nearest stencil-clipping ancestor actually left in the buffer.
	parentRef := ctl.clipStack.activeStencilRef()

	// Already-composited group effect result: draw its offscreen texture
	// as a fullscreen, stencil-gated composite and skip clip/leaf
	// handling entirely; the planner suppresses this node's descendants.
	if view, ok := resultViews[id]; ok {
		ctl.batcher.Flush()
		return ctl.drawComposite(view, parentRef)
	}

	if _, ok := tree.BackdropEffects[id]; ok && ctl.backdropFn != nil {
		ctl.batcher.Flush()
		immediate, err := ctl.backdropFn(ctl, id, parentRef)
		if err != nil {
			return fmt.Errorf("render backdrop node %d: %w", id, err)
		}
		if !immediate {
			// The handler left the node's region bumped to parentRef+1
			// so descendants clip against it; Post pops it like any
			// stencil-clipping interior node.
			ctl.clipStack.push(clipFrame{kind: ClipStencil, stencilRef: parentRef + 1, node: id})
		}
		return nil
	}

	if node.IsLeaf() {
		return ctl.addLeaf(node)
	}

	if node.NonClippingHint {
		ctl.drawInteriorFill(node, parentRef)
		ctl.clipStack.push(clipFrame{kind: ClipNone, node: id, stencilRef: parentRef})
		return nil
	}

	if shape, hasShape := node.Shape(); hasShape {
		if rect, isRect := shape.(stagegraph.RectShape); isRect {
			if scissor, ok := ctl.worldScissor(node, rect); ok {
				ctl.batcher.Flush()
				if parent, hasParent := ctl.clipStack.activeScissor(); hasParent {
					scissor = scissor.Intersect(parent)
				}
				w, h := scissor.WidthHeight()
				ctl.pass.SetScissorRect(scissor.MinX, scissor.MinY, w, h)
				// The rect's own fill draws like a leaf; its children are
				// clipped by the hardware scissor, not a stencil bump.
				ctl.drawInteriorFill(node, parentRef)
				ctl.clipStack.push(clipFrame{kind: ClipScissor, scissor: scissor, node: id, stencilRef: parentRef})
				return nil
			}
		}
	}

	ctl.batcher.Flush()
	ctl.bindPipeline(ctl.clip.Push())
	ctl.bindSceneState(parentRef)
	ctl.bindTextureGroups(uint64(node.TextureID(drawtree.LayerBackground)), uint64(node.TextureID(drawtree.LayerForeground)))
	ctl.drawNodeGeometry(node, 1)
	ctl.clipStack.push(clipFrame{kind: ClipStencil, stencilRef: parentRef + 1, node: id})
	return nil
}

func (ctl *segmentController) handlePost(id drawtree.NodeID, node *drawtree.Node) error {
	top, ok := ctl.clipStack.top()
	if !ok || top.node != id {
		// This node never pushed a frame in handlePre (a leaf, an
		// already-composited group-effect result, or a leaf backdrop
		// node whose increment was undone inline): nothing to restore.
		return nil
	}
	switch top.kind {
	case ClipStencil:
		ctl.batcher.Flush()
		ctl.bindPipeline(ctl.clip.Pop())
		ctl.bindSceneState(top.stencilRef)
		ctl.bindTextureGroups(0, 0)
		ctl.drawNodeGeometry(node, 1)
		ctl.clipStack.pop()
	case ClipScissor:
		ctl.batcher.Flush()
		ctl.clipStack.pop()
		if scissor, ok := ctl.clipStack.activeScissor(); ok {
			w, h := scissor.WidthHeight()
			ctl.pass.SetScissorRect(scissor.MinX, scissor.MinY, w, h)
		} else {
			ctl.pass.SetScissorRect(0, 0, ctl.width, ctl.height)
		}
	case ClipNone:
		ctl.clipStack.pop()
	}
	return nil
}

// drawInteriorFill paints an interior node's own fill the way a leaf
// draw would (Equal + Keep, no stencil mutation), for the two interior
// cases that clip without a stencil bump: scissor fast-path rects and
// non-clipping group nodes.
func (ctl *segmentController) drawInteriorFill(node *drawtree.Node, ref uint32) {
	if _, count := node.IndexRange(); count == 0 {
		return
	}
	ctl.batcher.Flush()
	ctl.bindPipeline(ctl.scene.Pipeline())
	ctl.bindSceneState(ref)
	ctl.bindTextureGroups(uint64(node.TextureID(drawtree.LayerBackground)), uint64(node.TextureID(drawtree.LayerForeground)))
	ctl.drawNodeGeometry(node, 1)
}

// worldScissor decides whether rect, as clip shape for node, can take the
// hardware scissor fast path: that requires an affine, axis-aligned
// transform (rotation or skew would turn the rectangle into a
// non-axis-aligned quad the scissor test can't express). RoundedRect and
// PathShape never reach here; they always fall back to the stencil path.
func (ctl *segmentController) worldScissor(node *drawtree.Node, rect stagegraph.RectShape) (gpu.ScissorRect, bool) {
	if !node.Transform().IsAffineAxisAligned() {
		return gpu.ScissorRect{}, false
	}
	world := node.Transform()
	a := world.TransformPoint(rect.Min)
	b := world.TransformPoint(rect.Max)
	minX, maxX := a.X, b.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := a.Y, b.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	// A negative origin clamps to the viewport edge (the cut-off pixels
	// were never drawable anyway), but a max past the viewport cannot be
	// expressed as a valid hardware scissor rect; such rects fall back to
	// the stencil path.
	minX, minY = clampNonNeg(minX), clampNonNeg(minY)
	if maxX > float64(ctl.width) || maxY > float64(ctl.height) {
		return gpu.ScissorRect{}, false
	}
	if maxX <= minX || maxY <= minY {
		return gpu.ScissorRect{}, false
	}
	return gpu.ScissorRect{
		MinX: uint32(minX), MinY: uint32(minY),
		MaxX: uint32(maxX), MaxY: uint32(maxY),
	}, true
}

func clampNonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func (ctl *segmentController) addLeaf(node *drawtree.Node) error {
	start, count := node.IndexRange()
	if count == 0 {
		return nil
	}
	background := uint64(node.TextureID(drawtree.LayerBackground))
	foreground := uint64(node.TextureID(drawtree.LayerForeground))
	ctl.ensureLeafPipeline()
	ctl.batcher.Add(start, count, node.InstanceIndex(), background, foreground)
	return nil
}

func (ctl *segmentController) ensureLeafPipeline() {
	if ctl.currentPipeline == ctl.scene.Pipeline() {
		return
	}
	ctl.batcher.Flush()
	ctl.bindPipeline(ctl.scene.Pipeline())
	ctl.bindSceneState(ctl.clipStack.activeStencilRef())
}

func (ctl *segmentController) drawBatch(batch leafBatch) {
	ctl.bindTextureGroups(batch.background, batch.foreground)
	drawBatch(ctl.pass, batch)
}

// bindSceneState binds the shared state every scene-layout draw (leaf,
// clip push, clip pop) needs: the viewport uniform at group 0, the
// frame's combined vertex/index/instance buffers, and the stencil
// reference.
func (ctl *segmentController) bindSceneState(ref uint32) {
	ctl.pass.SetBindGroup(0, ctl.uniformBindGroup, nil)
	ctl.pass.SetVertexBuffer(0, ctl.vertexBuf, 0)
	ctl.pass.SetVertexBuffer(1, ctl.instBuf, 0)
	ctl.pass.SetIndexBuffer(ctl.indexBuf, gputypes.IndexFormatUint16, 0)
	ctl.pass.SetStencilReference(ref)
}

// bindTextureGroups binds the two texture-layer bind groups, skipping
// rebinds while the underlying texture ids are unchanged since the last
// draw in this pass.
func (ctl *segmentController) bindTextureGroups(background, foreground uint64) {
	if background != ctl.boundBG {
		ctl.pass.SetBindGroup(1, ctl.texBind(background), nil)
		ctl.boundBG = background
	}
	if foreground != ctl.boundFG {
		ctl.pass.SetBindGroup(2, ctl.texBind(foreground), nil)
		ctl.boundFG = foreground
	}
}

func (ctl *segmentController) drawNodeGeometry(node *drawtree.Node, instanceCount uint32) {
	start, count := node.IndexRange()
	if count == 0 {
		return
	}
	ctl.pass.DrawIndexed(count, instanceCount, start, 0, node.InstanceIndex())
}

func (ctl *segmentController) drawComposite(view hal.TextureView, stencilRef uint32) error {
	bg, err := ctl.composite.BindGroup("stagegraph_group_effect_composite", view)
	if err != nil {
		return fmt.Errorf("create composite bind group: %w", err)
	}
	// Recorded commands only execute at submit; the bind group must stay
	// alive until the frame's fence signals.
	ctl.retire(bg)

	ctl.bindPipeline(ctl.composite.Pipeline())
	ctl.pass.SetBindGroup(0, bg, nil)
	ctl.pass.SetStencilReference(stencilRef)
	ctl.pass.Draw(3, 1, 0, 0)
	// The composite pipeline's layout replaces group 0 and leaves groups
	// 1/2 unreliable for the next scene-layout draw.
	ctl.boundBG, ctl.boundFG = noTextureBound, noTextureBound
	return nil
}

func (ctl *segmentController) bindPipeline(p hal.RenderPipeline) {
	if ctl.currentPipeline == p {
		return
	}
	ctl.pass.SetPipeline(p)
	ctl.currentPipeline = p
}
