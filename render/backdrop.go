package render

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stagegraph/drawtree"
	"github.com/gogpu/stagegraph/pool"
)

// backdropContext carries the pixel source a backdrop node's Pre event
// should sample from. The zero value (behindView nil) is the main frame's
// default: snapshot the live frame target at the moment the node is
// reached. processGroupEffects overrides behindView while rendering a
// group-effect subtree that itself contains a backdrop descendant, per
// the isolation drawtree.Tree.HasBackdropDescendant exists to detect: a
// backdrop nested inside an isolated group-effect subtree samples "the
// rest of the scene" (the tree minus that subtree, rendered once), not
// the subtree's own, mostly-transparent, in-progress canvas.
type backdropContext struct {
	behindView hal.TextureView

	// snapTextures/snapViews hold every mid-frame snapshot taken this
	// frame. They must outlive encoder submission — the composite draws
	// that sample them only execute on the GPU then — so the renderer
	// destroys them after the frame's fence wait, not the handler.
	snapTextures []hal.Texture
	snapViews    []hal.TextureView
}

// releaseSnapshots destroys the frame's accumulated snapshot textures.
// Call only after the GPU has finished the frame that sampled them.
func (ctx *backdropContext) releaseSnapshots(device hal.Device) {
	for _, v := range ctx.snapViews {
		v.Destroy()
	}
	for _, t := range ctx.snapTextures {
		device.DestroyTexture(t)
	}
	ctx.snapViews = nil
	ctx.snapTextures = nil
}

// newBackdropHandler builds a backdropHandler bound to fg's shared GPU
// resources, tree, and ctx, satisfying the exact contract segment.go's
// handlePre expects: end the open pass, obtain a pixel source, run the
// node's effect over it, reopen a pass with LoadOp Load, draw the
// stencil-only mark and the composite under the node's own silhouette,
// draw the node's own fill on top, and — for a leaf backdrop node, which
// has no descendants to gate — immediately undo the stencil increment
// before returning. tree is the same *drawtree.Tree every group-effect
// subtree traversal shares with the main frame, so one handler built per
// frame serves both.
//
// frame is the frame-wide pool texture list processGroupEffects and
// renderer.go accumulate and recycle once the whole frame's encoder has
// been submitted; a backdrop's snapshot and effect-pass textures are
// appended to it rather than recycled inline, since the composite draw
// that consumes them happens later in the same pass.
func newBackdropHandler(fg *frameGPU, tree *drawtree.Tree, ctx *backdropContext, frame *[]*pool.Texture) backdropHandler {
	return func(ctl *segmentController, id drawtree.NodeID, parentRef uint32) (bool, error) {
		n := tree.Node(id)
		if n == nil {
			return true, nil
		}
		inst, ok := tree.BackdropEffects[id]
		if !ok {
			return true, nil
		}

		ctl.endPass()

		source := ctx.behindView
		if source == nil {
			snapTex, snapView, err := ctl.target.Snapshot(ctl.encoder, fmt.Sprintf("stagegraph_backdrop_%d_snapshot", id))
			if err != nil {
				return false, fmt.Errorf("snapshot frame for backdrop node %d: %w", id, err)
			}
			ctx.snapTextures = append(ctx.snapTextures, snapTex)
			ctx.snapViews = append(ctx.snapViews, snapView)
			source = snapView
		}

		effectView, used, err := fg.runner.run(ctl.encoder, fg.width, fg.height, inst, source, fg.retire)
		if err != nil {
			return false, fmt.Errorf("run backdrop effect %d for node %d: %w", inst.EffectID, id, err)
		}
		*frame = append(*frame, used...)

		ctl.beginPass(gputypes.LoadOpLoad)

		// Mark the shape's silhouette, bumping it to parentRef+1 without
		// painting: the shape's own fill must land on top of the processed
		// backdrop, not under it.
		thisRef := parentRef + 1
		ctl.bindPipeline(ctl.clip.PushStencilOnly())
		ctl.bindSceneState(parentRef)
		ctl.bindTextureGroups(0, 0)
		ctl.drawNodeGeometry(n, 1)

		if err := ctl.drawComposite(effectView, thisRef); err != nil {
			return false, fmt.Errorf("composite backdrop effect for node %d: %w", id, err)
		}

		// The shape's own fill blends over the composited backdrop through
		// the same Equal+Keep leaf pipeline a plain leaf draw uses.
		ctl.bindPipeline(ctl.scene.Pipeline())
		ctl.bindSceneState(thisRef)
		ctl.bindTextureGroups(uint64(n.TextureID(drawtree.LayerBackground)), uint64(n.TextureID(drawtree.LayerForeground)))
		ctl.drawNodeGeometry(n, 1)

		if n.IsLeaf() {
			ctl.bindPipeline(ctl.clip.Pop())
			ctl.bindSceneState(thisRef)
			ctl.drawNodeGeometry(n, 1)
			return true, nil
		}

		return false, nil
	}
}
