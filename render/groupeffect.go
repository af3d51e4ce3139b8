package render

import (
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stagegraph/drawtree"
	"github.com/gogpu/stagegraph/internal/gpu"
	"github.com/gogpu/stagegraph/pool"
)

// frameGPU bundles the shared, once-per-frame GPU resources group-effect
// processing, backdrop handling, and the main segment controller all
// need, so those three call sites can build a segmentController or an
// effectRunner pass without each carrying the whole Renderer.
type frameGPU struct {
	device hal.Device
	queue  hal.Queue

	scene     *gpu.ScenePipeline
	clip      *gpu.ClipPipelines
	composite *gpu.CompositePipeline
	runner    *effectRunner
	texPool   *pool.TexturePool

	uniformBindGroup hal.BindGroup

	vertexBuf, indexBuf, instBuf hal.Buffer

	// texBind resolves a node's texture id to its layer bind group; shared
	// by every segment controller built for this frame.
	texBind func(id uint64) hal.BindGroup

	// retire collects per-draw bind groups whose destruction must wait for
	// the frame's fence.
	retire func(bg hal.BindGroup)

	colorFormat   gputypes.TextureFormat
	width, height uint32
}

// newSegmentController creates a segmentController sharing fg's pipelines
// and buffers, used both for the main frame traversal and for every
// group-effect subtree and "behind" texture rendered offscreen.
func (fg *frameGPU) newSegmentController() *segmentController {
	return newSegmentController(
		fg.device, fg.queue, fg.scene, fg.clip, fg.composite,
		fg.uniformBindGroup,
		fg.vertexBuf, fg.indexBuf, fg.instBuf,
		fg.texBind,
		fg.retire,
		fg.width, fg.height,
	)
}

func (fg *frameGPU) acquireTarget() (*pool.Texture, *gpu.FrameTarget, error) {
	tex, err := fg.texPool.Acquire(int(fg.width), int(fg.height), gpu.SampleCount(), fg.colorFormat)
	if err != nil {
		return nil, nil, err
	}
	target := gpu.WrapFrameTarget(
		fg.device,
		tex.Color, tex.DepthStencil, tex.Resolve,
		tex.ColorView, tex.DepthStencilView, tex.ResolveView,
		fg.width, fg.height,
	)
	return tex, target, nil
}

// resultViewMap lets processGroupEffects hand its own in-progress node-id
// -> result-view map directly to drawtree.Plan's effectResults parameter
// (node id -> struct{}) without keeping two parallel collections in sync.
type resultViewMap map[drawtree.NodeID]hal.TextureView

func (m resultViewMap) asResultSet() map[drawtree.NodeID]struct{} {
	set := make(map[drawtree.NodeID]struct{}, len(m))
	for id := range m {
		set[id] = struct{}{}
	}
	return set
}

// processGroupEffects renders every node in tree.GroupEffects to an
// offscreen target, runs its attached effect's pass chain, and returns a
// map from node id to the final composited result view: exactly what
// segment.go's renderSegments expects as resultViews. Nodes are processed
// deepest-first so that a group effect nested inside another group effect
// is already resolved (and its descendants suppressed by the planner) by
// the time the outer effect's own subtree is rendered.
//
// When a subtree contains a backdrop effect (tree.HasBackdropDescendant),
// the isolation semantics a group effect implies mean that backdrop must
// sample "the rest of the scene" rather than the subtree's own mostly-
// empty canvas: a second offscreen pass renders the entire tree minus
// this subtree, and ctx.behindView is pointed at it for the duration of
// the subtree's own render.
//
// The returned pool textures must be recycled once every consumer
// (nested effect composites and the final main-frame composite) has run;
// the caller does this once per frame, after the whole frame has been
// encoded.
func processGroupEffects(encoder hal.CommandEncoder, fg *frameGPU, tree *drawtree.Tree, backdropFn backdropHandler, ctx *backdropContext) (map[drawtree.NodeID]hal.TextureView, []*pool.Texture, error) {
	if len(tree.GroupEffects) == 0 {
		return nil, nil, nil
	}

	ids := make([]drawtree.NodeID, 0, len(tree.GroupEffects))
	for id := range tree.GroupEffects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := tree.Depth(ids[i]), tree.Depth(ids[j])
		if di != dj {
			return di > dj // deepest first
		}
		return ids[i] > ids[j]
	})

	resultViews := make(resultViewMap, len(ids))
	var recycle []*pool.Texture
	scratch := drawtree.NewTraversalScratch()
	behindScratch := drawtree.NewTraversalScratch()

	for _, id := range ids {
		inst := tree.GroupEffects[id]

		if tree.HasBackdropDescendant(id) {
			behindTex, behindTarget, err := fg.acquireTarget()
			if err != nil {
				return nil, recycle, fmt.Errorf("acquire behind target for node %d: %w", id, err)
			}
			recycle = append(recycle, behindTex)

			drawtree.Plan(tree, resultViews.asResultSet(), drawtree.NoNode, id, behindScratch)
			behindCtl := fg.newSegmentController()
			prevBehind := ctx.behindView
			ctx.behindView = nil // the behind pass's own backdrops still sample the live frame
			err = behindCtl.renderSegments(encoder, behindTarget, tree, behindScratch.Events(), resultViews, backdropFn, gputypes.Color{})
			if err != nil {
				ctx.behindView = prevBehind
				return nil, recycle, fmt.Errorf("render behind target for node %d: %w", id, err)
			}
			ctx.behindView = behindTex.SampledView()
			defer func(prev hal.TextureView) { ctx.behindView = prev }(prevBehind)
		}

		subtreeTex, subtreeTarget, err := fg.acquireTarget()
		if err != nil {
			return nil, recycle, fmt.Errorf("acquire group effect subtree target for node %d: %w", id, err)
		}
		recycle = append(recycle, subtreeTex)

		drawtree.Plan(tree, resultViews.asResultSet(), id, drawtree.NoNode, scratch)

		sub := fg.newSegmentController()
		if err := sub.renderSegments(encoder, subtreeTarget, tree, scratch.Events(), resultViews, backdropFn, gputypes.Color{}); err != nil {
			return nil, recycle, fmt.Errorf("render group effect subtree for node %d: %w", id, err)
		}

		resultView, used, err := fg.runner.run(encoder, fg.width, fg.height, inst, subtreeTex.SampledView(), fg.retire)
		if err != nil {
			return nil, recycle, fmt.Errorf("run group effect %d for node %d: %w", inst.EffectID, id, err)
		}
		recycle = append(recycle, used...)

		resultViews[id] = resultView
	}

	return resultViews, recycle, nil
}
