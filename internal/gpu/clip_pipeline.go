//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ClipPipelines holds the render pipelines that implement nested stencil
// clipping. All three read the same per-vertex and per-instance buffers
// as ScenePipeline's leaf draws — a node's fill geometry and world
// transform double as its children's clip silhouette, so the segmented
// renderer never builds a second copy of a node's geometry just to clip
// with it. Tessellated geometry is already a set of non-overlapping
// triangles, so a single clamped increment/decrement per fragment is
// exact; no winding bookkeeping is needed.
//
// Clip regions nest: a shape at depth N is only "inside" if every
// ancestor clip already passed, which the pipelines encode by comparing
// the stencil buffer against a dynamic reference set per draw via
// SetStencilReference, rather than comparing against a pass-start value
// of zero.
type ClipPipelines struct {
	device hal.Device

	// popShader is the position-only shader module compiled for the two
	// colorless pipelines; the push pipeline reuses the scene shader.
	popShader hal.ShaderModule

	pushPipeline        hal.RenderPipeline
	pushStencilPipeline hal.RenderPipeline
	popPipeline         hal.RenderPipeline
}

// Push returns the stencil-increment pipeline. Draw with
// StencilReference set to the parent clip depth; pixels currently at
// that depth and inside the shape move to depth+1, and the shape's own
// fill (color, textures, coverage) is painted in the same draw.
func (cp *ClipPipelines) Push() hal.RenderPipeline { return cp.pushPipeline }

// PushStencilOnly returns the stencil-increment pipeline with color
// writes masked off, used to mark a backdrop shape's silhouette before
// the processed backdrop is composited into it.
func (cp *ClipPipelines) PushStencilOnly() hal.RenderPipeline { return cp.pushStencilPipeline }

// Pop returns the stencil-decrement pipeline. It must be drawn with the
// exact same geometry as the matching push call and StencilReference set
// to the child depth; it exactly undoes the push's per-fragment stencil
// delta. Color writes are masked off.
func (cp *ClipPipelines) Pop() hal.RenderPipeline { return cp.popPipeline }

// CreateClipPipelines builds the push, stencil-only push, and pop
// pipeline variants against scene's shader module and pipeline layout,
// so a clip draw binds the exact same buffers and bind groups a leaf
// draw does and the pass never reshapes its state around clipping.
func CreateClipPipelines(device hal.Device, scene *ScenePipeline) (*ClipPipelines, error) {
	cp := &ClipPipelines{device: device}

	popShader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "clip_shader",
		Source: hal.ShaderSource{WGSL: clipShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("compile clip shader: %w", err)
	}
	cp.popShader = popShader

	// The full scene vertex layout, for the color-writing push pipeline.
	sceneVertexBuffers := []gputypes.VertexBufferLayout{
		{
			ArrayStride: SceneVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
				{Format: gputypes.VertexFormatFloat32, Offset: 16, ShaderLocation: 2},
			},
		},
		{
			ArrayStride: SceneInstanceStride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 3},
				{Format: gputypes.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 4},
				{Format: gputypes.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 5},
				{Format: gputypes.VertexFormatFloat32x4, Offset: 48, ShaderLocation: 6},
				{Format: gputypes.VertexFormatFloat32x4, Offset: 64, ShaderLocation: 7},
				{Format: gputypes.VertexFormatFloat32, Offset: 80, ShaderLocation: 8},
			},
		},
	}

	// Position-only subset for the colorless pipelines: same buffers and
	// strides, only location 0 (position) and the transform rows are read.
	clipVertexBuffers := []gputypes.VertexBufferLayout{
		{
			ArrayStride: SceneVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			},
		},
		{
			ArrayStride: SceneInstanceStride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 3},
				{Format: gputypes.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 4},
				{Format: gputypes.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 5},
				{Format: gputypes.VertexFormatFloat32x4, Offset: 48, ShaderLocation: 6},
			},
		},
	}

	multisample := gputypes.MultisampleState{Count: sampleCount, Mask: 0xFFFFFFFF}
	primitive := gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList, CullMode: gputypes.CullModeNone}

	incrementFace := hal.StencilFaceState{
		Compare: gputypes.CompareFunctionEqual, FailOp: hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep, PassOp: hal.StencilOperationIncrementClamp,
	}
	decrementFace := hal.StencilFaceState{
		Compare: gputypes.CompareFunctionEqual, FailOp: hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep, PassOp: hal.StencilOperationDecrementClamp,
	}

	depthStencil := func(face hal.StencilFaceState) *hal.DepthStencilState {
		return &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront:      face,
			StencilBack:       face,
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		}
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	cp.pushPipeline, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "clip_push",
		Layout: scene.PipeLayout(),
		Vertex: hal.VertexState{Module: scene.shader, EntryPoint: "vs_main", Buffers: sceneVertexBuffers},
		Fragment: &hal.FragmentState{
			Module: scene.shader, EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: gputypes.TextureFormatBGRA8Unorm, Blend: &premulBlend, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: depthStencil(incrementFace),
		Multisample:  multisample,
		Primitive:    primitive,
	})
	if err != nil {
		return nil, fmt.Errorf("create clip_push: %w", err)
	}

	noColorTarget := []gputypes.ColorTargetState{
		{Format: gputypes.TextureFormatBGRA8Unorm, WriteMask: gputypes.ColorWriteMaskNone},
	}

	cp.pushStencilPipeline, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "clip_push_stencil_only",
		Layout: scene.PipeLayout(),
		Vertex: hal.VertexState{Module: popShader, EntryPoint: "vs_main", Buffers: clipVertexBuffers},
		Fragment: &hal.FragmentState{
			Module: popShader, EntryPoint: "fs_main", Targets: noColorTarget,
		},
		DepthStencil: depthStencil(incrementFace),
		Multisample:  multisample,
		Primitive:    primitive,
	})
	if err != nil {
		return nil, fmt.Errorf("create clip_push_stencil_only: %w", err)
	}

	cp.popPipeline, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "clip_pop",
		Layout: scene.PipeLayout(),
		Vertex: hal.VertexState{Module: popShader, EntryPoint: "vs_main", Buffers: clipVertexBuffers},
		Fragment: &hal.FragmentState{
			Module: popShader, EntryPoint: "fs_main", Targets: noColorTarget,
		},
		DepthStencil: depthStencil(decrementFace),
		Multisample:  multisample,
		Primitive:    primitive,
	})
	if err != nil {
		return nil, fmt.Errorf("create clip_pop: %w", err)
	}

	return cp, nil
}

// Destroy releases all pipelines and the shader module held by cp. Safe
// to call on a nil or partially built ClipPipelines.
func (cp *ClipPipelines) Destroy() {
	if cp == nil || cp.device == nil {
		return
	}
	for _, p := range []hal.RenderPipeline{
		cp.pushPipeline, cp.pushStencilPipeline, cp.popPipeline,
	} {
		if p != nil {
			cp.device.DestroyRenderPipeline(p)
		}
	}
	if cp.popShader != nil {
		cp.device.DestroyShaderModule(cp.popShader)
	}
}
