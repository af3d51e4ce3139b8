//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SceneVertexStride is the byte stride of one tessellate.Vertex: X, Y, U,
// V, Coverage, all float32. Exported so render.aggregator can build a
// matching vertex buffer without duplicating the layout constant.
const SceneVertexStride = 5 * 4

// SceneInstanceStride is the byte stride of one leaf draw's per-instance
// data: a 4x4 transform (stagegraph.Transform.Rows), a color vec4, and a
// single metadata float carrying the texture-layer flags baked into
// scene.wgsl's fragment stage.
const SceneInstanceStride = (16 + 4 + 1) * 4

const (
	sceneVertexStride   = SceneVertexStride
	sceneInstanceStride = SceneInstanceStride
)

// ScenePipeline draws instanced, textured, stencil-gated leaf geometry: the
// pipeline the segmented renderer issues one (possibly batched) draw call
// per run of sibling leaves through. It shares the clip pipelines'
// depth-gated stencil test (Equal against a dynamic per-node reference) so
// a leaf only paints where every active ancestor clip already passed.
type ScenePipeline struct {
	device hal.Device

	shader        hal.ShaderModule
	uniformLayout hal.BindGroupLayout
	textureLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout
	sampler       hal.Sampler

	pipeline hal.RenderPipeline

	// placeholderView is bound to both the background and foreground
	// texture layers for nodes with no texture of their own. It is a 1x1
	// transparent texture, matching texture.Manager's own fallback
	// convention.
	placeholderTex  hal.Texture
	placeholderView hal.TextureView
}

// NewScenePipeline compiles scene.wgsl and builds the uniform, texture
// bind group layouts, pipeline layout, sampler, and render pipeline.
// uniformLayout's binding 0 carries the viewport uniform shared with the
// clip push/pop pipelines' coordinate space, so all of a frame's draws
// agree on pixel-to-NDC conversion.
func NewScenePipeline(device hal.Device) (*ScenePipeline, error) {
	sp := &ScenePipeline{device: device}

	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "scene_shader",
		Source: hal.ShaderSource{WGSL: sceneShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("compile scene shader: %w", err)
	}
	sp.shader = shader

	sp.uniformLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "scene_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create scene uniform layout: %w", err)
	}

	sp.textureLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "scene_texture_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create scene texture layout: %w", err)
	}

	sp.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "scene_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{
			sp.uniformLayout, sp.textureLayout, sp.textureLayout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create scene pipeline layout: %w", err)
	}

	sp.sampler, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "scene_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("create scene sampler: %w", err)
	}

	if err := sp.createPlaceholderTexture(); err != nil {
		return nil, err
	}

	vertexBuffers := []gputypes.VertexBufferLayout{
		{
			ArrayStride: sceneVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},  // position
				{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},  // uv
				{Format: gputypes.VertexFormatFloat32, Offset: 16, ShaderLocation: 2},   // coverage
			},
		},
		{
			ArrayStride: sceneInstanceStride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 3},  // transform row 0
				{Format: gputypes.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 4}, // transform row 1
				{Format: gputypes.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 5}, // transform row 2
				{Format: gputypes.VertexFormatFloat32x4, Offset: 48, ShaderLocation: 6}, // transform row 3
				{Format: gputypes.VertexFormatFloat32x4, Offset: 64, ShaderLocation: 7}, // color
				{Format: gputypes.VertexFormatFloat32, Offset: 80, ShaderLocation: 8},   // metadata
			},
		},
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "scene_leaf_draw",
		Layout: sp.pipeLayout,
		Vertex: hal.VertexState{Module: shader, EntryPoint: "vs_main", Buffers: vertexBuffers},
		Fragment: &hal.FragmentState{
			Module: shader, EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{Format: gputypes.TextureFormatBGRA8Unorm, Blend: &premulBlend, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront: hal.StencilFaceState{
				Compare: gputypes.CompareFunctionEqual, FailOp: hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep, PassOp: hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare: gputypes.CompareFunctionEqual, FailOp: hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep, PassOp: hal.StencilOperationKeep,
			},
			StencilReadMask:  0xFF,
			StencilWriteMask: 0xFF,
		},
		Multisample: gputypes.MultisampleState{Count: sampleCount, Mask: 0xFFFFFFFF},
		Primitive:   gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList, CullMode: gputypes.CullModeNone},
	})
	if err != nil {
		return nil, fmt.Errorf("create scene_leaf_draw: %w", err)
	}
	sp.pipeline = pipeline

	return sp, nil
}

func (sp *ScenePipeline) createPlaceholderTexture() error {
	tex, err := sp.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "scene_placeholder",
		Size:          hal.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create scene placeholder texture: %w", err)
	}
	sp.placeholderTex = tex

	view, err := sp.device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "scene_placeholder_view"})
	if err != nil {
		sp.device.DestroyTexture(tex)
		return fmt.Errorf("create scene placeholder view: %w", err)
	}
	sp.placeholderView = view
	return nil
}

// Pipeline returns the compiled leaf-draw render pipeline.
func (sp *ScenePipeline) Pipeline() hal.RenderPipeline { return sp.pipeline }

// UniformLayout returns the group(0) viewport-uniform bind group layout.
func (sp *ScenePipeline) UniformLayout() hal.BindGroupLayout { return sp.uniformLayout }

// PipeLayout returns the three-group pipeline layout (viewport uniform,
// background texture, foreground texture) shared with ClipPipelines so
// clip push/pop draws can bind the same placeholder groups a leaf draw
// would without building a second, narrower layout.
func (sp *ScenePipeline) PipeLayout() hal.PipelineLayout { return sp.pipeLayout }

// PlaceholderTextureBindGroup creates a bind group for the placeholder
// texture, bindable at either texture-layer slot (group 1 background,
// group 2 foreground) for nodes that sample neither.
func (sp *ScenePipeline) PlaceholderTextureBindGroup(label string) (hal.BindGroup, error) {
	return sp.TextureBindGroup(label, sp.placeholderView)
}

// TextureBindGroup creates a texture-layer bind group sampling view
// through the pipeline's shared sampler, bindable at group 1 or group 2
// of any pipeline built over PipeLayout.
func (sp *ScenePipeline) TextureBindGroup(label string, view hal.TextureView) (hal.BindGroup, error) {
	return sp.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  label,
		Layout: sp.textureLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: sp.sampler.NativeHandle()}},
		},
	})
}

// Destroy releases every GPU resource the scene pipeline owns.
func (sp *ScenePipeline) Destroy() {
	if sp == nil || sp.device == nil {
		return
	}
	if sp.pipeline != nil {
		sp.device.DestroyRenderPipeline(sp.pipeline)
	}
	if sp.sampler != nil {
		sp.device.DestroySampler(sp.sampler)
	}
	if sp.placeholderView != nil {
		sp.placeholderView.Destroy()
	}
	if sp.placeholderTex != nil {
		sp.device.DestroyTexture(sp.placeholderTex)
	}
	if sp.pipeLayout != nil {
		sp.device.DestroyPipelineLayout(sp.pipeLayout)
	}
	if sp.textureLayout != nil {
		sp.device.DestroyBindGroupLayout(sp.textureLayout)
	}
	if sp.uniformLayout != nil {
		sp.device.DestroyBindGroupLayout(sp.uniformLayout)
	}
	if sp.shader != nil {
		sp.device.DestroyShaderModule(sp.shader)
	}
}
