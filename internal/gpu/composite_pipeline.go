//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CompositePipeline draws the fullscreen-triangle passthrough shared by
// every group-effect and backdrop composite: it samples a finished effect
// pass's output and writes it into the main target, gated by a stencil
// Equal test against a dynamic per-draw reference so the composite
// respects whatever clip is already active without disturbing it. Unlike
// ClipPipelines, it never mutates the stencil buffer.
type CompositePipeline struct {
	device hal.Device

	shader        hal.ShaderModule
	textureLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout
	sampler       hal.Sampler
	pipeline      hal.RenderPipeline
}

// NewCompositePipeline compiles composite.wgsl and builds the stencil-
// gated passthrough pipeline. It shares composite.wgsl with
// CompileCompositeShader's identity pass, used as-is since the passthrough
// copy is exactly what a composite draw needs: the pipeline around it adds
// the stencil test plain shader compilation does not need.
func NewCompositePipeline(device hal.Device) (*CompositePipeline, error) {
	cp := &CompositePipeline{device: device}

	shader, err := CompileCompositeShader(device)
	if err != nil {
		return nil, err
	}
	cp.shader = shader

	cp.textureLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "composite_texture_layout",
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
		return nil, fmt.Errorf("create composite texture layout: %w", err)
	}

	cp.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "composite_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{cp.textureLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("create composite pipeline layout: %w", err)
	}

	cp.sampler, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "composite_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("create composite sampler: %w", err)
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	cp.pipeline, err = device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "composite_passthrough",
		Layout: cp.pipeLayout,
		Vertex: hal.VertexState{Module: shader, EntryPoint: "vs_main"},
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
		return nil, fmt.Errorf("create composite_passthrough: %w", err)
	}

	return cp, nil
}

// Pipeline returns the compiled composite pipeline.
func (cp *CompositePipeline) Pipeline() hal.RenderPipeline { return cp.pipeline }

// InputLayout returns the group(0) texture+sampler bind group layout,
// also shared by the offscreen effect-pass pipelines CompileEffectPipeline
// builds: both read a texture through the same @group(0) declaration
// effect.Registry's vertexPreamble emits.
func (cp *CompositePipeline) InputLayout() hal.BindGroupLayout { return cp.textureLayout }

// BindGroup creates a bind group sampling view through this pipeline's
// texture layout and sampler. Callers destroy the bind group once the
// composite draw that used it is done with it.
func (cp *CompositePipeline) BindGroup(label string, view hal.TextureView) (hal.BindGroup, error) {
	return cp.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  label,
		Layout: cp.textureLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: cp.sampler.NativeHandle()}},
		},
	})
}

// Destroy releases every GPU resource the pipeline owns.
func (cp *CompositePipeline) Destroy() {
	if cp == nil || cp.device == nil {
		return
	}
	if cp.pipeline != nil {
		cp.device.DestroyRenderPipeline(cp.pipeline)
	}
	if cp.sampler != nil {
		cp.device.DestroySampler(cp.sampler)
	}
	if cp.pipeLayout != nil {
		cp.device.DestroyPipelineLayout(cp.pipeLayout)
	}
	if cp.textureLayout != nil {
		cp.device.DestroyBindGroupLayout(cp.textureLayout)
	}
	if cp.shader != nil {
		cp.device.DestroyShaderModule(cp.shader)
	}
}
