//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CreateEffectParamsLayout builds the @group(1) user-parameter uniform
// bind group layout shared by every compiled effect pass that declares
// one (effect.LoadedEffect.HasParamsLayout). Built once per renderer and
// reused across every effect, since effect.Registry's paramsPreamble
// declares an identical EffectParams struct for all of them.
func CreateEffectParamsLayout(device hal.Device) (hal.BindGroupLayout, error) {
	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "effect_params_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create effect params layout: %w", err)
	}
	return layout, nil
}

// CompileEffectPipeline compiles one loaded effect pass's full WGSL
// source (preamble plus the user's effect_main fragment, already
// assembled by effect.Registry.Load) into a render pipeline over a
// plain, single-sample color target with no stencil or depth-stencil
// attachment: effect ping-pong passes run entirely offscreen, outside the
// main stencil-gated draw sequence group effects and backdrops are
// composited back into. inputLayout is the shared group(0) input-texture
// layout (CompositePipeline.InputLayout); paramsLayout is group(1),
// included only when the pass uses it.
func CompileEffectPipeline(
	device hal.Device, inputLayout, paramsLayout hal.BindGroupLayout,
	source, label string, colorFormat gputypes.TextureFormat,
) (hal.RenderPipeline, hal.ShaderModule, error) {
	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label + "_shader",
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("compile effect pass %s: %w", label, err)
	}

	layouts := []hal.BindGroupLayout{inputLayout}
	if paramsLayout != nil {
		layouts = append(layouts, paramsLayout)
	}
	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: label + "_pipe_layout", BindGroupLayouts: layouts,
	})
	if err != nil {
		device.DestroyShaderModule(shader)
		return nil, nil, fmt.Errorf("create effect pass %s pipeline layout: %w", label, err)
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: pipeLayout,
		Vertex: hal.VertexState{Module: shader, EntryPoint: "vs_main"},
		Fragment: &hal.FragmentState{
			Module: shader, EntryPoint: "effect_main",
			Targets: []gputypes.ColorTargetState{
				{Format: colorFormat, Blend: &premulBlend, WriteMask: gputypes.ColorWriteMaskAll},
			},
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Primitive:   gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList, CullMode: gputypes.CullModeNone},
	})
	if err != nil {
		device.DestroyShaderModule(shader)
		return nil, nil, fmt.Errorf("create effect pass %s: %w", label, err)
	}
	return pipeline, shader, nil
}
