//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SwizzleParams mirrors swizzle.wgsl's SwizzleParams uniform, field for
// field in declaration order. SrcStrideWords is the padded source row's
// width in 32-bit words (padded bytes per row / 4), since a texture's
// copy-to-buffer row pitch rarely equals width*4 once driver row-pitch
// alignment pads it out.
type SwizzleParams struct {
	Width          uint32
	Height         uint32
	SrcStrideWords uint32
	_pad           uint32
}

// SwizzlePipeline runs a padded BGRA8 copy of a rendered frame through a
// single compute dispatch that writes tightly-packed 0xAARRGGBB words,
// the GPU-side half of RenderToARGB32's one-shot swizzle.
type SwizzlePipeline struct {
	device hal.Device

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// NewSwizzlePipeline compiles swizzle.wgsl and builds its compute
// pipeline.
func NewSwizzlePipeline(device hal.Device) (*SwizzlePipeline, error) {
	sp := &SwizzlePipeline{device: device}

	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "swizzle_shader",
		Source: hal.ShaderSource{WGSL: swizzleShaderSource},
	})
	if err != nil {
		return nil, fmt.Errorf("compile swizzle shader: %w", err)
	}
	sp.shader = shader

	sp.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "swizzle_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create swizzle bind layout: %w", err)
	}

	sp.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "swizzle_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{sp.bindLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("create swizzle pipeline layout: %w", err)
	}

	sp.pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "swizzle_pipeline", Layout: sp.pipeLayout,
		Compute: hal.ComputeState{Module: shader, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("create swizzle pipeline: %w", err)
	}

	return sp, nil
}

// Dispatch records one compute pass into encoder converting src (a
// padded, row-strided BGRA8 storage buffer of srcSize bytes) into dst (a
// tightly-packed ARGB32 storage buffer of dstSize bytes), binding params
// (already written with the matching SwizzleParams, paramsSize bytes) at
// group(0). The workgroup grid covers width x height at swizzle.wgsl's
// 16x16 @workgroup_size. The returned bind group must stay alive until
// the recorded commands have executed; the caller destroys it after its
// submit fence signals.
func (sp *SwizzlePipeline) Dispatch(encoder hal.CommandEncoder, width, height uint32, params, src, dst hal.Buffer, paramsSize, srcSize, dstSize uint64) (hal.BindGroup, error) {
	bg, err := sp.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "swizzle_bind_group", Layout: sp.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: params.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: src.NativeHandle(), Offset: 0, Size: srcSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: dst.NativeHandle(), Offset: 0, Size: dstSize}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create swizzle bind group: %w", err)
	}

	const workgroupSize = 16
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "swizzle_pass"})
	pass.SetPipeline(sp.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch((width+workgroupSize-1)/workgroupSize, (height+workgroupSize-1)/workgroupSize, 1)
	pass.End()
	return bg, nil
}

// Destroy releases every GPU resource the pipeline owns.
func (sp *SwizzlePipeline) Destroy() {
	if sp == nil || sp.device == nil {
		return
	}
	if sp.pipeline != nil {
		sp.device.DestroyComputePipeline(sp.pipeline)
	}
	if sp.pipeLayout != nil {
		sp.device.DestroyPipelineLayout(sp.pipeLayout)
	}
	if sp.bindLayout != nil {
		sp.device.DestroyBindGroupLayout(sp.bindLayout)
	}
	if sp.shader != nil {
		sp.device.DestroyShaderModule(sp.shader)
	}
}
