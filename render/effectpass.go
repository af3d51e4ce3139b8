package render

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stagegraph"
	"github.com/gogpu/stagegraph/effect"
	"github.com/gogpu/stagegraph/internal/gpu"
	"github.com/gogpu/stagegraph/pool"
)

// effectPassKey identifies one compiled render pipeline within an
// effectRunner's cache: a loaded effect's id plus the index of the pass
// within its chain.
type effectPassKey struct {
	id    effect.ID
	index int
}

type compiledEffectPass struct {
	pipeline hal.RenderPipeline
	shader   hal.ShaderModule
	usesParams bool
}

// effectRunner compiles (and caches) the render pipelines behind every
// loaded effect's pass chain and drives the offscreen ping-pong sequence
// both group effects (render/groupeffect.go) and backdrop effects
// (render/backdrop.go) need: sample the prior pass's output, run the next
// fragment stage, repeat until the chain is exhausted.
//
// Pipelines are cached for the renderer's lifetime; an effect is normally
// loaded once and reused across many frames, so recompiling its passes
// every frame would waste time naga already spent validating them once in
// effect.Registry.Load.
type effectRunner struct {
	device hal.Device
	queue  hal.Queue

	registry *effect.Registry
	pool     *pool.TexturePool

	inputLayout  hal.BindGroupLayout // group(0): shared with CompositePipeline
	paramsLayout hal.BindGroupLayout // group(1)
	sampler      hal.Sampler

	colorFormat gputypes.TextureFormat

	pipelines map[effectPassKey]*compiledEffectPass
}

// newEffectRunner creates a runner sharing CompositePipeline's group(0)
// input-texture layout, so an effect pass and a plain composite draw can
// read the same kind of bind group.
func newEffectRunner(device hal.Device, queue hal.Queue, registry *effect.Registry, texPool *pool.TexturePool, inputLayout hal.BindGroupLayout, colorFormat gputypes.TextureFormat) (*effectRunner, error) {
	paramsLayout, err := gpu.CreateEffectParamsLayout(device)
	if err != nil {
		return nil, fmt.Errorf("create effect params layout: %w", err)
	}
	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "effect_pass_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("create effect pass sampler: %w", err)
	}
	return &effectRunner{
		device: device, queue: queue,
		registry: registry, pool: texPool,
		inputLayout: inputLayout, paramsLayout: paramsLayout, sampler: sampler,
		colorFormat: colorFormat,
		pipelines:   make(map[effectPassKey]*compiledEffectPass),
	}, nil
}

func (r *effectRunner) ensurePass(id effect.ID, index int, pass effect.Pass) (*compiledEffectPass, error) {
	key := effectPassKey{id: id, index: index}
	if cp, ok := r.pipelines[key]; ok {
		return cp, nil
	}
	var paramsLayout hal.BindGroupLayout
	if pass.UsesParams {
		paramsLayout = r.paramsLayout
	}
	label := fmt.Sprintf("effect_%d_pass_%d", id, index)
	pipeline, shader, err := gpu.CompileEffectPipeline(r.device, r.inputLayout, paramsLayout, pass.Source, label, r.colorFormat)
	if err != nil {
		return nil, err
	}
	cp := &compiledEffectPass{pipeline: pipeline, shader: shader, usesParams: pass.UsesParams}
	r.pipelines[key] = cp
	return cp, nil
}

func (r *effectRunner) inputBindGroup(view hal.TextureView) (hal.BindGroup, error) {
	return r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "effect_pass_input",
		Layout: r.inputLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: r.sampler.NativeHandle()}},
		},
	})
}

// ensureParams lazily (re)builds an effect instance's uniform buffer and
// bind group from its current parameter bytes, only when Dirty.
func (r *effectRunner) ensureParams(inst *effect.Instance) (hal.BindGroup, error) {
	if !inst.Dirty() {
		if bg, ok := inst.BindGroup().(hal.BindGroup); ok {
			return bg, nil
		}
	}
	if oldBG, ok := inst.BindGroup().(hal.BindGroup); ok {
		r.device.DestroyBindGroup(oldBG)
	}
	inst.Release()
	size := uint64(len(inst.Params))
	if size == 0 {
		size = 16
	}
	buf, err := gpu.CreateBufferSimple(r.device, size, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst, "effect_params")
	if err != nil {
		return nil, fmt.Errorf("create effect params buffer: %w", err)
	}
	if len(inst.Params) > 0 {
		if err := r.queue.WriteBuffer(buf.Raw(), 0, inst.Params); err != nil {
			buf.Destroy()
			return nil, fmt.Errorf("upload effect params: %w", err)
		}
	}
	bg, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "effect_params",
		Layout: r.paramsLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: buf.Raw().NativeHandle(), Offset: 0, Size: size}},
		},
	})
	if err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("create effect params bind group: %w", err)
	}
	inst.SetBuffer(buf, bg)
	return bg, nil
}

// run drives inst's effect through its full pass chain, sampling from
// input (a texture view already holding the frame content the effect
// reads from: a group's rendered subtree, or a backdrop's frame
// snapshot). It returns the final pass's result view and every pooled
// texture acquired along the way, which the caller recycles once the
// result view has been consumed by a composite draw.
func (r *effectRunner) run(encoder hal.CommandEncoder, width, height uint32, inst *effect.Instance, input hal.TextureView, retire func(hal.BindGroup)) (hal.TextureView, []*pool.Texture, error) {
	loaded, ok := r.registry.Get(inst.EffectID)
	if !ok {
		stagegraph.Logger().Warn("stagegraph: effect instance references an unloaded effect",
			"effect", uint64(inst.EffectID))
	}
	if !ok || len(loaded.Passes) == 0 {
		return input, nil, nil
	}

	var used []*pool.Texture
	current := input
	for i, p := range loaded.Passes {
		cp, err := r.ensurePass(inst.EffectID, i, p)
		if err != nil {
			return nil, used, fmt.Errorf("compile effect %d pass %d: %w", inst.EffectID, i, err)
		}

		target, err := r.pool.Acquire(int(width), int(height), 1, r.colorFormat)
		if err != nil {
			return nil, used, fmt.Errorf("acquire effect pass target: %w", err)
		}
		used = append(used, target)

		inputGroup, err := r.inputBindGroup(current)
		if err != nil {
			return nil, used, fmt.Errorf("create effect pass %d input group: %w", i, err)
		}

		rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: fmt.Sprintf("effect_%d_pass_%d", inst.EffectID, i),
			ColorAttachments: []hal.RenderPassColorAttachment{
				{
					View:       target.ColorView,
					LoadOp:     gputypes.LoadOpClear,
					StoreOp:    gputypes.StoreOpStore,
					ClearValue: gputypes.Color{},
				},
			},
		})
		rp.SetPipeline(cp.pipeline)
		rp.SetBindGroup(0, inputGroup, nil)
		if cp.usesParams {
			paramsGroup, err := r.ensureParams(inst)
			if err != nil {
				rp.End()
				r.device.DestroyBindGroup(inputGroup)
				return nil, used, err
			}
			rp.SetBindGroup(1, paramsGroup, nil)
		}
		rp.Draw(3, 1, 0, 0)
		rp.End()
		// The recorded pass samples inputGroup at submit time; destruction
		// waits for the frame's fence.
		retire(inputGroup)

		current = target.ColorView
	}

	return current, used, nil
}

// Destroy releases every cached pipeline and shader module, plus the
// runner's own bind group layout and sampler.
func (r *effectRunner) Destroy() {
	for _, cp := range r.pipelines {
		if cp.pipeline != nil {
			r.device.DestroyRenderPipeline(cp.pipeline)
		}
		if cp.shader != nil {
			r.device.DestroyShaderModule(cp.shader)
		}
	}
	r.pipelines = nil
	if r.sampler != nil {
		r.device.DestroySampler(r.sampler)
	}
	if r.paramsLayout != nil {
		r.device.DestroyBindGroupLayout(r.paramsLayout)
	}
}
