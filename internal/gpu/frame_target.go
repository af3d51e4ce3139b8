//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// sampleCount is the MSAA sample count every render pipeline in this
// package is compiled against and every FrameTarget allocates its color
// and depth/stencil attachments with. Pipelines and attachments must
// agree on it, so it is a package constant rather than a per-target
// knob.
const sampleCount = 4

// SampleCount returns the fixed MSAA sample count shared by this
// package's pipelines and frame targets.
func SampleCount() int { return sampleCount }

// frameAttachments is a FrameTarget's backing texture triple: an MSAA
// color attachment, a matching depth/stencil attachment, and a
// single-sample resolve target (CopySrc so readback and backdrop
// snapshots can copy out of it).
type frameAttachments struct {
	colorTex     hal.Texture
	colorView    hal.TextureView
	stencilTex   hal.Texture
	stencilView  hal.TextureView
	resolveTex   hal.Texture
	resolveView  hal.TextureView
	width, height uint32
}

// ensure (re)creates the attachment triple when the requested size
// differs from the current one; a no-op when dimensions match and the
// textures exist. label distinguishes GPU debug labels between owners
// (the main frame target vs. effect offscreen targets).
func (fa *frameAttachments) ensure(device hal.Device, w, h uint32, label string) error {
	if fa.width == w && fa.height == h && fa.colorTex != nil {
		return nil
	}
	fa.destroy(device)

	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}

	colorTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label + "_msaa_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   sampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create MSAA color texture: %w", err)
	}
	fa.colorTex = colorTex

	colorView, err := device.CreateTextureView(colorTex, &hal.TextureViewDescriptor{
		Label: label + "_msaa_color_view",
	})
	if err != nil {
		fa.destroy(device)
		return fmt.Errorf("create MSAA color view: %w", err)
	}
	fa.colorView = colorView

	stencilTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label + "_depth_stencil",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   sampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		fa.destroy(device)
		return fmt.Errorf("create depth/stencil texture: %w", err)
	}
	fa.stencilTex = stencilTex

	stencilView, err := device.CreateTextureView(stencilTex, &hal.TextureViewDescriptor{
		Label: label + "_depth_stencil_view",
	})
	if err != nil {
		fa.destroy(device)
		return fmt.Errorf("create depth/stencil view: %w", err)
	}
	fa.stencilView = stencilView

	resolveTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label + "_resolve",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		fa.destroy(device)
		return fmt.Errorf("create resolve texture: %w", err)
	}
	fa.resolveTex = resolveTex

	resolveView, err := device.CreateTextureView(resolveTex, &hal.TextureViewDescriptor{
		Label: label + "_resolve_view",
	})
	if err != nil {
		fa.destroy(device)
		return fmt.Errorf("create resolve view: %w", err)
	}
	fa.resolveView = resolveView

	fa.width = w
	fa.height = h
	return nil
}

// destroy releases the attachment textures and views and resets the
// recorded size.
func (fa *frameAttachments) destroy(device hal.Device) {
	if fa.resolveView != nil {
		device.DestroyTextureView(fa.resolveView)
		fa.resolveView = nil
	}
	if fa.resolveTex != nil {
		device.DestroyTexture(fa.resolveTex)
		fa.resolveTex = nil
	}
	if fa.stencilView != nil {
		device.DestroyTextureView(fa.stencilView)
		fa.stencilView = nil
	}
	if fa.stencilTex != nil {
		device.DestroyTexture(fa.stencilTex)
		fa.stencilTex = nil
	}
	if fa.colorView != nil {
		device.DestroyTextureView(fa.colorView)
		fa.colorView = nil
	}
	if fa.colorTex != nil {
		device.DestroyTexture(fa.colorTex)
		fa.colorTex = nil
	}
	fa.width = 0
	fa.height = 0
}

// FrameTarget is an MSAA color + depth/stencil + resolve texture set the
// render package draws segments into: the main frame target, group-effect
// subtree targets, and backdrop "behind" targets all go through one of
// these so they share the same pass-descriptor and snapshot code path.
type FrameTarget struct {
	device hal.Device
	set    frameAttachments
	owned  bool
}

// NewFrameTarget creates an unallocated frame target. Call EnsureSize
// before use.
func NewFrameTarget(device hal.Device) *FrameTarget {
	return &FrameTarget{device: device, owned: true}
}

// WrapFrameTarget builds a FrameTarget over textures a pool.TexturePool
// already allocated, so a group-effect subtree or a backdrop "behind"
// pass can go through the same PassDescriptor/Snapshot code path the
// main frame target uses without allocating a second set of textures.
// The wrapped attachments are not owned: Destroy is a no-op, since the
// pool recycles or releases them on its own schedule instead.
func WrapFrameTarget(device hal.Device, color, depthStencil, resolve hal.Texture, colorView, depthStencilView, resolveView hal.TextureView, w, h uint32) *FrameTarget {
	return &FrameTarget{
		device: device,
		set: frameAttachments{
			colorTex: color, colorView: colorView,
			stencilTex: depthStencil, stencilView: depthStencilView,
			resolveTex: resolve, resolveView: resolveView,
			width: w, height: h,
		},
	}
}

// EnsureSize (re)allocates the underlying textures if w/h differ from the
// current size, a no-op otherwise.
func (ft *FrameTarget) EnsureSize(w, h uint32, label string) error {
	return ft.set.ensure(ft.device, w, h, label)
}

// PassDescriptor returns a render pass descriptor over this target's MSAA
// attachments. loadOp governs both the color clear and the stencil
// load: Clear starts a fresh segment, Load continues one (stencil nesting
// state and any already-drawn color content must survive a segment break
// for a mid-frame backdrop snapshot). StoreOp is always Store so a
// snapshot copy or the final resolve can read the result back.
func (ft *FrameTarget) PassDescriptor(label string, clear gputypes.Color, loadOp gputypes.LoadOp) *hal.RenderPassDescriptor {
	if ft.set.colorView == nil {
		return nil
	}
	return &hal.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:          ft.set.colorView,
				ResolveTarget: ft.set.resolveView,
				LoadOp:        loadOp,
				StoreOp:       gputypes.StoreOpStore,
				ClearValue:    clear,
			},
		},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              ft.set.stencilView,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1.0,
			StencilLoadOp:     loadOp,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: 0,
		},
	}
}

// ResolveTexture returns the single-sample resolve texture, the surface
// that holds the frame's actual color output and the one a backdrop
// snapshot or final readback copies from.
func (ft *FrameTarget) ResolveTexture() hal.Texture { return ft.set.resolveTex }

// ResolveView returns a texture view over ResolveTexture, suitable for
// sampling the frame-so-far as a backdrop input.
func (ft *FrameTarget) ResolveView() hal.TextureView { return ft.set.resolveView }

// Size returns the target's current dimensions, (0, 0) before the first
// EnsureSize call.
func (ft *FrameTarget) Size() (uint32, uint32) { return ft.set.width, ft.set.height }

// Destroy releases every texture and view the target owns. A no-op for a
// target built with WrapFrameTarget, whose attachments belong to a
// pool.TexturePool instead.
func (ft *FrameTarget) Destroy() {
	if !ft.owned {
		return
	}
	ft.set.destroy(ft.device)
}

// Snapshot copies the resolve texture's current contents into a freshly
// allocated sampled texture, for a backdrop effect to read from mid-frame.
// A texture cannot be both a render target and a sampled binding in the
// same pass, so a backdrop segment break needs its own copy of
// whatever has been painted so far rather than sampling ResolveTexture
// directly. The caller owns the returned texture/view and must destroy
// them once the backdrop pass has consumed them.
func (ft *FrameTarget) Snapshot(encoder hal.CommandEncoder, label string) (hal.Texture, hal.TextureView, error) {
	w, h := ft.Size()
	if w == 0 || h == 0 {
		return nil, nil, fmt.Errorf("frame target %s: snapshot before EnsureSize", label)
	}

	snap, err := ft.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create snapshot texture %s: %w", label, err)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{
		{
			Texture: ft.set.resolveTex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		},
		{
			Texture: snap,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopyDst,
				NewUsage: gputypes.TextureUsageCopyDst,
			},
		},
	})
	encoder.CopyTextureToTexture(ft.set.resolveTex, snap, []hal.TextureCopy{
		{
			SrcBase: hal.ImageCopyTexture{Texture: ft.set.resolveTex},
			DstBase: hal.ImageCopyTexture{Texture: snap},
			Size:    hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		},
	})
	encoder.TransitionTextures([]hal.TextureBarrier{
		{
			Texture: snap,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopyDst,
				NewUsage: gputypes.TextureUsageTextureBinding,
			},
		},
		{
			Texture: ft.set.resolveTex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		},
	})

	view, err := ft.device.CreateTextureView(snap, &hal.TextureViewDescriptor{Label: label + "_view"})
	if err != nil {
		ft.device.DestroyTexture(snap)
		return nil, nil, fmt.Errorf("create snapshot view %s: %w", label, err)
	}
	return snap, view, nil
}
