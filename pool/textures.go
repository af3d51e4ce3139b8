// Package pool implements the bounded cache of offscreen render targets
// group effects, backdrop effects, and ping-pong composite passes borrow
// for the duration of a frame and return afterward.
package pool

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// maxPoolSize bounds how many textures the pool holds onto between
// frames. Capped rather than unbounded so a scene whose effect subtree
// count spikes for one frame doesn't pin that memory forever.
const maxPoolSize = 8

// Texture is a pooled offscreen render target: a color attachment, a
// matching depth/stencil attachment, and — when sampleCount > 1 — a
// single-sample resolve target effect passes read from. When
// sampleCount == 1, Color doubles as the sampled source and Resolve is
// nil.
type Texture struct {
	Color            hal.Texture
	ColorView        hal.TextureView
	DepthStencil     hal.Texture
	DepthStencilView hal.TextureView
	Resolve          hal.Texture     // nil when SampleCount == 1
	ResolveView      hal.TextureView // nil when SampleCount == 1

	Width       int
	Height      int
	SampleCount int
	Format      gputypes.TextureFormat
}

// SampledView returns the view effect and composite passes should read
// from: the resolve view when multisampled, the color view otherwise.
func (t *Texture) SampledView() hal.TextureView {
	if t.Resolve != nil {
		return t.ResolveView
	}
	return t.ColorView
}

func (t *Texture) matches(width, height, sampleCount int, format gputypes.TextureFormat) bool {
	return t.Width == width && t.Height == height && t.SampleCount == sampleCount && t.Format == format
}

func (t *Texture) release(device hal.Device) {
	for _, v := range []hal.TextureView{t.ResolveView, t.DepthStencilView, t.ColorView} {
		if v != nil {
			device.DestroyTextureView(v)
		}
	}
	for _, tex := range []hal.Texture{t.Resolve, t.DepthStencil, t.Color} {
		if tex != nil {
			device.DestroyTexture(tex)
		}
	}
}

// TexturePool recycles Texture sets across frames. At the end of each
// frame, once the GPU has finished it, every texture handed out during
// that frame is returned via Recycle; Acquire
// reuses a matching one if available, creating a fresh set only on a
// size, format, or sample-count miss.
type TexturePool struct {
	device    hal.Device
	available []*Texture
}

// NewTexturePool creates an empty pool bound to device.
func NewTexturePool(device hal.Device) *TexturePool {
	return &TexturePool{device: device}
}

// Acquire returns a texture set matching width, height, sampleCount, and
// colorFormat, reusing one from the pool if possible, otherwise creating
// a new one.
func (p *TexturePool) Acquire(width, height, sampleCount int, colorFormat gputypes.TextureFormat) (*Texture, error) {
	if sampleCount <= 0 {
		sampleCount = 1
	}
	for i, t := range p.available {
		if t.matches(width, height, sampleCount, colorFormat) {
			p.available[i] = p.available[len(p.available)-1]
			p.available = p.available[:len(p.available)-1]
			return t, nil
		}
	}
	return p.create(width, height, sampleCount, colorFormat)
}

func (p *TexturePool) create(width, height, sampleCount int, colorFormat gputypes.TextureFormat) (t *Texture, err error) {
	size := hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}
	t = &Texture{Width: width, Height: height, SampleCount: sampleCount, Format: colorFormat}
	defer func() {
		if err != nil {
			t.release(p.device)
		}
	}()

	colorUsage := gputypes.TextureUsageRenderAttachment
	if sampleCount == 1 {
		colorUsage |= gputypes.TextureUsageTextureBinding
	}
	t.Color, err = p.device.CreateTexture(&hal.TextureDescriptor{
		Label: "stagegraph_pool_color", Size: size, MipLevelCount: 1,
		SampleCount: uint32(sampleCount), Dimension: gputypes.TextureDimension2D,
		Format: colorFormat, Usage: colorUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("create pool color texture: %w", err)
	}
	t.ColorView, err = p.device.CreateTextureView(t.Color, &hal.TextureViewDescriptor{Label: "stagegraph_pool_color_view"})
	if err != nil {
		return nil, fmt.Errorf("create pool color view: %w", err)
	}

	t.DepthStencil, err = p.device.CreateTexture(&hal.TextureDescriptor{
		Label: "stagegraph_pool_depth_stencil", Size: size, MipLevelCount: 1,
		SampleCount: uint32(sampleCount), Dimension: gputypes.TextureDimension2D,
		Format: gputypes.TextureFormatDepth24PlusStencil8, Usage: gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("create pool depth/stencil texture: %w", err)
	}
	t.DepthStencilView, err = p.device.CreateTextureView(t.DepthStencil, &hal.TextureViewDescriptor{Label: "stagegraph_pool_depth_stencil_view"})
	if err != nil {
		return nil, fmt.Errorf("create pool depth/stencil view: %w", err)
	}

	if sampleCount > 1 {
		t.Resolve, err = p.device.CreateTexture(&hal.TextureDescriptor{
			Label: "stagegraph_pool_resolve", Size: size, MipLevelCount: 1,
			SampleCount: 1, Dimension: gputypes.TextureDimension2D,
			Format: colorFormat, Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding,
		})
		if err != nil {
			return nil, fmt.Errorf("create pool resolve texture: %w", err)
		}
		t.ResolveView, err = p.device.CreateTextureView(t.Resolve, &hal.TextureViewDescriptor{Label: "stagegraph_pool_resolve_view"})
		if err != nil {
			return nil, fmt.Errorf("create pool resolve view: %w", err)
		}
	}

	return t, nil
}

// Recycle returns a batch of textures for reuse in future frames,
// enforcing the pool's maximum size; textures that don't fit are
// released immediately rather than held past the cap.
func (p *TexturePool) Recycle(textures []*Texture) {
	p.available = append(p.available, textures...)
	p.enforceMaxSize()
}

// Trim drops every pooled texture whose dimensions, sample count, or
// format no longer match the given active configuration, then enforces
// the maximum pool size. Call this on resize or when MSAA settings
// change.
func (p *TexturePool) Trim(width, height, sampleCount int, format gputypes.TextureFormat) {
	kept := p.available[:0]
	for _, t := range p.available {
		if t.matches(width, height, sampleCount, format) {
			kept = append(kept, t)
		} else {
			t.release(p.device)
		}
	}
	p.available = kept
	p.enforceMaxSize()
}

func (p *TexturePool) enforceMaxSize() {
	for len(p.available) > maxPoolSize {
		last := len(p.available) - 1
		p.available[last].release(p.device)
		p.available = p.available[:last]
	}
}

// Len returns the number of textures currently available for reuse.
func (p *TexturePool) Len() int { return len(p.available) }

// Close releases every pooled texture.
func (p *TexturePool) Close() {
	for _, t := range p.available {
		t.release(p.device)
	}
	p.available = nil
}
