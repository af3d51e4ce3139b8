//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Texture-related errors.
var (
	// ErrTextureReleased is returned when operating on a released texture.
	ErrTextureReleased = errors.New("gpu: texture has been released")

	// ErrTextureSizeMismatch is returned when pixel data size doesn't match texture.
	ErrTextureSizeMismatch = errors.New("gpu: pixel data size does not match texture")

	// ErrNilPixelData is returned when pixel data is nil.
	ErrNilPixelData = errors.New("gpu: pixel data is nil")

	// ErrNoDevice is returned when a texture operation needs a GPU device
	// but the texture was created without one.
	ErrNoDevice = errors.New("gpu: texture has no GPU device")
)

// TextureFormat represents the pixel format of a GPU texture.
type TextureFormat uint8

const (
	// TextureFormatRGBA8 is the standard RGBA format with 8 bits per channel.
	TextureFormatRGBA8 TextureFormat = iota

	// TextureFormatBGRA8 is BGRA format, often used for surface presentation.
	TextureFormatBGRA8

	// TextureFormatR8 is single-channel 8-bit format, used for masks.
	TextureFormatR8

	// TextureFormatDepth24Stencil8 is the combined depth/stencil format
	// used by offscreen render targets that need a stencil attachment.
	TextureFormatDepth24Stencil8
)

// String returns a human-readable name for the format.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8:
		return "RGBA8"
	case TextureFormatBGRA8:
		return "BGRA8"
	case TextureFormatR8:
		return "R8"
	case TextureFormatDepth24Stencil8:
		return "Depth24Stencil8"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// BytesPerPixel returns the number of bytes per pixel for the format.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatRGBA8, TextureFormatBGRA8:
		return 4
	case TextureFormatR8:
		return 1
	case TextureFormatDepth24Stencil8:
		return 4
	default:
		return 4
	}
}

// ToWGPUFormat converts to the wgpu gputypes.TextureFormat equivalent.
func (f TextureFormat) ToWGPUFormat() gputypes.TextureFormat {
	switch f {
	case TextureFormatRGBA8:
		return gputypes.TextureFormatRGBA8Unorm
	case TextureFormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case TextureFormatR8:
		return gputypes.TextureFormatR8Unorm
	case TextureFormatDepth24Stencil8:
		return gputypes.TextureFormatDepth24PlusStencil8
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// GPUTexture wraps a sampled device texture with upload and download
// helpers. It is the storage unit texture.Manager hands out for the draw
// tree's per-node texture layers.
//
// GPUTexture is safe for concurrent read access. Write operations
// (Upload, Close) should be synchronized externally.
type GPUTexture struct {
	mu sync.RWMutex

	device hal.Device
	queue  hal.Queue

	texture hal.Texture
	view    hal.TextureView

	width       int
	height      int
	format      TextureFormat
	sampleCount int

	sizeBytes uint64

	released atomic.Bool
	label    string
}

// TextureConfig holds configuration for creating a new texture.
type TextureConfig struct {
	// Width is the texture width in pixels.
	Width int

	// Height is the texture height in pixels.
	Height int

	// Format is the pixel format.
	Format TextureFormat

	// Label is an optional debug label.
	Label string

	// Usage flags (default: CopySrc | CopyDst | TextureBinding)
	Usage gputypes.TextureUsage

	// SampleCount is the MSAA sample count. 0 is treated as 1 (no MSAA).
	SampleCount int
}

// DefaultTextureUsage is the default usage for textures created without specific flags.
const DefaultTextureUsage = gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding

// CreateTexture creates a new GPU texture with the given configuration.
// The texture contents are undefined until the first Upload.
func CreateTexture(device hal.Device, queue hal.Queue, config TextureConfig) (*GPUTexture, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if device == nil || queue == nil {
		return nil, ErrNoDevice
	}

	usage := config.Usage
	if usage == 0 {
		usage = DefaultTextureUsage
	}
	samples := config.SampleCount
	if samples <= 0 {
		samples = 1
	}

	//nolint:gosec // G115: dimensions validated positive above
	sizeBytes := uint64(config.Width * config.Height * config.Format.BytesPerPixel())

	raw, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: config.Label,
		Size: hal.Extent3D{
			Width:              uint32(config.Width),
			Height:             uint32(config.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   uint32(samples),
		Dimension:     gputypes.TextureDimension2D,
		Format:        config.Format.ToWGPUFormat(),
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", config.Label, err)
	}

	view, err := device.CreateTextureView(raw, &hal.TextureViewDescriptor{Label: config.Label + "_view"})
	if err != nil {
		device.DestroyTexture(raw)
		return nil, fmt.Errorf("create texture view %q: %w", config.Label, err)
	}

	return &GPUTexture{
		device:      device,
		queue:       queue,
		texture:     raw,
		view:        view,
		width:       config.Width,
		height:      config.Height,
		format:      config.Format,
		sampleCount: samples,
		sizeBytes:   sizeBytes,
		label:       config.Label,
	}, nil
}

// CreateTextureFromPixels creates a GPU texture of the given dimensions,
// uploading the pixel data immediately. data must hold width*height*4 bytes
// of RGBA8 pixels.
func CreateTextureFromPixels(device hal.Device, queue hal.Queue, width, height int, data []byte, label string) (*GPUTexture, error) {
	if data == nil {
		return nil, ErrNilPixelData
	}

	tex, err := CreateTexture(device, queue, TextureConfig{
		Width:  width,
		Height: height,
		Format: TextureFormatRGBA8,
		Label:  label,
	})
	if err != nil {
		return nil, err
	}

	if err := tex.Upload(data); err != nil {
		tex.Close()
		return nil, err
	}

	return tex, nil
}

// Width returns the texture width in pixels.
func (t *GPUTexture) Width() int {
	return t.width
}

// Height returns the texture height in pixels.
func (t *GPUTexture) Height() int {
	return t.height
}

// Format returns the texture format.
func (t *GPUTexture) Format() TextureFormat {
	return t.format
}

// SizeBytes returns the texture size in bytes.
func (t *GPUTexture) SizeBytes() uint64 {
	return t.sizeBytes
}

// SampleCount returns the texture's MSAA sample count (1 for no MSAA).
func (t *GPUTexture) SampleCount() int {
	return t.sampleCount
}

// Label returns the debug label.
func (t *GPUTexture) Label() string {
	return t.label
}

// IsReleased returns true if the texture has been released.
func (t *GPUTexture) IsReleased() bool {
	return t.released.Load()
}

// Raw returns the underlying device texture, or nil once released.
func (t *GPUTexture) Raw() hal.Texture {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.texture
}

// View returns a full-texture view suitable for a sampled bind group, or
// nil once released.
func (t *GPUTexture) View() hal.TextureView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}

// Upload writes pixel data over the whole texture. data must hold
// exactly width*height*BytesPerPixel bytes, tightly packed.
func (t *GPUTexture) Upload(data []byte) error {
	if t.released.Load() {
		return ErrTextureReleased
	}
	if data == nil {
		return ErrNilPixelData
	}

	want := t.width * t.height * t.format.BytesPerPixel()
	if len(data) != want {
		return fmt.Errorf("%w: expected %d bytes for %dx%d, got %d",
			ErrTextureSizeMismatch, want, t.width, t.height, len(data))
	}

	t.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.texture, MipLevel: 0},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(t.width * t.format.BytesPerPixel()),
			RowsPerImage: uint32(t.height),
		},
		&hal.Extent3D{Width: uint32(t.width), Height: uint32(t.height), DepthOrArrayLayers: 1},
	)
	return nil
}

// UploadRegion writes pixel data into a sub-rectangle of the texture,
// used for atlas-style partial updates. data must hold exactly
// regionWidth*regionHeight*BytesPerPixel bytes, tightly packed.
func (t *GPUTexture) UploadRegion(x, y, regionWidth, regionHeight int, data []byte) error {
	if t.released.Load() {
		return ErrTextureReleased
	}
	if data == nil {
		return ErrNilPixelData
	}
	if x < 0 || y < 0 || regionWidth <= 0 || regionHeight <= 0 ||
		x+regionWidth > t.width || y+regionHeight > t.height {
		return fmt.Errorf("%w: region (%d,%d)+(%dx%d) exceeds texture bounds (%dx%d)",
			ErrInvalidDimensions, x, y, regionWidth, regionHeight, t.width, t.height)
	}
	bpp := t.format.BytesPerPixel()
	if want := regionWidth * regionHeight * bpp; len(data) != want {
		return fmt.Errorf("%w: expected %d bytes for %dx%d region, got %d",
			ErrTextureSizeMismatch, want, regionWidth, regionHeight, len(data))
	}

	t.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: uint32(x), Y: uint32(y), Z: 0},
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(regionWidth * bpp),
			RowsPerImage: uint32(regionHeight),
		},
		&hal.Extent3D{Width: uint32(regionWidth), Height: uint32(regionHeight), DepthOrArrayLayers: 1},
	)
	return nil
}

// Download reads the texture back into a tightly-packed byte slice,
// waiting for the GPU to finish the copy. The texture must carry CopySrc
// usage (DefaultTextureUsage does).
func (t *GPUTexture) Download() ([]byte, error) {
	if t.released.Load() {
		return nil, ErrTextureReleased
	}

	bpp := uint32(t.format.BytesPerPixel())
	unpaddedBPR := uint32(t.width) * bpp
	paddedBPR := (unpaddedBPR + 255) / 256 * 256
	height := uint32(t.height)

	encoder, err := t.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: t.label + "_download"})
	if err != nil {
		return nil, fmt.Errorf("create download encoder: %w", err)
	}
	if err := encoder.BeginEncoding(t.label + "_download"); err != nil {
		return nil, fmt.Errorf("begin download encoding: %w", err)
	}

	staging, err := CreateStagingBuffer(t.device, uint64(paddedBPR)*uint64(height), false, t.label+"_download_staging")
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("create download staging buffer: %w", err)
	}
	defer staging.Destroy()

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.texture,
		Usage:   hal.TextureUsageTransition{OldUsage: gputypes.TextureUsageTextureBinding, NewUsage: gputypes.TextureUsageCopySrc},
	}})
	encoder.CopyTextureToBuffer(t.texture, staging.Raw(), []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: paddedBPR, RowsPerImage: height},
		TextureBase:  hal.ImageCopyTexture{Texture: t.texture, MipLevel: 0},
		Size:         hal.Extent3D{Width: uint32(t.width), Height: height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.texture,
		Usage:   hal.TextureUsageTransition{OldUsage: gputypes.TextureUsageCopySrc, NewUsage: gputypes.TextureUsageTextureBinding},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end download encoding: %w", err)
	}
	defer t.device.FreeCommandBuffer(cmdBuf)

	fence, err := t.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create download fence: %w", err)
	}
	defer t.device.DestroyFence(fence)

	if err := t.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit download: %w", err)
	}
	if ok, err := t.device.Wait(fence, 1, 5*time.Second); err != nil || !ok {
		return nil, fmt.Errorf("wait for download: ok=%v err=%w", ok, err)
	}

	padded := make([]byte, uint64(paddedBPR)*uint64(height))
	if err := t.queue.ReadBuffer(staging.Raw(), 0, padded); err != nil {
		return nil, fmt.Errorf("read back texture: %w", err)
	}
	if paddedBPR == unpaddedBPR {
		return padded, nil
	}
	out := make([]byte, uint64(unpaddedBPR)*uint64(height))
	for row := uint32(0); row < height; row++ {
		copy(out[row*unpaddedBPR:(row+1)*unpaddedBPR], padded[row*paddedBPR:row*paddedBPR+unpaddedBPR])
	}
	return out, nil
}

// Close releases the GPU texture resources.
// The texture should not be used after Close is called.
func (t *GPUTexture) Close() {
	if t.released.Swap(true) {
		return // Already released
	}

	t.mu.Lock()
	if t.view != nil {
		t.device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.texture != nil {
		t.device.DestroyTexture(t.texture)
		t.texture = nil
	}
	t.mu.Unlock()
}

// String returns a string representation of the texture.
func (t *GPUTexture) String() string {
	status := "active"
	if t.released.Load() {
		status = "released"
	}
	return fmt.Sprintf("GPUTexture[%s %dx%d %s %d bytes %s]",
		t.label, t.width, t.height, t.format, t.sizeBytes, status)
}
