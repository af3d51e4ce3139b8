//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer errors.
var (
	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("gpu: buffer has been destroyed")

	// ErrNilBuffer is returned when creating operations without a buffer.
	ErrNilBuffer = errors.New("gpu: buffer is nil")

	// ErrInvalidBufferSize is returned when buffer size is invalid.
	ErrInvalidBufferSize = errors.New("gpu: invalid buffer size")

	// ErrNilHALDevice is returned when buffer creation is attempted
	// without a device.
	ErrNilHALDevice = errors.New("gpu: hal device is nil")
)

// Buffer wraps a hal.Buffer with destruction tracking, so the uniform,
// staging, and storage buffers the renderer creates per frame or per
// effect instance can be torn down idempotently without every owner
// tracking whether it already released its handle.
//
// Buffer is safe for concurrent access; data transfer goes through
// hal.Queue.WriteBuffer/ReadBuffer against Raw rather than CPU-side
// mapping.
type Buffer struct {
	mu sync.RWMutex

	halBuffer hal.Buffer
	device    hal.Device

	// descriptor holds the buffer configuration (immutable after creation).
	descriptor BufferDescriptor

	destroyed bool
}

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// NewBuffer wraps an already-created buffer handle. Ownership of
// halBuffer transfers to the returned Buffer; device is retained for
// destruction.
func NewBuffer(halBuffer hal.Buffer, device hal.Device, desc *BufferDescriptor) *Buffer {
	return &Buffer{
		halBuffer:  halBuffer,
		device:     device,
		descriptor: *desc,
	}
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string {
	return b.descriptor.Label
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.descriptor.Size
}

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage {
	return b.descriptor.Usage
}

// IsDestroyed returns true if the buffer has been destroyed.
func (b *Buffer) IsDestroyed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.destroyed
}

// Raw returns the underlying buffer handle, or nil once destroyed. The
// caller must ensure the buffer outlives any GPU work recorded against
// the handle.
func (b *Buffer) Raw() hal.Buffer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return nil
	}
	return b.halBuffer
}

// Destroy releases the buffer. Idempotent.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	device := b.device
	halBuf := b.halBuffer
	b.halBuffer = nil
	b.mu.Unlock()

	if device != nil && halBuf != nil {
		device.DestroyBuffer(halBuf)
	}
}

// CreateBuffer creates a buffer from desc, rounding its size up to the
// 4-byte alignment copy operations require.
func CreateBuffer(device hal.Device, desc *BufferDescriptor) (*Buffer, error) {
	if device == nil {
		return nil, ErrNilHALDevice
	}
	if desc == nil {
		return nil, fmt.Errorf("buffer descriptor is nil")
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: size is 0", ErrInvalidBufferSize)
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("buffer usage is empty")
	}

	const copyBufferAlignment uint64 = 4
	alignedSize := (desc.Size + copyBufferAlignment - 1) &^ (copyBufferAlignment - 1)

	halBuffer, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignedSize,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("buffer creation failed: %w", err)
	}

	resolvedDesc := *desc
	resolvedDesc.Size = alignedSize
	return NewBuffer(halBuffer, device, &resolvedDesc), nil
}

// CreateBufferSimple creates a buffer with common defaults.
func CreateBufferSimple(
	device hal.Device,
	size uint64,
	usage gputypes.BufferUsage,
	label string,
) (*Buffer, error) {
	return CreateBuffer(device, &BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
}

// CreateStagingBuffer creates a staging buffer for CPU-GPU data
// transfer: MapWrite | CopySrc when forUpload, MapRead | CopyDst for
// readback.
func CreateStagingBuffer(
	device hal.Device,
	size uint64,
	forUpload bool,
	label string,
) (*Buffer, error) {
	var usage gputypes.BufferUsage
	if forUpload {
		usage = gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	} else {
		usage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	return CreateBuffer(device, &BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
}
