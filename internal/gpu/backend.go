//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import the Vulkan hal backend so it registers via init() and
	// hal.GetBackend(gputypes.BackendVulkan) below can find it.
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/stagegraph"
)

// Backend errors.
var (
	// ErrNoGPU is returned when no compatible GPU adapter could be found.
	// render.TryNewHeadless surfaces this as
	// *stagegraph.AdapterNotAvailableError.
	ErrNoGPU = errors.New("gpu: no compatible GPU adapter found")

	// ErrNotInitialized is returned when an operation requires an
	// initialized Backend but Init has not been called (or failed).
	ErrNotInitialized = errors.New("gpu: backend not initialized")

	// ErrInvalidDimensions is returned when a texture or target is created
	// with a non-positive width or height.
	ErrInvalidDimensions = errors.New("gpu: width and height must be positive")
)

// GPUInfo describes the adapter a Backend selected.
type GPUInfo struct {
	Name       string
	Vendor     string
	DeviceType string
	Driver     string
}

// String returns a human-readable description of the GPU.
func (g *GPUInfo) String() string {
	return fmt.Sprintf("%s (%s)", g.Name, g.DeviceType)
}

// Backend owns a GPU instance, adapter, device, and queue acquired without
// a host-supplied render.DeviceHandle. It exists solely for
// render.TryNewHeadless's fallback path: when no gpucontext.DeviceProvider
// is available, the renderer enumerates an adapter itself through
// hal.GetBackend/EnumerateAdapters/Adapter.Open, so headless
// pixel-comparison tests and CI runs without a host application can
// still construct a Renderer.
//
// Backend is never used when a host-supplied DeviceHandle exists; in that
// mode stagegraph never creates its own adapter, device, or queue.
type Backend struct {
	mu sync.RWMutex

	instance hal.Instance
	adapter  hal.Adapter
	device   hal.Device
	queue    hal.Queue

	gpuInfo *GPUInfo

	initialized bool
}

// NewBackend creates an uninitialized headless backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Init requests a Vulkan hal backend, enumerates its adapters, and opens
// one, preferring a discrete or integrated GPU over a software/CPU
// adapter when more than one is available. Returns ErrNoGPU (wrapped) if
// no backend or adapter is available, which callers map to
// AdapterNotAvailable.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	halBackend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("%w: vulkan hal backend not registered", ErrNoGPU)
	}

	instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("%w: create instance: %w", ErrNoGPU, err)
	}
	b.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		b.instance = nil
		return fmt.Errorf("%w: no adapters enumerated", ErrNoGPU)
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	b.adapter = selected.Adapter
	b.gpuInfo = &GPUInfo{
		Name:       selected.Info.Name,
		DeviceType: fmt.Sprint(selected.Info.DeviceType),
	}
	stagegraph.Logger().Debug("gpu: headless adapter selected", "info", b.gpuInfo.String())

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		b.instance = nil
		b.adapter = nil
		return fmt.Errorf("%w: open device: %w", ErrNoGPU, err)
	}
	b.device = openDev.Device
	b.queue = openDev.Queue

	b.initialized = true
	return nil
}

// Close releases the device and instance. Safe to call on an
// uninitialized or already-closed Backend.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return
	}
	if b.device != nil {
		b.device.Destroy()
		b.device = nil
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
	b.adapter = nil
	b.queue = nil
	b.gpuInfo = nil
	b.initialized = false
}

// IsInitialized reports whether Init has completed successfully.
func (b *Backend) IsInitialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// GPUInfo returns information about the selected adapter, or nil if
// uninitialized.
func (b *Backend) GPUInfo() *GPUInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gpuInfo
}

// HalDevice and HalQueue satisfy halProvider so ResolveHAL can be called
// on a Backend the same way it is called on a host-supplied gpucontext
// provider, handing render.TryNewHeadless the same genuine hal.Device/
// hal.Queue pair a host-supplied DeviceHandle would.
func (b *Backend) HalDevice() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.device
}

func (b *Backend) HalQueue() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queue
}
