//go:build !nogpu

package gpu

import "github.com/gogpu/wgpu/hal"

// halProvider is implemented by a host's gpucontext.Device/Queue/Adapter
// values when they are backed by a concrete wgpu/hal device, letting
// stagegraph recover the hal.Device and hal.Queue it actually draws with
// from the generic handle the host passed in.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// ResolveHAL extracts a concrete hal.Device and hal.Queue from a host-
// supplied gpucontext provider. provider is typically the gpucontext.Device
// (or gpucontext.Queue-carrying wrapper) a render.DeviceHandle exposes; ok
// is false if provider doesn't implement halProvider or its halDevice/
// halQueue assertions fail, meaning the host is using a GPU backend
// stagegraph cannot drive directly.
func ResolveHAL(provider any) (device hal.Device, queue hal.Queue, ok bool) {
	hp, isHalProvider := provider.(halProvider)
	if !isHalProvider {
		return nil, nil, false
	}
	device, deviceOK := hp.HalDevice().(hal.Device)
	queue, queueOK := hp.HalQueue().(hal.Queue)
	if !deviceOK || !queueOK {
		return nil, nil, false
	}
	return device, queue, true
}
