// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"github.com/gogpu/gpucontext"
)

// DeviceHandle provides GPU device access from the host application.
//
// This interface is the primary integration point between stagegraph and
// GPU frameworks like gogpu. The host application implements DeviceHandle
// and passes it to New/NewTransparent, letting the renderer record
// against the host's shared GPU device.
//
// Key principle: stagegraph RECEIVES the device from the host, it does
// NOT create one (TryNewHeadless is the sole exception, for hosts with
// no window at all). This enables:
//   - Shared GPU resources between stagegraph and the host application
//   - Zero device creation overhead inside the renderer
//   - Consistent resource management across the stack
//
// The concrete value the host passes must also expose a hal.Device and
// hal.Queue (see internal/gpu.ResolveHAL): every pipeline, buffer, and
// command encoder in this module records against the hal layer directly.
// A host whose DeviceHandle additionally implements
//
//	Present(view hal.TextureView) error
//
// receives each frame's resolved color view from Render for
// presentation; one that doesn't reads frames back through
// RenderToBuffer or RenderToARGB32 instead.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider, providing a
// stagegraph-specific name for the interface while maintaining full
// compatibility with the gpucontext ecosystem.
type DeviceHandle = gpucontext.DeviceProvider
