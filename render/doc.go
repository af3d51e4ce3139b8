// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render provides the integration layer between stagegraph and GPU
// frameworks, plus the frame renderer that walks a drawtree.Tree's planned
// traversal and issues the stencil clip, leaf, and effect passes described
// in the package-level documentation at the module root.
//
// # Key Principle
//
// stagegraph RECEIVES a GPU device from the host application, it does NOT
// create its own. This follows the Vello/femtovg/Skia pattern where the
// rendering library is injected with GPU resources rather than managing
// them itself. TryNewHeadless is the one exception: it acquires its own
// adapter for offscreen rendering in tests and tools with no window.
//
// # Core Interfaces
//
//   - DeviceHandle: Provides GPU device access from the host application
//   - Renderer: Records a draw tree and renders it one frame at a time
//
// # Usage
//
// Integration with a host that owns a window and GPU device:
//
//	renderer, err := render.New(host.DeviceHandle(),
//	    render.PhysicalSize{Width: 1280, Height: 720},
//	    host.ScaleFactor(), true, false, 4)
//	if err != nil {
//	    return err
//	}
//	defer renderer.Destroy()
//
//	rect := stagegraph.NewRect(stagegraph.Pt(10, 10), stagegraph.Pt(70, 70),
//	    stagegraph.RGB(220, 50, 50))
//	renderer.AddShape(rect, drawtree.NoNode, nil)
//	if err := renderer.Render(); err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// Renderer is NOT thread-safe. Each renderer should be driven from a single
// goroutine, matching the single-threaded frame loop a host application
// typically drives rendering from.
//
// # References
//
//   - Vello DeviceProvider pattern: https://github.com/AhornGraphics/vello
//   - femtovg Renderer trait: https://github.com/AhornGraphics/femtovg
//   - Skia GrDirectContext: https://skia.org/docs/user/api/
package render
