//go:build !nogpu

// Package gpu wraps the WebGPU device surface (github.com/gogpu/wgpu,
// github.com/gogpu/gputypes) with the render pipelines, textures, and
// command recording helpers the scene renderer needs: nested stencil
// clipping, instanced leaf drawing, offscreen frame targets, effect
// compositing, and the readback swizzle.
//
// # Pipelines
//
//   - ScenePipeline: the instanced, textured leaf-draw pipeline every
//     visible shape renders through, with the shared group(0) viewport
//     uniform and two texture-layer bind groups at group(1)/group(2).
//   - ClipPipelines: stencil push, stencil-only push, and pop variants
//     gated on a dynamic stencil reference (the parent clip depth, via
//     SetStencilReference) so increments and decrements compose across
//     nesting levels. Push raises a shape's region to depth+1 and pop
//     redraws the same geometry to undo it exactly; painting only where
//     the active depth matches is ScenePipeline's leaf draw.
//   - CompositePipeline: a stencil-gated fullscreen passthrough used to
//     composite group-effect results and processed backdrops into the
//     frame without disturbing the clip state.
//   - SwizzlePipeline: a one-shot BGRA8-to-ARGB32 compute dispatch for
//     packed readback.
//
// The scene and clip pipelines share the scene vertex/instance buffer
// layout; they and the composite pipeline use the fixed MSAA sample count
// SampleCount reports. The composite and effect-pass pipelines take no
// vertex buffers, and effect passes render single-sample offscreen.
//
// # Texture management
//
// GPUTexture wraps a device texture with upload/download helpers.
// Client textures are created through texture.Manager (which also
// enforces the renderer's texture memory budget) and used through the
// returned handle; the offscreen texture sets in package pool are created
// on the device directly.
//
// # Thread safety
//
// Pipeline builders and GPUTexture are safe for concurrent read access;
// mutation (Upload, Close, pipeline creation) should be externally
// synchronized by the caller, matching how the render package serializes
// per-frame work through a single goroutine.
package gpu
