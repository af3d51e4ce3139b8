// Package stagegraph implements a retained-mode 2D scene renderer: a draw
// tree of shapes is mutated in place frame to frame and translated into a
// GPU command stream through a tessellation cache, a nested stencil/scissor
// clip engine, a leaf-draw batcher, and group/backdrop effect subsystems.
//
// # Architecture
//
// Package layout mirrors the dependency order leaves-first:
//   - stagegraph (root): Color, Stroke, Path, Transform primitives
//   - cache: fixed-capacity LRU for tessellated geometry
//   - tessellate: Shape -> Geometry, shared by reference through cache
//   - texture: GPU texture handle bookkeeping
//   - drawtree: the mutable scene graph and its traversal planner
//   - effect: loaded WGSL fragment-pass effects and per-node instances
//   - pool: pooled offscreen GPU textures for group effects and backdrops
//   - render: the per-frame aggregator, clip engine, batcher and the
//     public Renderer façade
//
// # Coordinate system
//
// Origin (0,0) at top-left, X increases right, Y increases down, angles in
// radians with 0 pointing right and increasing clockwise (screen space).
//
// # GPU ownership
//
// Apart from render.TryNewHeadless, which opens its own Vulkan adapter and
// device for headless use, stagegraph never creates its own adapter,
// device or queue. The host application supplies one through
// render.DeviceHandle; stagegraph only records commands against it. See
// render/device.go.
package stagegraph
