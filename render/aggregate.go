package render

import (
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stagegraph"
	"github.com/gogpu/stagegraph/drawtree"
	"github.com/gogpu/stagegraph/internal/gpu"
	"github.com/gogpu/stagegraph/tessellate"
)

// sceneInstance is one node's per-instance upload: its world transform
// (row-major, matching stagegraph.Transform.Rows and the layout
// scene.wgsl/clip.wgsl's InstanceInput attributes expect), resolved fill
// color, and texture-layer metadata flags. Its in-memory layout must
// match gpu.SceneInstanceStride exactly — it is uploaded by reinterpreting
// the slice as bytes, not by field-by-field encoding.
type sceneInstance struct {
	transform [16]float32
	color     [4]float32
	metadata  float32
}

// Texture-layer metadata bits, matching scene.wgsl's fs_main.
const (
	metadataSamplesBackground = 1 << 0
	metadataSamplesForeground = 1 << 1
)

// aggregator resolves a draw tree into the combined per-frame buffers the
// segmented renderer issues draw calls against: one vertex buffer and one
// index buffer holding every resolved node's local-space tessellated
// geometry back to back, and one instance buffer holding every resolved
// node's world transform, color, and texture metadata at the same slot
// its geometry's instance index names. Rebuilt and re-uploaded in full
// every frame — stagegraph targets authoring-time scene sizes, not the
// bandwidth a delta-upload scheme would be worth building for.
type aggregator struct {
	device hal.Device
	queue  hal.Queue

	vertexBuf hal.Buffer
	vertexCap uint64
	indexBuf  hal.Buffer
	indexCap  uint64
	instBuf   hal.Buffer
	instCap   uint64

	geometry  tessellate.Geometry
	instances []sceneInstance

	// world holds each node's accumulated world transform for the
	// current frame, indexed by NodeID-1. Reused across frames to avoid
	// a per-frame allocation once a scene's node count settles.
	world []stagegraph.Transform

	// ranges memoizes the (indexStart, indexCount) a tessellation-cache
	// key was already appended at this frame, so N nodes referencing the
	// same cached or keyed shape share one copy of its geometry in the
	// combined buffer instead of each appending their own. This is what
	// makes leafbatch.go's instanced-draw coalescing possible: sibling
	// nodes with identical geometry end up with identical IndexRanges,
	// not just identical contents at different offsets.
	ranges map[tessellate.CacheKey]indexRange
}

type indexRange struct {
	start, count uint32
}

// newAggregator creates an aggregator bound to device/queue. Both must
// stay valid for the aggregator's lifetime.
func newAggregator(device hal.Device, queue hal.Queue) *aggregator {
	return &aggregator{device: device, queue: queue}
}

// VertexBuffer returns the current frame's combined vertex buffer.
func (a *aggregator) VertexBuffer() hal.Buffer { return a.vertexBuf }

// IndexBuffer returns the current frame's combined index buffer.
func (a *aggregator) IndexBuffer() hal.Buffer { return a.indexBuf }

// InstanceBuffer returns the current frame's per-node instance buffer.
func (a *aggregator) InstanceBuffer() hal.Buffer { return a.instBuf }

// Prepare walks tree in arena order — which is always parent-before-child,
// since a node names its existing parent at AddShape time — resolving
// every node's geometry (tessellating inline shapes, or looking up a
// cached/memoized result) and accumulating world transforms, then uploads
// the combined vertex, index, and instance buffers. Call once per frame,
// before building the traversal plan: the plan only reads the stable tree
// structure, but the segmented renderer's draw calls read the
// Node.IndexRange/InstanceIndex state this method sets via SetResolved.
func (a *aggregator) Prepare(tree *drawtree.Tree, tessCache *tessellate.Cache, fringeWidth float64) error {
	tree.ClearResolved()
	a.geometry.Vertices = a.geometry.Vertices[:0]
	a.geometry.Indices = a.geometry.Indices[:0]
	a.instances = a.instances[:0]

	n := tree.Len()
	if cap(a.world) < n {
		a.world = make([]stagegraph.Transform, n)
	} else {
		a.world = a.world[:n]
	}
	if a.ranges == nil {
		a.ranges = make(map[tessellate.CacheKey]indexRange)
	} else {
		clear(a.ranges)
	}

	tree.WalkPre(func(node *drawtree.Node) {
		world := node.Transform()
		if node.Parent != drawtree.NoNode {
			world = a.world[node.Parent-1].Mul(world)
		}
		a.world[node.ID-1] = world

		instanceIdx := uint32(len(a.instances))
		a.instances = append(a.instances, a.buildInstance(node, world))

		rng, ok := a.resolveRange(tree, tessCache, node, fringeWidth)
		if !ok {
			node.SetResolved(uint32(len(a.geometry.Indices)), 0, instanceIdx, true)
			return
		}
		if rng.count == 0 {
			stagegraph.Logger().Warn("stagegraph: shape produced no geometry",
				slog.Uint64("node", uint64(node.ID)))
		}
		node.SetResolved(rng.start, rng.count, instanceIdx, rng.count == 0)
	})

	if len(a.geometry.Vertices) > tessellate.MaxIndexableVertices {
		stagegraph.Logger().Warn("stagegraph: frame vertex count exceeds indexable limit",
			slog.Int("vertices", len(a.geometry.Vertices)),
			slog.Int("limit", tessellate.MaxIndexableVertices))
	}

	if err := a.uploadVertices(); err != nil {
		return err
	}
	if err := a.uploadIndices(); err != nil {
		return err
	}
	return a.uploadInstances()
}

// resolveRange returns the combined-buffer index range holding node's
// geometry for this frame, appending it if this is the first node this
// frame to need it. A cached-shape reference or an inline shape tagged
// with a tessellation key shares its range with every other node naming
// the same key this frame; a plain inline shape always gets its own
// fresh range, since it has no stable per-frame identity to dedup by.
func (a *aggregator) resolveRange(
	tree *drawtree.Tree, tessCache *tessellate.Cache, node *drawtree.Node, fringeWidth float64,
) (indexRange, bool) {
	if node.IsCached() {
		key := node.ShapeCacheKey()
		if rng, ok := a.ranges[key]; ok {
			return rng, true
		}
		cached, ok := tree.ShapeCache[key]
		if !ok {
			stagegraph.Logger().Warn("stagegraph: cached shape reference has no loaded geometry",
				slog.Uint64("node", uint64(node.ID)))
			return indexRange{}, false
		}
		rng := a.appendGeometry(cached.Geometry)
		a.ranges[key] = rng
		return rng, true
	}

	shape, ok := node.Shape()
	if !ok {
		return indexRange{}, false
	}

	key, hasKey := node.TessellationKey()
	if hasKey {
		if rng, ok := a.ranges[key]; ok {
			return rng, true
		}
	}

	var g tessellate.Geometry
	if hasKey {
		if cached, ok := tessCache.Get(key); ok {
			g = cached.Geometry
		} else {
			g = tessellate.Tessellate(shape, fringeWidth)
			tessCache.Store(key, g)
		}
	} else {
		g = tessellate.Tessellate(shape, fringeWidth)
	}

	rng := a.appendGeometry(g)
	if hasKey {
		a.ranges[key] = rng
	}
	return rng, true
}

// appendGeometry rebases and appends geom into the frame's combined
// vertex/index buffers, returning its resulting range. Empty geometry
// contributes nothing and returns the zero range.
func (a *aggregator) appendGeometry(geom tessellate.Geometry) indexRange {
	if geom.Empty() {
		return indexRange{start: uint32(len(a.geometry.Indices))}
	}
	start := uint32(len(a.geometry.Indices))
	a.geometry.Append(geom)
	return indexRange{start: start, count: uint32(len(a.geometry.Indices)) - start}
}

// buildInstance computes a node's per-instance upload record: its world
// transform, resolved color (override or geometry default white), and
// texture metadata flags. The flags tell scene.wgsl which of the two
// texture-layer bind groups (bound per batch by the segmented renderer)
// actually contribute to this node's fill; an unset layer stays at the
// 1x1 transparent placeholder and its flag stays clear.
func (a *aggregator) buildInstance(node *drawtree.Node, world stagegraph.Transform) sceneInstance {
	rows := world.Rows()
	inst := sceneInstance{color: [4]float32{1, 1, 1, 1}}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			inst.transform[row*4+col] = rows[row][col]
		}
	}
	if color, ok := node.ColorOverride(); ok {
		inst.color = color
	}
	var metadata int
	if node.TextureID(drawtree.LayerBackground) != 0 {
		metadata |= metadataSamplesBackground
	}
	if node.TextureID(drawtree.LayerForeground) != 0 {
		metadata |= metadataSamplesForeground
	}
	inst.metadata = float32(metadata)
	return inst
}

func (a *aggregator) uploadVertices() error {
	data := gpu.StructSliceToBytes(a.geometry.Vertices)
	return a.uploadBuffer(&a.vertexBuf, &a.vertexCap, data, gputypes.BufferUsageVertex, "stagegraph_vertices")
}

func (a *aggregator) uploadIndices() error {
	data := gpu.StructSliceToBytes(a.geometry.Indices)
	return a.uploadBuffer(&a.indexBuf, &a.indexCap, data, gputypes.BufferUsageIndex, "stagegraph_indices")
}

func (a *aggregator) uploadInstances() error {
	data := gpu.StructSliceToBytes(a.instances)
	return a.uploadBuffer(&a.instBuf, &a.instCap, data, gputypes.BufferUsageVertex, "stagegraph_instances")
}

// uploadBuffer (re)creates *buf if data no longer fits its current
// capacity, then writes data into it. A frame with no geometry at all
// (data is empty) still needs a valid, zero-length-safe buffer for
// subsequent SetVertexBuffer calls to bind, so a minimum 4-byte buffer is
// always kept allocated.
func (a *aggregator) uploadBuffer(buf *hal.Buffer, capacity *uint64, data []byte, usage gputypes.BufferUsage, label string) error {
	size := uint64(len(data))
	if size == 0 {
		size = 4
	}
	if *buf == nil || *capacity < size {
		if *buf != nil {
			a.device.DestroyBuffer(*buf)
		}
		newCap := size * 2 // headroom so a scene that grows steadily doesn't reallocate every frame
		created, err := a.device.CreateBuffer(&hal.BufferDescriptor{
			Label: label, Size: newCap,
			Usage: usage | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return err
		}
		*buf = created
		*capacity = newCap
	}
	if len(data) == 0 {
		return nil
	}
	return a.queue.WriteBuffer(*buf, 0, data)
}

// Destroy releases every buffer the aggregator owns.
func (a *aggregator) Destroy() {
	if a.vertexBuf != nil {
		a.device.DestroyBuffer(a.vertexBuf)
	}
	if a.indexBuf != nil {
		a.device.DestroyBuffer(a.indexBuf)
	}
	if a.instBuf != nil {
		a.device.DestroyBuffer(a.instBuf)
	}
}
