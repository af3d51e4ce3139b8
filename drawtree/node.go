// Package drawtree implements the scene graph: an arena-backed ordered
// multi-way tree of draw commands, its public mutators, and the
// traversal planner that turns it into a flat Pre/Post event stream for
// the segmented renderer.
package drawtree

import (
	"github.com/gogpu/stagegraph"
	"github.com/gogpu/stagegraph/tessellate"
	"github.com/gogpu/stagegraph/texture"
)

// NodeID is a dense, stable integer id assigned when a node is added.
// Ids are never reused within the life of a Tree; ClearDrawQueue resets
// the id sequence along with everything else.
type NodeID uint32

// NoNode is the zero NodeID, used as a sentinel for "no parent" (the
// root) and for unset optional node references.
const NoNode NodeID = 0

// TextureLayer selects one of a node's two optional texture slots.
type TextureLayer int

const (
	// LayerBackground is the first texture layer, sampled as t_background.
	LayerBackground TextureLayer = iota
	// LayerForeground is the second texture layer, sampled as t_foreground.
	LayerForeground
	numTextureLayers
)

// commandKind tags a DrawCommand's variant.
type commandKind int

const (
	commandInline commandKind = iota
	commandCached
)

// drawCommand is a node's tagged-variant payload. An inline command owns
// its Shape directly and optionally memoizes its tessellation result in
// the shared LRU tessellation cache under tessellationKey. A cached
// command carries no shape of its own; it names an entry in the tree's
// ShapeCache (populated by LoadShape), a plain map distinct from the LRU
// tessellation cache — the two caches answer different questions
// ("has this exact shape been tessellated before" vs. "what pre-built
// CachedShape does this node draw").
type drawCommand struct {
	kind commandKind

	shape              stagegraph.Shape
	tessellationKey    tessellate.CacheKey
	hasTessellationKey bool

	shapeCacheKey tessellate.CacheKey
}

// transient holds the per-frame fields a node carries between the end of
// prepare and the end of render: the index-buffer range its geometry was
// rebased into, and the instance index the aggregator assigned it. Valid
// only between prepare and render end; cleared after every frame.
type transient struct {
	indexStart  uint32
	indexCount  uint32
	instanceIdx uint32
	empty       bool
	resolved    bool // geometry resolution happened this frame
}

// Node is one entry in the draw tree's arena. Children are stored by id
// in insertion order; Node never holds a pointer back into the Tree, so
// a copied node does not alias tree state.
type Node struct {
	ID       NodeID
	Parent   NodeID
	Children []NodeID

	command drawCommand

	transform     stagegraph.Transform
	hasTransform  bool
	colorOverride [4]float32
	hasColor      bool
	textures      [numTextureLayers]texture.ID

	// NonClippingHint opts a node out of the default "every interior node
	// clips its children" rule.
	NonClippingHint bool

	transient transient
}

// IsCached reports whether the node's command is a cache-key reference
// rather than an owned inline Shape.
func (n *Node) IsCached() bool { return n.command.kind == commandCached }

// Shape returns the node's inline shape and true, or nil and false if
// this node is a cached-shape reference.
func (n *Node) Shape() (stagegraph.Shape, bool) {
	if n.command.kind != commandInline {
		return nil, false
	}
	return n.command.shape, true
}

// TessellationKey returns the optional LRU tessellation-cache key an
// inline shape was added with, and whether one was set.
func (n *Node) TessellationKey() (tessellate.CacheKey, bool) {
	return n.command.tessellationKey, n.command.hasTessellationKey
}

// ShapeCacheKey returns the key this node resolves against the tree's
// ShapeCache, valid only when IsCached reports true.
func (n *Node) ShapeCacheKey() tessellate.CacheKey { return n.command.shapeCacheKey }

// Transform returns the node's per-instance transform, or the identity
// if none was set.
func (n *Node) Transform() stagegraph.Transform {
	if !n.hasTransform {
		return stagegraph.Identity()
	}
	return n.transform
}

// ColorOverride returns the node's color override and whether one is
// set. When unset, geometry color (white, [1,1,1,1]) is used instead.
func (n *Node) ColorOverride() ([4]float32, bool) {
	return n.colorOverride, n.hasColor
}

// TextureID returns the texture id bound to the given layer, or the zero
// ID (falls back to the default transparent texture) if unset.
func (n *Node) TextureID(layer TextureLayer) texture.ID {
	return n.textures[layer]
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Empty reports whether the node's resolved geometry had zero vertices
// or indices this frame (only meaningful after prepare).
func (n *Node) Empty() bool { return n.transient.empty }

// Resolved reports whether the aggregator has already rebased this
// node's geometry into the frame's shared index buffer this frame.
func (n *Node) Resolved() bool { return n.transient.resolved }

// IndexRange returns the node's rebased index-buffer range, valid only
// after the aggregator has resolved this node for the current frame.
func (n *Node) IndexRange() (start, count uint32) {
	return n.transient.indexStart, n.transient.indexCount
}

// InstanceIndex returns the slot the aggregator assigned this node in
// the frame's instance buffer.
func (n *Node) InstanceIndex() uint32 { return n.transient.instanceIdx }

// SetResolved records the aggregator's per-frame resolution of this
// node's geometry: its rebased index range, its instance-buffer slot,
// and whether the geometry was empty.
func (n *Node) SetResolved(indexStart, indexCount, instanceIdx uint32, empty bool) {
	n.transient = transient{
		indexStart:  indexStart,
		indexCount:  indexCount,
		instanceIdx: instanceIdx,
		empty:       empty,
		resolved:    true,
	}
}

// ClearResolved drops this node's per-frame resolution state, called
// once at the start of each frame's prepare pass.
func (n *Node) ClearResolved() { n.transient = transient{} }
