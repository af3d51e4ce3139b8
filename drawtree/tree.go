package drawtree

import (
	"github.com/gogpu/stagegraph/effect"
	"github.com/gogpu/stagegraph/tessellate"
)

// Tree is the arena-backed, ordered multi-way scene graph: the sole
// source of truth for scene structure. Node ids are dense and stable for
// the life of the tree; ClearDrawQueue resets them.
type Tree struct {
	nodes  []*Node // index i holds NodeID(i+1); nodes[0] is id 1
	rootID NodeID

	// GroupEffects and BackdropEffects are separate per-node maps: a node
	// may have a group effect, a backdrop effect, both, or neither.
	GroupEffects    map[NodeID]*effect.Instance
	BackdropEffects map[NodeID]*effect.Instance

	// ShapeCache holds shapes pre-tessellated by LoadShape, addressable
	// by cache-key reference nodes created through AddCachedShape. It is
	// a plain map, not an LRU — entries live until ClearDrawQueue or an
	// explicit re-load overwrites the key.
	ShapeCache map[tessellate.CacheKey]tessellate.CachedShape
}

// New creates an empty draw tree.
func New() *Tree {
	return &Tree{
		GroupEffects:    make(map[NodeID]*effect.Instance),
		BackdropEffects: make(map[NodeID]*effect.Instance),
		ShapeCache:      make(map[tessellate.CacheKey]tessellate.CachedShape),
	}
}

// Root returns the tree's root node id, or NoNode if the tree is empty.
// Exactly one root exists once any node has been added.
func (t *Tree) Root() NodeID { return t.rootID }

// Empty reports whether the tree has no nodes.
func (t *Tree) Empty() bool { return len(t.nodes) == 0 }

// Len returns the number of nodes currently in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node for id, or nil if id does not exist. The
// returned pointer aliases the tree's storage; callers outside this
// package should treat it as read-only except through the exported
// mutators in mutators.go.
func (t *Tree) Node(id NodeID) *Node {
	if id == NoNode || int(id) > len(t.nodes) {
		return nil
	}
	return t.nodes[id-1]
}

// Exists reports whether id names a live node.
func (t *Tree) Exists(id NodeID) bool { return t.Node(id) != nil }

// newNode allocates the next dense id and appends an empty node, without
// linking it into any parent's children yet.
func (t *Tree) newNode() *Node {
	id := NodeID(len(t.nodes) + 1) //nolint:gosec // node counts never approach uint32 overflow
	n := &Node{ID: id}
	t.nodes = append(t.nodes, n)
	return n
}

// link appends child to parent's children list, or makes child the root
// if parent is NoNode: a nil clip-to-parent attaches as a child of the
// current root, unless the tree is empty, in which case the new node
// becomes the root.
func (t *Tree) link(parent NodeID, child NodeID) {
	if parent == NoNode {
		if t.rootID == NoNode {
			t.rootID = child
			return
		}
		parent = t.rootID
	}
	if p := t.Node(parent); p != nil {
		p.Children = append(p.Children, child)
		t.Node(child).Parent = parent
	}
}

// WalkPre visits every node in insertion (arena) order. This is not a
// clip-respecting depth-first order — it is the aggregator's simple
// linear pass over the arena, which only needs to visit every node once
// to resolve geometry, not in tree order.
func (t *Tree) WalkPre(visit func(*Node)) {
	for _, n := range t.nodes {
		visit(n)
	}
}

// WalkDepthFirst visits the tree rooted at root (or the tree root if
// root is NoNode) with distinct pre- and post-visit callbacks.
func (t *Tree) WalkDepthFirst(root NodeID, pre, post func(NodeID)) {
	if root == NoNode {
		root = t.rootID
	}
	if root == NoNode {
		return
	}
	var walk func(NodeID)
	walk = func(id NodeID) {
		if pre != nil {
			pre(id)
		}
		n := t.Node(id)
		if n != nil {
			for _, child := range n.Children {
				walk(child)
			}
		}
		if post != nil {
			post(id)
		}
	}
	walk(root)
}

// hasBackdropDescendant reports whether root's subtree (root included)
// contains any node with a backdrop effect attached. The renderer's
// group-effect pass calls this once per group-effect subtree and renders
// the extra "behind" texture for that subtree only when it returns true.
func (t *Tree) hasBackdropDescendant(root NodeID) bool {
	if len(t.BackdropEffects) == 0 {
		return false
	}
	found := false
	t.WalkDepthFirst(root, func(id NodeID) {
		if _, ok := t.BackdropEffects[id]; ok {
			found = true
		}
	}, nil)
	return found
}

// HasBackdropDescendant is the exported form of hasBackdropDescendant,
// used by render/groupeffect.go.
func (t *Tree) HasBackdropDescendant(root NodeID) bool { return t.hasBackdropDescendant(root) }

// Depth returns a node's distance from the root (root is depth 0). Used
// by render/groupeffect.go to process group effects in descending depth
// order.
func (t *Tree) Depth(id NodeID) int {
	depth := 0
	for n := t.Node(id); n != nil && n.Parent != NoNode; n = t.Node(n.Parent) {
		depth++
	}
	return depth
}

// ClearResolved drops every node's per-frame resolution state. Called
// once at the start of each frame's prepare pass, before the aggregator
// walks the tree.
func (t *Tree) ClearResolved() {
	for _, n := range t.nodes {
		n.ClearResolved()
	}
}

// Clear resets the tree to empty, dropping every node, the root, both
// effect maps, and the shape cache; node ids restart from 1 on the next
// add.
func (t *Tree) Clear() {
	for _, in := range t.GroupEffects {
		in.Release()
	}
	for _, in := range t.BackdropEffects {
		in.Release()
	}
	t.nodes = nil
	t.rootID = NoNode
	t.GroupEffects = make(map[NodeID]*effect.Instance)
	t.BackdropEffects = make(map[NodeID]*effect.Instance)
	t.ShapeCache = make(map[tessellate.CacheKey]tessellate.CachedShape)
}
