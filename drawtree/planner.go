package drawtree

// EventKind tags a TraversalEvent as entering or leaving a node.
type EventKind int

const (
	// Pre fires once per node, before its children.
	Pre EventKind = iota
	// Post fires once per node, after all its children.
	Post
)

// TraversalEvent is one step of the flat event stream the planner
// produces: a balanced sequence of Pre/Post pairs the segmented renderer
// walks to push/pop clip state and issue draws, without recursing into
// the tree itself.
type TraversalEvent struct {
	Kind EventKind
	Node NodeID
}

const (
	maxTraversalEventsCapacity = 32768
	maxTraversalStackCapacity  = 16384
	maxTraversalMapCapacity    = 16384
)

// TraversalScratch holds a planner run's working state, reused across
// frames so a steady-state scene produces no per-frame allocation once
// capacities settle. Begin resets it for a new run; TrimToPolicy bounds
// its capacity so a scene that transiently grows very large does not
// hold that memory forever.
type TraversalScratch struct {
	events         []TraversalEvent
	stencilRefs    map[NodeID]uint32
	parentStencils map[NodeID]uint32
	skippedStack   []NodeID
	stencilStack   []uint32
	excludedDepth  int
}

// NewTraversalScratch creates an empty, ready-to-use scratch.
func NewTraversalScratch() *TraversalScratch {
	s := &TraversalScratch{}
	s.Begin()
	return s
}

// Begin clears the scratch for a new planner run, retaining allocated
// capacity.
func (s *TraversalScratch) Begin() {
	s.events = s.events[:0]
	if s.stencilRefs == nil {
		s.stencilRefs = make(map[NodeID]uint32)
	} else {
		clear(s.stencilRefs)
	}
	if s.parentStencils == nil {
		s.parentStencils = make(map[NodeID]uint32)
	} else {
		clear(s.parentStencils)
	}
	s.skippedStack = s.skippedStack[:0]
	s.stencilStack = s.stencilStack[:0]
	s.excludedDepth = 0
}

// TrimToPolicy shrinks any scratch slice or map whose capacity has grown
// past its policy ceiling, called once per frame after rendering so a
// one-off enormous scene does not pin memory indefinitely.
func (s *TraversalScratch) TrimToPolicy() {
	s.events = trimSlice(s.events, maxTraversalEventsCapacity)
	s.skippedStack = trimSlice(s.skippedStack, maxTraversalStackCapacity)
	s.stencilStack = trimSlice(s.stencilStack, maxTraversalStackCapacity)
	s.stencilRefs = trimMap(s.stencilRefs, maxTraversalMapCapacity)
	s.parentStencils = trimMap(s.parentStencils, maxTraversalMapCapacity)
}

func trimSlice[T any](s []T, max int) []T {
	if cap(s) <= max {
		return s
	}
	trimmed := make([]T, len(s), max)
	copy(trimmed, s)
	return trimmed
}

func trimMap[V any](m map[NodeID]V, max int) map[NodeID]V {
	if len(m) <= max {
		return m
	}
	trimmed := make(map[NodeID]V, max)
	for k, v := range m {
		trimmed[k] = v
	}
	return trimmed
}

// Events returns the Pre/Post stream produced by the most recent Plan
// call.
func (s *TraversalScratch) Events() []TraversalEvent { return s.events }

// StencilRef returns the advisory stencil reference value a node was
// assigned during the most recent Plan call: its depth among open,
// non-excluded ancestors, starting at 1. The segmented renderer only
// uses this value for nodes whose clip kind actually resolves to
// Stencil; scissor and non-clipping ancestors still increment it so the
// numbering stays consistent if a later frame's scissor fast-path
// becomes unavailable (e.g. the transform stops being axis-aligned).
func (s *TraversalScratch) StencilRef(id NodeID) (uint32, bool) {
	v, ok := s.stencilRefs[id]
	return v, ok
}

// ParentStencil returns the stencil reference value of a node's nearest
// open ancestor at the time it was visited (0 for a root-level node).
func (s *TraversalScratch) ParentStencil(id NodeID) (uint32, bool) {
	v, ok := s.parentStencils[id]
	return v, ok
}

// Plan walks tree (rooted at subtreeRoot, or the tree's own root if
// subtreeRoot is NoNode) and fills scratch with a balanced Pre/Post
// event stream plus advisory stencil bookkeeping.
//
// effectResults names nodes whose group effect has already produced a
// composited result this frame: the first such node encountered on a
// path is still visited (Pre+Post, so its composite can be drawn as a
// single leaf), but none of its descendants are, since their contribution
// is already baked into the composite.
//
// excludeSubtreeID, if not NoNode, names a node (and its entire subtree)
// to skip outright — neither visited nor counted toward stencil depth.
// Used to omit a node's own subtree while rendering its backdrop
// snapshot, avoiding a node compositing under its own not-yet-drawn
// pixels.
func Plan(tree *Tree, effectResults map[NodeID]struct{}, subtreeRoot NodeID, excludeSubtreeID NodeID, scratch *TraversalScratch) {
	scratch.Begin()

	root := subtreeRoot
	if root == NoNode {
		root = tree.Root()
	}
	if root == NoNode {
		return
	}

	var visit func(id NodeID)
	visit = func(id NodeID) {
		excludedNow := false
		if scratch.excludedDepth > 0 {
			scratch.excludedDepth++
			excludedNow = true
		} else if excludeSubtreeID != NoNode && id == excludeSubtreeID {
			scratch.excludedDepth = 1
			excludedNow = true
		}

		if !excludedNow {
			_, isResult := effectResults[id]
			if isResult {
				scratch.skippedStack = append(scratch.skippedStack, id)
			}
			if !(len(scratch.skippedStack) > 0 && !isResult) {
				parent := uint32(0)
				if n := len(scratch.stencilStack); n > 0 {
					parent = scratch.stencilStack[n-1]
				}
				this := parent + 1
				scratch.parentStencils[id] = parent
				scratch.stencilRefs[id] = this
				scratch.stencilStack = append(scratch.stencilStack, this)
				scratch.events = append(scratch.events, TraversalEvent{Kind: Pre, Node: id})
			}
		}

		// A node with an effect result stands in for its whole subtree, so
		// none of its descendants (nested effect results included) are
		// visited: their pixels are already in its composite.
		if n := tree.Node(id); n != nil && len(scratch.skippedStack) == 0 {
			for _, child := range n.Children {
				visit(child)
			}
		}

		if excludedNow {
			scratch.excludedDepth--
			return
		}

		if top := len(scratch.skippedStack); top > 0 && scratch.skippedStack[top-1] == id {
			scratch.skippedStack = scratch.skippedStack[:top-1]
			scratch.stencilStack = scratch.stencilStack[:len(scratch.stencilStack)-1]
			scratch.events = append(scratch.events, TraversalEvent{Kind: Post, Node: id})
			return
		}

		if len(scratch.skippedStack) > 0 {
			return
		}

		scratch.stencilStack = scratch.stencilStack[:len(scratch.stencilStack)-1]
		scratch.events = append(scratch.events, TraversalEvent{Kind: Post, Node: id})
	}
	visit(root)
}
