package render

import (
	"github.com/gogpu/stagegraph/drawtree"
	"github.com/gogpu/stagegraph/internal/gpu"
)

// ClipKind is how a node's interior-node clipping is actually enforced
// this frame, decided once per node at segment-plan time.
type ClipKind int

const (
	// ClipStencil enforces clipping through the nested stencil push/pop
	// pipeline trio, required whenever the node's shape is not an
	// axis-aligned rectangle or its transform is not axis-aligned.
	ClipStencil ClipKind = iota
	// ClipScissor enforces clipping with a hardware scissor rect, the
	// cheap path available only for an axis-aligned rectangular clip
	// under an axis-aligned transform.
	ClipScissor
	// ClipNone marks a node opted out of clipping its children
	// (Node.NonClippingHint); its children inherit the enclosing clip. No
	// other node is marked ClipNone.
	ClipNone
)

// clipFrame is one entry on the renderer's runtime clip stack: the kind
// of clipping a still-open node enforces, plus whichever piece of state
// that kind needs to restore on pop.
type clipFrame struct {
	kind ClipKind

	// node is the id of the node whose Pre pushed this frame. handlePost
	// compares its own node id against top().node before popping, since
	// a leaf, group-effect-result, or leaf backdrop node's Post event arrives
	// without ever having pushed a frame of its own in Pre.
	node drawtree.NodeID

	// stencilRef is the reference value draws under this node compare
	// the stencil buffer against, from drawtree.TraversalScratch.
	stencilRef uint32

	// scissor is the pixel-space rectangle in force, valid when kind ==
	// ClipScissor.
	scissor gpu.ScissorRect
}

// clipStack tracks open clip frames during a segment pass, letting the
// segmented renderer push a node's clip on Pre and restore the parent's
// on Post without recomputing it.
type clipStack struct {
	frames []clipFrame
}

func newClipStack() *clipStack {
	return &clipStack{frames: make([]clipFrame, 0, 64)}
}

func (s *clipStack) reset() { s.frames = s.frames[:0] }

// push records a new open clip frame.
func (s *clipStack) push(f clipFrame) { s.frames = append(s.frames, f) }

// pop removes the most recently pushed frame.
func (s *clipStack) pop() {
	if n := len(s.frames); n > 0 {
		s.frames = s.frames[:n-1]
	}
}

// top returns the currently active clip frame, or ok=false if the stack
// is empty (root level, unclipped).
func (s *clipStack) top() (clipFrame, bool) {
	if n := len(s.frames); n > 0 {
		return s.frames[n-1], true
	}
	return clipFrame{}, false
}

// activeScissor walks the stack from the top down and returns the
// nearest enclosing scissor rect still in force, or ok=false if no
// ancestor frame uses the scissor fast path (draws then use the full
// render-target rect).
func (s *clipStack) activeScissor() (gpu.ScissorRect, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if f.kind == ClipScissor {
			return f.scissor, true
		}
		if f.kind == ClipStencil {
			return gpu.ScissorRect{}, false
		}
	}
	return gpu.ScissorRect{}, false
}

// activeStencilRef walks the stack from the top down, past any
// ClipScissor or ClipNone frames, and returns the stencilRef of the
// nearest enclosing ClipStencil frame — the reference value a draw
// issued right now must actually compare against in the stencil
// buffer. Returns 0 if no ancestor frame is a real stencil clip (root
// level, unclipped).
func (s *clipStack) activeStencilRef() uint32 {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].kind == ClipStencil {
			return s.frames[i].stencilRef
		}
	}
	return 0
}
