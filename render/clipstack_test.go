package render

import (
	"testing"

	"github.com/gogpu/stagegraph/internal/gpu"
)

func TestClipStackTopEmpty(t *testing.T) {
	s := newClipStack()
	if _, ok := s.top(); ok {
		t.Fatal("top() ok = true on an empty stack; want false")
	}
}

func TestClipStackPushPop(t *testing.T) {
	s := newClipStack()
	s.push(clipFrame{kind: ClipStencil, node: 1, stencilRef: 1})
	s.push(clipFrame{kind: ClipScissor, node: 2, stencilRef: 1, scissor: gpu.ScissorRect{MaxX: 10, MaxY: 10}})

	top, ok := s.top()
	if !ok || top.kind != ClipScissor || top.node != 2 {
		t.Fatalf("top after two pushes = %+v (ok=%v); want ClipScissor node 2", top, ok)
	}

	s.pop()
	top, ok = s.top()
	if !ok || top.kind != ClipStencil || top.node != 1 {
		t.Fatalf("top after pop = %+v (ok=%v); want ClipStencil node 1", top, ok)
	}
}

func TestClipStackActiveScissorNearestWins(t *testing.T) {
	s := newClipStack()
	s.push(clipFrame{kind: ClipScissor, node: 1, scissor: gpu.ScissorRect{MaxX: 100, MaxY: 100}})
	s.push(clipFrame{kind: ClipNone, node: 2})
	s.push(clipFrame{kind: ClipScissor, node: 3, scissor: gpu.ScissorRect{MaxX: 10, MaxY: 10}})

	rect, ok := s.activeScissor()
	if !ok {
		t.Fatal("activeScissor() ok = false; want true")
	}
	if rect.MaxX != 10 || rect.MaxY != 10 {
		t.Fatalf("activeScissor() = %+v; want the nearest (innermost) scissor rect", rect)
	}
}

func TestClipStackActiveScissorBlockedByStencilAncestor(t *testing.T) {
	s := newClipStack()
	s.push(clipFrame{kind: ClipScissor, node: 1, scissor: gpu.ScissorRect{MaxX: 100, MaxY: 100}})
	s.push(clipFrame{kind: ClipStencil, node: 2})

	_, ok := s.activeScissor()
	if ok {
		t.Fatal("activeScissor() ok = true; a stencil ancestor must block inheriting an outer scissor rect")
	}
}

func TestClipStackActiveScissorNoneWhenNoAncestor(t *testing.T) {
	s := newClipStack()
	_, ok := s.activeScissor()
	if ok {
		t.Fatal("activeScissor() ok = true on an empty stack; want false")
	}
}

func TestClipStackActiveStencilRefNearestStencilFrame(t *testing.T) {
	s := newClipStack()
	s.push(clipFrame{kind: ClipStencil, node: 1, stencilRef: 1})
	s.push(clipFrame{kind: ClipScissor, node: 2, stencilRef: 1, scissor: gpu.ScissorRect{MaxX: 10, MaxY: 10}})
	s.push(clipFrame{kind: ClipNone, node: 3, stencilRef: 1})

	if got := s.activeStencilRef(); got != 1 {
		t.Fatalf("activeStencilRef() = %d; want 1 (inherited through scissor/non-clipping frames above the stencil ancestor)", got)
	}
}

func TestClipStackActiveStencilRefDeeperStencilFrameWins(t *testing.T) {
	s := newClipStack()
	s.push(clipFrame{kind: ClipStencil, node: 1, stencilRef: 1})
	s.push(clipFrame{kind: ClipStencil, node: 2, stencilRef: 2})
	s.push(clipFrame{kind: ClipScissor, node: 3, stencilRef: 2, scissor: gpu.ScissorRect{MaxX: 10, MaxY: 10}})

	if got := s.activeStencilRef(); got != 2 {
		t.Fatalf("activeStencilRef() = %d; want 2 (the nearest ClipStencil frame, not the outermost)", got)
	}
}

func TestClipStackActiveStencilRefZeroOnEmptyOrNoStencilAncestor(t *testing.T) {
	s := newClipStack()
	if got := s.activeStencilRef(); got != 0 {
		t.Fatalf("activeStencilRef() on empty stack = %d; want 0", got)
	}

	s.push(clipFrame{kind: ClipScissor, node: 1, scissor: gpu.ScissorRect{MaxX: 10, MaxY: 10}})
	s.push(clipFrame{kind: ClipNone, node: 2})
	if got := s.activeStencilRef(); got != 0 {
		t.Fatalf("activeStencilRef() with no ClipStencil ancestor = %d; want 0", got)
	}
}

func TestClipStackResetClearsFrames(t *testing.T) {
	s := newClipStack()
	s.push(clipFrame{kind: ClipStencil, node: 1})
	s.reset()
	if len(s.frames) != 0 {
		t.Fatalf("len(frames) after reset = %d; want 0", len(s.frames))
	}
}
