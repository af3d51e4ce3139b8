package drawtree

import "testing"

// buildChain builds: root -> child -> grandchild, each a leaf rect, and
// returns their ids in that order.
func buildChain(t *testing.T) (*Tree, NodeID, NodeID, NodeID) {
	t.Helper()
	tr := New()
	root := tr.AddShape(rect(), NoNode, nil)
	child := tr.AddShape(rect(), root, nil)
	grandchild := tr.AddShape(rect(), child, nil)
	return tr, root, child, grandchild
}

func TestPlanBalancedPrePost(t *testing.T) {
	tr, root, child, grandchild := buildChain(t)
	scratch := NewTraversalScratch()
	Plan(tr, nil, NoNode, NoNode, scratch)

	events := scratch.Events()
	if len(events) != 6 {
		t.Fatalf("got %d events; want 6", len(events))
	}

	// Every Pre(n) must have exactly one later Post(n), with no
	// intervening Post for an ancestor still open.
	var open []NodeID
	for _, e := range events {
		switch e.Kind {
		case Pre:
			open = append(open, e.Node)
		case Post:
			n := len(open)
			if n == 0 || open[n-1] != e.Node {
				t.Fatalf("Post(%v) does not match top of open stack %v", e.Node, open)
			}
			open = open[:n-1]
		}
	}
	if len(open) != 0 {
		t.Fatalf("open stack not empty at end: %v", open)
	}
	_ = root
	_ = child
	_ = grandchild
}

func TestPlanStencilRefsIncreaseWithDepth(t *testing.T) {
	tr, root, child, grandchild := buildChain(t)
	scratch := NewTraversalScratch()
	Plan(tr, nil, NoNode, NoNode, scratch)

	rootRef, ok := scratch.StencilRef(root)
	if !ok || rootRef != 1 {
		t.Fatalf("root stencil ref = %v,%v; want 1,true", rootRef, ok)
	}
	childRef, ok := scratch.StencilRef(child)
	if !ok || childRef != 2 {
		t.Fatalf("child stencil ref = %v,%v; want 2,true", childRef, ok)
	}
	gcRef, ok := scratch.StencilRef(grandchild)
	if !ok || gcRef != 3 {
		t.Fatalf("grandchild stencil ref = %v,%v; want 3,true", gcRef, ok)
	}
}

func TestPlanExcludeSubtreeSkipsEntirely(t *testing.T) {
	tr, root, child, grandchild := buildChain(t)
	scratch := NewTraversalScratch()
	Plan(tr, nil, NoNode, child, scratch)

	for _, e := range scratch.Events() {
		if e.Node == child || e.Node == grandchild {
			t.Fatalf("excluded subtree node %v appeared in event stream", e.Node)
		}
	}
	foundRoot := false
	for _, e := range scratch.Events() {
		if e.Node == root {
			foundRoot = true
		}
	}
	if !foundRoot {
		t.Fatal("root missing from event stream when only a descendant was excluded")
	}
}

func TestPlanEffectResultSkipsDescendants(t *testing.T) {
	tr, root, child, grandchild := buildChain(t)
	scratch := NewTraversalScratch()
	results := map[NodeID]struct{}{child: {}}
	Plan(tr, results, NoNode, NoNode, scratch)

	seenChild, seenGrandchild := false, false
	for _, e := range scratch.Events() {
		if e.Node == child {
			seenChild = true
		}
		if e.Node == grandchild {
			seenGrandchild = true
		}
	}
	if !seenChild {
		t.Fatal("effect-result node must still get its own Pre/Post pair")
	}
	if seenGrandchild {
		t.Fatal("descendant of an effect-result node must be skipped")
	}
	_ = root
}

func TestPlanEmptyTreeProducesNoEvents(t *testing.T) {
	tr := New()
	scratch := NewTraversalScratch()
	Plan(tr, nil, NoNode, NoNode, scratch)
	if len(scratch.Events()) != 0 {
		t.Fatalf("got %d events for an empty tree; want 0", len(scratch.Events()))
	}
}

func TestPlanScratchReusedAcrossFrames(t *testing.T) {
	tr, _, _, _ := buildChain(t)
	scratch := NewTraversalScratch()
	Plan(tr, nil, NoNode, NoNode, scratch)
	firstLen := len(scratch.Events())

	// A second Plan call on the same tree must reset to the same shape,
	// not append onto the prior run's events.
	Plan(tr, nil, NoNode, NoNode, scratch)
	if len(scratch.Events()) != firstLen {
		t.Fatalf("second Plan produced %d events; want %d (scratch not reset)", len(scratch.Events()), firstLen)
	}
}
