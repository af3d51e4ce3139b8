package drawtree

import (
	"testing"

	"github.com/gogpu/stagegraph"
)

func rect() stagegraph.RectShape {
	return stagegraph.NewRect(stagegraph.Pt(0, 0), stagegraph.Pt(10, 10), stagegraph.RGB(255, 0, 0))
}

func TestAddShapeBecomesRoot(t *testing.T) {
	tr := New()
	id := tr.AddShape(rect(), NoNode, nil)
	if tr.Root() != id {
		t.Fatalf("Root() = %v; want first added node %v", tr.Root(), id)
	}
	if tr.Len() != 1 {
		t.Fatalf("Len() = %d; want 1", tr.Len())
	}
}

func TestAddShapeNilClipAttachesUnderRoot(t *testing.T) {
	tr := New()
	root := tr.AddShape(rect(), NoNode, nil)
	child := tr.AddShape(rect(), NoNode, nil)

	n := tr.Node(root)
	if len(n.Children) != 1 || n.Children[0] != child {
		t.Fatalf("root children = %v; want [%v]", n.Children, child)
	}
	if tr.Node(child).Parent != root {
		t.Fatalf("child parent = %v; want %v", tr.Node(child).Parent, root)
	}
}

func TestAddShapeExplicitClipParent(t *testing.T) {
	tr := New()
	root := tr.AddShape(rect(), NoNode, nil)
	_ = tr.AddShape(rect(), NoNode, nil) // a sibling under root
	grandchild := tr.AddShape(rect(), root, nil)

	if tr.Node(grandchild).Parent != root {
		t.Fatalf("grandchild parent = %v; want explicit clip target %v", tr.Node(grandchild).Parent, root)
	}
}

func TestNodeIDsAreDenseAndStable(t *testing.T) {
	tr := New()
	a := tr.AddShape(rect(), NoNode, nil)
	b := tr.AddShape(rect(), NoNode, nil)
	c := tr.AddShape(rect(), NoNode, nil)
	if a != 1 || b != 2 || c != 3 {
		t.Fatalf("ids = %v,%v,%v; want 1,2,3", a, b, c)
	}
}

func TestClearDrawQueueResetsIDs(t *testing.T) {
	tr := New()
	tr.AddShape(rect(), NoNode, nil)
	tr.AddShape(rect(), NoNode, nil)
	tr.ClearDrawQueue()

	if !tr.Empty() {
		t.Fatal("tree not empty after ClearDrawQueue")
	}
	if tr.Root() != NoNode {
		t.Fatalf("Root() = %v after clear; want NoNode", tr.Root())
	}

	id := tr.AddShape(rect(), NoNode, nil)
	if id != 1 {
		t.Fatalf("first id after clear = %v; want 1", id)
	}
}

func TestMutatorsOnMissingNodeAreNoOps(t *testing.T) {
	tr := New()
	root := tr.AddShape(rect(), NoNode, nil)
	missing := NodeID(999)

	// None of these should panic, and none should affect the live node.
	tr.SetShapeTransform(missing, stagegraph.Identity())
	tr.SetShapeColor(missing, nil)
	tr.SetShapeTextureOn(missing, LayerBackground, nil)
	tr.SetShapeNonClipping(missing, true)

	if tr.Exists(missing) {
		t.Fatal("Exists(missing) = true")
	}
	if tr.Node(root) == nil {
		t.Fatal("root node vanished after no-op mutators on a missing id")
	}
}

func TestSetGroupEffectNodeNotFound(t *testing.T) {
	tr := New()
	registry := newTestRegistry(t)
	effID := loadTestEffect(t, registry)

	err := tr.SetGroupEffect(registry, NodeID(42), effID, nil)
	if err == nil {
		t.Fatal("expected NodeNotFoundError for a missing node")
	}
	if _, ok := err.(*stagegraph.NodeNotFoundError); !ok {
		t.Fatalf("err = %T; want *stagegraph.NodeNotFoundError", err)
	}
}

func TestSetGroupEffectUnknownEffect(t *testing.T) {
	tr := New()
	registry := newTestRegistry(t)
	root := tr.AddShape(rect(), NoNode, nil)

	err := tr.SetGroupEffect(registry, root, 9999, nil)
	if err == nil {
		t.Fatal("expected EffectNotLoadedError for an unloaded effect id")
	}
	if _, ok := err.(*stagegraph.EffectNotLoadedError); !ok {
		t.Fatalf("err = %T; want *stagegraph.EffectNotLoadedError", err)
	}
}

func TestSetGroupEffectReplacesPrior(t *testing.T) {
	tr := New()
	registry := newTestRegistry(t)
	effID := loadTestParamsEffect(t, registry)
	root := tr.AddShape(rect(), NoNode, nil)

	if err := tr.SetGroupEffect(registry, root, effID, []byte{1}); err != nil {
		t.Fatalf("first SetGroupEffect: %v", err)
	}
	first := tr.GroupEffects[root]

	if err := tr.SetGroupEffect(registry, root, effID, []byte{2}); err != nil {
		t.Fatalf("second SetGroupEffect: %v", err)
	}
	second := tr.GroupEffects[root]

	if second == first {
		t.Fatal("SetGroupEffect did not replace the prior instance")
	}
	if len(tr.GroupEffects) != 1 {
		t.Fatalf("GroupEffects has %d entries; want 1", len(tr.GroupEffects))
	}
}

func TestSetGroupEffectParamsValidation(t *testing.T) {
	tr := New()
	registry := newTestRegistry(t)
	plain := loadTestEffect(t, registry)
	withParams := loadTestParamsEffect(t, registry)
	root := tr.AddShape(rect(), NoNode, nil)

	err := tr.SetGroupEffect(registry, root, plain, []byte{1, 2, 3, 4})
	if _, ok := err.(*stagegraph.InvalidEffectParamsError); !ok {
		t.Fatalf("params for a no-params effect: err = %T; want *stagegraph.InvalidEffectParamsError", err)
	}

	err = tr.SetGroupEffect(registry, root, withParams, nil)
	if _, ok := err.(*stagegraph.InvalidEffectParamsError); !ok {
		t.Fatalf("empty params for a params effect: err = %T; want *stagegraph.InvalidEffectParamsError", err)
	}

	if err := tr.SetGroupEffect(registry, root, withParams, []byte{0, 0, 128, 63}); err != nil {
		t.Fatalf("well-formed params rejected: %v", err)
	}
}

func TestUpdateGroupEffectParamsValidatesAndErrors(t *testing.T) {
	tr := New()
	registry := newTestRegistry(t)
	withParams := loadTestParamsEffect(t, registry)
	root := tr.AddShape(rect(), NoNode, nil)

	if err := tr.UpdateGroupEffectParams(registry, root, []byte{1}); err == nil {
		t.Fatal("UpdateGroupEffectParams before attach = nil error; want NodeNotFoundError")
	}
	if err := tr.SetGroupEffect(registry, root, withParams, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SetGroupEffect: %v", err)
	}
	if err := tr.UpdateGroupEffectParams(registry, root, nil); err == nil {
		t.Fatal("empty update params for a params effect = nil error; want InvalidEffectParamsError")
	}
	if err := tr.UpdateGroupEffectParams(registry, root, []byte{4, 3, 2, 1}); err != nil {
		t.Fatalf("well-formed update rejected: %v", err)
	}
}

func TestAddCachedShapeResolvesByKey(t *testing.T) {
	tr := New()
	cache := newTessCacheForTest()
	key := cacheKeyForTest(9999)
	tr.LoadShape(cache, rect(), key, nil, 1.0)

	id := tr.AddCachedShape(key, NoNode)
	node := tr.Node(id)
	if !node.IsCached() {
		t.Fatal("AddCachedShape node reports IsCached() = false")
	}
	if node.ShapeCacheKey() != key {
		t.Fatalf("ShapeCacheKey() = %v; want %v", node.ShapeCacheKey(), key)
	}
	cached, ok := tr.ShapeCache[key]
	if !ok || cached.Geometry.Empty() {
		t.Fatal("ShapeCache entry missing or empty after LoadShape")
	}
}

func TestWalkDepthFirstBalanced(t *testing.T) {
	tr := New()
	root := tr.AddShape(rect(), NoNode, nil)
	child := tr.AddShape(rect(), root, nil)
	_ = tr.AddShape(rect(), root, nil)

	var events []string
	tr.WalkDepthFirst(NoNode, func(id NodeID) {
		events = append(events, "pre")
		_ = id
	}, func(id NodeID) {
		events = append(events, "post")
		_ = id
	})

	if len(events) != 6 {
		t.Fatalf("got %d events; want 6 (3 nodes x pre+post)", len(events))
	}
	if events[0] != "pre" || events[len(events)-1] != "post" {
		t.Fatalf("events = %v; want to start pre, end post", events)
	}
	_ = child
}
