package drawtree

import (
	"fmt"

	"github.com/gogpu/stagegraph"
	"github.com/gogpu/stagegraph/effect"
	"github.com/gogpu/stagegraph/tessellate"
	"github.com/gogpu/stagegraph/texture"
)

// AddShape inserts shape as a new node, owning it inline. clipToParent
// names the node the new shape clips against; NoNode attaches it as a
// child of the current root (or makes it the root, if the tree is
// empty). tessellationKey, if non-nil, is the key this shape's geometry
// should be memoized under in the renderer's LRU tessellation cache —
// a later AddShape with the same key skips retessellation.
func (t *Tree) AddShape(shape stagegraph.Shape, clipToParent NodeID, tessellationKey *tessellate.CacheKey) NodeID {
	n := t.newNode()
	n.command.kind = commandInline
	n.command.shape = shape
	if tessellationKey != nil {
		n.command.tessellationKey = *tessellationKey
		n.command.hasTessellationKey = true
	}
	t.link(clipToParent, n.ID)
	return n.ID
}

// LoadShape eagerly tessellates shape and stores the result in the
// tree's ShapeCache under cacheKey, for later reuse through
// AddCachedShape. If tessellationCacheKey is non-nil, the same geometry
// is also memoized in the shared LRU tessellation cache under that key,
// so a subsequent AddShape for an identical shape can reuse it too.
// Overwrites any existing ShapeCache entry at cacheKey.
func (t *Tree) LoadShape(tessCache *tessellate.Cache, shape stagegraph.Shape, cacheKey tessellate.CacheKey, tessellationCacheKey *tessellate.CacheKey, fringeWidth float64) {
	geom := tessellate.Tessellate(shape, fringeWidth)
	cached := tessellate.CachedShape{Key: cacheKey, Geometry: geom}
	t.ShapeCache[cacheKey] = cached
	if tessellationCacheKey != nil && tessCache != nil {
		tessCache.Store(*tessellationCacheKey, geom)
	}
}

// AddCachedShape inserts a node that resolves to the ShapeCache entry at
// cacheKey during prepare, rather than owning a Shape of its own. A
// cacheKey with no matching LoadShape call is a stale reference: prepare
// logs and skips the node rather than failing the frame.
func (t *Tree) AddCachedShape(cacheKey tessellate.CacheKey, clipToParent NodeID) NodeID {
	n := t.newNode()
	n.command.kind = commandCached
	n.command.shapeCacheKey = cacheKey
	t.link(clipToParent, n.ID)
	return n.ID
}

// SetShapeTransform sets a node's per-instance transform. A no-op if id
// does not exist.
func (t *Tree) SetShapeTransform(id NodeID, transform stagegraph.Transform) {
	n := t.Node(id)
	if n == nil {
		return
	}
	n.transform = transform
	n.hasTransform = true
}

// SetShapeColor sets or clears a node's color override. A nil color
// clears the override, reverting to the geometry's own color. A no-op
// if id does not exist.
func (t *Tree) SetShapeColor(id NodeID, color *stagegraph.Color) {
	n := t.Node(id)
	if n == nil {
		return
	}
	if color == nil {
		n.hasColor = false
		n.colorOverride = [4]float32{}
		return
	}
	n.colorOverride = color.Normalize()
	n.hasColor = true
}

// SetShapeTexture sets or clears a node's background (layer 0) texture.
// Equivalent to SetShapeTextureOn(id, LayerBackground, textureID).
func (t *Tree) SetShapeTexture(id NodeID, textureID *texture.ID) {
	t.SetShapeTextureOn(id, LayerBackground, textureID)
}

// SetShapeTextureOn sets or clears the texture bound to one of a node's
// two layers. A nil textureID clears the layer, falling back to the
// default transparent texture. A no-op if id does not exist; out-of-
// range layers are also a no-op.
func (t *Tree) SetShapeTextureOn(id NodeID, layer TextureLayer, textureID *texture.ID) {
	if layer < 0 || layer >= numTextureLayers {
		return
	}
	n := t.Node(id)
	if n == nil {
		return
	}
	if textureID == nil {
		n.textures[layer] = 0
		return
	}
	n.textures[layer] = *textureID
}

// SetShapeNonClipping opts a node out of (or back into) the default rule
// that every interior node clips its children. A no-op if id does not
// exist.
func (t *Tree) SetShapeNonClipping(id NodeID, nonClipping bool) {
	n := t.Node(id)
	if n == nil {
		return
	}
	n.NonClippingHint = nonClipping
}

// SetGroupEffect attaches a group effect to a node, replacing any effect
// previously attached there. Returns NodeNotFoundError if id does not
// exist, or EffectNotLoadedError if effectID is not registered.
func (t *Tree) SetGroupEffect(registry *effect.Registry, id NodeID, effectID effect.ID, params []byte) error {
	return t.setEffect(t.GroupEffects, registry, id, effectID, params)
}

// SetBackdropEffect attaches a backdrop effect to a node, replacing any
// effect previously attached there. Returns NodeNotFoundError if id does
// not exist, or EffectNotLoadedError if effectID is not registered.
func (t *Tree) SetBackdropEffect(registry *effect.Registry, id NodeID, effectID effect.ID, params []byte) error {
	return t.setEffect(t.BackdropEffects, registry, id, effectID, params)
}

func (t *Tree) setEffect(table map[NodeID]*effect.Instance, registry *effect.Registry, id NodeID, effectID effect.ID, params []byte) error {
	if !t.Exists(id) {
		return &stagegraph.NodeNotFoundError{NodeID: uint32(id)}
	}
	if err := validateEffectParams(registry, effectID, params); err != nil {
		return err
	}
	table[id] = effect.NewInstance(effectID, params)
	return nil
}

// validateEffectParams checks effectID is loaded and that params match
// its declared expectation: a chain with a @group(1) uniform needs
// non-empty params, one without must not receive any.
func validateEffectParams(registry *effect.Registry, effectID effect.ID, params []byte) error {
	loaded, ok := registry.Get(effectID)
	if !ok {
		return &stagegraph.EffectNotLoadedError{EffectID: uint64(effectID)}
	}
	if loaded.HasParamsLayout && len(params) == 0 {
		return &stagegraph.InvalidEffectParamsError{
			Msg: fmt.Sprintf("effect %d declares @group(1) uniforms but received no params", effectID),
		}
	}
	if !loaded.HasParamsLayout && len(params) > 0 {
		return &stagegraph.InvalidEffectParamsError{
			Msg: fmt.Sprintf("effect %d declares no @group(1) uniforms but received %d param bytes", effectID, len(params)),
		}
	}
	return nil
}

// UpdateGroupEffectParams replaces the parameter bytes of a node's
// already-attached group effect. Returns NodeNotFoundError if id has no
// group effect attached.
func (t *Tree) UpdateGroupEffectParams(registry *effect.Registry, id NodeID, params []byte) error {
	return updateEffectParams(t.GroupEffects, registry, id, params)
}

// UpdateBackdropEffectParams replaces the parameter bytes of a node's
// already-attached backdrop effect. Returns NodeNotFoundError if id has
// no backdrop effect attached.
func (t *Tree) UpdateBackdropEffectParams(registry *effect.Registry, id NodeID, params []byte) error {
	return updateEffectParams(t.BackdropEffects, registry, id, params)
}

func updateEffectParams(table map[NodeID]*effect.Instance, registry *effect.Registry, id NodeID, params []byte) error {
	in, ok := table[id]
	if !ok {
		return &stagegraph.NodeNotFoundError{NodeID: uint32(id)}
	}
	if err := validateEffectParams(registry, in.EffectID, params); err != nil {
		return err
	}
	in.UpdateParams(params)
	return nil
}

// ClearDrawQueue resets the tree to empty: every node, both effect maps,
// and the shape cache are dropped and node ids restart from 1.
func (t *Tree) ClearDrawQueue() { t.Clear() }
