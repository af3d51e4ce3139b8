package tessellate

import (
	"github.com/gogpu/stagegraph/internal/cache"
)

// DefaultCacheCapacity is the tessellation cache's fixed LRU capacity.
const DefaultCacheCapacity = 256

// CacheKey identifies a memoized tessellation result. The draw tree and
// the cache share this key space; a DrawCommand.Cached node stores one
// and resolves it to a CachedShape during prepare.
type CacheKey uint64

// CachedShape is a tessellated Geometry plus the key it was stored under.
// Geometry is shared by reference: Cache.Get and Cache.Set never deep
// copy it, so every node referencing the same key sees the same backing
// arrays.
type CachedShape struct {
	Key      CacheKey
	Geometry Geometry
}

// Cache is the process-wide cache_key -> CachedShape mapping, a
// fixed-capacity LRU so a long-running client that churns through
// many distinct cache keys cannot grow it without bound. Eviction never
// invalidates a CachedShape already resolved onto a node within the
// current frame, because resolution copies the CachedShape value (a
// small struct whose Geometry field is itself a reference) out of the
// cache at prepare time rather than holding a pointer back into it.
type Cache struct {
	lru *cache.Cache[CacheKey, CachedShape]
}

// NewCache creates a tessellation cache with the given capacity. A
// capacity of 0 requests DefaultCacheCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{lru: cache.New[CacheKey, CachedShape](capacity)}
}

// Get returns the cached shape for key, if present.
func (c *Cache) Get(key CacheKey) (CachedShape, bool) {
	return c.lru.Get(key)
}

// Store records geometry (already tessellated by the caller via
// Tessellate) under key, replacing any prior entry. Used by LoadShape
// (for its tessellation key) and by the aggregator for inline shapes
// carrying a tessellation key: a later AddShape with the same key reuses
// the result without retessellation. AddCachedShape nodes do not read
// this cache; they resolve through the draw tree's ShapeCache.
func (c *Cache) Store(key CacheKey, geom Geometry) CachedShape {
	shape := CachedShape{Key: key, Geometry: geom}
	c.lru.Set(key, shape)
	return shape
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int { return c.lru.Len() }

// Capacity returns the cache's fixed capacity.
func (c *Cache) Capacity() int { return c.lru.Capacity() }

// Delete removes a cache entry, e.g. when a client knows a cache key will
// never be referenced again.
func (c *Cache) Delete(key CacheKey) bool { return c.lru.Delete(key) }

// Clear empties the cache. Renderer.ClearDrawQueue does not call it, so
// tessellated geometry survives a draw-queue reset.
func (c *Cache) Clear() { c.lru.Clear() }
