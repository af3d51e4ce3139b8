// Package cache provides a fixed-capacity LRU cache, the building block
// behind the tessellated-geometry cache.
//
//	c := cache.New[uint64, *Geometry](256)
//	c.Set(key, geom)
//	geom, ok := c.Get(key)
//
// Eviction removes exactly one entry — the least recently used — whenever
// an insert would exceed capacity. Cache is safe for concurrent use and
// must not be copied after creation (it holds a mutex).
package cache
