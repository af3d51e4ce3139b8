package tessellate

import (
	"testing"

	"github.com/gogpu/stagegraph"
)

func TestCacheStoreAndGet(t *testing.T) {
	c := NewCache(4)
	r := stagegraph.NewRect(stagegraph.Pt(0, 0), stagegraph.Pt(10, 10), stagegraph.RGB(255, 0, 0))
	geom := Tessellate(r, 0)

	c.Store(9999, geom)
	got, ok := c.Get(9999)
	if !ok {
		t.Fatal("Get(9999) = false after Store")
	}
	if got.Key != 9999 {
		t.Fatalf("got.Key = %v; want 9999", got.Key)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d; want 1", c.Len())
	}
}

func TestCacheSharesGeometryByReference(t *testing.T) {
	c := NewCache(4)
	r := stagegraph.NewRect(stagegraph.Pt(0, 0), stagegraph.Pt(10, 10), stagegraph.RGB(0, 255, 0))
	geom := Tessellate(r, 0)
	c.Store(1, geom)

	first, _ := c.Get(1)
	second, _ := c.Get(1)
	if &first.Geometry.Vertices[0] != &second.Geometry.Vertices[0] {
		t.Fatal("Get returned distinct backing arrays; cached geometry must be shared by reference")
	}
}

func TestCacheDefaultCapacity(t *testing.T) {
	c := NewCache(0)
	if c.Capacity() != DefaultCacheCapacity {
		t.Fatalf("Capacity() = %d; want default %d", c.Capacity(), DefaultCacheCapacity)
	}
}

func TestCacheEvictsLRUUnderBoundedCapacity(t *testing.T) {
	c := NewCache(2)
	r := stagegraph.NewRect(stagegraph.Pt(0, 0), stagegraph.Pt(1, 1), stagegraph.RGB(1, 1, 1))
	geom := Tessellate(r, 0)

	c.Store(1, geom)
	c.Store(2, geom)
	c.Store(3, geom) // evicts key 1

	if _, ok := c.Get(1); ok {
		t.Fatal("key 1 survived eviction at capacity 2")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", c.Len())
	}
}
