package cache

import "testing"

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](10)
	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("Get(missing) = true; want false")
	}
}

func TestCacheStrictEviction(t *testing.T) {
	c := New[int, int](2)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(3, 3) // evicts 1, the least recently used

	if _, ok := c.Get(1); ok {
		t.Fatal("key 1 survived eviction; want it gone")
	}
	if v, ok := c.Get(2); !ok || v != 2 {
		t.Fatalf("key 2 missing after eviction of key 1")
	}
	if v, ok := c.Get(3); !ok || v != 3 {
		t.Fatalf("key 3 missing right after insert")
	}
	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d; want 2", got)
	}
}

func TestCacheGetRefreshesRecency(t *testing.T) {
	c := New[int, int](2)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Get(1)     // touch 1, making 2 the least recently used
	c.Set(3, 3) // should evict 2, not 1

	if _, ok := c.Get(2); ok {
		t.Fatal("key 2 survived eviction; want it gone")
	}
	if _, ok := c.Get(1); !ok {
		t.Fatal("key 1 was evicted despite being touched more recently")
	}
}

// TestCacheSharesReference confirms a cached pointer value is the same
// allocation on every hit, never a copy — callers rely on this to avoid
// re-uploading tessellated geometry that is already resident.
func TestCacheSharesReference(t *testing.T) {
	type geometry struct{ n int }

	c := New[uint64, *geometry](4)
	g := &geometry{n: 7}
	c.Set(1, g)

	got1, ok := c.Get(1)
	if !ok {
		t.Fatal("Get(1) = false; want true")
	}
	got2, ok := c.Get(1)
	if !ok {
		t.Fatal("Get(1) = false; want true")
	}
	if got1 != got2 || got1 != g {
		t.Fatal("Get returned distinct allocations; want the same pointer every time")
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[string, int](4)
	calls := 0
	create := func() int {
		calls++
		return 42
	}

	v1 := c.GetOrCreate("a", create)
	v2 := c.GetOrCreate("a", create)

	if v1 != 42 || v2 != 42 {
		t.Fatalf("GetOrCreate returned %d, %d; want 42, 42", v1, v2)
	}
	if calls != 1 {
		t.Fatalf("create called %d times; want 1", calls)
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New[int, int](4)
	c.Set(1, 1)
	c.Set(2, 2)

	if !c.Delete(1) {
		t.Fatal("Delete(1) = false; want true")
	}
	if c.Delete(1) {
		t.Fatal("second Delete(1) = true; want false")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len() after Clear = %d; want 0", c.Len())
	}
}
