package texture

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	t.Cleanup(instance.Destroy)
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("noop backend enumerated zero adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(openDev.Device.Destroy)

	m, err := NewManager(openDev.Device, openDev.Queue)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestManagerUploadAndLookup(t *testing.T) {
	m := newTestManager(t)
	rgba := []byte{255, 0, 0, 255}
	if err := m.Upload(1, 1, 1, rgba); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	tex, ok := m.Lookup(1)
	if !ok {
		t.Fatal("Lookup(1) ok = false after Upload")
	}
	if tex == nil {
		t.Fatal("Lookup(1) returned a nil texture")
	}
}

func TestManagerLookupUnknownFallsBackToDefault(t *testing.T) {
	m := newTestManager(t)
	tex, ok := m.Lookup(42)
	if ok {
		t.Fatal("Lookup(unknown) ok = true; want false")
	}
	if tex == nil {
		t.Fatal("Lookup(unknown) returned nil; want the default fallback texture")
	}
}

func TestManagerLookupZeroIDIsFallback(t *testing.T) {
	m := newTestManager(t)
	_ = m.Upload(1, 1, 1, []byte{1, 2, 3, 4})

	tex, ok := m.Lookup(0)
	if ok {
		t.Fatal("Lookup(0) ok = true; the zero id must always mean unset")
	}
	if tex == nil {
		t.Fatal("Lookup(0) returned nil; want the default fallback")
	}
}

func TestManagerRemove(t *testing.T) {
	m := newTestManager(t)
	_ = m.Upload(1, 1, 1, []byte{1, 2, 3, 4})
	if m.Len() != 1 {
		t.Fatalf("Len() = %d; want 1", m.Len())
	}

	m.Remove(1)
	if m.Len() != 0 {
		t.Fatalf("Len() after Remove = %d; want 0", m.Len())
	}
	_, ok := m.Lookup(1)
	if ok {
		t.Fatal("Lookup(1) ok = true after Remove; want false (fallback)")
	}
}

func TestManagerUploadRegionUnknownIDErrors(t *testing.T) {
	m := newTestManager(t)
	if err := m.UploadRegion(99, 0, 0, 1, 1, []byte{1, 2, 3, 4}); err == nil {
		t.Fatal("UploadRegion on an id never uploaded = nil error; want an error")
	}
}

func TestManagerUploadReplacesExisting(t *testing.T) {
	m := newTestManager(t)
	_ = m.Upload(1, 1, 1, []byte{1, 0, 0, 255})
	_ = m.Upload(1, 1, 1, []byte{0, 1, 0, 255})
	if m.Len() != 1 {
		t.Fatalf("Len() after re-upload to same id = %d; want 1", m.Len())
	}
	if got := m.Stats().UsedBytes; got != 4 {
		t.Fatalf("UsedBytes after replacing a 1x1 texture = %d; want 4", got)
	}
}

func TestManagerBudgetEvictsLeastRecentlyUsed(t *testing.T) {
	m := newTestManager(t)
	var evicted []ID
	m.OnEvict(func(id ID) { evicted = append(evicted, id) })

	// minBudgetBytes floor is 16 MiB; a 1024x1024 RGBA8 texture is 4 MiB,
	// so the fifth upload pushes past the budget.
	m.SetBudget(1)
	pix := make([]byte, 1024*1024*4)
	for id := ID(1); id <= 4; id++ {
		if err := m.Upload(id, 1024, 1024, pix); err != nil {
			t.Fatalf("Upload(%d): %v", id, err)
		}
	}
	if got := m.Stats().Evictions; got != 0 {
		t.Fatalf("Evictions before exceeding budget = %d; want 0", got)
	}

	// Touch id 1 so id 2 is the least recently used when 5 arrives.
	if _, ok := m.Lookup(1); !ok {
		t.Fatal("Lookup(1) ok = false for a resident texture")
	}
	if err := m.Upload(5, 1024, 1024, pix); err != nil {
		t.Fatalf("Upload(5): %v", err)
	}

	if len(evicted) != 1 || evicted[0] != 2 {
		t.Fatalf("evicted ids = %v; want [2] (least recently used)", evicted)
	}
	if _, ok := m.Lookup(2); ok {
		t.Fatal("Lookup(2) ok = true after eviction; want fallback")
	}
	if _, ok := m.Lookup(1); !ok {
		t.Fatal("Lookup(1) ok = false; the touched texture must survive")
	}
	if got := m.Stats().Evictions; got != 1 {
		t.Fatalf("Stats().Evictions = %d; want 1", got)
	}
}

func TestManagerUploadLargerThanBudgetErrors(t *testing.T) {
	m := newTestManager(t)
	m.SetBudget(1) // clamps to the 16 MiB floor
	pix := make([]byte, 4096*4096*4)
	if err := m.Upload(1, 4096, 4096, pix); err == nil {
		t.Fatal("Upload of a texture larger than the whole budget = nil error; want an error")
	}
	if m.Len() != 0 {
		t.Fatalf("Len() after rejected upload = %d; want 0", m.Len())
	}
}
