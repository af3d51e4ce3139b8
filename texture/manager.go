// Package texture owns the u64-keyed map of GPU textures a draw tree's
// nodes reference by id. It is the one piece of renderer state shared
// (reference-counted) with the client so textures can be uploaded
// outside render, protected by a single lock since the renderer itself
// is single-threaded and does not need finer-grained locking.
//
// The manager also enforces a byte budget over the textures it holds:
// each Upload accounts the new texture's size, Lookup and UploadRegion
// refresh an id's recency, and when the budget is exceeded the
// least-recently-used ids are evicted (closed and forgotten, so later
// lookups fall back to the default transparent texture).
package texture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stagegraph"
	"github.com/gogpu/stagegraph/internal/gpu"
)

// ID identifies a texture uploaded through a Manager. The zero ID never
// refers to a real texture; node texture-layer fields use it as "unset".
type ID uint64

// DefaultBudgetBytes is the manager's default texture memory budget.
const DefaultBudgetBytes = 256 << 20

// minBudgetBytes is the floor SetBudget clamps to, so a typo'd budget
// can't evict everything on the next upload.
const minBudgetBytes = 16 << 20

// Manager errors.
var (
	// ErrTextureNotFound is returned by UploadRegion for an id that has
	// never been uploaded (or has been removed or evicted).
	ErrTextureNotFound = errors.New("texture: id not found")

	// ErrTextureOverBudget is returned when a single texture alone would
	// exceed the manager's whole budget; evicting everything else still
	// couldn't make it fit.
	ErrTextureOverBudget = errors.New("texture: texture larger than memory budget")
)

// entry is one resident texture threaded into the manager's intrusive
// recency list (head most recently used, tail least).
type entry struct {
	id    ID
	tex   *gpu.GPUTexture
	bytes uint64
	prev  *entry
	next  *entry
}

// Stats reports the manager's current memory accounting.
type Stats struct {
	// UsedBytes is the total size of all resident textures.
	UsedBytes uint64
	// BudgetBytes is the eviction threshold.
	BudgetBytes uint64
	// Textures is the resident texture count (excluding the fallback).
	Textures int
	// Evictions counts textures evicted over the manager's lifetime.
	Evictions uint64
}

// Manager owns GPU textures keyed by ID. Lookups for an ID not present
// fall back to a default 1x1 transparent texture rather than erroring.
type Manager struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	entries    map[ID]*entry
	head, tail *entry

	budgetBytes uint64
	usedBytes   uint64
	evictions   uint64

	// onEvict, if set, is called (outside the lock) with each id the
	// budget sweep closes, so the renderer can drop the bind group it
	// cached for that id.
	onEvict func(ID)

	fallback *gpu.GPUTexture
}

// NewManager creates an empty texture manager allocating against
// device/queue, with the default budget. The fallback texture lives
// outside the budget so eviction can never reclaim it.
func NewManager(device hal.Device, queue hal.Queue) (*Manager, error) {
	fallback, err := gpu.CreateTextureFromPixels(device, queue, 1, 1, []byte{0, 0, 0, 0}, "stagegraph_default_fallback")
	if err != nil {
		return nil, err
	}
	return &Manager{
		device:      device,
		queue:       queue,
		entries:     make(map[ID]*entry),
		budgetBytes: DefaultBudgetBytes,
		fallback:    fallback,
	}, nil
}

// OnEvict registers a callback invoked with each id the budget sweep
// evicts. Set once, before the manager is shared.
func (m *Manager) OnEvict(fn func(ID)) {
	m.mu.Lock()
	m.onEvict = fn
	m.mu.Unlock()
}

// Upload creates (or replaces) the texture at id from RGBA8 pixel data.
// Safe to call outside render, since the manager is shared and locked
// independently of the renderer's own frame state. Exceeding the budget
// evicts least-recently-used ids to make room.
func (m *Manager) Upload(id ID, width, height int, rgba8 []byte) error {
	if rgba8 == nil {
		return gpu.ErrNilPixelData
	}
	tex, err := gpu.CreateTexture(m.device, m.queue, gpu.TextureConfig{
		Width: width, Height: height,
		Format: gpu.TextureFormatRGBA8,
		Label:  fmt.Sprintf("stagegraph_texture_%d", id),
	})
	if err != nil {
		return err
	}
	m.mu.RLock()
	budget := m.budgetBytes
	m.mu.RUnlock()
	if tex.SizeBytes() > budget {
		tex.Close()
		return fmt.Errorf("%w: %d bytes, budget %d", ErrTextureOverBudget, tex.SizeBytes(), budget)
	}
	if err := tex.Upload(rgba8); err != nil {
		tex.Close()
		return err
	}

	m.mu.Lock()
	var replaced *entry
	if old := m.entries[id]; old != nil {
		m.unlink(old)
		delete(m.entries, id)
		m.usedBytes -= old.bytes
		replaced = old
	}
	e := &entry{id: id, tex: tex, bytes: tex.SizeBytes()}
	m.pushFront(e)
	m.entries[id] = e
	m.usedBytes += e.bytes
	evicted := m.evictOverBudgetLocked(e)
	m.mu.Unlock()

	if replaced != nil {
		replaced.tex.Close()
	}
	m.closeEvicted(evicted)
	return nil
}

// UploadRegion updates a sub-rectangle of an existing texture and
// refreshes its recency. Returns ErrTextureNotFound if id has never been
// uploaded (or was removed or evicted).
func (m *Manager) UploadRegion(id ID, x, y, w, h int, rgba8 []byte) error {
	m.mu.Lock()
	e := m.entries[id]
	if e != nil {
		m.touchLocked(e)
	}
	m.mu.Unlock()
	if e == nil {
		return ErrTextureNotFound
	}
	return e.tex.UploadRegion(x, y, w, h, rgba8)
}

// Lookup returns the texture for id, refreshing its recency, or the
// default transparent fallback (and false) if id is unset or unknown.
func (m *Manager) Lookup(id ID) (*gpu.GPUTexture, bool) {
	if id == 0 {
		return m.fallback, false
	}
	m.mu.Lock()
	e := m.entries[id]
	if e != nil {
		m.touchLocked(e)
	}
	m.mu.Unlock()
	if e == nil {
		return m.fallback, false
	}
	return e.tex, true
}

// Remove releases and forgets the texture at id. A no-op if id is
// unknown.
func (m *Manager) Remove(id ID) {
	m.mu.Lock()
	e := m.entries[id]
	if e != nil {
		m.unlink(e)
		delete(m.entries, id)
		m.usedBytes -= e.bytes
	}
	m.mu.Unlock()
	if e != nil {
		e.tex.Close()
	}
}

// Len returns the number of textures currently registered (excluding the
// default fallback).
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// SetBudget changes the byte budget (clamped to a small floor) and
// evicts immediately if the resident set no longer fits.
func (m *Manager) SetBudget(bytes uint64) {
	if bytes < minBudgetBytes {
		bytes = minBudgetBytes
	}
	m.mu.Lock()
	m.budgetBytes = bytes
	evicted := m.evictOverBudgetLocked(nil)
	m.mu.Unlock()
	m.closeEvicted(evicted)
}

// Stats returns the manager's current memory accounting.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		UsedBytes:   m.usedBytes,
		BudgetBytes: m.budgetBytes,
		Textures:    len(m.entries),
		Evictions:   m.evictions,
	}
}

// Close releases every texture, including the default fallback.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[ID]*entry)
	m.head, m.tail = nil, nil
	m.usedBytes = 0
	fallback := m.fallback
	m.fallback = nil
	m.mu.Unlock()

	for _, e := range entries {
		e.tex.Close()
	}
	if fallback != nil {
		fallback.Close()
	}
}

// evictOverBudgetLocked pops least-recently-used entries until the
// resident set fits the budget again, never evicting keep (the entry the
// current operation just inserted). Caller must hold m.mu; the returned
// entries' textures are still open, closed by closeEvicted outside the
// lock.
func (m *Manager) evictOverBudgetLocked(keep *entry) []*entry {
	var evicted []*entry
	for m.usedBytes > m.budgetBytes && m.tail != nil {
		victim := m.tail
		if victim == keep {
			break
		}
		m.unlink(victim)
		delete(m.entries, victim.id)
		m.usedBytes -= victim.bytes
		m.evictions++
		evicted = append(evicted, victim)
	}
	return evicted
}

// closeEvicted closes evicted textures and notifies the eviction hook,
// outside the manager lock.
func (m *Manager) closeEvicted(evicted []*entry) {
	for _, e := range evicted {
		stagegraph.Logger().Warn("stagegraph: texture evicted over memory budget",
			"texture", uint64(e.id), "bytes", e.bytes)
		e.tex.Close()
		if m.onEvict != nil {
			m.onEvict(e.id)
		}
	}
}

func (m *Manager) pushFront(e *entry) {
	e.prev = nil
	e.next = m.head
	if m.head != nil {
		m.head.prev = e
	}
	m.head = e
	if m.tail == nil {
		m.tail = e
	}
}

func (m *Manager) touchLocked(e *entry) {
	if e == m.head {
		return
	}
	m.unlink(e)
	m.pushFront(e)
}

func (m *Manager) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		m.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		m.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}
