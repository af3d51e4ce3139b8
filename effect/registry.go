// Package effect holds loaded fragment-pass effects (group and backdrop)
// and the per-node instances that attach them, keyed by an effect id the
// draw tree never needs to dereference eagerly: a relation and a lookup,
// never ownership.
package effect

import (
	"fmt"
	"sync"

	"github.com/gogpu/naga"
)

// ID identifies a loaded effect. Ids are chosen by the client (Load
// stores under whatever id the caller passes, replacing any previous
// effect there). Unloading an effect removes it from the Registry; any
// Instance still referencing it becomes dangling and is skipped (logged)
// rather than causing an error.
type ID uint64

// vertexPreamble is prepended to every user fragment source: a fullscreen
// triangle vertex stage (vertex_index only, no vertex buffers) and the
// group(0) input-texture/sampler declaration every pass may read from.
const vertexPreamble = `
@group(0) @binding(0) var t_input: texture_2d<f32>;
@group(0) @binding(1) var s_input: sampler;

struct VertexOutput {
	@builtin(position) position: vec4<f32>,
	@location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) vertex_index: u32) -> VertexOutput {
	var out: VertexOutput;
	let x = f32((vertex_index << 1u) & 2u);
	let y = f32(vertex_index & 2u);
	out.uv = vec2<f32>(x, y);
	out.position = vec4<f32>(x * 2.0 - 1.0, 1.0 - y * 2.0, 0.0, 1.0);
	return out;
}
`

// Pass is one compiled fragment stage of a LoadedEffect.
type Pass struct {
	// Source is the full WGSL module (preamble + user fragment source)
	// handed to the driver for pipeline creation.
	Source string
	// UsesParams reports whether this pass's fragment entry point reads
	// the @group(1) user-parameter uniform buffer.
	UsesParams bool
}

// LoadedEffect is the global, effect-id-keyed compiled representation of
// an effect: an ordered list of fragment passes and whether the chain
// needs a @group(1) params bind group. It holds no GPU bind-group
// layouts itself; the group(0) input-texture layout and the group(1)
// params layout are built and owned by the renderer.
type LoadedEffect struct {
	ID    ID
	Passes []Pass

	// HasParamsLayout reports whether any pass uses @group(1) user
	// parameters; the draw tree uses it to require or reject params bytes
	// when an effect is attached. The effect runner binds a params buffer
	// per pass, for passes whose UsesParams is true.
	HasParamsLayout bool
}

// Registry is the process-wide effect_id -> LoadedEffect map. It is safe
// for concurrent use, matching the texture manager's single
// reader-writer lock discipline even though nothing in the core
// currently loads effects from multiple goroutines.
type Registry struct {
	mu      sync.RWMutex
	effects map[ID]*LoadedEffect
}

// NewRegistry creates an empty effect registry.
func NewRegistry() *Registry {
	return &Registry{effects: make(map[ID]*LoadedEffect)}
}

// CompilationError wraps a WGSL validation failure from naga, preserving
// the driver's diagnostic text.
type CompilationError struct {
	Msg string
	Err error
}

func (e *CompilationError) Error() string { return fmt.Sprintf("effect: compilation failed: %s", e.Msg) }
func (e *CompilationError) Unwrap() error { return e.Err }

// Load validates and registers an effect under the caller's id, built
// from one or more fragment-shader source strings (one per pass, applied
// in order), replacing any effect previously loaded at that id. Each
// source is wrapped with the standard vertex shader and input-binding
// preamble, then validated through naga's WGSL frontend before being
// accepted — callers get a real compilation diagnostic instead of a
// panic deep inside pipeline creation.
//
// A fragment source "uses params" if its text contains `params` anywhere
// (a substring match, so longer identifiers containing it count too); effects that mix params and non-params passes still share
// one HasParamsLayout flag for the whole chain when any pass does.
func (r *Registry) Load(id ID, fragmentSources ...string) error {
	if len(fragmentSources) == 0 {
		return &CompilationError{Msg: "at least one fragment source is required"}
	}

	passes := make([]Pass, 0, len(fragmentSources))
	hasParams := false
	for i, src := range fragmentSources {
		usesParams := referencesParams(src)
		full := vertexPreamble
		if usesParams {
			full += paramsPreamble
		}
		full += src

		if _, err := naga.Compile(full); err != nil {
			return &CompilationError{Msg: fmt.Sprintf("pass %d", i), Err: err}
		}

		passes = append(passes, Pass{Source: full, UsesParams: usesParams})
		hasParams = hasParams || usesParams
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects[id] = &LoadedEffect{ID: id, Passes: passes, HasParamsLayout: hasParams}
	return nil
}

// paramsPreamble declares the @group(1) user-parameter uniform buffer;
// only prepended to passes that reference it, so effects without
// parameters never need an empty bind group layout.
const paramsPreamble = `
struct EffectParams {
	data: vec4<f32>,
}
@group(1) @binding(0) var<uniform> params: EffectParams;
`

// referencesParams is a deliberately simple substring scan, good enough to
// decide whether a user fragment source needs the params bind group;
// a real implementation would use naga's module introspection, not
// available from this package's naga binding surface.
func referencesParams(src string) bool {
	for i := 0; i+6 <= len(src); i++ {
		if src[i:i+6] == "params" {
			return true
		}
	}
	return false
}

// Get returns the loaded effect for id, if present.
func (r *Registry) Get(id ID) (*LoadedEffect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.effects[id]
	return e, ok
}

// Unload removes an effect from the registry. Any EffectInstance still
// referencing id becomes dangling; the renderer skips it with a warn log
// rather than failing the frame.
func (r *Registry) Unload(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.effects, id)
}
