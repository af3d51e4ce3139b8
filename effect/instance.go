package effect

import "github.com/gogpu/stagegraph/internal/gpu"

// Instance is a node's attachment of a loaded effect: the effect id (a
// lookup key, never an owning reference), the raw user-parameter bytes
// the client supplied, and a lazily-built GPU uniform buffer + bind
// group. Two of these live per node at most: one in a Tree's
// group-effects map, one in its backdrop-effects map.
type Instance struct {
	EffectID ID
	Params   []byte

	buf       *gpu.Buffer
	bindGroup any // hal.BindGroup; kept as any to avoid a build-tag import here
	dirty     bool
}

// NewInstance creates an effect instance with the given params, marked
// dirty so its uniform buffer is (re)built on first use.
func NewInstance(id ID, params []byte) *Instance {
	return &Instance{EffectID: id, Params: append([]byte(nil), params...), dirty: true}
}

// UpdateParams replaces the instance's parameter bytes and marks the
// uniform buffer dirty so it is rebuilt before the next use.
func (in *Instance) UpdateParams(params []byte) {
	in.Params = append([]byte(nil), params...)
	in.dirty = true
}

// Dirty reports whether the GPU-side uniform buffer needs to be rebuilt
// from Params before this instance's next use.
func (in *Instance) Dirty() bool { return in.dirty }

// SetBuffer records the instance's built uniform buffer and bind group,
// clearing the dirty flag. Called by the effect runner's ensureParams
// (render/effectpass.go) once it has uploaded Params.
func (in *Instance) SetBuffer(buf *gpu.Buffer, bindGroup any) {
	in.buf = buf
	in.bindGroup = bindGroup
	in.dirty = false
}

// Buffer returns the instance's lazily-built uniform buffer, or nil if it
// has never been built.
func (in *Instance) Buffer() *gpu.Buffer { return in.buf }

// BindGroup returns the instance's lazily-built bind group, or nil.
func (in *Instance) BindGroup() any { return in.bindGroup }

// Release destroys the instance's uniform buffer, if one was built, and
// forgets its bind group. The bind group itself needs a device to
// destroy, which Instance deliberately does not hold; the caller (the
// renderer, or the effect runner's params rebuild) destroys it first and
// then calls Release.
func (in *Instance) Release() {
	if in.buf != nil {
		in.buf.Destroy()
		in.buf = nil
	}
	in.bindGroup = nil
	in.dirty = true
}
