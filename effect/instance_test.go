package effect

import (
	"bytes"
	"testing"
)

func TestNewInstanceCopiesParams(t *testing.T) {
	params := []byte{1, 2, 3}
	in := NewInstance(1, params)
	params[0] = 99 // mutate caller's slice after construction

	if bytes.Equal(in.Params, params) {
		t.Fatal("Instance.Params aliases the caller's slice; it should be an independent copy")
	}
	if !in.Dirty() {
		t.Fatal("a freshly constructed instance must start dirty")
	}
}

func TestUpdateParamsMarksDirty(t *testing.T) {
	in := NewInstance(1, []byte{1})
	in.SetBuffer(nil, "fake-bind-group")
	if in.Dirty() {
		t.Fatal("Dirty() = true immediately after SetBuffer")
	}

	in.UpdateParams([]byte{2})
	if !in.Dirty() {
		t.Fatal("UpdateParams did not mark the instance dirty")
	}
}

func TestReleaseClearsResources(t *testing.T) {
	in := NewInstance(1, nil)
	in.SetBuffer(nil, "fake-bind-group")
	in.Release()

	if in.BindGroup() != nil {
		t.Fatal("BindGroup() non-nil after Release")
	}
	if !in.Dirty() {
		t.Fatal("Release must leave the instance dirty so it rebuilds on next use")
	}
}
