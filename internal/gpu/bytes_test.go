package gpu

import (
	"encoding/binary"
	"testing"
)

func TestStructSliceToBytesEmpty(t *testing.T) {
	if got := StructSliceToBytes[SwizzleParams](nil); got != nil {
		t.Errorf("StructSliceToBytes(nil) = %v, want nil", got)
	}
}

func TestStructSliceToBytesLayout(t *testing.T) {
	params := []SwizzleParams{{Width: 800, Height: 600, SrcStrideWords: 210}}
	b := StructSliceToBytes(params)
	if len(b) != 16 {
		t.Fatalf("len(b) = %d, want 16 (4 uint32 fields)", len(b))
	}
	if got := binary.LittleEndian.Uint32(b[0:4]); got != 800 {
		t.Errorf("Width field = %d, want 800", got)
	}
	if got := binary.LittleEndian.Uint32(b[4:8]); got != 600 {
		t.Errorf("Height field = %d, want 600", got)
	}
	if got := binary.LittleEndian.Uint32(b[8:12]); got != 210 {
		t.Errorf("SrcStrideWords field = %d, want 210", got)
	}
}

func TestStructSliceToBytesMultipleElements(t *testing.T) {
	params := []SwizzleParams{
		{Width: 1, Height: 2, SrcStrideWords: 3},
		{Width: 4, Height: 5, SrcStrideWords: 6},
	}
	b := StructSliceToBytes(params)
	if len(b) != 32 {
		t.Fatalf("len(b) = %d, want 32 (2 structs x 16 bytes)", len(b))
	}
	if got := binary.LittleEndian.Uint32(b[16:20]); got != 4 {
		t.Errorf("second element Width = %d, want 4", got)
	}
}
