package gpu

import "unsafe"

// StructSliceToBytes reinterprets a slice of a fixed-layout struct (no
// pointers, no padding surprises the caller hasn't accounted for) as a
// byte slice without copying, for vertex, instance, and uniform uploads.
// T's in-memory layout must exactly match the shader-side buffer layout
// it is uploaded into.
func StructSliceToBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}
