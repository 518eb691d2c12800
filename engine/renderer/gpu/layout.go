package gpu

import "unsafe"

// The helpers below reinterpret plain-old-data values as bytes. T must not
// contain pointers, slices, strings or maps.

func SizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func AsBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*SizeOf[T]())
}

// View reinterprets b as a slice of T. b must be aligned for T, which holds
// for buffers allocated by a Device.
func View[T any](b []byte) []T {
	n := len(b) / SizeOf[T]()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

func WriteStruct[T any](buf Buffer, offset int, v *T) {
	buf.SetData(offset, unsafe.Slice((*byte)(unsafe.Pointer(v)), SizeOf[T]()))
}

func WriteSlice[T any](buf Buffer, offset int, s []T) {
	if len(s) == 0 {
		return
	}
	buf.SetData(offset, AsBytes(s))
}

// ReadStruct copies a T out of b at offset.
func ReadStruct[T any](b []byte, offset int) T {
	return View[T](b[offset : offset+SizeOf[T]()])[0]
}

// EnsureSize grows buf to hold at least size bytes.
func EnsureSize(buf Buffer, size int) {
	if buf.Size() < size {
		buf.Resize(size)
	}
}
