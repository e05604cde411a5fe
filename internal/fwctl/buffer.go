package fwctl

import "unsafe"

// BufferAlign is the alignment the device contract requires of both
// payload buffers.
const BufferAlign = 16

// alloc and free are swappable so tests can inject allocation failure and
// verify that every region handed out is handed back.
var (
	alloc = func(n int) []byte { return make([]byte, n) }
	free  = func(b []byte) {}
)

// alignedRegion returns a zeroed slice of exactly size bytes starting on
// a BufferAlign boundary, plus the backing region to release it with.
func alignedRegion(size int) (region, backing []byte, err error) {
	raw := alloc(size + BufferAlign)
	if raw == nil {
		return nil, nil, ErrAllocFailed
	}
	off := BufferAlign - int(uintptr(unsafe.Pointer(&raw[0]))%BufferAlign)
	return raw[off : off+size : off+size], raw, nil
}
