// Package pool owns all RawFrame memory: a bounded pool of pixel
// buffers with explicit lifecycle states (unused/ring/locked) and the
// invariant that a frame only becomes observable once its metadata has
// been attached (spec.md §4.1, §4.2).
package pool

import (
	"sync"

	"github.com/warpcomdev/rawcore/internal/metadata"
)

// RawFrame is a fixed-capacity byte region plus the descriptive header
// from spec.md §3. The byte region may back host memory or a device
// (GPU) memory object; callers must Lock before touching Bytes and
// Unlock when done, mirroring the NativeBuffer contract the original
// C++ core exposes to its Halide kernels.
type RawFrame struct {
	mu     sync.Mutex
	data   []byte
	handle uint64 // opaque native handle; 0 for host-backed frames

	Width     int
	Height    int
	RowStride int
	PixelFmt  metadata.PixelFormat
	Metadata  metadata.FrameMetadata
}

// NewRawFrame allocates a host-backed frame with the given byte capacity.
func NewRawFrame(byteLen int) *RawFrame {
	return &RawFrame{data: make([]byte, byteLen)}
}

// Len returns the capacity of the backing byte region.
func (f *RawFrame) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

// Lock returns the backing bytes for reading or writing. Callers must
// call Unlock when finished. write is informational only for the
// host-memory backend, but device backends use it to decide whether a
// GPU->host sync is required before handing back the slice.
func (f *RawFrame) Lock(write bool) []byte {
	f.mu.Lock()
	return f.data
}

// Unlock releases the lock taken by Lock.
func (f *RawFrame) Unlock() {
	f.mu.Unlock()
}

// NativeHandle returns the opaque device handle, or 0 for host memory.
func (f *RawFrame) NativeHandle() uint64 {
	return f.handle
}

// Grow reallocates the backing region if it is smaller than byteLen.
// Existing bytes are preserved up to the smaller of the two lengths.
func (f *RawFrame) Grow(byteLen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) >= byteLen {
		return
	}
	next := make([]byte, byteLen)
	copy(next, f.data)
	f.data = next
}

// checkInvariant enforces spec.md §3: data.len >= row_stride * height.
func (f *RawFrame) checkInvariant() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data) >= f.RowStride*f.Height
}
