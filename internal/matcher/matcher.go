// Package matcher joins raw pixel buffers with the FrameMetadata that
// describes them. Pixels and metadata arrive on separate driver
// callbacks with independent latencies; the join key is the sensor
// timestamp (spec.md §4.2).
package matcher

import (
	"sync"

	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/pool"
)

// Sink receives a matched frame once metadata has been attached. The
// matcher routes a frame to exactly one of these per match.
type Sink interface {
	// RouteHdr retains a frame tagged Hdr in the HDR collection.
	RouteHdr(f *pool.RawFrame)
	// RoutePreview delivers a frame to the bounded preview queue. It
	// returns false if the preview worker's queue is full or preview
	// is disabled, in which case the matcher returns the frame to the
	// pool itself.
	RoutePreview(f *pool.RawFrame) bool
}

// Matcher owns the two transient maps from spec.md §3:
// pending_pixels (timestamp -> RawFrame) and pending_metadata (an
// arrival-ordered list of FrameMetadata), both delegated to the pool
// so the pool's invariant ("every RawFrame is in exactly one state")
// holds without a second lock.
type Matcher struct {
	mu   sync.Mutex
	pool *pool.BufferPool
	sink Sink

	previewEnabled bool
}

// New creates a Matcher over pool, delivering matched HDR frames and
// accepted preview frames to sink. previewEnabled mirrors the session's enable_raw_preview flag.
func New(p *pool.BufferPool, sink Sink, previewEnabled bool) *Matcher {
	return &Matcher{pool: p, sink: sink, previewEnabled: previewEnabled}
}

// OnPixels is called by the copy worker once it has copied a buffer
// with timestamp ts into a pool frame. Step 2 of spec.md §4.2.
func (m *Matcher) OnPixels(ts int64, f *pool.RawFrame) {
	m.pool.PutPendingPixels(ts, f)
	m.match()
}

// OnMetadata is called when a "capture completed" callback delivers
// metadata for timestamp M.TimestampNs.
func (m *Matcher) OnMetadata(meta metadata.FrameMetadata) {
	m.pool.PushPendingMetadata(meta)
	m.match()
}

// match sweeps pending_metadata, attaching any entry whose timestamp
// has a waiting pixel buffer, then ages out orphan metadata.
//
// Matcher state mutation is serialized by a single mutex because two
// driver callback threads (pixel arrival, metadata arrival) can call
// OnPixels/OnMetadata concurrently; the sweep itself must see a
// consistent view of pending_metadata.
func (m *Matcher) match() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, meta := range m.pool.PendingMetadata() {
		f, ok := m.pool.TakePendingPixels(meta.TimestampNs)
		if !ok {
			continue
		}
		f.Metadata = meta
		m.pool.RemovePendingMetadata(meta.TimestampNs)

		switch {
		case meta.RawType == metadata.Hdr:
			m.sink.RouteHdr(f)
		case m.previewEnabled && m.sink.RoutePreview(f):
			// delivered to preview queue; preview worker returns it.
		default:
			m.pool.Return(f)
		}
	}

	m.age()
}

// age drops the oldest pending metadata entries while their count
// exceeds 2x the pool's buffer count: their pixels never arrived and
// are bounded only by the pool's own capacity.
func (m *Matcher) age() {
	limit := 2 * m.pool.NumBuffers()
	for m.pool.PendingMetadataLen() > limit {
		m.pool.DropOldestPendingMetadata()
	}
}

// SetPreviewEnabled toggles preview routing at runtime (e.g. when the
// session opens/closes the preview surface).
func (m *Matcher) SetPreviewEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previewEnabled = enabled
}
