package pool

import (
	"errors"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warpcomdev/rawcore/internal/metadata"
)

// ErrPoolClosed is returned by AddBuffers once the pool has been
// observed by any allocate/return/lock call (spec.md §4.1).
var ErrPoolClosed = errors.New("pool: cannot add buffers after pool has been observed")

var (
	poolUnusedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rawcore_pool_unused_frames",
		Help: "Number of RawFrames currently unused",
	}, []string{"camera"})
	poolRingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rawcore_pool_ring_frames",
		Help: "Number of RawFrames currently in the ZSL ring",
	}, []string{"camera"})
	poolLockedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rawcore_pool_locked_frames",
		Help: "Number of RawFrames currently locked by a snapshot",
	}, []string{"camera"})
	poolPendingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rawcore_pool_pending_pixel_frames",
		Help: "Number of RawFrames awaiting metadata",
	}, []string{"camera"})
	poolBytesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rawcore_pool_bytes",
		Help: "Total bytes owned by the pool, across all states",
	}, []string{"camera"})
)

// BufferPool owns all RawFrame memory for one capture session. All
// operations take a single mutex: allocate/return/discard are called
// concurrently from copy workers, lock/unlock from the event loop,
// and reads from the preview worker and archive writer while they
// hold a LockHandle.
type BufferPool struct {
	mu sync.Mutex

	camera         string
	maxMemoryBytes int64
	totalBytes     int64
	numBuffers     int
	observed       bool

	unused        []*RawFrame
	ring          []*RawFrame // sorted ascending by Metadata.TimestampNs
	locked        map[*RawFrame]struct{}
	pendingPixels map[int64]*RawFrame
	pendingMeta   []metadata.FrameMetadata
}

// New creates an empty BufferPool. camera is used only to label metrics.
func New(camera string, maxMemoryBytes int64) *BufferPool {
	return &BufferPool{
		camera:         camera,
		maxMemoryBytes: maxMemoryBytes,
		locked:         make(map[*RawFrame]struct{}),
		pendingPixels:  make(map[int64]*RawFrame),
	}
}

// AddBuffers grows the pool by n frames of byteLen bytes each. Forbidden
// once any session activity has begun observing the pool.
func (p *BufferPool) AddBuffers(n, byteLen int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.observed {
		return ErrPoolClosed
	}
	added := int64(n) * int64(byteLen)
	if p.maxMemoryBytes > 0 && p.totalBytes+added > p.maxMemoryBytes {
		// Clamp to what fits; a partially grown pool is still usable.
		fit := (p.maxMemoryBytes - p.totalBytes) / int64(byteLen)
		if fit <= 0 {
			return nil
		}
		n = int(fit)
	}
	for i := 0; i < n; i++ {
		p.unused = append(p.unused, NewRawFrame(byteLen))
		p.totalBytes += int64(byteLen)
		p.numBuffers++
	}
	p.publishLocked()
	return nil
}

// NumBuffers returns the total number of frames owned by the pool,
// across every state, including frames currently held by a caller.
func (p *BufferPool) NumBuffers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numBuffers
}

// MemoryUseBytes returns the sum of bytes owned by the pool.
func (p *BufferPool) MemoryUseBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalBytes
}

// Allocate returns a free frame: first from unused, then by evicting
// the oldest ring entry. Returns (nil, false) only when unused and
// ring are both empty, i.e. every buffer is locked.
func (p *BufferPool) Allocate() (*RawFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = true
	if n := len(p.unused); n > 0 {
		f := p.unused[n-1]
		p.unused = p.unused[:n-1]
		p.publishLocked()
		return f, true
	}
	if n := len(p.ring); n > 0 {
		f := p.ring[0]
		p.ring = p.ring[1:]
		p.publishLocked()
		return f, true
	}
	return nil, false
}

// Return moves frame into the ring, keyed by its metadata timestamp.
// If an entry with the same timestamp already exists, the incoming
// frame replaces it and the displaced frame is discarded to unused.
func (p *BufferPool) Return(f *RawFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = true
	ts := f.Metadata.TimestampNs
	idx := sort.Search(len(p.ring), func(i int) bool {
		return p.ring[i].Metadata.TimestampNs >= ts
	})
	if idx < len(p.ring) && p.ring[idx].Metadata.TimestampNs == ts {
		displaced := p.ring[idx]
		p.ring[idx] = f
		p.unused = append(p.unused, displaced)
		p.publishLocked()
		return
	}
	p.ring = append(p.ring, nil)
	copy(p.ring[idx+1:], p.ring[idx:])
	p.ring[idx] = f
	p.publishLocked()
}

// Discard moves frame to unused. Idempotent: discarding a frame
// already in unused is a no-op (best-effort pointer scan, since the
// pool is small enough that this never shows up as a hot path).
func (p *BufferPool) Discard(f *RawFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = true
	for _, u := range p.unused {
		if u == f {
			return
		}
	}
	delete(p.locked, f)
	for i, r := range p.ring {
		if r == f {
			p.ring = append(p.ring[:i], p.ring[i+1:]...)
			break
		}
	}
	for ts, pf := range p.pendingPixels {
		if pf == f {
			delete(p.pendingPixels, ts)
			break
		}
	}
	p.unused = append(p.unused, f)
	p.publishLocked()
}

// LockAll atomically moves every ring entry into locked and returns a
// handle whose Unlock moves exactly those frames back to unused (never
// to ring: a snapshot implies the ring is obsolete).
func (p *BufferPool) LockAll() *LockHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = true
	frames := p.ring
	p.ring = nil
	for _, f := range frames {
		p.locked[f] = struct{}{}
	}
	p.publishLocked()
	return &LockHandle{pool: p, frames: frames}
}

// LockLatest moves only the single newest-by-timestamp ring entry into
// locked; the rest remain in ring.
func (p *BufferPool) LockLatest() *LockHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observed = true
	if len(p.ring) == 0 {
		return &LockHandle{pool: p}
	}
	last := len(p.ring) - 1
	f := p.ring[last]
	p.ring = p.ring[:last]
	p.locked[f] = struct{}{}
	p.publishLocked()
	return &LockHandle{pool: p, frames: []*RawFrame{f}}
}

// unlockHandle returns a handle's frames to unused and drops them from
// the locked bookkeeping set.
func (p *BufferPool) unlockHandle(h *LockHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range h.frames {
		delete(p.locked, f)
		p.unused = append(p.unused, f)
	}
	h.frames = nil
	p.publishLocked()
}

func (p *BufferPool) publishLocked() {
	poolUnusedGauge.WithLabelValues(p.camera).Set(float64(len(p.unused)))
	poolRingGauge.WithLabelValues(p.camera).Set(float64(len(p.ring)))
	poolLockedGauge.WithLabelValues(p.camera).Set(float64(len(p.locked)))
	poolPendingGauge.WithLabelValues(p.camera).Set(float64(len(p.pendingPixels)))
	poolBytesGauge.WithLabelValues(p.camera).Set(float64(p.totalBytes))
}

// --- matcher-facing helpers (spec.md §4.2) ---

// PutPendingPixels inserts frame into pending_pixels keyed by timestamp.
// If another entry already exists for that timestamp (driver replay),
// the existing entry is discarded back to unused.
func (p *BufferPool) PutPendingPixels(ts int64, f *RawFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.pendingPixels[ts]; ok && existing != f {
		p.unused = append(p.unused, existing)
	}
	p.pendingPixels[ts] = f
	p.publishLocked()
}

// TakePendingPixels removes and returns the pending frame for ts, if any.
func (p *BufferPool) TakePendingPixels(ts int64) (*RawFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.pendingPixels[ts]
	if ok {
		delete(p.pendingPixels, ts)
		p.publishLocked()
	}
	return f, ok
}

// StealOldestPendingPixels removes and returns the oldest entry in
// pending_pixels, used by the copy worker as an allocation target when
// the pool itself is exhausted (spec.md §4.5 step 3).
func (p *BufferPool) StealOldestPendingPixels() (*RawFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var oldestTs int64
	var oldest *RawFrame
	first := true
	for ts, f := range p.pendingPixels {
		if first || ts < oldestTs {
			oldestTs, oldest, first = ts, f, false
		}
	}
	if oldest == nil {
		return nil, false
	}
	delete(p.pendingPixels, oldestTs)
	p.publishLocked()
	return oldest, true
}

// PendingPixelsLen reports the number of orphan pixel buffers awaiting
// metadata.
func (p *BufferPool) PendingPixelsLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pendingPixels)
}

// PushPendingMetadata appends metadata to the pending queue.
func (p *BufferPool) PushPendingMetadata(m metadata.FrameMetadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingMeta = append(p.pendingMeta, m)
}

// PendingMetadata returns a snapshot of the pending metadata queue.
func (p *BufferPool) PendingMetadata() []metadata.FrameMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]metadata.FrameMetadata, len(p.pendingMeta))
	copy(out, p.pendingMeta)
	return out
}

// RemovePendingMetadata deletes the first pending entry with the given
// timestamp.
func (p *BufferPool) RemovePendingMetadata(ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, m := range p.pendingMeta {
		if m.TimestampNs == ts {
			p.pendingMeta = append(p.pendingMeta[:i], p.pendingMeta[i+1:]...)
			return
		}
	}
}

// DropOldestPendingMetadata removes the single oldest (by queue order,
// i.e. arrival order) pending metadata entry.
func (p *BufferPool) DropOldestPendingMetadata() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pendingMeta) == 0 {
		return
	}
	p.pendingMeta = p.pendingMeta[1:]
}

// PendingMetadataLen reports the number of orphan metadata entries.
func (p *BufferPool) PendingMetadataLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pendingMeta)
}

// RingSnapshot returns the current ring contents, oldest first. Used
// only by tests and diagnostics; production code should prefer
// LockAll/LockLatest for anything that must be atomic with concurrent
// copy workers.
func (p *BufferPool) RingSnapshot() []*RawFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*RawFrame, len(p.ring))
	copy(out, p.ring)
	return out
}

// LockHandle is a snapshot of ring frames moved into the pool's locked
// state. Its Unlock returns the frames to unused.
type LockHandle struct {
	pool   *BufferPool
	frames []*RawFrame
}

// Frames returns the frames covered by this handle, in the order they
// were captured (ring order for LockAll: oldest first).
func (h *LockHandle) Frames() []*RawFrame {
	return h.frames
}

// GetByTimestamp looks up a frame within this handle by timestamp.
func (h *LockHandle) GetByTimestamp(ts int64) (*RawFrame, bool) {
	for _, f := range h.frames {
		if f.Metadata.TimestampNs == ts {
			return f, true
		}
	}
	return nil, false
}

// Unlock moves this handle's frames back to unused.
func (h *LockHandle) Unlock() {
	if h.pool == nil {
		return
	}
	h.pool.unlockHandle(h)
}

// Consume moves the handle's frames back to unused like Unlock, but is
// named for the archive-writer's use case where the handle's frames
// were persisted to an archive and are now free to be reused
// immediately (spec.md §4.5 step 4). Functionally identical to Unlock;
// kept as a distinct name for readability at call sites.
func (h *LockHandle) Consume() {
	h.Unlock()
}
