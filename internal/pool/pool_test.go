package pool

import (
	"testing"
)

func withTimestamp(f *RawFrame, ts int64) *RawFrame {
	f.Metadata.TimestampNs = ts
	return f
}

func TestAllocateFromUnused(t *testing.T) {
	p := New("test", 0)
	if err := p.AddBuffers(2, 1024); err != nil {
		t.Fatalf("AddBuffers: %v", err)
	}
	f, ok := p.Allocate()
	if !ok || f == nil {
		t.Fatalf("expected a frame from unused")
	}
	if p.NumBuffers() != 2 {
		t.Fatalf("expected 2 buffers total, got %d", p.NumBuffers())
	}
}

func TestAddBuffersForbiddenAfterObserve(t *testing.T) {
	p := New("test", 0)
	if err := p.AddBuffers(1, 1024); err != nil {
		t.Fatalf("AddBuffers: %v", err)
	}
	if _, ok := p.Allocate(); !ok {
		t.Fatalf("expected allocate to succeed")
	}
	if err := p.AddBuffers(1, 1024); err != ErrPoolClosed {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestAllocateEvictsOldestRingEntry(t *testing.T) {
	p := New("test", 0)
	p.AddBuffers(2, 16)
	a, _ := p.Allocate()
	b, _ := p.Allocate()
	p.Return(withTimestamp(a, 100))
	p.Return(withTimestamp(b, 200))
	// unused is empty now; allocate must evict the oldest ring entry (100).
	c, ok := p.Allocate()
	if !ok {
		t.Fatalf("expected eviction to free a frame")
	}
	if c != a {
		t.Fatalf("expected eviction of oldest timestamp frame")
	}
	ring := p.RingSnapshot()
	if len(ring) != 1 || ring[0].Metadata.TimestampNs != 200 {
		t.Fatalf("expected only the newer frame left in ring, got %+v", ring)
	}
}

func TestAllocateReturnsNoneWhenAllLocked(t *testing.T) {
	p := New("test", 0)
	p.AddBuffers(1, 16)
	a, _ := p.Allocate()
	p.Return(withTimestamp(a, 1))
	h := p.LockAll()
	if _, ok := p.Allocate(); ok {
		t.Fatalf("expected allocate to fail while all buffers are locked")
	}
	h.Unlock()
	if _, ok := p.Allocate(); !ok {
		t.Fatalf("expected allocate to succeed after unlock")
	}
}

func TestReturnReplacesDuplicateTimestamp(t *testing.T) {
	p := New("test", 0)
	p.AddBuffers(2, 16)
	a, _ := p.Allocate()
	b, _ := p.Allocate()
	p.Return(withTimestamp(a, 42))
	p.Return(withTimestamp(b, 42))
	ring := p.RingSnapshot()
	if len(ring) != 1 || ring[0] != b {
		t.Fatalf("expected the incoming frame to replace the existing entry")
	}
	// displaced frame "a" must be available again via unused.
	c, ok := p.Allocate()
	if !ok || c != a {
		t.Fatalf("expected displaced frame to be allocatable, got %v ok=%v", c, ok)
	}
}

func TestRingStaysSortedByTimestamp(t *testing.T) {
	p := New("test", 0)
	p.AddBuffers(3, 16)
	ts := []int64{300, 100, 200}
	for _, tstamp := range ts {
		f, _ := p.Allocate()
		p.Return(withTimestamp(f, tstamp))
	}
	ring := p.RingSnapshot()
	for i := 1; i < len(ring); i++ {
		if ring[i-1].Metadata.TimestampNs > ring[i].Metadata.TimestampNs {
			t.Fatalf("ring not sorted: %+v", ring)
		}
	}
}

func TestLockAllThenUnlockRestoresUnused(t *testing.T) {
	p := New("test", 0)
	p.AddBuffers(2, 16)
	a, _ := p.Allocate()
	b, _ := p.Allocate()
	p.Return(withTimestamp(a, 1))
	p.Return(withTimestamp(b, 2))
	h := p.LockAll()
	if len(p.RingSnapshot()) != 0 {
		t.Fatalf("expected ring empty after lock_all")
	}
	if _, ok := h.GetByTimestamp(1); !ok {
		t.Fatalf("expected frame 1 in handle")
	}
	h.Unlock()
	if p.NumBuffers() != 2 {
		t.Fatalf("expected all buffers present after unlock")
	}
	if len(p.RingSnapshot()) != 0 {
		t.Fatalf("unlocked frames must go to unused, never back to ring")
	}
}

func TestLockLatestOnlyRemovesNewest(t *testing.T) {
	p := New("test", 0)
	p.AddBuffers(2, 16)
	a, _ := p.Allocate()
	b, _ := p.Allocate()
	p.Return(withTimestamp(a, 10))
	p.Return(withTimestamp(b, 20))
	h := p.LockLatest()
	if _, ok := h.GetByTimestamp(20); !ok {
		t.Fatalf("expected latest frame in handle")
	}
	ring := p.RingSnapshot()
	if len(ring) != 1 || ring[0].Metadata.TimestampNs != 10 {
		t.Fatalf("expected older frame to remain in ring, got %+v", ring)
	}
}

func TestDiscardIsIdempotent(t *testing.T) {
	p := New("test", 0)
	p.AddBuffers(1, 16)
	a, _ := p.Allocate()
	p.Discard(a)
	p.Discard(a)
	if p.NumBuffers() != 1 {
		t.Fatalf("expected exactly one buffer tracked, got %d", p.NumBuffers())
	}
}

func TestPendingPixelsReplayDiscardsExisting(t *testing.T) {
	p := New("test", 0)
	p.AddBuffers(2, 16)
	a, _ := p.Allocate()
	b, _ := p.Allocate()
	p.PutPendingPixels(5, a)
	p.PutPendingPixels(5, b)
	got, ok := p.TakePendingPixels(5)
	if !ok || got != b {
		t.Fatalf("expected replay to keep only the latest pixel buffer")
	}
	if p.PendingPixelsLen() != 0 {
		t.Fatalf("expected pending pixels drained")
	}
}
