package matcher

import (
	"testing"

	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/pool"
)

type fakeSink struct {
	hdr     []*pool.RawFrame
	preview []*pool.RawFrame
	accept  bool
}

func (s *fakeSink) RouteHdr(f *pool.RawFrame) { s.hdr = append(s.hdr, f) }
func (s *fakeSink) RoutePreview(f *pool.RawFrame) bool {
	if !s.accept {
		return false
	}
	s.preview = append(s.preview, f)
	return true
}

func newPoolFrame(p *pool.BufferPool) *pool.RawFrame {
	f, _ := p.Allocate()
	return f
}

func TestMatchJoinsPixelsThenMetadata(t *testing.T) {
	p := pool.New("test", 0)
	p.AddBuffers(4, 16)
	sink := &fakeSink{accept: false}
	m := New(p, sink, false)

	f := newPoolFrame(p)
	m.OnPixels(100, f)
	if p.PendingPixelsLen() != 1 {
		t.Fatalf("expected pixel buffer pending")
	}
	m.OnMetadata(metadata.FrameMetadata{TimestampNs: 100})

	if p.PendingPixelsLen() != 0 || p.PendingMetadataLen() != 0 {
		t.Fatalf("expected match to clear both pending sets")
	}
	ring := p.RingSnapshot()
	if len(ring) != 1 || ring[0].Metadata.TimestampNs != 100 {
		t.Fatalf("expected matched frame returned to ring, got %+v", ring)
	}
}

func TestMatchMetadataThenPixels(t *testing.T) {
	p := pool.New("test", 0)
	p.AddBuffers(4, 16)
	sink := &fakeSink{}
	m := New(p, sink, false)

	m.OnMetadata(metadata.FrameMetadata{TimestampNs: 7})
	f := newPoolFrame(p)
	m.OnPixels(7, f)

	ring := p.RingSnapshot()
	if len(ring) != 1 || ring[0].Metadata.TimestampNs != 7 {
		t.Fatalf("expected matched frame in ring, got %+v", ring)
	}
}

func TestMatchRoutesHdr(t *testing.T) {
	p := pool.New("test", 0)
	p.AddBuffers(2, 16)
	sink := &fakeSink{}
	m := New(p, sink, true)

	f := newPoolFrame(p)
	m.OnPixels(1, f)
	m.OnMetadata(metadata.FrameMetadata{TimestampNs: 1, RawType: metadata.Hdr})

	if len(sink.hdr) != 1 {
		t.Fatalf("expected frame routed to HDR sink")
	}
	if len(p.RingSnapshot()) != 0 {
		t.Fatalf("HDR frames must not enter the ring")
	}
}

func TestMatchRoutesPreviewWhenEnabled(t *testing.T) {
	p := pool.New("test", 0)
	p.AddBuffers(2, 16)
	sink := &fakeSink{accept: true}
	m := New(p, sink, true)

	f := newPoolFrame(p)
	m.OnPixels(1, f)
	m.OnMetadata(metadata.FrameMetadata{TimestampNs: 1})

	if len(sink.preview) != 1 {
		t.Fatalf("expected frame routed to preview")
	}
	if len(p.RingSnapshot()) != 0 {
		t.Fatalf("previewed frame should not also be in ring yet")
	}
}

func TestDuplicateTimestampPixelsDiscardsReplay(t *testing.T) {
	p := pool.New("test", 0)
	p.AddBuffers(2, 16)
	sink := &fakeSink{}
	m := New(p, sink, false)

	a := newPoolFrame(p)
	m.OnPixels(9, a)
	b := newPoolFrame(p)
	m.OnPixels(9, b)

	// Both buffers were allocated (pool now empty); after the replay,
	// "a" should have been discarded back to unused.
	if p.PendingPixelsLen() != 1 {
		t.Fatalf("expected exactly one pending entry after replay")
	}
}

func TestAgingDropsOrphanMetadata(t *testing.T) {
	p := pool.New("test", 0)
	p.AddBuffers(4, 16)
	sink := &fakeSink{}
	m := New(p, sink, false)

	for i := 0; i < 20; i++ {
		m.OnMetadata(metadata.FrameMetadata{TimestampNs: int64(i)})
	}
	if got, want := p.PendingMetadataLen(), 2*p.NumBuffers(); got > want {
		t.Fatalf("expected pending metadata bounded by 2*numBuffers=%d, got %d", want, got)
	}
}
