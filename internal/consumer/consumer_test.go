package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/warpcomdev/rawcore/internal/matcher"
	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/pool"
)

type fakeImage struct {
	format metadata.PixelFormat
	w, h, stride int
	ts     int64
	bytes  []byte
}

func (i fakeImage) Format() metadata.PixelFormat { return i.format }
func (i fakeImage) Width() int                   { return i.w }
func (i fakeImage) Height() int                  { return i.h }
func (i fakeImage) Stride() int                  { return i.stride }
func (i fakeImage) TimestampNs() int64           { return i.ts }
func (i fakeImage) Bytes() []byte                { return i.bytes }

type fakeSink struct {
	hdr      []*pool.RawFrame
	previews []*pool.RawFrame
}

func (s *fakeSink) RouteHdr(f *pool.RawFrame)    { s.hdr = append(s.hdr, f) }
func (s *fakeSink) RoutePreview(f *pool.RawFrame) bool {
	s.previews = append(s.previews, f)
	return true
}

func TestCopyWorkerMatchesAndRoutes(t *testing.T) {
	p := pool.New("test", 0)
	if err := p.AddBuffers(4, 64); err != nil {
		t.Fatal(err)
	}
	sink := &fakeSink{}
	m := matcher.New(p, sink, true)
	images := make(chan Image, 1)
	setup := NewSetupBuffersWorker(p, 4)
	w := NewCopyWorker(nil, p, m, images, setup)

	img := fakeImage{format: metadata.Raw16, w: 4, h: 4, stride: 16, ts: 42, bytes: make([]byte, 64)}
	for i := range img.bytes {
		img.bytes[i] = byte(i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	images <- img
	m.OnMetadata(metadata.FrameMetadata{TimestampNs: 42})

	deadline := time.After(2 * time.Second)
	for len(sink.previews) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for preview route")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done

	if len(sink.previews) != 1 {
		t.Fatalf("expected 1 preview-routed frame, got %d", len(sink.previews))
	}
	if sink.previews[0].Width != 4 || sink.previews[0].Height != 4 {
		t.Fatalf("expected frame dimensions copied from image, got %dx%d", sink.previews[0].Width, sink.previews[0].Height)
	}
}
