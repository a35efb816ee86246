package consumer

import (
	"context"

	"github.com/warpcomdev/rawcore/internal/pool"
)

// previewQueueCapacity matches spec.md §4.5 step 2: the preview worker
// has room for exactly 2 frames in flight.
const previewQueueCapacity = 2

// PreviewWorker consumes matched raw frames tagged for the raw preview
// surface and hands them to a kernel-side converter. It never blocks
// the matcher: RoutePreview uses a try-push, and the worker itself
// returns a frame to the pool the moment it is done decoding it.
type PreviewWorker struct {
	queue   chan *pool.RawFrame
	pool    *pool.BufferPool
	convert func(f *pool.RawFrame)
}

// NewPreviewWorker builds a PreviewWorker. convert receives the frame
// while its bytes are safe to read; the worker calls pool.Return once
// convert returns.
func NewPreviewWorker(p *pool.BufferPool, convert func(f *pool.RawFrame)) *PreviewWorker {
	return &PreviewWorker{
		queue:   make(chan *pool.RawFrame, previewQueueCapacity),
		pool:    p,
		convert: convert,
	}
}

// RoutePreview implements matcher.Sink's try-push contract.
func (w *PreviewWorker) RoutePreview(f *pool.RawFrame) bool {
	select {
	case w.queue <- f:
		return true
	default:
		return false
	}
}

// Run drains the preview queue until ctx is cancelled.
func (w *PreviewWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-w.queue:
			w.convert(f)
			w.pool.Return(f)
		}
	}
}
