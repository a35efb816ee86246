// Package consumer runs the worker goroutines that pull decoded images
// off the driver and feed the buffer pool and matcher (spec.md §4.5).
// Every worker here is a plain goroutine loop in the teacher's style
// (see fakesource.ResumableSource's run loop) rather than anything
// event-loop driven: unlike internal/statemachine, this package's
// state (the pool, the preview queue) is already safe for concurrent
// access on its own.
package consumer

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warpcomdev/rawcore/internal/matcher"
	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/pool"
	"github.com/warpcomdev/rawcore/internal/rawlog"
)

var (
	framesCopied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_consumer_frames_copied_total",
		Help: "Number of driver images copied into a pool frame",
	})
	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_consumer_frames_dropped_total",
		Help: "Number of driver images dropped because no pool frame was available",
	})
	framesStolen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_consumer_pending_pixels_stolen_total",
		Help: "Number of pending-pixel buffers reclaimed by the copy worker under pool exhaustion",
	})
)

// Image is the minimal shape the copy worker needs from a driver
// callback image; internal/session.DriverImage satisfies it.
type Image interface {
	Format() metadata.PixelFormat
	Width() int
	Height() int
	Stride() int
	TimestampNs() int64
	Bytes() []byte
}

// CopyWorker is the single dedicated goroutine of spec.md §4.5 step 1:
// it drains a DriverImage channel, copies bytes into a pool frame, and
// hands the (timestamp, frame) pair to the matcher. A single worker
// guarantees images are copied in arrival order, which the matcher's
// aging logic assumes.
type CopyWorker struct {
	logger  rawlog.Logger
	pool    *pool.BufferPool
	matcher *matcher.Matcher
	images  <-chan Image
	setup   *SetupBuffersWorker
}

// NewCopyWorker builds a CopyWorker reading from images. setup is
// lazy-started on the first observed frame, per spec.md §4.5 step 2.
func NewCopyWorker(logger rawlog.Logger, p *pool.BufferPool, m *matcher.Matcher, images <-chan Image, setup *SetupBuffersWorker) *CopyWorker {
	return &CopyWorker{logger: logger, pool: p, matcher: m, images: images, setup: setup}
}

// Run drains images until ctx is cancelled or the channel closes.
func (w *CopyWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case img, ok := <-w.images:
			if !ok {
				return
			}
			w.copyOne(img)
		}
	}
}

func (w *CopyWorker) copyOne(img Image) {
	if err := w.setup.EnsureStarted(img.Stride() * img.Height()); err != nil {
		w.logger.Warn("setup-buffers failed", rawlog.Error(err))
	}

	f, ok := w.pool.Allocate()
	if !ok {
		// Pool is fully locked; reclaim the oldest pending-pixels entry
		// rather than drop the frame outright (spec.md §4.5 step 3).
		f, ok = w.pool.StealOldestPendingPixels()
		if !ok {
			framesDropped.Inc()
			return
		}
		framesStolen.Inc()
	}

	need := img.Stride() * img.Height()
	f.Grow(need)
	dst := f.Lock(true)
	n := copy(dst, img.Bytes())
	f.Unlock()
	if n < need {
		w.logger.Warn("short copy from driver image",
			rawlog.Int("want", need), rawlog.Int("got", n))
	}

	f.Width = img.Width()
	f.Height = img.Height()
	f.RowStride = img.Stride()
	f.PixelFmt = img.Format()

	framesCopied.Inc()
	w.matcher.OnPixels(img.TimestampNs(), f)
}
