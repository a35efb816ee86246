package consumer

import (
	"sync"

	"github.com/warpcomdev/rawcore/internal/archive"
	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/pool"
)

// HdrCollection retains frames tagged Hdr until the bracketed burst is
// complete, then hands them to an archive writer (spec.md §4.3 step 5,
// §4.5 step 4). It implements both matcher.Sink's RouteHdr half and
// statemachine.HdrCollector, so the session can wire one object into
// both packages.
type HdrCollection struct {
	mu     sync.Mutex
	frames []*pool.RawFrame
	pool   *pool.BufferPool
	camera metadata.CameraDescription
}

// NewHdrCollection builds an empty collection. p is only needed so a
// reset/discard can return buffers to the pool.
func NewHdrCollection(p *pool.BufferPool, camera metadata.CameraDescription) *HdrCollection {
	return &HdrCollection{pool: p, camera: camera}
}

// RouteHdr implements matcher.Sink.
func (c *HdrCollection) RouteHdr(f *pool.RawFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
}

// Count implements statemachine.HdrCollector.
func (c *HdrCollection) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// Save implements statemachine.HdrCollector. Per spec.md §4.5, the HDR
// selection is the entire collection in arrival order with the first
// frame as reference.
func (c *HdrCollection) Save(path string) error {
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	var referenceTs int64
	if len(frames) > 0 {
		referenceTs = frames[0].Metadata.TimestampNs
	}

	err := archive.Write(path, c.camera, metadata.PostProcessSettings{}, referenceTs, frames)
	for _, f := range frames {
		c.pool.Return(f)
	}
	return err
}

// Reset implements statemachine.HdrCollector: discards whatever has
// arrived so far without writing an archive (watchdog failure path).
func (c *HdrCollection) Reset() {
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()
	for _, f := range frames {
		c.pool.Discard(f)
	}
}
