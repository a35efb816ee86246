package consumer

import "github.com/warpcomdev/rawcore/internal/pool"

// SetupBuffersWorker grows the pool once it has observed the first
// frame's byte length, up to the configured memory budget (spec.md
// §4.5). It runs once per session and is idempotent if the session
// stops before it ever fires.
type SetupBuffersWorker struct {
	pool       *pool.BufferPool
	maxBuffers int
	started    bool
}

// NewSetupBuffersWorker builds a SetupBuffersWorker that will grow the
// pool up to maxBuffers frames.
func NewSetupBuffersWorker(p *pool.BufferPool, maxBuffers int) *SetupBuffersWorker {
	return &SetupBuffersWorker{pool: p, maxBuffers: maxBuffers}
}

// EnsureStarted grows the pool the first time it is called, using that
// call's byteLen; subsequent calls are no-ops whatever their byteLen.
func (w *SetupBuffersWorker) EnsureStarted(byteLen int) error {
	if w.started {
		return nil
	}
	w.started = true
	return w.pool.AddBuffers(w.maxBuffers, byteLen)
}
