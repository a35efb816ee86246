// Package session is the capture-session facade described in spec.md
// §4.4: it owns the driver handle, submits capture requests on behalf
// of the state manager, and turns every driver callback into an Event
// for the single-consumer loop (spec.md §4.3). The platform camera API
// itself is an external collaborator — only its callback and request
// surface is specified here, matching spec.md §1's scope boundary.
package session

import (
	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/statemachine"
)

// Driver is the thin command bridge to the platform camera API
// (out of scope per spec.md §1; this is its contract, not its
// implementation). A capture session opens exactly one Driver.
type Driver interface {
	// Open creates the capture-session container with its three
	// outputs: a preview surface, a raw image reader backed by the
	// pool, and an auxiliary YUV reader used only to keep legacy
	// drivers' continuous AF supported (spec.md §4.4).
	Open(setupRawPreview bool) error
	Close() error

	// Submit issues a one-shot capture request (AF/AE triggers, HDR
	// burst members) and returns a driver-assigned request id.
	Submit(req statemachine.CaptureRequest) (requestID int, err error)
	// SetRepeating installs the continuous repeat request.
	SetRepeating(req statemachine.CaptureRequest) error
	// StopRepeating cancels any continuous repeat request.
	StopRepeating() error
}

// DriverImage is a single decoded frame handed over on the driver's
// image_available callback. Consumers read Format/Width/Height/Stride/
// TimestampNs and copy Bytes() into a pool.RawFrame (spec.md §4.5).
type DriverImage interface {
	Format() metadata.PixelFormat
	Width() int
	Height() int
	Stride() int
	TimestampNs() int64
	Bytes() []byte
}

// Listener receives transient driver errors that the session cannot
// recover from locally (spec.md §7).
type Listener interface {
	OnCameraError(code int)
	OnCameraDisconnected()
	OnHdrCaptureFailed()
}
