// Package events implements the single-consumer event loop that
// serializes every mutation of session state, focus/exposure state,
// and HDR progress (spec.md §4.3). All camera driver callbacks and all
// user commands are translated into an Event before they reach the
// loop; the loop body dispatches on the Tag.
package events

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warpcomdev/rawcore/internal/rawlog"
)

// Tag identifies an Event's class and payload shape.
type Tag int

const (
	OpenCamera Tag = iota
	CloseCamera
	SetAutoExposure
	SetManualExposure
	SetExposureCompensation
	SetAutoFocus
	SetFocusPoint
	CaptureHdr
	SaveHdrData
	CameraError
	CameraDisconnected
	SessionStateChanged
	ExposureStatusChanged
	AeStateChanged
	AfStateChanged
	Stop

	// TimerTick, FocusSequenceCompleted, and HdrSequenceTerminated are
	// internal markers: never posted by a Driver callback directly, only
	// synthesized by Loop.Run's ticker or by Session to fan a single
	// driver callback out into the handler's switch.
	TimerTick
	FocusSequenceCompleted
	HdrSequenceTerminated
)

func (t Tag) String() string {
	switch t {
	case OpenCamera:
		return "OpenCamera"
	case CloseCamera:
		return "CloseCamera"
	case SetAutoExposure:
		return "SetAutoExposure"
	case SetManualExposure:
		return "SetManualExposure"
	case SetExposureCompensation:
		return "SetExposureCompensation"
	case SetAutoFocus:
		return "SetAutoFocus"
	case SetFocusPoint:
		return "SetFocusPoint"
	case CaptureHdr:
		return "CaptureHdr"
	case SaveHdrData:
		return "SaveHdrData"
	case CameraError:
		return "CameraError"
	case CameraDisconnected:
		return "CameraDisconnected"
	case SessionStateChanged:
		return "SessionStateChanged"
	case ExposureStatusChanged:
		return "ExposureStatusChanged"
	case AeStateChanged:
		return "AeStateChanged"
	case AfStateChanged:
		return "AfStateChanged"
	case Stop:
		return "Stop"
	case TimerTick:
		return "TimerTick"
	case FocusSequenceCompleted:
		return "FocusSequenceCompleted"
	case HdrSequenceTerminated:
		return "HdrSequenceTerminated"
	default:
		return "Unknown"
	}
}

// Event is the one message type that crosses into the event loop.
// Only the field matching Tag is meaningful.
type Event struct {
	Tag Tag

	OpenSetupRawPreview bool

	ManualIso        int
	ManualExposureNs int64

	ExposureCompensation float64

	FocusX, FocusY float64

	HdrCount          int
	HdrBaseIso        int
	HdrBaseExposureNs int64
	HdrIso            int
	HdrExposureNs     int64

	ErrorCode int

	SessionState int // see statemachine.SessionState

	ExposureIso        int
	ExposureNs         int64
	ExposureStateValue int
	FocusStateValue    int
}

var queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "rawcore_event_queue_depth",
	Help: "Number of events waiting in the event loop's queue",
})

// Handler processes one event and reports whether the loop should now
// exit. It runs exclusively on the loop goroutine, so it may freely
// mutate session/focus/exposure state without additional locking.
//
// The handler, not the event tag, decides when to stop: spec.md §4.3's
// two-phase shutdown requires the loop to keep running after it
// observes Stop until SessionState has also reached Closed, so a plain
// "Tag == Stop" check in the loop itself would be wrong.
type Handler func(Event) (stop bool)

// Loop is a single-consumer, multi-producer event queue. One dedicated
// goroutine runs a blocking timed-dequeue (100ms, matching spec.md
// §4.3) and dispatches to Handler. Producers (driver callbacks, user
// commands) call Post, which never blocks the caller beyond the
// channel's buffer.
type Loop struct {
	queue   chan Event
	logger  rawlog.Logger
	handler Handler

	closed  chan struct{}
	stopped chan struct{}
}

// NewLoop creates a Loop with the given buffered queue capacity.
func NewLoop(logger rawlog.Logger, capacity int, handler Handler) *Loop {
	return &Loop{
		queue:   make(chan Event, capacity),
		logger:  logger,
		handler: handler,
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Post enqueues an event for the loop to process. Safe to call from any
// goroutine.
func (l *Loop) Post(e Event) {
	select {
	case l.queue <- e:
		queueDepth.Set(float64(len(l.queue)))
	case <-l.closed:
		// Loop is shutting down; drop the event rather than block a
		// driver callback thread forever.
	}
}

// Run drains the queue on the calling goroutine until the handler
// reports stop or ctx is cancelled, waking every 100ms to hand the
// handler a TimerTick event.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-l.queue:
			queueDepth.Set(float64(len(l.queue)))
			if l.handler(e) {
				return
			}
		case <-ticker.C:
			// Timed wakeup: lets the handler re-evaluate HDR watchdogs
			// and other time-based transitions even with no new event.
			if l.handler(Event{Tag: TimerTick}) {
				return
			}
		}
	}
}

// Close signals Post to stop accepting events. Callers should still
// Post(Event{Tag: Stop}) through the normal path for an orderly
// shutdown; Close is for aborting producers after the loop has already
// exited.
func (l *Loop) Close() {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}
