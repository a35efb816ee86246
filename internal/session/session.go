package session

import (
	"context"
	"sync"

	"github.com/warpcomdev/rawcore/internal/events"
	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/rawlog"
	"github.com/warpcomdev/rawcore/internal/statemachine"
)

// rawImageQueueCapacity bounds the MPSC queue between the driver's
// image_available callback and the copy worker (spec.md §5).
const rawImageQueueCapacity = 8

// Session is the capture-session facade of spec.md §4.4. It owns the
// Driver, the focus/exposure state manager, and the event loop that
// serializes every mutation of session/focus state.
type Session struct {
	logger rawlog.Logger
	driver Driver

	loop    *events.Loop
	manager *statemachine.Manager

	listener Listener

	mu           sync.Mutex
	sessionOpen  bool
	closing      bool
	observedStop bool

	rawImages chan DriverImage
}

// requesterAdapter satisfies statemachine.Requester by delegating to
// the session's Driver.
type requesterAdapter struct {
	driver Driver
}

func (a requesterAdapter) IssueCapture(req statemachine.CaptureRequest) error {
	_, err := a.driver.Submit(req)
	return err
}
func (a requesterAdapter) SetRepeating(req statemachine.CaptureRequest) error {
	return a.driver.SetRepeating(req)
}
func (a requesterAdapter) StopRepeating() error {
	return a.driver.StopRepeating()
}

// New builds a Session. collector and listener wire in the HDR
// collection (owned by the matcher's sink, see internal/consumer) and
// the caller's error/HDR-failure listener.
func New(logger rawlog.Logger, driver Driver, camera metadata.CameraDescription, collector statemachine.HdrCollector, listener Listener) *Session {
	s := &Session{
		logger:    logger,
		driver:    driver,
		listener:  listener,
		rawImages: make(chan DriverImage, rawImageQueueCapacity),
	}
	hdrListener := hdrListenerAdapter{listener: listener}
	s.manager = statemachine.NewManager(logger, camera, requesterAdapter{driver: driver}, collector, hdrListener, nil)
	s.loop = events.NewLoop(logger, 64, s.handle)
	return s
}

type hdrListenerAdapter struct{ listener Listener }

func (h hdrListenerAdapter) OnHdrCaptureFailed() { h.listener.OnHdrCaptureFailed() }

// Manager exposes the underlying state manager for inspection/tests.
func (s *Session) Manager() *statemachine.Manager { return s.manager }

// RawImages is the channel the copy worker reads driver images from.
func (s *Session) RawImages() <-chan DriverImage { return s.rawImages }

// Run starts the event loop; it blocks until the loop exits (see
// Close's two-phase shutdown).
func (s *Session) Run(ctx context.Context) {
	s.loop.Run(ctx)
}

// Post enqueues a command event, e.g. from a user-facing API.
func (s *Session) Post(e events.Event) {
	s.loop.Post(e)
}

// Open posts an OpenCamera command.
func (s *Session) Open(setupRawPreview bool) {
	s.loop.Post(events.Event{Tag: events.OpenCamera, OpenSetupRawPreview: setupRawPreview})
}

// Close posts CloseCamera followed by Stop, implementing spec.md's
// two-phase shutdown: the loop will keep running until it has both
// observed Stop and seen SessionState reach Closed.
func (s *Session) Close() {
	s.loop.Post(events.Event{Tag: events.CloseCamera})
	s.loop.Post(events.Event{Tag: events.Stop})
}

// --- driver callback ingestion: translate callbacks into Events ---
// These run on arbitrary driver callback threads and must never touch
// the pool or state manager directly (spec.md §5).

func (s *Session) OnCaptureCompleted(meta metadata.FrameMetadata, onMetadata func(metadata.FrameMetadata)) {
	// The matcher is fed directly (not through the event loop) since
	// metadata delivery has no session-state side effect of its own;
	// the event loop only cares about the sequence-level callbacks.
	onMetadata(meta)
}

func (s *Session) OnCaptureSequenceCompleted() {
	s.loop.Post(events.Event{Tag: events.ExposureStatusChanged}) // wakes handler; focus advance below
	s.advanceFocusSequence()
}

func (s *Session) advanceFocusSequence() {
	s.loop.Post(events.Event{Tag: events.FocusSequenceCompleted})
}

func (s *Session) OnHdrSequenceCompleted() {
	s.loop.Post(events.Event{Tag: events.HdrSequenceTerminated})
}

func (s *Session) OnHdrSequenceAborted() {
	s.loop.Post(events.Event{Tag: events.HdrSequenceTerminated})
}

func (s *Session) OnImageAvailable(img DriverImage, hdrInProgress bool) {
	select {
	case s.rawImages <- img:
	default:
		// Backpressure: the raw-image queue is full; the frame is
		// dropped (spec.md §5). Not surfaced to the listener.
	}
	if hdrInProgress {
		s.loop.Post(events.Event{Tag: events.SaveHdrData})
	}
}

func (s *Session) OnDeviceError(code int) {
	s.loop.Post(events.Event{Tag: events.CameraError, ErrorCode: code})
}

func (s *Session) OnDeviceDisconnected() {
	s.loop.Post(events.Event{Tag: events.CameraDisconnected})
}

func (s *Session) OnSessionReady() {
	s.loop.Post(events.Event{Tag: events.SessionStateChanged, SessionState: int(statemachine.Ready)})
}

func (s *Session) OnSessionActive() {
	s.loop.Post(events.Event{Tag: events.SessionStateChanged, SessionState: int(statemachine.Active)})
}

func (s *Session) OnSessionClosed() {
	s.loop.Post(events.Event{Tag: events.SessionStateChanged, SessionState: int(statemachine.Closed)})
}

// handle is the single dispatch point run exclusively on the loop
// goroutine.
func (s *Session) handle(e events.Event) (stop bool) {
	switch e.Tag {
	case events.OpenCamera:
		if err := s.driver.Open(e.OpenSetupRawPreview); err != nil {
			s.logger.Error("failed to open camera", rawlog.Error(err))
			return false
		}
		s.sessionOpen = true
		if err := s.manager.Start(); err != nil {
			s.logger.Error("failed to start focus state machine", rawlog.Error(err))
		}
	case events.CloseCamera:
		s.closing = true
		if err := s.driver.Close(); err != nil {
			s.logger.Error("failed to close camera", rawlog.Error(err))
		}
	case events.SetAutoExposure:
		s.manager.SetAutoExposure()
	case events.SetManualExposure:
		s.manager.SetManualExposure(e.ManualIso, e.ManualExposureNs)
	case events.SetExposureCompensation:
		if err := s.manager.RequestExposureCompensation(e.ExposureCompensation); err != nil {
			s.logger.Error("exposure compensation request failed", rawlog.Error(err))
		}
	case events.SetAutoFocus:
		if err := s.manager.RequestAutoFocus(); err != nil {
			s.logger.Error("auto focus request failed", rawlog.Error(err))
		}
	case events.SetFocusPoint:
		if err := s.manager.RequestUserFocus(e.FocusX, e.FocusY); err != nil {
			s.logger.Error("user focus request failed", rawlog.Error(err))
		}
	case events.CaptureHdr:
		if err := s.manager.CaptureHdr(e.HdrCount, e.HdrBaseIso, e.HdrBaseExposureNs, e.HdrIso, e.HdrExposureNs, ""); err != nil {
			s.logger.Error("hdr capture request failed", rawlog.Error(err))
		}
	case events.SaveHdrData:
		s.manager.EvaluateHdr()
	case events.CameraError:
		s.listener.OnCameraError(e.ErrorCode)
		s.loop.Post(events.Event{Tag: events.CloseCamera})
	case events.CameraDisconnected:
		s.listener.OnCameraDisconnected()
		s.loop.Post(events.Event{Tag: events.CloseCamera})
	case events.SessionStateChanged:
		if err := s.manager.OnSessionStateChanged(statemachine.SessionState(e.SessionState)); err != nil {
			s.logger.Error("session state transition failed", rawlog.Error(err))
		}
		if s.closing && statemachine.SessionState(e.SessionState) == statemachine.Closed {
			return s.observedStop
		}
	case events.FocusSequenceCompleted:
		s.manager.OnFocusSequenceCompleted()
	case events.HdrSequenceTerminated:
		s.manager.OnHdrSequenceTerminated()
	case events.Stop:
		s.observedStop = true
		if s.manager.Session() == statemachine.Closed {
			return true
		}
	case events.TimerTick:
		// re-evaluate time-driven transitions (HDR watchdog).
		s.manager.EvaluateHdr()
	}
	return false
}
