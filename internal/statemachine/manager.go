package statemachine

import (
	"time"

	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/metrics"
	"github.com/warpcomdev/rawcore/internal/rawlog"
)

// Clock is injected so HDR-watchdog tests don't depend on wall time.
type Clock func() time.Time

// Manager drives the focus/exposure sub-state machine of spec.md §4.3.
// Every method runs on the event-loop goroutine; nothing here takes a
// lock, mirroring the "cooperative, single-threaded core" design.
type Manager struct {
	logger rawlog.Logger
	now    Clock

	camera    metadata.CameraDescription
	requester Requester
	collector HdrCollector
	listener  HdrListener

	session SessionState
	focus   FocusState
	pending PendingAction

	manualMode           bool
	manualIso            int
	manualExposureNs     int64
	exposureCompensation float64
	requestedFocusX      float64
	requestedFocusY      float64

	hdr *HdrCapture
}

// NewManager constructs a Manager in the Closed/Paused state.
func NewManager(logger rawlog.Logger, camera metadata.CameraDescription, requester Requester, collector HdrCollector, listener HdrListener, now Clock) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		logger:    logger,
		now:       now,
		camera:    camera,
		requester: requester,
		collector: collector,
		listener:  listener,
		session:   Closed,
		focus:     Paused,
	}
}

// metricsLabel is constant: one Manager exists per process today, so a
// fixed label keeps the gauge vector trivial to scrape. Multi-camera
// deployments would thread a per-session label through NewManager.
const metricsLabel = "session"

func (m *Manager) publishMetrics() {
	metrics.SessionState.WithLabelValues(metricsLabel).Set(float64(m.session))
	metrics.FocusState.WithLabelValues(metricsLabel).Set(float64(m.focus))
}

// Session returns the current SessionState.
func (m *Manager) Session() SessionState { return m.session }

// Focus returns the current FocusState.
func (m *Manager) Focus() FocusState { return m.focus }

// Pending returns the currently queued PendingAction.
func (m *Manager) Pending() PendingAction { return m.pending }

func (m *Manager) baseRequest() CaptureRequest {
	req := baseRequest(m.camera.SupportsOis())
	req.ManualMode = m.manualMode
	if m.manualMode {
		req.ManualIso = m.manualIso
		req.ManualExposureNs = m.manualExposureNs
	}
	req.ExposureCompensation = m.exposureCompensation
	return req
}

// Start issues the initial AF/AE trigger capture (spec.md §4.3
// "start()"): Closed -> AutoWait, centered AF region, AE trigger Start
// in auto mode or Idle in manual mode.
func (m *Manager) Start() error {
	m.focus = AutoWait
	defer m.publishMetrics()
	req := m.baseRequest()
	req.AfTrigger = TriggerStart
	if m.manualMode {
		req.AeTrigger = TriggerIdle
	} else {
		req.AeTrigger = TriggerStart
	}
	req.AfRegion = AfRegion{X: 0.5, Y: 0.5, Extent: 0.25}
	return m.requester.IssueCapture(req)
}

// SetAutoExposure switches to auto-exposure mode.
func (m *Manager) SetAutoExposure() {
	m.manualMode = false
}

// SetManualExposure switches to manual exposure with the given iso and
// exposure time; the new values take effect on the next issued request.
func (m *Manager) SetManualExposure(iso int, exposureNs int64) {
	m.manualMode = true
	m.manualIso = iso
	m.manualExposureNs = exposureNs
}

// OnFocusSequenceCompleted advances the focus state machine on a
// driver "capture sequence completed" callback tied to an AF trigger
// (as opposed to the HDR burst's own sequence-completed callback,
// handled by OnHdrSequenceTerminated).
func (m *Manager) OnFocusSequenceCompleted() {
	defer m.publishMetrics()
	switch m.focus {
	case AutoWait:
		m.focus = TriggerAuto
	case TriggerAuto:
		m.focus = AutoLocked
	case AutoActive:
		m.focus = AutoWait
	case UserWait:
		m.focus = TriggerUser
	case TriggerUser:
		m.focus = UserLocked
	}
}

// OnSessionStateChanged handles driver session-state callbacks: it
// issues the next AF trigger once the session reaches Ready, installs
// the continuous repeat request once a lock state is reached, and
// drains any queued PendingAction once the session reaches Active.
func (m *Manager) OnSessionStateChanged(state SessionState) error {
	m.session = state
	defer m.publishMetrics()
	switch state {
	case Ready:
		return m.onReady()
	case Active:
		return m.onActive()
	}
	return nil
}

func (m *Manager) onReady() error {
	switch m.focus {
	case TriggerUser:
		req := m.baseRequest()
		req.AfTrigger = TriggerStart
		req.AfRegion = AfRegion{X: m.requestedFocusX, Y: m.requestedFocusY, Extent: 0.25}
		return m.requester.IssueCapture(req)
	case TriggerAuto:
		req := m.baseRequest()
		req.AfTrigger = TriggerStart
		req.AfRegion = AfRegion{X: 0.5, Y: 0.5, Extent: 0.25}
		return m.requester.IssueCapture(req)
	case AutoLocked, UserLocked:
		req := m.baseRequest()
		req.AfTrigger = TriggerIdle
		if m.focus == UserLocked {
			req.AfRegion = AfRegion{X: m.requestedFocusX, Y: m.requestedFocusY, Extent: 0.25}
		} else {
			req.AfRegion = AfRegion{X: 0.5, Y: 0.5, Extent: 0.25}
		}
		return m.requester.SetRepeating(req)
	}
	return nil
}

func (m *Manager) onActive() error {
	switch m.focus {
	case AutoLocked:
		m.focus = AutoActive
	case UserLocked:
		m.focus = UserActive
	}
	return m.drainPending()
}

func (m *Manager) drainPending() error {
	switch m.pending.Kind {
	case PendingRequestUserFocus:
		x, y := m.pending.X, m.pending.Y
		m.pending = PendingAction{}
		return m.RequestUserFocus(x, y)
	case PendingRequestAutoFocus:
		m.pending = PendingAction{}
		return m.RequestAutoFocus()
	}
	return nil
}

// RequestUserFocus implements spec.md §4.3 "request_user_focus(x, y)".
func (m *Manager) RequestUserFocus(x, y float64) error {
	switch m.focus {
	case AutoActive, UserActive:
		if err := m.requester.StopRepeating(); err != nil {
			return err
		}
		m.requestedFocusX, m.requestedFocusY = x, y
		m.focus = UserWait
		return nil
	default:
		m.pending = PendingAction{Kind: PendingRequestUserFocus, X: x, Y: y}
		return nil
	}
}

// RequestAutoFocus implements spec.md §4.3 "request_auto_focus()":
// symmetric to RequestUserFocus, ignored if already AutoActive.
func (m *Manager) RequestAutoFocus() error {
	switch m.focus {
	case AutoActive:
		return nil
	case UserActive:
		if err := m.requester.StopRepeating(); err != nil {
			return err
		}
		m.focus = AutoWait
		return nil
	default:
		m.pending = PendingAction{Kind: PendingRequestAutoFocus}
		return nil
	}
}

// RequestExposureCompensation implements spec.md §4.3
// "request_exposure_compensation(v)".
func (m *Manager) RequestExposureCompensation(v float64) error {
	m.exposureCompensation = v
	if m.focus == AutoActive || m.focus == UserLocked {
		req := m.baseRequest()
		req.AfTrigger = TriggerIdle
		return m.requester.SetRepeating(req)
	}
	return nil
}

// Pause implements spec.md §4.3 "pause()".
func (m *Manager) Pause() error {
	if err := m.requester.StopRepeating(); err != nil {
		return err
	}
	m.focus = Paused
	return nil
}

// Resume implements spec.md §4.3 "resume()".
func (m *Manager) Resume() error {
	if m.focus != Paused {
		return nil
	}
	return m.Start()
}

// --- HDR (spec.md §4.3 "HDR capture") ---

// CaptureHdr queues an HDR bracketed burst. outputPath is where the
// eventual archive will be written once the collection completes.
func (m *Manager) CaptureHdr(count, baseIso int, baseExposureNs int64, hdrIso int, hdrExposureNs int64, outputPath string) error {
	hdr := &HdrCapture{
		OutputPath:     outputPath,
		InProgress:     true,
		BaseIso:        baseIso,
		BaseExposureNs: baseExposureNs,
		HdrIso:         hdrIso,
		HdrExposureNs:  hdrExposureNs,
	}

	partial := hdrIso > 0 && hdrExposureNs > 0 && baseIso == 0
	hdr.Partial = partial
	hdr.RequestedCount = count + 1

	if partial {
		req := m.baseRequest()
		req.ManualMode = true
		req.ManualIso = hdrIso
		req.ManualExposureNs = hdrExposureNs
		if err := m.requester.IssueCapture(req); err != nil {
			return err
		}
	} else {
		middle := count / 2
		for i := 0; i <= count; i++ {
			req := m.baseRequest()
			req.ManualMode = true
			if i == middle {
				req.ManualIso = hdrIso
				req.ManualExposureNs = hdrExposureNs
			} else {
				req.ManualIso = baseIso
				req.ManualExposureNs = baseExposureNs
			}
			if err := m.requester.IssueCapture(req); err != nil {
				return err
			}
		}
	}

	m.hdr = hdr
	metrics.HdrCapturesStarted.Inc()
	return nil
}

// OnHdrSequenceTerminated handles the driver's
// capture_sequence_completed / capture_sequence_aborted callback for
// the HDR burst: it starts the 5s watchdog clock.
func (m *Manager) OnHdrSequenceTerminated() {
	if m.hdr == nil {
		return
	}
	t := m.now()
	m.hdr.SequenceCompletedAt = &t
}

// EvaluateHdr re-checks HDR progress; it should be called on every
// pixel arrival and on every event-loop timer tick (spec.md §4.3 step
// 5). It persists the collection once enough frames have arrived, and
// fails the capture once the 5s watchdog elapses short of the target.
func (m *Manager) EvaluateHdr() {
	if m.hdr == nil {
		return
	}
	if m.collector.Count() >= m.hdr.RequestedCount {
		path := m.hdr.OutputPath
		err := m.collector.Save(path)
		if err != nil {
			m.logger.Error("hdr save failed", rawlog.Error(err))
		} else {
			metrics.HdrCapturesSaved.Inc()
		}
		m.hdr = nil
		return
	}
	if m.hdr.SequenceCompletedAt == nil {
		return
	}
	if m.now().Sub(*m.hdr.SequenceCompletedAt) > HdrWatchdog {
		m.listener.OnHdrCaptureFailed()
		m.collector.Reset()
		m.hdr = nil
		metrics.HdrCapturesFailed.Inc()
	}
}

// HdrInProgress reports whether an HDR capture is currently pending.
func (m *Manager) HdrInProgress() bool {
	return m.hdr != nil
}
