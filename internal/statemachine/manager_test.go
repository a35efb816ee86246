package statemachine

import (
	"testing"
	"time"

	"github.com/warpcomdev/rawcore/internal/metadata"
)

type fakeRequester struct {
	issued    []CaptureRequest
	repeating *CaptureRequest
	stopped   int
}

func (r *fakeRequester) IssueCapture(req CaptureRequest) error {
	r.issued = append(r.issued, req)
	return nil
}
func (r *fakeRequester) SetRepeating(req CaptureRequest) error {
	cp := req
	r.repeating = &cp
	return nil
}
func (r *fakeRequester) StopRepeating() error {
	r.stopped++
	r.repeating = nil
	return nil
}

type fakeCollector struct {
	count int
	saved string
	reset bool
}

func (c *fakeCollector) Count() int { return c.count }
func (c *fakeCollector) Save(path string) error {
	c.saved = path
	return nil
}
func (c *fakeCollector) Reset() { c.reset = true }

type fakeListener struct {
	failed int
}

func (l *fakeListener) OnHdrCaptureFailed() { l.failed++ }

func newTestManager() (*Manager, *fakeRequester, *fakeCollector, *fakeListener) {
	req := &fakeRequester{}
	col := &fakeCollector{}
	lis := &fakeListener{}
	mgr := NewManager(nil, metadata.CameraDescription{}, req, col, lis, nil)
	return mgr, req, col, lis
}

// TestStartSequenceLandsInAutoActive checks that [start, SessionReady,
// SequenceCompleted, SessionReady, SequenceCompleted, SessionActive]
// lands in AutoActive: two completed sequences are needed to pass
// through TriggerAuto into AutoLocked.
func TestStartSequenceLandsInAutoActive(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	if err := mgr.Start(); err != nil {
		t.Fatal(err)
	}
	if mgr.Focus() != AutoWait {
		t.Fatalf("expected AutoWait after start, got %v", mgr.Focus())
	}
	if err := mgr.OnSessionStateChanged(Ready); err != nil {
		t.Fatal(err)
	}
	if mgr.Focus() != AutoWait {
		t.Fatalf("Ready in AutoWait should not itself transition focus, got %v", mgr.Focus())
	}
	mgr.OnFocusSequenceCompleted()
	if mgr.Focus() != TriggerAuto {
		t.Fatalf("expected TriggerAuto after sequence completed, got %v", mgr.Focus())
	}
	if err := mgr.OnSessionStateChanged(Ready); err != nil {
		t.Fatal(err)
	}
	mgr.OnFocusSequenceCompleted()
	if mgr.Focus() != AutoLocked {
		t.Fatalf("expected AutoLocked, got %v", mgr.Focus())
	}
	if err := mgr.OnSessionStateChanged(Active); err != nil {
		t.Fatal(err)
	}
	if mgr.Focus() != AutoActive {
		t.Fatalf("expected AutoActive, got %v", mgr.Focus())
	}
}

// TestUserFocusRequestLandsInUserActiveWithRegion follows spec.md §8's
// second scenario.
func TestUserFocusRequestLandsInUserActiveWithRegion(t *testing.T) {
	mgr, req, _, _ := newTestManager()
	mgr.Start()
	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted()
	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted()
	mgr.OnSessionStateChanged(Active)
	if mgr.Focus() != AutoActive {
		t.Fatalf("setup failed, got %v", mgr.Focus())
	}

	if err := mgr.RequestUserFocus(0.3, 0.7); err != nil {
		t.Fatal(err)
	}
	if mgr.Focus() != UserWait {
		t.Fatalf("expected UserWait, got %v", mgr.Focus())
	}

	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted() // UserWait -> TriggerUser
	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted() // TriggerUser -> UserLocked
	mgr.OnSessionStateChanged(Active)

	if mgr.Focus() != UserActive {
		t.Fatalf("expected UserActive, got %v", mgr.Focus())
	}
	last := req.issued[len(req.issued)-1]
	if last.AfRegion.X != 0.3 || last.AfRegion.Y != 0.7 {
		t.Fatalf("expected last issued AF region to cover (0.3,0.7), got %+v", last.AfRegion)
	}
}

func TestRequestAutoFocusIgnoredWhenAlreadyAutoActive(t *testing.T) {
	mgr, req, _, _ := newTestManager()
	mgr.Start()
	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted()
	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted()
	mgr.OnSessionStateChanged(Active)

	before := req.stopped
	if err := mgr.RequestAutoFocus(); err != nil {
		t.Fatal(err)
	}
	if mgr.Focus() != AutoActive {
		t.Fatalf("expected focus unchanged, got %v", mgr.Focus())
	}
	if req.stopped != before {
		t.Fatalf("expected no repeat-stop when already AutoActive")
	}
}

func TestPendingFocusRequestDrainsOnActive(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	mgr.Start() // AutoWait
	if err := mgr.RequestUserFocus(0.2, 0.2); err != nil {
		t.Fatal(err)
	}
	if mgr.Pending().Kind != PendingRequestUserFocus {
		t.Fatalf("expected pending user focus request while mid-transition")
	}
	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted() // -> TriggerAuto
	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted() // -> AutoLocked
	mgr.OnSessionStateChanged(Active)
	// Active drains pending: AutoLocked -> AutoActive, then pending
	// user focus fires, moving to UserWait.
	if mgr.Focus() != UserWait {
		t.Fatalf("expected pending user-focus request to fire, got %v", mgr.Focus())
	}
	if mgr.Pending().Kind != PendingNone {
		t.Fatalf("expected pending slot cleared")
	}
}

func TestPauseResume(t *testing.T) {
	mgr, req, _, _ := newTestManager()
	mgr.Start()
	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted()
	mgr.OnSessionStateChanged(Ready)
	mgr.OnFocusSequenceCompleted()
	mgr.OnSessionStateChanged(Active)

	if err := mgr.Pause(); err != nil {
		t.Fatal(err)
	}
	if mgr.Focus() != Paused {
		t.Fatalf("expected Paused, got %v", mgr.Focus())
	}
	if req.stopped == 0 {
		t.Fatalf("expected repeat request stopped on pause")
	}
	if err := mgr.Resume(); err != nil {
		t.Fatal(err)
	}
	if mgr.Focus() != AutoWait {
		t.Fatalf("expected AutoWait after resume, got %v", mgr.Focus())
	}
}

func TestHdrWatchdogFailsAfterFiveSeconds(t *testing.T) {
	current := time.Unix(0, 0)
	clock := func() time.Time { return current }

	req := &fakeRequester{}
	col := &fakeCollector{count: 2} // only 2 of 5 arrived
	lis := &fakeListener{}
	mgr := NewManager(nil, metadata.CameraDescription{}, req, col, lis, clock)

	if err := mgr.CaptureHdr(4, 100, 1000, 400, 500, "/tmp/out.zip"); err != nil {
		t.Fatal(err)
	}
	if !mgr.HdrInProgress() {
		t.Fatalf("expected HDR in progress")
	}
	mgr.OnHdrSequenceTerminated()

	mgr.EvaluateHdr()
	if lis.failed != 0 {
		t.Fatalf("watchdog should not fire before 5s elapsed")
	}

	current = current.Add(6 * time.Second)
	mgr.EvaluateHdr()
	if lis.failed != 1 {
		t.Fatalf("expected exactly one HDR failure notification, got %d", lis.failed)
	}
	if !col.reset {
		t.Fatalf("expected partial collection discarded")
	}
	if mgr.HdrInProgress() {
		t.Fatalf("expected HDR capture cleared after failure")
	}
}

func TestHdrSavesOnceEnoughFramesArrive(t *testing.T) {
	mgr, _, col, _ := newTestManager()
	col.count = 5
	if err := mgr.CaptureHdr(4, 100, 1000, 400, 500, "/tmp/out.zip"); err != nil {
		t.Fatal(err)
	}
	mgr.EvaluateHdr()
	if col.saved != "/tmp/out.zip" {
		t.Fatalf("expected collector.Save called with output path")
	}
	if mgr.HdrInProgress() {
		t.Fatalf("expected HDR capture cleared after save")
	}
}

func TestPartialHdrQueuesOneRequestButExpectsCountPlusOne(t *testing.T) {
	mgr, req, _, _ := newTestManager()
	// base_iso == 0 with hdr_iso/hdr_exp set: partial path (spec.md
	// §4.3 item 1, flagged as a possibly-inherited source bug in
	// spec.md's Design Notes — preserved verbatim here).
	if err := mgr.CaptureHdr(4, 0, 0, 400, 500, "/tmp/p.zip"); err != nil {
		t.Fatal(err)
	}
	if len(req.issued) != 1 {
		t.Fatalf("expected exactly one queued request for the partial path, got %d", len(req.issued))
	}
	if !mgr.hdr.Partial {
		t.Fatalf("expected partial flag set")
	}
	if mgr.hdr.RequestedCount != 5 {
		t.Fatalf("expected requested count+1=5, got %d", mgr.hdr.RequestedCount)
	}
}
