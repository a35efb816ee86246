package statemachine

// Trigger is a one-shot AF/AE trigger value submitted with a capture
// request.
type Trigger int

const (
	TriggerIdle Trigger = iota
	TriggerStart
)

// AfRegion is a single autofocus region expressed in normalized [0,1]
// sensor-array coordinates plus a half-extent.
type AfRegion struct {
	X, Y, Extent float64
}

// CaptureRequest carries the canonical fields spec.md §4.3 requires on
// every capture request the state manager issues.
type CaptureRequest struct {
	Intent              string // "ZeroShutterLag"
	ControlMode         string // "Auto"
	TonemapMode         string // "Fast"
	ColorCorrectionMode string // "HighQuality"
	NoiseReduction      string // "Minimal"
	Antibanding         string // "Auto"
	LensShadingStatsOn  bool
	LensShadingApplied  bool
	OisEnabled          bool

	AfTrigger Trigger
	AeTrigger Trigger
	AfRegion  AfRegion

	ManualMode       bool
	ManualIso        int
	ManualExposureNs int64

	ExposureCompensation float64
}

// baseRequest returns a CaptureRequest with every canonical field from
// spec.md §4.3 filled in except the AF/AE triggers and region, which
// callers set per-transition.
func baseRequest(supportsOis bool) CaptureRequest {
	return CaptureRequest{
		Intent:              "ZeroShutterLag",
		ControlMode:         "Auto",
		TonemapMode:         "Fast",
		ColorCorrectionMode: "HighQuality",
		NoiseReduction:      "Minimal",
		Antibanding:         "Auto",
		LensShadingStatsOn:  true,
		LensShadingApplied:  false,
		OisEnabled:          supportsOis,
	}
}

// Requester is the capture-session facade the state manager drives. It
// is implemented inside internal/session by an adapter over the
// session's Driver.
type Requester interface {
	// IssueCapture submits a one-shot capture request (used for AF/AE
	// trigger sequences and the HDR burst).
	IssueCapture(req CaptureRequest) error
	// SetRepeating installs req as the continuous repeat request.
	SetRepeating(req CaptureRequest) error
	// StopRepeating cancels the continuous repeat request.
	StopRepeating() error
}
