package statemachine

import "time"

// HdrCapture tracks one in-flight HDR bracketed capture (spec.md §3).
type HdrCapture struct {
	RequestedCount      int
	SavedCount          int
	Partial             bool
	SequenceCompletedAt *time.Time
	InProgress          bool
	OutputPath          string

	BaseIso        int
	BaseExposureNs int64
	HdrIso         int
	HdrExposureNs  int64
}

// HdrWatchdog is the duration spec.md §4.3/§8 fixes at 5 seconds: once
// a capture sequence completes (or aborts), if the HDR collection is
// still short of RequestedCount after this long, the capture fails.
const HdrWatchdog = 5 * time.Second

// HdrCollector is the HDR frame collection maintained by the matcher's
// sink (spec.md §4.2: frames tagged Hdr are retained, not returned to
// the ring). The state manager only queries its size and triggers
// persistence; it never touches frame bytes directly.
type HdrCollector interface {
	Count() int
	Save(outputPath string) error
	Reset()
}

// HdrListener is notified of terminal HDR outcomes.
type HdrListener interface {
	OnHdrCaptureFailed()
}
