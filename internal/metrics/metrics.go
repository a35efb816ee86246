// Package metrics centralizes the prometheus gauges/counters that
// don't belong to exactly one package: session-lifecycle and
// HDR-capture outcomes (internal/pool, internal/events and
// internal/consumer keep their own pool gauges, queue-depth gauge and
// frame counters next to the state they describe).
// Grounded on the teacher's internal/driver/camera/metrics.go, which
// registers its ASI_CONTROL_TYPE gauges the same promauto way.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rawcore_session_state",
		Help: "Current capture SessionState (0=Closed,1=Ready,2=Active)",
	}, []string{"camera"})

	FocusState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rawcore_focus_state",
		Help: "Current focus/exposure sub-state machine state",
	}, []string{"camera"})

	HdrCapturesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_hdr_captures_started_total",
		Help: "Number of HDR bracketed captures initiated",
	})
	HdrCapturesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_hdr_captures_saved_total",
		Help: "Number of HDR bracketed captures that completed and were saved",
	})
	HdrCapturesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_hdr_captures_failed_total",
		Help: "Number of HDR bracketed captures that failed the 5s watchdog",
	})

	ProcessorProgress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rawcore_processor_progress_percent",
		Help: "Progress (0-100) of the in-flight offline processing job",
	}, []string{"job"})

	ProcessorJobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_processor_jobs_completed_total",
		Help: "Number of offline processing jobs that completed successfully",
	})
	ProcessorJobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rawcore_processor_jobs_failed_total",
		Help: "Number of offline processing jobs that errored",
	})
)
