// Package statemachine implements the focus/exposure sub-state machine
// and session-state bookkeeping described in spec.md §3 and §4.3. All
// mutation happens on the event-loop goroutine (spec.md §5): nothing in
// this package takes a lock.
package statemachine

import "fmt"

// SessionState reflects the driver's session lifecycle.
type SessionState int

const (
	Closed SessionState = iota
	Ready
	Active
)

func (s SessionState) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Ready:
		return "Ready"
	case Active:
		return "Active"
	default:
		return "Unknown"
	}
}

// FocusState drives AF trigger sequencing (spec.md §3, §4.3).
type FocusState int

const (
	AutoActive FocusState = iota
	AutoWait
	TriggerAuto
	AutoLocked
	UserWait
	TriggerUser
	UserLocked
	Paused
	// UserActive is the user-focus analogue of AutoActive; spec.md's
	// transition table names it explicitly ("UserLocked -> UserActive")
	// even though it lists only 8 states up front alongside AutoActive
	// in the glossary of states - we keep it as the ninth state the
	// transition table actually requires.
	UserActive
)

func (f FocusState) String() string {
	switch f {
	case AutoActive:
		return "AutoActive"
	case AutoWait:
		return "AutoWait"
	case TriggerAuto:
		return "TriggerAuto"
	case AutoLocked:
		return "AutoLocked"
	case UserWait:
		return "UserWait"
	case TriggerUser:
		return "TriggerUser"
	case UserLocked:
		return "UserLocked"
	case Paused:
		return "Paused"
	case UserActive:
		return "UserActive"
	default:
		return "Unknown"
	}
}

// PendingActionKind tags the one-deep queue of user requests that
// arrive while the state machine is mid-transition.
type PendingActionKind int

const (
	PendingNone PendingActionKind = iota
	PendingRequestAutoFocus
	PendingRequestUserFocus
)

// PendingAction is a one-deep queue slot.
type PendingAction struct {
	Kind PendingActionKind
	X, Y float64
}

func (p PendingAction) String() string {
	switch p.Kind {
	case PendingRequestAutoFocus:
		return "RequestAutoFocus"
	case PendingRequestUserFocus:
		return fmt.Sprintf("RequestUserFocus{%.3f,%.3f}", p.X, p.Y)
	default:
		return "None"
	}
}
