package torch

import (
	"errors"
	"fmt"
	"time"
)

// ModeKind identifies the torch output mode.
type ModeKind string

const (
	ModeOff    ModeKind = "off"
	ModeSteady ModeKind = "steady"
	ModeStrobe ModeKind = "strobe"
)

// Mode is the current output mode. Interval is set only for ModeStrobe.
type Mode struct {
	Kind     ModeKind
	Interval time.Duration
}

// Off returns the off mode.
func Off() Mode { return Mode{Kind: ModeOff} }

// Steady returns the steady-on mode.
func Steady() Mode { return Mode{Kind: ModeSteady} }

// Strobing returns the strobe mode at the given interval.
func Strobing(interval time.Duration) Mode {
	return Mode{Kind: ModeStrobe, Interval: interval}
}

// IsOn reports whether the LED is in use.
func (m Mode) IsOn() bool {
	return m.Kind != ModeOff && m.Kind != ""
}

func (m Mode) String() string {
	if m.Kind == ModeStrobe {
		return fmt.Sprintf("strobe(%s)", m.Interval)
	}
	if m.Kind == "" {
		return string(ModeOff)
	}
	return string(m.Kind)
}

// Reason is the cause of an interlock trip.
type Reason string

const (
	ReasonLowPower            Reason = "LowPower"
	ReasonContextInactive     Reason = "ContextInactive"
	ReasonMaxDurationExceeded Reason = "MaxDurationExceeded"
)

// Message returns a user-facing description of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonLowPower:
		return "battery level too low to use the torch"
	case ReasonContextInactive:
		return "torch is not in the active context"
	case ReasonMaxDurationExceeded:
		return "torch was on for too long and has been turned off"
	default:
		return string(r)
	}
}

// State is a consistent snapshot of the controller.
type State struct {
	Mode          Mode
	DeviceCapable bool
	// OnSince is zero while the mode is off.
	OnSince time.Time
	// Reason is the interlock that last forced the torch off. It is cleared
	// by the next successful turn-on.
	Reason Reason
}

// Guard vetoes turn-on commands while an interlock holds.
type Guard interface {
	Blocked() (Reason, bool)
}

var (
	// ErrInvalidInterval is returned for non-positive strobe intervals.
	ErrInvalidInterval = errors.New("strobe interval must be positive")
	// ErrNotStrobing is returned when changing the interval outside strobe mode.
	ErrNotStrobing = errors.New("torch is not strobing")
)

// InterlockError refuses a turn-on command while a safety interlock holds.
type InterlockError struct {
	Reason Reason
}

func (e *InterlockError) Error() string {
	return fmt.Sprintf("interlock %s: %s", e.Reason, e.Reason.Message())
}
