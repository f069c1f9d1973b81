package led

import (
	"errors"
	"fmt"
)

// Kind classifies device errors.
type Kind string

// Device error kinds.
const (
	// KindUnsupported means the device has no torch LED. Permanent.
	KindUnsupported Kind = "UNSUPPORTED"
	// KindUnavailable means the LED could not be claimed (busy, absent, denied).
	KindUnavailable Kind = "UNAVAILABLE"
	// KindCommandFailed means a previously acquired handle stopped working.
	KindCommandFailed Kind = "COMMAND_FAILED"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrUnsupported   = &DeviceError{Kind: KindUnsupported}
	ErrUnavailable   = &DeviceError{Kind: KindUnavailable}
	ErrCommandFailed = &DeviceError{Kind: KindCommandFailed}
)

// DeviceError represents a torch hardware failure.
type DeviceError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind.
func (e *DeviceError) Is(target error) bool {
	t, ok := target.(*DeviceError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// KindOf extracts the device error kind from err.
func KindOf(err error) (Kind, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

func newDeviceError(kind Kind, message string, cause error) *DeviceError {
	return &DeviceError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}
