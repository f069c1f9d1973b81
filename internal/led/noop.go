package led

import (
	"errors"

	"github.com/smazurov/torchnode/internal/logging"
)

var errNoLED = errors.New("no torch LED on this device")

// noop implements Driver for devices without a torch LED.
type noop struct {
	logger logging.Logger
}

// newNoop creates a driver that reports the LED as unavailable
func newNoop(logger logging.Logger) *noop {
	return &noop{
		logger: logger,
	}
}

func (n *noop) Name() string {
	return "none"
}

func (n *noop) Available() bool {
	return false
}

// Open always fails since there is nothing to claim
func (n *noop) Open() (Output, error) {
	n.logger.Debug("Torch LED not available (no-op)")
	return nil, errNoLED
}
