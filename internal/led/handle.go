package led

import (
	"sync"

	"github.com/smazurov/torchnode/internal/logging"
	"github.com/smazurov/torchnode/internal/metrics"
)

// Illuminator owns the single claim on the torch LED.
// At most one Handle is open at any time.
type Illuminator struct {
	mu      sync.Mutex
	driver  Driver
	logger  logging.Logger
	current *Handle
}

// Handle is an acquired torch claim. It is valid until released or until a
// Set call fails, after which the owner must re-acquire.
type Handle struct {
	ill *Illuminator
	out Output

	mu       sync.Mutex
	released bool
	broken   bool
}

// NewIlluminator wraps a driver with scoped acquire/release semantics.
func NewIlluminator(driver Driver, logger logging.Logger) *Illuminator {
	if logger == nil {
		logger = logging.GetLogger("led")
	}
	return &Illuminator{
		driver: driver,
		logger: logger,
	}
}

// Capable reports whether the device has a torch LED.
func (i *Illuminator) Capable() bool {
	return i.driver.Available()
}

// Name returns the underlying LED name.
func (i *Illuminator) Name() string {
	return i.driver.Name()
}

// Acquire claims the LED. While a usable handle is held it is returned as is.
// A handle invalidated by a failed Set is closed before a fresh attempt.
func (i *Illuminator) Acquire() (*Handle, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.driver.Available() {
		metrics.IncDeviceError(string(KindUnsupported))
		return nil, newDeviceError(KindUnsupported, "device has no torch LED", nil)
	}

	if h := i.current; h != nil {
		if h.usable() {
			return h, nil
		}
		i.logger.Debug("Discarding invalidated torch handle", "led", i.driver.Name())
		i.closeLocked(h)
	}

	out, err := i.driver.Open()
	if err != nil {
		i.logger.Warn("Failed to open torch LED", "led", i.driver.Name(), "error", err)
		metrics.IncDeviceError(string(KindUnavailable))
		return nil, newDeviceError(KindUnavailable, "failed to open torch LED", err)
	}

	h := &Handle{ill: i, out: out}
	i.current = h
	metrics.IncHandleAcquire()
	i.logger.Debug("Torch handle acquired", "led", i.driver.Name())
	return h, nil
}

// Held reports whether a handle is currently open.
func (i *Illuminator) Held() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current != nil
}

// Set drives the LED. A failure invalidates the handle.
func (h *Handle) Set(on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return newDeviceError(KindCommandFailed, "torch handle already released", nil)
	}
	if h.broken {
		return newDeviceError(KindCommandFailed, "torch handle invalidated by an earlier failure", nil)
	}

	if err := h.out.Set(on); err != nil {
		h.broken = true
		metrics.IncDeviceError(string(KindCommandFailed))
		return newDeviceError(KindCommandFailed, "failed to set torch output", err)
	}
	return nil
}

// ForceOff writes off straight to the output, even when an earlier failure
// invalidated the handle. It is the fail-safe path; released handles are left
// alone.
func (h *Handle) ForceOff() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return newDeviceError(KindCommandFailed, "torch handle already released", nil)
	}
	if err := h.out.Set(false); err != nil {
		return newDeviceError(KindCommandFailed, "failed to switch torch off", err)
	}
	return nil
}

// Release gives the claim back. It never fails from the caller's view and
// further calls are no-ops.
func (h *Handle) Release() {
	h.ill.mu.Lock()
	defer h.ill.mu.Unlock()
	h.ill.closeLocked(h)
}

func (h *Handle) usable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.released && !h.broken
}

func (i *Illuminator) closeLocked(h *Handle) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()

	if err := h.out.Close(); err != nil {
		i.logger.Warn("Failed to close torch LED", "led", i.driver.Name(), "error", err)
	}
	if i.current == h {
		i.current = nil
	}
	metrics.IncHandleRelease()
	i.logger.Debug("Torch handle released", "led", i.driver.Name())
}
