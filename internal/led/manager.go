package led

import (
	"context"
	"errors"
	"sync"

	"github.com/smazurov/torchnode/internal/logging"
	"github.com/smazurov/torchnode/internal/monitoring"
)

type eventSource interface {
	Run(ctx context.Context, handle func(*monitoring.UEvent)) error
	Close() error
}

// Manager follows LED hotplug events for the torch driver and reports when
// the LED appears or goes away.
type Manager struct {
	driver    Driver
	onChange  func(capable bool)
	logger    logging.Logger
	newSource func() (eventSource, error)

	mu      sync.Mutex
	capable bool
}

// NewManager creates a manager for driver. onChange is called with the new
// capability whenever it flips.
func NewManager(driver Driver, onChange func(capable bool), logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetLogger("led")
	}
	return &Manager{
		driver:   driver,
		onChange: onChange,
		logger:   logger,
		capable:  driver.Available(),
		newSource: func() (eventSource, error) {
			return monitoring.NewListener(monitoring.SubsystemLEDs)
		},
	}
}

// Capable returns the last capability seen.
func (m *Manager) Capable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capable
}

// Run follows kernel LED events until ctx is cancelled. Without uevents the
// capability found at startup stands and Run returns nil.
func (m *Manager) Run(ctx context.Context) error {
	src, err := m.newSource()
	if err != nil {
		m.logger.Info("LED hotplug unavailable", "led", m.driver.Name(), "error", err)
		return nil
	}
	defer src.Close()

	m.logger.Debug("Watching LED hotplug", "led", m.driver.Name())
	err = src.Run(ctx, m.handleEvent)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (m *Manager) handleEvent(ev *monitoring.UEvent) {
	if ev.Name() != m.driver.Name() {
		return
	}
	if ev.Action != "add" && ev.Action != "remove" && ev.Action != "change" {
		return
	}

	m.logger.Debug("LED event", "action", ev.Action, "led", ev.Name())
	m.update()
}

// update re-checks the driver and reports a flip.
func (m *Manager) update() {
	capable := m.driver.Available()

	m.mu.Lock()
	changed := capable != m.capable
	m.capable = capable
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info("Torch LED availability changed", "led", m.driver.Name(), "capable", capable)
	if m.onChange != nil {
		m.onChange(capable)
	}
}
