package power

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smazurov/torchnode/internal/events"
	"github.com/smazurov/torchnode/internal/logging"
	"github.com/smazurov/torchnode/internal/monitoring"
)

// Options configures a Watcher.
type Options struct {
	// Root overrides /sys/class/power_supply.
	Root string
	// Supply names the battery; empty auto-detects.
	Supply string
}

type eventSource interface {
	Run(ctx context.Context, handle func(*monitoring.UEvent)) error
	Close() error
}

// Watcher publishes PowerChangedEvent whenever the battery level or charging
// state changes.
type Watcher struct {
	bus       *events.Bus
	root      string
	logger    logging.Logger
	newSource func() (eventSource, error)

	mu        sync.Mutex
	supply    string
	last      Reading
	published bool
}

// NewWatcher creates a watcher. Nothing is read until Run.
func NewWatcher(bus *events.Bus, opts Options) *Watcher {
	return &Watcher{
		bus:    bus,
		root:   opts.Root,
		supply: opts.Supply,
		logger: logging.GetLogger("power"),
		newSource: func() (eventSource, error) {
			return monitoring.NewListener(monitoring.SubsystemPowerSupply)
		},
	}
}

// Supply returns the battery being watched, empty before detection.
func (w *Watcher) Supply() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.supply
}

// Last returns the most recently published reading.
func (w *Watcher) Last() (Reading, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.published
}

// Run publishes the current sysfs reading, then follows kernel uevents until
// ctx is cancelled. Without a battery it returns nil straight away.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Supply() == "" {
		name, err := DetectBattery(w.root)
		if err != nil {
			w.logger.Info("No battery found, power interlock stays clear", "error", err)
			return nil
		}
		w.mu.Lock()
		w.supply = name
		w.mu.Unlock()
	}

	supply := w.Supply()
	w.logger.Info("Watching battery", "supply", supply)

	if err := w.Refresh(); err != nil {
		w.logger.Warn("Failed to read battery", "supply", supply, "error", err)
	}

	src, err := w.newSource()
	if err != nil {
		w.logger.Warn("Kernel uevents unavailable, using the initial reading only", "error", err)
		return nil
	}
	defer src.Close()

	err = src.Run(ctx, w.handleEvent)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Refresh reads the battery from sysfs and publishes it if it changed.
func (w *Watcher) Refresh() error {
	r, err := ReadSupply(w.root, w.Supply())
	if err != nil {
		return err
	}
	w.apply(r)
	return nil
}

func (w *Watcher) handleEvent(ev *monitoring.UEvent) {
	supply := w.Supply()

	if r, ok := eventReading(ev, supply); ok {
		w.apply(r)
		return
	}

	// Some drivers send bare change notifications; re-read sysfs for those.
	name := ev.Env["POWER_SUPPLY_NAME"]
	if name == supply || name == "" {
		if err := w.Refresh(); err != nil {
			w.logger.Debug("Failed to re-read battery after uevent", "action", ev.Action, "error", err)
		}
	}
}

func (w *Watcher) apply(r Reading) {
	w.mu.Lock()
	changed := !w.published || r.Level != w.last.Level || r.Charging != w.last.Charging
	w.last = r
	w.published = true
	w.mu.Unlock()

	if !changed {
		return
	}

	w.logger.Debug("Battery changed", "supply", r.Supply, "level", r.Level, "status", r.Status)
	if w.bus != nil {
		w.bus.Publish(events.PowerChangedEvent{
			Supply:    r.Supply,
			Level:     r.Level,
			Charging:  r.Charging,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}
