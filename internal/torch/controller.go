// Package torch implements the flash mode state machine that owns the torch LED.
//
// The controller is the only holder of the LED handle. Commands from the API,
// interlock trips from the safety monitor, and strobe failures all funnel
// through a single command mutex, so transitions are applied one at a time in
// arrival order. Observers read State snapshots under a separate short-lived
// lock that is never held across hardware I/O.
package torch

import (
	"errors"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/smazurov/torchnode/internal/events"
	"github.com/smazurov/torchnode/internal/led"
	"github.com/smazurov/torchnode/internal/logging"
	"github.com/smazurov/torchnode/internal/metrics"
	"github.com/smazurov/torchnode/internal/strobe"
)

// Options configures a Controller.
type Options struct {
	Illuminator *led.Illuminator
	Bus         *events.Bus
	Clock       clockz.Clock
	Logger      logging.Logger
}

// Controller is the flash mode state machine.
type Controller struct {
	ill       *led.Illuminator
	scheduler *strobe.Scheduler
	bus       *events.Bus
	clock     clockz.Clock
	logger    logging.Logger

	// cmdMu serializes transitions. Lock order: cmdMu, strobe tick lock, mu.
	cmdMu sync.Mutex

	mu                  sync.Mutex
	state               State
	handle              *led.Handle
	task                *strobe.Task
	guard               Guard
	listeners           []func(State)
	unsupportedReported bool
}

// NewController creates a controller in the off state.
func NewController(opts Options) *Controller {
	clock := opts.Clock
	if clock == nil {
		clock = clockz.RealClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("torch")
	}

	capable := opts.Illuminator != nil && opts.Illuminator.Capable()

	c := &Controller{
		ill:       opts.Illuminator,
		scheduler: strobe.NewScheduler(clock, logging.GetLogger("strobe")),
		bus:       opts.Bus,
		clock:     clock,
		logger:    logger,
		state: State{
			Mode:          Off(),
			DeviceCapable: capable,
		},
	}
	metrics.SetMode(string(ModeOff))
	return c
}

// SetGuard installs the interlock consulted before every turn-on.
func (c *Controller) SetGuard(g Guard) {
	c.mu.Lock()
	c.guard = g
	c.mu.Unlock()
}

// OnStateChange registers fn to run after every committed transition. It runs
// with the command mutex held and must not issue controller commands itself.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// QueryState returns a consistent snapshot.
func (c *Controller) QueryState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TurnOn switches to steady illumination. From strobe mode the running task
// is cancelled and the LED is held on.
func (c *Controller) TurnOn() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	return c.turnOnLocked()
}

// TurnOff switches the LED off and releases it. Off is idempotent.
func (c *Controller) TurnOff() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.capableLocked(); err != nil {
		return err
	}
	return c.offLocked("")
}

// Toggle turns the torch on when off and off otherwise.
func (c *Controller) Toggle() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.capableLocked(); err != nil {
		return err
	}
	if c.QueryState().Mode.IsOn() {
		return c.offLocked("")
	}
	return c.turnOnLocked()
}

// StartStrobe enters strobe mode. Calling it while already strobing changes
// the interval.
func (c *Controller) StartStrobe(interval time.Duration) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.admitLocked(); err != nil {
		return err
	}
	if interval <= 0 {
		return ErrInvalidInterval
	}

	c.mu.Lock()
	current := c.state.Mode
	c.mu.Unlock()

	if current.Kind == ModeStrobe {
		return c.setIntervalLocked(interval)
	}

	h, err := c.acquireLocked()
	if err != nil {
		return err
	}

	// Steady to strobe: the LED is lit, so the first "on" edge is a no-op
	// and the visible cycle starts with the following "off".
	task, err := c.scheduler.Start(interval, c.edgeWriter(h), c.strobeFailed)
	if err != nil {
		return c.failLocked(err)
	}

	c.mu.Lock()
	c.task = task
	c.mu.Unlock()

	c.commitLocked(Strobing(interval), "")
	metrics.SetStrobeInterval(interval.Seconds())
	return nil
}

// SetStrobeInterval changes the strobe interval from the next scheduled tick.
func (c *Controller) SetStrobeInterval(interval time.Duration) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.capableLocked(); err != nil {
		return err
	}
	if interval <= 0 {
		return ErrInvalidInterval
	}
	return c.setIntervalLocked(interval)
}

// Trip forces the torch off on behalf of a safety interlock. The reason is
// recorded even if the torch was already off.
func (c *Controller) Trip(reason Reason) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	return c.tripLocked(reason)
}

// TripSession trips like Trip, but only while the torch is still in the on
// session that started at onSince. It reports whether the trip applied.
func (c *Controller) TripSession(reason Reason, onSince time.Time) (bool, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	current := c.state.Mode.IsOn() && c.state.OnSince.Equal(onSince)
	c.mu.Unlock()
	if !current {
		c.logger.Debug("Ignoring trip for an ended torch session", "reason", reason)
		return false, nil
	}
	return true, c.tripLocked(reason)
}

func (c *Controller) tripLocked(reason Reason) error {
	c.logger.Info("Interlock tripped", "reason", reason)
	err := c.offLocked(reason)

	c.mu.Lock()
	c.state.Reason = reason
	c.mu.Unlock()
	return err
}

// SetDeviceCapable records whether the platform has a usable torch LED.
// Losing capability turns the torch off first.
func (c *Controller) SetDeviceCapable(capable bool) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	prev := c.state.DeviceCapable
	c.mu.Unlock()
	if prev == capable {
		return
	}

	if !capable {
		_ = c.offLocked("")
	}

	c.mu.Lock()
	c.state.DeviceCapable = capable
	if capable {
		c.unsupportedReported = false
	}
	st := c.state
	c.mu.Unlock()

	c.logger.Info("Torch capability changed", "capable", capable)
	c.publish(events.CapabilityChangedEvent{
		Capable:   capable,
		Timestamp: c.timestamp(),
	})
	c.notify(st)

	if !capable {
		c.reportUnsupported()
	}
}

// Close turns the torch off and releases the LED regardless of capability.
func (c *Controller) Close() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	return c.offLocked("")
}

func (c *Controller) turnOnLocked() error {
	if err := c.admitLocked(); err != nil {
		return err
	}

	c.mu.Lock()
	current := c.state.Mode
	task := c.task
	c.task = nil
	c.mu.Unlock()

	if current.Kind == ModeSteady {
		return nil
	}
	if task != nil {
		task.Cancel()
	}

	h, err := c.acquireLocked()
	if err != nil {
		return err
	}
	if err := h.Set(true); err != nil {
		return c.failLocked(err)
	}

	c.commitLocked(Steady(), "")
	return nil
}

// offLocked cancels any strobe task, switches the LED off and releases it.
func (c *Controller) offLocked(reason Reason) error {
	c.mu.Lock()
	if !c.state.Mode.IsOn() && c.handle == nil {
		c.mu.Unlock()
		return nil
	}
	task, h := c.task, c.handle
	c.task = nil
	c.mu.Unlock()

	if task != nil {
		task.Cancel()
	}

	var err error
	if h != nil {
		err = h.Set(false)
		h.Release()
	}

	c.mu.Lock()
	c.handle = nil
	c.mu.Unlock()

	c.commitLocked(Off(), reason)
	if err != nil {
		c.reportDeviceError(err)
	}
	return err
}

func (c *Controller) setIntervalLocked(interval time.Duration) error {
	c.mu.Lock()
	task := c.task
	current := c.state.Mode
	c.mu.Unlock()

	if current.Kind != ModeStrobe || task == nil {
		return ErrNotStrobing
	}
	if current.Interval == interval {
		return nil
	}
	if err := task.UpdateInterval(interval); err != nil {
		return ErrInvalidInterval
	}

	c.commitLocked(Strobing(interval), "")
	metrics.SetStrobeInterval(interval.Seconds())
	return nil
}

// acquireLocked claims the LED. On failure the torch is forced off.
func (c *Controller) acquireLocked() (*led.Handle, error) {
	if c.ill == nil {
		return nil, c.failLocked(led.ErrUnsupported)
	}
	h, err := c.ill.Acquire()
	if err != nil {
		return nil, c.failLocked(err)
	}
	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()
	return h, nil
}

// failLocked forces off after a hardware error and returns the error.
func (c *Controller) failLocked(err error) error {
	c.logger.Warn("Torch command failed, forcing off", "error", err)

	c.mu.Lock()
	task, h := c.task, c.handle
	c.task = nil
	c.handle = nil
	c.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	if h != nil {
		if offErr := h.ForceOff(); offErr != nil {
			c.logger.Warn("Failed to switch torch off after failure", "error", offErr)
		}
		h.Release()
	}

	c.commitLocked(Off(), "")
	c.reportDeviceError(err)
	return err
}

// edgeWriter returns the strobe output callback bound to h. Edges for a
// handle the controller no longer owns are rejected.
func (c *Controller) edgeWriter(h *led.Handle) strobe.Edge {
	return func(on bool) error {
		c.mu.Lock()
		current := c.handle == h
		c.mu.Unlock()
		if !current {
			return led.ErrCommandFailed
		}
		return h.Set(on)
	}
}

// strobeFailed runs on the strobe goroutine after a failed edge.
func (c *Controller) strobeFailed(task *strobe.Task, err error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	current := c.task == task
	c.mu.Unlock()
	if !current {
		return
	}
	_ = c.failLocked(err)
}

// admitLocked checks capability and the interlock guard before a turn-on.
func (c *Controller) admitLocked() error {
	if err := c.capableLocked(); err != nil {
		return err
	}

	c.mu.Lock()
	guard := c.guard
	c.mu.Unlock()

	if guard == nil {
		return nil
	}
	if reason, blocked := guard.Blocked(); blocked {
		c.logger.Info("Turn-on refused by interlock", "reason", reason)
		return &InterlockError{Reason: reason}
	}
	return nil
}

func (c *Controller) capableLocked() error {
	c.mu.Lock()
	capable := c.state.DeviceCapable
	c.mu.Unlock()

	if capable {
		return nil
	}
	c.reportUnsupported()
	return led.ErrUnsupported
}

// commitLocked applies the new mode and notifies observers if it changed.
func (c *Controller) commitLocked(mode Mode, reason Reason) {
	now := c.clock.Now()

	c.mu.Lock()
	prev := c.state.Mode
	c.state.Mode = mode
	if mode.IsOn() {
		if c.state.OnSince.IsZero() {
			c.state.OnSince = now
		}
		c.state.Reason = ""
	} else {
		c.state.OnSince = time.Time{}
		if reason != "" {
			c.state.Reason = reason
		}
	}
	st := c.state
	c.mu.Unlock()

	if prev == mode {
		return
	}

	c.logger.Info("Torch mode changed", "from", prev.String(), "to", mode.String())
	metrics.SetMode(string(mode.Kind))

	ev := events.ModeChangedEvent{
		Mode:      string(mode.Kind),
		Timestamp: now.Format(time.RFC3339),
	}
	if mode.Kind == ModeStrobe {
		ev.IntervalMs = mode.Interval.Milliseconds()
	}
	c.publish(ev)
	c.notify(st)
}

func (c *Controller) notify(st State) {
	c.mu.Lock()
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

// reportUnsupported publishes the Unsupported device error once per loss of
// capability.
func (c *Controller) reportUnsupported() {
	c.mu.Lock()
	if c.unsupportedReported {
		c.mu.Unlock()
		return
	}
	c.unsupportedReported = true
	c.mu.Unlock()

	c.logger.Warn("Torch LED not available on this device")
	c.publish(events.DeviceErrorEvent{
		Kind:      string(led.KindUnsupported),
		Message:   "device has no torch LED",
		Timestamp: c.timestamp(),
	})
}

func (c *Controller) reportDeviceError(err error) {
	kind, ok := led.KindOf(err)
	if !ok {
		kind = led.KindCommandFailed
	}

	var devErr *led.DeviceError
	message := err.Error()
	if errors.As(err, &devErr) && devErr.Message != "" {
		message = devErr.Message
	}

	c.publish(events.DeviceErrorEvent{
		Kind:      string(kind),
		Message:   message,
		Timestamp: c.timestamp(),
	})
}

func (c *Controller) publish(ev events.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

func (c *Controller) timestamp() string {
	return c.clock.Now().Format(time.RFC3339)
}
