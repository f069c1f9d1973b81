// Package safety watches power, context, and on-duration signals and forces
// the torch off when any interlock trips.
//
// The interlock is level-computed on every signal but acted on at edges: the
// controller is tripped once when the predicate goes from false to true and
// not again until it has cleared.
package safety

import (
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/smazurov/torchnode/internal/events"
	"github.com/smazurov/torchnode/internal/logging"
	"github.com/smazurov/torchnode/internal/metrics"
	"github.com/smazurov/torchnode/internal/torch"
)

const (
	// DefaultLowPowerThreshold is the battery level at or below which the
	// torch is refused unless charging.
	DefaultLowPowerThreshold = 10
	// DefaultMaxOnDuration is the continuous-on limit before auto-off.
	DefaultMaxOnDuration = 15 * time.Minute
)

// Policy holds the tunable interlock parameters.
type Policy struct {
	LowPowerThreshold int
	// MaxOnDuration of zero disables the duration interlock.
	MaxOnDuration time.Duration
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		LowPowerThreshold: DefaultLowPowerThreshold,
		MaxOnDuration:     DefaultMaxOnDuration,
	}
}

// Controller is the part of the torch controller the monitor drives.
type Controller interface {
	Trip(reason torch.Reason) error
	TripSession(reason torch.Reason, onSince time.Time) (bool, error)
	QueryState() torch.State
	OnStateChange(fn func(torch.State))
}

// State is a snapshot of the monitor's inputs and verdict.
type State struct {
	PowerLevel    int
	Charging      bool
	PowerKnown    bool
	ContextActive bool
	Policy        Policy
	Tripped       bool
	Reason        torch.Reason
}

// Monitor evaluates the interlock and trips the controller.
type Monitor struct {
	ctrl   Controller
	bus    *events.Bus
	clock  clockz.Clock
	logger logging.Logger

	mu            sync.Mutex
	policy        Policy
	powerLevel    int
	charging      bool
	powerKnown    bool
	contextActive bool
	mode          torch.Mode
	onSince       time.Time
	tripped       bool
	reason        torch.Reason
	deadlineStop  chan struct{}
	unsubscribe   func()
}

// NewMonitor creates a monitor bound to ctrl and registers for its state
// changes. The context starts inactive and power is assumed full until the
// first reading arrives.
func NewMonitor(ctrl Controller, bus *events.Bus, clock clockz.Clock, policy Policy) *Monitor {
	if clock == nil {
		clock = clockz.RealClock
	}

	st := ctrl.QueryState()
	m := &Monitor{
		ctrl:       ctrl,
		bus:        bus,
		clock:      clock,
		logger:     logging.GetLogger("safety"),
		policy:     policy,
		powerLevel: 100,
		mode:       st.Mode,
		onSince:    st.OnSince,
	}

	// The initial verdict is the baseline; only later changes count as trips.
	m.reason, m.tripped = m.predicateLocked(clock.Now())

	ctrl.OnStateChange(m.onStateChange)
	return m
}

// Start subscribes to power readings on the bus.
func (m *Monitor) Start() {
	if m.bus == nil {
		return
	}
	unsub := m.bus.Subscribe(func(e events.PowerChangedEvent) {
		m.OnPowerUpdate(e.Level, e.Charging)
	})

	m.mu.Lock()
	m.unsubscribe = unsub
	m.mu.Unlock()
}

// Stop unsubscribes and disarms the duration deadline.
func (m *Monitor) Stop() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.disarmLocked()
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// OnPowerUpdate records a battery reading.
func (m *Monitor) OnPowerUpdate(level int, charging bool) {
	level = max(0, min(100, level))

	m.mu.Lock()
	m.powerLevel = level
	m.charging = charging
	m.powerKnown = true
	m.mu.Unlock()

	metrics.SetPower(level, charging)
	m.logger.Debug("Power update", "level", level, "charging", charging)
	m.evaluate()
}

// OnContextActivated marks the hosting context as active.
func (m *Monitor) OnContextActivated(source string) {
	m.setContext(true, source)
}

// OnContextDeactivated marks the hosting context as inactive.
func (m *Monitor) OnContextDeactivated(source string) {
	m.setContext(false, source)
}

// SetPolicy replaces the policy and re-evaluates immediately.
func (m *Monitor) SetPolicy(p Policy) {
	m.mu.Lock()
	m.policy = p
	m.armLocked()
	m.mu.Unlock()

	m.logger.Info("Safety policy updated",
		"low_power_threshold", p.LowPowerThreshold,
		"max_on_duration", p.MaxOnDuration)
	m.evaluate()
}

// Blocked reports whether a power or context interlock currently refuses
// turn-on. The duration interlock only applies while on.
func (m *Monitor) Blocked() (torch.Reason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockedLocked()
}

// ContextActive reports whether the hosting context is active.
func (m *Monitor) ContextActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contextActive
}

// Snapshot returns the current inputs and verdict.
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		PowerLevel:    m.powerLevel,
		Charging:      m.charging,
		PowerKnown:    m.powerKnown,
		ContextActive: m.contextActive,
		Policy:        m.policy,
		Tripped:       m.tripped,
		Reason:        m.reason,
	}
}

func (m *Monitor) setContext(active bool, source string) {
	m.mu.Lock()
	changed := m.contextActive != active
	m.contextActive = active
	m.mu.Unlock()

	if changed {
		m.logger.Info("Context changed", "active", active, "source", source)
		if m.bus != nil {
			m.bus.Publish(events.ContextChangedEvent{
				Active:    active,
				Source:    source,
				Timestamp: m.clock.Now().Format(time.RFC3339),
			})
		}
	}
	m.evaluate()
}

// evaluate recomputes the interlock and trips the controller on a rising edge.
func (m *Monitor) evaluate() {
	m.mu.Lock()
	reason, tripped := m.predicateLocked(m.clock.Now())
	rising := tripped && !m.tripped
	m.tripped = tripped
	m.reason = reason
	onSince := m.onSince
	m.mu.Unlock()

	if rising {
		m.trip(reason, onSince)
	}
}

// trip switches the torch off. A duration verdict only applies to the on
// session it was computed for.
func (m *Monitor) trip(reason torch.Reason, onSince time.Time) {
	var err error
	if reason == torch.ReasonMaxDurationExceeded {
		var applied bool
		applied, err = m.ctrl.TripSession(reason, onSince)
		if !applied && err == nil {
			m.logger.Debug("Duration trip dropped, torch session changed")
			return
		}
	} else {
		err = m.ctrl.Trip(reason)
	}

	m.logger.Warn("Safety interlock tripped", "reason", reason)
	metrics.IncInterlockTrip(string(reason))
	if err != nil {
		m.logger.Warn("Failed to switch torch off cleanly", "reason", reason, "error", err)
	}

	if m.bus != nil {
		m.bus.Publish(events.InterlockTrippedEvent{
			Reason:    string(reason),
			Message:   reason.Message(),
			Timestamp: m.clock.Now().Format(time.RFC3339),
		})
	}
}

// onStateChange runs under the controller's command mutex, so it must not
// call back into the controller synchronously.
func (m *Monitor) onStateChange(st torch.State) {
	m.mu.Lock()
	m.mode = st.Mode
	m.onSince = st.OnSince
	m.armLocked()

	reason, tripped := m.predicateLocked(m.clock.Now())
	rising := tripped && !m.tripped
	if !tripped {
		m.tripped = false
		m.reason = ""
	}
	m.mu.Unlock()

	if rising {
		m.logger.Debug("Interlock holds after transition", "reason", reason)
		go m.evaluate()
	}
}

func (m *Monitor) predicateLocked(now time.Time) (torch.Reason, bool) {
	if reason, blocked := m.blockedLocked(); blocked {
		return reason, true
	}
	if m.mode.IsOn() && m.policy.MaxOnDuration > 0 && !m.onSince.IsZero() {
		if now.Sub(m.onSince) >= m.policy.MaxOnDuration {
			return torch.ReasonMaxDurationExceeded, true
		}
	}
	return "", false
}

func (m *Monitor) blockedLocked() (torch.Reason, bool) {
	if m.powerLevel <= m.policy.LowPowerThreshold && !m.charging {
		return torch.ReasonLowPower, true
	}
	if !m.contextActive {
		return torch.ReasonContextInactive, true
	}
	return "", false
}

// armLocked schedules a re-evaluation at the on-duration deadline.
func (m *Monitor) armLocked() {
	m.disarmLocked()

	if !m.mode.IsOn() || m.policy.MaxOnDuration <= 0 || m.onSince.IsZero() {
		return
	}

	delay := m.onSince.Add(m.policy.MaxOnDuration).Sub(m.clock.Now())
	if delay < 0 {
		delay = 0
	}

	stop := make(chan struct{})
	m.deadlineStop = stop
	timer := m.clock.NewTimer(delay)

	go func() {
		select {
		case <-timer.C():
			m.evaluate()
		case <-stop:
			timer.Stop()
		}
	}()
}

func (m *Monitor) disarmLocked() {
	if m.deadlineStop != nil {
		close(m.deadlineStop)
		m.deadlineStop = nil
	}
}
