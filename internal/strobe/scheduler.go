// Package strobe runs the periodic on/off toggle used for torch strobing.
//
// Ticks are scheduled against the previous scheduled time, so latency of the
// edge write does not accumulate as drift. A tick that is already due when the
// previous one finishes runs immediately; a task that falls more than
// maxLagIntervals behind (for example after a system suspend) resynchronizes
// to the current time instead of replaying the missed edges.
package strobe

import (
	"errors"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/smazurov/torchnode/internal/logging"
	"github.com/smazurov/torchnode/internal/metrics"
)

const maxLagIntervals = 4

// ErrInvalidInterval is returned for non-positive intervals.
var ErrInvalidInterval = errors.New("strobe interval must be positive")

// Edge writes one strobe edge. It runs with the task's tick lock held.
type Edge func(on bool) error

// FailureFunc is called from the task goroutine after an edge failed.
// The task is already cancelled when it runs.
type FailureFunc func(task *Task, err error)

// Scheduler creates strobe tasks on a shared clock.
type Scheduler struct {
	clock  clockz.Clock
	logger logging.Logger
}

// NewScheduler creates a scheduler. A nil clock uses the real clock.
func NewScheduler(clock clockz.Clock, logger logging.Logger) *Scheduler {
	if clock == nil {
		clock = clockz.RealClock
	}
	if logger == nil {
		logger = logging.GetLogger("strobe")
	}
	return &Scheduler{
		clock:  clock,
		logger: logger,
	}
}

// Task is a running strobe. It doubles as the cancellation token.
type Task struct {
	clock     clockz.Clock
	logger    logging.Logger
	edge      Edge
	onFailure FailureFunc

	// mu is the tick lock: held for the whole edge write and by Cancel.
	mu        sync.Mutex
	interval  time.Duration
	phase     bool
	cancelled bool
	edges     uint64
	stop      chan struct{}
	done      chan struct{}
}

// Start begins strobing. The first edge is "on" and fires one interval from now.
func (s *Scheduler) Start(interval time.Duration, edge Edge, onFailure FailureFunc) (*Task, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	t := &Task{
		clock:     s.clock,
		logger:    s.logger,
		edge:      edge,
		onFailure: onFailure,
		interval:  interval,
		phase:     true,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	// Arm the first timer before returning so callers driving a fake clock
	// can advance it right away.
	next := s.clock.Now().Add(interval)
	timer := s.clock.NewTimer(interval)

	s.logger.Debug("Strobe started", "interval", interval)
	go t.run(timer, next)
	return t, nil
}

// UpdateInterval changes the spacing of ticks after the one already scheduled.
func (t *Task) UpdateInterval(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	t.mu.Lock()
	t.interval = interval
	t.mu.Unlock()
	t.logger.Debug("Strobe interval updated", "interval", interval)
	return nil
}

// Cancel stops the task. When it returns no further edge will be written and
// any edge in flight has completed. Safe to call more than once.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}
	t.cancelled = true
	close(t.stop)
}

// Interval returns the current interval.
func (t *Task) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Edges returns the number of edges written so far.
func (t *Task) Edges() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.edges
}

// Cancelled reports whether the task has stopped.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Done is closed when the task goroutine exits.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) run(timer clockz.Timer, next time.Time) {
	defer close(t.done)

	for {
		select {
		case <-t.stop:
			timer.Stop()
			return
		case <-timer.C():
		}

		for {
			if !t.tick() {
				return
			}

			interval := t.Interval()
			next = next.Add(interval)
			now := t.clock.Now()
			delay := next.Sub(now)

			if delay > 0 {
				timer = t.clock.NewTimer(delay)
				break
			}

			if -delay > maxLagIntervals*interval {
				t.logger.Debug("Strobe fell behind, resynchronizing", "lag", -delay)
				next = now
				timer = t.clock.NewTimer(interval)
				next = next.Add(interval)
				break
			}

			select {
			case <-t.stop:
				return
			default:
			}
		}
	}
}

// tick writes one edge unless the task was cancelled.
func (t *Task) tick() bool {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return false
	}

	on := t.phase
	if err := t.edge(on); err != nil {
		t.cancelled = true
		close(t.stop)
		t.mu.Unlock()

		t.logger.Warn("Strobe edge failed, stopping", "on", on, "error", err)
		if t.onFailure != nil {
			t.onFailure(t, err)
		}
		return false
	}

	t.phase = !on
	t.edges++
	t.mu.Unlock()

	metrics.IncStrobeEdge(on)
	return true
}
