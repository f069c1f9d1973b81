package systemd

import (
	"context"
	"io"
	"sync"

	"github.com/coreos/go-systemd/v22/login1"

	"github.com/smazurov/torchnode/internal/logging"
)

// SleepSource is the context source name used for suspend and resume.
const SleepSource = "sleep"

// ContextSink receives context transitions.
type ContextSink interface {
	OnContextActivated(source string)
	OnContextDeactivated(source string)
	ContextActive() bool
}

type sleepSource interface {
	// Events yields true before suspend and false after resume.
	Events() <-chan bool
	// Inhibit takes a delay lock so suspend waits until it is closed.
	Inhibit() (io.Closer, error)
	Close() error
}

// SleepWatcher deactivates the torch context before the system suspends so
// the LED is released, and restores it on resume if it was active.
type SleepWatcher struct {
	sink      ContextSink
	logger    logging.Logger
	newSource func() (sleepSource, error)
}

// NewSleepWatcher creates a watcher backed by logind.
func NewSleepWatcher(sink ContextSink) *SleepWatcher {
	return &SleepWatcher{
		sink:      sink,
		logger:    logging.GetLogger("systemd"),
		newSource: newLogin1Source,
	}
}

// Run follows logind sleep signals until ctx is cancelled. Without logind it
// logs and returns nil.
func (w *SleepWatcher) Run(ctx context.Context) error {
	src, err := w.newSource()
	if err != nil {
		w.logger.Info("logind unavailable, suspend will not release the torch", "error", err)
		return nil
	}
	defer src.Close()

	lock := w.inhibit(src)
	defer func() {
		if lock != nil {
			lock.Close()
		}
	}()

	// Whether the context was active when suspend began; resume restores it.
	restore := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case sleeping, ok := <-src.Events():
			if !ok {
				return nil
			}
			if sleeping {
				restore = w.sink.ContextActive()
				w.logger.Info("System suspending, releasing torch", "context_active", restore)
				w.sink.OnContextDeactivated(SleepSource)
				if lock != nil {
					lock.Close()
					lock = nil
				}
				continue
			}

			w.logger.Info("System resumed", "restore_context", restore)
			if lock == nil {
				lock = w.inhibit(src)
			}
			if restore {
				w.sink.OnContextActivated(SleepSource)
				restore = false
			}
		}
	}
}

func (w *SleepWatcher) inhibit(src sleepSource) io.Closer {
	lock, err := src.Inhibit()
	if err != nil {
		w.logger.Warn("Failed to take sleep inhibitor lock", "error", err)
		return nil
	}
	return lock
}

type login1Source struct {
	conn      *login1.Conn
	events    chan bool
	done      chan struct{}
	closeOnce sync.Once
}

func newLogin1Source() (sleepSource, error) {
	conn, err := login1.New()
	if err != nil {
		return nil, err
	}

	s := &login1Source{
		conn:   conn,
		events: make(chan bool, 1),
		done:   make(chan struct{}),
	}

	signals := conn.Subscribe("PrepareForSleep")
	go func() {
		defer close(s.events)
		for {
			select {
			case <-s.done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if len(sig.Body) != 1 {
					continue
				}
				sleeping, isBool := sig.Body[0].(bool)
				if !isBool {
					continue
				}
				select {
				case s.events <- sleeping:
				case <-s.done:
					return
				}
			}
		}
	}()

	return s, nil
}

func (s *login1Source) Events() <-chan bool {
	return s.events
}

func (s *login1Source) Inhibit() (io.Closer, error) {
	return s.conn.Inhibit("sleep", "torchnode", "Release the torch LED before suspend", "delay")
}

func (s *login1Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}
