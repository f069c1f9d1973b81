package strobe

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

type edgeRecorder struct {
	mu    sync.Mutex
	edges []bool
	fail  error
}

func (r *edgeRecorder) edge(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.edges = append(r.edges, on)
	return nil
}

func (r *edgeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.edges)
}

func (r *edgeRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.edges))
	copy(out, r.edges)
	return out
}

func (r *edgeRecorder) failWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// advance moves the fake clock and gives the task goroutine time to run.
func advance(clock *clockz.FakeClock, d time.Duration) {
	clock.Advance(d)
	clock.BlockUntilReady()
	time.Sleep(10 * time.Millisecond)
}

func waitForEdges(t *testing.T, r *edgeRecorder, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if r.count() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d edges, got %d", want, r.count())
}

func TestStart_RejectsNonPositiveInterval(t *testing.T) {
	s := NewScheduler(clockz.NewFakeClock(), nil)
	for _, d := range []time.Duration{0, -time.Millisecond} {
		if _, err := s.Start(d, func(bool) error { return nil }, nil); !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("Start(%v) error = %v, want ErrInvalidInterval", d, err)
		}
	}
}

func TestStart_FirstEdgeIsOnAtFirstTick(t *testing.T) {
	clock := clockz.NewFakeClock()
	rec := &edgeRecorder{}
	task, err := NewScheduler(clock, nil).Start(100*time.Millisecond, rec.edge, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer task.Cancel()

	advance(clock, 99*time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Fatalf("expected no edge before the first tick, got %d", got)
	}

	advance(clock, time.Millisecond)
	waitForEdges(t, rec, 1)
	if edges := rec.snapshot(); !edges[0] {
		t.Error("first edge should be on")
	}
}

func TestStart_ThreeTogglesIn350ms(t *testing.T) {
	clock := clockz.NewFakeClock()
	rec := &edgeRecorder{}
	task, err := NewScheduler(clock, nil).Start(100*time.Millisecond, rec.edge, nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer task.Cancel()

	advance(clock, 350*time.Millisecond)
	waitForEdges(t, rec, 3)
	time.Sleep(20 * time.Millisecond)

	got := rec.snapshot()
	want := []bool{true, false, true}
	if len(got) != len(want) {
		t.Fatalf("expected %d edges, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("edge %d = %v, want %v", i, got[i], want[i])
		}
	}
	if task.Edges() != 3 {
		t.Errorf("Edges() = %d, want 3", task.Edges())
	}
}

func TestStart_EdgesAlternate(t *testing.T) {
	clock := clockz.NewFakeClock()
	rec := &edgeRecorder{}
	task, _ := NewScheduler(clock, nil).Start(50*time.Millisecond, rec.edge, nil)
	defer task.Cancel()

	for i := 1; i <= 8; i++ {
		advance(clock, 50*time.Millisecond)
		waitForEdges(t, rec, i)
	}

	for i, on := range rec.snapshot() {
		if want := i%2 == 0; on != want {
			t.Errorf("edge %d = %v, want %v", i, on, want)
		}
	}
}

func TestStart_StepwiseCountMatchesElapsedTime(t *testing.T) {
	clock := clockz.NewFakeClock()
	rec := &edgeRecorder{}
	interval := 40 * time.Millisecond
	task, _ := NewScheduler(clock, nil).Start(interval, rec.edge, nil)
	defer task.Cancel()

	var elapsed time.Duration
	for elapsed < time.Second {
		advance(clock, 30*time.Millisecond)
		elapsed += 30 * time.Millisecond
	}

	want := int(elapsed / interval)
	waitForEdges(t, rec, want-1)
	got := rec.count()
	if got < want-1 || got > want+1 {
		t.Errorf("edges over %v = %d, want %d±1", elapsed, got, want)
	}
}

func TestCancel_StopsEdges(t *testing.T) {
	clock := clockz.NewFakeClock()
	rec := &edgeRecorder{}
	task, _ := NewScheduler(clock, nil).Start(100*time.Millisecond, rec.edge, nil)

	advance(clock, 100*time.Millisecond)
	waitForEdges(t, rec, 1)

	task.Cancel()
	before := rec.count()

	advance(clock, time.Second)
	if got := rec.count(); got != before {
		t.Errorf("expected no edges after cancel, got %d more", got-before)
	}

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task goroutine did not exit after cancel")
	}
	if !task.Cancelled() {
		t.Error("Cancelled() should be true")
	}
}

func TestCancel_Idempotent(t *testing.T) {
	task, _ := NewScheduler(clockz.NewFakeClock(), nil).Start(time.Second, func(bool) error { return nil }, nil)
	task.Cancel()
	task.Cancel()
	<-task.Done()
}

func TestCancel_WaitsForInFlightEdge(t *testing.T) {
	clock := clockz.NewFakeClock()
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	edge := func(bool) error {
		close(entered)
		<-release
		finished.Store(true)
		return nil
	}

	task, _ := NewScheduler(clock, nil).Start(100*time.Millisecond, edge, nil)
	clock.Advance(100 * time.Millisecond)
	clock.BlockUntilReady()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("edge never started")
	}

	cancelled := make(chan struct{})
	go func() {
		task.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while an edge was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-cancelled
	if !finished.Load() {
		t.Error("Cancel returned before the in-flight edge completed")
	}
}

func TestUpdateInterval_AppliesAfterScheduledTick(t *testing.T) {
	clock := clockz.NewFakeClock()
	rec := &edgeRecorder{}
	task, _ := NewScheduler(clock, nil).Start(100*time.Millisecond, rec.edge, nil)
	defer task.Cancel()

	// Tick at 100ms, next already scheduled for 200ms.
	advance(clock, 150*time.Millisecond)
	waitForEdges(t, rec, 1)

	if err := task.UpdateInterval(50 * time.Millisecond); err != nil {
		t.Fatalf("UpdateInterval failed: %v", err)
	}
	if task.Interval() != 50*time.Millisecond {
		t.Errorf("Interval() = %v, want 50ms", task.Interval())
	}

	// 200ms: the tick scheduled under the old interval.
	advance(clock, 49*time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Fatalf("expected 1 edge before 200ms, got %d", got)
	}
	advance(clock, time.Millisecond)
	waitForEdges(t, rec, 2)

	// 250ms and 300ms: new spacing.
	advance(clock, 50*time.Millisecond)
	waitForEdges(t, rec, 3)
	advance(clock, 50*time.Millisecond)
	waitForEdges(t, rec, 4)
	time.Sleep(20 * time.Millisecond)

	got := rec.snapshot()
	want := []bool{true, false, true, false}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("edge %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUpdateInterval_RejectsNonPositive(t *testing.T) {
	task, _ := NewScheduler(clockz.NewFakeClock(), nil).Start(time.Second, func(bool) error { return nil }, nil)
	defer task.Cancel()

	if err := task.UpdateInterval(0); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("UpdateInterval(0) error = %v, want ErrInvalidInterval", err)
	}
	if task.Interval() != time.Second {
		t.Errorf("interval changed to %v", task.Interval())
	}
}

func TestEdgeFailure_StopsAndReports(t *testing.T) {
	clock := clockz.NewFakeClock()
	rec := &edgeRecorder{}
	boom := errors.New("write failed")

	reported := make(chan error, 1)
	var reportedTask *Task
	task, _ := NewScheduler(clock, nil).Start(100*time.Millisecond, rec.edge, func(t *Task, err error) {
		reportedTask = t
		reported <- err
	})

	advance(clock, 100*time.Millisecond)
	waitForEdges(t, rec, 1)

	rec.failWith(boom)
	advance(clock, 100*time.Millisecond)

	select {
	case err := <-reported:
		if !errors.Is(err, boom) {
			t.Errorf("reported error = %v, want %v", err, boom)
		}
	case <-time.After(time.Second):
		t.Fatal("failure was not reported")
	}
	if reportedTask != task {
		t.Error("failure reported for a different task")
	}
	if !task.Cancelled() {
		t.Error("task should be cancelled after a failed edge")
	}

	<-task.Done()
	rec.failWith(nil)
	advance(clock, time.Second)
	if got := rec.count(); got != 1 {
		t.Errorf("expected no edges after failure, got %d total", got)
	}

	// Cancel after a failure is a no-op.
	task.Cancel()
}

func TestRun_ResynchronizesWhenFarBehind(t *testing.T) {
	clock := clockz.NewFakeClock()
	rec := &edgeRecorder{}
	task, _ := NewScheduler(clock, nil).Start(100*time.Millisecond, rec.edge, nil)
	defer task.Cancel()

	advance(clock, 10*time.Second)
	waitForEdges(t, rec, 1)
	time.Sleep(20 * time.Millisecond)

	if got := rec.count(); got > maxLagIntervals+2 {
		t.Errorf("expected missed edges to be dropped, got %d", got)
	}
}
