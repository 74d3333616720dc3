package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	*BaseWorker
	runs  atomic.Int64
	fail  atomic.Bool
	panic atomic.Bool
}

func newCountingWorker(name string, interval time.Duration) *countingWorker {
	return &countingWorker{BaseWorker: NewBaseWorker(name, interval, true)}
}

func (w *countingWorker) Run(ctx context.Context) error {
	w.runs.Add(1)
	if w.panic.Load() {
		panic("boom")
	}
	if w.fail.Load() {
		err := assert.AnError
		w.RecordError(err)
		return err
	}
	w.RecordRun()
	return nil
}

type anchoredWorker struct {
	*countingWorker
	next time.Time
}

func (w *anchoredWorker) NextStart(now time.Time) (time.Time, bool) {
	if w.next.After(now) {
		return w.next, true
	}
	return now.Add(time.Hour), true
}

// newTestScheduler shrinks the failure cooldown so restart behavior is
// observable within a test timeout
func newTestScheduler(cooldown time.Duration) *Scheduler {
	s := NewScheduler()
	s.failureCooldown = cooldown
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestScheduler_RunsWorkerOnInterval(t *testing.T) {
	s := newTestScheduler(time.Millisecond)
	w := newCountingWorker("interval_worker", 10*time.Millisecond)
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	waitFor(t, func() bool { return w.runs.Load() >= 3 })
	assert.True(t, s.IsRunning())

	health := w.Health()
	assert.GreaterOrEqual(t, health.RunCount, int64(3))
	assert.NoError(t, health.LastError)
}

func TestScheduler_SkipsDisabledWorker(t *testing.T) {
	s := newTestScheduler(time.Millisecond)
	w := &countingWorker{BaseWorker: NewBaseWorker("disabled_worker", time.Millisecond, false)}
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Zero(t, w.runs.Load())
}

func TestScheduler_FailedIterationRestartsAfterCooldown(t *testing.T) {
	// A failing worker on a long interval must come back after the short
	// failure cooldown, not after the full interval.
	s := newTestScheduler(5 * time.Millisecond)
	w := newCountingWorker("failing_worker", time.Hour)
	w.fail.Store(true)
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	waitFor(t, func() bool { return w.runs.Load() >= 2 })

	health := w.Health()
	assert.Greater(t, health.ErrorCount, int64(0))
	assert.Error(t, health.LastError)
}

func TestScheduler_PanicIsContainedAndRetried(t *testing.T) {
	s := newTestScheduler(5 * time.Millisecond)
	w := newCountingWorker("panicking_worker", time.Hour)
	w.panic.Store(true)
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// The first panic must not kill the loop
	waitFor(t, func() bool { return w.runs.Load() >= 2 })
}

func TestScheduler_AnchoredWorkerWaitsForSlot(t *testing.T) {
	s := newTestScheduler(time.Millisecond)
	w := &anchoredWorker{
		countingWorker: newCountingWorker("anchored_worker", time.Hour),
		next:           time.Now().Add(50 * time.Millisecond),
	}
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, w.runs.Load(), "anchored worker must not run before its slot")

	waitFor(t, func() bool { return w.runs.Load() >= 1 })
}

func TestScheduler_StopHaltsWorkers(t *testing.T) {
	s := newTestScheduler(time.Millisecond)
	w := newCountingWorker("stoppable_worker", time.Millisecond)
	s.RegisterWorker(w)

	require.NoError(t, s.Start(context.Background()))
	waitFor(t, func() bool { return w.runs.Load() >= 1 })
	require.NoError(t, s.Stop())

	assert.False(t, s.IsRunning())

	runsAtStop := w.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runsAtStop, w.runs.Load())
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	s := newTestScheduler(time.Millisecond)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_RegisterAfterStartIsIgnored(t *testing.T) {
	s := newTestScheduler(time.Millisecond)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.RegisterWorker(newCountingWorker("late_worker", time.Millisecond))
	assert.Empty(t, s.GetWorkers())
}
