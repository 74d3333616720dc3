package workers

import (
	"context"
	"sync"
	"time"

	"trendwatch/internal/metrics"
	"trendwatch/pkg/errors"
	"trendwatch/pkg/logger"
)

const (
	// defaultFailureCooldown is how long the scheduler waits before
	// restarting a worker iteration that failed or panicked. A single bad
	// cycle must never crash the process.
	defaultFailureCooldown = 60 * time.Second

	// defaultHeartbeat is how often liveness is logged while a worker is
	// idle between iterations.
	defaultHeartbeat = 15 * time.Minute
)

// Scheduler drives registered workers on their configured cadence: each
// worker runs in its own loop, iterations start a fixed interval apart
// (interval minus run duration is slept off, broken into heartbeat chunks so
// liveness stays observable), and failed iterations restart after a short
// cooldown instead of waiting for the next slot.
type Scheduler struct {
	workers []Worker
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	log     *logger.Logger
	started bool

	failureCooldown time.Duration
	heartbeat       time.Duration
}

// NewScheduler creates a new worker scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		workers:         make([]Worker, 0),
		log:             logger.Get(),
		failureCooldown: defaultFailureCooldown,
		heartbeat:       defaultHeartbeat,
	}
}

// RegisterWorker adds a worker to the scheduler
func (s *Scheduler) RegisterWorker(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warn("Cannot register worker after scheduler has started", "worker", w.Name())
		return
	}

	s.workers = append(s.workers, w)
	s.log.Info("Worker registered", "worker", w.Name(), "interval", w.Interval())
}

// Start begins running all registered workers
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler already started")
	}

	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, worker := range s.workers {
		if !worker.Enabled() {
			s.log.Info("Skipping disabled worker", "worker", worker.Name())
			continue
		}

		s.wg.Add(1)
		go s.runWorker(worker)
	}

	s.log.Info("All workers started")
	return nil
}

// Stop gracefully shuts down all workers. A long timeout accommodates a
// batch that is mid-flight when shutdown arrives.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler not started")
	}
	s.cancel()
	s.mu.Unlock()

	s.log.Info("Stopping worker scheduler...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var shutdownErr error
	select {
	case <-done:
		s.log.Info("All workers stopped gracefully")
	case <-time.After(2 * time.Minute):
		s.log.Warn("Worker shutdown timed out after 2 minutes")
		shutdownErr = errors.Wrapf(errors.ErrInternal, "shutdown timeout after 2 minutes")
	}

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	return shutdownErr
}

// runWorker executes a single worker in a loop
func (s *Scheduler) runWorker(worker Worker) {
	defer s.wg.Done()

	s.log.Info("Worker started", "worker", worker.Name())

	// Anchored workers wait for their first scheduled slot, interval
	// workers run immediately on start.
	if anchored, ok := worker.(Anchored); ok {
		if first, set := anchored.NextStart(time.Now()); set {
			s.log.Info("Worker waiting for anchored start",
				"worker", worker.Name(),
				"next_start", first,
			)
			if !s.idle(worker, time.Until(first)) {
				return
			}
		}
	}

	for {
		start := time.Now()
		err := s.executeWorker(worker)

		if s.ctx.Err() != nil {
			s.log.Info("Worker stopping due to context cancellation", "worker", worker.Name())
			return
		}

		var wait time.Duration
		if err != nil {
			// Abandon the failed iteration, cool down, start over
			wait = s.failureCooldown
			s.log.Warn("Worker iteration failed, restarting after cooldown",
				"worker", worker.Name(),
				"cooldown", wait,
			)
		} else if next, set := nextAnchoredStart(worker); set {
			wait = time.Until(next)
		} else {
			// Fixed interval between iteration starts
			wait = worker.Interval() - time.Since(start)
		}

		if !s.idle(worker, wait) {
			return
		}
	}
}

// nextAnchoredStart returns the worker's next anchored slot, when it has one
func nextAnchoredStart(worker Worker) (time.Time, bool) {
	anchored, ok := worker.(Anchored)
	if !ok {
		return time.Time{}, false
	}
	return anchored.NextStart(time.Now())
}

// idle sleeps off the wait in heartbeat-sized chunks, logging liveness so a
// long quiet period is distinguishable from a hang. Returns false when the
// scheduler is shutting down.
func (s *Scheduler) idle(worker Worker, wait time.Duration) bool {
	deadline := time.Now().Add(wait)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}

		chunk := remaining
		if chunk > s.heartbeat {
			chunk = s.heartbeat
		}

		timer := time.NewTimer(chunk)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		if remaining > s.heartbeat {
			s.log.Info("Worker idle",
				"worker", worker.Name(),
				"next_run_in", time.Until(deadline).Round(time.Second),
			)
		}
	}
}

// executeWorker runs a single iteration of the worker with error handling.
// A panic is converted into an error so the loop applies the same cooldown.
func (s *Scheduler) executeWorker(worker Worker) (err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("worker panicked: %v", r)
			s.log.Error("Worker panicked",
				"worker", worker.Name(),
				"panic", r,
			)
		}
		metrics.RecordWorkerExecution(worker.Name(), time.Since(start), err)
	}()

	if err = worker.Run(s.ctx); err != nil {
		s.log.Error("Worker execution failed",
			"worker", worker.Name(),
			"error", err,
			"duration", time.Since(start),
		)
		return err
	}

	s.log.Debug("Worker execution completed",
		"worker", worker.Name(),
		"duration", time.Since(start),
	)
	return nil
}

// GetWorkers returns a list of all registered workers (for debugging/monitoring)
func (s *Scheduler) GetWorkers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workers := make([]Worker, len(s.workers))
	copy(workers, s.workers)
	return workers
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
