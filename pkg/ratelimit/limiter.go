package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"trendwatch/pkg/logger"
)

// Config configures the adaptive limiter
type Config struct {
	Window         time.Duration // Rolling counter window (default 1min)
	BaseDelayFloor time.Duration // Fastest sustainable inter-request delay (default 5s)
	BaseDelayCeil  time.Duration // Hard ceiling on the base delay (default 30s)
	DelayIncrement time.Duration // Base delay raise per throttle signal (default 5s)
	Cooldown       time.Duration // Pause after a throttle signal (default 90s)
}

// State is a snapshot of the limiter's counters
type State struct {
	RequestsInWindow int
	ConsecutiveFails int
	BaseDelay        time.Duration
}

// Limiter self-tunes the outbound request cadence against an externally
// rate-limited provider. The provider's quota is global to the API key/IP,
// so a single Limiter gates all calls sequentially, there is no per-term
// budget.
type Limiter struct {
	cfg Config
	log *logger.Logger

	mu               sync.Mutex
	windowStart      time.Time
	requestsInWindow int
	failsInWindow    int
	consecutiveFails int
	baseDelay        time.Duration
	rng              *rand.Rand

	// Injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates an adaptive limiter with sensible defaults
func NewLimiter(cfg Config, log *logger.Logger) *Limiter {
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.BaseDelayFloor == 0 {
		cfg.BaseDelayFloor = 5 * time.Second
	}
	if cfg.BaseDelayCeil == 0 {
		cfg.BaseDelayCeil = 30 * time.Second
	}
	if cfg.DelayIncrement == 0 {
		cfg.DelayIncrement = 5 * time.Second
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 90 * time.Second
	}

	l := &Limiter{
		cfg:       cfg,
		log:       log.With("component", "ratelimit"),
		baseDelay: cfg.BaseDelayFloor,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	l.windowStart = l.now()
	return l
}

// Acquire blocks until the limiter permits one outbound call. The sleep is
// jittered in [delay, 1.5*delay] to avoid colliding with the provider's own
// rate-limit window. Returns early with the context error on cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.rollWindow()

	delay := l.baseDelay * time.Duration(1+l.consecutiveFails)
	jittered := delay + time.Duration(l.rng.Float64()*float64(delay)*0.5)
	l.requestsInWindow++
	l.mu.Unlock()

	if err := l.sleep(ctx, jittered); err != nil {
		return err
	}
	return nil
}

// Backoff records a throttle signal (HTTP 429-equivalent) from the provider:
// the consecutive-failure count goes up, the base delay is raised toward the
// ceiling, and the limiter pauses for the cooldown period. The caller still
// owns the retry decision and should surface the provider error upward.
func (l *Limiter) Backoff(ctx context.Context) error {
	l.mu.Lock()
	l.consecutiveFails++
	l.failsInWindow++

	l.baseDelay += l.cfg.DelayIncrement
	if l.baseDelay > l.cfg.BaseDelayCeil {
		l.baseDelay = l.cfg.BaseDelayCeil
	}

	l.log.Warnw("Provider throttled request, backing off",
		"consecutive_fails", l.consecutiveFails,
		"base_delay", l.baseDelay,
		"cooldown", l.cfg.Cooldown,
	)
	l.mu.Unlock()

	return l.sleep(ctx, l.cfg.Cooldown)
}

// State returns a snapshot of the limiter counters
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollWindow()
	return State{
		RequestsInWindow: l.requestsInWindow,
		ConsecutiveFails: l.consecutiveFails,
		BaseDelay:        l.baseDelay,
	}
}

// rollWindow resets the in-window counters once the window elapses and
// relaxes the failure state: the consecutive-failure count decays by one per
// window, and a fully clean window lowers the base delay back toward the
// floor. Caller must hold l.mu.
func (l *Limiter) rollWindow() {
	now := l.now()
	for now.Sub(l.windowStart) >= l.cfg.Window {
		l.windowStart = l.windowStart.Add(l.cfg.Window)

		if l.consecutiveFails > 0 {
			l.consecutiveFails--
		}
		if l.failsInWindow == 0 && l.baseDelay > l.cfg.BaseDelayFloor {
			l.baseDelay -= l.cfg.DelayIncrement
			if l.baseDelay < l.cfg.BaseDelayFloor {
				l.baseDelay = l.cfg.BaseDelayFloor
			}
		}
		l.requestsInWindow = 0
		l.failsInWindow = 0
	}
}

// sleepCtx sleeps for d or until ctx is cancelled
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
