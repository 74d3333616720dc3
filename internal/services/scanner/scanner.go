package scanner

import (
	"context"
	"time"

	"trendwatch/internal/domain/trends"
	"trendwatch/internal/metrics"
	"trendwatch/internal/services/detector"
	"trendwatch/pkg/errors"
	"trendwatch/pkg/logger"
)

// BreakoutDispatcher receives detected breakouts as they fire. An individual
// breakout is latency-sensitive so the scanner dispatches immediately rather
// than waiting for end of batch.
type BreakoutDispatcher interface {
	DispatchBreakout(ctx context.Context, event *trends.BreakoutEvent)
}

// Config tunes per-term behavior
type Config struct {
	WindowDays  int           // Interest window requested per term (default 90)
	Geo         string        // Provider geography (default US)
	TermTimeout time.Duration // Hard bound on one term's processing (default 2m)
	TermPause   time.Duration // Fixed pause between terms (default 1s)
}

// Result is the outcome of scanning one category
type Result struct {
	Category string
	Events   []*trends.BreakoutEvent
	Terms    int
	NoData   int
	Skipped  int
}

// Scanner walks a category's terms in catalog order, strictly sequentially,
// fetching interest data and evaluating each series for a breakout. Terms
// share one rate-limited source so there is no parallelism within a
// category.
type Scanner struct {
	source     trends.Source
	detector   *detector.Detector
	dispatcher BreakoutDispatcher
	cfg        Config
	log        *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a scanner with default tunables filled in
func New(source trends.Source, det *detector.Detector, dispatcher BreakoutDispatcher, cfg Config, log *logger.Logger) *Scanner {
	if cfg.WindowDays == 0 {
		cfg.WindowDays = 90
	}
	if cfg.Geo == "" {
		cfg.Geo = "US"
	}
	if cfg.TermTimeout == 0 {
		cfg.TermTimeout = 2 * time.Minute
	}
	if cfg.TermPause == 0 {
		cfg.TermPause = time.Second
	}
	return &Scanner{
		source:     source,
		detector:   det,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.With("component", "scanner"),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Scan processes one category. Per-term faults are logged and skipped, they
// never abort the category. Returns early with partial results when the
// parent context is cancelled.
func (s *Scanner) Scan(ctx context.Context, category trends.Category) Result {
	result := Result{Category: category.Name}
	log := s.log.With("category", category.Name)

	for i, term := range category.Terms {
		if ctx.Err() != nil {
			return result
		}

		result.Terms++
		outcome := s.scanTerm(ctx, log, category, term, &result)
		metrics.TermsScanned.WithLabelValues(category.Name, outcome).Inc()

		// Fixed cadence floor between terms, independent of the rate
		// limiter's own delay
		if i < len(category.Terms)-1 {
			if err := s.sleep(ctx, s.cfg.TermPause); err != nil {
				return result
			}
		}
	}

	return result
}

// scanTerm handles one term end to end and reports the outcome label. A
// panic inside fetch, detection, or formatting is contained to the term.
func (s *Scanner) scanTerm(ctx context.Context, log *logger.Logger, category trends.Category, term string, result *Result) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			result.Skipped++
			outcome = "error"
			log.Errorw("Term processing panicked", "term", term, "panic", r)
		}
	}()

	termCtx, cancel := context.WithTimeout(ctx, s.cfg.TermTimeout)
	defer cancel()

	end := s.now().UTC()
	window := trends.Window{
		Start: end.AddDate(0, 0, -s.cfg.WindowDays),
		End:   end,
		Geo:   s.cfg.Geo,
	}

	series, err := s.source.Fetch(termCtx, term, window)
	if err != nil {
		result.Skipped++
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warnw("Term abandoned after timeout", "term", term, "timeout", s.cfg.TermTimeout)
			return "timeout"
		}
		log.Warnw("Term fetch failed, skipping", "term", term, "error", err)
		return "error"
	}
	if series == nil {
		result.NoData++
		log.Debugw("No interest data for term", "term", term)
		return "no_data"
	}

	event := s.detector.Evaluate(series)
	if event == nil {
		return "quiet"
	}

	event.Category = category.Name
	event.Symbols = category.Symbols

	log.Infow("Breakout detected",
		"term", term,
		"peak", event.Peak,
		"baseline_avg", event.BaselineAvg,
		"z_score", event.ZScore,
	)
	metrics.BreakoutsDetected.WithLabelValues(category.Name).Inc()

	// Dispatch before advancing so notification order matches detection order
	s.dispatcher.DispatchBreakout(ctx, event)
	result.Events = append(result.Events, event)

	return "breakout"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
