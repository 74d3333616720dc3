package trendscan

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"trendwatch/internal/domain/trends"
	"trendwatch/internal/metrics"
	"trendwatch/internal/services/scanner"
	"trendwatch/internal/workers"
	"trendwatch/pkg/logger"
)

// CategoryScanner walks one category's terms and returns what it found
type CategoryScanner interface {
	Scan(ctx context.Context, category trends.Category) scanner.Result
}

// SummaryDispatcher receives the consolidated end-of-cycle summary
type SummaryDispatcher interface {
	DispatchCycleSummary(ctx context.Context, summary *trends.CycleSummary)
}

// Config tunes the cycle worker
type Config struct {
	Interval     time.Duration // Time between full-catalog passes (default 24h)
	BatchCeiling time.Duration // Wall-clock ceiling per batch (default 15m)
	BatchRest    time.Duration // Unconditional rest between batches (default 2m)
	Heartbeat    time.Duration // Heartbeat cadence while resting (default 30s)

	// Optional UTC anchor for daily runs. AnchorHour < 0 disables anchoring.
	AnchorHour   int
	AnchorMinute int

	Enabled bool
}

// Worker drives one full catalog traversal per Run: the category list is
// partitioned into wall-clock-bounded batches separated by unconditional
// rest periods, breakouts accumulate across the whole cycle, and a single
// consolidated summary goes out at the end whether or not anything fired.
type Worker struct {
	*workers.BaseWorker
	catalog    *trends.Catalog
	scanner    CategoryScanner
	dispatcher SummaryDispatcher
	cfg        Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates the cycle worker
func New(catalog *trends.Catalog, scan CategoryScanner, dispatcher SummaryDispatcher, cfg Config) *Worker {
	if cfg.Interval == 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.BatchCeiling == 0 {
		cfg.BatchCeiling = 15 * time.Minute
	}
	if cfg.BatchRest == 0 {
		cfg.BatchRest = 2 * time.Minute
	}
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = 30 * time.Second
	}

	return &Worker{
		BaseWorker: workers.NewBaseWorker("trend_scan", cfg.Interval, cfg.Enabled),
		catalog:    catalog,
		scanner:    scan,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// NextStart returns the next daily anchor slot when one is configured
func (w *Worker) NextStart(now time.Time) (time.Time, bool) {
	if w.cfg.AnchorHour < 0 {
		return time.Time{}, false
	}

	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), w.cfg.AnchorHour, w.cfg.AnchorMinute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, true
}

// Run executes one scan cycle over the full catalog
func (w *Worker) Run(ctx context.Context) error {
	cycleID := uuid.New()
	start := w.now()
	log := w.Log().With("cycle_id", cycleID.String())

	log.Infow("Starting scan cycle",
		"categories", len(w.catalog.Categories),
		"terms", w.catalog.TermCount(),
	)

	summary := &trends.CycleSummary{
		CycleID:   cycleID,
		StartedAt: start,
	}

	batchStart := w.now()
	batchCategories := 0

	for i, category := range w.catalog.Categories {
		if ctx.Err() != nil {
			w.RecordError(ctx.Err())
			return ctx.Err()
		}

		result := w.scanner.Scan(ctx, category)

		summary.Categories++
		summary.Terms += result.Terms
		summary.NoData += result.NoData
		summary.Skipped += result.Skipped
		summary.Events = append(summary.Events, result.Events...)
		batchCategories++

		log.Infow("Category scanned",
			"category", category.Name,
			"terms", result.Terms,
			"breakouts", len(result.Events),
			"no_data", result.NoData,
			"skipped", result.Skipped,
		)

		// A batch ends when its wall-clock ceiling is hit, never mid-category.
		// No rest after the final category, the cycle is over.
		last := i == len(w.catalog.Categories)-1
		if !last && w.now().Sub(batchStart) >= w.cfg.BatchCeiling {
			if err := w.rest(ctx, log, summary, batchCategories); err != nil {
				w.RecordError(err)
				return err
			}
			batchStart = w.now()
			batchCategories = 0
		}
	}

	summary.Duration = w.now().Sub(start)

	log.Infow("Scan cycle complete",
		"duration", summary.Duration,
		"breakouts", len(summary.Events),
		"terms", summary.Terms,
		"no_data", summary.NoData,
		"skipped", summary.Skipped,
	)

	w.dispatcher.DispatchCycleSummary(ctx, summary)

	metrics.CyclesCompleted.WithLabelValues("success").Inc()
	metrics.CycleDuration.Observe(summary.Duration.Seconds())
	w.RecordRun()
	return nil
}

// rest pauses between batches, emitting heartbeats so the quiet period is
// observable from the outside
func (w *Worker) rest(ctx context.Context, log *logger.Logger, summary *trends.CycleSummary, batchCategories int) error {
	log.Infow("Batch complete, resting",
		"rest", w.cfg.BatchRest,
		"batch_categories", batchCategories,
		"categories_done", summary.Categories,
	)

	deadline := w.now().Add(w.cfg.BatchRest)
	for {
		remaining := deadline.Sub(w.now())
		if remaining <= 0 {
			return nil
		}

		chunk := remaining
		if chunk > w.cfg.Heartbeat {
			chunk = w.cfg.Heartbeat
		}
		if err := w.sleep(ctx, chunk); err != nil {
			return err
		}

		if remaining > w.cfg.Heartbeat {
			log.Infow("Resting between batches",
				"elapsed", humanize.RelTime(summary.StartedAt, w.now(), "", ""),
				"categories_done", summary.Categories,
				"breakouts_so_far", len(summary.Events),
			)
		}
	}
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
