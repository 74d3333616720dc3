package detector

import (
	"time"

	"github.com/google/uuid"
	"github.com/markcheno/go-talib"

	"trendwatch/internal/domain/trends"
	"trendwatch/pkg/logger"
)

// Config holds the detection thresholds
type Config struct {
	PeakFloor        float64 // Absolute interest floor for the peak (default 90)
	MinPoints        int     // Minimum series length for a statistical basis (default 30)
	JumpMultiple     float64 // Peak vs baseline average, path one (default 2.5)
	ZScoreMin        float64 // Minimum z-score, path two (default 3.0)
	NewHighMultiple  float64 // Peak vs baseline max, path two (default 1.3)
	MomentumWindow   int     // Trailing sub-window for the stale-momentum guard (default 7)
	MomentumMultiple float64 // Trailing average vs baseline average (default 1.5)
}

// Detector decides whether the latest observation of an interest series is a
// statistically significant breakout against its own rolling baseline.
type Detector struct {
	cfg Config
	log *logger.Logger
}

// New creates a detector, filling in default thresholds
func New(cfg Config, log *logger.Logger) *Detector {
	if cfg.PeakFloor == 0 {
		cfg.PeakFloor = 90
	}
	if cfg.MinPoints == 0 {
		cfg.MinPoints = 30
	}
	if cfg.JumpMultiple == 0 {
		cfg.JumpMultiple = 2.5
	}
	if cfg.ZScoreMin == 0 {
		cfg.ZScoreMin = 3.0
	}
	if cfg.NewHighMultiple == 0 {
		cfg.NewHighMultiple = 1.3
	}
	if cfg.MomentumWindow == 0 {
		cfg.MomentumWindow = 7
	}
	if cfg.MomentumMultiple == 0 {
		cfg.MomentumMultiple = 1.5
	}
	return &Detector{cfg: cfg, log: log.With("component", "detector")}
}

// Evaluate returns a BreakoutEvent when the series peak clears every
// condition, nil otherwise. The baseline is computed over the series
// excluding the most recent observation so the point under test never
// inflates its own reference statistics.
//
// The rule is dual-path: a huge proportional jump from a low baseline
// (peak >= JumpMultiple * avg), or a statistically extreme but smaller jump
// from a higher baseline (z >= ZScoreMin and peak >= NewHighMultiple * max).
// Either way the peak must be a genuine new high above the baseline max.
func (d *Detector) Evaluate(series *trends.Series) *trends.BreakoutEvent {
	if series.Len() < d.cfg.MinPoints {
		return nil
	}

	peak, peakTime := series.Peak()
	if peak < d.cfg.PeakFloor {
		return nil
	}

	stats := d.baseline(series)
	if stats.Size == 0 {
		return nil
	}

	z := 0.0
	if stats.StdDev > 0 {
		z = (peak - stats.Mean) / stats.StdDev
	}

	if peak <= stats.Max {
		// A plateau against an old high, not a fresh spike
		return nil
	}

	jumped := peak >= d.cfg.JumpMultiple*stats.Mean
	extreme := z >= d.cfg.ZScoreMin && peak >= d.cfg.NewHighMultiple*stats.Max
	if !jumped && !extreme {
		return nil
	}

	if d.staleMomentum(series, stats) {
		d.log.Infow("Suppressing already-elevated series",
			"term", series.Term,
			"peak", peak,
			"baseline_avg", stats.Mean,
		)
		return nil
	}

	return &trends.BreakoutEvent{
		ID:          uuid.New(),
		Term:        series.Term,
		Peak:        peak,
		PeakTime:    peakTime,
		BaselineAvg: stats.Mean,
		ZScore:      z,
		StalePeak:   series.StaleLatest,
		DetectedAt:  time.Now().UTC(),
	}
}

// baseline computes mean, population standard deviation, and max over the
// series excluding the most recent observation.
func (d *Detector) baseline(series *trends.Series) trends.BaselineStats {
	values := series.Values()
	hist := values[:len(values)-1]
	if len(hist) == 0 {
		return trends.BaselineStats{}
	}

	n := len(hist)
	mean := talib.Sma(hist, n)[n-1]
	std := talib.StdDev(hist, n, 1.0)[n-1]

	max := hist[0]
	for _, v := range hist[1:] {
		if v > max {
			max = v
		}
	}

	return trends.BaselineStats{Mean: mean, StdDev: std, Max: max, Size: n}
}

// staleMomentum reports whether the trailing sub-window of the baseline was
// already elevated relative to the baseline average, which makes the apparent
// breakout old news rather than a fresh spike.
func (d *Detector) staleMomentum(series *trends.Series, stats trends.BaselineStats) bool {
	values := series.Values()
	hist := values[:len(values)-1]
	if len(hist) < d.cfg.MomentumWindow {
		return false
	}

	sma := talib.Sma(hist, d.cfg.MomentumWindow)
	trailing := sma[len(sma)-1]
	return trailing > d.cfg.MomentumMultiple*stats.Mean
}
