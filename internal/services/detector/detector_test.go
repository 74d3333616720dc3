package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwatch/internal/domain/trends"
	"trendwatch/pkg/logger"
)

func newDetector() *Detector {
	return New(Config{}, logger.Get())
}

// seriesOf builds a daily series ending today from the given values
func seriesOf(term string, values ...float64) *trends.Series {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]trends.Point, len(values))
	for i, v := range values {
		points[i] = trends.Point{
			Time:  end.AddDate(0, 0, i-len(values)+1),
			Value: v,
		}
	}
	return &trends.Series{Term: term, Geo: "US", Points: points}
}

func flatSeries(term string, days int, value float64, today float64) *trends.Series {
	values := make([]float64, days, days+1)
	for i := range values {
		values[i] = value
	}
	return seriesOf(term, append(values, today)...)
}

func TestEvaluate_FlatBaselineSpikeFires(t *testing.T) {
	// 60 days of constant 20, today 95: peak clears both the absolute floor
	// and the 2.5x jump path
	series := flatSeries("quantum computing", 60, 20, 95)

	event := newDetector().Evaluate(series)
	require.NotNil(t, event)

	assert.Equal(t, "quantum computing", event.Term)
	assert.InDelta(t, 95.0, event.Peak, 1e-9)
	assert.InDelta(t, 20.0, event.BaselineAvg, 1e-9)
	assert.Equal(t, series.Latest().Time, event.PeakTime)

	// Zero baseline deviation must yield exactly zero, never NaN
	assert.Equal(t, 0.0, event.ZScore)
}

func TestEvaluate_HighBaselineModerateSpikeDoesNotFire(t *testing.T) {
	// Oscillating 80-85 with today at 92: a new high, but neither a 2.5x
	// jump nor 1.3x above the old max
	values := make([]float64, 60, 61)
	for i := range values {
		if i%2 == 0 {
			values[i] = 80
		} else {
			values[i] = 85
		}
	}
	series := seriesOf("edge computing", append(values, 92)...)

	assert.Nil(t, newDetector().Evaluate(series))
}

func TestEvaluate_SubThresholdPeakNeverFires(t *testing.T) {
	for _, today := range []float64{0, 25, 50, 89, 89.9} {
		series := flatSeries("web3", 60, 5, today)
		assert.Nilf(t, newDetector().Evaluate(series), "peak %v is below the floor", today)
	}
}

func TestEvaluate_PlateauAgainstOldHighDoesNotFire(t *testing.T) {
	// Baseline already touched 95, today merely matches it
	values := make([]float64, 60, 61)
	for i := range values {
		values[i] = 10
	}
	values[30] = 95
	series := seriesOf("neurotechnology", append(values, 95)...)

	assert.Nil(t, newDetector().Evaluate(series))
}

func TestEvaluate_ShortSeriesNeverFires(t *testing.T) {
	series := flatSeries("telemedicine", 25, 10, 100)
	require.Equal(t, 26, series.Len())

	assert.Nil(t, newDetector().Evaluate(series))
}

func TestEvaluate_StaleMomentumSuppressed(t *testing.T) {
	// 50 quiet days, then a week already running hot before today's spike:
	// the trailing 7-day average exceeds 1.5x the baseline average
	values := make([]float64, 0, 58)
	for i := 0; i < 50; i++ {
		values = append(values, 10)
	}
	for i := 0; i < 7; i++ {
		values = append(values, 40)
	}
	series := seriesOf("healthcare analytics", append(values, 95)...)

	assert.Nil(t, newDetector().Evaluate(series))
}

func TestEvaluate_ZScorePathFires(t *testing.T) {
	// Tight baseline around 40 with max 45: today's 95 misses the 2.5x jump
	// path (would need ~100) but the z-score is huge and 95 >= 1.3*45
	values := make([]float64, 60, 61)
	for i := range values {
		values[i] = 40
	}
	values[10] = 45
	series := seriesOf("robotic surgery", append(values, 95)...)

	event := newDetector().Evaluate(series)
	require.NotNil(t, event)
	assert.GreaterOrEqual(t, event.ZScore, 3.0)
}

func TestEvaluate_Idempotent(t *testing.T) {
	series := flatSeries("quantum networking", 60, 15, 96)
	d := newDetector()

	first := d.Evaluate(series)
	second := d.Evaluate(series)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Peak, second.Peak)
	assert.Equal(t, first.BaselineAvg, second.BaselineAvg)
	assert.Equal(t, first.ZScore, second.ZScore)
	assert.Equal(t, first.PeakTime, second.PeakTime)
}

func TestEvaluate_CarriesStalePeakFlag(t *testing.T) {
	series := flatSeries("digital health", 60, 20, 95)
	series.StaleLatest = true

	event := newDetector().Evaluate(series)
	require.NotNil(t, event)
	assert.True(t, event.StalePeak)
}

func TestPercentIncrease(t *testing.T) {
	e := &trends.BreakoutEvent{Peak: 95, BaselineAvg: 20}
	assert.InDelta(t, 375.0, e.PercentIncrease(), 1e-9)

	zero := &trends.BreakoutEvent{Peak: 95, BaselineAvg: 0}
	assert.Equal(t, 0.0, zero.PercentIncrease())
}
