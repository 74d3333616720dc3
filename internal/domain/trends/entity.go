package trends

import (
	"time"

	"github.com/google/uuid"
)

// Point is a single daily interest observation. Values are provider-normalized
// to the [0, 100] range; anything outside that range is a data-source fault.
type Point struct {
	Time  time.Time
	Value float64
}

// Series is interest over time for exactly one search term and one geography.
// It is produced fresh per fetch and immutable once returned.
type Series struct {
	Term string
	Geo  string

	// Points are ordered oldest first.
	Points []Point

	// StaleLatest marks a series whose latest point is a fallback to the most
	// recent prior day with data, because the provider had not yet reported
	// the current day. Callers must know which day the peak represents.
	StaleLatest bool
}

// Len returns the number of observations in the series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Latest returns the most recent observation.
func (s *Series) Latest() Point {
	return s.Points[len(s.Points)-1]
}

// Peak returns the maximum value in the series and its timestamp.
// Ties resolve to the earliest occurrence.
func (s *Series) Peak() (float64, time.Time) {
	peak := s.Points[0]
	for _, p := range s.Points[1:] {
		if p.Value > peak.Value {
			peak = p
		}
	}
	return peak.Value, peak.Time
}

// Values returns the raw interest values in series order.
func (s *Series) Values() []float64 {
	vals := make([]float64, len(s.Points))
	for i, p := range s.Points {
		vals[i] = p.Value
	}
	return vals
}

// BaselineStats are rolling statistics over the historical portion of a
// series, strictly excluding the point under test.
type BaselineStats struct {
	Mean   float64
	StdDev float64
	Max    float64
	Size   int
}

// BreakoutEvent records a statistically significant interest spike for one
// term. Events live only for the current scan cycle, there is no persistent
// store.
type BreakoutEvent struct {
	ID          uuid.UUID
	Term        string
	Category    string
	Peak        float64
	PeakTime    time.Time
	BaselineAvg float64
	ZScore      float64

	// StalePeak is set when the series the event was derived from carried a
	// fallback latest point (provider reporting lag).
	StalePeak bool

	DetectedAt time.Time
	Symbols    []RelatedSymbol
}

// PercentIncrease returns the peak expressed as a percentage increase over
// the baseline average. Returns 0 when the baseline average is 0.
func (e *BreakoutEvent) PercentIncrease() float64 {
	if e.BaselineAvg == 0 {
		return 0
	}
	return (e.Peak - e.BaselineAvg) / e.BaselineAvg * 100
}
