package trends

import (
	"time"

	"github.com/google/uuid"
)

// CycleSummary aggregates the outcome of one full catalog traversal. It is a
// transient control-flow grouping, dispatched once at end of cycle and then
// discarded.
type CycleSummary struct {
	CycleID    uuid.UUID
	StartedAt  time.Time
	Duration   time.Duration
	Categories int
	Terms      int
	NoData     int
	Skipped    int
	Events     []*BreakoutEvent
}
