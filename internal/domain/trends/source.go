package trends

import (
	"context"
	"time"
)

// Window is the requested date range and geography for a fetch.
type Window struct {
	Start time.Time
	End   time.Time
	Geo   string
}

// Source abstracts the external interest-over-time provider. Fetch returns
// (nil, nil) when the provider has no data for the term in the window, which
// is a normal outcome for new or low-volume terms, not a fault.
type Source interface {
	Fetch(ctx context.Context, term string, window Window) (*Series, error)
}
