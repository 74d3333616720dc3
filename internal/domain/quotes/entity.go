package quotes

import "context"

// Quote is a point-in-time market snapshot for one ticker, used only to
// annotate alerts.
type Quote struct {
	Ticker    string
	Name      string
	LastPrice float64
}

// Resolver looks up quote data for a ticker. Implementations should degrade
// gracefully, a failed lookup must never block an alert.
type Resolver interface {
	Resolve(ctx context.Context, ticker string) (*Quote, error)
}
