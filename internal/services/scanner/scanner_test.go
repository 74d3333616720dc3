package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwatch/internal/domain/trends"
	"trendwatch/internal/services/detector"
	"trendwatch/pkg/errors"
	"trendwatch/pkg/logger"
)

type mockSource struct {
	series  map[string]*trends.Series
	errs    map[string]error
	fetched []string
	block   map[string]bool // block until ctx expires
}

func (m *mockSource) Fetch(ctx context.Context, term string, window trends.Window) (*trends.Series, error) {
	m.fetched = append(m.fetched, term)
	if m.block[term] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := m.errs[term]; ok {
		return nil, err
	}
	return m.series[term], nil
}

type recordingDispatcher struct {
	events []*trends.BreakoutEvent
}

func (r *recordingDispatcher) DispatchBreakout(ctx context.Context, event *trends.BreakoutEvent) {
	r.events = append(r.events, event)
}

func flatSeries(term string, days int, value, today float64) *trends.Series {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	points := make([]trends.Point, 0, days+1)
	for i := 0; i <= days; i++ {
		v := value
		if i == days {
			v = today
		}
		points = append(points, trends.Point{Time: end.AddDate(0, 0, i-days), Value: v})
	}
	return &trends.Series{Term: term, Geo: "US", Points: points}
}

func newTestScanner(source trends.Source, dispatcher BreakoutDispatcher) *Scanner {
	s := New(source, detector.New(detector.Config{}, logger.Get()), dispatcher, Config{
		TermTimeout: 50 * time.Millisecond,
		TermPause:   time.Nanosecond,
	}, logger.Get())
	s.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return s
}

func TestScan_ProcessesTermsInCatalogOrder(t *testing.T) {
	source := &mockSource{series: map[string]*trends.Series{}}
	dispatcher := &recordingDispatcher{}

	cat := trends.Category{
		Name:  "Quantum Computing",
		Terms: []string{"quantum computing", "quantum computer", "quantum processor"},
	}

	result := newTestScanner(source, dispatcher).Scan(context.Background(), cat)

	assert.Equal(t, cat.Terms, source.fetched)
	assert.Equal(t, 3, result.Terms)
	assert.Equal(t, 3, result.NoData, "nil series counts as no data")
}

func TestScan_DispatchesBreakoutImmediatelyWithSymbols(t *testing.T) {
	source := &mockSource{series: map[string]*trends.Series{
		"quantum computing": flatSeries("quantum computing", 60, 20, 95),
		"quantum computer":  flatSeries("quantum computer", 60, 50, 55),
	}}
	dispatcher := &recordingDispatcher{}

	cat := trends.Category{
		Name:    "Quantum Computing",
		Terms:   []string{"quantum computing", "quantum computer"},
		Symbols: []trends.RelatedSymbol{{Ticker: "IONQ", Description: "Trapped Ion Technology"}},
	}

	result := newTestScanner(source, dispatcher).Scan(context.Background(), cat)

	require.Len(t, result.Events, 1)
	event := result.Events[0]
	assert.Equal(t, "quantum computing", event.Term)
	assert.Equal(t, "Quantum Computing", event.Category)
	assert.Equal(t, cat.Symbols, event.Symbols)

	require.Len(t, dispatcher.events, 1)
	assert.Same(t, event, dispatcher.events[0])
}

func TestScan_TermErrorDoesNotAbortCategory(t *testing.T) {
	source := &mockSource{
		series: map[string]*trends.Series{
			"telemedicine": flatSeries("telemedicine", 60, 10, 96),
		},
		errs: map[string]error{
			"digital health": errors.ErrProviderUnavailable,
		},
	}
	dispatcher := &recordingDispatcher{}

	cat := trends.Category{
		Name:  "Healthcare Technology",
		Terms: []string{"digital health", "telemedicine"},
	}

	result := newTestScanner(source, dispatcher).Scan(context.Background(), cat)

	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "telemedicine", result.Events[0].Term)
}

func TestScan_StuckTermIsAbandoned(t *testing.T) {
	source := &mockSource{
		block: map[string]bool{"web3": true},
		series: map[string]*trends.Series{
			"decentralized apps": flatSeries("decentralized apps", 60, 15, 94),
		},
	}
	dispatcher := &recordingDispatcher{}

	cat := trends.Category{
		Name:  "Web3 Technology",
		Terms: []string{"web3", "decentralized apps"},
	}

	result := newTestScanner(source, dispatcher).Scan(context.Background(), cat)

	assert.Equal(t, 1, result.Skipped, "stuck term is converted into a logged skip")
	require.Len(t, result.Events, 1)
	assert.Equal(t, "decentralized apps", result.Events[0].Term)
}

func TestScan_ParentCancellationReturnsPartialResult(t *testing.T) {
	source := &mockSource{series: map[string]*trends.Series{}}
	dispatcher := &recordingDispatcher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cat := trends.Category{Name: "Edge Computing", Terms: []string{"edge computing", "edge networks"}}
	result := newTestScanner(source, dispatcher).Scan(ctx, cat)

	assert.Equal(t, 0, result.Terms)
	assert.Empty(t, source.fetched)
}

type panickySource struct{}

func (panickySource) Fetch(ctx context.Context, term string, window trends.Window) (*trends.Series, error) {
	panic("corrupt response")
}

func TestScan_PanicIsContainedToTerm(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	cat := trends.Category{Name: "Smart Sensors", Terms: []string{"smart sensors", "sensor networks"}}

	result := newTestScanner(panickySource{}, dispatcher).Scan(context.Background(), cat)

	assert.Equal(t, 2, result.Terms)
	assert.Equal(t, 2, result.Skipped)
}
