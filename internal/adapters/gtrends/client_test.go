package gtrends

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendwatch/internal/domain/trends"
	"trendwatch/pkg/errors"
	"trendwatch/pkg/logger"
	"trendwatch/pkg/ratelimit"
)

func fastLimiter() *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.Config{
		BaseDelayFloor: time.Microsecond,
		BaseDelayCeil:  time.Millisecond,
		DelayIncrement: time.Microsecond,
		Cooldown:       time.Microsecond,
	}, logger.Get())
}

func testWindow() trends.Window {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return trends.Window{Start: end.AddDate(0, 0, -90), End: end, Geo: "US"}
}

// newTrendsServer serves the two-step widget flow with the given timeline
func newTrendsServer(t *testing.T, timeline string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/explore", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ")]}'\n{\"widgets\":[",
			"{\"id\":\"TIMESERIES\",\"token\":\"tok123\",\"request\":{\"locale\":\"en-US\"}},",
			"{\"id\":\"RELATED_QUERIES\",\"token\":\"other\",\"request\":{}}",
			"]}")
	})
	mux.HandleFunc("/widgetdata/multiline", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok123", r.URL.Query().Get("token"))
		fmt.Fprint(w, ")]}',\n{\"default\":{\"timelineData\":["+timeline+"]}}")
	})
	return httptest.NewServer(mux)
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:     baseURL,
		MaxAttempts:  3,
		HTTPTimeout:  5 * time.Second,
		RetryBackoff: time.Millisecond,
	}, fastLimiter(), logger.Get())
}

func TestFetch_ParsesSeries(t *testing.T) {
	day := 24 * time.Hour
	end := testWindow().End
	timeline := fmt.Sprintf(
		`{"time":"%d","value":[20],"hasData":[true]},{"time":"%d","value":[25],"hasData":[true]},{"time":"%d","value":[95],"hasData":[true]}`,
		end.Add(-2*day).Unix(), end.Add(-day).Unix(), end.Unix(),
	)
	srv := newTrendsServer(t, timeline)
	defer srv.Close()

	series, err := newTestClient(srv.URL).Fetch(context.Background(), "quantum computing", testWindow())
	require.NoError(t, err)
	require.NotNil(t, series)

	assert.Equal(t, "quantum computing", series.Term)
	assert.Equal(t, "US", series.Geo)
	require.Equal(t, 3, series.Len())
	assert.Equal(t, []float64{20, 25, 95}, series.Values())
	assert.False(t, series.StaleLatest)
}

func TestFetch_EmptyResultIsNotAnError(t *testing.T) {
	srv := newTrendsServer(t, "")
	defer srv.Close()

	series, err := newTestClient(srv.URL).Fetch(context.Background(), "obscure new term", testWindow())
	assert.NoError(t, err)
	assert.Nil(t, series)
}

func TestFetch_MissingTodayFallsBackFlagged(t *testing.T) {
	day := 24 * time.Hour
	end := testWindow().End
	// Today's bucket exists but has no data yet, yesterday is the most
	// recent usable day
	timeline := fmt.Sprintf(
		`{"time":"%d","value":[40],"hasData":[true]},{"time":"%d","value":[88],"hasData":[true]},{"time":"%d","value":[0],"hasData":[false]}`,
		end.Add(-2*day).Unix(), end.Add(-day).Unix(), end.Unix(),
	)
	srv := newTrendsServer(t, timeline)
	defer srv.Close()

	series, err := newTestClient(srv.URL).Fetch(context.Background(), "web3", testWindow())
	require.NoError(t, err)
	require.NotNil(t, series)

	assert.True(t, series.StaleLatest)
	assert.Equal(t, 88.0, series.Latest().Value)
	assert.Equal(t, end.Add(-day), series.Latest().Time)
}

func TestFetch_RetriesOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Fetch(context.Background(), "edge computing", testWindow())

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRateLimited)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "each attempt hits explore once")
}

func TestFetch_FreshClientPerAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	var built int32
	orig := client.newHTTPClient
	client.newHTTPClient = func() *http.Client {
		atomic.AddInt32(&built, 1)
		return orig()
	}

	_, err := client.Fetch(context.Background(), "smart sensors", testWindow())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&built))
}

func TestFetch_TransientErrorSurfacesAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Fetch(context.Background(), "neuroscience", testWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestFetch_CancelledContext(t *testing.T) {
	srv := newTrendsServer(t, "")
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv.URL).Fetch(ctx, "dao technology", testWindow())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStripJSONPrefix(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(stripJSONPrefix([]byte(")]}',\n{\"a\":1}"))))
	assert.Equal(t, `["x"]`, string(stripJSONPrefix([]byte(")]}'\n[\"x\"]"))))
	assert.Equal(t, `{"a":1}`, string(stripJSONPrefix([]byte(`{"a":1}`))))
}
