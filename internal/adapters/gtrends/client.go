package gtrends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trendwatch/internal/metrics"
	"trendwatch/pkg/errors"
	"trendwatch/pkg/logger"
	"trendwatch/pkg/ratelimit"

	"trendwatch/internal/domain/trends"
)

const (
	defaultBaseURL = "https://trends.google.com/trends/api"
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Config configures the Google Trends client
type Config struct {
	BaseURL     string
	Locale      string // hl parameter (default en-US)
	TZOffset    int    // tz parameter, minutes west of UTC (default 360)
	HTTPTimeout time.Duration
	MaxAttempts int

	// RetryBackoff is the base for exponential backoff between attempts on
	// transient failures (default 1s)
	RetryBackoff time.Duration
}

// Client fetches daily interest-over-time series from the unofficial Google
// Trends widget API. Every outbound call goes through the shared adaptive
// rate limiter, the provider's quota is global to the client IP.
type Client struct {
	cfg     Config
	limiter *ratelimit.Limiter
	log     *logger.Logger

	// A fresh client is built per retry to shed corrupted connection or
	// cookie state. Injectable for tests.
	newHTTPClient func() *http.Client
}

// NewClient creates a trends client gated by the given limiter
func NewClient(cfg Config, limiter *ratelimit.Limiter, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}
	if cfg.TZOffset == 0 {
		cfg.TZOffset = 360
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 25 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}

	c := &Client{
		cfg:     cfg,
		limiter: limiter,
		log:     log.With("component", "gtrends"),
	}
	c.newHTTPClient = func() *http.Client {
		return &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return c
}

// Fetch returns the interest-over-time series for one term in the window.
// Returns (nil, nil) when the provider has no data for the term, a normal
// outcome for new or low-volume terms. Transient failures and throttle
// signals are retried up to MaxAttempts with exponential backoff before the
// last error surfaces to the caller.
func (c *Client) Fetch(ctx context.Context, term string, window trends.Window) (*trends.Series, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		series, err := c.fetchOnce(ctx, term, window)
		latency := time.Since(start)

		if err == nil {
			if series == nil {
				metrics.RecordTrendFetch("no_data", latency)
			} else {
				metrics.RecordTrendFetch("success", latency)
			}
			return series, nil
		}
		lastErr = err

		if errors.Is(err, errors.ErrRateLimited) {
			metrics.RecordTrendFetch("rate_limited", latency)
			metrics.RateLimitCooldowns.Inc()

			c.log.Warnw("Throttled by trends provider",
				"term", term,
				"attempt", attempt,
			)
			if err := c.limiter.Backoff(ctx); err != nil {
				return nil, err
			}
			continue
		}

		metrics.RecordTrendFetch("error", latency)
		c.log.Warnw("Trend fetch failed",
			"term", term,
			"attempt", attempt,
			"error", err,
		)

		// Exponential backoff before the next attempt
		if attempt < c.cfg.MaxAttempts {
			backoff := c.cfg.RetryBackoff * time.Duration(1<<uint(attempt-1))
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}

	return nil, errors.Wrapf(lastErr, "fetch trends for %q after %d attempts", term, c.cfg.MaxAttempts)
}

// fetchOnce performs the two-step widget flow: explore to obtain the
// timeseries widget token, then widgetdata/multiline for the actual series.
func (c *Client) fetchOnce(ctx context.Context, term string, window trends.Window) (*trends.Series, error) {
	httpClient := c.newHTTPClient()

	widget, err := c.explore(ctx, httpClient, term, window)
	if err != nil {
		return nil, err
	}

	points, err := c.widgetData(ctx, httpClient, widget)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		// Empty result is a legitimate absence of signal
		return nil, nil
	}

	series := &trends.Series{
		Term:   term,
		Geo:    window.Geo,
		Points: points,
	}

	// The provider's "today" bucket often lags. Fall back to the most recent
	// day with data and flag the series so callers know which day the peak
	// value represents.
	today := window.End.Truncate(24 * time.Hour)
	if series.Latest().Time.Before(today) {
		series.StaleLatest = true
	}

	return series, nil
}

type exploreResponse struct {
	Widgets []struct {
		ID      string          `json:"id"`
		Token   string          `json:"token"`
		Request json.RawMessage `json:"request"`
	} `json:"widgets"`
}

type timeseriesWidget struct {
	Token   string
	Request json.RawMessage
}

func (c *Client) explore(ctx context.Context, httpClient *http.Client, term string, window trends.Window) (*timeseriesWidget, error) {
	timeRange := fmt.Sprintf("%s %s",
		window.Start.Format("2006-01-02"),
		window.End.Format("2006-01-02"),
	)

	req := map[string]interface{}{
		"comparisonItem": []map[string]string{
			{"keyword": term, "geo": window.Geo, "time": timeRange},
		},
		"category": 0,
		"property": "",
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal explore request")
	}

	q := url.Values{}
	q.Set("hl", c.cfg.Locale)
	q.Set("tz", strconv.Itoa(c.cfg.TZOffset))
	q.Set("req", string(reqJSON))

	body, err := c.get(ctx, httpClient, c.cfg.BaseURL+"/explore?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp exploreResponse
	if err := json.Unmarshal(stripJSONPrefix(body), &resp); err != nil {
		return nil, errors.Wrap(err, "decode explore response")
	}

	for _, w := range resp.Widgets {
		if w.ID == "TIMESERIES" {
			return &timeseriesWidget{Token: w.Token, Request: w.Request}, nil
		}
	}
	return nil, errors.New("explore response has no timeseries widget")
}

type multilineResponse struct {
	Default struct {
		TimelineData []struct {
			Time    string    `json:"time"`
			Value   []float64 `json:"value"`
			HasData []bool    `json:"hasData"`
		} `json:"timelineData"`
	} `json:"default"`
}

func (c *Client) widgetData(ctx context.Context, httpClient *http.Client, widget *timeseriesWidget) ([]trends.Point, error) {
	q := url.Values{}
	q.Set("hl", c.cfg.Locale)
	q.Set("tz", strconv.Itoa(c.cfg.TZOffset))
	q.Set("token", widget.Token)
	q.Set("req", string(widget.Request))

	body, err := c.get(ctx, httpClient, c.cfg.BaseURL+"/widgetdata/multiline?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp multilineResponse
	if err := json.Unmarshal(stripJSONPrefix(body), &resp); err != nil {
		return nil, errors.Wrap(err, "decode widget data")
	}

	points := make([]trends.Point, 0, len(resp.Default.TimelineData))
	for _, td := range resp.Default.TimelineData {
		if len(td.Value) == 0 {
			continue
		}
		if len(td.HasData) > 0 && !td.HasData[0] {
			continue
		}
		unix, err := strconv.ParseInt(td.Time, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse bucket timestamp %q", td.Time)
		}
		points = append(points, trends.Point{
			Time:  time.Unix(unix, 0).UTC(),
			Value: td.Value[0],
		})
	}
	return points, nil
}

func (c *Client) get(ctx context.Context, httpClient *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Newf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	return body, nil
}

// stripJSONPrefix removes the anti-hijacking prefix (")]}'," or similar)
// Google prepends to widget API responses.
func stripJSONPrefix(body []byte) []byte {
	idx := strings.IndexAny(string(body), "{[")
	if idx <= 0 {
		return body
	}
	return body[idx:]
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
