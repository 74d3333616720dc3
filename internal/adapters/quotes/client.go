package quotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"trendwatch/internal/domain/quotes"
	"trendwatch/pkg/errors"
	"trendwatch/pkg/logger"
)

const defaultBaseURL = "https://query1.finance.yahoo.com/v7/finance/quote"

// Config configures the quote client
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	CacheTTL    time.Duration
}

// Client resolves tickers to company names and last prices for alert
// annotation. Lookups are cached in-process with a TTL, quote freshness is
// not critical for alert text.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	quote   quotes.Quote
	fetched time.Time
}

// NewClient creates a quote client
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 6 * time.Hour
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log.With("component", "quotes"),
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
	}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			LongName           string  `json:"longName"`
			ShortName          string  `json:"shortName"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// Resolve returns quote data for the ticker, from cache when fresh
func (c *Client) Resolve(ctx context.Context, ticker string) (*quotes.Quote, error) {
	c.mu.Lock()
	if entry, ok := c.cache[ticker]; ok && c.now().Sub(entry.fetched) < c.cfg.CacheTTL {
		q := entry.quote
		c.mu.Unlock()
		return &q, nil
	}
	c.mu.Unlock()

	q := url.Values{}
	q.Set("symbols", ticker)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create quote request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "quote request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("quote provider returned status %d", resp.StatusCode)
	}

	var decoded quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "decode quote response")
	}
	if len(decoded.QuoteResponse.Result) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "ticker %s", ticker)
	}

	r := decoded.QuoteResponse.Result[0]
	name := r.LongName
	if name == "" {
		name = r.ShortName
	}

	quote := quotes.Quote{
		Ticker:    r.Symbol,
		Name:      name,
		LastPrice: r.RegularMarketPrice,
	}

	c.mu.Lock()
	c.cache[ticker] = cacheEntry{quote: quote, fetched: c.now()}
	c.mu.Unlock()

	return &quote, nil
}
