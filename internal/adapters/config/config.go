package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"trendwatch/pkg/errors"
)

type Config struct {
	App           AppConfig
	Telegram      TelegramConfig
	Scanner       ScannerConfig
	Trends        TrendsConfig
	Quotes        QuotesConfig
	Metrics       MetricsConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"trendwatch"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type TelegramConfig struct {
	BotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	ChatIDs  []int64 `envconfig:"TELEGRAM_CHAT_IDS" required:"true"`

	// GroupChats marks the configured chat IDs as group chats. Telegram
	// addresses groups by the negated ID, the dispatcher normalizes before
	// sending.
	GroupChats bool `envconfig:"TELEGRAM_GROUP_CHATS" default:"false"`
}

// ScannerConfig drives the scan-cycle cadence and batching
type ScannerConfig struct {
	CatalogPath     string        `envconfig:"CATALOG_PATH" default:"config/catalog.yaml"`
	ScanIntervalHrs int           `envconfig:"SCAN_INTERVAL_HOURS" default:"24"`
	BatchCeiling    time.Duration `envconfig:"SCANNER_BATCH_CEILING" default:"15m"`
	BatchRest       time.Duration `envconfig:"SCANNER_BATCH_REST" default:"2m"`
	TermTimeout     time.Duration `envconfig:"SCANNER_TERM_TIMEOUT" default:"2m"`
	TermPause       time.Duration `envconfig:"SCANNER_TERM_PAUSE" default:"1s"`

	// Optional UTC anchor for daily runs. When AnchorHour >= 0 the first
	// cycle of each day starts at AnchorHour:AnchorMinute instead of purely
	// interval-based cadence.
	AnchorHour   int `envconfig:"SCANNER_ANCHOR_HOUR" default:"-1"`
	AnchorMinute int `envconfig:"SCANNER_ANCHOR_MINUTE" default:"0"`
}

// Interval returns the fixed time between full-catalog passes
func (c ScannerConfig) Interval() time.Duration {
	return time.Duration(c.ScanIntervalHrs) * time.Hour
}

type TrendsConfig struct {
	Geo            string        `envconfig:"TRENDS_GEO" default:"US"`
	WindowDays     int           `envconfig:"TRENDS_WINDOW_DAYS" default:"90"`
	HTTPTimeout    time.Duration `envconfig:"TRENDS_HTTP_TIMEOUT" default:"25s"`
	MaxAttempts    int           `envconfig:"TRENDS_MAX_ATTEMPTS" default:"3"`
	BaseDelayFloor time.Duration `envconfig:"TRENDS_BASE_DELAY_FLOOR" default:"5s"`
	BaseDelayCeil  time.Duration `envconfig:"TRENDS_BASE_DELAY_CEIL" default:"30s"`
	Cooldown       time.Duration `envconfig:"TRENDS_RATE_LIMIT_COOLDOWN" default:"90s"`
}

type QuotesConfig struct {
	Enabled     bool          `envconfig:"QUOTES_ENABLED" default:"true"`
	HTTPTimeout time.Duration `envconfig:"QUOTES_HTTP_TIMEOUT" default:"10s"`
	CacheTTL    time.Duration `envconfig:"QUOTES_CACHE_TTL" default:"6h"`
}

type MetricsConfig struct {
	Enabled    bool   `envconfig:"METRICS_ENABLED" default:"false"`
	ListenAddr string `envconfig:"METRICS_LISTEN_ADDR" default:":9091"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
