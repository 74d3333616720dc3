package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"trendwatch/internal/adapters/catalog"
	"trendwatch/internal/adapters/config"
	"trendwatch/internal/adapters/errors/noop"
	"trendwatch/internal/adapters/errors/sentry"
	"trendwatch/internal/adapters/gtrends"
	"trendwatch/internal/adapters/quotes"
	quotesdomain "trendwatch/internal/domain/quotes"
	"trendwatch/internal/domain/trends"
	"trendwatch/internal/metrics"
	"trendwatch/internal/services/alerts"
	"trendwatch/internal/services/detector"
	"trendwatch/internal/services/scanner"
	"trendwatch/internal/workers"
	"trendwatch/internal/workers/trendscan"
	"trendwatch/pkg/errors"
	"trendwatch/pkg/logger"
	"trendwatch/pkg/ratelimit"
	"trendwatch/pkg/telegram"
)

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := initLogger(cfg); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Initialize metrics
	metrics.Init()
	startMetricsServer(cfg, log)

	// Load the scan catalog
	cat, err := catalog.Load(cfg.Scanner.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog from %s: %v", cfg.Scanner.CatalogPath, err)
	}
	log.Infow("Catalog loaded",
		"path", cfg.Scanner.CatalogPath,
		"categories", len(cat.Categories),
		"terms", cat.TermCount(),
	)

	// Initialize the trends source behind the shared adaptive rate limiter
	source := initTrendsSource(cfg, log)

	// Initialize Telegram delivery
	bot := initTelegramBot(cfg, log)

	// Initialize alert dispatch, detection, and scanning
	dispatcher := alerts.NewDispatcher(
		bot,
		initQuoteResolver(cfg, log),
		cfg.Telegram.ChatIDs,
		cfg.Telegram.GroupChats,
		log,
	)
	det := detector.New(detector.Config{}, log)
	scan := scanner.New(source, det, dispatcher, scanner.Config{
		WindowDays:  cfg.Trends.WindowDays,
		Geo:         cfg.Trends.Geo,
		TermTimeout: cfg.Scanner.TermTimeout,
		TermPause:   cfg.Scanner.TermPause,
	}, log)

	// Initialize the cycle worker and scheduler
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(trendscan.New(cat, scan, dispatcher, trendscan.Config{
		Interval:     cfg.Scanner.Interval(),
		BatchCeiling: cfg.Scanner.BatchCeiling,
		BatchRest:    cfg.Scanner.BatchRest,
		AnchorHour:   cfg.Scanner.AnchorHour,
		AnchorMinute: cfg.Scanner.AnchorMinute,
		Enabled:      true,
	}))

	log.Info("System initialized successfully")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, scheduler, errorTracker, log)
}

// loadConfig loads application configuration from environment
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// initLogger initializes structured logging
func initLogger(cfg *config.Config) error {
	return logger.Init(cfg.App.LogLevel, cfg.App.Env)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// startMetricsServer exposes Prometheus metrics when enabled
func startMetricsServer(cfg *config.Config, log *logger.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	go func() {
		log.Infow("Metrics server listening", "addr", cfg.Metrics.ListenAddr)
		if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()
}

// initTrendsSource builds the Google Trends client gated by the adaptive
// rate limiter
func initTrendsSource(cfg *config.Config, log *logger.Logger) trends.Source {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		BaseDelayFloor: cfg.Trends.BaseDelayFloor,
		BaseDelayCeil:  cfg.Trends.BaseDelayCeil,
		Cooldown:       cfg.Trends.Cooldown,
	}, log)

	return gtrends.NewClient(gtrends.Config{
		HTTPTimeout: cfg.Trends.HTTPTimeout,
		MaxAttempts: cfg.Trends.MaxAttempts,
	}, limiter, log)
}

// initQuoteResolver builds the ticker annotation resolver, nil when disabled
func initQuoteResolver(cfg *config.Config, log *logger.Logger) quotesdomain.Resolver {
	if !cfg.Quotes.Enabled {
		log.Info("Quote annotation disabled")
		return nil
	}

	return quotes.NewClient(quotes.Config{
		HTTPTimeout: cfg.Quotes.HTTPTimeout,
		CacheTTL:    cfg.Quotes.CacheTTL,
	}, log)
}

// initTelegramBot initializes the Telegram delivery client
func initTelegramBot(cfg *config.Config, log *logger.Logger) *telegram.Bot {
	bot, err := telegram.NewBot(telegram.Config{
		Token: cfg.Telegram.BotToken,
		Debug: cfg.App.Debug,
	}, log)
	if err != nil {
		log.Fatalf("Failed to create Telegram bot: %v", err)
	}

	log.Infow("Telegram bot initialized",
		"recipients", len(cfg.Telegram.ChatIDs),
		"group_chats", cfg.Telegram.GroupChats,
	)
	return bot
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, scheduler *workers.Scheduler, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	cancel()

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Scheduler shutdown: %v", err)
	}

	// Flush error tracker
	if errorTracker != nil {
		if err := errorTracker.Flush(ctx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
