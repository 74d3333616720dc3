package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendwatch_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendwatch_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trendwatch_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Trend provider metrics
	TrendFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendwatch_trend_fetches_total",
			Help: "Total number of interest-over-time fetches",
		},
		[]string{"status"}, // status: success|no_data|rate_limited|error
	)

	TrendFetchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trendwatch_trend_fetch_latency_seconds",
			Help:    "Interest-over-time fetch latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	RateLimitCooldowns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trendwatch_rate_limit_cooldowns_total",
			Help: "Total number of provider throttle cooldowns taken",
		},
	)

	// Detection metrics
	TermsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendwatch_terms_scanned_total",
			Help: "Total number of term scans",
		},
		[]string{"category", "outcome"}, // outcome: breakout|quiet|no_data|error|timeout
	)

	BreakoutsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendwatch_breakouts_detected_total",
			Help: "Total number of breakout events detected",
		},
		[]string{"category"},
	)

	// Alert metrics
	AlertDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendwatch_alert_deliveries_total",
			Help: "Total number of per-recipient alert deliveries",
		},
		[]string{"kind", "status"}, // kind: breakout|summary, status: success|error
	)

	// Cycle metrics
	CyclesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendwatch_scan_cycles_total",
			Help: "Total number of scan cycles",
		},
		[]string{"status"}, // status: success|error
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trendwatch_scan_cycle_duration_seconds",
			Help:    "Full-catalog scan cycle duration in seconds",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		},
	)
)

// Init registers all metrics with the default registry
func Init() {
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	prometheus.MustRegister(TrendFetches)
	prometheus.MustRegister(TrendFetchLatency)
	prometheus.MustRegister(RateLimitCooldowns)

	prometheus.MustRegister(TermsScanned)
	prometheus.MustRegister(BreakoutsDetected)

	prometheus.MustRegister(AlertDeliveries)

	prometheus.MustRegister(CyclesCompleted)
	prometheus.MustRegister(CycleDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordTrendFetch records one fetch against the trends provider
func RecordTrendFetch(status string, latency time.Duration) {
	TrendFetches.WithLabelValues(status).Inc()
	TrendFetchLatency.Observe(latency.Seconds())
}
