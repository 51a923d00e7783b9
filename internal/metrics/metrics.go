// Package metrics exposes Prometheus collectors for crawl runs.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	unitsTotal              *prometheus.CounterVec
	fetchAttemptsTotal      *prometheus.CounterVec
	fetchDurationSeconds    prometheus.Histogram
	recordsWrittenTotal     prometheus.Counter
	recordsDroppedTotal     prometheus.Counter
	yearsPrunedTotal        prometheus.Counter
	mirrorErrorsTotal       prometheus.Counter
	activeWorkers           prometheus.Gauge
	rateLimitDelaysSeconds  *prometheus.HistogramVec
	lastRunTimestampSeconds prometheus.Gauge
	lastRunDurationSeconds  prometheus.Gauge
	lastRunCitiesResolved   prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		unitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jadwal_units_total",
				Help: "Crawl units processed, labeled by outcome and failure kind.",
			},
			[]string{"outcome", "kind"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jadwal_fetch_attempts_total",
				Help: "HTTP fetch attempts, labeled by status code (0 for transport errors).",
			},
			[]string{"code"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jadwal_fetch_duration_seconds",
				Help:    "Histogram of fetch attempt latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		recordsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jadwal_records_written_total",
				Help: "Schedule records written to disk.",
			},
		)

		recordsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jadwal_records_dropped_total",
				Help: "Snapshot rows dropped because the date did not parse or fell outside the period.",
			},
		)

		yearsPrunedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jadwal_years_pruned_total",
				Help: "Year directories removed by the retention sweep.",
			},
		)

		mirrorErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jadwal_mirror_errors_total",
				Help: "Failed object-store mirror operations.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jadwal_active_workers",
				Help: "Number of workers currently processing a unit.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jadwal_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"domain"},
		)

		lastRunTimestampSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jadwal_last_run_timestamp_seconds",
				Help: "Unix time the last crawl run finished.",
			},
		)

		lastRunDurationSeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jadwal_last_run_duration_seconds",
				Help: "Wall time of the last crawl run.",
			},
		)

		lastRunCitiesResolved = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jadwal_last_run_cities",
				Help: "Cities resolved from the listing page in the last run.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveUnit counts one finished unit.
func ObserveUnit(outcome, kind string) {
	Init()
	if kind == "" {
		kind = "none"
	}
	unitsTotal.WithLabelValues(outcome, kind).Inc()
}

// ObserveFetch records a single fetch attempt.
func ObserveFetch(code int, duration time.Duration) {
	Init()
	fetchAttemptsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	if duration > 0 {
		fetchDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveRecords adds written and dropped record counts.
func ObserveRecords(written, dropped int) {
	Init()
	if written > 0 {
		recordsWrittenTotal.Add(float64(written))
	}
	if dropped > 0 {
		recordsDroppedTotal.Add(float64(dropped))
	}
}

// ObservePruned adds removed year directories.
func ObservePruned(years int) {
	Init()
	if years > 0 {
		yearsPrunedTotal.Add(float64(years))
	}
}

// ObserveMirrorError increments the mirror failure counter.
func ObserveMirrorError() {
	Init()
	mirrorErrorsTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRun records run-level gauges once a crawl completes.
func ObserveRun(finished time.Time, duration time.Duration, cities int) {
	Init()
	lastRunTimestampSeconds.Set(float64(finished.Unix()))
	lastRunDurationSeconds.Set(duration.Seconds())
	lastRunCitiesResolved.Set(float64(cities))
}

// Push sends every registered collector to a Pushgateway. The mode label keeps
// refresh and backfill runs in separate groups.
func Push(ctx context.Context, gatewayURL, job, mode string) error {
	Init()
	return PushFrom(ctx, prometheus.DefaultGatherer, gatewayURL, job, mode)
}

// PushFrom pushes the metrics of the given gatherer.
func PushFrom(ctx context.Context, g prometheus.Gatherer, gatewayURL, job, mode string) error {
	if strings.TrimSpace(gatewayURL) == "" {
		return fmt.Errorf("pushgateway url is empty")
	}
	pusher := push.New(gatewayURL, job).Gatherer(g)
	if mode != "" {
		pusher = pusher.Grouping("mode", mode)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
