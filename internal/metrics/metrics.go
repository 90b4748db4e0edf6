// Package metrics exposes Prometheus collectors for the scrape pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchErrorsTotal           *prometheus.CounterVec
	workersInFlight            prometheus.Gauge
	politenessDelaySeconds     prometheus.Histogram
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	batchesTotal               *prometheus.CounterVec
	catalogWritesTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmmeta_items_total",
				Help: "Targets processed, labeled by outcome (done or degraded).",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filmmeta_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmmeta_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmmeta_fetch_errors_total",
				Help: "Failed fetches, labeled by error kind.",
			},
			[]string{"kind"},
		)

		workersInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "filmmeta_workers_in_flight",
				Help: "Number of scrape tasks currently running.",
			},
		)

		politenessDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "filmmeta_politeness_delay_seconds",
				Help:    "Randomized pause taken before each fetch.",
				Buckets: []float64{0.1, 0.25, 0.5, 0.75, 1, 2},
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filmmeta_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmmeta_batches_total",
				Help: "Batch runs, labeled by final status.",
			},
			[]string{"status"},
		)

		catalogWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmmeta_catalog_writes_total",
				Help: "Catalog upserts, labeled by result (created, exists, error).",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem counts one finished target.
func ObserveItem(outcome string) {
	Init()
	itemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records latency and size of a successful fetch.
func ObserveFetch(site string, duration time.Duration, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	fetchDurationSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveFetchError counts a failed fetch by kind.
func ObserveFetchError(kind string) {
	Init()
	fetchErrorsTotal.WithLabelValues(kind).Inc()
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() {
	Init()
	workersInFlight.Inc()
}

// DecInFlight decrements the in-flight gauge.
func DecInFlight() {
	Init()
	workersInFlight.Dec()
}

// ObservePolitenessDelay records the pause taken before a fetch.
func ObservePolitenessDelay(d time.Duration) {
	Init()
	politenessDelaySeconds.Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveBatch counts a finished batch run.
func ObserveBatch(status string) {
	Init()
	batchesTotal.WithLabelValues(status).Inc()
}

// ObserveCatalogWrite counts a catalog upsert result.
func ObserveCatalogWrite(result string) {
	Init()
	catalogWritesTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
