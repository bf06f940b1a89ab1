// Package metrics exposes Prometheus collectors for the scraping and scoring service.
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
	fetchTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	postingsTotal              *prometheus.CounterVec
	processedTotal             *prometheus.CounterVec
	relevanceScore             prometheus.Histogram
	alertsTotal                *prometheus.CounterVec
	embeddingCacheTotal        *prometheus.CounterVec
	nullBudgetRatio            prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	runsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_fetch_total",
				Help: "Page fetches, labeled by page kind and outcome.",
			},
			[]string{"kind", "status"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscout_fetch_duration_seconds",
				Help:    "Latency of page fetches through the configured fetcher.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 90},
			},
			[]string{"kind"},
		)

		postingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_postings_total",
				Help: "Postings seen by the crawl loop, labeled by result (stored, known, failed).",
			},
			[]string{"result"},
		)

		processedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_processed_total",
				Help: "Postings run through the scoring pipeline, labeled by result.",
			},
			[]string{"result"},
		)

		relevanceScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobscout_relevance_score",
				Help:    "Distribution of relevance scores.",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 65, 70, 80, 90, 100},
			},
		)

		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_alerts_total",
				Help: "Alert deliveries, labeled by channel and status.",
			},
			[]string{"channel", "status"},
		)

		embeddingCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_embedding_cache_total",
				Help: "Embedding cache lookups, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		nullBudgetRatio = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobscout_null_budget_ratio",
				Help: "Share of postings stored by the last crawl run without a budget.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscout_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_runs_total",
				Help: "Crawl and processing runs, labeled by stage and status.",
			},
			[]string{"stage", "status"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
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
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one page fetch.
func ObserveFetch(kind, status string, duration time.Duration) {
	Init()
	fetchTotal.WithLabelValues(kind, status).Inc()
	if duration > 0 {
		fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObservePosting counts a crawl loop outcome for one posting.
func ObservePosting(result string) {
	Init()
	postingsTotal.WithLabelValues(result).Inc()
}

// ObserveProcessed counts a pipeline outcome and, on success, the score.
func ObserveProcessed(result string, score float64) {
	Init()
	processedTotal.WithLabelValues(result).Inc()
	if result == "success" {
		relevanceScore.Observe(score)
	}
}

// ObserveAlert counts one alert delivery attempt.
func ObserveAlert(channel, status string) {
	Init()
	alertsTotal.WithLabelValues(channel, status).Inc()
}

// ObserveEmbeddingCache counts one cache lookup.
func ObserveEmbeddingCache(result string) {
	Init()
	embeddingCacheTotal.WithLabelValues(result).Inc()
}

// SetNullBudgetRatio publishes the budget gap of the last crawl run.
func SetNullBudgetRatio(ratio float64) {
	Init()
	nullBudgetRatio.Set(ratio)
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRun counts a finished crawl or processing run.
func ObserveRun(stage, status string) {
	Init()
	runsTotal.WithLabelValues(stage, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
