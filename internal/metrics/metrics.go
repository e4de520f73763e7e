// Package metrics exposes Prometheus collectors for the page data service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	pageDurationSeconds        *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	upstreamRequestsTotal      *prometheus.CounterVec
	configFetchFailuresTotal   prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageline_pages_total",
				Help: "Total number of page data requests, labeled by final state and page type.",
			},
			[]string{"state", "page_type"},
		)

		pageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pageline_page_duration_seconds",
				Help:    "Histogram of page pipeline latencies, labeled by final state.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"state"},
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

		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageline_upstream_requests_total",
				Help: "Total number of requests forwarded to the CMS, labeled by status code.",
			},
			[]string{"code"},
		)

		configFetchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pageline_config_fetch_failures_total",
				Help: "Total number of failed CMS config fetches.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records the outcome of one pipeline run.
func ObservePage(state, pageType string, duration time.Duration) {
	if pageType == "" {
		pageType = "none"
	}
	pagesTotal.WithLabelValues(state, pageType).Inc()
	pageDurationSeconds.WithLabelValues(state).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveUpstream counts a forwarded request. A zero code means the
// upstream could not be reached.
func ObserveUpstream(code int) {
	label := strconv.Itoa(code)
	if code == 0 {
		label = "error"
	}
	upstreamRequestsTotal.WithLabelValues(label).Inc()
}

// ObserveConfigFailure counts a failed CMS config fetch.
func ObserveConfigFailure() {
	configFetchFailuresTotal.Inc()
}
