// Package metrics exposes Prometheus collectors for the webapp and the
// archive consumer.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Consumer outcome reasons.
const (
	ReasonNone        = "none"
	ReasonInvalidURL  = "invalid_url"
	ReasonInvalidZip  = "invalid_zip"
	ReasonUploadError = "upload_error"
	ReasonMalformed   = "malformed"
	ReasonDuplicate   = "duplicate"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webapp_submissions_total",
			Help: "Submission attempts, labeled by admission outcome.",
		},
		[]string{"outcome"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webapp_events_published_total",
			Help: "Submission events handed to the publisher, labeled by result.",
		},
		[]string{"result"},
	)

	consumerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_events_total",
			Help: "Consumed submission events, labeled by terminal state and failure reason.",
		},
		[]string{"state", "reason"},
	)

	consumerArchiveBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_archive_bytes_total",
			Help: "Bytes downloaded from submission URLs, labeled by site.",
		},
		[]string{"site"},
	)

	consumerSideEffectFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_side_effect_failures_total",
			Help: "Failed notification sends and audit writes.",
		},
		[]string{"effect"},
	)

	consumerActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "consumer_active_workers",
			Help: "Number of workers currently processing an event.",
		},
	)

	consumerDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "consumer_event_duration_seconds",
			Help:    "Histogram of end-to-end event processing time.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
	)

	consumerFetchDelaySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consumer_fetch_rate_limit_delay_seconds",
			Help:    "Time an archive download waited on the per-site rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"site"},
	)

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDurationSeconds,
			submissionsTotal,
			eventsPublishedTotal,
			consumerEventsTotal,
			consumerArchiveBytesTotal,
			consumerSideEffectFailuresTotal,
			consumerActiveWorkers,
			consumerDurationSeconds,
			consumerFetchDelaySeconds,
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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSubmission counts an admission outcome (admitted, deadline_passed, attempts_exhausted, error).
func ObserveSubmission(outcome string) {
	submissionsTotal.WithLabelValues(outcome).Inc()
}

// ObservePublish counts a publish attempt.
func ObservePublish(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsPublishedTotal.WithLabelValues(result).Inc()
}

// ObserveConsumed records the terminal state of one consumed event.
func ObserveConsumed(state, reason string, duration time.Duration) {
	consumerEventsTotal.WithLabelValues(state, reason).Inc()
	consumerDurationSeconds.Observe(duration.Seconds())
}

// ObserveArchiveFetch records downloaded bytes per site.
func ObserveArchiveFetch(rawURL string, bytesFetched int) {
	if bytesFetched > 0 {
		consumerArchiveBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(bytesFetched))
	}
}

// ObserveFetchDelay records how long a download was held back by rate limiting.
func ObserveFetchDelay(site string, delay time.Duration) {
	consumerFetchDelaySeconds.WithLabelValues(site).Observe(delay.Seconds())
}

// ObserveNotifyFailure counts a failed notification send.
func ObserveNotifyFailure() {
	consumerSideEffectFailuresTotal.WithLabelValues("notify").Inc()
}

// ObserveAuditFailure counts a failed audit write.
func ObserveAuditFailure() {
	consumerSideEffectFailuresTotal.WithLabelValues("audit").Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	consumerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	consumerActiveWorkers.Dec()
}
