package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration in seconds partitioned by method, route, and status code
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// In-flight HTTP requests
	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Postback events partitioned by provider and outcome
	postbackEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postback_events_total",
			Help: "Postback events processed, by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// Net amount credited through postbacks, USD cents, by provider
	postbackCreditedCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postback_credited_cents_total",
			Help: "Net USD cents credited through postbacks, by provider",
		},
		[]string{"provider"},
	)
)

// Metrics returns a Fiber v3 middleware that records basic Prometheus metrics.
// Labels are kept low-cardinality by using the matched route path when available.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		method := c.Method()
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path // Use route template to avoid high cardinality
		}

		labels := prometheus.Labels{
			"method": method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordPostbackEvent counts a processed postback by provider and outcome
func RecordPostbackEvent(provider, outcome string) {
	postbackEventsTotal.With(prometheus.Labels{
		"provider": provider,
		"outcome":  outcome,
	}).Inc()
}

// RecordPostbackCredited accumulates net credited cents per provider
func RecordPostbackCredited(provider string, netCents int64) {
	if netCents <= 0 {
		return
	}
	postbackCreditedCents.With(prometheus.Labels{"provider": provider}).Add(float64(netCents))
}
