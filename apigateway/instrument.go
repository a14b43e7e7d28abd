package gateway

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests   *prometheus.CounterVec
	resTime    *prometheus.HistogramVec
	resSize    prometheus.Histogram
	reqSize    prometheus.Histogram
	resTimeSum prometheus.Summary
}

var (
	metricsOnce sync.Once
	metrics     httpMetrics
)

func initHTTPMetrics() {
	metricsOnce.Do(func() {
		metrics.requests = register(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plstats",
			Subsystem: "request",
			Name:      "requests_count",
			Help:      "Number of requests per each endpoint",
		}, []string{"code", "method", "route"}))

		metrics.resTime = register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plstats",
			Subsystem: "response",
			Name:      "response_time_seconds",
			Help:      "plstats response duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}))

		metrics.resSize = register(prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "plstats",
			Subsystem: "response",
			Name:      "size_bytes",
			Help:      "plstats response size",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}))

		metrics.reqSize = register(prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "plstats",
			Subsystem: "request",
			Name:      "size_bytes",
			Help:      "Request size instrumenter",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 6),
		}))

		metrics.resTimeSum = register(prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:  "plstats",
			Subsystem:  "response",
			Name:       "latency_summary_seconds",
			Help:       "Computes responses latency",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}))
	})
}

// register returns the collector already registered under the same
// descriptor, so building several apps in one process is harmless.
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Instrumentation records request counts, latency and sizes for every route
// except /metrics.
func Instrumentation() fiber.Handler {
	initHTTPMetrics()
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		duration := time.Since(start).Seconds()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		status := strconv.Itoa(responseStatus(c, err))

		metrics.requests.WithLabelValues(status, c.Method(), route).Inc()
		metrics.resTime.WithLabelValues(route).Observe(duration)
		metrics.resSize.Observe(float64(len(c.Response().Body())))
		metrics.reqSize.Observe(float64(len(c.Request().Body())))
		metrics.resTimeSum.Observe(duration)
		return err
	}
}
