package upstream

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var upstreamMetricsOnce sync.Once

var (
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	upstreamRequestSize     *prometheus.HistogramVec
	upstreamResponseSize    *prometheus.HistogramVec
)

func registerHistogramVec(c *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		logrus.Printf("prometheus histogram register failed: %v", err)
	}
	return c
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		logrus.Printf("prometheus counter register failed: %v", err)
	}
	return c
}

func initMetrics() {
	upstreamMetricsOnce.Do(func() {
		upstreamRequestsTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plstats",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of outgoing upstream HTTP requests.",
		}, []string{"endpoint", "target", "method", "status", "result"}))

		upstreamRequestDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plstats",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of outgoing upstream HTTP requests.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"endpoint", "target", "method", "result"}))

		sizeBuckets := []float64{100, 1_000, 10_000, 50_000, 100_000, 250_000, 500_000, 1_000_000, 2_000_000, 5_000_000, 10_000_000}
		upstreamRequestSize = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plstats",
			Subsystem: "upstream",
			Name:      "request_size_bytes",
			Help:      "Size of outgoing upstream HTTP requests.",
			Buckets:   sizeBuckets,
		}, []string{"endpoint", "target", "method"}))

		upstreamResponseSize = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plstats",
			Subsystem: "upstream",
			Name:      "response_size_bytes",
			Help:      "Size of upstream HTTP responses.",
			Buckets:   sizeBuckets,
		}, []string{"endpoint", "target", "method"}))
	})
}

func recordMetrics(endpoint, target, method string, statusCode int, err error, reqSize int, respSize int, duration time.Duration) {
	if upstreamRequestsTotal == nil {
		return
	}
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	result := "success"
	if err != nil {
		result = "error"
	}

	upstreamRequestsTotal.WithLabelValues(endpoint, target, method, status, result).Inc()
	upstreamRequestDuration.WithLabelValues(endpoint, target, method, result).Observe(duration.Seconds())
	upstreamRequestSize.WithLabelValues(endpoint, target, method).Observe(float64(reqSize))
	upstreamResponseSize.WithLabelValues(endpoint, target, method).Observe(float64(respSize))
}
