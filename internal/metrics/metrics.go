// Package metrics holds the prometheus collectors of the draw service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	draws = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luckydraw",
			Name:      "draws_total",
			Help:      "Draw attempts by outcome.",
		},
		[]string{"outcome"},
	)

	drawDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "luckydraw",
			Name:      "draw_duration_seconds",
			Help:      "Duration of draw attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	invariantViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luckydraw",
			Name:      "invariant_violations_total",
			Help:      "Detected violations of stored lottery invariants.",
		},
		[]string{"kind"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "luckydraw",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "luckydraw",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		draws,
		drawDuration,
		invariantViolations,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// ObserveDraw records one draw attempt. outcome is "success" or the failure reason.
func ObserveDraw(outcome string, elapsed time.Duration) {
	draws.WithLabelValues(outcome).Inc()
	drawDuration.Observe(elapsed.Seconds())
}

// InvariantViolation counts a detected invariant breach of the given kind.
func InvariantViolation(kind string) {
	invariantViolations.WithLabelValues(kind).Inc()
}

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
