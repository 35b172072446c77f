package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "payroll_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payroll_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payroll_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payroll_commands_total",
			Help: "Executed payroll commands by action and audit outcome.",
		},
		[]string{"action", "outcome"},
	)

	idempotencyReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payroll_idempotency_replays_total",
			Help: "Responses served from the idempotency store.",
		},
		[]string{"action"},
	)

	idempotencyReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payroll_idempotency_reaped_total",
		Help: "Expired idempotency records deleted.",
	})

	outboxPublish = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payroll_outbox_publish_total",
			Help: "Outbox publish attempts by result.",
		},
		[]string{"result"},
	)

	registerOnce sync.Once
)

// Init registers the collectors in the default registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			commandsTotal, idempotencyReplays, idempotencyReaped, outboxPublish)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware measures every request, labelled by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInFlight.Inc()
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		httpInFlight.Dec()
	}
}

func ObserveCommand(action, outcome string) {
	commandsTotal.WithLabelValues(action, outcome).Inc()
}

func ObserveReplay(action string) {
	idempotencyReplays.WithLabelValues(action).Inc()
}

func ObserveReaped(n int64) {
	if n > 0 {
		idempotencyReaped.Add(float64(n))
	}
}

func ObserveOutboxPublish(result string) {
	outboxPublish.WithLabelValues(result).Inc()
}
