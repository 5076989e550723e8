package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_http_requests_total",
			Help: "Total number of HTTP requests served to the page.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_client_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_api_requests_total",
			Help: "Total number of calls made to the remote chat API.",
		},
		[]string{"op", "status"},
	)
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_client_api_request_duration_seconds",
			Help:    "Remote chat API latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	feedPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_feed_polls_total",
			Help: "Message feed polls by outcome.",
		},
		[]string{"result"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_client_ws_active_connections",
			Help: "Number of page websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_client_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		apiRequestsTotal,
		apiRequestDuration,
		feedPollsTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// ObserveAPICall records one remote API call. status is 0 when no
// response was received.
func ObserveAPICall(op string, status int, elapsed time.Duration) {
	label := "network_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequestsTotal.WithLabelValues(op, label).Inc()
	apiRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func IncFeedPoll(result string) {
	feedPollsTotal.WithLabelValues(result).Inc()
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
