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
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	messagesAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Total number of messages appended, by payload kind.",
		},
		[]string{"kind"},
	)
	mediaUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_media_uploads_total",
			Help: "Total number of media uploads, by outcome.",
		},
		[]string{"outcome"},
	)
	signedURLResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_signed_url_resolutions_total",
			Help: "Total number of signed URL resolutions, by outcome.",
		},
		[]string{"outcome"},
	)
	shareItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_share_items_total",
			Help: "Total number of ingested share sub-items, by outcome.",
		},
		[]string{"outcome"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		messagesAppendedTotal,
		mediaUploadsTotal,
		signedURLResolutionsTotal,
		shareItemsTotal,
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

func IncMessageAppended(kind string) {
	messagesAppendedTotal.WithLabelValues(kind).Inc()
}

func IncMediaUpload(outcome string) {
	mediaUploadsTotal.WithLabelValues(outcome).Inc()
}

func IncSignedURLResolution(outcome string) {
	signedURLResolutionsTotal.WithLabelValues(outcome).Inc()
}

func IncShareItem(outcome string) {
	shareItemsTotal.WithLabelValues(outcome).Inc()
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
