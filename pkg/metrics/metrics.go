package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	ClassifierCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_call_latency_ms",
			Help:    "Classifier call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"model", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	ThoughtCapturedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thought_captured_count",
			Help: "Total number of thoughts captured",
		},
		[]string{"result"}, // result: created, duplicate, rate_limited, rejected
	)

	ThoughtClassifiedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thought_classified_count",
			Help: "Total number of classification attempts persisted",
		},
		[]string{"classification", "source"},
	)

	DigestDeliveredCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digest_delivered_count",
			Help: "Total number of digest deliveries",
		},
		[]string{"result"}, // result: sent, duplicate, empty_week
	)
)

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordClassifierCallLatency(model, status string, duration time.Duration) {
	ClassifierCallLatency.WithLabelValues(model, status).Observe(float64(duration.Milliseconds()))
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func IncrementThoughtCaptured(result string) {
	ThoughtCapturedCount.WithLabelValues(result).Inc()
}

func IncrementThoughtClassified(classification, source string) {
	ThoughtClassifiedCount.WithLabelValues(classification, source).Inc()
}

func IncrementDigestDelivered(result string) {
	DigestDeliveredCount.WithLabelValues(result).Inc()
}
