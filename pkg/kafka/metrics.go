package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webclient_events_published_total",
			Help: "Events accepted by the Kafka brokers, by topic and event type",
		},
		[]string{"topic", "event_type"},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webclient_event_publish_failures_total",
			Help: "Events that could not be encoded or written, by topic",
		},
		[]string{"topic"},
	)

	// PublishLatency covers the synchronous write including broker acks.
	PublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webclient_event_publish_seconds",
			Help:    "Time spent writing one event to Kafka",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 11),
		},
		[]string{"topic"},
	)
)
