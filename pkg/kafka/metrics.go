package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_producer_publish_total",
			Help: "Kafka publish attempts by topic, event type and outcome.",
		},
		[]string{"topic", "event_type", "outcome"},
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_producer_publish_duration_seconds",
			Help:    "Duration of Kafka publish calls in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"topic"},
	)
)

// observePublish records one publish attempt.
func observePublish(topic, eventType string, seconds float64, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	publishTotal.WithLabelValues(topic, eventType, outcome).Inc()
	publishDuration.WithLabelValues(topic).Observe(seconds)
}
