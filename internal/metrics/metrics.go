// Package metrics exposes Prometheus instrumentation for the fanout
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered for the fanout service.
type Metrics struct {
	FanoutDecisions   *prometheus.CounterVec
	PublishAttempts   prometheus.Counter
	PublishFailures   prometheus.Counter
	DeadLetters       prometheus.Counter
	EventsConsumed    *prometheus.CounterVec
	EventsSkipped     *prometheus.CounterVec
	FeedEntriesStored prometheus.Counter
	BreakerState      *prometheus.GaugeVec
}

// New registers the fanout collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FanoutDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fanout_decisions_total",
			Help: "Fanout strategy decisions by strategy.",
		}, []string{"strategy"}),
		PublishAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "publish_attempts_total",
			Help: "Broker publish attempts, including retries.",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "publish_failures_total",
			Help: "Broker publish attempts that failed.",
		}),
		DeadLetters: factory.NewCounter(prometheus.CounterOpts{
			Name: "dead_letter_events_total",
			Help: "Events diverted to the dead letter store.",
		}),
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Events processed and acknowledged, by consumer.",
		}, []string{"consumer"}),
		EventsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "events_skipped_total",
			Help: "Malformed events acknowledged and skipped, by consumer.",
		}, []string{"consumer"}),
		FeedEntriesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_entries_stored_total",
			Help: "Feed entries materialized by the push path.",
		}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}
}
