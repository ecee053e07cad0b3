package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marathon"

// Outcomes of a consumed training event.
const (
	outcomeStored   = "stored"
	outcomeRetried  = "retried"
	outcomeRejected = "rejected"
)

var (
	// eventOutcomes tracks every record read back from the training topics.
	// Rejected records carry no event type, so that label is empty for them.
	eventOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "event_log",
		Name:      "training_events_total",
		Help:      "Training events read back from Kafka by outcome: stored in the event log, retried after a store failure, or rejected as malformed.",
	}, []string{"topic", "event_type", "outcome"})

	replayedRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "event_log",
		Name:      "sync_runs_total",
		Help:      "Finished sync runs seen in the event stream, by run status.",
	}, []string{"status"})

	newestEvent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "event_log",
		Name:      "newest_event_timestamp_seconds",
		Help:      "Publish time of the newest training event stored from each topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(eventOutcomes, replayedRuns, newestEvent)
}

func recordStored(msg Message) {
	eventOutcomes.WithLabelValues(msg.Topic, msg.EventType, outcomeStored).Inc()
	if !msg.Timestamp.IsZero() {
		newestEvent.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordRetried(msg Message) {
	eventOutcomes.WithLabelValues(msg.Topic, msg.EventType, outcomeRetried).Inc()
}

func recordRejected(topic string) {
	eventOutcomes.WithLabelValues(topic, "", outcomeRejected).Inc()
}
