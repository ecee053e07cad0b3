package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marathon"

const (
	outcomePublished    = "published"
	outcomeDeadLettered = "dead_lettered"

	outcomeRequeued    = "requeued"
	outcomePostponed   = "postponed"
	outcomeQuarantined = "quarantined"
)

var (
	trainingEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "training_events_total",
		Help:      "Summary and sync-run events leaving the outbox, by event type and whether Kafka accepted them.",
	}, []string{"event_type", "outcome"})

	publishBatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_batch_seconds",
		Help:      "Time to claim, publish and mark one batch of training events.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	redeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dead_letter",
		Name:      "training_events_total",
		Help:      "Dead-lettered training events by redelivery outcome: requeued to the outbox, postponed for a later attempt, or quarantined.",
	}, []string{"event_type", "outcome"})

	parkedEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dead_letter",
		Name:      "parked_training_events",
		Help:      "Training events waiting in outbox_dlq for redelivery, quarantined ones excluded.",
	})
)

func init() {
	prometheus.MustRegister(trainingEvents, publishBatchSeconds, redeliveries, parkedEvents)
}

func recordPublished(messages []Message) {
	for _, msg := range messages {
		trainingEvents.WithLabelValues(msg.EventType, outcomePublished).Inc()
	}
}

func recordDeadLettered(msg Message) {
	trainingEvents.WithLabelValues(msg.EventType, outcomeDeadLettered).Inc()
}

func recordRedelivery(entry dlqEntry, outcome string) {
	redeliveries.WithLabelValues(entry.EventType, outcome).Inc()
}

func refreshParkedEvents(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	parkedEvents.Set(float64(count))
}
