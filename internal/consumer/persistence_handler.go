package consumer

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	platformevents "example.com/marathon/internal/platform/events"
)

// PersistenceHandler appends consumed events to training_event_log.
// Redelivered records are ignored by their (topic, partition, offset).
type PersistenceHandler struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool, logger zerolog.Logger) *PersistenceHandler {
	return &PersistenceHandler{pool: pool, logger: logger}
}

// Handle stores the event. Finished sync runs are logged and counted by status the first time they are stored.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	var publishedAt any
	if !msg.Timestamp.IsZero() {
		publishedAt = msg.Timestamp
	}
	tag, err := h.pool.Exec(ctx,
		`INSERT INTO training_event_log (event_type, aggregate_type, aggregate_id, topic, partition, record_offset, payload, published_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType, msg.AggregateType, msg.AggregateID, msg.Topic, msg.Partition, msg.Offset, msg.Payload, publishedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if msg.EventType == platformevents.TypeSyncCompleted {
		var run platformevents.SyncCompleted
		if err := json.Unmarshal(msg.Payload, &run); err != nil {
			h.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("sync.completed payload not understood")
			return nil
		}
		replayedRuns.WithLabelValues(run.Status).Inc()
		h.logger.Info().
			Str("run_id", run.RunID).
			Str("report_date", run.ReportDate).
			Str("status", run.Status).
			Int("successful_athletes", run.SuccessfulAthletes).
			Int("failed_athletes", run.FailedAthletes).
			Msg("sync run completed")
	}
	return nil
}
