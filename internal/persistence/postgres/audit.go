package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"example.com/marathon/internal/domain"
	platformevents "example.com/marathon/internal/platform/events"
)

const logColumns = `id, logged_at, level, message, details`

func scanLog(row pgx.Row) (domain.SystemLog, error) {
	var (
		entry domain.SystemLog
		level string
	)
	if err := row.Scan(&entry.ID, &entry.LoggedAt, &level, &entry.Message, &entry.Details); err != nil {
		return domain.SystemLog{}, err
	}
	entry.Level = domain.LogLevel(level)
	return entry, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLog(ctx context.Context, q execer, entry domain.SystemLog, now time.Time) error {
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = now
	}
	_, err := q.Exec(ctx,
		`INSERT INTO system_logs (logged_at, level, message, details) VALUES ($1,$2,$3,$4)`,
		entry.LoggedAt, string(entry.Level), entry.Message, entry.Details)
	return err
}

// RecordLog implements domain.AuditLog.
func (s *Store) RecordLog(ctx context.Context, entry domain.SystemLog) error {
	return insertLog(ctx, s.pool, entry, s.now())
}

// RecordSyncRun stores the terminal log entry and a sync.completed outbox event together.
func (s *Store) RecordSyncRun(ctx context.Context, run domain.SyncRun) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertLog(ctx, tx, run.Log(), s.now()); err != nil {
			return err
		}
		return s.insertOutbox(ctx, tx, outboxEvent{
			aggregateType: "sync_run",
			aggregateID:   run.ID,
			eventType:     platformevents.TypeSyncCompleted,
			partitionKey:  run.ReportDate.Format(time.DateOnly),
			dedupeKey:     "sync:" + run.ID,
			payload: platformevents.SyncCompleted{
				RunID:              run.ID,
				ReportDate:         run.ReportDate.Format(time.DateOnly),
				Status:             string(run.Status),
				Message:            run.Message,
				SuccessfulAthletes: run.SuccessfulAthletes,
				FailedAthletes:     run.FailedAthletes,
				SummariesWritten:   run.SummariesWritten,
				NotificationSent:   run.NotificationSent,
				StartedAt:          run.StartedAt,
				FinishedAt:         run.FinishedAt,
			},
		})
	})
}

// LastSuccess returns nil without error when no run has succeeded yet.
func (s *Store) LastSuccess(ctx context.Context) (*domain.SystemLog, error) {
	entry, err := scanLog(s.pool.QueryRow(ctx,
		`SELECT `+logColumns+` FROM system_logs WHERE level = $1 ORDER BY logged_at DESC, id DESC LIMIT 1`,
		string(domain.LogSuccess)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RecentLogs returns up to limit entries, newest first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]domain.SystemLog, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+logColumns+` FROM system_logs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SystemLog, 0, limit)
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// UsageOn implements domain.UsageStore.
func (s *Store) UsageOn(ctx context.Context, date time.Time) (domain.APIUsage, error) {
	usage := domain.APIUsage{Date: domain.CalendarDate(date)}
	err := s.pool.QueryRow(ctx,
		`SELECT requests, limit_reached, last_request_at FROM api_usage WHERE usage_date = $1`, usage.Date,
	).Scan(&usage.Requests, &usage.LimitReached, &usage.LastRequestAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return usage, nil
	}
	return usage, err
}

// RecordRequest increments the day's counter atomically.
func (s *Store) RecordRequest(ctx context.Context, date, at time.Time, limit int) (domain.APIUsage, error) {
	const stmt = `INSERT INTO api_usage (usage_date, requests, limit_reached, last_request_at)
        VALUES ($1, 1, $3 > 0 AND 1 >= $3, $2)
        ON CONFLICT (usage_date) DO UPDATE SET
            requests = api_usage.requests + 1,
            last_request_at = EXCLUDED.last_request_at,
            limit_reached = api_usage.limit_reached OR ($3 > 0 AND api_usage.requests + 1 >= $3)
        RETURNING requests, limit_reached, last_request_at`

	usage := domain.APIUsage{Date: domain.CalendarDate(date)}
	err := s.pool.QueryRow(ctx, stmt, usage.Date, at, limit).
		Scan(&usage.Requests, &usage.LimitReached, &usage.LastRequestAt)
	return usage, err
}
