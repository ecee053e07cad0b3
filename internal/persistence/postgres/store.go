// Package postgres implements domain.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/marathon/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Store provides Postgres-backed persistence and records outbox events
// in the same transaction as the rows they describe.
type Store struct {
	pool  *pgxpool.Pool
	topic string
	now   func() time.Time
}

// Option customises the Store.
type Option func(*Store)

// WithOutboxTopic sets the Kafka topic recorded on outbox rows.
func WithOutboxTopic(topic string) Option {
	return func(s *Store) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:  pool,
		topic: "training_events",
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.Store = (*Store)(nil)

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, name := range files {
		contents, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapError converts driver errors into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", domain.ErrIntegrityConflict, err)
	}
	return err
}

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type outboxEvent struct {
	aggregateType string
	aggregateID   string
	eventType     string
	partitionKey  string
	dedupeKey     string
	payload       any
}

func (s *Store) insertOutbox(ctx context.Context, tx pgx.Tx, event outboxEvent) error {
	body, err := json.Marshal(event.payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		event.aggregateType,
		event.aggregateID,
		event.eventType,
		s.topic,
		event.partitionKey,
		body,
		event.dedupeKey,
	)
	return err
}

func dayRange(date time.Time) (time.Time, time.Time) {
	day := domain.CalendarDate(date)
	return day, day.AddDate(0, 0, 1)
}
