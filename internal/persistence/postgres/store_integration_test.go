//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/marathon/internal/domain"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("marathon"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations must be re-runnable")
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func ptr(v float64) *float64 { return &v }

func TestStoreReconciliationRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	store := NewStore(pool, WithOutboxTopic("training_events_test"))

	athlete, err := store.EnsureAthlete(ctx, "Alice Runner")
	require.NoError(t, err)
	again, err := store.EnsureAthlete(ctx, "  alice runner ")
	require.NoError(t, err)
	require.Equal(t, athlete.ID, again.ID)

	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	activity := domain.ProcessedActivity{
		ExternalID: 9001, Name: "Morning Run", ActivityType: "Run",
		StartDate: day.Add(7 * time.Hour), DistanceKM: 10.2, MovingTimeSeconds: 3360, PaceMinPerKM: ptr(5.49),
	}
	created, err := store.SaveActivity(ctx, athlete.ID, activity)
	require.NoError(t, err)
	require.True(t, created)
	created, err = store.SaveActivity(ctx, athlete.ID, activity)
	require.NoError(t, err)
	require.False(t, created)

	require.NoError(t, store.UpsertPlannedWorkout(ctx, domain.PlannedWorkout{
		AthleteID: athlete.ID, Date: day, PlannedDistanceKM: 10, PlannedPaceMinPerKM: 5.5,
	}))

	reconciler := domain.NewReconciler(store, store, store)
	first, err := reconciler.Reconcile(ctx, athlete.ID, day)
	require.NoError(t, err)
	second, err := reconciler.Reconcile(ctx, athlete.ID, day)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, domain.StatusOnTrack, second.Status)

	summaries, err := store.SummariesOn(ctx, day)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.InDelta(t, 2.0, summaries[0].DistanceVariancePct, 1e-9)
	require.True(t, summaries[0].Date.Equal(day))

	planned, err := store.PlannedWorkoutOn(ctx, athlete.ID, day)
	require.NoError(t, err)
	require.NotNil(t, planned)
	require.Equal(t, domain.DefaultWorkoutType, planned.WorkoutType)

	var events int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE event_type = 'summary.reconciled' AND topic = 'training_events_test'`).Scan(&events))
	require.Equal(t, 2, events)
}

func TestStoreConcurrentSummaryUpsertKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupPostgres(t))
	athlete, err := store.EnsureAthlete(ctx, "Bob Jogger")
	require.NoError(t, err)
	day := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.UpsertDailySummary(ctx, domain.DailySummary{
				AthleteID: athlete.ID, Date: day, ActualDistanceKM: float64(i), Status: domain.StatusExtraActivity,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	summaries, err := store.SummariesOn(ctx, day)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}

func TestStoreAuthorizationAndAudit(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupPostgres(t))

	planned, err := store.EnsureAthlete(ctx, "Carl Pacer")
	require.NoError(t, err)

	linked, err := store.UpsertAuthorizedAthlete(ctx, domain.AuthorizedAthlete{
		ExternalID: 42, Name: "carl pacer",
		Token: domain.Token{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)},
	})
	require.NoError(t, err)
	require.Equal(t, planned.ID, linked.ID)
	require.Equal(t, int64(42), *linked.ExternalID)

	require.NoError(t, store.UpdateTokens(ctx, linked.ID, domain.Token{AccessToken: "a2"}))
	reloaded, err := store.GetAthlete(ctx, linked.ID)
	require.NoError(t, err)
	require.Equal(t, "a2", reloaded.AccessToken)
	require.Equal(t, "r1", reloaded.RefreshToken)

	_, err = store.GetAthlete(ctx, 999)
	require.ErrorIs(t, err, domain.ErrAthleteNotFound)

	require.NoError(t, store.SetActive(ctx, linked.ID, false))
	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	last, err := store.LastSuccess(ctx)
	require.NoError(t, err)
	require.Nil(t, last)

	now := time.Now().UTC()
	require.NoError(t, store.RecordSyncRun(ctx, domain.SyncRun{
		ID: "run-1", StartedAt: now.Add(-time.Minute), FinishedAt: now, ReportDate: now,
		Status: domain.LogSuccess, Message: "Sync completed",
	}))
	require.NoError(t, store.RecordLog(ctx, domain.SystemLog{Level: domain.LogInfo, Message: "Daily training summary", Details: "text"}))

	last, err = store.LastSuccess(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, "Sync completed", last.Message)

	logs, err := store.RecentLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, domain.LogInfo, logs[0].Level)

	for i := 0; i < 3; i++ {
		_, err := store.RecordRequest(ctx, now, now, 3)
		require.NoError(t, err)
	}
	usage, err := store.UsageOn(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 3, usage.Requests)
	require.True(t, usage.LimitReached)
}

func TestSaveActivityIgnoresReuploadUnderNewExternalID(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupPostgres(t))

	athlete, err := store.EnsureAthlete(ctx, "Bea")
	require.NoError(t, err)
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	original := domain.ProcessedActivity{
		ExternalID: 101, Name: "Morning Run", ActivityType: "Run",
		StartDate: day.Add(7 * time.Hour), DistanceKM: 10, MovingTimeSeconds: 3300,
	}
	reupload := original
	reupload.ExternalID = 202

	created, err := store.SaveActivity(ctx, athlete.ID, original)
	require.NoError(t, err)
	require.True(t, created)
	created, err = store.SaveActivity(ctx, athlete.ID, reupload)
	require.NoError(t, err)
	require.False(t, created)

	summary, err := domain.NewReconciler(store, store, store).Reconcile(ctx, athlete.ID, day)
	require.NoError(t, err)
	require.Equal(t, 1, summary.ActivityCount)
	require.InDelta(t, 10.0, summary.ActualDistanceKM, 1e-9)
}
