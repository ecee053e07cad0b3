package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/marathon/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSaveActivityDedupesByExternalID(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	activity := domain.ProcessedActivity{
		ExternalID: 99, Name: "Tempo", StartDate: time.Date(2025, time.June, 1, 7, 0, 0, 0, time.UTC),
		DistanceKM: 8, MovingTimeSeconds: 2400,
	}

	created, err := store.SaveActivity(ctx, 1, activity)
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.SaveActivity(ctx, 1, activity)
	require.NoError(t, err)
	require.False(t, created)

	activities, err := store.ActivitiesOn(ctx, 1, activity.StartDate)
	require.NoError(t, err)
	require.Len(t, activities, 1)
}

func TestUpsertDailySummaryKeepsOneRowPerKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(fixedClock(now)))
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	first, err := store.UpsertDailySummary(ctx, domain.DailySummary{AthleteID: 1, Date: day.Add(5 * time.Hour), Status: domain.StatusMissed})
	require.NoError(t, err)
	second, err := store.UpsertDailySummary(ctx, domain.DailySummary{AthleteID: 1, Date: day, Status: domain.StatusOnTrack})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, now, second.UpdatedAt)

	rows, err := store.SummariesOn(ctx, day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, domain.StatusOnTrack, rows[0].Status)
}

func TestEnsureAthleteIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first, err := store.EnsureAthlete(ctx, "Alice Runner")
	require.NoError(t, err)
	again, err := store.EnsureAthlete(ctx, "  alice runner ")
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.True(t, again.Active)

	_, err = store.EnsureAthlete(ctx, " ")
	require.Error(t, err)
}

func TestUpsertAuthorizedAthleteLinksByName(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	existing, err := store.EnsureAthlete(ctx, "Bob")
	require.NoError(t, err)

	expires := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	linked, err := store.UpsertAuthorizedAthlete(ctx, domain.AuthorizedAthlete{
		ExternalID: 4242,
		Name:       "bob",
		Token:      domain.Token{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: expires},
	})
	require.NoError(t, err)
	require.Equal(t, existing.ID, linked.ID)
	require.Equal(t, int64(4242), *linked.ExternalID)
	require.Equal(t, "r1", linked.RefreshToken)

	require.NoError(t, store.UpdateTokens(ctx, linked.ID, domain.Token{AccessToken: "a2"}))
	stored, err := store.GetAthlete(ctx, linked.ID)
	require.NoError(t, err)
	require.Equal(t, "a2", stored.AccessToken)
	require.Equal(t, "r1", stored.RefreshToken)
	require.Equal(t, expires, *stored.TokenExpiresAt)

	_, err = store.GetAthlete(ctx, 999)
	require.ErrorIs(t, err, domain.ErrAthleteNotFound)
}

func TestListActiveSortedByID(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	for _, name := range []string{"C", "A", "B"} {
		_, err := store.EnsureAthlete(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, store.SetActive(ctx, 2, false))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "C", active[0].Name)
	require.Equal(t, "B", active[1].Name)
}

func TestAuditLogAndUsage(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordLog(ctx, domain.SystemLog{Level: domain.LogSuccess, Message: "first"}))
	require.NoError(t, store.RecordSyncRun(ctx, domain.SyncRun{Status: domain.LogWarning, Message: "partial", FinishedAt: day}))

	last, err := store.LastSuccess(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", last.Message)

	recent, err := store.RecentLogs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "partial", recent[0].Message)

	for i := 0; i < 3; i++ {
		_, err := store.RecordRequest(ctx, day.Add(time.Hour), day.Add(time.Hour), 3)
		require.NoError(t, err)
	}
	usage, err := store.UsageOn(ctx, day)
	require.NoError(t, err)
	require.Equal(t, 3, usage.Requests)
	require.True(t, usage.LimitReached)
}

func TestSaveActivityIgnoresReuploadUnderNewExternalID(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	original := domain.ProcessedActivity{
		ExternalID: 101, Name: "Morning Run", StartDate: day.Add(7 * time.Hour),
		DistanceKM: 10, MovingTimeSeconds: 3300,
	}
	reupload := original
	reupload.ExternalID = 202

	created, err := store.SaveActivity(ctx, 1, original)
	require.NoError(t, err)
	require.True(t, created)
	created, err = store.SaveActivity(ctx, 1, reupload)
	require.NoError(t, err)
	require.False(t, created)

	differentName := original
	differentName.ExternalID = 303
	differentName.Name = "Evening Run"
	created, err = store.SaveActivity(ctx, 1, differentName)
	require.NoError(t, err)
	require.True(t, created)

	summary, err := domain.NewReconciler(store, store, store).Reconcile(ctx, 1, day)
	require.NoError(t, err)
	require.Equal(t, 2, summary.ActivityCount)
	require.InDelta(t, 20.0, summary.ActualDistanceKM, 1e-9)
}
