package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	planned    map[summaryKey]PlannedWorkout
	activities []Activity
	summaries  map[summaryKey]DailySummary
	nextID     int64
	planErr    error
	writes     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		planned:   make(map[summaryKey]PlannedWorkout),
		summaries: make(map[summaryKey]DailySummary),
	}
}

func (f *fakeRepo) UpsertPlannedWorkout(_ context.Context, workout PlannedWorkout) error {
	f.planned[summaryKey{athleteID: workout.AthleteID, date: CalendarDate(workout.Date)}] = workout
	return nil
}

func (f *fakeRepo) PlannedWorkoutOn(_ context.Context, athleteID int64, date time.Time) (*PlannedWorkout, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	workout, ok := f.planned[summaryKey{athleteID: athleteID, date: CalendarDate(date)}]
	if !ok {
		return nil, nil
	}
	return &workout, nil
}

func (f *fakeRepo) PlannedWorkoutsOn(_ context.Context, date time.Time) ([]PlannedWorkout, error) {
	var out []PlannedWorkout
	for key, workout := range f.planned {
		if key.date.Equal(CalendarDate(date)) {
			out = append(out, workout)
		}
	}
	return out, nil
}

func (f *fakeRepo) SaveActivity(_ context.Context, athleteID int64, activity ProcessedActivity) (bool, error) {
	for _, existing := range f.activities {
		if existing.ExternalID == activity.ExternalID {
			return false, nil
		}
	}
	f.nextID++
	f.activities = append(f.activities, Activity{ID: f.nextID, AthleteID: athleteID, ProcessedActivity: activity})
	return true, nil
}

func (f *fakeRepo) ActivitiesOn(_ context.Context, athleteID int64, date time.Time) ([]Activity, error) {
	var out []Activity
	for _, activity := range f.activities {
		if activity.AthleteID == athleteID && SameDay(activity.StartDate, date) {
			out = append(out, activity)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertDailySummary(_ context.Context, summary DailySummary) (DailySummary, error) {
	f.writes++
	key := summaryKey{athleteID: summary.AthleteID, date: CalendarDate(summary.Date)}
	if existing, ok := f.summaries[key]; ok {
		summary.ID = existing.ID
	} else {
		f.nextID++
		summary.ID = f.nextID
	}
	f.summaries[key] = summary
	return summary, nil
}

func (f *fakeRepo) SummariesOn(_ context.Context, date time.Time) ([]DailySummary, error) {
	var out []DailySummary
	for key, summary := range f.summaries {
		if key.date.Equal(CalendarDate(date)) {
			out = append(out, summary)
		}
	}
	return out, nil
}

func (f *fakeRepo) SummariesBetween(_ context.Context, start, end time.Time) ([]DailySummary, error) {
	var out []DailySummary
	for key, summary := range f.summaries {
		if !key.date.Before(CalendarDate(start)) && !key.date.After(CalendarDate(end)) {
			out = append(out, summary)
		}
	}
	return out, nil
}

func TestReconcileEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertPlannedWorkout(ctx, PlannedWorkout{
		AthleteID: 1, Date: day.Add(9 * time.Hour), PlannedDistanceKM: 10, PlannedPaceMinPerKM: 5.5, WorkoutType: "Easy Run",
	}))
	_, err := repo.SaveActivity(ctx, 1, ProcessedActivity{ExternalID: 11, Name: "Morning Run", StartDate: day.Add(6 * time.Hour), DistanceKM: 6.0, MovingTimeSeconds: 1980})
	require.NoError(t, err)
	_, err = repo.SaveActivity(ctx, 1, ProcessedActivity{ExternalID: 12, Name: "Evening Run", StartDate: day.Add(18 * time.Hour), DistanceKM: 4.2, MovingTimeSeconds: 1380})
	require.NoError(t, err)

	reconciler := NewReconciler(repo, repo, repo)
	first, err := reconciler.Reconcile(ctx, 1, day.Add(15*time.Hour))
	require.NoError(t, err)

	require.Equal(t, StatusOnTrack, first.Status)
	require.Equal(t, 2.0, first.DistanceVariancePct)
	require.InDelta(t, 0, first.PaceVariancePct, 0.5)
	require.Equal(t, 10.2, first.ActualDistanceKM)
	require.NotNil(t, first.ActualPaceMinPerKM)
	require.Equal(t, 5.49, *first.ActualPaceMinPerKM)
	require.Equal(t, 2, first.ActivityCount)
	require.Equal(t, "Activities: Morning Run, Evening Run", first.Notes)
	require.Equal(t, day, first.Date)

	second, err := reconciler.Reconcile(ctx, 1, day)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, repo.summaries, 1)
}

func TestReconcileUpsertInvariant(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	reconciler := NewReconciler(repo, repo, repo)
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	pairs := map[summaryKey]struct{}{}
	for pass := 0; pass < 3; pass++ {
		for athlete := int64(1); athlete <= 3; athlete++ {
			for offset := 0; offset < 4; offset++ {
				date := day.AddDate(0, 0, offset)
				_, err := reconciler.Reconcile(ctx, athlete, date)
				require.NoError(t, err)
				pairs[summaryKey{athleteID: athlete, date: date}] = struct{}{}
			}
		}
	}
	require.Len(t, repo.summaries, len(pairs))
	require.Equal(t, 36, repo.writes)
}

func TestReconcileMissedAndExtra(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	day := time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertPlannedWorkout(ctx, PlannedWorkout{AthleteID: 1, Date: day, PlannedDistanceKM: 8, PlannedPaceMinPerKM: 6}))
	_, err := repo.SaveActivity(ctx, 2, ProcessedActivity{ExternalID: 21, Name: "Bonus", StartDate: day.Add(7 * time.Hour), DistanceKM: 5, MovingTimeSeconds: 1500})
	require.NoError(t, err)

	reconciler := NewReconciler(repo, repo, repo)

	missed, err := reconciler.Reconcile(ctx, 1, day)
	require.NoError(t, err)
	require.Equal(t, StatusMissed, missed.Status)
	require.Equal(t, -100.0, missed.DistanceVariancePct)
	require.Zero(t, missed.PaceVariancePct)
	require.Nil(t, missed.ActualPaceMinPerKM)
	require.Empty(t, missed.Notes)

	extra, err := reconciler.Reconcile(ctx, 2, day)
	require.NoError(t, err)
	require.Equal(t, StatusExtraActivity, extra.Status)
	require.Zero(t, extra.DistanceVariancePct)
	require.Zero(t, extra.PaceVariancePct)
}

func TestReconcileLookupFailureWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	repo.planErr = errors.New("connection reset")
	reconciler := NewReconciler(repo, repo, repo)

	_, err := reconciler.Reconcile(context.Background(), 1, time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "load planned workout")
	require.Zero(t, repo.writes)
	require.Empty(t, repo.summaries)
}
