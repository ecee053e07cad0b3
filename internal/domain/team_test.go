package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummarizeTeamCompletionRate(t *testing.T) {
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	rows := []DailySummary{
		{AthleteID: 1, Date: day, Status: StatusOnTrack, DistanceVariancePct: 2, PaceVariancePct: -1},
		{AthleteID: 2, Date: day, Status: StatusMissed, DistanceVariancePct: -100},
		{AthleteID: 3, Date: day, Status: StatusOverPerformed, DistanceVariancePct: 30, PaceVariancePct: -3},
		{AthleteID: 4, Date: day, Status: StatusUnderPerformed, DistanceVariancePct: -20},
	}

	summary := SummarizeTeam(day, rows)

	require.Equal(t, 4, summary.TotalAthletes)
	require.Equal(t, 2, summary.CompletedWorkouts)
	require.Equal(t, 50.0, summary.CompletionRate)
	require.Equal(t, map[Status]int{
		StatusOnTrack:        1,
		StatusMissed:         1,
		StatusOverPerformed:  1,
		StatusUnderPerformed: 1,
	}, summary.StatusBreakdown)
	require.Equal(t, -22.0, summary.AvgDistanceVariancePct)
	require.Equal(t, -2.0, summary.AvgPaceVariancePct)
}

func TestSummarizeTeamDedupesByKeepingLatest(t *testing.T) {
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	older := DailySummary{AthleteID: 1, Date: day, Status: StatusMissed, UpdatedAt: day.Add(time.Hour)}
	newer := DailySummary{AthleteID: 1, Date: day.Add(3 * time.Hour), Status: StatusOnTrack, UpdatedAt: day.Add(2 * time.Hour)}

	summary := SummarizeTeam(day, []DailySummary{older, newer})

	require.Equal(t, 1, summary.TotalAthletes)
	require.Equal(t, 1, summary.CompletedWorkouts)
	require.Equal(t, 100.0, summary.CompletionRate)
	require.Equal(t, StatusOnTrack, summary.Summaries[0].Status)
}

func TestSummarizeTeamEmpty(t *testing.T) {
	summary := SummarizeTeam(time.Now(), nil)
	require.Zero(t, summary.TotalAthletes)
	require.Zero(t, summary.CompletionRate)
	require.Zero(t, summary.AvgDistanceVariancePct)
	require.Empty(t, summary.StatusBreakdown)
}

func TestSummarizeTeamRoundsCompletionRate(t *testing.T) {
	day := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	rows := []DailySummary{
		{AthleteID: 1, Date: day, Status: StatusOnTrack},
		{AthleteID: 2, Date: day, Status: StatusMissed},
		{AthleteID: 3, Date: day, Status: StatusMissed},
	}
	require.Equal(t, 33.3, SummarizeTeam(day, rows).CompletionRate)
}

func TestWeeklyTrendChronological(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	end := time.Date(2025, time.June, 14, 0, 0, 0, 0, time.UTC)

	seed := []DailySummary{
		{AthleteID: 1, Date: end, Status: StatusOnTrack, DistanceVariancePct: 4, ActualDistanceKM: 10.2},
		{AthleteID: 2, Date: end.AddDate(0, 0, -6), Status: StatusMissed, DistanceVariancePct: -100},
		{AthleteID: 1, Date: end.AddDate(0, 0, -7), Status: StatusOverPerformed, DistanceVariancePct: 20, ActualDistanceKM: 12},
		{AthleteID: 1, Date: end.AddDate(0, 0, -30), Status: StatusOnTrack, ActualDistanceKM: 99},
	}
	for _, row := range seed {
		_, err := repo.UpsertDailySummary(ctx, row)
		require.NoError(t, err)
	}

	trend, err := NewTeamService(repo).WeeklyTrend(ctx, end, 2)
	require.NoError(t, err)
	require.Len(t, trend, 2)

	previous, current := trend[0], trend[1]
	require.True(t, previous.WeekStart.Before(current.WeekStart))
	require.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), previous.WeekStart)
	require.Equal(t, "Week of Jun 08", current.Label)

	require.Equal(t, 1, previous.TotalSummaries)
	require.Equal(t, 100.0, previous.CompletionRate)
	require.Equal(t, 12.0, previous.TotalDistanceKM)

	require.Equal(t, 2, current.TotalSummaries)
	require.Equal(t, 50.0, current.CompletionRate)
	require.Equal(t, -48.0, current.AvgDistanceVariancePct)
	require.Equal(t, 10.2, current.TotalDistanceKM)
}

func TestTeamServiceTeamSummary(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	day := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	_, err := repo.UpsertDailySummary(ctx, DailySummary{AthleteID: 1, Date: day, Status: StatusPartiallyCompleted})
	require.NoError(t, err)
	_, err = repo.UpsertDailySummary(ctx, DailySummary{AthleteID: 2, Date: day.AddDate(0, 0, 1), Status: StatusMissed})
	require.NoError(t, err)

	summary, err := NewTeamService(repo).TeamSummary(ctx, day.Add(20*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalAthletes)
	require.Equal(t, 100.0, summary.CompletionRate)
}
