package domain

import (
	"context"
	"fmt"
	"time"
)

// TeamSummary rolls up every athlete's summary for one date.
type TeamSummary struct {
	Date                   time.Time
	TotalAthletes          int
	CompletedWorkouts      int
	CompletionRate         float64
	StatusBreakdown        map[Status]int
	AvgDistanceVariancePct float64
	AvgPaceVariancePct     float64
	Summaries              []DailySummary
}

// WeekTrend is one 7-day block of a weekly trend series.
type WeekTrend struct {
	WeekStart              time.Time
	WeekEnd                time.Time
	Label                  string
	TotalSummaries         int
	CompletedWorkouts      int
	CompletionRate         float64
	AvgDistanceVariancePct float64
	TotalDistanceKM        float64
}

type summaryKey struct {
	athleteID int64
	date      time.Time
}

// DedupeSummaries keeps one summary per (athlete, date), preferring the most recently updated.
// Output order follows first appearance of each key.
func DedupeSummaries(rows []DailySummary) []DailySummary {
	index := make(map[summaryKey]int, len(rows))
	out := make([]DailySummary, 0, len(rows))
	for _, row := range rows {
		key := summaryKey{athleteID: row.AthleteID, date: CalendarDate(row.Date)}
		if pos, ok := index[key]; ok {
			if row.UpdatedAt.After(out[pos].UpdatedAt) {
				out[pos] = row
			}
			continue
		}
		index[key] = len(out)
		out = append(out, row)
	}
	return out
}

// SummarizeTeam computes completion and variance statistics for the summaries of one date.
func SummarizeTeam(date time.Time, rows []DailySummary) TeamSummary {
	unique := DedupeSummaries(rows)
	summary := TeamSummary{
		Date:            CalendarDate(date),
		TotalAthletes:   len(unique),
		StatusBreakdown: make(map[Status]int),
		Summaries:       unique,
	}

	var distanceSum, paceSum float64
	var distanceN, paceN int
	for _, row := range unique {
		summary.StatusBreakdown[row.Status]++
		if row.Status.Completed() {
			summary.CompletedWorkouts++
		}
		if row.DistanceVariancePct != 0 {
			distanceSum += row.DistanceVariancePct
			distanceN++
		}
		if row.PaceVariancePct != 0 {
			paceSum += row.PaceVariancePct
			paceN++
		}
	}

	summary.CompletionRate = completionRate(summary.CompletedWorkouts, summary.TotalAthletes)
	if distanceN > 0 {
		summary.AvgDistanceVariancePct = round(distanceSum/float64(distanceN), 2)
	}
	if paceN > 0 {
		summary.AvgPaceVariancePct = round(paceSum/float64(paceN), 2)
	}
	return summary
}

// BuildWeeklyTrend splits rows into weeks trailing 7-day blocks ending at endDate, oldest first.
func BuildWeeklyTrend(endDate time.Time, weeks int, rows []DailySummary) []WeekTrend {
	if weeks <= 0 {
		return nil
	}
	end := CalendarDate(endDate)
	unique := DedupeSummaries(rows)

	trend := make([]WeekTrend, 0, weeks)
	for i := weeks - 1; i >= 0; i-- {
		weekEnd := end.AddDate(0, 0, -7*i)
		weekStart := weekEnd.AddDate(0, 0, -6)
		week := WeekTrend{
			WeekStart: weekStart,
			WeekEnd:   weekEnd,
			Label:     "Week of " + weekStart.Format("Jan 02"),
		}

		var varianceSum float64
		var varianceN int
		for _, row := range unique {
			day := CalendarDate(row.Date)
			if day.Before(weekStart) || day.After(weekEnd) {
				continue
			}
			week.TotalSummaries++
			week.TotalDistanceKM += row.ActualDistanceKM
			if row.Status.Completed() {
				week.CompletedWorkouts++
			}
			if row.DistanceVariancePct != 0 {
				varianceSum += row.DistanceVariancePct
				varianceN++
			}
		}

		week.CompletionRate = completionRate(week.CompletedWorkouts, week.TotalSummaries)
		week.TotalDistanceKM = round(week.TotalDistanceKM, 1)
		if varianceN > 0 {
			week.AvgDistanceVariancePct = round(varianceSum/float64(varianceN), 2)
		}
		trend = append(trend, week)
	}
	return trend
}

func completionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(completed)/float64(total)*100, 1)
}

// TeamService loads summaries for team-level rollups.
type TeamService struct {
	summaries SummaryRepository
}

// NewTeamService constructs a TeamService.
func NewTeamService(summaries SummaryRepository) *TeamService {
	return &TeamService{summaries: summaries}
}

// TeamSummary returns the team rollup for date.
func (s *TeamService) TeamSummary(ctx context.Context, date time.Time) (TeamSummary, error) {
	rows, err := s.summaries.SummariesOn(ctx, CalendarDate(date))
	if err != nil {
		return TeamSummary{}, fmt.Errorf("load summaries: %w", err)
	}
	return SummarizeTeam(date, rows), nil
}

// WeeklyTrend returns weeks trailing 7-day blocks ending at endDate.
func (s *TeamService) WeeklyTrend(ctx context.Context, endDate time.Time, weeks int) ([]WeekTrend, error) {
	if weeks <= 0 {
		return nil, nil
	}
	end := CalendarDate(endDate)
	start := end.AddDate(0, 0, -7*weeks+1)
	rows, err := s.summaries.SummariesBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	return BuildWeeklyTrend(end, weeks, rows), nil
}
