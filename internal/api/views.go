package api

import (
	"time"

	"example.com/marathon/internal/domain"
	"example.com/marathon/internal/report"
	"example.com/marathon/internal/scheduler"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status              string     `json:"status"`
	SyncRunning         bool       `json:"sync_running"`
	LastSuccessfulSync  *time.Time `json:"last_successful_sync,omitempty"`
	StravaRequestsToday int        `json:"strava_requests_today"`
	StravaLimitReached  bool       `json:"strava_limit_reached"`
}

// SyncResponse reports a finished run: a boolean outcome plus a readable message.
type SyncResponse struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message"`
	RunID              string   `json:"run_id"`
	Status             string   `json:"status"`
	ReportDate         string   `json:"report_date,omitempty"`
	Dates              []string `json:"dates"`
	SuccessfulAthletes int      `json:"successful_athletes"`
	FailedAthletes     int      `json:"failed_athletes"`
	SkippedAthletes    int      `json:"skipped_athletes"`
	SummariesWritten   int      `json:"summaries_written"`
	BudgetExhausted    bool     `json:"budget_exhausted"`
	NotificationSent   bool     `json:"notification_sent"`
	Warnings           []string `json:"warnings,omitempty"`
	Errors             []string `json:"errors,omitempty"`
}

// TeamView is the team roll-up on the dashboard.
type TeamView struct {
	Date                   string                `json:"date"`
	TotalAthletes          int                   `json:"total_athletes"`
	CompletedWorkouts      int                   `json:"completed_workouts"`
	CompletionRate         float64               `json:"completion_rate"`
	StatusBreakdown        map[domain.Status]int `json:"status_breakdown"`
	AvgDistanceVariancePct float64               `json:"avg_distance_variance_pct"`
	AvgPaceVariancePct     float64               `json:"avg_pace_variance_pct"`
}

// DashboardResponse is the JSON form of the daily dashboard.
type DashboardResponse struct {
	ReportDate     string              `json:"report_date"`
	GeneratedAt    time.Time           `json:"generated_at"`
	Team           TeamView            `json:"team_summary"`
	TeamTargetKM   float64             `json:"team_target_km"`
	Athletes       []report.AthleteRow `json:"athlete_summaries"`
	TodaysWorkouts []report.WorkoutRow `json:"todays_workouts"`
}

// WeekTrendView is one week of the trend series.
type WeekTrendView struct {
	WeekStart              string  `json:"week_start"`
	WeekEnd                string  `json:"week_end"`
	Label                  string  `json:"label"`
	TotalSummaries         int     `json:"total_summaries"`
	CompletedWorkouts      int     `json:"completed_workouts"`
	CompletionRate         float64 `json:"completion_rate"`
	AvgDistanceVariancePct float64 `json:"avg_distance_variance_pct"`
	TotalDistanceKM        float64 `json:"total_distance_km"`
}

// TrendResponse packages the weekly trend series.
type TrendResponse struct {
	EndDate string          `json:"end_date"`
	Weeks   []WeekTrendView `json:"weeks"`
}

// PlanImportResponse reports what a plan upload stored.
type PlanImportResponse struct {
	Rows            int    `json:"rows"`
	Athletes        int    `json:"athletes"`
	AthletesCreated int    `json:"athletes_created"`
	Workouts        int    `json:"workouts"`
	Error           string `json:"error,omitempty"`
}

// AthleteView exposes an athlete without credentials.
type AthleteView struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Active         bool       `json:"active"`
	StravaLinked   bool       `json:"strava_linked"`
	StravaID       *int64     `json:"strava_id,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SetActiveRequest is the body of POST /v1/athletes/{id}/active.
type SetActiveRequest struct {
	Active *bool `json:"active"`
}

// SystemLogView is one audit entry.
type SystemLogView struct {
	ID       int64     `json:"id"`
	LoggedAt time.Time `json:"logged_at"`
	Level    string    `json:"level"`
	Message  string    `json:"message"`
	Details  string    `json:"details,omitempty"`
}

func toSyncResponse(result scheduler.RunResult) SyncResponse {
	resp := SyncResponse{
		Success:            result.Success,
		Message:            result.Message,
		RunID:              result.ID,
		Status:             string(result.Status),
		Dates:              make([]string, 0, len(result.Dates)),
		SuccessfulAthletes: result.SuccessfulAthletes,
		FailedAthletes:     result.FailedAthletes,
		SkippedAthletes:    result.SkippedAthletes,
		SummariesWritten:   result.SummariesWritten,
		BudgetExhausted:    result.BudgetExhausted,
		NotificationSent:   result.NotificationSent,
		Warnings:           result.Warnings,
		Errors:             result.Errors,
	}
	if !result.ReportDate.IsZero() {
		resp.ReportDate = result.ReportDate.Format(dateLayout)
	}
	for _, date := range result.Dates {
		resp.Dates = append(resp.Dates, date.Format(dateLayout))
	}
	return resp
}

func toDashboardResponse(d report.Dashboard) DashboardResponse {
	resp := DashboardResponse{
		ReportDate:  d.ReportDate.Format(dateLayout),
		GeneratedAt: d.GeneratedAt,
		Team: TeamView{
			Date:                   d.ReportDate.Format(dateLayout),
			TotalAthletes:          d.Team.TotalAthletes,
			CompletedWorkouts:      d.Team.CompletedWorkouts,
			CompletionRate:         d.Team.CompletionRate,
			StatusBreakdown:        d.Team.StatusBreakdown,
			AvgDistanceVariancePct: d.Team.AvgDistanceVariancePct,
			AvgPaceVariancePct:     d.Team.AvgPaceVariancePct,
		},
		TeamTargetKM:   d.TeamTargetKM(),
		Athletes:       d.Athletes,
		TodaysWorkouts: d.TodaysWorkouts,
	}
	if resp.Athletes == nil {
		resp.Athletes = []report.AthleteRow{}
	}
	if resp.TodaysWorkouts == nil {
		resp.TodaysWorkouts = []report.WorkoutRow{}
	}
	if resp.Team.StatusBreakdown == nil {
		resp.Team.StatusBreakdown = map[domain.Status]int{}
	}
	return resp
}

func toWeekTrendView(week domain.WeekTrend) WeekTrendView {
	return WeekTrendView{
		WeekStart:              week.WeekStart.Format(dateLayout),
		WeekEnd:                week.WeekEnd.Format(dateLayout),
		Label:                  week.Label,
		TotalSummaries:         week.TotalSummaries,
		CompletedWorkouts:      week.CompletedWorkouts,
		CompletionRate:         week.CompletionRate,
		AvgDistanceVariancePct: week.AvgDistanceVariancePct,
		TotalDistanceKM:        week.TotalDistanceKM,
	}
}

func toAthleteView(athlete domain.Athlete) AthleteView {
	return AthleteView{
		ID:             athlete.ID,
		Name:           athlete.Name,
		Active:         athlete.Active,
		StravaLinked:   athlete.RefreshToken != "",
		StravaID:       athlete.ExternalID,
		TokenExpiresAt: athlete.TokenExpiresAt,
		CreatedAt:      athlete.CreatedAt,
	}
}

func toSystemLogView(entry domain.SystemLog) SystemLogView {
	return SystemLogView{
		ID:       entry.ID,
		LoggedAt: entry.LoggedAt,
		Level:    string(entry.Level),
		Message:  entry.Message,
		Details:  entry.Details,
	}
}
