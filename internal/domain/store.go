package domain

import (
	"context"
	"time"
)

// AuthorizedAthlete is the identity returned by a completed OAuth exchange.
type AuthorizedAthlete struct {
	ExternalID int64
	Name       string
	Token      Token
}

// AthleteRepository captures athlete persistence.
type AthleteRepository interface {
	// ListActive returns active athletes ordered by ID.
	ListActive(ctx context.Context) ([]Athlete, error)
	ListAthletes(ctx context.Context) ([]Athlete, error)
	GetAthlete(ctx context.Context, id int64) (*Athlete, error)
	EnsureAthlete(ctx context.Context, name string) (Athlete, error)
	UpdateTokens(ctx context.Context, athleteID int64, token Token) error
	SetActive(ctx context.Context, athleteID int64, active bool) error
	UpsertAuthorizedAthlete(ctx context.Context, authorized AuthorizedAthlete) (Athlete, error)
}

// ActivityRepository captures activity persistence.
type ActivityRepository interface {
	// SaveActivity inserts the activity unless its external ID is already stored.
	// created is false when the row already existed.
	SaveActivity(ctx context.Context, athleteID int64, activity ProcessedActivity) (created bool, err error)
	// ActivitiesOn returns the athlete's activities whose start falls on date's calendar day.
	ActivitiesOn(ctx context.Context, athleteID int64, date time.Time) ([]Activity, error)
}

// PlanRepository captures planned workout persistence.
type PlanRepository interface {
	UpsertPlannedWorkout(ctx context.Context, workout PlannedWorkout) error
	// PlannedWorkoutOn returns nil without error when nothing is planned.
	PlannedWorkoutOn(ctx context.Context, athleteID int64, date time.Time) (*PlannedWorkout, error)
	PlannedWorkoutsOn(ctx context.Context, date time.Time) ([]PlannedWorkout, error)
}

// SummaryRepository captures daily summary persistence.
type SummaryRepository interface {
	// UpsertDailySummary writes the summary keyed by (athlete, date) atomically.
	UpsertDailySummary(ctx context.Context, summary DailySummary) (DailySummary, error)
	SummariesOn(ctx context.Context, date time.Time) ([]DailySummary, error)
	// SummariesBetween returns summaries with start <= date <= end.
	SummariesBetween(ctx context.Context, start, end time.Time) ([]DailySummary, error)
}

// AuditLog is the append-only operational trail.
type AuditLog interface {
	RecordLog(ctx context.Context, entry SystemLog) error
	// RecordSyncRun appends the terminal log entry for a finished run.
	RecordSyncRun(ctx context.Context, run SyncRun) error
	LastSuccess(ctx context.Context) (*SystemLog, error)
	RecentLogs(ctx context.Context, limit int) ([]SystemLog, error)
}

// UsageStore persists the external API request counter per day.
type UsageStore interface {
	UsageOn(ctx context.Context, date time.Time) (APIUsage, error)
	// RecordRequest increments the counter for date and flags it once limit is reached.
	RecordRequest(ctx context.Context, date, at time.Time, limit int) (APIUsage, error)
}

// Store aggregates every repository the service needs.
type Store interface {
	AthleteRepository
	ActivityRepository
	PlanRepository
	SummaryRepository
	AuditLog
	UsageStore
}

// SyncRun describes one finished orchestration run.
type SyncRun struct {
	ID                 string
	StartedAt          time.Time
	FinishedAt         time.Time
	ReportDate         time.Time
	Status             LogLevel
	Message            string
	Details            string
	SuccessfulAthletes int
	FailedAthletes     int
	SummariesWritten   int
	NotificationSent   bool
}

// Log renders the run as its terminal audit entry.
func (r SyncRun) Log() SystemLog {
	return SystemLog{
		LoggedAt: r.FinishedAt,
		Level:    r.Status,
		Message:  r.Message,
		Details:  r.Details,
	}
}
