package domain

import "time"

// Athlete is a runner tracked by the coach, optionally linked to a Strava account.
type Athlete struct {
	ID             int64
	Name           string
	ExternalID     *int64
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	Active         bool
	CreatedAt      time.Time
}

// Token is a refreshed external credential.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ProcessedActivity is an external activity normalized to metric units, not yet stored.
type ProcessedActivity struct {
	ExternalID         int64
	Name               string
	ActivityType       string
	StartDate          time.Time
	DistanceKM         float64
	MovingTimeSeconds  int
	PaceMinPerKM       *float64
	AverageSpeed       *float64
	AverageHeartrate   *float64
	MaxHeartrate       *float64
	TotalElevationGain *float64
}

// Activity is a stored external workout. Rows are never mutated after insert.
type Activity struct {
	ID        int64
	AthleteID int64
	ProcessedActivity
	CreatedAt time.Time
}

// PlannedWorkout is the coach's target for one athlete on one calendar day.
type PlannedWorkout struct {
	ID                  int64
	AthleteID           int64
	Date                time.Time
	PlannedDistanceKM   float64
	PlannedPaceMinPerKM float64
	WorkoutType         string
	Notes               string
}

// PlanEntry is one normalized row read from the training plan spreadsheet.
type PlanEntry struct {
	AthleteName         string
	Date                time.Time
	PlannedDistanceKM   float64
	PlannedPaceMinPerKM float64
	WorkoutType         string
	Notes               string
}

// DailySummary is the reconciled planned-vs-actual record for one athlete-day.
type DailySummary struct {
	ID                  int64
	AthleteID           int64
	Date                time.Time
	PlannedDistanceKM   float64
	PlannedPaceMinPerKM float64
	ActualDistanceKM    float64
	ActualPaceMinPerKM  *float64
	DistanceVariancePct float64
	PaceVariancePct     float64
	Status              Status
	ActivityCount       int
	Notes               string
	UpdatedAt           time.Time
}

// LogLevel classifies audit log entries.
type LogLevel string

const (
	LogSuccess LogLevel = "SUCCESS"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
	LogInfo    LogLevel = "INFO"
)

// SystemLog is an append-only audit entry.
type SystemLog struct {
	ID       int64
	LoggedAt time.Time
	Level    LogLevel
	Message  string
	Details  string
}

// APIUsage tracks external API requests made on one calendar day.
type APIUsage struct {
	Date          time.Time
	Requests      int
	LimitReached  bool
	LastRequestAt *time.Time
}

// DefaultWorkoutType is used when the plan leaves the workout type blank.
const DefaultWorkoutType = "Regular Run"

// CalendarDate truncates t to its calendar day, expressed as UTC midnight.
// The year, month and day are taken in t's own location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return CalendarDate(a).Equal(CalendarDate(b))
}
