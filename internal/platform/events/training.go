// Package events defines the payloads published through the outbox.
package events

import "time"

// Event types recorded in the outbox.
const (
	TypeSummaryReconciled = "summary.reconciled"
	TypeSyncCompleted     = "sync.completed"
)

// SummaryReconciled is emitted whenever a daily summary is written.
type SummaryReconciled struct {
	SummaryID           int64     `json:"summary_id"`
	AthleteID           int64     `json:"athlete_id"`
	Date                string    `json:"date"`
	Status              string    `json:"status"`
	PlannedDistanceKM   float64   `json:"planned_distance_km"`
	ActualDistanceKM    float64   `json:"actual_distance_km"`
	DistanceVariancePct float64   `json:"distance_variance_pct"`
	PaceVariancePct     float64   `json:"pace_variance_pct"`
	ActivityCount       int       `json:"activity_count"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// SyncCompleted is emitted once per finished sync run.
type SyncCompleted struct {
	RunID              string    `json:"run_id"`
	ReportDate         string    `json:"report_date"`
	Status             string    `json:"status"`
	Message            string    `json:"message"`
	SuccessfulAthletes int       `json:"successful_athletes"`
	FailedAthletes     int       `json:"failed_athletes"`
	SummariesWritten   int       `json:"summaries_written"`
	NotificationSent   bool      `json:"notification_sent"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}
