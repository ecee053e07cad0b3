package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/marathon/internal/domain"
	platformevents "example.com/marathon/internal/platform/events"
)

// SaveActivity inserts the activity unless its external ID, or the same
// athlete, start and name, already exists.
func (s *Store) SaveActivity(ctx context.Context, athleteID int64, activity domain.ProcessedActivity) (bool, error) {
	const stmt = `INSERT INTO activities (athlete_id, external_id, name, activity_type, start_date, distance_km,
            moving_time_seconds, pace_min_per_km, average_speed, average_heartrate, max_heartrate, total_elevation_gain)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT DO NOTHING
        RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, stmt,
		athleteID,
		activity.ExternalID,
		activity.Name,
		activity.ActivityType,
		activity.StartDate,
		activity.DistanceKM,
		activity.MovingTimeSeconds,
		activity.PaceMinPerKM,
		activity.AverageSpeed,
		activity.AverageHeartrate,
		activity.MaxHeartrate,
		activity.TotalElevationGain,
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case isUniqueViolation(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("insert activity %d: %w", activity.ExternalID, err)
	}
	return true, nil
}

// ActivitiesOn implements domain.ActivityRepository.
func (s *Store) ActivitiesOn(ctx context.Context, athleteID int64, date time.Time) ([]domain.Activity, error) {
	const query = `SELECT id, athlete_id, external_id, name, activity_type, start_date, distance_km, moving_time_seconds,
            pace_min_per_km, average_speed, average_heartrate, max_heartrate, total_elevation_gain, created_at
        FROM activities
        WHERE athlete_id = $1 AND start_date >= $2 AND start_date < $3
        ORDER BY start_date, id`

	from, to := dayRange(date)
	rows, err := s.pool.Query(ctx, query, athleteID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.AthleteID, &a.ExternalID, &a.Name, &a.ActivityType, &a.StartDate, &a.DistanceKM,
			&a.MovingTimeSeconds, &a.PaceMinPerKM, &a.AverageSpeed, &a.AverageHeartrate, &a.MaxHeartrate,
			&a.TotalElevationGain, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertPlannedWorkout implements domain.PlanRepository.
func (s *Store) UpsertPlannedWorkout(ctx context.Context, workout domain.PlannedWorkout) error {
	const stmt = `INSERT INTO planned_workouts (athlete_id, workout_date, planned_distance_km, planned_pace_min_per_km, workout_type, notes)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (athlete_id, workout_date) DO UPDATE SET
            planned_distance_km = EXCLUDED.planned_distance_km,
            planned_pace_min_per_km = EXCLUDED.planned_pace_min_per_km,
            workout_type = EXCLUDED.workout_type,
            notes = EXCLUDED.notes,
            updated_at = NOW()`

	workoutType := workout.WorkoutType
	if workoutType == "" {
		workoutType = domain.DefaultWorkoutType
	}
	_, err := s.pool.Exec(ctx, stmt,
		workout.AthleteID,
		domain.CalendarDate(workout.Date),
		workout.PlannedDistanceKM,
		workout.PlannedPaceMinPerKM,
		workoutType,
		workout.Notes,
	)
	return mapError(err)
}

const plannedColumns = `id, athlete_id, workout_date, planned_distance_km, planned_pace_min_per_km, workout_type, notes`

func scanPlanned(row pgx.Row) (domain.PlannedWorkout, error) {
	var w domain.PlannedWorkout
	err := row.Scan(&w.ID, &w.AthleteID, &w.Date, &w.PlannedDistanceKM, &w.PlannedPaceMinPerKM, &w.WorkoutType, &w.Notes)
	return w, err
}

// PlannedWorkoutOn returns nil without error when nothing is planned.
func (s *Store) PlannedWorkoutOn(ctx context.Context, athleteID int64, date time.Time) (*domain.PlannedWorkout, error) {
	workout, err := scanPlanned(s.pool.QueryRow(ctx,
		`SELECT `+plannedColumns+` FROM planned_workouts WHERE athlete_id = $1 AND workout_date = $2`,
		athleteID, domain.CalendarDate(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &workout, nil
}

// PlannedWorkoutsOn implements domain.PlanRepository.
func (s *Store) PlannedWorkoutsOn(ctx context.Context, date time.Time) ([]domain.PlannedWorkout, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+plannedColumns+` FROM planned_workouts WHERE workout_date = $1 ORDER BY athlete_id`,
		domain.CalendarDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PlannedWorkout
	for rows.Next() {
		workout, err := scanPlanned(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, workout)
	}
	return out, rows.Err()
}

// UpsertDailySummary writes the summary with a native upsert and records a
// summary.reconciled outbox event in the same transaction.
func (s *Store) UpsertDailySummary(ctx context.Context, summary domain.DailySummary) (domain.DailySummary, error) {
	const stmt = `INSERT INTO daily_summaries (athlete_id, summary_date, planned_distance_km, planned_pace_min_per_km,
            actual_distance_km, actual_pace_min_per_km, distance_variance_pct, pace_variance_pct, status, activity_count, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (athlete_id, summary_date) DO UPDATE SET
            planned_distance_km = EXCLUDED.planned_distance_km,
            planned_pace_min_per_km = EXCLUDED.planned_pace_min_per_km,
            actual_distance_km = EXCLUDED.actual_distance_km,
            actual_pace_min_per_km = EXCLUDED.actual_pace_min_per_km,
            distance_variance_pct = EXCLUDED.distance_variance_pct,
            pace_variance_pct = EXCLUDED.pace_variance_pct,
            status = EXCLUDED.status,
            activity_count = EXCLUDED.activity_count,
            notes = EXCLUDED.notes,
            updated_at = NOW()
        RETURNING id, updated_at`

	summary.Date = domain.CalendarDate(summary.Date)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, stmt,
			summary.AthleteID,
			summary.Date,
			summary.PlannedDistanceKM,
			summary.PlannedPaceMinPerKM,
			summary.ActualDistanceKM,
			summary.ActualPaceMinPerKM,
			summary.DistanceVariancePct,
			summary.PaceVariancePct,
			string(summary.Status),
			summary.ActivityCount,
			summary.Notes,
		).Scan(&summary.ID, &summary.UpdatedAt); err != nil {
			return mapError(err)
		}

		return s.insertOutbox(ctx, tx, outboxEvent{
			aggregateType: "daily_summary",
			aggregateID:   strconv.FormatInt(summary.ID, 10),
			eventType:     platformevents.TypeSummaryReconciled,
			partitionKey:  strconv.FormatInt(summary.AthleteID, 10),
			dedupeKey:     fmt.Sprintf("summary:%d:%d", summary.ID, summary.UpdatedAt.UnixNano()),
			payload: platformevents.SummaryReconciled{
				SummaryID:           summary.ID,
				AthleteID:           summary.AthleteID,
				Date:                summary.Date.Format(time.DateOnly),
				Status:              string(summary.Status),
				PlannedDistanceKM:   summary.PlannedDistanceKM,
				ActualDistanceKM:    summary.ActualDistanceKM,
				DistanceVariancePct: summary.DistanceVariancePct,
				PaceVariancePct:     summary.PaceVariancePct,
				ActivityCount:       summary.ActivityCount,
				UpdatedAt:           summary.UpdatedAt,
			},
		})
	})
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("upsert summary athlete=%d date=%s: %w", summary.AthleteID, summary.Date.Format(time.DateOnly), err)
	}
	return summary, nil
}

// SummariesOn implements domain.SummaryRepository.
func (s *Store) SummariesOn(ctx context.Context, date time.Time) ([]domain.DailySummary, error) {
	return s.SummariesBetween(ctx, date, date)
}

// SummariesBetween implements domain.SummaryRepository.
func (s *Store) SummariesBetween(ctx context.Context, start, end time.Time) ([]domain.DailySummary, error) {
	const query = `SELECT id, athlete_id, summary_date, planned_distance_km, planned_pace_min_per_km, actual_distance_km,
            actual_pace_min_per_km, distance_variance_pct, pace_variance_pct, status, activity_count, notes, updated_at
        FROM daily_summaries
        WHERE summary_date BETWEEN $1 AND $2
        ORDER BY summary_date, athlete_id`

	rows, err := s.pool.Query(ctx, query, domain.CalendarDate(start), domain.CalendarDate(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailySummary
	for rows.Next() {
		var (
			sm     domain.DailySummary
			status string
		)
		if err := rows.Scan(&sm.ID, &sm.AthleteID, &sm.Date, &sm.PlannedDistanceKM, &sm.PlannedPaceMinPerKM,
			&sm.ActualDistanceKM, &sm.ActualPaceMinPerKM, &sm.DistanceVariancePct, &sm.PaceVariancePct,
			&status, &sm.ActivityCount, &sm.Notes, &sm.UpdatedAt); err != nil {
			return nil, err
		}
		sm.Status = domain.Status(status)
		out = append(out, sm)
	}
	return out, rows.Err()
}
