// Package domain defines the reconciliation logic for planned and recorded training.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Reconciler produces one DailySummary per athlete-day from stored plans and activities.
type Reconciler struct {
	plans      PlanRepository
	activities ActivityRepository
	summaries  SummaryRepository
}

// NewReconciler constructs a Reconciler.
func NewReconciler(plans PlanRepository, activities ActivityRepository, summaries SummaryRepository) *Reconciler {
	return &Reconciler{plans: plans, activities: activities, summaries: summaries}
}

// Reconcile compares the planned workout with the recorded activities for the
// athlete on date and upserts the resulting summary. Lookup failures abort
// before any write.
func (r *Reconciler) Reconcile(ctx context.Context, athleteID int64, date time.Time) (DailySummary, error) {
	day := CalendarDate(date)

	planned, err := r.plans.PlannedWorkoutOn(ctx, athleteID, day)
	if err != nil {
		return DailySummary{}, fmt.Errorf("load planned workout: %w", err)
	}
	activities, err := r.activities.ActivitiesOn(ctx, athleteID, day)
	if err != nil {
		return DailySummary{}, fmt.Errorf("load activities: %w", err)
	}

	summary := BuildSummary(athleteID, day, planned, AggregateActivities(activities))
	stored, err := r.summaries.UpsertDailySummary(ctx, summary)
	if err != nil {
		return DailySummary{}, fmt.Errorf("upsert daily summary: %w", err)
	}
	return stored, nil
}

// BuildSummary classifies an aggregate against an optional planned workout.
func BuildSummary(athleteID int64, day time.Time, planned *PlannedWorkout, agg DailyAggregate) DailySummary {
	var plannedDistance, plannedPace float64
	if planned != nil {
		plannedDistance = planned.PlannedDistanceKM
		plannedPace = planned.PlannedPaceMinPerKM
	}

	distanceVariance := VariancePercent(plannedDistance, agg.DistanceKM)
	var paceVariance float64
	if agg.PaceMinPerKM != nil {
		paceVariance = VariancePercent(plannedPace, *agg.PaceMinPerKM)
	}

	var actualPace *float64
	if agg.PaceMinPerKM != nil {
		pace := round(*agg.PaceMinPerKM, 2)
		actualPace = &pace
	}

	var notes string
	if len(agg.Names) > 0 {
		notes = "Activities: " + strings.Join(agg.Names, ", ")
	}

	return DailySummary{
		AthleteID:           athleteID,
		Date:                CalendarDate(day),
		PlannedDistanceKM:   plannedDistance,
		PlannedPaceMinPerKM: plannedPace,
		ActualDistanceKM:    round(agg.DistanceKM, 2),
		ActualPaceMinPerKM:  actualPace,
		DistanceVariancePct: distanceVariance,
		PaceVariancePct:     paceVariance,
		Status:              Classify(distanceVariance, paceVariance, plannedDistance, agg.DistanceKM),
		ActivityCount:       agg.Count,
		Notes:               notes,
	}
}
