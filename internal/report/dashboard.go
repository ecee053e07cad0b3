package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"example.com/marathon/internal/domain"
)

// AthleteRow is one athlete's formatted line on the dashboard.
type AthleteRow struct {
	AthleteID        int64         `json:"athlete_id"`
	AthleteName      string        `json:"athlete_name"`
	Status           domain.Status `json:"status"`
	PlannedDistance  string        `json:"planned_distance"`
	ActualDistance   string        `json:"actual_distance"`
	PlannedPace      string        `json:"planned_pace"`
	ActualPace       string        `json:"actual_pace"`
	DistanceVariance string        `json:"distance_variance"`
	PaceVariance     string        `json:"pace_variance"`
	Notes            string        `json:"notes"`
}

// WorkoutRow is one planned workout on the dashboard.
type WorkoutRow struct {
	AthleteName       string  `json:"athlete_name"`
	PlannedDistanceKM float64 `json:"planned_distance_km"`
	PlannedDistance   string  `json:"planned_distance"`
	PlannedPace       string  `json:"planned_pace"`
	WorkoutType       string  `json:"workout_type"`
	Notes             string  `json:"notes"`
}

// Dashboard is the assembled daily report.
type Dashboard struct {
	ReportDate     time.Time          `json:"report_date"`
	GeneratedAt    time.Time          `json:"generated_at"`
	Team           domain.TeamSummary `json:"-"`
	Athletes       []AthleteRow       `json:"athlete_summaries"`
	TodaysWorkouts []WorkoutRow       `json:"todays_workouts"`
}

// TeamTargetKM sums today's planned distances.
func (d Dashboard) TeamTargetKM() float64 {
	var total float64
	for _, workout := range d.TodaysWorkouts {
		total += workout.PlannedDistanceKM
	}
	return total
}

// Builder assembles dashboards from stored summaries and plans.
type Builder struct {
	athletes domain.AthleteRepository
	plans    domain.PlanRepository
	team     *domain.TeamService
	now      func() time.Time
}

// Option customises the Builder.
type Option func(*Builder)

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder constructs a Builder.
func NewBuilder(athletes domain.AthleteRepository, plans domain.PlanRepository, summaries domain.SummaryRepository, opts ...Option) *Builder {
	b := &Builder{
		athletes: athletes,
		plans:    plans,
		team:     domain.NewTeamService(summaries),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build reports on reportDate and lists the workouts planned for today.
func (b *Builder) Build(ctx context.Context, reportDate, today time.Time) (Dashboard, error) {
	team, err := b.team.TeamSummary(ctx, reportDate)
	if err != nil {
		return Dashboard{}, err
	}
	names, err := b.athleteNames(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	dashboard := Dashboard{
		ReportDate:  domain.CalendarDate(reportDate),
		GeneratedAt: b.now(),
		Team:        team,
	}
	for _, summary := range team.Summaries {
		name, ok := names[summary.AthleteID]
		if !ok {
			continue
		}
		dashboard.Athletes = append(dashboard.Athletes, AthleteRow{
			AthleteID:        summary.AthleteID,
			AthleteName:      name,
			Status:           summary.Status,
			PlannedDistance:  FormatDistance(summary.PlannedDistanceKM),
			ActualDistance:   FormatDistance(summary.ActualDistanceKM),
			PlannedPace:      FormatPace(summary.PlannedPaceMinPerKM),
			ActualPace:       FormatPacePtr(summary.ActualPaceMinPerKM),
			DistanceVariance: FormatVariance(summary.DistanceVariancePct),
			PaceVariance:     FormatVariance(summary.PaceVariancePct),
			Notes:            summary.Notes,
		})
	}
	sort.SliceStable(dashboard.Athletes, func(i, j int) bool {
		return dashboard.Athletes[i].AthleteName < dashboard.Athletes[j].AthleteName
	})

	workouts, err := b.plans.PlannedWorkoutsOn(ctx, domain.CalendarDate(today))
	if err != nil {
		return Dashboard{}, fmt.Errorf("load planned workouts: %w", err)
	}
	for _, workout := range workouts {
		name, ok := names[workout.AthleteID]
		if !ok {
			continue
		}
		workoutType := workout.WorkoutType
		if workoutType == "" {
			workoutType = domain.DefaultWorkoutType
		}
		dashboard.TodaysWorkouts = append(dashboard.TodaysWorkouts, WorkoutRow{
			AthleteName:       name,
			PlannedDistanceKM: workout.PlannedDistanceKM,
			PlannedDistance:   FormatDistance(workout.PlannedDistanceKM),
			PlannedPace:       FormatPace(workout.PlannedPaceMinPerKM),
			WorkoutType:       workoutType,
			Notes:             workout.Notes,
		})
	}
	sort.SliceStable(dashboard.TodaysWorkouts, func(i, j int) bool {
		return dashboard.TodaysWorkouts[i].AthleteName < dashboard.TodaysWorkouts[j].AthleteName
	})
	return dashboard, nil
}

func (b *Builder) athleteNames(ctx context.Context) (map[int64]string, error) {
	athletes, err := b.athletes.ListAthletes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list athletes: %w", err)
	}
	names := make(map[int64]string, len(athletes))
	for _, athlete := range athletes {
		names[athlete.ID] = athlete.Name
	}
	return names, nil
}
