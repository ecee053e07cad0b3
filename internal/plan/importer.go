package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"example.com/marathon/internal/domain"
)

// ImportResult counts what an import touched.
type ImportResult struct {
	Athletes int // distinct athletes named in the plan
	Created  int // athletes that did not exist before the import
	Workouts int
}

// Importer stores plan entries, creating athletes named in the plan on first sight.
type Importer struct {
	athletes domain.AthleteRepository
	plans    domain.PlanRepository
	logger   zerolog.Logger
}

// NewImporter constructs an Importer.
func NewImporter(athletes domain.AthleteRepository, plans domain.PlanRepository, logger zerolog.Logger) *Importer {
	return &Importer{athletes: athletes, plans: plans, logger: logger}
}

// Import upserts every entry keyed by (athlete, date). Failed entries are
// skipped and reported together once the batch is done.
func (i *Importer) Import(ctx context.Context, entries []domain.PlanEntry) (ImportResult, error) {
	var result ImportResult
	var errs []error
	athleteIDs := make(map[string]int64)

	known, err := i.athletes.ListAthletes(ctx)
	if err != nil {
		return result, fmt.Errorf("list athletes: %w", err)
	}
	existing := make(map[int64]bool, len(known))
	for _, athlete := range known {
		existing[athlete.ID] = true
	}
	named := make(map[int64]bool)

	for _, entry := range entries {
		id, ok := athleteIDs[entry.AthleteName]
		if !ok {
			athlete, err := i.athletes.EnsureAthlete(ctx, entry.AthleteName)
			if err != nil {
				errs = append(errs, fmt.Errorf("ensure athlete %q: %w", entry.AthleteName, err))
				continue
			}
			id = athlete.ID
			athleteIDs[entry.AthleteName] = id
			if !named[id] {
				named[id] = true
				result.Athletes++
				if !existing[id] {
					result.Created++
				}
			}
		}

		workout := domain.PlannedWorkout{
			AthleteID:           id,
			Date:                domain.CalendarDate(entry.Date),
			PlannedDistanceKM:   entry.PlannedDistanceKM,
			PlannedPaceMinPerKM: entry.PlannedPaceMinPerKM,
			WorkoutType:         entry.WorkoutType,
			Notes:               entry.Notes,
		}
		if err := i.plans.UpsertPlannedWorkout(ctx, workout); err != nil {
			errs = append(errs, fmt.Errorf("upsert planned workout for %q on %s: %w",
				entry.AthleteName, workout.Date.Format("2006-01-02"), err))
			continue
		}
		result.Workouts++
	}

	i.logger.Info().Int("athletes", result.Athletes).Int("athletes_created", result.Created).Int("workouts", result.Workouts).Int("failed", len(errs)).Msg("training plan imported")
	return result, errors.Join(errs...)
}
