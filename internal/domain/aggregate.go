package domain

import "math"

// DailyAggregate is the merged view of one athlete's activities on one day.
type DailyAggregate struct {
	DistanceKM        float64
	MovingTimeSeconds int
	PaceMinPerKM      *float64
	Count             int
	Names             []string
}

// AggregateActivities merges same-day activities into a single distance, time and pace.
// Activities sharing an internal ID are counted once. Pace is nil unless both
// total distance and total moving time are positive.
func AggregateActivities(activities []Activity) DailyAggregate {
	var agg DailyAggregate
	seen := make(map[int64]struct{}, len(activities))
	for _, activity := range activities {
		if _, dup := seen[activity.ID]; dup {
			continue
		}
		seen[activity.ID] = struct{}{}

		agg.DistanceKM += activity.DistanceKM
		agg.MovingTimeSeconds += activity.MovingTimeSeconds
		agg.Count++
		if activity.Name != "" {
			agg.Names = append(agg.Names, activity.Name)
		}
	}

	if agg.DistanceKM > 0 && agg.MovingTimeSeconds > 0 {
		pace := (float64(agg.MovingTimeSeconds) / 60) / agg.DistanceKM
		agg.PaceMinPerKM = &pace
	}
	return agg
}

// PaceFromMovingTime returns min/km for a single activity, or nil when undefined.
func PaceFromMovingTime(distanceKM float64, movingTimeSeconds int) *float64 {
	if distanceKM <= 0 || movingTimeSeconds <= 0 {
		return nil
	}
	pace := round((float64(movingTimeSeconds)/60)/distanceKM, 2)
	return &pace
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
