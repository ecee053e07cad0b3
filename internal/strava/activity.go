// Package strava implements the activity source backed by the Strava v3 API.
package strava

import (
	"fmt"
	"strings"
	"time"

	"example.com/marathon/internal/domain"
)

// RawActivity mirrors the summary activity object returned by /athlete/activities.
type RawActivity struct {
	ID                 int64    `json:"id"`
	Name               string   `json:"name"`
	Type               string   `json:"type"`
	SportType          string   `json:"sport_type"`
	StartDate          string   `json:"start_date"`
	StartDateLocal     string   `json:"start_date_local"`
	Distance           float64  `json:"distance"`
	MovingTime         int      `json:"moving_time"`
	ElapsedTime        int      `json:"elapsed_time"`
	AverageSpeed       *float64 `json:"average_speed,omitempty"`
	AverageHeartrate   *float64 `json:"average_heartrate,omitempty"`
	MaxHeartrate       *float64 `json:"max_heartrate,omitempty"`
	TotalElevationGain *float64 `json:"total_elevation_gain,omitempty"`
}

var runningTypes = map[string]struct{}{
	"run":        {},
	"virtualrun": {},
	"trailrun":   {},
	"trail_run":  {},
}

// IsRun reports whether the activity is one of the running types.
func (a RawActivity) IsRun() bool {
	for _, candidate := range []string{a.Type, a.SportType} {
		if _, ok := runningTypes[strings.ToLower(candidate)]; ok {
			return true
		}
	}
	return false
}

// Process normalizes the raw activity to kilometres and min/km.
// The start is the athlete's local wall-clock time so calendar-day matching
// follows the athlete's day rather than UTC.
func (a RawActivity) Process() (domain.ProcessedActivity, error) {
	start, err := parseStart(a.StartDateLocal)
	if err != nil {
		start, err = parseStart(a.StartDate)
		if err != nil {
			return domain.ProcessedActivity{}, fmt.Errorf("activity %d: %w", a.ID, err)
		}
	}

	distanceKM := a.Distance / 1000
	activityType := a.Type
	if activityType == "" {
		activityType = a.SportType
	}
	return domain.ProcessedActivity{
		ExternalID:         a.ID,
		Name:               a.Name,
		ActivityType:       activityType,
		StartDate:          start,
		DistanceKM:         distanceKM,
		MovingTimeSeconds:  a.MovingTime,
		PaceMinPerKM:       domain.PaceFromMovingTime(distanceKM, a.MovingTime),
		AverageSpeed:       a.AverageSpeed,
		AverageHeartrate:   a.AverageHeartrate,
		MaxHeartrate:       a.MaxHeartrate,
		TotalElevationGain: a.TotalElevationGain,
	}, nil
}

func parseStart(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("missing start date")
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		parsed, err = time.Parse("2006-01-02T15:04:05", value)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse start date %q: %w", value, err)
		}
	}
	// Strava suffixes local times with Z; keep the wall clock as-is.
	y, m, d := parsed.Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.UTC), nil
}
