package plan

import (
	"fmt"
	"strings"

	"example.com/marathon/internal/domain"
)

// Canonical column names used as csv tags on planRow.
const (
	colDate        = "Date"
	colAthleteName = "AthleteName"
	colDistance    = "PlannedDistanceKM"
	colPace        = "PlannedPaceMinPerKM"
	colWorkoutType = "WorkoutType"
	colNotes       = "Notes"
)

var requiredColumns = []string{colDate, colAthleteName}

// optionalColumns are appended empty when the sheet lacks them.
var optionalColumns = []string{colDistance, colPace, colWorkoutType, colNotes}

// columnAliases lists accepted header spellings per canonical column, compared
// after lower-casing and dropping spaces, dashes and underscores.
var columnAliases = map[string][]string{
	colDate:        {"date", "workoutdate", "trainingdate", "activitydate", "scheduledate"},
	colAthleteName: {"athletename", "athlete", "name", "participant", "runner"},
	colDistance:    {"planneddistancekm", "distancekm", "distance", "targetdistance", "planneddistance"},
	colPace:        {"plannedpaceminperkm", "paceminperkm", "pace", "targetpace", "plannedpace"},
	colWorkoutType: {"workouttype", "type", "activitytype", "trainingtype"},
	colNotes:       {"notes", "note", "description", "comments", "remarks"},
}

var aliasIndex = func() map[string]string {
	index := make(map[string]string)
	for canonical, aliases := range columnAliases {
		for _, alias := range aliases {
			index[alias] = canonical
		}
	}
	return index
}()

func normalizeHeader(header string) string {
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "", "(", "", ")", "", "/", "")
	return replacer.Replace(strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))))
}

// canonicalHeader rewrites recognised headers to their canonical names.
// Unknown headers are kept as-is and ignored by the decoder. When two headers
// map to the same column the first one wins and the other is renamed away.
func canonicalHeader(header []string) ([]string, error) {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, raw := range header {
		out[i] = raw
		canonical, ok := aliasIndex[normalizeHeader(raw)]
		if !ok {
			continue
		}
		if seen[canonical] {
			out[i] = fmt.Sprintf("ignored_%d", i)
			continue
		}
		seen[canonical] = true
		out[i] = canonical
	}

	var missing []string
	for _, column := range requiredColumns {
		if !seen[column] {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns %s (found %s)",
			domain.ErrFormat, strings.Join(missing, ", "), strings.Join(header, ", "))
	}
	for _, column := range optionalColumns {
		if !seen[column] {
			out = append(out, column)
		}
	}
	return out, nil
}
