package plan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"example.com/marathon/internal/domain"
	"example.com/marathon/internal/persistence/memory"
)

const samplePlan = `Workout Date,Runner,Distance (km),Target Pace,Type,Comments
01/06/2025,Alice Runner,10,5:30,Long Run,easy first half
01/06/2025,Bob Jogger,6.5,6.0,,
02/06/2025,Alice Runner,,5:00,Tempo,missing distance
03/06/2025,,8,5:45,Easy,missing athlete
2025-06-04,Bob Jogger,8 km,"6,25",Easy,
`

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseCSVWithAliasedHeaders(t *testing.T) {
	entries, err := ParseCSV(strings.NewReader(samplePlan))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	require.Equal(t, domain.PlanEntry{
		AthleteName:         "Alice Runner",
		Date:                day(2025, time.June, 1),
		PlannedDistanceKM:   10,
		PlannedPaceMinPerKM: 5.5,
		WorkoutType:         "Long Run",
		Notes:               "easy first half",
	}, entries[0])

	require.Equal(t, domain.DefaultWorkoutType, entries[1].WorkoutType)
	require.Equal(t, 6.0, entries[1].PlannedPaceMinPerKM)

	require.Equal(t, day(2025, time.June, 2), entries[2].Date)
	require.Zero(t, entries[2].PlannedDistanceKM)
	require.Equal(t, 5.0, entries[2].PlannedPaceMinPerKM)

	require.Equal(t, day(2025, time.June, 4), entries[3].Date)
	require.Equal(t, 8.0, entries[3].PlannedDistanceKM)
	require.Equal(t, 6.25, entries[3].PlannedPaceMinPerKM)
}

func TestParseCSVOnlyDateAndAthleteAreRequired(t *testing.T) {
	entries, err := ParseCSV(strings.NewReader(`Date,AthleteName,PlannedDistanceKM
01/06/2025,Alice,10
02/06/2025,Bob,
`))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 10.0, entries[0].PlannedDistanceKM)
	require.Zero(t, entries[0].PlannedPaceMinPerKM)
	require.Zero(t, entries[1].PlannedDistanceKM)
	require.Equal(t, domain.DefaultWorkoutType, entries[1].WorkoutType)

	entries, err = ParseCSV(strings.NewReader(`Date,AthleteName,PlannedDistanceKM,PlannedPaceMinPerKM
01/06/2025,Alice,10,
02/06/2025,Alice,8,fast
`))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Zero(t, entries[0].PlannedPaceMinPerKM)
	require.Zero(t, entries[1].PlannedPaceMinPerKM)
	require.Equal(t, 8.0, entries[1].PlannedDistanceKM)
}

func TestParseCSVMissingColumnsIsFormatError(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(`Date,Distance,Pace
01/06/2025,10,5:30
`))
	require.ErrorIs(t, err, domain.ErrFormat)
	require.Contains(t, err.Error(), "AthleteName")
}

func TestParseCSVNoValidRowsIsFormatError(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("Date,Athlete,Distance,Pace\nsomeday,Alice,ten,fast\n"))
	require.ErrorIs(t, err, domain.ErrFormat)
}

func TestParseXLSXUsesSerialDates(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"Date", "AthleteName", "PlannedDistanceKM", "PlannedPaceMinPerKM", "WorkoutType", "Notes"},
		{time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), "Alice Runner", 12, 5.25, "Long Run", ""},
		{time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC), "Bob Jogger", 5, "6:15", nil, "recovery"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, book.Write(&buf))

	entries, err := ParseXLSX(&buf, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, day(2025, time.June, 1), entries[0].Date)
	require.Equal(t, 12.0, entries[0].PlannedDistanceKM)
	require.Equal(t, 5.25, entries[0].PlannedPaceMinPerKM)
	require.Equal(t, 6.25, entries[1].PlannedPaceMinPerKM)
	require.Equal(t, domain.DefaultWorkoutType, entries[1].WorkoutType)
}

func TestReaderReadsFileByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.csv")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o600))

	entries, err := NewReader(path).ReadPlannedWorkouts(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 4)

	_, err = NewReader(filepath.Join(dir, "missing.csv")).ReadPlannedWorkouts(context.Background())
	require.ErrorIs(t, err, domain.ErrFormat)

	_, err = NewReader(filepath.Join(dir, "plan.txt")).ReadPlannedWorkouts(context.Background())
	require.ErrorIs(t, err, domain.ErrFormat)
}

func TestParsePaceAndDate(t *testing.T) {
	pace, err := ParsePace("5:30 min/km")
	require.NoError(t, err)
	require.Equal(t, 5.5, pace)

	_, err = ParsePace("5:75")
	require.Error(t, err)

	_, err = ParsePace("-5:30")
	require.Error(t, err)
	_, err = ParsePace("-0:30")
	require.Error(t, err)
	_, err = ParsePace("-5.5")
	require.Error(t, err)

	parsed, err := ParseDate("3/7/2025")
	require.NoError(t, err)
	require.Equal(t, day(2025, time.July, 3), parsed)

	parsed, err = ParseDate("45809")
	require.NoError(t, err)
	require.Equal(t, day(2025, time.June, 1), parsed)
}

func TestImporterCreatesAthletesAndUpserts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	importer := NewImporter(store, store, zerolog.Nop())

	entries, err := ParseCSV(strings.NewReader(samplePlan))
	require.NoError(t, err)

	result, err := importer.Import(ctx, entries)
	require.NoError(t, err)
	require.Equal(t, ImportResult{Athletes: 2, Created: 2, Workouts: 4}, result)

	entries[0].PlannedDistanceKM = 14
	result, err = importer.Import(ctx, entries)
	require.NoError(t, err)
	require.Equal(t, ImportResult{Athletes: 2, Created: 0, Workouts: 4}, result)

	athletes, err := store.ListAthletes(ctx)
	require.NoError(t, err)
	require.Len(t, athletes, 2)

	workout, err := store.PlannedWorkoutOn(ctx, athletes[0].ID, day(2025, time.June, 1))
	require.NoError(t, err)
	require.NotNil(t, workout)
	require.Equal(t, 14.0, workout.PlannedDistanceKM)

	workouts, err := store.PlannedWorkoutsOn(ctx, day(2025, time.June, 1))
	require.NoError(t, err)
	require.Len(t, workouts, 2)
}
