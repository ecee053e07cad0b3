// Package plan reads coach-authored training plans from CSV or XLSX files.
package plan

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"example.com/marathon/internal/domain"
)

type planRow struct {
	Date        string `csv:"Date"`
	AthleteName string `csv:"AthleteName"`
	Distance    string `csv:"PlannedDistanceKM"`
	Pace        string `csv:"PlannedPaceMinPerKM"`
	WorkoutType string `csv:"WorkoutType"`
	Notes       string `csv:"Notes"`
}

// Reader loads the training plan file configured for the service.
type Reader struct {
	path   string
	sheet  string
	logger zerolog.Logger
}

// Option customises the Reader.
type Option func(*Reader)

// WithSheet selects the worksheet read from XLSX files. The first sheet is used otherwise.
func WithSheet(sheet string) Option {
	return func(r *Reader) {
		r.sheet = sheet
	}
}

// WithLogger sets the reader logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// NewReader constructs a Reader for path.
func NewReader(path string, opts ...Option) *Reader {
	r := &Reader{path: path, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadPlannedWorkouts parses the plan file. Every failure wraps domain.ErrFormat
// so callers can fall back to the workouts already stored.
func (r *Reader) ReadPlannedWorkouts(ctx context.Context) ([]domain.PlanEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open training plan: %v", domain.ErrFormat, err)
	}
	defer file.Close()

	var entries []domain.PlanEntry
	var stats parseStats
	switch strings.ToLower(filepath.Ext(r.path)) {
	case ".csv":
		entries, stats, err = parseCSV(file)
	case ".xlsx", ".xlsm":
		entries, stats, err = parseXLSX(file, r.sheet)
	default:
		return nil, fmt.Errorf("%w: unsupported training plan format %q", domain.ErrFormat, filepath.Ext(r.path))
	}
	if err != nil {
		return nil, err
	}
	if stats.dropped > 0 {
		r.logger.Warn().Int("dropped_rows", stats.dropped).Str("path", r.path).Msg("training plan rows skipped")
	}
	if stats.defaulted > 0 {
		r.logger.Warn().Int("defaulted_cells", stats.defaulted).Str("path", r.path).Msg("training plan distance or pace missing, using 0")
	}
	r.logger.Info().Int("entries", len(entries)).Str("path", r.path).Msg("training plan read")
	return entries, nil
}

// ParseCSV parses CSV plan data.
func ParseCSV(in io.Reader) ([]domain.PlanEntry, error) {
	entries, _, err := parseCSV(in)
	return entries, err
}

// ParseXLSX parses the named sheet, or the first sheet when sheet is empty.
func ParseXLSX(in io.Reader, sheet string) ([]domain.PlanEntry, error) {
	entries, _, err := parseXLSX(in, sheet)
	return entries, err
}

func parseCSV(in io.Reader) ([]domain.PlanEntry, parseStats, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, parseStats{}, fmt.Errorf("%w: read csv: %v", domain.ErrFormat, err)
	}
	return parseRows(rows)
}

func parseXLSX(in io.Reader, sheet string) ([]domain.PlanEntry, parseStats, error) {
	book, err := excelize.OpenReader(in, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, parseStats{}, fmt.Errorf("%w: open workbook: %v", domain.ErrFormat, err)
	}
	defer book.Close()

	if sheet == "" {
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, parseStats{}, fmt.Errorf("%w: workbook has no sheets", domain.ErrFormat)
		}
		sheet = sheets[0]
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, parseStats{}, fmt.Errorf("%w: read sheet %q: %v", domain.ErrFormat, sheet, err)
	}
	return parseRows(rows)
}

// parseStats counts rows dropped for a missing date or athlete, and distance
// or pace cells that were blank or unparsable and read as 0.
type parseStats struct {
	dropped   int
	defaulted int
}

// parseRows decodes a header row plus data rows into plan entries.
func parseRows(rows [][]string) ([]domain.PlanEntry, parseStats, error) {
	if len(rows) == 0 {
		return nil, parseStats{}, fmt.Errorf("%w: training plan is empty", domain.ErrFormat)
	}
	header, err := canonicalHeader(rows[0])
	if err != nil {
		return nil, parseStats{}, err
	}
	table := make([][]string, 0, len(rows))
	table = append(table, header)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		table = append(table, pad(row, len(header)))
	}

	var decoded []planRow
	if err := gocsv.UnmarshalCSV(&tableReader{rows: table}, &decoded); err != nil {
		return nil, parseStats{}, fmt.Errorf("%w: decode rows: %v", domain.ErrFormat, err)
	}

	entries := make([]domain.PlanEntry, 0, len(decoded))
	var stats parseStats
	for _, row := range decoded {
		entry, defaulted, ok := row.entry()
		if !ok {
			stats.dropped++
			continue
		}
		stats.defaulted += defaulted
		entries = append(entries, entry)
	}
	if len(entries) == 0 && len(decoded) > 0 {
		return nil, stats, fmt.Errorf("%w: no valid rows among %d", domain.ErrFormat, len(decoded))
	}
	return entries, stats, nil
}

// entry converts a decoded row. Date and athlete are mandatory; a blank or
// unparsable distance or pace reads as 0 and is counted in defaulted.
func (row planRow) entry() (entry domain.PlanEntry, defaulted int, ok bool) {
	name := strings.TrimSpace(row.AthleteName)
	if name == "" {
		return domain.PlanEntry{}, 0, false
	}
	date, err := ParseDate(row.Date)
	if err != nil {
		return domain.PlanEntry{}, 0, false
	}
	distance, err := ParseDistance(row.Distance)
	if err != nil {
		distance = 0
		defaulted++
	}
	pace, err := ParsePace(row.Pace)
	if err != nil {
		pace = 0
		defaulted++
	}
	workoutType := strings.TrimSpace(row.WorkoutType)
	if workoutType == "" {
		workoutType = domain.DefaultWorkoutType
	}
	return domain.PlanEntry{
		AthleteName:         name,
		Date:                date,
		PlannedDistanceKM:   distance,
		PlannedPaceMinPerKM: pace,
		WorkoutType:         workoutType,
		Notes:               strings.TrimSpace(row.Notes),
	}, defaulted, true
}

// tableReader feeds pre-split rows to gocsv.
type tableReader struct {
	rows [][]string
	pos  int
}

func (t *tableReader) Read() ([]string, error) {
	if t.pos >= len(t.rows) {
		return nil, io.EOF
	}
	row := t.rows[t.pos]
	t.pos++
	return row, nil
}

func (t *tableReader) ReadAll() ([][]string, error) {
	rest := t.rows[t.pos:]
	t.pos = len(t.rows)
	return rest, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

// Day-first layouts are tried before month-first ones.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"02/01/06",
	"2/1/06",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate reads a plan date as a calendar day. Bare numbers are treated as
// spreadsheet serial dates.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		parsed, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
		}
		return domain.CalendarDate(parsed), nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return domain.CalendarDate(parsed), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

// ParseDistance reads kilometres, accepting a trailing unit and comma decimals.
func ParseDistance(value string) (float64, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimSpace(strings.TrimSuffix(value, "km"))
	value = strings.ReplaceAll(value, ",", ".")
	if value == "" {
		return 0, errors.New("empty distance")
	}
	distance, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse distance %q: %w", value, err)
	}
	if distance < 0 {
		return 0, fmt.Errorf("negative distance %q", value)
	}
	return distance, nil
}

// ParsePace reads min/km as either a decimal (5.5) or minutes and seconds (5:30).
func ParsePace(value string) (float64, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimSpace(strings.TrimSuffix(value, "/km"))
	value = strings.TrimSpace(strings.TrimSuffix(value, "min"))
	if value == "" {
		return 0, errors.New("empty pace")
	}
	if minutes, seconds, ok := strings.Cut(value, ":"); ok {
		m, err := strconv.Atoi(strings.TrimSpace(minutes))
		if err != nil {
			return 0, fmt.Errorf("parse pace minutes %q: %w", value, err)
		}
		if strings.HasPrefix(strings.TrimSpace(minutes), "-") {
			return 0, fmt.Errorf("negative pace %q", value)
		}
		s, err := strconv.Atoi(strings.TrimSpace(seconds))
		if err != nil || s < 0 || s >= 60 {
			return 0, fmt.Errorf("parse pace seconds %q", value)
		}
		return float64(m) + float64(s)/60, nil
	}
	pace, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("parse pace %q: %w", value, err)
	}
	if pace < 0 {
		return 0, fmt.Errorf("negative pace %q", value)
	}
	return pace, nil
}
