// Package memory provides an in-process domain.Store for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/marathon/internal/domain"
)

type dayKey struct {
	athleteID int64
	date      time.Time
}

// sessionKey identifies a recording independent of its external ID.
type sessionKey struct {
	athleteID int64
	start     int64
	name      string
}

func sessionOf(athleteID int64, activity domain.ProcessedActivity) sessionKey {
	return sessionKey{athleteID: athleteID, start: activity.StartDate.UnixNano(), name: activity.Name}
}

// Store keeps every entity in maps guarded by a single mutex.
type Store struct {
	mu         sync.RWMutex
	now        func() time.Time
	nextID     int64
	athletes   map[int64]domain.Athlete
	activities map[int64]domain.Activity
	byExternal map[int64]int64
	bySession  map[sessionKey]int64
	planned    map[dayKey]domain.PlannedWorkout
	summaries  map[dayKey]domain.DailySummary
	logs       []domain.SystemLog
	usage      map[time.Time]domain.APIUsage
}

// Option customises the Store.
type Option func(*Store)

// WithClock overrides the time source used for audit fields.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:        func() time.Time { return time.Now().UTC() },
		athletes:   make(map[int64]domain.Athlete),
		activities: make(map[int64]domain.Activity),
		byExternal: make(map[int64]int64),
		bySession:  make(map[sessionKey]int64),
		planned:    make(map[dayKey]domain.PlannedWorkout),
		summaries:  make(map[dayKey]domain.DailySummary),
		usage:      make(map[time.Time]domain.APIUsage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.Store = (*Store)(nil)

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// ListActive implements domain.AthleteRepository.
func (s *Store) ListActive(ctx context.Context) ([]domain.Athlete, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Athlete
	for _, athlete := range s.athletes {
		if athlete.Active {
			out = append(out, athlete)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAthletes implements domain.AthleteRepository.
func (s *Store) ListAthletes(ctx context.Context) ([]domain.Athlete, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Athlete, 0, len(s.athletes))
	for _, athlete := range s.athletes {
		out = append(out, athlete)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAthlete implements domain.AthleteRepository.
func (s *Store) GetAthlete(ctx context.Context, id int64) (*domain.Athlete, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	athlete, ok := s.athletes[id]
	if !ok {
		return nil, domain.ErrAthleteNotFound
	}
	return &athlete, nil
}

// EnsureAthlete returns the athlete with the given name, creating an active one if missing.
func (s *Store) EnsureAthlete(ctx context.Context, name string) (domain.Athlete, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Athlete{}, fmt.Errorf("athlete name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, athlete := range s.athletes {
		if strings.EqualFold(athlete.Name, name) {
			return athlete, nil
		}
	}
	athlete := domain.Athlete{ID: s.id(), Name: name, Active: true, CreatedAt: s.now()}
	s.athletes[athlete.ID] = athlete
	return athlete, nil
}

// UpdateTokens implements domain.AthleteRepository.
func (s *Store) UpdateTokens(ctx context.Context, athleteID int64, token domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	athlete, ok := s.athletes[athleteID]
	if !ok {
		return domain.ErrAthleteNotFound
	}
	applyToken(&athlete, token)
	s.athletes[athleteID] = athlete
	return nil
}

// SetActive implements domain.AthleteRepository.
func (s *Store) SetActive(ctx context.Context, athleteID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	athlete, ok := s.athletes[athleteID]
	if !ok {
		return domain.ErrAthleteNotFound
	}
	athlete.Active = active
	s.athletes[athleteID] = athlete
	return nil
}

// UpsertAuthorizedAthlete links an OAuth identity, matching on external ID first and name second.
func (s *Store) UpsertAuthorizedAthlete(ctx context.Context, authorized domain.AuthorizedAthlete) (domain.Athlete, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var match *domain.Athlete
	for _, athlete := range s.athletes {
		if athlete.ExternalID != nil && *athlete.ExternalID == authorized.ExternalID {
			a := athlete
			match = &a
			break
		}
	}
	if match == nil {
		for _, athlete := range s.athletes {
			if athlete.ExternalID == nil && strings.EqualFold(athlete.Name, authorized.Name) {
				a := athlete
				match = &a
				break
			}
		}
	}
	if match == nil {
		match = &domain.Athlete{ID: s.id(), Name: authorized.Name, CreatedAt: s.now()}
	}

	externalID := authorized.ExternalID
	match.ExternalID = &externalID
	match.Active = true
	applyToken(match, authorized.Token)
	s.athletes[match.ID] = *match
	return *match, nil
}

func applyToken(athlete *domain.Athlete, token domain.Token) {
	athlete.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		athlete.RefreshToken = token.RefreshToken
	}
	if !token.ExpiresAt.IsZero() {
		expires := token.ExpiresAt
		athlete.TokenExpiresAt = &expires
	}
}

// SaveActivity implements domain.ActivityRepository. A recording repeated under
// a new external ID (same athlete, start and name) is not stored twice.
func (s *Store) SaveActivity(ctx context.Context, athleteID int64, activity domain.ProcessedActivity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[activity.ExternalID]; exists {
		return false, nil
	}
	session := sessionOf(athleteID, activity)
	if _, exists := s.bySession[session]; exists {
		return false, nil
	}
	stored := domain.Activity{ID: s.id(), AthleteID: athleteID, ProcessedActivity: activity, CreatedAt: s.now()}
	s.activities[stored.ID] = stored
	s.byExternal[activity.ExternalID] = stored.ID
	s.bySession[session] = stored.ID
	return true, nil
}

// ActivitiesOn implements domain.ActivityRepository.
func (s *Store) ActivitiesOn(ctx context.Context, athleteID int64, date time.Time) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Activity
	for _, activity := range s.activities {
		if activity.AthleteID == athleteID && domain.SameDay(activity.StartDate, date) {
			out = append(out, activity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// UpsertPlannedWorkout implements domain.PlanRepository.
func (s *Store) UpsertPlannedWorkout(ctx context.Context, workout domain.PlannedWorkout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	workout.Date = domain.CalendarDate(workout.Date)
	key := dayKey{athleteID: workout.AthleteID, date: workout.Date}
	if existing, ok := s.planned[key]; ok {
		workout.ID = existing.ID
	} else {
		workout.ID = s.id()
	}
	s.planned[key] = workout
	return nil
}

// PlannedWorkoutOn implements domain.PlanRepository.
func (s *Store) PlannedWorkoutOn(ctx context.Context, athleteID int64, date time.Time) (*domain.PlannedWorkout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workout, ok := s.planned[dayKey{athleteID: athleteID, date: domain.CalendarDate(date)}]
	if !ok {
		return nil, nil
	}
	return &workout, nil
}

// PlannedWorkoutsOn implements domain.PlanRepository.
func (s *Store) PlannedWorkoutsOn(ctx context.Context, date time.Time) ([]domain.PlannedWorkout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := domain.CalendarDate(date)
	var out []domain.PlannedWorkout
	for key, workout := range s.planned {
		if key.date.Equal(day) {
			out = append(out, workout)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AthleteID < out[j].AthleteID })
	return out, nil
}

// UpsertDailySummary writes under the store lock so lookup and write are one step.
func (s *Store) UpsertDailySummary(ctx context.Context, summary domain.DailySummary) (domain.DailySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary.Date = domain.CalendarDate(summary.Date)
	key := dayKey{athleteID: summary.AthleteID, date: summary.Date}
	if existing, ok := s.summaries[key]; ok {
		summary.ID = existing.ID
	} else {
		summary.ID = s.id()
	}
	summary.UpdatedAt = s.now()
	s.summaries[key] = summary
	return summary, nil
}

// SummariesOn implements domain.SummaryRepository.
func (s *Store) SummariesOn(ctx context.Context, date time.Time) ([]domain.DailySummary, error) {
	day := domain.CalendarDate(date)
	return s.SummariesBetween(ctx, day, day)
}

// SummariesBetween implements domain.SummaryRepository.
func (s *Store) SummariesBetween(ctx context.Context, start, end time.Time) ([]domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	from, to := domain.CalendarDate(start), domain.CalendarDate(end)
	var out []domain.DailySummary
	for key, summary := range s.summaries {
		if key.date.Before(from) || key.date.After(to) {
			continue
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].AthleteID < out[j].AthleteID
	})
	return out, nil
}

// RecordLog implements domain.AuditLog.
func (s *Store) RecordLog(ctx context.Context, entry domain.SystemLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLog(entry)
	return nil
}

// RecordSyncRun implements domain.AuditLog.
func (s *Store) RecordSyncRun(ctx context.Context, run domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLog(run.Log())
	return nil
}

func (s *Store) appendLog(entry domain.SystemLog) {
	entry.ID = s.id()
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = s.now()
	}
	s.logs = append(s.logs, entry)
}

// LastSuccess implements domain.AuditLog.
func (s *Store) LastSuccess(ctx context.Context) (*domain.SystemLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].Level == domain.LogSuccess {
			entry := s.logs[i]
			return &entry, nil
		}
	}
	return nil, nil
}

// RecentLogs returns up to limit entries, newest first.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]domain.SystemLog, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SystemLog, 0, limit)
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

// UsageOn implements domain.UsageStore.
func (s *Store) UsageOn(ctx context.Context, date time.Time) (domain.APIUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := domain.CalendarDate(date)
	usage, ok := s.usage[day]
	if !ok {
		return domain.APIUsage{Date: day}, nil
	}
	return usage, nil
}

// RecordRequest implements domain.UsageStore.
func (s *Store) RecordRequest(ctx context.Context, date, at time.Time, limit int) (domain.APIUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := domain.CalendarDate(date)
	usage := s.usage[day]
	usage.Date = day
	usage.Requests++
	last := at
	usage.LastRequestAt = &last
	if limit > 0 && usage.Requests >= limit {
		usage.LimitReached = true
	}
	s.usage[day] = usage
	return usage, nil
}
