// Package scheduler drives reconciliation across athletes and dates.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"example.com/marathon/internal/domain"
	"example.com/marathon/internal/observability"
	"example.com/marathon/internal/plan"
	"example.com/marathon/internal/report"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("sync run already in progress")

// ActivitySource refreshes credentials and lists activities.
type ActivitySource interface {
	RefreshToken(ctx context.Context, refreshToken string) (domain.Token, error)
	FetchActivities(ctx context.Context, accessToken string, start, end time.Time) ([]domain.ProcessedActivity, error)
}

// PlanSource reads the current training plan.
type PlanSource interface {
	ReadPlannedWorkouts(ctx context.Context) ([]domain.PlanEntry, error)
}

// Notifier delivers the daily report text.
type Notifier interface {
	Dispatch(ctx context.Context, text string) bool
}

// Activities are stored by their local wall clock, so one calendar day spans
// every UTC offset. The fetch window is widened to cover all of them.
const (
	fetchLead  = 14 * time.Hour
	fetchTrail = 36 * time.Hour
)

// RunResult is returned to the caller of a run.
type RunResult struct {
	ID                 string
	Success            bool
	Status             domain.LogLevel
	Message            string
	ReportDate         time.Time
	Dates              []time.Time
	SuccessfulAthletes int
	FailedAthletes     int
	SkippedAthletes    int
	SummariesWritten   int
	BudgetExhausted    bool
	NotificationSent   bool
	Warnings           []string
	Errors             []string
}

// Orchestrator runs the sync pipeline. Only one run may be active at a time.
type Orchestrator struct {
	store       domain.Store
	source      ActivitySource
	plans       PlanSource
	importer    *plan.Importer
	reconciler  *domain.Reconciler
	reports     *report.Builder
	notifier    Notifier
	logger      zerolog.Logger
	now         func() time.Time
	location    *time.Location
	windowDays  int
	callTimeout time.Duration

	running atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPlanSource refreshes planned workouts at the start of every run.
func WithPlanSource(source PlanSource) Option {
	return func(o *Orchestrator) {
		o.plans = source
	}
}

// WithNotifier sets the report notifier.
func WithNotifier(notifier Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = notifier
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLocation sets the zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithWindowDays sets how many trailing days RunWindow covers.
func WithWindowDays(days int) Option {
	return func(o *Orchestrator) {
		if days > 0 {
			o.windowDays = days
		}
	}
}

// WithCallTimeout bounds each external call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.callTimeout = timeout
		}
	}
}

// NewOrchestrator wires the pipeline over store and source.
func NewOrchestrator(store domain.Store, source ActivitySource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		source:      source,
		logger:      zerolog.Nop(),
		now:         time.Now,
		location:    time.UTC,
		windowDays:  2,
		callTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.importer = plan.NewImporter(store, store, o.logger)
	o.reconciler = domain.NewReconciler(store, store, store)
	o.reports = report.NewBuilder(store, store, store, report.WithClock(o.now))
	return o
}

// TryAcquire claims the single-flight slot.
func (o *Orchestrator) TryAcquire() bool {
	return o.running.CompareAndSwap(false, true)
}

// Release frees the single-flight slot.
func (o *Orchestrator) Release() {
	o.running.Store(false)
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Today returns the current calendar date in the configured zone.
func (o *Orchestrator) Today() time.Time {
	return domain.CalendarDate(o.now().In(o.location))
}

// RunWindow syncs the trailing window ending today and reports on yesterday.
func (o *Orchestrator) RunWindow(ctx context.Context) (RunResult, error) {
	today := o.Today()
	dates := make([]time.Time, 0, o.windowDays)
	for i := o.windowDays - 1; i >= 0; i-- {
		dates = append(dates, today.AddDate(0, 0, -i))
	}
	return o.run(ctx, dates, today.AddDate(0, 0, -1), today)
}

// RunForDate syncs and reports on a single date.
func (o *Orchestrator) RunForDate(ctx context.Context, date time.Time) (RunResult, error) {
	day := domain.CalendarDate(date)
	return o.run(ctx, []time.Time{day}, day, o.Today())
}

// runState is shared across the athlete loop of one run.
type runState struct {
	result          RunResult
	budgetExhausted bool
}

func (s *runState) warn(format string, args ...any) {
	s.result.Warnings = append(s.result.Warnings, fmt.Sprintf(format, args...))
}

func (s *runState) fail(format string, args ...any) {
	s.result.Errors = append(s.result.Errors, fmt.Sprintf(format, args...))
}

func (o *Orchestrator) run(ctx context.Context, dates []time.Time, reportDate, today time.Time) (RunResult, error) {
	if !o.TryAcquire() {
		return RunResult{}, ErrRunInProgress
	}
	defer o.Release()

	started := o.now()
	state := &runState{result: RunResult{
		ID:         uuid.NewString(),
		ReportDate: reportDate,
		Dates:      dates,
	}}
	logger := o.logger.With().Str("run_id", state.result.ID).Str("report_date", reportDate.Format(time.DateOnly)).Logger()
	logger.Info().Int("dates", len(dates)).Msg("sync run started")

	o.refreshPlan(ctx, state, logger)

	athletes, err := o.store.ListActive(ctx)
	if err != nil {
		state.fail("list active athletes: %v", err)
		return o.finish(ctx, state, started, logger, true), nil
	}

	for _, athlete := range athletes {
		if err := ctx.Err(); err != nil {
			state.fail("run cancelled: %v", err)
			return o.finish(ctx, state, started, logger, true), nil
		}
		outcome := o.syncAthlete(ctx, state, athlete, dates, logger)
		observability.RecordAthleteOutcome(outcome)
		switch outcome {
		case "success":
			state.result.SuccessfulAthletes++
		case "skipped":
			state.result.SkippedAthletes++
		default:
			state.result.FailedAthletes++
		}
	}

	o.notify(ctx, state, reportDate, today, logger)
	return o.finish(ctx, state, started, logger, false), nil
}

func (o *Orchestrator) refreshPlan(ctx context.Context, state *runState, logger zerolog.Logger) {
	if o.plans == nil {
		return
	}
	entries, err := o.plans.ReadPlannedWorkouts(ctx)
	if err != nil {
		state.warn("training plan not refreshed: %v", err)
		logger.Warn().Err(err).Bool("format_error", errors.Is(err, domain.ErrFormat)).Msg("training plan refresh failed, using stored plan")
		return
	}
	imported, err := o.importer.Import(ctx, entries)
	if err != nil {
		state.warn("training plan partially imported: %v", err)
		logger.Warn().Err(err).Msg("training plan import incomplete")
	}
	logger.Info().Int("workouts", imported.Workouts).Int("athletes", imported.Athletes).Int("athletes_created", imported.Created).Msg("training plan refreshed")
}

// syncAthlete returns the metrics outcome label for the athlete.
func (o *Orchestrator) syncAthlete(ctx context.Context, state *runState, athlete domain.Athlete, dates []time.Time, logger zerolog.Logger) string {
	logger = logger.With().Int64("athlete_id", athlete.ID).Str("athlete", athlete.Name).Logger()

	if athlete.RefreshToken == "" {
		state.warn("%s: no Strava authorization", athlete.Name)
		logger.Warn().Msg("athlete has no refresh token, skipping")
		return "skipped"
	}

	fetch := !state.budgetExhausted
	var accessToken string
	if fetch {
		token, err := o.refreshToken(ctx, athlete)
		switch {
		case errors.Is(err, domain.ErrRateBudgetExhausted):
			state.budgetExhausted = true
			fetch = false
			state.warn("rate budget exhausted at %s, reconciling stored activities only", athlete.Name)
			logger.Warn().Err(err).Msg("rate budget exhausted during token refresh")
		case err != nil:
			return o.athleteFailed(state, athlete, "token refresh", err, logger)
		default:
			accessToken = token.AccessToken
		}
	}

	for _, date := range dates {
		if fetch && state.budgetExhausted {
			fetch = false
		}
		if fetch {
			err := o.fetchAndStore(ctx, athlete.ID, accessToken, date)
			switch {
			case errors.Is(err, domain.ErrRateBudgetExhausted):
				state.budgetExhausted = true
				fetch = false
				state.warn("rate budget exhausted at %s on %s, reconciling stored activities only", athlete.Name, date.Format(time.DateOnly))
				logger.Warn().Err(err).Time("date", date).Msg("rate budget exhausted during fetch")
			case err != nil:
				return o.athleteFailed(state, athlete, "fetch "+date.Format(time.DateOnly), err, logger)
			}
		}

		summary, err := o.reconciler.Reconcile(ctx, athlete.ID, date)
		if err != nil {
			return o.athleteFailed(state, athlete, "reconcile "+date.Format(time.DateOnly), err, logger)
		}
		state.result.SummariesWritten++
		observability.RecordSummary(string(summary.Status))
		logger.Debug().
			Time("date", date).
			Str("status", string(summary.Status)).
			Float64("distance_variance_pct", summary.DistanceVariancePct).
			Msg("daily summary reconciled")
	}
	return "success"
}

func (o *Orchestrator) athleteFailed(state *runState, athlete domain.Athlete, stage string, err error, logger zerolog.Logger) string {
	state.fail("%s: %s: %v", athlete.Name, stage, err)
	logger.Error().Err(err).Str("stage", stage).Msg("athlete sync failed")
	switch {
	case errors.Is(err, domain.ErrAuth):
		return "auth_error"
	case domain.IsTransient(err) || errors.Is(err, context.DeadlineExceeded):
		return "transient_error"
	default:
		return "failed"
	}
}

func (o *Orchestrator) refreshToken(ctx context.Context, athlete domain.Athlete) (domain.Token, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	token, err := o.source.RefreshToken(callCtx, athlete.RefreshToken)
	if err != nil {
		return domain.Token{}, err
	}
	if err := o.store.UpdateTokens(ctx, athlete.ID, token); err != nil {
		return domain.Token{}, fmt.Errorf("persist refreshed token: %w", err)
	}
	return token, nil
}

// fetchAndStore saves every activity returned for the widened window around date.
// Activities returned before a failure are kept.
func (o *Orchestrator) fetchAndStore(ctx context.Context, athleteID int64, accessToken string, date time.Time) error {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	activities, fetchErr := o.source.FetchActivities(callCtx, accessToken, date.Add(-fetchLead), date.Add(fetchTrail))

	for _, activity := range activities {
		created, err := o.store.SaveActivity(ctx, athleteID, activity)
		if err != nil && !errors.Is(err, domain.ErrIntegrityConflict) {
			return fmt.Errorf("save activity %d: %w", activity.ExternalID, err)
		}
		if created {
			observability.RecordActivityPersisted(o.now())
		}
	}
	return fetchErr
}

func (o *Orchestrator) notify(ctx context.Context, state *runState, reportDate, today time.Time, logger zerolog.Logger) {
	if o.notifier == nil {
		return
	}
	dashboard, err := o.reports.Build(ctx, reportDate, today)
	if err != nil {
		state.warn("dashboard not built: %v", err)
		logger.Error().Err(err).Msg("build dashboard")
		return
	}
	state.result.NotificationSent = o.notifier.Dispatch(ctx, report.ChatText(dashboard))
	if !state.result.NotificationSent {
		state.warn("notification not delivered")
	}
}

// finish decides the terminal status and records it. fatal marks a failure outside the athlete loop.
func (o *Orchestrator) finish(ctx context.Context, state *runState, started time.Time, logger zerolog.Logger, fatal bool) RunResult {
	result := &state.result
	result.BudgetExhausted = state.budgetExhausted
	attempted := result.SuccessfulAthletes + result.FailedAthletes
	processed := attempted + result.SkippedAthletes
	dateLabel := result.ReportDate.Format(time.DateOnly)

	switch {
	case fatal:
		result.Status = domain.LogError
		result.Message = fmt.Sprintf("Sync failed for %s", dateLabel)
	case attempted > 0 && result.SuccessfulAthletes == 0:
		result.Status = domain.LogError
		result.Message = fmt.Sprintf("Sync failed for all %d athletes (%s)", attempted, dateLabel)
	case processed == 0:
		result.Status = domain.LogWarning
		result.Message = fmt.Sprintf("No active athletes to sync for %s", dateLabel)
	case len(result.Errors) > 0 || len(result.Warnings) > 0 || (o.notifier != nil && !result.NotificationSent):
		result.Status = domain.LogWarning
		result.Message = fmt.Sprintf("Sync completed with warnings: %d/%d athletes synced (%s)", result.SuccessfulAthletes, processed, dateLabel)
	default:
		result.Status = domain.LogSuccess
		result.Message = fmt.Sprintf("Sync completed: %d/%d athletes synced (%s)", result.SuccessfulAthletes, processed, dateLabel)
	}
	result.Success = !fatal && (result.SuccessfulAthletes > 0 || processed == 0)

	finished := o.now()
	run := domain.SyncRun{
		ID:                 result.ID,
		StartedAt:          started,
		FinishedAt:         finished,
		ReportDate:         result.ReportDate,
		Status:             result.Status,
		Message:            result.Message,
		Details:            details(result),
		SuccessfulAthletes: result.SuccessfulAthletes,
		FailedAthletes:     result.FailedAthletes,
		SummariesWritten:   result.SummariesWritten,
		NotificationSent:   result.NotificationSent,
	}
	if err := o.store.RecordSyncRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Error().Err(err).Msg("record sync run")
	}
	observability.RecordSyncRun(string(result.Status), started, finished)

	event := logger.Info()
	if result.Status == domain.LogError {
		event = logger.Error()
	} else if result.Status == domain.LogWarning {
		event = logger.Warn()
	}
	event.
		Int("successful", result.SuccessfulAthletes).
		Int("failed", result.FailedAthletes).
		Int("skipped", result.SkippedAthletes).
		Int("summaries", result.SummariesWritten).
		Bool("notified", result.NotificationSent).
		Msg(result.Message)
	return *result
}

func details(result *RunResult) string {
	var b strings.Builder
	for _, e := range result.Errors {
		b.WriteString("ERROR: ")
		b.WriteString(e)
		b.WriteByte('\n')
	}
	for _, w := range result.Warnings {
		b.WriteString("WARNING: ")
		b.WriteString(w)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}
