package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// WindowRunner runs the trailing-window sync.
type WindowRunner interface {
	RunWindow(ctx context.Context) (RunResult, error)
}

// DailyTrigger runs the window sync once a day at a fixed wall-clock time.
// It implements suture.Service.
type DailyTrigger struct {
	runner   WindowRunner
	hour     int
	minute   int
	location *time.Location
	logger   zerolog.Logger
	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration) error
}

// TriggerOption configures a DailyTrigger.
type TriggerOption func(*DailyTrigger)

// WithTriggerLogger sets the trigger logger.
func WithTriggerLogger(logger zerolog.Logger) TriggerOption {
	return func(t *DailyTrigger) {
		t.logger = logger
	}
}

// WithTriggerClock overrides the time source and the sleep function.
func WithTriggerClock(now func() time.Time, wait func(ctx context.Context, d time.Duration) error) TriggerOption {
	return func(t *DailyTrigger) {
		if now != nil {
			t.now = now
		}
		if wait != nil {
			t.wait = wait
		}
	}
}

// NewDailyTrigger schedules runner at hour:minute in loc.
func NewDailyTrigger(runner WindowRunner, hour, minute int, loc *time.Location, opts ...TriggerOption) *DailyTrigger {
	if loc == nil {
		loc = time.UTC
	}
	t := &DailyTrigger{
		runner:   runner,
		hour:     hour,
		minute:   minute,
		location: loc,
		logger:   zerolog.Nop(),
		now:      time.Now,
		wait:     sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NextRun returns the first scheduled time strictly after now.
func (t *DailyTrigger) NextRun(now time.Time) time.Time {
	local := now.In(t.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), t.hour, t.minute, 0, 0, t.location)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, t.hour, t.minute, 0, 0, t.location)
	}
	return next
}

// Serve waits for each scheduled time and runs the sync until ctx is done.
func (t *DailyTrigger) Serve(ctx context.Context) error {
	for {
		next := t.NextRun(t.now())
		t.logger.Info().Time("next_run", next).Msg("daily sync scheduled")
		if err := t.wait(ctx, next.Sub(t.now())); err != nil {
			return err
		}

		result, err := t.runner.RunWindow(ctx)
		switch {
		case errors.Is(err, ErrRunInProgress):
			t.logger.Warn().Msg("scheduled sync skipped, a run is already in progress")
		case err != nil:
			t.logger.Error().Err(err).Msg("scheduled sync failed")
		default:
			t.logger.Info().Str("status", string(result.Status)).Bool("success", result.Success).Msg(result.Message)
		}
	}
}

// String names the service in supervisor logs.
func (t *DailyTrigger) String() string {
	return fmt.Sprintf("daily-sync@%02d:%02d %s", t.hour, t.minute, t.location)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
