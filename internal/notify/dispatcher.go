package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"example.com/marathon/internal/domain"
	"example.com/marathon/internal/observability"
)

// LogRecorder persists audit entries.
type LogRecorder interface {
	RecordLog(ctx context.Context, entry domain.SystemLog) error
}

// Result reports which channel, if any, delivered the message.
type Result struct {
	Delivered bool
	Channel   string
	Errors    []string
}

// Dispatcher tries the primary channel, then the fallback, and always keeps
// a copy of the text in the audit log. It never retries.
type Dispatcher struct {
	primary  Channel
	fallback Channel
	audit    LogRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDispatcher constructs a Dispatcher. Either channel may be nil.
func NewDispatcher(primary, fallback Channel, audit LogRecorder, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		primary:  primary,
		fallback: fallback,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch sends text and reports whether either channel accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) bool {
	return d.Deliver(ctx, text).Delivered
}

// Deliver is Dispatch with per-channel detail.
func (d *Dispatcher) Deliver(ctx context.Context, text string) Result {
	var result Result
	for _, channel := range []Channel{d.primary, d.fallback} {
		if channel == nil {
			continue
		}
		err := channel.Send(ctx, text)
		observability.RecordNotification(channel.Name(), err == nil)
		if err == nil {
			result.Delivered = true
			result.Channel = channel.Name()
			d.logger.Info().Str("channel", channel.Name()).Msg("notification delivered")
			break
		}
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", channel.Name(), err))
		d.logger.Warn().Err(err).Str("channel", channel.Name()).Msg("notification channel failed")
	}

	entry := domain.SystemLog{
		LoggedAt: d.now(),
		Level:    domain.LogInfo,
		Message:  "Daily training summary",
		Details:  text,
	}
	if !result.Delivered {
		entry.Level = domain.LogWarning
		entry.Message = "Daily training summary (not delivered)"
	}
	if d.audit != nil {
		if err := d.audit.RecordLog(ctx, entry); err != nil {
			d.logger.Error().Err(err).Msg("record notification audit entry")
		}
	}
	d.logger.Info().Str("summary", text).Bool("delivered", result.Delivered).Msg("daily training summary")
	return result
}
