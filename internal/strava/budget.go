package strava

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"example.com/marathon/internal/domain"
)

// Budget enforces the short-window and daily Strava request quotas.
// The short window is an in-process token bucket; the daily count is
// persisted so restarts do not reset it.
type Budget struct {
	limiter *rate.Limiter
	usage   domain.UsageStore
	daily   int
	now     func() time.Time
}

// NewBudget constructs a Budget allowing perWindow requests every window and daily per day.
func NewBudget(usage domain.UsageStore, perWindow int, window time.Duration, daily int) *Budget {
	if perWindow <= 0 {
		perWindow = 1
	}
	return &Budget{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(perWindow)), perWindow),
		usage:   usage,
		daily:   daily,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Acquire reserves one request or returns domain.ErrRateBudgetExhausted without waiting.
func (b *Budget) Acquire(ctx context.Context) error {
	now := b.now()
	if b.usage != nil && b.daily > 0 {
		usage, err := b.usage.UsageOn(ctx, now)
		if err != nil {
			return fmt.Errorf("load api usage: %w", err)
		}
		if usage.LimitReached || usage.Requests >= b.daily {
			return fmt.Errorf("daily limit of %d requests: %w", b.daily, domain.ErrRateBudgetExhausted)
		}
	}
	if !b.limiter.AllowN(now, 1) {
		return fmt.Errorf("short window limit: %w", domain.ErrRateBudgetExhausted)
	}
	if b.usage != nil {
		if _, err := b.usage.RecordRequest(ctx, now, now, b.daily); err != nil {
			return fmt.Errorf("record api usage: %w", err)
		}
	}
	return nil
}

// Exhaust spends the short window, used when the API answers 429.
func (b *Budget) Exhaust() {
	b.limiter.ReserveN(b.now(), b.limiter.Burst())
}
