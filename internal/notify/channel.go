// Package notify delivers the daily report over a primary channel with a fallback.
package notify

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by channels missing required settings.
var ErrNotConfigured = errors.New("notification channel not configured")

// Channel sends a text message. A nil error means the message was accepted.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}
