// Package supervisor builds the suture supervisors that run long-lived services.
package supervisor

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Config tunes restart behaviour.
type Config struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64
	// FailureDecay is the rate at which failures decay, in seconds.
	FailureDecay    float64
	FailureBackoff  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns production restart settings.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  20 * time.Second,
	}
}

// New returns a supervisor whose lifecycle events are logged through logger.
func New(name string, cfg Config, logger zerolog.Logger) *suture.Supervisor {
	defaults := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.FailureDecay <= 0 {
		cfg.FailureDecay = defaults.FailureDecay
	}
	if cfg.FailureBackoff <= 0 {
		cfg.FailureBackoff = defaults.FailureBackoff
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	return suture.New(name, suture.Spec{
		EventHook:        EventHook(logger),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
}

// EventHook logs supervisor events. Failures and backoff are warnings,
// everything else is informational.
func EventHook(logger zerolog.Logger) suture.EventHook {
	return func(event suture.Event) {
		entry := logger.Info()
		switch event.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate,
			suture.EventTypeBackoff, suture.EventTypeStopTimeout:
			entry = logger.Warn()
		}
		entry.Fields(event.Map()).Msg(event.String())
	}
}
