package domain

import "errors"

var (
	// ErrAuth indicates an expired or invalid external credential.
	ErrAuth = errors.New("external credential rejected")
	// ErrTransient covers network, timeout and rate-limit failures of external calls.
	ErrTransient = errors.New("transient external failure")
	// ErrRateBudgetExhausted is returned once the external API budget for the current window is spent.
	ErrRateBudgetExhausted = errors.New("external api budget exhausted")
	// ErrFormat indicates unparsable training plan data.
	ErrFormat = errors.New("training plan format error")
	// ErrIntegrityConflict indicates a natural key already exists at write time.
	ErrIntegrityConflict = errors.New("natural key already exists")
	// ErrAthleteNotFound is returned when an athlete cannot be located.
	ErrAthleteNotFound = errors.New("athlete not found")
)

// IsTransient reports whether err should be retried by a later orchestration run.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateBudgetExhausted)
}
