package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/marathon/internal/domain"
)

// stateStore remembers issued OAuth state values until they are used or expire.
type stateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	issued map[string]time.Time
	now    func() time.Time
}

func newStateStore(ttl time.Duration) *stateStore {
	return &stateStore{ttl: ttl, issued: make(map[string]time.Time), now: time.Now}
}

func (s *stateStore) issue() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for state, expires := range s.issued {
		if now.After(expires) {
			delete(s.issued, state)
		}
	}
	state := uuid.NewString()
	s.issued[state] = now.Add(s.ttl)
	return state
}

// consume reports whether state was issued and unexpired. A state is valid once.
func (s *stateStore) consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.issued[state]
	if !ok {
		return false
	}
	delete(s.issued, state)
	return !s.now().After(expires)
}

func (h *Handler) stravaAuthorize(w http.ResponseWriter, r *http.Request) {
	if h.deps.Strava == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "strava client is not configured")
		return
	}
	http.Redirect(w, r, h.deps.Strava.AuthorizationURL(h.states.issue()), http.StatusFound)
}

func (h *Handler) stravaCallback(w http.ResponseWriter, r *http.Request) {
	if h.deps.Strava == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "strava client is not configured")
		return
	}

	query := r.URL.Query()
	if denied := query.Get("error"); denied != "" {
		writeError(w, http.StatusBadRequest, "authorization_denied", denied)
		return
	}
	if !h.states.consume(query.Get("state")) {
		writeError(w, http.StatusBadRequest, "invalid_state", "unknown or expired state")
		return
	}
	code := query.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing code")
		return
	}

	authorized, err := h.deps.Strava.Exchange(r.Context(), code)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrAuth) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "exchange_failed", err.Error())
		return
	}
	athlete, err := h.deps.Store.UpsertAuthorizedAthlete(r.Context(), authorized)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	h.deps.Logger.Info().Int64("athlete_id", athlete.ID).Str("athlete", athlete.Name).Msg("athlete linked strava account")
	if err := h.deps.Store.RecordLog(r.Context(), domain.SystemLog{
		LoggedAt: time.Now().UTC(),
		Level:    domain.LogInfo,
		Message:  "Athlete authorized Strava access",
		Details:  athlete.Name,
	}); err != nil {
		h.deps.Logger.Warn().Err(err).Msg("audit log write failed")
	}
	writeJSON(w, http.StatusOK, toAthleteView(athlete))
}
