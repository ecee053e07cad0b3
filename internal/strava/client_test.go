package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/marathon/internal/domain"
	"example.com/marathon/internal/persistence/memory"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		ClientID:       "client",
		ClientSecret:   "secret",
		RedirectURL:    "http://localhost/callback",
		APIBaseURL:     server.URL + "/api/v3",
		AuthURL:        server.URL + "/oauth/authorize",
		TokenURL:       server.URL + "/oauth/token",
		RequestTimeout: 2 * time.Second,
	}, opts...)
}

func activityJSON(id int64, kind string, start string, meters float64, seconds int) map[string]any {
	return map[string]any{
		"id":               id,
		"name":             "Activity " + strconv.FormatInt(id, 10),
		"type":             kind,
		"start_date":       start,
		"start_date_local": start,
		"distance":         meters,
		"moving_time":      seconds,
	}
}

func TestRefreshTokenRotates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		require.Equal(t, "client", r.Form.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    21600,
		})
	})
	client := newTestClient(t, mux)

	token, err := client.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	require.Equal(t, "new-access", token.AccessToken)
	require.Equal(t, "new-refresh", token.RefreshToken)
	require.WithinDuration(t, time.Now().Add(6*time.Hour), token.ExpiresAt, time.Minute)
}

func TestRefreshTokenRejectedIsAuthError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Bad Request","errors":[{"field":"refresh_token","code":"invalid"}]}`))
	})
	client := newTestClient(t, mux)

	_, err := client.RefreshToken(context.Background(), "revoked")
	require.ErrorIs(t, err, domain.ErrAuth)
}

func TestRefreshTokenServerErrorIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client := newTestClient(t, mux)

	_, err := client.RefreshToken(context.Background(), "refresh")
	require.ErrorIs(t, err, domain.ErrTransient)
}

func TestFetchActivitiesPaginatesAndFiltersRuns(t *testing.T) {
	var pages atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		require.Equal(t, "200", r.URL.Query().Get("per_page"))
		pages.Add(1)

		var body []map[string]any
		switch r.URL.Query().Get("page") {
		case "1":
			for i := 0; i < PageSize; i++ {
				kind := "Ride"
				if i%50 == 0 {
					kind = "Run"
				}
				body = append(body, activityJSON(int64(i+1), kind, "2025-06-01T06:30:00Z", 5000, 1500))
			}
		case "2":
			body = append(body,
				activityJSON(1001, "TrailRun", "2025-06-01T18:00:00Z", 8000, 3000),
				activityJSON(1002, "Swim", "2025-06-01T19:00:00Z", 1500, 1800),
			)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	client := newTestClient(t, mux)

	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	activities, err := client.FetchActivities(context.Background(), "access", start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int32(2), pages.Load())
	require.Len(t, activities, 5)

	trail := activities[4]
	require.Equal(t, int64(1001), trail.ExternalID)
	require.Equal(t, "TrailRun", trail.ActivityType)
	require.Equal(t, 8.0, trail.DistanceKM)
	require.Equal(t, time.Date(2025, time.June, 1, 18, 0, 0, 0, time.UTC), trail.StartDate)
	require.NotNil(t, trail.PaceMinPerKM)
	require.Equal(t, 6.25, *trail.PaceMinPerKM)
}

func TestFetchActivitiesEmptyIsNotAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	client := newTestClient(t, mux)

	activities, err := client.FetchActivities(context.Background(), "access", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Empty(t, activities)
}

func TestFetchActivitiesStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{status: http.StatusUnauthorized, want: domain.ErrAuth},
		{status: http.StatusTooManyRequests, want: domain.ErrRateBudgetExhausted},
		{status: http.StatusServiceUnavailable, want: domain.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.status), func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/v3/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			client := newTestClient(t, mux)

			_, err := client.FetchActivities(context.Background(), "access", time.Now().Add(-time.Hour), time.Now())
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFetchActivitiesStopsWhenBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body []map[string]any
		for i := 0; i < PageSize; i++ {
			body = append(body, activityJSON(int64(calls.Load())*1000+int64(i), "Run", "2025-06-01T06:30:00Z", 5000, 1500))
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	store := memory.NewStore()
	client := newTestClient(t, mux, WithBudget(NewBudget(store, 100, 15*time.Minute, 2)))

	activities, err := client.FetchActivities(context.Background(), "access", time.Now().Add(-time.Hour), time.Now())
	require.ErrorIs(t, err, domain.ErrRateBudgetExhausted)
	require.Equal(t, int32(2), calls.Load())
	require.Len(t, activities, 2*PageSize)

	usage, err := store.UsageOn(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 2, usage.Requests)
	require.True(t, usage.LimitReached)
}

func TestExchangeReturnsAthleteIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		require.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":3600,
			"athlete":{"id":12345,"firstname":"Alice","lastname":"Runner"}}`)
	})
	client := newTestClient(t, mux)

	authorized, err := client.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	require.Equal(t, int64(12345), authorized.ExternalID)
	require.Equal(t, "Alice Runner", authorized.Name)
	require.Equal(t, "r", authorized.Token.RefreshToken)

	url := client.AuthorizationURL("state-1")
	require.Contains(t, url, "approval_prompt=force")
	require.Contains(t, url, "client_id=client")
	require.Contains(t, url, "state=state-1")
}

func TestBudgetShortWindow(t *testing.T) {
	budget := NewBudget(nil, 2, 15*time.Minute, 0)
	ctx := context.Background()
	require.NoError(t, budget.Acquire(ctx))
	require.NoError(t, budget.Acquire(ctx))
	require.ErrorIs(t, budget.Acquire(ctx), domain.ErrRateBudgetExhausted)
}

func TestRawActivityProcessKeepsLocalWallClock(t *testing.T) {
	raw := RawActivity{
		ID:             7,
		Type:           "Run",
		StartDate:      "2025-06-01T22:30:00Z",
		StartDateLocal: "2025-06-02T08:30:00Z",
		Distance:       0,
		MovingTime:     600,
	}
	processed, err := raw.Process()
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, time.June, 2, 8, 30, 0, 0, time.UTC), processed.StartDate)
	require.Nil(t, processed.PaceMinPerKM)

	_, err = RawActivity{ID: 8}.Process()
	require.Error(t, err)
}
