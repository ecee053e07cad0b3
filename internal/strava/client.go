package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"example.com/marathon/internal/domain"
	"example.com/marathon/internal/observability"
)

const (
	// PageSize is the largest page the activities listing accepts.
	PageSize    = 200
	breakerName = "strava-api"
	scopes      = "read,activity:read_all"
)

// Config holds what the client needs to talk to Strava.
type Config struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	APIBaseURL     string
	AuthURL        string
	TokenURL       string
	RequestTimeout time.Duration
}

// Client fetches activities and refreshes credentials. Calls are sequential;
// every request carries its own timeout.
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	budget     *Budget
	breaker    *gobreaker.CircuitBreaker[[]RawActivity]
	logger     zerolog.Logger
}

// Option customises the Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API and token calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBudget enables request quota enforcement.
func WithBudget(budget *Budget) Option {
	return func(c *Client) {
		c.budget = budget
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a Client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{scopes},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	observability.SetBreakerState(breakerName, 0)
	c.breaker = gobreaker.NewCircuitBreaker[[]RawActivity](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejected athlete credential says nothing about Strava's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrAuth)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			observability.SetBreakerState(name, stateValue(to))
		},
	})
	return c
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// AuthorizationURL returns the consent URL an athlete visits to link their account.
func (c *Client) AuthorizationURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "force"))
}

// Exchange trades an authorization code for tokens and the athlete identity.
func (c *Client) Exchange(ctx context.Context, code string) (domain.AuthorizedAthlete, error) {
	ctx, cancel := context.WithTimeout(c.oauthContext(ctx), c.timeout)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return domain.AuthorizedAthlete{}, classifyTokenError("exchange code", err)
	}

	authorized := domain.AuthorizedAthlete{Token: toDomainToken(tok)}
	athlete, ok := tok.Extra("athlete").(map[string]any)
	if !ok {
		return domain.AuthorizedAthlete{}, errors.New("exchange code: token response carried no athlete")
	}
	if id, ok := athlete["id"].(float64); ok {
		authorized.ExternalID = int64(id)
	}
	first, _ := athlete["firstname"].(string)
	last, _ := athlete["lastname"].(string)
	authorized.Name = strings.TrimSpace(first + " " + last)
	if authorized.Name == "" {
		authorized.Name = "Athlete " + strconv.FormatInt(authorized.ExternalID, 10)
	}
	return authorized, nil
}

// RefreshToken exchanges a refresh token for a fresh access token.
// Strava may rotate the refresh token; the returned Token carries whichever is current.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (domain.Token, error) {
	ctx, cancel := context.WithTimeout(c.oauthContext(ctx), c.timeout)
	defer cancel()

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return domain.Token{}, classifyTokenError("refresh token", err)
	}
	observability.RecordStravaRequest("token_refreshed")
	return toDomainToken(tok), nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func toDomainToken(tok *oauth2.Token) domain.Token {
	return domain.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UTC(),
	}
}

func classifyTokenError(op string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil {
		switch code := retrieve.Response.StatusCode; {
		case code == http.StatusBadRequest, code == http.StatusUnauthorized, code == http.StatusForbidden:
			observability.RecordStravaRequest("auth_error")
			return fmt.Errorf("%s: %w: %v", op, domain.ErrAuth, err)
		case code == http.StatusTooManyRequests:
			observability.RecordStravaRequest("rate_limited")
			return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrRateBudgetExhausted, domain.ErrTransient))
		}
	}
	observability.RecordStravaRequest("transient_error")
	return fmt.Errorf("%s: %w: %v", op, domain.ErrTransient, err)
}

// FetchActivities lists running activities that started within [start, end).
// When the request budget runs out mid-listing the pages fetched so far are
// returned together with an error wrapping domain.ErrRateBudgetExhausted.
func (c *Client) FetchActivities(ctx context.Context, accessToken string, start, end time.Time) ([]domain.ProcessedActivity, error) {
	var out []domain.ProcessedActivity
	for page := 1; ; page++ {
		if c.budget != nil {
			if err := c.budget.Acquire(ctx); err != nil {
				observability.RecordStravaRequest("budget_exhausted")
				return out, fmt.Errorf("fetch activities page %d: %w", page, err)
			}
		}

		raw, err := c.breaker.Execute(func() ([]RawActivity, error) {
			return c.fetchPage(ctx, accessToken, start, end, page)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				observability.RecordStravaRequest("rejected")
				err = fmt.Errorf("%w: %v", domain.ErrTransient, err)
			}
			if errors.Is(err, domain.ErrRateBudgetExhausted) && c.budget != nil {
				c.budget.Exhaust()
			}
			return out, fmt.Errorf("fetch activities page %d: %w", page, err)
		}
		observability.RecordStravaRequest("success")

		for _, activity := range raw {
			if !activity.IsRun() {
				continue
			}
			processed, err := activity.Process()
			if err != nil {
				c.logger.Warn().Err(err).Int64("activity_id", activity.ID).Msg("skipping unparsable activity")
				continue
			}
			out = append(out, processed)
		}
		if len(raw) < PageSize {
			break
		}
	}
	c.logger.Debug().Int("activities", len(out)).Time("after", start).Time("before", end).Msg("fetched running activities")
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, accessToken string, start, end time.Time, page int) ([]RawActivity, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("after", strconv.FormatInt(start.Unix(), 10))
	query.Set("before", strconv.FormatInt(end.Unix(), 10))
	query.Set("per_page", strconv.Itoa(PageSize))
	query.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/athlete/activities?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		observability.RecordStravaRequest("auth_error")
		return nil, fmt.Errorf("%w: status %d", domain.ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		observability.RecordStravaRequest("rate_limited")
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, errors.Join(domain.ErrRateBudgetExhausted, domain.ErrTransient))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", domain.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var activities []RawActivity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, fmt.Errorf("%w: decode activities: %v", domain.ErrTransient, err)
	}
	return activities, nil
}
