package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Skipper reports whether a request may pass without a bearer token.
type Skipper func(r *http.Request) bool

// PublicPaths returns a Skipper matching the exact request paths given.
func PublicPaths(paths ...string) Skipper {
	public := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		public[path] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := public[r.URL.Path]
		return ok
	}
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithSkipper lets matching requests through unauthenticated.
func WithSkipper(skipper Skipper) Option {
	return func(m *Middleware) { m.skipper = skipper }
}

// WithLogger records rejected requests at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

// Middleware requires a valid coach or operator token on every request the
// skipper does not exempt, and attaches its claims to the request context.
type Middleware struct {
	config  Config
	skipper Skipper
	logger  zerolog.Logger
}

// NewMiddleware constructs a Middleware validating tokens against cfg.
func NewMiddleware(cfg Config, opts ...Option) Middleware {
	m := Middleware{config: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Wrap guards next.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipper != nil && m.skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := Parse(bearerToken(r), m.config)
		if err != nil {
			m.logger.Debug().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request rejected")
			reject(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// bearerToken returns the credential of an "Authorization: Bearer" header,
// or "" when the header is absent or uses another scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// reject answers 401 with an RFC 6750 challenge and the API's JSON error shape.
func reject(w http.ResponseWriter, err error) {
	challenge := `Bearer realm="marathon"`
	if !errors.Is(err, ErrMissingToken) {
		challenge += `, error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": err.Error()})
}
