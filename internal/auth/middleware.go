package auth

import (
	"net/http"

	"example.com/marathon/internal/logging"
	platformauth "example.com/marathon/internal/platform/auth"
)

// publicPaths are reachable without a bearer token. Strava redirects the
// athlete's browser to the callback, which cannot carry one.
var publicPaths = []string{"/healthz", "/metrics", "/v1/strava/authorize", "/v1/strava/callback"}

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner platformauth.Middleware
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config) Middleware {
	return Middleware{inner: platformauth.NewMiddleware(cfg,
		platformauth.WithSkipper(platformauth.PublicPaths(publicPaths...)),
		platformauth.WithLogger(logging.Component("auth")),
	)}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
