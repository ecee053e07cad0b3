package auth

import (
	"context"

	platformauth "example.com/marathon/internal/platform/auth"
)

// Claims mirrors the platform claims type for service convenience.
type Claims = platformauth.Claims

// Config mirrors the platform auth config.
type Config = platformauth.Config

// ParseClaims delegates to the platform parser.
func ParseClaims(token string, cfg Config) (*Claims, error) {
	return platformauth.Parse(token, cfg)
}

// WithClaims stores the claims in the request context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return platformauth.WithClaims(ctx, claims)
}

// FromContext retrieves claims from context.
func FromContext(ctx context.Context) (*Claims, bool) {
	return platformauth.FromContext(ctx)
}
