package auth

import "context"

// Scopes understood by the marathon HTTP surface.
const (
	ScopeSyncTrigger   = "sync:trigger"
	ScopeDashboardRead = "dashboard:read"
	ScopePlanWrite     = "plan:write"
	ScopeAthletesWrite = "athletes:write"
	ScopeLogsRead      = "logs:read"
)

// Allowed reports whether the request context carries any of the scopes.
// The second result is false when no claims are present at all.
func Allowed(ctx context.Context, scopes ...string) (allowed, authenticated bool) {
	claims, ok := FromContext(ctx)
	if !ok {
		return false, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return true, true
		}
	}
	return false, true
}
