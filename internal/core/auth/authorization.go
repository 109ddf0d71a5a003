package auth

// =============================================================================
// Session Authorization
// =============================================================================

// CanAccessSession checks if the caller can read or change a planning session.
//
// Without a gateway identity the planner runs in trusted mode and every
// session is reachable. An identified caller only reaches their own sessions.
func CanAccessSession(ctx Context, ownerID string) bool {
	if !ctx.Authenticated {
		return true
	}
	return ctx.UserID == ownerID
}

// CanReadPatterns checks if the caller can list a user's rollout patterns.
// The same ownership rule as sessions applies.
func CanReadPatterns(ctx Context, userID string) bool {
	return CanAccessSession(ctx, userID)
}

// =============================================================================
// Capabilities
// =============================================================================

// RetryOverride returns the caller's retry capability if the gateway sent
// one, else nil so that configuration decides.
func RetryOverride(ctx Context) *bool {
	if ctx.Features.CanRetry == nil {
		return nil
	}
	v := *ctx.Features.CanRetry
	return &v
}

// =============================================================================
// Generic Helpers
// =============================================================================

// RequireAuthentication checks if the context is authenticated.
// Returns (true, "") if authenticated, or (false, "authentication required") if not.
func RequireAuthentication(ctx Context) (bool, string) {
	if !ctx.Authenticated {
		return false, "authentication required"
	}
	return true, ""
}
