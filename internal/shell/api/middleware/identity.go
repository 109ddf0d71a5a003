// Package middleware provides HTTP middleware for the rollout planner API.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/artpar/rollout/internal/core/auth"
)

// =============================================================================
// Headers
// =============================================================================

const (
	// HeaderUserID carries the caller's user id, set by the gateway in front
	// of the planner.
	HeaderUserID = auth.HeaderUserID

	// HeaderGatewaySecret proves the request came through the gateway.
	HeaderGatewaySecret = auth.HeaderGatewaySecret
)

// WithUser returns a copy of ctx carrying an authenticated userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return auth.WithContext(ctx, auth.Context{UserID: userID, Authenticated: userID != ""})
}

// UserFromContext returns the user id stored by the Identity middleware.
// Empty if the request carried none.
func UserFromContext(ctx context.Context) string {
	return auth.FromContext(ctx).UserID
}

// =============================================================================
// Identity Middleware
// =============================================================================

// IdentityConfig holds configuration for the identity middleware.
type IdentityConfig struct {
	// SharedSecret is an optional secret to validate X-Gateway-Secret.
	// If empty, secret validation is skipped.
	SharedSecret string

	// RequireUser rejects requests without a caller identity.
	RequireUser bool

	Logger *slog.Logger
}

// Identity extracts the caller from gateway headers and stores the resulting
// auth.Context in the request context.
func Identity(cfg IdentityConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.SharedSecret != "" && r.Header.Get(HeaderGatewaySecret) != cfg.SharedSecret {
				cfg.Logger.Warn("invalid gateway secret",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusForbidden, "invalid gateway secret", "forbidden")
				return
			}

			authCtx := auth.ExtractFromRequest(r)
			if cfg.RequireUser {
				if ok, reason := auth.RequireAuthentication(authCtx); !ok {
					writeJSONError(w, http.StatusUnauthorized, reason, "unauthenticated")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(auth.WithContext(r.Context(), authCtx)))
		})
	}
}

// =============================================================================
// JSON Error Response
// =============================================================================

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}
