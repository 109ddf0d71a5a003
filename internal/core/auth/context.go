// Package auth provides the caller identity carried by gateway headers and
// the authorization rules of the planner API.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// Context Key
// =============================================================================

type contextKey string

const authContextKey contextKey = "auth"

// =============================================================================
// Types
// =============================================================================

// Context is the caller identity of a request. It is extracted from
// gateway-injected headers and stored in the request context.
type Context struct {
	// UserID is the gateway's user id (X-User-ID header or JWT sub claim).
	UserID string

	// PlanID is the tenant's subscription plan (X-Plan-ID header).
	PlanID string

	// Features are the plan capabilities (X-Plan-Features header).
	Features PlanFeatures

	// Authenticated is true when a user id was found.
	Authenticated bool
}

// PlanFeatures lists tenant capabilities that change the deployment request.
// Nil fields were not sent by the gateway and fall back to configuration.
type PlanFeatures struct {
	CanRetry *bool `json:"can_retry,omitempty"`
}

// =============================================================================
// Header Constants
// =============================================================================

const (
	// HeaderUserID is the header containing the authenticated user's ID
	HeaderUserID = "X-User-ID"

	// HeaderPlanID is the header containing the tenant's plan ID
	HeaderPlanID = "X-Plan-ID"

	// HeaderPlanFeatures is the header containing JSON-encoded plan features
	HeaderPlanFeatures = "X-Plan-Features"

	// HeaderGatewaySecret is the header containing the shared secret for validation
	HeaderGatewaySecret = "X-Gateway-Secret"
)

// =============================================================================
// Context Extraction
// =============================================================================

// ExtractFromRequest extracts auth context from HTTP request headers.
// If no user id is present, returns an unauthenticated context.
func ExtractFromRequest(r *http.Request) Context {
	return ExtractFromHeaders(r.Header)
}

// HeaderGetter is an interface for getting header values.
// http.Header satisfies it; tests can use MapHeaderGetter.
type HeaderGetter interface {
	Get(key string) string
}

// ExtractFromHeaders extracts auth context from headers.
//
// Auth sources (checked in order):
//  1. X-User-ID header
//  2. Authorization: Bearer {jwt}, using the payload's sub claim
//
// Malformed plan features are ignored rather than rejected.
func ExtractFromHeaders(headers HeaderGetter) Context {
	features, err := ParsePlanFeatures(headers.Get(HeaderPlanFeatures))
	if err != nil {
		features = PlanFeatures{}
	}

	if userID := strings.TrimSpace(headers.Get(HeaderUserID)); userID != "" {
		return Context{
			UserID:        userID,
			PlanID:        headers.Get(HeaderPlanID),
			Features:      features,
			Authenticated: true,
		}
	}

	// No signature verification: the gateway has already validated the token.
	claims := parseBearer(headers.Get("Authorization"))
	if claims == nil || claims.Sub == "" {
		return Context{Authenticated: false}
	}

	planID := claims.PlanID
	if planID == "" {
		planID = headers.Get(HeaderPlanID)
	}

	return Context{
		UserID:        claims.Sub,
		PlanID:        planID,
		Features:      features,
		Authenticated: true,
	}
}

// jwtClaims holds the fields extracted from a JWT payload.
type jwtClaims struct {
	Sub    string `json:"sub"`
	PlanID string `json:"pid"`
}

// parseBearer extracts claims from a Bearer token by base64-decoding the payload.
func parseBearer(authHeader string) *jwtClaims {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return nil
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil
	}
	var claims jwtClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}
	return &claims
}

// =============================================================================
// Plan Features Parsing
// =============================================================================

// ParsePlanFeatures parses a JSON string into PlanFeatures.
// An empty string yields no features.
func ParsePlanFeatures(jsonStr string) (PlanFeatures, error) {
	if jsonStr == "" {
		return PlanFeatures{}, nil
	}

	var features PlanFeatures
	if err := json.Unmarshal([]byte(jsonStr), &features); err != nil {
		return PlanFeatures{}, fmt.Errorf("invalid plan features: %w", err)
	}
	return features, nil
}

// =============================================================================
// Request Context
// =============================================================================

// WithContext stores the auth context in the request context.
func WithContext(ctx context.Context, authCtx Context) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext retrieves the auth context from the request context.
// Returns an unauthenticated context if none is stored.
func FromContext(ctx context.Context) Context {
	authCtx, _ := ctx.Value(authContextKey).(Context)
	return authCtx
}

// MapHeaderGetter is a HeaderGetter backed by a map.
type MapHeaderGetter map[string]string

func (m MapHeaderGetter) Get(key string) string {
	return m[key]
}
