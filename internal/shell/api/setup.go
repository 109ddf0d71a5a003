package api

import (
	"log/slog"
	"net/http"

	"github.com/artpar/rollout/internal/shell/api/middleware"
	"github.com/artpar/rollout/internal/shell/api/openapi"
	"github.com/artpar/rollout/internal/shell/planner"
)

// =============================================================================
// API Setup
// =============================================================================

// APIConfig holds configuration for the API setup.
type APIConfig struct {
	Registry *planner.Registry
	Logger   *slog.Logger

	// Gateway identity (see middleware.Identity)
	AuthSharedSecret string
	RequireUser      bool

	// PublicURL is advertised as the server in the OpenAPI document.
	PublicURL string
}

// SetupAPI creates the complete API router.
func SetupAPI(cfg APIConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var opts []openapi.Option
	if cfg.PublicURL != "" {
		opts = append(opts, openapi.WithServer(cfg.PublicURL))
	}
	spec := openapi.NewGenerator(opts...)
	spec.Register(Operations()...)

	h := NewHandler(cfg.Registry, cfg.Logger)
	return h.Routes(middleware.IdentityConfig{
		SharedSecret: cfg.AuthSharedSecret,
		RequireUser:  cfg.RequireUser,
		Logger:       cfg.Logger,
	}, spec)
}

// Operations describes every route served by Handler for the OpenAPI document.
func Operations() []openapi.Operation {
	const tag = "Sessions"
	return []openapi.Operation{
		{
			Method: http.MethodGet, Path: "/health",
			OperationID: "health", Summary: "Service health", Tag: "Health",
			Responses: map[int]any{200: HealthResponse{}},
		},
		{
			Method: http.MethodPost, Path: "/api/v1/sessions",
			OperationID: "createSession", Summary: "Open a planning session", Tag: tag,
			Request:   CreateSessionRequest{},
			Responses: map[int]any{201: SessionResponse{}, 400: ErrorResponse{}, 500: ErrorResponse{}},
		},
		{
			Method: http.MethodGet, Path: "/api/v1/sessions/{id}",
			OperationID: "getSession", Summary: "Get a planning session", Tag: tag,
			Responses: map[int]any{200: SessionResponse{}, 404: ErrorResponse{}},
		},
		{
			Method: http.MethodDelete, Path: "/api/v1/sessions/{id}",
			OperationID: "closeSession", Summary: "Close a planning session", Tag: tag,
			Responses: map[int]any{204: nil, 404: ErrorResponse{}},
		},
		{
			Method: http.MethodPut, Path: "/api/v1/sessions/{id}/target",
			OperationID: "setTarget", Summary: "Select devices, a group, all devices or a filter", Tag: tag,
			Request:   TargetRequest{},
			Responses: map[int]any{200: SessionResponse{}, 400: ErrorResponse{}, 404: ErrorResponse{}},
		},
		{
			Method: http.MethodPut, Path: "/api/v1/sessions/{id}/plan",
			OperationID: "setPlan", Summary: "Replace the rollout plan", Tag: tag,
			Request:   PlanRequest{},
			Responses: map[int]any{200: SessionResponse{}, 400: ErrorResponse{}, 404: ErrorResponse{}},
		},
		{
			Method: http.MethodPost, Path: "/api/v1/sessions/{id}/submit",
			OperationID: "submitSession", Summary: "Create the deployment", Tag: tag,
			Request: SubmitRequest{},
			Responses: map[int]any{
				201: SubmitResponse{},
				202: SubmitResponse{},
				404: ErrorResponse{},
				409: ErrorResponse{},
				422: ErrorResponse{},
				502: ErrorResponse{},
			},
		},
		{
			Method: http.MethodGet, Path: "/api/v1/users/{user}/patterns",
			OperationID: "listPatterns", Summary: "Recently used rollout patterns", Tag: "Patterns",
			Responses: map[int]any{200: PatternsResponse{}, 403: ErrorResponse{}},
		},
		{
			Method: http.MethodDelete, Path: "/api/v1/users/{user}/settings",
			OperationID: "resetSettings", Summary: "Forget pattern history and stored defaults", Tag: "Patterns",
			Responses: map[int]any{204: nil, 403: ErrorResponse{}},
		},
	}
}
