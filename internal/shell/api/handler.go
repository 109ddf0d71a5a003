// Package api provides HTTP handlers for the rollout planner session API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/artpar/rollout/internal/core/auth"
	"github.com/artpar/rollout/internal/core/deployment"
	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/core/phases"
	"github.com/artpar/rollout/internal/core/validation"
	"github.com/artpar/rollout/internal/shell/api/middleware"
	"github.com/artpar/rollout/internal/shell/api/openapi"
	"github.com/artpar/rollout/internal/shell/deployments"
	"github.com/artpar/rollout/internal/shell/planner"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	registry *planner.Registry
	logger   *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(registry *planner.Registry, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		registry: registry,
		logger:   l,
	}
}

// Routes returns the HTTP handler with all routes. Calls under /api/v1 pass
// through the gateway identity check; health and the OpenAPI document do not.
func (h *Handler) Routes(identity middleware.IdentityConfig, spec *openapi.Generator) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	r.Get("/health", h.handleHealth)
	if spec != nil {
		r.Get("/openapi.json", spec.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if identity.Logger == nil {
			identity.Logger = h.logger
		}
		r.Use(middleware.Identity(identity))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.handleCreateSession)
			r.Get("/{id}", h.handleGetSession)
			r.Put("/{id}/target", h.handleSetTarget)
			r.Put("/{id}/plan", h.handleSetPlan)
			r.Post("/{id}/submit", h.handleSubmit)
			r.Delete("/{id}", h.handleCloseSession)
		})
		r.Get("/users/{user}/patterns", h.handleListPatterns)
		r.Delete("/users/{user}/settings", h.handleResetSettings)
	})

	return r
}

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Sessions: h.registry.Len()})
}

// =============================================================================
// Session Handlers
// =============================================================================

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "invalid_json")
		return
	}

	userID := middleware.UserFromContext(r.Context())
	if userID == "" {
		userID = req.UserID
	}
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "user_id is required", "user_required")
		return
	}

	s, err := h.registry.Create(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to open session", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load user settings", "settings_unavailable")
		return
	}

	w.Header().Set("Location", "/api/v1/sessions/"+s.ID())
	h.writeJSON(w, http.StatusCreated, sessionToResponse(s.Snapshot()))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, sessionToResponse(s.Snapshot()))
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	if err := h.registry.Close(s.ID()); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req TargetRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "invalid_json")
		return
	}

	if field, msg := validation.ValidateTargetFields(req.Kind, req.DeviceIDs, req.Group, req.FilterID); field != "" && !req.Refresh {
		h.writeError(w, http.StatusBadRequest, field+": "+msg, "invalid_target")
		return
	}

	var err error
	switch {
	case req.Refresh:
		err = s.RefreshCount()
	case req.Kind == string(domain.SelectionDevices):
		err = s.SelectDevices(req.DeviceIDs)
	case req.Kind == string(domain.SelectionAllDevices):
		err = s.SelectAllDevices()
	case req.Kind == string(domain.SelectionGroup):
		err = s.SelectGroup(req.Group)
	case req.Kind == string(domain.SelectionFilter):
		err = s.SelectFilter(req.FilterID, req.Preview)
	default:
		err = s.ClearTarget()
	}
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sessionToResponse(s.Snapshot()))
}

func (h *Handler) handleSetPlan(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req PlanRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "invalid_json")
		return
	}

	fields := make([]validation.PhaseFields, len(req.Phases))
	for i, p := range req.Phases {
		fields[i] = validation.PhaseFields{BatchSize: p.BatchSize, Delay: p.Delay, DelayUnit: p.DelayUnit}
	}
	if field, msg := validation.ValidatePlanFields(req.Retries, fields); field != "" {
		h.writeError(w, http.StatusBadRequest, field+": "+msg, "invalid_plan")
		return
	}

	plan, err := requestToPlan(req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "invalid_plan")
		return
	}

	if err := s.SetPlan(plan); err != nil {
		h.writeSessionError(w, err)
		return
	}
	switch {
	case req.PatternIndex != nil:
		err = s.ApplyPattern(*req.PatternIndex)
	case req.UseDefault:
		err = s.UseDefaultPattern()
	case req.SinglePhase:
		err = s.UseSinglePhasePattern()
	}
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sessionToResponse(s.Snapshot()))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "invalid_json")
		return
	}

	outcome, err := s.Submit(r.Context(), planner.SubmitOptions{
		Confirmed:          req.Confirmed,
		SaveRetriesDefault: req.SaveRetriesDefault,
		NeedsConfirmation:  req.NeedsConfirmation,
		CanRetry:           auth.RetryOverride(auth.FromContext(r.Context())),
	})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	if outcome.Status == planner.OutcomeNeedsConfirmation {
		h.writeJSON(w, http.StatusAccepted, SubmitResponse{Status: string(outcome.Status)})
		return
	}

	w.Header().Set("Location", outcome.Location)
	h.writeJSON(w, http.StatusCreated, SubmitResponse{
		Status:        string(outcome.Status),
		Location:      outcome.Location,
		SettingsSaved: outcome.SettingsSaved,
		Request:       outcome.Request,
	})
}

// =============================================================================
// Pattern Handlers
// =============================================================================

func (h *Handler) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	if !auth.CanReadPatterns(auth.FromContext(r.Context()), userID) {
		h.writeError(w, http.StatusForbidden, "cannot read another user's patterns", "forbidden")
		return
	}

	patterns, err := h.registry.Patterns(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load patterns", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to load user settings", "settings_unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, PatternsResponse{UserID: userID, Patterns: patternsToResponse(patterns)})
}

func (h *Handler) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	if !auth.CanReadPatterns(auth.FromContext(r.Context()), userID) {
		h.writeError(w, http.StatusForbidden, "cannot reset another user's settings", "forbidden")
		return
	}

	if err := h.registry.ResetSettings(r.Context(), userID); err != nil {
		h.logger.Error("failed to reset settings", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to reset user settings", "settings_unavailable")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

// lookupSession resolves {id} and hides sessions owned by another caller.
func (h *Handler) lookupSession(w http.ResponseWriter, r *http.Request) (*planner.Session, bool) {
	s, err := h.registry.Get(chi.URLParam(r, "id"))
	if err == nil && !auth.CanAccessSession(auth.FromContext(r.Context()), s.UserID()) {
		err = planner.ErrSessionNotFound
	}
	if err != nil {
		h.writeSessionError(w, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, planner.ErrSessionNotFound), errors.Is(err, planner.ErrSessionClosed):
		h.writeError(w, http.StatusNotFound, "session not found", "session_not_found")
	case errors.Is(err, planner.ErrPatternNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), "pattern_not_found")
	default:
		h.logger.Error("session operation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error", "internal_error")
	}
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	var refusal *planner.RefusalError
	var apiErr *deployments.APIError

	switch {
	case errors.As(err, &refusal):
		status := http.StatusUnprocessableEntity
		if refusal.Refusal == deployment.RefusalInFlight {
			status = http.StatusConflict
		}
		h.writeError(w, status, refusal.Reason, string(refusal.Refusal))
	case errors.As(err, &apiErr):
		h.writeError(w, http.StatusBadGateway, apiErr.Message, "deployment_failed")
	case errors.Is(err, planner.ErrSessionClosed):
		h.writeSessionError(w, err)
	default:
		h.writeError(w, http.StatusBadGateway, err.Error(), "deployment_failed")
	}
}

// decodeJSON decodes the request body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// =============================================================================
// Conversions
// =============================================================================

func requestToPlan(req PlanRequest) (domain.RolloutPlan, error) {
	plan := domain.RolloutPlan{
		ArtifactName:      req.ArtifactName,
		Retries:           req.Retries,
		ForceInstallation: req.ForceInstallation,
		Delta:             req.Delta,
		UpdateControlMap:  req.UpdateControlMap,
	}
	if req.StartTime != nil {
		start := req.StartTime.UTC()
		plan.StartTime = &start
	}

	plan.Phases = make([]domain.Phase, 0, len(req.Phases))
	for _, pb := range req.Phases {
		unit, err := domain.ParseDelayUnit(pb.DelayUnit)
		if err != nil {
			return domain.RolloutPlan{}, err
		}
		plan.Phases = append(plan.Phases, domain.Phase{
			BatchSize: pb.BatchSize,
			Delay:     pb.Delay,
			DelayUnit: unit,
		})
	}
	return plan, nil
}

func sessionToResponse(snap planner.Snapshot) SessionResponse {
	resp := SessionResponse{
		ID:     snap.ID,
		UserID: snap.UserID,
		Target: TargetResponse{
			Kind:        string(snap.Target.Selection.Kind),
			Status:      string(snap.Target.Status),
			DeviceIDs:   snap.Target.Selection.DeviceIDs,
			Group:       snap.Target.Selection.GroupName,
			FilterID:    snap.Target.Selection.FilterID,
			DeviceCount: snap.Target.DeviceCount,
			CountKnown:  snap.Target.CountKnown,
			CountError:  snap.CountError,
		},
		Plan: PlanResponse{
			ArtifactName:      snap.Plan.ArtifactName,
			StartTime:         snap.Plan.StartTime,
			Phases:            make([]PhaseResponse, len(snap.Plan.Phases)),
			Retries:           snap.Plan.Retries,
			ForceInstallation: snap.Plan.ForceInstallation,
			Delta:             snap.Plan.Delta,
			UpdateControlMap:  snap.Plan.UpdateControlMap,
		},
		CanSubmit:    snap.CanSubmit,
		Reason:       snap.Reason,
		Submitting:   snap.Submitting,
		LastLocation: snap.LastLocation,
		Settings: SettingsResponse{
			Retries:           snap.Retries,
			NeedsConfirmation: snap.NeedsConfirmation,
		},
		History: patternsToResponse(snap.History),
	}

	for i, p := range snap.Plan.Phases {
		resp.Plan.Phases[i] = PhaseResponse{
			BatchSize: p.BatchSize,
			Delay:     p.Delay,
			DelayUnit: string(p.DelayUnit),
			StartTS:   snap.StartTimes[i],
		}
	}
	return resp
}

func patternsToResponse(patterns []domain.Pattern) []PatternResponse {
	out := make([]PatternResponse, len(patterns))
	for i, p := range patterns {
		out[i] = PatternResponse{
			Index:  i,
			Label:  phases.Describe(p),
			Phases: p,
		}
	}
	return out
}
