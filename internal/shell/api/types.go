package api

import (
	"time"

	"github.com/artpar/rollout/internal/core/deployment"
	"github.com/artpar/rollout/internal/core/domain"
)

// =============================================================================
// Request Types
// =============================================================================

// CreateSessionRequest is the request body for opening a planning session.
// UserID is only read when the gateway did not supply X-User-ID.
type CreateSessionRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// TargetRequest is the request body for changing a session's target.
//
// Kind is one of "devices", "all_devices", "group", "filter" or "none".
// With Refresh set the current selection's count is queried again and the
// other fields are ignored.
type TargetRequest struct {
	Kind      string   `json:"kind"`
	DeviceIDs []string `json:"device_ids,omitempty"`
	Group     string   `json:"group,omitempty"`
	FilterID  string   `json:"filter_id,omitempty"`
	Preview   bool     `json:"preview,omitempty"`
	Refresh   bool     `json:"refresh,omitempty"`
}

// PlanRequest is the request body for replacing a session's rollout plan.
//
// StartTime nil means "start immediately". PatternIndex, when set, takes the
// phases from the user's pattern history instead of Phases. UseDefault takes
// the default two-phase pattern sized for the current target; SinglePhase
// replaces the phases with one 100% phase.
type PlanRequest struct {
	ArtifactName      string         `json:"artifact_name"`
	StartTime         *time.Time     `json:"start_time,omitempty"`
	Phases            []PhaseBody    `json:"phases,omitempty"`
	Retries           int            `json:"retries,omitempty"`
	ForceInstallation bool           `json:"force_installation,omitempty"`
	Delta             bool           `json:"delta,omitempty"`
	UpdateControlMap  map[string]any `json:"update_control_map,omitempty"`
	PatternIndex      *int           `json:"pattern_index,omitempty"`
	UseDefault        bool           `json:"use_default,omitempty"`
	SinglePhase       bool           `json:"single_phase,omitempty"`
}

// PhaseBody is one phase as entered by the user.
type PhaseBody struct {
	BatchSize *int   `json:"batch_size,omitempty"`
	Delay     *int   `json:"delay,omitempty"`
	DelayUnit string `json:"delay_unit,omitempty"`
}

// SubmitRequest is the request body for submitting a session's plan.
type SubmitRequest struct {
	Confirmed          bool  `json:"confirmed,omitempty"`
	SaveRetriesDefault bool  `json:"save_retries_default,omitempty"`
	NeedsConfirmation  *bool `json:"needs_confirmation,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// SessionResponse is the state of a planning session.
type SessionResponse struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Target       TargetResponse    `json:"target"`
	Plan         PlanResponse      `json:"plan"`
	CanSubmit    bool              `json:"can_submit"`
	Reason       string            `json:"reason,omitempty"`
	Submitting   bool              `json:"submitting"`
	LastLocation string            `json:"last_location,omitempty"`
	Settings     SettingsResponse  `json:"settings"`
	History      []PatternResponse `json:"history"`
}

// TargetResponse describes the selected target and its device count.
type TargetResponse struct {
	Kind        string   `json:"kind"`
	Status      string   `json:"status"`
	DeviceIDs   []string `json:"device_ids,omitempty"`
	Group       string   `json:"group,omitempty"`
	FilterID    string   `json:"filter_id,omitempty"`
	DeviceCount int      `json:"device_count"`
	CountKnown  bool     `json:"count_known"`
	CountError  string   `json:"count_error,omitempty"`
}

// PlanResponse is the plan being edited, with derived phase start times.
type PlanResponse struct {
	ArtifactName      string          `json:"artifact_name"`
	StartTime         *time.Time      `json:"start_time"`
	Phases            []PhaseResponse `json:"phases"`
	Retries           int             `json:"retries"`
	ForceInstallation bool            `json:"force_installation"`
	Delta             bool            `json:"delta"`
	UpdateControlMap  map[string]any  `json:"update_control_map,omitempty"`
}

// PhaseResponse is one phase with its derived start time. StartTS is null
// while the plan starts immediately.
type PhaseResponse struct {
	BatchSize *int       `json:"batch_size"`
	Delay     *int       `json:"delay,omitempty"`
	DelayUnit string     `json:"delay_unit,omitempty"`
	StartTS   *time.Time `json:"start_ts"`
}

// SettingsResponse is the user's stored defaults as read at session start.
type SettingsResponse struct {
	Retries           int  `json:"retries"`
	NeedsConfirmation bool `json:"needs_confirmation"`
}

// PatternResponse is one entry of the pattern history.
type PatternResponse struct {
	Index  int                     `json:"index"`
	Label  string                  `json:"label"`
	Phases []domain.CanonicalPhase `json:"phases"`
}

// PatternsResponse lists a user's recent rollout patterns, oldest first.
type PatternsResponse struct {
	UserID   string            `json:"user_id"`
	Patterns []PatternResponse `json:"patterns"`
}

// SubmitResponse is the result of a submission that was not refused.
type SubmitResponse struct {
	Status        string                    `json:"status"`
	Location      string                    `json:"location,omitempty"`
	SettingsSaved bool                      `json:"settings_saved"`
	Request       *deployment.CreateRequest `json:"request,omitempty"`
}

// HealthResponse is the response for health checks.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is the response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
