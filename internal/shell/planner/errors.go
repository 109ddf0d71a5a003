// Package planner runs deployment-creation sessions: it tracks the target
// selection and its device count, holds the rollout plan being edited, and
// submits it to the deployment creation service.
// This is part of the Imperative Shell - it handles I/O and calls the pure
// phases, targeting and deployment packages.
package planner

import (
	"errors"

	"github.com/artpar/rollout/internal/core/deployment"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// Submission refusals. These never reach the network and are always
	// wrapped in a *RefusalError.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrTargetUnresolved   = errors.New("deployment target unresolved")
	ErrValidationFailed   = errors.New("rollout plan is invalid")
	ErrNoArtifact         = errors.New("no artifact selected")

	// ErrSessionNotFound is returned for an unknown or closed session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrPatternNotFound is returned when applying a history entry that does not exist.
	ErrPatternNotFound = errors.New("pattern not found in history")
)

// RefusalError is returned when a submission is stopped before the network.
type RefusalError struct {
	Refusal deployment.Refusal
	Reason  string
	Err     error
}

func (e *RefusalError) Error() string {
	return e.Reason
}

func (e *RefusalError) Unwrap() error {
	return e.Err
}

func newRefusalError(d deployment.SubmitDecision) *RefusalError {
	var sentinel error
	switch d.Refusal {
	case deployment.RefusalInFlight:
		sentinel = ErrSubmissionInFlight
	case deployment.RefusalNoArtifact:
		sentinel = ErrNoArtifact
	case deployment.RefusalTargetUnresolved:
		sentinel = ErrTargetUnresolved
	default:
		sentinel = ErrValidationFailed
	}
	return &RefusalError{Refusal: d.Refusal, Reason: d.Reason, Err: sentinel}
}
