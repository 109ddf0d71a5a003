// Package planfile contains pure functions for parsing YAML rollout plan files.
// This is part of the Functional Core - all functions are pure with no I/O.
package planfile

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput = errors.New("plan file is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Plan structure errors
	ErrNoArtifact       = errors.New("plan must name an artifact")
	ErrAmbiguousTarget  = errors.New("plan must name exactly one target")
	ErrInvalidStart     = errors.New("invalid start time")
	ErrInvalidPhase     = errors.New("invalid phase")
	ErrInvalidDeviceCnt = errors.New("invalid device count")
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string // e.g., "phases[1].delay_unit"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
