package store

import (
	"context"

	"github.com/artpar/rollout/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// SettingsStore persists the per-user rollout preferences: recent phase
// patterns, the retry default and the confirmation preference.
type SettingsStore interface {
	// GetSettings returns ErrNotFound when the user has never saved settings.
	GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error)

	// SaveSettings inserts or replaces the user's settings.
	SaveSettings(ctx context.Context, settings *domain.UserSettings) error

	// UpdateSettings reads the current settings (defaults if none), applies
	// fn and writes the result, all in one transaction. Nothing is written
	// if fn returns an error.
	UpdateSettings(ctx context.Context, userID string, fn func(*domain.UserSettings) error) (*domain.UserSettings, error)

	DeleteSettings(ctx context.Context, userID string) error

	// Transaction support
	WithTx(ctx context.Context, fn func(SettingsStore) error) error

	// Lifecycle
	Close() error
}

// DefaultSettings returns the settings of a user who has never submitted.
func DefaultSettings(userID string) *domain.UserSettings {
	return &domain.UserSettings{
		UserID:         userID,
		PreviousPhases: []domain.Pattern{},
	}
}
