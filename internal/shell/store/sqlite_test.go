package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/core/phases"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	store.now = func() time.Time { return fixedNow }
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func tenThenRest() domain.Pattern {
	return domain.Pattern{
		{BatchSize: 10, Delay: 2, DelayUnit: domain.DelayUnitHours},
		{BatchSize: 90},
	}
}

// =============================================================================
// Settings CRUD Tests
// =============================================================================

func TestGetSettings_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetSettings(context.Background(), "alice")

	assert.ErrorIs(t, err, ErrNotFound)
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "GetSettings", storeErr.Op)
	assert.Equal(t, "alice", storeErr.ID)
}

func TestGetSettings_EmptyUserID(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetSettings(context.Background(), "")

	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	settings := &domain.UserSettings{
		UserID:            "alice",
		PreviousPhases:    []domain.Pattern{tenThenRest()},
		Retries:           3,
		NeedsConfirmation: true,
	}
	require.NoError(t, store.SaveSettings(ctx, settings))
	assert.Equal(t, fixedNow, settings.UpdatedAt)

	got, err := store.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, settings, got)
}

func TestSaveSettings_Overwrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, &domain.UserSettings{UserID: "alice", Retries: 1}))
	require.NoError(t, store.SaveSettings(ctx, &domain.UserSettings{UserID: "alice", Retries: 5}))

	got, err := store.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Retries)
	assert.Empty(t, got.PreviousPhases)
	assert.NotNil(t, got.PreviousPhases)
}

func TestSaveSettings_UsersAreIsolated(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, &domain.UserSettings{UserID: "alice", Retries: 1}))
	require.NoError(t, store.SaveSettings(ctx, &domain.UserSettings{UserID: "bob", Retries: 2}))

	alice, err := store.GetSettings(ctx, "alice")
	require.NoError(t, err)
	bob, err := store.GetSettings(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.Retries)
	assert.Equal(t, 2, bob.Retries)
}

func TestSaveSettings_EmptyUserID(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveSettings(context.Background(), &domain.UserSettings{})

	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestDeleteSettings(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSettings(ctx, &domain.UserSettings{UserID: "alice"}))

	require.NoError(t, store.DeleteSettings(ctx, "alice"))

	_, err := store.GetSettings(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteSettings(ctx, "alice"), ErrNotFound)
}

// =============================================================================
// UpdateSettings Tests
// =============================================================================

func TestUpdateSettings_StartsFromDefaults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	updated, err := store.UpdateSettings(ctx, "alice", func(s *domain.UserSettings) error {
		assert.Empty(t, s.PreviousPhases)
		assert.False(t, s.NeedsConfirmation)
		s.PreviousPhases = phases.RecordPattern(s.PreviousPhases, tenThenRest())
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, updated.PreviousPhases, 1)

	got, err := store.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.Pattern{tenThenRest()}, got.PreviousPhases)
}

func TestUpdateSettings_AppliesToLatest(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSettings(ctx, &domain.UserSettings{UserID: "alice", Retries: 4, NeedsConfirmation: true}))

	_, err := store.UpdateSettings(ctx, "alice", func(s *domain.UserSettings) error {
		s.PreviousPhases = phases.RecordPattern(s.PreviousPhases, tenThenRest())
		return nil
	})
	require.NoError(t, err)

	got, err := store.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Retries)
	assert.True(t, got.NeedsConfirmation)
	assert.Len(t, got.PreviousPhases, 1)
}

func TestUpdateSettings_ErrorWritesNothing(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSettings(ctx, &domain.UserSettings{UserID: "alice", Retries: 4}))

	_, err := store.UpdateSettings(ctx, "alice", func(s *domain.UserSettings) error {
		s.Retries = 9
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := store.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Retries)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_CommitSuccess(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx SettingsStore) error {
		return tx.SaveSettings(ctx, &domain.UserSettings{UserID: "alice", Retries: 2})
	})
	require.NoError(t, err)

	got, err := store.GetSettings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Retries)
}

func TestWithTx_RollbackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx SettingsStore) error {
		if err := tx.SaveSettings(ctx, &domain.UserSettings{UserID: "alice"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	_, err = store.GetSettings(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx_Nested(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx SettingsStore) error {
		return tx.WithTx(ctx, func(inner SettingsStore) error {
			return inner.SaveSettings(ctx, &domain.UserSettings{UserID: "alice"})
		})
	})
	require.NoError(t, err)

	_, err = store.GetSettings(ctx, "alice")
	assert.NoError(t, err)
}

func TestWithTx_ContextCancellation(t *testing.T) {
	store := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.WithTx(ctx, func(tx SettingsStore) error {
		return nil
	})

	assert.ErrorIs(t, err, ErrTxFailed)
}

// =============================================================================
// Error Type Tests
// =============================================================================

func TestStoreError_Format(t *testing.T) {
	assert.Equal(t, "GetSettings user_settings alice: settings not found",
		NewStoreError("GetSettings", "user_settings", "alice", "settings not found", ErrNotFound).Error())
	assert.Equal(t, "SaveSettings user_settings: boom",
		NewStoreError("SaveSettings", "user_settings", "", "boom", nil).Error())
	assert.Equal(t, "WithTx: failed", NewStoreError("WithTx", "", "", "failed", ErrTxFailed).Error())
}
