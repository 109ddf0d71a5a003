package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements SettingsStore using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// Every connection to ":memory:" is a separate database.
	if strings.HasPrefix(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Settings Operations
// =============================================================================

// settingsRow represents a user_settings row in the database.
type settingsRow struct {
	UserID            string `db:"user_id"`
	PreviousPhases    string `db:"previous_phases"`
	Retries           int    `db:"retries"`
	NeedsConfirmation bool   `db:"needs_confirmation"`
	UpdatedAt         string `db:"updated_at"`
}

func (s *SQLiteStore) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	return getSettings(ctx, s.db, userID)
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings *domain.UserSettings) error {
	return saveSettings(ctx, s.db, settings, s.now())
}

func (s *SQLiteStore) DeleteSettings(ctx context.Context, userID string) error {
	return deleteSettings(ctx, s.db, userID)
}

func (s *SQLiteStore) UpdateSettings(ctx context.Context, userID string, fn func(*domain.UserSettings) error) (*domain.UserSettings, error) {
	var updated *domain.UserSettings
	err := s.WithTx(ctx, func(tx SettingsStore) error {
		var err error
		updated, err = tx.UpdateSettings(ctx, userID, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(SettingsStore) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx, now: s.now}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements SettingsStore within a transaction.
type txSQLiteStore struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (s *txSQLiteStore) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	return getSettings(ctx, s.tx, userID)
}

func (s *txSQLiteStore) SaveSettings(ctx context.Context, settings *domain.UserSettings) error {
	return saveSettings(ctx, s.tx, settings, s.now())
}

func (s *txSQLiteStore) DeleteSettings(ctx context.Context, userID string) error {
	return deleteSettings(ctx, s.tx, userID)
}

func (s *txSQLiteStore) UpdateSettings(ctx context.Context, userID string, fn func(*domain.UserSettings) error) (*domain.UserSettings, error) {
	current, err := getSettings(ctx, s.tx, userID)
	if errors.Is(err, ErrNotFound) {
		current, err = DefaultSettings(userID), nil
	}
	if err != nil {
		return nil, err
	}

	if err := fn(current); err != nil {
		return nil, err
	}
	current.UserID = userID

	if err := saveSettings(ctx, s.tx, current, s.now()); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(SettingsStore) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func getSettings(ctx context.Context, exec executor, userID string) (*domain.UserSettings, error) {
	if userID == "" {
		return nil, NewStoreError("GetSettings", "user_settings", "", "user id is required", ErrInvalidID)
	}

	query := `SELECT * FROM user_settings WHERE user_id = ?`

	var row settingsRow
	err := exec.GetContext(ctx, &row, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSettings", "user_settings", userID, "settings not found", ErrNotFound)
		}
		return nil, NewStoreError("GetSettings", "user_settings", userID, err.Error(), err)
	}

	return rowToSettings(&row)
}

func saveSettings(ctx context.Context, exec executor, settings *domain.UserSettings, now time.Time) error {
	if settings.UserID == "" {
		return NewStoreError("SaveSettings", "user_settings", "", "user id is required", ErrInvalidID)
	}

	history := settings.PreviousPhases
	if history == nil {
		history = []domain.Pattern{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return NewStoreError("SaveSettings", "user_settings", settings.UserID, "failed to serialize previous phases", ErrInvalidData)
	}

	settings.UpdatedAt = now.UTC().Truncate(time.Second)

	query := `
		INSERT INTO user_settings (
			user_id, previous_phases, retries, needs_confirmation, updated_at
		) VALUES (
			:user_id, :previous_phases, :retries, :needs_confirmation, :updated_at
		)
		ON CONFLICT(user_id) DO UPDATE SET
			previous_phases = excluded.previous_phases,
			retries = excluded.retries,
			needs_confirmation = excluded.needs_confirmation,
			updated_at = excluded.updated_at`

	row := map[string]any{
		"user_id":            settings.UserID,
		"previous_phases":    string(historyJSON),
		"retries":            settings.Retries,
		"needs_confirmation": settings.NeedsConfirmation,
		"updated_at":         settings.UpdatedAt.Format(time.RFC3339),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("SaveSettings", "user_settings", settings.UserID, err.Error(), err)
	}

	return nil
}

func deleteSettings(ctx context.Context, exec executor, userID string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM user_settings WHERE user_id = ?`, userID)
	if err != nil {
		return NewStoreError("DeleteSettings", "user_settings", userID, err.Error(), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("DeleteSettings", "user_settings", userID, err.Error(), err)
	}
	if affected == 0 {
		return NewStoreError("DeleteSettings", "user_settings", userID, "settings not found", ErrNotFound)
	}

	return nil
}

func rowToSettings(row *settingsRow) (*domain.UserSettings, error) {
	settings := &domain.UserSettings{
		UserID:            row.UserID,
		Retries:           row.Retries,
		NeedsConfirmation: row.NeedsConfirmation,
	}

	if err := json.Unmarshal([]byte(row.PreviousPhases), &settings.PreviousPhases); err != nil {
		return nil, NewStoreError("GetSettings", "user_settings", row.UserID, "failed to parse previous phases", ErrInvalidData)
	}
	if settings.PreviousPhases == nil {
		settings.PreviousPhases = []domain.Pattern{}
	}

	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("GetSettings", "user_settings", row.UserID, "failed to parse updated_at", ErrInvalidData)
	}
	settings.UpdatedAt = updatedAt

	return settings, nil
}
