package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/shell/store"
	"github.com/google/uuid"
)

// =============================================================================
// Registry
// =============================================================================

// Registry owns the open sessions, keyed by session id.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// NewRegistry creates an empty registry whose sessions share deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps.withDefaults(),
		sessions: make(map[string]*entry),
	}
}

// Create opens a session for userID. The user's settings are read once,
// here; a user without stored settings starts from the defaults.
func (r *Registry) Create(ctx context.Context, userID string) (*Session, error) {
	settings, err := r.loadSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	s := NewSession(uuid.NewString(), userID, *settings, r.deps)

	r.mu.Lock()
	r.sessions[s.ID()] = &entry{session: s, lastSeen: r.deps.Now()}
	r.mu.Unlock()

	r.deps.Logger.Debug("session opened", "session_id", s.ID(), "user_id", userID)
	return s, nil
}

// Get returns the session with the given id and marks it as active.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = r.deps.Now()
	return e.session, nil
}

// Close closes and forgets the session with the given id.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.session.Close()
	r.deps.Logger.Debug("session closed", "session_id", id)
	return nil
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.session.Close()
	}
}

// CloseIdle closes every session not looked up for longer than maxIdle and
// returns their ids. A session with a submission in flight is kept.
func (r *Registry) CloseIdle(maxIdle time.Duration) []string {
	cutoff := r.deps.Now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*Session
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) && !e.session.Submitting() {
			idle = append(idle, e.session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(idle))
	for _, s := range idle {
		s.Close()
		ids = append(ids, s.ID())
	}
	return ids
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Patterns returns the user's recently used rollout patterns, oldest first.
func (r *Registry) Patterns(ctx context.Context, userID string) ([]domain.Pattern, error) {
	settings, err := r.loadSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return settings.PreviousPhases, nil
}

// ResetSettings forgets the user's stored settings: pattern history, retry
// default and confirmation preference. Resetting a user without stored
// settings is not an error. Open sessions keep the settings they started with.
func (r *Registry) ResetSettings(ctx context.Context, userID string) error {
	err := r.deps.Settings.DeleteSettings(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to reset settings for %s: %w", userID, err)
	}
	r.deps.Logger.Info("settings reset", "user_id", userID)
	return nil
}

func (r *Registry) loadSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	settings, err := r.deps.Settings.GetSettings(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.DefaultSettings(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for %s: %w", userID, err)
	}
	return settings, nil
}
