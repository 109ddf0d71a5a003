// Package workers contains background workers for the rollout planner.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdleCloser closes sessions that have been idle too long.
// *planner.Registry implements it.
type IdleCloser interface {
	CloseIdle(maxIdle time.Duration) []string
}

// SessionReaperConfig configures the session reaper worker.
type SessionReaperConfig struct {
	// Interval is the time between reap cycles.
	// Default: 1 minute.
	Interval time.Duration

	// IdleTimeout is how long a session may go unused before it is closed.
	// Default: 30 minutes.
	IdleTimeout time.Duration
}

// DefaultSessionReaperConfig returns the default configuration.
func DefaultSessionReaperConfig() SessionReaperConfig {
	return SessionReaperConfig{
		Interval:    time.Minute,
		IdleTimeout: 30 * time.Minute,
	}
}

// SessionReaper periodically closes planning sessions that nobody has
// looked at for longer than the idle timeout. Closing a session cancels
// its outstanding device count queries.
type SessionReaper struct {
	sessions IdleCloser
	config   SessionReaperConfig
	logger   *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionReaper creates a new session reaper worker.
func NewSessionReaper(sessions IdleCloser, config SessionReaperConfig, logger *slog.Logger) *SessionReaper {
	defaults := DefaultSessionReaperConfig()
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SessionReaper{
		sessions: sessions,
		config:   config,
		logger:   logger.With("component", "session_reaper"),
	}
}

// Start begins the reaper background goroutine.
func (r *SessionReaper) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.run()

	r.logger.Info("session reaper started",
		"interval", r.config.Interval,
		"idle_timeout", r.config.IdleTimeout,
	)
}

// Stop stops the reaper and waits for a running cycle to finish.
func (r *SessionReaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("session reaper stopped")
}

func (r *SessionReaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runCycle()
		}
	}
}

// runCycle closes idle sessions once.
func (r *SessionReaper) runCycle() {
	closed := r.sessions.CloseIdle(r.config.IdleTimeout)
	if len(closed) == 0 {
		r.logger.Debug("no idle sessions")
		return
	}
	for _, id := range closed {
		r.logger.Info("closed idle session", "session_id", id)
	}
}
