package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/rollout/internal/shell/api"
	"github.com/artpar/rollout/internal/shell/deployments"
	"github.com/artpar/rollout/internal/shell/inventory"
	"github.com/artpar/rollout/internal/shell/planner"
	"github.com/artpar/rollout/internal/shell/store"
	"github.com/artpar/rollout/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the rollout planner application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.SettingsStore
	registry   *planner.Registry
	reaper     *workers.SessionReaper
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	registry := planner.NewRegistry(planner.Deps{
		Inventory: inventory.NewHTTPClient(inventory.Config{
			BaseURL:         cfg.Inventory.URL,
			Token:           cfg.Inventory.Token,
			Timeout:         cfg.Inventory.Timeout,
			PreviewPageSize: cfg.Inventory.PreviewPageSize,
		}),
		Deployments: deployments.NewHTTPClient(deployments.Config{
			BaseURL: cfg.Deployments.URL,
			Token:   cfg.Deployments.Token,
			Timeout: cfg.Deployments.Timeout,
		}),
		Settings:     s,
		CanRetry:     cfg.Capabilities.CanRetry,
		FetchTimeout: cfg.Planner.FetchTimeout,
		Logger:       logger,
	})

	reaper := workers.NewSessionReaper(registry, workers.SessionReaperConfig{
		Interval:    cfg.Planner.ReapInterval,
		IdleTimeout: cfg.Planner.IdleTimeout,
	}, logger)

	handler := api.SetupAPI(api.APIConfig{
		Registry:         registry,
		Logger:           logger,
		AuthSharedSecret: cfg.Auth.SharedSecret,
		RequireUser:      cfg.Auth.RequireUser,
		PublicURL:        cfg.Server.PublicURL,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("planner configured",
		"inventory_url", cfg.Inventory.URL,
		"deployments_url", cfg.Deployments.URL,
		"can_retry", cfg.Capabilities.CanRetry,
	)

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		registry:   registry,
		reaper:     reaper,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	s.reaper.Start()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.closeResources()
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server. Open sessions are closed after
// in-flight requests finish so their count fetches stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.closeResources()
	s.logger.Info("shutdown complete")
	return nil
}

func (s *Server) closeResources() {
	s.reaper.Stop()
	s.registry.CloseAll()

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
