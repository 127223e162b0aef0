package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/artpar/docklite/internal/core/protection"
	"github.com/artpar/docklite/internal/core/traefik"
	"github.com/artpar/docklite/internal/shell/api"
	"github.com/artpar/docklite/internal/shell/docker"
	"github.com/artpar/docklite/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitRuntimeError    = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the docklite application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	ssh        *docker.SSHExecutor
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}
	s, err := store.NewSQLiteStore(cfg.Database.DSN, store.WithSecret(cfg.Database.Secret))
	if err != nil {
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	var exec docker.Executor = docker.NewLocalExecutor()
	var sshExec *docker.SSHExecutor
	if cfg.Remote.Enabled {
		sshExec, err = docker.NewSSHExecutor(docker.SSHConfig{
			Host:           cfg.Remote.Host,
			Port:           cfg.Remote.Port,
			User:           cfg.Remote.User,
			KeyFile:        cfg.Remote.KeyFile,
			KnownHostsFile: cfg.Remote.KnownHostsFile,
			ConnectTimeout: cfg.Remote.ConnectTimeout,
		}, logger)
		if err != nil {
			s.Close()
			return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitConfigError}
		}
		exec = sshExec
		logger.Info("remote runtime enabled", "address", sshExec.Address())
	}

	client, err := docker.NewClient(ctx, exec, docker.ClientConfig{
		Binary:         cfg.Runtime.Binary,
		CommandTimeout: cfg.Runtime.CommandTimeout,
	}, protection.NewGuard(cfg.Runtime.ProtectedPrefixes...), logger)
	if err != nil {
		s.Close()
		if sshExec != nil {
			sshExec.Close()
		}
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitRuntimeError}
	}

	composeClient := docker.NewComposeClient(exec, docker.ComposeConfig{
		Command: cfg.Runtime.ComposeCommand,
		Timeout: cfg.Runtime.ComposeTimeout,
	}, logger)

	orchestrator := docker.NewOrchestrator(s, composeClient,
		docker.NewWorkspace(cfg.Projects.BaseDir, cfg.Projects.RuntimeDir),
		docker.OrchestratorConfig{
			Proxy: traefik.InjectOptions{
				Network:          cfg.Proxy.Network,
				Entrypoint:       cfg.Proxy.Entrypoint,
				EnableTLS:        cfg.Proxy.EnableTLS,
				SecureEntrypoint: cfg.Proxy.SecureEntrypoint,
				CertResolver:     cfg.Proxy.CertResolver,
			},
			AutoStart:        cfg.Projects.AutoStart,
			StrictValidation: cfg.Projects.StrictValidation,
		}, logger)

	handler := api.NewHandler(api.Config{
		Store:        s,
		Orchestrator: orchestrator,
		Containers:   client,
		APIToken:     cfg.Server.APIToken,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Server.APIToken == "" {
		logger.Warn("api_token not set, API is unauthenticated")
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		ssh:        sshExec,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{Op: "Start", Err: err, ExitCode: ExitHTTPServerError}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.ssh != nil {
		if err := s.ssh.Close(); err != nil {
			s.logger.Error("SSH connection close error", "error", err)
		}
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
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
