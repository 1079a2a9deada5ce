// Package api exposes provisioning, clip jobs and diagnostics over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"trim-it/internal/domain"
	"trim-it/internal/jobs"
	"trim-it/internal/logging"
	"trim-it/internal/pipeline"
)

// Toolchain is the provisioner surface the API drives.
type Toolchain interface {
	Ensure() <-chan struct{}
	Retry() <-chan struct{}
	Status() domain.ToolStatus
}

// Clipper runs and tracks clip jobs.
type Clipper interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	Cancel(jobID string) error
	Active() []domain.Job
}

// Doctor produces environment diagnostics.
type Doctor interface {
	RunDiagnostics() domain.DiagnosticReport
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr      string
	Toolchain Toolchain
	Clipper   Clipper
	Doctor    Doctor
	Bus       *jobs.EventBus
	Logger    *slog.Logger
	StartTime time.Time
	// NewJobID assigns ids to clip requests; nil uses uuid.
	NewJobID func() string
	// BackgroundCtx parents async clip jobs; nil uses context.Background.
	BackgroundCtx context.Context
}

func NewServer(cfg ServerConfig) *Server {
	cfg.Logger = logging.WithComponent(cfg.Logger, "api")
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
