// Package bootstrap wires trim-it's components into one service graph
// shared by the desktop, HTTP and CLI hosts.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"trim-it/internal/clip"
	"trim-it/internal/config"
	"trim-it/internal/diagnostics"
	"trim-it/internal/domain"
	"trim-it/internal/jobs"
	"trim-it/internal/logging"
	"trim-it/internal/pipeline"
	"trim-it/internal/process"
	"trim-it/internal/source"
	"trim-it/internal/toolchain"
	"trim-it/internal/transfer"
)

const eventHistory = 1000

// Options configures NewServices.
type Options struct {
	// SettingsPath overrides the settings file; empty uses the default.
	SettingsPath string
	// LogOutput receives structured logs; nil means stderr.
	LogOutput io.Writer
}

// Services is the process-wide component graph.
// DataDir and TempDir are bound at construction; OutputDir and encoder
// settings are read again for every clip.
type Services struct {
	Store       config.Store
	Logger      *slog.Logger
	Bus         *jobs.EventBus
	Jobs        *jobs.Manager
	Locator     *toolchain.Locator
	Provisioner *toolchain.Provisioner
	Resolver    *source.Resolver
	Executor    *clip.Executor
	Pipeline    *pipeline.Pipeline
	Checker     *diagnostics.Checker

	fixer *fixer

	mu          sync.RWMutex
	settings    domain.Settings
	diagnostics domain.DiagnosticReport
}

// NewServices loads settings and builds every component.
func NewServices(opts Options) (*Services, error) {
	path := opts.SettingsPath
	if path == "" {
		path = config.DefaultPath()
	}
	store := config.NewViperStore(path)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return NewServicesWithStore(store, settings, opts.LogOutput), nil
}

// NewServicesWithStore builds components around already loaded settings.
func NewServicesWithStore(store config.Store, settings domain.Settings, logOutput io.Writer) *Services {
	settings = config.Normalize(settings)
	logger := logging.NewLogger(settings.LogLevel, settings.LogFormat, logOutput)

	bus := jobs.NewEventBus(eventHistory)
	manager := jobs.NewManager()
	client := transfer.NewClient()

	locator := toolchain.NewLocator(config.BinDir(settings))
	installer := toolchain.NewInstaller(client, config.BinDir(settings), config.DownloadsDir(settings), logger)
	provisioner := toolchain.NewProvisioner(locator, installer, bus, logger)

	downloader := source.NewDownloader(client, settings.TempDir, logger)
	segments := source.NewSegmentFetcher(settings.TempDir, logger)
	resolver := source.NewResolver(downloader, segments, logger)
	executor := clip.NewExecutor(process.ExecRunner{}, logger)

	s := &Services{
		Store:       store,
		Logger:      logger,
		Bus:         bus,
		Jobs:        manager,
		Locator:     locator,
		Provisioner: provisioner,
		Resolver:    resolver,
		Executor:    executor,
		Checker:     diagnostics.NewChecker(locator.Locate),
		fixer:       newFixer(process.ExecRunner{}, logger),
		settings:    settings,
	}
	s.Pipeline = pipeline.New(provisioner, resolver, executor, manager, bus, s.Settings, logger)
	s.diagnostics = s.Checker.Run(settings)
	return s
}

// Settings returns the current settings snapshot.
func (s *Services) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// OverrideSettings replaces the in-memory settings without persisting them.
func (s *Services) OverrideSettings(settings domain.Settings) {
	s.mu.Lock()
	s.settings = config.Normalize(settings)
	s.mu.Unlock()
}

// ReloadSettings re-reads the store.
func (s *Services) ReloadSettings() (domain.Settings, error) {
	settings, err := s.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (s *Services) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := s.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.mu.Lock()
	s.settings = normalized
	s.mu.Unlock()
	s.RunDiagnostics()
	return normalized, nil
}

// Diagnostics returns the latest cached report.
func (s *Services) Diagnostics() domain.DiagnosticReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diagnostics
}

// RunDiagnostics re-runs every check against the current settings.
func (s *Services) RunDiagnostics() domain.DiagnosticReport {
	report := s.Checker.Run(s.Settings())
	s.mu.Lock()
	s.diagnostics = report
	s.mu.Unlock()
	return report
}

// Trim runs one clip request synchronously and renders the outcome.
func (s *Services) Trim(ctx context.Context, req pipeline.Request) (pipeline.Result, string, error) {
	res, err := s.Pipeline.Run(ctx, req)
	return res, pipeline.FormatOutcome(res, err), err
}

// Close cancels running clips and aborts provisioning.
func (s *Services) Close() {
	if n := s.Pipeline.CancelAll(); n > 0 {
		s.Logger.Info("cancelled running clips on shutdown", "count", n)
	}
	s.Provisioner.Close()
}
