package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"trim-it/internal/config"
	"trim-it/internal/domain"
	"trim-it/internal/logging"
	"trim-it/internal/process"
)

const installCommandTimeout = 15 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// fixer runs package-manager remediations for optional tools.
type fixer struct {
	runner   process.Runner
	lookPath func(string) (string, error)
	goos     string
	logger   *slog.Logger
}

func newFixer(runner process.Runner, logger *slog.Logger) *fixer {
	return &fixer{
		runner:   runner,
		lookPath: exec.LookPath,
		goos:     goruntime.GOOS,
		logger:   logging.WithComponent(logger, "diagnostics-fix"),
	}
}

// FixDiagnostic applies a remediation for one failed diagnostic item and
// returns the refreshed report. The report is returned even on error.
func (s *Services) FixDiagnostic(ctx context.Context, itemID string) (domain.DiagnosticReport, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return s.Diagnostics(), fmt.Errorf("diagnostic item id is required")
	}

	settings := s.Settings()
	var fixErr error

	switch id {
	case "tool_ffmpeg", "tool_ffprobe":
		fixErr = s.reprovision(ctx)
	case "tool_yt-dlp":
		fixErr = s.fixer.installYTDLP(ctx)
	case "output_dir", "temp_dir", "data_dir":
		var changed bool
		settings, changed, fixErr = fixDirectory(settings, id)
		if changed {
			if _, err := s.SaveSettings(settings); err != nil {
				return s.RunDiagnostics(), fmt.Errorf("save settings after fix: %w", err)
			}
		}
	default:
		return s.Diagnostics(), fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	report := s.RunDiagnostics()
	return report, fixErr
}

// reprovision re-runs the ffmpeg state machine and waits for it to settle.
func (s *Services) reprovision(ctx context.Context) error {
	done := s.Provisioner.Reprovision()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	status := s.Provisioner.Status()
	if status.State != domain.ToolStateReady {
		return errors.New(status.Label())
	}
	return nil
}

// fixDirectory creates the directory behind id, falling back to the
// default location when the setting is empty.
func fixDirectory(settings domain.Settings, id string) (domain.Settings, bool, error) {
	defaults := config.DefaultSettings()
	target, fallback := &settings.OutputDir, defaults.OutputDir
	switch id {
	case "temp_dir":
		target, fallback = &settings.TempDir, defaults.TempDir
	case "data_dir":
		target, fallback = &settings.DataDir, defaults.DataDir
	}

	changed := false
	if strings.TrimSpace(*target) == "" {
		*target = fallback
		changed = true
	}
	if err := os.MkdirAll(*target, 0o755); err != nil {
		return settings, changed, fmt.Errorf("%w: create %s: %v", domain.ErrDisk, *target, err)
	}
	return settings, changed, nil
}

func ytDLPInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{{"winget", "install", "--id", "yt-dlp.yt-dlp", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
			{manager: "choco", commands: [][]string{{"choco", "install", "yt-dlp", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "yt-dlp"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "yt-dlp"}}},
			{manager: "pipx", commands: [][]string{{"pipx", "install", "yt-dlp"}}},
		}
	default:
		return []installOption{
			{manager: "pipx", commands: [][]string{{"pipx", "install", "yt-dlp"}}},
			{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "yt-dlp"}}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "yt-dlp"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "yt-dlp"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "yt-dlp"}}},
		}
	}
}

func (f *fixer) installYTDLP(ctx context.Context) error {
	if _, err := f.lookPath("yt-dlp"); err == nil {
		return nil
	}
	if err := f.runFirstSuccessfulInstall(ctx, ytDLPInstallOptions(f.goos)); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	if _, err := f.lookPath("yt-dlp"); err != nil {
		return fmt.Errorf("verify yt-dlp on PATH: %w", err)
	}
	return nil
}

func (f *fixer) runFirstSuccessfulInstall(ctx context.Context, options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", f.goos)
	}

	failures := make([]string, 0, len(options))
	for _, option := range options {
		if _, err := f.lookPath(option.manager); err != nil {
			continue
		}
		err := f.runInstallCommands(ctx, option.commands)
		if err == nil {
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if len(failures) == 0 {
		return fmt.Errorf("no supported package manager found for %s", f.goos)
	}
	return errors.New(strings.Join(failures, " | "))
}

func (f *fixer) runInstallCommands(ctx context.Context, commands [][]string) error {
	for _, command := range commands {
		if err := f.runCommand(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

func (f *fixer) runCommand(ctx context.Context, command []string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	f.logger.Info("running install command", "command", strings.Join(command, " "))
	log, err := f.runner.Run(ctx, command[0], command[1:]...)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", log.String(), installCommandTimeout)
	}

	tail := strings.TrimSpace(process.Truncate(log.Stderr, 500))
	if tail == "" {
		return fmt.Errorf("%s failed: %w", log.String(), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", log.String(), err, tail)
}
