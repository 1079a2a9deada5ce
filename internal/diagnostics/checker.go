package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"trim-it/internal/domain"
	"trim-it/internal/toolchain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	locate     func() (toolchain.Tool, bool)
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies. locate finds
// the ffmpeg install the provisioner would use.
func NewChecker(locate func() (toolchain.Tool, bool)) *Checker {
	return &Checker{
		locate:     locate,
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	tool, found := c.locate()
	items := []domain.DiagnosticItem{
		c.checkFFmpeg(tool, found),
		c.checkFFprobe(tool, found),
		c.checkYTDLP(),
		c.checkWritableDir("output_dir", "Output directory", settings.OutputDir,
			"Choose a writable directory for trimmed clips."),
		c.checkWritableDir("temp_dir", "Temporary directory", settings.TempDir,
			"Downloads are staged here; point temp_dir at a writable location with free space."),
		c.checkWritableDir("data_dir", "App data directory", settings.DataDir,
			"FFmpeg is installed under this directory; it must be writable."),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

func (c *Checker) checkFFmpeg(tool toolchain.Tool, found bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "tool_ffmpeg", Name: "ffmpeg"}
	if !found {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "FFmpeg was not found in the app data directory or on PATH."
		item.Hint = "Use the fix action (or `trimit ensure`) to download a static build automatically."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", tool.FFmpeg)
	return item
}

func (c *Checker) checkFFprobe(tool toolchain.Tool, found bool) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "tool_ffprobe", Name: "ffprobe"}
	if !found || tool.FFprobe == "" {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "ffprobe was not found; media info is read from ffmpeg output instead."
		item.Hint = "Reinstall FFmpeg with the fix action to get a matching ffprobe."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", tool.FFprobe)
	return item
}

// checkYTDLP is optional: only YouTube links need it.
func (c *Checker) checkYTDLP() domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: "tool_yt-dlp", Name: "yt-dlp"}
	path, err := c.lookPath("yt-dlp")
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "yt-dlp not found in PATH; YouTube links cannot be trimmed."
		item.Hint = "Install yt-dlp with your package manager or use the fix action."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{ID: id, Name: name}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = name + " is empty."
		item.Hint = hint
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = hint
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = hint
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	locate func() (toolchain.Tool, bool),
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		locate:     locate,
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
