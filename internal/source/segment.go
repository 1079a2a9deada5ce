package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"trim-it/internal/domain"
	"trim-it/internal/logging"
	"trim-it/internal/process"
)

const ytDLP = "yt-dlp"

// Window is the requested clip range in source time.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// Segment is a pre-trimmed download living in its own directory.
type Segment struct {
	Dir  string
	Path string
}

// SegmentFetcher downloads only the requested window of a hosted video
// through yt-dlp.
type SegmentFetcher struct {
	runner   process.Runner
	tempDir  string
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// NewSegmentFetcher creates a fetcher writing into tempDir.
func NewSegmentFetcher(tempDir string, logger *slog.Logger) *SegmentFetcher {
	return &SegmentFetcher{
		runner:   process.ExecRunner{},
		tempDir:  tempDir,
		lookPath: exec.LookPath,
		logger:   logging.WithComponent(logger, "segments"),
	}
}

// Available reports whether yt-dlp can be found on PATH.
func (f *SegmentFetcher) Available() bool {
	_, err := f.lookPath(ytDLP)
	return err == nil
}

// Fetch downloads [window.Start, window.End] of rawURL. The directory is
// removed on failure; on success the caller owns Segment.Dir.
func (f *SegmentFetcher) Fetch(ctx context.Context, rawURL string, window Window) (Segment, error) {
	if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
		return Segment{}, fmt.Errorf("%w: create %s: %v", domain.ErrDisk, f.tempDir, err)
	}
	dir, err := os.MkdirTemp(f.tempDir, "trimit-segment-*")
	if err != nil {
		return Segment{}, fmt.Errorf("%w: create segment dir: %v", domain.ErrDisk, err)
	}

	args := SegmentArgs(rawURL, filepath.Join(dir, "video.%(ext)s"), window)
	f.logger.Info("fetching segment", "url", logging.SanitizeURL(rawURL), "start", window.Start, "end", window.End)
	log, err := f.runner.Run(ctx, ytDLP, args...)
	if err != nil {
		_ = removeDir(dir)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Segment{}, ctxErr
		}
		if errors.Is(err, domain.ErrSubprocessNotFound) {
			return Segment{}, err
		}
		return Segment{}, fmt.Errorf("%w: yt-dlp exited %d: %s", domain.ErrNetwork, log.ExitCode, process.Truncate(log.Stderr, 500))
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "video.*"))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			return Segment{Dir: dir, Path: m}, nil
		}
	}
	_ = removeDir(dir)
	return Segment{}, fmt.Errorf("%w: yt-dlp produced no output file", domain.ErrNetwork)
}

// SegmentArgs builds the yt-dlp argument list for one window.
func SegmentArgs(rawURL, outputTemplate string, window Window) []string {
	sections := "*" + seconds(window.Start) + "-" + seconds(window.End)
	return []string{
		"-f", "best[ext=mp4]/best",
		"--download-sections", sections,
		"--force-keyframes-at-cuts",
		"--concurrent-fragments", "4",
		"--no-mtime",
		"-o", outputTemplate,
		rawURL,
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// NewSegmentFetcherForTests creates a fetcher with injected dependencies.
func NewSegmentFetcherForTests(runner process.Runner, tempDir string, lookPath func(string) (string, error)) *SegmentFetcher {
	f := NewSegmentFetcher(tempDir, nil)
	f.runner = runner
	f.lookPath = lookPath
	return f
}
