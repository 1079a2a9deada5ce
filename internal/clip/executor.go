// Package clip cuts a time window out of a local media file with ffmpeg,
// optionally cropping it to a fixed aspect ratio.
package clip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trim-it/internal/domain"
	"trim-it/internal/logging"
	"trim-it/internal/process"
)

var fatalPatterns = []string{
	"Conversion failed!",
	"Error opening output",
	"Invalid argument",
	"does not contain any stream",
}

// Request is one clip to cut.
type Request struct {
	FFmpeg  string
	FFprobe string

	Input      string
	Name       string
	PreTrimmed bool

	Start time.Duration
	End   time.Duration
	Ratio domain.Ratio

	OutputDir string
	Preset    string
	CRF       int
}

// Result describes a written clip.
type Result struct {
	OutputPath string
	Notes      []string
	Media      MediaInfo
	Log        process.Log
}

// CommandError carries the log of a failed ffmpeg invocation.
type CommandError struct {
	Log process.Log
	Err error
}

func (e *CommandError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Executor runs ffmpeg for clip requests. It is safe for concurrent use.
type Executor struct {
	runner process.Runner
	prober *Prober
	now    func() time.Time
	logger *slog.Logger
}

// NewExecutor creates an executor on top of runner.
func NewExecutor(runner process.Runner, logger *slog.Logger) *Executor {
	if runner == nil {
		runner = process.ExecRunner{}
	}
	return &Executor{
		runner: runner,
		prober: NewProber(runner),
		now:    time.Now,
		logger: logging.WithComponent(logger, "executor"),
	}
}

// Execute cuts req.Start..req.End out of req.Input into a new file in
// req.OutputDir. It blocks until ffmpeg exits; cancelling ctx kills it.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	if req.Start < 0 || req.End <= req.Start {
		return Result{}, fmt.Errorf("%w: start %s must be before end %s",
			domain.ErrInvalidTimeRange, FormatTimecode(req.Start), FormatTimecode(req.End))
	}
	ratio := req.Ratio
	if ratio == "" {
		ratio = domain.RatioOriginal
	}

	input, err := filepath.Abs(req.Input)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
	}
	outputDir, err := filepath.Abs(req.OutputDir)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrDisk, err)
	}

	media, probeErr := e.prober.Probe(ctx, req.FFprobe, req.FFmpeg, input)
	if probeErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if errors.Is(probeErr, domain.ErrSubprocessNotFound) || ratio != domain.RatioOriginal {
			return Result{}, probeErr
		}
		e.logger.Warn("probe failed, re-encoding without media info", "input", logging.SanitizePath(input), "error", probeErr)
	}

	plan := Plan{
		Input:    input,
		Start:    req.Start,
		Duration: req.End - req.Start,
		Seek:     !req.PreTrimmed,
		Copy:     probeErr == nil && ratio == domain.RatioOriginal && media.CopyCompatible(),
		Preset:   req.Preset,
		CRF:      req.CRF,
	}
	var notes []string
	if plan.Seek && media.Duration > 0 {
		notes = clampWindow(&plan, req.End, media.Duration)
	}
	if ratio != domain.RatioOriginal {
		box, err := CropBox(media.Width, media.Height, ratio)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", domain.ErrSubprocessNonZero, err)
		}
		plan.Crop = &box
	}

	output, err := ReserveOutput(outputDir, OutputName(req.Name, e.now()))
	if err != nil {
		return Result{}, err
	}
	plan.Output = output

	args := BuildArgs(plan)
	e.logger.Info("running ffmpeg", "input", logging.SanitizePath(input), "output", logging.SanitizePath(output),
		"copy", plan.Copy, "ratio", ratio)
	log, runErr := e.runner.Run(ctx, req.FFmpeg, args...)
	if err := checkRun(ctx, log, runErr, output); err != nil {
		_ = os.Remove(output)
		return Result{}, err
	}

	return Result{OutputPath: output, Notes: notes, Media: media, Log: log}, nil
}

// clampWindow trims the plan to the probed duration and returns notes for
// the user. A start past the end is left alone and only noted.
func clampWindow(plan *Plan, end, duration time.Duration) []string {
	if plan.Start >= duration {
		return []string{fmt.Sprintf("start %s is at or beyond media duration %s",
			FormatTimecode(plan.Start), FormatTimecode(duration))}
	}
	if end > duration {
		plan.Duration = duration - plan.Start
		return []string{fmt.Sprintf("end clamped to media duration %s", FormatTimecode(duration))}
	}
	return nil
}

func checkRun(ctx context.Context, log process.Log, runErr error, output string) error {
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(runErr, domain.ErrSubprocessNotFound) {
			return &CommandError{Log: log, Err: runErr}
		}
		return &CommandError{Log: log, Err: fmt.Errorf("%w: ffmpeg failed: %s", domain.ErrSubprocessNonZero, diagnostic(log.Stderr))}
	}
	for _, pattern := range fatalPatterns {
		if strings.Contains(log.Stderr, pattern) {
			return &CommandError{Log: log, Err: fmt.Errorf("%w: ffmpeg failed: %s", domain.ErrSubprocessNonZero, diagnostic(log.Stderr))}
		}
	}
	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return &CommandError{Log: log, Err: fmt.Errorf("%w: ffmpeg produced an empty output", domain.ErrSubprocessNonZero)}
	}
	return nil
}

// diagnostic picks the error lines out of ffmpeg stderr.
func diagnostic(stderr string) string {
	var lines []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "invalid") ||
			strings.Contains(line, "Conversion failed!") || strings.Contains(line, "does not contain any stream") ||
			strings.Contains(lower, "no such file") {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return process.Truncate(strings.TrimSpace(stderr), 500)
	}
	return process.Truncate(strings.Join(lines, "; "), 500)
}

// NewExecutorForTests creates an executor with a fixed clock.
func NewExecutorForTests(runner process.Runner, now func() time.Time) *Executor {
	e := NewExecutor(runner, nil)
	e.now = now
	return e
}
