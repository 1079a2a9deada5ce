// Package pipeline runs one clip request end to end: readiness gate,
// request validation, source resolution and ffmpeg execution.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"trim-it/internal/clip"
	"trim-it/internal/domain"
	"trim-it/internal/jobs"
	"trim-it/internal/logging"
	"trim-it/internal/metrics"
	"trim-it/internal/process"
	"trim-it/internal/source"
	"trim-it/internal/toolchain"
	"trim-it/internal/transfer"
)

const (
	// SuccessPrefix starts every successful outcome string.
	SuccessPrefix = "Video trimmed successfully!"
	// ErrorPrefix starts every failed outcome string.
	ErrorPrefix = "Error: "
)

// Stage names the pipeline step that produced an error.
type Stage string

const (
	StageGate     Stage = "gate"
	StageValidate Stage = "validate"
	StageResolve  Stage = "resolve"
	StageDownload Stage = "download"
	StageExecute  Stage = "execute"
)

// Gate exposes the provisioner's read-only view.
type Gate interface {
	Status() domain.ToolStatus
	Tool() (toolchain.Tool, bool)
}

type resolver interface {
	Classify(raw string) (source.Kind, string, error)
	Resolve(ctx context.Context, raw string, window source.Window, onProgress transfer.ProgressFunc) (*source.Resolved, error)
}

type executor interface {
	Execute(ctx context.Context, req clip.Request) (clip.Result, error)
}

// Request is one trim request in wire form.
type Request struct {
	JobID  string `json:"jobId,omitempty"`
	Source string `json:"source"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Ratio  string `json:"ratio"`
}

// Result is a finished clip.
type Result struct {
	JobID      string   `json:"jobId"`
	OutputPath string   `json:"outputPath"`
	Notes      []string `json:"notes,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	JobID      string      `json:"jobId,omitempty"`
	Stage      Stage       `json:"stage"`
	Message    string      `json:"message"`
	CommandLog process.Log `json:"commandLog"`
	Err        error       `json:"-"`
}

// Error formats pipeline failures for logs.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Stage, e.Message, e.CommandLog.Command, e.CommandLog.ExitCode)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Pipeline runs clip jobs. Any number of Run calls may be in flight; they
// share only the gate.
type Pipeline struct {
	gate     Gate
	resolver resolver
	executor executor
	jobs     *jobs.Manager
	bus      *jobs.EventBus
	settings func() domain.Settings
	newID    func() string
	logger   *slog.Logger
}

// New wires a pipeline. settings is read at the start of every run.
func New(gate Gate, res resolver, exec executor, manager *jobs.Manager, bus *jobs.EventBus, settings func() domain.Settings, logger *slog.Logger) *Pipeline {
	if manager == nil {
		manager = jobs.NewManager()
	}
	return &Pipeline{
		gate:     gate,
		resolver: res,
		executor: exec,
		jobs:     manager,
		bus:      bus,
		settings: settings,
		newID:    uuid.NewString,
		logger:   logging.WithComponent(logger, "pipeline"),
	}
}

// Run executes one request. It returns *PipelineError on failure.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = p.newID()
	}
	logger := logging.WithJobID(p.logger, jobID)
	started := time.Now()

	status := p.gate.Status()
	tool, ready := p.gate.Tool()
	if !ready {
		metrics.ClipTotal.WithLabelValues("not_ready").Inc()
		perr := &PipelineError{
			JobID:   jobID,
			Stage:   StageGate,
			Message: fmt.Sprintf("%s (%s)", domain.ErrToolNotReady, status.Label()),
			Err:     fmt.Errorf("%w: %s", domain.ErrToolNotReady, status.State),
		}
		p.publishError(jobID, perr)
		return Result{}, perr
	}

	clipReq, err := parseRequest(req)
	if err != nil {
		metrics.ClipTotal.WithLabelValues("invalid").Inc()
		perr := &PipelineError{JobID: jobID, Stage: StageValidate, Message: err.Error(), Err: err}
		p.publishError(jobID, perr)
		return Result{}, perr
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.jobs.Start(jobID, clipReq.Source, cancel); err != nil {
		perr := &PipelineError{JobID: jobID, Stage: StageValidate, Message: err.Error(), Err: err}
		p.publishError(jobID, perr)
		return Result{}, perr
	}
	defer p.jobs.Finish(jobID)
	metrics.ClipsActive.Inc()
	defer metrics.ClipsActive.Dec()

	p.publishStatus(jobID, domain.JobStatusPending, "Queued")
	res, err := p.run(ctx, logger, jobID, tool, clipReq)

	outcome := "success"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = "cancelled"
	default:
		outcome = "failed"
	}
	metrics.ClipTotal.WithLabelValues(outcome).Inc()
	metrics.ClipDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	return res, err
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, jobID string, tool toolchain.Tool, req domain.ClipRequest) (Result, error) {
	p.transition(jobID, domain.JobStatusResolving, "Resolving source")
	kind, src, err := p.resolver.Classify(req.Source)
	if err != nil {
		return Result{}, p.fail(ctx, jobID, &PipelineError{Stage: StageResolve, Message: err.Error(), Err: err})
	}

	stage := StageResolve
	if kind.Remote() {
		stage = StageDownload
		p.transition(jobID, domain.JobStatusDownloading, "Downloading source")
	}
	window := source.Window{Start: req.Start, End: req.End}
	resolved, err := p.resolver.Resolve(ctx, src, window, func(written, total int64) {
		p.publishProgress(jobID, written, total)
	})
	if err != nil {
		return Result{}, p.fail(ctx, jobID, &PipelineError{Stage: stage, Message: err.Error(), Err: err})
	}
	defer func() {
		if err := resolved.Release(); err != nil {
			logger.Warn("failed to remove temporary source", "path", logging.SanitizePath(resolved.Path), "error", err)
		}
	}()
	for _, w := range resolved.Warnings {
		p.publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeLog, Message: "Warning: " + w})
	}

	p.transition(jobID, domain.JobStatusTrimming, "Trimming")
	settings := p.settings()
	out, err := p.executor.Execute(ctx, clip.Request{
		FFmpeg:     tool.FFmpeg,
		FFprobe:    tool.FFprobe,
		Input:      resolved.Path,
		Name:       resolved.Name,
		PreTrimmed: resolved.PreTrimmed,
		Start:      req.Start,
		End:        req.End,
		Ratio:      req.Ratio,
		OutputDir:  settings.OutputDir,
		Preset:     settings.EncodePreset,
		CRF:        settings.EffectiveCRF(),
	})
	if err != nil {
		perr := &PipelineError{Stage: StageExecute, Message: err.Error(), Err: err}
		var cmdErr *clip.CommandError
		if errors.As(err, &cmdErr) {
			perr.CommandLog = cmdErr.Log
			p.publishLog(jobID, cmdErr.Log)
		}
		return Result{}, p.fail(ctx, jobID, perr)
	}
	p.publishLog(jobID, out.Log)

	result := Result{
		JobID:      jobID,
		OutputPath: out.OutputPath,
		Notes:      out.Notes,
		Warnings:   resolved.Warnings,
	}
	if err := p.jobs.Transition(jobID, domain.JobStatusDone); err != nil {
		logger.Warn("job state transition rejected", "error", err)
	}
	p.publish(jobs.Event{
		JobID:      jobID,
		Type:       jobs.EventTypeResult,
		Status:     domain.JobStatusDone,
		Message:    FormatOutcome(result, nil),
		OutputPath: out.OutputPath,
	})
	logger.Info("clip written", "output", logging.SanitizePath(out.OutputPath), "source_kind", kind)
	return result, nil
}

// Cancel stops one in-flight job.
func (p *Pipeline) Cancel(jobID string) error {
	return p.jobs.Cancel(jobID)
}

// CancelAll stops every in-flight job.
func (p *Pipeline) CancelAll() int {
	return p.jobs.CancelAll()
}

// Active lists in-flight jobs, oldest first.
func (p *Pipeline) Active() []domain.Job {
	return p.jobs.Active()
}

// fail marks the job failed or cancelled and publishes the error.
func (p *Pipeline) fail(ctx context.Context, jobID string, perr *PipelineError) error {
	perr.JobID = jobID
	status := domain.JobStatusFailed
	if ctx.Err() != nil {
		status = domain.JobStatusCancelled
		perr.Message = "cancelled"
		perr.Err = errors.Join(ctx.Err(), perr.Err)
	}
	if err := p.jobs.Transition(jobID, status); err != nil {
		p.logger.Debug("job state transition rejected", "job_id", jobID, "error", err)
	}
	p.logger.Warn("clip job failed", "job_id", jobID, "stage", perr.Stage, "error", perr.Err)
	p.publishError(jobID, perr)
	return perr
}

func (p *Pipeline) transition(jobID string, status domain.JobStatus, message string) {
	if err := p.jobs.Transition(jobID, status); err != nil {
		p.logger.Debug("job state transition rejected", "job_id", jobID, "error", err)
		return
	}
	p.publishStatus(jobID, status, message)
}

func (p *Pipeline) publishStatus(jobID string, status domain.JobStatus, message string) {
	p.publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeStatus, Status: status, Message: message})
}

func (p *Pipeline) publishProgress(jobID string, written, total int64) {
	pct := transfer.Percent(written, total)
	message := fmt.Sprintf("Downloading source... %d MB", written>>20)
	if pct >= 0 {
		message = fmt.Sprintf("Downloading source... %d%%", pct)
	}
	p.publish(jobs.Event{JobID: jobID, Type: jobs.EventTypeProgress, Progress: pct, Message: message})
}

func (p *Pipeline) publishLog(jobID string, log process.Log) {
	if log.Command == "" {
		return
	}
	p.publish(jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeLog,
		Command:  log.Command,
		Args:     log.Args,
		ExitCode: log.ExitCode,
		Stderr:   process.Truncate(log.Stderr, 2000),
	})
}

func (p *Pipeline) publishError(jobID string, perr *PipelineError) {
	status := domain.JobStatusFailed
	if errors.Is(perr.Err, context.Canceled) {
		status = domain.JobStatusCancelled
	}
	p.publish(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeError,
		Status:  status,
		Message: FormatOutcome(Result{}, perr),
	})
}

func (p *Pipeline) publish(event jobs.Event) {
	if p.bus == nil {
		return
	}
	event.Topic = jobs.TopicClip
	p.bus.Publish(event)
}

// parseRequest turns wire strings into a validated ClipRequest.
func parseRequest(req Request) (domain.ClipRequest, error) {
	start, err := clip.ParseTimecode(req.Start)
	if err != nil {
		return domain.ClipRequest{}, fmt.Errorf("%w: start: %v", domain.ErrInvalidTimeRange, err)
	}
	end, err := clip.ParseTimecode(req.End)
	if err != nil {
		return domain.ClipRequest{}, fmt.Errorf("%w: end: %v", domain.ErrInvalidTimeRange, err)
	}
	ratio, err := domain.ParseRatio(req.Ratio)
	if err != nil {
		return domain.ClipRequest{}, err
	}
	clipReq := domain.ClipRequest{Source: req.Source, Start: start, End: end, Ratio: ratio}
	if err := clipReq.Validate(); err != nil {
		return domain.ClipRequest{}, err
	}
	return clipReq, nil
}

// FormatOutcome renders a run outcome as the single user-facing string.
func FormatOutcome(res Result, err error) string {
	if err != nil {
		var perr *PipelineError
		if errors.As(err, &perr) {
			return ErrorPrefix + perr.Message
		}
		return ErrorPrefix + err.Error()
	}

	var b strings.Builder
	b.WriteString(SuccessPrefix)
	b.WriteString(" Saved to: ")
	b.WriteString(res.OutputPath)
	for _, note := range res.Notes {
		b.WriteString("\nNote: ")
		b.WriteString(note)
	}
	for _, warning := range res.Warnings {
		b.WriteString("\nWarning: ")
		b.WriteString(warning)
	}
	return b.String()
}

// NewForTests wires a pipeline with a deterministic id source.
func NewForTests(gate Gate, res resolver, exec executor, bus *jobs.EventBus, settings domain.Settings, newID func() string) *Pipeline {
	p := New(gate, res, exec, jobs.NewManager(), bus, func() domain.Settings { return settings }, nil)
	if newID != nil {
		p.newID = newID
	}
	return p
}
