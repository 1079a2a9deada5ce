package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trim-it/internal/domain"
	"trim-it/internal/jobs"
	"trim-it/internal/logging"
	"trim-it/internal/metrics"
)

const defaultHeartbeat = 5 * time.Second

type locator interface {
	Locate() (Tool, bool)
}

type installer interface {
	Download(ctx context.Context, onProgress func(percent int)) ([]Archive, error)
	Install(ctx context.Context, archives []Archive) error
	Verify(ctx context.Context, tool Tool) error
}

// Provisioner owns the process-wide ffmpeg status. At most one
// provisioning run is in flight; concurrent callers share it.
type Provisioner struct {
	locator   locator
	installer installer
	bus       *jobs.EventBus
	logger    *slog.Logger
	heartbeat time.Duration

	mu        sync.Mutex
	status    domain.ToolStatus
	tool      Tool
	done      chan struct{}
	cancelRun context.CancelFunc
	runs      int
}

// NewProvisioner creates a provisioner in the unknown state.
func NewProvisioner(loc locator, inst installer, bus *jobs.EventBus, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		locator:   loc,
		installer: inst,
		bus:       bus,
		logger:    logging.WithComponent(logger, "provisioner"),
		heartbeat: defaultHeartbeat,
		status:    domain.ToolStatus{State: domain.ToolStateUnknown, Progress: -1},
	}
}

// Ensure makes sure a provisioning run has happened. It never blocks.
// The returned channel closes once the status is ready or failed.
// A settled status is re-emitted; failed stays failed until Retry.
func (p *Provisioner) Ensure() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return p.done
	}
	if p.status.Terminal() {
		p.publishLocked()
		return closedChan()
	}
	return p.startLocked()
}

// Retry restarts provisioning after a failure.
func (p *Provisioner) Retry() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return p.done
	}
	if p.status.State == domain.ToolStateReady {
		p.publishLocked()
		return closedChan()
	}
	return p.startLocked()
}

// Reprovision re-runs detection and installation even when ready.
func (p *Provisioner) Reprovision() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return p.done
	}
	return p.startLocked()
}

// Wait blocks until the current run settles, starting one if the status
// is still unknown. It does not re-emit a settled status.
func (p *Provisioner) Wait(ctx context.Context) (domain.ToolStatus, error) {
	p.mu.Lock()
	var ch <-chan struct{}
	switch {
	case p.done != nil:
		ch = p.done
	case p.status.Terminal():
		status := p.status
		p.mu.Unlock()
		return status, nil
	default:
		ch = p.startLocked()
	}
	p.mu.Unlock()

	select {
	case <-ch:
		return p.Status(), nil
	case <-ctx.Done():
		return p.Status(), ctx.Err()
	}
}

// Status returns a snapshot of the current status.
func (p *Provisioner) Status() domain.ToolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Tool returns the usable install; ok is false unless the status is ready.
func (p *Provisioner) Tool() (Tool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.State != domain.ToolStateReady {
		return Tool{}, false
	}
	return p.tool, true
}

// Runs reports how many provisioning runs have been started.
func (p *Provisioner) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

// Close aborts any in-flight run. The run settles as failed with
// ToolFailureCancelled; a later Ensure, Retry or Reprovision starts afresh.
func (p *Provisioner) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelRun != nil {
		p.cancelRun()
	}
}

// startLocked moves to checking and launches the single run goroutine.
func (p *Provisioner) startLocked() <-chan struct{} {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.done = done
	p.cancelRun = cancel
	p.runs++
	p.transitionLocked(domain.ToolStatus{State: domain.ToolStateChecking, Progress: -1})
	go p.run(ctx, done)
	return done
}

func (p *Provisioner) run(ctx context.Context, done chan struct{}) {
	started := time.Now()
	tool, result, err := p.provision(ctx)

	p.mu.Lock()
	p.cancelRun()
	p.cancelRun = nil
	if err != nil {
		failure := domain.FailureOf(err)
		p.tool = Tool{}
		p.transitionLocked(domain.ToolStatus{
			State:    domain.ToolStateFailed,
			Progress: -1,
			Failure:  failure,
			Reason:   err.Error(),
		})
		result = "failed_" + string(failure)
		p.logger.Error("ffmpeg provisioning failed", "failure", failure, "error", err)
	} else {
		p.tool = tool
		p.transitionLocked(domain.ToolStatus{State: domain.ToolStateReady, Progress: -1, Path: tool.FFmpeg})
		p.logger.Info("ffmpeg ready", "path", logging.SanitizePath(tool.FFmpeg), "ffprobe", tool.FFprobe != "")
	}
	p.done = nil
	p.mu.Unlock()

	metrics.ProvisionTotal.WithLabelValues(result).Inc()
	metrics.ProvisionDuration.Observe(time.Since(started).Seconds())
	close(done)
}

// provision performs checking, downloading and installing in order.
func (p *Provisioner) provision(ctx context.Context) (Tool, string, error) {
	if tool, ok := p.locator.Locate(); ok {
		err := p.installer.Verify(ctx, tool)
		if err == nil {
			return tool, "found", nil
		}
		p.logger.Warn("located ffmpeg failed verification, installing a fresh copy", "path", tool.FFmpeg, "error", err)
	}

	p.set(domain.ToolStatus{State: domain.ToolStateDownloading, Progress: -1})
	stop := p.startHeartbeat()
	archives, err := p.installer.Download(ctx, func(percent int) {
		p.set(domain.ToolStatus{State: domain.ToolStateDownloading, Progress: percent})
	})
	stop()
	if err != nil {
		return Tool{}, "", err
	}

	p.set(domain.ToolStatus{State: domain.ToolStateInstalling, Progress: -1})
	if err := p.installer.Install(ctx, archives); err != nil {
		return Tool{}, "", err
	}

	tool, ok := p.locator.Locate()
	if !ok {
		return Tool{}, "", fmt.Errorf("%w: ffmpeg not found after install", domain.ErrCorruptArchive)
	}
	if err := p.installer.Verify(ctx, tool); err != nil {
		return Tool{}, "", err
	}
	return tool, "installed", nil
}

// startHeartbeat re-emits the downloading status so observers never see
// long silent gaps when the server stalls.
func (p *Provisioner) startHeartbeat() (stop func()) {
	if p.heartbeat <= 0 {
		return func() {}
	}

	quit := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(p.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				p.mu.Lock()
				if p.status.State == domain.ToolStateDownloading {
					p.publishLocked()
				}
				p.mu.Unlock()
			}
		}
	}()

	return func() {
		close(quit)
		<-finished
	}
}

func (p *Provisioner) set(next domain.ToolStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitionLocked(next)
}

// transitionLocked validates and applies one edge, then publishes it.
func (p *Provisioner) transitionLocked(next domain.ToolStatus) {
	if !isValidToolTransition(p.status.State, next.State) {
		p.logger.Error("rejected tool status transition", "from", p.status.State, "to", next.State)
		return
	}
	if p.status == next {
		return
	}
	p.status = next
	p.publishLocked()
}

func (p *Provisioner) publishLocked() {
	if p.bus == nil {
		return
	}
	status := p.status
	p.bus.Publish(jobs.Event{
		Topic:    jobs.TopicToolStatus,
		Type:     jobs.EventTypeStatus,
		Message:  status.Label(),
		Tool:     &status,
		Progress: status.Progress,
	})
}

// isValidToolTransition enforces the provisioning state machine edges.
func isValidToolTransition(from, to domain.ToolState) bool {
	switch from {
	case domain.ToolStateUnknown:
		return to == domain.ToolStateChecking
	case domain.ToolStateChecking:
		return to == domain.ToolStateReady || to == domain.ToolStateDownloading || to == domain.ToolStateFailed
	case domain.ToolStateDownloading:
		return to == domain.ToolStateDownloading || to == domain.ToolStateInstalling || to == domain.ToolStateFailed
	case domain.ToolStateInstalling:
		return to == domain.ToolStateReady || to == domain.ToolStateFailed
	case domain.ToolStateReady, domain.ToolStateFailed:
		return to == domain.ToolStateChecking
	default:
		return false
	}
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// NewProvisionerForTests creates a provisioner with a custom heartbeat.
func NewProvisionerForTests(loc locator, inst installer, bus *jobs.EventBus, heartbeat time.Duration) *Provisioner {
	p := NewProvisioner(loc, inst, bus, nil)
	p.heartbeat = heartbeat
	return p
}
