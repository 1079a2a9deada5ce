package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"trim-it/internal/domain"
)

// ErrJobExists is returned when a job id is registered twice.
var ErrJobExists = errors.New("job already registered")

// ErrNoRunningJob is returned when cancel targets an unknown or finished job.
var ErrNoRunningJob = errors.New("no running job")

type entry struct {
	job    domain.Job
	cancel context.CancelFunc
}

// Manager tracks in-flight clip jobs keyed by id. Each job owns its own
// status and cancel handle; finished jobs are dropped.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*entry
	now  func() time.Time
}

// NewManager creates an empty job registry.
func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*entry),
		now:  time.Now,
	}
}

// Start registers a job in pending state with its cancel handle.
func (m *Manager) Start(jobID, source string, cancel context.CancelFunc) error {
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[jobID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, jobID)
	}
	m.jobs[jobID] = &entry{
		job: domain.Job{
			ID:        jobID,
			Status:    domain.JobStatusPending,
			Source:    source,
			StartedAt: m.now().UTC(),
		},
		cancel: cancel,
	}
	return nil
}

// Transition validates and applies a state transition for one job.
func (m *Manager) Transition(jobID string, status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRunningJob, jobID)
	}
	if status == e.job.Status {
		return nil
	}
	if !isValidTransition(e.job.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", e.job.Status, status)
	}

	e.job.Status = status
	return nil
}

// Get returns a snapshot of one registered job.
func (m *Manager) Get(jobID string) (domain.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return domain.Job{}, false
	}
	return e.job, true
}

// Active returns snapshots of all registered jobs, oldest first.
func (m *Manager) Active() []domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Cancel fires the job's cancel handle and marks it cancelled.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	e, ok := m.jobs[jobID]
	if !ok || e.job.Status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoRunningJob, jobID)
	}
	e.job.Status = domain.JobStatusCancelled
	cancel := e.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// CancelAll cancels every running job and returns how many were signalled.
func (m *Manager) CancelAll() int {
	count := 0
	for _, job := range m.Active() {
		if err := m.Cancel(job.ID); err == nil {
			count++
		}
	}
	return count
}

// Finish drops the job and releases its cancel handle.
func (m *Manager) Finish(jobID string) {
	m.mu.Lock()
	e, ok := m.jobs[jobID]
	delete(m.jobs, jobID)
	m.mu.Unlock()

	if ok && e.cancel != nil {
		e.cancel()
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusPending:
		return to == domain.JobStatusResolving || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusResolving:
		return to == domain.JobStatusDownloading || to == domain.JobStatusTrimming ||
			to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusDownloading:
		return to == domain.JobStatusTrimming || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusTrimming:
		return to == domain.JobStatusDone || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	default:
		return false
	}
}
