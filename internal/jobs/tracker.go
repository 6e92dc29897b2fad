package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"whisper-desk/internal/domain"
)

// ErrJobAlreadyTracked is returned when a job id is started twice.
var ErrJobAlreadyTracked = errors.New("job already tracked")

// ErrUnknownJob is returned for job ids this process never started.
var ErrUnknownJob = errors.New("job is not tracked by this process")

type trackedJob struct {
	status domain.JobStatus
	done   chan struct{}
}

// Tracker follows the in-process lifecycle of running jobs. Several jobs may
// run at once; each moves Running to Completed or Failed exactly once.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*trackedJob
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*trackedJob)}
}

// Start registers jobID as Running.
func (t *Tracker) Start(jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[jobID]; ok {
		return fmt.Errorf("%w: %s", ErrJobAlreadyTracked, jobID)
	}
	t.jobs[jobID] = &trackedJob{status: domain.JobStatusRunning, done: make(chan struct{})}
	return nil
}

// Transition validates and applies a state change and releases waiters once
// the job is terminal.
func (t *Tracker) Transition(jobID string, status domain.JobStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if status == job.status {
		return nil
	}
	if !isValidTransition(job.status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", job.status, status)
	}

	job.status = status
	if status.IsTerminal() {
		close(job.done)
	}
	return nil
}

// Status returns the tracked status of jobID.
func (t *Tracker) Status(jobID string) (domain.JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return "", false
	}
	return job.status, true
}

// IsRunning reports whether jobID is tracked and not yet terminal.
func (t *Tracker) IsRunning(jobID string) bool {
	status, ok := t.Status(jobID)
	return ok && status == domain.JobStatusRunning
}

// Active returns the ids of running jobs in sorted order.
func (t *Tracker) Active() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.jobs))
	for id, job := range t.jobs {
		if job.status == domain.JobStatusRunning {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Wait blocks until jobID is terminal or ctx is done.
func (t *Tracker) Wait(ctx context.Context, jobID string) (domain.JobStatus, error) {
	t.mu.RLock()
	job, ok := t.jobs[jobID]
	t.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}

	select {
	case <-job.done:
		status, _ := t.Status(jobID)
		return status, nil
	case <-ctx.Done():
		return domain.JobStatusRunning, ctx.Err()
	}
}

// Forget drops a terminal job from the tracker. Running jobs are kept.
func (t *Tracker) Forget(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[jobID]; ok && job.status.IsTerminal() {
		delete(t.jobs, jobID)
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusRunning
	case domain.JobStatusRunning:
		return to == domain.JobStatusCompleted || to == domain.JobStatusFailed
	default:
		return false
	}
}
