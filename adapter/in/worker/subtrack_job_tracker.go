// Package worker hosts the background sync worker and its job registry.
package worker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"subtrack_server/core/domain"
)

// JobTracker is an injected, mutex-guarded registry of sync jobs. Jobs are
// process-lifetime only: a restart forgets them, which is acceptable because
// sync is idempotent and re-runnable.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*domain.SyncJob
	log  zerolog.Logger
}

// NewJobTracker creates a new JobTracker.
func NewJobTracker(log zerolog.Logger) *JobTracker {
	return &JobTracker{
		jobs: make(map[string]*domain.SyncJob),
		log:  log.With().Str("component", "job-tracker").Logger(),
	}
}

// CreateJob registers a new running job and returns its ID.
func (t *JobTracker) CreateJob(jobType domain.JobType) string {
	job := &domain.SyncJob{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    domain.JobRunning,
		StartedAt: time.Now(),
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()

	t.log.Info().Str("job_id", job.ID).Str("type", string(jobType)).Msg("job created")
	return job.ID
}

// UpdateProgress overwrites the job's progress snapshot wholesale. Updates to
// terminal jobs are ignored.
func (t *JobTracker) UpdateProgress(id string, p domain.JobProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok || job.Terminal() {
		return
	}
	job.Progress = p
}

// Complete transitions a running job to completed with its result payload.
func (t *JobTracker) Complete(id string, result *domain.SyncResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok || job.Terminal() {
		return
	}

	now := time.Now()
	job.Status = domain.JobCompleted
	job.Result = result
	job.CompletedAt = &now

	t.log.Info().
		Str("job_id", id).
		Int("stored", result.Stored).
		Int("duplicates", result.Duplicates).
		Int("errors", result.Errors).
		Msg("job completed")
}

// Fail transitions a running job to failed with an error message.
func (t *JobTracker) Fail(id string, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok || job.Terminal() {
		return
	}

	now := time.Now()
	job.Status = domain.JobFailed
	job.Error = errMsg
	job.CompletedAt = &now

	t.log.Warn().Str("job_id", id).Str("error", errMsg).Msg("job failed")
}

// GetJob returns a copy of the job snapshot, or nil if unknown. Copying keeps
// callers from observing later mutations mid-read.
func (t *JobTracker) GetJob(id string) *domain.SyncJob {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}
