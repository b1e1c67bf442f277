package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"subtrack_server/core/domain"
	syncservice "subtrack_server/core/service/sync"
)

// SyncWorker runs syncs on background goroutines so the triggering request
// can return a job ID immediately.
type SyncWorker struct {
	syncService *syncservice.Service
	tracker     *JobTracker
	timeout     time.Duration
	log         zerolog.Logger
}

// NewSyncWorker creates a new SyncWorker.
func NewSyncWorker(syncService *syncservice.Service, tracker *JobTracker, log zerolog.Logger) *SyncWorker {
	return &SyncWorker{
		syncService: syncService,
		tracker:     tracker,
		timeout:     30 * time.Minute,
		log:         log.With().Str("component", "sync-worker").Logger(),
	}
}

// Start kicks off a sync in the background and returns its job ID.
func (w *SyncWorker) Start(jobType domain.JobType, direction domain.SyncDirection) string {
	jobID := w.tracker.CreateJob(jobType)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		w.log.Info().
			Str("job_id", jobID).
			Str("type", string(jobType)).
			Str("direction", string(direction)).
			Msg("sync started")

		result, err := w.syncService.Run(ctx, jobType, direction, func(p domain.JobProgress) {
			w.tracker.UpdateProgress(jobID, p)
		})
		if err != nil {
			w.tracker.Fail(jobID, err.Error())
			return
		}
		w.tracker.Complete(jobID, result)
	}()

	return jobID
}
