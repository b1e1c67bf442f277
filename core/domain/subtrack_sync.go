package domain

import "time"

// =============================================================================
// Sync jobs - ephemeral, process-lifetime only
// =============================================================================

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type JobType string

const (
	JobSyncMetadata JobType = "sync.metadata"
	JobSyncFull     JobType = "sync.full"
)

// SyncDirection selects how the paginated listing walks the mailbox.
type SyncDirection string

const (
	// DirectionRecent discards any saved cursor and starts from the newest
	// message, saving the returned continuation cursor for later older walks.
	DirectionRecent SyncDirection = "recent"
	// DirectionOlder resumes from the saved cursor; with no cursor it behaves
	// like a fresh first page.
	DirectionOlder SyncDirection = "older"
)

// JobProgress is a point-in-time snapshot. It is overwritten wholesale on
// each update; callers include every field they want retained.
type JobProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Phase   string `json:"phase"`
}

// SyncResult reports final counts so partial progress stays legible even
// when individual chunks failed.
type SyncResult struct {
	Fetched    int     `json:"fetched"`
	Stored     int     `json:"stored"`
	Duplicates int     `json:"duplicates"`
	Errors     int     `json:"errors"`
	Seconds    float64 `json:"seconds"`
}

// SyncJob is the queryable handle for a background sync. Once status leaves
// JobRunning the job is terminal.
type SyncJob struct {
	ID          string      `json:"id"`
	Type        JobType     `json:"type"`
	Status      JobStatus   `json:"status"`
	Progress    JobProgress `json:"progress"`
	Result      *SyncResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *SyncJob) Terminal() bool {
	return j.Status != JobRunning
}

// =============================================================================
// Chunk retry strategy
// =============================================================================

const (
	// ChunkSize groups messages for commit and retry purposes.
	ChunkSize = 10
	// ChunkMaxAttempts bounds retries of a failing chunk.
	ChunkMaxAttempts = 3
	// InterChunkPause bounds request rate against the upstream API.
	InterChunkPause = 500 * time.Millisecond
	// RateLimitRetryDelay is the pause before the single retry of a
	// rate-limited item fetch.
	RateLimitRetryDelay = 1 * time.Second
)

// ChunkRetryDelays holds the backoff before the 2nd and 3rd chunk attempts.
var ChunkRetryDelays = []time.Duration{
	2 * time.Second,
	4 * time.Second,
}

// ChunkRetryDelay returns the backoff to sleep before retrying a chunk that
// has already failed attempt (1-based).
func ChunkRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(ChunkRetryDelays) {
		attempt = len(ChunkRetryDelays)
	}
	return ChunkRetryDelays[attempt-1]
}
