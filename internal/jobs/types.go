package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ledger-sync/internal/orchestrator"
)

// ErrNotFound is returned by a JobStore for unknown job IDs.
var ErrNotFound = errors.New("job not found")

// JobType names the kind of work a job carries.
type JobType string

const (
	// JobTypeSync represents one sync run for one entity.
	JobTypeSync JobType = "sync"
)

// JobStatus is a job's position in its lifecycle.
type JobStatus string

const (
	// JobStatusPending: queued, no worker has picked it up.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning: a worker is syncing the entity.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the run finished. Per-record failures may
	// still be listed in the report.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the run ended early.
	JobStatusFailed JobStatus = "failed"
	// JobStatusSkipped indicates another run for the same entity was in progress.
	JobStatusSkipped JobStatus = "skipped"
)

// Trigger says what started a job.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// SyncJob represents a request to sync one entity.
type SyncJob struct {
	JobID   string    `json:"job_id"`
	Entity  string    `json:"entity"`
	Trigger Trigger   `json:"trigger"`
	Status  JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds the run error when Status is failed.
	Error string `json:"error,omitempty"`

	// Report is the run summary, set once the handler returns.
	Report *orchestrator.RunReport `json:"report,omitempty"`
}

// Job is what consumers hand to a JobHandler.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *SyncJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *SyncJob) GetType() JobType {
	return JobTypeSync
}

// GetStatus implements the Job interface.
func (j *SyncJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs.
type Publisher interface {
	// PublishSync enqueues a sync job.
	PublishSync(ctx context.Context, job *SyncJob) error

	// Close stops accepting jobs.
	Close() error
}

// Consumer runs queued jobs through a handler.
type Consumer interface {
	// Start launches the workers; handler is called once per job.
	Start(ctx context.Context, handler JobHandler) error

	// Stop waits for in-flight jobs, bounded by ctx.
	Stop(ctx context.Context) error
}

// JobHandler processes one job.
// A returned error marks the job failed. Runs are not retried; the next
// scheduled run picks up whatever this one missed.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps job state for the status API.
type JobStore interface {
	// SaveJob inserts or replaces a job.
	SaveJob(ctx context.Context, job *SyncJob) error

	// GetJob returns the job with jobID.
	GetJob(ctx context.Context, jobID string) (*SyncJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error)

	// UpdateJobStatus sets the status and, when errorMsg is non-empty, the error.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter narrows ListJobs. Zero values match everything; Limit 0 means no limit.
type JobFilter struct {
	Entity string
	Status JobStatus
	Limit  int
	Offset int
}
