package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeRepairSession recomputes an upload session left inconsistent by
	// an interrupted commit.
	JobTypeRepairSession JobType = "repair_session"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// RepairSessionJob asks a worker to repair one upload session.
type RepairSessionJob struct {
	JobID     string    `json:"job_id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Status    JobStatus `json:"status"`

	// Sweep marks a background job. Empty sessions younger than the grace
	// period are kept because a commit may still be filling them.
	Sweep bool `json:"sweep,omitempty"`

	// Outcome is the repair action once the job has completed.
	Outcome string `json:"outcome,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *RepairSessionJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *RepairSessionJob) GetType() JobType {
	return JobTypeRepairSession
}

// GetStatus implements the Job interface.
func (j *RepairSessionJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishRepairSession(ctx context.Context, job *RepairSessionJob) error
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs; handler is called for each one.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error makes the job eligible for
// retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state.
type JobStore interface {
	SaveJob(ctx context.Context, job *RepairSessionJob) error
	GetJob(ctx context.Context, jobID string) (*RepairSessionJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*RepairSessionJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	UserID    string
	SessionID string
	Status    JobStatus

	Limit  int
	Offset int
}
