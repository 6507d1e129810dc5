package domain

import "time"

// JobKind names the long-running batch operations exposed through the
// progress poll endpoint.
type JobKind string

const (
	JobAutoAssign   JobKind = "AUTO_ASSIGN"
	JobBulkDispatch JobKind = "BULK_DISPATCH"
)

// JobStatus is the lifecycle of a batch job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobCancelled JobStatus = "CANCELLED"
	JobFailed    JobStatus = "FAILED"
)

// SyncJob is the pollable progress record for a batch operation. The
// triggering call returns its ID immediately; the UI polls until a terminal
// status appears.
type SyncJob struct {
	ID         string
	Kind       JobKind
	Status     JobStatus
	Processed  int
	Total      int
	ErrorCount int
	Detail     string
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// Percentage reports completion for display. Jobs with an unknown total
// read as zero until finished.
func (j *SyncJob) Percentage() int {
	if j.Total <= 0 {
		if j.Status == JobCompleted {
			return 100
		}
		return 0
	}
	pct := j.Processed * 100 / j.Total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Terminal reports whether the job will make no further progress.
func (j *SyncJob) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobCancelled, JobFailed:
		return true
	}
	return false
}
