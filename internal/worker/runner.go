package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/repository"
)

// Runner executes long-running batch operations in the background and keeps
// their progress records current so the admin UI can poll them.
type Runner struct {
	jobs   repository.JobStore
	logger *zap.Logger
}

// NewRunner builds a runner over the given job store.
func NewRunner(jobs repository.JobStore, logger *zap.Logger) *Runner {
	return &Runner{jobs: jobs, logger: logger}
}

// Start registers a job and launches fn on its own goroutine. The caller
// gets the job record back immediately; fn drives progress through the
// Tracker and must check Cancelled between items.
func (r *Runner) Start(kind domain.JobKind, total int, fn func(ctx context.Context, tracker *Tracker) error) (*domain.SyncJob, error) {
	job := &domain.SyncJob{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.JobRunning,
		Total:     total,
		StartedAt: time.Now(),
	}
	if err := r.jobs.Create(context.Background(), job); err != nil {
		return nil, err
	}

	go func() {
		ctx := context.Background()
		tracker := &Tracker{store: r.jobs, logger: r.logger, job: *job}
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("batch job panicked",
					zap.String("job_id", job.ID),
					zap.Any("panic", rec))
				tracker.Finish(ctx, domain.JobFailed, "panic during batch run")
			}
		}()

		if err := fn(ctx, tracker); err != nil {
			r.logger.Error("batch job failed",
				zap.String("job_id", job.ID),
				zap.Error(err))
			tracker.Finish(ctx, domain.JobFailed, err.Error())
			return
		}
		tracker.Finish(ctx, domain.JobCompleted, "")
	}()

	return job, nil
}

// Tracker reports progress for one running job.
type Tracker struct {
	store  repository.JobStore
	logger *zap.Logger
	job    domain.SyncJob
}

// JobID returns the identifier handed back to the caller.
func (t *Tracker) JobID() string {
	return t.job.ID
}

// SetTotal adjusts the item count once the target population is known.
func (t *Tracker) SetTotal(ctx context.Context, total int) {
	t.job.Total = total
	t.flush(ctx)
}

// Step records one processed item; failed items bump the error count.
func (t *Tracker) Step(ctx context.Context, failed bool) {
	t.job.Processed++
	if failed {
		t.job.ErrorCount++
	}
	t.flush(ctx)
}

// Cancelled reports whether an admin marked the job CANCELLED. Callers
// check this between items; work already in flight completes.
func (t *Tracker) Cancelled(ctx context.Context) bool {
	current, err := t.store.Get(ctx, t.job.ID)
	if err != nil {
		return false
	}
	return current.Status == domain.JobCancelled
}

// SetDetail attaches a human-readable summary carried into the terminal
// progress record.
func (t *Tracker) SetDetail(ctx context.Context, detail string) {
	t.job.Detail = detail
	t.flush(ctx)
}

// Finish moves the job to a terminal status. A cancellation that has
// already been recorded wins over the outcome passed in; a detail set
// earlier survives unless a new one is given.
func (t *Tracker) Finish(ctx context.Context, status domain.JobStatus, detail string) {
	t.job.Status = status
	if detail != "" {
		t.job.Detail = detail
	}
	t.flush(ctx)
}

func (t *Tracker) flush(ctx context.Context) {
	if err := t.store.Update(ctx, &t.job); err != nil {
		t.logger.Warn("job progress update failed",
			zap.String("job_id", t.job.ID),
			zap.Error(err))
	}
}
