package service

import (
	"context"
	"errors"

	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/repository"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// ProgressService exposes batch job progress to the polling admin UI.
type ProgressService struct {
	jobs repository.JobStore
}

// NewProgressService creates the service.
func NewProgressService(jobs repository.JobStore) *ProgressService {
	return &ProgressService{jobs: jobs}
}

// Get returns the current progress record for a job.
func (s *ProgressService) Get(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("job", map[string]any{"job_id": jobID})
		}
		return nil, apperrors.MapError(err)
	}
	return job, nil
}

// Cancel marks a job CANCELLED. The running batch observes the flag between
// items; nothing in flight is torn down.
func (s *ProgressService) Cancel(ctx context.Context, jobID string) error {
	if err := s.jobs.Cancel(ctx, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("job", map[string]any{"job_id": jobID})
		}
		return apperrors.MapError(err)
	}
	return nil
}
