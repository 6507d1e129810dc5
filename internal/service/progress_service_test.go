package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/repository"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

func TestProgressGetAndCancel(t *testing.T) {
	jobs := repository.NewInMemoryJobStore()
	service := NewProgressService(jobs)
	ctx := context.Background()

	require.NoError(t, jobs.Create(ctx, &domain.SyncJob{
		ID:     "job-1",
		Kind:   domain.JobAutoAssign,
		Status: domain.JobRunning,
		Total:  4,
	}))

	job, err := service.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, job.Status)
	assert.Equal(t, 0, job.Percentage())

	require.NoError(t, service.Cancel(ctx, "job-1"))
	job, err = service.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, job.Status)
	assert.True(t, job.Terminal())
}

func TestProgressUnknownJob(t *testing.T) {
	service := NewProgressService(repository.NewInMemoryJobStore())

	_, err := service.Get(context.Background(), "nope")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	err = service.Cancel(context.Background(), "nope")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestJobPercentage(t *testing.T) {
	job := &domain.SyncJob{Total: 200, Processed: 50}
	assert.Equal(t, 25, job.Percentage())

	unknown := &domain.SyncJob{Total: 0, Status: domain.JobRunning}
	assert.Equal(t, 0, unknown.Percentage())

	done := &domain.SyncJob{Total: 0, Status: domain.JobCompleted}
	assert.Equal(t, 100, done.Percentage())
}
