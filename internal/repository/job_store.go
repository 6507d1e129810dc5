package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/etu-nz/bmm-service/internal/domain"
)

// JobStore persists pollable progress records for batch operations.
type JobStore interface {
	Create(ctx context.Context, job *domain.SyncJob) error
	Get(ctx context.Context, id string) (*domain.SyncJob, error)
	Update(ctx context.Context, job *domain.SyncJob) error
	// Cancel marks a job CANCELLED. Running batches observe the flag
	// between items; in-flight per-member work still completes.
	Cancel(ctx context.Context, id string) error
}

const jobTTL = 24 * time.Hour

type redisJobStore struct {
	client *redis.Client
}

// NewRedisJobStore stores jobs as TTL'd JSON blobs, which suits the
// poll-every-few-seconds admin UI without touching postgres.
func NewRedisJobStore(client *redis.Client) JobStore {
	return &redisJobStore{client: client}
}

func jobKey(id string) string {
	return fmt.Sprintf("bmm:job:%s", id)
}

// The cancel marker lives under its own key. A progress write racing the
// cancel would otherwise read the blob before the cancel lands and write
// RUNNING back over it; the marker survives that, and Get overlays it on
// every read.
func cancelKey(id string) string {
	return fmt.Sprintf("bmm:job:%s:cancelled", id)
}

func (s *redisJobStore) Create(ctx context.Context, job *domain.SyncJob) error {
	return s.write(ctx, job)
}

func (s *redisJobStore) Update(ctx context.Context, job *domain.SyncJob) error {
	current, err := s.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	// A cancellation observed from another handler wins over progress
	// writes from the running batch.
	if current.Status == domain.JobCancelled {
		job.Status = domain.JobCancelled
	}
	return s.write(ctx, job)
}

func (s *redisJobStore) write(ctx context.Context, job *domain.SyncJob) error {
	job.UpdatedAt = time.Now()
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, jobKey(job.ID), payload, jobTTL).Err()
}

func (s *redisJobStore) Get(ctx context.Context, id string) (*domain.SyncJob, error) {
	payload, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var job domain.SyncJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, err
	}
	marked, err := s.client.Exists(ctx, cancelKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if marked > 0 {
		job.Status = domain.JobCancelled
	}
	return &job, nil
}

func (s *redisJobStore) Cancel(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return nil
	}
	if err := s.client.Set(ctx, cancelKey(id), "1", jobTTL).Err(); err != nil {
		return err
	}
	job.Status = domain.JobCancelled
	return s.write(ctx, job)
}
