package repository

import (
	"context"
	"sync"
	"time"

	"github.com/etu-nz/bmm-service/internal/domain"
)

// InMemoryJobStore tracks batch jobs without Redis.
type InMemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.SyncJob
}

// NewInMemoryJobStore creates an empty store.
func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{jobs: make(map[string]*domain.SyncJob)}
}

func (s *InMemoryJobStore) Create(ctx context.Context, job *domain.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.UpdatedAt = time.Now()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *InMemoryJobStore) Get(ctx context.Context, id string) (*domain.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *InMemoryJobStore) Update(ctx context.Context, job *domain.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status == domain.JobCancelled {
		job.Status = domain.JobCancelled
	}
	job.UpdatedAt = time.Now()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *InMemoryJobStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Terminal() {
		return nil
	}
	job.Status = domain.JobCancelled
	job.UpdatedAt = time.Now()
	return nil
}
