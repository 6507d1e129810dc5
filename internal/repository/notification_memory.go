package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/etu-nz/bmm-service/internal/domain"
)

// InMemoryNotificationRepository keeps (member, template) records in a map
// keyed the same way the postgres table is.
type InMemoryNotificationRepository struct {
	mu      sync.RWMutex
	records map[recordKey]*domain.NotificationRecord
}

type recordKey struct {
	membershipNumber string
	kind             domain.TemplateKind
}

// NewInMemoryNotificationRepository creates an empty repository.
func NewInMemoryNotificationRepository() *InMemoryNotificationRepository {
	return &InMemoryNotificationRepository{
		records: make(map[recordKey]*domain.NotificationRecord),
	}
}

func (r *InMemoryNotificationRepository) Get(ctx context.Context, membershipNumber string, kind domain.TemplateKind) (*domain.NotificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[recordKey{membershipNumber, kind}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *InMemoryNotificationRepository) Upsert(ctx context.Context, record *domain.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordKey{record.MembershipNumber, record.TemplateKind}
	now := time.Now()
	if existing, ok := r.records[key]; ok {
		record.CreatedAt = existing.CreatedAt
	} else {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	copied := *record
	r.records[key] = &copied
	return nil
}

func (r *InMemoryNotificationRepository) ListByStatus(ctx context.Context, status domain.NotificationStatus, limit int) ([]domain.NotificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var result []domain.NotificationRecord
	for _, record := range r.records {
		if record.Status == status {
			result = append(result, *record)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
