package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/etu-nz/bmm-service/internal/domain"
)

// InMemoryMemberRepository is the non-durable MemberRepository used by
// tests and by deployments without a configured DSN.
type InMemoryMemberRepository struct {
	mu      sync.RWMutex
	members map[string]*domain.Member
	history map[string][]domain.StageHistoryEntry
}

// NewInMemoryMemberRepository creates an empty repository.
func NewInMemoryMemberRepository() *InMemoryMemberRepository {
	return &InMemoryMemberRepository{
		members: make(map[string]*domain.Member),
		history: make(map[string][]domain.StageHistoryEntry),
	}
}

func (r *InMemoryMemberRepository) Create(ctx context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	member.CreatedAt = now
	member.UpdatedAt = now
	r.members[member.MembershipNumber] = copyMember(member)
	return nil
}

func (r *InMemoryMemberRepository) GetByID(ctx context.Context, membershipNumber string) (*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	member, ok := r.members[membershipNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMember(member), nil
}

func (r *InMemoryMemberRepository) List(ctx context.Context, filter MemberFilter) ([]domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Member
	for _, member := range r.members {
		if filter.Region != nil && member.Region != *filter.Region {
			continue
		}
		if filter.Stage != nil && member.Stage != *filter.Stage {
			continue
		}
		if filter.AttendingOnly && !member.Attending() {
			continue
		}
		result = append(result, *copyMember(member))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MembershipNumber < result[j].MembershipNumber
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *InMemoryMemberRepository) UpdateStage(ctx context.Context, membershipNumber string, from, to domain.Stage, override bool, evidence string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[membershipNumber]
	if !ok || member.Stage != from {
		return ErrNotFound
	}
	member.Stage = to
	member.UpdatedAt = time.Now()
	r.history[membershipNumber] = append(r.history[membershipNumber], domain.StageHistoryEntry{
		ID:               uuid.NewString(),
		MembershipNumber: membershipNumber,
		FromStage:        from,
		ToStage:          to,
		Override:         override,
		Evidence:         evidence,
		CreatedAt:        time.Now(),
	})
	return nil
}

func (r *InMemoryMemberRepository) SetAssignment(ctx context.Context, assignment *domain.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[assignment.MembershipNumber]
	if !ok {
		return ErrNotFound
	}
	copied := *assignment
	member.Assignment = &copied
	member.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryMemberRepository) ClearAssignment(ctx context.Context, membershipNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[membershipNumber]
	if !ok {
		return ErrNotFound
	}
	member.Assignment = nil
	member.UpdatedAt = time.Now()
	return nil
}

func (r *InMemoryMemberRepository) ListHistory(ctx context.Context, membershipNumber string) ([]domain.StageHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.history[membershipNumber]
	result := make([]domain.StageHistoryEntry, len(entries))
	copy(result, entries)
	return result, nil
}

func copyMember(member *domain.Member) *domain.Member {
	copied := *member
	copied.Preferences = append([]domain.Preference(nil), member.Preferences...)
	if member.Assignment != nil {
		assignment := *member.Assignment
		copied.Assignment = &assignment
	}
	return &copied
}
