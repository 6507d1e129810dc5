package service

import (
	"context"

	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/repository"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// MemberService is the read side of the member population for the admin UI.
type MemberService struct {
	members repository.MemberRepository
}

// NewMemberService creates the service.
func NewMemberService(members repository.MemberRepository) *MemberService {
	return &MemberService{members: members}
}

// Get returns one member with preferences and assignment loaded.
func (s *MemberService) Get(ctx context.Context, membershipNumber string) (*domain.Member, error) {
	member, err := s.members.GetByID(ctx, membershipNumber)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NewNotFound("member", map[string]any{"membershipNumber": membershipNumber})
		}
		return nil, apperrors.MapError(err)
	}
	return member, nil
}

// List returns the member population matching the filter.
func (s *MemberService) List(ctx context.Context, filter repository.MemberFilter) ([]domain.Member, error) {
	members, err := s.members.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return members, nil
}
