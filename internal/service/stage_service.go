package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/events"
	"github.com/etu-nz/bmm-service/internal/repository"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// StageService is the authority over member stage transitions. Every change
// goes through Advance or Override; both append an immutable history entry.
type StageService struct {
	members    repository.MemberRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewStageService creates the service.
func NewStageService(members repository.MemberRepository, dispatcher events.Dispatcher, logger *zap.Logger) *StageService {
	return &StageService{members: members, dispatcher: dispatcher, logger: logger}
}

// Advance moves a member to the immediate successor of their current stage.
// Any other target fails with INVALID_TRANSITION. Notification delivery is
// never waited on here; listeners pick the event up on their own time.
func (s *StageService) Advance(ctx context.Context, membershipNumber string, target domain.Stage, evidence string) (*domain.Member, error) {
	if !target.Valid() {
		return nil, apperrors.NewValidationError("unknown stage", map[string]any{"stage": string(target)})
	}
	member, err := s.members.GetByID(ctx, membershipNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("member", map[string]any{"membership_number": membershipNumber})
		}
		return nil, apperrors.MapError(err)
	}
	if !member.Stage.CanAdvanceTo(target) {
		return nil, apperrors.NewInvalidTransition(string(member.Stage), string(target))
	}

	if err := s.members.UpdateStage(ctx, membershipNumber, member.Stage, target, false, evidence); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost a race with a concurrent transition; the stage rule no
			// longer holds against the stored row.
			return nil, apperrors.NewInvalidTransition(string(member.Stage), string(target))
		}
		return nil, apperrors.MapError(err)
	}

	from := member.Stage
	member.Stage = target
	s.publishStageEvent(ctx, membershipNumber, from, target, false)
	return member, nil
}

// Override forces a member to an arbitrary valid stage, including backwards
// moves. It is the only path that may regress a stage, and it is always
// flagged in the history and logged.
func (s *StageService) Override(ctx context.Context, membershipNumber string, target domain.Stage, evidence string) (*domain.Member, error) {
	if !target.Valid() {
		return nil, apperrors.NewValidationError("unknown stage", map[string]any{"stage": string(target)})
	}
	member, err := s.members.GetByID(ctx, membershipNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("member", map[string]any{"membership_number": membershipNumber})
		}
		return nil, apperrors.MapError(err)
	}
	if member.Stage == target {
		return member, nil
	}

	if err := s.members.UpdateStage(ctx, membershipNumber, member.Stage, target, true, evidence); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Warn("stage override applied",
		zap.String("membership_number", membershipNumber),
		zap.String("from", string(member.Stage)),
		zap.String("to", string(target)),
		zap.String("evidence", evidence))

	from := member.Stage
	member.Stage = target
	s.publishStageEvent(ctx, membershipNumber, from, target, true)
	return member, nil
}

// History returns the audit trail for a member.
func (s *StageService) History(ctx context.Context, membershipNumber string) ([]domain.StageHistoryEntry, error) {
	if _, err := s.members.GetByID(ctx, membershipNumber); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("member", map[string]any{"membership_number": membershipNumber})
		}
		return nil, apperrors.MapError(err)
	}
	history, err := s.members.ListHistory(ctx, membershipNumber)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

func (s *StageService) publishStageEvent(ctx context.Context, membershipNumber string, from, to domain.Stage, override bool) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:               uuid.NewString(),
		Type:             events.EventMemberStageAdvanced,
		MembershipNumber: membershipNumber,
		Timestamp:        time.Now(),
		Payload: events.MemberStageAdvancedPayload{
			FromStage: from,
			ToStage:   to,
			Override:  override,
		},
	})
}
