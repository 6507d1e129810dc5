package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/etu-nz/bmm-service/internal/config"
	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/events"
	"github.com/etu-nz/bmm-service/internal/notify"
	"github.com/etu-nz/bmm-service/internal/observability"
	"github.com/etu-nz/bmm-service/internal/repository"
	"github.com/etu-nz/bmm-service/internal/worker"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// NotificationService turns stage transitions into channel-routed sends
// with idempotency tracking. Re-dispatching an already-SENT (member,
// template) pair is a no-op unless forced.
type NotificationService struct {
	members    repository.MemberRepository
	records    repository.NotificationRepository
	tickets    TicketGenerator
	providers  *notify.Registry
	stages     *StageService
	runner     *worker.Runner
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.NotifyConfig
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	MemberRepo       repository.MemberRepository
	NotificationRepo repository.NotificationRepository
	Tickets          TicketGenerator
	Providers        *notify.Registry
	StageService     *StageService
	Runner           *worker.Runner
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	Config           config.NotifyConfig
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		members:    deps.MemberRepo,
		records:    deps.NotificationRepo,
		tickets:    deps.Tickets,
		providers:  deps.Providers,
		stages:     deps.StageService,
		runner:     deps.Runner,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        deps.Config,
	}
}

// RegisterHandlers subscribes to domain events. Venue assignments trigger a
// fire-and-forget confirmation send; the assigning call never waits on it.
func (s *NotificationService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventVenueAssigned, func(ctx context.Context, event events.Event) error {
		go func(membershipNumber string) {
			result := s.Dispatch(context.Background(), membershipNumber, domain.TemplateAssignmentConfirmation, "", false)
			if result.Err != nil {
				s.logger.Warn("assignment confirmation dispatch failed",
					zap.String("membership_number", membershipNumber),
					zap.Error(result.Err))
			}
		}(event.MembershipNumber)
		return nil
	})
}

// DispatchResult is the per-member outcome of one dispatch attempt.
type DispatchResult struct {
	MembershipNumber string
	Channel          domain.ContactChannel
	Status           domain.NotificationStatus
	AlreadySent      bool
	Excluded         bool
	Err              error
}

// Dispatch generates (if needed) and sends the given template to one
// member. providerName overrides the channel's default backend; force
// re-sends past a SENT record and past the attempt cap. A send failure
// leaves the generated ticket and any stage advancement in place; the
// record is retryable FAILED, never stuck PENDING.
func (s *NotificationService) Dispatch(ctx context.Context, membershipNumber string, kind domain.TemplateKind, providerName string, force bool) DispatchResult {
	result := DispatchResult{MembershipNumber: membershipNumber}

	member, err := s.members.GetByID(ctx, membershipNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			result.Err = apperrors.NewNotFound("member", map[string]any{"membership_number": membershipNumber})
		} else {
			result.Err = apperrors.MapError(err)
		}
		return result
	}

	record, err := s.records.Get(ctx, membershipNumber, kind)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		result.Err = apperrors.MapError(err)
		return result
	}
	if record == nil {
		record = &domain.NotificationRecord{
			MembershipNumber: membershipNumber,
			TemplateKind:     kind,
			Status:           domain.NotificationPending,
		}
	}

	if record.Status == domain.NotificationSent && !force {
		result.Status = domain.NotificationSent
		result.Channel = record.Channel
		result.AlreadySent = true
		return result
	}
	if record.Status == domain.NotificationFailed && record.AttemptCount >= s.cfg.MaxAttempts && !force {
		result.Status = domain.NotificationFailed
		result.Channel = record.Channel
		result.Err = apperrors.NewConflict("notification attempt limit reached",
			map[string]any{"attempts": record.AttemptCount})
		return result
	}

	// Ticket credentials are generated exactly once, for every eligible
	// member, whatever channel they end up on.
	if record.TicketToken == "" {
		credentials, err := s.tickets.Generate(ctx, membershipNumber)
		if err != nil {
			result.Err = apperrors.MapError(err)
			return result
		}
		record.TicketToken = credentials.TicketToken
		record.QRPayload = credentials.QRPayload
	}

	// Issuing the ticket is a stage in its own right. A later send failure
	// does not roll this back; a generated-but-unsent ticket is valid,
	// retryable state.
	if kind == domain.TemplateTicket && member.Stage == domain.StageAttendanceConfirmed {
		if _, err := s.stages.Advance(ctx, membershipNumber, domain.StageTicketIssued, "ticket generated"); err != nil {
			s.logger.Warn("stage advance to TICKET_ISSUED failed",
				zap.String("membership_number", membershipNumber),
				zap.Error(err))
		}
	}

	channel := member.ContactChannel()
	record.Channel = channel
	result.Channel = channel

	if channel == domain.ChannelNone {
		record.Status = domain.NotificationFailed
		now := time.Now()
		record.LastAttemptAt = &now
		if err := s.records.Upsert(ctx, record); err != nil {
			result.Err = apperrors.MapError(err)
			return result
		}
		result.Status = domain.NotificationFailed
		result.Err = apperrors.NewNotificationSendFailed(
			fmt.Errorf("member %s has no usable contact channel", membershipNumber))
		s.metrics.RecordDispatch(string(channel), string(domain.NotificationFailed))
		return result
	}

	provider, err := s.resolveProvider(channel, providerName)
	if err != nil {
		result.Err = apperrors.NewValidationError(err.Error(), nil)
		return result
	}

	message := s.buildMessage(member, kind, record)
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout())
	sendErr := provider.Send(sendCtx, message)
	cancel()

	now := time.Now()
	record.LastAttemptAt = &now
	record.AttemptCount++
	if sendErr != nil {
		record.Status = domain.NotificationFailed
	} else {
		record.Status = domain.NotificationSent
	}
	if err := s.records.Upsert(ctx, record); err != nil {
		result.Err = apperrors.MapError(err)
		return result
	}

	result.Status = record.Status
	s.metrics.RecordDispatch(string(channel), string(record.Status))
	s.publishDispatchedEvent(ctx, membershipNumber, kind, channel, record.Status)

	if sendErr != nil {
		result.Err = apperrors.NewNotificationSendFailed(sendErr)
	}
	return result
}

func (s *NotificationService) resolveProvider(channel domain.ContactChannel, providerName string) (notify.Provider, error) {
	if channel == domain.ChannelSMSExport {
		return s.providers.Get("smsexport")
	}
	if providerName == "" {
		providerName = s.cfg.DefaultEmailProvider
	}
	return s.providers.Get(providerName)
}

func (s *NotificationService) buildMessage(member *domain.Member, kind domain.TemplateKind, record *domain.NotificationRecord) notify.Message {
	message := notify.Message{
		MembershipNumber: member.MembershipNumber,
		TicketToken:      record.TicketToken,
	}
	if member.ContactChannel() == domain.ChannelEmail {
		message.Recipient = member.PrimaryEmail
	} else {
		message.Recipient = member.Mobile
	}

	switch kind {
	case domain.TemplateAssignmentConfirmation:
		message.Subject = "Your BMM venue confirmation"
		if member.Assignment != nil {
			message.Body = fmt.Sprintf("Kia ora %s, you are confirmed for %s on %s.",
				member.Name, member.Assignment.VenueName,
				member.Assignment.SlotTime.Format("Monday 2 January, 3:04pm"))
		} else {
			message.Body = fmt.Sprintf("Kia ora %s, your BMM venue has been confirmed.", member.Name)
		}
	case domain.TemplateTicket:
		message.Subject = "Your BMM ticket"
		message.Body = fmt.Sprintf("Kia ora %s, here is your BMM ticket. Reference: %s",
			member.Name, record.TicketToken)
	case domain.TemplateSpecialVote:
		message.Subject = "Your BMM special vote"
		message.Body = fmt.Sprintf("Kia ora %s, details of your special vote option are attached.", member.Name)
	}
	return message
}

// BatchReport aggregates per-member dispatch outcomes for a batch job.
type BatchReport struct {
	Sent        int
	AlreadySent int
	Excluded    int
	NoChannel   int
	Failed      int
}

// DispatchBatch sends one template to an explicit member list as a
// background job. Sends run on a bounded worker pool; outcomes flow back
// over a channel so the counters never race. Members who said they are not
// attending are excluded up front.
func (s *NotificationService) DispatchBatch(ctx context.Context, membershipNumbers []string, kind domain.TemplateKind, providerName string, force bool) (*domain.SyncJob, error) {
	ids := append([]string(nil), membershipNumbers...)
	job, err := s.runner.Start(domain.JobBulkDispatch, len(ids), func(jobCtx context.Context, tracker *worker.Tracker) error {
		return s.runBatch(jobCtx, tracker, ids, kind, providerName, force)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return job, nil
}

func (s *NotificationService) runBatch(ctx context.Context, tracker *worker.Tracker, membershipNumbers []string, kind domain.TemplateKind, providerName string, force bool) error {
	concurrency := s.cfg.DispatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	pending := make(chan string)
	outcomes := make(chan DispatchResult)

	for i := 0; i < concurrency; i++ {
		go func() {
			for membershipNumber := range pending {
				outcomes <- s.dispatchForBatch(ctx, membershipNumber, kind, providerName, force)
			}
		}()
	}

	// The producer reports how many members it actually enqueued so the
	// collector drains exactly the in-flight work after a cancellation.
	enqueuedCount := make(chan int, 1)
	go func() {
		defer close(pending)
		n := 0
		for _, membershipNumber := range membershipNumbers {
			if tracker.Cancelled(ctx) {
				break
			}
			pending <- membershipNumber
			n++
		}
		enqueuedCount <- n
	}()

	var report BatchReport
	collected := 0
	enqueued := -1
	for enqueued < 0 || collected < enqueued {
		select {
		case n := <-enqueuedCount:
			enqueued = n
		case result := <-outcomes:
			collected++
			failed := false
			switch {
			case result.Excluded:
				report.Excluded++
			case result.AlreadySent:
				report.AlreadySent++
			case result.Channel == domain.ChannelNone:
				report.NoChannel++
				failed = true
			case result.Err != nil:
				report.Failed++
				failed = true
			default:
				report.Sent++
			}
			tracker.Step(ctx, failed)
		}
	}

	tracker.SetDetail(ctx, fmt.Sprintf("sent=%d already_sent=%d excluded=%d no_channel=%d failed=%d",
		report.Sent, report.AlreadySent, report.Excluded, report.NoChannel, report.Failed))
	return nil
}

func (s *NotificationService) dispatchForBatch(ctx context.Context, membershipNumber string, kind domain.TemplateKind, providerName string, force bool) DispatchResult {
	member, err := s.members.GetByID(ctx, membershipNumber)
	if err == nil && !member.Attending() {
		return DispatchResult{MembershipNumber: membershipNumber, Excluded: true}
	}
	return s.Dispatch(ctx, membershipNumber, kind, providerName, force)
}

func (s *NotificationService) publishDispatchedEvent(ctx context.Context, membershipNumber string, kind domain.TemplateKind, channel domain.ContactChannel, status domain.NotificationStatus) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:               uuid.NewString(),
		Type:             events.EventTicketDispatched,
		MembershipNumber: membershipNumber,
		Timestamp:        time.Now(),
		Payload: events.TicketDispatchedPayload{
			TemplateKind: kind,
			Channel:      channel,
			Status:       status,
		},
	})
}
