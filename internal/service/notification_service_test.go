package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

type fakeProvider struct {
	name string
	// hook runs at the start of every Send, outside the lock. Set before
	// any dispatching starts.
	hook func()

	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Send(ctx context.Context, msg notify.Message) error {
	if p.hook != nil {
		p.hook()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakeProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func (p *fakeProvider) last() notify.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[len(p.sent)-1]
}

type notifyFixture struct {
	members *repository.InMemoryMemberRepository
	records *repository.InMemoryNotificationRepository
	jobs    *repository.InMemoryJobStore
	email   *fakeProvider
	sms     *fakeProvider
	service *NotificationService
}

func newNotifyFixture(t *testing.T) *notifyFixture {
	t.Helper()
	return newNotifyFixtureConcurrency(t, 2)
}

func newNotifyFixtureConcurrency(t *testing.T, concurrency int) *notifyFixture {
	t.Helper()
	members := repository.NewInMemoryMemberRepository()
	records := repository.NewInMemoryNotificationRepository()
	jobs := repository.NewInMemoryJobStore()
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher(logger)

	email := &fakeProvider{name: "fake"}
	sms := &fakeProvider{name: "smsexport"}
	providers := notify.NewRegistry()
	providers.Register(email)
	providers.Register(sms)

	svc := NewNotificationService(NotificationDependencies{
		MemberRepo:       members,
		NotificationRepo: records,
		Tickets:          NewTicketGenerator(),
		Providers:        providers,
		StageService:     NewStageService(members, dispatcher, logger),
		Runner:           worker.NewRunner(jobs, logger),
		Dispatcher:       dispatcher,
		Metrics:          observability.NewMetrics(),
		Logger:           logger,
		Config: config.NotifyConfig{
			EmailFrom:              "events@example.org.nz",
			DefaultEmailProvider:   "fake",
			DispatchConcurrency:    concurrency,
			ProviderTimeoutSeconds: 1,
			MaxAttempts:            2,
		},
	})
	return &notifyFixture{members: members, records: records, jobs: jobs, email: email, sms: sms, service: svc}
}

func (f *notifyFixture) addMember(t *testing.T, id, email, mobile string, stage domain.Stage) {
	t.Helper()
	require.NoError(t, f.members.Create(context.Background(), &domain.Member{
		MembershipNumber: id,
		Name:             "Member " + id,
		Region:           "West Coast",
		PrimaryEmail:     email,
		Mobile:           mobile,
		Stage:            stage,
	}))
}

func TestDispatchSendsEmail(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageVenueAssigned)
	ctx := context.Background()

	result := f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false)
	require.NoError(t, result.Err)
	assert.Equal(t, domain.NotificationSent, result.Status)
	assert.Equal(t, domain.ChannelEmail, result.Channel)
	require.Equal(t, 1, f.email.count())
	assert.Equal(t, "jo@example.org.nz", f.email.last().Recipient)

	record, err := f.records.Get(ctx, "M-001", domain.TemplateAssignmentConfirmation)
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationSent, record.Status)
	assert.Equal(t, 1, record.AttemptCount)
	assert.NotEmpty(t, record.TicketToken)
	assert.Contains(t, record.QRPayload, "M-001")
}

func TestDispatchIsIdempotent(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageVenueAssigned)
	ctx := context.Background()

	first := f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false)
	require.NoError(t, first.Err)

	second := f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false)
	require.NoError(t, second.Err)
	assert.True(t, second.AlreadySent)
	assert.Equal(t, 1, f.email.count(), "a SENT record short-circuits the re-send")
}

func TestDispatchForceResends(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageVenueAssigned)
	ctx := context.Background()

	require.NoError(t, f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false).Err)
	forced := f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", true)
	require.NoError(t, forced.Err)
	assert.False(t, forced.AlreadySent)
	assert.Equal(t, 2, f.email.count())
}

func TestDispatchDifferentTemplatesAreIndependent(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageVenueAssigned)
	ctx := context.Background()

	require.NoError(t, f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false).Err)
	result := f.service.Dispatch(ctx, "M-001", domain.TemplateSpecialVote, "", false)
	require.NoError(t, result.Err)
	assert.False(t, result.AlreadySent)
	assert.Equal(t, 2, f.email.count())
}

func TestDispatchFailureIsRetryableUpToCap(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageVenueAssigned)
	ctx := context.Background()
	f.email.setErr(errors.New("provider down"))

	first := f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false)
	assert.Equal(t, domain.NotificationFailed, first.Status)
	assert.True(t, apperrors.IsCode(first.Err, "NOTIFICATION_SEND_FAILED"))

	second := f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false)
	assert.Equal(t, domain.NotificationFailed, second.Status)

	third := f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false)
	require.Error(t, third.Err)
	assert.True(t, apperrors.IsCode(third.Err, "CONFLICT"), "attempt cap reached")

	record, err := f.records.Get(ctx, "M-001", domain.TemplateAssignmentConfirmation)
	require.NoError(t, err)
	assert.Equal(t, 2, record.AttemptCount)
}

func TestDispatchTicketTokenSurvivesFailedSend(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageVenueAssigned)
	ctx := context.Background()

	f.email.setErr(errors.New("provider down"))
	failed := f.service.Dispatch(ctx, "M-001", domain.TemplateTicket, "", false)
	assert.Equal(t, domain.NotificationFailed, failed.Status)

	record, err := f.records.Get(ctx, "M-001", domain.TemplateTicket)
	require.NoError(t, err)
	token := record.TicketToken
	require.NotEmpty(t, token)

	f.email.setErr(nil)
	retried := f.service.Dispatch(ctx, "M-001", domain.TemplateTicket, "", false)
	require.NoError(t, retried.Err)
	assert.Equal(t, domain.NotificationSent, retried.Status)

	record, err = f.records.Get(ctx, "M-001", domain.TemplateTicket)
	require.NoError(t, err)
	assert.Equal(t, token, record.TicketToken, "a failed delivery never regenerates the ticket")
}

func TestDispatchNoUsableChannel(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "12345@temp-email.example.org", "", domain.StageVenueAssigned)
	ctx := context.Background()

	result := f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false)
	assert.Equal(t, domain.ChannelNone, result.Channel)
	assert.Equal(t, domain.NotificationFailed, result.Status)
	assert.True(t, apperrors.IsCode(result.Err, "NOTIFICATION_SEND_FAILED"))
	assert.Equal(t, 0, f.email.count())
	assert.Equal(t, 0, f.sms.count())

	record, err := f.records.Get(ctx, "M-001", domain.TemplateAssignmentConfirmation)
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationFailed, record.Status)
}

func TestDispatchRoutesPlaceholderEmailToSMS(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "12345@temp-email.example.org", "0275550123", domain.StageVenueAssigned)
	ctx := context.Background()

	result := f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false)
	require.NoError(t, result.Err)
	assert.Equal(t, domain.ChannelSMSExport, result.Channel)
	assert.Equal(t, 0, f.email.count())
	require.Equal(t, 1, f.sms.count())
	assert.Equal(t, "0275550123", f.sms.last().Recipient)
}

func TestDispatchTicketAdvancesStage(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageAttendanceConfirmed)
	ctx := context.Background()

	result := f.service.Dispatch(ctx, "M-001", domain.TemplateTicket, "", false)
	require.NoError(t, result.Err)

	member, err := f.members.GetByID(ctx, "M-001")
	require.NoError(t, err)
	assert.Equal(t, domain.StageTicketIssued, member.Stage)
}

func TestDispatchTicketStageSurvivesFailedSend(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageAttendanceConfirmed)
	ctx := context.Background()
	f.email.setErr(errors.New("provider down"))

	result := f.service.Dispatch(ctx, "M-001", domain.TemplateTicket, "", false)
	assert.Equal(t, domain.NotificationFailed, result.Status)

	member, err := f.members.GetByID(ctx, "M-001")
	require.NoError(t, err)
	assert.Equal(t, domain.StageTicketIssued, member.Stage,
		"a generated-but-unsent ticket is valid, retryable state")
}

func TestDispatchUnknownMember(t *testing.T) {
	f := newNotifyFixture(t)
	result := f.service.Dispatch(context.Background(), "M-missing", domain.TemplateTicket, "", false)
	require.Error(t, result.Err)
	assert.True(t, apperrors.IsCode(result.Err, "NOT_FOUND"))
}

func TestDispatchUnknownProvider(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageVenueAssigned)

	result := f.service.Dispatch(context.Background(), "M-001", domain.TemplateAssignmentConfirmation, "does-not-exist", false)
	require.Error(t, result.Err)
	assert.True(t, apperrors.IsCode(result.Err, "VALIDATION_FAILED"))
}

func TestDispatchBatchAggregatesOutcomes(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageVenueAssigned)
	f.addMember(t, "M-002", "12345@temp-email.example.org", "", domain.StageVenueAssigned)
	notAttending := false
	require.NoError(t, f.members.Create(context.Background(), &domain.Member{
		MembershipNumber:   "M-003",
		PrimaryEmail:       "pat@example.org.nz",
		Region:             "West Coast",
		Stage:              domain.StageVenueAssigned,
		PreferredAttending: &notAttending,
	}))
	ctx := context.Background()

	job, err := f.service.DispatchBatch(ctx, []string{"M-001", "M-002", "M-003"}, domain.TemplateAssignmentConfirmation, "", false)
	require.NoError(t, err)
	finished := waitForJob(t, f.jobs, job.ID)

	assert.Equal(t, domain.JobCompleted, finished.Status)
	assert.Equal(t, 3, finished.Processed)
	assert.Equal(t, 1, finished.ErrorCount)
	assert.Contains(t, finished.Detail, "sent=1")
	assert.Contains(t, finished.Detail, "excluded=1")
	assert.Contains(t, finished.Detail, "no_channel=1")

	assert.Equal(t, 1, f.email.count())

	_, err = f.records.Get(ctx, "M-003", domain.TemplateAssignmentConfirmation)
	assert.ErrorIs(t, err, repository.ErrNotFound, "excluded members never get a record")
}

func TestDispatchBatchSkipsAlreadySent(t *testing.T) {
	f := newNotifyFixture(t)
	f.addMember(t, "M-001", "jo@example.org.nz", "", domain.StageVenueAssigned)
	f.addMember(t, "M-002", "pat@example.org.nz", "", domain.StageVenueAssigned)
	ctx := context.Background()

	require.NoError(t, f.service.Dispatch(ctx, "M-001", domain.TemplateAssignmentConfirmation, "", false).Err)

	job, err := f.service.DispatchBatch(ctx, []string{"M-001", "M-002"}, domain.TemplateAssignmentConfirmation, "", false)
	require.NoError(t, err)
	finished := waitForJob(t, f.jobs, job.ID)

	assert.Contains(t, finished.Detail, "sent=1")
	assert.Contains(t, finished.Detail, "already_sent=1")
	assert.Equal(t, 2, f.email.count())
}

func TestDispatchBatchCancelStopsEnqueuing(t *testing.T) {
	f := newNotifyFixtureConcurrency(t, 1)
	for _, id := range []string{"M-001", "M-002", "M-003"} {
		f.addMember(t, id, id+"@example.org.nz", "", domain.StageVenueAssigned)
	}
	ctx := context.Background()

	// The first send blocks until the job has been cancelled, so the
	// producer is guaranteed to see the flag before it reaches the last
	// member.
	jobID := make(chan string, 1)
	var once sync.Once
	f.email.hook = func() {
		once.Do(func() {
			_ = f.jobs.Cancel(context.Background(), <-jobID)
		})
	}

	job, err := f.service.DispatchBatch(ctx, []string{"M-001", "M-002", "M-003"}, domain.TemplateAssignmentConfirmation, "", false)
	require.NoError(t, err)
	jobID <- job.ID

	finished := waitForJob(t, f.jobs, job.ID)
	assert.Equal(t, domain.JobCancelled, finished.Status)
	assert.Less(t, finished.Processed, 3)

	_, err = f.records.Get(ctx, "M-003", domain.TemplateAssignmentConfirmation)
	assert.ErrorIs(t, err, repository.ErrNotFound, "members past the cancellation point are never dispatched")
}
