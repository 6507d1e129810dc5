package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/events"
	"github.com/etu-nz/bmm-service/internal/observability"
	"github.com/etu-nz/bmm-service/internal/repository"
	"github.com/etu-nz/bmm-service/internal/worker"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// AssignmentService allocates members to venue slots. Manual assignment is
// synchronous; bulk auto-assignment runs as a background job. Every
// admission decision re-checks the capacity ledger at commit time, never a
// cached view.
type AssignmentService struct {
	members           repository.MemberRepository
	venues            repository.VenueRepository
	stages            *StageService
	runner            *worker.Runner
	dispatcher        events.Dispatcher
	metrics           *observability.Metrics
	logger            *zap.Logger
	regionParallelism int
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	MemberRepo        repository.MemberRepository
	VenueRepo         repository.VenueRepository
	StageService      *StageService
	Runner            *worker.Runner
	Dispatcher        events.Dispatcher
	Metrics           *observability.Metrics
	Logger            *zap.Logger
	RegionParallelism int
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	parallelism := deps.RegionParallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &AssignmentService{
		members:           deps.MemberRepo,
		venues:            deps.VenueRepo,
		stages:            deps.StageService,
		runner:            deps.Runner,
		dispatcher:        deps.Dispatcher,
		metrics:           deps.Metrics,
		logger:            deps.Logger,
		regionParallelism: parallelism,
	}
}

// BulkAssignmentItem is one explicit (member, slot) pairing.
type BulkAssignmentItem struct {
	MembershipNumber string
	VenueName        string
	SlotTime         time.Time
}

// VenuesWithCapacity returns the venues and their slot occupancy for
// display. This is a derived view only; admission always goes back through
// Reserve.
func (s *AssignmentService) VenuesWithCapacity(ctx context.Context, region *string) ([]domain.Venue, error) {
	venues, err := s.venues.ListVenues(ctx, region)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return venues, nil
}

// Assign places a single member into a slot by admin action. A member in
// PREFERENCE_SUBMITTED is newly assigned and advanced to VENUE_ASSIGNED; a
// member already in VENUE_ASSIGNED is reassigned, releasing the prior slot
// and reserving the new one as one atomic step. When the target slot is
// full the prior assignment stays untouched. A member who has declined
// attendance is frozen and never placed, whatever the entry point.
func (s *AssignmentService) Assign(ctx context.Context, membershipNumber, venueName string, slotTime time.Time) (*domain.Assignment, error) {
	member, err := s.members.GetByID(ctx, membershipNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("member", map[string]any{"membership_number": membershipNumber})
		}
		return nil, apperrors.MapError(err)
	}
	if !member.Attending() {
		return nil, apperrors.NewConflict("member has declined attendance and cannot be assigned a venue",
			map[string]any{"membership_number": membershipNumber})
	}

	key := domain.SlotKey{VenueName: venueName, SlotTime: slotTime}
	slot, err := s.venues.GetSlot(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("venue slot", map[string]any{
				"venue": venueName, "slot_time": slotTime,
			})
		}
		return nil, apperrors.MapError(err)
	}
	if slot.Region != member.Region {
		return nil, apperrors.NewRegionMismatch(member.Region, slot.Region)
	}

	switch member.Stage {
	case domain.StagePreferenceSubmitted:
		return s.assignFresh(ctx, member, key, domain.AssignmentManual)
	case domain.StageVenueAssigned:
		return s.reassign(ctx, member, key)
	default:
		return nil, apperrors.NewInvalidTransition(string(member.Stage), string(domain.StageVenueAssigned))
	}
}

func (s *AssignmentService) assignFresh(ctx context.Context, member *domain.Member, key domain.SlotKey, source domain.AssignmentSource) (*domain.Assignment, error) {
	if err := s.venues.Reserve(ctx, key, member.MembershipNumber); err != nil {
		return nil, s.withSuggestedAlternate(ctx, member.Region, key, err)
	}

	assignment := &domain.Assignment{
		MembershipNumber: member.MembershipNumber,
		VenueName:        key.VenueName,
		SlotTime:         key.SlotTime,
		Source:           source,
		AppliedAt:        time.Now(),
	}
	if err := s.members.SetAssignment(ctx, assignment); err != nil {
		_ = s.venues.Release(ctx, key, member.MembershipNumber)
		return nil, apperrors.MapError(err)
	}
	if _, err := s.stages.Advance(ctx, member.MembershipNumber, domain.StageVenueAssigned, "venue assignment"); err != nil {
		_ = s.members.ClearAssignment(ctx, member.MembershipNumber)
		_ = s.venues.Release(ctx, key, member.MembershipNumber)
		return nil, err
	}

	s.metrics.RecordAssignment(string(domain.OutcomeAssigned))
	s.publishAssignedEvent(ctx, member.MembershipNumber, assignment)
	return assignment, nil
}

func (s *AssignmentService) reassign(ctx context.Context, member *domain.Member, key domain.SlotKey) (*domain.Assignment, error) {
	if member.Assignment == nil {
		return nil, apperrors.NewConflict("member is VENUE_ASSIGNED but has no assignment record",
			map[string]any{"membership_number": member.MembershipNumber})
	}
	oldKey := member.Assignment.SlotKey()
	if slotKeysEqual(oldKey, key) {
		return member.Assignment, nil
	}

	if err := s.venues.Swap(ctx, oldKey, key, member.MembershipNumber); err != nil {
		return nil, s.withSuggestedAlternate(ctx, member.Region, key, err)
	}

	assignment := &domain.Assignment{
		MembershipNumber: member.MembershipNumber,
		VenueName:        key.VenueName,
		SlotTime:         key.SlotTime,
		Source:           domain.AssignmentManual,
		AppliedAt:        time.Now(),
	}
	if err := s.members.SetAssignment(ctx, assignment); err != nil {
		_ = s.venues.Swap(ctx, key, oldKey, member.MembershipNumber)
		return nil, apperrors.MapError(err)
	}

	s.metrics.RecordAssignment(string(domain.OutcomeAssigned))
	s.publishAssignedEvent(ctx, member.MembershipNumber, assignment)
	return assignment, nil
}

// withSuggestedAlternate decorates a CAPACITY_EXCEEDED error with the
// least-loaded open slot in the member's region so the admin has somewhere
// to go next.
func (s *AssignmentService) withSuggestedAlternate(ctx context.Context, region string, key domain.SlotKey, err error) error {
	if !apperrors.IsCode(err, "CAPACITY_EXCEEDED") {
		return apperrors.MapError(err)
	}
	details := map[string]any{"slot_time": key.SlotTime}
	if alt := s.leastLoadedOpenSlot(ctx, region, &key); alt != nil {
		details["suggested_venue"] = alt.VenueName
		details["suggested_slot_time"] = alt.SlotTime
	}
	return apperrors.NewCapacityExceeded(key.VenueName, details)
}

func (s *AssignmentService) leastLoadedOpenSlot(ctx context.Context, region string, exclude *domain.SlotKey) *domain.Slot {
	slots, err := s.venues.ListSlots(ctx, &region)
	if err != nil {
		return nil
	}
	sortSlotsByLoad(slots)
	for i := range slots {
		if slots[i].Full() {
			continue
		}
		if exclude != nil && slotKeysEqual(slots[i].Key(), *exclude) {
			continue
		}
		return &slots[i]
	}
	return nil
}

// BulkAssign applies an explicit list of assignments and reports a
// per-item outcome list. Items fail independently; the batch never
// collapses into a single pass/fail.
func (s *AssignmentService) BulkAssign(ctx context.Context, items []BulkAssignmentItem) []domain.AssignmentResult {
	results := make([]domain.AssignmentResult, 0, len(items))
	for _, item := range items {
		assignment, err := s.Assign(ctx, item.MembershipNumber, item.VenueName, item.SlotTime)
		if err != nil {
			outcome := domain.OutcomeFailed
			if apperrors.IsCode(err, "CAPACITY_EXCEEDED") {
				outcome = domain.OutcomeCapacityExhausted
			}
			s.metrics.RecordAssignment(string(outcome))
			results = append(results, domain.AssignmentResult{
				MembershipNumber: item.MembershipNumber,
				Outcome:          outcome,
				VenueName:        item.VenueName,
				Detail:           err.Error(),
			})
			continue
		}
		slotTime := assignment.SlotTime
		results = append(results, domain.AssignmentResult{
			MembershipNumber: item.MembershipNumber,
			Outcome:          domain.OutcomeAssigned,
			VenueName:        assignment.VenueName,
			SlotTime:         &slotTime,
		})
	}
	return results
}

// AutoAssignAll launches the bulk allocator over the attending population
// and returns the progress job immediately. Members are processed in a
// deterministic order per region: ascending by the preference rank of
// their most-preferred still-open venue, then by membership number.
// Independent regions run in parallel since they never contend on the same
// slots. This is a documented greedy heuristic, not an optimal matching.
func (s *AssignmentService) AutoAssignAll(ctx context.Context, region *string, replaceExisting bool) (*domain.SyncJob, error) {
	listed, err := s.members.List(ctx, repository.MemberFilter{Region: region, AttendingOnly: true})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	population := make([]domain.Member, 0, len(listed))
	for _, member := range listed {
		switch member.Stage {
		case domain.StagePreferenceSubmitted, domain.StageVenueAssigned:
			population = append(population, member)
		}
	}

	job, err := s.runner.Start(domain.JobAutoAssign, len(population), func(jobCtx context.Context, tracker *worker.Tracker) error {
		return s.runAutoAssign(jobCtx, tracker, population, replaceExisting)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return job, nil
}

func (s *AssignmentService) runAutoAssign(ctx context.Context, tracker *worker.Tracker, population []domain.Member, replaceExisting bool) error {
	snapshot, err := s.venues.ListSlots(ctx, nil)
	if err != nil {
		return err
	}
	remaining := make(map[string]int, len(snapshot))
	for _, slot := range snapshot {
		remaining[slot.Key().String()] = slot.Remaining()
	}

	byRegion := make(map[string][]domain.Member)
	for _, member := range population {
		byRegion[member.Region] = append(byRegion[member.Region], member)
	}
	regions := make([]string, 0, len(byRegion))
	for region := range byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	resultsByRegion := make([][]domain.AssignmentResult, len(regions))

	g := new(errgroup.Group)
	g.SetLimit(s.regionParallelism)
	for i, region := range regions {
		i, region := i, region
		group := byRegion[region]
		orderForAllocation(group, remaining)
		g.Go(func() error {
			regionResults := make([]domain.AssignmentResult, 0, len(group))
			for m := range group {
				if tracker.Cancelled(ctx) {
					break
				}
				result := s.assignOne(ctx, &group[m], replaceExisting)
				s.metrics.RecordAssignment(string(result.Outcome))
				regionResults = append(regionResults, result)
				tracker.Step(ctx, result.Outcome != domain.OutcomeAssigned && result.Outcome != domain.OutcomeSkipped)
			}
			resultsByRegion[i] = regionResults
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	counts := make(map[domain.AssignmentOutcome]int)
	for _, regionResults := range resultsByRegion {
		for _, result := range regionResults {
			counts[result.Outcome]++
			if result.Outcome != domain.OutcomeAssigned && result.Outcome != domain.OutcomeSkipped {
				s.logger.Warn("auto assignment incomplete for member",
					zap.String("membership_number", result.MembershipNumber),
					zap.String("outcome", string(result.Outcome)),
					zap.String("detail", result.Detail))
			}
		}
	}
	tracker.SetDetail(ctx, fmt.Sprintf("assigned=%d skipped=%d capacity_exhausted=%d no_slot=%d failed=%d",
		counts[domain.OutcomeAssigned],
		counts[domain.OutcomeSkipped],
		counts[domain.OutcomeCapacityExhausted],
		counts[domain.OutcomeNoSlotInRegion],
		counts[domain.OutcomeFailed]))
	return nil
}

// assignOne settles one member: preference walk first, least-loaded
// in-region fallback second. Each member's reserve plus stage advance is
// atomic; the batch as a whole is not.
func (s *AssignmentService) assignOne(ctx context.Context, member *domain.Member, replaceExisting bool) domain.AssignmentResult {
	if member.Stage == domain.StageVenueAssigned {
		if !replaceExisting {
			return domain.AssignmentResult{
				MembershipNumber: member.MembershipNumber,
				Outcome:          domain.OutcomeSkipped,
			}
		}
		return s.reassignAuto(ctx, member)
	}

	for _, pref := range member.Preferences {
		key := domain.SlotKey{VenueName: pref.VenueName, SlotTime: pref.SlotTime}
		err := s.venues.Reserve(ctx, key, member.MembershipNumber)
		if err == nil {
			return s.commitAuto(ctx, member, key)
		}
		if !retriableReserveFailure(err) {
			return failedResult(member.MembershipNumber, err)
		}
	}

	return s.assignFallback(ctx, member)
}

func (s *AssignmentService) assignFallback(ctx context.Context, member *domain.Member) domain.AssignmentResult {
	slots, err := s.venues.ListSlots(ctx, &member.Region)
	if err != nil {
		return failedResult(member.MembershipNumber, err)
	}
	if len(slots) == 0 {
		return domain.AssignmentResult{
			MembershipNumber: member.MembershipNumber,
			Outcome:          domain.OutcomeNoSlotInRegion,
			Detail:           fmt.Sprintf("no venue slots exist in region %s", member.Region),
		}
	}

	sortSlotsByLoad(slots)
	for _, slot := range slots {
		if slot.Full() {
			continue
		}
		key := slot.Key()
		err := s.venues.Reserve(ctx, key, member.MembershipNumber)
		if err == nil {
			return s.commitAuto(ctx, member, key)
		}
		if !retriableReserveFailure(err) {
			return failedResult(member.MembershipNumber, err)
		}
	}
	return domain.AssignmentResult{
		MembershipNumber: member.MembershipNumber,
		Outcome:          domain.OutcomeCapacityExhausted,
		Detail:           fmt.Sprintf("all slots in region %s are full", member.Region),
	}
}

func (s *AssignmentService) commitAuto(ctx context.Context, member *domain.Member, key domain.SlotKey) domain.AssignmentResult {
	assignment := &domain.Assignment{
		MembershipNumber: member.MembershipNumber,
		VenueName:        key.VenueName,
		SlotTime:         key.SlotTime,
		Source:           domain.AssignmentAuto,
		AppliedAt:        time.Now(),
	}
	if err := s.members.SetAssignment(ctx, assignment); err != nil {
		_ = s.venues.Release(ctx, key, member.MembershipNumber)
		return failedResult(member.MembershipNumber, err)
	}
	if _, err := s.stages.Advance(ctx, member.MembershipNumber, domain.StageVenueAssigned, "bulk auto assignment"); err != nil {
		_ = s.members.ClearAssignment(ctx, member.MembershipNumber)
		_ = s.venues.Release(ctx, key, member.MembershipNumber)
		return failedResult(member.MembershipNumber, err)
	}

	s.publishAssignedEvent(ctx, member.MembershipNumber, assignment)
	slotTime := key.SlotTime
	return domain.AssignmentResult{
		MembershipNumber: member.MembershipNumber,
		Outcome:          domain.OutcomeAssigned,
		VenueName:        key.VenueName,
		SlotTime:         &slotTime,
	}
}

// reassignAuto moves an already-assigned member during a replaceExisting
// run. When a preferred slot cannot be reserved the existing assignment is
// kept rather than dropped.
func (s *AssignmentService) reassignAuto(ctx context.Context, member *domain.Member) domain.AssignmentResult {
	if member.Assignment == nil {
		return failedResult(member.MembershipNumber,
			errors.New("member is VENUE_ASSIGNED but has no assignment record"))
	}
	oldKey := member.Assignment.SlotKey()

	for _, pref := range member.Preferences {
		key := domain.SlotKey{VenueName: pref.VenueName, SlotTime: pref.SlotTime}
		if slotKeysEqual(oldKey, key) {
			slotTime := oldKey.SlotTime
			return domain.AssignmentResult{
				MembershipNumber: member.MembershipNumber,
				Outcome:          domain.OutcomeAssigned,
				VenueName:        oldKey.VenueName,
				SlotTime:         &slotTime,
				Detail:           "existing assignment already matches preference",
			}
		}
		err := s.venues.Swap(ctx, oldKey, key, member.MembershipNumber)
		if err == nil {
			assignment := &domain.Assignment{
				MembershipNumber: member.MembershipNumber,
				VenueName:        key.VenueName,
				SlotTime:         key.SlotTime,
				Source:           domain.AssignmentAuto,
				AppliedAt:        time.Now(),
			}
			if err := s.members.SetAssignment(ctx, assignment); err != nil {
				_ = s.venues.Swap(ctx, key, oldKey, member.MembershipNumber)
				return failedResult(member.MembershipNumber, err)
			}
			s.publishAssignedEvent(ctx, member.MembershipNumber, assignment)
			slotTime := key.SlotTime
			return domain.AssignmentResult{
				MembershipNumber: member.MembershipNumber,
				Outcome:          domain.OutcomeAssigned,
				VenueName:        key.VenueName,
				SlotTime:         &slotTime,
			}
		}
		if !retriableReserveFailure(err) {
			return failedResult(member.MembershipNumber, err)
		}
	}

	slotTime := oldKey.SlotTime
	return domain.AssignmentResult{
		MembershipNumber: member.MembershipNumber,
		Outcome:          domain.OutcomeAssigned,
		VenueName:        oldKey.VenueName,
		SlotTime:         &slotTime,
		Detail:           "no preferred slot had capacity; existing assignment kept",
	}
}

func (s *AssignmentService) publishAssignedEvent(ctx context.Context, membershipNumber string, assignment *domain.Assignment) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:               uuid.NewString(),
		Type:             events.EventVenueAssigned,
		MembershipNumber: membershipNumber,
		Timestamp:        time.Now(),
		Payload: events.VenueAssignedPayload{
			VenueName: assignment.VenueName,
			SlotTime:  assignment.SlotTime,
			Source:    assignment.Source,
		},
	})
}

// orderForAllocation sorts one region's members by the rank of their
// most-preferred venue that still had capacity when the batch started,
// breaking ties by membership number. Members whose every preference is
// already full sort last.
func orderForAllocation(members []domain.Member, remaining map[string]int) {
	rank := func(member *domain.Member) int {
		for _, pref := range member.Preferences {
			key := domain.SlotKey{VenueName: pref.VenueName, SlotTime: pref.SlotTime}
			if remaining[key.String()] > 0 {
				return pref.Rank
			}
		}
		return math.MaxInt32
	}
	sort.SliceStable(members, func(i, j int) bool {
		ri, rj := rank(&members[i]), rank(&members[j])
		if ri != rj {
			return ri < rj
		}
		return members[i].MembershipNumber < members[j].MembershipNumber
	})
}

func sortSlotsByLoad(slots []domain.Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		li, lj := slots[i].Load(), slots[j].Load()
		if li != lj {
			return li < lj
		}
		if slots[i].VenueName != slots[j].VenueName {
			return slots[i].VenueName < slots[j].VenueName
		}
		return slots[i].SlotTime.Before(slots[j].SlotTime)
	})
}

func retriableReserveFailure(err error) bool {
	return apperrors.IsCode(err, "CAPACITY_EXCEEDED") || errors.Is(err, repository.ErrNotFound)
}

func failedResult(membershipNumber string, err error) domain.AssignmentResult {
	return domain.AssignmentResult{
		MembershipNumber: membershipNumber,
		Outcome:          domain.OutcomeFailed,
		Detail:           err.Error(),
	}
}

func slotKeysEqual(a, b domain.SlotKey) bool {
	return a.VenueName == b.VenueName && a.SlotTime.Equal(b.SlotTime)
}
