package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/etu-nz/bmm-service/internal/domain"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// InMemoryVenueRepository is the mutex-guarded capacity ledger used by
// tests and DSN-less deployments. The single lock makes reserve a true
// check-and-increment: concurrent reservations for the last unit of a slot
// yield exactly one success.
type InMemoryVenueRepository struct {
	mu     sync.Mutex
	venues map[string]*domain.Venue
	slots  map[string]*slotState
}

type slotState struct {
	slot    domain.Slot
	holders map[string]bool
}

// NewInMemoryVenueRepository creates an empty ledger.
func NewInMemoryVenueRepository() *InMemoryVenueRepository {
	return &InMemoryVenueRepository{
		venues: make(map[string]*domain.Venue),
		slots:  make(map[string]*slotState),
	}
}

// AddVenue seeds a venue and its slots. Occupancy starts at whatever the
// seed carries, normally zero.
func (r *InMemoryVenueRepository) AddVenue(venue domain.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := venue
	stored.Slots = nil
	r.venues[venue.Name] = &stored
	for _, slot := range venue.Slots {
		slot.VenueName = venue.Name
		slot.Region = venue.Region
		r.slots[slot.Key().String()] = &slotState{
			slot:    slot,
			holders: make(map[string]bool),
		}
	}
}

func (r *InMemoryVenueRepository) ListVenues(ctx context.Context, region *string) ([]domain.Venue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Venue
	for _, venue := range r.venues {
		if region != nil && venue.Region != *region {
			continue
		}
		copied := *venue
		for _, state := range r.slots {
			if state.slot.VenueName == venue.Name {
				copied.Slots = append(copied.Slots, state.slot)
			}
		}
		sort.Slice(copied.Slots, func(i, j int) bool {
			return copied.Slots[i].SlotTime.Before(copied.Slots[j].SlotTime)
		})
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *InMemoryVenueRepository) ListSlots(ctx context.Context, region *string) ([]domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Slot
	for _, state := range r.slots {
		if region != nil && state.slot.Region != *region {
			continue
		}
		result = append(result, state.slot)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].VenueName != result[j].VenueName {
			return result[i].VenueName < result[j].VenueName
		}
		return result[i].SlotTime.Before(result[j].SlotTime)
	})
	return result, nil
}

func (r *InMemoryVenueRepository) GetSlot(ctx context.Context, key domain.SlotKey) (*domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.slots[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	slot := state.slot
	return &slot, nil
}

func (r *InMemoryVenueRepository) Reserve(ctx context.Context, key domain.SlotKey, membershipNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reserveLocked(key, membershipNumber)
}

func (r *InMemoryVenueRepository) Release(ctx context.Context, key domain.SlotKey, membershipNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(key, membershipNumber)
}

func (r *InMemoryVenueRepository) Swap(ctx context.Context, oldKey, newKey domain.SlotKey, membershipNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.releaseLocked(oldKey, membershipNumber); err != nil {
		return err
	}
	if err := r.reserveLocked(newKey, membershipNumber); err != nil {
		// Restore the old reservation so the swap leaves no partial state.
		_ = r.reserveLocked(oldKey, membershipNumber)
		return err
	}
	return nil
}

func (r *InMemoryVenueRepository) reserveLocked(key domain.SlotKey, membershipNumber string) error {
	state, ok := r.slots[key.String()]
	if !ok {
		return ErrNotFound
	}
	if state.holders[membershipNumber] {
		return nil
	}
	if state.slot.Occupancy >= state.slot.Capacity {
		return apperrors.NewCapacityExceeded(key.VenueName, map[string]any{
			"slot_time": key.SlotTime,
		})
	}
	state.slot.Occupancy++
	state.holders[membershipNumber] = true
	return nil
}

func (r *InMemoryVenueRepository) releaseLocked(key domain.SlotKey, membershipNumber string) error {
	state, ok := r.slots[key.String()]
	if !ok {
		return ErrNotFound
	}
	if !state.holders[membershipNumber] {
		return nil
	}
	delete(state.holders, membershipNumber)
	if state.slot.Occupancy > 0 {
		state.slot.Occupancy--
	}
	return nil
}
