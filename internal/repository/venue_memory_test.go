package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etu-nz/bmm-service/internal/domain"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

var slotTime = time.Date(2026, 5, 16, 10, 0, 0, 0, time.UTC)

func seedVenue(repo *InMemoryVenueRepository, name, region string, capacity int) domain.SlotKey {
	repo.AddVenue(domain.Venue{
		Name:   name,
		Region: region,
		Slots:  []domain.Slot{{SlotTime: slotTime, Capacity: capacity}},
	})
	return domain.SlotKey{VenueName: name, SlotTime: slotTime}
}

func TestReserveIncrementsOccupancy(t *testing.T) {
	repo := NewInMemoryVenueRepository()
	key := seedVenue(repo, "Greymouth RSA", "West Coast", 2)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, key, "M-001"))
	require.NoError(t, repo.Reserve(ctx, key, "M-002"))

	slot, err := repo.GetSlot(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, slot.Occupancy)
	assert.True(t, slot.Full())

	err = repo.Reserve(ctx, key, "M-003")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CAPACITY_EXCEEDED"))
}

func TestReserveIsIdempotentPerHolder(t *testing.T) {
	repo := NewInMemoryVenueRepository()
	key := seedVenue(repo, "Greymouth RSA", "West Coast", 1)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, key, "M-001"))
	require.NoError(t, repo.Reserve(ctx, key, "M-001"))

	slot, err := repo.GetSlot(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, slot.Occupancy)
}

func TestConcurrentReserveLastUnit(t *testing.T) {
	repo := NewInMemoryVenueRepository()
	key := seedVenue(repo, "Greymouth RSA", "West Coast", 1)
	ctx := context.Background()

	const contenders = 50
	var wg sync.WaitGroup
	successes := make(chan string, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := repo.Reserve(ctx, key, fmt.Sprintf("M-%03d", n)); err == nil {
				successes <- fmt.Sprintf("M-%03d", n)
			}
		}(i)
	}
	wg.Wait()
	close(successes)

	var winners []string
	for w := range successes {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1, "exactly one contender may take the last unit")

	slot, err := repo.GetSlot(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, slot.Occupancy)
}

func TestReleaseIsIdempotent(t *testing.T) {
	repo := NewInMemoryVenueRepository()
	key := seedVenue(repo, "Greymouth RSA", "West Coast", 5)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, key, "M-001"))
	require.NoError(t, repo.Release(ctx, key, "M-001"))
	require.NoError(t, repo.Release(ctx, key, "M-001"))
	require.NoError(t, repo.Release(ctx, key, "M-never-held"))

	slot, err := repo.GetSlot(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, slot.Occupancy)
}

func TestSwapRestoresOldReservationWhenTargetFull(t *testing.T) {
	repo := NewInMemoryVenueRepository()
	oldKey := seedVenue(repo, "Hokitika Hall", "West Coast", 5)
	newKey := seedVenue(repo, "Greymouth RSA", "West Coast", 1)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, oldKey, "M-001"))
	require.NoError(t, repo.Reserve(ctx, newKey, "M-blocker"))

	err := repo.Swap(ctx, oldKey, newKey, "M-001")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CAPACITY_EXCEEDED"))

	oldSlot, err := repo.GetSlot(ctx, oldKey)
	require.NoError(t, err)
	assert.Equal(t, 1, oldSlot.Occupancy, "failed swap must leave the original reservation in place")

	newSlot, err := repo.GetSlot(ctx, newKey)
	require.NoError(t, err)
	assert.Equal(t, 1, newSlot.Occupancy)
}

func TestSwapMovesReservation(t *testing.T) {
	repo := NewInMemoryVenueRepository()
	oldKey := seedVenue(repo, "Hokitika Hall", "West Coast", 5)
	newKey := seedVenue(repo, "Greymouth RSA", "West Coast", 5)
	ctx := context.Background()

	require.NoError(t, repo.Reserve(ctx, oldKey, "M-001"))
	require.NoError(t, repo.Swap(ctx, oldKey, newKey, "M-001"))

	oldSlot, err := repo.GetSlot(ctx, oldKey)
	require.NoError(t, err)
	assert.Equal(t, 0, oldSlot.Occupancy)

	newSlot, err := repo.GetSlot(ctx, newKey)
	require.NoError(t, err)
	assert.Equal(t, 1, newSlot.Occupancy)
}

func TestListSlotsFiltersByRegion(t *testing.T) {
	repo := NewInMemoryVenueRepository()
	seedVenue(repo, "Greymouth RSA", "West Coast", 5)
	seedVenue(repo, "Auckland Town Hall", "Auckland", 100)
	ctx := context.Background()

	region := "West Coast"
	slots, err := repo.ListSlots(ctx, &region)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "Greymouth RSA", slots[0].VenueName)

	all, err := repo.ListSlots(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
