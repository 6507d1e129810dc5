package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etu-nz/bmm-service/internal/domain"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// VenueRepository is the capacity ledger. Reserve and Release are the only
// operations that move a slot's occupancy counter; Reserve is atomic
// relative to concurrent reservations on the same slot.
type VenueRepository interface {
	ListVenues(ctx context.Context, region *string) ([]domain.Venue, error)
	ListSlots(ctx context.Context, region *string) ([]domain.Slot, error)
	GetSlot(ctx context.Context, key domain.SlotKey) (*domain.Slot, error)
	// Reserve takes one unit of capacity. Returns a CAPACITY_EXCEEDED
	// domain error when the slot is full, ErrNotFound when it does not
	// exist.
	Reserve(ctx context.Context, key domain.SlotKey, membershipNumber string) error
	Release(ctx context.Context, key domain.SlotKey, membershipNumber string) error
	// Swap releases oldKey and reserves newKey as one atomic step. When the
	// new slot is full nothing changes and a CAPACITY_EXCEEDED error is
	// returned.
	Swap(ctx context.Context, oldKey, newKey domain.SlotKey, membershipNumber string) error
}

type venueRepository struct {
	pool *pgxpool.Pool
}

// NewVenueRepository instantiates the postgres-backed ledger. Occupancy
// moves through conditional row updates, so two concurrent reservations for
// the last unit can never both succeed.
func NewVenueRepository(pool *pgxpool.Pool) VenueRepository {
	return &venueRepository{pool: pool}
}

func (r *venueRepository) ListVenues(ctx context.Context, region *string) ([]domain.Venue, error) {
	slots, err := r.ListSlots(ctx, region)
	if err != nil {
		return nil, err
	}
	byName := map[string]*domain.Venue{}
	var order []string

	const query = `SELECT name, region, address FROM venues ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var venue domain.Venue
		if err := rows.Scan(&venue.Name, &venue.Region, &venue.Address); err != nil {
			return nil, err
		}
		if region != nil && venue.Region != *region {
			continue
		}
		byName[venue.Name] = &venue
		order = append(order, venue.Name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, slot := range slots {
		if venue, ok := byName[slot.VenueName]; ok {
			venue.Slots = append(venue.Slots, slot)
		}
	}
	result := make([]domain.Venue, 0, len(order))
	for _, name := range order {
		result = append(result, *byName[name])
	}
	return result, nil
}

func (r *venueRepository) ListSlots(ctx context.Context, region *string) ([]domain.Slot, error) {
	query := `
        SELECT s.venue_name, v.region, s.slot_time, s.capacity, s.occupancy
        FROM venue_slots s JOIN venues v ON v.name = s.venue_name`
	args := []any{}
	if region != nil {
		query += ` WHERE v.region=$1`
		args = append(args, *region)
	}
	query += ` ORDER BY s.venue_name ASC, s.slot_time ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Slot
	for rows.Next() {
		var slot domain.Slot
		if err := rows.Scan(&slot.VenueName, &slot.Region, &slot.SlotTime, &slot.Capacity, &slot.Occupancy); err != nil {
			return nil, err
		}
		result = append(result, slot)
	}
	return result, rows.Err()
}

func (r *venueRepository) GetSlot(ctx context.Context, key domain.SlotKey) (*domain.Slot, error) {
	const query = `
        SELECT s.venue_name, v.region, s.slot_time, s.capacity, s.occupancy
        FROM venue_slots s JOIN venues v ON v.name = s.venue_name
        WHERE s.venue_name=$1 AND s.slot_time=$2`
	var slot domain.Slot
	if err := r.pool.QueryRow(ctx, query, key.VenueName, key.SlotTime).Scan(
		&slot.VenueName,
		&slot.Region,
		&slot.SlotTime,
		&slot.Capacity,
		&slot.Occupancy,
	); err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *venueRepository) Reserve(ctx context.Context, key domain.SlotKey, membershipNumber string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := reserveTx(ctx, tx, key, membershipNumber); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *venueRepository) Release(ctx context.Context, key domain.SlotKey, membershipNumber string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := releaseTx(ctx, tx, key, membershipNumber); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *venueRepository) Swap(ctx context.Context, oldKey, newKey domain.SlotKey, membershipNumber string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := releaseTx(ctx, tx, oldKey, membershipNumber); err != nil {
		return err
	}
	if err := reserveTx(ctx, tx, newKey, membershipNumber); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// reserveTx performs the atomic check-and-increment. The conditional update
// is the capacity invariant: occupancy can never pass capacity.
func reserveTx(ctx context.Context, tx pgx.Tx, key domain.SlotKey, membershipNumber string) error {
	const update = `
        UPDATE venue_slots SET occupancy = occupancy + 1
        WHERE venue_name=$1 AND slot_time=$2 AND occupancy < capacity`
	cmd, err := tx.Exec(ctx, update, key.VenueName, key.SlotTime)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM venue_slots WHERE venue_name=$1 AND slot_time=$2)`,
			key.VenueName, key.SlotTime).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return apperrors.NewCapacityExceeded(key.VenueName, map[string]any{
			"slot_time": key.SlotTime,
		})
	}

	const insert = `
        INSERT INTO slot_reservations (venue_name, slot_time, membership_number)
        VALUES ($1,$2,$3)`
	_, err = tx.Exec(ctx, insert, key.VenueName, key.SlotTime, membershipNumber)
	return err
}

func releaseTx(ctx context.Context, tx pgx.Tx, key domain.SlotKey, membershipNumber string) error {
	const del = `
        DELETE FROM slot_reservations
        WHERE venue_name=$1 AND slot_time=$2 AND membership_number=$3`
	cmd, err := tx.Exec(ctx, del, key.VenueName, key.SlotTime, membershipNumber)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// Nothing reserved; releasing is a no-op rather than an error.
		return nil
	}

	const update = `
        UPDATE venue_slots SET occupancy = occupancy - 1
        WHERE venue_name=$1 AND slot_time=$2 AND occupancy > 0`
	_, err = tx.Exec(ctx, update, key.VenueName, key.SlotTime)
	return err
}
