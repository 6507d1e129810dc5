package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etu-nz/bmm-service/internal/domain"
)

// MemberFilter captures admin search parameters for the member population.
type MemberFilter struct {
	Region        *string
	Stage         *domain.Stage
	AttendingOnly bool
	Limit         int
	Offset        int
}

// MemberRepository owns member records, their preferences, assignments and
// the immutable stage history.
type MemberRepository interface {
	Create(ctx context.Context, member *domain.Member) error
	GetByID(ctx context.Context, membershipNumber string) (*domain.Member, error)
	List(ctx context.Context, filter MemberFilter) ([]domain.Member, error)
	// UpdateStage atomically moves a member from one stage to another and
	// appends a history entry. Returns ErrNotFound when the member is
	// missing or no longer in the expected stage.
	UpdateStage(ctx context.Context, membershipNumber string, from, to domain.Stage, override bool, evidence string) error
	SetAssignment(ctx context.Context, assignment *domain.Assignment) error
	ClearAssignment(ctx context.Context, membershipNumber string) error
	ListHistory(ctx context.Context, membershipNumber string) ([]domain.StageHistoryEntry, error)
}

type memberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository instantiates the postgres-backed repository.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepository{pool: pool}
}

func (r *memberRepository) Create(ctx context.Context, member *domain.Member) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO members (membership_number, name, region, primary_email, mobile, stage, preferred_attending, special_vote_eligible)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		member.MembershipNumber,
		member.Name,
		member.Region,
		member.PrimaryEmail,
		member.Mobile,
		member.Stage,
		member.PreferredAttending,
		member.SpecialVoteEligible,
	).Scan(&member.CreatedAt, &member.UpdatedAt); err != nil {
		return err
	}

	for _, pref := range member.Preferences {
		const prefQuery = `
            INSERT INTO member_preferences (membership_number, rank, venue_name, slot_time)
            VALUES ($1,$2,$3,$4)`
		if _, err := tx.Exec(ctx, prefQuery, member.MembershipNumber, pref.Rank, pref.VenueName, pref.SlotTime); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *memberRepository) GetByID(ctx context.Context, membershipNumber string) (*domain.Member, error) {
	const query = `
        SELECT m.membership_number, m.name, m.region, m.primary_email, m.mobile, m.stage,
               m.preferred_attending, m.special_vote_eligible, m.created_at, m.updated_at
        FROM members m WHERE m.membership_number=$1`
	var member domain.Member
	var rawStage string
	if err := r.pool.QueryRow(ctx, query, membershipNumber).Scan(
		&member.MembershipNumber,
		&member.Name,
		&member.Region,
		&member.PrimaryEmail,
		&member.Mobile,
		&rawStage,
		&member.PreferredAttending,
		&member.SpecialVoteEligible,
		&member.CreatedAt,
		&member.UpdatedAt,
	); err != nil {
		return nil, err
	}
	stage, err := domain.ParseStage(rawStage)
	if err != nil {
		return nil, err
	}
	member.Stage = stage

	if err := r.loadPreferences(ctx, &member); err != nil {
		return nil, err
	}
	if err := r.loadAssignment(ctx, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *memberRepository) loadPreferences(ctx context.Context, member *domain.Member) error {
	const query = `
        SELECT rank, venue_name, slot_time FROM member_preferences
        WHERE membership_number=$1 ORDER BY rank ASC`
	rows, err := r.pool.Query(ctx, query, member.MembershipNumber)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var pref domain.Preference
		if err := rows.Scan(&pref.Rank, &pref.VenueName, &pref.SlotTime); err != nil {
			return err
		}
		member.Preferences = append(member.Preferences, pref)
	}
	return rows.Err()
}

func (r *memberRepository) loadAssignment(ctx context.Context, member *domain.Member) error {
	const query = `
        SELECT venue_name, slot_time, source, applied_at FROM assignments
        WHERE membership_number=$1`
	var assignment domain.Assignment
	assignment.MembershipNumber = member.MembershipNumber
	err := r.pool.QueryRow(ctx, query, member.MembershipNumber).Scan(
		&assignment.VenueName,
		&assignment.SlotTime,
		&assignment.Source,
		&assignment.AppliedAt,
	)
	if err == pgx.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	member.Assignment = &assignment
	return nil
}

func (r *memberRepository) List(ctx context.Context, filter MemberFilter) ([]domain.Member, error) {
	base := `SELECT m.membership_number, m.name, m.region, m.primary_email, m.mobile, m.stage,
                    m.preferred_attending, m.special_vote_eligible, m.created_at, m.updated_at
             FROM members m`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Region != nil {
		args = append(args, *filter.Region)
		clauses = append(clauses, fmt.Sprintf("m.region=$%d", len(args)))
	}
	if filter.Stage != nil {
		args = append(args, *filter.Stage)
		clauses = append(clauses, fmt.Sprintf("m.stage=$%d", len(args)))
	}
	if filter.AttendingOnly {
		clauses = append(clauses, "(m.preferred_attending IS NULL OR m.preferred_attending = TRUE)")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY m.membership_number ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Member
	for rows.Next() {
		var member domain.Member
		var rawStage string
		if err := rows.Scan(
			&member.MembershipNumber,
			&member.Name,
			&member.Region,
			&member.PrimaryEmail,
			&member.Mobile,
			&rawStage,
			&member.PreferredAttending,
			&member.SpecialVoteEligible,
			&member.CreatedAt,
			&member.UpdatedAt,
		); err != nil {
			return nil, err
		}
		stage, err := domain.ParseStage(rawStage)
		if err != nil {
			return nil, err
		}
		member.Stage = stage
		result = append(result, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if err := r.loadPreferences(ctx, &result[i]); err != nil {
			return nil, err
		}
		if err := r.loadAssignment(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *memberRepository) UpdateStage(ctx context.Context, membershipNumber string, from, to domain.Stage, override bool, evidence string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const update = `
        UPDATE members SET stage=$1, updated_at=NOW()
        WHERE membership_number=$2 AND stage=$3`
	cmd, err := tx.Exec(ctx, update, to, membershipNumber, from)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	const history = `
        INSERT INTO member_stage_history (membership_number, from_stage, to_stage, override, evidence)
        VALUES ($1,$2,$3,$4,$5)`
	if _, err := tx.Exec(ctx, history, membershipNumber, from, to, override, evidence); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *memberRepository) SetAssignment(ctx context.Context, assignment *domain.Assignment) error {
	const query = `
        INSERT INTO assignments (membership_number, venue_name, slot_time, source, applied_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (membership_number)
        DO UPDATE SET venue_name=EXCLUDED.venue_name, slot_time=EXCLUDED.slot_time,
                      source=EXCLUDED.source, applied_at=EXCLUDED.applied_at`
	_, err := r.pool.Exec(ctx, query,
		assignment.MembershipNumber,
		assignment.VenueName,
		assignment.SlotTime,
		assignment.Source,
		assignment.AppliedAt,
	)
	return err
}

func (r *memberRepository) ClearAssignment(ctx context.Context, membershipNumber string) error {
	const query = `DELETE FROM assignments WHERE membership_number=$1`
	_, err := r.pool.Exec(ctx, query, membershipNumber)
	return err
}

func (r *memberRepository) ListHistory(ctx context.Context, membershipNumber string) ([]domain.StageHistoryEntry, error) {
	const query = `
        SELECT id, membership_number, from_stage, to_stage, override, evidence, created_at
        FROM member_stage_history WHERE membership_number=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, membershipNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StageHistoryEntry
	for rows.Next() {
		var entry domain.StageHistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.MembershipNumber,
			&entry.FromStage,
			&entry.ToStage,
			&entry.Override,
			&entry.Evidence,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
