package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etu-nz/bmm-service/internal/domain"
)

// NotificationRepository stores one durable record per (member, template)
// pair. The key choice is what makes re-dispatch idempotent.
type NotificationRepository interface {
	Get(ctx context.Context, membershipNumber string, kind domain.TemplateKind) (*domain.NotificationRecord, error)
	Upsert(ctx context.Context, record *domain.NotificationRecord) error
	ListByStatus(ctx context.Context, status domain.NotificationStatus, limit int) ([]domain.NotificationRecord, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository instantiates the postgres-backed repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Get(ctx context.Context, membershipNumber string, kind domain.TemplateKind) (*domain.NotificationRecord, error) {
	const query = `
        SELECT membership_number, template_kind, channel, status, attempt_count,
               ticket_token, qr_payload, last_attempt_at, created_at, updated_at
        FROM notification_records
        WHERE membership_number=$1 AND template_kind=$2`
	var record domain.NotificationRecord
	if err := r.pool.QueryRow(ctx, query, membershipNumber, kind).Scan(
		&record.MembershipNumber,
		&record.TemplateKind,
		&record.Channel,
		&record.Status,
		&record.AttemptCount,
		&record.TicketToken,
		&record.QRPayload,
		&record.LastAttemptAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *notificationRepository) Upsert(ctx context.Context, record *domain.NotificationRecord) error {
	const query = `
        INSERT INTO notification_records
            (membership_number, template_kind, channel, status, attempt_count, ticket_token, qr_payload, last_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (membership_number, template_kind)
        DO UPDATE SET channel=EXCLUDED.channel, status=EXCLUDED.status,
                      attempt_count=EXCLUDED.attempt_count, ticket_token=EXCLUDED.ticket_token,
                      qr_payload=EXCLUDED.qr_payload, last_attempt_at=EXCLUDED.last_attempt_at,
                      updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		record.MembershipNumber,
		record.TemplateKind,
		record.Channel,
		record.Status,
		record.AttemptCount,
		record.TicketToken,
		record.QRPayload,
		record.LastAttemptAt,
	).Scan(&record.CreatedAt, &record.UpdatedAt)
}

func (r *notificationRepository) ListByStatus(ctx context.Context, status domain.NotificationStatus, limit int) ([]domain.NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT membership_number, template_kind, channel, status, attempt_count,
               ticket_token, qr_payload, last_attempt_at, created_at, updated_at
        FROM notification_records WHERE status=$1
        ORDER BY updated_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.NotificationRecord
	for rows.Next() {
		var record domain.NotificationRecord
		if err := rows.Scan(
			&record.MembershipNumber,
			&record.TemplateKind,
			&record.Channel,
			&record.Status,
			&record.AttemptCount,
			&record.TicketToken,
			&record.QRPayload,
			&record.LastAttemptAt,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}
