package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository - outbox уведомлений, записанных вместе с переходами
type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ListUnpublished возвращает неотправленные уведомления, созданные раньше before, старые первыми
func (r *NotificationRepository) ListUnpublished(ctx context.Context, before time.Time, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, incident_id, recipient, recipient_id, event, status, created_at
		FROM notifications
		WHERE published_at IS NULL AND created_at < $1
		ORDER BY created_at ASC, id
		LIMIT $2;
	`
	rows, err := r.db.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpublished notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Notification, 0)
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(
			&n.ID,
			&n.IncidentID,
			&n.Recipient,
			&n.RecipientID,
			&n.Event,
			&n.Status,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return out, nil
}

// MarkPublished отмечает уведомления отправленными; уже отмеченные не меняются
func (r *NotificationRepository) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE notifications
		SET published_at = $1
		WHERE id = ANY($2) AND published_at IS NULL;
	`
	if _, err := r.db.Exec(ctx, query, at, ids); err != nil {
		return fmt.Errorf("failed to mark notifications published: %w", err)
	}
	return nil
}
