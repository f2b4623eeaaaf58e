package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/google/uuid"
)

// NotificationRepository - outbox уведомлений, записанных вместе с переходами
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ListUnpublished возвращает неотправленные уведомления, созданные раньше before, старые первыми
func (r *NotificationRepository) ListUnpublished(ctx context.Context, before time.Time, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, incident_id, recipient, recipient_id, event, status, created_at
		FROM notifications
		WHERE published_at IS NULL AND created_at < ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?;
	`
	rows, err := r.db.QueryContext(ctx, query, formatTime(before), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpublished notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Notification, 0)
	for rows.Next() {
		var (
			n                     models.Notification
			id, incident, created string
		)
		if err := rows.Scan(&id, &incident, &n.Recipient, &n.RecipientID, &n.Event, &n.Status, &created); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		if n.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse notification id: %w", err)
		}
		if n.IncidentID, err = uuid.Parse(incident); err != nil {
			return nil, fmt.Errorf("failed to parse incident id: %w", err)
		}
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return out, nil
}

// MarkPublished отмечает уведомления отправленными; уже отмеченные не меняются
func (r *NotificationRepository) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) (err error) {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `UPDATE notifications SET published_at = ? WHERE id = ? AND published_at IS NULL;`
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, query, formatTime(at), id.String()); err != nil {
			return fmt.Errorf("failed to mark notification %s published: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit notification marks: %w", err)
	}
	return nil
}
