package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransitionStore struct {
	db *pgxpool.Pool
}

func NewTransitionStore(db *pgxpool.Pool) service.TransitionStore {
	return &TransitionStore{db: db}
}

// CommitTransition применяет переход в одной транзакции с проверкой версий.
// При успехе версия и updated_at инцидента в t обновляются.
func (s *TransitionStore) CommitTransition(ctx context.Context, t *models.Transition) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	now := time.Now().UTC()
	if err = updateIncident(ctx, tx, t.Incident, now); err != nil {
		return err
	}
	if t.Load != nil {
		if err = applyLoad(ctx, tx, t.Load, now); err != nil {
			return err
		}
	}
	if t.Entry != nil {
		if err = insertHistory(ctx, tx, t.Entry); err != nil {
			return fmt.Errorf("failed to append routing history: %w", err)
		}
	}
	for _, n := range t.Notifications {
		if err = insertNotification(ctx, tx, n); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}

	t.Incident.Version++
	t.Incident.UpdatedAt = now
	return nil
}

func updateIncident(ctx context.Context, tx pgx.Tx, incident *models.Incident, now time.Time) error {
	var responderType *string
	if incident.AssignedResponderType != nil {
		v := string(*incident.AssignedResponderType)
		responderType = &v
	}

	query := `
		UPDATE incidents SET
			status = $3,
			assigned_responder_id = $4,
			assigned_responder_type = $5,
			assigned_at = $6,
			queued_at = $7,
			started_at = $8,
			resolved_at = $9,
			cancelled_at = $10,
			version = version + 1,
			updated_at = $11
		WHERE id = $1 AND version = $2;
	`
	cmdTag, err := tx.Exec(ctx, query,
		incident.ID,
		incident.Version,
		string(incident.Status),
		incident.AssignedResponderID,
		responderType,
		incident.AssignedAt,
		incident.QueuedAt,
		incident.StartedAt,
		incident.ResolvedAt,
		incident.CancelledAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}

	// 0 строк - версия изменилась после чтения
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: incident %s at version %d", models.ErrConflict, incident.ID, incident.Version)
	}
	return nil
}

func applyLoad(ctx context.Context, tx pgx.Tx, load *models.LoadChange, now time.Time) error {
	query := `
		UPDATE responders SET
			current_load = current_load + $3,
			version = version + 1,
			updated_at = $4
		WHERE id = $1 AND version = $2 AND current_load + $3 >= 0;
	`
	cmdTag, err := tx.Exec(ctx, query, load.ResponderID, load.ExpectedVersion, load.Delta, now)
	if err != nil {
		return fmt.Errorf("failed to update responder load: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: responder %s at version %d", models.ErrConflict, load.ResponderID, load.ExpectedVersion)
	}
	return nil
}

func insertNotification(ctx context.Context, tx pgx.Tx, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, incident_id, recipient, recipient_id, event, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := tx.Exec(ctx, query,
		n.ID,
		n.IncidentID,
		string(n.Recipient),
		n.RecipientID,
		string(n.Event),
		string(n.Status),
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}
