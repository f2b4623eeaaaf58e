package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
)

type TransitionStore struct {
	db *sql.DB
}

func NewTransitionStore(db *sql.DB) service.TransitionStore {
	return &TransitionStore{db: db}
}

// CommitTransition применяет переход в одной транзакции с проверкой версий.
// При успехе версия и updated_at инцидента в t обновляются.
func (s *TransitionStore) CommitTransition(ctx context.Context, t *models.Transition) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	now := nowUTC()
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

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}

	t.Incident.Version++
	t.Incident.UpdatedAt = now
	return nil
}

func updateIncident(ctx context.Context, tx *sql.Tx, incident *models.Incident, now time.Time) error {
	var responderType any
	if incident.AssignedResponderType != nil {
		responderType = string(*incident.AssignedResponderType)
	}

	query := `
		UPDATE incidents SET
			status = ?,
			assigned_responder_id = ?,
			assigned_responder_type = ?,
			assigned_at = ?,
			queued_at = ?,
			started_at = ?,
			resolved_at = ?,
			cancelled_at = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?;
	`
	res, err := tx.ExecContext(ctx, query,
		string(incident.Status),
		uuidArg(incident.AssignedResponderID),
		responderType,
		formatTimePtr(incident.AssignedAt),
		formatTimePtr(incident.QueuedAt),
		formatTimePtr(incident.StartedAt),
		formatTimePtr(incident.ResolvedAt),
		formatTimePtr(incident.CancelledAt),
		formatTime(now),
		incident.ID.String(),
		incident.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}
	return requireOneRow(res, "incident %s at version %d", incident.ID, incident.Version)
}

func applyLoad(ctx context.Context, tx *sql.Tx, load *models.LoadChange, now time.Time) error {
	query := `
		UPDATE responders SET
			current_load = current_load + ?1,
			version = version + 1,
			updated_at = ?2
		WHERE id = ?3 AND version = ?4 AND current_load + ?1 >= 0;
	`
	res, err := tx.ExecContext(ctx, query, load.Delta, formatTime(now), load.ResponderID.String(), load.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update responder load: %w", err)
	}
	return requireOneRow(res, "responder %s at version %d", load.ResponderID, load.ExpectedVersion)
}

// requireOneRow превращает 0 затронутых строк в ErrConflict
func requireOneRow(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: "+format, append([]any{models.ErrConflict}, args...)...)
	}
	return nil
}

func insertNotification(ctx context.Context, tx *sql.Tx, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, incident_id, recipient, recipient_id, event, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`
	_, err := tx.ExecContext(ctx, query,
		n.ID.String(),
		n.IncidentID.String(),
		string(n.Recipient),
		n.RecipientID,
		string(n.Event),
		string(n.Status),
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}
