package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/google/uuid"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) service.HistoryRepository {
	return &HistoryRepository{db: db}
}

// AppendHistory добавляет запись в журнал маршрутизации
func (r *HistoryRepository) AppendHistory(ctx context.Context, entry *models.RoutingHistoryEntry) error {
	if err := insertHistory(ctx, r.db, entry); err != nil {
		return fmt.Errorf("failed to append routing history: %w", err)
	}
	return nil
}

// ListHistory возвращает журнал инцидента от новых записей к старым, при равном времени - по порядку вставки
func (r *HistoryRepository) ListHistory(ctx context.Context, incidentID uuid.UUID) ([]*models.RoutingHistoryEntry, error) {
	query := `
		SELECT id, incident_id, responder_id, decision, notes, created_at
		FROM routing_history
		WHERE incident_id = ?
		ORDER BY created_at DESC, rowid DESC;
	`
	rows, err := r.db.QueryContext(ctx, query, incidentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list routing history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.RoutingHistoryEntry, 0)
	for rows.Next() {
		var (
			entry                 models.RoutingHistoryEntry
			id, incident, created string
			responder             sql.NullString
		)
		if err := rows.Scan(&id, &incident, &responder, &entry.Decision, &entry.Notes, &created); err != nil {
			return nil, fmt.Errorf("failed to scan routing history row: %w", err)
		}
		if entry.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse history id: %w", err)
		}
		if entry.IncidentID, err = uuid.Parse(incident); err != nil {
			return nil, fmt.Errorf("failed to parse incident id: %w", err)
		}
		if entry.ResponderID, err = uuidPtr(responder); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return entries, nil
}

// execer - общий интерфейс *sql.DB и *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertHistory(ctx context.Context, db execer, entry *models.RoutingHistoryEntry) error {
	query := `
		INSERT INTO routing_history (id, incident_id, responder_id, decision, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`
	_, err := db.ExecContext(ctx, query,
		entry.ID.String(),
		entry.IncidentID.String(),
		uuidArg(entry.ResponderID),
		string(entry.Decision),
		entry.Notes,
		formatTime(entry.CreatedAt),
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: incident with id %s", models.ErrNotFound, entry.IncidentID)
	}
	return err
}
