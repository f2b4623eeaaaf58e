package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type HistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) service.HistoryRepository {
	return &HistoryRepository{db: db}
}

// AppendHistory добавляет запись в журнал маршрутизации
func (r *HistoryRepository) AppendHistory(ctx context.Context, entry *models.RoutingHistoryEntry) error {
	if err := insertHistory(ctx, r.db, entry); err != nil {
		return fmt.Errorf("failed to append routing history: %w", err)
	}
	return nil
}

// ListHistory возвращает журнал инцидента от новых записей к старым
func (r *HistoryRepository) ListHistory(ctx context.Context, incidentID uuid.UUID) ([]*models.RoutingHistoryEntry, error) {
	query := `
		SELECT id, incident_id, responder_id, decision, notes, created_at
		FROM routing_history
		WHERE incident_id = $1
		ORDER BY created_at DESC, seq DESC;
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.RoutingHistoryEntry, 0)
	for rows.Next() {
		entry := &models.RoutingHistoryEntry{}
		if err := rows.Scan(
			&entry.ID,
			&entry.IncidentID,
			&entry.ResponderID,
			&entry.Decision,
			&entry.Notes,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan routing history row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return entries, nil
}

// execer - общий интерфейс пула и транзакции
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertHistory(ctx context.Context, db execer, entry *models.RoutingHistoryEntry) error {
	query := `
		INSERT INTO routing_history (id, incident_id, responder_id, decision, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := db.Exec(ctx, query,
		entry.ID,
		entry.IncidentID,
		entry.ResponderID,
		string(entry.Decision),
		entry.Notes,
		entry.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: incident with id %s", models.ErrNotFound, entry.IncidentID)
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
