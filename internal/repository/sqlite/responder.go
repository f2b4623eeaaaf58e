package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/google/uuid"
)

const responderColumns = `id, name, specialization, availability, approval, current_load, version, created_at, updated_at`

type ResponderRepository struct {
	db *sql.DB
}

func NewResponderRepository(db *sql.DB) service.ResponderRepository {
	return &ResponderRepository{db: db}
}

// Create добавляет ответчика в реестр с нулевой нагрузкой
func (r *ResponderRepository) Create(ctx context.Context, responder *models.Responder) error {
	now := nowUTC()
	query := `
		INSERT INTO responders (id, name, specialization, availability, approval, current_load, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 1, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, query,
		responder.ID.String(),
		responder.Name,
		string(responder.Specialization),
		string(responder.Availability),
		string(responder.Approval),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create responder: %w", err)
	}

	responder.CurrentLoad = 0
	responder.Version = 1
	responder.CreatedAt = now
	responder.UpdatedAt = now
	return nil
}

// GetByID возвращает ответчика по UUID
func (r *ResponderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Responder, error) {
	query := `SELECT ` + responderColumns + ` FROM responders WHERE id = ?;`

	responder, err := scanResponder(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: responder with id %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get responder by id: %w", err)
	}
	return responder, nil
}

// ListResponders возвращает реестр с пагинацией в порядке регистрации
func (r *ResponderRepository) ListResponders(ctx context.Context, page, pageSize int) ([]*models.Responder, error) {
	offset := (page - 1) * pageSize

	query := `SELECT ` + responderColumns + ` FROM responders ORDER BY created_at, id LIMIT ? OFFSET ?;`
	rows, err := r.db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list responders: %w", err)
	}
	return collectResponders(rows)
}

// ListBySpecialization возвращает всех ответчиков профиля
func (r *ResponderRepository) ListBySpecialization(ctx context.Context, spec models.Specialization) ([]*models.Responder, error) {
	query := `SELECT ` + responderColumns + ` FROM responders WHERE specialization = ? ORDER BY created_at, id;`
	rows, err := r.db.QueryContext(ctx, query, string(spec))
	if err != nil {
		return nil, fmt.Errorf("failed to list responders by specialization: %w", err)
	}
	return collectResponders(rows)
}

// UpdateStatus меняет доступность и/или статус одобрения, версия увеличивается
func (r *ResponderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update models.ResponderStatusUpdate) (*models.Responder, error) {
	var availability, approval any
	if update.Availability != nil {
		availability = string(*update.Availability)
	}
	if update.Approval != nil {
		approval = string(*update.Approval)
	}

	query := `
		UPDATE responders SET
			availability = COALESCE(?, availability),
			approval = COALESCE(?, approval),
			version = version + 1,
			updated_at = ?
		WHERE id = ?
		RETURNING ` + responderColumns + `;
	`
	responder, err := scanResponder(r.db.QueryRowContext(ctx, query, availability, approval, formatTime(nowUTC()), id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: responder with id %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to update responder status: %w", err)
	}
	return responder, nil
}

// LoadDrift сравнивает current_load с числом инцидентов в assigned/in_progress
func (r *ResponderRepository) LoadDrift(ctx context.Context) ([]models.LoadDrift, error) {
	query := `
		SELECT r.id, r.current_load, COUNT(i.id) AS actual_load
		FROM responders r
		LEFT JOIN incidents i
			ON i.assigned_responder_id = r.id
			AND i.status IN ('assigned', 'in_progress')
		GROUP BY r.id, r.current_load
		HAVING r.current_load <> COUNT(i.id)
		ORDER BY r.id;
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to compute load drift: %w", err)
	}
	defer rows.Close()

	drifts := make([]models.LoadDrift, 0)
	for rows.Next() {
		var (
			d  models.LoadDrift
			id string
		)
		if err := rows.Scan(&id, &d.CurrentLoad, &d.ActualLoad); err != nil {
			return nil, fmt.Errorf("failed to scan load drift row: %w", err)
		}
		if d.ResponderID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse responder id: %w", err)
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error load drift iteration: %w", err)
	}
	return drifts, nil
}

func scanResponder(row rowScanner) (*models.Responder, error) {
	var (
		responder            models.Responder
		id                   string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&id,
		&responder.Name,
		&responder.Specialization,
		&responder.Availability,
		&responder.Approval,
		&responder.CurrentLoad,
		&responder.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if responder.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse responder id: %w", err)
	}
	if responder.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if responder.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &responder, nil
}

func collectResponders(rows *sql.Rows) ([]*models.Responder, error) {
	defer rows.Close()

	responders := make([]*models.Responder, 0)
	for rows.Next() {
		responder, err := scanResponder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan responder row: %w", err)
		}
		responders = append(responders, responder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return responders, nil
}
