package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const responderColumns = `id, name, specialization, availability, approval, current_load, version, created_at, updated_at`

type ResponderRepository struct {
	db *pgxpool.Pool
}

func NewResponderRepository(db *pgxpool.Pool) service.ResponderRepository {
	return &ResponderRepository{db: db}
}

// Create добавляет ответчика в реестр
func (r *ResponderRepository) Create(ctx context.Context, responder *models.Responder) error {
	query := `
		INSERT INTO responders (id, name, specialization, availability, approval, current_load, version)
		VALUES ($1, $2, $3, $4, $5, 0, 1)
		RETURNING current_load, version, created_at, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		responder.ID,
		responder.Name,
		string(responder.Specialization),
		string(responder.Availability),
		string(responder.Approval),
	).Scan(&responder.CurrentLoad, &responder.Version, &responder.CreatedAt, &responder.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create responder: %w", err)
	}
	return nil
}

// GetByID возвращает ответчика по UUID
func (r *ResponderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Responder, error) {
	query := `SELECT ` + responderColumns + ` FROM responders WHERE id = $1;`

	responder, err := scanResponder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: responder with id %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get responder by id: %w", err)
	}
	return responder, nil
}

// ListResponders возвращает реестр с пагинацией в порядке регистрации
func (r *ResponderRepository) ListResponders(ctx context.Context, page, pageSize int) ([]*models.Responder, error) {
	offset := (page - 1) * pageSize

	query := `SELECT ` + responderColumns + ` FROM responders ORDER BY created_at, id LIMIT $1 OFFSET $2;`
	rows, err := r.db.Query(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list responders: %w", err)
	}
	return collectResponders(rows)
}

// ListBySpecialization возвращает всех ответчиков профиля, фильтрацию выполняет Matcher
func (r *ResponderRepository) ListBySpecialization(ctx context.Context, spec models.Specialization) ([]*models.Responder, error) {
	query := `SELECT ` + responderColumns + ` FROM responders WHERE specialization = $1 ORDER BY created_at, id;`
	rows, err := r.db.Query(ctx, query, string(spec))
	if err != nil {
		return nil, fmt.Errorf("failed to list responders by specialization: %w", err)
	}
	return collectResponders(rows)
}

// UpdateStatus меняет доступность и/или статус одобрения, версия увеличивается
func (r *ResponderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update models.ResponderStatusUpdate) (*models.Responder, error) {
	var availability, approval *string
	if update.Availability != nil {
		v := string(*update.Availability)
		availability = &v
	}
	if update.Approval != nil {
		v := string(*update.Approval)
		approval = &v
	}

	query := `
		UPDATE responders SET
			availability = COALESCE($2::text, availability),
			approval = COALESCE($3::text, approval),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + responderColumns + `;
	`
	responder, err := scanResponder(r.db.QueryRow(ctx, query, id, availability, approval))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to compute load drift: %w", err)
	}
	defer rows.Close()

	drifts := make([]models.LoadDrift, 0)
	for rows.Next() {
		var d models.LoadDrift
		if err := rows.Scan(&d.ResponderID, &d.CurrentLoad, &d.ActualLoad); err != nil {
			return nil, fmt.Errorf("failed to scan load drift row: %w", err)
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error load drift iteration: %w", err)
	}
	return drifts, nil
}

func scanResponder(row rowScanner) (*models.Responder, error) {
	var responder models.Responder
	err := row.Scan(
		&responder.ID,
		&responder.Name,
		&responder.Specialization,
		&responder.Availability,
		&responder.Approval,
		&responder.CurrentLoad,
		&responder.Version,
		&responder.CreatedAt,
		&responder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &responder, nil
}

func collectResponders(rows pgx.Rows) ([]*models.Responder, error) {
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
