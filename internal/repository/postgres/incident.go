package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `
	id,
	origin,
	reporter_id,
	type,
	severity,
	priority,
	description,
	ST_Y(location::geometry) AS latitude,
	ST_X(location::geometry) AS longitude,
	address,
	media,
	status,
	assigned_responder_id,
	assigned_responder_type,
	assigned_at,
	queued_at,
	started_at,
	resolved_at,
	cancelled_at,
	version,
	created_at,
	updated_at`

type IncidentRepository struct {
	db *pgxpool.Pool
}

func NewIncidentRepository(db *pgxpool.Pool) service.IncidentRepository {
	return &IncidentRepository{db: db}
}

// Create создает новую запись об инциденте в бд
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	media, err := json.Marshal(incident.Media)
	if err != nil {
		return fmt.Errorf("failed to marshal incident media: %w", err)
	}

	query := `
		INSERT INTO incidents (
			id, origin, reporter_id, type, severity, priority, description,
			location, address, media, status, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, ST_SetSRID(ST_MakePoint($8, $9), 4326), $10, $11::jsonb, $12, 1)
		RETURNING version, created_at, updated_at;
	`
	err = r.db.QueryRow(ctx, query,
		incident.ID,
		string(incident.Origin),
		incident.ReporterID,
		string(incident.Type),
		string(incident.Severity),
		incident.Priority,
		incident.Description,
		incident.Longitude,
		incident.Latitude,
		incident.Address,
		string(media),
		string(incident.Status),
	).Scan(&incident.Version, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1;`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: incident with id %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// ListIncidents возвращает список инцидентов с пагинацией, новые первыми
func (r *IncidentRepository) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	// рассчитываем смещение
	offset := (filter.Page - 1) * filter.PageSize

	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3;
	`
	rows, err := r.db.Query(ctx, query, string(filter.Status), filter.PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return collectIncidents(rows)
}

// ListQueued возвращает страницу очереди: FIFO по queued_at, либо сначала по приоритету.
// Курсор page.After сравнивается кортежем в том же порядке, что и ORDER BY.
func (r *IncidentRepository) ListQueued(ctx context.Context, page models.QueuePage) ([]*models.Incident, error) {
	order := "queued_at ASC, created_at ASC, id"
	if page.PriorityFirst {
		order = "priority DESC, " + order
	}

	cond := "status = 'queued'"
	args := []any{page.Limit}
	if after := page.After; after != nil {
		args = append(args, after.QueuedAt, after.CreatedAt, after.ID)
		tail := "(queued_at, created_at, id) > ($2, $3, $4)"
		if page.PriorityFirst {
			args = append(args, after.Priority)
			tail = "(priority < $5 OR (priority = $5 AND " + tail + "))"
		}
		cond += " AND " + tail
	}

	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE ` + cond + `
		ORDER BY ` + order + `
		LIMIT $1;
	`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued incidents: %w", err)
	}
	return collectIncidents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		incident     models.Incident
		media        []byte
		responderTyp *string
	)
	err := row.Scan(
		&incident.ID,
		&incident.Origin,
		&incident.ReporterID,
		&incident.Type,
		&incident.Severity,
		&incident.Priority,
		&incident.Description,
		&incident.Latitude,
		&incident.Longitude,
		&incident.Address,
		&media,
		&incident.Status,
		&incident.AssignedResponderID,
		&responderTyp,
		&incident.AssignedAt,
		&incident.QueuedAt,
		&incident.StartedAt,
		&incident.ResolvedAt,
		&incident.CancelledAt,
		&incident.Version,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	incident.Media = []string{}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &incident.Media); err != nil {
			return nil, fmt.Errorf("failed to unmarshal incident media: %w", err)
		}
	}
	if responderTyp != nil {
		spec := models.Specialization(*responderTyp)
		incident.AssignedResponderType = &spec
	}
	return &incident, nil
}

func collectIncidents(rows pgx.Rows) ([]*models.Incident, error) {
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}
