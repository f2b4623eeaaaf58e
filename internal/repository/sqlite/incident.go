package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/google/uuid"
)

const incidentColumns = `id, origin, reporter_id, type, severity, priority, description, latitude, longitude,
	address, media, status, assigned_responder_id, assigned_responder_type, assigned_at, queued_at,
	started_at, resolved_at, cancelled_at, version, created_at, updated_at`

type IncidentRepository struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) service.IncidentRepository {
	return &IncidentRepository{db: db}
}

// Create создает новую запись об инциденте
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	media, err := json.Marshal(incident.Media)
	if err != nil {
		return fmt.Errorf("failed to marshal incident media: %w", err)
	}

	now := nowUTC()
	query := `
		INSERT INTO incidents (
			id, origin, reporter_id, type, severity, priority, description, latitude, longitude,
			address, media, status, version, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?);
	`
	_, err = r.db.ExecContext(ctx, query,
		incident.ID.String(),
		string(incident.Origin),
		incident.ReporterID,
		string(incident.Type),
		string(incident.Severity),
		incident.Priority,
		incident.Description,
		incident.Latitude,
		incident.Longitude,
		incident.Address,
		string(media),
		string(incident.Status),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}

	incident.Version = 1
	incident.CreatedAt = now
	incident.UpdatedAt = now
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = ?;`

	incident, err := scanIncident(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: incident with id %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// ListIncidents возвращает список инцидентов с пагинацией, новые первыми
func (r *IncidentRepository) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	offset := (filter.Page - 1) * filter.PageSize

	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE (?1 = '' OR status = ?1)
		ORDER BY created_at DESC, id
		LIMIT ?2 OFFSET ?3;
	`
	rows, err := r.db.QueryContext(ctx, query, string(filter.Status), filter.PageSize, offset)
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
	var args []any
	if after := page.After; after != nil {
		queuedAt := formatTimePtr(after.QueuedAt)
		tail := "(queued_at, created_at, id) > (?, ?, ?)"
		args = append(args, queuedAt, formatTime(after.CreatedAt), after.ID.String())
		if page.PriorityFirst {
			tail = "(priority < ? OR (priority = ? AND " + tail + "))"
			args = append([]any{after.Priority, after.Priority}, args...)
		}
		cond += " AND " + tail
	}
	args = append(args, page.Limit)

	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE ` + cond + `
		ORDER BY ` + order + `
		LIMIT ?;
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued incidents: %w", err)
	}
	return collectIncidents(rows)
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		incident                                    models.Incident
		id, media, createdAt, updatedAt             string
		reporterID, responderID, responderType      sql.NullString
		assignedAt, queuedAt, startedAt, resolvedAt sql.NullString
		cancelledAt                                 sql.NullString
	)
	err := row.Scan(
		&id,
		&incident.Origin,
		&reporterID,
		&incident.Type,
		&incident.Severity,
		&incident.Priority,
		&incident.Description,
		&incident.Latitude,
		&incident.Longitude,
		&incident.Address,
		&media,
		&incident.Status,
		&responderID,
		&responderType,
		&assignedAt,
		&queuedAt,
		&startedAt,
		&resolvedAt,
		&cancelledAt,
		&incident.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if incident.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("failed to parse incident id: %w", err)
	}
	if reporterID.Valid {
		incident.ReporterID = &reporterID.String
	}
	if incident.AssignedResponderID, err = uuidPtr(responderID); err != nil {
		return nil, err
	}
	if responderType.Valid {
		spec := models.Specialization(responderType.String)
		incident.AssignedResponderType = &spec
	}

	incident.Media = []string{}
	if err := json.Unmarshal([]byte(media), &incident.Media); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident media: %w", err)
	}

	if incident.AssignedAt, err = parseTimePtr(assignedAt); err != nil {
		return nil, err
	}
	if incident.QueuedAt, err = parseTimePtr(queuedAt); err != nil {
		return nil, err
	}
	if incident.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if incident.ResolvedAt, err = parseTimePtr(resolvedAt); err != nil {
		return nil, err
	}
	if incident.CancelledAt, err = parseTimePtr(cancelledAt); err != nil {
		return nil, err
	}
	if incident.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if incident.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &incident, nil
}

func collectIncidents(rows *sql.Rows) ([]*models.Incident, error) {
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
