package v1

import (
	"time"

	"github.com/google/uuid"
)

// CreateIncidentRequest DTO для подачи сообщения об инциденте
// @Description DTO для подачи сообщения об инциденте
type CreateIncidentRequest struct {
	Origin      string   `json:"origin" validate:"required,oneof=named anonymous"`
	ReporterID  *string  `json:"reporter_id,omitempty" validate:"omitempty,min=1,max=255"`
	Type        string   `json:"type" validate:"required,oneof=medical fire police traffic hazmat other"`
	Severity    string   `json:"severity" validate:"required,oneof=low medium high critical"`
	Description string   `json:"description,omitempty" validate:"max=4000"`
	Latitude    float64  `json:"latitude" validate:"latitude"`
	Longitude   float64  `json:"longitude" validate:"longitude"`
	Address     string   `json:"address,omitempty" validate:"max=500"`
	Media       []string `json:"media,omitempty" validate:"max=10,dive,url"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID                    uuid.UUID  `json:"id"`
	Origin                string     `json:"origin"`
	ReporterID            *string    `json:"reporter_id,omitempty"`
	Type                  string     `json:"type"`
	Severity              string     `json:"severity"`
	Priority              int        `json:"priority"`
	Description           string     `json:"description,omitempty"`
	Latitude              float64    `json:"latitude"`
	Longitude             float64    `json:"longitude"`
	Address               string     `json:"address,omitempty"`
	Media                 []string   `json:"media"`
	Status                string     `json:"status"`
	AssignedResponderID   *uuid.UUID `json:"assigned_responder_id,omitempty"`
	AssignedResponderType *string    `json:"assigned_responder_type,omitempty"`
	AssignedAt            *time.Time `json:"assigned_at,omitempty"`
	QueuedAt              *time.Time `json:"queued_at,omitempty"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	Version               int64      `json:"version"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// CreateIncidentResponse DTO ответа на подачу: инцидент и итог первой попытки назначения
// @Description DTO ответа на подачу сообщения
type CreateIncidentResponse struct {
	Incident *IncidentResponse `json:"incident"`
	Outcome  string            `json:"outcome,omitempty"`
	Warning  string            `json:"warning,omitempty"`
}

// DispatchResponse DTO с результатом диспетчеризации
// @Description DTO с результатом диспетчеризации
type DispatchResponse struct {
	Outcome   string             `json:"outcome"`
	Incident  *IncidentResponse  `json:"incident"`
	Responder *ResponderResponse `json:"responder,omitempty"`
}

// AssignRequest DTO для ручного назначения
// @Description DTO для ручного назначения
type AssignRequest struct {
	ResponderID string `json:"responder_id" validate:"required,uuid"`
	Notes       string `json:"notes,omitempty" validate:"max=1000"`
}

// ResponderActionRequest DTO для действий ответчика: start, resolve, reject
// @Description DTO для действий ответчика
type ResponderActionRequest struct {
	ResponderID string `json:"responder_id" validate:"required,uuid"`
	Notes       string `json:"notes,omitempty" validate:"max=1000"`
}

// ReasonRequest DTO для unassign и cancel
// @Description DTO с причиной операции
type ReasonRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// HistoryEntryResponse DTO записи журнала маршрутизации
// @Description DTO записи журнала маршрутизации
type HistoryEntryResponse struct {
	ID          uuid.UUID  `json:"id"`
	IncidentID  uuid.UUID  `json:"incident_id"`
	ResponderID *uuid.UUID `json:"responder_id,omitempty"`
	Decision    string     `json:"decision"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateResponderRequest DTO для регистрации ответчика
// @Description DTO для регистрации ответчика
type CreateResponderRequest struct {
	Name           string `json:"name" validate:"required,min=2,max=255"`
	Specialization string `json:"specialization" validate:"required,oneof=medical fire police traffic"`
	Availability   string `json:"availability,omitempty" validate:"omitempty,oneof=available busy on_break off_duty"`
	Approval       string `json:"approval,omitempty" validate:"omitempty,oneof=pending approved suspended rejected"`
}

// UpdateResponderStatusRequest DTO для смены доступности или одобрения
// @Description DTO для смены статуса ответчика
type UpdateResponderStatusRequest struct {
	Availability *string `json:"availability,omitempty" validate:"omitempty,oneof=available busy on_break off_duty"`
	Approval     *string `json:"approval,omitempty" validate:"omitempty,oneof=pending approved suspended rejected"`
}

// ResponderResponse DTO для ответа с информацией об ответчике
// @Description DTO для ответа с информацией об ответчике
type ResponderResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	Availability   string    `json:"availability"`
	Approval       string    `json:"approval"`
	CurrentLoad    int       `json:"current_load"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SweepResponse DTO с итогом прохода по очереди
// @Description DTO с итогом прохода по очереди
type SweepResponse struct {
	Reassigned  int  `json:"reassigned"`
	StillQueued int  `json:"still_queued"`
	Failed      int  `json:"failed"`
	Skipped     bool `json:"skipped"`
}

// LoadDriftResponse DTO отчета о расхождении нагрузки
// @Description DTO отчета о расхождении нагрузки
type LoadDriftResponse struct {
	Consistent bool                `json:"consistent"`
	Drift      []LoadDriftEntryDTO `json:"drift"`
}

type LoadDriftEntryDTO struct {
	ResponderID uuid.UUID `json:"responder_id"`
	CurrentLoad int       `json:"current_load"`
	ActualLoad  int       `json:"actual_load"`
}
