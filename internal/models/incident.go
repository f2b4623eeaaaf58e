package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentOrigin - кто подал сообщение об инциденте
type IncidentOrigin string

const (
	OriginNamed     IncidentOrigin = "named"
	OriginAnonymous IncidentOrigin = "anonymous"
)

// IncidentType - категория инцидента
type IncidentType string

const (
	IncidentMedical IncidentType = "medical"
	IncidentFire    IncidentType = "fire"
	IncidentPolice  IncidentType = "police"
	IncidentTraffic IncidentType = "traffic"
	IncidentHazmat  IncidentType = "hazmat"
	IncidentOther   IncidentType = "other"
)

// Severity - уровень срочности, из него выводится приоритет
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityPriority = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Priority возвращает числовой приоритет (1..4), 0 для неизвестного уровня
func (s Severity) Priority() int {
	return severityPriority[s]
}

type Incident struct {
	ID                    uuid.UUID       `json:"id"`
	Origin                IncidentOrigin  `json:"origin"`
	ReporterID            *string         `json:"reporter_id,omitempty"`
	Type                  IncidentType    `json:"type"`
	Severity              Severity        `json:"severity"`
	Priority              int             `json:"priority"`
	Description           string          `json:"description"`
	Latitude              float64         `json:"latitude"`
	Longitude             float64         `json:"longitude"`
	Address               string          `json:"address"`
	Media                 []string        `json:"media"`
	Status                IncidentStatus  `json:"status"`
	AssignedResponderID   *uuid.UUID      `json:"assigned_responder_id,omitempty"`
	AssignedResponderType *Specialization `json:"assigned_responder_type,omitempty"`
	AssignedAt            *time.Time      `json:"assigned_at,omitempty"`
	QueuedAt              *time.Time      `json:"queued_at,omitempty"`
	StartedAt             *time.Time      `json:"started_at,omitempty"`
	ResolvedAt            *time.Time      `json:"resolved_at,omitempty"`
	CancelledAt           *time.Time      `json:"cancelled_at,omitempty"`
	Version               int64           `json:"version"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Clone возвращает глубокую копию, чтобы переход не трогал прочитанную запись
func (i *Incident) Clone() *Incident {
	c := *i
	if i.Media != nil {
		c.Media = append([]string(nil), i.Media...)
	}
	return &c
}

// IsBound - привязан ли инцидент к ответчику
func (i *Incident) IsBound() bool {
	return i.AssignedResponderID != nil
}

// Bind привязывает инцидент к ответчику и переводит в assigned
func (i *Incident) Bind(r *Responder, now time.Time) {
	id := r.ID
	spec := r.Specialization
	i.Status = StatusAssigned
	i.AssignedResponderID = &id
	i.AssignedResponderType = &spec
	i.AssignedAt = &now
	i.QueuedAt = nil
}

// Unbind снимает привязку; статус выставляет вызывающий код
func (i *Incident) Unbind() {
	i.AssignedResponderID = nil
	i.AssignedResponderType = nil
	i.AssignedAt = nil
}

// IncidentFilter - параметры выборки списка инцидентов
type IncidentFilter struct {
	Status   IncidentStatus
	Page     int
	PageSize int
}

// QueuePage - страница очереди. After - последний инцидент предыдущей страницы,
// выборка продолжается строго после него в том же порядке.
type QueuePage struct {
	PriorityFirst bool
	Limit         int
	After         *Incident
}
