package models

import (
	"time"

	"github.com/google/uuid"
)

// Decision - тип решения маршрутизации в журнале
type Decision string

const (
	DecisionAssigned   Decision = "assigned"
	DecisionQueued     Decision = "queued"
	DecisionRejected   Decision = "rejected"
	DecisionStarted    Decision = "started"
	DecisionCompleted  Decision = "completed"
	DecisionUnassigned Decision = "unassigned"
	DecisionCancelled  Decision = "cancelled"
)

// RoutingHistoryEntry - запись журнала маршрутизации, только добавление
type RoutingHistoryEntry struct {
	ID          uuid.UUID  `json:"id"`
	IncidentID  uuid.UUID  `json:"incident_id"`
	ResponderID *uuid.UUID `json:"responder_id,omitempty"`
	Decision    Decision   `json:"decision"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type NotificationRecipient string

const (
	RecipientResponder NotificationRecipient = "responder"
	RecipientReporter  NotificationRecipient = "reporter"
)

type NotificationEvent string

const (
	EventAssignment    NotificationEvent = "assignment"
	EventStatusChanged NotificationEvent = "status_changed"
)

// Notification - логическое уведомление, сохраняется в той же транзакции, что и переход
type Notification struct {
	ID          uuid.UUID             `json:"id"`
	IncidentID  uuid.UUID             `json:"incident_id"`
	Recipient   NotificationRecipient `json:"recipient"`
	RecipientID string                `json:"recipient_id"`
	Event       NotificationEvent     `json:"event"`
	Status      IncidentStatus        `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
}

// Transition - атомарная единица изменения: инцидент, нагрузка ответчика, журнал и уведомления.
// Incident.Version должен содержать версию, прочитанную до изменения.
type Transition struct {
	Incident      *Incident
	Load          *LoadChange
	Entry         *RoutingHistoryEntry
	Notifications []*Notification
}
