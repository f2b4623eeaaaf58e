package models

import (
	"time"

	"github.com/google/uuid"
)

// Specialization - профиль ответчика
type Specialization string

const (
	SpecMedical Specialization = "medical"
	SpecFire    Specialization = "fire"
	SpecPolice  Specialization = "police"
	SpecTraffic Specialization = "traffic"
)

var typeSpecialization = map[IncidentType]Specialization{
	IncidentMedical: SpecMedical,
	IncidentFire:    SpecFire,
	IncidentHazmat:  SpecFire,
	IncidentPolice:  SpecPolice,
	IncidentTraffic: SpecTraffic,
	IncidentOther:   SpecPolice,
}

// SpecializationFor возвращает профиль ответчика, который обслуживает тип инцидента
func SpecializationFor(t IncidentType) (Specialization, bool) {
	s, ok := typeSpecialization[t]
	return s, ok
}

type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOnBreak   Availability = "on_break"
	AvailabilityOffDuty   Availability = "off_duty"
)

type Approval string

const (
	ApprovalPending   Approval = "pending"
	ApprovalApproved  Approval = "approved"
	ApprovalSuspended Approval = "suspended"
	ApprovalRejected  Approval = "rejected"
)

type Responder struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	Specialization Specialization `json:"specialization"`
	Availability   Availability   `json:"availability"`
	Approval       Approval       `json:"approval"`
	CurrentLoad    int            `json:"current_load"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CanServe - одобренный ответчик с подходящим профилем
func (r *Responder) CanServe(t IncidentType) bool {
	spec, ok := SpecializationFor(t)
	return ok && r.Approval == ApprovalApproved && r.Specialization == spec
}

// ResponderStatusUpdate - частичное обновление; nil поля не меняются
type ResponderStatusUpdate struct {
	Availability *Availability
	Approval     *Approval
}

// LoadChange - изменение счетчика нагрузки, применяемое вместе с переходом инцидента
type LoadChange struct {
	ResponderID     uuid.UUID
	ExpectedVersion int64
	Delta           int
}

// LoadDrift - расхождение между current_load и реальным числом активных назначений
type LoadDrift struct {
	ResponderID uuid.UUID `json:"responder_id"`
	CurrentLoad int       `json:"current_load"`
	ActualLoad  int       `json:"actual_load"`
}
