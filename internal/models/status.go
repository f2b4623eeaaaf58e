package models

// IncidentStatus - состояние инцидента в жизненном цикле маршрутизации
type IncidentStatus string

const (
	StatusPending    IncidentStatus = "pending"
	StatusQueued     IncidentStatus = "queued"
	StatusAssigned   IncidentStatus = "assigned"
	StatusInProgress IncidentStatus = "in_progress"
	StatusResolved   IncidentStatus = "resolved"
	StatusCancelled  IncidentStatus = "cancelled"
)

var transitions = map[IncidentStatus][]IncidentStatus{
	StatusPending:    {StatusAssigned, StatusQueued, StatusCancelled},
	StatusQueued:     {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusPending, StatusCancelled},
	StatusInProgress: {StatusResolved, StatusPending, StatusCancelled},
}

// CanTransitionTo проверяет, разрешен ли переход из текущего состояния в next
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal - resolved и cancelled
func (s IncidentStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// IsDispatchable - инцидент ждет ответчика
func (s IncidentStatus) IsDispatchable() bool {
	return s == StatusPending || s == StatusQueued
}

// IsActive - к инциденту привязан ответчик
func (s IncidentStatus) IsActive() bool {
	return s == StatusAssigned || s == StatusInProgress
}

func (s IncidentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusAssigned, StatusInProgress, StatusResolved, StatusCancelled:
		return true
	}
	return false
}

// Transition возвращает InvalidTransitionError, если переход запрещен
func (s IncidentStatus) Transition(next IncidentStatus) error {
	if !s.CanTransitionTo(next) {
		return &InvalidTransitionError{From: s, To: next}
	}
	return nil
}
