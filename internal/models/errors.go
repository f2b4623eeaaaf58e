package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("concurrent modification")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrResponderNotEligible = errors.New("responder not eligible")
	ErrNotAssignedResponder = errors.New("responder is not assigned to incident")
	ErrValidation           = errors.New("validation failed")
)

// InvalidTransitionError описывает запрещенный переход статуса
type InvalidTransitionError struct {
	From IncidentStatus
	To   IncidentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
