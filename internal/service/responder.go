package service

//go:generate mockgen -source=responder.go -destination=mocks/mock_responder.go -package=mocks

import (
	"context"
	"fmt"
	"strings"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ResponderRepository определяет контракт реестра ответчиков
type ResponderRepository interface {
	Create(ctx context.Context, responder *models.Responder) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Responder, error)
	ListResponders(ctx context.Context, page, pageSize int) ([]*models.Responder, error)
	ListBySpecialization(ctx context.Context, spec models.Specialization) ([]*models.Responder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update models.ResponderStatusUpdate) (*models.Responder, error)
	LoadDrift(ctx context.Context) ([]models.LoadDrift, error)
}

// AvailabilityNotifier получает сигнал, когда ответчик становится доступен
type AvailabilityNotifier interface {
	Trigger()
}

// ResponderService определяет контракт управления ответчиками
type ResponderService interface {
	RegisterResponder(ctx context.Context, responder *models.Responder) error
	GetResponder(ctx context.Context, id uuid.UUID) (*models.Responder, error)
	ListResponders(ctx context.Context, page, pageSize int) ([]*models.Responder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update models.ResponderStatusUpdate) (*models.Responder, error)
	CheckLoadIntegrity(ctx context.Context) ([]models.LoadDrift, error)
}

type responderService struct {
	repo     ResponderRepository
	notifier AvailabilityNotifier
	logger   *logrus.Logger
}

func NewResponderService(repo ResponderRepository, notifier AvailabilityNotifier, logger *logrus.Logger) ResponderService {
	return &responderService{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// RegisterResponder добавляет ответчика в реестр с нулевой нагрузкой
func (s *responderService) RegisterResponder(ctx context.Context, responder *models.Responder) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":        "responder",
		"method":         "RegisterResponder",
		"specialization": responder.Specialization,
	})

	if strings.TrimSpace(responder.Name) == "" {
		return fmt.Errorf("service: could not register responder: %w: name is required", models.ErrValidation)
	}
	if !validSpecialization(responder.Specialization) {
		return fmt.Errorf("service: could not register responder: %w: unknown specialization %q", models.ErrValidation, responder.Specialization)
	}
	if responder.Availability == "" {
		responder.Availability = models.AvailabilityOffDuty
	}
	if responder.Approval == "" {
		responder.Approval = models.ApprovalPending
	}
	if !validAvailability(responder.Availability) || !validApproval(responder.Approval) {
		return fmt.Errorf("service: could not register responder: %w: unknown availability or approval state", models.ErrValidation)
	}
	if responder.ID == uuid.Nil {
		responder.ID = uuid.New()
	}
	responder.CurrentLoad = 0

	if err := s.repo.Create(ctx, responder); err != nil {
		log.WithError(err).Error("Failed to create responder in repository")
		return fmt.Errorf("service: could not register responder: %w", err)
	}

	log.WithField("responder_id", responder.ID).Info("Responder registered")
	if isDispatchable(responder) {
		s.notifier.Trigger()
	}
	return nil
}

func (s *responderService) GetResponder(ctx context.Context, id uuid.UUID) (*models.Responder, error) {
	responder, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: could not get responder: %w", err)
	}
	return responder, nil
}

func (s *responderService) ListResponders(ctx context.Context, page, pageSize int) ([]*models.Responder, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	responders, err := s.repo.ListResponders(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("service: could not list responders: %w", err)
	}
	return responders, nil
}

// UpdateStatus меняет доступность и/или одобрение ответчика.
// Переход в available запускает внеочередной проход по очереди.
func (s *responderService) UpdateStatus(ctx context.Context, id uuid.UUID, update models.ResponderStatusUpdate) (*models.Responder, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "responder",
		"method":       "UpdateStatus",
		"responder_id": id,
	})

	if update.Availability == nil && update.Approval == nil {
		return nil, fmt.Errorf("service: could not update responder status: %w: nothing to update", models.ErrValidation)
	}
	if update.Availability != nil && !validAvailability(*update.Availability) {
		return nil, fmt.Errorf("service: could not update responder status: %w: unknown availability %q", models.ErrValidation, *update.Availability)
	}
	if update.Approval != nil && !validApproval(*update.Approval) {
		return nil, fmt.Errorf("service: could not update responder status: %w: unknown approval %q", models.ErrValidation, *update.Approval)
	}

	responder, err := s.repo.UpdateStatus(ctx, id, update)
	if err != nil {
		log.WithError(err).Warn("Failed to update responder status")
		return nil, fmt.Errorf("service: could not update responder status: %w", err)
	}

	log.WithFields(logrus.Fields{
		"availability": responder.Availability,
		"approval":     responder.Approval,
	}).Info("Responder status updated")

	if isDispatchable(responder) {
		s.notifier.Trigger()
	}
	return responder, nil
}

// CheckLoadIntegrity сверяет current_load с фактическим числом активных назначений
func (s *responderService) CheckLoadIntegrity(ctx context.Context) ([]models.LoadDrift, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "responder",
		"method":  "CheckLoadIntegrity",
	})

	drift, err := s.repo.LoadDrift(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to compute load drift")
		return nil, fmt.Errorf("service: could not check load integrity: %w", err)
	}
	for _, d := range drift {
		log.WithFields(logrus.Fields{
			"responder_id": d.ResponderID,
			"current_load": d.CurrentLoad,
			"actual_load":  d.ActualLoad,
		}).Warn("Data integrity: responder load drift detected")
	}
	return drift, nil
}

func isDispatchable(r *models.Responder) bool {
	return r.Availability == models.AvailabilityAvailable && r.Approval == models.ApprovalApproved
}

func validSpecialization(s models.Specialization) bool {
	switch s {
	case models.SpecMedical, models.SpecFire, models.SpecPolice, models.SpecTraffic:
		return true
	}
	return false
}

func validAvailability(a models.Availability) bool {
	switch a {
	case models.AvailabilityAvailable, models.AvailabilityBusy, models.AvailabilityOnBreak, models.AvailabilityOffDuty:
		return true
	}
	return false
}

func validApproval(a models.Approval) bool {
	switch a {
	case models.ApprovalPending, models.ApprovalApproved, models.ApprovalSuspended, models.ApprovalRejected:
		return true
	}
	return false
}
