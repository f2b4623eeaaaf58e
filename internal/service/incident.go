package service

//go:generate mockgen -source=incident.go -destination=mocks/mock_incident.go -package=mocks

import (
	"context"
	"fmt"
	"strings"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IncidentRepository определяет контракт для работы с бд инцидентов
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
	ListQueued(ctx context.Context, page models.QueuePage) ([]*models.Incident, error)
}

// IncidentCache - кеш инцидентов для чтения; промах возвращает nil, nil
type IncidentCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	Set(ctx context.Context, incident *models.Incident) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// IncidentService определяет контракт приема и чтения сообщений об инцидентах
type IncidentService interface {
	CreateIncident(ctx context.Context, incident *models.Incident) error
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
}

type incidentService struct {
	repo   IncidentRepository
	cache  IncidentCache
	logger *logrus.Logger
	cfg    *config.Config
}

func NewIncidentService(repo IncidentRepository, cache IncidentCache, logger *logrus.Logger, cfg *config.Config) IncidentService {
	return &incidentService{
		repo:   repo,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
	}
}

// CreateIncident регистрирует новое сообщение об инциденте в статусе pending
func (s *incidentService) CreateIncident(ctx context.Context, incident *models.Incident) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "CreateIncident",
		"type":    incident.Type,
	})
	log.Info("Attempting to create a new incident")

	if err := validateIncident(incident); err != nil {
		log.WithError(err).Warn("Incident rejected by validation")
		return fmt.Errorf("service: could not create incident: %w", err)
	}

	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	incident.Status = models.StatusPending
	incident.Priority = incident.Severity.Priority()
	incident.Unbind()
	incident.QueuedAt = nil
	incident.StartedAt = nil
	incident.ResolvedAt = nil
	incident.CancelledAt = nil
	if incident.Media == nil {
		incident.Media = []string{}
	}

	if err := s.repo.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return fmt.Errorf("service: could not create incident: %w", err)
	}

	log.WithField("incident_id", incident.ID).Info("Incident created successfully")
	return nil
}

// GetIncident получает инцидент по ID, сначала из кеша
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Debug("Fetching incident by ID")

	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident from cache")
	}
	if cached != nil {
		return cached, nil
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident in repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.cache.Set(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to put incident into cache")
		return incident, nil
	}

	// Переход мог зафиксироваться и сбросить кеш между чтением и Set:
	// снимок остается в кеше, только если версия не изменилась
	current, err := s.repo.GetByID(ctx, id)
	if err == nil && current.Version == incident.Version {
		return incident, nil
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to drop stale incident snapshot from cache")
	}
	if err != nil {
		log.WithError(err).Warn("Failed to recheck incident version")
		return incident, nil
	}
	log.WithFields(logrus.Fields{
		"cached_version":  incident.Version,
		"current_version": current.Version,
	}).Debug("Incident changed while caching, snapshot dropped")
	return current, nil
}

// ListIncidents возвращает список инцидентов с пагинацией
func (s *incidentService) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}

	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"status":    filter.Status,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("service: could not list incidents: %w: unknown status %q", models.ErrValidation, filter.Status)
	}

	incidents, err := s.repo.ListIncidents(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Debug("Incidents listed successfully")
	return incidents, nil
}

func validateIncident(incident *models.Incident) error {
	if _, ok := models.SpecializationFor(incident.Type); !ok {
		return fmt.Errorf("%w: unknown incident type %q", models.ErrValidation, incident.Type)
	}
	if incident.Severity.Priority() == 0 {
		return fmt.Errorf("%w: unknown severity %q", models.ErrValidation, incident.Severity)
	}
	switch incident.Origin {
	case models.OriginNamed:
		if incident.ReporterID == nil || strings.TrimSpace(*incident.ReporterID) == "" {
			return fmt.Errorf("%w: named report requires reporter_id", models.ErrValidation)
		}
	case models.OriginAnonymous:
		incident.ReporterID = nil
	default:
		return fmt.Errorf("%w: unknown origin %q", models.ErrValidation, incident.Origin)
	}
	return nil
}
