package service

//go:generate mockgen -source=matcher.go -destination=mocks/mock_matcher.go -package=mocks

import (
	"context"
	"fmt"
	"sort"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Matcher подбирает ответчика для инцидента. Отсутствие кандидата - nil, nil.
type Matcher interface {
	FindCandidate(ctx context.Context, incident *models.Incident, exclude []uuid.UUID) (*models.Responder, error)
}

type loadMatcher struct {
	repo    ResponderRepository
	maxLoad int
	logger  *logrus.Logger
}

func NewMatcher(repo ResponderRepository, logger *logrus.Logger, cfg *config.Config) Matcher {
	return &loadMatcher{
		repo:    repo,
		maxLoad: cfg.MaxResponderLoad,
		logger:  logger,
	}
}

// FindCandidate выбирает одобренного доступного ответчика нужного профиля с наименьшей нагрузкой.
// При равной нагрузке побеждает более ранняя регистрация, затем меньший ID.
func (m *loadMatcher) FindCandidate(ctx context.Context, incident *models.Incident, exclude []uuid.UUID) (*models.Responder, error) {
	spec, ok := models.SpecializationFor(incident.Type)
	if !ok {
		return nil, fmt.Errorf("matcher: %w: incident type %q has no responder specialization", models.ErrValidation, incident.Type)
	}

	responders, err := m.repo.ListBySpecialization(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("matcher: could not load responders: %w", err)
	}

	candidates := make([]*models.Responder, 0, len(responders))
	for _, r := range responders {
		if !m.eligible(r, spec, exclude) {
			continue
		}
		candidates = append(candidates, r)
	}

	m.logger.WithFields(logrus.Fields{
		"component":      "matcher",
		"incident_id":    incident.ID,
		"specialization": spec,
		"pool":           len(responders),
		"candidates":     len(candidates),
	}).Debug("Responder candidates filtered")

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CurrentLoad != b.CurrentLoad {
			return a.CurrentLoad < b.CurrentLoad
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return candidates[0], nil
}

func (m *loadMatcher) eligible(r *models.Responder, spec models.Specialization, exclude []uuid.UUID) bool {
	if r.Specialization != spec || r.Approval != models.ApprovalApproved || r.Availability != models.AvailabilityAvailable {
		return false
	}
	if m.maxLoad > 0 && r.CurrentLoad >= m.maxLoad {
		return false
	}
	for _, id := range exclude {
		if r.ID == id {
			return false
		}
	}
	return true
}
