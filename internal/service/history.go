package service

//go:generate mockgen -source=history.go -destination=mocks/mock_history.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HistoryRepository - хранилище журнала маршрутизации
type HistoryRepository interface {
	AppendHistory(ctx context.Context, entry *models.RoutingHistoryEntry) error
	ListHistory(ctx context.Context, incidentID uuid.UUID) ([]*models.RoutingHistoryEntry, error)
}

// HistoryLog - журнал решений маршрутизации: только добавление, чтение от новых к старым
type HistoryLog interface {
	Append(ctx context.Context, entry *models.RoutingHistoryEntry) error
	GetHistory(ctx context.Context, incidentID uuid.UUID) ([]*models.RoutingHistoryEntry, error)
}

type historyLog struct {
	repo       HistoryRepository
	attempts   int
	retryDelay time.Duration
	logger     *logrus.Logger
}

func NewHistoryLog(repo HistoryRepository, logger *logrus.Logger, cfg *config.Config) HistoryLog {
	return &historyLog{
		repo:       repo,
		attempts:   cfg.HistoryAppendAttempts,
		retryDelay: cfg.DispatchRetryDelay,
		logger:     logger,
	}
}

// Append пишет запись с повторами; после исчерпания попыток ошибка возвращается вызывающему
func (h *historyLog) Append(ctx context.Context, entry *models.RoutingHistoryEntry) error {
	log := h.logger.WithFields(logrus.Fields{
		"service":     "history",
		"method":      "Append",
		"incident_id": entry.IncidentID,
		"decision":    entry.Decision,
	})

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	attempts := max(h.attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = h.repo.AppendHistory(ctx, entry); err == nil {
			return nil
		}
		if errors.Is(err, models.ErrNotFound) || ctx.Err() != nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Failed to append routing history entry")
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("service: could not append routing history: %w", ctx.Err())
			case <-time.After(h.retryDelay * time.Duration(attempt)):
			}
		}
	}

	log.WithError(err).Error("Routing history append failed, audit trail is incomplete")
	return fmt.Errorf("service: could not append routing history: %w", err)
}

// GetHistory возвращает журнал инцидента, новые записи первыми
func (h *historyLog) GetHistory(ctx context.Context, incidentID uuid.UUID) ([]*models.RoutingHistoryEntry, error) {
	entries, err := h.repo.ListHistory(ctx, incidentID)
	if err != nil {
		h.logger.WithError(err).WithField("incident_id", incidentID).Error("Failed to read routing history")
		return nil, fmt.Errorf("service: could not get routing history: %w", err)
	}
	return entries, nil
}
