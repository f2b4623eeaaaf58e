package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OutboxStore - таблица notifications: чтение неотправленных и отметка отправки
type OutboxStore interface {
	ListUnpublished(ctx context.Context, before time.Time, limit int) ([]*models.Notification, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Relay досылает уведомления, которые не удалось опубликовать сразу после перехода.
// Доставка "хотя бы один раз": получатель различает повторы по Event.ID.
type Relay struct {
	store     OutboxStore
	publisher Publisher
	logger    *logrus.Logger
	cfg       *config.Config
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewRelay(store OutboxStore, publisher Publisher, logger *logrus.Logger, cfg *config.Config) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RelayOnce публикует неотправленные уведомления старше OUTBOX_RELAY_GRACE.
// Проход останавливается на первой ошибке публикации: приемник, скорее всего, недоступен.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	log := r.logger.WithField("component", "outbox_relay")
	limit := max(r.cfg.OutboxRelayBatchSize, 1)
	before := r.now().Add(-r.cfg.OutboxRelayGrace)

	relayed := 0
	for {
		pending, err := r.store.ListUnpublished(ctx, before, limit)
		if err != nil {
			return relayed, fmt.Errorf("outbox relay: could not list notifications: %w", err)
		}

		sent := make([]uuid.UUID, 0, len(pending))
		var publishErr error
		for _, n := range pending {
			if publishErr = r.publisher.Publish(ctx, EventFromNotification(n)); publishErr != nil {
				log.WithError(publishErr).WithField("notification_id", n.ID).Warn("Failed to relay notification")
				break
			}
			sent = append(sent, n.ID)
		}

		if len(sent) > 0 {
			if err := r.store.MarkPublished(ctx, sent, r.now()); err != nil {
				return relayed, fmt.Errorf("outbox relay: could not mark notifications: %w", err)
			}
			relayed += len(sent)
		}
		if publishErr != nil || len(pending) < limit {
			break
		}
	}

	if relayed > 0 {
		log.WithField("relayed", relayed).Info("Relayed pending notifications")
	}
	return relayed, nil
}

// Start запускает проход по таймеру до отмены ctx
func (r *Relay) Start(ctx context.Context) {
	r.logger.WithField("interval", r.cfg.OutboxRelayInterval).Info("Starting outbox relay...")
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.OutboxRelayInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Stopping outbox relay.")
				return
			case <-ticker.C:
				if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
					r.logger.WithError(err).Error("Outbox relay pass failed")
				}
			}
		}
	}()
}

// Wait ожидает завершения горутины relay
func (r *Relay) Wait() {
	r.wg.Wait()
}
