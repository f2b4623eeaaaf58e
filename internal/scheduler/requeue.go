package scheduler

//go:generate mockgen -source=requeue.go -destination=mocks/mock_requeue.go -package=mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	sweepLockKey    = "dispatch:sweep:lock"
	defaultPageSize = 100
)

// SweepReport - итог одного прохода по очереди
type SweepReport struct {
	Reassigned  int  `json:"reassigned"`
	StillQueued int  `json:"still_queued"`
	Failed      int  `json:"failed"`
	Skipped     bool `json:"skipped"`
}

// Sweeper повторно диспетчеризует инциденты из очереди
type Sweeper interface {
	Sweep(ctx context.Context) (SweepReport, error)
}

// Scheduler запускает Sweep по таймеру и по сигналу Trigger
type Scheduler struct {
	incidents  service.IncidentRepository
	dispatcher service.DispatchService
	locker     Locker
	logger     *logrus.Logger
	cfg        *config.Config

	trigger chan struct{}
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New создает планировщик; locker может быть nil для одиночного узла
func New(incidents service.IncidentRepository, dispatcher service.DispatchService, locker Locker, logger *logrus.Logger, cfg *config.Config) *Scheduler {
	return &Scheduler{
		incidents:  incidents,
		dispatcher: dispatcher,
		locker:     locker,
		logger:     logger,
		cfg:        cfg,
		trigger:    make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// Sweep проходит по инцидентам в очереди и пытается назначить каждый.
// Ошибка по одному инциденту логируется и не прерывает проход.
func (s *Scheduler) Sweep(ctx context.Context) (SweepReport, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "scheduler",
		"method":  "Sweep",
	})

	var report SweepReport
	if s.locker != nil {
		token, ok, err := s.locker.Acquire(ctx, sweepLockKey, s.cfg.SweepLockTTL)
		if err != nil {
			log.WithError(err).Error("Failed to acquire sweep lock")
			return report, fmt.Errorf("scheduler: could not sweep queue: %w", err)
		}
		if !ok {
			log.Debug("Sweep lock held by another replica, skipping")
			report.Skipped = true
			return report, nil
		}
		defer func() {
			// контекст прохода мог быть отменен, блокировку снимаем отдельно
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := s.locker.Release(releaseCtx, sweepLockKey, token); err != nil {
				log.WithError(err).Warn("Failed to release sweep lock")
			}
		}()
	}

	page := models.QueuePage{
		PriorityFirst: s.cfg.RequeuePriorityFirst,
		Limit:         s.cfg.RequeueBatchSize,
	}
	if page.Limit <= 0 {
		page.Limit = defaultPageSize
	}

	// Оставшиеся в очереди инциденты сохраняют queued_at, поэтому страницы
	// идут по курсору, а не с начала очереди
	seen := 0
	for {
		queued, err := s.incidents.ListQueued(ctx, page)
		if err != nil {
			log.WithError(err).Error("Failed to list queued incidents")
			return report, fmt.Errorf("scheduler: could not sweep queue: %w", err)
		}
		seen += len(queued)

		for _, incident := range queued {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("scheduler: sweep interrupted: %w", err)
			}
			s.redispatch(ctx, log, incident, &report)
		}

		if len(queued) < page.Limit {
			break
		}
		page.After = queued[len(queued)-1]
	}

	if seen > 0 {
		log.WithFields(logrus.Fields{
			"reassigned":   report.Reassigned,
			"still_queued": report.StillQueued,
			"failed":       report.Failed,
		}).Info("Queue sweep completed")
	}
	return report, nil
}

func (s *Scheduler) redispatch(ctx context.Context, log *logrus.Entry, incident *models.Incident, report *SweepReport) {
	result, err := s.dispatcher.Dispatch(ctx, incident.ID)
	if err != nil {
		report.Failed++
		log.WithError(err).WithField("incident_id", incident.ID).Warn("Failed to re-dispatch queued incident")
		return
	}
	switch result.Outcome {
	case service.OutcomeAssigned:
		report.Reassigned++
	case service.OutcomeQueued:
		report.StillQueued++
	}
}

// Trigger запрашивает внеочередной проход; повторные сигналы до прохода схлопываются
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start запускает цикл: сразу один проход, затем по таймеру и по Trigger
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithField("interval", s.cfg.RequeueInterval).Info("Starting requeue scheduler...")
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop останавливает цикл и ждет завершения текущего прохода
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("Requeue scheduler stopped.")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.RequeueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.trigger:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Error("Scheduled sweep failed")
	}
}
