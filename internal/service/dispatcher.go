package service

//go:generate mockgen -source=dispatcher.go -destination=mocks/mock_dispatcher.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/webhook"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TransitionStore применяет переход атомарно: инцидент, нагрузка, журнал и уведомления.
// Несовпадение версии инцидента или ответчика возвращает models.ErrConflict.
type TransitionStore interface {
	CommitTransition(ctx context.Context, t *models.Transition) error
}

// NotificationOutbox отмечает уведомления, опубликованные сразу после перехода.
// Неотмеченные строки дошлет webhook.Relay.
type NotificationOutbox interface {
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type DispatchOutcome string

const (
	OutcomeAssigned DispatchOutcome = "assigned"
	OutcomeQueued   DispatchOutcome = "queued"
	// OutcomeNoop - инцидент уже не ждет назначения
	OutcomeNoop DispatchOutcome = "noop"
)

type DispatchResult struct {
	Outcome   DispatchOutcome
	Incident  *models.Incident
	Responder *models.Responder
}

// DispatchService - единственный путь изменения статуса и назначения инцидента
type DispatchService interface {
	Dispatch(ctx context.Context, incidentID uuid.UUID) (*DispatchResult, error)
	ManualAssign(ctx context.Context, incidentID, responderID uuid.UUID, notes string) (*models.Incident, error)
	Unassign(ctx context.Context, incidentID uuid.UUID, reason string) (*models.Incident, error)
	Start(ctx context.Context, incidentID, responderID uuid.UUID) (*models.Incident, error)
	Resolve(ctx context.Context, incidentID, responderID uuid.UUID, notes string) (*models.Incident, error)
	Reject(ctx context.Context, incidentID, responderID uuid.UUID, reason string) (*DispatchResult, error)
	Cancel(ctx context.Context, incidentID uuid.UUID, reason string) (*models.Incident, error)
}

// DispatcherDeps - зависимости диспетчера
type DispatcherDeps struct {
	Incidents  IncidentRepository
	Responders ResponderRepository
	Store      TransitionStore
	Matcher    Matcher
	Cache      IncidentCache
	Publisher  webhook.Publisher
	Outbox     NotificationOutbox
}

type dispatcher struct {
	incidents  IncidentRepository
	responders ResponderRepository
	store      TransitionStore
	matcher    Matcher
	cache      IncidentCache
	publisher  webhook.Publisher
	outbox     NotificationOutbox
	logger     *logrus.Logger
	cfg        *config.Config
	now        func() time.Time
}

func NewDispatcher(deps DispatcherDeps, logger *logrus.Logger, cfg *config.Config) DispatchService {
	return &dispatcher{
		incidents:  deps.Incidents,
		responders: deps.Responders,
		store:      deps.Store,
		matcher:    deps.Matcher,
		cache:      deps.Cache,
		publisher:  deps.Publisher,
		outbox:     deps.Outbox,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch подбирает ответчика и назначает инцидент либо ставит его в очередь.
// Повторный вызов для уже назначенного инцидента ничего не меняет.
func (d *dispatcher) Dispatch(ctx context.Context, incidentID uuid.UUID) (*DispatchResult, error) {
	log := d.logger.WithFields(logrus.Fields{
		"service":     "dispatch",
		"method":      "Dispatch",
		"incident_id": incidentID,
	})

	result, err := d.dispatch(ctx, log, incidentID, nil)
	if err != nil {
		log.WithError(err).Error("Failed to dispatch incident")
		return nil, fmt.Errorf("service: could not dispatch incident: %w", err)
	}
	return result, nil
}

func (d *dispatcher) dispatch(ctx context.Context, log *logrus.Entry, incidentID uuid.UUID, exclude []uuid.UUID) (*DispatchResult, error) {
	var result *DispatchResult
	err := d.withRetry(ctx, log, func() error {
		var err error
		result, err = d.tryDispatch(ctx, log, incidentID, exclude)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithField("outcome", result.Outcome).Info("Dispatch completed")
	return result, nil
}

func (d *dispatcher) tryDispatch(ctx context.Context, log *logrus.Entry, incidentID uuid.UUID, exclude []uuid.UUID) (*DispatchResult, error) {
	incident, err := d.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if !incident.Status.IsDispatchable() {
		return &DispatchResult{Outcome: OutcomeNoop, Incident: incident}, nil
	}

	candidate, err := d.matcher.FindCandidate(ctx, incident, exclude)
	if err != nil {
		return nil, err
	}

	now := d.now()
	next := incident.Clone()

	if candidate == nil {
		if incident.Status == models.StatusQueued {
			// уже в очереди, решение не изменилось
			return &DispatchResult{Outcome: OutcomeQueued, Incident: incident}, nil
		}
		next.Status = models.StatusQueued
		next.QueuedAt = &now
		t := &models.Transition{
			Incident: next,
			Entry:    d.entry(incident.ID, nil, models.DecisionQueued, "no eligible responder available", now),
		}
		if err := d.commit(ctx, log, t); err != nil {
			return nil, err
		}
		return &DispatchResult{Outcome: OutcomeQueued, Incident: next}, nil
	}

	next.Bind(candidate, now)
	t := &models.Transition{
		Incident: next,
		Load: &models.LoadChange{
			ResponderID:     candidate.ID,
			ExpectedVersion: candidate.Version,
			Delta:           1,
		},
		Entry:         d.entry(incident.ID, &candidate.ID, models.DecisionAssigned, fmt.Sprintf("matched with load %d", candidate.CurrentLoad), now),
		Notifications: d.assignmentNotifications(next, now),
	}
	if err := d.commit(ctx, log, t); err != nil {
		return nil, err
	}

	return &DispatchResult{Outcome: OutcomeAssigned, Incident: next, Responder: loaded(candidate, 1, now)}, nil
}

// ManualAssign - ручное назначение оператором в обход подбора
func (d *dispatcher) ManualAssign(ctx context.Context, incidentID, responderID uuid.UUID, notes string) (*models.Incident, error) {
	log := d.logger.WithFields(logrus.Fields{
		"service":      "dispatch",
		"method":       "ManualAssign",
		"incident_id":  incidentID,
		"responder_id": responderID,
	})

	var result *models.Incident
	err := d.withRetry(ctx, log, func() error {
		incident, err := d.incidents.GetByID(ctx, incidentID)
		if err != nil {
			return err
		}
		if err := incident.Status.Transition(models.StatusAssigned); err != nil {
			return err
		}

		responder, err := d.responders.GetByID(ctx, responderID)
		if err != nil {
			return err
		}
		if !responder.CanServe(incident.Type) {
			return fmt.Errorf("%w: responder %s (approval=%s, specialization=%s) cannot serve %s incident",
				models.ErrResponderNotEligible, responder.ID, responder.Approval, responder.Specialization, incident.Type)
		}

		now := d.now()
		next := incident.Clone()
		next.Bind(responder, now)
		t := &models.Transition{
			Incident: next,
			Load: &models.LoadChange{
				ResponderID:     responder.ID,
				ExpectedVersion: responder.Version,
				Delta:           1,
			},
			Entry:         d.entry(incident.ID, &responder.ID, models.DecisionAssigned, withPrefix("manual assignment", notes), now),
			Notifications: d.assignmentNotifications(next, now),
		}
		if err := d.commit(ctx, log, t); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Manual assignment failed")
		return nil, fmt.Errorf("service: could not assign incident: %w", err)
	}

	log.Info("Incident assigned manually")
	return result, nil
}

// Unassign возвращает инцидент в pending и снимает нагрузку с ответчика
func (d *dispatcher) Unassign(ctx context.Context, incidentID uuid.UUID, reason string) (*models.Incident, error) {
	log := d.logger.WithFields(logrus.Fields{
		"service":     "dispatch",
		"method":      "Unassign",
		"incident_id": incidentID,
	})

	incident, err := d.release(ctx, log, incidentID, release{
		to:       models.StatusPending,
		decision: models.DecisionUnassigned,
		notes:    reason,
	})
	if err != nil {
		log.WithError(err).Warn("Unassign failed")
		return nil, fmt.Errorf("service: could not unassign incident: %w", err)
	}

	log.Info("Incident unassigned")
	return incident, nil
}

// Start - ответчик приступил к работе
func (d *dispatcher) Start(ctx context.Context, incidentID, responderID uuid.UUID) (*models.Incident, error) {
	log := d.logger.WithFields(logrus.Fields{
		"service":      "dispatch",
		"method":       "Start",
		"incident_id":  incidentID,
		"responder_id": responderID,
	})

	var result *models.Incident
	err := d.withRetry(ctx, log, func() error {
		incident, err := d.incidents.GetByID(ctx, incidentID)
		if err != nil {
			return err
		}
		if err := incident.Status.Transition(models.StatusInProgress); err != nil {
			return err
		}
		if err := checkAssignee(incident, responderID); err != nil {
			return err
		}

		now := d.now()
		next := incident.Clone()
		next.Status = models.StatusInProgress
		if next.StartedAt == nil {
			next.StartedAt = &now
		}
		t := &models.Transition{
			Incident: next,
			Entry:    d.entry(incident.ID, &responderID, models.DecisionStarted, "", now),
		}
		if err := d.commit(ctx, log, t); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Start failed")
		return nil, fmt.Errorf("service: could not start incident: %w", err)
	}

	log.Info("Incident in progress")
	return result, nil
}

// Resolve - ответчик завершил работу, нагрузка снимается
func (d *dispatcher) Resolve(ctx context.Context, incidentID, responderID uuid.UUID, notes string) (*models.Incident, error) {
	log := d.logger.WithFields(logrus.Fields{
		"service":      "dispatch",
		"method":       "Resolve",
		"incident_id":  incidentID,
		"responder_id": responderID,
	})

	incident, err := d.release(ctx, log, incidentID, release{
		to:        models.StatusResolved,
		decision:  models.DecisionCompleted,
		notes:     notes,
		assignee:  &responderID,
		notifyNow: true,
	})
	if err != nil {
		log.WithError(err).Warn("Resolve failed")
		return nil, fmt.Errorf("service: could not resolve incident: %w", err)
	}

	log.Info("Incident resolved")
	return incident, nil
}

// Reject - ответчик отказался от назначения; инцидент сразу переназначается без него
func (d *dispatcher) Reject(ctx context.Context, incidentID, responderID uuid.UUID, reason string) (*DispatchResult, error) {
	log := d.logger.WithFields(logrus.Fields{
		"service":      "dispatch",
		"method":       "Reject",
		"incident_id":  incidentID,
		"responder_id": responderID,
	})

	if _, err := d.release(ctx, log, incidentID, release{
		from:     models.StatusAssigned,
		to:       models.StatusPending,
		decision: models.DecisionRejected,
		notes:    reason,
		assignee: &responderID,
	}); err != nil {
		log.WithError(err).Warn("Reject failed")
		return nil, fmt.Errorf("service: could not reject incident: %w", err)
	}

	result, err := d.dispatch(ctx, log, incidentID, []uuid.UUID{responderID})
	if err != nil {
		log.WithError(err).Error("Re-dispatch after rejection failed, incident left pending")
		return nil, fmt.Errorf("service: could not re-dispatch rejected incident: %w", err)
	}
	return result, nil
}

// Cancel - административное закрытие из любого нетерминального состояния
func (d *dispatcher) Cancel(ctx context.Context, incidentID uuid.UUID, reason string) (*models.Incident, error) {
	log := d.logger.WithFields(logrus.Fields{
		"service":     "dispatch",
		"method":      "Cancel",
		"incident_id": incidentID,
	})

	incident, err := d.release(ctx, log, incidentID, release{
		to:       models.StatusCancelled,
		decision: models.DecisionCancelled,
		notes:    reason,
	})
	if err != nil {
		log.WithError(err).Warn("Cancel failed")
		return nil, fmt.Errorf("service: could not cancel incident: %w", err)
	}

	log.Info("Incident cancelled")
	return incident, nil
}

// release описывает переход, снимающий привязку к ответчику
type release struct {
	from      models.IncidentStatus // пусто - любой допустимый
	to        models.IncidentStatus
	decision  models.Decision
	notes     string
	assignee  *uuid.UUID // если задан, должен совпадать с назначенным ответчиком
	notifyNow bool
}

func (d *dispatcher) release(ctx context.Context, log *logrus.Entry, incidentID uuid.UUID, r release) (*models.Incident, error) {
	var result *models.Incident
	err := d.withRetry(ctx, log, func() error {
		incident, err := d.incidents.GetByID(ctx, incidentID)
		if err != nil {
			return err
		}
		if err := incident.Status.Transition(r.to); err != nil {
			return err
		}
		if r.from != "" && incident.Status != r.from {
			return &models.InvalidTransitionError{From: incident.Status, To: r.to}
		}
		if r.to == models.StatusPending && !incident.IsBound() {
			return &models.InvalidTransitionError{From: incident.Status, To: r.to}
		}
		if r.assignee != nil {
			if err := checkAssignee(incident, *r.assignee); err != nil {
				return err
			}
		}

		now := d.now()
		next := incident.Clone()
		next.Status = r.to
		switch r.to {
		case models.StatusResolved:
			if next.ResolvedAt == nil {
				next.ResolvedAt = &now
			}
		case models.StatusCancelled:
			if next.CancelledAt == nil {
				next.CancelledAt = &now
			}
			next.QueuedAt = nil
		}

		t := &models.Transition{Incident: next}
		notes := r.notes
		var prev *uuid.UUID
		if incident.IsBound() {
			id := *incident.AssignedResponderID
			prev = &id
			next.Unbind()

			load, warning, err := d.decrement(ctx, id)
			if err != nil {
				return err
			}
			if warning != "" {
				log.WithField("responder_id", id).Warn("Data integrity: " + warning)
				notes = withPrefix(notes, warning)
			}
			t.Load = load
		}

		t.Entry = d.entry(incident.ID, prev, r.decision, notes, now)
		if r.notifyNow {
			t.Notifications = d.reporterNotifications(next, now)
		}
		if err := d.commit(ctx, log, t); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decrement готовит снятие нагрузки. Отсутствующий ответчик или нулевая нагрузка
// не блокируют переход инцидента, а возвращаются как предупреждение.
func (d *dispatcher) decrement(ctx context.Context, responderID uuid.UUID) (*models.LoadChange, string, error) {
	responder, err := d.responders.GetByID(ctx, responderID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil, fmt.Sprintf("responder %s not found, load decrement skipped", responderID), nil
	case err != nil:
		return nil, "", err
	case responder.CurrentLoad <= 0:
		return nil, fmt.Sprintf("responder %s load already %d, load decrement skipped", responderID, responder.CurrentLoad), nil
	}
	return &models.LoadChange{
		ResponderID:     responder.ID,
		ExpectedVersion: responder.Version,
		Delta:           -1,
	}, "", nil
}

// withRetry повторяет fn при конфликте версий, перечитывая состояние
func (d *dispatcher) withRetry(ctx context.Context, log *logrus.Entry, fn func() error) error {
	attempts := max(d.cfg.DispatchMaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if !errors.Is(err, models.ErrConflict) {
			return err
		}
		log.WithField("attempt", attempt).Debug("Concurrent modification detected, retrying")
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.DispatchRetryDelay * time.Duration(attempt)):
			}
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func (d *dispatcher) commit(ctx context.Context, log *logrus.Entry, t *models.Transition) error {
	if err := d.store.CommitTransition(ctx, t); err != nil {
		return err
	}

	if err := d.cache.Invalidate(ctx, t.Incident.ID); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}

	published := make([]uuid.UUID, 0, len(t.Notifications))
	for _, n := range t.Notifications {
		if err := d.publisher.Publish(ctx, webhook.EventFromNotification(n)); err != nil {
			log.WithError(err).WithField("event", n.Event).Warn("Failed to publish notification, left for outbox relay")
			continue
		}
		published = append(published, n.ID)
	}
	if len(published) > 0 {
		if err := d.outbox.MarkPublished(ctx, published, d.now()); err != nil {
			// строки останутся неотмеченными, relay отправит их повторно
			log.WithError(err).Warn("Failed to mark notifications as published")
		}
	}
	return nil
}

func (d *dispatcher) entry(incidentID uuid.UUID, responderID *uuid.UUID, decision models.Decision, notes string, now time.Time) *models.RoutingHistoryEntry {
	return &models.RoutingHistoryEntry{
		ID:          uuid.New(),
		IncidentID:  incidentID,
		ResponderID: responderID,
		Decision:    decision,
		Notes:       notes,
		CreatedAt:   now,
	}
}

func (d *dispatcher) assignmentNotifications(incident *models.Incident, now time.Time) []*models.Notification {
	out := []*models.Notification{{
		ID:          uuid.New(),
		IncidentID:  incident.ID,
		Recipient:   models.RecipientResponder,
		RecipientID: incident.AssignedResponderID.String(),
		Event:       models.EventAssignment,
		Status:      incident.Status,
		CreatedAt:   now,
	}}
	return append(out, d.reporterNotifications(incident, now)...)
}

func (d *dispatcher) reporterNotifications(incident *models.Incident, now time.Time) []*models.Notification {
	if incident.Origin != models.OriginNamed || incident.ReporterID == nil {
		return nil
	}
	return []*models.Notification{{
		ID:          uuid.New(),
		IncidentID:  incident.ID,
		Recipient:   models.RecipientReporter,
		RecipientID: *incident.ReporterID,
		Event:       models.EventStatusChanged,
		Status:      incident.Status,
		CreatedAt:   now,
	}}
}

func checkAssignee(incident *models.Incident, responderID uuid.UUID) error {
	if incident.AssignedResponderID == nil || *incident.AssignedResponderID != responderID {
		return fmt.Errorf("%w: responder %s, incident %s", models.ErrNotAssignedResponder, responderID, incident.ID)
	}
	return nil
}

func loaded(r *models.Responder, delta int, now time.Time) *models.Responder {
	c := *r
	c.CurrentLoad += delta
	c.Version++
	c.UpdatedAt = now
	return &c
}

func withPrefix(prefix, notes string) string {
	switch {
	case notes == "":
		return prefix
	case prefix == "":
		return notes
	}
	return prefix + ": " + notes
}
