package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service/mocks"
	"github.com/Barsa-M/accident-reporting-sub000/internal/webhook"
	webhook_mocks "github.com/Barsa-M/accident-reporting-sub000/internal/webhook/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type dispatcherMocks struct {
	incidents  *mocks.MockIncidentRepository
	responders *mocks.MockResponderRepository
	store      *mocks.MockTransitionStore
	matcher    *mocks.MockMatcher
	cache      *mocks.MockIncidentCache
	publisher  *webhook_mocks.MockPublisher
	outbox     *mocks.MockNotificationOutbox
}

func newTestDispatcher(t *testing.T) (service.DispatchService, *dispatcherMocks) {
	ctrl := gomock.NewController(t)
	m := &dispatcherMocks{
		incidents:  mocks.NewMockIncidentRepository(ctrl),
		responders: mocks.NewMockResponderRepository(ctrl),
		store:      mocks.NewMockTransitionStore(ctrl),
		matcher:    mocks.NewMockMatcher(ctrl),
		cache:      mocks.NewMockIncidentCache(ctrl),
		publisher:  webhook_mocks.NewMockPublisher(ctrl),
		outbox:     mocks.NewMockNotificationOutbox(ctrl),
	}
	cfg := &config.Config{DispatchMaxAttempts: 3, DispatchRetryDelay: time.Millisecond}

	d := service.NewDispatcher(service.DispatcherDeps{
		Incidents:  m.incidents,
		Responders: m.responders,
		Store:      m.store,
		Matcher:    m.matcher,
		Cache:      m.cache,
		Publisher:  m.publisher,
		Outbox:     m.outbox,
	}, newTestLogger(), cfg)
	return d, m
}

func pendingIncident(t models.IncidentType) *models.Incident {
	return &models.Incident{
		ID:         uuid.New(),
		Origin:     models.OriginNamed,
		ReporterID: strPtr("citizen-1"),
		Type:       t,
		Severity:   models.SeverityHigh,
		Priority:   3,
		Status:     models.StatusPending,
		Media:      []string{},
		Version:    1,
	}
}

func boundIncident(status models.IncidentStatus, r *models.Responder) *models.Incident {
	incident := pendingIncident(models.IncidentFire)
	incident.Bind(r, time.Now())
	incident.Status = status
	incident.Version = 4
	return incident
}

func approvedResponder(spec models.Specialization, load int) *models.Responder {
	return &models.Responder{
		ID:             uuid.New(),
		Name:           "unit",
		Specialization: spec,
		Availability:   models.AvailabilityAvailable,
		Approval:       models.ApprovalApproved,
		CurrentLoad:    load,
		Version:        7,
	}
}

func TestDispatch_Assigns(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentHazmat)
	candidate := approvedResponder(models.SpecFire, 2)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.matcher.EXPECT().FindCandidate(ctx, incident, gomock.Nil()).Return(candidate, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
		assert.Equal(t, models.StatusAssigned, tr.Incident.Status)
		assert.Equal(t, candidate.ID, *tr.Incident.AssignedResponderID)
		assert.Equal(t, models.SpecFire, *tr.Incident.AssignedResponderType)
		assert.EqualValues(t, 1, tr.Incident.Version, "expected version is the one read")
		require.NotNil(t, tr.Load)
		assert.Equal(t, models.LoadChange{ResponderID: candidate.ID, ExpectedVersion: 7, Delta: 1}, *tr.Load)
		assert.Equal(t, models.DecisionAssigned, tr.Entry.Decision)
		require.Len(t, tr.Notifications, 2)
		assert.Equal(t, models.RecipientResponder, tr.Notifications[0].Recipient)
		assert.Equal(t, models.RecipientReporter, tr.Notifications[1].Recipient)
		return nil
	})
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)
	m.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)
	m.outbox.EXPECT().MarkPublished(ctx, gomock.Len(2), gomock.Any()).Return(nil)

	result, err := d.Dispatch(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAssigned, result.Outcome)
	assert.Equal(t, 3, result.Responder.CurrentLoad)
	// прочитанная запись не изменяется
	assert.Equal(t, models.StatusPending, incident.Status)
}

func TestDispatch_QueuesWhenNoCandidate(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentMedical)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.matcher.EXPECT().FindCandidate(ctx, incident, gomock.Nil()).Return(nil, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
		assert.Equal(t, models.StatusQueued, tr.Incident.Status)
		assert.NotNil(t, tr.Incident.QueuedAt)
		assert.Nil(t, tr.Load)
		assert.Nil(t, tr.Entry.ResponderID)
		assert.Equal(t, models.DecisionQueued, tr.Entry.Decision)
		assert.Empty(t, tr.Notifications)
		return nil
	})
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)

	result, err := d.Dispatch(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeQueued, result.Outcome)
}

func TestDispatch_AlreadyQueuedStaysWithoutNewEntry(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentMedical)
	incident.Status = models.StatusQueued

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.matcher.EXPECT().FindCandidate(ctx, incident, gomock.Nil()).Return(nil, nil)

	result, err := d.Dispatch(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeQueued, result.Outcome)
}

func TestDispatch_NoopForAssigned(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := boundIncident(models.StatusAssigned, approvedResponder(models.SpecFire, 1))

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)

	result, err := d.Dispatch(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeNoop, result.Outcome)
}

func TestDispatch_UnmappedTypeHasNoSideEffects(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident("meteor")

	// ни переход, ни публикация не ожидаются: любой вызов store или publisher провалит тест
	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.matcher.EXPECT().FindCandidate(ctx, incident, gomock.Nil()).
		Return(nil, fmt.Errorf("matcher: %w: incident type %q has no responder specialization", models.ErrValidation, incident.Type))

	_, err := d.Dispatch(ctx, incident.ID)

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDispatch_RetriesOnConflict(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentPolice)
	candidate := approvedResponder(models.SpecPolice, 0)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil).Times(2)
	m.matcher.EXPECT().FindCandidate(ctx, incident, gomock.Nil()).Return(candidate, nil).Times(2)
	gomock.InOrder(
		m.store.EXPECT().CommitTransition(ctx, gomock.Any()).Return(fmt.Errorf("%w: responder", models.ErrConflict)),
		m.store.EXPECT().CommitTransition(ctx, gomock.Any()).Return(nil),
	)
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)
	m.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).AnyTimes()
	m.outbox.EXPECT().MarkPublished(ctx, gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	result, err := d.Dispatch(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAssigned, result.Outcome)
}

func TestDispatch_ConflictExhausted(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentPolice)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil).Times(3)
	m.matcher.EXPECT().FindCandidate(ctx, incident, gomock.Nil()).Return(nil, nil).Times(3)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).Return(models.ErrConflict).Times(3)

	_, err := d.Dispatch(ctx, incident.ID)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.ErrorContains(t, err, "gave up after 3 attempts")
}

func TestDispatch_PublishFailureDoesNotFail(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentTraffic)
	incident.Origin = models.OriginAnonymous
	incident.ReporterID = nil
	candidate := approvedResponder(models.SpecTraffic, 0)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.matcher.EXPECT().FindCandidate(ctx, incident, gomock.Nil()).Return(candidate, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).Return(nil)
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(errors.New("redis down"))
	m.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, e webhook.Event) error {
		assert.Equal(t, models.EventAssignment, e.Kind)
		assert.Equal(t, candidate.ID.String(), e.RecipientID)
		return errors.New("queue down")
	}).Times(1)

	result, err := d.Dispatch(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAssigned, result.Outcome)
}

func TestDispatch_MarksOnlyPublishedNotifications(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentFire)
	candidate := approvedResponder(models.SpecFire, 0)

	var reporterNotification uuid.UUID
	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.matcher.EXPECT().FindCandidate(ctx, incident, gomock.Nil()).Return(candidate, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
		require.Len(t, tr.Notifications, 2)
		reporterNotification = tr.Notifications[1].ID
		return nil
	})
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)
	// уведомление ответчику не ушло, заявителю ушло
	gomock.InOrder(
		m.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("queue down")),
		m.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil),
	)
	m.outbox.EXPECT().MarkPublished(ctx, gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ids []uuid.UUID, _ time.Time) error {
		assert.Equal(t, []uuid.UUID{reporterNotification}, ids)
		return nil
	})

	result, err := d.Dispatch(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAssigned, result.Outcome)
}

func TestDispatch_MarkPublishedFailureDoesNotFail(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentMedical)
	incident.Origin = models.OriginAnonymous
	incident.ReporterID = nil
	candidate := approvedResponder(models.SpecMedical, 0)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.matcher.EXPECT().FindCandidate(ctx, incident, gomock.Nil()).Return(candidate, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).Return(nil)
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)
	m.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)
	m.outbox.EXPECT().MarkPublished(ctx, gomock.Len(1), gomock.Any()).Return(errors.New("database is locked"))

	result, err := d.Dispatch(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAssigned, result.Outcome)
}

func TestManualAssign_NotEligible(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.Responder)
	}{
		{name: "wrong specialization", mutate: func(r *models.Responder) { r.Specialization = models.SpecMedical }},
		{name: "not approved", mutate: func(r *models.Responder) { r.Approval = models.ApprovalSuspended }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, m := newTestDispatcher(t)
			ctx := context.Background()
			incident := pendingIncident(models.IncidentFire)
			r := approvedResponder(models.SpecFire, 0)
			tt.mutate(r)

			m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
			m.responders.EXPECT().GetByID(ctx, r.ID).Return(r, nil)

			_, err := d.ManualAssign(ctx, incident.ID, r.ID, "оператор")

			assert.ErrorIs(t, err, models.ErrResponderNotEligible)
		})
	}
}

func TestManualAssign_IgnoresAvailability(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentFire)
	incident.Origin = models.OriginAnonymous
	incident.ReporterID = nil
	r := approvedResponder(models.SpecFire, 5)
	r.Availability = models.AvailabilityBusy

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.responders.EXPECT().GetByID(ctx, r.ID).Return(r, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
		assert.Equal(t, "manual assignment: старший смены", tr.Entry.Notes)
		assert.Equal(t, 1, tr.Load.Delta)
		return nil
	})
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)
	m.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)
	m.outbox.EXPECT().MarkPublished(ctx, gomock.Len(1), gomock.Any()).Return(nil)

	got, err := d.ManualAssign(ctx, incident.ID, r.ID, "старший смены")

	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	assert.Equal(t, r.ID, *got.AssignedResponderID)
}

func TestManualAssign_InvalidStatus(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentFire)
	incident.Status = models.StatusResolved

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)

	_, err := d.ManualAssign(ctx, incident.ID, uuid.New(), "")

	var transitionErr *models.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.StatusResolved, transitionErr.From)
	assert.Equal(t, models.StatusAssigned, transitionErr.To)
}

func TestUnassign_MissingResponderStillCommits(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	r := approvedResponder(models.SpecFire, 1)
	incident := boundIncident(models.StatusAssigned, r)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.responders.EXPECT().GetByID(ctx, r.ID).Return(nil, fmt.Errorf("%w: responder", models.ErrNotFound))
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
		assert.Nil(t, tr.Load)
		assert.Equal(t, models.StatusPending, tr.Incident.Status)
		assert.Nil(t, tr.Incident.AssignedResponderID)
		assert.Equal(t, models.DecisionUnassigned, tr.Entry.Decision)
		assert.Equal(t, r.ID, *tr.Entry.ResponderID)
		assert.Contains(t, tr.Entry.Notes, "not found")
		return nil
	})
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)

	got, err := d.Unassign(ctx, incident.ID, "перераспределение")

	require.NoError(t, err)
	assert.False(t, got.IsBound())
}

func TestUnassign_ZeroLoadSkipsDecrement(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	r := approvedResponder(models.SpecFire, 0)
	incident := boundIncident(models.StatusInProgress, r)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.responders.EXPECT().GetByID(ctx, r.ID).Return(r, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
		assert.Nil(t, tr.Load)
		assert.Contains(t, tr.Entry.Notes, "load already 0")
		return nil
	})
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)

	_, err := d.Unassign(ctx, incident.ID, "")

	require.NoError(t, err)
}

func TestUnassign_PendingIsInvalid(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentFire)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)

	_, err := d.Unassign(ctx, incident.ID, "")

	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestStart_ByAssignee(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	r := approvedResponder(models.SpecFire, 1)
	incident := boundIncident(models.StatusAssigned, r)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
		assert.Nil(t, tr.Load)
		assert.Equal(t, models.DecisionStarted, tr.Entry.Decision)
		return nil
	})
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)

	got, err := d.Start(ctx, incident.ID, r.ID)

	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.NotNil(t, got.StartedAt)
}

func TestStart_WrongResponder(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := boundIncident(models.StatusAssigned, approvedResponder(models.SpecFire, 1))

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)

	_, err := d.Start(ctx, incident.ID, uuid.New())

	assert.ErrorIs(t, err, models.ErrNotAssignedResponder)
}

func TestResolve_ReleasesLoadAndNotifiesReporter(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	r := approvedResponder(models.SpecFire, 2)
	incident := boundIncident(models.StatusInProgress, r)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.responders.EXPECT().GetByID(ctx, r.ID).Return(r, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
		assert.Equal(t, models.StatusResolved, tr.Incident.Status)
		assert.NotNil(t, tr.Incident.ResolvedAt)
		assert.Equal(t, models.LoadChange{ResponderID: r.ID, ExpectedVersion: r.Version, Delta: -1}, *tr.Load)
		assert.Equal(t, models.DecisionCompleted, tr.Entry.Decision)
		require.Len(t, tr.Notifications, 1)
		assert.Equal(t, models.EventStatusChanged, tr.Notifications[0].Event)
		return nil
	})
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)
	m.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)
	m.outbox.EXPECT().MarkPublished(ctx, gomock.Len(1), gomock.Any()).Return(nil)

	got, err := d.Resolve(ctx, incident.ID, r.ID, "пострадавший передан в больницу")

	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
}

func TestResolve_FromAssignedIsInvalid(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	r := approvedResponder(models.SpecFire, 1)
	incident := boundIncident(models.StatusAssigned, r)

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)

	_, err := d.Resolve(ctx, incident.ID, r.ID, "")

	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestReject_RedispatchesExcludingResponder(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	r := approvedResponder(models.SpecFire, 1)
	incident := boundIncident(models.StatusAssigned, r)
	incident.Origin = models.OriginAnonymous
	incident.ReporterID = nil

	released := incident.Clone()
	released.Unbind()
	released.Status = models.StatusPending
	released.Version = incident.Version + 1

	other := approvedResponder(models.SpecFire, 0)

	gomock.InOrder(
		m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil),
		m.responders.EXPECT().GetByID(ctx, r.ID).Return(r, nil),
		m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
			assert.Equal(t, models.DecisionRejected, tr.Entry.Decision)
			assert.Equal(t, -1, tr.Load.Delta)
			return nil
		}),
		m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil),
		m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(released, nil),
		m.matcher.EXPECT().FindCandidate(ctx, released, []uuid.UUID{r.ID}).Return(other, nil),
		m.store.EXPECT().CommitTransition(ctx, gomock.Any()).Return(nil),
		m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil),
	)
	m.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)
	m.outbox.EXPECT().MarkPublished(ctx, gomock.Len(1), gomock.Any()).Return(nil)

	result, err := d.Reject(ctx, incident.ID, r.ID, "занят на другом вызове")

	require.NoError(t, err)
	assert.Equal(t, service.OutcomeAssigned, result.Outcome)
	assert.Equal(t, other.ID, result.Responder.ID)
}

func TestCancel_QueuedIncident(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentPolice)
	incident.Status = models.StatusQueued
	queuedAt := time.Now()
	incident.QueuedAt = &queuedAt

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	m.store.EXPECT().CommitTransition(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, tr *models.Transition) error {
		assert.Nil(t, tr.Load)
		assert.Nil(t, tr.Incident.QueuedAt)
		assert.NotNil(t, tr.Incident.CancelledAt)
		assert.Equal(t, models.DecisionCancelled, tr.Entry.Decision)
		return nil
	})
	m.cache.EXPECT().Invalidate(ctx, incident.ID).Return(nil)

	got, err := d.Cancel(ctx, incident.ID, "ложный вызов")

	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestCancel_TerminalIsInvalid(t *testing.T) {
	d, m := newTestDispatcher(t)
	ctx := context.Background()
	incident := pendingIncident(models.IncidentPolice)
	incident.Status = models.StatusCancelled

	m.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)

	_, err := d.Cancel(ctx, incident.ID, "")

	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}
