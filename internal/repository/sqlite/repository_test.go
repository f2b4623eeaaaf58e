package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	sqlitedb "github.com/Barsa-M/accident-reporting-sub000/pkg/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlitedb.Open(context.Background(), filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlitedb.Migrate(db))
	return db
}

func newIncident(severity models.Severity) *models.Incident {
	reporter := "user-42"
	return &models.Incident{
		ID:          uuid.New(),
		Origin:      models.OriginNamed,
		ReporterID:  &reporter,
		Type:        models.IncidentMedical,
		Severity:    severity,
		Priority:    severity.Priority(),
		Description: "человеку плохо",
		Latitude:    55.75,
		Longitude:   37.61,
		Media:       []string{"https://cdn.example.com/1.jpg"},
		Status:      models.StatusPending,
	}
}

func newResponder(spec models.Specialization) *models.Responder {
	return &models.Responder{
		ID:             uuid.New(),
		Name:           "unit",
		Specialization: spec,
		Availability:   models.AvailabilityAvailable,
		Approval:       models.ApprovalApproved,
	}
}

func TestIncidentRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewIncidentRepository(db)
	ctx := context.Background()
	incident := newIncident(models.SeverityHigh)

	require.NoError(t, repo.Create(ctx, incident))
	assert.EqualValues(t, 1, incident.Version)

	got, err := repo.GetByID(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, incident.ID, got.ID)
	assert.Equal(t, "user-42", *got.ReporterID)
	assert.Equal(t, 3, got.Priority)
	assert.Equal(t, incident.Media, got.Media)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.AssignedResponderID)
	assert.WithinDuration(t, incident.CreatedAt, got.CreatedAt, time.Microsecond)
}

func TestIncidentRepository_GetNotFound(t *testing.T) {
	repo := NewIncidentRepository(newTestDB(t))

	_, err := repo.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIncidentRepository_ListIncidentsFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewIncidentRepository(db)
	store := NewTransitionStore(db)
	ctx := context.Background()

	pending := newIncident(models.SeverityLow)
	queued := newIncident(models.SeverityLow)
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, queued))

	now := time.Now().UTC()
	queued.Status = models.StatusQueued
	queued.QueuedAt = &now
	require.NoError(t, store.CommitTransition(ctx, &models.Transition{Incident: queued}))

	all, err := repo.ListIncidents(ctx, models.IncidentFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyQueued, err := repo.ListIncidents(ctx, models.IncidentFilter{Status: models.StatusQueued, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, onlyQueued, 1)
	assert.Equal(t, queued.ID, onlyQueued[0].ID)
}

func TestIncidentRepository_ListQueuedOrder(t *testing.T) {
	db := newTestDB(t)
	repo := NewIncidentRepository(db)
	store := NewTransitionStore(db)
	ctx := context.Background()

	base := time.Now().UTC()
	low := newIncident(models.SeverityLow)
	critical := newIncident(models.SeverityCritical)
	for i, incident := range []*models.Incident{low, critical} {
		require.NoError(t, repo.Create(ctx, incident))
		queuedAt := base.Add(time.Duration(i) * time.Second)
		incident.Status = models.StatusQueued
		incident.QueuedAt = &queuedAt
		require.NoError(t, store.CommitTransition(ctx, &models.Transition{Incident: incident}))
	}

	fifo, err := repo.ListQueued(ctx, models.QueuePage{Limit: 10})
	require.NoError(t, err)
	require.Len(t, fifo, 2)
	assert.Equal(t, low.ID, fifo[0].ID)

	byPriority, err := repo.ListQueued(ctx, models.QueuePage{PriorityFirst: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, byPriority, 2)
	assert.Equal(t, critical.ID, byPriority[0].ID)

	limited, err := repo.ListQueued(ctx, models.QueuePage{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestIncidentRepository_ListQueuedCursor(t *testing.T) {
	db := newTestDB(t)
	repo := NewIncidentRepository(db)
	store := NewTransitionStore(db)
	ctx := context.Background()

	// одинаковый queued_at у части записей: порядок добирается по created_at и id
	base := time.Now().UTC()
	severities := []models.Severity{
		models.SeverityLow, models.SeverityCritical, models.SeverityMedium,
		models.SeverityCritical, models.SeverityHigh, models.SeverityLow, models.SeverityMedium,
	}
	for i, severity := range severities {
		incident := newIncident(severity)
		require.NoError(t, repo.Create(ctx, incident))
		queuedAt := base.Add(time.Duration(i/2) * time.Second)
		incident.Status = models.StatusQueued
		incident.QueuedAt = &queuedAt
		require.NoError(t, store.CommitTransition(ctx, &models.Transition{Incident: incident}))
	}

	for _, priorityFirst := range []bool{false, true} {
		all, err := repo.ListQueued(ctx, models.QueuePage{PriorityFirst: priorityFirst, Limit: 100})
		require.NoError(t, err)
		require.Len(t, all, len(severities))

		var paged []*models.Incident
		page := models.QueuePage{PriorityFirst: priorityFirst, Limit: 3}
		for {
			items, err := repo.ListQueued(ctx, page)
			require.NoError(t, err)
			paged = append(paged, items...)
			if len(items) < page.Limit {
				break
			}
			page.After = items[len(items)-1]
		}

		require.Len(t, paged, len(all), "priorityFirst=%v", priorityFirst)
		for i := range all {
			assert.Equal(t, all[i].ID, paged[i].ID, "priorityFirst=%v position %d", priorityFirst, i)
		}
	}
}

func TestTransitionStore_AssignCommitsAllParts(t *testing.T) {
	db := newTestDB(t)
	incidents := NewIncidentRepository(db)
	responders := NewResponderRepository(db)
	history := NewHistoryRepository(db)
	store := NewTransitionStore(db)
	ctx := context.Background()

	incident := newIncident(models.SeverityMedium)
	responder := newResponder(models.SpecMedical)
	require.NoError(t, incidents.Create(ctx, incident))
	require.NoError(t, responders.Create(ctx, responder))

	now := time.Now().UTC()
	incident.Bind(responder, now)
	entryID := uuid.New()
	err := store.CommitTransition(ctx, &models.Transition{
		Incident: incident,
		Load:     &models.LoadChange{ResponderID: responder.ID, ExpectedVersion: responder.Version, Delta: 1},
		Entry: &models.RoutingHistoryEntry{
			ID: entryID, IncidentID: incident.ID, ResponderID: &responder.ID,
			Decision: models.DecisionAssigned, CreatedAt: now,
		},
		Notifications: []*models.Notification{{
			ID: uuid.New(), IncidentID: incident.ID, Recipient: models.RecipientResponder,
			RecipientID: responder.ID.String(), Event: models.EventAssignment,
			Status: models.StatusAssigned, CreatedAt: now,
		}},
	})

	require.NoError(t, err)
	assert.EqualValues(t, 2, incident.Version)

	stored, err := incidents.GetByID(ctx, incident.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, stored.Status)
	assert.Equal(t, responder.ID, *stored.AssignedResponderID)
	assert.EqualValues(t, 2, stored.Version)

	r, err := responders.GetByID(ctx, responder.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, r.CurrentLoad)
	assert.EqualValues(t, 2, r.Version)

	entries, err := history.ListHistory(ctx, incident.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entryID, entries[0].ID)

	var notifications int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE incident_id = ?`, incident.ID.String()).Scan(&notifications))
	assert.Equal(t, 1, notifications)
}

func TestNotificationRepository_UnpublishedAndMark(t *testing.T) {
	db := newTestDB(t)
	incidents := NewIncidentRepository(db)
	store := NewTransitionStore(db)
	outbox := NewNotificationRepository(db)
	ctx := context.Background()

	incident := newIncident(models.SeverityHigh)
	require.NoError(t, incidents.Create(ctx, incident))

	base := time.Now().UTC().Add(-time.Minute)
	notifications := make([]*models.Notification, 3)
	for i := range notifications {
		notifications[i] = &models.Notification{
			ID: uuid.New(), IncidentID: incident.ID, Recipient: models.RecipientReporter,
			RecipientID: "citizen-1", Event: models.EventStatusChanged,
			Status: models.StatusQueued, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
	}
	incident.Status = models.StatusQueued
	incident.QueuedAt = &base
	require.NoError(t, store.CommitTransition(ctx, &models.Transition{Incident: incident, Notifications: notifications}))

	// граница before исключает последнее уведомление
	pending, err := outbox.ListUnpublished(ctx, base.Add(2*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, notifications[0].ID, pending[0].ID)
	assert.Equal(t, incident.ID, pending[0].IncidentID)
	assert.Equal(t, models.EventStatusChanged, pending[0].Event)
	assert.True(t, notifications[0].CreatedAt.Equal(pending[0].CreatedAt))

	require.NoError(t, outbox.MarkPublished(ctx, []uuid.UUID{notifications[0].ID}, time.Now().UTC()))
	require.NoError(t, outbox.MarkPublished(ctx, nil, time.Now().UTC()))

	pending, err = outbox.ListUnpublished(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, notifications[1].ID, pending[0].ID)
	assert.Equal(t, notifications[2].ID, pending[1].ID)

	limited, err := outbox.ListUnpublished(ctx, time.Now().UTC(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTransitionStore_StaleVersionRollsBack(t *testing.T) {
	db := newTestDB(t)
	incidents := NewIncidentRepository(db)
	responders := NewResponderRepository(db)
	history := NewHistoryRepository(db)
	store := NewTransitionStore(db)
	ctx := context.Background()

	incident := newIncident(models.SeverityMedium)
	responder := newResponder(models.SpecMedical)
	require.NoError(t, incidents.Create(ctx, incident))
	require.NoError(t, responders.Create(ctx, responder))

	now := time.Now().UTC()
	stale := incident.Clone()
	stale.Bind(responder, now)

	// версия ответчика устарела: инцидент уже обновлен в транзакции, но должен откатиться
	_, err := responders.UpdateStatus(ctx, responder.ID, models.ResponderStatusUpdate{})
	require.NoError(t, err)

	err = store.CommitTransition(ctx, &models.Transition{
		Incident: stale,
		Load:     &models.LoadChange{ResponderID: responder.ID, ExpectedVersion: responder.Version, Delta: 1},
		Entry: &models.RoutingHistoryEntry{
			ID: uuid.New(), IncidentID: incident.ID, Decision: models.DecisionAssigned, CreatedAt: now,
		},
	})

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.EqualValues(t, 1, stale.Version)

	stored, err := incidents.GetByID(ctx, incident.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.EqualValues(t, 1, stored.Version)

	entries, err := history.ListHistory(ctx, incident.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// устаревшая версия инцидента
	incident.Version = 7
	err = store.CommitTransition(ctx, &models.Transition{Incident: incident})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestTransitionStore_LoadNeverNegative(t *testing.T) {
	db := newTestDB(t)
	incidents := NewIncidentRepository(db)
	responders := NewResponderRepository(db)
	store := NewTransitionStore(db)
	ctx := context.Background()

	incident := newIncident(models.SeverityLow)
	responder := newResponder(models.SpecMedical)
	require.NoError(t, incidents.Create(ctx, incident))
	require.NoError(t, responders.Create(ctx, responder))

	incident.Status = models.StatusCancelled
	err := store.CommitTransition(ctx, &models.Transition{
		Incident: incident,
		Load:     &models.LoadChange{ResponderID: responder.ID, ExpectedVersion: responder.Version, Delta: -1},
	})

	assert.ErrorIs(t, err, models.ErrConflict)
	r, err := responders.GetByID(ctx, responder.ID)
	require.NoError(t, err)
	assert.Zero(t, r.CurrentLoad)
}

func TestHistoryRepository_UnknownIncident(t *testing.T) {
	history := NewHistoryRepository(newTestDB(t))

	err := history.AppendHistory(context.Background(), &models.RoutingHistoryEntry{
		ID:         uuid.New(),
		IncidentID: uuid.New(),
		Decision:   models.DecisionQueued,
		CreatedAt:  time.Now(),
	})

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHistoryRepository_AppendOnly(t *testing.T) {
	db := newTestDB(t)
	incidents := NewIncidentRepository(db)
	history := NewHistoryRepository(db)
	ctx := context.Background()

	incident := newIncident(models.SeverityLow)
	require.NoError(t, incidents.Create(ctx, incident))
	entry := &models.RoutingHistoryEntry{
		ID: uuid.New(), IncidentID: incident.ID, Decision: models.DecisionQueued, CreatedAt: time.Now(),
	}
	require.NoError(t, history.AppendHistory(ctx, entry))

	_, err := db.ExecContext(ctx, `UPDATE routing_history SET notes = 'x' WHERE id = ?`, entry.ID.String())
	assert.ErrorContains(t, err, "append-only")

	_, err = db.ExecContext(ctx, `DELETE FROM routing_history WHERE id = ?`, entry.ID.String())
	assert.ErrorContains(t, err, "append-only")
}

func TestHistoryRepository_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	incidents := NewIncidentRepository(db)
	history := NewHistoryRepository(db)
	ctx := context.Background()

	incident := newIncident(models.SeverityLow)
	require.NoError(t, incidents.Create(ctx, incident))

	at := time.Now().UTC()
	first := &models.RoutingHistoryEntry{ID: uuid.New(), IncidentID: incident.ID, Decision: models.DecisionQueued, CreatedAt: at}
	// одинаковое время: порядок вставки
	second := &models.RoutingHistoryEntry{ID: uuid.New(), IncidentID: incident.ID, Decision: models.DecisionAssigned, CreatedAt: at}
	third := &models.RoutingHistoryEntry{ID: uuid.New(), IncidentID: incident.ID, Decision: models.DecisionStarted, CreatedAt: at.Add(time.Second)}
	for _, e := range []*models.RoutingHistoryEntry{first, second, third} {
		require.NoError(t, history.AppendHistory(ctx, e))
	}

	entries, err := history.ListHistory(ctx, incident.ID)

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, third.ID, entries[0].ID)
	assert.Equal(t, second.ID, entries[1].ID)
	assert.Equal(t, first.ID, entries[2].ID)
}

func TestResponderRepository_UpdateStatusAndDrift(t *testing.T) {
	db := newTestDB(t)
	responders := NewResponderRepository(db)
	ctx := context.Background()

	responder := newResponder(models.SpecFire)
	responder.Approval = models.ApprovalPending
	require.NoError(t, responders.Create(ctx, responder))

	approved := models.ApprovalApproved
	updated, err := responders.UpdateStatus(ctx, responder.ID, models.ResponderStatusUpdate{Approval: &approved})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, updated.Approval)
	assert.Equal(t, models.AvailabilityAvailable, updated.Availability)
	assert.EqualValues(t, 2, updated.Version)

	_, err = responders.UpdateStatus(ctx, uuid.New(), models.ResponderStatusUpdate{Approval: &approved})
	assert.ErrorIs(t, err, models.ErrNotFound)

	drift, err := responders.LoadDrift(ctx)
	require.NoError(t, err)
	assert.Empty(t, drift)

	_, err = db.ExecContext(ctx, `UPDATE responders SET current_load = 2 WHERE id = ?`, responder.ID.String())
	require.NoError(t, err)

	drift, err = responders.LoadDrift(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.LoadDrift{{ResponderID: responder.ID, CurrentLoad: 2, ActualLoad: 0}}, drift)
}

func TestResponderRepository_ListBySpecialization(t *testing.T) {
	db := newTestDB(t)
	responders := NewResponderRepository(db)
	ctx := context.Background()

	medic := newResponder(models.SpecMedical)
	officer := newResponder(models.SpecPolice)
	require.NoError(t, responders.Create(ctx, medic))
	require.NoError(t, responders.Create(ctx, officer))

	got, err := responders.ListBySpecialization(ctx, models.SpecMedical)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, medic.ID, got[0].ID)

	page, err := responders.ListResponders(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}
