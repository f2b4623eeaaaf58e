package scheduler_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/scheduler"
	schedmocks "github.com/Barsa-M/accident-reporting-sub000/internal/scheduler/mocks"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service/mocks"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type schedulerMocks struct {
	incidents  *mocks.MockIncidentRepository
	dispatcher *mocks.MockDispatchService
	locker     *schedmocks.MockLocker
}

func newTestScheduler(t *testing.T, withLock bool) (*scheduler.Scheduler, schedulerMocks) {
	return newTestSchedulerWithBatch(t, withLock, 50)
}

func newTestSchedulerWithBatch(t *testing.T, withLock bool, batch int) (*scheduler.Scheduler, schedulerMocks) {
	ctrl := gomock.NewController(t)
	m := schedulerMocks{
		incidents:  mocks.NewMockIncidentRepository(ctrl),
		dispatcher: mocks.NewMockDispatchService(ctrl),
		locker:     schedmocks.NewMockLocker(ctrl),
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{
		RequeueInterval:  time.Hour,
		RequeueBatchSize: batch,
		SweepLockTTL:     10 * time.Second,
	}

	var locker scheduler.Locker
	if withLock {
		locker = m.locker
	}
	return scheduler.New(m.incidents, m.dispatcher, locker, logger, cfg), m
}

func queued(n int) []*models.Incident {
	out := make([]*models.Incident, n)
	for i := range out {
		out[i] = &models.Incident{ID: uuid.New(), Status: models.StatusQueued}
	}
	return out
}

func TestSweep_CountsOutcomes(t *testing.T) {
	s, m := newTestScheduler(t, false)
	ctx := context.Background()
	items := queued(3)

	m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 50}).Return(items, nil)
	m.dispatcher.EXPECT().Dispatch(ctx, items[0].ID).Return(&service.DispatchResult{Outcome: service.OutcomeAssigned}, nil)
	m.dispatcher.EXPECT().Dispatch(ctx, items[1].ID).Return(&service.DispatchResult{Outcome: service.OutcomeQueued}, nil)
	m.dispatcher.EXPECT().Dispatch(ctx, items[2].ID).Return(&service.DispatchResult{Outcome: service.OutcomeNoop}, nil)

	report, err := s.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{Reassigned: 1, StillQueued: 1}, report)
}

func TestSweep_ItemFailureDoesNotAbort(t *testing.T) {
	s, m := newTestScheduler(t, false)
	ctx := context.Background()
	items := queued(2)

	m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 50}).Return(items, nil)
	m.dispatcher.EXPECT().Dispatch(ctx, items[0].ID).Return(nil, errors.New("gave up after 5 attempts"))
	m.dispatcher.EXPECT().Dispatch(ctx, items[1].ID).Return(&service.DispatchResult{Outcome: service.OutcomeAssigned}, nil)

	report, err := s.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{Reassigned: 1, Failed: 1}, report)
}

func TestSweep_PagesThroughWholeQueue(t *testing.T) {
	s, m := newTestSchedulerWithBatch(t, false, 2)
	ctx := context.Background()
	items := queued(5)

	// все инциденты остаются в очереди, следующая страница берется по курсору
	gomock.InOrder(
		m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 2}).Return(items[0:2], nil),
		m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 2, After: items[1]}).Return(items[2:4], nil),
		m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 2, After: items[3]}).Return(items[4:], nil),
	)
	for _, incident := range items {
		m.dispatcher.EXPECT().Dispatch(ctx, incident.ID).Return(&service.DispatchResult{Outcome: service.OutcomeQueued}, nil)
	}

	report, err := s.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{StillQueued: 5}, report)
}

func TestSweep_FullLastPageQueriesAgain(t *testing.T) {
	s, m := newTestSchedulerWithBatch(t, false, 2)
	ctx := context.Background()
	items := queued(2)

	gomock.InOrder(
		m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 2}).Return(items, nil),
		m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 2, After: items[1]}).Return([]*models.Incident{}, nil),
	)
	m.dispatcher.EXPECT().Dispatch(ctx, gomock.Any()).Return(&service.DispatchResult{Outcome: service.OutcomeAssigned}, nil).Times(2)

	report, err := s.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{Reassigned: 2}, report)
}

func TestSweep_NonPositiveBatchUsesDefaultPage(t *testing.T) {
	s, m := newTestSchedulerWithBatch(t, false, 0)
	ctx := context.Background()

	m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 100}).Return([]*models.Incident{}, nil)

	report, err := s.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{}, report)
}

func TestSweep_ListError(t *testing.T) {
	s, m := newTestScheduler(t, false)
	ctx := context.Background()

	m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 50}).Return(nil, errors.New("db unavailable"))

	_, err := s.Sweep(ctx)

	assert.ErrorContains(t, err, "could not sweep queue")
}

func TestSweep_SkippedWhenLockHeld(t *testing.T) {
	s, m := newTestScheduler(t, true)
	ctx := context.Background()

	m.locker.EXPECT().Acquire(ctx, "dispatch:sweep:lock", 10*time.Second).Return("", false, nil)

	report, err := s.Sweep(ctx)

	require.NoError(t, err)
	assert.True(t, report.Skipped)
}

func TestSweep_ReleasesLock(t *testing.T) {
	s, m := newTestScheduler(t, true)
	ctx := context.Background()

	gomock.InOrder(
		m.locker.EXPECT().Acquire(ctx, "dispatch:sweep:lock", 10*time.Second).Return("token-1", true, nil),
		m.incidents.EXPECT().ListQueued(ctx, models.QueuePage{Limit: 50}).Return([]*models.Incident{}, nil),
		m.locker.EXPECT().Release(gomock.Any(), "dispatch:sweep:lock", "token-1").Return(nil),
	)

	report, err := s.Sweep(ctx)

	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{}, report)
}

func TestSweep_LockError(t *testing.T) {
	s, m := newTestScheduler(t, true)
	ctx := context.Background()

	m.locker.EXPECT().Acquire(ctx, "dispatch:sweep:lock", 10*time.Second).Return("", false, errors.New("redis down"))

	_, err := s.Sweep(ctx)

	assert.ErrorContains(t, err, "redis down")
}

func TestStart_SweepsOnStartAndTrigger(t *testing.T) {
	s, m := newTestScheduler(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 4)
	m.incidents.EXPECT().ListQueued(gomock.Any(), models.QueuePage{Limit: 50}).
		DoAndReturn(func(context.Context, models.QueuePage) ([]*models.Incident, error) {
			calls <- struct{}{}
			return []*models.Incident{}, nil
		}).Times(2)

	s.Start(ctx)

	waitCall(t, calls)
	s.Trigger()
	waitCall(t, calls)

	s.Stop()
}

func waitCall(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep was not executed")
	}
}
