package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Barsa-M/accident-reporting-sub000/internal/models"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestResponderService(t *testing.T) (service.ResponderService, *mocks.MockResponderRepository, *mocks.MockAvailabilityNotifier) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockResponderRepository(ctrl)
	notifierMock := mocks.NewMockAvailabilityNotifier(ctrl)

	return service.NewResponderService(repoMock, notifierMock, newTestLogger()), repoMock, notifierMock
}

func TestRegisterResponder_Defaults(t *testing.T) {
	svc, repoMock, _ := newTestResponderService(t)
	ctx := context.Background()
	responder := &models.Responder{Name: "Бригада 7", Specialization: models.SpecMedical, CurrentLoad: 9}

	repoMock.EXPECT().Create(ctx, responder).Return(nil)

	require.NoError(t, svc.RegisterResponder(ctx, responder))
	assert.NotEqual(t, uuid.Nil, responder.ID)
	assert.Equal(t, models.AvailabilityOffDuty, responder.Availability)
	assert.Equal(t, models.ApprovalPending, responder.Approval)
	assert.Zero(t, responder.CurrentLoad)
}

func TestRegisterResponder_AvailableTriggersSweep(t *testing.T) {
	svc, repoMock, notifierMock := newTestResponderService(t)
	ctx := context.Background()
	responder := &models.Responder{
		Name:           "Расчет 3",
		Specialization: models.SpecFire,
		Availability:   models.AvailabilityAvailable,
		Approval:       models.ApprovalApproved,
	}

	repoMock.EXPECT().Create(ctx, responder).Return(nil)
	notifierMock.EXPECT().Trigger().Times(1)

	require.NoError(t, svc.RegisterResponder(ctx, responder))
}

func TestRegisterResponder_Validation(t *testing.T) {
	tests := []struct {
		name      string
		responder *models.Responder
	}{
		{name: "empty name", responder: &models.Responder{Specialization: models.SpecPolice}},
		{name: "unknown specialization", responder: &models.Responder{Name: "X", Specialization: "hazmat"}},
		{name: "unknown availability", responder: &models.Responder{Name: "X", Specialization: models.SpecPolice, Availability: "asleep"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestResponderService(t)
			err := svc.RegisterResponder(context.Background(), tt.responder)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestUpdateStatus_BecomesAvailable(t *testing.T) {
	svc, repoMock, notifierMock := newTestResponderService(t)
	ctx := context.Background()
	id := uuid.New()
	available := models.AvailabilityAvailable
	update := models.ResponderStatusUpdate{Availability: &available}

	repoMock.EXPECT().UpdateStatus(ctx, id, update).Return(&models.Responder{
		ID:           id,
		Availability: models.AvailabilityAvailable,
		Approval:     models.ApprovalApproved,
	}, nil)
	notifierMock.EXPECT().Trigger().Times(1)

	responder, err := svc.UpdateStatus(ctx, id, update)

	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityAvailable, responder.Availability)
}

func TestUpdateStatus_SuspendedDoesNotTrigger(t *testing.T) {
	svc, repoMock, _ := newTestResponderService(t)
	ctx := context.Background()
	id := uuid.New()
	suspended := models.ApprovalSuspended
	update := models.ResponderStatusUpdate{Approval: &suspended}

	repoMock.EXPECT().UpdateStatus(ctx, id, update).Return(&models.Responder{
		ID:           id,
		Availability: models.AvailabilityAvailable,
		Approval:     models.ApprovalSuspended,
	}, nil)

	_, err := svc.UpdateStatus(ctx, id, update)
	require.NoError(t, err)
}

func TestUpdateStatus_EmptyUpdate(t *testing.T) {
	svc, _, _ := newTestResponderService(t)

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), models.ResponderStatusUpdate{})

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc, repoMock, _ := newTestResponderService(t)
	ctx := context.Background()
	id := uuid.New()
	busy := models.AvailabilityBusy
	update := models.ResponderStatusUpdate{Availability: &busy}

	repoMock.EXPECT().UpdateStatus(ctx, id, update).Return(nil, models.ErrNotFound)

	_, err := svc.UpdateStatus(ctx, id, update)

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCheckLoadIntegrity(t *testing.T) {
	svc, repoMock, _ := newTestResponderService(t)
	ctx := context.Background()
	drift := []models.LoadDrift{{ResponderID: uuid.New(), CurrentLoad: 2, ActualLoad: 1}}

	repoMock.EXPECT().LoadDrift(ctx).Return(drift, nil)

	got, err := svc.CheckLoadIntegrity(ctx)

	require.NoError(t, err)
	assert.Equal(t, drift, got)
}

func TestCheckLoadIntegrity_Error(t *testing.T) {
	svc, repoMock, _ := newTestResponderService(t)
	ctx := context.Background()

	repoMock.EXPECT().LoadDrift(ctx).Return(nil, errors.New("db unavailable"))

	_, err := svc.CheckLoadIntegrity(ctx)

	assert.ErrorContains(t, err, "could not check load integrity")
}
