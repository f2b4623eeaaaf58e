package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidentStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to IncidentStatus
		allowed  bool
	}{
		{StatusPending, StatusAssigned, true},
		{StatusPending, StatusQueued, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusInProgress, false},
		{StatusQueued, StatusAssigned, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusPending, false},
		{StatusAssigned, StatusInProgress, true},
		{StatusAssigned, StatusPending, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusAssigned, StatusResolved, false},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusPending, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusResolved, StatusAssigned, false},
		{StatusResolved, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))

			err := tt.from.Transition(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTransition))

			var te *InvalidTransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.from, te.From)
			assert.Equal(t, tt.to, te.To)
		})
	}
}

func TestIncidentStatus_Terminal(t *testing.T) {
	assert.True(t, StatusResolved.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, IncidentStatus("archived").Valid())
}

func TestSpecializationFor(t *testing.T) {
	spec, ok := SpecializationFor(IncidentHazmat)
	require.True(t, ok)
	assert.Equal(t, SpecFire, spec)

	_, ok = SpecializationFor(IncidentType("earthquake"))
	assert.False(t, ok)
}

func TestSeverity_Priority(t *testing.T) {
	assert.Equal(t, 4, SeverityCritical.Priority())
	assert.Equal(t, 1, SeverityLow.Priority())
	assert.Equal(t, 0, Severity("unknown").Priority())
}

func TestIncident_BindUnbind(t *testing.T) {
	now := time.Now().UTC()
	queuedAt := now.Add(-time.Minute)
	inc := &Incident{ID: uuid.New(), Status: StatusQueued, QueuedAt: &queuedAt}
	r := &Responder{ID: uuid.New(), Specialization: SpecMedical}

	inc.Bind(r, now)
	require.True(t, inc.IsBound())
	assert.Equal(t, StatusAssigned, inc.Status)
	assert.Equal(t, r.ID, *inc.AssignedResponderID)
	assert.Equal(t, SpecMedical, *inc.AssignedResponderType)
	assert.Nil(t, inc.QueuedAt)

	inc.Unbind()
	assert.False(t, inc.IsBound())
	assert.Nil(t, inc.AssignedResponderType)
	assert.Nil(t, inc.AssignedAt)
}

func TestResponder_CanServe(t *testing.T) {
	r := &Responder{Specialization: SpecFire, Approval: ApprovalApproved}
	assert.True(t, r.CanServe(IncidentFire))
	assert.True(t, r.CanServe(IncidentHazmat))
	assert.False(t, r.CanServe(IncidentMedical))

	r.Approval = ApprovalPending
	assert.False(t, r.CanServe(IncidentFire))
}
