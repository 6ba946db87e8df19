package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
)

func TestNext(t *testing.T) {
	tests := []struct {
		action Action
		from   Status
		want   Status
	}{
		{ActionCheckIn, StatusScheduled, StatusCheckedIn},
		{ActionCheckIn, StatusRescheduled, StatusCheckedIn},
		{ActionStart, StatusCheckedIn, StatusInProgress},
		{ActionExtend, StatusCheckedIn, StatusCheckedIn},
		{ActionExtend, StatusInProgress, StatusInProgress},
		{ActionCancel, StatusInProgress, StatusCancelled},
		{ActionReschedule, StatusCheckedIn, StatusRescheduled},
		{ActionComplete, StatusInProgress, StatusCompleted},
		{ActionComplete, StatusCheckedIn, StatusCompleted},
		{ActionNoShow, StatusRescheduled, StatusNoShow},
		{ActionPayment, StatusCompleted, StatusCompleted},
		{ActionPayment, StatusNoShow, StatusNoShow},
	}

	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+string(tt.from), func(t *testing.T) {
			got, err := Next(tt.action, tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextRejectsIllegalTransitions(t *testing.T) {
	tests := []struct {
		action Action
		from   Status
	}{
		{ActionCheckIn, StatusCheckedIn},
		{ActionStart, StatusScheduled},
		{ActionExtend, StatusScheduled},
		{ActionComplete, StatusScheduled},
		{ActionNoShow, StatusCheckedIn},
		{ActionPayment, StatusCancelled},
		{ActionCreated, StatusScheduled},
	}

	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+string(tt.from), func(t *testing.T) {
			_, err := Next(tt.action, tt.from)
			assert.ErrorIs(t, err, apperr.ErrInvalidState)
		})
	}
}

func TestTerminalStatusesAcceptOnlyPayment(t *testing.T) {
	for _, s := range allStatuses {
		if !s.Terminal() {
			continue
		}
		for action := range transitions {
			if action == ActionPayment && s != StatusCancelled {
				continue
			}
			assert.False(t, CanApply(action, s), "%s from %s", action, s)
		}
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusCheckedIn.Valid())
	assert.False(t, Status("checked_in").Valid())
	assert.False(t, Status("").Valid())
}
