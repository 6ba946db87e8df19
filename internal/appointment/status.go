package appointment

import (
	"slices"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
)

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusCheckedIn   Status = "checked-in"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusNoShow      Status = "no_show"
)

var allStatuses = []Status{
	StatusScheduled,
	StatusCheckedIn,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusRescheduled,
	StatusNoShow,
}

func (s Status) Valid() bool { return slices.Contains(allStatuses, s) }

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Action names an operation on an appointment. It doubles as the history action type.
type Action string

const (
	ActionCreated    Action = "created"
	ActionCheckIn    Action = "checked_in"
	ActionStart      Action = "consultation_started"
	ActionExtend     Action = "extended"
	ActionCancel     Action = "cancelled"
	ActionReschedule Action = "rescheduled"
	ActionComplete   Action = "completed"
	ActionNoShow     Action = "no_show"
	ActionPayment    Action = "payment"
)

type transition struct {
	from []Status
	// to is empty when the action leaves the status unchanged
	to Status
}

var transitions = map[Action]transition{
	ActionCheckIn: {
		from: []Status{StatusScheduled, StatusRescheduled},
		to:   StatusCheckedIn,
	},
	ActionStart: {
		from: []Status{StatusCheckedIn},
		to:   StatusInProgress,
	},
	ActionExtend: {
		from: []Status{StatusCheckedIn, StatusInProgress},
	},
	ActionCancel: {
		from: []Status{StatusScheduled, StatusRescheduled, StatusCheckedIn, StatusInProgress},
		to:   StatusCancelled,
	},
	ActionReschedule: {
		from: []Status{StatusScheduled, StatusRescheduled, StatusCheckedIn, StatusInProgress},
		to:   StatusRescheduled,
	},
	ActionComplete: {
		from: []Status{StatusCheckedIn, StatusInProgress},
		to:   StatusCompleted,
	},
	ActionNoShow: {
		from: []Status{StatusScheduled, StatusRescheduled},
		to:   StatusNoShow,
	},
	ActionPayment: {
		from: []Status{StatusScheduled, StatusRescheduled, StatusCheckedIn, StatusInProgress, StatusCompleted, StatusNoShow},
	},
}

// CanApply reports whether action is legal for an appointment in status s.
func CanApply(action Action, s Status) bool {
	t, ok := transitions[action]
	return ok && slices.Contains(t.from, s)
}

// Next returns the status an appointment in s moves to under action.
func Next(action Action, s Status) (Status, error) {
	if !CanApply(action, s) {
		return "", apperr.InvalidState("cannot apply %s to an appointment that is %s", action, s)
	}
	if to := transitions[action].to; to != "" {
		return to, nil
	}
	return s, nil
}
