package domain

import "fmt"

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusNoShow    AppointmentStatus = "no-show"
)

var AppointmentStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
	AppointmentStatusCancelled,
	AppointmentStatusCompleted,
	AppointmentStatusNoShow,
}

// ActiveAppointmentStatuses hold a professional's time; at most one active
// appointment may cover any instant of a professional's calendar.
var ActiveAppointmentStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
}

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusScheduled: {
		AppointmentStatusConfirmed,
		AppointmentStatusCancelled,
		AppointmentStatusCompleted,
		AppointmentStatusNoShow,
	},
	AppointmentStatusConfirmed: {
		AppointmentStatusCancelled,
		AppointmentStatusCompleted,
		AppointmentStatusNoShow,
	},
}

func (s AppointmentStatus) Valid() bool {
	for _, v := range AppointmentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) String() string { return string(s) }

func (s AppointmentStatus) Active() bool {
	return s == AppointmentStatusScheduled || s == AppointmentStatusConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return len(appointmentTransitions[s]) == 0
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, to := range appointmentTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Transition validates moving from s to next. Staying in a non-terminal
// status is a no-op; terminal statuses accept nothing, not even themselves.
func (s AppointmentStatus) Transition(next AppointmentStatus) error {
	if !next.Valid() {
		return NewValidationError(fmt.Sprintf("invalid status %q", next))
	}
	if s == next && !s.Terminal() {
		return nil
	}
	if s.CanTransitionTo(next) {
		return nil
	}
	return &TransitionError{From: s, To: next}
}

type SuggestionStatus string

const (
	SuggestionStatusPending   SuggestionStatus = "pending"
	SuggestionStatusAccepted  SuggestionStatus = "accepted"
	SuggestionStatusRejected  SuggestionStatus = "rejected"
	SuggestionStatusCountered SuggestionStatus = "countered"
)

func (s SuggestionStatus) Valid() bool {
	switch s {
	case SuggestionStatusPending, SuggestionStatusAccepted, SuggestionStatusRejected, SuggestionStatusCountered:
		return true
	}
	return false
}

func (s SuggestionStatus) String() string { return string(s) }

func (s SuggestionStatus) Terminal() bool {
	return s != SuggestionStatusPending
}
