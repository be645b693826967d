package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"parley/backend/internal/domain"
)

// CalendarTx is the write side of the store. Every method runs inside the
// transaction opened by Store.InTransaction.
type CalendarTx interface {
	// LockCalendar serialises writers of one professional's calendar until the
	// transaction ends.
	LockCalendar(ctx context.Context, professionalID string) error

	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	// ListBusy returns the active appointments of a professional overlapping
	// [windowStart, windowEnd), skipping exclude when it is not uuid.Nil.
	ListBusy(ctx context.Context, professionalID string, windowStart, windowEnd time.Time, exclude uuid.UUID) ([]domain.Appointment, error)

	GetSuggestionForUpdate(ctx context.Context, id uuid.UUID) (domain.Suggestion, error)
	CreateSuggestion(ctx context.Context, s domain.Suggestion) (domain.Suggestion, error)
	// TransitionSuggestion writes s only if the stored row is still in status
	// from; otherwise it returns ErrStale.
	TransitionSuggestion(ctx context.Context, s domain.Suggestion, from domain.SuggestionStatus) (domain.Suggestion, error)
}
