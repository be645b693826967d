package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"parley/backend/internal/domain"
	"parley/backend/internal/store"
)

type calendarTx struct {
	now          func() time.Time
	appointments map[uuid.UUID]domain.Appointment
	suggestions  map[uuid.UUID]domain.Suggestion
}

// LockCalendar is a no-op: the whole transaction already holds the store lock.
func (t *calendarTx) LockCalendar(ctx context.Context, professionalID string) error {
	return ctx.Err()
}

func (t *calendarTx) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	a, ok := t.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *calendarTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	if _, exists := t.appointments[appt.ID]; exists {
		return domain.Appointment{}, store.ErrConflict
	}
	if t.overlapsActive(appt) {
		return domain.Appointment{}, store.ErrConflict
	}

	now := t.now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = appt.CreatedAt
	}
	t.appointments[appt.ID] = appt
	return appt, nil
}

func (t *calendarTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	existing, ok := t.appointments[appt.ID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	if t.overlapsActive(appt) {
		return domain.Appointment{}, store.ErrConflict
	}

	appt.ProfessionalID = existing.ProfessionalID
	appt.ClientID = existing.ClientID
	appt.CreatedAt = existing.CreatedAt
	appt.UpdatedAt = t.now().UTC()
	if appt.UpdatedAt.Before(existing.UpdatedAt) {
		appt.UpdatedAt = existing.UpdatedAt
	}
	t.appointments[appt.ID] = appt
	return appt, nil
}

func (t *calendarTx) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.appointments[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.appointments, id)
	for sid, s := range t.suggestions {
		if s.AppointmentID != nil && *s.AppointmentID == id {
			delete(t.suggestions, sid)
		}
	}
	return nil
}

func (t *calendarTx) ListBusy(ctx context.Context, professionalID string, windowStart, windowEnd time.Time, exclude uuid.UUID) ([]domain.Appointment, error) {
	return listBusy(t.appointments, professionalID, windowStart, windowEnd, exclude), nil
}

// overlapsActive mirrors the appointments_no_overlap exclusion constraint.
func (t *calendarTx) overlapsActive(appt domain.Appointment) bool {
	if !appt.Status.Active() {
		return false
	}
	return len(listBusy(t.appointments, appt.ProfessionalID, appt.StartTime, appt.EndTime, appt.ID)) > 0
}

func (t *calendarTx) GetSuggestionForUpdate(ctx context.Context, id uuid.UUID) (domain.Suggestion, error) {
	s, ok := t.suggestions[id]
	if !ok {
		return domain.Suggestion{}, store.ErrNotFound
	}
	return s, nil
}

func (t *calendarTx) CreateSuggestion(ctx context.Context, s domain.Suggestion) (domain.Suggestion, error) {
	if s.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Suggestion{}, err
		}
		s.ID = id
	}
	if _, exists := t.suggestions[s.ID]; exists {
		return domain.Suggestion{}, store.ErrConflict
	}
	if s.AppointmentID != nil {
		if _, ok := t.appointments[*s.AppointmentID]; !ok {
			return domain.Suggestion{}, store.ErrNotFound
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = t.now().UTC()
	}
	t.suggestions[s.ID] = s
	return s, nil
}

func (t *calendarTx) TransitionSuggestion(ctx context.Context, s domain.Suggestion, from domain.SuggestionStatus) (domain.Suggestion, error) {
	existing, ok := t.suggestions[s.ID]
	if !ok || existing.Status != from {
		return domain.Suggestion{}, store.ErrStale
	}
	existing.AppointmentID = s.AppointmentID
	existing.Status = s.Status
	existing.Notes = s.Notes
	existing.RespondedAt = s.RespondedAt
	t.suggestions[s.ID] = existing
	return existing, nil
}
