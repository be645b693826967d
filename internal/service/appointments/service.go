package appointments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"parley/backend/internal/domain"
	"parley/backend/internal/notify"
	"parley/backend/internal/store"
	"parley/backend/internal/validation"
)

// TimeFormat is used when an appointment time is shown to a person.
const TimeFormat = "Mon 2 Jan 2006 15:04 MST"

// meetingURLTag matches the meeting_url tag on CreateInput.
const meetingURLTag = "omitempty,url"

type Service struct {
	store    store.Store
	notifier *notify.Notifier
	validate *validation.Validator
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Service)

func WithNotifier(n *notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLocation sets the location used for stats buckets and for times shown
// in notifications.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		validate: validation.New(),
		loc:      time.UTC,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "service.appointments"))
	return s
}

type CreateInput struct {
	ProfessionalID string                   `json:"professional_id" validate:"required,max=255,nefield=ClientID"`
	ClientID       string                   `json:"client_id" validate:"required,max=255"`
	CaseID         *string                  `json:"case_id"`
	Title          string                   `json:"title" validate:"required,max=255"`
	Description    string                   `json:"description"`
	StartTime      time.Time                `json:"start_time" validate:"required"`
	EndTime        time.Time                `json:"end_time" validate:"required,gtfield=StartTime"`
	Type           domain.AppointmentType   `json:"appointment_type" validate:"omitempty,appointment_type"`
	LocationType   domain.LocationType      `json:"location_type" validate:"omitempty,location_type"`
	Address        string                   `json:"address"`
	Latitude       *float64                 `json:"latitude"`
	Longitude      *float64                 `json:"longitude"`
	MeetingURL     string                   `json:"meeting_url" validate:"omitempty,url"`
	Status         domain.AppointmentStatus `json:"status" validate:"omitempty,appointment_status"`
	Notes          string                   `json:"notes"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	in.ProfessionalID = strings.TrimSpace(in.ProfessionalID)
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.Title = strings.TrimSpace(in.Title)
	in.MeetingURL = strings.TrimSpace(in.MeetingURL)
	if err := s.validate.Struct(in); err != nil {
		return domain.Appointment{}, err
	}

	appt := domain.Appointment{
		ProfessionalID: in.ProfessionalID,
		ClientID:       in.ClientID,
		Title:          in.Title,
		Description:    in.Description,
		StartTime:      in.StartTime.UTC(),
		EndTime:        in.EndTime.UTC(),
		Type:           in.Type,
		LocationType:   in.LocationType,
		Address:        strings.TrimSpace(in.Address),
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		MeetingURL:     in.MeetingURL,
		Status:         in.Status,
		Notes:          in.Notes,
	}
	if in.CaseID != nil {
		if caseID := strings.TrimSpace(*in.CaseID); caseID != "" {
			appt.CaseID = &caseID
		}
	}
	if appt.Type == "" {
		appt.Type = domain.AppointmentTypeConsultation
	}
	if appt.LocationType == "" {
		appt.LocationType = domain.LocationTypeOffice
	}
	if appt.Status == "" {
		appt.Status = domain.AppointmentStatusScheduled
	}
	if err := appt.Validate(); err != nil {
		return domain.Appointment{}, err
	}

	var created domain.Appointment
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.CalendarTx) error {
		if err := tx.LockCalendar(ctx, appt.ProfessionalID); err != nil {
			return err
		}
		if err := ensureFree(ctx, tx, appt); err != nil {
			return err
		}
		var err error
		created, err = tx.CreateAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, domain.NewValidationError("appointment_id is required")
	}
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, patch domain.AppointmentPatch) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, domain.NewValidationError("appointment_id is required")
	}
	if patch.Empty() {
		return domain.Appointment{}, domain.NoFieldsError()
	}

	var updated domain.Appointment
	err := s.inCalendar(ctx, id, func(ctx context.Context, tx store.CalendarTx, current domain.Appointment) error {
		next, err := patch.Apply(current)
		if err != nil {
			return err
		}
		if err := s.validate.Var("meeting_url", next.MeetingURL, meetingURLTag); err != nil {
			return err
		}
		if err := ensureFree(ctx, tx, next); err != nil {
			return err
		}
		updated, err = tx.UpdateAppointment(ctx, next)
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError("appointment_id is required")
	}
	return s.inCalendar(ctx, id, func(ctx context.Context, tx store.CalendarTx, _ domain.Appointment) error {
		return tx.DeleteAppointment(ctx, id)
	})
}

func (s *Service) List(ctx context.Context, filter store.AppointmentFilter) (store.AppointmentPage, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return store.AppointmentPage{}, domain.NewValidationError("invalid status")
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return store.AppointmentPage{}, domain.NewValidationError("invalid appointment_type")
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return store.AppointmentPage{}, domain.NewValidationError("to must be after from")
	}
	if filter.Offset < 0 {
		return store.AppointmentPage{}, domain.NewValidationError("offset must not be negative")
	}
	filter.Limit = store.NormalizeLimit(filter.Limit)
	return s.store.ListAppointments(ctx, filter)
}

func (s *Service) Stats(ctx context.Context, filter store.StatsFilter) (domain.AppointmentStats, error) {
	return s.store.AppointmentStats(ctx, filter, Buckets(s.now(), s.loc))
}

// Buckets computes the day, week (starting Monday) and month windows that
// contain now, in loc.
func Buckets(now time.Time, loc *time.Location) store.StatsBuckets {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	weekStart := dayStart.AddDate(0, 0, -((int(local.Weekday()) + 6) % 7))
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return store.StatsBuckets{
		Now:        now.UTC(),
		DayStart:   dayStart.UTC(),
		DayEnd:     dayStart.AddDate(0, 0, 1).UTC(),
		WeekStart:  weekStart.UTC(),
		WeekEnd:    weekStart.AddDate(0, 0, 7).UTC(),
		MonthStart: monthStart.UTC(),
		MonthEnd:   monthStart.AddDate(0, 1, 0).UTC(),
	}
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actorID, reason string) (domain.Appointment, error) {
	reason = strings.TrimSpace(reason)
	appt, changed, err := s.transition(ctx, id, actorID, domain.AppointmentStatusCancelled, func(a *domain.Appointment) {
		if reason == "" {
			return
		}
		if a.Notes != "" {
			a.Notes += "\n"
		}
		a.Notes += "Cancellation reason: " + reason
	})
	if err != nil || !changed {
		return appt, err
	}

	actor := s.notifier.DisplayName(ctx, actorID)
	msg := fmt.Sprintf("%s cancelled the appointment scheduled for %s.", actor, s.formatTime(appt.StartTime))
	if reason != "" {
		msg += " Reason: " + reason
	}
	s.notifier.Notify(ctx, notify.Notification{
		UserID:   appt.Counterparty(actorID),
		Type:     notify.TypeAppointmentCancelled,
		Title:    "Appointment cancelled",
		Message:  msg,
		Data:     appointmentData(appt, actorID),
		Channels: []notify.Channel{notify.ChannelInApp, notify.ChannelEmail},
	})
	return appt, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actorID string) (domain.Appointment, error) {
	appt, changed, err := s.transition(ctx, id, actorID, domain.AppointmentStatusConfirmed, nil)
	if err != nil || !changed {
		return appt, err
	}

	actor := s.notifier.DisplayName(ctx, actorID)
	s.notifier.Notify(ctx, notify.Notification{
		UserID:   appt.Counterparty(actorID),
		Type:     notify.TypeAppointmentConfirmed,
		Title:    "Appointment confirmed",
		Message:  fmt.Sprintf("%s confirmed the appointment scheduled for %s.", actor, s.formatTime(appt.StartTime)),
		Data:     appointmentData(appt, actorID),
		Channels: []notify.Channel{notify.ChannelInApp, notify.ChannelEmail},
	})
	return appt, nil
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, actorID string) (domain.Appointment, error) {
	appt, _, err := s.transition(ctx, id, actorID, domain.AppointmentStatusCompleted, nil)
	return appt, err
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actorID string) (domain.Appointment, error) {
	appt, _, err := s.transition(ctx, id, actorID, domain.AppointmentStatusNoShow, nil)
	return appt, err
}

// transition moves an appointment to next on behalf of one of its parties.
// changed is false when the appointment was already in next.
func (s *Service) transition(ctx context.Context, id uuid.UUID, actorID string, next domain.AppointmentStatus, mutate func(*domain.Appointment)) (domain.Appointment, bool, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, false, domain.NewValidationError("appointment_id is required")
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.Appointment{}, false, domain.NewValidationError("actor_id is required")
	}

	var (
		out     domain.Appointment
		changed bool
	)
	err := s.inCalendar(ctx, id, func(ctx context.Context, tx store.CalendarTx, current domain.Appointment) error {
		if !current.HasParty(actorID) {
			return domain.ErrUnauthorized
		}
		if err := current.Status.Transition(next); err != nil {
			return err
		}
		if current.Status == next {
			out = current
			return nil
		}
		current.Status = next
		if mutate != nil {
			mutate(&current)
		}
		var err error
		out, err = tx.UpdateAppointment(ctx, current)
		changed = err == nil
		return err
	})
	if err != nil {
		return domain.Appointment{}, false, err
	}
	if changed {
		s.log.Info(
			"appointment status changed",
			slog.String("appointment_id", out.ID.String()),
			slog.String("status", string(out.Status)),
			slog.String("actor_id", actorID),
		)
	}
	return out, changed, nil
}

// inCalendar runs fn in a transaction holding the calendar lock of the
// appointment's professional and a row lock on the appointment, in that order.
func (s *Service) inCalendar(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx store.CalendarTx, current domain.Appointment) error) error {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, tx store.CalendarTx) error {
		if err := tx.LockCalendar(ctx, appt.ProfessionalID); err != nil {
			return err
		}
		current, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, tx, current)
	})
}

// ensureFree fails with store.ErrConflict when an active appointment would
// overlap another active appointment of the same professional.
func ensureFree(ctx context.Context, tx store.CalendarTx, appt domain.Appointment) error {
	if !appt.Status.Active() {
		return nil
	}
	busy, err := tx.ListBusy(ctx, appt.ProfessionalID, appt.StartTime, appt.EndTime, appt.ID)
	if err != nil {
		return err
	}
	if len(busy) > 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Service) formatTime(t time.Time) string {
	return t.In(s.loc).Format(TimeFormat)
}

func appointmentData(a domain.Appointment, actorID string) map[string]any {
	return map[string]any{
		"appointment_id": a.ID.String(),
		"start_time":     a.StartTime.Format(time.RFC3339),
		"end_time":       a.EndTime.Format(time.RFC3339),
		"status":         string(a.Status),
		"actor_id":       actorID,
	}
}
