// Package negotiation implements the propose, accept, reject and counter
// protocol between a professional and a client. Accepting a suggestion books
// the calendar in the same transaction that closes the suggestion.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"parley/backend/internal/domain"
	"parley/backend/internal/notify"
	"parley/backend/internal/store"
	"parley/backend/internal/validation"
)

const (
	// DefaultAppointmentTitle names appointments created from an accepted
	// suggestion.
	DefaultAppointmentTitle = "Consultation"

	timeFormat = "Mon 2 Jan 2006 15:04 MST"
)

var tracer = otel.Tracer("parley/backend/internal/service/negotiation")

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
	s.log = s.log.With(slog.String("component", "service.negotiation"))
	return s
}

type CreateSuggestionInput struct {
	AppointmentID *uuid.UUID `json:"appointment_id"`
	SuggestedBy   string     `json:"suggested_by" validate:"required,max=255,nefield=SuggestedTo"`
	SuggestedTo   string     `json:"suggested_to" validate:"required,max=255"`
	// ProposerRole says which party SuggestedBy is. It is required when no
	// appointment is referenced.
	ProposerRole domain.PartyRole `json:"proposer_role" validate:"omitempty,party_role"`
	StartTime    time.Time        `json:"start_time" validate:"required"`
	EndTime      time.Time        `json:"end_time" validate:"required,gtfield=StartTime"`
	Notes        string           `json:"notes"`
}

type CounterInput struct {
	SuggestionID uuid.UUID `json:"suggestion_id"`
	ActorID      string    `json:"actor_id" validate:"required"`
	StartTime    time.Time `json:"start_time" validate:"required"`
	EndTime      time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	Notes        string    `json:"notes"`
}

// AcceptResult is the closed suggestion and the appointment it produced or
// moved.
type AcceptResult struct {
	Suggestion  domain.Suggestion
	Appointment domain.Appointment
}

func (s *Service) CreateSuggestion(ctx context.Context, in CreateSuggestionInput) (out domain.Suggestion, err error) {
	ctx, span := tracer.Start(ctx, "negotiation.CreateSuggestion")
	defer func() { endSpan(span, err) }()

	in.SuggestedBy = strings.TrimSpace(in.SuggestedBy)
	in.SuggestedTo = strings.TrimSpace(in.SuggestedTo)
	if err := s.validate.Struct(in); err != nil {
		return domain.Suggestion{}, err
	}

	sg := domain.Suggestion{
		AppointmentID:      in.AppointmentID,
		SuggestedBy:        in.SuggestedBy,
		SuggestedTo:        in.SuggestedTo,
		SuggestedStartTime: in.StartTime.UTC(),
		SuggestedEndTime:   in.EndTime.UTC(),
		Status:             domain.SuggestionStatusPending,
		Notes:              strings.TrimSpace(in.Notes),
	}

	exclude := uuid.Nil
	if in.AppointmentID != nil {
		appt, err := s.store.GetAppointment(ctx, *in.AppointmentID)
		if err != nil {
			return domain.Suggestion{}, err
		}
		if appt.Status.Terminal() {
			return domain.Suggestion{}, &domain.TransitionError{From: appt.Status, To: domain.AppointmentStatusScheduled}
		}
		if !appt.HasParty(in.SuggestedBy) || appt.Counterparty(in.SuggestedBy) != in.SuggestedTo {
			return domain.Suggestion{}, domain.ErrUnauthorized
		}
		sg.ProfessionalID = appt.ProfessionalID
		sg.ClientID = appt.ClientID
		exclude = appt.ID
	} else {
		switch in.ProposerRole {
		case domain.PartyRoleProfessional:
			sg.ProfessionalID, sg.ClientID = in.SuggestedBy, in.SuggestedTo
		case domain.PartyRoleClient:
			sg.ProfessionalID, sg.ClientID = in.SuggestedTo, in.SuggestedBy
		default:
			return domain.Suggestion{}, domain.NewValidationError("proposer_role is required")
		}
	}
	span.SetAttributes(attribute.String("professional_id", sg.ProfessionalID))

	err = s.store.InTransaction(ctx, func(ctx context.Context, tx store.CalendarTx) error {
		if err := ensureFree(ctx, tx, sg.ProfessionalID, sg.SuggestedStartTime, sg.SuggestedEndTime, exclude); err != nil {
			return err
		}
		var err error
		out, err = tx.CreateSuggestion(ctx, sg)
		return err
	})
	if err != nil {
		return domain.Suggestion{}, err
	}

	s.log.Info(
		"suggestion created",
		slog.String("suggestion_id", out.ID.String()),
		slog.String("suggested_by", out.SuggestedBy),
		slog.String("suggested_to", out.SuggestedTo),
	)
	proposer := s.notifier.DisplayName(ctx, out.SuggestedBy)
	s.notifier.Notify(ctx, notify.Notification{
		UserID:   out.SuggestedTo,
		Type:     notify.TypeSuggestionCreated,
		Title:    "New appointment time suggested",
		Message:  fmt.Sprintf("%s suggested %s.", proposer, s.formatWindow(out)),
		Data:     suggestionData(out),
		Channels: []notify.Channel{notify.ChannelInApp, notify.ChannelEmail},
	})
	return out, nil
}

func (s *Service) AcceptSuggestion(ctx context.Context, id uuid.UUID, actorID string) (res AcceptResult, err error) {
	ctx, span := tracer.Start(ctx, "negotiation.AcceptSuggestion", trace.WithAttributes(attribute.String("suggestion_id", id.String())))
	defer func() { endSpan(span, err) }()

	actorID, err = checkActor(id, actorID)
	if err != nil {
		return AcceptResult{}, err
	}

	err = s.inCalendar(ctx, id, actorID, domain.SuggestionStatusAccepted, func(ctx context.Context, tx store.CalendarTx, sg domain.Suggestion) error {
		var (
			appt domain.Appointment
			err  error
		)
		if sg.AppointmentID != nil {
			current, err := tx.GetAppointmentForUpdate(ctx, *sg.AppointmentID)
			if err != nil {
				return err
			}
			moved, err := current.Reschedule(sg.SuggestedStartTime, sg.SuggestedEndTime)
			if err != nil {
				return err
			}
			if err := ensureFree(ctx, tx, moved.ProfessionalID, moved.StartTime, moved.EndTime, moved.ID); err != nil {
				return err
			}
			if appt, err = tx.UpdateAppointment(ctx, moved); err != nil {
				return err
			}
		} else {
			if err := ensureFree(ctx, tx, sg.ProfessionalID, sg.SuggestedStartTime, sg.SuggestedEndTime, uuid.Nil); err != nil {
				return err
			}
			if appt, err = tx.CreateAppointment(ctx, sg.NewAppointment(DefaultAppointmentTitle)); err != nil {
				return err
			}
		}

		accepted, err := sg.Respond(domain.SuggestionStatusAccepted, s.now())
		if err != nil {
			return err
		}
		apptID := appt.ID
		accepted.AppointmentID = &apptID
		if accepted, err = transition(ctx, tx, accepted); err != nil {
			return err
		}
		res = AcceptResult{Suggestion: accepted, Appointment: appt}
		return nil
	})
	if err != nil {
		return AcceptResult{}, err
	}

	s.log.Info(
		"suggestion accepted",
		slog.String("suggestion_id", res.Suggestion.ID.String()),
		slog.String("appointment_id", res.Appointment.ID.String()),
		slog.String("actor_id", actorID),
	)
	actor := s.notifier.DisplayName(ctx, actorID)
	data := suggestionData(res.Suggestion)
	data["appointment_id"] = res.Appointment.ID.String()
	s.notifier.Notify(ctx, notify.Notification{
		UserID:   res.Suggestion.SuggestedBy,
		Type:     notify.TypeSuggestionAccepted,
		Title:    "Suggestion accepted",
		Message:  fmt.Sprintf("%s accepted your suggestion for %s.", actor, s.formatWindow(res.Suggestion)),
		Data:     data,
		Channels: []notify.Channel{notify.ChannelInApp, notify.ChannelEmail},
	})
	return res, nil
}

func (s *Service) RejectSuggestion(ctx context.Context, id uuid.UUID, actorID, reason string) (out domain.Suggestion, err error) {
	ctx, span := tracer.Start(ctx, "negotiation.RejectSuggestion", trace.WithAttributes(attribute.String("suggestion_id", id.String())))
	defer func() { endSpan(span, err) }()

	actorID, err = checkActor(id, actorID)
	if err != nil {
		return domain.Suggestion{}, err
	}
	reason = strings.TrimSpace(reason)

	err = s.store.InTransaction(ctx, func(ctx context.Context, tx store.CalendarTx) error {
		sg, err := lockPending(ctx, tx, id, actorID, domain.SuggestionStatusRejected)
		if err != nil {
			return err
		}
		rejected, err := sg.Respond(domain.SuggestionStatusRejected, s.now())
		if err != nil {
			return err
		}
		if reason != "" {
			rejected.Notes = reason
		}
		out, err = transition(ctx, tx, rejected)
		return err
	})
	if err != nil {
		return domain.Suggestion{}, err
	}

	s.log.Info("suggestion rejected", slog.String("suggestion_id", out.ID.String()), slog.String("actor_id", actorID))
	actor := s.notifier.DisplayName(ctx, actorID)
	msg := fmt.Sprintf("%s declined your suggestion for %s.", actor, s.formatWindow(out))
	data := suggestionData(out)
	if reason != "" {
		msg += " Reason: " + reason
		data["reason"] = reason
	}
	s.notifier.Notify(ctx, notify.Notification{
		UserID:   out.SuggestedBy,
		Type:     notify.TypeSuggestionRejected,
		Title:    "Suggestion declined",
		Message:  msg,
		Data:     data,
		Channels: []notify.Channel{notify.ChannelInApp, notify.ChannelEmail},
	})
	return out, nil
}

// CounterSuggestion closes the original as countered and opens a new pending
// suggestion in the other direction. The returned suggestion is the new one.
func (s *Service) CounterSuggestion(ctx context.Context, in CounterInput) (out domain.Suggestion, err error) {
	ctx, span := tracer.Start(ctx, "negotiation.CounterSuggestion", trace.WithAttributes(attribute.String("suggestion_id", in.SuggestionID.String())))
	defer func() { endSpan(span, err) }()

	in.ActorID, err = checkActor(in.SuggestionID, in.ActorID)
	if err != nil {
		return domain.Suggestion{}, err
	}
	if err := s.validate.Struct(in); err != nil {
		return domain.Suggestion{}, err
	}

	var original domain.Suggestion
	err = s.inCalendar(ctx, in.SuggestionID, in.ActorID, domain.SuggestionStatusCountered, func(ctx context.Context, tx store.CalendarTx, sg domain.Suggestion) error {
		exclude := uuid.Nil
		if sg.AppointmentID != nil {
			exclude = *sg.AppointmentID
		}
		if err := ensureFree(ctx, tx, sg.ProfessionalID, in.StartTime.UTC(), in.EndTime.UTC(), exclude); err != nil {
			return err
		}

		countered, err := sg.Respond(domain.SuggestionStatusCountered, s.now())
		if err != nil {
			return err
		}
		if original, err = transition(ctx, tx, countered); err != nil {
			return err
		}
		out, err = tx.CreateSuggestion(ctx, sg.Counter(in.StartTime, in.EndTime, strings.TrimSpace(in.Notes)))
		return err
	})
	if err != nil {
		return domain.Suggestion{}, err
	}

	s.log.Info(
		"suggestion countered",
		slog.String("suggestion_id", original.ID.String()),
		slog.String("counter_id", out.ID.String()),
		slog.String("actor_id", in.ActorID),
	)
	actor := s.notifier.DisplayName(ctx, in.ActorID)
	data := suggestionData(out)
	data["parent_id"] = original.ID.String()
	s.notifier.Notify(ctx, notify.Notification{
		UserID:   original.SuggestedBy,
		Type:     notify.TypeSuggestionCountered,
		Title:    "New time proposed",
		Message:  fmt.Sprintf("%s proposed %s instead.", actor, s.formatWindow(out)),
		Data:     data,
		Channels: []notify.Channel{notify.ChannelInApp, notify.ChannelEmail},
	})
	return out, nil
}

func (s *Service) GetSuggestion(ctx context.Context, id uuid.UUID) (domain.Suggestion, error) {
	if id == uuid.Nil {
		return domain.Suggestion{}, domain.NewValidationError("suggestion_id is required")
	}
	return s.store.GetSuggestion(ctx, id)
}

func (s *Service) ListSuggestions(ctx context.Context, filter store.SuggestionFilter) ([]domain.Suggestion, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.NewValidationError("invalid status")
	}
	filter.UserID = strings.TrimSpace(filter.UserID)
	filter.Limit = store.NormalizeLimit(filter.Limit)
	return s.store.ListSuggestions(ctx, filter)
}

func checkActor(id uuid.UUID, actorID string) (string, error) {
	if id == uuid.Nil {
		return "", domain.NewValidationError("suggestion_id is required")
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", domain.NewValidationError("actor_id is required")
	}
	return actorID, nil
}

// lockPending row-locks the suggestion and checks that actorID may answer it.
// Only the addressee of a pending suggestion may act on it.
// inCalendar runs fn in a transaction holding the calendar lock of the
// suggestion's professional and then a row lock on the pending suggestion,
// the same order appointment writers use.
func (s *Service) inCalendar(ctx context.Context, id uuid.UUID, actorID string, next domain.SuggestionStatus, fn func(ctx context.Context, tx store.CalendarTx, sg domain.Suggestion) error) error {
	sg, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return err
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, tx store.CalendarTx) error {
		if err := tx.LockCalendar(ctx, sg.ProfessionalID); err != nil {
			return err
		}
		current, err := lockPending(ctx, tx, id, actorID, next)
		if err != nil {
			return err
		}
		return fn(ctx, tx, current)
	})
}

func lockPending(ctx context.Context, tx store.CalendarTx, id uuid.UUID, actorID string, next domain.SuggestionStatus) (domain.Suggestion, error) {
	sg, err := tx.GetSuggestionForUpdate(ctx, id)
	if err != nil {
		return domain.Suggestion{}, err
	}
	if sg.SuggestedTo != actorID {
		return domain.Suggestion{}, domain.ErrUnauthorized
	}
	if sg.Status.Terminal() {
		return domain.Suggestion{}, &domain.TransitionError{From: sg.Status, To: next}
	}
	return sg, nil
}

func transition(ctx context.Context, tx store.CalendarTx, sg domain.Suggestion) (domain.Suggestion, error) {
	out, err := tx.TransitionSuggestion(ctx, sg, domain.SuggestionStatusPending)
	if errors.Is(err, store.ErrStale) {
		return domain.Suggestion{}, &domain.TransitionError{From: domain.SuggestionStatusPending, To: sg.Status}
	}
	return out, err
}

func ensureFree(ctx context.Context, tx store.CalendarTx, professionalID string, start, end time.Time, exclude uuid.UUID) error {
	busy, err := tx.ListBusy(ctx, professionalID, start, end, exclude)
	if err != nil {
		return err
	}
	if len(busy) > 0 {
		return store.ErrConflict
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

func (s *Service) formatWindow(sg domain.Suggestion) string {
	start := sg.SuggestedStartTime.In(s.loc)
	end := sg.SuggestedEndTime.In(s.loc)
	return start.Format(timeFormat) + " to " + end.Format("15:04")
}

func suggestionData(sg domain.Suggestion) map[string]any {
	data := map[string]any{
		"suggestion_id": sg.ID.String(),
		"start_time":    sg.SuggestedStartTime.Format(time.RFC3339),
		"end_time":      sg.SuggestedEndTime.Format(time.RFC3339),
		"status":        string(sg.Status),
	}
	if sg.AppointmentID != nil {
		data["appointment_id"] = sg.AppointmentID.String()
	}
	return data
}
