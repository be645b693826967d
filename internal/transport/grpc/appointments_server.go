package grpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"

	"parley/backend/internal/domain"
	"parley/backend/internal/service/appointments"
	"parley/backend/internal/store"
)

const appointmentNotFound = "appointment not found"

type AppointmentsServer struct {
	svc   appointmentsService
	slots slotFinder
	log   *slog.Logger
}

type appointmentsService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.AppointmentPatch) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter store.AppointmentFilter) (store.AppointmentPage, error)
	Stats(ctx context.Context, filter store.StatsFilter) (domain.AppointmentStats, error)
	Cancel(ctx context.Context, id uuid.UUID, actorID, reason string) (domain.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID, actorID string) (domain.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, actorID string) (domain.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID, actorID string) (domain.Appointment, error)
}

type slotFinder interface {
	FindAvailableSlots(ctx context.Context, professionalID string, date time.Time, durationMinutes int) ([]domain.TimeSlot, error)
}

func NewAppointmentsServer(svc appointmentsService, slots slotFinder, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		svc:   svc,
		slots: slots,
		log:   log.With(slog.String("component", "grpc.appointments")),
	}
}

func (s *AppointmentsServer) CreateAppointment(ctx context.Context, req *CreateAppointmentRequest) (*AppointmentResponse, error) {
	log := rpcLogger(ctx, s.log, "CreateAppointment")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	if req.StartTime == nil || req.EndTime == nil {
		return nil, invalidArgument(log, "missing_times", "start_time and end_time are required", slog.String("professional_id", req.ProfessionalID))
	}

	appt, err := s.svc.Create(ctx, appointments.CreateInput{
		ProfessionalID: req.ProfessionalID,
		ClientID:       req.ClientID,
		CaseID:         req.CaseID,
		Title:          req.Title,
		Description:    req.Description,
		StartTime:      req.StartTime.AsTime(),
		EndTime:        req.EndTime.AsTime(),
		Type:           domain.AppointmentType(req.AppointmentType),
		LocationType:   domain.LocationType(req.LocationType),
		Address:        req.Address,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		MeetingURL:     req.MeetingURL,
		Status:         domain.AppointmentStatus(req.Status),
		Notes:          req.Notes,
	})
	if err != nil {
		return nil, toStatus(log, "appointment create", err, appointmentNotFound,
			slog.String("professional_id", req.ProfessionalID),
			slog.Time("start_time", req.StartTime.AsTime()),
			slog.Time("end_time", req.EndTime.AsTime()),
		)
	}

	log.Info(
		"appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("professional_id", appt.ProfessionalID),
		slog.String("client_id", appt.ClientID),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *AppointmentsServer) GetAppointment(ctx context.Context, req *GetAppointmentRequest) (*AppointmentResponse, error) {
	log := rpcLogger(ctx, s.log, "GetAppointment")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := parseUUID(log, "appointment_id", req.AppointmentID)
	if err != nil {
		return nil, err
	}

	appt, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, toStatus(log, "appointment get", err, appointmentNotFound, slog.String("appointment_id", id.String()))
	}
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *AppointmentsServer) UpdateAppointment(ctx context.Context, req *UpdateAppointmentRequest) (*AppointmentResponse, error) {
	log := rpcLogger(ctx, s.log, "UpdateAppointment")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := parseUUID(log, "appointment_id", req.AppointmentID)
	if err != nil {
		return nil, err
	}

	appt, err := s.svc.Update(ctx, id, toPatch(req))
	if err != nil {
		return nil, toStatus(log, "appointment update", err, appointmentNotFound, slog.String("appointment_id", id.String()))
	}

	log.Info(
		"appointment updated",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("status", string(appt.Status)),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func toPatch(req *UpdateAppointmentRequest) domain.AppointmentPatch {
	p := domain.AppointmentPatch{
		CaseID:       req.CaseID,
		Title:        req.Title,
		Description:  req.Description,
		Address:      req.Address,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		MeetingURL:   req.MeetingURL,
		ReminderSent: req.ReminderSent,
		Notes:        req.Notes,
	}
	if req.StartTime != nil {
		t := req.StartTime.AsTime()
		p.StartTime = &t
	}
	if req.EndTime != nil {
		t := req.EndTime.AsTime()
		p.EndTime = &t
	}
	if req.AppointmentType != nil {
		v := domain.AppointmentType(*req.AppointmentType)
		p.Type = &v
	}
	if req.LocationType != nil {
		v := domain.LocationType(*req.LocationType)
		p.LocationType = &v
	}
	if req.Status != nil {
		v := domain.AppointmentStatus(*req.Status)
		p.Status = &v
	}
	return p
}

func (s *AppointmentsServer) DeleteAppointment(ctx context.Context, req *DeleteAppointmentRequest) (*DeleteAppointmentResponse, error) {
	log := rpcLogger(ctx, s.log, "DeleteAppointment")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := parseUUID(log, "appointment_id", req.AppointmentID)
	if err != nil {
		return nil, err
	}

	if err := s.svc.Delete(ctx, id); err != nil {
		return nil, toStatus(log, "appointment delete", err, appointmentNotFound, slog.String("appointment_id", id.String()))
	}

	log.Info("appointment deleted", slog.String("appointment_id", id.String()))
	return &DeleteAppointmentResponse{}, nil
}

func (s *AppointmentsServer) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := rpcLogger(ctx, s.log, "ListAppointments")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}

	filter := store.AppointmentFilter{
		ProfessionalID: req.ProfessionalID,
		ClientID:       req.ClientID,
		CaseID:         req.CaseID,
		Search:         req.Search,
		Limit:          int(req.Limit),
		Offset:         int(req.Offset),
	}
	if req.Status != "" {
		v := domain.AppointmentStatus(req.Status)
		filter.Status = &v
	}
	if req.AppointmentType != "" {
		v := domain.AppointmentType(req.AppointmentType)
		filter.Type = &v
	}
	filter.From = optionalTime(req.From)
	filter.To = optionalTime(req.To)

	page, err := s.svc.List(ctx, filter)
	if err != nil {
		return nil, toStatus(log, "appointments list", err, appointmentNotFound)
	}

	out := make([]*Appointment, 0, len(page.Appointments))
	for _, a := range page.Appointments {
		out = append(out, toAppointment(a))
	}

	log.Debug(
		"appointments listed",
		slog.Int("count", len(out)),
		slog.Int("total", page.Total),
		slog.String("professional_id", req.ProfessionalID),
		slog.String("client_id", req.ClientID),
	)
	return &ListAppointmentsResponse{Appointments: out, Total: int32(page.Total)}, nil
}

func optionalTime(ts *timestamppb.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.AsTime()
	return &t
}

func (s *AppointmentsServer) AppointmentStats(ctx context.Context, req *AppointmentStatsRequest) (*AppointmentStatsResponse, error) {
	log := rpcLogger(ctx, s.log, "AppointmentStats")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}

	stats, err := s.svc.Stats(ctx, store.StatsFilter{ProfessionalID: req.ProfessionalID, ClientID: req.ClientID})
	if err != nil {
		return nil, toStatus(log, "appointment stats", err, appointmentNotFound)
	}

	out := &AppointmentStatsResponse{
		Total:     int32(stats.Total),
		ByStatus:  make(map[string]int32, len(stats.ByStatus)),
		ByType:    make(map[string]int32, len(stats.ByType)),
		Upcoming:  int32(stats.Upcoming),
		Today:     int32(stats.Today),
		ThisWeek:  int32(stats.ThisWeek),
		ThisMonth: int32(stats.ThisMonth),
	}
	for k, v := range stats.ByStatus {
		out.ByStatus[string(k)] = int32(v)
	}
	for k, v := range stats.ByType {
		out.ByType[string(k)] = int32(v)
	}
	return out, nil
}

func (s *AppointmentsServer) CancelAppointment(ctx context.Context, req *AppointmentActionRequest) (*AppointmentResponse, error) {
	return s.act(ctx, "CancelAppointment", "appointment cancel", req, func(id uuid.UUID, actor string) (domain.Appointment, error) {
		return s.svc.Cancel(ctx, id, actor, req.Reason)
	})
}

func (s *AppointmentsServer) ConfirmAppointment(ctx context.Context, req *AppointmentActionRequest) (*AppointmentResponse, error) {
	return s.act(ctx, "ConfirmAppointment", "appointment confirm", req, func(id uuid.UUID, actor string) (domain.Appointment, error) {
		return s.svc.Confirm(ctx, id, actor)
	})
}

func (s *AppointmentsServer) CompleteAppointment(ctx context.Context, req *AppointmentActionRequest) (*AppointmentResponse, error) {
	return s.act(ctx, "CompleteAppointment", "appointment complete", req, func(id uuid.UUID, actor string) (domain.Appointment, error) {
		return s.svc.Complete(ctx, id, actor)
	})
}

func (s *AppointmentsServer) MarkNoShow(ctx context.Context, req *AppointmentActionRequest) (*AppointmentResponse, error) {
	return s.act(ctx, "MarkNoShow", "appointment no-show", req, func(id uuid.UUID, actor string) (domain.Appointment, error) {
		return s.svc.MarkNoShow(ctx, id, actor)
	})
}

// act runs one status action on behalf of the authenticated caller.
func (s *AppointmentsServer) act(ctx context.Context, rpc, op string, req *AppointmentActionRequest, do func(id uuid.UUID, actor string) (domain.Appointment, error)) (*AppointmentResponse, error) {
	log := rpcLogger(ctx, s.log, rpc)

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	caller, err := requireIdentity(ctx, log)
	if err != nil {
		return nil, err
	}
	id, err := parseUUID(log, "appointment_id", req.AppointmentID)
	if err != nil {
		return nil, err
	}

	appt, err := do(id, caller.UserID)
	if err != nil {
		return nil, toStatus(log, op, err, appointmentNotFound,
			slog.String("appointment_id", id.String()),
			slog.String("user_id", caller.UserID),
		)
	}

	log.Info(
		"appointment status changed",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("user_id", caller.UserID),
		slog.String("status", string(appt.Status)),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *AppointmentsServer) FindAvailableSlots(ctx context.Context, req *FindAvailableSlotsRequest) (*FindAvailableSlotsResponse, error) {
	log := rpcLogger(ctx, s.log, "FindAvailableSlots")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	if req.Date == nil {
		return nil, invalidArgument(log, "missing_date", "date is required", slog.String("professional_id", req.ProfessionalID))
	}

	slots, err := s.slots.FindAvailableSlots(ctx, req.ProfessionalID, req.Date.AsTime(), int(req.DurationMinutes))
	if err != nil {
		return nil, toStatus(log, "slot search", err, appointmentNotFound, slog.String("professional_id", req.ProfessionalID))
	}

	out := make([]*TimeSlot, 0, len(slots))
	for _, slot := range slots {
		out = append(out, &TimeSlot{StartTime: timestamppb.New(slot.Start), EndTime: timestamppb.New(slot.End)})
	}

	log.Debug(
		"slots listed",
		slog.String("professional_id", req.ProfessionalID),
		slog.Int("count", len(out)),
		slog.Int("duration_minutes", int(req.DurationMinutes)),
	)
	return &FindAvailableSlotsResponse{Slots: out}, nil
}
