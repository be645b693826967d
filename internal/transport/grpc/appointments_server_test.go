package grpc

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"parley/backend/internal/domain"
	"parley/backend/internal/service/appointments"
	"parley/backend/internal/store"
)

type fakeAppointmentsService struct {
	createFn     func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	getFn        func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	updateFn     func(ctx context.Context, id uuid.UUID, patch domain.AppointmentPatch) (domain.Appointment, error)
	deleteFn     func(ctx context.Context, id uuid.UUID) error
	listFn       func(ctx context.Context, filter store.AppointmentFilter) (store.AppointmentPage, error)
	statsFn      func(ctx context.Context, filter store.StatsFilter) (domain.AppointmentStats, error)
	transitionFn func(ctx context.Context, action string, id uuid.UUID, actorID, reason string) (domain.Appointment, error)
}

func (f *fakeAppointmentsService) Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeAppointmentsService) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeAppointmentsService) Update(ctx context.Context, id uuid.UUID, patch domain.AppointmentPatch) (domain.Appointment, error) {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, id, patch)
}

func (f *fakeAppointmentsService) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, id)
}

func (f *fakeAppointmentsService) List(ctx context.Context, filter store.AppointmentFilter) (store.AppointmentPage, error) {
	if f.listFn == nil {
		panic("List not configured")
	}
	return f.listFn(ctx, filter)
}

func (f *fakeAppointmentsService) Stats(ctx context.Context, filter store.StatsFilter) (domain.AppointmentStats, error) {
	if f.statsFn == nil {
		panic("Stats not configured")
	}
	return f.statsFn(ctx, filter)
}

func (f *fakeAppointmentsService) transition(ctx context.Context, action string, id uuid.UUID, actorID, reason string) (domain.Appointment, error) {
	if f.transitionFn == nil {
		panic(action + " not configured")
	}
	return f.transitionFn(ctx, action, id, actorID, reason)
}

func (f *fakeAppointmentsService) Cancel(ctx context.Context, id uuid.UUID, actorID, reason string) (domain.Appointment, error) {
	return f.transition(ctx, "cancel", id, actorID, reason)
}

func (f *fakeAppointmentsService) Confirm(ctx context.Context, id uuid.UUID, actorID string) (domain.Appointment, error) {
	return f.transition(ctx, "confirm", id, actorID, "")
}

func (f *fakeAppointmentsService) Complete(ctx context.Context, id uuid.UUID, actorID string) (domain.Appointment, error) {
	return f.transition(ctx, "complete", id, actorID, "")
}

func (f *fakeAppointmentsService) MarkNoShow(ctx context.Context, id uuid.UUID, actorID string) (domain.Appointment, error) {
	return f.transition(ctx, "no-show", id, actorID, "")
}

type fakeSlotFinder struct {
	findFn func(ctx context.Context, professionalID string, date time.Time, durationMinutes int) ([]domain.TimeSlot, error)
}

func (f *fakeSlotFinder) FindAvailableSlots(ctx context.Context, professionalID string, date time.Time, durationMinutes int) ([]domain.TimeSlot, error) {
	if f.findFn == nil {
		panic("FindAvailableSlots not configured")
	}
	return f.findFn(ctx, professionalID, date, durationMinutes)
}

var testApptID = uuid.MustParse("00000000-0000-0000-0000-000000000010")

func newTestAppointmentsServer(svc *fakeAppointmentsService) *AppointmentsServer {
	return NewAppointmentsServer(svc, &fakeSlotFinder{}, slog.Default())
}

func TestCreateAppointment_RejectsMissingTimes(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{})

	_, err := srv.CreateAppointment(context.Background(), &CreateAppointmentRequest{
		ProfessionalID: "pro-1",
		ClientID:       "client-1",
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestCreateAppointment_PassesFieldsToService(t *testing.T) {
	var got appointments.CreateInput
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
			got = in
			return domain.Appointment{ID: testApptID, ProfessionalID: in.ProfessionalID, ClientID: in.ClientID, StartTime: in.StartTime, EndTime: in.EndTime}, nil
		},
	})

	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	caseID := "case-7"
	resp, err := srv.CreateAppointment(context.Background(), &CreateAppointmentRequest{
		ProfessionalID:  "pro-1",
		ClientID:        "client-1",
		CaseID:          &caseID,
		Title:           "Review",
		StartTime:       timestamppb.New(start),
		EndTime:         timestamppb.New(start.Add(time.Hour)),
		AppointmentType: "video",
		LocationType:    "online",
		MeetingURL:      "https://meet.example.com/abc",
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if got.Type != domain.AppointmentTypeVideo || got.LocationType != domain.LocationTypeOnline {
		t.Fatalf("type/location = %q/%q", got.Type, got.LocationType)
	}
	if got.CaseID == nil || *got.CaseID != "case-7" {
		t.Fatalf("case_id = %v, want case-7", got.CaseID)
	}
	if !got.StartTime.Equal(start) || !got.EndTime.Equal(start.Add(time.Hour)) {
		t.Fatalf("window = %s..%s", got.StartTime, got.EndTime)
	}
	if resp.Appointment.ID != testApptID.String() {
		t.Fatalf("id = %q, want %q", resp.Appointment.ID, testApptID)
	}
}

func TestCreateAppointment_MapsConflict(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrConflict
		},
	})

	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	_, err := srv.CreateAppointment(context.Background(), &CreateAppointmentRequest{
		ProfessionalID: "pro-1",
		ClientID:       "client-1",
		Title:          "t",
		StartTime:      timestamppb.New(start),
		EndTime:        timestamppb.New(start.Add(time.Hour)),
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
	if msg := status.Convert(err).Message(); msg != slotTakenMessage {
		t.Fatalf("message = %q, want %q", msg, slotTakenMessage)
	}
}

func TestCreateAppointment_MapsValidationError(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
			return domain.Appointment{}, domain.NewValidationError("title is required")
		},
	})

	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	_, err := srv.CreateAppointment(context.Background(), &CreateAppointmentRequest{
		ProfessionalID: "pro-1",
		ClientID:       "client-1",
		StartTime:      timestamppb.New(start),
		EndTime:        timestamppb.New(start.Add(time.Hour)),
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
	if msg := status.Convert(err).Message(); msg != "title is required" {
		t.Fatalf("message = %q", msg)
	}
}

func TestGetAppointment_RejectsInvalidUUID(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{})

	_, err := srv.GetAppointment(context.Background(), &GetAppointmentRequest{AppointmentID: "not-a-uuid"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestDeleteAppointment_MapsNotFound(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		deleteFn: func(ctx context.Context, id uuid.UUID) error {
			return store.ErrNotFound
		},
	})

	_, err := srv.DeleteAppointment(context.Background(), &DeleteAppointmentRequest{AppointmentID: testApptID.String()})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.NotFound)
	}
}

func TestUpdateAppointment_BuildsPatchFromPresentFields(t *testing.T) {
	var got domain.AppointmentPatch
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		updateFn: func(ctx context.Context, id uuid.UUID, patch domain.AppointmentPatch) (domain.Appointment, error) {
			got = patch
			return domain.Appointment{ID: id}, nil
		},
	})

	title := "Renamed"
	st := "confirmed"
	start := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	_, err := srv.UpdateAppointment(context.Background(), &UpdateAppointmentRequest{
		AppointmentID: testApptID.String(),
		Title:         &title,
		Status:        &st,
		StartTime:     timestamppb.New(start),
	})
	if err != nil {
		t.Fatalf("UpdateAppointment error: %v", err)
	}
	if got.Title == nil || *got.Title != title {
		t.Fatalf("title = %v", got.Title)
	}
	if got.Status == nil || *got.Status != domain.AppointmentStatusConfirmed {
		t.Fatalf("status = %v", got.Status)
	}
	if got.StartTime == nil || !got.StartTime.Equal(start) {
		t.Fatalf("start_time = %v", got.StartTime)
	}
	if got.EndTime != nil || got.Notes != nil || got.Type != nil {
		t.Fatalf("absent fields must stay nil: %+v", got)
	}
}

func TestUpdateAppointment_MapsInvalidTransition(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		updateFn: func(ctx context.Context, id uuid.UUID, patch domain.AppointmentPatch) (domain.Appointment, error) {
			return domain.Appointment{}, &domain.TransitionError{From: domain.AppointmentStatusCancelled, To: domain.AppointmentStatusConfirmed}
		},
	})

	st := "confirmed"
	_, err := srv.UpdateAppointment(context.Background(), &UpdateAppointmentRequest{AppointmentID: testApptID.String(), Status: &st})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
}

func TestListAppointments_PassesFilter(t *testing.T) {
	var got store.AppointmentFilter
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		listFn: func(ctx context.Context, filter store.AppointmentFilter) (store.AppointmentPage, error) {
			got = filter
			return store.AppointmentPage{Appointments: []domain.Appointment{{ID: testApptID}}, Total: 7}, nil
		},
	})

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	resp, err := srv.ListAppointments(context.Background(), &ListAppointmentsRequest{
		Status:         "scheduled",
		ProfessionalID: "pro-1",
		From:           timestamppb.New(from),
		Search:         "dupont",
		Limit:          10,
		Offset:         20,
	})
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if got.Status == nil || *got.Status != domain.AppointmentStatusScheduled {
		t.Fatalf("status = %v", got.Status)
	}
	if got.Type != nil || got.To != nil {
		t.Fatalf("unset filters must stay nil: %+v", got)
	}
	if got.From == nil || !got.From.Equal(from) {
		t.Fatalf("from = %v", got.From)
	}
	if got.Limit != 10 || got.Offset != 20 || got.Search != "dupont" {
		t.Fatalf("filter = %+v", got)
	}
	if resp.Total != 7 || len(resp.Appointments) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAppointmentStats_ConvertsMaps(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		statsFn: func(ctx context.Context, filter store.StatsFilter) (domain.AppointmentStats, error) {
			return domain.AppointmentStats{
				Total:    3,
				ByStatus: map[domain.AppointmentStatus]int{domain.AppointmentStatusScheduled: 2, domain.AppointmentStatusCancelled: 1},
				ByType:   map[domain.AppointmentType]int{domain.AppointmentTypeCourt: 3},
				Upcoming: 2,
			}, nil
		},
	})

	resp, err := srv.AppointmentStats(context.Background(), &AppointmentStatsRequest{ProfessionalID: "pro-1"})
	if err != nil {
		t.Fatalf("AppointmentStats error: %v", err)
	}
	if resp.Total != 3 || resp.ByStatus["scheduled"] != 2 || resp.ByType["court"] != 3 || resp.Upcoming != 2 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestCancelAppointment_RequiresIdentity(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{})

	_, err := srv.CancelAppointment(context.Background(), &AppointmentActionRequest{AppointmentID: testApptID.String()})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.Unauthenticated)
	}
}

func TestCancelAppointment_UsesCallerAndReason(t *testing.T) {
	var gotActor, gotReason string
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		transitionFn: func(ctx context.Context, action string, id uuid.UUID, actorID, reason string) (domain.Appointment, error) {
			if action != "cancel" {
				t.Fatalf("action = %q, want cancel", action)
			}
			gotActor, gotReason = actorID, reason
			return domain.Appointment{ID: id, Status: domain.AppointmentStatusCancelled}, nil
		},
	})

	ctx := WithIdentity(context.Background(), Identity{UserID: "client-1", Role: domain.PartyRoleClient})
	resp, err := srv.CancelAppointment(ctx, &AppointmentActionRequest{AppointmentID: testApptID.String(), Reason: "sick"})
	if err != nil {
		t.Fatalf("CancelAppointment error: %v", err)
	}
	if gotActor != "client-1" || gotReason != "sick" {
		t.Fatalf("actor/reason = %q/%q", gotActor, gotReason)
	}
	if resp.Appointment.Status != "cancelled" {
		t.Fatalf("status = %q", resp.Appointment.Status)
	}
}

func TestConfirmAppointment_MapsUnauthorized(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{
		transitionFn: func(ctx context.Context, action string, id uuid.UUID, actorID, reason string) (domain.Appointment, error) {
			return domain.Appointment{}, domain.ErrUnauthorized
		},
	})

	ctx := WithIdentity(context.Background(), Identity{UserID: "stranger"})
	_, err := srv.ConfirmAppointment(ctx, &AppointmentActionRequest{AppointmentID: testApptID.String()})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.PermissionDenied)
	}
}

func TestFindAvailableSlots_ConvertsSlots(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, &fakeSlotFinder{
		findFn: func(ctx context.Context, professionalID string, date time.Time, durationMinutes int) ([]domain.TimeSlot, error) {
			if professionalID != "pro-1" || durationMinutes != 60 || !date.Equal(day) {
				t.Fatalf("args = %q %s %d", professionalID, date, durationMinutes)
			}
			return []domain.TimeSlot{{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}}, nil
		},
	}, slog.Default())

	resp, err := srv.FindAvailableSlots(context.Background(), &FindAvailableSlotsRequest{
		ProfessionalID:  "pro-1",
		Date:            timestamppb.New(day),
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("FindAvailableSlots error: %v", err)
	}
	if len(resp.Slots) != 1 || !resp.Slots[0].StartTime.AsTime().Equal(day.Add(9*time.Hour)) {
		t.Fatalf("slots = %+v", resp.Slots)
	}
}

func TestFindAvailableSlots_RejectsMissingDate(t *testing.T) {
	srv := newTestAppointmentsServer(&fakeAppointmentsService{})

	_, err := srv.FindAvailableSlots(context.Background(), &FindAvailableSlotsRequest{ProfessionalID: "pro-1", DurationMinutes: 30})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestToStatus_MapsContextAndInternalErrors(t *testing.T) {
	log := slog.Default()
	if got := status.Code(toStatus(log, "op", context.DeadlineExceeded, "x")); got != codes.DeadlineExceeded {
		t.Fatalf("deadline code = %s", got)
	}
	err := toStatus(log, "op", errors.New("connection reset by peer"), "x")
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.Internal)
	}
	if msg := status.Convert(err).Message(); msg != "internal error" {
		t.Fatalf("internal message leaked: %q", msg)
	}
}
