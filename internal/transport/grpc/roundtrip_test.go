package grpc

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/timestamppb"

	"parley/backend/internal/service/appointments"
	"parley/backend/internal/service/negotiation"
	"parley/backend/internal/service/slots"
	"parley/backend/internal/store/memory"
)

type harness struct {
	conn *grpc.ClientConn
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := slog.Default()
	st := memory.New()

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		UnaryServerRequestIDInterceptor(),
		UnaryServerIdentityInterceptor("", log),
		UnaryServerRateLimitInterceptor(NewPeerLimiter(1000, 1000), log),
		UnaryServerTimeoutInterceptor(5*time.Second),
	))
	RegisterAppointmentsServiceServer(srv, NewAppointmentsServer(
		appointments.NewService(st, appointments.WithLogger(log)),
		slots.NewService(st, slots.DefaultConfig()),
		log,
	))
	RegisterNegotiationServiceServer(srv, NewNegotiationServer(negotiation.NewService(st, negotiation.WithLogger(log)), log))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{conn: conn}
}

func (h *harness) call(ctx context.Context, userID, role, service, method string, req, resp any) error {
	if userID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, UserIDMetadataKey, userID, UserRoleMetadataKey, role)
	}
	return h.conn.Invoke(ctx, FullMethod(service, method), req, resp, grpc.CallContentSubtype(CodecName))
}

func TestRoundTrip_NegotiateNewAppointment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Date(2030, 6, 3, 10, 0, 0, 0, time.UTC)

	var created SuggestionResponse
	require.NoError(t, h.call(ctx, "client-1", "client", NegotiationServiceName, "CreateSuggestion", &CreateSuggestionRequest{
		SuggestedTo: "pro-1",
		StartTime:   timestamppb.New(start),
		EndTime:     timestamppb.New(start.Add(time.Hour)),
		Notes:       "first meeting",
	}, &created))
	require.NotNil(t, created.Suggestion)
	assert.Equal(t, "pending", created.Suggestion.Status)
	assert.Equal(t, "pro-1", created.Suggestion.ProfessionalID)

	// Only the addressee may answer.
	err := h.call(ctx, "client-1", "client", NegotiationServiceName, "AcceptSuggestion", &AcceptSuggestionRequest{SuggestionID: created.Suggestion.ID}, &AcceptSuggestionResponse{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	var accepted AcceptSuggestionResponse
	require.NoError(t, h.call(ctx, "pro-1", "professional", NegotiationServiceName, "AcceptSuggestion", &AcceptSuggestionRequest{SuggestionID: created.Suggestion.ID}, &accepted))
	require.NotNil(t, accepted.Appointment)
	assert.Equal(t, "accepted", accepted.Suggestion.Status)
	assert.Equal(t, accepted.Appointment.ID, accepted.Suggestion.AppointmentID)
	assert.True(t, accepted.Appointment.StartTime.AsTime().Equal(start))
	assert.Equal(t, "Consultation", accepted.Appointment.Title)

	var got AppointmentResponse
	require.NoError(t, h.call(ctx, "", "", AppointmentsServiceName, "GetAppointment", &GetAppointmentRequest{AppointmentID: accepted.Appointment.ID}, &got))
	assert.Equal(t, "scheduled", got.Appointment.Status)

	var slotsResp FindAvailableSlotsResponse
	require.NoError(t, h.call(ctx, "", "", AppointmentsServiceName, "FindAvailableSlots", &FindAvailableSlotsRequest{
		ProfessionalID:  "pro-1",
		Date:            timestamppb.New(time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)),
		DurationMinutes: 60,
	}, &slotsResp))
	for _, s := range slotsResp.Slots {
		overlaps := s.StartTime.AsTime().Before(start.Add(time.Hour)) && start.Before(s.EndTime.AsTime())
		assert.False(t, overlaps, "slot %s overlaps the booked hour", s.StartTime.AsTime())
	}
}

func TestRoundTrip_SlotTakenAndUnauthenticated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Date(2030, 6, 4, 9, 0, 0, 0, time.UTC)

	create := &CreateAppointmentRequest{
		ProfessionalID: "pro-1",
		ClientID:       "client-1",
		Title:          "Filing review",
		StartTime:      timestamppb.New(start),
		EndTime:        timestamppb.New(start.Add(time.Hour)),
	}
	var first AppointmentResponse
	require.NoError(t, h.call(ctx, "", "", AppointmentsServiceName, "CreateAppointment", create, &first))

	create.ClientID = "client-2"
	create.StartTime = timestamppb.New(start.Add(30 * time.Minute))
	create.EndTime = timestamppb.New(start.Add(90 * time.Minute))
	err := h.call(ctx, "", "", AppointmentsServiceName, "CreateAppointment", create, &AppointmentResponse{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, slotTakenMessage, status.Convert(err).Message())

	err = h.call(ctx, "", "", AppointmentsServiceName, "CancelAppointment", &AppointmentActionRequest{AppointmentID: first.Appointment.ID}, &AppointmentResponse{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	var cancelled AppointmentResponse
	require.NoError(t, h.call(ctx, "client-1", "client", AppointmentsServiceName, "CancelAppointment", &AppointmentActionRequest{AppointmentID: first.Appointment.ID, Reason: "travel"}, &cancelled))
	assert.Equal(t, "cancelled", cancelled.Appointment.Status)
	assert.Contains(t, cancelled.Appointment.Notes, "Cancellation reason: travel")
}

func TestRoundTrip_RequestIDEchoedAndHealth(t *testing.T) {
	h := newHarness(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDMetadataKey, "trace-me")

	var header metadata.MD
	var list ListAppointmentsResponse
	err := h.conn.Invoke(ctx, FullMethod(AppointmentsServiceName, "ListAppointments"), &ListAppointmentsRequest{}, &list,
		grpc.CallContentSubtype(CodecName), grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"trace-me"}, header.Get(RequestIDMetadataKey))
	assert.Zero(t, list.Total)

	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
