package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	AppointmentsServiceName = "parley.v1.AppointmentsService"
	NegotiationServiceName  = "parley.v1.NegotiationService"
)

type AppointmentsServiceServer interface {
	CreateAppointment(context.Context, *CreateAppointmentRequest) (*AppointmentResponse, error)
	GetAppointment(context.Context, *GetAppointmentRequest) (*AppointmentResponse, error)
	UpdateAppointment(context.Context, *UpdateAppointmentRequest) (*AppointmentResponse, error)
	DeleteAppointment(context.Context, *DeleteAppointmentRequest) (*DeleteAppointmentResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	AppointmentStats(context.Context, *AppointmentStatsRequest) (*AppointmentStatsResponse, error)
	CancelAppointment(context.Context, *AppointmentActionRequest) (*AppointmentResponse, error)
	ConfirmAppointment(context.Context, *AppointmentActionRequest) (*AppointmentResponse, error)
	CompleteAppointment(context.Context, *AppointmentActionRequest) (*AppointmentResponse, error)
	MarkNoShow(context.Context, *AppointmentActionRequest) (*AppointmentResponse, error)
	FindAvailableSlots(context.Context, *FindAvailableSlotsRequest) (*FindAvailableSlotsResponse, error)
}

type NegotiationServiceServer interface {
	CreateSuggestion(context.Context, *CreateSuggestionRequest) (*SuggestionResponse, error)
	AcceptSuggestion(context.Context, *AcceptSuggestionRequest) (*AcceptSuggestionResponse, error)
	RejectSuggestion(context.Context, *RejectSuggestionRequest) (*SuggestionResponse, error)
	CounterSuggestion(context.Context, *CounterSuggestionRequest) (*SuggestionResponse, error)
	GetSuggestion(context.Context, *GetSuggestionRequest) (*SuggestionResponse, error)
	ListSuggestions(context.Context, *ListSuggestionsRequest) (*ListSuggestionsResponse, error)
}

func RegisterAppointmentsServiceServer(s grpc.ServiceRegistrar, srv AppointmentsServiceServer) {
	s.RegisterService(&appointmentsServiceDesc, srv)
}

func RegisterNegotiationServiceServer(s grpc.ServiceRegistrar, srv NegotiationServiceServer) {
	s.RegisterService(&negotiationServiceDesc, srv)
}

// FullMethod returns the "/service/method" path used on the wire.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

var appointmentsServiceDesc = grpc.ServiceDesc{
	ServiceName: AppointmentsServiceName,
	HandlerType: (*AppointmentsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(AppointmentsServiceName, "CreateAppointment", AppointmentsServiceServer.CreateAppointment),
		unary(AppointmentsServiceName, "GetAppointment", AppointmentsServiceServer.GetAppointment),
		unary(AppointmentsServiceName, "UpdateAppointment", AppointmentsServiceServer.UpdateAppointment),
		unary(AppointmentsServiceName, "DeleteAppointment", AppointmentsServiceServer.DeleteAppointment),
		unary(AppointmentsServiceName, "ListAppointments", AppointmentsServiceServer.ListAppointments),
		unary(AppointmentsServiceName, "AppointmentStats", AppointmentsServiceServer.AppointmentStats),
		unary(AppointmentsServiceName, "CancelAppointment", AppointmentsServiceServer.CancelAppointment),
		unary(AppointmentsServiceName, "ConfirmAppointment", AppointmentsServiceServer.ConfirmAppointment),
		unary(AppointmentsServiceName, "CompleteAppointment", AppointmentsServiceServer.CompleteAppointment),
		unary(AppointmentsServiceName, "MarkNoShow", AppointmentsServiceServer.MarkNoShow),
		unary(AppointmentsServiceName, "FindAvailableSlots", AppointmentsServiceServer.FindAvailableSlots),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parley/v1/appointments.proto",
}

var negotiationServiceDesc = grpc.ServiceDesc{
	ServiceName: NegotiationServiceName,
	HandlerType: (*NegotiationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(NegotiationServiceName, "CreateSuggestion", NegotiationServiceServer.CreateSuggestion),
		unary(NegotiationServiceName, "AcceptSuggestion", NegotiationServiceServer.AcceptSuggestion),
		unary(NegotiationServiceName, "RejectSuggestion", NegotiationServiceServer.RejectSuggestion),
		unary(NegotiationServiceName, "CounterSuggestion", NegotiationServiceServer.CounterSuggestion),
		unary(NegotiationServiceName, "GetSuggestion", NegotiationServiceServer.GetSuggestion),
		unary(NegotiationServiceName, "ListSuggestions", NegotiationServiceServer.ListSuggestions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "parley/v1/negotiation.proto",
}

// unary adapts a typed method expression to a grpc.MethodDesc, decoding the
// request and threading it through the server's interceptor chain.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := FullMethod(service, method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
