package grpc

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"parley/backend/internal/domain"
	"parley/backend/internal/service/negotiation"
	"parley/backend/internal/store"
)

const suggestionNotFound = "suggestion not found"

type NegotiationServer struct {
	svc negotiationService
	log *slog.Logger
}

type negotiationService interface {
	CreateSuggestion(ctx context.Context, in negotiation.CreateSuggestionInput) (domain.Suggestion, error)
	AcceptSuggestion(ctx context.Context, id uuid.UUID, actorID string) (negotiation.AcceptResult, error)
	RejectSuggestion(ctx context.Context, id uuid.UUID, actorID, reason string) (domain.Suggestion, error)
	CounterSuggestion(ctx context.Context, in negotiation.CounterInput) (domain.Suggestion, error)
	GetSuggestion(ctx context.Context, id uuid.UUID) (domain.Suggestion, error)
	ListSuggestions(ctx context.Context, filter store.SuggestionFilter) ([]domain.Suggestion, error)
}

func NewNegotiationServer(svc negotiationService, log *slog.Logger) *NegotiationServer {
	if log == nil {
		log = slog.Default()
	}
	return &NegotiationServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.negotiation")),
	}
}

func (s *NegotiationServer) CreateSuggestion(ctx context.Context, req *CreateSuggestionRequest) (*SuggestionResponse, error) {
	log := rpcLogger(ctx, s.log, "CreateSuggestion")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	caller, err := requireIdentity(ctx, log)
	if err != nil {
		return nil, err
	}
	if req.StartTime == nil || req.EndTime == nil {
		return nil, invalidArgument(log, "missing_times", "start_time and end_time are required", slog.String("user_id", caller.UserID))
	}

	in := negotiation.CreateSuggestionInput{
		SuggestedBy:  caller.UserID,
		SuggestedTo:  req.SuggestedTo,
		ProposerRole: caller.Role,
		StartTime:    req.StartTime.AsTime(),
		EndTime:      req.EndTime.AsTime(),
		Notes:        req.Notes,
	}
	if req.AppointmentID != "" {
		id, err := parseUUID(log, "appointment_id", req.AppointmentID)
		if err != nil {
			return nil, err
		}
		in.AppointmentID = &id
	}

	sg, err := s.svc.CreateSuggestion(ctx, in)
	if err != nil {
		return nil, toStatus(log, "suggestion create", err, appointmentNotFound,
			slog.String("user_id", caller.UserID),
			slog.String("suggested_to", req.SuggestedTo),
		)
	}

	log.Info(
		"suggestion created",
		slog.String("suggestion_id", sg.ID.String()),
		slog.String("suggested_by", sg.SuggestedBy),
		slog.String("suggested_to", sg.SuggestedTo),
		slog.Time("start_time", sg.SuggestedStartTime),
		slog.Time("end_time", sg.SuggestedEndTime),
	)
	return &SuggestionResponse{Suggestion: toSuggestion(sg)}, nil
}

func (s *NegotiationServer) AcceptSuggestion(ctx context.Context, req *AcceptSuggestionRequest) (*AcceptSuggestionResponse, error) {
	log := rpcLogger(ctx, s.log, "AcceptSuggestion")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	caller, err := requireIdentity(ctx, log)
	if err != nil {
		return nil, err
	}
	id, err := parseUUID(log, "suggestion_id", req.SuggestionID)
	if err != nil {
		return nil, err
	}

	res, err := s.svc.AcceptSuggestion(ctx, id, caller.UserID)
	if err != nil {
		return nil, toStatus(log, "suggestion accept", err, suggestionNotFound,
			slog.String("suggestion_id", id.String()),
			slog.String("user_id", caller.UserID),
		)
	}

	log.Info(
		"suggestion accepted",
		slog.String("suggestion_id", id.String()),
		slog.String("appointment_id", res.Appointment.ID.String()),
		slog.String("user_id", caller.UserID),
	)
	return &AcceptSuggestionResponse{
		Suggestion:  toSuggestion(res.Suggestion),
		Appointment: toAppointment(res.Appointment),
	}, nil
}

func (s *NegotiationServer) RejectSuggestion(ctx context.Context, req *RejectSuggestionRequest) (*SuggestionResponse, error) {
	log := rpcLogger(ctx, s.log, "RejectSuggestion")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	caller, err := requireIdentity(ctx, log)
	if err != nil {
		return nil, err
	}
	id, err := parseUUID(log, "suggestion_id", req.SuggestionID)
	if err != nil {
		return nil, err
	}

	sg, err := s.svc.RejectSuggestion(ctx, id, caller.UserID, req.Reason)
	if err != nil {
		return nil, toStatus(log, "suggestion reject", err, suggestionNotFound,
			slog.String("suggestion_id", id.String()),
			slog.String("user_id", caller.UserID),
		)
	}

	log.Info("suggestion rejected", slog.String("suggestion_id", id.String()), slog.String("user_id", caller.UserID))
	return &SuggestionResponse{Suggestion: toSuggestion(sg)}, nil
}

func (s *NegotiationServer) CounterSuggestion(ctx context.Context, req *CounterSuggestionRequest) (*SuggestionResponse, error) {
	log := rpcLogger(ctx, s.log, "CounterSuggestion")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	caller, err := requireIdentity(ctx, log)
	if err != nil {
		return nil, err
	}
	id, err := parseUUID(log, "suggestion_id", req.SuggestionID)
	if err != nil {
		return nil, err
	}
	if req.StartTime == nil || req.EndTime == nil {
		return nil, invalidArgument(log, "missing_times", "start_time and end_time are required", slog.String("suggestion_id", id.String()))
	}

	sg, err := s.svc.CounterSuggestion(ctx, negotiation.CounterInput{
		SuggestionID: id,
		ActorID:      caller.UserID,
		StartTime:    req.StartTime.AsTime(),
		EndTime:      req.EndTime.AsTime(),
		Notes:        req.Notes,
	})
	if err != nil {
		return nil, toStatus(log, "suggestion counter", err, suggestionNotFound,
			slog.String("suggestion_id", id.String()),
			slog.String("user_id", caller.UserID),
		)
	}

	log.Info(
		"suggestion countered",
		slog.String("suggestion_id", id.String()),
		slog.String("counter_id", sg.ID.String()),
		slog.String("user_id", caller.UserID),
	)
	return &SuggestionResponse{Suggestion: toSuggestion(sg)}, nil
}

func (s *NegotiationServer) GetSuggestion(ctx context.Context, req *GetSuggestionRequest) (*SuggestionResponse, error) {
	log := rpcLogger(ctx, s.log, "GetSuggestion")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	id, err := parseUUID(log, "suggestion_id", req.SuggestionID)
	if err != nil {
		return nil, err
	}

	sg, err := s.svc.GetSuggestion(ctx, id)
	if err != nil {
		return nil, toStatus(log, "suggestion get", err, suggestionNotFound, slog.String("suggestion_id", id.String()))
	}
	return &SuggestionResponse{Suggestion: toSuggestion(sg)}, nil
}

func (s *NegotiationServer) ListSuggestions(ctx context.Context, req *ListSuggestionsRequest) (*ListSuggestionsResponse, error) {
	log := rpcLogger(ctx, s.log, "ListSuggestions")

	if req == nil {
		return nil, invalidArgument(log, "nil_request", "request is required")
	}
	caller, err := requireIdentity(ctx, log)
	if err != nil {
		return nil, err
	}

	filter := store.SuggestionFilter{UserID: caller.UserID, Limit: int(req.Limit)}
	if req.Status != "" {
		v := domain.SuggestionStatus(req.Status)
		filter.Status = &v
	}
	if req.AppointmentID != "" {
		id, err := parseUUID(log, "appointment_id", req.AppointmentID)
		if err != nil {
			return nil, err
		}
		filter.AppointmentID = &id
	}

	out, err := s.svc.ListSuggestions(ctx, filter)
	if err != nil {
		return nil, toStatus(log, "suggestions list", err, suggestionNotFound, slog.String("user_id", caller.UserID))
	}

	log.Debug("suggestions listed", slog.String("user_id", caller.UserID), slog.Int("count", len(out)))
	return &ListSuggestionsResponse{Suggestions: toSuggestions(out)}, nil
}
