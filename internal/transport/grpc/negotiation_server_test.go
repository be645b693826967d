package grpc

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"parley/backend/internal/domain"
	"parley/backend/internal/service/negotiation"
	"parley/backend/internal/store"
)

type fakeNegotiationService struct {
	createFn  func(ctx context.Context, in negotiation.CreateSuggestionInput) (domain.Suggestion, error)
	acceptFn  func(ctx context.Context, id uuid.UUID, actorID string) (negotiation.AcceptResult, error)
	rejectFn  func(ctx context.Context, id uuid.UUID, actorID, reason string) (domain.Suggestion, error)
	counterFn func(ctx context.Context, in negotiation.CounterInput) (domain.Suggestion, error)
	getFn     func(ctx context.Context, id uuid.UUID) (domain.Suggestion, error)
	listFn    func(ctx context.Context, filter store.SuggestionFilter) ([]domain.Suggestion, error)
}

func (f *fakeNegotiationService) CreateSuggestion(ctx context.Context, in negotiation.CreateSuggestionInput) (domain.Suggestion, error) {
	if f.createFn == nil {
		panic("CreateSuggestion not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeNegotiationService) AcceptSuggestion(ctx context.Context, id uuid.UUID, actorID string) (negotiation.AcceptResult, error) {
	if f.acceptFn == nil {
		panic("AcceptSuggestion not configured")
	}
	return f.acceptFn(ctx, id, actorID)
}

func (f *fakeNegotiationService) RejectSuggestion(ctx context.Context, id uuid.UUID, actorID, reason string) (domain.Suggestion, error) {
	if f.rejectFn == nil {
		panic("RejectSuggestion not configured")
	}
	return f.rejectFn(ctx, id, actorID, reason)
}

func (f *fakeNegotiationService) CounterSuggestion(ctx context.Context, in negotiation.CounterInput) (domain.Suggestion, error) {
	if f.counterFn == nil {
		panic("CounterSuggestion not configured")
	}
	return f.counterFn(ctx, in)
}

func (f *fakeNegotiationService) GetSuggestion(ctx context.Context, id uuid.UUID) (domain.Suggestion, error) {
	if f.getFn == nil {
		panic("GetSuggestion not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeNegotiationService) ListSuggestions(ctx context.Context, filter store.SuggestionFilter) ([]domain.Suggestion, error) {
	if f.listFn == nil {
		panic("ListSuggestions not configured")
	}
	return f.listFn(ctx, filter)
}

var testSuggestionID = uuid.MustParse("00000000-0000-0000-0000-000000000020")

func asClient(ctx context.Context) context.Context {
	return WithIdentity(ctx, Identity{UserID: "client-1", Role: domain.PartyRoleClient})
}

func TestCreateSuggestion_UsesCallerAsProposer(t *testing.T) {
	var got negotiation.CreateSuggestionInput
	srv := NewNegotiationServer(&fakeNegotiationService{
		createFn: func(ctx context.Context, in negotiation.CreateSuggestionInput) (domain.Suggestion, error) {
			got = in
			return domain.Suggestion{ID: testSuggestionID, SuggestedBy: in.SuggestedBy, SuggestedTo: in.SuggestedTo}, nil
		},
	}, slog.Default())

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	resp, err := srv.CreateSuggestion(asClient(context.Background()), &CreateSuggestionRequest{
		AppointmentID: testApptID.String(),
		SuggestedTo:   "pro-1",
		StartTime:     timestamppb.New(start),
		EndTime:       timestamppb.New(start.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("CreateSuggestion error: %v", err)
	}
	if got.SuggestedBy != "client-1" || got.ProposerRole != domain.PartyRoleClient {
		t.Fatalf("proposer = %q/%q", got.SuggestedBy, got.ProposerRole)
	}
	if got.AppointmentID == nil || *got.AppointmentID != testApptID {
		t.Fatalf("appointment_id = %v", got.AppointmentID)
	}
	if resp.Suggestion.ID != testSuggestionID.String() {
		t.Fatalf("id = %q", resp.Suggestion.ID)
	}
}

func TestCreateSuggestion_RequiresIdentity(t *testing.T) {
	srv := NewNegotiationServer(&fakeNegotiationService{}, slog.Default())

	_, err := srv.CreateSuggestion(context.Background(), &CreateSuggestionRequest{SuggestedTo: "pro-1"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.Unauthenticated)
	}
}

func TestAcceptSuggestion_MapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", store.ErrNotFound, codes.NotFound},
		{"not addressee", domain.ErrUnauthorized, codes.PermissionDenied},
		{"already answered", &domain.TransitionError{From: domain.SuggestionStatusAccepted, To: domain.SuggestionStatusAccepted}, codes.FailedPrecondition},
		{"slot taken", store.ErrConflict, codes.FailedPrecondition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewNegotiationServer(&fakeNegotiationService{
				acceptFn: func(ctx context.Context, id uuid.UUID, actorID string) (negotiation.AcceptResult, error) {
					return negotiation.AcceptResult{}, tc.err
				},
			}, slog.Default())

			_, err := srv.AcceptSuggestion(asClient(context.Background()), &AcceptSuggestionRequest{SuggestionID: testSuggestionID.String()})
			if status.Code(err) != tc.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tc.want)
			}
		})
	}
}

func TestRejectSuggestion_PassesReason(t *testing.T) {
	var gotActor, gotReason string
	srv := NewNegotiationServer(&fakeNegotiationService{
		rejectFn: func(ctx context.Context, id uuid.UUID, actorID, reason string) (domain.Suggestion, error) {
			gotActor, gotReason = actorID, reason
			return domain.Suggestion{ID: id, Status: domain.SuggestionStatusRejected}, nil
		},
	}, slog.Default())

	resp, err := srv.RejectSuggestion(asClient(context.Background()), &RejectSuggestionRequest{SuggestionID: testSuggestionID.String(), Reason: "unavailable"})
	if err != nil {
		t.Fatalf("RejectSuggestion error: %v", err)
	}
	if gotActor != "client-1" || gotReason != "unavailable" {
		t.Fatalf("actor/reason = %q/%q", gotActor, gotReason)
	}
	if resp.Suggestion.Status != "rejected" {
		t.Fatalf("status = %q", resp.Suggestion.Status)
	}
}

func TestCounterSuggestion_RejectsMissingTimes(t *testing.T) {
	srv := NewNegotiationServer(&fakeNegotiationService{}, slog.Default())

	_, err := srv.CounterSuggestion(asClient(context.Background()), &CounterSuggestionRequest{SuggestionID: testSuggestionID.String()})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestListSuggestions_ScopesToCaller(t *testing.T) {
	var got store.SuggestionFilter
	srv := NewNegotiationServer(&fakeNegotiationService{
		listFn: func(ctx context.Context, filter store.SuggestionFilter) ([]domain.Suggestion, error) {
			got = filter
			return []domain.Suggestion{{ID: testSuggestionID}}, nil
		},
	}, slog.Default())

	resp, err := srv.ListSuggestions(asClient(context.Background()), &ListSuggestionsRequest{Status: "pending"})
	if err != nil {
		t.Fatalf("ListSuggestions error: %v", err)
	}
	if got.UserID != "client-1" {
		t.Fatalf("user_id = %q, want client-1", got.UserID)
	}
	if got.Status == nil || *got.Status != domain.SuggestionStatusPending {
		t.Fatalf("status = %v", got.Status)
	}
	if len(resp.Suggestions) != 1 {
		t.Fatalf("suggestions = %d, want 1", len(resp.Suggestions))
	}
}
