package grpc

import (
	"google.golang.org/protobuf/types/known/timestamppb"

	"parley/backend/internal/domain"
)

type Appointment struct {
	ID              string                 `json:"id"`
	ProfessionalID  string                 `json:"professional_id"`
	ClientID        string                 `json:"client_id"`
	CaseID          string                 `json:"case_id,omitempty"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description,omitempty"`
	StartTime       *timestamppb.Timestamp `json:"start_time"`
	EndTime         *timestamppb.Timestamp `json:"end_time"`
	AppointmentType string                 `json:"appointment_type"`
	LocationType    string                 `json:"location_type"`
	Address         string                 `json:"address,omitempty"`
	Latitude        *float64               `json:"latitude,omitempty"`
	Longitude       *float64               `json:"longitude,omitempty"`
	MeetingURL      string                 `json:"meeting_url,omitempty"`
	Status          string                 `json:"status"`
	ReminderSent    bool                   `json:"reminder_sent"`
	Notes           string                 `json:"notes,omitempty"`
	CreatedAt       *timestamppb.Timestamp `json:"created_at"`
	UpdatedAt       *timestamppb.Timestamp `json:"updated_at"`
}

type Suggestion struct {
	ID                 string                 `json:"id"`
	AppointmentID      string                 `json:"appointment_id,omitempty"`
	ParentID           string                 `json:"parent_id,omitempty"`
	SuggestedBy        string                 `json:"suggested_by"`
	SuggestedTo        string                 `json:"suggested_to"`
	ProfessionalID     string                 `json:"professional_id"`
	ClientID           string                 `json:"client_id"`
	SuggestedStartTime *timestamppb.Timestamp `json:"suggested_start_time"`
	SuggestedEndTime   *timestamppb.Timestamp `json:"suggested_end_time"`
	Status             string                 `json:"status"`
	Notes              string                 `json:"notes,omitempty"`
	CreatedAt          *timestamppb.Timestamp `json:"created_at"`
	RespondedAt        *timestamppb.Timestamp `json:"responded_at,omitempty"`
}

type TimeSlot struct {
	StartTime *timestamppb.Timestamp `json:"start_time"`
	EndTime   *timestamppb.Timestamp `json:"end_time"`
}

type CreateAppointmentRequest struct {
	ProfessionalID  string                 `json:"professional_id"`
	ClientID        string                 `json:"client_id"`
	CaseID          *string                `json:"case_id,omitempty"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description,omitempty"`
	StartTime       *timestamppb.Timestamp `json:"start_time"`
	EndTime         *timestamppb.Timestamp `json:"end_time"`
	AppointmentType string                 `json:"appointment_type,omitempty"`
	LocationType    string                 `json:"location_type,omitempty"`
	Address         string                 `json:"address,omitempty"`
	Latitude        *float64               `json:"latitude,omitempty"`
	Longitude       *float64               `json:"longitude,omitempty"`
	MeetingURL      string                 `json:"meeting_url,omitempty"`
	Status          string                 `json:"status,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
}

type GetAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// UpdateAppointmentRequest carries a partial update: absent fields are left
// untouched.
type UpdateAppointmentRequest struct {
	AppointmentID   string                 `json:"appointment_id"`
	CaseID          *string                `json:"case_id,omitempty"`
	Title           *string                `json:"title,omitempty"`
	Description     *string                `json:"description,omitempty"`
	StartTime       *timestamppb.Timestamp `json:"start_time,omitempty"`
	EndTime         *timestamppb.Timestamp `json:"end_time,omitempty"`
	AppointmentType *string                `json:"appointment_type,omitempty"`
	LocationType    *string                `json:"location_type,omitempty"`
	Address         *string                `json:"address,omitempty"`
	Latitude        *float64               `json:"latitude,omitempty"`
	Longitude       *float64               `json:"longitude,omitempty"`
	MeetingURL      *string                `json:"meeting_url,omitempty"`
	Status          *string                `json:"status,omitempty"`
	ReminderSent    *bool                  `json:"reminder_sent,omitempty"`
	Notes           *string                `json:"notes,omitempty"`
}

type DeleteAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type DeleteAppointmentResponse struct{}

type ListAppointmentsRequest struct {
	Status          string                 `json:"status,omitempty"`
	AppointmentType string                 `json:"appointment_type,omitempty"`
	ProfessionalID  string                 `json:"professional_id,omitempty"`
	ClientID        string                 `json:"client_id,omitempty"`
	CaseID          string                 `json:"case_id,omitempty"`
	From            *timestamppb.Timestamp `json:"from,omitempty"`
	To              *timestamppb.Timestamp `json:"to,omitempty"`
	Search          string                 `json:"search,omitempty"`
	Limit           int32                  `json:"limit,omitempty"`
	Offset          int32                  `json:"offset,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
	Total        int32          `json:"total"`
}

type AppointmentStatsRequest struct {
	ProfessionalID string `json:"professional_id,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
}

type AppointmentStatsResponse struct {
	Total     int32            `json:"total"`
	ByStatus  map[string]int32 `json:"by_status"`
	ByType    map[string]int32 `json:"by_type"`
	Upcoming  int32            `json:"upcoming"`
	Today     int32            `json:"today"`
	ThisWeek  int32            `json:"this_week"`
	ThisMonth int32            `json:"this_month"`
}

// AppointmentActionRequest drives the cancel, confirm, complete and no-show
// actions. The acting user comes from the call's identity.
type AppointmentActionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	Appointment *Appointment `json:"appointment"`
}

type FindAvailableSlotsRequest struct {
	ProfessionalID  string                 `json:"professional_id"`
	Date            *timestamppb.Timestamp `json:"date"`
	DurationMinutes int32                  `json:"duration_minutes"`
}

type FindAvailableSlotsResponse struct {
	Slots []*TimeSlot `json:"slots"`
}

// CreateSuggestionRequest is sent by the proposer, whose id and role come
// from the call's identity.
type CreateSuggestionRequest struct {
	AppointmentID string                 `json:"appointment_id,omitempty"`
	SuggestedTo   string                 `json:"suggested_to"`
	StartTime     *timestamppb.Timestamp `json:"start_time"`
	EndTime       *timestamppb.Timestamp `json:"end_time"`
	Notes         string                 `json:"notes,omitempty"`
}

type AcceptSuggestionRequest struct {
	SuggestionID string `json:"suggestion_id"`
}

type AcceptSuggestionResponse struct {
	Suggestion  *Suggestion  `json:"suggestion"`
	Appointment *Appointment `json:"appointment"`
}

type RejectSuggestionRequest struct {
	SuggestionID string `json:"suggestion_id"`
	Reason       string `json:"reason,omitempty"`
}

type CounterSuggestionRequest struct {
	SuggestionID string                 `json:"suggestion_id"`
	StartTime    *timestamppb.Timestamp `json:"start_time"`
	EndTime      *timestamppb.Timestamp `json:"end_time"`
	Notes        string                 `json:"notes,omitempty"`
}

type GetSuggestionRequest struct {
	SuggestionID string `json:"suggestion_id"`
}

type SuggestionResponse struct {
	Suggestion *Suggestion `json:"suggestion"`
}

// ListSuggestionsRequest lists the caller's suggestions, sent or received.
type ListSuggestionsRequest struct {
	Status        string `json:"status,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Limit         int32  `json:"limit,omitempty"`
}

type ListSuggestionsResponse struct {
	Suggestions []*Suggestion `json:"suggestions"`
}

func toAppointment(a domain.Appointment) *Appointment {
	out := &Appointment{
		ID:              a.ID.String(),
		ProfessionalID:  a.ProfessionalID,
		ClientID:        a.ClientID,
		Title:           a.Title,
		Description:     a.Description,
		StartTime:       timestamppb.New(a.StartTime),
		EndTime:         timestamppb.New(a.EndTime),
		AppointmentType: string(a.Type),
		LocationType:    string(a.LocationType),
		Address:         a.Address,
		Latitude:        a.Latitude,
		Longitude:       a.Longitude,
		MeetingURL:      a.MeetingURL,
		Status:          string(a.Status),
		ReminderSent:    a.ReminderSent,
		Notes:           a.Notes,
		CreatedAt:       timestamppb.New(a.CreatedAt),
		UpdatedAt:       timestamppb.New(a.UpdatedAt),
	}
	if a.CaseID != nil {
		out.CaseID = *a.CaseID
	}
	return out
}

func toSuggestion(s domain.Suggestion) *Suggestion {
	out := &Suggestion{
		ID:                 s.ID.String(),
		SuggestedBy:        s.SuggestedBy,
		SuggestedTo:        s.SuggestedTo,
		ProfessionalID:     s.ProfessionalID,
		ClientID:           s.ClientID,
		SuggestedStartTime: timestamppb.New(s.SuggestedStartTime),
		SuggestedEndTime:   timestamppb.New(s.SuggestedEndTime),
		Status:             string(s.Status),
		Notes:              s.Notes,
		CreatedAt:          timestamppb.New(s.CreatedAt),
	}
	if s.AppointmentID != nil {
		out.AppointmentID = s.AppointmentID.String()
	}
	if s.ParentID != nil {
		out.ParentID = s.ParentID.String()
	}
	if s.RespondedAt != nil {
		out.RespondedAt = timestamppb.New(*s.RespondedAt)
	}
	return out
}

func toSuggestions(in []domain.Suggestion) []*Suggestion {
	out := make([]*Suggestion, 0, len(in))
	for _, s := range in {
		out = append(out, toSuggestion(s))
	}
	return out
}
