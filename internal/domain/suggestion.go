package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PartyRole string

const (
	PartyRoleProfessional PartyRole = "professional"
	PartyRoleClient       PartyRole = "client"
)

func (r PartyRole) Valid() bool {
	return r == PartyRoleProfessional || r == PartyRoleClient
}

// Suggestion is a proposed window waiting for the counterparty's answer.
// AppointmentID is nil when the suggestion proposes a new appointment.
type Suggestion struct {
	bun.BaseModel `bun:"table:appointment_suggestions"`

	ID                 uuid.UUID        `bun:"id,pk,type:uuid"`
	AppointmentID      *uuid.UUID       `bun:"appointment_id,type:uuid"`
	ParentID           *uuid.UUID       `bun:"parent_id,type:uuid"`
	SuggestedBy        string           `bun:"suggested_by,notnull"`
	SuggestedTo        string           `bun:"suggested_to,notnull"`
	ProfessionalID     string           `bun:"professional_id,notnull"`
	ClientID           string           `bun:"client_id,notnull"`
	SuggestedStartTime time.Time        `bun:"suggested_start_time,notnull"`
	SuggestedEndTime   time.Time        `bun:"suggested_end_time,notnull"`
	Status             SuggestionStatus `bun:"status,notnull"`
	Notes              string           `bun:"notes"`
	CreatedAt          time.Time        `bun:"created_at,notnull"`
	RespondedAt        *time.Time       `bun:"responded_at"`
}

func (s *Suggestion) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if s.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		s.ID = id
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Respond closes a pending suggestion with the given terminal status.
func (s Suggestion) Respond(status SuggestionStatus, at time.Time) (Suggestion, error) {
	if s.Status.Terminal() {
		return Suggestion{}, &TransitionError{From: s.Status, To: status}
	}
	if !status.Terminal() {
		return Suggestion{}, &TransitionError{From: s.Status, To: status}
	}
	respondedAt := at.UTC()
	s.Status = status
	s.RespondedAt = &respondedAt
	return s, nil
}

// Counter builds the pending suggestion that supersedes s: same appointment,
// roles reversed, new window.
func (s Suggestion) Counter(start, end time.Time, notes string) Suggestion {
	parent := s.ID
	return Suggestion{
		AppointmentID:      s.AppointmentID,
		ParentID:           &parent,
		SuggestedBy:        s.SuggestedTo,
		SuggestedTo:        s.SuggestedBy,
		ProfessionalID:     s.ProfessionalID,
		ClientID:           s.ClientID,
		SuggestedStartTime: start.UTC(),
		SuggestedEndTime:   end.UTC(),
		Status:             SuggestionStatusPending,
		Notes:              notes,
	}
}

// NewAppointment materialises an accepted suggestion that did not reference
// an existing appointment.
func (s Suggestion) NewAppointment(title string) Appointment {
	return Appointment{
		ProfessionalID: s.ProfessionalID,
		ClientID:       s.ClientID,
		Title:          title,
		StartTime:      s.SuggestedStartTime,
		EndTime:        s.SuggestedEndTime,
		Type:           AppointmentTypeConsultation,
		LocationType:   LocationTypeOffice,
		Status:         AppointmentStatusScheduled,
		Notes:          s.Notes,
	}
}
