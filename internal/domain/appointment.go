package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentType string

const (
	AppointmentTypeConsultation  AppointmentType = "consultation"
	AppointmentTypeCourt         AppointmentType = "court"
	AppointmentTypeClientMeeting AppointmentType = "client-meeting"
	AppointmentTypeExpertise     AppointmentType = "expertise"
	AppointmentTypeMediation     AppointmentType = "mediation"
	AppointmentTypeSignature     AppointmentType = "signature"
	AppointmentTypePhone         AppointmentType = "phone"
	AppointmentTypeVideo         AppointmentType = "video"
	AppointmentTypeOther         AppointmentType = "other"
)

var AppointmentTypes = []AppointmentType{
	AppointmentTypeConsultation,
	AppointmentTypeCourt,
	AppointmentTypeClientMeeting,
	AppointmentTypeExpertise,
	AppointmentTypeMediation,
	AppointmentTypeSignature,
	AppointmentTypePhone,
	AppointmentTypeVideo,
	AppointmentTypeOther,
}

func (t AppointmentType) Valid() bool {
	for _, v := range AppointmentTypes {
		if v == t {
			return true
		}
	}
	return false
}

type LocationType string

const (
	LocationTypeOffice         LocationType = "office"
	LocationTypeCourt          LocationType = "court"
	LocationTypeClientLocation LocationType = "client-location"
	LocationTypeOnline         LocationType = "online"
	LocationTypeOther          LocationType = "other"
)

func (t LocationType) Valid() bool {
	switch t {
	case LocationTypeOffice, LocationTypeCourt, LocationTypeClientLocation, LocationTypeOnline, LocationTypeOther:
		return true
	}
	return false
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID             uuid.UUID         `bun:"id,pk,type:uuid"`
	ProfessionalID string            `bun:"professional_id,notnull"`
	ClientID       string            `bun:"client_id,notnull"`
	CaseID         *string           `bun:"case_id"`
	Title          string            `bun:"title,notnull"`
	Description    string            `bun:"description"`
	StartTime      time.Time         `bun:"start_time,notnull"`
	EndTime        time.Time         `bun:"end_time,notnull"`
	Type           AppointmentType   `bun:"appointment_type,notnull"`
	LocationType   LocationType      `bun:"location_type,notnull"`
	Address        string            `bun:"address"`
	Latitude       *float64          `bun:"latitude"`
	Longitude      *float64          `bun:"longitude"`
	MeetingURL     string            `bun:"meeting_url"`
	Status         AppointmentStatus `bun:"status,notnull"`
	ReminderSent   bool              `bun:"reminder_sent,notnull"`
	Notes          string            `bun:"notes"`
	CreatedAt      time.Time         `bun:"created_at,notnull"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Counterparty returns the other party of the appointment, or "" when userID
// is not a party.
func (a Appointment) Counterparty(userID string) string {
	switch userID {
	case a.ProfessionalID:
		return a.ClientID
	case a.ClientID:
		return a.ProfessionalID
	}
	return ""
}

func (a Appointment) HasParty(userID string) bool {
	return userID != "" && (userID == a.ProfessionalID || userID == a.ClientID)
}

// Reschedule moves the appointment to a new window and puts it back into the
// scheduled state, awaiting confirmation.
func (a Appointment) Reschedule(start, end time.Time) (Appointment, error) {
	if a.Status.Terminal() {
		return Appointment{}, &TransitionError{From: a.Status, To: AppointmentStatusScheduled}
	}
	if !end.After(start) {
		return Appointment{}, NewValidationError("end_time must be after start_time")
	}
	a.StartTime = start.UTC()
	a.EndTime = end.UTC()
	a.Status = AppointmentStatusScheduled
	return a, nil
}

type TimeSlot struct {
	Start time.Time
	End   time.Time
}

type AppointmentStats struct {
	Total     int
	ByStatus  map[AppointmentStatus]int
	ByType    map[AppointmentType]int
	Upcoming  int
	Today     int
	ThisWeek  int
	ThisMonth int
}
