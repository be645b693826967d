package domain

import (
	"strings"
	"time"
)

// AppointmentPatch is a partial update. A nil field leaves the current value
// untouched.
type AppointmentPatch struct {
	CaseID       *string
	Title        *string
	Description  *string
	StartTime    *time.Time
	EndTime      *time.Time
	Type         *AppointmentType
	LocationType *LocationType
	Address      *string
	Latitude     *float64
	Longitude    *float64
	MeetingURL   *string
	Status       *AppointmentStatus
	ReminderSent *bool
	Notes        *string
}

func (p AppointmentPatch) Empty() bool {
	return p.CaseID == nil &&
		p.Title == nil &&
		p.Description == nil &&
		p.StartTime == nil &&
		p.EndTime == nil &&
		p.Type == nil &&
		p.LocationType == nil &&
		p.Address == nil &&
		p.Latitude == nil &&
		p.Longitude == nil &&
		p.MeetingURL == nil &&
		p.Status == nil &&
		p.ReminderSent == nil &&
		p.Notes == nil
}

// ChangesWindow reports whether the patch touches the time window.
func (p AppointmentPatch) ChangesWindow() bool {
	return p.StartTime != nil || p.EndTime != nil
}

// Apply merges p onto a and returns the result. Parties and audit fields are
// never touched. The merged appointment is validated as a whole.
func (p AppointmentPatch) Apply(a Appointment) (Appointment, error) {
	if p.Empty() {
		return Appointment{}, NoFieldsError()
	}

	out := a
	if p.CaseID != nil {
		caseID := strings.TrimSpace(*p.CaseID)
		if caseID == "" {
			out.CaseID = nil
		} else {
			out.CaseID = &caseID
		}
	}
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.StartTime != nil {
		out.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		out.EndTime = p.EndTime.UTC()
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.LocationType != nil {
		out.LocationType = *p.LocationType
	}
	if p.Address != nil {
		out.Address = strings.TrimSpace(*p.Address)
	}
	if p.Latitude != nil {
		lat := *p.Latitude
		out.Latitude = &lat
	}
	if p.Longitude != nil {
		lng := *p.Longitude
		out.Longitude = &lng
	}
	if p.MeetingURL != nil {
		out.MeetingURL = strings.TrimSpace(*p.MeetingURL)
	}
	if p.ReminderSent != nil {
		out.ReminderSent = *p.ReminderSent
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.Status != nil {
		if err := a.Status.Transition(*p.Status); err != nil {
			return Appointment{}, err
		}
		out.Status = *p.Status
	}
	if p.ChangesWindow() && a.Status.Terminal() {
		return Appointment{}, &TransitionError{From: a.Status, To: out.Status}
	}

	if err := out.Validate(); err != nil {
		return Appointment{}, err
	}
	return out, nil
}

// Validate checks the invariants every stored appointment must hold. Field
// formats such as meeting_url are checked by the service validator.
func (a Appointment) Validate() error {
	if strings.TrimSpace(a.ProfessionalID) == "" {
		return NewValidationError("professional_id is required")
	}
	if strings.TrimSpace(a.ClientID) == "" {
		return NewValidationError("client_id is required")
	}
	if a.ProfessionalID == a.ClientID {
		return NewValidationError("professional_id and client_id must differ")
	}
	if !a.EndTime.After(a.StartTime) {
		return NewValidationError("end_time must be after start_time")
	}
	if !a.Type.Valid() {
		return NewValidationError("invalid appointment_type")
	}
	if !a.LocationType.Valid() {
		return NewValidationError("invalid location_type")
	}
	if !a.Status.Valid() {
		return NewValidationError("invalid status")
	}
	if a.Latitude != nil && (*a.Latitude < -90 || *a.Latitude > 90) {
		return NewValidationError("latitude out of range")
	}
	if a.Longitude != nil && (*a.Longitude < -180 || *a.Longitude > 180) {
		return NewValidationError("longitude out of range")
	}
	return nil
}
