package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"parley/backend/internal/domain"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// AppointmentFilter constrains ListAppointments. Nil or empty fields do not
// constrain the result.
type AppointmentFilter struct {
	Status         *domain.AppointmentStatus
	Type           *domain.AppointmentType
	ProfessionalID string
	ClientID       string
	CaseID         string
	From           *time.Time
	To             *time.Time
	Search         string
	Limit          int
	Offset         int
}

type AppointmentPage struct {
	Appointments []domain.Appointment
	Total        int
}

type StatsFilter struct {
	ProfessionalID string
	ClientID       string
}

// StatsBuckets are the boundaries of the time-bucket counters. All windows are
// half-open.
type StatsBuckets struct {
	Now        time.Time
	DayStart   time.Time
	DayEnd     time.Time
	WeekStart  time.Time
	WeekEnd    time.Time
	MonthStart time.Time
	MonthEnd   time.Time
}

type SuggestionFilter struct {
	UserID        string
	Status        *domain.SuggestionStatus
	AppointmentID *uuid.UUID
	Limit         int
}

// Store is the persistence boundary shared by the appointment store, the
// slot resolver and the negotiation engine.
type Store interface {
	// InTransaction runs fn in one database transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx CalendarTx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) (AppointmentPage, error)
	AppointmentStats(ctx context.Context, filter StatsFilter, buckets StatsBuckets) (domain.AppointmentStats, error)
	ListBusy(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)

	GetSuggestion(ctx context.Context, id uuid.UUID) (domain.Suggestion, error)
	ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]domain.Suggestion, error)
}

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
