// Package slots answers "when is this professional free?" for a single day.
// It only reads the calendar.
package slots

import (
	"context"
	"strings"
	"time"

	"parley/backend/internal/availability"
	"parley/backend/internal/domain"
)

type Config struct {
	// WorkStart and WorkEnd are offsets from local midnight.
	WorkStart time.Duration
	WorkEnd   time.Duration
	Step      time.Duration
	Location  *time.Location
}

func DefaultConfig() Config {
	return Config{
		WorkStart: 9 * time.Hour,
		WorkEnd:   18 * time.Hour,
		Step:      30 * time.Minute,
		Location:  time.UTC,
	}
}

type busyLister interface {
	ListBusy(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

type Service struct {
	calendar busyLister
	cfg      Config
}

func NewService(calendar busyLister, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.WorkEnd <= cfg.WorkStart {
		cfg.WorkStart, cfg.WorkEnd = def.WorkStart, def.WorkEnd
	}
	if cfg.Step <= 0 {
		cfg.Step = def.Step
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &Service{calendar: calendar, cfg: cfg}
}

// FindAvailableSlots returns, in chronological order, every window of
// durationMinutes that starts on the step grid inside the working hours of
// date and does not overlap a scheduled or confirmed appointment.
func (s *Service) FindAvailableSlots(ctx context.Context, professionalID string, date time.Time, durationMinutes int) ([]domain.TimeSlot, error) {
	professionalID = strings.TrimSpace(professionalID)
	if professionalID == "" {
		return nil, domain.NewValidationError("professional_id is required")
	}
	if date.IsZero() {
		return nil, domain.NewValidationError("date is required")
	}
	if durationMinutes <= 0 {
		return nil, domain.NewValidationError("duration_minutes must be positive")
	}
	if durationMinutes > int((s.cfg.WorkEnd-s.cfg.WorkStart)/time.Minute) {
		return nil, domain.NewValidationError("duration_minutes exceeds working hours")
	}
	duration := time.Duration(durationMinutes) * time.Minute

	windowStart, windowEnd := availability.WorkingWindow(date, s.cfg.Location, s.cfg.WorkStart, s.cfg.WorkEnd)
	appts, err := s.calendar.ListBusy(ctx, professionalID, windowStart.UTC(), windowEnd.UTC())
	if err != nil {
		return nil, err
	}

	busy := make([]availability.Interval, 0, len(appts))
	for _, a := range appts {
		busy = append(busy, availability.Interval{Start: a.StartTime, End: a.EndTime})
	}

	free := availability.AvailableSlots(windowStart, windowEnd, duration, s.cfg.Step, busy)
	out := make([]domain.TimeSlot, 0, len(free))
	for _, f := range free {
		out = append(out, domain.TimeSlot{Start: f.Start.UTC(), End: f.End.UTC()})
	}
	return out, nil
}
