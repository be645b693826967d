// Package memory is an in-process implementation of store.Store. Transactions
// are serialised by a single lock and work on a copy of the data that is only
// published on commit, so a failing transaction leaves no trace.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"parley/backend/internal/availability"
	"parley/backend/internal/domain"
	"parley/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]domain.Appointment
	suggestions  map[uuid.UUID]domain.Suggestion
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the clock used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		appointments: make(map[uuid.UUID]domain.Appointment),
		suggestions:  make(map[uuid.UUID]domain.Suggestion),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &calendarTx{
		now:          s.now,
		appointments: maps.Clone(s.appointments),
		suggestions:  maps.Clone(s.suggestions),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.appointments = tx.appointments
	s.suggestions = tx.suggestions
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAppointments(ctx context.Context, f store.AppointmentFilter) (store.AppointmentPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Appointment
	for _, a := range s.appointments {
		if matchesFilter(a, f) {
			matched = append(matched, a)
		}
	}
	slices.SortFunc(matched, func(a, b domain.Appointment) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	total := len(matched)
	offset := min(max(f.Offset, 0), total)
	end := min(offset+store.NormalizeLimit(f.Limit), total)
	return store.AppointmentPage{Appointments: matched[offset:end], Total: total}, nil
}

func matchesFilter(a domain.Appointment, f store.AppointmentFilter) bool {
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	if f.ProfessionalID != "" && a.ProfessionalID != f.ProfessionalID {
		return false
	}
	if f.ClientID != "" && a.ClientID != f.ClientID {
		return false
	}
	if f.CaseID != "" && (a.CaseID == nil || *a.CaseID != f.CaseID) {
		return false
	}
	if f.From != nil && a.StartTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.StartTime.Before(*f.To) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		if !strings.Contains(strings.ToLower(a.Title), term) &&
			!strings.Contains(strings.ToLower(a.Description), term) &&
			!strings.Contains(strings.ToLower(a.Address), term) {
			return false
		}
	}
	return true
}

func (s *Store) AppointmentStats(ctx context.Context, f store.StatsFilter, b store.StatsBuckets) (domain.AppointmentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.AppointmentStats{
		ByStatus: make(map[domain.AppointmentStatus]int),
		ByType:   make(map[domain.AppointmentType]int),
	}
	within := func(t, from, to time.Time) bool {
		return !t.Before(from) && t.Before(to)
	}
	for _, a := range s.appointments {
		if f.ProfessionalID != "" && a.ProfessionalID != f.ProfessionalID {
			continue
		}
		if f.ClientID != "" && a.ClientID != f.ClientID {
			continue
		}
		out.Total++
		out.ByStatus[a.Status]++
		out.ByType[a.Type]++
		if a.Status.Active() && !a.StartTime.Before(b.Now) {
			out.Upcoming++
		}
		if within(a.StartTime, b.DayStart, b.DayEnd) {
			out.Today++
		}
		if within(a.StartTime, b.WeekStart, b.WeekEnd) {
			out.ThisWeek++
		}
		if within(a.StartTime, b.MonthStart, b.MonthEnd) {
			out.ThisMonth++
		}
	}
	return out, nil
}

func (s *Store) ListBusy(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBusy(s.appointments, professionalID, windowStart, windowEnd, uuid.Nil), nil
}

func listBusy(appts map[uuid.UUID]domain.Appointment, professionalID string, windowStart, windowEnd time.Time, exclude uuid.UUID) []domain.Appointment {
	var out []domain.Appointment
	window := availability.Interval{Start: windowStart, End: windowEnd}
	for _, a := range appts {
		if a.ID == exclude || a.ProfessionalID != professionalID || !a.Status.Active() {
			continue
		}
		if window.Overlaps(a.StartTime, a.EndTime) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Appointment) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return out
}

func (s *Store) GetSuggestion(ctx context.Context, id uuid.UUID) (domain.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sg, ok := s.suggestions[id]
	if !ok {
		return domain.Suggestion{}, store.ErrNotFound
	}
	return sg, nil
}

func (s *Store) ListSuggestions(ctx context.Context, f store.SuggestionFilter) ([]domain.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Suggestion
	for _, sg := range s.suggestions {
		if f.UserID != "" && sg.SuggestedBy != f.UserID && sg.SuggestedTo != f.UserID {
			continue
		}
		if f.Status != nil && sg.Status != *f.Status {
			continue
		}
		if f.AppointmentID != nil && (sg.AppointmentID == nil || *sg.AppointmentID != *f.AppointmentID) {
			continue
		}
		out = append(out, sg)
	}
	slices.SortFunc(out, func(a, b domain.Suggestion) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID.String(), a.ID.String())
	})
	if limit := store.NormalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
