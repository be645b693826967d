package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"parley/backend/internal/domain"
	"parley/backend/internal/store"
)

const overlapConstraint = "appointments_no_overlap"

// Repo implements store.Store on top of bun.
type Repo struct {
	db *bun.DB
}

var _ store.Store = (*Repo)(nil)

func NewRepo(db *bun.DB) *Repo {
	return &Repo{db: db}
}

type calendarTx struct {
	tx bun.Tx
}

func (r *Repo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, calendarTx{tx: tx})
	})
}

func (r *Repo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapNoRows(err)
	}
	return a, nil
}

func (r *Repo) ListAppointments(ctx context.Context, filter store.AppointmentFilter) (store.AppointmentPage, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	q = applyAppointmentFilter(q, filter)

	total, err := q.
		OrderExpr("start_time ASC").
		OrderExpr("id ASC").
		Limit(store.NormalizeLimit(filter.Limit)).
		Offset(max(filter.Offset, 0)).
		ScanAndCount(ctx)
	if err != nil {
		return store.AppointmentPage{}, err
	}
	return store.AppointmentPage{Appointments: rows, Total: total}, nil
}

func applyAppointmentFilter(q *bun.SelectQuery, f store.AppointmentFilter) *bun.SelectQuery {
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Type != nil {
		q = q.Where("appointment_type = ?", *f.Type)
	}
	if f.ProfessionalID != "" {
		q = q.Where("professional_id = ?", f.ProfessionalID)
	}
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.CaseID != "" {
		q = q.Where("case_id = ?", f.CaseID)
	}
	if f.From != nil {
		q = q.Where("start_time >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("start_time < ?", f.To.UTC())
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("title ILIKE ?", pattern).
				WhereOr("description ILIKE ?", pattern).
				WhereOr("address ILIKE ?", pattern)
		})
	}
	return q
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type statusCount struct {
	Key   string `bun:"key"`
	Count int    `bun:"count"`
}

type bucketCounts struct {
	Total     int `bun:"total"`
	Upcoming  int `bun:"upcoming"`
	Today     int `bun:"today"`
	ThisWeek  int `bun:"this_week"`
	ThisMonth int `bun:"this_month"`
}

func (r *Repo) AppointmentStats(ctx context.Context, filter store.StatsFilter, b store.StatsBuckets) (domain.AppointmentStats, error) {
	scope := func(q *bun.SelectQuery) *bun.SelectQuery {
		if filter.ProfessionalID != "" {
			q = q.Where("professional_id = ?", filter.ProfessionalID)
		}
		if filter.ClientID != "" {
			q = q.Where("client_id = ?", filter.ClientID)
		}
		return q
	}

	out := domain.AppointmentStats{
		ByStatus: make(map[domain.AppointmentStatus]int),
		ByType:   make(map[domain.AppointmentType]int),
	}

	var byStatus []statusCount
	err := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		ColumnExpr("status AS key").
		ColumnExpr("count(*) AS count").
		Apply(scope).
		Group("status").
		Scan(ctx, &byStatus)
	if err != nil {
		return domain.AppointmentStats{}, err
	}
	for _, c := range byStatus {
		out.ByStatus[domain.AppointmentStatus(c.Key)] = c.Count
	}

	var byType []statusCount
	err = r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		ColumnExpr("appointment_type AS key").
		ColumnExpr("count(*) AS count").
		Apply(scope).
		Group("appointment_type").
		Scan(ctx, &byType)
	if err != nil {
		return domain.AppointmentStats{}, err
	}
	for _, c := range byType {
		out.ByType[domain.AppointmentType(c.Key)] = c.Count
	}

	active := bun.In(domain.ActiveAppointmentStatuses)
	var buckets bucketCounts
	err = r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		ColumnExpr("count(*) AS total").
		ColumnExpr("count(*) FILTER (WHERE start_time >= ? AND status IN (?)) AS upcoming", b.Now, active).
		ColumnExpr("count(*) FILTER (WHERE start_time >= ? AND start_time < ?) AS today", b.DayStart, b.DayEnd).
		ColumnExpr("count(*) FILTER (WHERE start_time >= ? AND start_time < ?) AS this_week", b.WeekStart, b.WeekEnd).
		ColumnExpr("count(*) FILTER (WHERE start_time >= ? AND start_time < ?) AS this_month", b.MonthStart, b.MonthEnd).
		Apply(scope).
		Scan(ctx, &buckets)
	if err != nil {
		return domain.AppointmentStats{}, err
	}

	out.Total = buckets.Total
	out.Upcoming = buckets.Upcoming
	out.Today = buckets.Today
	out.ThisWeek = buckets.ThisWeek
	out.ThisMonth = buckets.ThisMonth
	return out, nil
}

func (r *Repo) ListBusy(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listBusy(ctx, r.db, professionalID, windowStart, windowEnd, uuid.Nil)
}

func listBusy(ctx context.Context, db bun.IDB, professionalID string, windowStart, windowEnd time.Time, exclude uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := db.NewSelect().
		Model(&rows).
		Where("professional_id = ?", professionalID).
		Where("status IN (?)", bun.In(domain.ActiveAppointmentStatuses)).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r calendarTx) LockCalendar(ctx context.Context, professionalID string) error {
	_, err := r.tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", professionalID).Exec(ctx)
	return err
}

func (r calendarTx) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.tx.NewSelect().
		Model(&a).
		Where("id = ?", id).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapNoRows(err)
	}
	return a, nil
}

func (r calendarTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (r calendarTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := r.tx.NewUpdate().
		Model(&m).
		ExcludeColumn("id", "professional_id", "client_id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	if err := requireAffected(res); err != nil {
		return domain.Appointment{}, err
	}
	return m, nil
}

func (r calendarTx) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r calendarTx) ListBusy(ctx context.Context, professionalID string, windowStart, windowEnd time.Time, exclude uuid.UUID) ([]domain.Appointment, error) {
	return listBusy(ctx, r.tx, professionalID, windowStart, windowEnd, exclude)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23P01" && pgErr.ConstraintName == overlapConstraint {
			return store.ErrConflict
		}
		if pgErr.Code == "23505" {
			return store.ErrConflict
		}
		if pgErr.Code == "23503" {
			return store.ErrNotFound
		}
	}
	return err
}
