package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"parley/backend/internal/domain"
	"parley/backend/internal/store"
)

func (r *Repo) GetSuggestion(ctx context.Context, id uuid.UUID) (domain.Suggestion, error) {
	var s domain.Suggestion
	err := r.db.NewSelect().
		Model(&s).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Suggestion{}, mapNoRows(err)
	}
	return s, nil
}

func (r *Repo) ListSuggestions(ctx context.Context, filter store.SuggestionFilter) ([]domain.Suggestion, error) {
	var rows []domain.Suggestion
	q := r.db.NewSelect().Model(&rows)
	if filter.UserID != "" {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereOr("suggested_by = ?", filter.UserID).
				WhereOr("suggested_to = ?", filter.UserID)
		})
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.AppointmentID != nil {
		q = q.Where("appointment_id = ?", *filter.AppointmentID)
	}
	err := q.
		OrderExpr("created_at DESC").
		Limit(store.NormalizeLimit(filter.Limit)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r calendarTx) GetSuggestionForUpdate(ctx context.Context, id uuid.UUID) (domain.Suggestion, error) {
	var s domain.Suggestion
	err := r.tx.NewSelect().
		Model(&s).
		Where("id = ?", id).
		For("UPDATE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Suggestion{}, mapNoRows(err)
	}
	return s, nil
}

func (r calendarTx) CreateSuggestion(ctx context.Context, s domain.Suggestion) (domain.Suggestion, error) {
	m := s
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Suggestion{}, mapWriteError(err)
	}
	return m, nil
}

func (r calendarTx) TransitionSuggestion(ctx context.Context, s domain.Suggestion, from domain.SuggestionStatus) (domain.Suggestion, error) {
	m := s
	res, err := r.tx.NewUpdate().
		Model(&m).
		Column("appointment_id", "status", "notes", "responded_at").
		WherePK().
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return domain.Suggestion{}, mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Suggestion{}, err
	}
	if affected == 0 {
		return domain.Suggestion{}, store.ErrStale
	}
	return m, nil
}
