package postgres

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
)

// Directory reads display names from the users table owned by the identity
// side of the system.
type Directory struct {
	db bun.IDB
}

func NewDirectory(db bun.IDB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := d.db.NewSelect().
		TableExpr("users").
		ColumnExpr("name").
		Where("id::text = ?", userID).
		Limit(1).
		Scan(ctx, &name)
	if err != nil {
		return "", mapNoRows(err)
	}
	return strings.TrimSpace(name), nil
}
