package store

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
)

//go:embed schema.sql
var schema string

// Migrate creates the session, order and order number tables when they do
// not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return pkgerrors.Wrap(err, "apply checkout schema")
	}
	return nil
}
