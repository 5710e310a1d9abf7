package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// MakeTx is a function that creates a db transaction
type MakeTx = func(ctx context.Context) (tx *Queries, discard, commit func() error, err error)

func NewMakeTx(database *sqlx.DB, table string) MakeTx {
	qry := New(database, table)
	return func(ctx context.Context) (tx *Queries, discard, commit func() error, err error) {
		sqltx, err := database.BeginTxx(ctx, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		txqry := qry.WithTx(sqltx)
		return txqry,
			func() error {
				return sqltx.Rollback()
			},
			func() error {
				return sqltx.Commit()
			},
			nil
	}
}
