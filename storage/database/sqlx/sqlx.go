// Package sqlxrepos implements the core repositories over PostgreSQL with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
)

// psql builds postgres queries ($1, $2... placeholders).
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint violation, on constraint when given.
func isUniqueViolation(err error, constraint ...string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != uniqueViolation {
		return false
	}
	return len(constraint) == 0 || pqErr.Constraint == constraint[0]
}

// trapNoRowsErr maps "no rows" errors to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func get(ctx context.Context, q sqlx.QueryerContext, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

func selectAll(ctx context.Context, q sqlx.QueryerContext, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

func exec(ctx context.Context, e sqlx.ExecerContext, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// withTx runs fn in a transaction, committed when fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func orderBy(b sq.SelectBuilder, table string, ordering []core.DBOrdering, fallback ...string) sq.SelectBuilder {
	if clauses := core.OrderByClauses(table, ordering); len(clauses) > 0 {
		return b.OrderBy(clauses...)
	}
	return b.OrderBy(fallback...)
}

// dayRange restricts col to the days of dr.
func dayRange(b sq.SelectBuilder, col string, dr core.DateRange) sq.SelectBuilder {
	if !dr.From.IsZero() {
		b = b.Where(sq.GtOrEq{col: dr.From})
	}
	if !dr.To.IsZero() {
		b = b.Where(sq.LtOrEq{col: dr.To})
	}
	return b
}
