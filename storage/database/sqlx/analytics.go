package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/greesoft/canteen/core/analytics"
	"github.com/greesoft/canteen/core/expense"
)

type analyticsRepository struct {
	db *sqlx.DB
}

var _ analytics.Repository = (*analyticsRepository)(nil) // interface compliance check

func NewAnalyticsRepository(db *sqlx.DB) *analyticsRepository {
	return &analyticsRepository{db: db}
}

func (repo analyticsRepository) count(ctx context.Context, b sq.SelectBuilder) (int, error) {
	var cnt int
	err := get(ctx, repo.db, &cnt, b)
	return cnt, err
}

func (repo analyticsRepository) CountUsers(ctx context.Context, role string) (int, error) {
	b := psql.Select("count(*)").From("users")
	if role != "" {
		b = b.Where(sq.Eq{"role": role})
	}
	cnt, err := repo.count(ctx, b)
	return cnt, errors.Wrap(err, "counting users")
}

func (repo analyticsRepository) CountStudents(ctx context.Context, classID int) (int, error) {
	b := psql.Select("count(*)").From("students")
	if classID != 0 {
		b = b.Where(sq.Eq{"class_id": classID})
	}
	cnt, err := repo.count(ctx, b)
	return cnt, errors.Wrap(err, "counting students")
}

func (repo analyticsRepository) CountClasses(ctx context.Context) (int, error) {
	cnt, err := repo.count(ctx, psql.Select("count(*)").From("classes"))
	return cnt, errors.Wrap(err, "counting classes")
}

// TotalOwing sums positive balances only: credits are not debts.
func (repo analyticsRepository) TotalOwing(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	b := psql.Select("coalesce(sum(owing), 0)").From("students").Where(sq.Gt{"owing": 0})
	if err := get(ctx, repo.db, &total, b); err != nil {
		return decimal.Zero, errors.Wrap(err, "summing owing")
	}
	return total, nil
}

func (repo analyticsRepository) RecordStats(ctx context.Context, filter analytics.RecordFilter) (analytics.RecordStats, error) {
	b := psql.Select(
		"count(*) AS count",
		"count(*) FILTER (WHERE has_paid AND NOT is_absent) AS paid_count",
		"coalesce(sum(amount) FILTER (WHERE has_paid), 0) AS paid_amount",
		"count(*) FILTER (WHERE NOT has_paid AND NOT is_absent) AS unpaid_count",
		"coalesce(sum(settings_amount) FILTER (WHERE NOT has_paid AND NOT is_absent), 0) AS unpaid_amount",
		"count(*) FILTER (WHERE is_absent) AS absent_count",
	).From("records")
	if filter.ClassID != 0 {
		b = b.Where(sq.Eq{"class_id": filter.ClassID})
	}
	if filter.TermID != 0 {
		b = b.Where(sq.Eq{"term_id": filter.TermID})
	}
	b = dayRange(b, "submitted_at", filter.Range)

	var stats analytics.RecordStats
	if err := get(ctx, repo.db, &stats, b); err != nil {
		return analytics.RecordStats{}, errors.Wrap(err, "computing record stats")
	}
	return stats, nil
}

func (repo analyticsRepository) ExpenseStats(ctx context.Context, filter analytics.ExpenseFilter) (expense.Summary, error) {
	b := psql.Select("count(*) AS count", "coalesce(sum(amount), 0) AS total_amount").From("expenses")
	if filter.TermID != 0 {
		b = b.Where(sq.Eq{"term_id": filter.TermID})
	}
	b = dayRange(b, "date", filter.Range)

	var s expense.Summary
	if err := get(ctx, repo.db, &s, b); err != nil {
		return expense.Summary{}, errors.Wrap(err, "computing expense stats")
	}
	return s, nil
}
