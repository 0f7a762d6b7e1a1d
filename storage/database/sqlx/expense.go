package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core/expense"
)

const referenceColumns = "id, name, description, term_id, created_at, updated_at"

type expenseRepository struct {
	db *sqlx.DB
}

var _ expense.Repository = (*expenseRepository)(nil) // interface compliance check

func NewExpenseRepository(db *sqlx.DB) *expenseRepository {
	return &expenseRepository{db: db}
}

func (repo expenseRepository) CheckReferenceName(ctx context.Context, name string, excludedIDs ...int) error {
	b := psql.Select("count(*)").From("expense_references").Where("lower(name) = lower(?)", name)
	if len(excludedIDs) > 0 {
		b = b.Where(sq.NotEq{"id": excludedIDs})
	}
	var cnt int
	if err := get(ctx, repo.db, &cnt, b); err != nil {
		return errors.Wrap(err, "checking reference name uniqueness")
	}
	if cnt > 0 {
		return expense.ErrReferenceExists
	}
	return nil
}

func (repo expenseRepository) CreateReference(ctx context.Context, ref expense.Reference) (expense.Reference, error) {
	b := psql.Insert("expense_references").
		Columns("name", "description", "term_id", "created_at", "updated_at").
		Values(ref.Name, ref.Description, ref.TermID, ref.CreatedAt, ref.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &ref.ID, b); err != nil {
		if isUniqueViolation(err) {
			return expense.Reference{}, expense.ErrReferenceExists
		}
		return expense.Reference{}, errors.Wrap(err, "inserting reference")
	}
	return ref, nil
}

func (repo expenseRepository) QueryReferences(ctx context.Context) ([]expense.Reference, error) {
	refs := make([]expense.Reference, 0)
	b := psql.Select(referenceColumns).From("expense_references").OrderBy("name ASC", "id ASC")
	if err := selectAll(ctx, repo.db, &refs, b); err != nil {
		return nil, errors.Wrap(err, "querying references")
	}
	return refs, nil
}

func (repo expenseRepository) GetReference(ctx context.Context, id int) (expense.Reference, error) {
	var ref expense.Reference
	b := psql.Select(referenceColumns).From("expense_references").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.db, &ref, b); err != nil {
		return expense.Reference{}, trapNoRowsErr(err, expense.ErrReferenceNotFound, "finding reference")
	}
	return ref, nil
}

func (repo expenseRepository) UpdateReference(ctx context.Context, ref expense.Reference) (expense.Reference, error) {
	b := psql.Update("expense_references").
		Set("name", ref.Name).
		Set("description", ref.Description).
		Set("updated_at", ref.UpdatedAt).
		Where(sq.Eq{"id": ref.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		if isUniqueViolation(err) {
			return expense.Reference{}, expense.ErrReferenceExists
		}
		return expense.Reference{}, errors.Wrap(err, "updating reference")
	}
	if n == 0 {
		return expense.Reference{}, expense.ErrReferenceNotFound
	}
	return ref, nil
}

func (repo expenseRepository) DeleteReference(ctx context.Context, id int) error {
	n, err := exec(ctx, repo.db, psql.Delete("expense_references").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting reference")
	}
	if n == 0 {
		return expense.ErrReferenceNotFound
	}
	return nil
}

func selectExpenses() sq.SelectBuilder {
	return psql.Select(
		"e.id", "e.description", "e.amount", "e.date", "e.reference_id", "e.term_id", "e.created_by",
		"e.created_at", "e.updated_at", "ref.name AS reference_name",
	).From("expenses e").LeftJoin("expense_references ref ON ref.id = e.reference_id")
}

func (repo expenseRepository) CreateExpense(ctx context.Context, exp expense.Expense) (expense.Expense, error) {
	b := psql.Insert("expenses").
		Columns("description", "amount", "date", "reference_id", "term_id", "created_by", "created_at", "updated_at").
		Values(exp.Description, exp.Amount, exp.Date, exp.ReferenceID, exp.TermID, exp.CreatedBy, exp.CreatedAt, exp.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &exp.ID, b); err != nil {
		return expense.Expense{}, errors.Wrap(err, "inserting expense")
	}
	return exp, nil
}

func (repo expenseRepository) QueryExpenses(ctx context.Context, filter *expense.QueryFilter) ([]expense.Expense, error) {
	b := selectExpenses()
	if filter != nil {
		if filter.TermID != 0 {
			b = b.Where(sq.Eq{"e.term_id": filter.TermID})
		}
		if filter.ReferenceID != 0 {
			b = b.Where(sq.Eq{"e.reference_id": filter.ReferenceID})
		}
		b = dayRange(b, "e.date", filter.Range)
	}
	expenses := make([]expense.Expense, 0)
	if err := selectAll(ctx, repo.db, &expenses, b.OrderBy("e.date DESC", "e.id DESC")); err != nil {
		return nil, errors.Wrap(err, "querying expenses")
	}
	return expenses, nil
}

func (repo expenseRepository) GetExpense(ctx context.Context, id int) (expense.Expense, error) {
	var exp expense.Expense
	if err := get(ctx, repo.db, &exp, selectExpenses().Where(sq.Eq{"e.id": id})); err != nil {
		return expense.Expense{}, trapNoRowsErr(err, expense.ErrNotFound, "finding expense")
	}
	return exp, nil
}

func (repo expenseRepository) UpdateExpense(ctx context.Context, exp expense.Expense) (expense.Expense, error) {
	b := psql.Update("expenses").SetMap(map[string]interface{}{
		"description":  exp.Description,
		"amount":       exp.Amount,
		"date":         exp.Date,
		"reference_id": exp.ReferenceID,
		"updated_at":   exp.UpdatedAt,
	}).Where(sq.Eq{"id": exp.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return expense.Expense{}, errors.Wrap(err, "updating expense")
	}
	if n == 0 {
		return expense.Expense{}, expense.ErrNotFound
	}
	return exp, nil
}

func (repo expenseRepository) DeleteExpense(ctx context.Context, id int) error {
	n, err := exec(ctx, repo.db, psql.Delete("expenses").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting expense")
	}
	if n == 0 {
		return expense.ErrNotFound
	}
	return nil
}
