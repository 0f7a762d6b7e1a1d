package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/term"
)

const (
	termColumns           = "id, name, year, start_date, end_date, is_active, created_at, updated_at"
	termSingleActiveIndex = "terms_single_active_idx"
)

var errConcurrentActivation = core.NewConflictError("another term was activated concurrently, retry")

type termRepository struct {
	db *sqlx.DB
}

var _ term.Repository = (*termRepository)(nil) // interface compliance check

func NewTermRepository(db *sqlx.DB) *termRepository {
	return &termRepository{db: db}
}

func deactivateTerms(ctx context.Context, tx *sqlx.Tx) error {
	_, err := exec(ctx, tx, psql.Update("terms").Set("is_active", false).Where(sq.Eq{"is_active": true}))
	return errors.Wrap(err, "deactivating terms")
}

func (repo termRepository) CreateTerm(ctx context.Context, t term.Term) (term.Term, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if t.IsActive {
			if err := deactivateTerms(ctx, tx); err != nil {
				return err
			}
		}
		b := psql.Insert("terms").
			Columns("name", "year", "start_date", "end_date", "is_active", "created_at", "updated_at").
			Values(t.Name, t.Year, t.StartDate, t.EndDate, t.IsActive, t.CreatedAt, t.UpdatedAt).
			Suffix("RETURNING id")
		return get(ctx, tx, &t.ID, b)
	})
	if err != nil {
		if isUniqueViolation(err, termSingleActiveIndex) {
			return term.Term{}, errConcurrentActivation
		}
		return term.Term{}, errors.Wrap(err, "inserting term")
	}
	return t, nil
}

func (repo termRepository) QueryTerms(ctx context.Context) ([]term.Term, error) {
	terms := make([]term.Term, 0)
	b := psql.Select(termColumns).From("terms").OrderBy("year DESC", "start_date DESC", "id DESC")
	if err := selectAll(ctx, repo.db, &terms, b); err != nil {
		return nil, errors.Wrap(err, "querying terms")
	}
	return terms, nil
}

func (repo termRepository) getTerm(ctx context.Context, q sqlx.QueryerContext, where sq.Sqlizer, notFound error) (term.Term, error) {
	var t term.Term
	if err := get(ctx, q, &t, psql.Select(termColumns).From("terms").Where(where).Limit(1)); err != nil {
		return term.Term{}, trapNoRowsErr(err, notFound, "finding term")
	}
	return t, nil
}

func (repo termRepository) GetTerm(ctx context.Context, id int) (term.Term, error) {
	return repo.getTerm(ctx, repo.db, sq.Eq{"id": id}, term.ErrNotFound)
}

func (repo termRepository) GetActiveTerm(ctx context.Context) (term.Term, error) {
	return repo.getTerm(ctx, repo.db, sq.Eq{"is_active": true}, term.ErrNoActive)
}

func (repo termRepository) ActivateTerm(ctx context.Context, id int) (term.Term, error) {
	var t term.Term
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := repo.getTerm(ctx, tx, sq.Eq{"id": id}, term.ErrNotFound); err != nil {
			return err
		}
		if err := deactivateTerms(ctx, tx); err != nil {
			return err
		}
		b := psql.Update("terms").Set("is_active", true).Set("updated_at", sq.Expr("now()")).Where(sq.Eq{"id": id})
		if _, err := exec(ctx, tx, b); err != nil {
			return errors.Wrap(err, "activating term")
		}
		var err error
		t, err = repo.getTerm(ctx, tx, sq.Eq{"id": id}, term.ErrNotFound)
		return err
	})
	if isUniqueViolation(err, termSingleActiveIndex) {
		return term.Term{}, errConcurrentActivation
	}
	return t, err
}

func (repo termRepository) DeactivateTerm(ctx context.Context, id int) (term.Term, error) {
	b := psql.Update("terms").Set("is_active", false).Set("updated_at", sq.Expr("now()")).Where(sq.Eq{"id": id})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return term.Term{}, errors.Wrap(err, "deactivating term")
	}
	if n == 0 {
		return term.Term{}, term.ErrNotFound
	}
	return repo.GetTerm(ctx, id)
}

func (repo termRepository) UpdateTerm(ctx context.Context, t term.Term) (term.Term, error) {
	b := psql.Update("terms").SetMap(map[string]interface{}{
		"name":       t.Name,
		"year":       t.Year,
		"start_date": t.StartDate,
		"end_date":   t.EndDate,
		"updated_at": t.UpdatedAt,
	}).Where(sq.Eq{"id": t.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return term.Term{}, errors.Wrap(err, "updating term")
	}
	if n == 0 {
		return term.Term{}, term.ErrNotFound
	}
	return repo.GetTerm(ctx, t.ID)
}

func (repo termRepository) DeleteTerm(ctx context.Context, id int) error {
	n, err := exec(ctx, repo.db, psql.Delete("terms").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting term")
	}
	if n == 0 {
		return term.ErrNotFound
	}
	return nil
}
