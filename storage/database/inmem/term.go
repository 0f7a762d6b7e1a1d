package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/term"
)

type termRepository struct {
	db *DB
}

var _ term.Repository = (*termRepository)(nil) // interface compliance check

func NewTermRepository(db *DB) *termRepository {
	return &termRepository{db: db}
}

// deactivateAll is called with the lock held.
func (repo *termRepository) deactivateAll() {
	now := core.NowFunc().UTC()
	for id, t := range repo.db.terms {
		if t.IsActive {
			t.IsActive = false
			t.UpdatedAt = now
			repo.db.terms[id] = t
		}
	}
}

func (repo *termRepository) CreateTerm(_ context.Context, t term.Term) (term.Term, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if t.IsActive {
		repo.deactivateAll()
	}
	t.ID = repo.db.nextID("terms")
	repo.db.terms[t.ID] = t
	return t, nil
}

func (repo *termRepository) QueryTerms(_ context.Context) ([]term.Term, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	terms := make([]term.Term, 0, len(repo.db.terms))
	for _, t := range repo.db.terms {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Year != terms[j].Year {
			return terms[i].Year > terms[j].Year
		}
		if !terms[i].StartDate.Equal(terms[j].StartDate) {
			return terms[i].StartDate.After(terms[j].StartDate)
		}
		return terms[i].ID > terms[j].ID
	})
	return terms, nil
}

func (repo *termRepository) GetTerm(_ context.Context, id int) (term.Term, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.terms[id]; ok {
		return t, nil
	}
	return term.Term{}, term.ErrNotFound
}

func (repo *termRepository) GetActiveTerm(_ context.Context) (term.Term, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.terms {
		if t.IsActive {
			return t, nil
		}
	}
	return term.Term{}, term.ErrNoActive
}

func (repo *termRepository) ActivateTerm(_ context.Context, id int) (term.Term, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.terms[id]
	if !ok {
		return term.Term{}, term.ErrNotFound
	}
	repo.deactivateAll()
	t.IsActive = true
	t.UpdatedAt = core.NowFunc().UTC()
	repo.db.terms[id] = t
	return t, nil
}

func (repo *termRepository) DeactivateTerm(_ context.Context, id int) (term.Term, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.terms[id]
	if !ok {
		return term.Term{}, term.ErrNotFound
	}
	t.IsActive = false
	t.UpdatedAt = core.NowFunc().UTC()
	repo.db.terms[id] = t
	return t, nil
}

func (repo *termRepository) UpdateTerm(_ context.Context, t term.Term) (term.Term, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.terms[t.ID]
	if !ok {
		return term.Term{}, term.ErrNotFound
	}
	t.IsActive = orig.IsActive
	t.CreatedAt = orig.CreatedAt
	repo.db.terms[t.ID] = t
	return t, nil
}

// DeleteTerm detaches the term's records, references and expenses, as the database does.
func (repo *termRepository) DeleteTerm(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.terms[id]; !ok {
		return term.ErrNotFound
	}
	delete(repo.db.terms, id)
	for rid, rec := range repo.db.records {
		if rec.TermID.Valid && rec.TermID.Int == id {
			rec.TermID = null.Int{}
			repo.db.records[rid] = rec
		}
	}
	for rid, ref := range repo.db.references {
		if ref.TermID.Valid && ref.TermID.Int == id {
			ref.TermID = null.Int{}
			repo.db.references[rid] = ref
		}
	}
	for eid, exp := range repo.db.expenses {
		if exp.TermID.Valid && exp.TermID.Int == id {
			exp.TermID = null.Int{}
			repo.db.expenses[eid] = exp
		}
	}
	return nil
}
