package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core/expense"
)

type expenseRepository struct {
	db *DB
}

var _ expense.Repository = (*expenseRepository)(nil) // interface compliance check

func NewExpenseRepository(db *DB) *expenseRepository {
	return &expenseRepository{db: db}
}

func (repo *expenseRepository) referenceTaken(name string, excludedIDs ...int) bool {
	for _, ref := range repo.db.references {
		if strings.EqualFold(ref.Name, name) && !isExcluded(ref.ID, excludedIDs) {
			return true
		}
	}
	return false
}

func (repo *expenseRepository) CheckReferenceName(_ context.Context, name string, excludedIDs ...int) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if repo.referenceTaken(name, excludedIDs...) {
		return expense.ErrReferenceExists
	}
	return nil
}

func (repo *expenseRepository) CreateReference(_ context.Context, ref expense.Reference) (expense.Reference, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.referenceTaken(ref.Name) {
		return expense.Reference{}, expense.ErrReferenceExists
	}
	ref.ID = repo.db.nextID("expense_references")
	repo.db.references[ref.ID] = ref
	return ref, nil
}

func (repo *expenseRepository) QueryReferences(_ context.Context) ([]expense.Reference, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	refs := make([]expense.Reference, 0, len(repo.db.references))
	for _, ref := range repo.db.references {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Name != refs[j].Name {
			return refs[i].Name < refs[j].Name
		}
		return refs[i].ID < refs[j].ID
	})
	return refs, nil
}

func (repo *expenseRepository) GetReference(_ context.Context, id int) (expense.Reference, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ref, ok := repo.db.references[id]; ok {
		return ref, nil
	}
	return expense.Reference{}, expense.ErrReferenceNotFound
}

func (repo *expenseRepository) UpdateReference(_ context.Context, ref expense.Reference) (expense.Reference, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.references[ref.ID]; !ok {
		return expense.Reference{}, expense.ErrReferenceNotFound
	}
	if repo.referenceTaken(ref.Name, ref.ID) {
		return expense.Reference{}, expense.ErrReferenceExists
	}
	repo.db.references[ref.ID] = ref
	return ref, nil
}

// DeleteReference detaches the reference from its expenses, as the database does.
func (repo *expenseRepository) DeleteReference(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.references[id]; !ok {
		return expense.ErrReferenceNotFound
	}
	delete(repo.db.references, id)
	for eid, exp := range repo.db.expenses {
		if exp.ReferenceID.Valid && exp.ReferenceID.Int == id {
			exp.ReferenceID = null.Int{}
			repo.db.expenses[eid] = exp
		}
	}
	return nil
}

// expenseView fills the read-only fields. The caller holds the lock.
func (db *DB) expenseView(exp expense.Expense) expense.Expense {
	exp.ReferenceName = null.String{}
	if exp.ReferenceID.Valid {
		if ref, ok := db.references[exp.ReferenceID.Int]; ok {
			exp.ReferenceName = null.StringFrom(ref.Name)
		}
	}
	return exp
}

func (repo *expenseRepository) CreateExpense(_ context.Context, exp expense.Expense) (expense.Expense, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	exp.ID = repo.db.nextID("expenses")
	repo.db.expenses[exp.ID] = exp
	return repo.db.expenseView(exp), nil
}

func (repo *expenseRepository) QueryExpenses(_ context.Context, filter *expense.QueryFilter) ([]expense.Expense, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	expenses := make([]expense.Expense, 0, len(repo.db.expenses))
	for _, exp := range repo.db.expenses {
		if filter != nil {
			if filter.TermID != 0 && exp.TermID.Int != filter.TermID {
				continue
			}
			if filter.ReferenceID != 0 && exp.ReferenceID.Int != filter.ReferenceID {
				continue
			}
			if !filter.Range.Contains(exp.Date) {
				continue
			}
		}
		expenses = append(expenses, repo.db.expenseView(exp))
	}
	sort.Slice(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.After(expenses[j].Date)
		}
		return expenses[i].ID > expenses[j].ID
	})
	return expenses, nil
}

func (repo *expenseRepository) GetExpense(_ context.Context, id int) (expense.Expense, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if exp, ok := repo.db.expenses[id]; ok {
		return repo.db.expenseView(exp), nil
	}
	return expense.Expense{}, expense.ErrNotFound
}

func (repo *expenseRepository) UpdateExpense(_ context.Context, exp expense.Expense) (expense.Expense, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.expenses[exp.ID]
	if !ok {
		return expense.Expense{}, expense.ErrNotFound
	}
	exp.TermID, exp.CreatedBy, exp.CreatedAt = orig.TermID, orig.CreatedBy, orig.CreatedAt
	repo.db.expenses[exp.ID] = exp
	return repo.db.expenseView(exp), nil
}

func (repo *expenseRepository) DeleteExpense(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.expenses[id]; !ok {
		return expense.ErrNotFound
	}
	delete(repo.db.expenses, id)
	return nil
}
