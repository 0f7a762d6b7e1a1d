// Package expense tracks the canteen's spending and the references expenses are filed under.
package expense

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/term"
)

var (
	ErrNotFound          = core.NewNotFoundError("expense not found")
	ErrReferenceNotFound = core.NewNotFoundError("reference not found")
	ErrReferenceExists   = errors.New("a reference with this name already exists")
)

type Reference struct {
	ID          int       `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	TermID      null.Int  `json:"term_id" db:"term_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type NewReference struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	TermID      *int   `json:"term_id" validate:"omitempty,min=1"`
}

func (nr *NewReference) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nr.Name = core.CleanString(nr.Name)
	nr.Description = core.CleanString(nr.Description)
	if err := validate.Struct(nr); err != nil {
		return err
	}
	return svc.checkReferenceName(ctx, nr.Name)
}

type UpdateReference struct {
	Name        string  `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func (ur *UpdateReference) Validate(ctx context.Context, orig Reference, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(ur.Name); name != "" {
		ur.Name = name
	} else {
		ur.Name = orig.Name
	}
	if err := validate.Struct(ur); err != nil {
		return err
	}
	return svc.checkReferenceName(ctx, ur.Name, orig.ID)
}

type Expense struct {
	ID          int             `json:"id" db:"id"`
	Description string          `json:"description" db:"description"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Date        time.Time       `json:"date" db:"date"` // calendar day
	ReferenceID null.Int        `json:"reference_id" db:"reference_id"`
	TermID      null.Int        `json:"term_id" db:"term_id"`
	CreatedBy   null.Int        `json:"created_by" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`

	// read only
	ReferenceName null.String `json:"reference_name" db:"reference_name"`
}

type NewExpense struct {
	Description string          `json:"description" validate:"required,notblank,max=500"`
	Amount      decimal.Decimal `json:"amount" validate:"posamount"`
	Date        core.Date       `json:"date"` // today by default
	ReferenceID *int            `json:"reference_id" validate:"omitempty,min=1"`
}

func (ne *NewExpense) Validate(validate *validator.Validate) error {
	ne.Description = core.CleanString(ne.Description)
	return validate.Struct(ne)
}

// UpdateExpense leaves unset fields unchanged. A ReferenceID of 0 detaches the reference.
type UpdateExpense struct {
	Description string           `json:"description" validate:"omitempty,max=500"`
	Amount      *decimal.Decimal `json:"amount"`
	Date        core.Date        `json:"date"`
	ReferenceID *int             `json:"reference_id" validate:"omitempty,min=0"`
}

func (ue *UpdateExpense) Validate(validate *validator.Validate) error {
	ue.Description = core.CleanString(ue.Description)
	if err := validate.Struct(ue); err != nil {
		return err
	}
	if ue.Amount != nil && !ue.Amount.IsPositive() {
		return core.NewValidationError(nil, core.FieldError{Field: "amount", Error: "amount must be greater than 0"})
	}
	return nil
}

// QueryFilter narrows expenses by term and by an inclusive range of days.
type QueryFilter struct {
	TermID      int
	ReferenceID int
	Range       core.DateRange
}

// Summary totals a list of expenses.
type Summary struct {
	Count       int             `json:"count" db:"count"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
}

type (
	Repository interface {
		CheckReferenceName(ctx context.Context, name string, excludedIDs ...int) error
		CreateReference(ctx context.Context, ref Reference) (Reference, error)
		QueryReferences(ctx context.Context) ([]Reference, error) // ordered by name
		GetReference(ctx context.Context, id int) (Reference, error)
		UpdateReference(ctx context.Context, ref Reference) (Reference, error)
		DeleteReference(ctx context.Context, id int) error

		CreateExpense(ctx context.Context, exp Expense) (Expense, error)
		QueryExpenses(ctx context.Context, filter *QueryFilter) ([]Expense, error) // date desc, id desc
		GetExpense(ctx context.Context, id int) (Expense, error)
		UpdateExpense(ctx context.Context, exp Expense) (Expense, error)
		DeleteExpense(ctx context.Context, id int) error
	}

	TermFinder interface {
		CurrentOn(ctx context.Context, day time.Time) (term.Term, error)
	}

	Service struct {
		repo  Repository
		terms TermFinder
	}
)

func NewService(repo Repository, terms TermFinder) *Service {
	return &Service{repo: repo, terms: terms}
}

func (svc *Service) checkReferenceName(ctx context.Context, name string, excludedIDs ...int) error {
	if err := svc.repo.CheckReferenceName(ctx, name, excludedIDs...); err != nil {
		if errors.Cause(err) == ErrReferenceExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrReferenceExists.Error()})
		}
		return errors.Wrap(err, "checking reference name uniqueness")
	}
	return nil
}

func (svc *Service) checkReference(ctx context.Context, id int) error {
	if _, err := svc.repo.GetReference(ctx, id); err != nil {
		if errors.Cause(err) == ErrReferenceNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "reference_id", Error: err.Error()})
		}
		return errors.Wrap(err, "finding reference")
	}
	return nil
}

// CreateReference expects a validated NewReference.
func (svc *Service) CreateReference(ctx context.Context, nr NewReference) (Reference, error) {
	now := core.NowFunc().UTC()
	ref := Reference{Name: nr.Name, Description: nr.Description, CreatedAt: now, UpdatedAt: now}
	if nr.TermID != nil {
		ref.TermID = null.IntFrom(*nr.TermID)
	}
	ref, err := svc.repo.CreateReference(ctx, ref)
	return ref, errors.Wrap(err, "creating reference")
}

func (svc *Service) QueryReferences(ctx context.Context) ([]Reference, error) {
	return svc.repo.QueryReferences(ctx)
}

func (svc *Service) GetReference(ctx context.Context, id int) (Reference, error) {
	return svc.repo.GetReference(ctx, id)
}

// UpdateReference expects a validated UpdateReference.
func (svc *Service) UpdateReference(ctx context.Context, ref Reference, ur UpdateReference) (Reference, error) {
	ref.Name = ur.Name
	if ur.Description != nil {
		ref.Description = core.CleanString(*ur.Description)
	}
	ref.UpdatedAt = core.NowFunc().UTC()
	ref, err := svc.repo.UpdateReference(ctx, ref)
	return ref, errors.Wrap(err, "updating reference")
}

// DeleteReference detaches the reference from its expenses.
func (svc *Service) DeleteReference(ctx context.Context, id int) error {
	return svc.repo.DeleteReference(ctx, id)
}

// Create expects a validated NewExpense. The day must be covered by the active term, which is stamped on the expense.
func (svc *Service) Create(ctx context.Context, ne NewExpense, createdBy int) (Expense, error) {
	day := ne.Date.Time
	if day.IsZero() {
		day = core.Today()
	}
	t, err := svc.terms.CurrentOn(ctx, day)
	if err != nil {
		return Expense{}, err
	}
	if ne.ReferenceID != nil {
		if err = svc.checkReference(ctx, *ne.ReferenceID); err != nil {
			return Expense{}, err
		}
	}

	now := core.NowFunc().UTC()
	exp := Expense{
		Description: ne.Description,
		Amount:      ne.Amount.Round(2),
		Date:        day,
		TermID:      null.IntFrom(t.ID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if createdBy != 0 {
		exp.CreatedBy = null.IntFrom(createdBy)
	}
	if ne.ReferenceID != nil {
		exp.ReferenceID = null.IntFrom(*ne.ReferenceID)
	}
	if exp, err = svc.repo.CreateExpense(ctx, exp); err != nil {
		return Expense{}, errors.Wrap(err, "creating expense")
	}
	return svc.repo.GetExpense(ctx, exp.ID)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Expense, error) {
	return svc.repo.QueryExpenses(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Expense, error) {
	return svc.repo.GetExpense(ctx, id)
}

// Update expects a validated UpdateExpense.
func (svc *Service) Update(ctx context.Context, exp Expense, ue UpdateExpense) (Expense, error) {
	if ue.Description != "" {
		exp.Description = ue.Description
	}
	if ue.Amount != nil {
		exp.Amount = ue.Amount.Round(2)
	}
	if !ue.Date.IsZero() {
		exp.Date = ue.Date.Time
	}
	if ue.ReferenceID != nil {
		if *ue.ReferenceID == 0 {
			exp.ReferenceID = null.Int{}
		} else {
			if err := svc.checkReference(ctx, *ue.ReferenceID); err != nil {
				return Expense{}, err
			}
			exp.ReferenceID = null.IntFrom(*ue.ReferenceID)
		}
	}
	exp.UpdatedAt = core.NowFunc().UTC()
	if _, err := svc.repo.UpdateExpense(ctx, exp); err != nil {
		return Expense{}, errors.Wrap(err, "updating expense")
	}
	return svc.repo.GetExpense(ctx, exp.ID)
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteExpense(ctx, id)
}

// Summarize totals expenses.
func Summarize(expenses []Expense) Summary {
	s := Summary{Count: len(expenses), TotalAmount: decimal.Zero}
	for _, exp := range expenses {
		s.TotalAmount = s.TotalAmount.Add(exp.Amount)
	}
	return s
}
