// Package term manages academic terms. At most one term is active at a time and
// the active term gates record and expense creation.
package term

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
)

var (
	ErrNotFound       = core.NewNotFoundError("term not found")
	ErrNoActive       = core.NewNotFoundError("No active term found")
	ErrNoCurrent      = core.NewForbiddenError("No active term. Please contact admin to create or activate a term.")
	errEndBeforeStart = errors.New("end date must not be before start date")
)

type Term struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Year      int       `json:"year" db:"year"`
	StartDate time.Time `json:"start_date" db:"start_date"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Range returns the days covered by the term.
func (t Term) Range() core.DateRange {
	return core.DateRange{From: t.StartDate, To: t.EndDate}
}

// CoversDay reports whether the term is active and day falls within its dates.
func (t Term) CoversDay(day time.Time) bool {
	return t.IsActive && t.Range().Contains(day)
}

type NewTerm struct {
	Name      string    `json:"name" validate:"required,notblank,max=100"`
	Year      int       `json:"year" validate:"required,min=2000,max=2200"`
	StartDate core.Date `json:"start_date"`
	EndDate   core.Date `json:"end_date"`
	IsActive  bool      `json:"is_active"`
}

func (nt *NewTerm) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	if err := validate.Struct(nt); err != nil {
		return err
	}
	var missing []core.FieldError
	if nt.StartDate.IsZero() {
		missing = append(missing, core.FieldError{Field: "start_date", Error: "this field is required"})
	}
	if nt.EndDate.IsZero() {
		missing = append(missing, core.FieldError{Field: "end_date", Error: "this field is required"})
	}
	if len(missing) > 0 {
		return core.NewValidationError(nil, missing...)
	}
	if nt.EndDate.Before(nt.StartDate.Time) {
		return core.NewValidationError(errEndBeforeStart, core.FieldError{Field: "end_date", Error: errEndBeforeStart.Error()})
	}
	return nil
}

// UpdateTerm leaves unset fields unchanged. Activation goes through Activate/Deactivate.
type UpdateTerm struct {
	Name      string    `json:"name" validate:"omitempty,max=100"`
	Year      int       `json:"year" validate:"omitempty,min=2000,max=2200"`
	StartDate core.Date `json:"start_date"`
	EndDate   core.Date `json:"end_date"`
}

func (ut *UpdateTerm) Validate(orig Term, validate *validator.Validate) error {
	ut.Name = core.CleanString(ut.Name)
	if err := validate.Struct(ut); err != nil {
		return err
	}
	start, end := orig.StartDate, orig.EndDate
	if !ut.StartDate.IsZero() {
		start = ut.StartDate.Time
	}
	if !ut.EndDate.IsZero() {
		end = ut.EndDate.Time
	}
	if end.Before(start) {
		return core.NewValidationError(errEndBeforeStart, core.FieldError{Field: "end_date", Error: errEndBeforeStart.Error()})
	}
	return nil
}

type (
	Repository interface {
		// CreateTerm deactivates every other term in the same transaction when t.IsActive.
		CreateTerm(ctx context.Context, t Term) (Term, error)
		QueryTerms(ctx context.Context) ([]Term, error) // year desc, start_date desc
		GetTerm(ctx context.Context, id int) (Term, error)
		GetActiveTerm(ctx context.Context) (Term, error)
		// ActivateTerm deactivates every term then activates id, in one transaction.
		ActivateTerm(ctx context.Context, id int) (Term, error)
		DeactivateTerm(ctx context.Context, id int) (Term, error)
		UpdateTerm(ctx context.Context, t Term) (Term, error)
		DeleteTerm(ctx context.Context, id int) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create expects a validated NewTerm.
func (svc *Service) Create(ctx context.Context, nt NewTerm) (Term, error) {
	now := core.NowFunc().UTC()
	t, err := svc.repo.CreateTerm(ctx, Term{
		Name:      nt.Name,
		Year:      nt.Year,
		StartDate: nt.StartDate.Time,
		EndDate:   nt.EndDate.Time,
		IsActive:  nt.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return t, errors.Wrap(err, "creating term")
}

func (svc *Service) Query(ctx context.Context) ([]Term, error) {
	return svc.repo.QueryTerms(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Term, error) {
	return svc.repo.GetTerm(ctx, id)
}

// Active returns the term flagged active, whatever its dates.
func (svc *Service) Active(ctx context.Context) (Term, error) {
	return svc.repo.GetActiveTerm(ctx)
}

// Current returns the active term covering the day of at, or ErrNoCurrent.
func (svc *Service) Current(ctx context.Context, at time.Time) (Term, error) {
	return svc.CurrentOn(ctx, core.Day(at))
}

// CurrentOn returns the active term covering day, or ErrNoCurrent.
func (svc *Service) CurrentOn(ctx context.Context, day time.Time) (Term, error) {
	t, err := svc.repo.GetActiveTerm(ctx)
	if err != nil {
		if errors.Cause(err) == ErrNoActive {
			return Term{}, ErrNoCurrent
		}
		return Term{}, errors.Wrap(err, "finding active term")
	}
	if !t.CoversDay(day) {
		return Term{}, ErrNoCurrent
	}
	return t, nil
}

func (svc *Service) Activate(ctx context.Context, id int) (Term, error) {
	return svc.repo.ActivateTerm(ctx, id)
}

func (svc *Service) Deactivate(ctx context.Context, id int) (Term, error) {
	return svc.repo.DeactivateTerm(ctx, id)
}

// Update expects a validated UpdateTerm.
func (svc *Service) Update(ctx context.Context, t Term, ut UpdateTerm) (Term, error) {
	if ut.Name != "" {
		t.Name = ut.Name
	}
	if ut.Year != 0 {
		t.Year = ut.Year
	}
	if !ut.StartDate.IsZero() {
		t.StartDate = ut.StartDate.Time
	}
	if !ut.EndDate.IsZero() {
		t.EndDate = ut.EndDate.Time
	}
	t.UpdatedAt = core.NowFunc().UTC()
	t, err := svc.repo.UpdateTerm(ctx, t)
	return t, errors.Wrap(err, "updating term")
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteTerm(ctx, id)
}
