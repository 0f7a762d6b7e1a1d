// Package student manages the students eating at the canteen.
// A student's owing balance is read-only here: it only moves through record transitions.
package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/class"
)

var ErrNotFound = core.NewNotFoundError("student not found")

type Student struct {
	ID          int             `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Age         int             `json:"age" db:"age"`
	Gender      string          `json:"gender" db:"gender"`
	ParentPhone string          `json:"parent_phone" db:"parent_phone"`
	ClassID     null.Int        `json:"class_id" db:"class_id"`
	Owing       decimal.Decimal `json:"owing" db:"owing"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`

	// read only
	ClassName null.String `json:"class_name" db:"class_name"`
}

type NewStudent struct {
	Name        string `json:"name" validate:"required,notblank"`
	Age         int    `json:"age" validate:"omitempty,min=1,max=100"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female"`
	ParentPhone string `json:"parent_phone" validate:"omitempty,max=30"`
	ClassID     *int   `json:"class_id" validate:"omitempty,min=1"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Gender = core.CleanString(ns.Gender, true /* lower */)
	ns.ParentPhone = core.CleanString(ns.ParentPhone)
	return validate.Struct(ns)
}

// UpdateStudent leaves unset fields unchanged. A ClassID of 0 removes the student from their class.
type UpdateStudent struct {
	Name        string `json:"name"`
	Age         *int   `json:"age" validate:"omitempty,min=1,max=100"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female"`
	ParentPhone string `json:"parent_phone" validate:"omitempty,max=30"`
	ClassID     *int   `json:"class_id" validate:"omitempty,min=0"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.Gender = core.CleanString(us.Gender, true /* lower */)
	us.ParentPhone = core.CleanString(us.ParentPhone)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search  string `query:"search"`
	ClassID int    `query:"class_id"`
	Owing   bool   `query:"owing"` // only students with a positive balance
}

// OwingSummary lists students with a positive balance.
type OwingSummary struct {
	OwingStudents []Student       `json:"owing_students"`
	Count         int             `json:"count"`
	TotalOwing    decimal.Decimal `json:"total_owing"`
}

type (
	Repository interface {
		CreateStudent(ctx context.Context, st Student) (Student, error)
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		GetStudent(ctx context.Context, id int) (Student, error)
		// UpdateStudent never writes Owing.
		UpdateStudent(ctx context.Context, st Student) (Student, error)
		DeleteStudent(ctx context.Context, id int) error
	}

	// ClassGetter finds classes. *class.Service implements it.
	ClassGetter interface {
		GetByID(ctx context.Context, id int) (class.Class, error)
	}

	Service struct {
		repo    Repository
		classes ClassGetter
	}
)

func NewService(repo Repository, classes ClassGetter) *Service {
	return &Service{repo: repo, classes: classes}
}

func (svc *Service) checkClass(ctx context.Context, id int) error {
	if _, err := svc.classes.GetByID(ctx, id); err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "class_id", Error: "class not found"})
		}
		return errors.Wrap(err, "finding class")
	}
	return nil
}

// Create expects a validated NewStudent.
func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := core.NowFunc().UTC()
	st := Student{
		Name:        ns.Name,
		Age:         ns.Age,
		Gender:      ns.Gender,
		ParentPhone: ns.ParentPhone,
		Owing:       decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ns.ClassID != nil {
		if err := svc.checkClass(ctx, *ns.ClassID); err != nil {
			return Student{}, err
		}
		st.ClassID = null.IntFrom(*ns.ClassID)
	}
	st, err := svc.repo.CreateStudent(ctx, st)
	return st, errors.Wrap(err, "creating student")
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	if filter != nil {
		filter.Search = core.CleanString(filter.Search)
	}
	return svc.repo.QueryStudents(ctx, filter, core.CleanOrderings(ordering, "name", "age", "owing", "created_at"))
}

func (svc *Service) GetByID(ctx context.Context, id int) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

// ByClass lists the students of a class ordered by name.
func (svc *Service) ByClass(ctx context.Context, classID int) ([]Student, error) {
	if _, err := svc.classes.GetByID(ctx, classID); err != nil {
		return nil, err
	}
	return svc.repo.QueryStudents(ctx, &QueryFilter{ClassID: classID}, nil)
}

// Update expects a validated UpdateStudent.
func (svc *Service) Update(ctx context.Context, st Student, us UpdateStudent) (Student, error) {
	if us.Name != "" {
		st.Name = us.Name
	}
	if us.Age != nil {
		st.Age = *us.Age
	}
	if us.Gender != "" {
		st.Gender = us.Gender
	}
	if us.ParentPhone != "" {
		st.ParentPhone = us.ParentPhone
	}
	if us.ClassID != nil {
		if *us.ClassID == 0 {
			st.ClassID = null.Int{}
		} else {
			if err := svc.checkClass(ctx, *us.ClassID); err != nil {
				return Student{}, err
			}
			st.ClassID = null.IntFrom(*us.ClassID)
		}
	}
	st.UpdatedAt = core.NowFunc().UTC()
	st, err := svc.repo.UpdateStudent(ctx, st)
	return st, errors.Wrap(err, "updating student")
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteStudent(ctx, id)
}

// Owings summarises the students with a positive balance, optionally in one class.
func (svc *Service) Owings(ctx context.Context, classID int) (OwingSummary, error) {
	students, err := svc.repo.QueryStudents(
		ctx,
		&QueryFilter{ClassID: classID, Owing: true},
		[]core.DBOrdering{{Field: "owing", Ascending: false}, {Field: "name", Ascending: true}},
	)
	if err != nil {
		return OwingSummary{}, errors.Wrap(err, "querying owing students")
	}
	summary := OwingSummary{OwingStudents: students, Count: len(students), TotalOwing: decimal.Zero}
	if summary.OwingStudents == nil {
		summary.OwingStudents = []Student{}
	}
	for _, st := range students {
		summary.TotalOwing = summary.TotalOwing.Add(st.Owing)
	}
	return summary, nil
}
