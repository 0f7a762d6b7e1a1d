// Package class manages school classes and their supervising teacher.
package class

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/user"
)

var (
	ErrNotFound   = core.NewNotFoundError("class not found")
	ErrNameExists = errors.New("a class with this name already exists")
)

type Class struct {
	ID           int       `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	SupervisorID null.Int  `json:"supervisor_id" db:"supervisor_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	// read only
	SupervisorName null.String `json:"supervisor_name" db:"supervisor_name"`
	StudentCount   int         `json:"student_count" db:"student_count"`
}

type NewClass struct {
	Name         string `json:"name" validate:"required,notblank,max=100"`
	SupervisorID *int   `json:"supervisor_id" validate:"omitempty,min=1"`
}

func (nc *NewClass) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nc.Name = core.CleanString(nc.Name)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, nc.Name)
}

// UpdateClass leaves unset fields unchanged. A SupervisorID of 0 removes the supervisor.
type UpdateClass struct {
	Name         string `json:"name" validate:"omitempty,max=100"`
	SupervisorID *int   `json:"supervisor_id" validate:"omitempty,min=0"`
}

func (uc *UpdateClass) Validate(ctx context.Context, orig Class, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uc.Name); name != "" {
		uc.Name = name
	} else {
		uc.Name = orig.Name
	}
	if err := validate.Struct(uc); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, uc.Name, orig.ID)
}

type QueryFilter struct {
	Search       string `query:"search"`
	SupervisorID int    `query:"supervisor_id"`
}

type (
	Repository interface {
		CheckNameUniqueness(ctx context.Context, name string, excludedIDs ...int) error
		CreateClass(ctx context.Context, cls Class) (Class, error)
		QueryClasses(ctx context.Context, filter *QueryFilter) ([]Class, error) // ordered by name
		GetClass(ctx context.Context, id int) (Class, error)
		GetClassBySupervisor(ctx context.Context, supervisorID int) (Class, error)
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		// SetSupervisor assigns supervisorID to the class and removes it from any other class.
		SetSupervisor(ctx context.Context, classID int, supervisorID null.Int) (Class, error)
		DeleteClass(ctx context.Context, id int) error
	}

	// TeacherGetter finds teachers. *user.Service implements it.
	TeacherGetter interface {
		GetTeacher(ctx context.Context, id int) (user.User, error)
	}

	Service struct {
		repo     Repository
		teachers TeacherGetter
	}
)

func NewService(repo Repository, teachers TeacherGetter) *Service {
	return &Service{repo: repo, teachers: teachers}
}

func (svc *Service) checkUniqueness(ctx context.Context, name string, excludedIDs ...int) error {
	if err := svc.repo.CheckNameUniqueness(ctx, name, excludedIDs...); err != nil {
		if errors.Cause(err) == ErrNameExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: ErrNameExists.Error()})
		}
		return errors.Wrap(err, "checking class name uniqueness")
	}
	return nil
}

func (svc *Service) checkSupervisor(ctx context.Context, id int) error {
	if _, err := svc.teachers.GetTeacher(ctx, id); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "supervisor_id", Error: "supervisor must be an existing teacher"})
		}
		return errors.Wrap(err, "finding supervisor")
	}
	return nil
}

// Create expects a validated NewClass.
func (svc *Service) Create(ctx context.Context, nc NewClass) (Class, error) {
	if nc.SupervisorID != nil {
		if err := svc.checkSupervisor(ctx, *nc.SupervisorID); err != nil {
			return Class{}, err
		}
	}
	now := core.NowFunc().UTC()
	cls, err := svc.repo.CreateClass(ctx, Class{Name: nc.Name, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		return Class{}, errors.Wrap(err, "creating class")
	}
	if nc.SupervisorID != nil {
		return svc.AssignSupervisor(ctx, cls.ID, *nc.SupervisorID)
	}
	return svc.repo.GetClass(ctx, cls.ID)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Class, error) {
	if filter != nil {
		filter.Search = core.CleanString(filter.Search)
	}
	return svc.repo.QueryClasses(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

// GetBySupervisor returns the class assigned to the teacher.
func (svc *Service) GetBySupervisor(ctx context.Context, supervisorID int) (Class, error) {
	return svc.repo.GetClassBySupervisor(ctx, supervisorID)
}

// Update expects a validated UpdateClass.
func (svc *Service) Update(ctx context.Context, cls Class, uc UpdateClass) (Class, error) {
	cls.Name = uc.Name
	cls.UpdatedAt = core.NowFunc().UTC()
	cls, err := svc.repo.UpdateClass(ctx, cls)
	if err != nil {
		return Class{}, errors.Wrap(err, "updating class")
	}
	if uc.SupervisorID == nil {
		return cls, nil
	}
	if *uc.SupervisorID == 0 {
		return svc.repo.SetSupervisor(ctx, cls.ID, null.Int{})
	}
	return svc.AssignSupervisor(ctx, cls.ID, *uc.SupervisorID)
}

// AssignSupervisor makes the teacher the supervisor of the class. A teacher supervises a single class.
func (svc *Service) AssignSupervisor(ctx context.Context, classID, teacherID int) (Class, error) {
	if err := svc.checkSupervisor(ctx, teacherID); err != nil {
		return Class{}, err
	}
	cls, err := svc.repo.SetSupervisor(ctx, classID, null.IntFrom(teacherID))
	return cls, errors.Wrap(err, "setting supervisor")
}

// UnassignSupervisor removes the teacher from the class they supervise, if any.
func (svc *Service) UnassignSupervisor(ctx context.Context, teacherID int) error {
	cls, err := svc.repo.GetClassBySupervisor(ctx, teacherID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return err
	}
	_, err = svc.repo.SetSupervisor(ctx, cls.ID, null.Int{})
	return errors.Wrap(err, "removing supervisor")
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteClass(ctx, id)
}
