package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core/class"
)

type classRepository struct {
	db *sqlx.DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *sqlx.DB) *classRepository {
	return &classRepository{db: db}
}

func (repo classRepository) selectClasses() sq.SelectBuilder {
	return psql.Select(
		"c.id", "c.name", "c.supervisor_id", "c.created_at", "c.updated_at",
		"u.name AS supervisor_name",
		"(SELECT count(*) FROM students s WHERE s.class_id = c.id) AS student_count",
	).From("classes c").LeftJoin("users u ON u.id = c.supervisor_id")
}

func (repo classRepository) CheckNameUniqueness(ctx context.Context, name string, excludedIDs ...int) error {
	b := psql.Select("count(*)").From("classes").Where("lower(name) = lower(?)", name)
	if len(excludedIDs) > 0 {
		b = b.Where(sq.NotEq{"id": excludedIDs})
	}
	var cnt int
	if err := get(ctx, repo.db, &cnt, b); err != nil {
		return errors.Wrap(err, "checking class name uniqueness")
	}
	if cnt > 0 {
		return class.ErrNameExists
	}
	return nil
}

func (repo classRepository) CreateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	b := psql.Insert("classes").
		Columns("name", "supervisor_id", "created_at", "updated_at").
		Values(cls.Name, cls.SupervisorID, cls.CreatedAt, cls.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &cls.ID, b); err != nil {
		if isUniqueViolation(err) {
			return class.Class{}, class.ErrNameExists
		}
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo classRepository) QueryClasses(ctx context.Context, filter *class.QueryFilter) ([]class.Class, error) {
	b := repo.selectClasses()
	if filter != nil {
		if filter.Search != "" {
			b = b.Where(sq.ILike{"c.name": "%" + filter.Search + "%"})
		}
		if filter.SupervisorID != 0 {
			b = b.Where(sq.Eq{"c.supervisor_id": filter.SupervisorID})
		}
	}
	classes := make([]class.Class, 0)
	if err := selectAll(ctx, repo.db, &classes, b.OrderBy("c.name ASC", "c.id ASC")); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (repo classRepository) getClass(ctx context.Context, q sqlx.QueryerContext, where sq.Sqlizer) (class.Class, error) {
	var cls class.Class
	if err := get(ctx, q, &cls, repo.selectClasses().Where(where).Limit(1)); err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "finding class")
	}
	return cls, nil
}

func (repo classRepository) GetClass(ctx context.Context, id int) (class.Class, error) {
	return repo.getClass(ctx, repo.db, sq.Eq{"c.id": id})
}

func (repo classRepository) GetClassBySupervisor(ctx context.Context, supervisorID int) (class.Class, error) {
	return repo.getClass(ctx, repo.db, sq.Eq{"c.supervisor_id": supervisorID})
}

func (repo classRepository) UpdateClass(ctx context.Context, cls class.Class) (class.Class, error) {
	b := psql.Update("classes").
		Set("name", cls.Name).
		Set("updated_at", cls.UpdatedAt).
		Where(sq.Eq{"id": cls.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		if isUniqueViolation(err) {
			return class.Class{}, class.ErrNameExists
		}
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	if n == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return repo.GetClass(ctx, cls.ID)
}

func (repo classRepository) SetSupervisor(ctx context.Context, classID int, supervisorID null.Int) (class.Class, error) {
	var cls class.Class
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if supervisorID.Valid {
			unset := psql.Update("classes").Set("supervisor_id", nil).
				Where(sq.Eq{"supervisor_id": supervisorID.Int}).Where(sq.NotEq{"id": classID})
			if _, err := exec(ctx, tx, unset); err != nil {
				return errors.Wrap(err, "clearing previous class supervisor")
			}
		}
		n, err := exec(ctx, tx, psql.Update("classes").
			Set("supervisor_id", supervisorID).
			Set("updated_at", sq.Expr("now()")).
			Where(sq.Eq{"id": classID}))
		if err != nil {
			return errors.Wrap(err, "setting class supervisor")
		}
		if n == 0 {
			return class.ErrNotFound
		}
		cls, err = repo.getClass(ctx, tx, sq.Eq{"c.id": classID})
		return err
	})
	return cls, err
}

func (repo classRepository) DeleteClass(ctx context.Context, id int) error {
	n, err := exec(ctx, repo.db, psql.Delete("classes").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if n == 0 {
		return class.ErrNotFound
	}
	return nil
}
