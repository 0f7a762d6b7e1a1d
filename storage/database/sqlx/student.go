package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/student"
)

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo studentRepository) selectStudents() sq.SelectBuilder {
	return psql.Select(
		"s.id", "s.name", "s.age", "s.gender", "s.parent_phone", "s.class_id", "s.owing",
		"s.created_at", "s.updated_at", "c.name AS class_name",
	).From("students s").LeftJoin("classes c ON c.id = s.class_id")
}

func (repo studentRepository) CreateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	b := psql.Insert("students").
		Columns("name", "age", "gender", "parent_phone", "class_id", "owing", "created_at", "updated_at").
		Values(st.Name, st.Age, st.Gender, st.ParentPhone, st.ClassID, st.Owing, st.CreatedAt, st.UpdatedAt).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &st.ID, b); err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return repo.GetStudent(ctx, st.ID)
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	b := repo.selectStudents()
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			b = b.Where(sq.Or{sq.ILike{"s.name": val}, sq.ILike{"s.parent_phone": val}})
		}
		if filter.ClassID != 0 {
			b = b.Where(sq.Eq{"s.class_id": filter.ClassID})
		}
		if filter.Owing {
			b = b.Where(sq.Gt{"s.owing": 0})
		}
	}
	b = orderBy(b, "s", ordering, "s.name ASC", "s.id ASC")

	students := make([]student.Student, 0)
	if err := selectAll(ctx, repo.db, &students, b); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, id int) (student.Student, error) {
	var st student.Student
	if err := get(ctx, repo.db, &st, repo.selectStudents().Where(sq.Eq{"s.id": id})); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student")
	}
	return st, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, st student.Student) (student.Student, error) {
	b := psql.Update("students").SetMap(map[string]interface{}{
		"name":         st.Name,
		"age":          st.Age,
		"gender":       st.Gender,
		"parent_phone": st.ParentPhone,
		"class_id":     st.ClassID,
		"updated_at":   st.UpdatedAt,
	}).Where(sq.Eq{"id": st.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return repo.GetStudent(ctx, st.ID)
}

func (repo studentRepository) DeleteStudent(ctx context.Context, id int) error {
	n, err := exec(ctx, repo.db, psql.Delete("students").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}
