package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

// studentView fills the read-only fields. The caller holds the lock.
func (db *DB) studentView(st student.Student) student.Student {
	st.ClassName = null.String{}
	if st.ClassID.Valid {
		if cls, ok := db.classes[st.ClassID.Int]; ok {
			st.ClassName = null.StringFrom(cls.Name)
		}
	}
	return st
}

func compareStudents(a, b student.Student, field string) int {
	switch field {
	case "age":
		return a.Age - b.Age
	case "owing":
		return a.Owing.Cmp(b.Owing)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	default:
		return strings.Compare(a.Name, b.Name)
	}
}

func (repo *studentRepository) CreateStudent(_ context.Context, st student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	st.ID = repo.db.nextID("students")
	repo.db.students[st.ID] = st
	return repo.db.studentView(st), nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]student.Student, 0, len(repo.db.students))
	for _, st := range repo.db.students {
		if filter != nil {
			if filter.Search != "" && !contains(st.Name, filter.Search) && !contains(st.ParentPhone, filter.Search) {
				continue
			}
			if filter.ClassID != 0 && st.ClassID.Int != filter.ClassID {
				continue
			}
			if filter.Owing && !st.Owing.IsPositive() {
				continue
			}
		}
		students = append(students, repo.db.studentView(st))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(students, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareStudents(students[i], students[j], ord.Field)
			if c == 0 {
				continue
			}
			return (c < 0) == ord.Ascending
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id int) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if st, ok := repo.db.students[id]; ok {
		return repo.db.studentView(st), nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, st student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.students[st.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	st.Owing = orig.Owing
	st.CreatedAt = orig.CreatedAt
	repo.db.students[st.ID] = st
	return repo.db.studentView(st), nil
}

// DeleteStudent also deletes the student's records, as the database cascade does.
func (repo *studentRepository) DeleteStudent(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[id]; !ok {
		return student.ErrNotFound
	}
	delete(repo.db.students, id)
	for rid, rec := range repo.db.records {
		if rec.StudentID == id {
			delete(repo.db.records, rid)
		}
	}
	return nil
}
