package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/user"
)

type recordRepository struct {
	db *DB
}

var _ record.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *DB) *recordRepository {
	return &recordRepository{db: db}
}

// recordView fills the read-only fields. The caller holds the lock.
func (db *DB) recordView(rec record.Record) record.Record {
	rec.StudentName, rec.ClassName, rec.TeacherName = null.String{}, null.String{}, null.String{}
	if st, ok := db.students[rec.StudentID]; ok {
		rec.StudentName = null.StringFrom(st.Name)
	}
	if rec.ClassID.Valid {
		if cls, ok := db.classes[rec.ClassID.Int]; ok {
			rec.ClassName = null.StringFrom(cls.Name)
		}
	}
	if rec.SubmittedBy.Valid {
		if usr, ok := db.users[rec.SubmittedBy.Int]; ok {
			rec.TeacherName = null.StringFrom(usr.Name)
		}
	}
	return rec
}

func matchesStatus(rec record.Record, statuses []string) bool {
	return len(statuses) == 0 || hasString(statuses, rec.Status())
}

func (repo *recordRepository) QueryRecords(_ context.Context, filter *record.QueryFilter) ([]record.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]record.Record, 0)
	for _, rec := range repo.db.records {
		if filter != nil {
			if filter.StudentID != 0 && rec.StudentID != filter.StudentID {
				continue
			}
			if filter.ClassID != 0 && rec.ClassID.Int != filter.ClassID {
				continue
			}
			if filter.SubmittedBy != 0 && rec.SubmittedBy.Int != filter.SubmittedBy {
				continue
			}
			if filter.TermID != 0 && rec.TermID.Int != filter.TermID {
				continue
			}
			if !filter.Range.Contains(rec.SubmittedAt) || !matchesStatus(rec, filter.Statuses) {
				continue
			}
		}
		records = append(records, repo.db.recordView(rec))
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].SubmittedAt.Equal(records[j].SubmittedAt) {
			return records[i].SubmittedAt.Before(records[j].SubmittedAt)
		}
		if records[i].StudentName.String != records[j].StudentName.String {
			return records[i].StudentName.String < records[j].StudentName.String
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (repo *recordRepository) GetRecord(_ context.Context, id int) (record.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.records[id]; ok {
		return repo.db.recordView(rec), nil
	}
	return record.Record{}, record.ErrNotFound
}

func (repo *recordRepository) TeacherTotals(_ context.Context, dr core.DateRange) ([]record.TeacherTotal, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	byTeacher := make(map[int]*record.TeacherTotal)
	for _, usr := range repo.db.users {
		if usr.Role == user.RoleTeacher {
			byTeacher[usr.ID] = &record.TeacherTotal{TeacherID: usr.ID, Name: usr.Name, Email: usr.Email, TotalAmount: decimal.Zero}
		}
	}
	for _, rec := range repo.db.records {
		tt, ok := byTeacher[rec.SubmittedBy.Int]
		if !rec.SubmittedBy.Valid || !ok || !dr.Contains(rec.SubmittedAt) {
			continue
		}
		tt.RecordsCount++
		tt.TotalAmount = tt.TotalAmount.Add(rec.Paid())
	}

	totals := make([]record.TeacherTotal, 0, len(byTeacher))
	for _, tt := range byTeacher {
		totals = append(totals, *tt)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Name != totals[j].Name {
			return totals[i].Name < totals[j].Name
		}
		return totals[i].TeacherID < totals[j].TeacherID
	})
	return totals, nil
}

// WithinTx holds the write lock for the whole of fn and restores records and students when fn fails.
func (repo *recordRepository) WithinTx(_ context.Context, fn func(tx record.Tx) error) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	records := make(map[int]record.Record, len(repo.db.records))
	for id, rec := range repo.db.records {
		records[id] = rec
	}
	students := make(map[int]student.Student, len(repo.db.students))
	for id, st := range repo.db.students {
		students[id] = st
	}
	seq := repo.db.seq["records"]

	if err := fn(recordTx{db: repo.db}); err != nil {
		repo.db.records = records
		repo.db.students = students
		repo.db.seq["records"] = seq
		return err
	}
	return nil
}

// recordTx runs with the DB write lock held.
type recordTx struct {
	db *DB
}

func (rt recordTx) GetRecord(_ context.Context, id int) (record.Record, error) {
	if rec, ok := rt.db.records[id]; ok {
		return rt.db.recordView(rec), nil
	}
	return record.Record{}, record.ErrNotFound
}

func (rt recordTx) find(studentID int, day time.Time, excludedID int) (record.Record, bool) {
	for _, rec := range rt.db.records {
		if rec.ID != excludedID && rec.StudentID == studentID && rec.SubmittedAt.Equal(day) {
			return rec, true
		}
	}
	return record.Record{}, false
}

func (rt recordTx) FindRecord(_ context.Context, studentID int, day time.Time) (record.Record, error) {
	if rec, ok := rt.find(studentID, day, 0); ok {
		return rt.db.recordView(rec), nil
	}
	return record.Record{}, record.ErrNotFound
}

func (rt recordTx) SaveRecord(_ context.Context, rec record.Record) (record.Record, error) {
	if _, ok := rt.db.students[rec.StudentID]; !ok {
		return record.Record{}, student.ErrNotFound
	}
	if _, clash := rt.find(rec.StudentID, rec.SubmittedAt, rec.ID); clash {
		return record.Record{}, record.ErrDuplicate
	}
	if rec.ID == 0 {
		rec.ID = rt.db.nextID("records")
	} else if _, ok := rt.db.records[rec.ID]; !ok {
		return record.Record{}, record.ErrNotFound
	}
	rec.StudentName, rec.ClassName, rec.TeacherName = null.String{}, null.String{}, null.String{}
	rt.db.records[rec.ID] = rec
	return rt.db.recordView(rec), nil
}

func (rt recordTx) DeleteRecord(_ context.Context, id int) error {
	if _, ok := rt.db.records[id]; !ok {
		return record.ErrNotFound
	}
	delete(rt.db.records, id)
	return nil
}

func (rt recordTx) StudentOwing(_ context.Context, studentID int) (decimal.Decimal, error) {
	st, ok := rt.db.students[studentID]
	if !ok {
		return decimal.Zero, student.ErrNotFound
	}
	return st.Owing, nil
}

func (rt recordTx) SetStudentOwing(_ context.Context, studentID int, owing decimal.Decimal) error {
	st, ok := rt.db.students[studentID]
	if !ok {
		return student.ErrNotFound
	}
	st.Owing = owing
	st.UpdatedAt = core.NowFunc().UTC()
	rt.db.students[studentID] = st
	return nil
}
