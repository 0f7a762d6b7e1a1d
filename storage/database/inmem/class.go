package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/class"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *DB) *classRepository {
	return &classRepository{db: db}
}

// classView fills the read-only fields. The caller holds the lock.
func (db *DB) classView(cls class.Class) class.Class {
	cls.SupervisorName = null.String{}
	if cls.SupervisorID.Valid {
		if usr, ok := db.users[cls.SupervisorID.Int]; ok {
			cls.SupervisorName = null.StringFrom(usr.Name)
		}
	}
	cls.StudentCount = 0
	for _, st := range db.students {
		if st.ClassID.Valid && st.ClassID.Int == cls.ID {
			cls.StudentCount++
		}
	}
	return cls
}

func (repo *classRepository) nameTaken(name string, excludedIDs ...int) bool {
	for _, cls := range repo.db.classes {
		if strings.EqualFold(cls.Name, name) && !isExcluded(cls.ID, excludedIDs) {
			return true
		}
	}
	return false
}

func (repo *classRepository) CheckNameUniqueness(_ context.Context, name string, excludedIDs ...int) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if repo.nameTaken(name, excludedIDs...) {
		return class.ErrNameExists
	}
	return nil
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.nameTaken(cls.Name) {
		return class.Class{}, class.ErrNameExists
	}
	cls.ID = repo.db.nextID("classes")
	repo.db.classes[cls.ID] = cls
	return repo.db.classView(cls), nil
}

func (repo *classRepository) QueryClasses(_ context.Context, filter *class.QueryFilter) ([]class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make([]class.Class, 0, len(repo.db.classes))
	for _, cls := range repo.db.classes {
		if filter != nil {
			if filter.Search != "" && !contains(cls.Name, filter.Search) {
				continue
			}
			if filter.SupervisorID != 0 && cls.SupervisorID.Int != filter.SupervisorID {
				continue
			}
		}
		classes = append(classes, repo.db.classView(cls))
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Name != classes[j].Name {
			return classes[i].Name < classes[j].Name
		}
		return classes[i].ID < classes[j].ID
	})
	return classes, nil
}

func (repo *classRepository) GetClass(_ context.Context, id int) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return repo.db.classView(cls), nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) GetClassBySupervisor(_ context.Context, supervisorID int) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, cls := range repo.db.classes {
		if cls.SupervisorID.Valid && cls.SupervisorID.Int == supervisorID {
			return repo.db.classView(cls), nil
		}
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) UpdateClass(_ context.Context, cls class.Class) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.classes[cls.ID]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	if repo.nameTaken(cls.Name, cls.ID) {
		return class.Class{}, class.ErrNameExists
	}
	orig.Name = cls.Name
	orig.UpdatedAt = cls.UpdatedAt
	repo.db.classes[cls.ID] = orig
	return repo.db.classView(orig), nil
}

func (repo *classRepository) SetSupervisor(_ context.Context, classID int, supervisorID null.Int) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cls, ok := repo.db.classes[classID]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	now := core.NowFunc().UTC()
	if supervisorID.Valid {
		for id, other := range repo.db.classes {
			if id != classID && other.SupervisorID.Valid && other.SupervisorID.Int == supervisorID.Int {
				other.SupervisorID = null.Int{}
				other.UpdatedAt = now
				repo.db.classes[id] = other
			}
		}
	}
	cls.SupervisorID = supervisorID
	cls.UpdatedAt = now
	repo.db.classes[classID] = cls
	return repo.db.classView(cls), nil
}

// DeleteClass detaches the class's students and records, as the database does.
func (repo *classRepository) DeleteClass(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return class.ErrNotFound
	}
	delete(repo.db.classes, id)
	for sid, st := range repo.db.students {
		if st.ClassID.Valid && st.ClassID.Int == id {
			st.ClassID = null.Int{}
			repo.db.students[sid] = st
		}
	}
	for rid, rec := range repo.db.records {
		if rec.ClassID.Valid && rec.ClassID.Int == id {
			rec.ClassID = null.Int{}
			repo.db.records[rid] = rec
		}
	}
	return nil
}
