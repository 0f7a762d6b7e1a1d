// Package inmemdb implements the core repositories in memory. It backs tests and local demos.
package inmemdb

import (
	"strings"
	"sync"
	"time"

	"github.com/greesoft/canteen/core/class"
	"github.com/greesoft/canteen/core/expense"
	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/setting"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
)

// DB holds every table behind a single mutex.
type DB struct {
	mutex sync.RWMutex
	seq   map[string]int

	users      map[int]user.User
	otps       map[int]user.OTP // by user ID
	classes    map[int]class.Class
	students   map[int]student.Student
	terms      map[int]term.Term
	settings   map[string]setting.Setting
	records    map[int]record.Record
	references map[int]expense.Reference
	expenses   map[int]expense.Expense
}

func NewDB() *DB {
	db := &DB{}
	db.reset()
	return db
}

func (db *DB) reset() {
	db.seq = make(map[string]int)
	db.users = make(map[int]user.User)
	db.otps = make(map[int]user.OTP)
	db.classes = make(map[int]class.Class)
	db.students = make(map[int]student.Student)
	db.terms = make(map[int]term.Term)
	db.settings = make(map[string]setting.Setting)
	db.records = make(map[int]record.Record)
	db.references = make(map[int]expense.Reference)
	db.expenses = make(map[int]expense.Expense)
}

// Flush empties every table.
func (db *DB) Flush() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.reset()
}

func (db *DB) nextID(table string) int {
	db.seq[table]++
	return db.seq[table]
}

func isExcluded(id int, excludedIDs []int) bool {
	for _, excl := range excludedIDs {
		if id == excl {
			return true
		}
	}
	return false
}

func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func hasString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
