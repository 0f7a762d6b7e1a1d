// Package apps holds what the binaries share: the wiring of repositories into services.
package apps

import (
	"github.com/jmoiron/sqlx"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/analytics"
	"github.com/greesoft/canteen/core/class"
	"github.com/greesoft/canteen/core/expense"
	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/setting"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
	sqlxrepos "github.com/greesoft/canteen/storage/database/sqlx"
)

type Services struct {
	User      *user.Service
	Class     *class.Service
	Student   *student.Service
	Term      *term.Service
	Setting   *setting.Service
	Record    *record.Service
	Expense   *expense.Service
	Analytics *analytics.Service
}

// Repositories groups one implementation of every domain repository.
type Repositories struct {
	User      user.Repository
	Class     class.Repository
	Student   student.Repository
	Term      term.Repository
	Setting   setting.Repository
	Record    record.Repository
	Expense   expense.Repository
	Analytics analytics.Repository
}

func NewSQLRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		User:      sqlxrepos.NewUserRepository(db),
		Class:     sqlxrepos.NewClassRepository(db),
		Student:   sqlxrepos.NewStudentRepository(db),
		Term:      sqlxrepos.NewTermRepository(db),
		Setting:   sqlxrepos.NewSettingRepository(db),
		Record:    sqlxrepos.NewRecordRepository(db),
		Expense:   sqlxrepos.NewExpenseRepository(db),
		Analytics: sqlxrepos.NewAnalyticsRepository(db),
	}
}

func NewServices(conf *core.Config, repos Repositories, mailSvc core.EmailService) *Services {
	usrSvc := user.NewService(repos.User, mailSvc, conf)
	clsSvc := class.NewService(repos.Class, usrSvc)
	stSvc := student.NewService(repos.Student, clsSvc)
	termSvc := term.NewService(repos.Term)
	setSvc := setting.NewService(repos.Setting)

	return &Services{
		User:    usrSvc,
		Class:   clsSvc,
		Student: stSvc,
		Term:    termSvc,
		Setting: setSvc,
		Record: record.NewService(record.Deps{
			Repo:     repos.Record,
			Classes:  clsSvc,
			Students: stSvc,
			Terms:    termSvc,
			Prices:   setSvc,
			Teachers: usrSvc,
		}),
		Expense:   expense.NewService(repos.Expense, termSvc),
		Analytics: analytics.NewService(repos.Analytics, termSvc, setSvc),
	}
}
