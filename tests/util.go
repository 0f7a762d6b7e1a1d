package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/apps"
	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/class"
	"github.com/greesoft/canteen/core/setting"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
	inmemdb "github.com/greesoft/canteen/storage/database/inmem"
)

// NewRepositories backs every repository with db.
func NewRepositories(db *inmemdb.DB) apps.Repositories {
	return apps.Repositories{
		User:      inmemdb.NewUserRepository(db),
		Class:     inmemdb.NewClassRepository(db),
		Student:   inmemdb.NewStudentRepository(db),
		Term:      inmemdb.NewTermRepository(db),
		Setting:   inmemdb.NewSettingRepository(db),
		Record:    inmemdb.NewRecordRepository(db),
		Expense:   inmemdb.NewExpenseRepository(db),
		Analytics: inmemdb.NewAnalyticsRepository(db),
	}
}

// NewValidator returns a validator with every custom tag registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// FreezeTime pins core.NowFunc to now for the duration of the test.
func FreezeTime(t *testing.T, now time.Time) {
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		Phone:     "0810000000",
		Gender:    user.GenderFemale,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, repo class.Repository, name string, supervisorID int) class.Class {
	now := time.Now().UTC()
	cls := class.Class{Name: name, CreatedAt: now, UpdatedAt: now}
	if supervisorID != 0 {
		cls.SupervisorID = null.IntFrom(supervisorID)
	}
	cls, err := repo.CreateClass(context.Background(), cls)
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

func CreateStudent(t *testing.T, repo student.Repository, name string, classID int, owing decimal.Decimal) student.Student {
	now := time.Now().UTC()
	st := student.Student{Name: name, Age: 10, Gender: "male", Owing: owing, CreatedAt: now, UpdatedAt: now}
	if classID != 0 {
		st.ClassID = null.IntFrom(classID)
	}
	st, err := repo.CreateStudent(context.Background(), st)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}

// CreateTerm creates a term spanning from..to (calendar days).
func CreateTerm(t *testing.T, repo term.Repository, name string, from, to time.Time, active bool) term.Term {
	now := time.Now().UTC()
	tm := term.Term{
		Name:      name,
		Year:      from.Year(),
		StartDate: core.Day(from),
		EndDate:   core.Day(to),
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tm, err := repo.CreateTerm(context.Background(), tm)
	if err != nil {
		t.Fatalf("CreateTerm() failed: %v", err)
	}
	return tm
}

func SetAmount(t *testing.T, repo setting.Repository, amount string) {
	now := time.Now().UTC()
	_, err := repo.SaveSetting(context.Background(), setting.Setting{
		Name:      setting.AmountName,
		Value:     amount,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("SetAmount() failed: %v", err)
	}
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
