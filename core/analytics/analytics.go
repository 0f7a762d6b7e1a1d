// Package analytics computes the dashboards of admins and teachers.
package analytics

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/expense"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
)

// RecordFilter scopes record statistics. Zero fields are ignored.
type RecordFilter struct {
	ClassID int
	TermID  int
	Range   core.DateRange
}

// ExpenseFilter scopes expense statistics. Zero fields are ignored.
type ExpenseFilter struct {
	TermID int
	Range  core.DateRange
}

// RecordStats aggregates records by status. Absent records are counted apart whatever their payment,
// but PaidAmount includes what was paid for absent days.
type RecordStats struct {
	Count        int             `json:"count" db:"count"`
	PaidCount    int             `json:"paid_count" db:"paid_count"`
	PaidAmount   decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	UnpaidCount  int             `json:"unpaid_count" db:"unpaid_count"`
	UnpaidAmount decimal.Decimal `json:"unpaid_amount" db:"unpaid_amount"`
	AbsentCount  int             `json:"absent_count" db:"absent_count"`
}

type CountAmount struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type AdminDashboard struct {
	TermID           null.Int        `json:"term_id"`
	TotalTeachers    int             `json:"total_teachers"`
	TotalStudents    int             `json:"total_students"`
	TotalClasses     int             `json:"total_classes"`
	TotalCollections decimal.Decimal `json:"total_collections"`
	Expenses         int             `json:"expenses"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	Balance          decimal.Decimal `json:"balance"`
	TotalOwing       decimal.Decimal `json:"total_owing"`
	Amount           decimal.Decimal `json:"amount"`
}

type TeacherDashboard struct {
	ClassID        int             `json:"class_id"`
	TermID         null.Int        `json:"term_id"`
	From           core.Date       `json:"from"`
	To             core.Date       `json:"to"`
	TotalStudents  int             `json:"total_students"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidStudents   CountAmount     `json:"paid_students"`
	UnpaidStudents CountAmount     `json:"unpaid_students"`
	AbsentStudents int             `json:"absent_students"`
}

type TermSummary struct {
	Term         term.Term       `json:"term"`
	Collections  decimal.Decimal `json:"collections"`
	Expenses     decimal.Decimal `json:"expenses"`
	Balance      decimal.Decimal `json:"balance"`
	RecordsCount int             `json:"records_count"`
}

type (
	Repository interface {
		CountUsers(ctx context.Context, role string) (int, error)
		CountStudents(ctx context.Context, classID int) (int, error) // every student when classID is 0
		CountClasses(ctx context.Context) (int, error)
		TotalOwing(ctx context.Context) (decimal.Decimal, error)
		RecordStats(ctx context.Context, filter RecordFilter) (RecordStats, error)
		ExpenseStats(ctx context.Context, filter ExpenseFilter) (expense.Summary, error)
	}

	TermFinder interface {
		Query(ctx context.Context) ([]term.Term, error)
		GetByID(ctx context.Context, id int) (term.Term, error)
	}

	PriceGetter interface {
		Price(ctx context.Context) (decimal.Decimal, error)
	}

	Service struct {
		repo   Repository
		terms  TermFinder
		prices PriceGetter
	}
)

func NewService(repo Repository, terms TermFinder, prices PriceGetter) *Service {
	return &Service{repo: repo, terms: terms, prices: prices}
}

// AdminDashboard sums up the whole canteen, or a single term when termID is set.
func (svc *Service) AdminDashboard(ctx context.Context, termID int) (AdminDashboard, error) {
	var dash AdminDashboard
	if termID != 0 {
		if _, err := svc.terms.GetByID(ctx, termID); err != nil {
			return dash, err
		}
		dash.TermID = null.IntFrom(termID)
	}

	var err error
	if dash.TotalTeachers, err = svc.repo.CountUsers(ctx, user.RoleTeacher); err != nil {
		return dash, errors.Wrap(err, "counting teachers")
	}
	if dash.TotalStudents, err = svc.repo.CountStudents(ctx, 0); err != nil {
		return dash, errors.Wrap(err, "counting students")
	}
	if dash.TotalClasses, err = svc.repo.CountClasses(ctx); err != nil {
		return dash, errors.Wrap(err, "counting classes")
	}
	if dash.TotalOwing, err = svc.repo.TotalOwing(ctx); err != nil {
		return dash, errors.Wrap(err, "summing owing")
	}
	if dash.Amount, err = svc.prices.Price(ctx); err != nil {
		return dash, errors.Wrap(err, "getting price")
	}

	stats, err := svc.repo.RecordStats(ctx, RecordFilter{TermID: termID})
	if err != nil {
		return dash, errors.Wrap(err, "computing record stats")
	}
	exp, err := svc.repo.ExpenseStats(ctx, ExpenseFilter{TermID: termID})
	if err != nil {
		return dash, errors.Wrap(err, "computing expense stats")
	}
	dash.TotalCollections = stats.PaidAmount
	dash.Expenses = exp.Count
	dash.TotalExpenses = exp.TotalAmount
	dash.Balance = stats.PaidAmount.Sub(exp.TotalAmount)
	return dash, nil
}

// TeacherDashboard sums up a class for today, or over a term when termID is set.
func (svc *Service) TeacherDashboard(ctx context.Context, classID, termID int) (TeacherDashboard, error) {
	dash := TeacherDashboard{ClassID: classID}
	filter := RecordFilter{ClassID: classID}
	if termID != 0 {
		t, err := svc.terms.GetByID(ctx, termID)
		if err != nil {
			return dash, err
		}
		dash.TermID = null.IntFrom(t.ID)
		filter.TermID = t.ID
		dash.From, dash.To = core.Date{Time: t.StartDate}, core.Date{Time: t.EndDate}
	} else {
		today := core.Today()
		filter.Range = core.DateRange{From: today, To: today}
		dash.From, dash.To = core.Date{Time: today}, core.Date{Time: today}
	}

	var err error
	if dash.TotalStudents, err = svc.repo.CountStudents(ctx, classID); err != nil {
		return dash, errors.Wrap(err, "counting students")
	}
	price, err := svc.prices.Price(ctx)
	if err != nil {
		return dash, errors.Wrap(err, "getting price")
	}
	stats, err := svc.repo.RecordStats(ctx, filter)
	if err != nil {
		return dash, errors.Wrap(err, "computing record stats")
	}

	dash.TotalAmount = price.Mul(decimal.NewFromInt(int64(dash.TotalStudents)))
	dash.PaidStudents = CountAmount{Count: stats.PaidCount, Amount: stats.PaidAmount}
	dash.UnpaidStudents = CountAmount{Count: stats.UnpaidCount, Amount: stats.UnpaidAmount}
	dash.AbsentStudents = stats.AbsentCount
	return dash, nil
}

// AllTerms returns collections, expenses and balance of every term, most recent first.
func (svc *Service) AllTerms(ctx context.Context) ([]TermSummary, error) {
	terms, err := svc.terms.Query(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying terms")
	}
	summaries := make([]TermSummary, 0, len(terms))
	for _, t := range terms {
		stats, err := svc.repo.RecordStats(ctx, RecordFilter{TermID: t.ID})
		if err != nil {
			return nil, errors.Wrapf(err, "computing record stats of term %d", t.ID)
		}
		exp, err := svc.repo.ExpenseStats(ctx, ExpenseFilter{TermID: t.ID})
		if err != nil {
			return nil, errors.Wrapf(err, "computing expense stats of term %d", t.ID)
		}
		summaries = append(summaries, TermSummary{
			Term:         t,
			Collections:  stats.PaidAmount,
			Expenses:     exp.TotalAmount,
			Balance:      stats.PaidAmount.Sub(exp.TotalAmount),
			RecordsCount: stats.Count,
		})
	}
	return summaries, nil
}
