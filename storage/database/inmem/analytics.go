package inmemdb

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/greesoft/canteen/core/analytics"
	"github.com/greesoft/canteen/core/expense"
)

type analyticsRepository struct {
	db *DB
}

var _ analytics.Repository = (*analyticsRepository)(nil) // interface compliance check

func NewAnalyticsRepository(db *DB) *analyticsRepository {
	return &analyticsRepository{db: db}
}

func (repo *analyticsRepository) CountUsers(_ context.Context, role string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, usr := range repo.db.users {
		if role == "" || usr.Role == role {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *analyticsRepository) CountStudents(_ context.Context, classID int) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var cnt int
	for _, st := range repo.db.students {
		if classID == 0 || (st.ClassID.Valid && st.ClassID.Int == classID) {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *analyticsRepository) CountClasses(_ context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.classes), nil
}

func (repo *analyticsRepository) TotalOwing(_ context.Context) (decimal.Decimal, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	total := decimal.Zero
	for _, st := range repo.db.students {
		if st.Owing.IsPositive() {
			total = total.Add(st.Owing)
		}
	}
	return total, nil
}

func (repo *analyticsRepository) RecordStats(_ context.Context, filter analytics.RecordFilter) (analytics.RecordStats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stats := analytics.RecordStats{PaidAmount: decimal.Zero, UnpaidAmount: decimal.Zero}
	for _, rec := range repo.db.records {
		if filter.ClassID != 0 && rec.ClassID.Int != filter.ClassID {
			continue
		}
		if filter.TermID != 0 && rec.TermID.Int != filter.TermID {
			continue
		}
		if !filter.Range.Contains(rec.SubmittedAt) {
			continue
		}
		stats.Count++
		stats.PaidAmount = stats.PaidAmount.Add(rec.Paid())
		switch {
		case rec.IsAbsent:
			stats.AbsentCount++
		case rec.HasPaid:
			stats.PaidCount++
		default:
			stats.UnpaidCount++
			stats.UnpaidAmount = stats.UnpaidAmount.Add(rec.SettingsAmount)
		}
	}
	return stats, nil
}

func (repo *analyticsRepository) ExpenseStats(_ context.Context, filter analytics.ExpenseFilter) (expense.Summary, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	s := expense.Summary{TotalAmount: decimal.Zero}
	for _, exp := range repo.db.expenses {
		if filter.TermID != 0 && exp.TermID.Int != filter.TermID {
			continue
		}
		if !filter.Range.Contains(exp.Date) {
			continue
		}
		s.Count++
		s.TotalAmount = s.TotalAmount.Add(exp.Amount)
	}
	return s, nil
}
