package record_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greesoft/canteen/apps"
	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/class"
	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
	emailsvc "github.com/greesoft/canteen/services/email"
	inmemdb "github.com/greesoft/canteen/storage/database/inmem"
	testutil "github.com/greesoft/canteen/tests"
)

var now = time.Date(2024, time.March, 5, 10, 30, 0, 0, time.UTC)

type fixture struct {
	repos   apps.Repositories
	svc     *record.Service
	teacher user.User
	cls     class.Class
	other   class.Class
	term    term.Term
	// initial owing of every student, to check the balance invariant
	initial map[int]decimal.Decimal
}

func setup(t *testing.T, withTerm bool) *fixture {
	testutil.FreezeTime(t, now)
	conf := core.NewTestConfig()
	repos := testutil.NewRepositories(inmemdb.NewDB())
	svcs := apps.NewServices(conf, repos, emailsvc.NewConsoleServiceMock(conf))

	f := &fixture{repos: repos, svc: svcs.Record, initial: make(map[int]decimal.Decimal)}
	f.teacher = testutil.CreateUser(t, repos.User, "Teacher", "teacher@test.cd", "", user.RoleTeacher, true)
	f.cls = testutil.CreateClass(t, repos.Class, "Grade 1", f.teacher.ID)
	f.other = testutil.CreateClass(t, repos.Class, "Grade 2", 0)
	if withTerm {
		f.term = testutil.CreateTerm(t, repos.Term, "Term 1", now.AddDate(0, -2, 0), now.AddDate(0, 1, 0), true)
	}
	testutil.SetAmount(t, repos.Setting, "10.00")
	return f
}

func (f *fixture) student(t *testing.T, name string, classID int, owing string) student.Student {
	st := testutil.CreateStudent(t, f.repos.Student, name, classID, testutil.Dec(owing))
	f.initial[st.ID] = st.Owing
	return st
}

func (f *fixture) owing(t *testing.T, id int) decimal.Decimal {
	st, err := f.repos.Student.GetStudent(context.Background(), id)
	require.NoError(t, err)
	return st.Owing
}

// checkBalances asserts that every student's owing equals their initial owing plus what their records charged.
func (f *fixture) checkBalances(t *testing.T) {
	records, err := f.svc.Query(context.Background(), nil)
	require.NoError(t, err)
	charged := make(map[int]decimal.Decimal)
	for _, rec := range records {
		charged[rec.StudentID] = charged[rec.StudentID].Add(rec.Charged)
	}
	for id, initial := range f.initial {
		assert.True(t, initial.Add(charged[id]).Equal(f.owing(t, id)), "student %d: owing %s, want %s", id, f.owing(t, id), initial.Add(charged[id]))
	}
}

func decEqual(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	assert.True(t, testutil.Dec(want).Equal(got), append([]interface{}{"got %s, want %s", got, want}, msgAndArgs...)...)
}

func TestService_GenerateDaily(t *testing.T) {
	ctx := context.Background()

	t.Run("no current term", func(t *testing.T) {
		f := setup(t, false)
		f.student(t, "Awe", f.cls.ID, "0")
		_, err := f.svc.GenerateDaily(ctx, record.GenerateRecords{})
		assert.Equal(t, term.ErrNoCurrent, errors.Cause(err))
	})

	t.Run("day outside term", func(t *testing.T) {
		f := setup(t, true)
		_, err := f.svc.GenerateDaily(ctx, record.GenerateRecords{Date: core.Date{Time: core.Day(now.AddDate(1, 0, 0))}})
		assert.Equal(t, term.ErrNoCurrent, errors.Cause(err))
	})

	t.Run("unknown class", func(t *testing.T) {
		f := setup(t, true)
		_, err := f.svc.GenerateDaily(ctx, record.GenerateRecords{ClassID: 99})
		assert.Equal(t, class.ErrNotFound, errors.Cause(err))
	})

	t.Run("creates pending records once", func(t *testing.T) {
		f := setup(t, true)
		awe := f.student(t, "Awe", f.cls.ID, "15")
		f.student(t, "Bob", f.cls.ID, "0")
		f.student(t, "Cid", f.other.ID, "0")
		f.student(t, "Dan", 0, "0") // no class

		res, err := f.svc.GenerateDaily(ctx, record.GenerateRecords{})
		require.NoError(t, err)
		assert.Equal(t, 3, res.CreatedRecords)
		assert.Empty(t, res.SkippedRecords)
		assert.True(t, res.Date.Equal(core.Day(now)))

		records, err := f.svc.Query(ctx, &record.QueryFilter{StudentID: awe.ID})
		require.NoError(t, err)
		require.Len(t, records, 1)
		rec := records[0]
		assert.Equal(t, record.StatusUnpaid, rec.Status())
		decEqual(t, "0", rec.Charged)
		decEqual(t, "10", rec.SettingsAmount)
		decEqual(t, "15", rec.OwingBefore)
		decEqual(t, "15", rec.OwingAfter)
		assert.Equal(t, f.term.ID, rec.TermID.Int)
		assert.Equal(t, f.teacher.ID, rec.SubmittedBy.Int)
		decEqual(t, "15", f.owing(t, awe.ID))

		res, err = f.svc.GenerateDaily(ctx, record.GenerateRecords{ClassID: f.cls.ID})
		require.NoError(t, err)
		assert.Equal(t, 0, res.CreatedRecords)
		assert.Len(t, res.SkippedRecords, 2)
		f.checkBalances(t)
	})

	t.Run("zero price", func(t *testing.T) {
		f := setup(t, true)
		testutil.SetAmount(t, f.repos.Setting, "0")
		f.student(t, "Awe", f.cls.ID, "0")

		res, err := f.svc.GenerateDaily(ctx, record.GenerateRecords{ClassID: f.cls.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, res.CreatedRecords)
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	f := setup(t, true)
	awe := f.student(t, "Awe", f.cls.ID, "5")
	bob := f.student(t, "Bob", f.cls.ID, "0")
	cid := f.student(t, "Cid", f.cls.ID, "0")
	dan := f.student(t, "Dan", f.other.ID, "0")

	t.Run("student of another class", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, record.SubmitRecords{
			ClassID: f.cls.ID,
			Paid:    []record.StudentEntry{{StudentID: awe.ID}, {StudentID: dan.ID}},
		}, f.teacher.ID)
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr))
		// nothing written
		records, err := f.svc.Query(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("day outside term", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, record.SubmitRecords{
			ClassID: f.cls.ID,
			Date:    core.Date{Time: core.Day(now.AddDate(0, 2, 0))},
			Paid:    []record.StudentEntry{{StudentID: awe.ID}},
		}, f.teacher.ID)
		assert.Equal(t, term.ErrNoCurrent, errors.Cause(err))
	})

	t.Run("first submission", func(t *testing.T) {
		records, err := f.svc.Submit(ctx, record.SubmitRecords{
			ClassID: f.cls.ID,
			Paid:    []record.StudentEntry{{StudentID: awe.ID}},
			Unpaid:  []record.StudentEntry{{StudentID: bob.ID}},
			Absent:  []record.StudentEntry{{StudentID: cid.ID}},
		}, f.teacher.ID)
		require.NoError(t, err)
		require.Len(t, records, 3)

		paid := records[0]
		assert.True(t, paid.HasPaid)
		decEqual(t, "10", paid.Amount, "paid amount defaults to the price")
		decEqual(t, "0", paid.Charged)
		decEqual(t, "5", paid.OwingBefore)
		decEqual(t, "5", paid.OwingAfter)

		unpaid := records[1]
		decEqual(t, "10", unpaid.Charged)
		decEqual(t, "0", unpaid.OwingBefore)
		decEqual(t, "10", unpaid.OwingAfter)

		absent := records[2]
		assert.Equal(t, record.StatusAbsent, absent.Status())
		decEqual(t, "0", absent.Charged)

		decEqual(t, "5", f.owing(t, awe.ID))
		decEqual(t, "10", f.owing(t, bob.ID))
		decEqual(t, "0", f.owing(t, cid.ID))
		f.checkBalances(t)
	})

	t.Run("resubmission moves by the difference", func(t *testing.T) {
		records, err := f.svc.Submit(ctx, record.SubmitRecords{
			ClassID: f.cls.ID,
			Paid:    []record.StudentEntry{{StudentID: bob.ID, Amount: testutil.Dec("25")}},
			Unpaid:  []record.StudentEntry{{StudentID: awe.ID}},
		}, f.teacher.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)

		// 25 paid on a 10 price leaves 15 of credit
		decEqual(t, "-15", records[0].Charged)
		decEqual(t, "10", records[0].OwingBefore)
		decEqual(t, "-15", records[0].OwingAfter)
		decEqual(t, "-15", f.owing(t, bob.ID))

		decEqual(t, "15", f.owing(t, awe.ID))

		all, err := f.svc.Query(ctx, &record.QueryFilter{ClassID: f.cls.ID})
		require.NoError(t, err)
		assert.Len(t, all, 3, "one record per student and day")
		f.checkBalances(t)
	})
}

func TestService_Prepay(t *testing.T) {
	ctx := context.Background()

	t.Run("no current term", func(t *testing.T) {
		f := setup(t, false)
		awe := f.student(t, "Awe", f.cls.ID, "0")
		_, err := f.svc.Prepay(ctx, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec("30")}, f.teacher.ID)
		assert.Equal(t, term.ErrNoCurrent, errors.Cause(err))
	})

	t.Run("too few", func(t *testing.T) {
		f := setup(t, true)
		awe := f.student(t, "Awe", f.cls.ID, "0")
		_, err := f.svc.Prepay(ctx, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec("5")}, f.teacher.ID)
		assert.Equal(t, record.ErrTooFewPrepay, errors.Cause(err))
	})

	t.Run("too many", func(t *testing.T) {
		f := setup(t, true)
		awe := f.student(t, "Awe", f.cls.ID, "0")
		for _, total := range []string{"3670", "100000000000000000000000"} {
			_, err := f.svc.Prepay(ctx, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec(total)}, f.teacher.ID)
			var verr *core.ValidationError
			require.True(t, errors.As(err, &verr), total)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, "set_amount", verr.Fields[0].Field)
		}
		all, err := f.svc.Query(ctx, &record.QueryFilter{StudentID: awe.ID})
		require.NoError(t, err)
		assert.Empty(t, all)
		decEqual(t, "0", f.owing(t, awe.ID))

		res, err := f.svc.Prepay(ctx, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec("3669")}, f.teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, record.MaxPrepaidDays, res.Days)
	})

	t.Run("price not set", func(t *testing.T) {
		f := setup(t, true)
		testutil.SetAmount(t, f.repos.Setting, "0")
		awe := f.student(t, "Awe", f.cls.ID, "0")
		_, err := f.svc.Prepay(ctx, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec("50")}, f.teacher.ID)
		assert.Equal(t, record.ErrPriceNotSet, errors.Cause(err))
	})

	t.Run("unknown student", func(t *testing.T) {
		f := setup(t, true)
		_, err := f.svc.Prepay(ctx, record.SubmitPrepaid{StudentID: 99, Total: testutil.Dec("50")}, f.teacher.ID)
		var verr *core.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("consecutive days from today", func(t *testing.T) {
		f := setup(t, true)
		awe := f.student(t, "Awe", f.cls.ID, "20")
		// today already recorded unpaid
		_, err := f.svc.Submit(ctx, record.SubmitRecords{ClassID: f.cls.ID, Unpaid: []record.StudentEntry{{StudentID: awe.ID}}}, f.teacher.ID)
		require.NoError(t, err)
		decEqual(t, "30", f.owing(t, awe.ID))

		res, err := f.svc.Prepay(ctx, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec("35")}, f.teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Days)
		decEqual(t, "10", res.Amount)
		decEqual(t, "5", res.Remainder)
		require.Len(t, res.Records, 3)
		for i, rec := range res.Records {
			assert.True(t, rec.SubmittedAt.Equal(core.Day(now).AddDate(0, 0, i)))
			assert.True(t, rec.HasPaid)
			assert.True(t, rec.IsPrepaid)
			decEqual(t, "0", rec.Charged)
		}
		// today's debt is settled, the balance goes back to the initial one
		decEqual(t, "20", f.owing(t, awe.ID))
		f.checkBalances(t)
	})

	t.Run("custom amount", func(t *testing.T) {
		f := setup(t, true)
		awe := f.student(t, "Awe", f.cls.ID, "0")
		res, err := f.svc.Prepay(ctx, record.SubmitPrepaid{StudentID: awe.ID, Total: testutil.Dec("24"), Amount: testutil.Dec("12")}, f.teacher.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Days)
		// 12 paid on a 10 price: 2 of credit per day
		decEqual(t, "-4", f.owing(t, awe.ID))
		f.checkBalances(t)
	})
}

func TestService_SubmitRoundsAmounts(t *testing.T) {
	ctx := context.Background()
	f := setup(t, true)
	awe := f.student(t, "Awe", f.cls.ID, "0")

	records, err := f.svc.Submit(ctx, record.SubmitRecords{
		ClassID: f.cls.ID,
		Paid:    []record.StudentEntry{{StudentID: awe.ID, Amount: testutil.Dec("10.004")}},
	}, f.teacher.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	decEqual(t, "10", records[0].Amount)
	decEqual(t, "0", records[0].Charged)
	decEqual(t, "0", f.owing(t, awe.ID))
	f.checkBalances(t)
}

func TestService_UpdateStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	f := setup(t, true)
	awe := f.student(t, "Awe", f.cls.ID, "0")

	records, err := f.svc.Submit(ctx, record.SubmitRecords{ClassID: f.cls.ID, Unpaid: []record.StudentEntry{{StudentID: awe.ID}}}, f.teacher.ID)
	require.NoError(t, err)
	id := records[0].ID
	decEqual(t, "10", f.owing(t, awe.ID))

	yes, no := true, false
	tests := []struct {
		name      string
		update    record.UpdateStatus
		wantOwing string
		status    string
	}{
		{name: "absent", update: record.UpdateStatus{IsAbsent: &yes}, wantOwing: "0", status: record.StatusAbsent},
		{name: "absent and paid", update: record.UpdateStatus{HasPaid: &yes}, wantOwing: "-10", status: record.StatusAbsent},
		{name: "present and paid", update: record.UpdateStatus{IsAbsent: &no}, wantOwing: "0", status: record.StatusPaid},
		{name: "unpaid again", update: record.UpdateStatus{HasPaid: &no}, wantOwing: "10", status: record.StatusUnpaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := f.svc.UpdateStatus(ctx, id, tt.update)
			require.NoError(t, err)
			assert.Equal(t, tt.status, rec.Status())
			decEqual(t, tt.wantOwing, f.owing(t, awe.ID))
			decEqual(t, tt.wantOwing, rec.OwingAfter)
			f.checkBalances(t)
		})
	}

	t.Run("update unknown", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, 99, record.UpdateStatus{HasPaid: &yes})
		assert.Equal(t, record.ErrNotFound, errors.Cause(err))
	})

	t.Run("update moves day", func(t *testing.T) {
		rec, err := f.svc.Update(ctx, id, record.UpdateRecord{Date: core.Date{Time: core.Day(now).AddDate(0, 0, -1)}})
		require.NoError(t, err)
		assert.True(t, rec.SubmittedAt.Equal(core.Day(now).AddDate(0, 0, -1)))
		assert.Equal(t, f.term.ID, rec.TermID.Int)
		decEqual(t, "10", f.owing(t, awe.ID))
	})

	t.Run("update out of the term clears it", func(t *testing.T) {
		before := core.Day(f.term.StartDate).AddDate(0, 0, -7)
		rec, err := f.svc.Update(ctx, id, record.UpdateRecord{Date: core.Date{Time: before}})
		require.NoError(t, err)
		assert.False(t, rec.TermID.Valid)
		rec, err = f.svc.GetByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, rec.TermID.Valid)
		recs, err := f.svc.Query(ctx, &record.QueryFilter{TermID: f.term.ID})
		require.NoError(t, err)
		assert.Empty(t, recs)

		rec, err = f.svc.Update(ctx, id, record.UpdateRecord{Date: core.Date{Time: core.Day(now).AddDate(0, 0, -1)}})
		require.NoError(t, err)
		assert.Equal(t, f.term.ID, rec.TermID.Int)
		decEqual(t, "10", f.owing(t, awe.ID))
	})

	t.Run("update rounds the amount to cents", func(t *testing.T) {
		amount := testutil.Dec("12.349")
		rec, err := f.svc.Update(ctx, id, record.UpdateRecord{HasPaid: &yes, Amount: &amount})
		require.NoError(t, err)
		decEqual(t, "12.35", rec.Amount)
		decEqual(t, "-2.35", f.owing(t, awe.ID))
		f.checkBalances(t)

		_, err = f.svc.UpdateStatus(ctx, id, record.UpdateStatus{HasPaid: &no})
		require.NoError(t, err)
		decEqual(t, "10", f.owing(t, awe.ID))
	})

	t.Run("update onto an existing day", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, record.SubmitRecords{ClassID: f.cls.ID, Absent: []record.StudentEntry{{StudentID: awe.ID}}}, f.teacher.ID)
		require.NoError(t, err)
		_, err = f.svc.Update(ctx, id, record.UpdateRecord{Date: core.Date{Time: core.Day(now)}})
		assert.Equal(t, record.ErrDuplicate, errors.Cause(err))
		f.checkBalances(t)
	})

	t.Run("delete gives back the charge", func(t *testing.T) {
		require.NoError(t, f.svc.Delete(ctx, id))
		decEqual(t, "0", f.owing(t, awe.ID))
		_, err := f.svc.GetByID(ctx, id)
		assert.Equal(t, record.ErrNotFound, errors.Cause(err))
		assert.Equal(t, record.ErrNotFound, errors.Cause(f.svc.Delete(ctx, id)))
	})
}

func TestService_ByClassAndSubmissions(t *testing.T) {
	ctx := context.Background()
	f := setup(t, true)
	awe := f.student(t, "Awe", f.cls.ID, "0")
	f.student(t, "Bob", f.cls.ID, "0")
	cid := f.student(t, "Cid", f.other.ID, "0")

	_, err := f.svc.Submit(ctx, record.SubmitRecords{ClassID: f.cls.ID, Paid: []record.StudentEntry{{StudentID: awe.ID}}}, f.teacher.ID)
	require.NoError(t, err)

	cd, err := f.svc.ByClass(ctx, f.cls.ID, core.Date{})
	require.NoError(t, err)
	assert.Len(t, cd.PaidStudents, 1)
	assert.Len(t, cd.UnpaidStudents, 1, "missing record created")
	assert.Empty(t, cd.AbsentStudents)

	_, err = f.svc.Submit(ctx, record.SubmitRecords{ClassID: f.other.ID, Absent: []record.StudentEntry{{StudentID: cid.ID}}}, f.teacher.ID)
	require.NoError(t, err)

	subs, err := f.svc.Submissions(ctx, core.Date{}, 0)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "Grade 1", subs[0].ClassName)
	decEqual(t, "10", subs[0].TotalAmount)
	assert.Len(t, subs[1].AbsentStudents, 1)

	subs, err = f.svc.Submissions(ctx, core.Date{Time: core.Day(now).AddDate(0, 0, -3)}, 0)
	require.NoError(t, err)
	assert.Empty(t, subs)

	list, err := f.svc.StudentRecordsByClass(ctx, f.cls.ID, core.Date{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	_, err = f.svc.StudentRecordsByClass(ctx, 99, core.Date{})
	assert.Equal(t, class.ErrNotFound, errors.Cause(err))
}

func TestService_TeacherReports(t *testing.T) {
	ctx := context.Background()

	t.Run("no teachers", func(t *testing.T) {
		f := setup(t, true)
		require.NoError(t, f.repos.User.DeleteUsersByID(ctx, f.teacher.ID))
		_, err := f.svc.TeacherSummaries(ctx, core.DateRange{})
		assert.Equal(t, record.ErrNoTeachers, errors.Cause(err))
	})

	f := setup(t, true)
	idle := testutil.CreateUser(t, f.repos.User, "Idle", "idle@test.cd", "", user.RoleTeacher, true)
	awe := f.student(t, "Awe", f.cls.ID, "0")
	bob := f.student(t, "Bob", f.cls.ID, "0")
	_, err := f.svc.Submit(ctx, record.SubmitRecords{
		ClassID: f.cls.ID,
		Paid:    []record.StudentEntry{{StudentID: awe.ID}, {StudentID: bob.ID, Amount: testutil.Dec("15")}},
	}, f.teacher.ID)
	require.NoError(t, err)

	totals, err := f.svc.TeacherSummaries(ctx, core.DateRange{From: core.Day(now), To: core.Day(now)})
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, idle.ID, totals[0].TeacherID)
	assert.Equal(t, 0, totals[0].RecordsCount)
	assert.Equal(t, f.teacher.ID, totals[1].TeacherID)
	assert.Equal(t, 2, totals[1].RecordsCount)
	decEqual(t, "25", totals[1].TotalAmount)

	detail, err := f.svc.TeacherDetail(ctx, f.teacher.ID, core.DateRange{})
	require.NoError(t, err)
	assert.Len(t, detail.Records, 2)
	decEqual(t, "25", detail.TotalAmount)

	_, err = f.svc.TeacherDetail(ctx, 99, core.DateRange{})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	_, err = f.svc.ByTeacher(ctx, idle.ID)
	assert.Equal(t, record.ErrNoRecords, errors.Cause(err))
	records, err := f.svc.ByTeacher(ctx, f.teacher.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
