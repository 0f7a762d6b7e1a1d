// Package record tracks the daily canteen records of students and keeps their owing balance in sync.
package record

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/class"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/term"
	"github.com/greesoft/canteen/core/user"
)

// MaxPrepaidDays bounds the days a single prepayment can cover.
const MaxPrepaidDays = 366

var (
	ErrNotFound     = core.NewNotFoundError("record not found")
	ErrDuplicate    = core.NewConflictError("a record already exists for this student on this day")
	ErrNoRecords    = core.NewNotFoundError("No records found")
	ErrNoTeachers   = core.NewNotFoundError("No teachers found")
	ErrPriceNotSet  = core.NewValidationError(errors.New("the canteen amount is not set"))
	ErrTooFewPrepay = core.NewValidationError(errors.New("set_amount must cover at least one day"))

	errDuplicateStudent = errors.New("a student can only appear once per submission")
	errNegativeAmount   = errors.New("amount cannot be negative")
	errTooManyPrepay    = fmt.Sprintf("set_amount cannot cover more than %d days", MaxPrepaidDays)
	errNoStudents       = errors.New("at least one student is required")
	errWrongClass       = "student does not belong to this class"
)

type (
	Repository interface {
		// QueryRecords returns records with student, class & teacher names, ordered by day then student name.
		QueryRecords(ctx context.Context, filter *QueryFilter) ([]Record, error)
		GetRecord(ctx context.Context, id int) (Record, error)
		// TeacherTotals sums the paid amounts of every teacher's records within dr, teachers without records included.
		TeacherTotals(ctx context.Context, dr core.DateRange) ([]TeacherTotal, error)
		// WithinTx runs fn in a transaction, rolled back when fn fails.
		WithinTx(ctx context.Context, fn func(tx Tx) error) error
	}

	// Tx is the unit of work used to move records and owing balances together.
	Tx interface {
		GetRecord(ctx context.Context, id int) (Record, error)
		FindRecord(ctx context.Context, studentID int, day time.Time) (Record, error)
		// SaveRecord inserts rec when rec.ID is 0 (ErrDuplicate on a (student, day) clash), updates it otherwise.
		SaveRecord(ctx context.Context, rec Record) (Record, error)
		DeleteRecord(ctx context.Context, id int) error
		// StudentOwing reads the balance and locks the student until the end of the transaction.
		StudentOwing(ctx context.Context, studentID int) (decimal.Decimal, error)
		SetStudentOwing(ctx context.Context, studentID int, owing decimal.Decimal) error
	}

	ClassFinder interface {
		Query(ctx context.Context, filter *class.QueryFilter) ([]class.Class, error)
		GetByID(ctx context.Context, id int) (class.Class, error)
	}

	StudentFinder interface {
		Query(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering) ([]student.Student, error)
		GetByID(ctx context.Context, id int) (student.Student, error)
	}

	TermFinder interface {
		CurrentOn(ctx context.Context, day time.Time) (term.Term, error)
	}

	PriceGetter interface {
		Price(ctx context.Context) (decimal.Decimal, error)
	}

	TeacherGetter interface {
		GetTeacher(ctx context.Context, id int) (user.User, error)
	}

	Deps struct {
		Repo     Repository
		Classes  ClassFinder
		Students StudentFinder
		Terms    TermFinder
		Prices   PriceGetter
		Teachers TeacherGetter
	}

	Service struct {
		repo     Repository
		classes  ClassFinder
		students StudentFinder
		terms    TermFinder
		prices   PriceGetter
		teachers TeacherGetter
	}
)

func NewService(deps Deps) *Service {
	return &Service{
		repo:     deps.Repo,
		classes:  deps.Classes,
		students: deps.Students,
		terms:    deps.Terms,
		prices:   deps.Prices,
		teachers: deps.Teachers,
	}
}

func dayOrToday(d core.Date) time.Time {
	if d.IsZero() {
		return core.Today()
	}
	return d.Time
}

func newRecord(st student.Student, cls class.Class, t term.Term, day time.Time, price decimal.Decimal) Record {
	rec := Record{
		StudentID:      st.ID,
		SubmittedAt:    day,
		Amount:         decimal.Zero,
		SettingsAmount: price,
		Charged:        decimal.Zero,
		OwingBefore:    st.Owing,
		OwingAfter:     st.Owing,
	}
	if cls.ID != 0 {
		rec.ClassID = null.IntFrom(cls.ID)
		rec.SubmittedBy = cls.SupervisorID
	} else {
		rec.ClassID = st.ClassID
	}
	if t.ID != 0 {
		rec.TermID = null.IntFrom(t.ID)
	}
	return rec
}

// GenerateDaily creates a pending record for every student of the selected classes on the day.
// Existing records are left untouched and reported as skipped.
func (svc *Service) GenerateDaily(ctx context.Context, gr GenerateRecords) (GenerateResult, error) {
	day := dayOrToday(gr.Date)
	res := GenerateResult{Date: core.Date{Time: day}, SkippedRecords: []SkippedRecord{}}

	t, err := svc.terms.CurrentOn(ctx, day)
	if err != nil {
		return res, err
	}
	price, err := svc.prices.Price(ctx)
	if err != nil {
		return res, errors.Wrap(err, "getting price")
	}

	var classes []class.Class
	if gr.ClassID != 0 {
		cls, err := svc.classes.GetByID(ctx, gr.ClassID)
		if err != nil {
			return res, err
		}
		classes = []class.Class{cls}
	} else if classes, err = svc.classes.Query(ctx, nil); err != nil {
		return res, errors.Wrap(err, "querying classes")
	}

	for _, cls := range classes {
		created, skipped, err := svc.generateForClass(ctx, cls, t, day, price)
		if err != nil {
			return res, errors.Wrapf(err, "generating records of class %d", cls.ID)
		}
		res.CreatedRecords += created
		res.SkippedRecords = append(res.SkippedRecords, skipped...)
	}
	return res, nil
}

func (svc *Service) generateForClass(ctx context.Context, cls class.Class, t term.Term, day time.Time, price decimal.Decimal) (int, []SkippedRecord, error) {
	students, err := svc.students.Query(ctx, &student.QueryFilter{ClassID: cls.ID}, nil)
	if err != nil {
		return 0, nil, errors.Wrap(err, "querying students")
	}

	var created int
	var skipped []SkippedRecord
	err = svc.repo.WithinTx(ctx, func(tx Tx) error {
		created, skipped = 0, nil
		now := core.NowFunc().UTC()
		for _, st := range students {
			if _, err := tx.FindRecord(ctx, st.ID, day); err == nil {
				skipped = append(skipped, SkippedRecord{StudentID: st.ID, StudentName: st.Name, Reason: "record already exists"})
				continue
			} else if errors.Cause(err) != ErrNotFound {
				return errors.Wrap(err, "finding record")
			}

			rec := newRecord(st, cls, t, day, price)
			rec.CreatedAt, rec.UpdatedAt = now, now
			if _, err := tx.SaveRecord(ctx, rec); err != nil {
				if errors.Cause(err) == ErrDuplicate {
					skipped = append(skipped, SkippedRecord{StudentID: st.ID, StudentName: st.Name, Reason: "record already exists"})
					continue
				}
				return errors.Wrap(err, "saving record")
			}
			created++
		}
		return nil
	})
	return created, skipped, err
}

// ByClass splits the class's records of the day by status. Missing records are created first
// when a term covers the day.
func (svc *Service) ByClass(ctx context.Context, classID int, date core.Date) (ClassDay, error) {
	day := dayOrToday(date)
	if _, err := svc.GenerateDaily(ctx, GenerateRecords{ClassID: classID, Date: core.Date{Time: day}}); err != nil {
		if errors.Cause(err) != term.ErrNoCurrent {
			return ClassDay{}, err
		}
	}

	records, err := svc.repo.QueryRecords(ctx, &QueryFilter{ClassID: classID, Range: core.DateRange{From: day, To: day}})
	if err != nil {
		return ClassDay{}, errors.Wrap(err, "querying records")
	}
	cd := ClassDay{
		Date:           core.Date{Time: day},
		ClassID:        classID,
		UnpaidStudents: []Record{},
		PaidStudents:   []Record{},
		AbsentStudents: []Record{},
	}
	for _, rec := range records {
		switch rec.Status() {
		case StatusAbsent:
			cd.AbsentStudents = append(cd.AbsentStudents, rec)
		case StatusPaid:
			cd.PaidStudents = append(cd.PaidStudents, rec)
		default:
			cd.UnpaidStudents = append(cd.UnpaidStudents, rec)
		}
	}
	return cd, nil
}

// StudentRecordsByClass lists the class's records of the day without creating missing ones.
func (svc *Service) StudentRecordsByClass(ctx context.Context, classID int, date core.Date) ([]Record, error) {
	if _, err := svc.classes.GetByID(ctx, classID); err != nil {
		return nil, err
	}
	day := dayOrToday(date)
	return svc.repo.QueryRecords(ctx, &QueryFilter{ClassID: classID, Range: core.DateRange{From: day, To: day}})
}

// Submissions groups the records of the day per class, optionally for one teacher only.
func (svc *Service) Submissions(ctx context.Context, date core.Date, teacherID int) ([]Submission, error) {
	day := dayOrToday(date)
	records, err := svc.repo.QueryRecords(ctx, &QueryFilter{SubmittedBy: teacherID, Range: core.DateRange{From: day, To: day}})
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}

	byClass := make(map[int]*Submission)
	for _, rec := range records {
		key := rec.ClassID.Int
		sub, ok := byClass[key]
		if !ok {
			sub = &Submission{
				Date:           core.Date{Time: day},
				ClassID:        rec.ClassID,
				ClassName:      rec.ClassName.String,
				TeacherID:      rec.SubmittedBy,
				TeacherName:    rec.TeacherName.String,
				PaidStudents:   []Record{},
				UnpaidStudents: []Record{},
				AbsentStudents: []Record{},
				TotalAmount:    decimal.Zero,
			}
			byClass[key] = sub
		}
		if !sub.TeacherID.Valid && rec.SubmittedBy.Valid {
			sub.TeacherID = rec.SubmittedBy
			sub.TeacherName = rec.TeacherName.String
		}
		switch rec.Status() {
		case StatusAbsent:
			sub.AbsentStudents = append(sub.AbsentStudents, rec)
		case StatusPaid:
			sub.PaidStudents = append(sub.PaidStudents, rec)
		default:
			sub.UnpaidStudents = append(sub.UnpaidStudents, rec)
		}
		sub.TotalAmount = sub.TotalAmount.Add(rec.Paid())
	}

	subs := make([]Submission, 0, len(byClass))
	for _, sub := range byClass {
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].ClassName != subs[j].ClassName {
			return subs[i].ClassName < subs[j].ClassName
		}
		return subs[i].ClassID.Int < subs[j].ClassID.Int
	})
	return subs, nil
}

// Submit records a teacher's daily submission for a class: every listed student gets their
// record of the day created or updated, and owing balances follow, all in one transaction.
func (svc *Service) Submit(ctx context.Context, sr SubmitRecords, submittedBy int) ([]Record, error) {
	day := dayOrToday(sr.Date)
	t, err := svc.terms.CurrentOn(ctx, day)
	if err != nil {
		return nil, err
	}
	cls, err := svc.classes.GetByID(ctx, sr.ClassID)
	if err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return nil, core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
		}
		return nil, err
	}
	price, err := svc.prices.Price(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting price")
	}

	type change struct {
		entry    StudentEntry
		student  student.Student
		hasPaid  bool
		isAbsent bool
	}
	var changes []change
	add := func(entries []StudentEntry, hasPaid, isAbsent bool) error {
		for _, e := range entries {
			st, err := svc.students.GetByID(ctx, e.StudentID)
			if err != nil {
				if errors.Cause(err) == student.ErrNotFound {
					return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
				}
				return err
			}
			if st.ClassID.Int != cls.ID {
				return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: errWrongClass})
			}
			changes = append(changes, change{entry: e, student: st, hasPaid: hasPaid, isAbsent: isAbsent})
		}
		return nil
	}
	if err = add(sr.Paid, true, false); err != nil {
		return nil, err
	}
	if err = add(sr.Unpaid, false, false); err != nil {
		return nil, err
	}
	if err = add(sr.Absent, false, true); err != nil {
		return nil, err
	}

	var saved []Record
	err = svc.repo.WithinTx(ctx, func(tx Tx) error {
		saved = make([]Record, 0, len(changes))
		now := core.NowFunc().UTC()
		for _, ch := range changes {
			rec, err := tx.FindRecord(ctx, ch.student.ID, day)
			if err != nil {
				if errors.Cause(err) != ErrNotFound {
					return errors.Wrap(err, "finding record")
				}
				rec = newRecord(ch.student, cls, t, day, price)
			}
			rec.ClassID = null.IntFrom(cls.ID)
			rec.SubmittedBy = null.IntFrom(submittedBy)
			rec.HasPaid = ch.hasPaid
			rec.IsAbsent = ch.isAbsent
			rec.Amount = ch.entry.Amount.Round(2)
			if rec, err = transition(ctx, tx, rec, now); err != nil {
				return err
			}
			saved = append(saved, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Prepay marks floor(Total/Amount) consecutive days, starting today, as paid in advance.
func (svc *Service) Prepay(ctx context.Context, sp SubmitPrepaid, submittedBy int) (PrepaidResult, error) {
	today := core.Today()
	t, err := svc.terms.CurrentOn(ctx, today)
	if err != nil {
		return PrepaidResult{}, err
	}
	st, err := svc.students.GetByID(ctx, sp.StudentID)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return PrepaidResult{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return PrepaidResult{}, err
	}
	price, err := svc.prices.Price(ctx)
	if err != nil {
		return PrepaidResult{}, errors.Wrap(err, "getting price")
	}

	amount := sp.Amount
	if !amount.IsPositive() {
		amount = price
	}
	if !amount.IsPositive() {
		return PrepaidResult{}, ErrPriceNotSet
	}
	covered := sp.Total.Div(amount).Floor()
	if covered.GreaterThan(decimal.NewFromInt(MaxPrepaidDays)) {
		return PrepaidResult{}, core.NewValidationError(nil, core.FieldError{Field: "set_amount", Error: errTooManyPrepay})
	}
	days := int(covered.IntPart())
	if days < 1 {
		return PrepaidResult{}, ErrTooFewPrepay
	}
	res := PrepaidResult{
		Days:      days,
		Amount:    amount,
		Remainder: sp.Total.Sub(amount.Mul(decimal.NewFromInt(int64(days)))),
	}

	var cls class.Class
	if st.ClassID.Valid {
		if cls, err = svc.classes.GetByID(ctx, st.ClassID.Int); err != nil && errors.Cause(err) != class.ErrNotFound {
			return PrepaidResult{}, err
		}
	}

	err = svc.repo.WithinTx(ctx, func(tx Tx) error {
		res.Records = make([]Record, 0, days)
		now := core.NowFunc().UTC()
		for i := 0; i < days; i++ {
			day := today.AddDate(0, 0, i)
			rec, err := tx.FindRecord(ctx, st.ID, day)
			if err != nil {
				if errors.Cause(err) != ErrNotFound {
					return errors.Wrap(err, "finding record")
				}
				var dayTerm term.Term
				if t.CoversDay(day) {
					dayTerm = t
				}
				rec = newRecord(st, cls, dayTerm, day, price)
			}
			rec.SubmittedBy = null.IntFrom(submittedBy)
			rec.HasPaid = true
			rec.IsPrepaid = true
			rec.Amount = amount
			if rec, err = transition(ctx, tx, rec, now); err != nil {
				return err
			}
			res.Records = append(res.Records, rec)
		}
		return nil
	})
	if err != nil {
		return PrepaidResult{}, err
	}
	return res, nil
}

// UpdateStatus changes the payment and presence flags of a record, moving the owing balance.
func (svc *Service) UpdateStatus(ctx context.Context, id int, us UpdateStatus) (Record, error) {
	var rec Record
	err := svc.repo.WithinTx(ctx, func(tx Tx) error {
		var err error
		if rec, err = tx.GetRecord(ctx, id); err != nil {
			return err
		}
		if us.HasPaid != nil {
			rec.HasPaid = *us.HasPaid
		}
		if us.IsAbsent != nil {
			rec.IsAbsent = *us.IsAbsent
		}
		rec, err = transition(ctx, tx, rec, core.NowFunc().UTC())
		return err
	})
	return rec, err
}

// Update expects a validated UpdateRecord.
func (svc *Service) Update(ctx context.Context, id int, ur UpdateRecord) (Record, error) {
	if ur.ClassID != nil {
		if _, err := svc.classes.GetByID(ctx, *ur.ClassID); err != nil {
			if errors.Cause(err) == class.ErrNotFound {
				return Record{}, core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
			}
			return Record{}, err
		}
	}
	// a moved record belongs to the active term only when the term covers its new day
	var termID null.Int
	if !ur.Date.IsZero() {
		t, err := svc.terms.CurrentOn(ctx, ur.Date.Time)
		switch {
		case err == nil:
			termID = null.IntFrom(t.ID)
		case errors.Cause(err) != term.ErrNoCurrent:
			return Record{}, err
		}
	}

	var rec Record
	err := svc.repo.WithinTx(ctx, func(tx Tx) error {
		var err error
		if rec, err = tx.GetRecord(ctx, id); err != nil {
			return err
		}
		if !ur.Date.IsZero() && !ur.Date.Equal(rec.SubmittedAt) {
			if _, err = tx.FindRecord(ctx, rec.StudentID, ur.Date.Time); err == nil {
				return ErrDuplicate
			} else if errors.Cause(err) != ErrNotFound {
				return errors.Wrap(err, "finding record")
			}
			rec.SubmittedAt = ur.Date.Time
			rec.TermID = termID
		}
		if ur.HasPaid != nil {
			rec.HasPaid = *ur.HasPaid
		}
		if ur.IsAbsent != nil {
			rec.IsAbsent = *ur.IsAbsent
		}
		if ur.Amount != nil {
			rec.Amount = ur.Amount.Round(2)
		}
		if ur.IsPrepaid != nil {
			rec.IsPrepaid = *ur.IsPrepaid
		}
		if ur.ClassID != nil {
			rec.ClassID = null.IntFrom(*ur.ClassID)
		}
		rec, err = transition(ctx, tx, rec, core.NowFunc().UTC())
		return err
	})
	return rec, err
}

// Delete removes a record and gives back what it charged to the student.
func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.WithinTx(ctx, func(tx Tx) error {
		rec, err := tx.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		return reverse(ctx, tx, rec)
	})
}

func (svc *Service) GetByID(ctx context.Context, id int) (Record, error) {
	return svc.repo.GetRecord(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, filter)
}

// TeacherSummaries returns what every teacher collected within dr.
func (svc *Service) TeacherSummaries(ctx context.Context, dr core.DateRange) ([]TeacherTotal, error) {
	totals, err := svc.repo.TeacherTotals(ctx, dr)
	if err != nil {
		return nil, errors.Wrap(err, "summing teacher records")
	}
	if len(totals) == 0 {
		return nil, ErrNoTeachers
	}
	return totals, nil
}

// TeacherDetail lists the records a teacher submitted within dr, ordered by day.
func (svc *Service) TeacherDetail(ctx context.Context, teacherID int, dr core.DateRange) (TeacherDetail, error) {
	teacher, err := svc.teachers.GetTeacher(ctx, teacherID)
	if err != nil {
		return TeacherDetail{}, err
	}
	records, err := svc.repo.QueryRecords(ctx, &QueryFilter{SubmittedBy: teacherID, Range: dr})
	if err != nil {
		return TeacherDetail{}, errors.Wrap(err, "querying records")
	}
	detail := TeacherDetail{
		TeacherID:   teacher.ID,
		Name:        teacher.Name,
		From:        core.Date{Time: dr.From},
		To:          core.Date{Time: dr.To},
		TotalAmount: decimal.Zero,
		Records:     records,
	}
	if detail.Records == nil {
		detail.Records = []Record{}
	}
	for _, rec := range records {
		detail.TotalAmount = detail.TotalAmount.Add(rec.Paid())
	}
	return detail, nil
}

// ByTeacher lists every record submitted by the teacher.
func (svc *Service) ByTeacher(ctx context.Context, teacherID int) ([]Record, error) {
	records, err := svc.repo.QueryRecords(ctx, &QueryFilter{SubmittedBy: teacherID})
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}
