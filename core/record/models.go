package record

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/greesoft/canteen/core"
)

// Statuses
const (
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
	StatusAbsent = "absent"
)

// Record is a student's canteen entry for one day.
type Record struct {
	ID             int             `json:"id" db:"id"`
	StudentID      int             `json:"student_id" db:"student_id"`
	ClassID        null.Int        `json:"class_id" db:"class_id"`
	SubmittedBy    null.Int        `json:"submitted_by" db:"submitted_by"`
	TermID         null.Int        `json:"term_id" db:"term_id"`
	SubmittedAt    time.Time       `json:"submitted_at" db:"submitted_at"` // calendar day
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	SettingsAmount decimal.Decimal `json:"settings_amount" db:"settings_amount"`
	HasPaid        bool            `json:"has_paid" db:"has_paid"`
	IsPrepaid      bool            `json:"is_prepaid" db:"is_prepaid"`
	IsAbsent       bool            `json:"is_absent" db:"is_absent"`
	Charged        decimal.Decimal `json:"charged" db:"charged"`
	OwingBefore    decimal.Decimal `json:"owing_before" db:"owing_before"`
	OwingAfter     decimal.Decimal `json:"owing_after" db:"owing_after"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`

	// read only
	StudentName null.String `json:"student_name" db:"student_name"`
	ClassName   null.String `json:"class_name" db:"class_name"`
	TeacherName null.String `json:"teacher_name" db:"teacher_name"`
}

// Status groups the record: absence wins over payment.
func (r Record) Status() string {
	switch {
	case r.IsAbsent:
		return StatusAbsent
	case r.HasPaid:
		return StatusPaid
	default:
		return StatusUnpaid
	}
}

type QueryFilter struct {
	StudentID   int
	ClassID     int
	SubmittedBy int
	TermID      int
	Range       core.DateRange
	Statuses    []string
}

// ClassDay splits a class's records of one day by status.
type ClassDay struct {
	Date           core.Date `json:"date"`
	ClassID        int       `json:"class_id"`
	UnpaidStudents []Record  `json:"unpaid_students"`
	PaidStudents   []Record  `json:"paid_students"`
	AbsentStudents []Record  `json:"absent_students"`
}

// Submission is one class's records of a day, as submitted by its teacher.
type Submission struct {
	Date           core.Date       `json:"date"`
	ClassID        null.Int        `json:"class_id"`
	ClassName      string          `json:"class_name"`
	TeacherID      null.Int        `json:"teacher_id"`
	TeacherName    string          `json:"teacher_name"`
	PaidStudents   []Record        `json:"paid_students"`
	UnpaidStudents []Record        `json:"unpaid_students"`
	AbsentStudents []Record        `json:"absent_students"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type SkippedRecord struct {
	StudentID   int    `json:"student_id"`
	StudentName string `json:"student_name"`
	Reason      string `json:"reason"`
}

type GenerateResult struct {
	Date           core.Date       `json:"date"`
	CreatedRecords int             `json:"created_records"`
	SkippedRecords []SkippedRecord `json:"skipped_records"`
}

// GenerateRecords selects the day (today by default) and optionally a single class.
type GenerateRecords struct {
	ClassID int       `json:"class_id" validate:"omitempty,min=1"`
	Date    core.Date `json:"date"`
}

// StudentEntry is one student of a teacher submission.
type StudentEntry struct {
	StudentID int             `json:"student_id" validate:"required,min=1"`
	Amount    decimal.Decimal `json:"amount"`
}

// SubmitRecords is a teacher's daily submission for their class.
type SubmitRecords struct {
	ClassID int            `json:"class_id" validate:"required,min=1"`
	Date    core.Date      `json:"date"`
	Paid    []StudentEntry `json:"paid" validate:"dive"`
	Unpaid  []StudentEntry `json:"unpaid" validate:"dive"`
	Absent  []StudentEntry `json:"absent" validate:"dive"`
}

func (sr *SubmitRecords) Validate(validate *validator.Validate) error {
	if err := validate.Struct(sr); err != nil {
		return err
	}
	seen := make(map[int]bool, len(sr.Paid)+len(sr.Unpaid)+len(sr.Absent))
	for _, list := range [][]StudentEntry{sr.Paid, sr.Unpaid, sr.Absent} {
		for _, e := range list {
			if seen[e.StudentID] {
				return core.NewValidationError(errDuplicateStudent, core.FieldError{Field: "students", Error: errDuplicateStudent.Error()})
			}
			seen[e.StudentID] = true
			if e.Amount.IsNegative() {
				return core.NewValidationError(errNegativeAmount, core.FieldError{Field: "amount", Error: errNegativeAmount.Error()})
			}
		}
	}
	if len(seen) == 0 {
		return core.NewValidationError(errNoStudents, core.FieldError{Field: "students", Error: errNoStudents.Error()})
	}
	return nil
}

// SubmitPrepaid pays Total in advance: one paid day per Amount (the canteen price by default).
type SubmitPrepaid struct {
	StudentID int             `json:"student_id" validate:"required,min=1"`
	Total     decimal.Decimal `json:"set_amount" validate:"posamount"`
	Amount    decimal.Decimal `json:"amount"`
}

func (sp *SubmitPrepaid) Validate(validate *validator.Validate) error {
	if err := validate.Struct(sp); err != nil {
		return err
	}
	if sp.Amount.IsNegative() {
		return core.NewValidationError(errNegativeAmount, core.FieldError{Field: "amount", Error: errNegativeAmount.Error()})
	}
	return nil
}

type PrepaidResult struct {
	Days      int             `json:"days"`
	Amount    decimal.Decimal `json:"amount"`
	Remainder decimal.Decimal `json:"remainder"`
	Records   []Record        `json:"records"`
}

// UpdateStatus changes the payment and presence flags of a record.
type UpdateStatus struct {
	HasPaid  *bool `json:"has_paid"`
	IsAbsent *bool `json:"is_absent"`
}

// UpdateRecord leaves unset fields unchanged.
type UpdateRecord struct {
	Amount    *decimal.Decimal `json:"amount"`
	Date      core.Date        `json:"date"`
	IsPrepaid *bool            `json:"is_prepaid"`
	HasPaid   *bool            `json:"has_paid"`
	IsAbsent  *bool            `json:"is_absent"`
	ClassID   *int             `json:"class_id" validate:"omitempty,min=1"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	if err := validate.Struct(ur); err != nil {
		return err
	}
	if ur.Amount != nil && ur.Amount.IsNegative() {
		return core.NewValidationError(errNegativeAmount, core.FieldError{Field: "amount", Error: errNegativeAmount.Error()})
	}
	return nil
}

// TeacherTotal is the amount a teacher collected over a period.
type TeacherTotal struct {
	TeacherID    int             `json:"teacher_id" db:"teacher_id"`
	Name         string          `json:"name" db:"name"`
	Email        string          `json:"email" db:"email"`
	RecordsCount int             `json:"records_count" db:"records_count"`
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
}

type TeacherDetail struct {
	TeacherID   int             `json:"teacher_id"`
	Name        string          `json:"name"`
	From        core.Date       `json:"from"`
	To          core.Date       `json:"to"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Records     []Record        `json:"records"`
}
