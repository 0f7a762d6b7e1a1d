package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/student"
	"github.com/greesoft/canteen/core/user"
)

const recordStudentDayKey = "records_student_day_key"

type recordRepository struct {
	db *sqlx.DB
}

var _ record.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *sqlx.DB) *recordRepository {
	return &recordRepository{db: db}
}

func selectRecords() sq.SelectBuilder {
	return psql.Select(
		"r.id", "r.student_id", "r.class_id", "r.submitted_by", "r.term_id", "r.submitted_at",
		"r.amount", "r.settings_amount", "r.has_paid", "r.is_prepaid", "r.is_absent",
		"r.charged", "r.owing_before", "r.owing_after", "r.created_at", "r.updated_at",
		"s.name AS student_name", "c.name AS class_name", "u.name AS teacher_name",
	).
		From("records r").
		Join("students s ON s.id = r.student_id").
		LeftJoin("classes c ON c.id = r.class_id").
		LeftJoin("users u ON u.id = r.submitted_by")
}

func (repo recordRepository) QueryRecords(ctx context.Context, filter *record.QueryFilter) ([]record.Record, error) {
	b := selectRecords()
	if filter != nil {
		if filter.StudentID != 0 {
			b = b.Where(sq.Eq{"r.student_id": filter.StudentID})
		}
		if filter.ClassID != 0 {
			b = b.Where(sq.Eq{"r.class_id": filter.ClassID})
		}
		if filter.SubmittedBy != 0 {
			b = b.Where(sq.Eq{"r.submitted_by": filter.SubmittedBy})
		}
		if filter.TermID != 0 {
			b = b.Where(sq.Eq{"r.term_id": filter.TermID})
		}
		b = dayRange(b, "r.submitted_at", filter.Range)
		if len(filter.Statuses) > 0 {
			or := sq.Or{}
			for _, status := range filter.Statuses {
				switch status {
				case record.StatusAbsent:
					or = append(or, sq.Eq{"r.is_absent": true})
				case record.StatusPaid:
					or = append(or, sq.Eq{"r.is_absent": false, "r.has_paid": true})
				case record.StatusUnpaid:
					or = append(or, sq.Eq{"r.is_absent": false, "r.has_paid": false})
				}
			}
			if len(or) > 0 {
				b = b.Where(or)
			}
		}
	}

	records := make([]record.Record, 0)
	if err := selectAll(ctx, repo.db, &records, b.OrderBy("r.submitted_at ASC", "s.name ASC", "r.id ASC")); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return records, nil
}

func getRecord(ctx context.Context, q sqlx.QueryerContext, where sq.Sqlizer) (record.Record, error) {
	var rec record.Record
	if err := get(ctx, q, &rec, selectRecords().Where(where).Limit(1)); err != nil {
		return record.Record{}, trapNoRowsErr(err, record.ErrNotFound, "finding record")
	}
	return rec, nil
}

func (repo recordRepository) GetRecord(ctx context.Context, id int) (record.Record, error) {
	return getRecord(ctx, repo.db, sq.Eq{"r.id": id})
}

func (repo recordRepository) TeacherTotals(ctx context.Context, dr core.DateRange) ([]record.TeacherTotal, error) {
	on := sq.And{sq.Expr("r.submitted_by = u.id")}
	if !dr.From.IsZero() {
		on = append(on, sq.GtOrEq{"r.submitted_at": dr.From})
	}
	if !dr.To.IsZero() {
		on = append(on, sq.LtOrEq{"r.submitted_at": dr.To})
	}
	onSQL, onArgs, err := on.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building join")
	}

	b := psql.Select(
		"u.id AS teacher_id", "u.name", "u.email",
		"count(r.id) AS records_count",
		"coalesce(sum(CASE WHEN r.has_paid THEN r.amount ELSE 0 END), 0) AS total_amount",
	).
		From("users u").
		LeftJoin("records r ON "+onSQL, onArgs...).
		Where(sq.Eq{"u.role": user.RoleTeacher}).
		GroupBy("u.id", "u.name", "u.email").
		OrderBy("u.name ASC", "u.id ASC")

	totals := make([]record.TeacherTotal, 0)
	if err = selectAll(ctx, repo.db, &totals, b); err != nil {
		return nil, errors.Wrap(err, "summing teacher records")
	}
	return totals, nil
}

func (repo recordRepository) WithinTx(ctx context.Context, fn func(tx record.Tx) error) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		return fn(recordTx{tx: tx})
	})
}

// recordTx implements record.Tx over an open transaction.
type recordTx struct {
	tx *sqlx.Tx
}

func (rt recordTx) GetRecord(ctx context.Context, id int) (record.Record, error) {
	return getRecord(ctx, rt.tx, sq.Eq{"r.id": id})
}

func (rt recordTx) FindRecord(ctx context.Context, studentID int, day time.Time) (record.Record, error) {
	return getRecord(ctx, rt.tx, sq.Eq{"r.student_id": studentID, "r.submitted_at": day})
}

func (rt recordTx) SaveRecord(ctx context.Context, rec record.Record) (record.Record, error) {
	if rec.ID == 0 {
		b := psql.Insert("records").
			Columns(
				"student_id", "class_id", "submitted_by", "term_id", "submitted_at", "amount", "settings_amount",
				"has_paid", "is_prepaid", "is_absent", "charged", "owing_before", "owing_after", "created_at", "updated_at",
			).
			Values(
				rec.StudentID, rec.ClassID, rec.SubmittedBy, rec.TermID, rec.SubmittedAt, rec.Amount, rec.SettingsAmount,
				rec.HasPaid, rec.IsPrepaid, rec.IsAbsent, rec.Charged, rec.OwingBefore, rec.OwingAfter, rec.CreatedAt, rec.UpdatedAt,
			).
			Suffix("ON CONFLICT ON CONSTRAINT " + recordStudentDayKey + " DO NOTHING RETURNING id")
		if err := get(ctx, rt.tx, &rec.ID, b); err != nil {
			return record.Record{}, trapNoRowsErr(err, record.ErrDuplicate, "inserting record")
		}
		return rec, nil
	}

	b := psql.Update("records").SetMap(map[string]interface{}{
		"class_id":        rec.ClassID,
		"submitted_by":    rec.SubmittedBy,
		"term_id":         rec.TermID,
		"submitted_at":    rec.SubmittedAt,
		"amount":          rec.Amount,
		"settings_amount": rec.SettingsAmount,
		"has_paid":        rec.HasPaid,
		"is_prepaid":      rec.IsPrepaid,
		"is_absent":       rec.IsAbsent,
		"charged":         rec.Charged,
		"owing_before":    rec.OwingBefore,
		"owing_after":     rec.OwingAfter,
		"updated_at":      rec.UpdatedAt,
	}).Where(sq.Eq{"id": rec.ID})
	n, err := exec(ctx, rt.tx, b)
	if err != nil {
		if isUniqueViolation(err, recordStudentDayKey) {
			return record.Record{}, record.ErrDuplicate
		}
		return record.Record{}, errors.Wrap(err, "updating record")
	}
	if n == 0 {
		return record.Record{}, record.ErrNotFound
	}
	return rec, nil
}

func (rt recordTx) DeleteRecord(ctx context.Context, id int) error {
	n, err := exec(ctx, rt.tx, psql.Delete("records").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting record")
	}
	if n == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (rt recordTx) StudentOwing(ctx context.Context, studentID int) (decimal.Decimal, error) {
	var owing decimal.Decimal
	b := psql.Select("owing").From("students").Where(sq.Eq{"id": studentID}).Suffix("FOR UPDATE")
	if err := get(ctx, rt.tx, &owing, b); err != nil {
		return decimal.Zero, trapNoRowsErr(err, student.ErrNotFound, "locking student")
	}
	return owing, nil
}

func (rt recordTx) SetStudentOwing(ctx context.Context, studentID int, owing decimal.Decimal) error {
	b := psql.Update("students").Set("owing", owing).Set("updated_at", sq.Expr("now()")).Where(sq.Eq{"id": studentID})
	n, err := exec(ctx, rt.tx, b)
	if err != nil {
		return errors.Wrap(err, "setting student owing")
	}
	if n == 0 {
		return student.ErrNotFound
	}
	return nil
}
