package record

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Due is what the student owes for the day: nothing when absent.
func (r Record) Due() decimal.Decimal {
	if r.IsAbsent {
		return decimal.Zero
	}
	return r.SettingsAmount
}

// Paid is what the student paid for the day.
func (r Record) Paid() decimal.Decimal {
	if !r.HasPaid {
		return decimal.Zero
	}
	return r.Amount
}

// Contribution is what the record adds to the student's owing balance in its current state.
// Overpaying (e.g. prepaid days missed) yields a negative contribution.
func (r Record) Contribution() decimal.Decimal {
	return r.Due().Sub(r.Paid())
}

// normalize keeps amount consistent with the payment flags.
func (r *Record) normalize() {
	if r.HasPaid {
		if !r.Amount.IsPositive() {
			r.Amount = r.SettingsAmount
		}
		return
	}
	r.Amount = decimal.Zero
	r.IsPrepaid = false
}

// transition saves rec in its new state. The student's owing moves by the difference
// between the new contribution and the one previously charged, and both balances are
// snapshotted on the record. Must run inside tx.
func transition(ctx context.Context, tx Tx, rec Record, now time.Time) (Record, error) {
	rec.normalize()
	newCharged := rec.Contribution()
	delta := newCharged.Sub(rec.Charged)

	owing, err := tx.StudentOwing(ctx, rec.StudentID)
	if err != nil {
		return Record{}, errors.Wrap(err, "getting student owing")
	}
	rec.OwingBefore = owing
	rec.OwingAfter = owing.Add(delta)
	rec.Charged = newCharged
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	if !delta.IsZero() {
		if err = tx.SetStudentOwing(ctx, rec.StudentID, rec.OwingAfter); err != nil {
			return Record{}, errors.Wrap(err, "setting student owing")
		}
	}
	rec, err = tx.SaveRecord(ctx, rec)
	return rec, errors.Wrap(err, "saving record")
}

// reverse removes rec's contribution from the student's owing and deletes it. Must run inside tx.
func reverse(ctx context.Context, tx Tx, rec Record) error {
	if !rec.Charged.IsZero() {
		owing, err := tx.StudentOwing(ctx, rec.StudentID)
		if err != nil {
			return errors.Wrap(err, "getting student owing")
		}
		if err = tx.SetStudentOwing(ctx, rec.StudentID, owing.Sub(rec.Charged)); err != nil {
			return errors.Wrap(err, "setting student owing")
		}
	}
	return errors.Wrap(tx.DeleteRecord(ctx, rec.ID), "deleting record")
}
