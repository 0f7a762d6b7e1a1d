package core

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const DayLayout = "2006-01-02"

// Periods accepted by PeriodRange.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

var (
	NowFunc = time.Now // mockable

	location   = time.UTC
	locationMu sync.RWMutex

	ErrInvalidPeriod = errors.New("period must be one of day, week, month or year")
	ErrInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD")
)

// SetLocation sets the time zone in which calendar days are computed.
func SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	locationMu.Lock()
	location = loc
	locationMu.Unlock()
}

func currentLocation() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	return location
}

// Day returns the calendar day of t as midnight UTC.
func Day(t time.Time) time.Time {
	t = t.In(currentLocation())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day.
func Today() time.Time {
	return Day(NowFunc())
}

// ParseDay parses YYYY-MM-DD or RFC3339 strings into a calendar day.
func ParseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DayLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return Day(t), nil
}

// DateRange is an inclusive range of calendar days. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (dr DateRange) IsZero() bool { return dr.From.IsZero() && dr.To.IsZero() }

// Contains reports whether day falls in the range. day must be a calendar day (see Day).
func (dr DateRange) Contains(day time.Time) bool {
	if !dr.From.IsZero() && day.Before(dr.From) {
		return false
	}
	if !dr.To.IsZero() && day.After(dr.To) {
		return false
	}
	return true
}

// PeriodRange returns the days from the start of the period containing now up to now.
// Weeks start on Monday.
func PeriodRange(period string, now time.Time) (DateRange, error) {
	today := Day(now)
	var from time.Time
	switch strings.ToLower(strings.TrimSpace(period)) {
	case PeriodDay, "today":
		from = today
	case PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		from = today.AddDate(0, 0, -offset)
	case PeriodMonth:
		from = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYear:
		from = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return DateRange{}, ErrInvalidPeriod
	}
	return DateRange{From: from, To: today}, nil
}

// ResolveRange builds a DateRange from explicit bounds, falling back to period when both bounds are empty.
func ResolveRange(from, to, period string) (DateRange, error) {
	var dr DateRange
	var err error
	if from != "" {
		if dr.From, err = ParseDay(from); err != nil {
			return DateRange{}, NewValidationError(err, FieldError{Field: "from", Error: err.Error()})
		}
	}
	if to != "" {
		if dr.To, err = ParseDay(to); err != nil {
			return DateRange{}, NewValidationError(err, FieldError{Field: "to", Error: err.Error()})
		}
	}
	if dr.IsZero() && period != "" {
		if dr, err = PeriodRange(period, NowFunc()); err != nil {
			return DateRange{}, NewValidationError(err, FieldError{Field: "period", Error: err.Error()})
		}
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.To.Before(dr.From) {
		err = errors.New("to must not be before from")
		return DateRange{}, NewValidationError(err, FieldError{Field: "to", Error: err.Error()})
	}
	return dr, nil
}

// Date is a calendar day decoded from "YYYY-MM-DD" or RFC3339 JSON strings.
// An empty string or null leaves it zero.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	if s == nil || *s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := ParseDay(*s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DayLayout))
}
