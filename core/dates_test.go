package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDay(t *testing.T) {
	late := time.Date(2024, time.March, 5, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, date(2024, time.March, 5), Day(late))

	kinshasa := time.FixedZone("WAT", 3600)
	SetLocation(kinshasa)
	defer SetLocation(nil)
	assert.Equal(t, date(2024, time.March, 6), Day(late), "already the next day in local time")
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-03-05", want: date(2024, time.March, 5)},
		{in: " 2024-03-05 ", want: date(2024, time.March, 5)},
		{in: "2024-03-05T18:04:05Z", want: date(2024, time.March, 5)},
		{in: "05/03/2024", wantErr: true},
		{in: "2024-02-30", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDay(tt.in)
			if tt.wantErr {
				assert.Equal(t, ErrInvalidDate, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriodRange(t *testing.T) {
	now := time.Date(2024, time.March, 7, 15, 0, 0, 0, time.UTC) // Thursday
	today := date(2024, time.March, 7)

	tests := []struct {
		period   string
		wantFrom time.Time
		wantErr  bool
	}{
		{period: "day", wantFrom: today},
		{period: "today", wantFrom: today},
		{period: "Week", wantFrom: date(2024, time.March, 4)},
		{period: "month", wantFrom: date(2024, time.March, 1)},
		{period: "year", wantFrom: date(2024, time.January, 1)},
		{period: "decade", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			dr, err := PeriodRange(tt.period, now)
			if tt.wantErr {
				assert.Equal(t, ErrInvalidPeriod, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFrom, dr.From)
			assert.Equal(t, today, dr.To)
		})
	}

	sunday := time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC)
	dr, err := PeriodRange(PeriodWeek, sunday)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 4), dr.From, "weeks start on monday")
}

func TestResolveRange(t *testing.T) {
	orig := NowFunc
	NowFunc = func() time.Time { return time.Date(2024, time.March, 7, 15, 0, 0, 0, time.UTC) }
	defer func() { NowFunc = orig }()

	tests := []struct {
		name      string
		from, to  string
		period    string
		want      DateRange
		wantField string
	}{
		{name: "nothing", want: DateRange{}},
		{name: "explicit", from: "2024-03-01", to: "2024-03-03", period: "year", want: DateRange{From: date(2024, time.March, 1), To: date(2024, time.March, 3)}},
		{name: "open end", from: "2024-03-01", want: DateRange{From: date(2024, time.March, 1)}},
		{name: "period", period: "month", want: DateRange{From: date(2024, time.March, 1), To: date(2024, time.March, 7)}},
		{name: "invalid from", from: "lol", wantField: "from"},
		{name: "invalid to", to: "lol", wantField: "to"},
		{name: "invalid period", period: "lol", wantField: "period"},
		{name: "reversed", from: "2024-03-03", to: "2024-03-01", wantField: "to"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr, err := ResolveRange(tt.from, tt.to, tt.period)
			if tt.wantField != "" {
				verr, ok := err.(*ValidationError)
				require.True(t, ok, "got %v", err)
				assert.Equal(t, tt.wantField, verr.Fields[0].Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, dr)
		})
	}
}

func TestDateRange_Contains(t *testing.T) {
	dr := DateRange{From: date(2024, time.March, 1), To: date(2024, time.March, 3)}
	assert.True(t, dr.Contains(date(2024, time.March, 1)))
	assert.True(t, dr.Contains(date(2024, time.March, 3)))
	assert.False(t, dr.Contains(date(2024, time.February, 29)))
	assert.False(t, dr.Contains(date(2024, time.March, 4)))
	assert.True(t, DateRange{}.Contains(date(1999, time.January, 1)))
}

func TestDate_JSON(t *testing.T) {
	var payload struct {
		Date Date `json:"date"`
	}
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: `{"date": "2024-03-05"}`, want: date(2024, time.March, 5)},
		{in: `{"date": "2024-03-05T10:00:00Z"}`, want: date(2024, time.March, 5)},
		{in: `{"date": ""}`},
		{in: `{"date": null}`},
		{in: `{}`},
		{in: `{"date": 12}`, wantErr: true},
		{in: `{"date": "tomorrow"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			payload.Date = Date{}
			err := json.Unmarshal([]byte(tt.in), &payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(payload.Date.Time))
		})
	}

	b, err := json.Marshal(map[string]Date{"a": {Time: date(2024, time.March, 5)}, "b": {}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": "2024-03-05", "b": null}`, string(b))
}
