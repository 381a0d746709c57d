package hr

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Civil calendar date
// =============================================================================

// DateLayout is the storage and wire format for dates.
const DateLayout = "2006-01-02"

// Date is a calendar day, stored as UTC midnight so values compare and hash
// consistently regardless of where they were built.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidTimestamp, s)
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

// At returns the instant hour:minute on this day in loc.
func (d Date) At(hour, minute int, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// PERIOD - Half-open date range [Start, End)
// =============================================================================

type Period struct {
	Start Date
	End   Date
}

// NewPeriod validates that the range is non-empty.
func NewPeriod(start, end Date) (Period, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return Period{}, fmt.Errorf("%w: [%s, %s)", ErrInvalidPeriod, start, end)
	}
	return Period{Start: start, End: end}, nil
}

// DayPeriod is the single-day period [d, d+1).
func DayPeriod(d Date) Period {
	return Period{Start: d, End: d.AddDays(1)}
}

// MonthPeriod covers the whole calendar month.
func MonthPeriod(year int, month time.Month) Period {
	start := NewDate(year, month, 1)
	return Period{Start: start, End: start.AddMonths(1)}
}

// Contains reports whether d falls in [Start, End).
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && d.Before(p.End)
}

// Days returns the number of calendar days in the period.
func (p Period) Days() int {
	return int(p.End.t.Sub(p.Start.t).Hours() / 24)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + ")"
}
