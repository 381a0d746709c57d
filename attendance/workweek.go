package attendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/balibad/payroll-engine/hr"
)

// Workweek is the set of weekdays on which attendance is expected. Days
// outside it are never closed as absences. The zero value means
// DefaultWorkweek.
type Workweek uint8

// DefaultWorkweek is Monday to Friday.
var DefaultWorkweek = NewWorkweek(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)

func NewWorkweek(days ...time.Weekday) Workweek {
	var w Workweek
	for _, d := range days {
		w |= 1 << d
	}
	return w
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWorkweek accepts day names such as "mon" or "Monday".
func ParseWorkweek(names []string) (Workweek, error) {
	var w Workweek
	for _, n := range names {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("%w: weekday %q", hr.ErrInvalidInput, n)
		}
		w |= 1 << d
	}
	if w == 0 {
		return 0, fmt.Errorf("%w: workweek has no days", hr.ErrInvalidInput)
	}
	return w, nil
}

func (w Workweek) orDefault() Workweek {
	if w == 0 {
		return DefaultWorkweek
	}
	return w
}

// Works reports whether date falls on a working weekday.
func (w Workweek) Works(date hr.Date) bool {
	return w.orDefault()&(1<<date.Weekday()) != 0
}

// Days lists the working weekdays from Sunday to Saturday.
func (w Workweek) Days() []time.Weekday {
	w = w.orDefault()
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w&(1<<d) != 0 {
			out = append(out, d)
		}
	}
	return out
}
