package attendance

import (
	"github.com/balibad/payroll-engine/hr"
	"github.com/shopspring/decimal"
)

// Roster is the day's active employees split by attendance outcome. Every
// active employee lands in exactly one bucket.
type Roster struct {
	Date    hr.Date
	Present []hr.Employee
	Late    []hr.Employee
	Absent  []hr.Employee
	HalfDay []hr.Employee
}

// Attended folds present, late and half-day into a single list.
func (r Roster) Attended() []hr.Employee {
	out := make([]hr.Employee, 0, len(r.Present)+len(r.Late)+len(r.HalfDay))
	out = append(out, r.Present...)
	out = append(out, r.Late...)
	return append(out, r.HalfDay...)
}

// Total is the number of employees on the roster.
func (r Roster) Total() int {
	return len(r.Present) + len(r.Late) + len(r.Absent) + len(r.HalfDay)
}

// ComputeDailyRoster buckets each active employee by their record for the
// day. No record means absent. Records for employees not in active are
// ignored, and when an employee has more than one record the first wins.
// Bucket order follows active.
func ComputeDailyRoster(active []hr.Employee, records []Record) Roster {
	byEmployee := make(map[hr.EmployeeID]Status, len(records))
	for _, rec := range records {
		if _, seen := byEmployee[rec.EmployeeID]; !seen {
			byEmployee[rec.EmployeeID] = rec.Status
		}
	}

	var r Roster
	for _, emp := range active {
		status, ok := byEmployee[emp.ID]
		if !ok {
			r.Absent = append(r.Absent, emp)
			continue
		}
		switch status {
		case StatusPresent:
			r.Present = append(r.Present, emp)
		case StatusLate:
			r.Late = append(r.Late, emp)
		case StatusHalfDay:
			r.HalfDay = append(r.HalfDay, emp)
		default:
			r.Absent = append(r.Absent, emp)
		}
	}
	return r
}

// =============================================================================
// PERIOD COUNTS
// =============================================================================

// CountAbsencesInPeriod counts absent records for employeeID dated in period.
func CountAbsencesInPeriod(employeeID hr.EmployeeID, records []Record, period hr.Period) int {
	return countStatus(employeeID, records, period, StatusAbsent)
}

// CountHalfDaysInPeriod counts half-day records for employeeID dated in period.
func CountHalfDaysInPeriod(employeeID hr.EmployeeID, records []Record, period hr.Period) int {
	return countStatus(employeeID, records, period, StatusHalfDay)
}

// AbsenceUnits is absences + halfDayWeight x half-days.
func AbsenceUnits(employeeID hr.EmployeeID, records []Record, period hr.Period, halfDayWeight decimal.Decimal) decimal.Decimal {
	absences := decimal.NewFromInt(int64(CountAbsencesInPeriod(employeeID, records, period)))
	halfDays := decimal.NewFromInt(int64(CountHalfDaysInPeriod(employeeID, records, period)))
	return absences.Add(halfDays.Mul(halfDayWeight))
}

func countStatus(employeeID hr.EmployeeID, records []Record, period hr.Period, status Status) int {
	n := 0
	for _, rec := range records {
		if rec.EmployeeID == employeeID && rec.Status == status && period.Contains(rec.Date) {
			n++
		}
	}
	return n
}
