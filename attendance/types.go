/*
Package attendance classifies clock-in events and turns daily attendance into
the roster and absence counts that payroll consumes.

KEY CONCEPTS:
  - Record: one row per employee per calendar day, created at clock-in
  - Status: present, late, absent or half_day, derived once and never
    recomputed
  - Cutoff: the local wall-clock time after which a clock-in is late
  - Roster: the day's active employees split into status buckets

UNIQUENESS:
  An employee has at most one record per date. The store enforces it and
  returns hr.ErrDuplicateRecord on a second append, the same way a ledger
  refuses a second consumption on the same day.

SEE ALSO:
  - classifier.go: ClassifyClockIn, ParseTimestamp
  - roster.go: ComputeDailyRoster, absence counting
  - service.go: clock-in / clock-out orchestration
*/
package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/balibad/payroll-engine/hr"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
	StatusHalfDay Status = "half_day"
)

var statusAliases = map[string]Status{
	"present":  StatusPresent,
	"on_time":  StatusPresent,
	"on time":  StatusPresent,
	"late":     StatusLate,
	"absent":   StatusAbsent,
	"half_day": StatusHalfDay,
	"halfday":  StatusHalfDay,
	"half-day": StatusHalfDay,
}

// ParseStatus accepts the canonical values and known legacy spellings.
func ParseStatus(s string) (Status, error) {
	if st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: attendance status %q", hr.ErrUnknownStatus, s)
}

// Label is the wording used in activity targets.
func (s Status) Label() string {
	switch s {
	case StatusPresent:
		return "on time"
	case StatusHalfDay:
		return "half day"
	}
	return string(s)
}

// =============================================================================
// RECORD
// =============================================================================

type RecordID string

type Record struct {
	ID         RecordID
	EmployeeID hr.EmployeeID
	Date       hr.Date
	TimeIn     time.Time // zero for materialised absences
	TimeOut    *time.Time
	Status     Status
}

// Open reports whether the employee clocked in and has not clocked out.
func (r Record) Open() bool {
	return !r.TimeIn.IsZero() && r.TimeOut == nil && r.Status != StatusAbsent
}

// RecordPatch lists the fields UpdateRecord may change. Status is not one of
// them.
type RecordPatch struct {
	TimeOut *time.Time
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// RecordsForEmployee returns the employee's records with Date in period,
	// ordered by date.
	RecordsForEmployee(ctx context.Context, id hr.EmployeeID, period hr.Period) ([]Record, error)

	// RecordsForDay returns every record on date, ordered by employee id.
	RecordsForDay(ctx context.Context, date hr.Date) ([]Record, error)

	// AppendRecord fails with hr.ErrDuplicateRecord when the employee already
	// has a record for rec.Date.
	AppendRecord(ctx context.Context, rec Record) error

	// UpdateRecord applies patch and returns the stored record, or
	// hr.ErrRecordNotFound.
	UpdateRecord(ctx context.Context, id RecordID, patch RecordPatch) (Record, error)
}
