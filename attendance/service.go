package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/balibad/payroll-engine/hr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// SERVICE - Clock-in / clock-out orchestration
// =============================================================================

// Service records attendance events. It owns no state; the Store enforces
// one record per employee per day.
//
// Example:
//
//	svc := &attendance.Service{Store: db, Directory: db, Cutoff: attendance.DefaultCutoff}
//	rec, err := svc.ClockIn(ctx, "001", time.Now())
type Service struct {
	Store     Store
	Directory hr.EmployeeDirectory
	Activity  hr.ActivitySink // optional
	Cutoff    Cutoff
	Workweek  Workweek    // zero means Monday to Friday
	Logger    *zap.Logger // optional
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) cutoff() Cutoff {
	if s.Cutoff.Location == nil {
		return DefaultCutoff
	}
	return s.Cutoff
}

// dayOf returns the business-local calendar day of at.
func (s *Service) dayOf(at time.Time) hr.Date {
	return hr.DateOf(at.In(s.cutoff().Location))
}

// ClockIn creates today's record for an active employee, classified once
// against the cutoff.
func (s *Service) ClockIn(ctx context.Context, employeeID hr.EmployeeID, at time.Time) (Record, error) {
	emp, err := s.Directory.Employee(ctx, employeeID)
	if err != nil {
		return Record{}, err
	}
	if !emp.IsActive() {
		return Record{}, fmt.Errorf("%w: employee %s is %s", hr.ErrInvalidOperation, emp.ID, emp.Status)
	}

	status, err := ClassifyClockIn(at, s.cutoff())
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:         RecordID(uuid.NewString()),
		EmployeeID: emp.ID,
		Date:       s.dayOf(at),
		TimeIn:     at.UTC(),
		Status:     status,
	}
	if err := s.Store.AppendRecord(ctx, rec); err != nil {
		return Record{}, err
	}

	s.logger().Info("clock in",
		zap.String("employee_id", string(emp.ID)),
		zap.String("date", rec.Date.String()),
		zap.String("status", string(status)))

	hr.Emit(ctx, s.Activity, s.logger(), hr.Activity{
		Type:      hr.ActivityAttendance,
		ActorID:   string(emp.ID),
		ActorName: emp.Name,
		Action:    "timed in",
		Target:    status.Label(),
		At:        rec.TimeIn,
	})
	return rec, nil
}

// ClockOut closes the employee's open record for the day of at.
func (s *Service) ClockOut(ctx context.Context, employeeID hr.EmployeeID, at time.Time) (Record, error) {
	if at.IsZero() {
		return Record{}, fmt.Errorf("%w: clock-out time is missing", hr.ErrInvalidTimestamp)
	}
	emp, err := s.Directory.Employee(ctx, employeeID)
	if err != nil {
		return Record{}, err
	}

	day := s.dayOf(at)
	records, err := s.Store.RecordsForEmployee(ctx, emp.ID, hr.DayPeriod(day))
	if err != nil {
		return Record{}, err
	}

	var open *Record
	for i := range records {
		if records[i].Open() {
			open = &records[i]
			break
		}
	}
	if open == nil {
		return Record{}, fmt.Errorf("%w: %s on %s", hr.ErrNoOpenRecord, emp.ID, day)
	}
	if at.Before(open.TimeIn) {
		return Record{}, fmt.Errorf("%w: time-out %s precedes time-in %s",
			hr.ErrInvalidTimestamp, at.Format(time.RFC3339), open.TimeIn.Format(time.RFC3339))
	}

	out := at.UTC()
	updated, err := s.Store.UpdateRecord(ctx, open.ID, RecordPatch{TimeOut: &out})
	if err != nil {
		return Record{}, err
	}

	hr.Emit(ctx, s.Activity, s.logger(), hr.Activity{
		Type:      hr.ActivityAttendance,
		ActorID:   string(emp.ID),
		ActorName: emp.Name,
		Action:    "timed out",
		At:        out,
	})
	return updated, nil
}

// MarkAbsent materialises an absent record so payroll can count it.
func (s *Service) MarkAbsent(ctx context.Context, employeeID hr.EmployeeID, date hr.Date) (Record, error) {
	if date.IsZero() {
		return Record{}, fmt.Errorf("%w: date is missing", hr.ErrInvalidTimestamp)
	}
	if _, err := s.Directory.Employee(ctx, employeeID); err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:         RecordID(uuid.NewString()),
		EmployeeID: employeeID,
		Date:       date,
		Status:     StatusAbsent,
	}
	if err := s.Store.AppendRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// MarkHalfDay records a half day for an active employee who has no record
// on date yet.
func (s *Service) MarkHalfDay(ctx context.Context, employeeID hr.EmployeeID, date hr.Date) (Record, error) {
	if date.IsZero() {
		return Record{}, fmt.Errorf("%w: date is missing", hr.ErrInvalidTimestamp)
	}
	emp, err := s.Directory.Employee(ctx, employeeID)
	if err != nil {
		return Record{}, err
	}
	if !emp.IsActive() {
		return Record{}, fmt.Errorf("%w: employee %s is %s", hr.ErrInvalidOperation, emp.ID, emp.Status)
	}
	rec := Record{
		ID:         RecordID(uuid.NewString()),
		EmployeeID: emp.ID,
		Date:       date,
		Status:     StatusHalfDay,
	}
	if err := s.Store.AppendRecord(ctx, rec); err != nil {
		return Record{}, err
	}

	hr.Emit(ctx, s.Activity, s.logger(), hr.Activity{
		Type:      hr.ActivityAttendance,
		ActorID:   string(emp.ID),
		ActorName: emp.Name,
		Action:    "worked",
		Target:    StatusHalfDay.Label() + " on " + date.String(),
		At:        date.Time(),
	})
	return rec, nil
}

// CloseDay marks every active employee without a record on date as absent
// and returns how many records it created. Days outside the workweek are
// skipped. Running it twice is harmless.
func (s *Service) CloseDay(ctx context.Context, date hr.Date) (int, error) {
	if !s.Workweek.Works(date) {
		s.logger().Debug("skipped non-working day",
			zap.String("date", date.String()),
			zap.Stringer("weekday", date.Weekday()))
		return 0, nil
	}
	roster, err := s.DailyRoster(ctx, date)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, emp := range roster.Absent {
		_, err := s.MarkAbsent(ctx, emp.ID, date)
		switch {
		case errors.Is(err, hr.ErrDuplicateRecord):
			// An absent record already exists.
		case err != nil:
			return created, fmt.Errorf("close day %s: %w", date, err)
		default:
			created++
		}
	}

	if created > 0 {
		s.logger().Info("closed day", zap.String("date", date.String()), zap.Int("absent", created))
	}
	return created, nil
}

// DailyRoster builds the roster for date from the directory and store.
func (s *Service) DailyRoster(ctx context.Context, date hr.Date) (Roster, error) {
	active, err := s.Directory.ActiveEmployees(ctx)
	if err != nil {
		return Roster{}, err
	}
	records, err := s.Store.RecordsForDay(ctx, date)
	if err != nil {
		return Roster{}, err
	}
	r := ComputeDailyRoster(active, records)
	r.Date = date
	return r, nil
}

// DaySummary holds the dashboard counts for one day.
type DaySummary struct {
	Date        hr.Date
	ActiveStaff int
	OnTime      int
	Late        int
	Absent      int
	HalfDay     int
}

func (s *Service) Summary(ctx context.Context, date hr.Date) (DaySummary, error) {
	r, err := s.DailyRoster(ctx, date)
	if err != nil {
		return DaySummary{}, err
	}
	return DaySummary{
		Date:        date,
		ActiveStaff: r.Total(),
		OnTime:      len(r.Present),
		Late:        len(r.Late),
		Absent:      len(r.Absent),
		HalfDay:     len(r.HalfDay),
	}, nil
}

// Today returns the current business-local date.
func (s *Service) Today(now time.Time) hr.Date {
	return s.dayOf(now)
}
