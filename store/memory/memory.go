// Package memory provides in-memory implementations of every engine store,
// for tests and for running the server without a database file.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/balibad/payroll-engine/advance"
	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
	"github.com/balibad/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements hr.EmployeeDirectory, hr.ActivitySink, attendance.Store,
// advance.Store and payroll.RunStore. Values are copied on the way in and
// out so callers never share slices with the store.
type Memory struct {
	mu          sync.RWMutex
	employees   map[hr.EmployeeID]hr.Employee
	records     map[attendance.RecordID]attendance.Record
	recordDays  map[dayKey]attendance.RecordID
	advances    map[advance.RequestID]advance.Request
	recoupments []advance.Recoupment
	runs        map[payroll.RunID]payroll.Run
	activities  []hr.Activity
}

type dayKey struct {
	EmployeeID hr.EmployeeID
	Date       hr.Date
}

func New() *Memory {
	return &Memory{
		employees:  make(map[hr.EmployeeID]hr.Employee),
		records:    make(map[attendance.RecordID]attendance.Record),
		recordDays: make(map[dayKey]attendance.RecordID),
		advances:   make(map[advance.RequestID]advance.Request),
		runs:       make(map[payroll.RunID]payroll.Run),
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// SaveEmployee inserts or replaces an employee.
func (m *Memory) SaveEmployee(_ context.Context, e hr.Employee) error {
	if !e.Status.Valid() {
		return fmt.Errorf("%w: employee %s has status %q", hr.ErrUnknownStatus, e.ID, e.Status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) Employee(_ context.Context, id hr.EmployeeID) (hr.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return hr.Employee{}, hr.ErrEmployeeNotFound
	}
	return e, nil
}

func (m *Memory) ActiveEmployees(_ context.Context) ([]hr.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []hr.Employee
	for _, e := range m.employees {
		if e.IsActive() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) AppendRecord(_ context.Context, rec attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dayKey{EmployeeID: rec.EmployeeID, Date: rec.Date}
	if _, exists := m.recordDays[k]; exists {
		return hr.ErrDuplicateRecord
	}
	m.records[rec.ID] = copyRecord(rec)
	m.recordDays[k] = rec.ID
	return nil
}

func (m *Memory) UpdateRecord(_ context.Context, id attendance.RecordID, patch attendance.RecordPatch) (attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return attendance.Record{}, hr.ErrRecordNotFound
	}
	if patch.TimeOut != nil {
		out := *patch.TimeOut
		rec.TimeOut = &out
	}
	m.records[id] = rec
	return copyRecord(rec), nil
}

func (m *Memory) RecordsForEmployee(_ context.Context, id hr.EmployeeID, period hr.Period) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Record
	for _, rec := range m.records {
		if rec.EmployeeID == id && period.Contains(rec.Date) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) RecordsForDay(_ context.Context, date hr.Date) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.Record
	for _, rec := range m.records {
		if rec.Date.Equal(date) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func copyRecord(r attendance.Record) attendance.Record {
	if r.TimeOut != nil {
		out := *r.TimeOut
		r.TimeOut = &out
	}
	return r
}

// =============================================================================
// CASH ADVANCES
// =============================================================================

func (m *Memory) InsertAdvance(_ context.Context, r advance.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.advances[r.ID]; exists {
		return hr.ErrStaleState
	}
	m.advances[r.ID] = copyRequest(r)
	return nil
}

func (m *Memory) GetAdvance(_ context.Context, id advance.RequestID) (advance.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.advances[id]
	if !ok {
		return advance.Request{}, hr.ErrRequestNotFound
	}
	return copyRequest(r), nil
}

func (m *Memory) ListAdvances(_ context.Context, f advance.Filter) ([]advance.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []advance.Request
	for _, r := range m.advances {
		if f.Matches(r) {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestDate.Equal(out[j].RequestDate) {
			return out[i].RequestDate.Before(out[j].RequestDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) TransitionAdvance(_ context.Context, id advance.RequestID, t advance.Transition) (advance.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.advances[id]
	if !ok {
		return advance.Request{}, hr.ErrRequestNotFound
	}
	if r.Status != t.From {
		return advance.Request{}, hr.ErrStaleState
	}
	r = copyRequest(r)
	r.Status = t.To
	r.History = append(r.History, t)
	r.UpdatedAt = t.At
	m.advances[id] = r
	return copyRequest(r), nil
}

func (m *Memory) DeleteAdvance(_ context.Context, id advance.RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.advances[id]
	if !ok {
		return hr.ErrRequestNotFound
	}
	if r.Status != advance.StatusPending {
		return hr.ErrStaleState
	}
	delete(m.advances, id)
	return nil
}

func (m *Memory) AppendRecoupments(_ context.Context, rs []advance.Recoupment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		for _, existing := range m.recoupments {
			if existing.RequestID == r.RequestID && existing.CycleID == r.CycleID {
				return hr.ErrStaleState
			}
		}
	}
	m.recoupments = append(m.recoupments, rs...)
	return nil
}

func (m *Memory) ListRecoupments(_ context.Context, employeeID hr.EmployeeID) ([]advance.Recoupment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []advance.Recoupment
	for _, r := range m.recoupments {
		if r.EmployeeID == employeeID {
			out = append(out, r)
		}
	}
	return out, nil
}

func copyRequest(r advance.Request) advance.Request {
	r.History = append([]advance.Transition(nil), r.History...)
	return r
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, run payroll.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.Status == payroll.RunCommitted {
		for _, other := range m.runs {
			if other.ID != run.ID && other.CycleID == run.CycleID && other.Status == payroll.RunCommitted {
				return hr.ErrStaleState
			}
		}
	}
	m.runs[run.ID] = copyRun(run)
	return nil
}

func (m *Memory) GetRun(_ context.Context, id payroll.RunID) (payroll.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return payroll.Run{}, hr.ErrRunNotFound
	}
	return copyRun(run), nil
}

func (m *Memory) ListRuns(_ context.Context) ([]payroll.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, copyRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CommittedRun(_ context.Context, cycleID string) (payroll.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, run := range m.runs {
		if run.CycleID == cycleID && run.Status == payroll.RunCommitted {
			return copyRun(run), nil
		}
	}
	return payroll.Run{}, hr.ErrRunNotFound
}

func copyRun(r payroll.Run) payroll.Run {
	r.Payslips = append([]payroll.PayslipLine(nil), r.Payslips...)
	r.Failures = append([]payroll.Failure(nil), r.Failures...)
	return r
}

// =============================================================================
// ACTIVITY
// =============================================================================

func (m *Memory) Record(_ context.Context, a hr.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, a)
	return nil
}

// Activities returns the most recent limit events, newest first. A
// non-positive limit returns everything.
func (m *Memory) Activities(_ context.Context, limit int) ([]hr.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.activities)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]hr.Activity, 0, n)
	for i := len(m.activities) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.activities[i])
	}
	return out, nil
}
