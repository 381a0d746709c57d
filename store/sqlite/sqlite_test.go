package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/balibad/payroll-engine/advance"
	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
	"github.com/balibad/payroll-engine/payroll"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var may20 = hr.NewDate(2024, time.May, 20)

func seedEmployee(t *testing.T, s *Store, id string, status hr.EmployeeStatus) {
	t.Helper()
	require.NoError(t, s.SaveEmployee(context.Background(), hr.Employee{
		ID:           hr.EmployeeID(id),
		Name:         "Employee " + id,
		AnnualSalary: hr.MoneyFromInt(504000),
		Status:       status,
		Branch:       "Tabina",
	}))
}

// =============================================================================
// EMPLOYEE TESTS
// =============================================================================

func TestStore_Employees(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedEmployee(t, s, "002", hr.EmployeeActive)
	seedEmployee(t, s, "001", hr.EmployeeActive)
	seedEmployee(t, s, "005", hr.EmployeeOnLeave)

	e, err := s.Employee(ctx, "001")
	require.NoError(t, err)
	assert.Equal(t, "Employee 001", e.Name)
	assert.Equal(t, "504000", e.AnnualSalary.Value.String())
	assert.Equal(t, "Tabina", e.Branch)

	_, err = s.Employee(ctx, "404")
	assert.ErrorIs(t, err, hr.ErrEmployeeNotFound)

	active, err := s.ActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, hr.EmployeeID("001"), active[0].ID)
	assert.Equal(t, hr.EmployeeID("002"), active[1].ID)
}

func TestStore_Employees_RejectsUnknownStatus(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveEmployee(context.Background(), hr.Employee{ID: "009", Name: "Nobody", Status: "vacationing"})
	assert.ErrorIs(t, err, hr.ErrUnknownStatus)

	_, err = s.Employee(context.Background(), "009")
	assert.ErrorIs(t, err, hr.ErrEmployeeNotFound)
}

func TestStore_Ping(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))

	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()), "closed store")
}

func TestStore_Employees_LegacyStatusSpellings(t *testing.T) {
	// GIVEN: Rows written by an older console with free-form statuses
	// WHEN: Listing active employees
	// THEN: Legacy spellings map onto the closed status set

	s := newTestStore(t)
	ctx := context.Background()
	for id, status := range map[string]string{"010": "Active", "011": "on-leave", "012": "inactive"} {
		_, err := s.db.Exec(`INSERT INTO employees (id, name, annual_salary, status, updated_at) VALUES (?, ?, ?, ?, ?)`,
			id, "Legacy "+id, "420000", status, formatTime(time.Now()))
		require.NoError(t, err)
	}

	active, err := s.ActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, hr.EmployeeID("010"), active[0].ID)

	e, err := s.Employee(ctx, "012")
	require.NoError(t, err)
	assert.Equal(t, hr.EmployeeTerminated, e.Status)
}

// =============================================================================
// ATTENDANCE TESTS
// =============================================================================

func TestStore_Attendance_OneRecordPerDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	in := may20.At(8, 55, attendance.Manila).UTC()

	rec := attendance.Record{ID: "r1", EmployeeID: "003", Date: may20, TimeIn: in, Status: attendance.StatusPresent}
	require.NoError(t, s.AppendRecord(ctx, rec))

	dup := attendance.Record{ID: "r2", EmployeeID: "003", Date: may20, Status: attendance.StatusAbsent}
	assert.ErrorIs(t, s.AppendRecord(ctx, dup), hr.ErrDuplicateRecord)

	other := attendance.Record{ID: "r3", EmployeeID: "003", Date: may20.AddDays(1), Status: attendance.StatusAbsent}
	require.NoError(t, s.AppendRecord(ctx, other))

	out := may20.At(17, 0, attendance.Manila).UTC()
	updated, err := s.UpdateRecord(ctx, "r1", attendance.RecordPatch{TimeOut: &out})
	require.NoError(t, err)
	require.NotNil(t, updated.TimeOut)
	assert.True(t, updated.TimeOut.Equal(out))
	assert.True(t, updated.TimeIn.Equal(in))
	assert.Equal(t, attendance.StatusPresent, updated.Status)

	_, err = s.UpdateRecord(ctx, "missing", attendance.RecordPatch{TimeOut: &out})
	assert.ErrorIs(t, err, hr.ErrRecordNotFound)

	day, err := s.RecordsForDay(ctx, may20)
	require.NoError(t, err)
	require.Len(t, day, 1)

	all, err := s.RecordsForEmployee(ctx, "003", hr.MonthPeriod(2024, time.May))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[1].TimeIn.IsZero(), "absences have no time-in")
	assert.Nil(t, all[1].TimeOut)

	june, err := s.RecordsForEmployee(ctx, "003", hr.MonthPeriod(2024, time.June))
	require.NoError(t, err)
	assert.Empty(t, june)
}

// =============================================================================
// CASH ADVANCE TESTS
// =============================================================================

func newRequest(id string, status advance.Status) advance.Request {
	now := time.Date(2024, time.May, 20, 1, 0, 0, 0, time.UTC)
	return advance.Request{
		ID:          advance.RequestID(id),
		EmployeeID:  "003",
		Amount:      hr.MustParseMoney("5000.50"),
		Purpose:     "Medical emergency",
		RequestDate: may20,
		Status:      status,
		CreatedBy:   "001",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestStore_Advances_CompareAndSwap(t *testing.T) {
	// GIVEN: A pending request
	// WHEN: Two transitions both expect pending
	// THEN: The first applies and the second reports stale state

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertAdvance(ctx, newRequest("ca1", advance.StatusPending)))

	at := time.Date(2024, time.May, 21, 0, 0, 0, 0, time.UTC)
	approved, err := s.TransitionAdvance(ctx, "ca1", advance.Transition{
		From: advance.StatusPending, To: advance.StatusApproved, ActorID: "001", At: at,
	})
	require.NoError(t, err)
	assert.Equal(t, advance.StatusApproved, approved.Status)
	require.NotEmpty(t, approved.History)
	last := approved.History[len(approved.History)-1]
	assert.Equal(t, advance.StatusApproved, last.To)
	assert.True(t, last.At.Equal(at))

	_, err = s.TransitionAdvance(ctx, "ca1", advance.Transition{
		From: advance.StatusPending, To: advance.StatusRejected, ActorID: "002", At: at,
	})
	assert.ErrorIs(t, err, hr.ErrStaleState)

	_, err = s.TransitionAdvance(ctx, "missing", advance.Transition{From: advance.StatusPending, To: advance.StatusApproved})
	assert.ErrorIs(t, err, hr.ErrRequestNotFound)

	got, err := s.GetAdvance(ctx, "ca1")
	require.NoError(t, err)
	assert.Equal(t, advance.StatusApproved, got.Status)
	assert.Equal(t, "5000.50", got.Amount.String())
	assert.Equal(t, may20, got.RequestDate)
}

func TestStore_Advances_DeleteOnlyPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertAdvance(ctx, newRequest("ca1", advance.StatusPending)))
	require.NoError(t, s.InsertAdvance(ctx, newRequest("ca2", advance.StatusApproved)))

	require.NoError(t, s.DeleteAdvance(ctx, "ca1"))
	_, err := s.GetAdvance(ctx, "ca1")
	assert.ErrorIs(t, err, hr.ErrRequestNotFound)

	assert.ErrorIs(t, s.DeleteAdvance(ctx, "ca2"), hr.ErrStaleState)
	assert.ErrorIs(t, s.DeleteAdvance(ctx, "ca1"), hr.ErrRequestNotFound)
}

func TestStore_Advances_ListFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertAdvance(ctx, newRequest("ca1", advance.StatusPending)))
	require.NoError(t, s.InsertAdvance(ctx, newRequest("ca2", advance.StatusApproved)))
	other := newRequest("ca3", advance.StatusPaid)
	other.EmployeeID = "004"
	require.NoError(t, s.InsertAdvance(ctx, other))

	all, err := s.ListAdvances(ctx, advance.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	owed, err := s.ListAdvances(ctx, advance.Filter{
		EmployeeID: "003",
		Statuses:   []advance.Status{advance.StatusApproved, advance.StatusPaid},
	})
	require.NoError(t, err)
	require.Len(t, owed, 1)
	assert.Equal(t, advance.RequestID("ca2"), owed[0].ID)
}

func TestStore_Recoupments_UniquePerRequestAndCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := advance.Recoupment{
		ID: "rc1", RequestID: "ca2", EmployeeID: "004", CycleID: "2024-06",
		AsOf: hr.NewDate(2024, time.July, 1), Amount: hr.MoneyFromInt(3000),
		CreatedAt: time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.AppendRecoupments(ctx, []advance.Recoupment{row}))

	again := row
	again.ID = "rc2"
	assert.ErrorIs(t, s.AppendRecoupments(ctx, []advance.Recoupment{again}), hr.ErrStaleState)

	rows, err := s.ListRecoupments(ctx, "004")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, hr.NewDate(2024, time.July, 1), rows[0].AsOf)
	assert.Equal(t, "3000.00", rows[0].Amount.String())
}

// =============================================================================
// PAYROLL RUN TESTS
// =============================================================================

func TestStore_Runs_RoundTripAndSingleCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, time.July, 1, 1, 0, 0, 0, time.UTC)

	run := payroll.Run{
		ID:        "run1",
		CycleID:   "2024-06",
		Status:    payroll.RunComputed,
		CreatedBy: "001",
		CreatedAt: created,
		Payslips: []payroll.PayslipLine{{
			EmployeeID:       "003",
			CycleID:          "2024-06",
			Gross:            hr.MustParseMoney("35000.00"),
			AdvanceDeduction: hr.MustParseMoney("5000.00"),
			AbsenceDeduction: hr.MustParseMoney("1590.91"),
			AbsenceUnits:     decimal.NewFromInt(1),
			Net:              hr.MustParseMoney("28409.09"),
		}},
		Failures:   []payroll.Failure{{EmployeeID: "004", Code: "negative_net_pay", Message: "boom"}},
		ComputedAt: created.Add(time.Minute),
	}
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, payroll.RunComputed, got.Status)
	require.Len(t, got.Payslips, 1)
	assert.Equal(t, "28409.09", got.Payslips[0].Net.String())
	assert.Equal(t, "1", got.Payslips[0].AbsenceUnits.String())
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "negative_net_pay", got.Failures[0].Code)
	assert.True(t, got.CommittedAt.IsZero())

	_, err = s.CommittedRun(ctx, "2024-06")
	assert.ErrorIs(t, err, hr.ErrRunNotFound)

	run.Status = payroll.RunCommitted
	run.CommittedBy = "001"
	run.CommittedAt = created.Add(time.Hour)
	require.NoError(t, s.SaveRun(ctx, run))

	committed, err := s.CommittedRun(ctx, "2024-06")
	require.NoError(t, err)
	assert.Equal(t, payroll.RunID("run1"), committed.ID)

	rival := payroll.Run{ID: "run2", CycleID: "2024-06", Status: payroll.RunCommitted, CreatedAt: created.Add(2 * time.Hour)}
	assert.ErrorIs(t, s.SaveRun(ctx, rival), hr.ErrStaleState)

	rival.Status = payroll.RunDraft
	require.NoError(t, s.SaveRun(ctx, rival), "drafts for a committed cycle may exist")

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, payroll.RunID("run2"), runs[0].ID, "newest first")

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, hr.ErrRunNotFound)
}

// =============================================================================
// ACTIVITY TESTS
// =============================================================================

func TestStore_Activities_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, time.May, 20, 1, 0, 0, 0, time.UTC)

	for i, action := range []string{"timed in", "requested cash advance", "timed out"} {
		require.NoError(t, s.Record(ctx, hr.Activity{
			ID:        "a" + string(rune('1'+i)),
			Type:      hr.ActivityAttendance,
			ActorID:   "003",
			ActorName: "Jessica",
			Action:    action,
			At:        base.Add(time.Duration(i) * time.Minute),
		}))
	}

	acts, err := s.Activities(ctx, 2)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "timed out", acts[0].Action)
	assert.Equal(t, "requested cash advance", acts[1].Action)

	require.NoError(t, s.Reset(ctx))
	acts, err = s.Activities(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, acts)
}
