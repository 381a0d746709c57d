package payroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
	"github.com/balibad/payroll-engine/payroll"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

// fixedAdvances returns a fixed balance per employee.
type fixedAdvances map[hr.EmployeeID]hr.Money

func (f fixedAdvances) OwedForCycle(_ context.Context, id hr.EmployeeID, _ string, _ hr.Date) (hr.Money, error) {
	if m, ok := f[id]; ok {
		return m, nil
	}
	return hr.ZeroMoney(), nil
}

type failingAdvances struct{}

func (failingAdvances) OwedForCycle(context.Context, hr.EmployeeID, string, hr.Date) (hr.Money, error) {
	return hr.Money{}, errors.New("ledger offline")
}

// fixedRecords serves records from a slice.
type fixedRecords []attendance.Record

func (f fixedRecords) RecordsForEmployee(_ context.Context, id hr.EmployeeID, period hr.Period) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, r := range f {
		if r.EmployeeID == id && period.Contains(r.Date) {
			out = append(out, r)
		}
	}
	return out, nil
}

var june = payroll.MonthlyCycle(2024, time.June)

func staff(id string, annual int64) hr.Employee {
	return hr.Employee{
		ID:           hr.EmployeeID(id),
		Name:         "Employee " + id,
		AnnualSalary: hr.MoneyFromInt(annual),
		Status:       hr.EmployeeActive,
	}
}

func absences(id string, days ...int) []attendance.Record {
	var out []attendance.Record
	for _, d := range days {
		out = append(out, attendance.Record{
			EmployeeID: hr.EmployeeID(id),
			Date:       hr.NewDate(2024, time.June, d),
			Status:     attendance.StatusAbsent,
		})
	}
	return out
}

// =============================================================================
// RECONCILE TESTS
// =============================================================================

func TestReconcile_NoDeductions(t *testing.T) {
	// GIVEN: Annual salary 420000, no advances, no absences
	// WHEN: Reconciling June
	// THEN: Net equals the monthly gross of 35000

	r := payroll.NewReconciler(payroll.DefaultPolicy(), fixedAdvances{})

	line, err := r.Reconcile(context.Background(), staff("003", 420000), nil, june)
	require.NoError(t, err)

	assert.Equal(t, "35000.00", line.Gross.String())
	assert.True(t, line.AdvanceDeduction.IsZero())
	assert.True(t, line.AbsenceDeduction.IsZero())
	assert.Equal(t, "35000.00", line.Net.String())
	assert.Equal(t, "2024-06", line.CycleID)
}

func TestReconcile_AdvanceAndAbsence(t *testing.T) {
	// GIVEN: Same employee with a 5000 advance and one absence
	// WHEN: Reconciling June
	// THEN: Net = 35000 - 5000 - 1590.91 = 28409.09

	r := payroll.NewReconciler(payroll.DefaultPolicy(), fixedAdvances{"003": hr.MoneyFromInt(5000)})

	line, err := r.Reconcile(context.Background(), staff("003", 420000), absences("003", 10), june)
	require.NoError(t, err)

	assert.Equal(t, "1590.91", r.DailyRate(staff("003", 420000)).String())
	assert.Equal(t, "5000.00", line.AdvanceDeduction.String())
	assert.Equal(t, "1590.91", line.AbsenceDeduction.String())
	assert.Equal(t, "1", line.AbsenceUnits.String())
	assert.Equal(t, "6590.91", line.TotalDeductions().String())
	assert.Equal(t, "28409.09", line.Net.String())
	assert.True(t, line.Net.Equal(line.Gross.Sub(line.AdvanceDeduction).Sub(line.AbsenceDeduction)))
}

func TestReconcile_NegativeNetIsAnError(t *testing.T) {
	// GIVEN: Deductions larger than gross
	// WHEN: Reconciling
	// THEN: NegativeNetPayError with the breakdown, never a clamped value

	r := payroll.NewReconciler(payroll.DefaultPolicy(), fixedAdvances{"004": hr.MoneyFromInt(30000)})

	_, err := r.Reconcile(context.Background(), staff("004", 420000), absences("004", 3, 4, 5, 6), june)
	require.Error(t, err)
	assert.ErrorIs(t, err, hr.ErrNegativeNetPay)

	var neg *hr.NegativeNetPayError
	require.ErrorAs(t, err, &neg)
	assert.Equal(t, hr.EmployeeID("004"), neg.EmployeeID)
	assert.Equal(t, "2024-06", neg.CycleID)
	assert.Equal(t, "35000.00", neg.Gross.String())
	assert.Equal(t, "36363.64", neg.Deductions.String())
	assert.Equal(t, "-1363.64", neg.Net.String())
	assert.Equal(t, "negative_net_pay", hr.Code(err))
}

func TestReconcile_ZeroNetIsAllowed(t *testing.T) {
	r := payroll.NewReconciler(payroll.DefaultPolicy(), fixedAdvances{"004": hr.MoneyFromInt(35000)})

	line, err := r.Reconcile(context.Background(), staff("004", 420000), nil, june)
	require.NoError(t, err)
	assert.True(t, line.Net.IsZero())
}

func TestReconcile_IgnoresRecordsOutsideCycle(t *testing.T) {
	r := payroll.NewReconciler(payroll.DefaultPolicy(), fixedAdvances{})
	records := append(absences("003", 10), attendance.Record{
		EmployeeID: "003",
		Date:       hr.NewDate(2024, time.July, 1),
		Status:     attendance.StatusAbsent,
	})

	line, err := r.Reconcile(context.Background(), staff("003", 420000), records, june)
	require.NoError(t, err)
	assert.Equal(t, "1", line.AbsenceUnits.String())
}

func TestReconcile_Deterministic(t *testing.T) {
	r := payroll.NewReconciler(payroll.DefaultPolicy(), fixedAdvances{"003": hr.MoneyFromInt(1234)})
	emp := staff("003", 512345)
	records := absences("003", 3, 17)

	first, err := r.Reconcile(context.Background(), emp, records, june)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Reconcile(context.Background(), emp, records, june)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestComputeAbsenceDeduction_LinearInAbsences(t *testing.T) {
	// GIVEN: A fixed daily rate
	// WHEN: Increasing whole absences one at a time
	// THEN: The deduction grows by exactly one daily rate per absence

	r := payroll.NewReconciler(payroll.DefaultPolicy(), nil)
	emp := staff("003", 420000)
	rate := r.DailyRate(emp)

	var days []int
	for n := 0; n <= 5; n++ {
		got, units := r.ComputeAbsenceDeduction(emp, absences("003", days...), june)
		assert.Equal(t, int64(n), units.IntPart())
		assert.True(t, got.Equal(rate.Mul(decimal.NewFromInt(int64(n)))), "n=%d got %s", n, got)
		days = append(days, n+1)
	}
}

func TestComputeAbsenceDeduction_HalfDayWeight(t *testing.T) {
	records := []attendance.Record{
		{EmployeeID: "003", Date: hr.NewDate(2024, time.June, 3), Status: attendance.StatusHalfDay},
		{EmployeeID: "003", Date: hr.NewDate(2024, time.June, 4), Status: attendance.StatusHalfDay},
	}
	emp := staff("003", 420000)

	free := payroll.NewReconciler(payroll.DefaultPolicy(), nil)
	got, _ := free.ComputeAbsenceDeduction(emp, records, june)
	assert.True(t, got.IsZero(), "half-days are paid in full by default")

	policy := payroll.DefaultPolicy()
	policy.HalfDayWeight = decimal.RequireFromString("0.5")
	weighted := payroll.NewReconciler(policy, nil)
	got, units := weighted.ComputeAbsenceDeduction(emp, records, june)
	assert.Equal(t, "1", units.String())
	assert.Equal(t, "1590.91", got.String())
}

func TestComputeGross_Rounding(t *testing.T) {
	assert.Equal(t, "35000.00", payroll.ComputeGross(staff("1", 420000)).String())
	assert.Equal(t, "8333.33", payroll.ComputeGross(staff("1", 100000)).String())
	assert.Equal(t, "8333.42", payroll.ComputeGross(staff("1", 100001)).String())
	assert.Equal(t, "0.00", payroll.ComputeGross(staff("1", 0)).String())
}

func TestReconcile_AdvanceSourceFailure(t *testing.T) {
	r := payroll.NewReconciler(payroll.DefaultPolicy(), failingAdvances{})
	_, err := r.Reconcile(context.Background(), staff("003", 420000), nil, june)
	assert.EqualError(t, err, "advances for 003: ledger offline")
}

// =============================================================================
// BATCH TESTS
// =============================================================================

func TestReconcileBatch_PartialFailure(t *testing.T) {
	// GIVEN: Three employees, one of whom owes more than their gross
	// WHEN: Reconciling the batch
	// THEN: Two payslips and one NegativeNetPay failure, in input order

	r := payroll.NewReconciler(payroll.DefaultPolicy(), fixedAdvances{"002": hr.MoneyFromInt(90000)})
	r.Workers = 2
	employees := []hr.Employee{staff("001", 1020000), staff("002", 780000), staff("003", 504000)}
	records := fixedRecords(absences("003", 10))

	result, err := r.ReconcileBatch(context.Background(), employees, records, june)
	require.NoError(t, err)

	require.Len(t, result.Items, 3)
	for i, emp := range employees {
		assert.Equal(t, emp.ID, result.Items[i].EmployeeID)
	}

	ok := result.Succeeded()
	require.Len(t, ok, 2)
	assert.Equal(t, hr.EmployeeID("001"), ok[0].EmployeeID)
	assert.Equal(t, "85000.00", ok[0].Net.String())
	assert.Equal(t, hr.EmployeeID("003"), ok[1].EmployeeID)
	assert.Equal(t, "40090.91", ok[1].Net.String())

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, hr.EmployeeID("002"), failed[0].EmployeeID)
	assert.ErrorIs(t, failed[0].Err, hr.ErrNegativeNetPay)
	assert.Nil(t, failed[0].Payslip)
}

func TestReconcileBatch_MatchesIndividualReconcile(t *testing.T) {
	r := payroll.NewReconciler(payroll.DefaultPolicy(), fixedAdvances{"002": hr.MoneyFromInt(2500)})
	r.Workers = 3
	var employees []hr.Employee
	var records fixedRecords
	for i := 1; i <= 12; i++ {
		id := string(rune('A' + i))
		employees = append(employees, staff(id, int64(300000+i*1000)))
		records = append(records, absences(id, i)...)
	}

	result, err := r.ReconcileBatch(context.Background(), employees, records, june)
	require.NoError(t, err)
	require.Len(t, result.Succeeded(), len(employees))

	for i, emp := range employees {
		single, err := r.Reconcile(context.Background(), emp, absences(string(emp.ID), i+1), june)
		require.NoError(t, err)
		assert.Equal(t, single, *result.Items[i].Payslip)
	}
}

func TestReconcileBatch_CancelledContext(t *testing.T) {
	r := payroll.NewReconciler(payroll.DefaultPolicy(), fixedAdvances{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := r.ReconcileBatch(ctx, []hr.Employee{staff("001", 420000)}, fixedRecords(nil), june)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, result.Items, 1)
	assert.ErrorIs(t, result.Items[0].Err, context.Canceled)
}

// =============================================================================
// POLICY AND CYCLE TESTS
// =============================================================================

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, payroll.DefaultPolicy().Validate())

	bad := payroll.DefaultPolicy()
	bad.WorkingDaysPerMonth = 0
	assert.ErrorIs(t, bad.Validate(), hr.ErrInvalidInput)

	bad = payroll.DefaultPolicy()
	bad.HalfDayWeight = decimal.NewFromInt(2)
	assert.ErrorIs(t, bad.Validate(), hr.ErrInvalidInput)
}

func TestParseCycle(t *testing.T) {
	c, err := payroll.ParseCycle("2026-02")
	require.NoError(t, err)
	assert.Equal(t, "2026-02", c.ID)
	assert.Equal(t, hr.NewDate(2026, time.February, 1), c.Start())
	assert.Equal(t, hr.NewDate(2026, time.March, 1), c.End())
	assert.Equal(t, 28, c.Period.Days())

	_, err = payroll.ParseCycle("February")
	assert.ErrorIs(t, err, hr.ErrInvalidPeriod)

	assert.Equal(t, "2024-06", payroll.CycleOf(hr.NewDate(2024, time.June, 30)).ID)
}
