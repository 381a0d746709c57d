package payroll

import (
	"context"
	"fmt"

	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// AdvanceSource is the slice of the cash-advance ledger payroll reads.
// OwedForCycle must ignore recoupments already recorded by cycleID itself.
type AdvanceSource interface {
	OwedForCycle(ctx context.Context, employeeID hr.EmployeeID, cycleID string, asOf hr.Date) (hr.Money, error)
}

// RecordSource supplies attendance records for batch reconciliation.
type RecordSource interface {
	RecordsForEmployee(ctx context.Context, id hr.EmployeeID, period hr.Period) ([]attendance.Record, error)
}

// =============================================================================
// RECONCILER
// =============================================================================

// DefaultWorkers bounds ReconcileBatch when Reconciler.Workers is zero.
const DefaultWorkers = 4

type Reconciler struct {
	Policy   Policy
	Advances AdvanceSource
	Workers  int
}

func NewReconciler(policy Policy, advances AdvanceSource) *Reconciler {
	return &Reconciler{Policy: policy, Advances: advances, Workers: DefaultWorkers}
}

// ComputeGross is the monthly gross: annual salary / 12, rounded.
func ComputeGross(emp hr.Employee) hr.Money {
	return emp.AnnualSalary.Div(decimal.NewFromInt(12)).Round()
}

// DailyRate is round(gross / working days).
func (r *Reconciler) DailyRate(emp hr.Employee) hr.Money {
	days := r.Policy.WorkingDaysPerMonth
	if days <= 0 {
		days = DefaultWorkingDaysPerMonth
	}
	return ComputeGross(emp).Div(decimal.NewFromInt(int64(days))).Round()
}

// ComputeAbsenceDeduction charges the daily rate per absence unit in cycle.
// Rounding the rate first keeps the deduction linear in whole absences.
func (r *Reconciler) ComputeAbsenceDeduction(emp hr.Employee, records []attendance.Record, cycle Cycle) (hr.Money, decimal.Decimal) {
	units := attendance.AbsenceUnits(emp.ID, records, cycle.Period, r.Policy.HalfDayWeight)
	return r.DailyRate(emp).Mul(units).Round(), units
}

// ComputeAdvanceDeduction is what the employee owes as of the cycle end,
// net of what other cycles already recouped.
func (r *Reconciler) ComputeAdvanceDeduction(ctx context.Context, emp hr.Employee, cycle Cycle) (hr.Money, error) {
	if r.Advances == nil {
		return hr.ZeroMoney(), nil
	}
	owed, err := r.Advances.OwedForCycle(ctx, emp.ID, cycle.ID, cycle.End())
	if err != nil {
		return hr.Money{}, fmt.Errorf("advances for %s: %w", emp.ID, err)
	}
	return owed.Round(), nil
}

// Reconcile computes one payslip line. It fails with *hr.NegativeNetPayError
// when deductions exceed gross.
func (r *Reconciler) Reconcile(ctx context.Context, emp hr.Employee, records []attendance.Record, cycle Cycle) (PayslipLine, error) {
	gross := ComputeGross(emp)
	absence, units := r.ComputeAbsenceDeduction(emp, records, cycle)
	advance, err := r.ComputeAdvanceDeduction(ctx, emp, cycle)
	if err != nil {
		return PayslipLine{}, err
	}

	line := PayslipLine{
		EmployeeID:       emp.ID,
		CycleID:          cycle.ID,
		Gross:            gross,
		AdvanceDeduction: advance,
		AbsenceDeduction: absence,
		AbsenceUnits:     units,
	}
	line.Net = gross.Sub(line.TotalDeductions())

	if line.Net.IsNegative() {
		return PayslipLine{}, &hr.NegativeNetPayError{
			EmployeeID: emp.ID,
			CycleID:    cycle.ID,
			Gross:      gross,
			Deductions: line.TotalDeductions(),
			Net:        line.Net,
		}
	}
	return line, nil
}

// =============================================================================
// BATCH
// =============================================================================

// BatchItem is one employee's outcome. Exactly one of Payslip and Err is set.
type BatchItem struct {
	EmployeeID hr.EmployeeID
	Payslip    *PayslipLine
	Err        error
}

type BatchResult struct {
	CycleID string
	Items   []BatchItem // input order
}

func (b BatchResult) Succeeded() []PayslipLine {
	var out []PayslipLine
	for _, it := range b.Items {
		if it.Payslip != nil {
			out = append(out, *it.Payslip)
		}
	}
	return out
}

func (b BatchResult) Failed() []BatchItem {
	var out []BatchItem
	for _, it := range b.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// ReconcileBatch reconciles each employee independently on a bounded pool.
// One employee's failure never affects another's line. The returned error is
// only the caller's context error.
func (r *Reconciler) ReconcileBatch(ctx context.Context, employees []hr.Employee, source RecordSource, cycle Cycle) (BatchResult, error) {
	result := BatchResult{CycleID: cycle.ID, Items: make([]BatchItem, len(employees))}

	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, emp := range employees {
		i, emp := i, emp
		g.Go(func() error {
			item := BatchItem{EmployeeID: emp.ID}
			if err := ctx.Err(); err != nil {
				item.Err = err
				result.Items[i] = item
				return nil
			}
			records, err := source.RecordsForEmployee(ctx, emp.ID, cycle.Period)
			if err != nil {
				item.Err = fmt.Errorf("attendance for %s: %w", emp.ID, err)
				result.Items[i] = item
				return nil
			}
			line, err := r.Reconcile(ctx, emp, records, cycle)
			if err != nil {
				item.Err = err
			} else {
				item.Payslip = &line
			}
			result.Items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	return result, ctx.Err()
}
