/*
Package payroll turns salaries, attendance and cash advances into payslip
lines for a monthly cycle.

RECONCILIATION:
  gross             = round(annualSalary / 12)
  dailyRate         = round(gross / WorkingDaysPerMonth)
  absenceDeduction  = round(dailyRate x absenceUnits)
  advanceDeduction  = OwedForCycle(employee, cycle.ID, cycle.End)
  net               = gross - absenceDeduction - advanceDeduction

  A negative net is an error carrying the full breakdown. It is never
  clamped to zero.

RUNS:
  A Run wraps one batch reconciliation of the active roster:

    draft ──compute──▶ computed ──commit──▶ committed
                         │  ▲
                         └──┘ (recompute)

  Committing records the advance recoupments against the cycle. Every
  other cycle, earlier or later, nets them out of its own deduction.

SEE ALSO:
  - reconciler.go: Reconcile, ReconcileBatch
  - run.go: RunService
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/balibad/payroll-engine/hr"
	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY
// =============================================================================

// DefaultWorkingDaysPerMonth divides monthly gross into a daily rate.
const DefaultWorkingDaysPerMonth = 22

type Policy struct {
	WorkingDaysPerMonth int
	// HalfDayWeight is how much of a daily rate a half-day costs. Zero means
	// half-days are paid in full.
	HalfDayWeight decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{WorkingDaysPerMonth: DefaultWorkingDaysPerMonth, HalfDayWeight: decimal.Zero}
}

func (p Policy) Validate() error {
	if p.WorkingDaysPerMonth <= 0 {
		return fmt.Errorf("%w: working days per month must be positive", hr.ErrInvalidInput)
	}
	if p.HalfDayWeight.IsNegative() || p.HalfDayWeight.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: half-day weight must be between 0 and 1", hr.ErrInvalidInput)
	}
	return nil
}

// =============================================================================
// CYCLE
// =============================================================================

// CycleLayout is the format of cycle IDs.
const CycleLayout = "2006-01"

// Cycle is one monthly pay period.
type Cycle struct {
	ID     string
	Period hr.Period
}

func MonthlyCycle(year int, month time.Month) Cycle {
	p := hr.MonthPeriod(year, month)
	return Cycle{ID: p.Start.Time().Format(CycleLayout), Period: p}
}

// ParseCycle parses "YYYY-MM".
func ParseCycle(s string) (Cycle, error) {
	t, err := time.Parse(CycleLayout, s)
	if err != nil {
		return Cycle{}, fmt.Errorf("%w: cycle %q is not YYYY-MM", hr.ErrInvalidPeriod, s)
	}
	return MonthlyCycle(t.Year(), t.Month()), nil
}

// CycleOf returns the cycle containing d.
func CycleOf(d hr.Date) Cycle {
	return MonthlyCycle(d.Year(), d.Month())
}

func (c Cycle) Start() hr.Date { return c.Period.Start }
func (c Cycle) End() hr.Date   { return c.Period.End }

// =============================================================================
// PAYSLIP
// =============================================================================

// PayslipLine is derived and deterministic: equal inputs give equal lines.
type PayslipLine struct {
	EmployeeID       hr.EmployeeID
	CycleID          string
	Gross            hr.Money
	AdvanceDeduction hr.Money
	AbsenceDeduction hr.Money
	AbsenceUnits     decimal.Decimal
	Net              hr.Money
}

func (p PayslipLine) TotalDeductions() hr.Money {
	return p.AdvanceDeduction.Add(p.AbsenceDeduction)
}
