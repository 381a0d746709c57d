package main

import (
	"context"
	"fmt"
	"time"

	"github.com/balibad/payroll-engine/advance"
	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
)

// employeeWriter is satisfied by both store implementations.
type employeeWriter interface {
	SaveEmployee(ctx context.Context, e hr.Employee) error
}

// demoRoster is the console's sample staff. Salaries are entered monthly and
// stored annually.
var demoRoster = []struct {
	id      string
	name    string
	monthly int64
	status  hr.EmployeeStatus
	branch  string
}{
	{"001", "Sarah Jenkins", 85000, hr.EmployeeActive, "Dimataling"},
	{"002", "Michael Chen", 65000, hr.EmployeeActive, "Tabina"},
	{"003", "Jessica Alverez", 42000, hr.EmployeeActive, "Dimataling"},
	{"004", "David Ross", 38000, hr.EmployeeActive, "Tabina"},
	{"005", "Emily Blunt", 35000, hr.EmployeeOnLeave, "Dimataling"},
}

// seedDemo loads the demo roster plus a little attendance and cash-advance
// history, going through the engine services so the activity feed fills in.
func seedDemo(ctx context.Context, store employeeWriter, att *attendance.Service, ledger *advance.Ledger) error {
	for _, d := range demoRoster {
		err := store.SaveEmployee(ctx, hr.Employee{
			ID:           hr.EmployeeID(d.id),
			Name:         d.name,
			AnnualSalary: hr.MoneyFromInt(d.monthly * 12),
			Status:       d.status,
			Branch:       d.branch,
		})
		if err != nil {
			return fmt.Errorf("seed employee %s: %w", d.id, err)
		}
	}

	ctx = hr.WithActor(ctx, hr.Actor{ID: "001", Name: "Sarah Jenkins"})
	loc := att.Cutoff.Location
	if loc == nil {
		loc = attendance.Manila
	}

	shifts := []struct {
		employee hr.EmployeeID
		date     hr.Date
		in, out  [2]int
	}{
		{"003", hr.NewDate(2024, time.May, 20), [2]int{8, 55}, [2]int{17, 0}},
		{"004", hr.NewDate(2024, time.May, 20), [2]int{9, 10}, [2]int{17, 5}},
		{"003", hr.NewDate(2024, time.May, 21), [2]int{8, 50}, [2]int{17, 2}},
		{"004", hr.NewDate(2024, time.May, 21), [2]int{8, 58}, [2]int{17, 0}},
	}
	for _, s := range shifts {
		if _, err := att.ClockIn(ctx, s.employee, s.date.At(s.in[0], s.in[1], loc)); err != nil {
			return fmt.Errorf("seed clock-in %s %s: %w", s.employee, s.date, err)
		}
		if _, err := att.ClockOut(ctx, s.employee, s.date.At(s.out[0], s.out[1], loc)); err != nil {
			return fmt.Errorf("seed clock-out %s %s: %w", s.employee, s.date, err)
		}
	}

	absences := []struct {
		employee hr.EmployeeID
		date     hr.Date
	}{
		{"003", hr.NewDate(2026, time.February, 10)},
		{"004", hr.NewDate(2026, time.February, 10)},
		{"003", hr.NewDate(2026, time.February, 12)},
	}
	for _, a := range absences {
		if _, err := att.MarkAbsent(ctx, a.employee, a.date); err != nil {
			return fmt.Errorf("seed absence %s %s: %w", a.employee, a.date, err)
		}
	}
	if _, err := att.MarkHalfDay(ctx, "002", hr.NewDate(2026, time.February, 11)); err != nil {
		return fmt.Errorf("seed half day: %w", err)
	}

	if _, err := ledger.Submit(ctx, "003", hr.MoneyFromInt(5000), "Medical emergency", hr.NewDate(2024, time.May, 20)); err != nil {
		return fmt.Errorf("seed cash advance: %w", err)
	}
	approved, err := ledger.Submit(ctx, "004", hr.MoneyFromInt(3000), "Family support", hr.NewDate(2024, time.May, 18))
	if err != nil {
		return fmt.Errorf("seed cash advance: %w", err)
	}
	if _, err := ledger.Approve(ctx, approved.ID); err != nil {
		return fmt.Errorf("seed approval: %w", err)
	}
	return nil
}
