/*
Package hr holds the value types shared by the attendance, cash-advance and
payroll packages.

PURPOSE:
  Nothing in here computes payroll. It defines the vocabulary the engine
  packages speak: money, calendar dates, periods, employee identity, the
  acting user, activity events, and the errors every package returns.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a currency amount backed by decimal.Decimal (never float64)
  - EmployeeID: type-safe employee identifier
  - Employee: the directory's view of a person on the payroll
  - EmployeeStatus: closed enumeration with a legacy-spelling policy

DESIGN PRINCIPLES:
  1. Precision: all arithmetic is decimal; rounding happens at explicit points
  2. Single currency: the console pays in pesos, minor unit = centavo (2dp)
  3. Closed enums: unknown status strings are errors, not silent defaults

SEE ALSO:
  - time.go: Date and Period
  - errors.go: sentinel and structured errors
  - activity.go: Actor, Activity, collaborator interfaces
*/
package hr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal currency amount
// =============================================================================

// MinorUnits is the number of decimal places kept after rounding.
const MinorUnits int32 = 2

// CurrencySymbol is used only when rendering amounts for humans.
const CurrencySymbol = "₱"

type Money struct {
	Value decimal.Decimal
}

func MoneyFromInt(value int64) Money { return Money{Value: decimal.NewFromInt(value)} }
func ZeroMoney() Money               { return Money{Value: decimal.Zero} }

// ParseMoney parses a decimal string such as "35000" or "1590.91".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	return Money{Value: d}, nil
}

// MustParseMoney is ParseMoney for literals in tests and seed data.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money           { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money           { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(f decimal.Decimal) Money { return Money{Value: m.Value.Mul(f)} }
func (m Money) Div(f decimal.Decimal) Money { return Money{Value: m.Value.Div(f)} }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool    { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool       { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool          { return m.Value.Equal(o.Value) }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

// Round rounds to MinorUnits, half away from zero. Every amount the engine
// emits is non-negative, where that is exactly round-half-up.
func (m Money) Round() Money {
	return Money{Value: m.Value.Round(MinorUnits)}
}

// String renders the amount with exactly MinorUnits decimals.
func (m Money) String() string {
	return m.Value.StringFixed(MinorUnits)
}

// Display renders the amount for activity messages, e.g. "₱5,000.00".
func (m Money) Display() string {
	s := m.Round().String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := CurrencySymbol + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Accept bare JSON numbers as well.
		d, derr := decimal.NewFromString(string(data))
		if derr != nil {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, string(data))
		}
		m.Value = d
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// =============================================================================
// EMPLOYEE
// =============================================================================

type EmployeeID string

type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "active"
	EmployeeOnLeave    EmployeeStatus = "on_leave"
	EmployeeTerminated EmployeeStatus = "terminated"
)

var employeeStatusAliases = map[string]EmployeeStatus{
	"active":     EmployeeActive,
	"on_leave":   EmployeeOnLeave,
	"onleave":    EmployeeOnLeave,
	"on-leave":   EmployeeOnLeave,
	"leave":      EmployeeOnLeave,
	"terminated": EmployeeTerminated,
	"inactive":   EmployeeTerminated,
}

// ParseEmployeeStatus maps stored strings, including legacy spellings, onto
// the closed set. Unknown values fail with ErrUnknownStatus.
func ParseEmployeeStatus(s string) (EmployeeStatus, error) {
	if st, ok := employeeStatusAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: employee status %q", ErrUnknownStatus, s)
}

func (s EmployeeStatus) Valid() bool {
	switch s {
	case EmployeeActive, EmployeeOnLeave, EmployeeTerminated:
		return true
	}
	return false
}

// Employee is read-only for the engine. The directory collaborator owns it.
type Employee struct {
	ID           EmployeeID
	Name         string
	AnnualSalary Money
	Status       EmployeeStatus
	Branch       string
}

func (e Employee) IsActive() bool { return e.Status == EmployeeActive }
