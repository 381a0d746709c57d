/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error kinds in one place so the HTTP layer and the persistence layer
  can classify failures without importing every engine package.

ERROR CATEGORIES:
  1. Validation errors - bad input, amounts, timestamps, periods, enums
  2. Lifecycle errors - illegal transitions, stale compare-and-set
  3. Lookup errors - employee, request, record or run not found
  4. Payroll errors - negative net pay (never clamped)

USAGE:
  Engine packages wrap sentinels with context:

    return fmt.Errorf("%w: amount must be positive", hr.ErrInvalidAmount)

  Callers classify with errors.Is / errors.As or the helpers below.

SEE ALSO:
  - api/handlers.go: maps Code(err) onto HTTP statuses
*/
package hr

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for non-positive or unparseable amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTimestamp is returned for missing or out-of-order times.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidTransition is returned when a lifecycle action is not
	// permitted from the current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidInput is returned for missing or malformed fields such as a
	// blank purpose or a bad policy value.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidOperation is returned for requests that are well formed but
	// not allowed in the current state (deleting a decided request,
	// re-running a committed cycle).
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNegativeNetPay is returned when deductions exceed gross pay.
	ErrNegativeNetPay = errors.New("negative net pay")

	ErrEmployeeNotFound = errors.New("employee not found")
	ErrRequestNotFound  = errors.New("cash advance request not found")
	ErrRecordNotFound   = errors.New("attendance record not found")
	ErrRunNotFound      = errors.New("payroll run not found")

	// ErrDuplicateRecord is returned when an employee already has an
	// attendance record for the day.
	ErrDuplicateRecord = errors.New("attendance already recorded for this day")

	// ErrNoOpenRecord is returned when clocking out without a time-in.
	ErrNoOpenRecord = errors.New("no open attendance record")

	// ErrMissingActor is returned when a mutation has no acting user.
	ErrMissingActor = errors.New("missing actor")

	// ErrUnknownStatus is returned when a stored status string is not part
	// of the closed set.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrInvalidPeriod is returned when a period is empty or reversed.
	ErrInvalidPeriod = errors.New("invalid period: end not after start")

	// ErrStaleState is returned by stores when a compare-and-set finds the
	// row no longer in the expected status.
	ErrStaleState = errors.New("stale state")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError describes a rejected lifecycle action.
type TransitionError struct {
	Kind   string // "cash_advance", "payroll_run"
	ID     string
	From   string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %s: status is %s", e.Action, e.Kind, e.ID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NegativeNetPayError reports the full breakdown for a payslip that would
// pay out less than zero.
type NegativeNetPayError struct {
	EmployeeID EmployeeID
	CycleID    string
	Gross      Money
	Deductions Money
	Net        Money
}

func (e *NegativeNetPayError) Error() string {
	return fmt.Sprintf("negative net pay for %s in %s: gross %s, deductions %s, net %s",
		e.EmployeeID, e.CycleID, e.Gross, e.Deductions, e.Net)
}

func (e *NegativeNetPayError) Unwrap() error {
	return ErrNegativeNetPay
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrUnknownStatus)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrRunNotFound)
}

// IsConflict returns true if the error means the resource is not in a state
// that allows the operation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateRecord) ||
		errors.Is(err, ErrNoOpenRecord) ||
		errors.Is(err, ErrStaleState)
}

// Code returns a stable machine-readable code for err. Payroll runs persist
// it per failed employee and the API returns it in error bodies.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNegativeNetPay):
		return "negative_net_pay"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, ErrInvalidPeriod):
		return "invalid_period"
	case errors.Is(err, ErrUnknownStatus):
		return "unknown_status"
	case errors.Is(err, ErrDuplicateRecord):
		return "duplicate_record"
	case errors.Is(err, ErrNoOpenRecord):
		return "no_open_record"
	case errors.Is(err, ErrStaleState):
		return "stale_state"
	case errors.Is(err, ErrMissingActor):
		return "missing_actor"
	case IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}
