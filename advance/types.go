/*
Package advance is the cash-advance ledger: employees request money ahead of
payday, an administrator approves or rejects, and approved advances are
deducted from later payslips.

REQUEST FLOW:
  ┌──────────────────────────────────────────────────────────┐
  │                                                          │
  │   Submit ──▶ pending ──approve──▶ approved ──pay──▶ paid │
  │                 │                                        │
  │                 └────reject────▶ rejected                │
  │                                                          │
  └──────────────────────────────────────────────────────────┘

  rejected and paid are terminal. Nothing ever returns to pending.

LIABILITY:
  An advance becomes money owed the moment it is approved, not when it is
  paid out. TotalOwed sums approved and paid advances dated before the
  cut-off, less whatever payroll has already recouped in earlier cycles.
  OwedForCycle is the payroll view: it nets out recoupments from every
  other cycle, so committing months out of order never deducts twice.

SEE ALSO:
  - ledger.go: Ledger (Submit, Approve, Reject, MarkPaid, TotalOwed,
    OwedForCycle, Recoup)
  - payroll/reconciler.go: consumes OwedForCycle
*/
package advance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/balibad/payroll-engine/hr"
)

// =============================================================================
// STATUS AND ACTIONS
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusPaid:
		return st, nil
	}
	return "", fmt.Errorf("%w: cash advance status %q", hr.ErrUnknownStatus, s)
}

// Terminal reports whether no further action is allowed.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusPaid
}

// Owed reports whether a request in this status counts towards liability.
func (s Status) Owed() bool {
	return s == StatusApproved || s == StatusPaid
}

type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionMarkPaid Action = "mark_paid"
)

var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
	},
	StatusApproved: {
		ActionMarkPaid: StatusPaid,
	},
}

// Next returns the status reached by applying action in from, or false when
// the state machine has no such edge.
func Next(from Status, action Action) (Status, bool) {
	to, ok := transitions[from][action]
	return to, ok
}

// =============================================================================
// REQUEST
// =============================================================================

type RequestID string

// Transition is one entry in a request's audit history.
type Transition struct {
	From    Status
	To      Status
	ActorID string
	At      time.Time
}

type Request struct {
	ID          RequestID
	EmployeeID  hr.EmployeeID
	Amount      hr.Money
	Purpose     string
	RequestDate hr.Date
	Status      Status
	History     []Transition
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// RECOUPMENT
// =============================================================================

type RecoupmentID string

// Recoupment records money taken back from a request through payroll. AsOf
// is the end of the cycle that recorded it.
type Recoupment struct {
	ID         RecoupmentID
	RequestID  RequestID
	EmployeeID hr.EmployeeID
	CycleID    string
	AsOf       hr.Date
	Amount     hr.Money
	CreatedAt  time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Filter narrows ListAdvances. Zero values match everything.
type Filter struct {
	EmployeeID hr.EmployeeID
	Statuses   []Status
}

func (f Filter) Matches(r Request) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

type Store interface {
	InsertAdvance(ctx context.Context, r Request) error

	// GetAdvance returns hr.ErrRequestNotFound for unknown ids.
	GetAdvance(ctx context.Context, id RequestID) (Request, error)

	// ListAdvances returns matching requests ordered by request date, then
	// creation time.
	ListAdvances(ctx context.Context, f Filter) ([]Request, error)

	// TransitionAdvance sets the status to t.To and appends t to the history
	// only if the stored status still equals t.From. Otherwise it returns
	// hr.ErrStaleState and changes nothing.
	TransitionAdvance(ctx context.Context, id RequestID, t Transition) (Request, error)

	// DeleteAdvance removes the request only while it is pending, returning
	// hr.ErrStaleState otherwise.
	DeleteAdvance(ctx context.Context, id RequestID) error

	AppendRecoupments(ctx context.Context, rs []Recoupment) error
	ListRecoupments(ctx context.Context, employeeID hr.EmployeeID) ([]Recoupment, error)
}
