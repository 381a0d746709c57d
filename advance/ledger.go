package advance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/balibad/payroll-engine/hr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger owns the cash-advance lifecycle. Transitions on one request are
// serialised by a keyed mutex, and the store's compare-and-set guards
// against writers outside this process.
type Ledger struct {
	store     Store
	directory hr.EmployeeDirectory
	activity  hr.ActivitySink
	logger    *zap.Logger
	now       func() time.Time

	requestLocks hr.KeyedMutex
	cycleLocks   hr.KeyedMutex
}

type Option func(*Ledger)

func WithActivitySink(sink hr.ActivitySink) Option {
	return func(l *Ledger) { l.activity = sink }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock overrides time.Now for CreatedAt and history timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store Store, directory hr.EmployeeDirectory, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		directory: directory,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit records a new pending request.
func (l *Ledger) Submit(ctx context.Context, employeeID hr.EmployeeID, amount hr.Money, purpose string, date hr.Date) (Request, error) {
	actor, err := hr.ActorFrom(ctx)
	if err != nil {
		return Request{}, err
	}
	if !amount.IsPositive() {
		return Request{}, fmt.Errorf("%w: cash advance must be greater than zero, got %s", hr.ErrInvalidAmount, amount)
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return Request{}, fmt.Errorf("%w: purpose is required", hr.ErrInvalidInput)
	}
	if date.IsZero() {
		return Request{}, fmt.Errorf("%w: request date is missing", hr.ErrInvalidTimestamp)
	}
	emp, err := l.directory.Employee(ctx, employeeID)
	if err != nil {
		return Request{}, err
	}

	now := l.now().UTC()
	req := Request{
		ID:          RequestID(uuid.NewString()),
		EmployeeID:  emp.ID,
		Amount:      amount,
		Purpose:     purpose,
		RequestDate: date,
		Status:      StatusPending,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.store.InsertAdvance(ctx, req); err != nil {
		return Request{}, err
	}

	l.logger.Info("cash advance submitted",
		zap.String("request_id", string(req.ID)),
		zap.String("employee_id", string(emp.ID)),
		zap.String("amount", amount.String()))

	hr.Emit(ctx, l.activity, l.logger, hr.Activity{
		Type:   hr.ActivityCashAdvance,
		Action: "requested cash advance of " + amount.Display(),
		Target: emp.Name,
	})
	return req, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func (l *Ledger) Approve(ctx context.Context, id RequestID) (Request, error) {
	return l.transition(ctx, id, ActionApprove, "approved cash advance")
}

func (l *Ledger) Reject(ctx context.Context, id RequestID) (Request, error) {
	return l.transition(ctx, id, ActionReject, "rejected cash advance")
}

func (l *Ledger) MarkPaid(ctx context.Context, id RequestID) (Request, error) {
	return l.transition(ctx, id, ActionMarkPaid, "released cash advance")
}

func (l *Ledger) transition(ctx context.Context, id RequestID, action Action, verb string) (Request, error) {
	actor, err := hr.ActorFrom(ctx)
	if err != nil {
		return Request{}, err
	}

	unlock := l.requestLocks.Lock(string(id))
	defer unlock()

	current, err := l.store.GetAdvance(ctx, id)
	if err != nil {
		return Request{}, err
	}
	to, ok := Next(current.Status, action)
	if !ok {
		return Request{}, transitionError(current, action)
	}

	updated, err := l.store.TransitionAdvance(ctx, id, Transition{
		From:    current.Status,
		To:      to,
		ActorID: actor.ID,
		At:      l.now().UTC(),
	})
	if errors.Is(err, hr.ErrStaleState) {
		// Another process won the race; report against what it left behind.
		latest, gerr := l.store.GetAdvance(ctx, id)
		if gerr != nil {
			return Request{}, gerr
		}
		return Request{}, transitionError(latest, action)
	}
	if err != nil {
		return Request{}, err
	}

	l.logger.Info("cash advance transition",
		zap.String("request_id", string(id)),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.ID))

	l.emitFor(ctx, updated, verb+" of "+updated.Amount.Display())
	return updated, nil
}

func transitionError(r Request, action Action) error {
	return &hr.TransitionError{
		Kind:   "cash_advance",
		ID:     string(r.ID),
		From:   string(r.Status),
		Action: string(action),
	}
}

// Delete removes a request that is still pending.
func (l *Ledger) Delete(ctx context.Context, id RequestID) error {
	if _, err := hr.ActorFrom(ctx); err != nil {
		return err
	}

	unlock := l.requestLocks.Lock(string(id))
	defer unlock()

	current, err := l.store.GetAdvance(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != StatusPending {
		return fmt.Errorf("%w: cannot delete %s cash advance %s", hr.ErrInvalidOperation, current.Status, id)
	}
	if err := l.store.DeleteAdvance(ctx, id); err != nil {
		if errors.Is(err, hr.ErrStaleState) {
			return fmt.Errorf("%w: cash advance %s is no longer pending", hr.ErrInvalidOperation, id)
		}
		return err
	}
	l.emitFor(ctx, current, "deleted cash advance of "+current.Amount.Display())
	return nil
}

func (l *Ledger) emitFor(ctx context.Context, r Request, action string) {
	target := string(r.EmployeeID)
	if emp, err := l.directory.Employee(ctx, r.EmployeeID); err == nil {
		target = emp.Name
	}
	hr.Emit(ctx, l.activity, l.logger, hr.Activity{
		Type:   hr.ActivityCashAdvance,
		Action: action,
		Target: target,
	})
}

// =============================================================================
// QUERIES
// =============================================================================

func (l *Ledger) Get(ctx context.Context, id RequestID) (Request, error) {
	return l.store.GetAdvance(ctx, id)
}

func (l *Ledger) List(ctx context.Context, f Filter) ([]Request, error) {
	return l.store.ListAdvances(ctx, f)
}

// PendingCount is the number of requests awaiting a decision.
func (l *Ledger) PendingCount(ctx context.Context) (int, error) {
	pending, err := l.store.ListAdvances(ctx, Filter{Statuses: []Status{StatusPending}})
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// =============================================================================
// LIABILITY
// =============================================================================

// TotalOwed sums approved and paid advances dated strictly before asOf,
// less recoupments recorded by cycles that ended strictly before asOf.
func (l *Ledger) TotalOwed(ctx context.Context, employeeID hr.EmployeeID, asOf hr.Date) (hr.Money, error) {
	return l.sumOutstanding(ctx, employeeID, asOf, func(rc Recoupment) bool {
		return rc.AsOf.Before(asOf)
	})
}

// OwedForCycle is what payroll cycle cycleID ending at asOf deducts:
// approved and paid advances dated strictly before asOf, less recoupments
// recorded by every other cycle, whatever order those cycles were committed
// in. The cycle's own recoupments do not count, so recomputing a committed
// cycle reproduces its deduction.
func (l *Ledger) OwedForCycle(ctx context.Context, employeeID hr.EmployeeID, cycleID string, asOf hr.Date) (hr.Money, error) {
	return l.sumOutstanding(ctx, employeeID, asOf, func(rc Recoupment) bool {
		return rc.CycleID != cycleID
	})
}

func (l *Ledger) sumOutstanding(ctx context.Context, employeeID hr.EmployeeID, asOf hr.Date, counts func(Recoupment) bool) (hr.Money, error) {
	outstanding, err := l.outstanding(ctx, employeeID, asOf, counts)
	if err != nil {
		return hr.Money{}, err
	}
	total := hr.ZeroMoney()
	for _, o := range outstanding {
		total = total.Add(o.remaining)
	}
	return total, nil
}

type outstandingRequest struct {
	request   Request
	remaining hr.Money
}

// outstanding returns owed requests dated before asOf in allocation order,
// each reduced by the recoupments that count.
func (l *Ledger) outstanding(ctx context.Context, employeeID hr.EmployeeID, asOf hr.Date, counts func(Recoupment) bool) ([]outstandingRequest, error) {
	requests, err := l.store.ListAdvances(ctx, Filter{
		EmployeeID: employeeID,
		Statuses:   []Status{StatusApproved, StatusPaid},
	})
	if err != nil {
		return nil, err
	}
	recoupments, err := l.store.ListRecoupments(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	recouped := make(map[RequestID]hr.Money)
	for _, rc := range recoupments {
		if counts(rc) {
			recouped[rc.RequestID] = recouped[rc.RequestID].Add(rc.Amount)
		}
	}

	sort.SliceStable(requests, func(i, j int) bool {
		if !requests[i].RequestDate.Equal(requests[j].RequestDate) {
			return requests[i].RequestDate.Before(requests[j].RequestDate)
		}
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})

	var out []outstandingRequest
	for _, r := range requests {
		if !r.RequestDate.Before(asOf) {
			continue
		}
		remaining := r.Amount.Sub(recouped[r.ID])
		if remaining.IsNegative() {
			remaining = hr.ZeroMoney()
		}
		out = append(out, outstandingRequest{request: r, remaining: remaining})
	}
	return out, nil
}

// Recoup records amount as taken back from the employee's outstanding
// advances by payroll cycle cycleID, oldest request first. Calling it again
// for the same employee and cycle returns the rows already recorded.
func (l *Ledger) Recoup(ctx context.Context, employeeID hr.EmployeeID, cycleID string, asOf hr.Date, amount hr.Money) ([]Recoupment, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: recoupment cannot be negative", hr.ErrInvalidAmount)
	}

	unlock := l.cycleLocks.Lock(string(employeeID) + "/" + cycleID)
	defer unlock()

	existing, err := l.store.ListRecoupments(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	var already []Recoupment
	for _, rc := range existing {
		if rc.CycleID == cycleID {
			already = append(already, rc)
		}
	}
	if len(already) > 0 || amount.IsZero() {
		return already, nil
	}

	outstanding, err := l.outstanding(ctx, employeeID, asOf, func(Recoupment) bool { return true })
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	left := amount
	var rows []Recoupment
	for _, o := range outstanding {
		if !left.IsPositive() {
			break
		}
		take := o.remaining.Min(left)
		if !take.IsPositive() {
			continue
		}
		rows = append(rows, Recoupment{
			ID:         RecoupmentID(uuid.NewString()),
			RequestID:  o.request.ID,
			EmployeeID: employeeID,
			CycleID:    cycleID,
			AsOf:       asOf,
			Amount:     take,
			CreatedAt:  now,
		})
		left = left.Sub(take)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := l.store.AppendRecoupments(ctx, rows); err != nil {
		return nil, err
	}

	l.logger.Info("cash advance recouped",
		zap.String("employee_id", string(employeeID)),
		zap.String("cycle_id", cycleID),
		zap.String("amount", amount.Sub(left).String()))
	return rows, nil
}
