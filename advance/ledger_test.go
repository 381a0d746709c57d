package advance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/balibad/payroll-engine/advance"
	"github.com/balibad/payroll-engine/hr"
	"github.com/balibad/payroll-engine/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*advance.Ledger, *memory.Memory, context.Context) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	for _, e := range []hr.Employee{
		{ID: "003", Name: "Jessica Alverez", AnnualSalary: hr.MoneyFromInt(504000), Status: hr.EmployeeActive},
		{ID: "004", Name: "David Ross", AnnualSalary: hr.MoneyFromInt(456000), Status: hr.EmployeeActive},
	} {
		require.NoError(t, store.SaveEmployee(ctx, e))
	}

	clock := time.Date(2024, time.May, 20, 2, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	ledger := advance.NewLedger(store, store,
		advance.WithActivitySink(store),
		advance.WithClock(now),
	)
	ctx = hr.WithActor(ctx, hr.Actor{ID: "001", Name: "Sarah Jenkins"})
	return ledger, store, ctx
}

func date(s string) hr.Date { return hr.MustParseDate(s) }

func submit(t *testing.T, l *advance.Ledger, ctx context.Context, emp hr.EmployeeID, amount int64, on string) advance.Request {
	t.Helper()
	r, err := l.Submit(ctx, emp, hr.MoneyFromInt(amount), "Family support", date(on))
	require.NoError(t, err)
	return r
}

func approve(t *testing.T, l *advance.Ledger, ctx context.Context, id advance.RequestID) advance.Request {
	t.Helper()
	r, err := l.Approve(ctx, id)
	require.NoError(t, err)
	return r
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestLedger_Submit(t *testing.T) {
	ledger, store, ctx := newTestLedger(t)

	r, err := ledger.Submit(ctx, "003", hr.MoneyFromInt(5000), "  Medical emergency ", date("2024-05-20"))
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, advance.StatusPending, r.Status)
	assert.Equal(t, "Medical emergency", r.Purpose)
	assert.Equal(t, "001", r.CreatedBy)

	acts, err := store.Activities(ctx, 1)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, hr.ActivityCashAdvance, acts[0].Type)
	assert.Equal(t, "requested cash advance of ₱5,000.00", acts[0].Action)
	assert.Equal(t, "Jessica Alverez", acts[0].Target)
	assert.Equal(t, "Sarah Jenkins", acts[0].ActorName)
}

func TestLedger_Submit_Rejections(t *testing.T) {
	ledger, _, ctx := newTestLedger(t)
	may20 := date("2024-05-20")

	tests := []struct {
		name    string
		ctx     context.Context
		emp     hr.EmployeeID
		amount  hr.Money
		purpose string
		date    hr.Date
		wantErr error
	}{
		{"zero amount", ctx, "003", hr.ZeroMoney(), "x", may20, hr.ErrInvalidAmount},
		{"negative amount", ctx, "003", hr.MoneyFromInt(-10), "x", may20, hr.ErrInvalidAmount},
		{"blank purpose", ctx, "003", hr.MoneyFromInt(10), "   ", may20, hr.ErrInvalidInput},
		{"missing date", ctx, "003", hr.MoneyFromInt(10), "x", hr.Date{}, hr.ErrInvalidTimestamp},
		{"unknown employee", ctx, "404", hr.MoneyFromInt(10), "x", may20, hr.ErrEmployeeNotFound},
		{"no actor", context.Background(), "003", hr.MoneyFromInt(10), "x", may20, hr.ErrMissingActor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Submit(tt.ctx, tt.emp, tt.amount, tt.purpose, tt.date)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	count, err := ledger.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rejected submissions leave nothing behind")
}

// =============================================================================
// STATE MACHINE TESTS
// =============================================================================

func TestLedger_ApproveThenPay(t *testing.T) {
	// GIVEN: A pending request
	// WHEN: Approving then marking it paid
	// THEN: History records both transitions with the actor

	ledger, _, ctx := newTestLedger(t)
	r := submit(t, ledger, ctx, "004", 3000, "2024-05-18")

	approved := approve(t, ledger, ctx, r.ID)
	assert.Equal(t, advance.StatusApproved, approved.Status)

	paid, err := ledger.MarkPaid(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, advance.StatusPaid, paid.Status)

	var moves []advance.Status
	for _, h := range paid.History {
		if h.From != "" {
			moves = append(moves, h.To)
		}
		assert.Equal(t, "001", h.ActorID)
	}
	assert.Equal(t, []advance.Status{advance.StatusApproved, advance.StatusPaid}, moves)
}

func TestLedger_IllegalTransitions(t *testing.T) {
	ledger, _, ctx := newTestLedger(t)

	rejected := submit(t, ledger, ctx, "003", 1000, "2024-05-01")
	_, err := ledger.Reject(ctx, rejected.ID)
	require.NoError(t, err)

	pending := submit(t, ledger, ctx, "003", 1000, "2024-05-02")

	paid := submit(t, ledger, ctx, "003", 1000, "2024-05-03")
	approve(t, ledger, ctx, paid.ID)
	_, err = ledger.MarkPaid(ctx, paid.ID)
	require.NoError(t, err)

	tests := []struct {
		name string
		do   func() (advance.Request, error)
	}{
		{"approve rejected", func() (advance.Request, error) { return ledger.Approve(ctx, rejected.ID) }},
		{"pay rejected", func() (advance.Request, error) { return ledger.MarkPaid(ctx, rejected.ID) }},
		{"pay pending", func() (advance.Request, error) { return ledger.MarkPaid(ctx, pending.ID) }},
		{"reject paid", func() (advance.Request, error) { return ledger.Reject(ctx, paid.ID) }},
		{"approve paid", func() (advance.Request, error) { return ledger.Approve(ctx, paid.ID) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.do()
			assert.ErrorIs(t, err, hr.ErrInvalidTransition)
			var te *hr.TransitionError
			assert.ErrorAs(t, err, &te)
		})
	}

	_, err = ledger.Approve(ctx, "missing")
	assert.ErrorIs(t, err, hr.ErrRequestNotFound)
}

func TestLedger_Transitions_RequireActor(t *testing.T) {
	ledger, _, ctx := newTestLedger(t)
	r := submit(t, ledger, ctx, "003", 1000, "2024-05-01")

	_, err := ledger.Approve(context.Background(), r.ID)
	assert.ErrorIs(t, err, hr.ErrMissingActor)

	got, err := ledger.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, advance.StatusPending, got.Status)
}

func TestLedger_ConcurrentDecisions_FirstWriterWins(t *testing.T) {
	// GIVEN: One pending request
	// WHEN: Approve and reject race
	// THEN: Exactly one succeeds and the other sees an invalid transition

	ledger, _, ctx := newTestLedger(t)
	r := submit(t, ledger, ctx, "003", 2000, "2024-05-10")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = ledger.Approve(ctx, r.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = ledger.Reject(ctx, r.ID)
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, hr.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	got, err := ledger.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal() || got.Status == advance.StatusApproved)
}

func TestLedger_Delete(t *testing.T) {
	ledger, _, ctx := newTestLedger(t)

	pending := submit(t, ledger, ctx, "003", 1000, "2024-05-01")
	require.NoError(t, ledger.Delete(ctx, pending.ID))
	_, err := ledger.Get(ctx, pending.ID)
	assert.ErrorIs(t, err, hr.ErrRequestNotFound)

	approved := submit(t, ledger, ctx, "003", 1000, "2024-05-02")
	approve(t, ledger, ctx, approved.ID)
	err = ledger.Delete(ctx, approved.ID)
	assert.ErrorIs(t, err, hr.ErrInvalidOperation, "only pending requests can be deleted")

	assert.ErrorIs(t, ledger.Delete(ctx, "missing"), hr.ErrRequestNotFound)
}

func TestLedger_List_Filters(t *testing.T) {
	ledger, _, ctx := newTestLedger(t)
	a := submit(t, ledger, ctx, "003", 1000, "2024-05-02")
	submit(t, ledger, ctx, "003", 2000, "2024-05-01")
	submit(t, ledger, ctx, "004", 3000, "2024-05-03")
	approve(t, ledger, ctx, a.ID)

	all, err := ledger.List(ctx, advance.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := ledger.List(ctx, advance.Filter{EmployeeID: "003"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, date("2024-05-01"), mine[0].RequestDate, "oldest first")

	approvedOnly, err := ledger.List(ctx, advance.Filter{Statuses: []advance.Status{advance.StatusApproved}})
	require.NoError(t, err)
	require.Len(t, approvedOnly, 1)
	assert.Equal(t, a.ID, approvedOnly[0].ID)

	pending, err := ledger.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

// =============================================================================
// LIABILITY TESTS
// =============================================================================

func TestLedger_TotalOwed(t *testing.T) {
	// GIVEN: Approved, paid, pending and rejected requests at various dates
	// WHEN: Asking for the total owed as of a date
	// THEN: Only approved/paid requests dated strictly before it count

	ledger, _, ctx := newTestLedger(t)

	a := submit(t, ledger, ctx, "004", 3000, "2024-05-18")
	approve(t, ledger, ctx, a.ID)

	b := submit(t, ledger, ctx, "004", 1500, "2024-05-25")
	approve(t, ledger, ctx, b.ID)
	_, err := ledger.MarkPaid(ctx, b.ID)
	require.NoError(t, err)

	submit(t, ledger, ctx, "004", 700, "2024-05-10") // pending

	c := submit(t, ledger, ctx, "004", 900, "2024-05-11")
	_, err = ledger.Reject(ctx, c.ID)
	require.NoError(t, err)

	d := submit(t, ledger, ctx, "004", 400, "2024-06-01")
	approve(t, ledger, ctx, d.ID)

	tests := []struct {
		asOf string
		want string
	}{
		{"2024-05-18", "0.00"},
		{"2024-05-19", "3000.00"},
		{"2024-05-26", "4500.00"},
		{"2024-06-01", "4500.00"},
		{"2024-06-02", "4900.00"},
	}
	for _, tt := range tests {
		owed, err := ledger.TotalOwed(ctx, "004", date(tt.asOf))
		require.NoError(t, err)
		assert.Equal(t, tt.want, owed.String(), "as of %s", tt.asOf)
	}

	other, err := ledger.TotalOwed(ctx, "003", date("2024-12-31"))
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func TestLedger_Recoup_OldestFirstAndIdempotent(t *testing.T) {
	// GIVEN: Two approved advances of 3000 (older) and 1500
	// WHEN: June payroll recoups 4000
	// THEN: The older is cleared, 1000 comes off the newer, and the July
	//       balance reflects it; repeating June changes nothing

	ledger, _, ctx := newTestLedger(t)
	older := submit(t, ledger, ctx, "004", 3000, "2024-05-18")
	approve(t, ledger, ctx, older.ID)
	newer := submit(t, ledger, ctx, "004", 1500, "2024-05-25")
	approve(t, ledger, ctx, newer.ID)

	juneEnd := date("2024-07-01")
	rows, err := ledger.Recoup(ctx, "004", "2024-06", juneEnd, hr.MoneyFromInt(4000))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, older.ID, rows[0].RequestID)
	assert.Equal(t, "3000.00", rows[0].Amount.String())
	assert.Equal(t, newer.ID, rows[1].RequestID)
	assert.Equal(t, "1000.00", rows[1].Amount.String())

	again, err := ledger.Recoup(ctx, "004", "2024-06", juneEnd, hr.MoneyFromInt(4000))
	require.NoError(t, err)
	assert.Len(t, again, 2, "second call returns the rows already recorded")

	// June itself still sees the full liability.
	owedJune, err := ledger.TotalOwed(ctx, "004", juneEnd)
	require.NoError(t, err)
	assert.Equal(t, "4500.00", owedJune.String())

	owedJuly, err := ledger.TotalOwed(ctx, "004", date("2024-08-01"))
	require.NoError(t, err)
	assert.Equal(t, "500.00", owedJuly.String())
}

func TestLedger_OwedForCycle_IgnoresCommitOrder(t *testing.T) {
	// GIVEN: One 5000 advance approved in January, recouped in full by March
	// WHEN: February asks what it owes after March was committed
	// THEN: February owes nothing while March still sees its own 5000

	ledger, _, ctx := newTestLedger(t)
	r := submit(t, ledger, ctx, "004", 5000, "2024-01-15")
	approve(t, ledger, ctx, r.ID)

	_, err := ledger.Recoup(ctx, "004", "2024-03", date("2024-04-01"), hr.MoneyFromInt(5000))
	require.NoError(t, err)

	feb, err := ledger.OwedForCycle(ctx, "004", "2024-02", date("2024-03-01"))
	require.NoError(t, err)
	assert.True(t, feb.IsZero(), "got %s", feb)

	mar, err := ledger.OwedForCycle(ctx, "004", "2024-03", date("2024-04-01"))
	require.NoError(t, err)
	assert.Equal(t, "5000.00", mar.String())

	apr, err := ledger.OwedForCycle(ctx, "004", "2024-04", date("2024-05-01"))
	require.NoError(t, err)
	assert.True(t, apr.IsZero())

	jan, err := ledger.OwedForCycle(ctx, "004", "2024-01", date("2024-02-01"))
	require.NoError(t, err)
	assert.True(t, jan.IsZero(), "January already netted out by March")
}

func TestLedger_Recoup_Bounds(t *testing.T) {
	ledger, _, ctx := newTestLedger(t)
	r := submit(t, ledger, ctx, "004", 1000, "2024-05-18")
	approve(t, ledger, ctx, r.ID)

	_, err := ledger.Recoup(ctx, "004", "2024-06", date("2024-07-01"), hr.MoneyFromInt(-1))
	assert.ErrorIs(t, err, hr.ErrInvalidAmount)

	rows, err := ledger.Recoup(ctx, "004", "2024-06", date("2024-07-01"), hr.ZeroMoney())
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = ledger.Recoup(ctx, "004", "2024-07", date("2024-08-01"), hr.MoneyFromInt(5000))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1000.00", rows[0].Amount.String(), "never recoups more than is owed")

	owed, err := ledger.TotalOwed(ctx, "004", date("2024-09-01"))
	require.NoError(t, err)
	assert.True(t, owed.IsZero())
}

// =============================================================================
// STATE MACHINE TABLE
// =============================================================================

func TestNext(t *testing.T) {
	to, ok := advance.Next(advance.StatusPending, advance.ActionApprove)
	assert.True(t, ok)
	assert.Equal(t, advance.StatusApproved, to)

	to, ok = advance.Next(advance.StatusApproved, advance.ActionMarkPaid)
	assert.True(t, ok)
	assert.Equal(t, advance.StatusPaid, to)

	for _, s := range []advance.Status{advance.StatusRejected, advance.StatusPaid} {
		for _, a := range []advance.Action{advance.ActionApprove, advance.ActionReject, advance.ActionMarkPaid} {
			_, ok := advance.Next(s, a)
			assert.False(t, ok, "%s is terminal", s)
		}
	}
}
