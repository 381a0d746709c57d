package api_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/balibad/payroll-engine/api"
	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
	"github.com/balibad/payroll-engine/payroll"
	"github.com/balibad/payroll-engine/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloser struct {
	mu     sync.Mutex
	closed []hr.Date
	fail   map[hr.Date]bool
}

func (f *fakeCloser) CloseDay(_ context.Context, date hr.Date) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[date] {
		return 0, errors.New("store unavailable")
	}
	f.closed = append(f.closed, date)
	return 2, nil
}

func (f *fakeCloser) Today(now time.Time) hr.Date { return hr.DateOf(now) }

func TestDayCloseScheduler_ClosesLookbackOldestFirst(t *testing.T) {
	// GIVEN: A three-day lookback on Thursday June 13
	// WHEN: Running one check where June 11 fails
	// THEN: June 10 and 12 are closed in order and the failure is skipped

	closer := &fakeCloser{fail: map[hr.Date]bool{hr.NewDate(2024, time.June, 11): true}}
	s := api.NewDayCloseScheduler(closer, nil)
	s.LookbackDays = 3
	s.Now = func() time.Time { return time.Date(2024, time.June, 13, 12, 0, 0, 0, time.UTC) }

	n := s.CheckAndProcess(context.Background())

	assert.Equal(t, 4, n)
	assert.Equal(t, []hr.Date{hr.NewDate(2024, time.June, 10), hr.NewDate(2024, time.June, 12)}, closer.closed)
}

func TestDayCloseScheduler_StartStop(t *testing.T) {
	closer := &fakeCloser{}
	s := api.NewDayCloseScheduler(closer, nil)
	s.CheckInterval = time.Hour
	s.Now = func() time.Time { return time.Date(2024, time.June, 13, 12, 0, 0, 0, time.UTC) }

	s.Start()
	s.Start() // second start is a no-op
	s.Stop()
	s.Stop()

	closer.mu.Lock()
	defer closer.mu.Unlock()
	assert.Equal(t, []hr.Date{hr.NewDate(2024, time.June, 12)}, closer.closed, "runs once immediately on start")
}

func TestDayCloseScheduler_Disabled(t *testing.T) {
	closer := &fakeCloser{}
	s := api.NewDayCloseScheduler(closer, nil)
	s.Enabled = false

	s.Start()
	s.Stop()

	assert.Empty(t, closer.closed)
}

func TestDayCloseScheduler_MondayLookbackSkipsWeekend(t *testing.T) {
	// GIVEN: One active employee and a two-day lookback run on Monday noon
	//        in Manila
	// WHEN: The scheduler closes Saturday and Sunday
	// THEN: No absences are created and June payroll deducts nothing

	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SaveEmployee(ctx, hr.Employee{
		ID: "003", Name: "Jessica Williams", AnnualSalary: hr.MoneyFromInt(420000), Status: hr.EmployeeActive,
	}))
	svc := &attendance.Service{Store: store, Directory: store, Cutoff: attendance.DefaultCutoff}

	s := api.NewDayCloseScheduler(svc, nil)
	s.LookbackDays = 2
	s.Now = func() time.Time { return time.Date(2024, time.June, 10, 12, 0, 0, 0, attendance.Manila) }

	assert.Zero(t, s.CheckAndProcess(ctx))

	june := payroll.MonthlyCycle(2024, time.June)
	records, err := store.RecordsForEmployee(ctx, "003", june.Period)
	require.NoError(t, err)
	assert.Empty(t, records)

	emp, err := store.Employee(ctx, "003")
	require.NoError(t, err)
	line, err := payroll.NewReconciler(payroll.DefaultPolicy(), nil).Reconcile(ctx, emp, records, june)
	require.NoError(t, err)
	assert.True(t, line.AbsenceDeduction.IsZero())
	assert.Equal(t, "35000.00", line.Net.String())
}
