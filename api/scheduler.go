/*
scheduler.go - Automated end-of-day absence marking

PURPOSE:
  Periodically closes finished attendance days so that employees who never
  clocked in have an absent record for payroll to count.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each check closes the previous LookbackDays calendar days, newest last
  - Days outside the workweek are skipped by CloseDay itself
  - CloseDay is idempotent, so repeated checks only create missing rows

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - LookbackDays:  How many finished days to (re)close (default: 1)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewDayCloseScheduler(attendanceSvc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CloseDay endpoint (manual close)
  - attendance/service.go: CloseDay
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
	"go.uber.org/zap"
)

// DayCloser is the slice of attendance.Service the scheduler drives.
type DayCloser interface {
	CloseDay(ctx context.Context, date hr.Date) (int, error)
	Today(now time.Time) hr.Date
}

// DayCloseScheduler marks absences for finished days.
type DayCloseScheduler struct {
	Closer        DayCloser
	Logger        *zap.Logger
	CheckInterval time.Duration
	LookbackDays  int
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewDayCloseScheduler creates a new scheduler.
func NewDayCloseScheduler(closer DayCloser, logger *zap.Logger) *DayCloseScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DayCloseScheduler{
		Closer:        closer,
		Logger:        logger,
		CheckInterval: time.Hour,
		LookbackDays:  1,
		Enabled:       true,
		Now:           time.Now,
	}
}

var _ DayCloser = (*attendance.Service)(nil)

// Start begins the scheduler.
func (ds *DayCloseScheduler) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		ds.Logger.Info("day-close scheduler disabled")
		return
	}
	if ds.ticker != nil {
		return
	}

	ds.ticker = time.NewTicker(ds.CheckInterval)
	ds.stop = make(chan struct{})
	ds.wg.Add(1)

	go ds.run(ds.ticker, ds.stop)

	ds.Logger.Info("day-close scheduler started", zap.Duration("interval", ds.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight check to finish.
func (ds *DayCloseScheduler) Stop() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.ticker != nil {
		ds.ticker.Stop()
		close(ds.stop)
		ds.wg.Wait()
		ds.ticker = nil
		ds.Logger.Info("day-close scheduler stopped")
	}
}

func (ds *DayCloseScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ds.wg.Done()

	// Run immediately on start
	ds.CheckAndProcess(context.Background())

	for {
		select {
		case <-ticker.C:
			ds.CheckAndProcess(context.Background())
		case <-stop:
			return
		}
	}
}

// CheckAndProcess closes the last LookbackDays finished days and returns the
// number of absent records created.
func (ds *DayCloseScheduler) CheckAndProcess(ctx context.Context) int {
	today := ds.Closer.Today(ds.Now())
	lookback := ds.LookbackDays
	if lookback <= 0 {
		lookback = 1
	}

	total := 0
	for i := lookback; i >= 1; i-- {
		day := today.AddDays(-i)
		n, err := ds.Closer.CloseDay(ctx, day)
		if err != nil {
			ds.Logger.Error("close day failed", zap.String("date", day.String()), zap.Error(err))
			continue
		}
		total += n
	}
	if total > 0 {
		ds.Logger.Info("day-close completed", zap.Int("marked_absent", total))
	}
	return total
}
