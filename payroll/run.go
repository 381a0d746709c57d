package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/balibad/payroll-engine/advance"
	"github.com/balibad/payroll-engine/hr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// RUN - One payroll pass over the active roster
// =============================================================================

type RunID string

type RunStatus string

const (
	RunDraft     RunStatus = "draft"
	RunComputed  RunStatus = "computed"
	RunCommitted RunStatus = "committed"
)

func ParseRunStatus(s string) (RunStatus, error) {
	switch st := RunStatus(s); st {
	case RunDraft, RunComputed, RunCommitted:
		return st, nil
	}
	return "", fmt.Errorf("%w: payroll run status %q", hr.ErrUnknownStatus, s)
}

// Failure is a per-employee reconciliation error kept on the run.
type Failure struct {
	EmployeeID hr.EmployeeID
	Code       string
	Message    string
}

type Run struct {
	ID          RunID
	CycleID     string
	Status      RunStatus
	Payslips    []PayslipLine
	Failures    []Failure
	CreatedBy   string
	CreatedAt   time.Time
	ComputedAt  time.Time
	CommittedBy string
	CommittedAt time.Time
}

// TotalNet sums net pay over the run's payslips.
func (r Run) TotalNet() hr.Money {
	total := hr.ZeroMoney()
	for _, p := range r.Payslips {
		total = total.Add(p.Net)
	}
	return total
}

type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	// GetRun returns hr.ErrRunNotFound for unknown ids.
	GetRun(ctx context.Context, id RunID) (Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]Run, error)
	// CommittedRun returns the committed run for cycleID, or hr.ErrRunNotFound.
	CommittedRun(ctx context.Context, cycleID string) (Run, error)
}

// Recouper records advance repayments taken through payroll.
type Recouper interface {
	Recoup(ctx context.Context, employeeID hr.EmployeeID, cycleID string, asOf hr.Date, amount hr.Money) ([]advance.Recoupment, error)
}

// =============================================================================
// RUN SERVICE
// =============================================================================

type RunService struct {
	Runs       RunStore
	Reconciler *Reconciler
	Directory  hr.EmployeeDirectory
	Records    RecordSource
	Recouper   Recouper        // optional
	Activity   hr.ActivitySink // optional
	Logger     *zap.Logger     // optional
	Now        func() time.Time

	locks hr.KeyedMutex
}

func (s *RunService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *RunService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Start opens a draft run for cycle.
func (s *RunService) Start(ctx context.Context, cycle Cycle) (Run, error) {
	actor, err := hr.ActorFrom(ctx)
	if err != nil {
		return Run{}, err
	}
	if err := s.ensureNotCommitted(ctx, cycle.ID, ""); err != nil {
		return Run{}, err
	}

	run := Run{
		ID:        RunID(uuid.NewString()),
		CycleID:   cycle.ID,
		Status:    RunDraft,
		CreatedBy: actor.ID,
		CreatedAt: s.now(),
	}
	if err := s.Runs.SaveRun(ctx, run); err != nil {
		return Run{}, err
	}
	s.logger().Info("payroll run started", zap.String("run_id", string(run.ID)), zap.String("cycle_id", cycle.ID))
	return run, nil
}

// Compute reconciles every active employee and stores the outcome on the
// run. Computing again replaces the previous outcome.
func (s *RunService) Compute(ctx context.Context, id RunID) (Run, error) {
	if _, err := hr.ActorFrom(ctx); err != nil {
		return Run{}, err
	}

	unlock := s.locks.Lock(string(id))
	defer unlock()

	run, err := s.Runs.GetRun(ctx, id)
	if err != nil {
		return Run{}, err
	}
	if run.Status == RunCommitted {
		return Run{}, runTransitionError(run, "compute")
	}
	if err := s.ensureNotCommitted(ctx, run.CycleID, run.ID); err != nil {
		return Run{}, err
	}
	cycle, err := ParseCycle(run.CycleID)
	if err != nil {
		return Run{}, err
	}

	employees, err := s.Directory.ActiveEmployees(ctx)
	if err != nil {
		return Run{}, err
	}
	batch, err := s.Reconciler.ReconcileBatch(ctx, employees, s.Records, cycle)
	if err != nil {
		return Run{}, err
	}

	run.Payslips = batch.Succeeded()
	run.Failures = nil
	for _, item := range batch.Failed() {
		run.Failures = append(run.Failures, Failure{
			EmployeeID: item.EmployeeID,
			Code:       hr.Code(item.Err),
			Message:    item.Err.Error(),
		})
	}
	run.Status = RunComputed
	run.ComputedAt = s.now()

	if err := s.Runs.SaveRun(ctx, run); err != nil {
		return Run{}, err
	}

	s.logger().Info("payroll run computed",
		zap.String("run_id", string(run.ID)),
		zap.Int("payslips", len(run.Payslips)),
		zap.Int("failures", len(run.Failures)))
	return run, nil
}

// Commit finalises a computed run and records advance recoupments.
func (s *RunService) Commit(ctx context.Context, id RunID) (Run, error) {
	actor, err := hr.ActorFrom(ctx)
	if err != nil {
		return Run{}, err
	}

	unlock := s.locks.Lock(string(id))
	defer unlock()

	run, err := s.Runs.GetRun(ctx, id)
	if err != nil {
		return Run{}, err
	}
	if run.Status != RunComputed {
		return Run{}, runTransitionError(run, "commit")
	}
	if err := s.ensureNotCommitted(ctx, run.CycleID, run.ID); err != nil {
		return Run{}, err
	}
	cycle, err := ParseCycle(run.CycleID)
	if err != nil {
		return Run{}, err
	}

	if s.Recouper != nil {
		for _, p := range run.Payslips {
			if !p.AdvanceDeduction.IsPositive() {
				continue
			}
			if _, err := s.Recouper.Recoup(ctx, p.EmployeeID, cycle.ID, cycle.End(), p.AdvanceDeduction); err != nil {
				return Run{}, fmt.Errorf("recoup advances for %s: %w", p.EmployeeID, err)
			}
		}
	}

	run.Status = RunCommitted
	run.CommittedBy = actor.ID
	run.CommittedAt = s.now()
	if err := s.Runs.SaveRun(ctx, run); err != nil {
		return Run{}, err
	}

	s.logger().Info("payroll run committed",
		zap.String("run_id", string(run.ID)),
		zap.String("cycle_id", run.CycleID),
		zap.String("total_net", run.TotalNet().String()))

	hr.Emit(ctx, s.Activity, s.logger(), hr.Activity{
		Type:   hr.ActivityPayroll,
		Action: fmt.Sprintf("processed payroll for %d employees", len(run.Payslips)),
		Target: run.CycleID,
	})
	return run, nil
}

func (s *RunService) Get(ctx context.Context, id RunID) (Run, error) {
	return s.Runs.GetRun(ctx, id)
}

func (s *RunService) List(ctx context.Context) ([]Run, error) {
	return s.Runs.ListRuns(ctx)
}

// Payslip previews one employee's line for cycle without touching any run.
func (s *RunService) Payslip(ctx context.Context, employeeID hr.EmployeeID, cycle Cycle) (PayslipLine, error) {
	emp, err := s.Directory.Employee(ctx, employeeID)
	if err != nil {
		return PayslipLine{}, err
	}
	records, err := s.Records.RecordsForEmployee(ctx, emp.ID, cycle.Period)
	if err != nil {
		return PayslipLine{}, err
	}
	return s.Reconciler.Reconcile(ctx, emp, records, cycle)
}

// ensureNotCommitted fails when a run other than self is already committed
// for cycleID.
func (s *RunService) ensureNotCommitted(ctx context.Context, cycleID string, self RunID) error {
	committed, err := s.Runs.CommittedRun(ctx, cycleID)
	switch {
	case errors.Is(err, hr.ErrRunNotFound):
		return nil
	case err != nil:
		return err
	case committed.ID == self:
		return nil
	}
	return fmt.Errorf("%w: cycle %s already committed by run %s", hr.ErrInvalidOperation, cycleID, committed.ID)
}

func runTransitionError(r Run, action string) error {
	return &hr.TransitionError{Kind: "payroll_run", ID: string(r.ID), From: string(r.Status), Action: action}
}
