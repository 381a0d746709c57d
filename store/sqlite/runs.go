package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/balibad/payroll-engine/hr"
	"github.com/balibad/payroll-engine/payroll"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYROLL RUN STORE (payroll.RunStore)
// =============================================================================

const runColumns = `id, cycle_id, status, payslips_json, failures_json, created_by, created_at, computed_at, committed_by, committed_at`

// payslipJSON is the persisted shape of a payslip line.
type payslipJSON struct {
	EmployeeID       string          `json:"employee_id"`
	CycleID          string          `json:"cycle_id"`
	Gross            hr.Money        `json:"gross"`
	AdvanceDeduction hr.Money        `json:"advance_deduction"`
	AbsenceDeduction hr.Money        `json:"absence_deduction"`
	AbsenceUnits     decimal.Decimal `json:"absence_units"`
	Net              hr.Money        `json:"net"`
}

type failureJSON struct {
	EmployeeID string `json:"employee_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (s *Store) SaveRun(ctx context.Context, run payroll.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payslips := make([]payslipJSON, len(run.Payslips))
	for i, p := range run.Payslips {
		payslips[i] = payslipJSON{
			EmployeeID:       string(p.EmployeeID),
			CycleID:          p.CycleID,
			Gross:            p.Gross,
			AdvanceDeduction: p.AdvanceDeduction,
			AbsenceDeduction: p.AbsenceDeduction,
			AbsenceUnits:     p.AbsenceUnits,
			Net:              p.Net,
		}
	}
	failures := make([]failureJSON, len(run.Failures))
	for i, f := range run.Failures {
		failures[i] = failureJSON{EmployeeID: string(f.EmployeeID), Code: f.Code, Message: f.Message}
	}
	payslipsJSON, err := json.Marshal(payslips)
	if err != nil {
		return fmt.Errorf("failed to encode payslips: %w", err)
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}

	query := `
		INSERT INTO payroll_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			payslips_json = excluded.payslips_json,
			failures_json = excluded.failures_json,
			computed_at = excluded.computed_at,
			committed_by = excluded.committed_by,
			committed_at = excluded.committed_at
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.CycleID, run.Status, string(payslipsJSON), string(failuresJSON),
		nullString(run.CreatedBy), formatTime(run.CreatedAt), nullTime(run.ComputedAt),
		nullString(run.CommittedBy), nullTime(run.CommittedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: cycle %s already has a committed run", hr.ErrStaleState, run.CycleID)
		}
		return fmt.Errorf("failed to save payroll run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id payroll.RunID) (payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM payroll_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Run{}, hr.ErrRunNotFound
	}
	return run, err
}

func (s *Store) ListRuns(ctx context.Context) ([]payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM payroll_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll runs: %w", err)
	}
	defer rows.Close()

	var out []payroll.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *Store) CommittedRun(ctx context.Context, cycleID string) (payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM payroll_runs WHERE cycle_id = ? AND status = ?`,
		cycleID, payroll.RunCommitted)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Run{}, hr.ErrRunNotFound
	}
	return run, err
}

func scanRun(row scanner) (payroll.Run, error) {
	var (
		run                        payroll.Run
		status, payslips, failures string
		createdAt                  string
		createdBy, committedBy     sql.NullString
		computedAt, committedAt    sql.NullString
	)
	err := row.Scan(&run.ID, &run.CycleID, &status, &payslips, &failures,
		&createdBy, &createdAt, &computedAt, &committedBy, &committedAt)
	if err != nil {
		return payroll.Run{}, err
	}

	if run.Status, err = payroll.ParseRunStatus(status); err != nil {
		return payroll.Run{}, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return payroll.Run{}, err
	}
	if run.ComputedAt, err = parseNullTime(computedAt); err != nil {
		return payroll.Run{}, err
	}
	if run.CommittedAt, err = parseNullTime(committedAt); err != nil {
		return payroll.Run{}, err
	}
	run.CreatedBy = createdBy.String
	run.CommittedBy = committedBy.String

	var lines []payslipJSON
	if err := json.Unmarshal([]byte(payslips), &lines); err != nil {
		return payroll.Run{}, fmt.Errorf("corrupt payslips for run %s: %w", run.ID, err)
	}
	for _, l := range lines {
		run.Payslips = append(run.Payslips, payroll.PayslipLine{
			EmployeeID:       hr.EmployeeID(l.EmployeeID),
			CycleID:          l.CycleID,
			Gross:            l.Gross,
			AdvanceDeduction: l.AdvanceDeduction,
			AbsenceDeduction: l.AbsenceDeduction,
			AbsenceUnits:     l.AbsenceUnits,
			Net:              l.Net,
		})
	}

	var fails []failureJSON
	if err := json.Unmarshal([]byte(failures), &fails); err != nil {
		return payroll.Run{}, fmt.Errorf("corrupt failures for run %s: %w", run.ID, err)
	}
	for _, f := range fails {
		run.Failures = append(run.Failures, payroll.Failure{
			EmployeeID: hr.EmployeeID(f.EmployeeID),
			Code:       f.Code,
			Message:    f.Message,
		})
	}
	return run, nil
}

// =============================================================================
// ACTIVITY FEED (hr.ActivitySink)
// =============================================================================

func (s *Store) Record(ctx context.Context, a hr.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, type, actor_id, actor_name, action, target, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, nullString(a.ActorID), nullString(a.ActorName), a.Action,
		nullString(a.Target), formatTime(a.At),
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// Activities returns the most recent limit events, newest first. A
// non-positive limit returns everything.
func (s *Store) Activities(ctx context.Context, limit int) ([]hr.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, type, actor_id, actor_name, action, target, at FROM activities ORDER BY at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []hr.Activity
	for rows.Next() {
		var (
			a                          hr.Activity
			typ, at                    string
			actorID, actorName, target sql.NullString
		)
		if err := rows.Scan(&a.ID, &typ, &actorID, &actorName, &a.Action, &target, &at); err != nil {
			return nil, err
		}
		a.Type = hr.ActivityType(typ)
		a.ActorID, a.ActorName, a.Target = actorID.String, actorName.String, target.String
		if a.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Reset clears all data; used by the demo seeding.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"activities", "payroll_runs", "recoupments", "advance_transitions",
		"cash_advances", "attendance_records", "employees"}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}
