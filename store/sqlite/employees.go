package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/balibad/payroll-engine/hr"
)

// =============================================================================
// EMPLOYEE DIRECTORY (hr.EmployeeDirectory)
// =============================================================================

// SaveEmployee inserts or replaces an employee.
func (s *Store) SaveEmployee(ctx context.Context, e hr.Employee) error {
	if !e.Status.Valid() {
		return fmt.Errorf("%w: employee %s has status %q", hr.ErrUnknownStatus, e.ID, e.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, annual_salary, status, branch, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			annual_salary = excluded.annual_salary,
			status = excluded.status,
			branch = excluded.branch,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Name, e.AnnualSalary.Value.String(), e.Status, nullString(e.Branch),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) Employee(ctx context.Context, id hr.EmployeeID) (hr.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, annual_salary, status, branch FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return hr.Employee{}, hr.ErrEmployeeNotFound
	}
	return e, err
}

func (s *Store) ActiveEmployees(ctx context.Context) ([]hr.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, annual_salary, status, branch FROM employees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var out []hr.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		// Status is filtered after parsing so legacy spellings still count.
		if e.IsActive() {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (hr.Employee, error) {
	var (
		e              hr.Employee
		salary, status string
		branch         sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Name, &salary, &status, &branch); err != nil {
		return hr.Employee{}, err
	}
	var err error
	if e.AnnualSalary, err = parseMoney(salary); err != nil {
		return hr.Employee{}, err
	}
	if e.Status, err = hr.ParseEmployeeStatus(status); err != nil {
		return hr.Employee{}, err
	}
	e.Branch = branch.String
	return e, nil
}
