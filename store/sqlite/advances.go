package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/balibad/payroll-engine/advance"
	"github.com/balibad/payroll-engine/hr"
)

// =============================================================================
// CASH ADVANCE STORE (advance.Store)
// =============================================================================

const advanceColumns = `id, employee_id, amount, purpose, request_date, status, created_by, created_at, updated_at`

func (s *Store) InsertAdvance(ctx context.Context, r advance.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cash_advances (`+advanceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.EmployeeID, r.Amount.Value.String(), r.Purpose, r.RequestDate.String(),
			r.Status, nullString(r.CreatedBy), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return hr.ErrStaleState
			}
			return fmt.Errorf("failed to insert cash advance: %w", err)
		}
		for _, t := range r.History {
			if err := insertTransition(ctx, tx, r.ID, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetAdvance(ctx context.Context, id advance.RequestID) (advance.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAdvance(ctx, s.db, id)
}

func (s *Store) ListAdvances(ctx context.Context, f advance.Filter) ([]advance.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + advanceColumns + ` FROM cash_advances`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY request_date, created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash advances: %w", err)
	}
	var out []advance.Request
	for rows.Next() {
		r, err := scanAdvance(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Histories are loaded after the cursor is closed; a single-connection
	// pool cannot run two queries at once.
	for i := range out {
		if out[i].History, err = loadHistory(ctx, s.db, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) TransitionAdvance(ctx context.Context, id advance.RequestID, t advance.Transition) (advance.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out advance.Request
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE cash_advances SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			t.To, formatTime(t.At), id, t.From)
		if err != nil {
			return fmt.Errorf("failed to update cash advance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := getAdvance(ctx, tx, id); err != nil {
				return err
			}
			return hr.ErrStaleState
		}
		if err := insertTransition(ctx, tx, id, t); err != nil {
			return err
		}
		out, err = getAdvance(ctx, tx, id)
		return err
	})
	return out, err
}

func (s *Store) DeleteAdvance(ctx context.Context, id advance.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM cash_advances WHERE id = ? AND status = ?`, id, advance.StatusPending)
		if err != nil {
			return fmt.Errorf("failed to delete cash advance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := getAdvance(ctx, tx, id); err != nil {
				return err
			}
			return hr.ErrStaleState
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM advance_transitions WHERE request_id = ?`, id)
		return err
	})
}

// =============================================================================
// RECOUPMENTS
// =============================================================================

func (s *Store) AppendRecoupments(ctx context.Context, rs []advance.Recoupment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO recoupments (id, request_id, employee_id, cycle_id, as_of, amount, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.RequestID, r.EmployeeID, r.CycleID, r.AsOf.String(),
				r.Amount.Value.String(), formatTime(r.CreatedAt),
			)
			if err != nil {
				if isUniqueConstraintError(err) {
					return hr.ErrStaleState
				}
				return fmt.Errorf("failed to append recoupment: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) ListRecoupments(ctx context.Context, employeeID hr.EmployeeID) ([]advance.Recoupment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, employee_id, cycle_id, as_of, amount, created_at
		FROM recoupments WHERE employee_id = ? ORDER BY as_of, created_at`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recoupments: %w", err)
	}
	defer rows.Close()

	var out []advance.Recoupment
	for rows.Next() {
		var (
			r                       advance.Recoupment
			asOf, amount, createdAt string
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.EmployeeID, &r.CycleID, &asOf, &amount, &createdAt); err != nil {
			return nil, err
		}
		if r.AsOf, err = hr.ParseDate(asOf); err != nil {
			return nil, err
		}
		if r.Amount, err = parseMoney(amount); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func getAdvance(ctx context.Context, q querier, id advance.RequestID) (advance.Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+advanceColumns+` FROM cash_advances WHERE id = ?`, id)
	r, err := scanAdvance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return advance.Request{}, hr.ErrRequestNotFound
	}
	if err != nil {
		return advance.Request{}, err
	}
	r.History, err = loadHistory(ctx, q, id)
	return r, err
}

func scanAdvance(row scanner) (advance.Request, error) {
	var (
		r                    advance.Request
		amount, date, status string
		createdBy            sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&r.ID, &r.EmployeeID, &amount, &r.Purpose, &date, &status, &createdBy, &createdAt, &updatedAt); err != nil {
		return advance.Request{}, err
	}

	var err error
	if r.Amount, err = parseMoney(amount); err != nil {
		return advance.Request{}, err
	}
	if r.RequestDate, err = hr.ParseDate(date); err != nil {
		return advance.Request{}, err
	}
	if r.Status, err = advance.ParseStatus(status); err != nil {
		return advance.Request{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return advance.Request{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return advance.Request{}, err
	}
	r.CreatedBy = createdBy.String
	return r, nil
}

func loadHistory(ctx context.Context, q querier, id advance.RequestID) ([]advance.Transition, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT from_status, to_status, actor_id, at
		FROM advance_transitions WHERE request_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions: %w", err)
	}
	defer rows.Close()

	var out []advance.Transition
	for rows.Next() {
		var from, to, at string
		var t advance.Transition
		if err := rows.Scan(&from, &to, &t.ActorID, &at); err != nil {
			return nil, err
		}
		if t.From, err = advance.ParseStatus(from); err != nil {
			return nil, err
		}
		if t.To, err = advance.ParseStatus(to); err != nil {
			return nil, err
		}
		if t.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertTransition(ctx context.Context, tx *sql.Tx, id advance.RequestID, t advance.Transition) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO advance_transitions (request_id, from_status, to_status, actor_id, at)
		VALUES (?, ?, ?, ?, ?)`,
		id, t.From, t.To, t.ActorID, formatTime(t.At))
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}
