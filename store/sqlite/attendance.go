package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/balibad/payroll-engine/attendance"
	"github.com/balibad/payroll-engine/hr"
)

// =============================================================================
// ATTENDANCE STORE (attendance.Store)
// =============================================================================

const recordColumns = `id, employee_id, date, time_in, time_out, status`

func (s *Store) AppendRecord(ctx context.Context, rec attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var timeOut sql.NullString
	if rec.TimeOut != nil {
		timeOut = nullTime(*rec.TimeOut)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, employee_id, date, time_in, time_out, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EmployeeID, rec.Date.String(), nullTime(rec.TimeIn), timeOut, rec.Status,
		formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return hr.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to append attendance record: %w", err)
	}
	return nil
}

func (s *Store) UpdateRecord(ctx context.Context, id attendance.RecordID, patch attendance.RecordPatch) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out attendance.Record
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if patch.TimeOut != nil {
			res, err := tx.ExecContext(ctx,
				`UPDATE attendance_records SET time_out = ? WHERE id = ?`,
				formatTime(*patch.TimeOut), id)
			if err != nil {
				return fmt.Errorf("failed to update attendance record: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return hr.ErrRecordNotFound
			}
		}
		row := tx.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM attendance_records WHERE id = ?`, id)
		rec, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return hr.ErrRecordNotFound
		}
		out = rec
		return err
	})
	return out, err
}

func (s *Store) RecordsForEmployee(ctx context.Context, id hr.EmployeeID, period hr.Period) ([]attendance.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE employee_id = ? AND date >= ? AND date < ?
		ORDER BY date`,
		id, period.Start.String(), period.End.String())
}

func (s *Store) RecordsForDay(ctx context.Context, date hr.Date) ([]attendance.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE date = ?
		ORDER BY employee_id`,
		date.String())
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var out []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row scanner) (attendance.Record, error) {
	var (
		rec             attendance.Record
		date, status    string
		timeIn, timeOut sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.EmployeeID, &date, &timeIn, &timeOut, &status); err != nil {
		return attendance.Record{}, err
	}

	var err error
	if rec.Date, err = hr.ParseDate(date); err != nil {
		return attendance.Record{}, err
	}
	if rec.TimeIn, err = parseNullTime(timeIn); err != nil {
		return attendance.Record{}, fmt.Errorf("corrupt time_in: %w", err)
	}
	if timeOut.Valid {
		out, err := parseTime(timeOut.String)
		if err != nil {
			return attendance.Record{}, fmt.Errorf("corrupt time_out: %w", err)
		}
		rec.TimeOut = &out
	}
	if rec.Status, err = attendance.ParseStatus(status); err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}
