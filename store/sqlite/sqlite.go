/*
Package sqlite provides a SQLite-backed implementation of the engine stores.

PURPOSE:
  Implements every persistence interface the engine packages declare, so the
  server can run against a single database file.

INTERFACES IMPLEMENTED:
  hr.EmployeeDirectory: employee lookup and the active roster
  hr.ActivitySink:      dashboard activity feed
  attendance.Store:     one record per employee per day
  advance.Store:        cash advances, transition history, recoupments
  payroll.RunStore:     payroll runs and their payslips

KEY TABLES:
  employees:           directory rows (salary as decimal text)
  attendance_records:  UNIQUE(employee_id, date)
  cash_advances:       current status, compare-and-set on update
  advance_transitions: append-only status history
  recoupments:         UNIQUE(request_id, cycle_id)
  payroll_runs:        one committed run per cycle (partial unique index)
  activities:          append-only feed

CONCURRENCY:
  Uses sync.RWMutex for thread-safety inside the process. Status updates are
  additionally guarded in SQL (UPDATE ... WHERE status = ?), so two writers
  never both win.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/balibad/payroll-engine/hr"
	_ "github.com/mattn/go-sqlite3"
)

// timeLayout sorts lexically in the same order as the instants it encodes.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		annual_salary TEXT NOT NULL,
		status TEXT NOT NULL,
		branch TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_status
		ON employees(status);

	-- One attendance record per employee per day
	CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		time_in TEXT,
		time_out TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(employee_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_date
		ON attendance_records(date);

	CREATE TABLE IF NOT EXISTS cash_advances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		purpose TEXT NOT NULL,
		request_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cash_advances_employee
		ON cash_advances(employee_id, request_date);
	CREATE INDEX IF NOT EXISTS idx_cash_advances_status
		ON cash_advances(status);

	-- Append-only transition history
	CREATE TABLE IF NOT EXISTS advance_transitions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL REFERENCES cash_advances(id) ON DELETE CASCADE,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_advance_transitions_request
		ON advance_transitions(request_id, seq);

	CREATE TABLE IF NOT EXISTS recoupments (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		as_of TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(request_id, cycle_id)
	);

	CREATE INDEX IF NOT EXISTS idx_recoupments_employee
		ON recoupments(employee_id);

	CREATE TABLE IF NOT EXISTS payroll_runs (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL,
		status TEXT NOT NULL,
		payslips_json TEXT NOT NULL DEFAULT '[]',
		failures_json TEXT NOT NULL DEFAULT '[]',
		created_by TEXT,
		created_at TEXT NOT NULL,
		computed_at TEXT,
		committed_by TEXT,
		committed_at TEXT
	);

	-- At most one committed run per cycle
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payroll_runs_committed
		ON payroll_runs(cycle_id) WHERE status = 'committed';

	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		actor_id TEXT,
		actor_name TEXT,
		action TEXT NOT NULL,
		target TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_at
		ON activities(at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339, s)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseMoney(s string) (hr.Money, error) {
	m, err := hr.ParseMoney(s)
	if err != nil {
		return hr.Money{}, fmt.Errorf("corrupt amount %q: %w", s, err)
	}
	return m, nil
}
