/*
Package sqlite provides a SQLite-backed implementation of freight.TxStore.

PURPOSE:
  Persists vehicles, drivers, clients, trips, expenses and ledger movements
  with the unique, restrict and cascade rules enforced by the schema itself.

KEY TABLES:
  vehicles:   plate UNIQUE
  drivers:    document UNIQUE; balance is the cached ledger sum
  clients
  trips:      number UNIQUE; vehicle/driver/client ON DELETE RESTRICT
  expenses:   trip ON DELETE CASCADE
  movements:  append-only; driver ON DELETE CASCADE, trip ON DELETE SET NULL

STORAGE FORMATS:
  - Money and volumes are TEXT holding decimal strings (no float rounding)
  - Times are TEXT in UTC with a fixed-width layout, so lexical order is
    chronological and range filters work in SQL

CONCURRENCY:
  The pool is limited to one connection, so every unit of work is
  serialized by the database. Code inside WithTx must only use the Store it
  is handed; touching the outer Store from there would wait forever for the
  connection.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on.
  Transactions take the write lock when they begin. A locked database is
  waited on for at most 5s, or until the unit of work's deadline.

USAGE:
  store, err := sqlite.New("./data/freight.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := freight.NewLedger(store, nil, nil)

MIGRATION:
  Schema is auto-migrated on New(). NewWithDB skips migration so tests can
  drive the store through go-sqlmock.

SEE ALSO:
  - freight/store.go: interface definitions and contract
  - freight/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/freight-engine/freight"
)

const (
	// defaultBusyTimeout bounds the wait for a locked database when the
	// caller has no deadline. Matches _busy_timeout in the DSN.
	defaultBusyTimeout = 5 * time.Second
	busyMargin         = 10 * time.Millisecond
)

// timeLayout is fixed-width so stored times compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var _ freight.TxStore = (*Store)(nil)

// Store implements freight.TxStore using SQLite.
type Store struct {
	repo
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo holds every query; Store runs it against the pool, WithTx against a
// transaction.
type repo struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" stays a single database and writers queue.
	db.SetMaxOpenConns(1)

	store := NewWithDB(db)
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an already opened database without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{repo: repo{q: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		plate TEXT NOT NULL UNIQUE,
		make TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		fuel_capacity TEXT NOT NULL,
		year INTEGER,
		last_maintenance TEXT,
		insurance_expiry TEXT,
		coverage_expiry TEXT,
		status TEXT NOT NULL CHECK (status IN ('Activo', 'Mantenimiento', 'Inactivo', 'EnUso')),
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS drivers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		license_number TEXT NOT NULL,
		license_expiry TEXT NOT NULL,
		photo BLOB,
		balance TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL CHECK (status IN ('Activo', 'Inactivo', 'Suspendido')),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		legal_name TEXT NOT NULL,
		tax_id TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		contact TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('Activo', 'Inactivo')),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trips (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL UNIQUE,
		vehicle_id INTEGER NOT NULL REFERENCES vehicles(id) ON DELETE RESTRICT,
		driver_id INTEGER NOT NULL REFERENCES drivers(id) ON DELETE RESTRICT,
		client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE RESTRICT,
		departure_at TEXT NOT NULL,
		arrival_at TEXT,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		volume TEXT NOT NULL,
		revenue TEXT NOT NULL,
		driver_payment TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('Programado', 'EnCurso', 'Completado', 'Cancelado')),
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Dashboard windows and recent-trips listing (hot path)
	CREATE INDEX IF NOT EXISTS idx_trips_departure ON trips(departure_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_trips_status ON trips(status);
	CREATE INDEX IF NOT EXISTS idx_trips_vehicle ON trips(vehicle_id);
	CREATE INDEX IF NOT EXISTS idx_trips_driver ON trips(driver_id);
	CREATE INDEX IF NOT EXISTS idx_trips_client ON trips(client_id);

	CREATE TABLE IF NOT EXISTS expenses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id INTEGER NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		receipt BLOB,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_trip ON expenses(trip_id);

	-- Driver ledger (append-only)
	CREATE TABLE IF NOT EXISTS movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		driver_id INTEGER NOT NULL REFERENCES drivers(id) ON DELETE CASCADE,
		trip_id INTEGER REFERENCES trips(id) ON DELETE SET NULL,
		type TEXT NOT NULL CHECK (type IN ('PagoViaje', 'Adelanto', 'Liquidacion', 'Ajuste', 'Reversion')),
		amount TEXT NOT NULL,
		description TEXT NOT NULL,
		at TEXT NOT NULL,
		reversal_of INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_driver_at ON movements(driver_id, at, id);
	CREATE INDEX IF NOT EXISTS idx_movements_trip ON movements(trip_id) WHERE trip_id IS NOT NULL;
	-- A movement can be reversed once
	CREATE UNIQUE INDEX IF NOT EXISTS idx_movements_reversal
		ON movements(reversal_of) WHERE reversal_of IS NOT NULL;
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (freight.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
//
// Transactions begin IMMEDIATE, so the write lock is taken up front. When ctx
// carries a deadline, the connection's busy timeout is lowered to the time
// left, because SQLite keeps sleeping on a locked database even after
// sqlite3_interrupt.
func (s *Store) WithTx(ctx context.Context, fn func(store freight.Store) error) error {
	if _, ok := ctx.Deadline(); !ok {
		sqlTx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		return runTx(ctx, sqlTx, fn)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := setBusyTimeout(ctx, conn, busyTimeoutFor(ctx)); err != nil {
		return err
	}
	defer setBusyTimeout(context.Background(), conn, defaultBusyTimeout)

	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return runTx(ctx, sqlTx, fn)
}

func runTx(ctx context.Context, sqlTx *sql.Tx, fn func(store freight.Store) error) error {
	defer sqlTx.Rollback()

	if err := fn(&repo{q: sqlTx}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// busyTimeoutFor returns how long a statement may wait on another
// connection's lock: the time left before ctx's deadline plus a small margin,
// so the deadline has passed when SQLite gives up, capped at the default.
func busyTimeoutFor(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultBusyTimeout
	}
	left := time.Until(deadline) + busyMargin
	if left > defaultBusyTimeout {
		return defaultBusyTimeout
	}
	return left
}

func setBusyTimeout(ctx context.Context, conn *sql.Conn, d time.Duration) error {
	_, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()))
	return err
}

// Reset clears all data and restarts id sequences (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(st freight.Store) error {
		r := st.(*repo)
		// Children first so no foreign key is left dangling mid-way.
		tables := []string{"movements", "expenses", "trips", "drivers", "vehicles", "clients"}
		for _, table := range tables {
			if _, err := r.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		_, err := r.q.ExecContext(ctx, "DELETE FROM sqlite_sequence")
		return err
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (r *repo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repo) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type scanner interface {
	Scan(dest ...any) error
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse decimal %q: %w", s, err)
	}
	return d, nil
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func ptrInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nowIfZero(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// constraintErr turns unique and foreign key violations into
// *freight.ConflictError; anything else is returned wrapped.
func constraintErr(entity, op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &freight.ConflictError{Entity: entity, Field: uniqueColumn(err), Reason: "value already exists"}
		case sqlite3.ErrConstraintForeignKey:
			return &freight.ConflictError{Entity: entity, Reason: "violates a reference to another record"}
		}
	}
	if isUniqueConstraintError(err) {
		return &freight.ConflictError{Entity: entity, Field: uniqueColumn(err), Reason: "value already exists"}
	}
	if isForeignKeyError(err) {
		return &freight.ConflictError{Entity: entity, Reason: "violates a reference to another record"}
	}
	return fmt.Errorf("failed to %s %s: %w", op, entity, err)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// uniqueColumn extracts "plate" from "UNIQUE constraint failed: vehicles.plate".
func uniqueColumn(err error) string {
	msg := err.Error()
	i := strings.LastIndex(msg, ".")
	if i < 0 || !strings.Contains(msg, "constraint failed: ") {
		return ""
	}
	return strings.TrimSpace(msg[i+1:])
}
