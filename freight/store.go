/*
store.go - Persistence contract consumed by the engine

PURPOSE:
  Defines the boundary between the domain logic and the database. The engine
  never assumes a storage technology; schema creation is the store's
  concern.

KEY INTERFACES:
  Store:    per-entity Get / List(filter) / Insert / Update / Delete
  TxStore:  Store plus WithTx for atomic units of work

CONTRACT FOR IMPLEMENTATIONS:
  - Get* returns (nil, nil) when the row does not exist
  - Insert* assigns ID, CreatedAt and UpdatedAt on the passed entity
  - Update* and Delete* of a missing row returns *NotFoundError
  - Unique violations (plate, document, trip number) return *ConflictError
  - Deleting a vehicle/driver/client referenced by a trip returns
    *ConflictError and deletes nothing (restrict)
  - DeleteTrip cascades to the trip's expenses
  - DeleteDriver cascades to the driver's movements
  - Movements are append-only: the only permitted change is
    ClearMovementTrip, which nulls the trip reference
  - UpdateDriver never writes Balance; only SetDriverBalance does

IMPLEMENTATIONS:
  - store/sqlite: SQLite via database/sql
  - freight/store: in-memory for tests and development
*/
package freight

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

type VehicleFilter struct {
	Status *VehicleStatus
}

type DriverFilter struct {
	Status *DriverStatus
}

type ClientFilter struct {
	Status *ClientStatus
}

// TripFilter selects trips. Zero values mean "no constraint". Results are
// ordered by departure descending, then id descending.
type TripFilter struct {
	Statuses      []TripStatus
	ExcludeStatus []TripStatus
	DepartFrom    *time.Time // inclusive
	DepartBefore  *time.Time // exclusive
	VehicleID     int64
	DriverID      int64
	ClientID      int64
	Limit         int
}

// ExpenseFilter selects expenses of the given trips, ordered by date
// descending, then id descending.
type ExpenseFilter struct {
	TripIDs []int64
}

// =============================================================================
// STORE
// =============================================================================

type VehicleStore interface {
	GetVehicle(ctx context.Context, id int64) (*Vehicle, error)
	ListVehicles(ctx context.Context, f VehicleFilter) ([]Vehicle, error)
	InsertVehicle(ctx context.Context, v *Vehicle) error
	UpdateVehicle(ctx context.Context, v *Vehicle) error
	DeleteVehicle(ctx context.Context, id int64) error
}

type DriverStore interface {
	GetDriver(ctx context.Context, id int64) (*Driver, error)
	ListDrivers(ctx context.Context, f DriverFilter) ([]Driver, error)
	InsertDriver(ctx context.Context, d *Driver) error
	UpdateDriver(ctx context.Context, d *Driver) error
	DeleteDriver(ctx context.Context, id int64) error
	SetDriverBalance(ctx context.Context, id int64, balance decimal.Decimal) error
}

type ClientStore interface {
	GetClient(ctx context.Context, id int64) (*Client, error)
	ListClients(ctx context.Context, f ClientFilter) ([]Client, error)
	InsertClient(ctx context.Context, c *Client) error
	UpdateClient(ctx context.Context, c *Client) error
	DeleteClient(ctx context.Context, id int64) error
}

type TripStore interface {
	GetTrip(ctx context.Context, id int64) (*Trip, error)
	ListTrips(ctx context.Context, f TripFilter) ([]Trip, error)
	CountTrips(ctx context.Context, f TripFilter) (int, error)
	InsertTrip(ctx context.Context, t *Trip) error
	UpdateTrip(ctx context.Context, t *Trip) error
	DeleteTrip(ctx context.Context, id int64) error
}

type ExpenseStore interface {
	GetExpense(ctx context.Context, id int64) (*Expense, error)
	ListExpenses(ctx context.Context, f ExpenseFilter) ([]Expense, error)
	InsertExpense(ctx context.Context, e *Expense) error
	DeleteExpense(ctx context.Context, id int64) error
}

type MovementStore interface {
	GetMovement(ctx context.Context, id int64) (*Movement, error)
	// ListMovements returns a driver's movements ordered by At, then ID.
	ListMovements(ctx context.Context, driverID int64) ([]Movement, error)
	InsertMovement(ctx context.Context, m *Movement) error
	// ClearMovementTrip nulls the trip reference on every movement pointing
	// at tripID and returns how many were touched.
	ClearMovementTrip(ctx context.Context, tripID int64) (int64, error)
	// FindReversal returns the movement reversing id, if any.
	FindReversal(ctx context.Context, id int64) (*Movement, error)
}

type Store interface {
	VehicleStore
	DriverStore
	ClientStore
	TripStore
	ExpenseStore
	MovementStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// unitOfWork runs fn inside one store transaction bounded by timeout. fn
// receives the bounded context and must pass it to every store call.
// Domain errors come back untouched; a passed deadline becomes TimeoutError;
// anything else is wrapped as StorageError. The store has rolled back in
// every failure case.
func unitOfWork(ctx context.Context, s TxStore, timeout time.Duration, op string, fn func(context.Context, Store) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := s.WithTx(ctx, func(s Store) error { return fn(ctx, s) })
	if err == nil {
		return nil
	}
	if k := KindOf(err); k != KindStorage && k != KindTimeout {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op}
	}
	return storageErr(op, err)
}
