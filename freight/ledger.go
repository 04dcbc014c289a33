/*
ledger.go - Driver current-account ledger

PURPOSE:
  The movement log is the source of truth for every driver balance. The
  balance is always computed by replaying movements; the Balance column on
  the driver row is a cached view that the ledger refreshes in the same
  transaction as every append, and that Reconcile can rebuild at any time.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: movements are never updated or deleted by the ledger.
     The single exception is ClearTripReference, which nulls the trip link
     when a trip is deleted.
  2. NO DIRECT BALANCE WRITES: every balance change has a movement behind it.
  3. DETERMINISTIC ORDER: movements replay by At ascending, then ID.

CORRECTIONS:
  A wrong movement is never edited. Reverse appends an offsetting movement
  (type Reversion, opposite sign) that points back at the original. A
  movement can be reversed once.

EXAMPLE FLOW:
  1. Trip V-001 completes, driver payment 200:  PagoViaje  +200
  2. Driver receives an advance:                Adelanto   -50
  3. Advance was recorded twice by mistake:     Reversion  +50
  Balance: 200

SEE ALSO:
  - store.go: MovementStore
  - trips.go: records PagoViaje when a trip completes
*/
package freight

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Ledger struct {
	Store   TxStore
	Clock   Clock
	Log     logrus.FieldLogger
	Timeout time.Duration
}

func NewLedger(store TxStore, clock Clock, log logrus.FieldLogger) *Ledger {
	return &Ledger{Store: store, Clock: clockOrSystem(clock), Log: loggerOrDiscard(log)}
}

// =============================================================================
// WRITES
// =============================================================================

// RecordMovement appends a movement for an existing driver and refreshes the
// driver's cached balance, atomically.
func (l *Ledger) RecordMovement(ctx context.Context, d MovementDraft) (Movement, error) {
	var m Movement
	err := unitOfWork(ctx, l.Store, l.Timeout, "record movement", func(ctx context.Context, s Store) error {
		var err error
		m, err = l.record(ctx, s, d, nil)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	l.Log.WithFields(logrus.Fields{
		"driver_id":   m.DriverID,
		"movement_id": m.ID,
		"type":        m.Type,
		"amount":      m.Amount.String(),
	}).Info("ledger movement recorded")
	return m, nil
}

// record appends inside an open transaction. Used by the trip manager so the
// movement commits or rolls back together with the trip.
func (l *Ledger) record(ctx context.Context, s Store, d MovementDraft, reversalOf *int64) (Movement, error) {
	if err := d.Validate(); err != nil {
		return Movement{}, err
	}
	// Reversals only come from Reverse, which links them to what they offset.
	if d.Type == MovementReversal && reversalOf == nil {
		return Movement{}, &ValidationError{Violations: []FieldViolation{
			{Field: "movement.type", Reason: "reversals are created by reversing a movement"},
		}}
	}
	driver, err := s.GetDriver(ctx, d.DriverID)
	if err != nil {
		return Movement{}, storageErr("load driver", err)
	}
	if driver == nil {
		return Movement{}, &NotFoundError{Entity: "driver", ID: d.DriverID}
	}
	if d.TripID != nil {
		trip, err := s.GetTrip(ctx, *d.TripID)
		if err != nil {
			return Movement{}, storageErr("load trip", err)
		}
		if trip == nil {
			return Movement{}, &NotFoundError{Entity: "trip", ID: *d.TripID}
		}
	}

	at := d.At
	if at.IsZero() {
		at = l.Clock.Now()
	}
	m := Movement{
		DriverID:    d.DriverID,
		TripID:      d.TripID,
		Type:        d.Type,
		Amount:      d.Amount,
		Description: d.Description,
		At:          at,
		ReversalOf:  reversalOf,
	}
	if err := s.InsertMovement(ctx, &m); err != nil {
		return Movement{}, storageErr("insert movement", err)
	}
	if _, err := refreshBalance(ctx, s, d.DriverID); err != nil {
		return Movement{}, err
	}
	return m, nil
}

// Reverse appends a movement offsetting movementID.
func (l *Ledger) Reverse(ctx context.Context, movementID int64, reason string) (Movement, error) {
	var m Movement
	err := unitOfWork(ctx, l.Store, l.Timeout, "reverse movement", func(ctx context.Context, s Store) error {
		orig, err := s.GetMovement(ctx, movementID)
		if err != nil {
			return storageErr("load movement", err)
		}
		if orig == nil {
			return &NotFoundError{Entity: "movement", ID: movementID}
		}
		if orig.Type == MovementReversal {
			return &PreconditionError{Reason: fmt.Sprintf("movement %d is itself a reversal", movementID)}
		}
		existing, err := s.FindReversal(ctx, movementID)
		if err != nil {
			return storageErr("find reversal", err)
		}
		if existing != nil {
			return &ConflictError{Entity: "movement", Field: "reversal_of",
				Reason: fmt.Sprintf("movement %d already reversed by %d", movementID, existing.ID)}
		}
		if reason == "" {
			reason = fmt.Sprintf("Reversión del movimiento %d", movementID)
		}
		m, err = l.record(ctx, s, MovementDraft{
			DriverID:    orig.DriverID,
			TripID:      orig.TripID,
			Type:        MovementReversal,
			Amount:      orig.Amount.Neg(),
			Description: reason,
		}, int64Ptr(movementID))
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	l.Log.WithFields(logrus.Fields{
		"driver_id":   m.DriverID,
		"movement_id": m.ID,
		"reversal_of": movementID,
	}).Info("ledger movement reversed")
	return m, nil
}

// ClearTripReference detaches every movement from tripID without deleting
// any of them. Must run inside the unit of work that deletes the trip.
func (l *Ledger) ClearTripReference(ctx context.Context, s Store, tripID int64) (int64, error) {
	n, err := s.ClearMovementTrip(ctx, tripID)
	if err != nil {
		return 0, storageErr("clear movement trip", err)
	}
	return n, nil
}

// =============================================================================
// READS
// =============================================================================

// CurrentBalance replays the driver's movements.
func (l *Ledger) CurrentBalance(ctx context.Context, driverID int64) (decimal.Decimal, error) {
	movs, err := l.driverMovements(ctx, l.Store, driverID)
	if err != nil {
		return decimal.Zero, err
	}
	return Balance(movs), nil
}

// StatementLine is a movement with the balance right after it.
type StatementLine struct {
	Movement
	Running decimal.Decimal
}

// Statement lists the driver's movements in replay order with a running
// balance.
func (l *Ledger) Statement(ctx context.Context, driverID int64) ([]StatementLine, error) {
	movs, err := l.driverMovements(ctx, l.Store, driverID)
	if err != nil {
		return nil, err
	}
	lines := make([]StatementLine, len(movs))
	running := decimal.Zero
	for i, m := range movs {
		running = running.Add(m.Amount)
		lines[i] = StatementLine{Movement: m, Running: running}
	}
	return lines, nil
}

func (l *Ledger) driverMovements(ctx context.Context, s Store, driverID int64) ([]Movement, error) {
	driver, err := s.GetDriver(ctx, driverID)
	if err != nil {
		return nil, storageErr("load driver", err)
	}
	if driver == nil {
		return nil, &NotFoundError{Entity: "driver", ID: driverID}
	}
	movs, err := s.ListMovements(ctx, driverID)
	if err != nil {
		return nil, storageErr("list movements", err)
	}
	SortMovements(movs)
	return movs, nil
}

// =============================================================================
// RECONCILIATION - cached balance vs. movement log
// =============================================================================

type Reconciliation struct {
	DriverID int64
	Cached   decimal.Decimal
	Computed decimal.Decimal
}

func (r Reconciliation) Drift() decimal.Decimal { return r.Cached.Sub(r.Computed) }
func (r Reconciliation) Drifted() bool          { return !r.Cached.Equal(r.Computed) }

// Reconcile rebuilds one driver's cached balance from the log.
func (l *Ledger) Reconcile(ctx context.Context, driverID int64) (Reconciliation, error) {
	var rec Reconciliation
	err := unitOfWork(ctx, l.Store, l.Timeout, "reconcile balance", func(ctx context.Context, s Store) error {
		driver, err := s.GetDriver(ctx, driverID)
		if err != nil {
			return storageErr("load driver", err)
		}
		if driver == nil {
			return &NotFoundError{Entity: "driver", ID: driverID}
		}
		rec.DriverID = driverID
		rec.Cached = driver.Balance
		rec.Computed, err = refreshBalance(ctx, s, driverID)
		return err
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if rec.Drifted() {
		l.Log.WithFields(logrus.Fields{
			"driver_id": driverID,
			"cached":    rec.Cached.String(),
			"computed":  rec.Computed.String(),
		}).Warn("driver balance drift corrected")
	}
	return rec, nil
}

// ReconcileAll reconciles every driver, one transaction each.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	drivers, err := l.Store.ListDrivers(ctx, DriverFilter{})
	if err != nil {
		return nil, storageErr("list drivers", err)
	}
	out := make([]Reconciliation, 0, len(drivers))
	for _, d := range drivers {
		rec, err := l.Reconcile(ctx, d.ID)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Balance is the signed sum of movements. Order does not matter for the sum.
func Balance(movs []Movement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movs {
		total = total.Add(m.Amount)
	}
	return total
}

// SortMovements puts movements in replay order: At ascending, ties broken
// by ID (insertion order).
func SortMovements(movs []Movement) {
	sort.SliceStable(movs, func(i, j int) bool {
		if !movs[i].At.Equal(movs[j].At) {
			return movs[i].At.Before(movs[j].At)
		}
		return movs[i].ID < movs[j].ID
	})
}

func refreshBalance(ctx context.Context, s Store, driverID int64) (decimal.Decimal, error) {
	movs, err := s.ListMovements(ctx, driverID)
	if err != nil {
		return decimal.Zero, storageErr("list movements", err)
	}
	bal := Balance(movs)
	if err := s.SetDriverBalance(ctx, driverID, bal); err != nil {
		return decimal.Zero, storageErr("set driver balance", err)
	}
	return bal, nil
}
