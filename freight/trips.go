/*
trips.go - Trip lifecycle manager

PURPOSE:
  Orchestrates creation, update and deletion of a trip together with its
  expenses, the consequential vehicle status change and any resulting ledger
  movement, each inside a single unit of work.

SAVE FLOW (SaveTrip):
  1. Validate every draft field; all violations are reported together
  2. Create: referenced vehicle/driver/client must exist; status defaults
     to Programado; number generated when blank
     Update: load the trip, check the status transition, refuse edits of
     money/references/schedule on a terminal trip
  3. Persist the trip row
  4. Vehicle policy on entering/leaving EnCurso
  5. Entering Completado credits the driver payment to the driver ledger
  6. Commit; any failure rolls back everything and is returned untouched

DELETE FLOW (DeleteTrip):
  Ledger references to the trip are cleared (movements survive), the trip
  is deleted and its expenses cascade, atomically. Confirmation is the
  caller's job.

EXPENSES:
  Trip totals are never stored. Adding or removing an expense only touches
  the expense row; TripDetail recomputes totals on every read.

SEE ALSO:
  - status.go: transition table
  - ledger.go: movement recording
  - reports.go: read-only aggregates
*/
package freight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// VEHICLE POLICY - what happens to the vehicle while a trip is EnCurso
// =============================================================================

// VehiclePolicy decides the vehicle status when a trip departs (enters
// EnCurso) and when it leaves EnCurso. Each hook reports whether it changed
// the vehicle.
type VehiclePolicy interface {
	OnDeparture(v *Vehicle) bool
	OnRelease(v *Vehicle) bool
}

// KeepActivePolicy keeps the vehicle Activo while it travels; the vehicle
// never shows as unavailable. Default.
type KeepActivePolicy struct{}

func (KeepActivePolicy) OnDeparture(v *Vehicle) bool {
	if v.Status == VehicleActive {
		return false
	}
	v.Status = VehicleActive
	return true
}

func (KeepActivePolicy) OnRelease(*Vehicle) bool { return false }

// InUsePolicy marks the vehicle EnUso while it travels and returns it to
// Activo afterwards.
type InUsePolicy struct{}

func (InUsePolicy) OnDeparture(v *Vehicle) bool {
	if v.Status == VehicleInUse {
		return false
	}
	v.Status = VehicleInUse
	return true
}

func (InUsePolicy) OnRelease(v *Vehicle) bool {
	if v.Status != VehicleInUse {
		return false
	}
	v.Status = VehicleActive
	return true
}

// VehiclePolicyByName maps a configuration value to a policy.
func VehiclePolicyByName(name string) (VehiclePolicy, error) {
	switch name {
	case "", "keep-active":
		return KeepActivePolicy{}, nil
	case "in-use":
		return InUsePolicy{}, nil
	}
	return nil, fmt.Errorf("unknown vehicle policy %q", name)
}

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	Store    TxStore
	Ledger   *Ledger
	Clock    Clock
	Log      logrus.FieldLogger
	Timeout  time.Duration
	Vehicles VehiclePolicy
	Notifier Notifier
}

func NewManager(store TxStore, ledger *Ledger, clock Clock, log logrus.FieldLogger) *Manager {
	clock = clockOrSystem(clock)
	log = loggerOrDiscard(log)
	if ledger == nil {
		ledger = NewLedger(store, clock, log)
	}
	return &Manager{
		Store:    store,
		Ledger:   ledger,
		Clock:    clock,
		Log:      log,
		Vehicles: KeepActivePolicy{},
	}
}

// SaveTrip creates (ID 0) or updates a trip in one unit of work and returns
// the persisted trip with its expenses.
func (m *Manager) SaveTrip(ctx context.Context, d TripDraft) (TripDetail, error) {
	op := "create trip"
	if d.ID != 0 {
		op = "update trip"
	}
	if err := d.Validate(); err != nil {
		notify(m.Notifier, op, err, "")
		return TripDetail{}, err
	}

	var detail TripDetail
	err := unitOfWork(ctx, m.Store, m.Timeout, op, func(ctx context.Context, s Store) error {
		var (
			saved Trip
			err   error
		)
		if d.ID == 0 {
			saved, err = m.create(ctx, s, d)
		} else {
			saved, err = m.update(ctx, s, d)
		}
		if err != nil {
			return err
		}
		detail, err = loadDetail(ctx, s, saved.ID, false)
		return err
	})
	if err != nil {
		m.Log.WithError(err).WithFields(logrus.Fields{"op": op, "trip_id": d.ID}).Warn("trip not saved")
		notify(m.Notifier, op, err, "")
		return TripDetail{}, err
	}

	m.Log.WithFields(logrus.Fields{
		"op":      op,
		"trip_id": detail.ID,
		"number":  detail.Number,
		"status":  detail.Status,
	}).Info("trip saved")
	notify(m.Notifier, op, nil, fmt.Sprintf("Viaje %s registrado.", detail.Number))
	return detail, nil
}

func (m *Manager) create(ctx context.Context, s Store, d TripDraft) (Trip, error) {
	if err := verifyReferences(ctx, s, d.VehicleID, d.DriverID, d.ClientID); err != nil {
		return Trip{}, err
	}
	now := m.Clock.Now()
	t := Trip{
		Number:        strings.TrimSpace(d.Number),
		VehicleID:     d.VehicleID,
		DriverID:      d.DriverID,
		ClientID:      d.ClientID,
		DepartureAt:   d.DepartureAt,
		ArrivalAt:     d.ArrivalAt,
		Origin:        strings.TrimSpace(d.Origin),
		Destination:   strings.TrimSpace(d.Destination),
		Volume:        d.Volume,
		Revenue:       d.Revenue,
		DriverPayment: d.DriverPayment,
		Status:        d.Status,
		Notes:         d.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.Status == "" {
		t.Status = TripScheduled
	}
	if t.Number == "" {
		t.Number = NewTripNumber(now)
	}
	if err := s.InsertTrip(ctx, &t); err != nil {
		return Trip{}, storageErr("insert trip", err)
	}
	if err := m.applyEffects(ctx, s, nil, t); err != nil {
		return Trip{}, err
	}
	return t, nil
}

func (m *Manager) update(ctx context.Context, s Store, d TripDraft) (Trip, error) {
	cur, err := s.GetTrip(ctx, d.ID)
	if err != nil {
		return Trip{}, storageErr("load trip", err)
	}
	if cur == nil {
		return Trip{}, &NotFoundError{Entity: "trip", ID: d.ID}
	}

	status := d.Status
	if status == "" {
		status = cur.Status
	}
	if !CanTransition(cur.Status, status) {
		return Trip{}, &InvalidTransitionError{From: cur.Status, To: status}
	}

	next := *cur
	next.VehicleID = d.VehicleID
	next.DriverID = d.DriverID
	next.ClientID = d.ClientID
	next.DepartureAt = d.DepartureAt
	next.ArrivalAt = d.ArrivalAt
	next.Origin = strings.TrimSpace(d.Origin)
	next.Destination = strings.TrimSpace(d.Destination)
	next.Volume = d.Volume
	next.Revenue = d.Revenue
	next.DriverPayment = d.DriverPayment
	next.Status = status
	next.Notes = d.Notes
	if n := strings.TrimSpace(d.Number); n != "" {
		next.Number = n
	}

	if cur.Status.Terminal() {
		if field := lockedFieldChanged(*cur, next); field != "" {
			return Trip{}, &PreconditionError{
				Reason: fmt.Sprintf("trip %s is %s; %s can no longer change", cur.Number, cur.Status, field),
			}
		}
	}
	if next.VehicleID != cur.VehicleID || next.DriverID != cur.DriverID || next.ClientID != cur.ClientID {
		if err := verifyReferences(ctx, s, next.VehicleID, next.DriverID, next.ClientID); err != nil {
			return Trip{}, err
		}
	}

	next.UpdatedAt = m.Clock.Now()
	if err := s.UpdateTrip(ctx, &next); err != nil {
		return Trip{}, storageErr("update trip", err)
	}
	if err := m.applyEffects(ctx, s, cur, next); err != nil {
		return Trip{}, err
	}
	return next, nil
}

// applyEffects performs the vehicle and ledger consequences of moving from
// prev (nil on create) to t.
func (m *Manager) applyEffects(ctx context.Context, s Store, prev *Trip, t Trip) error {
	wasTravelling := prev != nil && prev.Status == TripInProgress
	isTravelling := t.Status == TripInProgress

	if wasTravelling && (!isTravelling || prev.VehicleID != t.VehicleID) {
		if err := m.applyVehiclePolicy(ctx, s, prev.VehicleID, m.vehicles().OnRelease); err != nil {
			return err
		}
	}
	if isTravelling && (!wasTravelling || prev.VehicleID != t.VehicleID) {
		if err := m.applyVehiclePolicy(ctx, s, t.VehicleID, m.vehicles().OnDeparture); err != nil {
			return err
		}
	}

	wasCompleted := prev != nil && prev.Status == TripCompleted
	if t.Status == TripCompleted && !wasCompleted && t.DriverPayment.IsPositive() {
		tripID := t.ID
		_, err := m.Ledger.record(ctx, s, MovementDraft{
			DriverID:    t.DriverID,
			TripID:      &tripID,
			Type:        MovementTripPayment,
			Amount:      t.DriverPayment,
			Description: "Pago por viaje " + t.Number,
			At:          m.Clock.Now(),
		}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) applyVehiclePolicy(ctx context.Context, s Store, vehicleID int64, hook func(*Vehicle) bool) error {
	v, err := s.GetVehicle(ctx, vehicleID)
	if err != nil {
		return storageErr("load vehicle", err)
	}
	if v == nil {
		return &NotFoundError{Entity: "vehicle", ID: vehicleID}
	}
	if !hook(v) {
		return nil
	}
	v.UpdatedAt = m.Clock.Now()
	if err := s.UpdateVehicle(ctx, v); err != nil {
		return storageErr("update vehicle", err)
	}
	return nil
}

func (m *Manager) vehicles() VehiclePolicy {
	if m.Vehicles == nil {
		return KeepActivePolicy{}
	}
	return m.Vehicles
}

// DeleteTrip removes a trip and its expenses and detaches its ledger
// movements.
func (m *Manager) DeleteTrip(ctx context.Context, id int64) error {
	var cleared int64
	err := unitOfWork(ctx, m.Store, m.Timeout, "delete trip", func(ctx context.Context, s Store) error {
		t, err := s.GetTrip(ctx, id)
		if err != nil {
			return storageErr("load trip", err)
		}
		if t == nil {
			return &NotFoundError{Entity: "trip", ID: id}
		}
		if cleared, err = m.Ledger.ClearTripReference(ctx, s, id); err != nil {
			return err
		}
		if t.Status == TripInProgress {
			if err := m.applyVehiclePolicy(ctx, s, t.VehicleID, m.vehicles().OnRelease); err != nil {
				return err
			}
		}
		if err := s.DeleteTrip(ctx, id); err != nil {
			return storageErr("delete trip", err)
		}
		return nil
	})
	if err != nil {
		notify(m.Notifier, "delete trip", err, "")
		return err
	}
	m.Log.WithFields(logrus.Fields{"trip_id": id, "movements_detached": cleared}).Info("trip deleted")
	notify(m.Notifier, "delete trip", nil, "Viaje eliminado correctamente.")
	return nil
}

// AddExpense attaches a cost line to a saved trip.
func (m *Manager) AddExpense(ctx context.Context, tripID int64, d ExpenseDraft) (Expense, error) {
	if tripID <= 0 {
		err := &PreconditionError{Reason: "save the trip before adding expenses"}
		notify(m.Notifier, "add expense", err, "")
		return Expense{}, err
	}
	if !d.Amount.IsPositive() {
		err := &PreconditionError{Reason: "expense amount must be greater than 0"}
		notify(m.Notifier, "add expense", err, "")
		return Expense{}, err
	}
	if err := d.Validate(); err != nil {
		notify(m.Notifier, "add expense", err, "")
		return Expense{}, err
	}

	var e Expense
	err := unitOfWork(ctx, m.Store, m.Timeout, "add expense", func(ctx context.Context, s Store) error {
		t, err := s.GetTrip(ctx, tripID)
		if err != nil {
			return storageErr("load trip", err)
		}
		if t == nil {
			return &PreconditionError{Reason: fmt.Sprintf("trip %d does not exist; save it before adding expenses", tripID)}
		}
		now := m.Clock.Now()
		e = Expense{
			TripID:      tripID,
			Type:        strings.TrimSpace(d.Type),
			Description: strings.TrimSpace(d.Description),
			Amount:      d.Amount,
			Date:        d.Date,
			Receipt:     d.Receipt,
			CreatedAt:   now,
		}
		if e.Date.IsZero() {
			e.Date = now
		}
		if err := s.InsertExpense(ctx, &e); err != nil {
			return storageErr("insert expense", err)
		}
		return nil
	})
	if err != nil {
		notify(m.Notifier, "add expense", err, "")
		return Expense{}, err
	}
	m.Log.WithFields(logrus.Fields{
		"trip_id":    tripID,
		"expense_id": e.ID,
		"amount":     e.Amount.String(),
	}).Info("expense added")
	notify(m.Notifier, "add expense", nil, "Gasto agregado.")
	return e, nil
}

// RemoveExpense deletes one expense.
func (m *Manager) RemoveExpense(ctx context.Context, expenseID int64) error {
	err := unitOfWork(ctx, m.Store, m.Timeout, "remove expense", func(ctx context.Context, s Store) error {
		e, err := s.GetExpense(ctx, expenseID)
		if err != nil {
			return storageErr("load expense", err)
		}
		if e == nil {
			return &NotFoundError{Entity: "expense", ID: expenseID}
		}
		return storageErr("delete expense", s.DeleteExpense(ctx, expenseID))
	})
	notify(m.Notifier, "remove expense", err, "Gasto eliminado.")
	if err != nil {
		return err
	}
	m.Log.WithField("expense_id", expenseID).Info("expense removed")
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Trip loads one trip with expenses and references.
func (m *Manager) Trip(ctx context.Context, id int64) (TripDetail, error) {
	return loadDetail(ctx, m.Store, id, true)
}

// Trips lists trips matching f with expenses and references.
func (m *Manager) Trips(ctx context.Context, f TripFilter) ([]TripDetail, error) {
	trips, err := m.Store.ListTrips(ctx, f)
	if err != nil {
		return nil, storageErr("list trips", err)
	}
	details, err := withExpenses(ctx, m.Store, trips)
	if err != nil {
		return nil, err
	}
	if err := withReferences(ctx, m.Store, details); err != nil {
		return nil, err
	}
	return details, nil
}

// Expenses lists one trip's expenses, newest first.
func (m *Manager) Expenses(ctx context.Context, tripID int64) ([]Expense, error) {
	t, err := m.Store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, storageErr("load trip", err)
	}
	if t == nil {
		return nil, &NotFoundError{Entity: "trip", ID: tripID}
	}
	expenses, err := m.Store.ListExpenses(ctx, ExpenseFilter{TripIDs: []int64{tripID}})
	if err != nil {
		return nil, storageErr("list expenses", err)
	}
	return expenses, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// NewTripNumber builds a trip number like V-20240315-3FA85F.
func NewTripNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("V-%s-%s", at.Format("20060102"), suffix)
}

func verifyReferences(ctx context.Context, s Store, vehicleID, driverID, clientID int64) error {
	v, err := s.GetVehicle(ctx, vehicleID)
	if err != nil {
		return storageErr("load vehicle", err)
	}
	if v == nil {
		return &NotFoundError{Entity: "vehicle", ID: vehicleID}
	}
	d, err := s.GetDriver(ctx, driverID)
	if err != nil {
		return storageErr("load driver", err)
	}
	if d == nil {
		return &NotFoundError{Entity: "driver", ID: driverID}
	}
	c, err := s.GetClient(ctx, clientID)
	if err != nil {
		return storageErr("load client", err)
	}
	if c == nil {
		return &NotFoundError{Entity: "client", ID: clientID}
	}
	return nil
}

// lockedFieldChanged names the first field that may not change once a trip
// is terminal. Notes and arrival time stay editable.
func lockedFieldChanged(cur, next Trip) string {
	switch {
	case cur.Status != next.Status:
		return "status"
	case cur.Number != next.Number:
		return "number"
	case cur.VehicleID != next.VehicleID:
		return "vehicle"
	case cur.DriverID != next.DriverID:
		return "driver"
	case cur.ClientID != next.ClientID:
		return "client"
	case !cur.DepartureAt.Equal(next.DepartureAt):
		return "departure"
	case cur.Origin != next.Origin:
		return "origin"
	case cur.Destination != next.Destination:
		return "destination"
	case !cur.Volume.Equal(next.Volume):
		return "volume"
	case !cur.Revenue.Equal(next.Revenue):
		return "revenue"
	case !cur.DriverPayment.Equal(next.DriverPayment):
		return "driver payment"
	}
	return ""
}
