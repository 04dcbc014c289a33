package freight_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/freight-engine/freight"
	"github.com/warp/freight-engine/freight/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// march15 is the fixed "now" most tests run at.
var march15 = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

type testEngine struct {
	store    *store.Memory
	clock    freight.FixedClock
	ledger   *freight.Ledger
	manager  *freight.Manager
	registry *freight.Registry
	reports  *freight.Reports

	mu       sync.Mutex
	outcomes []freight.Outcome
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineAt(t, march15)
}

func newTestEngineAt(t *testing.T, now time.Time) *testEngine {
	t.Helper()
	e := &testEngine{store: store.NewMemory(), clock: freight.FixedClock{At: now}}
	e.ledger = freight.NewLedger(e.store, e.clock, nil)
	e.manager = freight.NewManager(e.store, e.ledger, e.clock, nil)
	e.registry = freight.NewRegistry(e.store, e.clock, nil)
	e.reports = freight.NewReports(e.store, e.clock, nil)
	sink := freight.NotifierFunc(func(o freight.Outcome) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.outcomes = append(e.outcomes, o)
	})
	e.manager.Notifier = sink
	e.registry.Notifier = sink
	return e
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (e *testEngine) vehicle(t *testing.T, plate string) freight.Vehicle {
	t.Helper()
	v, err := e.registry.SaveVehicle(context.Background(), freight.Vehicle{
		Plate:        plate,
		Make:         "Scania",
		Model:        "R450",
		FuelCapacity: dec("30000"),
		Year:         2019,
	})
	require.NoError(t, err)
	return v
}

func (e *testEngine) driver(t *testing.T, document string) freight.Driver {
	t.Helper()
	d, err := e.registry.SaveDriver(context.Background(), freight.Driver{
		Document:      document,
		FirstName:     "Juan",
		LastName:      "Pérez",
		LicenseNumber: "LIC-" + document,
		LicenseExpiry: march15.AddDate(2, 0, 0),
	})
	require.NoError(t, err)
	return d
}

func (e *testEngine) client(t *testing.T, name string) freight.Client {
	t.Helper()
	c, err := e.registry.SaveClient(context.Background(), freight.Client{LegalName: name})
	require.NoError(t, err)
	return c
}

// fleet creates one vehicle, driver and client.
type fleet struct {
	vehicle freight.Vehicle
	driver  freight.Driver
	client  freight.Client
}

func (e *testEngine) fleet(t *testing.T) fleet {
	t.Helper()
	return fleet{
		vehicle: e.vehicle(t, "ABC123"),
		driver:  e.driver(t, "30111222"),
		client:  e.client(t, "Combustibles del Sur SA"),
	}
}

func (f fleet) draft(departure time.Time, volume, revenue, payment string) freight.TripDraft {
	return freight.TripDraft{
		VehicleID:     f.vehicle.ID,
		DriverID:      f.driver.ID,
		ClientID:      f.client.ID,
		DepartureAt:   departure,
		Origin:        "Bahía Blanca",
		Destination:   "Neuquén",
		Volume:        dec(volume),
		Revenue:       dec(revenue),
		DriverPayment: dec(payment),
	}
}

func (e *testEngine) trip(t *testing.T, d freight.TripDraft) freight.TripDetail {
	t.Helper()
	saved, err := e.manager.SaveTrip(context.Background(), d)
	require.NoError(t, err)
	return saved
}

func (e *testEngine) expense(t *testing.T, tripID int64, amount string) freight.Expense {
	t.Helper()
	x, err := e.manager.AddExpense(context.Background(), tripID, freight.ExpenseDraft{
		Type:        "Peaje",
		Description: "Peaje ruta 22",
		Amount:      dec(amount),
	})
	require.NoError(t, err)
	return x
}

// toDraft turns a saved trip back into an update draft.
func toDraft(t freight.Trip) freight.TripDraft {
	return freight.TripDraft{
		ID:            t.ID,
		Number:        t.Number,
		VehicleID:     t.VehicleID,
		DriverID:      t.DriverID,
		ClientID:      t.ClientID,
		DepartureAt:   t.DepartureAt,
		ArrivalAt:     t.ArrivalAt,
		Origin:        t.Origin,
		Destination:   t.Destination,
		Volume:        t.Volume,
		Revenue:       t.Revenue,
		DriverPayment: t.DriverPayment,
		Status:        t.Status,
		Notes:         t.Notes,
	}
}

func (e *testEngine) setStatus(t *testing.T, id int64, status freight.TripStatus) (freight.TripDetail, error) {
	t.Helper()
	cur, err := e.manager.Trip(context.Background(), id)
	require.NoError(t, err)
	d := toDraft(cur.Trip)
	d.Status = status
	return e.manager.SaveTrip(context.Background(), d)
}
