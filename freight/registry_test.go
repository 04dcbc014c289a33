package freight_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/freight-engine/freight"
	"github.com/warp/freight-engine/freight/store"
)

func TestSaveVehicle_NormalizesPlateAndDefaultsStatus(t *testing.T) {
	e := newTestEngine(t)

	v := e.vehicle(t, " abc123 ")

	assert.Equal(t, "ABC123", v.Plate)
	assert.Equal(t, freight.VehicleActive, v.Status)
	last := e.outcomes[len(e.outcomes)-1]
	assert.Equal(t, "Vehículo guardado.", last.Message)
}

func TestSaveVehicle_DuplicatePlateConflicts(t *testing.T) {
	e := newTestEngine(t)
	e.vehicle(t, "ABC123")

	_, err := e.registry.SaveVehicle(context.Background(), freight.Vehicle{
		Plate: "abc123", Make: "Volvo", FuelCapacity: dec("20000"),
	})

	assert.True(t, freight.IsConflict(err), "got %v", err)
	assert.False(t, e.outcomes[len(e.outcomes)-1].OK)
}

func TestSaveVehicle_Invalid(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.registry.SaveVehicle(context.Background(), freight.Vehicle{Plate: "X"})

	var verr *freight.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("vehicle.make"))
	assert.True(t, verr.Has("vehicle.fuel_capacity"))
}

func TestSaveDriver_BalanceIsLedgerOwned(t *testing.T) {
	// GIVEN: A driver created with a balance and later credited by the ledger
	// WHEN: Creating and then updating with an arbitrary balance
	// THEN: Create starts at zero and update keeps the ledger balance

	e := newTestEngine(t)
	ctx := context.Background()

	d, err := e.registry.SaveDriver(ctx, freight.Driver{
		Document: "1", FirstName: "Ana", LastName: "Gómez",
		LicenseNumber: "L1", LicenseExpiry: march15.AddDate(1, 0, 0),
		Balance: dec("5000"),
	})
	require.NoError(t, err)
	assert.True(t, d.Balance.IsZero())

	_, err = e.ledger.RecordMovement(ctx, adjustment(d.ID, "40", march15))
	require.NoError(t, err)

	d.Phone = "2914000000"
	d.Balance = dec("1")
	updated, err := e.registry.SaveDriver(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "40", updated.Balance.String())
	assert.Equal(t, "2914000000", updated.Phone)
}

func TestSaveClient_UpdateMissing(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.registry.SaveClient(context.Background(), freight.Client{ID: 7, LegalName: "Nadie"})

	assert.True(t, freight.IsNotFound(err))
}

func TestDelete_RestrictedByTrips(t *testing.T) {
	// GIVEN: A vehicle, driver and client all referenced by a trip
	// WHEN: Deleting each of them
	// THEN: Every delete conflicts and nothing is removed

	e := newTestEngine(t)
	ctx := context.Background()
	f := e.fleet(t)
	e.trip(t, f.draft(march15, "100", "100", "0"))

	for name, del := range map[string]func() error{
		"vehicle": func() error { return e.registry.DeleteVehicle(ctx, f.vehicle.ID) },
		"driver":  func() error { return e.registry.DeleteDriver(ctx, f.driver.ID) },
		"client":  func() error { return e.registry.DeleteClient(ctx, f.client.ID) },
	} {
		err := del()
		var cerr *freight.ConflictError
		require.ErrorAs(t, err, &cerr, name)
		assert.Equal(t, name, cerr.Entity)
		assert.Contains(t, cerr.Reason, "1 trip(s)")
	}

	_, err := e.registry.Vehicle(ctx, f.vehicle.ID)
	assert.NoError(t, err)
}

func TestDelete_Unreferenced(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	c := e.client(t, "Transportes Patagonia")

	require.NoError(t, e.registry.DeleteClient(ctx, c.ID))

	_, err := e.registry.Client(ctx, c.ID)
	assert.True(t, freight.IsNotFound(err))
	assert.True(t, freight.IsNotFound(e.registry.DeleteClient(ctx, c.ID)))
}

func TestVehicles_FilterByStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	e.vehicle(t, "AAA111")
	v := e.vehicle(t, "BBB222")
	v.Status = freight.VehicleInactive
	_, err := e.registry.SaveVehicle(ctx, v)
	require.NoError(t, err)

	status := freight.VehicleInactive
	list, err := e.registry.Vehicles(ctx, freight.VehicleFilter{Status: &status})

	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "BBB222", list[0].Plate)
}

func TestSaveVehicle_YearBoundFollowsClock(t *testing.T) {
	// GIVEN: An engine whose clock reads 2024
	// WHEN: Saving vehicles with model years 2025 and 2026
	// THEN: Next year's model is accepted and the one after is rejected
	e := newTestEngine(t)

	_, err := e.registry.SaveVehicle(context.Background(), freight.Vehicle{
		Plate: "NEXT01", Make: "Scania", FuelCapacity: dec("30000"), Year: 2025,
	})
	require.NoError(t, err)

	_, err = e.registry.SaveVehicle(context.Background(), freight.Vehicle{
		Plate: "NEXT02", Make: "Scania", FuelCapacity: dec("30000"), Year: 2026,
	})
	var verr *freight.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("vehicle.year"))
}

// =============================================================================
// UNIT OF WORK DEADLINE
// =============================================================================

// deadlineStore records whether the store calls made inside a transaction
// carried a deadline.
type deadlineStore struct {
	freight.TxStore
	calls     int
	deadlines int
}

func (d *deadlineStore) WithTx(ctx context.Context, fn func(freight.Store) error) error {
	return d.TxStore.WithTx(ctx, func(s freight.Store) error {
		return fn(deadlineTx{Store: s, rec: d})
	})
}

type deadlineTx struct {
	freight.Store
	rec *deadlineStore
}

func (d deadlineTx) seen(ctx context.Context) {
	d.rec.calls++
	if _, ok := ctx.Deadline(); ok {
		d.rec.deadlines++
	}
}

func (d deadlineTx) GetClient(ctx context.Context, id int64) (*freight.Client, error) {
	d.seen(ctx)
	return d.Store.GetClient(ctx, id)
}

func (d deadlineTx) InsertClient(ctx context.Context, c *freight.Client) error {
	d.seen(ctx)
	return d.Store.InsertClient(ctx, c)
}

func (d deadlineTx) UpdateClient(ctx context.Context, c *freight.Client) error {
	d.seen(ctx)
	return d.Store.UpdateClient(ctx, c)
}

func TestSaveClient_StoreCallsCarryTimeout(t *testing.T) {
	// GIVEN: A registry with a unit-of-work timeout and a caller context without one
	// WHEN: A client is created and then updated
	// THEN: Every store call inside the transaction sees the deadline
	spy := &deadlineStore{TxStore: store.NewMemory()}
	registry := freight.NewRegistry(spy, freight.FixedClock{At: march15}, nil)
	registry.Timeout = time.Minute

	c, err := registry.SaveClient(context.Background(), freight.Client{LegalName: "Axion Energy"})
	require.NoError(t, err)
	c.Contact = "Laura Méndez"
	_, err = registry.SaveClient(context.Background(), c)
	require.NoError(t, err)

	require.Positive(t, spy.calls)
	assert.Equal(t, spy.calls, spy.deadlines)
}
