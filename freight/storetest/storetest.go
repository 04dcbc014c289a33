// Package storetest holds the behaviour every freight.TxStore must share.
// Backends call Run from their own tests with a constructor for an empty
// store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/freight-engine/freight"
)

var base = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

// Run executes the contract suite, one fresh store per subtest.
func Run(t *testing.T, newStore func(t *testing.T) freight.TxStore) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s freight.TxStore)
	}{
		{"GetMissingReturnsNil", testGetMissing},
		{"UniquePlate", testUniquePlate},
		{"UniqueTripNumber", testUniqueTripNumber},
		{"UpdateMissingIsNotFound", testUpdateMissing},
		{"RestrictDeleteReferenced", testRestrict},
		{"DeleteTripCascades", testDeleteTripCascades},
		{"DeleteDriverCascadesMovements", testDeleteDriverCascades},
		{"UpdateDriverKeepsBalance", testUpdateDriverKeepsBalance},
		{"TripWindowsAndOrder", testTripWindows},
		{"ExpensesByTrip", testExpensesByTrip},
		{"MovementsOrderAndReversal", testMovements},
		{"RollbackOnError", testRollback},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			c.fn(t, newStore(t))
		})
	}
}

// =============================================================================
// FIXTURES
// =============================================================================

type refs struct {
	vehicle, driver, client int64
}

func seed(t *testing.T, s freight.TxStore) refs {
	t.Helper()
	ctx := context.Background()
	v := &freight.Vehicle{Plate: "AB123CD", Make: "Iveco", FuelCapacity: decimal.NewFromInt(25000), Status: freight.VehicleActive}
	require.NoError(t, s.InsertVehicle(ctx, v))
	d := &freight.Driver{Document: "20333444", FirstName: "Luis", LastName: "Sosa", LicenseNumber: "B1",
		LicenseExpiry: base.AddDate(1, 0, 0), Status: freight.DriverActive}
	require.NoError(t, s.InsertDriver(ctx, d))
	c := &freight.Client{LegalName: "YPF Estaciones", Status: freight.ClientActive}
	require.NoError(t, s.InsertClient(ctx, c))
	return refs{v.ID, d.ID, c.ID}
}

func trip(t *testing.T, s freight.Store, r refs, number string, departure time.Time, status freight.TripStatus) *freight.Trip {
	t.Helper()
	tr := &freight.Trip{
		Number:        number,
		VehicleID:     r.vehicle,
		DriverID:      r.driver,
		ClientID:      r.client,
		DepartureAt:   departure,
		Origin:        "Rosario",
		Destination:   "Córdoba",
		Volume:        decimal.NewFromInt(1000),
		Revenue:       decimal.NewFromInt(500),
		DriverPayment: decimal.NewFromInt(100),
		Status:        status,
	}
	require.NoError(t, s.InsertTrip(context.Background(), tr))
	return tr
}

func movement(t *testing.T, s freight.Store, driverID int64, tripID *int64, amount string, at time.Time) *freight.Movement {
	t.Helper()
	m := &freight.Movement{
		DriverID:    driverID,
		TripID:      tripID,
		Type:        freight.MovementAdjustment,
		Amount:      decimal.RequireFromString(amount),
		Description: "ajuste",
		At:          at,
	}
	require.NoError(t, s.InsertMovement(context.Background(), m))
	return m
}

// =============================================================================
// CASES
// =============================================================================

func testGetMissing(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	v, err := s.GetVehicle(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, v)
	tr, err := s.GetTrip(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, tr)
	m, err := s.FindReversal(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func testUniquePlate(t *testing.T, s freight.TxStore) {
	seed(t, s)
	err := s.InsertVehicle(context.Background(), &freight.Vehicle{
		Plate: "AB123CD", Make: "Ford", FuelCapacity: decimal.NewFromInt(1), Status: freight.VehicleActive,
	})
	assert.True(t, freight.IsConflict(err), "got %v", err)
}

func testUniqueTripNumber(t *testing.T, s freight.TxStore) {
	r := seed(t, s)
	trip(t, s, r, "V-1", base, freight.TripScheduled)
	dup := *trip(t, s, r, "V-2", base, freight.TripScheduled)
	dup.Number = "V-1"
	err := s.UpdateTrip(context.Background(), &dup)
	assert.True(t, freight.IsConflict(err), "got %v", err)
}

func testUpdateMissing(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	err := s.UpdateClient(ctx, &freight.Client{ID: 99, LegalName: "x", Status: freight.ClientActive})
	assert.True(t, freight.IsNotFound(err), "got %v", err)
	assert.True(t, freight.IsNotFound(s.DeleteTrip(ctx, 99)))
	assert.True(t, freight.IsNotFound(s.SetDriverBalance(ctx, 99, decimal.Zero)))
}

func testRestrict(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	r := seed(t, s)
	trip(t, s, r, "V-1", base, freight.TripScheduled)

	assert.True(t, freight.IsConflict(s.DeleteVehicle(ctx, r.vehicle)))
	assert.True(t, freight.IsConflict(s.DeleteDriver(ctx, r.driver)))
	assert.True(t, freight.IsConflict(s.DeleteClient(ctx, r.client)))

	v, err := s.GetVehicle(ctx, r.vehicle)
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func testDeleteTripCascades(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	r := seed(t, s)
	tr := trip(t, s, r, "V-1", base, freight.TripCompleted)
	x := &freight.Expense{TripID: tr.ID, Type: "Peaje", Description: "ruta 9", Amount: decimal.NewFromInt(10), Date: base}
	require.NoError(t, s.InsertExpense(ctx, x))
	m := movement(t, s, r.driver, &tr.ID, "100", base)

	require.NoError(t, s.DeleteTrip(ctx, tr.ID))

	gone, err := s.GetExpense(ctx, x.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := s.GetMovement(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Nil(t, kept.TripID)
}

func testDeleteDriverCascades(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	r := seed(t, s)
	m := movement(t, s, r.driver, nil, "5", base)

	require.NoError(t, s.DeleteDriver(ctx, r.driver))

	gone, err := s.GetMovement(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func testUpdateDriverKeepsBalance(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	r := seed(t, s)
	require.NoError(t, s.SetDriverBalance(ctx, r.driver, decimal.RequireFromString("12.34")))

	d, err := s.GetDriver(ctx, r.driver)
	require.NoError(t, err)
	d.Phone = "1234"
	d.Balance = decimal.Zero
	require.NoError(t, s.UpdateDriver(ctx, d))

	d, err = s.GetDriver(ctx, r.driver)
	require.NoError(t, err)
	assert.Equal(t, "12.34", d.Balance.String())
	assert.Equal(t, "1234", d.Phone)
}

func testTripWindows(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	r := seed(t, s)
	w := freight.MonthWindow(base)
	first := trip(t, s, r, "V-1", w.Start, freight.TripCompleted)
	last := trip(t, s, r, "V-2", w.End.Add(-time.Nanosecond), freight.TripCompleted)
	trip(t, s, r, "V-3", w.End, freight.TripCompleted)
	trip(t, s, r, "V-4", base, freight.TripCancelled)

	got, err := s.ListTrips(ctx, freight.TripFilter{
		Statuses:     []freight.TripStatus{freight.TripCompleted},
		DepartFrom:   &w.Start,
		DepartBefore: &w.End,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, last.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	assert.True(t, got[0].DepartureAt.Equal(last.DepartureAt))

	n, err := s.CountTrips(ctx, freight.TripFilter{ExcludeStatus: []freight.TripStatus{freight.TripCancelled}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	limited, err := s.ListTrips(ctx, freight.TripFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "V-3", limited[0].Number)
}

func testExpensesByTrip(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	r := seed(t, s)
	a := trip(t, s, r, "V-1", base, freight.TripScheduled)
	b := trip(t, s, r, "V-2", base, freight.TripScheduled)
	for i, tripID := range []int64{a.ID, a.ID, b.ID} {
		require.NoError(t, s.InsertExpense(ctx, &freight.Expense{
			TripID: tripID, Type: "Combustible", Description: "carga",
			Amount: decimal.NewFromInt(int64(10 * (i + 1))), Date: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := s.ListExpenses(ctx, freight.ExpenseFilter{TripIDs: []int64{a.ID}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "20", got[0].Amount.String(), "newest first")

	all, err := s.ListExpenses(ctx, freight.ExpenseFilter{TripIDs: []int64{a.ID, b.ID}})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testMovements(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	r := seed(t, s)
	late := movement(t, s, r.driver, nil, "1", base.Add(time.Hour))
	early := movement(t, s, r.driver, nil, "2", base)

	rev := &freight.Movement{
		DriverID: r.driver, Type: freight.MovementReversal, Amount: decimal.NewFromInt(-1),
		Description: "reversión", At: base.Add(2 * time.Hour), ReversalOf: &late.ID,
	}
	require.NoError(t, s.InsertMovement(ctx, rev))

	got, err := s.ListMovements(ctx, r.driver)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{early.ID, late.ID, rev.ID}, []int64{got[0].ID, got[1].ID, got[2].ID})

	found, err := s.FindReversal(ctx, late.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rev.ID, found.ID)

	dup := *rev
	dup.ID = 0
	assert.True(t, freight.IsConflict(s.InsertMovement(ctx, &dup)), "one reversal per movement")
}

func testRollback(t *testing.T, s freight.TxStore) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx freight.Store) error {
		require.NoError(t, tx.InsertClient(ctx, &freight.Client{LegalName: "Temporal", Status: freight.ClientActive}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	clients, err := s.ListClients(ctx, freight.ClientFilter{})
	require.NoError(t, err)
	assert.Empty(t, clients)

	require.NoError(t, s.WithTx(ctx, func(tx freight.Store) error {
		return tx.InsertClient(ctx, &freight.Client{LegalName: "Firme", Status: freight.ClientActive})
	}))
	clients, err = s.ListClients(ctx, freight.ClientFilter{})
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}
