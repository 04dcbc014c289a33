package freight_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/freight-engine/freight"
)

// =============================================================================
// SAVE TRIP - CREATE
// =============================================================================

func TestSaveTrip_Create_DefaultsAndNumber(t *testing.T) {
	// GIVEN: A registered vehicle, driver and client
	// WHEN: Saving a new trip without status or number
	// THEN: It is Programado with a generated V-YYYYMMDD-XXXXXX number

	e := newTestEngine(t)
	f := e.fleet(t)

	saved := e.trip(t, f.draft(march15.Add(8*time.Hour), "30000", "1000", "200"))

	assert.NotZero(t, saved.ID)
	assert.Equal(t, freight.TripScheduled, saved.Status)
	assert.True(t, strings.HasPrefix(saved.Number, "V-20240315-"), saved.Number)
	assert.Len(t, saved.Number, len("V-20240315-")+6)
	assert.Empty(t, saved.Expenses)

	last := e.outcomes[len(e.outcomes)-1]
	assert.True(t, last.OK)
	assert.Equal(t, "create trip", last.Op)
	assert.Contains(t, last.Message, saved.Number)
}

func TestSaveTrip_Create_ReportsEveryViolation(t *testing.T) {
	// GIVEN: A draft with several bad fields
	// WHEN: Saving it
	// THEN: One ValidationError lists all of them and nothing is written

	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.manager.SaveTrip(ctx, freight.TripDraft{
		Origin:        "AB",
		Volume:        dec("0"),
		Revenue:       dec("-1"),
		DriverPayment: dec("-5"),
	})

	var verr *freight.ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{
		"trip.vehicle_id", "trip.driver_id", "trip.client_id", "trip.departure_at",
		"trip.origin", "trip.destination", "trip.volume", "trip.revenue", "trip.driver_payment",
	} {
		assert.True(t, verr.Has(field), "missing violation for %s", field)
	}
	assert.Equal(t, freight.KindValidation, freight.KindOf(err))

	n, err := e.store.CountTrips(ctx, freight.TripFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveTrip_Create_MissingReference(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)

	d := f.draft(march15, "100", "100", "0")
	d.ClientID = 999

	_, err := e.manager.SaveTrip(context.Background(), d)

	var nf *freight.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "client", nf.Entity)
	assert.Equal(t, int64(999), nf.ID)
}

func TestSaveTrip_Create_DuplicateNumberConflicts(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)

	d := f.draft(march15, "100", "100", "0")
	d.Number = "V-001"
	e.trip(t, d)

	_, err := e.manager.SaveTrip(context.Background(), d)

	assert.True(t, freight.IsConflict(err), "got %v", err)
}

func TestSaveTrip_RoundTrip(t *testing.T) {
	// GIVEN: A saved trip with expenses
	// WHEN: Reloading it
	// THEN: Every derived figure matches the values computed before reloading

	e := newTestEngine(t)
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "30000", "1000", "200"))
	e.expense(t, saved.ID, "50")
	e.expense(t, saved.ID, "30")

	before, err := e.manager.Trip(context.Background(), saved.ID)
	require.NoError(t, err)
	again, err := e.manager.SaveTrip(context.Background(), toDraft(before.Trip))
	require.NoError(t, err)
	after, err := e.manager.Trip(context.Background(), again.ID)
	require.NoError(t, err)

	assert.True(t, before.GrossProfit().Equal(after.GrossProfit()))
	assert.True(t, before.TotalExpenses().Equal(after.TotalExpenses()))
	assert.True(t, before.NetProfit().Equal(after.NetProfit()))
	assert.True(t, before.Efficiency().Equal(after.Efficiency()))
	assert.Equal(t, "720", after.NetProfit().String())
	assert.Equal(t, "0.02", after.Efficiency().String())
	require.NotNil(t, after.Vehicle)
	assert.Equal(t, "ABC123", after.Vehicle.Plate)
	require.NotNil(t, after.Driver)
	assert.Equal(t, "Juan Pérez", after.Driver.FullName())
	require.NotNil(t, after.Client)
}

// =============================================================================
// SAVE TRIP - STATUS TRANSITIONS
// =============================================================================

func TestSaveTrip_CompletedToInProgress_Rejected(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "100", "0"))

	_, err := e.setStatus(t, saved.ID, freight.TripInProgress)
	require.NoError(t, err)
	_, err = e.setStatus(t, saved.ID, freight.TripCompleted)
	require.NoError(t, err)

	_, err = e.setStatus(t, saved.ID, freight.TripInProgress)

	var terr *freight.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, freight.TripCompleted, terr.From)
	assert.Equal(t, freight.TripInProgress, terr.To)

	cur, err := e.manager.Trip(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, freight.TripCompleted, cur.Status)
}

func TestSaveTrip_ScheduledToCancelled_Succeeds(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "100", "0"))

	updated, err := e.setStatus(t, saved.ID, freight.TripCancelled)

	require.NoError(t, err)
	assert.Equal(t, freight.TripCancelled, updated.Status)
}

func TestSaveTrip_TerminalTrip_OnlyNotesEditable(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "100", "0"))
	_, err := e.setStatus(t, saved.ID, freight.TripCancelled)
	require.NoError(t, err)

	cur, err := e.manager.Trip(context.Background(), saved.ID)
	require.NoError(t, err)

	notes := toDraft(cur.Trip)
	notes.Notes = "cliente canceló por lluvia"
	_, err = e.manager.SaveTrip(context.Background(), notes)
	require.NoError(t, err)

	money := toDraft(cur.Trip)
	money.Revenue = dec("5000")
	_, err = e.manager.SaveTrip(context.Background(), money)
	assert.ErrorIs(t, err, freight.ErrPrecondition)
}

func TestSaveTrip_UpdateMissingTrip(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)

	d := f.draft(march15, "100", "100", "0")
	d.ID = 42
	_, err := e.manager.SaveTrip(context.Background(), d)

	assert.True(t, freight.IsNotFound(err))
}

// =============================================================================
// SAVE TRIP - SIDE EFFECTS
// =============================================================================

func TestSaveTrip_InProgress_KeepActivePolicy(t *testing.T) {
	// GIVEN: A vehicle in maintenance assigned to a trip
	// WHEN: The trip departs
	// THEN: The default policy sets the vehicle Activo

	e := newTestEngine(t)
	ctx := context.Background()
	f := e.fleet(t)
	f.vehicle.Status = freight.VehicleMaintenance
	_, err := e.registry.SaveVehicle(ctx, f.vehicle)
	require.NoError(t, err)

	saved := e.trip(t, f.draft(march15, "100", "100", "0"))
	_, err = e.setStatus(t, saved.ID, freight.TripInProgress)
	require.NoError(t, err)

	v, err := e.registry.Vehicle(ctx, f.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, freight.VehicleActive, v.Status)
}

func TestSaveTrip_InProgress_InUsePolicy(t *testing.T) {
	e := newTestEngine(t)
	e.manager.Vehicles = freight.InUsePolicy{}
	ctx := context.Background()
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "100", "0"))

	_, err := e.setStatus(t, saved.ID, freight.TripInProgress)
	require.NoError(t, err)
	v, err := e.registry.Vehicle(ctx, f.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, freight.VehicleInUse, v.Status)

	_, err = e.setStatus(t, saved.ID, freight.TripCompleted)
	require.NoError(t, err)
	v, err = e.registry.Vehicle(ctx, f.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, freight.VehicleActive, v.Status)
}

func TestSaveTrip_Completed_CreditsDriverOnce(t *testing.T) {
	// GIVEN: A trip with driver payment 200
	// WHEN: It completes, then its notes are edited
	// THEN: Exactly one PagoViaje +200 is in the driver's ledger

	e := newTestEngine(t)
	ctx := context.Background()
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "1000", "200"))
	_, err := e.setStatus(t, saved.ID, freight.TripInProgress)
	require.NoError(t, err)
	done, err := e.setStatus(t, saved.ID, freight.TripCompleted)
	require.NoError(t, err)

	edit := toDraft(done.Trip)
	edit.Notes = "entregado"
	_, err = e.manager.SaveTrip(ctx, edit)
	require.NoError(t, err)

	lines, err := e.ledger.Statement(ctx, f.driver.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, freight.MovementTripPayment, lines[0].Type)
	assert.Equal(t, "200", lines[0].Amount.String())
	require.NotNil(t, lines[0].TripID)
	assert.Equal(t, saved.ID, *lines[0].TripID)

	d, err := e.registry.Driver(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, "200", d.Balance.String())
}

// failingStore makes one Store method fail inside every transaction.
type failingStore struct {
	freight.TxStore
	failOn string
}

func (s *failingStore) WithTx(ctx context.Context, fn func(freight.Store) error) error {
	return s.TxStore.WithTx(ctx, func(inner freight.Store) error {
		return fn(&failingView{Store: inner, failOn: s.failOn})
	})
}

type failingView struct {
	freight.Store
	failOn string
}

var errDisk = errors.New("disk I/O error")

func (v *failingView) UpdateVehicle(ctx context.Context, veh *freight.Vehicle) error {
	if v.failOn == "UpdateVehicle" {
		return errDisk
	}
	return v.Store.UpdateVehicle(ctx, veh)
}

func (v *failingView) InsertMovement(ctx context.Context, m *freight.Movement) error {
	if v.failOn == "InsertMovement" {
		return errDisk
	}
	return v.Store.InsertMovement(ctx, m)
}

func TestSaveTrip_FailureRollsBackEverything(t *testing.T) {
	// GIVEN: A store whose ledger insert fails
	// WHEN: Completing a trip
	// THEN: StorageError; the trip is still EnCurso and the balance untouched

	e := newTestEngine(t)
	ctx := context.Background()
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "1000", "200"))
	_, err := e.setStatus(t, saved.ID, freight.TripInProgress)
	require.NoError(t, err)

	broken := &failingStore{TxStore: e.store, failOn: "InsertMovement"}
	m := freight.NewManager(broken, freight.NewLedger(broken, e.clock, nil), e.clock, nil)

	cur, err := e.manager.Trip(ctx, saved.ID)
	require.NoError(t, err)
	d := toDraft(cur.Trip)
	d.Status = freight.TripCompleted
	_, err = m.SaveTrip(ctx, d)

	require.Error(t, err)
	assert.Equal(t, freight.KindStorage, freight.KindOf(err))
	assert.ErrorIs(t, err, errDisk)

	after, err := e.manager.Trip(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, freight.TripInProgress, after.Status)
	bal, err := e.ledger.CurrentBalance(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestSaveTrip_VehicleUpdateFailure_NoTripWritten(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f := e.fleet(t)

	broken := &failingStore{TxStore: e.store, failOn: "UpdateVehicle"}
	m := freight.NewManager(broken, nil, e.clock, nil)
	m.Vehicles = freight.InUsePolicy{}

	d := f.draft(march15, "100", "100", "0")
	d.Status = freight.TripInProgress
	_, err := m.SaveTrip(ctx, d)

	require.Error(t, err)
	n, err := e.store.CountTrips(ctx, freight.TripFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveTrip_Timeout(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := e.manager.SaveTrip(ctx, f.draft(march15, "100", "100", "0"))

	var terr *freight.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, freight.KindTimeout, freight.KindOf(err))
}

// =============================================================================
// DELETE TRIP
// =============================================================================

func TestDeleteTrip_CascadesExpensesAndDetachesMovements(t *testing.T) {
	// GIVEN: A completed trip with two expenses and a ledger credit
	// WHEN: Deleting the trip
	// THEN: Expenses are gone; the movement survives with no trip reference

	e := newTestEngine(t)
	ctx := context.Background()
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "1000", "200"))
	x1 := e.expense(t, saved.ID, "50")
	e.expense(t, saved.ID, "30")
	_, err := e.setStatus(t, saved.ID, freight.TripInProgress)
	require.NoError(t, err)
	_, err = e.setStatus(t, saved.ID, freight.TripCompleted)
	require.NoError(t, err)

	require.NoError(t, e.manager.DeleteTrip(ctx, saved.ID))

	_, err = e.manager.Trip(ctx, saved.ID)
	assert.True(t, freight.IsNotFound(err))
	gone, err := e.store.GetExpense(ctx, x1.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	lines, err := e.ledger.Statement(ctx, f.driver.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Nil(t, lines[0].TripID)
	bal, err := e.ledger.CurrentBalance(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, "200", bal.String())
}

func TestDeleteTrip_NotFound(t *testing.T) {
	e := newTestEngine(t)
	err := e.manager.DeleteTrip(context.Background(), 7)
	assert.True(t, freight.IsNotFound(err))
	assert.False(t, e.outcomes[len(e.outcomes)-1].OK)
}

// =============================================================================
// EXPENSES
// =============================================================================

func TestAddExpense_UnsavedTrip(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.manager.AddExpense(context.Background(), 0, freight.ExpenseDraft{
		Type: "Peaje", Description: "x", Amount: dec("10"),
	})
	assert.ErrorIs(t, err, freight.ErrPrecondition)

	_, err = e.manager.AddExpense(context.Background(), 99, freight.ExpenseDraft{
		Type: "Peaje", Description: "x", Amount: dec("10"),
	})
	assert.ErrorIs(t, err, freight.ErrPrecondition)
}

func TestAddExpense_NonPositiveAmount(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "100", "0"))

	for _, amount := range []string{"0", "-3"} {
		_, err := e.manager.AddExpense(context.Background(), saved.ID, freight.ExpenseDraft{
			Type: "Peaje", Description: "x", Amount: dec(amount),
		})
		assert.ErrorIs(t, err, freight.ErrPrecondition, amount)
	}
}

func TestExpenses_NetProfitFollowsInsertAndDelete(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "1000", "200"))

	x := e.expense(t, saved.ID, "50")
	e.expense(t, saved.ID, "30")
	cur, err := e.manager.Trip(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "720", cur.NetProfit().String())

	require.NoError(t, e.manager.RemoveExpense(ctx, x.ID))
	cur, err = e.manager.Trip(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "770", cur.NetProfit().String())
	assert.True(t, cur.NetProfit().Equal(cur.Revenue.Sub(cur.DriverPayment).Sub(cur.TotalExpenses())))

	err = e.manager.RemoveExpense(ctx, x.ID)
	assert.True(t, freight.IsNotFound(err))
}

func TestAddExpense_DefaultsDateToNow(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "100", "100", "0"))

	x := e.expense(t, saved.ID, "10")

	assert.True(t, x.Date.Equal(march15))
}

func TestAddExpense_Concurrent(t *testing.T) {
	// GIVEN: Two trips
	// WHEN: Adding expenses concurrently to both, and twice to the same trip
	// THEN: Every expense persists on the right trip

	e := newTestEngine(t)
	ctx := context.Background()
	f := e.fleet(t)
	a := e.trip(t, f.draft(march15, "100", "1000", "0"))
	b := e.trip(t, f.draft(march15.Add(time.Hour), "100", "1000", "0"))

	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 10; i++ {
		for _, id := range []int64{a.ID, b.ID, a.ID} {
			wg.Add(1)
			go func(tripID int64) {
				defer wg.Done()
				_, err := e.manager.AddExpense(ctx, tripID, freight.ExpenseDraft{
					Type: "Comb", Description: "gasoil", Amount: dec("1"),
				})
				errs <- err
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	xa, err := e.manager.Expenses(ctx, a.ID)
	require.NoError(t, err)
	xb, err := e.manager.Expenses(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, xa, 20)
	assert.Len(t, xb, 10)
}

// =============================================================================
// VEHICLE POLICY CONFIG
// =============================================================================

func TestVehiclePolicyByName(t *testing.T) {
	p, err := freight.VehiclePolicyByName("")
	require.NoError(t, err)
	assert.IsType(t, freight.KeepActivePolicy{}, p)

	p, err = freight.VehiclePolicyByName("in-use")
	require.NoError(t, err)
	assert.IsType(t, freight.InUsePolicy{}, p)

	_, err = freight.VehiclePolicyByName("teleport")
	assert.Error(t, err)
}
