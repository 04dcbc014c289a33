package freight_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/freight-engine/freight"
)

// =============================================================================
// TODAY VOLUME
// =============================================================================

func TestTodayVolume(t *testing.T) {
	// GIVEN: Trips of 500 and 300 departing today, a cancelled trip of 1000
	//        today, and a trip of 900 tomorrow
	// WHEN: Reading today's volume
	// THEN: 800; and 0 on a database with no trips

	e := newTestEngine(t)
	ctx := context.Background()
	assert.True(t, e.reports.TodayVolume(ctx, march15).IsZero())

	f := e.fleet(t)
	e.trip(t, f.draft(march15.Add(6*time.Hour), "500", "100", "0"))
	e.trip(t, f.draft(march15.Add(23*time.Hour+59*time.Minute), "300", "100", "0"))
	cancelled := e.trip(t, f.draft(march15.Add(time.Hour), "1000", "100", "0"))
	_, err := e.setStatus(t, cancelled.ID, freight.TripCancelled)
	require.NoError(t, err)
	e.trip(t, f.draft(march15.AddDate(0, 0, 1), "900", "100", "0"))

	assert.Equal(t, "800", e.reports.TodayVolume(ctx, march15.Add(12*time.Hour)).String())
}

// =============================================================================
// MONTHLY NET PROFIT
// =============================================================================

func TestMonthlyNetProfit(t *testing.T) {
	// GIVEN: A completed March trip with revenue 1000, payment 200 and
	//        expenses 50+30; a cancelled March trip; a completed trip on the
	//        last instant of March; a completed April trip
	// WHEN: Reading March's net profit
	// THEN: Only the completed March trips count

	e := newTestEngine(t)
	ctx := context.Background()
	f := e.fleet(t)

	complete := func(d freight.TripDraft) freight.TripDetail {
		saved := e.trip(t, d)
		_, err := e.setStatus(t, saved.ID, freight.TripInProgress)
		require.NoError(t, err)
		_, err = e.setStatus(t, saved.ID, freight.TripCompleted)
		require.NoError(t, err)
		return saved
	}

	main := complete(f.draft(march15, "30000", "1000", "200"))
	e.expense(t, main.ID, "50")
	e.expense(t, main.ID, "30")

	cancelled := e.trip(t, f.draft(march15, "100", "5000", "0"))
	_, err := e.setStatus(t, cancelled.ID, freight.TripCancelled)
	require.NoError(t, err)

	assert.Equal(t, "720", e.reports.MonthlyNetProfit(ctx, march15).String())

	lastInstant := time.Date(2024, time.March, 31, 23, 59, 59, 0, time.UTC)
	complete(f.draft(lastInstant, "100", "10", "0"))
	complete(f.draft(time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), "100", "99", "0"))

	assert.Equal(t, "730", e.reports.MonthlyNetProfit(ctx, march15).String())
}

// =============================================================================
// COUNTS AND RECENT TRIPS
// =============================================================================

func TestInProgressTripCount(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)
	for i := 0; i < 3; i++ {
		saved := e.trip(t, f.draft(march15, "100", "100", "0"))
		if i < 2 {
			_, err := e.setStatus(t, saved.ID, freight.TripInProgress)
			require.NoError(t, err)
		}
	}

	assert.Equal(t, 2, e.reports.InProgressTripCount(context.Background()))
}

func TestRecentTrips_LimitAndOrder(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)
	for i := 0; i < 7; i++ {
		e.trip(t, f.draft(march15.AddDate(0, 0, -i), "100", "100", "0"))
	}

	recent := e.reports.RecentTrips(context.Background(), 0)

	require.Len(t, recent, 5)
	for i := 1; i < len(recent); i++ {
		assert.True(t, recent[i-1].DepartureAt.After(recent[i].DepartureAt))
	}
	require.NotNil(t, recent[0].Client)
	assert.Equal(t, "Combustibles del Sur SA", recent[0].Client.LegalName)

	assert.Len(t, e.reports.RecentTrips(context.Background(), 2), 2)
}

// =============================================================================
// DOCUMENT EXPIRY
// =============================================================================

func TestExpiringDocuments(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	soon := march15.AddDate(0, 0, 10)
	past := march15.AddDate(0, 0, -1)
	far := march15.AddDate(1, 0, 0)

	v := e.vehicle(t, "AAA111")
	v.InsuranceExpiry = &soon
	v.CoverageExpiry = &past
	_, err := e.registry.SaveVehicle(ctx, v)
	require.NoError(t, err)

	ok := e.vehicle(t, "BBB222")
	ok.InsuranceExpiry = &far
	_, err = e.registry.SaveVehicle(ctx, ok)
	require.NoError(t, err)

	d := e.driver(t, "1")
	d.LicenseExpiry = march15.AddDate(0, 0, 45)
	_, err = e.registry.SaveDriver(ctx, d)
	require.NoError(t, err)
	e.driver(t, "2")

	alerts := e.reports.ExpiringDocuments(ctx, march15)

	require.Len(t, alerts.Vehicles, 2)
	assert.Equal(t, freight.DocInsurance, alerts.Vehicles[0].Document)
	assert.False(t, alerts.Vehicles[0].Expired)
	assert.Equal(t, freight.DocCoverage, alerts.Vehicles[1].Document)
	assert.True(t, alerts.Vehicles[1].Expired)
	require.Len(t, alerts.Drivers, 1)
	assert.Equal(t, d.ID, alerts.Drivers[0].Driver.ID)
}

// =============================================================================
// DASHBOARD
// =============================================================================

// tripsDown fails every trip listing while the rest of the store works.
type tripsDown struct {
	freight.Store
}

func (tripsDown) ListTrips(context.Context, freight.TripFilter) ([]freight.Trip, error) {
	return nil, errors.New("trips table unreadable")
}

func TestDashboard_AllAggregates(t *testing.T) {
	e := newTestEngine(t)
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15.Add(time.Hour), "800", "100", "0"))
	_, err := e.setStatus(t, saved.ID, freight.TripInProgress)
	require.NoError(t, err)

	d := e.reports.Dashboard(context.Background())

	assert.True(t, d.At.Equal(march15))
	assert.Equal(t, 1, d.InProgressTrips)
	assert.Equal(t, "800", d.TodayVolume.String())
	assert.True(t, d.MonthlyNetProfit.IsZero())
	assert.Len(t, d.RecentTrips, 1)
}

func TestDashboard_PartialFailure(t *testing.T) {
	// GIVEN: A store whose trip listing fails
	// WHEN: Building the dashboard
	// THEN: List-based aggregates default to zero/empty; the count still works

	e := newTestEngine(t)
	f := e.fleet(t)
	saved := e.trip(t, f.draft(march15, "800", "100", "0"))
	_, err := e.setStatus(t, saved.ID, freight.TripInProgress)
	require.NoError(t, err)

	reports := freight.NewReports(tripsDown{e.store}, e.clock, nil)
	d := reports.Dashboard(context.Background())

	assert.True(t, d.MonthlyNetProfit.IsZero())
	assert.True(t, d.TodayVolume.IsZero())
	assert.NotNil(t, d.RecentTrips)
	assert.Empty(t, d.RecentTrips)
	assert.Equal(t, 1, d.InProgressTrips)
}
