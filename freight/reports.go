/*
reports.go - Dashboard aggregates

PURPOSE:
  Read-only queries over the persisted trips, vehicles and drivers. Every
  aggregate is independent: a failing read logs, yields zero or empty, and
  never blocks its siblings.

TIME WINDOWS (see time.go):
  Month: [first day 00:00, first day of next month 00:00)
  Day:   [00:00, next day 00:00)
  Both use the location of the clock's "now".
*/
package freight

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultRecentTrips = 5

type Reports struct {
	Store Store
	Clock Clock
	Log   logrus.FieldLogger
}

func NewReports(store Store, clock Clock, log logrus.FieldLogger) *Reports {
	return &Reports{Store: store, Clock: clockOrSystem(clock), Log: loggerOrDiscard(log)}
}

// MonthlyNetProfit sums the net profit of completed trips departing in the
// calendar month of now.
func (r *Reports) MonthlyNetProfit(ctx context.Context, now time.Time) decimal.Decimal {
	w := MonthWindow(now)
	trips, err := r.Store.ListTrips(ctx, TripFilter{
		Statuses:     []TripStatus{TripCompleted},
		DepartFrom:   &w.Start,
		DepartBefore: &w.End,
	})
	if err != nil {
		r.fail("monthly net profit", err)
		return decimal.Zero
	}
	details, err := withExpenses(ctx, r.Store, trips)
	if err != nil {
		r.fail("monthly net profit", err)
		return decimal.Zero
	}
	total := decimal.Zero
	for _, d := range details {
		total = total.Add(d.NetProfit())
	}
	return total
}

// InProgressTripCount counts trips currently EnCurso.
func (r *Reports) InProgressTripCount(ctx context.Context) int {
	n, err := r.Store.CountTrips(ctx, TripFilter{Statuses: []TripStatus{TripInProgress}})
	if err != nil {
		r.fail("in-progress trip count", err)
		return 0
	}
	return n
}

// TodayVolume sums the volume of non-cancelled trips departing on the
// calendar day of now.
func (r *Reports) TodayVolume(ctx context.Context, now time.Time) decimal.Decimal {
	w := DayWindow(now)
	trips, err := r.Store.ListTrips(ctx, TripFilter{
		ExcludeStatus: []TripStatus{TripCancelled},
		DepartFrom:    &w.Start,
		DepartBefore:  &w.End,
	})
	if err != nil {
		r.fail("today volume", err)
		return decimal.Zero
	}
	total := decimal.Zero
	for _, t := range trips {
		total = total.Add(t.Volume)
	}
	return total
}

// RecentTrips returns the limit most recent trips by departure, with their
// vehicle, driver and client. A limit <= 0 means 5.
func (r *Reports) RecentTrips(ctx context.Context, limit int) []TripDetail {
	if limit <= 0 {
		limit = defaultRecentTrips
	}
	trips, err := r.Store.ListTrips(ctx, TripFilter{Limit: limit})
	if err != nil {
		r.fail("recent trips", err)
		return []TripDetail{}
	}
	details, err := withExpenses(ctx, r.Store, trips)
	if err == nil {
		err = withReferences(ctx, r.Store, details)
	}
	if err != nil {
		r.fail("recent trips", err)
		return []TripDetail{}
	}
	return details
}

// =============================================================================
// DOCUMENT EXPIRY
// =============================================================================

type DocumentKind string

const (
	DocInsurance DocumentKind = "insurance"
	DocCoverage  DocumentKind = "coverage"
	DocLicense   DocumentKind = "license"
)

type VehicleAlert struct {
	Vehicle  Vehicle
	Document DocumentKind
	Expired  bool
}

type DriverAlert struct {
	Driver   Driver
	Document DocumentKind
	Expired  bool
}

type DocumentAlerts struct {
	Vehicles []VehicleAlert
	Drivers  []DriverAlert
}

// ExpiringDocuments flags vehicles whose insurance or mandatory coverage is
// expired or expires within 30 days, and drivers whose license is expired
// or expires within 60 days.
func (r *Reports) ExpiringDocuments(ctx context.Context, now time.Time) DocumentAlerts {
	out := DocumentAlerts{Vehicles: []VehicleAlert{}, Drivers: []DriverAlert{}}

	vehicles, err := r.Store.ListVehicles(ctx, VehicleFilter{})
	if err != nil {
		r.fail("expiring vehicle documents", err)
	}
	for _, v := range vehicles {
		switch {
		case v.InsuranceExpired(now):
			out.Vehicles = append(out.Vehicles, VehicleAlert{Vehicle: v, Document: DocInsurance, Expired: true})
		case v.InsuranceExpiringSoon(now):
			out.Vehicles = append(out.Vehicles, VehicleAlert{Vehicle: v, Document: DocInsurance})
		}
		switch {
		case v.CoverageExpired(now):
			out.Vehicles = append(out.Vehicles, VehicleAlert{Vehicle: v, Document: DocCoverage, Expired: true})
		case v.CoverageExpiringSoon(now):
			out.Vehicles = append(out.Vehicles, VehicleAlert{Vehicle: v, Document: DocCoverage})
		}
	}

	drivers, err := r.Store.ListDrivers(ctx, DriverFilter{})
	if err != nil {
		r.fail("expiring driver licenses", err)
	}
	for _, d := range drivers {
		switch {
		case d.LicenseExpired(now):
			out.Drivers = append(out.Drivers, DriverAlert{Driver: d, Document: DocLicense, Expired: true})
		case d.LicenseExpiringSoon(now):
			out.Drivers = append(out.Drivers, DriverAlert{Driver: d, Document: DocLicense})
		}
	}
	return out
}

// =============================================================================
// DASHBOARD
// =============================================================================

type DashboardSummary struct {
	At                time.Time
	MonthlyNetProfit  decimal.Decimal
	InProgressTrips   int
	TodayVolume       decimal.Decimal
	RecentTrips       []TripDetail
	ExpiringDocuments DocumentAlerts
}

// Dashboard computes every aggregate concurrently at a single "now".
func (r *Reports) Dashboard(ctx context.Context) DashboardSummary {
	now := r.Clock.Now()
	d := DashboardSummary{At: now}

	// Aggregates swallow their own errors, so Wait never reports one.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { d.MonthlyNetProfit = r.MonthlyNetProfit(gctx, now); return nil })
	g.Go(func() error { d.InProgressTrips = r.InProgressTripCount(gctx); return nil })
	g.Go(func() error { d.TodayVolume = r.TodayVolume(gctx, now); return nil })
	g.Go(func() error { d.RecentTrips = r.RecentTrips(gctx, defaultRecentTrips); return nil })
	g.Go(func() error { d.ExpiringDocuments = r.ExpiringDocuments(gctx, now); return nil })
	_ = g.Wait()
	return d
}

func (r *Reports) fail(aggregate string, err error) {
	r.Log.WithError(err).WithField("aggregate", aggregate).Error("aggregate failed, defaulting to zero")
}
