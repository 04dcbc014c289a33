/*
Package freight provides the trip lifecycle and driver ledger engine.

PURPOSE:
  Storage-agnostic core for a trucking operation: vehicles, drivers, clients,
  trips with their expenses, and an append-only driver current-account
  ledger. The engine keeps trip money figures consistent with expenses and
  driver balances consistent with ledger movements, inside atomic units of
  work.

KEY CONCEPTS IN THIS FILE (types.go):
  - Vehicle, Driver, Client: independently managed master data
  - Trip: a freight haul; owns Expenses (cascade delete)
  - Expense: a cost attributed to one trip
  - Movement: an immutable ledger entry affecting a driver's balance
  - TripDetail: a trip with its owned expenses materialized by lookup

DESIGN PRINCIPLES:
  1. Derived values are methods, never stored fields
  2. Money uses decimal.Decimal, never float64
  3. Entities reference each other by id only; no object graphs
  4. The movement log is the source of truth for balances

SEE ALSO:
  - status.go: status enums and the trip state machine
  - validation.go: field constraints
  - ledger.go: balance computation
  - trips.go: lifecycle orchestration
*/
package freight

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	insuranceWarningWindow = 30 * 24 * time.Hour
	licenseWarningWindow   = 60 * 24 * time.Hour
)

// =============================================================================
// VEHICLE
// =============================================================================

type Vehicle struct {
	ID              int64
	Plate           string
	Make            string
	Model           string
	FuelCapacity    decimal.Decimal
	Year            int
	LastMaintenance *time.Time
	InsuranceExpiry *time.Time
	CoverageExpiry  *time.Time // mandatory third-party coverage
	Status          VehicleStatus
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (v Vehicle) InsuranceExpiringSoon(now time.Time) bool {
	return expiringWithin(v.InsuranceExpiry, now, insuranceWarningWindow)
}

func (v Vehicle) InsuranceExpired(now time.Time) bool { return expiredAt(v.InsuranceExpiry, now) }

func (v Vehicle) CoverageExpiringSoon(now time.Time) bool {
	return expiringWithin(v.CoverageExpiry, now, insuranceWarningWindow)
}

func (v Vehicle) CoverageExpired(now time.Time) bool { return expiredAt(v.CoverageExpiry, now) }

// =============================================================================
// DRIVER
// =============================================================================

type Driver struct {
	ID            int64
	Document      string
	FirstName     string
	LastName      string
	Phone         string
	Email         string
	LicenseNumber string
	LicenseExpiry time.Time
	Photo         []byte

	// Balance is a cached copy of the ledger sum. Only the ledger writes it;
	// Ledger.Reconcile recomputes it from the movements.
	Balance decimal.Decimal

	Status    DriverStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d Driver) FullName() string { return d.FirstName + " " + d.LastName }

func (d Driver) LicenseExpiringSoon(now time.Time) bool {
	return expiringWithin(&d.LicenseExpiry, now, licenseWarningWindow)
}

func (d Driver) LicenseExpired(now time.Time) bool { return expiredAt(&d.LicenseExpiry, now) }

// =============================================================================
// CLIENT
// =============================================================================

type Client struct {
	ID        int64
	LegalName string
	TaxID     string
	Address   string
	Phone     string
	Email     string
	Contact   string
	Status    ClientStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// TRIP & EXPENSE
// =============================================================================

type Trip struct {
	ID            int64
	Number        string
	VehicleID     int64
	DriverID      int64
	ClientID      int64
	DepartureAt   time.Time
	ArrivalAt     *time.Time
	Origin        string
	Destination   string
	Volume        decimal.Decimal
	Revenue       decimal.Decimal // freight charged to the client
	DriverPayment decimal.Decimal
	Status        TripStatus
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GrossProfit is revenue minus the driver payment.
func (t Trip) GrossProfit() decimal.Decimal { return t.Revenue.Sub(t.DriverPayment) }

type Expense struct {
	ID          int64
	TripID      int64
	Type        string
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	Receipt     []byte
	CreatedAt   time.Time
}

// TotalExpenses sums the amounts of expenses.
func TotalExpenses(expenses []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// TripDetail is a trip together with its owned expenses and, when loaded
// for display, the referenced vehicle, driver and client.
type TripDetail struct {
	Trip
	Expenses []Expense
	Vehicle  *Vehicle
	Driver   *Driver
	Client   *Client
}

func (d TripDetail) TotalExpenses() decimal.Decimal { return TotalExpenses(d.Expenses) }

// NetProfit is gross profit minus the live expense total.
func (d TripDetail) NetProfit() decimal.Decimal {
	return d.GrossProfit().Sub(d.TotalExpenses())
}

// Efficiency is net profit per unit of volume, rounded half to even to two
// decimal places. Zero volume yields zero.
func (d TripDetail) Efficiency() decimal.Decimal {
	if !d.Volume.IsPositive() {
		return decimal.Zero
	}
	return d.NetProfit().Div(d.Volume).RoundBank(2)
}

// =============================================================================
// LEDGER MOVEMENT
// =============================================================================

type MovementType string

const (
	MovementTripPayment MovementType = "PagoViaje"   // credit for a completed trip
	MovementAdvance     MovementType = "Adelanto"    // cash advanced to the driver
	MovementSettlement  MovementType = "Liquidacion" // balance paid out
	MovementAdjustment  MovementType = "Ajuste"      // manual correction, either sign
	MovementReversal    MovementType = "Reversion"   // offsets an earlier movement
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementTripPayment, MovementAdvance, MovementSettlement, MovementAdjustment, MovementReversal:
		return true
	}
	return false
}

// sign returns the required sign of the amount: 1, -1, or 0 for either.
func (t MovementType) sign() int {
	switch t {
	case MovementTripPayment:
		return 1
	case MovementAdvance, MovementSettlement:
		return -1
	}
	return 0
}

// Movement is an append-only ledger entry. Amount is the signed delta
// applied to the driver's balance.
type Movement struct {
	ID          int64
	DriverID    int64
	TripID      *int64
	Type        MovementType
	Amount      decimal.Decimal
	Description string
	At          time.Time
	ReversalOf  *int64
	CreatedAt   time.Time
}

// =============================================================================
// HELPERS
// =============================================================================

func expiringWithin(expiry *time.Time, now time.Time, window time.Duration) bool {
	if expiry == nil || expiry.IsZero() {
		return false
	}
	return !expiry.After(now.Add(window)) && expiry.After(now)
}

func expiredAt(expiry *time.Time, now time.Time) bool {
	if expiry == nil || expiry.IsZero() {
		return false
	}
	return expiry.Before(now)
}

func int64Ptr(v int64) *int64 { return &v }
