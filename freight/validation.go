package freight

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// violations accumulates field errors so a caller sees every correction at
// once.
type violations struct {
	list []FieldViolation
}

func (v *violations) add(field, format string, args ...any) {
	v.list = append(v.list, FieldViolation{Field: field, Reason: fmt.Sprintf(format, args...)})
}

func (v *violations) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
		return false
	}
	return true
}

func (v *violations) length(field, value string, min, max int) {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n == 0 && min == 0 {
		return
	}
	if n < min {
		v.add(field, "must be at least %d characters", min)
	}
	if max > 0 && n > max {
		v.add(field, "must be at most %d characters", max)
	}
}

// text checks a required string and its bounds, reporting once.
func (v *violations) text(field, value string, min, max int) {
	if v.required(field, value) {
		v.length(field, value, min, max)
	}
}

func (v *violations) optional(field, value string, max int) {
	v.length(field, value, 0, max)
}

func (v *violations) email(field, value string) {
	if value == "" {
		return
	}
	v.length(field, value, 0, 100)
	if !strings.Contains(value, "@") {
		v.add(field, "must be an email address")
	}
}

func (v *violations) reference(field string, id int64) {
	if id <= 0 {
		v.add(field, "must reference an existing record")
	}
}

func (v *violations) positive(field string, d decimal.Decimal) {
	if !d.IsPositive() {
		v.add(field, "must be greater than 0")
	}
}

func (v *violations) nonNegative(field string, d decimal.Decimal) {
	if d.IsNegative() {
		v.add(field, "must not be negative")
	}
}

func (v *violations) date(field string, t time.Time) {
	if t.IsZero() {
		v.add(field, "is required")
	}
}

func (v *violations) err() error {
	if len(v.list) == 0 {
		return nil
	}
	return &ValidationError{Violations: v.list}
}

// =============================================================================
// ENTITY VALIDATION
// =============================================================================

// Validate checks the vehicle; the model year may be at most one past now's.
func (x Vehicle) Validate(now time.Time) error {
	var v violations
	v.text("vehicle.plate", x.Plate, 1, 10)
	v.text("vehicle.make", x.Make, 1, 50)
	v.optional("vehicle.model", x.Model, 50)
	v.positive("vehicle.fuel_capacity", x.FuelCapacity)
	if maxYear := now.Year() + 1; x.Year != 0 && (x.Year < 1900 || x.Year > maxYear) {
		v.add("vehicle.year", "must be between 1900 and %d", maxYear)
	}
	if x.Status != "" && !x.Status.Valid() {
		v.add("vehicle.status", "unknown status %q", x.Status)
	}
	return v.err()
}

func (x Driver) Validate() error {
	var v violations
	v.text("driver.document", x.Document, 1, 20)
	v.text("driver.first_name", x.FirstName, 1, 100)
	v.text("driver.last_name", x.LastName, 1, 100)
	v.optional("driver.phone", x.Phone, 20)
	v.email("driver.email", x.Email)
	v.text("driver.license_number", x.LicenseNumber, 1, 50)
	v.date("driver.license_expiry", x.LicenseExpiry)
	if x.Status != "" && !x.Status.Valid() {
		v.add("driver.status", "unknown status %q", x.Status)
	}
	return v.err()
}

func (x Client) Validate() error {
	var v violations
	v.text("client.legal_name", x.LegalName, 1, 200)
	v.optional("client.tax_id", x.TaxID, 20)
	v.optional("client.phone", x.Phone, 20)
	v.email("client.email", x.Email)
	v.optional("client.contact", x.Contact, 100)
	if x.Status != "" && !x.Status.Valid() {
		v.add("client.status", "unknown status %q", x.Status)
	}
	return v.err()
}

// TripDraft is the caller's view of a trip to save. ID 0 means create.
// An empty Number on create is generated; an empty Status means Programado
// on create and "unchanged" on update.
type TripDraft struct {
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
	Revenue       decimal.Decimal
	DriverPayment decimal.Decimal
	Status        TripStatus
	Notes         string
}

func (x TripDraft) Validate() error {
	var v violations
	if x.ID < 0 {
		v.add("trip.id", "must not be negative")
	}
	v.optional("trip.number", x.Number, 20)
	v.reference("trip.vehicle_id", x.VehicleID)
	v.reference("trip.driver_id", x.DriverID)
	v.reference("trip.client_id", x.ClientID)
	v.date("trip.departure_at", x.DepartureAt)
	if x.ArrivalAt != nil && !x.DepartureAt.IsZero() && x.ArrivalAt.Before(x.DepartureAt) {
		v.add("trip.arrival_at", "must not be before departure")
	}
	v.text("trip.origin", x.Origin, 3, 200)
	v.text("trip.destination", x.Destination, 3, 200)
	v.positive("trip.volume", x.Volume)
	v.positive("trip.revenue", x.Revenue)
	v.nonNegative("trip.driver_payment", x.DriverPayment)
	if x.Status != "" && !x.Status.Valid() {
		v.add("trip.status", "unknown status %q", x.Status)
	}
	return v.err()
}

// ExpenseDraft is a new cost line for a trip. A zero Date means "now".
type ExpenseDraft struct {
	Type        string
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	Receipt     []byte
}

func (x ExpenseDraft) Validate() error {
	var v violations
	v.text("expense.type", x.Type, 1, 20)
	v.text("expense.description", x.Description, 1, 200)
	v.positive("expense.amount", x.Amount)
	return v.err()
}

// MovementDraft is a ledger entry to append. A zero At means "now".
type MovementDraft struct {
	DriverID    int64
	TripID      *int64
	Type        MovementType
	Amount      decimal.Decimal
	Description string
	At          time.Time
}

func (x MovementDraft) Validate() error {
	var v violations
	v.reference("movement.driver_id", x.DriverID)
	if x.TripID != nil && *x.TripID <= 0 {
		v.add("movement.trip_id", "must reference an existing record")
	}
	if !x.Type.Valid() {
		v.add("movement.type", "unknown movement type %q", x.Type)
	}
	switch {
	case x.Amount.IsZero():
		v.add("movement.amount", "must not be zero")
	case x.Type.sign() > 0 && x.Amount.IsNegative():
		v.add("movement.amount", "must be positive for %s", x.Type)
	case x.Type.sign() < 0 && x.Amount.IsPositive():
		v.add("movement.amount", "must be negative for %s", x.Type)
	}
	v.text("movement.description", x.Description, 1, 200)
	return v.err()
}
