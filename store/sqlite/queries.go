package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/freight-engine/freight"
)

// =============================================================================
// VEHICLE STORE
// =============================================================================

const vehicleColumns = `id, plate, make, model, fuel_capacity, year, last_maintenance,
	insurance_expiry, coverage_expiry, status, notes, created_at, updated_at`

func scanVehicle(row scanner) (freight.Vehicle, error) {
	var (
		v                              freight.Vehicle
		fuel, createdAt, updatedAt     string
		year                           sql.NullInt64
		maintenance, insurance, covers sql.NullString
		err                            error
	)
	if err = row.Scan(&v.ID, &v.Plate, &v.Make, &v.Model, &fuel, &year, &maintenance,
		&insurance, &covers, &v.Status, &v.Notes, &createdAt, &updatedAt); err != nil {
		return v, err
	}
	v.Year = int(year.Int64)
	if v.FuelCapacity, err = parseDecimal(fuel); err != nil {
		return v, err
	}
	if v.LastMaintenance, err = parseNullTime(maintenance); err != nil {
		return v, err
	}
	if v.InsuranceExpiry, err = parseNullTime(insurance); err != nil {
		return v, err
	}
	if v.CoverageExpiry, err = parseNullTime(covers); err != nil {
		return v, err
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return v, err
	}
	v.UpdatedAt, err = parseTime(updatedAt)
	return v, err
}

func (r *repo) GetVehicle(ctx context.Context, id int64) (*freight.Vehicle, error) {
	v, err := scanVehicle(r.q.QueryRowContext(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &v, nil
}

func (r *repo) ListVehicles(ctx context.Context, f freight.VehicleFilter) ([]freight.Vehicle, error) {
	query := "SELECT " + vehicleColumns + " FROM vehicles"
	var args []any
	if f.Status != nil {
		query += " WHERE status = ?"
		args = append(args, *f.Status)
	}
	rows, err := r.q.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	out := []freight.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repo) InsertVehicle(ctx context.Context, v *freight.Vehicle) error {
	nowIfZero(&v.CreatedAt)
	nowIfZero(&v.UpdatedAt)
	id, err := r.insert(ctx, `
		INSERT INTO vehicles (plate, make, model, fuel_capacity, year, last_maintenance,
			insurance_expiry, coverage_expiry, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Plate, v.Make, v.Model, v.FuelCapacity.String(), nullYear(v.Year), nullTime(v.LastMaintenance),
		nullTime(v.InsuranceExpiry), nullTime(v.CoverageExpiry), v.Status, v.Notes,
		fmtTime(v.CreatedAt), fmtTime(v.UpdatedAt),
	)
	if err != nil {
		return constraintErr("vehicle", "insert", err)
	}
	v.ID = id
	return nil
}

func (r *repo) UpdateVehicle(ctx context.Context, v *freight.Vehicle) error {
	nowIfZero(&v.UpdatedAt)
	n, err := r.exec(ctx, `
		UPDATE vehicles SET plate = ?, make = ?, model = ?, fuel_capacity = ?, year = ?,
			last_maintenance = ?, insurance_expiry = ?, coverage_expiry = ?, status = ?,
			notes = ?, updated_at = ?
		WHERE id = ?`,
		v.Plate, v.Make, v.Model, v.FuelCapacity.String(), nullYear(v.Year),
		nullTime(v.LastMaintenance), nullTime(v.InsuranceExpiry), nullTime(v.CoverageExpiry),
		v.Status, v.Notes, fmtTime(v.UpdatedAt), v.ID,
	)
	if err != nil {
		return constraintErr("vehicle", "update", err)
	}
	if n == 0 {
		return &freight.NotFoundError{Entity: "vehicle", ID: v.ID}
	}
	return nil
}

func (r *repo) DeleteVehicle(ctx context.Context, id int64) error {
	return r.deleteRow(ctx, "vehicle", "DELETE FROM vehicles WHERE id = ?", id)
}

func nullYear(year int) any {
	if year == 0 {
		return nil
	}
	return year
}

// =============================================================================
// DRIVER STORE
// =============================================================================

const driverColumns = `id, document, first_name, last_name, phone, email, license_number,
	license_expiry, photo, balance, status, created_at, updated_at`

func scanDriver(row scanner) (freight.Driver, error) {
	var (
		d                                 freight.Driver
		expiry, balance, created, updated string
		err                               error
	)
	if err = row.Scan(&d.ID, &d.Document, &d.FirstName, &d.LastName, &d.Phone, &d.Email,
		&d.LicenseNumber, &expiry, &d.Photo, &balance, &d.Status, &created, &updated); err != nil {
		return d, err
	}
	if d.LicenseExpiry, err = parseTime(expiry); err != nil {
		return d, err
	}
	if d.Balance, err = parseDecimal(balance); err != nil {
		return d, err
	}
	if d.CreatedAt, err = parseTime(created); err != nil {
		return d, err
	}
	d.UpdatedAt, err = parseTime(updated)
	return d, err
}

func (r *repo) GetDriver(ctx context.Context, id int64) (*freight.Driver, error) {
	d, err := scanDriver(r.q.QueryRowContext(ctx,
		"SELECT "+driverColumns+" FROM drivers WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return &d, nil
}

func (r *repo) ListDrivers(ctx context.Context, f freight.DriverFilter) ([]freight.Driver, error) {
	query := "SELECT " + driverColumns + " FROM drivers"
	var args []any
	if f.Status != nil {
		query += " WHERE status = ?"
		args = append(args, *f.Status)
	}
	rows, err := r.q.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query drivers: %w", err)
	}
	defer rows.Close()

	out := []freight.Driver{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repo) InsertDriver(ctx context.Context, d *freight.Driver) error {
	nowIfZero(&d.CreatedAt)
	nowIfZero(&d.UpdatedAt)
	id, err := r.insert(ctx, `
		INSERT INTO drivers (document, first_name, last_name, phone, email, license_number,
			license_expiry, photo, balance, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Document, d.FirstName, d.LastName, d.Phone, d.Email, d.LicenseNumber,
		fmtTime(d.LicenseExpiry), d.Photo, d.Balance.String(), d.Status,
		fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt),
	)
	if err != nil {
		return constraintErr("driver", "insert", err)
	}
	d.ID = id
	return nil
}

// UpdateDriver writes every column except balance.
func (r *repo) UpdateDriver(ctx context.Context, d *freight.Driver) error {
	nowIfZero(&d.UpdatedAt)
	n, err := r.exec(ctx, `
		UPDATE drivers SET document = ?, first_name = ?, last_name = ?, phone = ?, email = ?,
			license_number = ?, license_expiry = ?, photo = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		d.Document, d.FirstName, d.LastName, d.Phone, d.Email, d.LicenseNumber,
		fmtTime(d.LicenseExpiry), d.Photo, d.Status, fmtTime(d.UpdatedAt), d.ID,
	)
	if err != nil {
		return constraintErr("driver", "update", err)
	}
	if n == 0 {
		return &freight.NotFoundError{Entity: "driver", ID: d.ID}
	}
	return nil
}

func (r *repo) DeleteDriver(ctx context.Context, id int64) error {
	return r.deleteRow(ctx, "driver", "DELETE FROM drivers WHERE id = ?", id)
}

func (r *repo) SetDriverBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	n, err := r.exec(ctx, "UPDATE drivers SET balance = ? WHERE id = ?", balance.String(), id)
	if err != nil {
		return fmt.Errorf("failed to set driver balance: %w", err)
	}
	if n == 0 {
		return &freight.NotFoundError{Entity: "driver", ID: id}
	}
	return nil
}

// =============================================================================
// CLIENT STORE
// =============================================================================

const clientColumns = `id, legal_name, tax_id, address, phone, email, contact, status, created_at, updated_at`

func scanClient(row scanner) (freight.Client, error) {
	var (
		c                freight.Client
		created, updated string
		err              error
	)
	if err = row.Scan(&c.ID, &c.LegalName, &c.TaxID, &c.Address, &c.Phone, &c.Email,
		&c.Contact, &c.Status, &created, &updated); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return c, err
	}
	c.UpdatedAt, err = parseTime(updated)
	return c, err
}

func (r *repo) GetClient(ctx context.Context, id int64) (*freight.Client, error) {
	c, err := scanClient(r.q.QueryRowContext(ctx,
		"SELECT "+clientColumns+" FROM clients WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

func (r *repo) ListClients(ctx context.Context, f freight.ClientFilter) ([]freight.Client, error) {
	query := "SELECT " + clientColumns + " FROM clients"
	var args []any
	if f.Status != nil {
		query += " WHERE status = ?"
		args = append(args, *f.Status)
	}
	rows, err := r.q.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	out := []freight.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repo) InsertClient(ctx context.Context, c *freight.Client) error {
	nowIfZero(&c.CreatedAt)
	nowIfZero(&c.UpdatedAt)
	id, err := r.insert(ctx, `
		INSERT INTO clients (legal_name, tax_id, address, phone, email, contact, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.LegalName, c.TaxID, c.Address, c.Phone, c.Email, c.Contact, c.Status,
		fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt),
	)
	if err != nil {
		return constraintErr("client", "insert", err)
	}
	c.ID = id
	return nil
}

func (r *repo) UpdateClient(ctx context.Context, c *freight.Client) error {
	nowIfZero(&c.UpdatedAt)
	n, err := r.exec(ctx, `
		UPDATE clients SET legal_name = ?, tax_id = ?, address = ?, phone = ?, email = ?,
			contact = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		c.LegalName, c.TaxID, c.Address, c.Phone, c.Email, c.Contact, c.Status,
		fmtTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return constraintErr("client", "update", err)
	}
	if n == 0 {
		return &freight.NotFoundError{Entity: "client", ID: c.ID}
	}
	return nil
}

func (r *repo) DeleteClient(ctx context.Context, id int64) error {
	return r.deleteRow(ctx, "client", "DELETE FROM clients WHERE id = ?", id)
}

// =============================================================================
// TRIP STORE
// =============================================================================

const tripColumns = `id, number, vehicle_id, driver_id, client_id, departure_at, arrival_at,
	origin, destination, volume, revenue, driver_payment, status, notes, created_at, updated_at`

func scanTrip(row scanner) (freight.Trip, error) {
	var (
		t                           freight.Trip
		departure, created, updated string
		volume, revenue, payment    string
		arrival                     sql.NullString
		err                         error
	)
	if err = row.Scan(&t.ID, &t.Number, &t.VehicleID, &t.DriverID, &t.ClientID, &departure,
		&arrival, &t.Origin, &t.Destination, &volume, &revenue, &payment, &t.Status, &t.Notes,
		&created, &updated); err != nil {
		return t, err
	}
	if t.DepartureAt, err = parseTime(departure); err != nil {
		return t, err
	}
	if t.ArrivalAt, err = parseNullTime(arrival); err != nil {
		return t, err
	}
	if t.Volume, err = parseDecimal(volume); err != nil {
		return t, err
	}
	if t.Revenue, err = parseDecimal(revenue); err != nil {
		return t, err
	}
	if t.DriverPayment, err = parseDecimal(payment); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	t.UpdatedAt, err = parseTime(updated)
	return t, err
}

// tripWhere renders f as a WHERE clause (possibly empty) with its args.
func tripWhere(f freight.TripFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if len(f.ExcludeStatus) > 0 {
		conds = append(conds, "status NOT IN ("+placeholders(len(f.ExcludeStatus))+")")
		for _, s := range f.ExcludeStatus {
			args = append(args, s)
		}
	}
	if f.DepartFrom != nil {
		conds = append(conds, "departure_at >= ?")
		args = append(args, fmtTime(*f.DepartFrom))
	}
	if f.DepartBefore != nil {
		conds = append(conds, "departure_at < ?")
		args = append(args, fmtTime(*f.DepartBefore))
	}
	if f.VehicleID != 0 {
		conds = append(conds, "vehicle_id = ?")
		args = append(args, f.VehicleID)
	}
	if f.DriverID != 0 {
		conds = append(conds, "driver_id = ?")
		args = append(args, f.DriverID)
	}
	if f.ClientID != 0 {
		conds = append(conds, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repo) GetTrip(ctx context.Context, id int64) (*freight.Trip, error) {
	t, err := scanTrip(r.q.QueryRowContext(ctx,
		"SELECT "+tripColumns+" FROM trips WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return &t, nil
}

func (r *repo) ListTrips(ctx context.Context, f freight.TripFilter) ([]freight.Trip, error) {
	where, args := tripWhere(f)
	query := "SELECT " + tripColumns + " FROM trips" + where + " ORDER BY departure_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	out := []freight.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repo) CountTrips(ctx context.Context, f freight.TripFilter) (int, error) {
	where, args := tripWhere(f)
	var n int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM trips"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trips: %w", err)
	}
	return n, nil
}

func (r *repo) InsertTrip(ctx context.Context, t *freight.Trip) error {
	nowIfZero(&t.CreatedAt)
	nowIfZero(&t.UpdatedAt)
	id, err := r.insert(ctx, `
		INSERT INTO trips (number, vehicle_id, driver_id, client_id, departure_at, arrival_at,
			origin, destination, volume, revenue, driver_payment, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Number, t.VehicleID, t.DriverID, t.ClientID, fmtTime(t.DepartureAt), nullTime(t.ArrivalAt),
		t.Origin, t.Destination, t.Volume.String(), t.Revenue.String(), t.DriverPayment.String(),
		t.Status, t.Notes, fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt),
	)
	if err != nil {
		return constraintErr("trip", "insert", err)
	}
	t.ID = id
	return nil
}

func (r *repo) UpdateTrip(ctx context.Context, t *freight.Trip) error {
	nowIfZero(&t.UpdatedAt)
	n, err := r.exec(ctx, `
		UPDATE trips SET number = ?, vehicle_id = ?, driver_id = ?, client_id = ?,
			departure_at = ?, arrival_at = ?, origin = ?, destination = ?, volume = ?,
			revenue = ?, driver_payment = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		t.Number, t.VehicleID, t.DriverID, t.ClientID, fmtTime(t.DepartureAt), nullTime(t.ArrivalAt),
		t.Origin, t.Destination, t.Volume.String(), t.Revenue.String(), t.DriverPayment.String(),
		t.Status, t.Notes, fmtTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return constraintErr("trip", "update", err)
	}
	if n == 0 {
		return &freight.NotFoundError{Entity: "trip", ID: t.ID}
	}
	return nil
}

// DeleteTrip relies on the schema: expenses cascade, movements get a NULL
// trip reference.
func (r *repo) DeleteTrip(ctx context.Context, id int64) error {
	return r.deleteRow(ctx, "trip", "DELETE FROM trips WHERE id = ?", id)
}

// =============================================================================
// EXPENSE STORE
// =============================================================================

const expenseColumns = `id, trip_id, type, description, amount, date, receipt, created_at`

func scanExpense(row scanner) (freight.Expense, error) {
	var (
		e                     freight.Expense
		amount, date, created string
		err                   error
	)
	if err = row.Scan(&e.ID, &e.TripID, &e.Type, &e.Description, &amount, &date, &e.Receipt, &created); err != nil {
		return e, err
	}
	if e.Amount, err = parseDecimal(amount); err != nil {
		return e, err
	}
	if e.Date, err = parseTime(date); err != nil {
		return e, err
	}
	e.CreatedAt, err = parseTime(created)
	return e, err
}

func (r *repo) GetExpense(ctx context.Context, id int64) (*freight.Expense, error) {
	e, err := scanExpense(r.q.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return &e, nil
}

func (r *repo) ListExpenses(ctx context.Context, f freight.ExpenseFilter) ([]freight.Expense, error) {
	query := "SELECT " + expenseColumns + " FROM expenses"
	var args []any
	if len(f.TripIDs) > 0 {
		query += " WHERE trip_id IN (" + placeholders(len(f.TripIDs)) + ")"
		for _, id := range f.TripIDs {
			args = append(args, id)
		}
	}
	rows, err := r.q.QueryContext(ctx, query+" ORDER BY date DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	out := []freight.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repo) InsertExpense(ctx context.Context, e *freight.Expense) error {
	nowIfZero(&e.CreatedAt)
	id, err := r.insert(ctx, `
		INSERT INTO expenses (trip_id, type, description, amount, date, receipt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TripID, e.Type, e.Description, e.Amount.String(), fmtTime(e.Date), e.Receipt, fmtTime(e.CreatedAt),
	)
	if err != nil {
		return constraintErr("expense", "insert", err)
	}
	e.ID = id
	return nil
}

func (r *repo) DeleteExpense(ctx context.Context, id int64) error {
	return r.deleteRow(ctx, "expense", "DELETE FROM expenses WHERE id = ?", id)
}

// =============================================================================
// MOVEMENT STORE (append-only: no UPDATE except the trip link, no DELETE)
// =============================================================================

const movementColumns = `id, driver_id, trip_id, type, amount, description, at, reversal_of, created_at`

func scanMovement(row scanner) (freight.Movement, error) {
	var (
		m                   freight.Movement
		tripID, reversalOf  sql.NullInt64
		amount, at, created string
		err                 error
	)
	if err = row.Scan(&m.ID, &m.DriverID, &tripID, &m.Type, &amount, &m.Description, &at,
		&reversalOf, &created); err != nil {
		return m, err
	}
	m.TripID = ptrInt64(tripID)
	m.ReversalOf = ptrInt64(reversalOf)
	if m.Amount, err = parseDecimal(amount); err != nil {
		return m, err
	}
	if m.At, err = parseTime(at); err != nil {
		return m, err
	}
	m.CreatedAt, err = parseTime(created)
	return m, err
}

func (r *repo) GetMovement(ctx context.Context, id int64) (*freight.Movement, error) {
	return r.oneMovement(ctx, "SELECT "+movementColumns+" FROM movements WHERE id = ?", id)
}

func (r *repo) FindReversal(ctx context.Context, id int64) (*freight.Movement, error) {
	return r.oneMovement(ctx, "SELECT "+movementColumns+" FROM movements WHERE reversal_of = ?", id)
}

func (r *repo) oneMovement(ctx context.Context, query string, args ...any) (*freight.Movement, error) {
	m, err := scanMovement(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movement: %w", err)
	}
	return &m, nil
}

func (r *repo) ListMovements(ctx context.Context, driverID int64) ([]freight.Movement, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+movementColumns+" FROM movements WHERE driver_id = ? ORDER BY at ASC, id ASC", driverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	out := []freight.Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repo) InsertMovement(ctx context.Context, m *freight.Movement) error {
	nowIfZero(&m.CreatedAt)
	id, err := r.insert(ctx, `
		INSERT INTO movements (driver_id, trip_id, type, amount, description, at, reversal_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.DriverID, nullInt64(m.TripID), m.Type, m.Amount.String(), m.Description,
		fmtTime(m.At), nullInt64(m.ReversalOf), fmtTime(m.CreatedAt),
	)
	if err != nil {
		return constraintErr("movement", "insert", err)
	}
	m.ID = id
	return nil
}

func (r *repo) ClearMovementTrip(ctx context.Context, tripID int64) (int64, error) {
	n, err := r.exec(ctx, "UPDATE movements SET trip_id = NULL WHERE trip_id = ?", tripID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear movement trip: %w", err)
	}
	return n, nil
}

// =============================================================================
// SHARED
// =============================================================================

// deleteRow maps zero affected rows to NotFound and a restrict violation to
// Conflict.
func (r *repo) deleteRow(ctx context.Context, entity, query string, id int64) error {
	n, err := r.exec(ctx, query, id)
	if err != nil {
		return constraintErr(entity, "delete", err)
	}
	if n == 0 {
		return &freight.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
