// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/freight-engine/freight"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================
// Rows live in id-keyed maps; owned collections (a trip's expenses, a
// driver's movements) are materialized by scanning on read. The store
// enforces the same unique, restrict and cascade rules as the SQL schema.

var (
	_ freight.TxStore = (*Memory)(nil)
	_ freight.Store   = (*view)(nil)
)

type Memory struct {
	mu sync.RWMutex
	t  *tables
}

type tables struct {
	vehicles  map[int64]freight.Vehicle
	drivers   map[int64]freight.Driver
	clients   map[int64]freight.Client
	trips     map[int64]freight.Trip
	expenses  map[int64]freight.Expense
	movements map[int64]freight.Movement
	seq       sequences
}

type sequences struct {
	vehicle, driver, client, trip, expense, movement int64
}

func NewMemory() *Memory {
	return &Memory{t: newTables()}
}

func newTables() *tables {
	return &tables{
		vehicles:  make(map[int64]freight.Vehicle),
		drivers:   make(map[int64]freight.Driver),
		clients:   make(map[int64]freight.Client),
		trips:     make(map[int64]freight.Trip),
		expenses:  make(map[int64]freight.Expense),
		movements: make(map[int64]freight.Movement),
	}
}

// Reset drops every row and restarts the id sequences.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = newTables()
	return nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized; a context that ends before commit rolls back.
func (m *Memory) WithTx(ctx context.Context, fn func(freight.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.t.clone()
	if err := fn(&view{t: m.t}); err != nil {
		m.t = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		m.t = snapshot
		return err
	}
	return nil
}

func (m *Memory) read(fn func(v *view) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&view{t: m.t})
}

func (m *Memory) write(ctx context.Context, fn func(v *view) error) error {
	return m.WithTx(ctx, func(s freight.Store) error { return fn(s.(*view)) })
}

func (t *tables) clone() *tables {
	c := &tables{
		vehicles:  make(map[int64]freight.Vehicle, len(t.vehicles)),
		drivers:   make(map[int64]freight.Driver, len(t.drivers)),
		clients:   make(map[int64]freight.Client, len(t.clients)),
		trips:     make(map[int64]freight.Trip, len(t.trips)),
		expenses:  make(map[int64]freight.Expense, len(t.expenses)),
		movements: make(map[int64]freight.Movement, len(t.movements)),
		seq:       t.seq,
	}
	for k, v := range t.vehicles {
		c.vehicles[k] = copyVehicle(v)
	}
	for k, v := range t.drivers {
		c.drivers[k] = copyDriver(v)
	}
	for k, v := range t.clients {
		c.clients[k] = v
	}
	for k, v := range t.trips {
		c.trips[k] = copyTrip(v)
	}
	for k, v := range t.expenses {
		c.expenses[k] = copyExpense(v)
	}
	for k, v := range t.movements {
		c.movements[k] = copyMovement(v)
	}
	return c
}

// =============================================================================
// LOCKED ACCESS - Memory satisfies freight.TxStore outside a transaction
// =============================================================================

func (m *Memory) GetVehicle(ctx context.Context, id int64) (out *freight.Vehicle, err error) {
	err = m.read(func(v *view) error { out, err = v.GetVehicle(ctx, id); return err })
	return
}

func (m *Memory) ListVehicles(ctx context.Context, f freight.VehicleFilter) (out []freight.Vehicle, err error) {
	err = m.read(func(v *view) error { out, err = v.ListVehicles(ctx, f); return err })
	return
}

func (m *Memory) InsertVehicle(ctx context.Context, veh *freight.Vehicle) error {
	return m.write(ctx, func(v *view) error { return v.InsertVehicle(ctx, veh) })
}

func (m *Memory) UpdateVehicle(ctx context.Context, veh *freight.Vehicle) error {
	return m.write(ctx, func(v *view) error { return v.UpdateVehicle(ctx, veh) })
}

func (m *Memory) DeleteVehicle(ctx context.Context, id int64) error {
	return m.write(ctx, func(v *view) error { return v.DeleteVehicle(ctx, id) })
}

func (m *Memory) GetDriver(ctx context.Context, id int64) (out *freight.Driver, err error) {
	err = m.read(func(v *view) error { out, err = v.GetDriver(ctx, id); return err })
	return
}

func (m *Memory) ListDrivers(ctx context.Context, f freight.DriverFilter) (out []freight.Driver, err error) {
	err = m.read(func(v *view) error { out, err = v.ListDrivers(ctx, f); return err })
	return
}

func (m *Memory) InsertDriver(ctx context.Context, d *freight.Driver) error {
	return m.write(ctx, func(v *view) error { return v.InsertDriver(ctx, d) })
}

func (m *Memory) UpdateDriver(ctx context.Context, d *freight.Driver) error {
	return m.write(ctx, func(v *view) error { return v.UpdateDriver(ctx, d) })
}

func (m *Memory) DeleteDriver(ctx context.Context, id int64) error {
	return m.write(ctx, func(v *view) error { return v.DeleteDriver(ctx, id) })
}

func (m *Memory) SetDriverBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	return m.write(ctx, func(v *view) error { return v.SetDriverBalance(ctx, id, balance) })
}

func (m *Memory) GetClient(ctx context.Context, id int64) (out *freight.Client, err error) {
	err = m.read(func(v *view) error { out, err = v.GetClient(ctx, id); return err })
	return
}

func (m *Memory) ListClients(ctx context.Context, f freight.ClientFilter) (out []freight.Client, err error) {
	err = m.read(func(v *view) error { out, err = v.ListClients(ctx, f); return err })
	return
}

func (m *Memory) InsertClient(ctx context.Context, c *freight.Client) error {
	return m.write(ctx, func(v *view) error { return v.InsertClient(ctx, c) })
}

func (m *Memory) UpdateClient(ctx context.Context, c *freight.Client) error {
	return m.write(ctx, func(v *view) error { return v.UpdateClient(ctx, c) })
}

func (m *Memory) DeleteClient(ctx context.Context, id int64) error {
	return m.write(ctx, func(v *view) error { return v.DeleteClient(ctx, id) })
}

func (m *Memory) GetTrip(ctx context.Context, id int64) (out *freight.Trip, err error) {
	err = m.read(func(v *view) error { out, err = v.GetTrip(ctx, id); return err })
	return
}

func (m *Memory) ListTrips(ctx context.Context, f freight.TripFilter) (out []freight.Trip, err error) {
	err = m.read(func(v *view) error { out, err = v.ListTrips(ctx, f); return err })
	return
}

func (m *Memory) CountTrips(ctx context.Context, f freight.TripFilter) (n int, err error) {
	err = m.read(func(v *view) error { n, err = v.CountTrips(ctx, f); return err })
	return
}

func (m *Memory) InsertTrip(ctx context.Context, t *freight.Trip) error {
	return m.write(ctx, func(v *view) error { return v.InsertTrip(ctx, t) })
}

func (m *Memory) UpdateTrip(ctx context.Context, t *freight.Trip) error {
	return m.write(ctx, func(v *view) error { return v.UpdateTrip(ctx, t) })
}

func (m *Memory) DeleteTrip(ctx context.Context, id int64) error {
	return m.write(ctx, func(v *view) error { return v.DeleteTrip(ctx, id) })
}

func (m *Memory) GetExpense(ctx context.Context, id int64) (out *freight.Expense, err error) {
	err = m.read(func(v *view) error { out, err = v.GetExpense(ctx, id); return err })
	return
}

func (m *Memory) ListExpenses(ctx context.Context, f freight.ExpenseFilter) (out []freight.Expense, err error) {
	err = m.read(func(v *view) error { out, err = v.ListExpenses(ctx, f); return err })
	return
}

func (m *Memory) InsertExpense(ctx context.Context, e *freight.Expense) error {
	return m.write(ctx, func(v *view) error { return v.InsertExpense(ctx, e) })
}

func (m *Memory) DeleteExpense(ctx context.Context, id int64) error {
	return m.write(ctx, func(v *view) error { return v.DeleteExpense(ctx, id) })
}

func (m *Memory) GetMovement(ctx context.Context, id int64) (out *freight.Movement, err error) {
	err = m.read(func(v *view) error { out, err = v.GetMovement(ctx, id); return err })
	return
}

func (m *Memory) ListMovements(ctx context.Context, driverID int64) (out []freight.Movement, err error) {
	err = m.read(func(v *view) error { out, err = v.ListMovements(ctx, driverID); return err })
	return
}

func (m *Memory) InsertMovement(ctx context.Context, mv *freight.Movement) error {
	return m.write(ctx, func(v *view) error { return v.InsertMovement(ctx, mv) })
}

func (m *Memory) ClearMovementTrip(ctx context.Context, tripID int64) (n int64, err error) {
	err = m.write(ctx, func(v *view) error { n, err = v.ClearMovementTrip(ctx, tripID); return err })
	return
}

func (m *Memory) FindReversal(ctx context.Context, id int64) (out *freight.Movement, err error) {
	err = m.read(func(v *view) error { out, err = v.FindReversal(ctx, id); return err })
	return
}

// =============================================================================
// VIEW - unlocked access, handed to WithTx callbacks
// =============================================================================

type view struct {
	t *tables
}

func stamp(created, updated *time.Time) {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	if updated != nil && updated.IsZero() {
		*updated = *created
	}
}

// --- vehicles ---

func (v *view) GetVehicle(_ context.Context, id int64) (*freight.Vehicle, error) {
	row, ok := v.t.vehicles[id]
	if !ok {
		return nil, nil
	}
	row = copyVehicle(row)
	return &row, nil
}

func (v *view) ListVehicles(_ context.Context, f freight.VehicleFilter) ([]freight.Vehicle, error) {
	out := []freight.Vehicle{}
	for _, row := range v.t.vehicles {
		if f.Status != nil && row.Status != *f.Status {
			continue
		}
		out = append(out, copyVehicle(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) InsertVehicle(_ context.Context, veh *freight.Vehicle) error {
	if err := v.uniquePlate(veh.Plate, 0); err != nil {
		return err
	}
	v.t.seq.vehicle++
	veh.ID = v.t.seq.vehicle
	stamp(&veh.CreatedAt, &veh.UpdatedAt)
	v.t.vehicles[veh.ID] = copyVehicle(*veh)
	return nil
}

func (v *view) UpdateVehicle(_ context.Context, veh *freight.Vehicle) error {
	if _, ok := v.t.vehicles[veh.ID]; !ok {
		return &freight.NotFoundError{Entity: "vehicle", ID: veh.ID}
	}
	if err := v.uniquePlate(veh.Plate, veh.ID); err != nil {
		return err
	}
	v.t.vehicles[veh.ID] = copyVehicle(*veh)
	return nil
}

func (v *view) DeleteVehicle(_ context.Context, id int64) error {
	if _, ok := v.t.vehicles[id]; !ok {
		return &freight.NotFoundError{Entity: "vehicle", ID: id}
	}
	if v.referenced(func(t freight.Trip) bool { return t.VehicleID == id }) {
		return restrictErr("vehicle")
	}
	delete(v.t.vehicles, id)
	return nil
}

func (v *view) uniquePlate(plate string, self int64) error {
	for id, row := range v.t.vehicles {
		if id != self && row.Plate == plate {
			return &freight.ConflictError{Entity: "vehicle", Field: "plate", Reason: fmt.Sprintf("plate %s already registered", plate)}
		}
	}
	return nil
}

// --- drivers ---

func (v *view) GetDriver(_ context.Context, id int64) (*freight.Driver, error) {
	row, ok := v.t.drivers[id]
	if !ok {
		return nil, nil
	}
	row = copyDriver(row)
	return &row, nil
}

func (v *view) ListDrivers(_ context.Context, f freight.DriverFilter) ([]freight.Driver, error) {
	out := []freight.Driver{}
	for _, row := range v.t.drivers {
		if f.Status != nil && row.Status != *f.Status {
			continue
		}
		out = append(out, copyDriver(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) InsertDriver(_ context.Context, d *freight.Driver) error {
	if err := v.uniqueDocument(d.Document, 0); err != nil {
		return err
	}
	v.t.seq.driver++
	d.ID = v.t.seq.driver
	stamp(&d.CreatedAt, &d.UpdatedAt)
	v.t.drivers[d.ID] = copyDriver(*d)
	return nil
}

func (v *view) UpdateDriver(_ context.Context, d *freight.Driver) error {
	cur, ok := v.t.drivers[d.ID]
	if !ok {
		return &freight.NotFoundError{Entity: "driver", ID: d.ID}
	}
	if err := v.uniqueDocument(d.Document, d.ID); err != nil {
		return err
	}
	row := copyDriver(*d)
	row.Balance = cur.Balance
	v.t.drivers[d.ID] = row
	return nil
}

func (v *view) DeleteDriver(_ context.Context, id int64) error {
	if _, ok := v.t.drivers[id]; !ok {
		return &freight.NotFoundError{Entity: "driver", ID: id}
	}
	if v.referenced(func(t freight.Trip) bool { return t.DriverID == id }) {
		return restrictErr("driver")
	}
	delete(v.t.drivers, id)
	for mid, mv := range v.t.movements {
		if mv.DriverID == id {
			delete(v.t.movements, mid)
		}
	}
	return nil
}

func (v *view) SetDriverBalance(_ context.Context, id int64, balance decimal.Decimal) error {
	row, ok := v.t.drivers[id]
	if !ok {
		return &freight.NotFoundError{Entity: "driver", ID: id}
	}
	row.Balance = balance
	v.t.drivers[id] = row
	return nil
}

func (v *view) uniqueDocument(doc string, self int64) error {
	for id, row := range v.t.drivers {
		if id != self && row.Document == doc {
			return &freight.ConflictError{Entity: "driver", Field: "document", Reason: fmt.Sprintf("document %s already registered", doc)}
		}
	}
	return nil
}

// --- clients ---

func (v *view) GetClient(_ context.Context, id int64) (*freight.Client, error) {
	row, ok := v.t.clients[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (v *view) ListClients(_ context.Context, f freight.ClientFilter) ([]freight.Client, error) {
	out := []freight.Client{}
	for _, row := range v.t.clients {
		if f.Status != nil && row.Status != *f.Status {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) InsertClient(_ context.Context, c *freight.Client) error {
	v.t.seq.client++
	c.ID = v.t.seq.client
	stamp(&c.CreatedAt, &c.UpdatedAt)
	v.t.clients[c.ID] = *c
	return nil
}

func (v *view) UpdateClient(_ context.Context, c *freight.Client) error {
	if _, ok := v.t.clients[c.ID]; !ok {
		return &freight.NotFoundError{Entity: "client", ID: c.ID}
	}
	v.t.clients[c.ID] = *c
	return nil
}

func (v *view) DeleteClient(_ context.Context, id int64) error {
	if _, ok := v.t.clients[id]; !ok {
		return &freight.NotFoundError{Entity: "client", ID: id}
	}
	if v.referenced(func(t freight.Trip) bool { return t.ClientID == id }) {
		return restrictErr("client")
	}
	delete(v.t.clients, id)
	return nil
}

// --- trips ---

func (v *view) GetTrip(_ context.Context, id int64) (*freight.Trip, error) {
	row, ok := v.t.trips[id]
	if !ok {
		return nil, nil
	}
	row = copyTrip(row)
	return &row, nil
}

func (v *view) ListTrips(_ context.Context, f freight.TripFilter) ([]freight.Trip, error) {
	out := []freight.Trip{}
	for _, row := range v.t.trips {
		if matchTrip(row, f) {
			out = append(out, copyTrip(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DepartureAt.Equal(out[j].DepartureAt) {
			return out[i].DepartureAt.After(out[j].DepartureAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (v *view) CountTrips(_ context.Context, f freight.TripFilter) (int, error) {
	n := 0
	for _, row := range v.t.trips {
		if matchTrip(row, f) {
			n++
		}
	}
	return n, nil
}

func (v *view) InsertTrip(_ context.Context, t *freight.Trip) error {
	if err := v.tripConstraints(*t); err != nil {
		return err
	}
	v.t.seq.trip++
	t.ID = v.t.seq.trip
	stamp(&t.CreatedAt, &t.UpdatedAt)
	v.t.trips[t.ID] = copyTrip(*t)
	return nil
}

func (v *view) UpdateTrip(_ context.Context, t *freight.Trip) error {
	if _, ok := v.t.trips[t.ID]; !ok {
		return &freight.NotFoundError{Entity: "trip", ID: t.ID}
	}
	if err := v.tripConstraints(*t); err != nil {
		return err
	}
	v.t.trips[t.ID] = copyTrip(*t)
	return nil
}

// DeleteTrip cascades to the trip's expenses and nulls the trip reference
// of any movement still pointing at it.
func (v *view) DeleteTrip(_ context.Context, id int64) error {
	if _, ok := v.t.trips[id]; !ok {
		return &freight.NotFoundError{Entity: "trip", ID: id}
	}
	for eid, e := range v.t.expenses {
		if e.TripID == id {
			delete(v.t.expenses, eid)
		}
	}
	for mid, mv := range v.t.movements {
		if mv.TripID != nil && *mv.TripID == id {
			mv.TripID = nil
			v.t.movements[mid] = mv
		}
	}
	delete(v.t.trips, id)
	return nil
}

func (v *view) tripConstraints(t freight.Trip) error {
	for id, row := range v.t.trips {
		if id != t.ID && row.Number == t.Number {
			return &freight.ConflictError{Entity: "trip", Field: "number", Reason: fmt.Sprintf("trip number %s already exists", t.Number)}
		}
	}
	if _, ok := v.t.vehicles[t.VehicleID]; !ok {
		return fkErr("trip", "vehicle_id")
	}
	if _, ok := v.t.drivers[t.DriverID]; !ok {
		return fkErr("trip", "driver_id")
	}
	if _, ok := v.t.clients[t.ClientID]; !ok {
		return fkErr("trip", "client_id")
	}
	return nil
}

func (v *view) referenced(match func(freight.Trip) bool) bool {
	for _, t := range v.t.trips {
		if match(t) {
			return true
		}
	}
	return false
}

func matchTrip(t freight.Trip, f freight.TripFilter) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if containsStatus(f.ExcludeStatus, t.Status) {
		return false
	}
	if f.DepartFrom != nil && t.DepartureAt.Before(*f.DepartFrom) {
		return false
	}
	if f.DepartBefore != nil && !t.DepartureAt.Before(*f.DepartBefore) {
		return false
	}
	if f.VehicleID != 0 && t.VehicleID != f.VehicleID {
		return false
	}
	if f.DriverID != 0 && t.DriverID != f.DriverID {
		return false
	}
	if f.ClientID != 0 && t.ClientID != f.ClientID {
		return false
	}
	return true
}

func containsStatus(set []freight.TripStatus, s freight.TripStatus) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

// --- expenses ---

func (v *view) GetExpense(_ context.Context, id int64) (*freight.Expense, error) {
	row, ok := v.t.expenses[id]
	if !ok {
		return nil, nil
	}
	row = copyExpense(row)
	return &row, nil
}

func (v *view) ListExpenses(_ context.Context, f freight.ExpenseFilter) ([]freight.Expense, error) {
	want := make(map[int64]bool, len(f.TripIDs))
	for _, id := range f.TripIDs {
		want[id] = true
	}
	out := []freight.Expense{}
	for _, row := range v.t.expenses {
		if len(want) > 0 && !want[row.TripID] {
			continue
		}
		out = append(out, copyExpense(row))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (v *view) InsertExpense(_ context.Context, e *freight.Expense) error {
	if _, ok := v.t.trips[e.TripID]; !ok {
		return fkErr("expense", "trip_id")
	}
	v.t.seq.expense++
	e.ID = v.t.seq.expense
	stamp(&e.CreatedAt, nil)
	v.t.expenses[e.ID] = copyExpense(*e)
	return nil
}

func (v *view) DeleteExpense(_ context.Context, id int64) error {
	if _, ok := v.t.expenses[id]; !ok {
		return &freight.NotFoundError{Entity: "expense", ID: id}
	}
	delete(v.t.expenses, id)
	return nil
}

// --- movements ---

func (v *view) GetMovement(_ context.Context, id int64) (*freight.Movement, error) {
	row, ok := v.t.movements[id]
	if !ok {
		return nil, nil
	}
	row = copyMovement(row)
	return &row, nil
}

func (v *view) ListMovements(_ context.Context, driverID int64) ([]freight.Movement, error) {
	out := []freight.Movement{}
	for _, row := range v.t.movements {
		if row.DriverID == driverID {
			out = append(out, copyMovement(row))
		}
	}
	freight.SortMovements(out)
	return out, nil
}

func (v *view) InsertMovement(_ context.Context, mv *freight.Movement) error {
	if _, ok := v.t.drivers[mv.DriverID]; !ok {
		return fkErr("movement", "driver_id")
	}
	if mv.TripID != nil {
		if _, ok := v.t.trips[*mv.TripID]; !ok {
			return fkErr("movement", "trip_id")
		}
	}
	if mv.ReversalOf != nil {
		for _, row := range v.t.movements {
			if row.ReversalOf != nil && *row.ReversalOf == *mv.ReversalOf {
				return &freight.ConflictError{Entity: "movement", Field: "reversal_of",
					Reason: fmt.Sprintf("movement %d already reversed", *mv.ReversalOf)}
			}
		}
	}
	v.t.seq.movement++
	mv.ID = v.t.seq.movement
	stamp(&mv.CreatedAt, nil)
	v.t.movements[mv.ID] = copyMovement(*mv)
	return nil
}

func (v *view) ClearMovementTrip(_ context.Context, tripID int64) (int64, error) {
	var n int64
	for id, mv := range v.t.movements {
		if mv.TripID != nil && *mv.TripID == tripID {
			mv.TripID = nil
			v.t.movements[id] = mv
			n++
		}
	}
	return n, nil
}

func (v *view) FindReversal(_ context.Context, id int64) (*freight.Movement, error) {
	for _, mv := range v.t.movements {
		if mv.ReversalOf != nil && *mv.ReversalOf == id {
			out := copyMovement(mv)
			return &out, nil
		}
	}
	return nil, nil
}

// =============================================================================
// COPIES - stored rows share no pointers or slices with callers or snapshots
// =============================================================================

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func copyVehicle(v freight.Vehicle) freight.Vehicle {
	v.LastMaintenance = clonePtr(v.LastMaintenance)
	v.InsuranceExpiry = clonePtr(v.InsuranceExpiry)
	v.CoverageExpiry = clonePtr(v.CoverageExpiry)
	return v
}

func copyDriver(d freight.Driver) freight.Driver {
	d.Photo = cloneBytes(d.Photo)
	return d
}

func copyTrip(t freight.Trip) freight.Trip {
	t.ArrivalAt = clonePtr(t.ArrivalAt)
	return t
}

func copyExpense(e freight.Expense) freight.Expense {
	e.Receipt = cloneBytes(e.Receipt)
	return e
}

func copyMovement(m freight.Movement) freight.Movement {
	m.TripID = clonePtr(m.TripID)
	m.ReversalOf = clonePtr(m.ReversalOf)
	return m
}

// =============================================================================
// ERRORS
// =============================================================================

func restrictErr(entity string) error {
	return &freight.ConflictError{Entity: entity, Reason: "referenced by existing trips"}
}

func fkErr(entity, field string) error {
	return &freight.ConflictError{Entity: entity, Field: field, Reason: "referenced row does not exist"}
}
