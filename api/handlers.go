/*
handlers.go - HTTP API handlers for the freight engine

PURPOSE:
  Exposes the trip lifecycle, driver ledger, registry and dashboard over a
  REST API. Handles HTTP request/response and JSON serialization, and
  delegates every rule to the freight package.

ENDPOINTS:
  Registry:
    GET/POST        /api/vehicles, /api/drivers, /api/clients
    GET/PUT/DELETE  /api/{vehicles|drivers|clients}/{id}

  Ledger:
    GET    /api/drivers/{id}/balance     Ledger balance vs cached column
    GET    /api/drivers/{id}/movements   Statement with running balance
    POST   /api/drivers/{id}/movements   Record a movement
    POST   /api/movements/{id}/reverse   Append an offsetting movement

  Trips:
    GET/POST        /api/trips
    GET/PUT/DELETE  /api/trips/{id}
    GET/POST        /api/trips/{id}/expenses
    GET             /api/trips/{id}/settlement.pdf
    DELETE          /api/expenses/{id}

  Dashboard:
    GET    /api/dashboard
    GET    /api/dashboard/expiring

  Admin:
    POST   /api/admin/reconcile          Recompute cached balances now
    GET    /api/admin/reconcile/runs     Recent scheduler runs

ERROR HANDLING:
  Every failure is JSON {error, kind, details, violations}. The status comes
  from the error kind:
  - 400: validation (including malformed JSON and ids)
  - 404: not found
  - 409: conflict (duplicates, restricted deletes, double reversal)
  - 412: precondition
  - 422: invalid status transition
  - 504: unit of work timed out
  - 500: storage failure

SECURITY NOTE:
  No authentication. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/warp/freight-engine/freight"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the store the API runs on. Reset is used by scenarios only.
type Backend interface {
	freight.TxStore
	Reset(ctx context.Context) error
}

// Options tune the engine behind the handlers.
type Options struct {
	Timeout       time.Duration
	VehiclePolicy freight.VehiclePolicy
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Backend
	Clock    freight.Clock
	Log      logrus.FieldLogger
	Trips    *freight.Manager
	Ledger   *freight.Ledger
	Registry *freight.Registry
	Reports  *freight.Reports

	// Reconciler, when set, exposes its run history.
	Reconciler *BalanceReconciler

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the engine services on top of store.
func NewHandler(store Backend, clock freight.Clock, log logrus.FieldLogger, opts Options) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if clock == nil {
		clock = freight.SystemClock{}
	}
	h := &Handler{Store: store, Clock: clock, Log: log}

	h.Ledger = freight.NewLedger(store, clock, log)
	h.Ledger.Timeout = opts.Timeout
	h.Trips = freight.NewManager(store, h.Ledger, clock, log)
	h.Trips.Timeout = opts.Timeout
	if opts.VehiclePolicy != nil {
		h.Trips.Vehicles = opts.VehiclePolicy
	}
	h.Registry = freight.NewRegistry(store, clock, log)
	h.Registry.Timeout = opts.Timeout
	h.Reports = freight.NewReports(store, clock, log)

	sink := freight.NotifierFunc(h.logOutcome)
	h.Trips.Notifier = sink
	h.Registry.Notifier = sink
	return h
}

func (h *Handler) logOutcome(o freight.Outcome) {
	entry := h.Log.WithFields(logrus.Fields{"op": o.Op, "ok": o.OK})
	if !o.OK {
		entry.WithField("kind", o.Kind).Debug(o.Message)
		return
	}
	entry.Debug(o.Message)
}

// =============================================================================
// VEHICLE HANDLERS
// =============================================================================

// ListVehicles returns all vehicles, optionally filtered by ?status=.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	var f freight.VehicleFilter
	if s := r.URL.Query().Get("status"); s != "" {
		st := freight.VehicleStatus(s)
		f.Status = &st
	}
	vehicles, err := h.Registry.Vehicles(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.Clock.Now()
	dtos := make([]VehicleDTO, len(vehicles))
	for i, v := range vehicles {
		dtos[i] = toVehicleDTO(v, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetVehicle returns a single vehicle.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	v, err := h.Registry.Vehicle(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTO(v, h.Clock.Now()))
}

// CreateVehicle registers a vehicle.
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	h.saveVehicle(w, r, 0, http.StatusCreated)
}

// UpdateVehicle replaces a vehicle's fields.
func (h *Handler) UpdateVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	h.saveVehicle(w, r, id, http.StatusOK)
}

func (h *Handler) saveVehicle(w http.ResponseWriter, r *http.Request, id int64, status int) {
	var req VehicleRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.Registry.SaveVehicle(r.Context(), req.toVehicle(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toVehicleDTO(v, h.Clock.Now()))
}

// DeleteVehicle removes a vehicle no trip references.
func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.Registry.DeleteVehicle)
}

// =============================================================================
// DRIVER HANDLERS
// =============================================================================

// ListDrivers returns all drivers, optionally filtered by ?status=.
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	var f freight.DriverFilter
	if s := r.URL.Query().Get("status"); s != "" {
		st := freight.DriverStatus(s)
		f.Status = &st
	}
	drivers, err := h.Registry.Drivers(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.Clock.Now()
	dtos := make([]DriverDTO, len(drivers))
	for i, d := range drivers {
		dtos[i] = toDriverDTO(d, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDriver returns a single driver.
func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	d, err := h.Registry.Driver(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDriverDTO(d, h.Clock.Now()))
}

// CreateDriver registers a driver with a zero balance.
func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	h.saveDriver(w, r, 0, http.StatusCreated)
}

// UpdateDriver replaces a driver's fields; the balance is untouched.
func (h *Handler) UpdateDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	h.saveDriver(w, r, id, http.StatusOK)
}

func (h *Handler) saveDriver(w http.ResponseWriter, r *http.Request, id int64, status int) {
	var req DriverRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.Registry.SaveDriver(r.Context(), req.toDriver(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toDriverDTO(d, h.Clock.Now()))
}

// DeleteDriver removes a driver and its movements.
func (h *Handler) DeleteDriver(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.Registry.DeleteDriver)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetDriverBalance returns the ledger balance next to the cached column.
// GET /api/drivers/{id}/balance
func (h *Handler) GetDriverBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	d, err := h.Registry.Driver(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bal, err := h.Ledger.CurrentBalance(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		DriverID: id,
		Balance:  bal,
		Cached:   d.Balance,
		Drifted:  !bal.Equal(d.Balance),
	})
}

// ListMovements returns the driver's statement.
// GET /api/drivers/{id}/movements
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	lines, err := h.Ledger.Statement(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]MovementDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toMovementDTO(l.Movement)
		running := l.Running
		dtos[i].Running = &running
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordMovement appends a movement to the driver's ledger.
// POST /api/drivers/{id}/movements
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req MovementRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, err := h.Ledger.RecordMovement(r.Context(), freight.MovementDraft{
		DriverID:    id,
		TripID:      req.TripID,
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		At:          req.At,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// ReverseMovement offsets a movement.
// POST /api/movements/{id}/reverse
func (h *Handler) ReverseMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req ReverseRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	m, err := h.Ledger.Reverse(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients, optionally filtered by ?status=.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	var f freight.ClientFilter
	if s := r.URL.Query().Get("status"); s != "" {
		st := freight.ClientStatus(s)
		f.Status = &st
	}
	clients, err := h.Registry.Clients(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	c, err := h.Registry.Client(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

// CreateClient registers a client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	h.saveClient(w, r, 0, http.StatusCreated)
}

// UpdateClient replaces a client's fields.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	h.saveClient(w, r, id, http.StatusOK)
}

func (h *Handler) saveClient(w http.ResponseWriter, r *http.Request, id int64, status int) {
	var req ClientRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Registry.SaveClient(r.Context(), req.toClient(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toClientDTO(c))
}

// DeleteClient removes a client no trip references.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.Registry.DeleteClient)
}

// =============================================================================
// TRIP HANDLERS
// =============================================================================

// ListTrips returns trips, newest departure first.
// GET /api/trips?status=EnCurso&driver_id=3&from=2024-03-01&to=2024-04-01&limit=20
func (h *Handler) ListTrips(w http.ResponseWriter, r *http.Request) {
	f, err := tripFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", freight.KindValidation, err)
		return
	}
	trips, err := h.Trips.Trips(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripDTOs(trips))
}

// GetTrip returns a trip with its expenses and references.
func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	d, err := h.Trips.Trip(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripDTO(d))
}

// CreateTrip schedules a trip.
func (h *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	h.saveTrip(w, r, 0, http.StatusCreated)
}

// UpdateTrip edits a trip or moves it through its statuses.
func (h *Handler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	h.saveTrip(w, r, id, http.StatusOK)
}

func (h *Handler) saveTrip(w http.ResponseWriter, r *http.Request, id int64, status int) {
	var req TripRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, err := h.Trips.SaveTrip(r.Context(), req.toDraft(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toTripDTO(d))
}

// DeleteTrip removes a trip and its expenses; ledger movements stay.
func (h *Handler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.Trips.DeleteTrip)
}

// ListExpenses returns a trip's expenses, newest first.
// GET /api/trips/{id}/expenses
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	expenses, err := h.Trips.Expenses(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTOs(expenses))
}

// AddExpense attaches a cost to a trip.
// POST /api/trips/{id}/expenses
func (h *Handler) AddExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req ExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.Trips.AddExpense(r.Context(), id, req.toDraft())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

// DeleteExpense removes one expense.
// DELETE /api/expenses/{id}
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, h.Trips.RemoveExpense)
}

func tripFilter(r *http.Request) (freight.TripFilter, error) {
	q := r.URL.Query()
	var f freight.TripFilter
	for _, s := range q["status"] {
		for _, part := range strings.Split(s, ",") {
			if part != "" {
				f.Statuses = append(f.Statuses, freight.TripStatus(part))
			}
		}
	}
	ids := map[string]*int64{"vehicle_id": &f.VehicleID, "driver_id": &f.DriverID, "client_id": &f.ClientID}
	for key, dst := range ids {
		if v := q.Get(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return f, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	for key, dst := range map[string]**time.Time{"from": &f.DepartFrom, "to": &f.DepartBefore} {
		if v := q.Get(key); v != "" {
			var d Date
			if err := d.UnmarshalJSON([]byte(v)); err != nil {
				return f, fmt.Errorf("%s: %w", key, err)
			}
			t := d.Time
			*dst = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit: must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

// =============================================================================
// DASHBOARD HANDLERS
// =============================================================================

// GetDashboard returns every aggregate computed at one instant.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toDashboardDTO(h.Reports.Dashboard(r.Context())))
}

// GetExpiring returns only the document alerts.
func (h *Handler) GetExpiring(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toExpiringDTO(h.Reports.ExpiringDocuments(r.Context(), h.Clock.Now())))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Reconcile recomputes every cached balance from the ledger now.
// POST /api/admin/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Ledger.ReconcileAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTOs(recs))
}

// ListReconcileRuns returns the scheduler's recent runs, newest first.
// GET /api/admin/reconcile/runs
func (h *Handler) ListReconcileRuns(w http.ResponseWriter, r *http.Request) {
	if h.Reconciler == nil {
		writeJSON(w, http.StatusOK, []ReconcileRun{})
		return
	}
	writeJSON(w, http.StatusOK, h.Reconciler.Runs())
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, del func(context.Context, int64) error) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if err := del(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", freight.KindValidation, fmt.Errorf("id %q is not a positive integer", raw))
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", freight.KindValidation, err)
		return false
	}
	return true
}

// fail writes err with the status its kind maps to. Server-side failures
// are logged with the request id.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := freight.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).Error("request failed")
	}
	resp := ErrorResponse{Error: http.StatusText(status), Kind: kind, Details: err.Error()}
	var verr *freight.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "Validation failed"
		resp.Violations = verr.Violations
	}
	writeJSON(w, status, resp)
}

func statusFor(k freight.Kind) int {
	switch k {
	case freight.KindValidation:
		return http.StatusBadRequest
	case freight.KindNotFound:
		return http.StatusNotFound
	case freight.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case freight.KindPrecondition:
		return http.StatusPreconditionFailed
	case freight.KindConflict:
		return http.StatusConflict
	case freight.KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, kind freight.Kind, err error) {
	resp := ErrorResponse{Error: message, Kind: kind}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
