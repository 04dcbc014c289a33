/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	fleet data. Each scenario goes through the engine services, so every
	trip, expense and movement obeys the same rules as API traffic.

AVAILABLE SCENARIOS:

	empty:            Clean database
	small-fleet:      Three trucks, three drivers, two clients and a month
	                  of trips in every status
	document-alerts:  Expired and expiring insurance, coverage and licenses
	ledger-drift:     Small fleet with one corrupted cached balance, for the
	                  reconcile endpoint

HOW SCENARIOS WORK:
 1. Reset database (clear all data, restart ids)
 2. Register vehicles, drivers and clients
 3. Save trips and walk them through their statuses
 4. Add expenses and ledger movements

All dates are relative to the handler clock's "now".

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-fleet"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/freight-engine/freight"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty",
		Name:        "Empty",
		Description: "Clean database",
	},
	{
		ID:          "small-fleet",
		Name:        "Small Fleet",
		Description: "Three trucks, three drivers, two clients and a month of trips",
	},
	{
		ID:          "document-alerts",
		Name:        "Document Alerts",
		Description: "Expired and expiring insurance, coverage and licenses",
	},
	{
		ID:          "ledger-drift",
		Name:        "Ledger Drift",
		Description: "Small fleet with a driver whose cached balance disagrees with the ledger",
	},
}

var scenarioLoaders = map[string]func(context.Context, *Handler) error{
	"empty":           func(context.Context, *Handler) error { return nil },
	"small-fleet":     loadSmallFleetScenario,
	"document-alerts": loadDocumentAlerts,
	"ledger-drift":    loadLedgerDrift,
}

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario id.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the database and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "loaded",
		"scenario_id": req.ScenarioID,
	})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return &freight.ValidationError{Violations: []freight.FieldViolation{
			{Field: "scenario_id", Reason: fmt.Sprintf("unknown scenario %q", id)},
		}}
	}
	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	if err := load(ctx, h); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.Log.WithField("scenario", id).Info("scenario loaded")
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoFleet struct {
	vehicles []freight.Vehicle
	drivers  []freight.Driver
	clients  []freight.Client
}

func loadSmallFleet(ctx context.Context, h *Handler) (demoFleet, error) {
	now := h.Clock.Now()
	today := freight.StartOfDay(now)
	var fleet demoFleet

	for _, v := range []freight.Vehicle{
		{Plate: "AB123CD", Make: "Scania", Model: "R450", FuelCapacity: dec("30000"), Year: 2019},
		{Plate: "AC456EF", Make: "Mercedes-Benz", Model: "Actros 2045", FuelCapacity: dec("25000"), Year: 2021},
		{Plate: "AD789GH", Make: "Iveco", Model: "Stralis", FuelCapacity: dec("20000"), Year: 2017,
			Status: freight.VehicleMaintenance},
	} {
		saved, err := h.Registry.SaveVehicle(ctx, v)
		if err != nil {
			return fleet, err
		}
		fleet.vehicles = append(fleet.vehicles, saved)
	}

	for _, d := range []freight.Driver{
		{Document: "30111222", FirstName: "Juan", LastName: "Pérez", Phone: "2914551234", LicenseNumber: "LIC-30111222",
			LicenseExpiry: today.AddDate(2, 0, 0)},
		{Document: "28999111", FirstName: "María", LastName: "González", Email: "mgonzalez@example.com",
			LicenseNumber: "LIC-28999111", LicenseExpiry: today.AddDate(1, 6, 0)},
		{Document: "33444555", FirstName: "Carlos", LastName: "Romero", LicenseNumber: "LIC-33444555",
			LicenseExpiry: today.AddDate(0, 8, 0)},
	} {
		saved, err := h.Registry.SaveDriver(ctx, d)
		if err != nil {
			return fleet, err
		}
		fleet.drivers = append(fleet.drivers, saved)
	}

	for _, c := range []freight.Client{
		{LegalName: "Combustibles del Sur SA", TaxID: "30-71234567-8", Contact: "Laura Méndez"},
		{LegalName: "Estaciones Patagónicas SRL", TaxID: "30-70987654-3", Email: "compras@patagonicas.example"},
	} {
		saved, err := h.Registry.SaveClient(ctx, c)
		if err != nil {
			return fleet, err
		}
		fleet.clients = append(fleet.clients, saved)
	}

	month := freight.StartOfMonth(now)
	type plan struct {
		vehicle, driver, client int
		departure               time.Time
		origin, destination     string
		volume, revenue, pay    string
		path                    []freight.TripStatus
		expenses                []string
	}
	plans := []plan{
		{0, 0, 0, month.Add(8 * time.Hour), "Bahía Blanca", "Neuquén", "30000", "1000", "200",
			[]freight.TripStatus{freight.TripInProgress, freight.TripCompleted}, []string{"50", "30"}},
		{1, 1, 1, month.AddDate(0, 0, 1).Add(6 * time.Hour), "Plaza Huincul", "Cipolletti", "25000", "850", "180",
			[]freight.TripStatus{freight.TripInProgress, freight.TripCompleted}, []string{"42.50"}},
		{0, 2, 0, month.AddDate(0, 0, 2).Add(7 * time.Hour), "Bahía Blanca", "Viedma", "20000", "600", "150",
			[]freight.TripStatus{freight.TripCancelled}, nil},
		{1, 0, 1, today.Add(5 * time.Hour), "Neuquén", "Zapala", "18000", "700", "160",
			[]freight.TripStatus{freight.TripInProgress}, []string{"25"}},
		{2, 1, 0, today.Add(14 * time.Hour), "Bahía Blanca", "Tres Arroyos", "12000", "480", "120", nil, nil},
	}
	for _, p := range plans {
		trip, err := h.Trips.SaveTrip(ctx, freight.TripDraft{
			VehicleID:     fleet.vehicles[p.vehicle].ID,
			DriverID:      fleet.drivers[p.driver].ID,
			ClientID:      fleet.clients[p.client].ID,
			DepartureAt:   p.departure,
			Origin:        p.origin,
			Destination:   p.destination,
			Volume:        dec(p.volume),
			Revenue:       dec(p.revenue),
			DriverPayment: dec(p.pay),
		})
		if err != nil {
			return fleet, err
		}
		for _, amount := range p.expenses {
			if _, err := h.Trips.AddExpense(ctx, trip.ID, freight.ExpenseDraft{
				Type:        "Peaje",
				Description: "Peajes ruta " + p.destination,
				Amount:      dec(amount),
				Date:        p.departure,
			}); err != nil {
				return fleet, err
			}
		}
		draft := draftOf(trip.Trip)
		for _, st := range p.path {
			draft.Status = st
			if _, err := h.Trips.SaveTrip(ctx, draft); err != nil {
				return fleet, err
			}
		}
	}

	if _, err := h.Ledger.RecordMovement(ctx, freight.MovementDraft{
		DriverID:    fleet.drivers[0].ID,
		Type:        freight.MovementAdvance,
		Amount:      dec("-50"),
		Description: "Adelanto para viáticos",
		At:          month.AddDate(0, 0, 1),
	}); err != nil {
		return fleet, err
	}
	return fleet, nil
}

func loadSmallFleetScenario(ctx context.Context, h *Handler) error {
	_, err := loadSmallFleet(ctx, h)
	return err
}

func loadDocumentAlerts(ctx context.Context, h *Handler) error {
	now := h.Clock.Now()
	at := func(days int) *time.Time {
		t := freight.StartOfDay(now).AddDate(0, 0, days)
		return &t
	}
	for _, v := range []freight.Vehicle{
		{Plate: "AA001AA", Make: "Scania", FuelCapacity: dec("30000"), InsuranceExpiry: at(-3), CoverageExpiry: at(200)},
		{Plate: "AA002AA", Make: "Volvo", FuelCapacity: dec("28000"), InsuranceExpiry: at(12), CoverageExpiry: at(25)},
		{Plate: "AA003AA", Make: "Iveco", FuelCapacity: dec("20000"), InsuranceExpiry: at(365), CoverageExpiry: at(365)},
	} {
		if _, err := h.Registry.SaveVehicle(ctx, v); err != nil {
			return err
		}
	}
	for _, d := range []freight.Driver{
		{Document: "20111111", FirstName: "Ana", LastName: "Sosa", LicenseNumber: "L-1", LicenseExpiry: *at(-10)},
		{Document: "20222222", FirstName: "Luis", LastName: "Díaz", LicenseNumber: "L-2", LicenseExpiry: *at(45)},
		{Document: "20333333", FirstName: "Eva", LastName: "Ríos", LicenseNumber: "L-3", LicenseExpiry: *at(400)},
	} {
		if _, err := h.Registry.SaveDriver(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func loadLedgerDrift(ctx context.Context, h *Handler) error {
	fleet, err := loadSmallFleet(ctx, h)
	if err != nil {
		return err
	}
	// Simulates a manual edit of the balance column behind the ledger.
	return h.Store.SetDriverBalance(ctx, fleet.drivers[1].ID, dec("99999"))
}

// =============================================================================
// HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func draftOf(t freight.Trip) freight.TripDraft {
	return freight.TripDraft{
		ID:            t.ID,
		Number:        t.Number,
		VehicleID:     t.VehicleID,
		DriverID:      t.DriverID,
		ClientID:      t.ClientID,
		DepartureAt:   t.DepartureAt,
		ArrivalAt:     t.ArrivalAt,
		Origin:        t.Origin,
		Destination:   t.Destination,
		Volume:        t.Volume,
		Revenue:       t.Revenue,
		DriverPayment: t.DriverPayment,
		Status:        t.Status,
		Notes:         t.Notes,
	}
}
