/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Registry CRUD and the error-kind to status mapping
- Trip lifecycle over HTTP (expenses, transitions, terminal edits)
- Driver ledger endpoints (statement, reversal)
- Dashboard, document alerts and the settlement PDF
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/freight-engine/freight"
	"github.com/warp/freight-engine/freight/store"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := NewHandler(store.NewMemory(), freight.FixedClock{At: testNow}, log, Options{Timeout: 5 * time.Second})
	return &testServer{h: h, router: NewRouter(h, []string{"*"})}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// seedFleet registers one vehicle, one driver and one client.
func (s *testServer) seedFleet(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/vehicles", map[string]any{
		"plate": "AB123CD", "make": "Scania", "fuel_capacity": "30000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/drivers", map[string]any{
		"document": "30111222", "first_name": "Juan", "last_name": "Pérez",
		"license_number": "LIC-1", "license_expiry": "2026-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/clients", map[string]any{"legal_name": "Combustibles del Sur SA"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func tripBody(overrides map[string]any) map[string]any {
	body := map[string]any{
		"vehicle_id":     1,
		"driver_id":      1,
		"client_id":      1,
		"departure_at":   "2024-03-10T08:00:00Z",
		"origin":         "Bahía Blanca",
		"destination":    "Neuquén",
		"volume":         "30000",
		"revenue":        "1000",
		"driver_payment": "200",
	}
	for k, v := range overrides {
		body[k] = v
	}
	return body
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestVehicleCRUD(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vehicles", map[string]any{
		"plate": " ab123cd ", "make": "Scania", "fuel_capacity": "30000", "insurance_expiry": "2024-03-30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeAs[VehicleDTO](t, rec)
	assert.Equal(t, "AB123CD", created.Plate)
	assert.Equal(t, freight.VehicleActive, created.Status)
	assert.True(t, created.InsuranceExpiringSoon)

	rec = s.do(t, http.MethodPut, "/api/vehicles/1", map[string]any{
		"plate": "AB123CD", "make": "Scania", "model": "R450", "fuel_capacity": "32000",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "R450", decodeAs[VehicleDTO](t, rec).Model)

	rec = s.do(t, http.MethodGet, "/api/vehicles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]VehicleDTO](t, rec), 1)

	rec = s.do(t, http.MethodDelete, "/api/vehicles/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/vehicles/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, freight.KindNotFound, decodeAs[ErrorResponse](t, rec).Kind)
}

func TestCreateVehicle_ValidationListsEveryViolation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vehicles", map[string]any{"plate": ""})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeAs[ErrorResponse](t, rec)
	assert.Equal(t, freight.KindValidation, resp.Kind)
	fields := make([]string, len(resp.Violations))
	for i, v := range resp.Violations {
		fields[i] = v.Field
	}
	assert.Contains(t, fields, "vehicle.plate")
	assert.Contains(t, fields, "vehicle.make")
	assert.Contains(t, fields, "vehicle.fuel_capacity")
}

func TestCreateVehicle_DuplicatePlateIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)

	rec := s.do(t, http.MethodPost, "/api/vehicles", map[string]any{
		"plate": "ab123cd", "make": "Volvo", "fuel_capacity": "20000",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, freight.KindConflict, decodeAs[ErrorResponse](t, rec).Kind)
}

func TestMalformedRequests(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"broken json", http.MethodPost, "/api/clients", `{"legal_name":`},
		{"unknown field", http.MethodPost, "/api/clients", `{"legal_name":"X","balance":"10"}`},
		{"non numeric id", http.MethodGet, "/api/trips/abc", nil},
		{"zero id", http.MethodDelete, "/api/clients/0", nil},
		{"bad trip filter", http.MethodGet, "/api/trips?from=yesterday", nil},
		{"negative limit", http.MethodGet, "/api/trips?limit=-1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, freight.KindValidation, decodeAs[ErrorResponse](t, rec).Kind)
		})
	}
}

func TestDriverBalanceCannotBeSetThroughRegistry(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)

	rec := s.do(t, http.MethodPut, "/api/drivers/1", map[string]any{
		"document": "30111222", "first_name": "Juan", "last_name": "Pérez",
		"license_number": "LIC-1", "license_expiry": "2026-01-01", "balance": "5000",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/drivers/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeAs[DriverDTO](t, rec).Balance.IsZero())
}

// =============================================================================
// TRIPS
// =============================================================================

func TestTripLifecycle(t *testing.T) {
	// GIVEN: A registered vehicle, driver and client
	// WHEN: A trip is scheduled, costed, driven and completed over HTTP
	// THEN: Figures are derived from the expenses, the driver is credited once,
	//       and the completed trip rejects transitions and money edits

	s := newTestServer(t)
	s.seedFleet(t)

	rec := s.do(t, http.MethodPost, "/api/trips", tripBody(nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	trip := decodeAs[TripDTO](t, rec)
	assert.Equal(t, freight.TripScheduled, trip.Status)
	assert.Regexp(t, `^V-\d{8}-[0-9A-F]{6}$`, trip.Number)
	assert.ElementsMatch(t, []freight.TripStatus{freight.TripInProgress, freight.TripCancelled}, trip.NextStatus)

	for _, amount := range []string{"50", "30"} {
		rec = s.do(t, http.MethodPost, "/api/trips/1/expenses", map[string]any{
			"type": "Peaje", "description": "Peajes", "amount": amount, "date": "2024-03-10",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/trips/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trip = decodeAs[TripDTO](t, rec)
	assert.Equal(t, "800", trip.GrossProfit.String())
	assert.Equal(t, "80", trip.TotalExpenses.String())
	assert.Equal(t, "720", trip.NetProfit.String())
	assert.Equal(t, "0.02", trip.Efficiency.String())
	assert.Equal(t, "AB123CD", trip.VehiclePlate)
	assert.Equal(t, "Juan Pérez", trip.DriverName)
	assert.Len(t, trip.Expenses, 2)

	for _, st := range []freight.TripStatus{freight.TripInProgress, freight.TripCompleted} {
		rec = s.do(t, http.MethodPut, "/api/trips/1", tripBody(map[string]any{"status": st}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/drivers/1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decodeAs[BalanceDTO](t, rec)
	assert.Equal(t, "200", bal.Balance.String())
	assert.False(t, bal.Drifted)

	rec = s.do(t, http.MethodPut, "/api/trips/1", tripBody(map[string]any{"status": freight.TripScheduled}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, freight.KindInvalidTransition, decodeAs[ErrorResponse](t, rec).Kind)

	rec = s.do(t, http.MethodPut, "/api/trips/1", tripBody(map[string]any{"revenue": "5000"}))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/trips/1", tripBody(map[string]any{"notes": "Entregado sin novedad"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Entregado sin novedad", decodeAs[TripDTO](t, rec).Notes)
	assert.Empty(t, decodeAs[TripDTO](t, rec).NextStatus)
}

func TestCreateTrip_UnknownReferenceIsNotFound(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)

	rec := s.do(t, http.MethodPost, "/api/trips", tripBody(map[string]any{"client_id": 9}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decodeAs[ErrorResponse](t, rec).Details, "client")
}

func TestDeleteReferencedVehicleIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/trips", tripBody(nil)).Code)

	rec := s.do(t, http.MethodDelete, "/api/vehicles/1", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteTripAndExpense(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/trips", tripBody(nil)).Code)
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/trips/1/expenses", map[string]any{
			"type": "Combustible", "description": "Carga", "amount": "10", "date": "2024-03-10",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/expenses/1", nil).Code)
	rec := s.do(t, http.MethodGet, "/api/trips/1/expenses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]ExpenseDTO](t, rec), 1)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/trips/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/trips/1/expenses", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/expenses/2", nil).Code)
}

func TestListTrips_Filters(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)
	for _, dep := range []string{"2024-02-20T08:00:00Z", "2024-03-02T08:00:00Z", "2024-03-12T08:00:00Z"} {
		rec := s.do(t, http.MethodPost, "/api/trips", tripBody(map[string]any{"departure_at": dep}))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	require.Equal(t, http.StatusOK,
		s.do(t, http.MethodPut, "/api/trips/3", tripBody(map[string]any{
			"departure_at": "2024-03-12T08:00:00Z", "status": freight.TripCancelled,
		})).Code)

	rec := s.do(t, http.MethodGet, "/api/trips?from=2024-03-01&to=2024-04-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trips := decodeAs[[]TripDTO](t, rec)
	require.Len(t, trips, 2)
	assert.Equal(t, int64(3), trips[0].ID, "newest departure first")

	rec = s.do(t, http.MethodGet, "/api/trips?status=Programado&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trips = decodeAs[[]TripDTO](t, rec)
	require.Len(t, trips, 1)
	assert.Equal(t, int64(2), trips[0].ID)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestMovementsAndReversal(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)

	rec := s.do(t, http.MethodPost, "/api/drivers/1/movements", map[string]any{
		"type": freight.MovementAdjustment, "amount": "100", "description": "Saldo inicial",
		"at": "2024-03-01T09:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/drivers/1/movements", map[string]any{
		"type": freight.MovementAdvance, "amount": "-30", "description": "Adelanto",
		"at": "2024-03-05T09:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	advance := decodeAs[MovementDTO](t, rec)

	rec = s.do(t, http.MethodPost, "/api/drivers/1/movements", map[string]any{
		"type": freight.MovementAdvance, "amount": "30", "description": "Mal signo",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/drivers/1/movements", map[string]any{
		"type": freight.MovementReversal, "amount": "1000", "description": "Reversión suelta",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reversals only come from the reverse endpoint")

	rec = s.do(t, http.MethodPost, "/api/movements/2/reverse", map[string]any{"reason": "Cargado dos veces"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rev := decodeAs[MovementDTO](t, rec)
	assert.Equal(t, freight.MovementReversal, rev.Type)
	assert.Equal(t, "30", rev.Amount.String())
	require.NotNil(t, rev.ReversalOf)
	assert.Equal(t, advance.ID, *rev.ReversalOf)

	rec = s.do(t, http.MethodPost, "/api/movements/2/reverse", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/drivers/1/movements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := decodeAs[[]MovementDTO](t, rec)
	require.Len(t, lines, 3)
	var running []string
	for _, l := range lines {
		require.NotNil(t, l.Running)
		running = append(running, l.Running.String())
	}
	assert.Equal(t, []string{"100", "70", "100"}, running)

	rec = s.do(t, http.MethodGet, "/api/drivers/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", decodeAs[DriverDTO](t, rec).Balance.String())
}

func TestLedgerEndpoints_UnknownDriver(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/drivers/7/balance", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/drivers/7/movements", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/movements/7/reverse", nil).Code)
}

func TestReconcileEndpointRepairsDrift(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)
	ctx := context.Background()
	require.NoError(t, s.h.Store.SetDriverBalance(ctx, 1, dec("75")))

	rec := s.do(t, http.MethodGet, "/api/drivers/1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeAs[BalanceDTO](t, rec).Drifted)

	rec = s.do(t, http.MethodPost, "/api/admin/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	recs := decodeAs[[]ReconciliationDTO](t, rec)
	require.Len(t, recs, 1)
	assert.Equal(t, "75", recs[0].Drift.String())

	rec = s.do(t, http.MethodGet, "/api/drivers/1/balance", nil)
	assert.False(t, decodeAs[BalanceDTO](t, rec).Drifted)
}

// =============================================================================
// DASHBOARD & SETTLEMENT
// =============================================================================

func TestDashboard(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/trips", tripBody(nil)).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/trips",
		tripBody(map[string]any{"departure_at": "2024-03-15T06:00:00Z", "volume": "12000"})).Code)
	for _, st := range []freight.TripStatus{freight.TripInProgress, freight.TripCompleted} {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/trips/1", tripBody(map[string]any{"status": st})).Code)
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/trips/2", tripBody(map[string]any{
		"departure_at": "2024-03-15T06:00:00Z", "volume": "12000", "status": freight.TripInProgress,
	})).Code)

	rec := s.do(t, http.MethodGet, "/api/dashboard", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeAs[DashboardDTO](t, rec)
	assert.True(t, d.At.Equal(testNow))
	assert.Equal(t, "800", d.MonthlyNetProfit.String())
	assert.Equal(t, 1, d.InProgressTrips)
	assert.Equal(t, "12000", d.TodayVolume.String())
	require.Len(t, d.RecentTrips, 2)
	assert.Equal(t, int64(2), d.RecentTrips[0].ID)
	assert.Empty(t, d.ExpiringDocuments.Vehicles)
	assert.Empty(t, d.ExpiringDocuments.Drivers)
}

func TestSettlementPDF(t *testing.T) {
	s := newTestServer(t)
	s.seedFleet(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/trips", tripBody(nil)).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/trips/1/expenses", map[string]any{
		"type": "Peaje", "description": "Peaje Ruta 22", "amount": "80", "date": "2024-03-10",
	}).Code)

	rec := s.do(t, http.MethodGet, "/api/trips/1/settlement.pdf", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "liquidacion-V-")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/trips/9/settlement.pdf", nil).Code)
}
