/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the freight domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND VOLUME:
  decimal.Decimal marshals as a JSON string ("1250.50") and accepts either a
  string or a number on input. Never float64.

TIMES:
  RFC 3339. Date-only fields (license expiry, expense date) accept
  "2006-01-02" through the Date type.

VALIDATION:
  Validation is done by the engine, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/freight-engine/freight"
)

// Date accepts both "2006-01-02" and RFC 3339 on input and writes
// "2006-01-02".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	d.Time = t
	return nil
}

func datePtr(d *Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func toDate(t *time.Time) *Date {
	if t == nil || t.IsZero() {
		return nil
	}
	return &Date{*t}
}

// =============================================================================
// VEHICLE
// =============================================================================

type VehicleDTO struct {
	ID                    int64                 `json:"id"`
	Plate                 string                `json:"plate"`
	Make                  string                `json:"make"`
	Model                 string                `json:"model,omitempty"`
	FuelCapacity          decimal.Decimal       `json:"fuel_capacity"`
	Year                  int                   `json:"year,omitempty"`
	LastMaintenance       *Date                 `json:"last_maintenance,omitempty"`
	InsuranceExpiry       *Date                 `json:"insurance_expiry,omitempty"`
	CoverageExpiry        *Date                 `json:"coverage_expiry,omitempty"`
	Status                freight.VehicleStatus `json:"status"`
	Notes                 string                `json:"notes,omitempty"`
	InsuranceExpiringSoon bool                  `json:"insurance_expiring_soon"`
	CoverageExpiringSoon  bool                  `json:"coverage_expiring_soon"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

type VehicleRequest struct {
	Plate           string                `json:"plate"`
	Make            string                `json:"make"`
	Model           string                `json:"model"`
	FuelCapacity    decimal.Decimal       `json:"fuel_capacity"`
	Year            int                   `json:"year"`
	LastMaintenance *Date                 `json:"last_maintenance"`
	InsuranceExpiry *Date                 `json:"insurance_expiry"`
	CoverageExpiry  *Date                 `json:"coverage_expiry"`
	Status          freight.VehicleStatus `json:"status"`
	Notes           string                `json:"notes"`
}

func (r VehicleRequest) toVehicle(id int64) freight.Vehicle {
	return freight.Vehicle{
		ID:              id,
		Plate:           r.Plate,
		Make:            r.Make,
		Model:           r.Model,
		FuelCapacity:    r.FuelCapacity,
		Year:            r.Year,
		LastMaintenance: datePtr(r.LastMaintenance),
		InsuranceExpiry: datePtr(r.InsuranceExpiry),
		CoverageExpiry:  datePtr(r.CoverageExpiry),
		Status:          r.Status,
		Notes:           r.Notes,
	}
}

func toVehicleDTO(v freight.Vehicle, now time.Time) VehicleDTO {
	return VehicleDTO{
		ID:                    v.ID,
		Plate:                 v.Plate,
		Make:                  v.Make,
		Model:                 v.Model,
		FuelCapacity:          v.FuelCapacity,
		Year:                  v.Year,
		LastMaintenance:       toDate(v.LastMaintenance),
		InsuranceExpiry:       toDate(v.InsuranceExpiry),
		CoverageExpiry:        toDate(v.CoverageExpiry),
		Status:                v.Status,
		Notes:                 v.Notes,
		InsuranceExpiringSoon: v.InsuranceExpiringSoon(now),
		CoverageExpiringSoon:  v.CoverageExpiringSoon(now),
		CreatedAt:             v.CreatedAt,
		UpdatedAt:             v.UpdatedAt,
	}
}

// =============================================================================
// DRIVER
// =============================================================================

type DriverDTO struct {
	ID                  int64                `json:"id"`
	Document            string               `json:"document"`
	FirstName           string               `json:"first_name"`
	LastName            string               `json:"last_name"`
	FullName            string               `json:"full_name"`
	Phone               string               `json:"phone,omitempty"`
	Email               string               `json:"email,omitempty"`
	LicenseNumber       string               `json:"license_number"`
	LicenseExpiry       *Date                `json:"license_expiry"`
	LicenseExpiringSoon bool                 `json:"license_expiring_soon"`
	Photo               []byte               `json:"photo,omitempty"`
	Balance             decimal.Decimal      `json:"balance"`
	Status              freight.DriverStatus `json:"status"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// DriverRequest has no balance: only the ledger moves it.
type DriverRequest struct {
	Document      string               `json:"document"`
	FirstName     string               `json:"first_name"`
	LastName      string               `json:"last_name"`
	Phone         string               `json:"phone"`
	Email         string               `json:"email"`
	LicenseNumber string               `json:"license_number"`
	LicenseExpiry Date                 `json:"license_expiry"`
	Photo         []byte               `json:"photo"`
	Status        freight.DriverStatus `json:"status"`
}

func (r DriverRequest) toDriver(id int64) freight.Driver {
	return freight.Driver{
		ID:            id,
		Document:      r.Document,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Phone:         r.Phone,
		Email:         r.Email,
		LicenseNumber: r.LicenseNumber,
		LicenseExpiry: r.LicenseExpiry.Time,
		Photo:         r.Photo,
		Status:        r.Status,
	}
}

func toDriverDTO(d freight.Driver, now time.Time) DriverDTO {
	return DriverDTO{
		ID:                  d.ID,
		Document:            d.Document,
		FirstName:           d.FirstName,
		LastName:            d.LastName,
		FullName:            d.FullName(),
		Phone:               d.Phone,
		Email:               d.Email,
		LicenseNumber:       d.LicenseNumber,
		LicenseExpiry:       toDate(&d.LicenseExpiry),
		LicenseExpiringSoon: d.LicenseExpiringSoon(now),
		Photo:               d.Photo,
		Balance:             d.Balance,
		Status:              d.Status,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

type ClientDTO struct {
	ID        int64                `json:"id"`
	LegalName string               `json:"legal_name"`
	TaxID     string               `json:"tax_id,omitempty"`
	Address   string               `json:"address,omitempty"`
	Phone     string               `json:"phone,omitempty"`
	Email     string               `json:"email,omitempty"`
	Contact   string               `json:"contact,omitempty"`
	Status    freight.ClientStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type ClientRequest struct {
	LegalName string               `json:"legal_name"`
	TaxID     string               `json:"tax_id"`
	Address   string               `json:"address"`
	Phone     string               `json:"phone"`
	Email     string               `json:"email"`
	Contact   string               `json:"contact"`
	Status    freight.ClientStatus `json:"status"`
}

func (r ClientRequest) toClient(id int64) freight.Client {
	return freight.Client{
		ID:        id,
		LegalName: r.LegalName,
		TaxID:     r.TaxID,
		Address:   r.Address,
		Phone:     r.Phone,
		Email:     r.Email,
		Contact:   r.Contact,
		Status:    r.Status,
	}
}

func toClientDTO(c freight.Client) ClientDTO {
	return ClientDTO{
		ID:        c.ID,
		LegalName: c.LegalName,
		TaxID:     c.TaxID,
		Address:   c.Address,
		Phone:     c.Phone,
		Email:     c.Email,
		Contact:   c.Contact,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// =============================================================================
// TRIP & EXPENSE
// =============================================================================

type TripDTO struct {
	ID            int64              `json:"id"`
	Number        string             `json:"number"`
	VehicleID     int64              `json:"vehicle_id"`
	DriverID      int64              `json:"driver_id"`
	ClientID      int64              `json:"client_id"`
	VehiclePlate  string             `json:"vehicle_plate,omitempty"`
	DriverName    string             `json:"driver_name,omitempty"`
	ClientName    string             `json:"client_name,omitempty"`
	DepartureAt   time.Time          `json:"departure_at"`
	ArrivalAt     *time.Time         `json:"arrival_at,omitempty"`
	Origin        string             `json:"origin"`
	Destination   string             `json:"destination"`
	Volume        decimal.Decimal    `json:"volume"`
	Revenue       decimal.Decimal    `json:"revenue"`
	DriverPayment decimal.Decimal    `json:"driver_payment"`
	Status        freight.TripStatus `json:"status"`
	Notes         string             `json:"notes,omitempty"`

	GrossProfit   decimal.Decimal `json:"gross_profit"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetProfit     decimal.Decimal `json:"net_profit"`
	Efficiency    decimal.Decimal `json:"efficiency"`

	Expenses   []ExpenseDTO         `json:"expenses"`
	NextStatus []freight.TripStatus `json:"next_status"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

type TripRequest struct {
	Number        string             `json:"number"`
	VehicleID     int64              `json:"vehicle_id"`
	DriverID      int64              `json:"driver_id"`
	ClientID      int64              `json:"client_id"`
	DepartureAt   time.Time          `json:"departure_at"`
	ArrivalAt     *time.Time         `json:"arrival_at"`
	Origin        string             `json:"origin"`
	Destination   string             `json:"destination"`
	Volume        decimal.Decimal    `json:"volume"`
	Revenue       decimal.Decimal    `json:"revenue"`
	DriverPayment decimal.Decimal    `json:"driver_payment"`
	Status        freight.TripStatus `json:"status"`
	Notes         string             `json:"notes"`
}

func (r TripRequest) toDraft(id int64) freight.TripDraft {
	return freight.TripDraft{
		ID:            id,
		Number:        r.Number,
		VehicleID:     r.VehicleID,
		DriverID:      r.DriverID,
		ClientID:      r.ClientID,
		DepartureAt:   r.DepartureAt,
		ArrivalAt:     r.ArrivalAt,
		Origin:        r.Origin,
		Destination:   r.Destination,
		Volume:        r.Volume,
		Revenue:       r.Revenue,
		DriverPayment: r.DriverPayment,
		Status:        r.Status,
		Notes:         r.Notes,
	}
}

func toTripDTO(d freight.TripDetail) TripDTO {
	dto := TripDTO{
		ID:            d.ID,
		Number:        d.Number,
		VehicleID:     d.VehicleID,
		DriverID:      d.DriverID,
		ClientID:      d.ClientID,
		DepartureAt:   d.DepartureAt,
		ArrivalAt:     d.ArrivalAt,
		Origin:        d.Origin,
		Destination:   d.Destination,
		Volume:        d.Volume,
		Revenue:       d.Revenue,
		DriverPayment: d.DriverPayment,
		Status:        d.Status,
		Notes:         d.Notes,
		GrossProfit:   d.GrossProfit(),
		TotalExpenses: d.TotalExpenses(),
		NetProfit:     d.NetProfit(),
		Efficiency:    d.Efficiency(),
		Expenses:      toExpenseDTOs(d.Expenses),
		NextStatus:    freight.Transitions(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Vehicle != nil {
		dto.VehiclePlate = d.Vehicle.Plate
	}
	if d.Driver != nil {
		dto.DriverName = d.Driver.FullName()
	}
	if d.Client != nil {
		dto.ClientName = d.Client.LegalName
	}
	return dto
}

func toTripDTOs(details []freight.TripDetail) []TripDTO {
	out := make([]TripDTO, len(details))
	for i, d := range details {
		out[i] = toTripDTO(d)
	}
	return out
}

type ExpenseDTO struct {
	ID          int64           `json:"id"`
	TripID      int64           `json:"trip_id"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        time.Time       `json:"date"`
	HasReceipt  bool            `json:"has_receipt"`
}

type ExpenseRequest struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        Date            `json:"date"`
	Receipt     []byte          `json:"receipt"`
}

func (r ExpenseRequest) toDraft() freight.ExpenseDraft {
	return freight.ExpenseDraft{
		Type:        r.Type,
		Description: r.Description,
		Amount:      r.Amount,
		Date:        r.Date.Time,
		Receipt:     r.Receipt,
	}
}

func toExpenseDTO(e freight.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:          e.ID,
		TripID:      e.TripID,
		Type:        e.Type,
		Description: e.Description,
		Amount:      e.Amount,
		Date:        e.Date,
		HasReceipt:  len(e.Receipt) > 0,
	}
}

func toExpenseDTOs(expenses []freight.Expense) []ExpenseDTO {
	out := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		out[i] = toExpenseDTO(e)
	}
	return out
}

// =============================================================================
// LEDGER
// =============================================================================

type MovementDTO struct {
	ID          int64                `json:"id"`
	DriverID    int64                `json:"driver_id"`
	TripID      *int64               `json:"trip_id,omitempty"`
	Type        freight.MovementType `json:"type"`
	Amount      decimal.Decimal      `json:"amount"`
	Description string               `json:"description"`
	At          time.Time            `json:"at"`
	ReversalOf  *int64               `json:"reversal_of,omitempty"`
	Running     *decimal.Decimal     `json:"running_balance,omitempty"`
}

type MovementRequest struct {
	TripID      *int64               `json:"trip_id"`
	Type        freight.MovementType `json:"type"`
	Amount      decimal.Decimal      `json:"amount"`
	Description string               `json:"description"`
	At          time.Time            `json:"at"`
}

type ReverseRequest struct {
	Reason string `json:"reason"`
}

func toMovementDTO(m freight.Movement) MovementDTO {
	return MovementDTO{
		ID:          m.ID,
		DriverID:    m.DriverID,
		TripID:      m.TripID,
		Type:        m.Type,
		Amount:      m.Amount,
		Description: m.Description,
		At:          m.At,
		ReversalOf:  m.ReversalOf,
	}
}

type BalanceDTO struct {
	DriverID int64           `json:"driver_id"`
	Balance  decimal.Decimal `json:"balance"`
	Cached   decimal.Decimal `json:"cached"`
	Drifted  bool            `json:"drifted"`
}

type ReconciliationDTO struct {
	DriverID int64           `json:"driver_id"`
	Cached   decimal.Decimal `json:"cached"`
	Computed decimal.Decimal `json:"computed"`
	Drift    decimal.Decimal `json:"drift"`
}

func toReconciliationDTOs(recs []freight.Reconciliation) []ReconciliationDTO {
	out := make([]ReconciliationDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, ReconciliationDTO{
			DriverID: r.DriverID,
			Cached:   r.Cached,
			Computed: r.Computed,
			Drift:    r.Drift(),
		})
	}
	return out
}

// =============================================================================
// DASHBOARD
// =============================================================================

type DashboardDTO struct {
	At                time.Time       `json:"at"`
	MonthlyNetProfit  decimal.Decimal `json:"monthly_net_profit"`
	InProgressTrips   int             `json:"in_progress_trips"`
	TodayVolume       decimal.Decimal `json:"today_volume"`
	RecentTrips       []TripDTO       `json:"recent_trips"`
	ExpiringDocuments ExpiringDTO     `json:"expiring_documents"`
}

type ExpiringDTO struct {
	Vehicles []VehicleAlertDTO `json:"vehicles"`
	Drivers  []DriverAlertDTO  `json:"drivers"`
}

type VehicleAlertDTO struct {
	VehicleID int64                `json:"vehicle_id"`
	Plate     string               `json:"plate"`
	Document  freight.DocumentKind `json:"document"`
	Expiry    *Date                `json:"expiry"`
	Expired   bool                 `json:"expired"`
}

type DriverAlertDTO struct {
	DriverID int64                `json:"driver_id"`
	Name     string               `json:"name"`
	Document freight.DocumentKind `json:"document"`
	Expiry   *Date                `json:"expiry"`
	Expired  bool                 `json:"expired"`
}

func toExpiringDTO(a freight.DocumentAlerts) ExpiringDTO {
	out := ExpiringDTO{
		Vehicles: make([]VehicleAlertDTO, 0, len(a.Vehicles)),
		Drivers:  make([]DriverAlertDTO, 0, len(a.Drivers)),
	}
	for _, v := range a.Vehicles {
		expiry := v.Vehicle.InsuranceExpiry
		if v.Document == freight.DocCoverage {
			expiry = v.Vehicle.CoverageExpiry
		}
		out.Vehicles = append(out.Vehicles, VehicleAlertDTO{
			VehicleID: v.Vehicle.ID,
			Plate:     v.Vehicle.Plate,
			Document:  v.Document,
			Expiry:    toDate(expiry),
			Expired:   v.Expired,
		})
	}
	for _, d := range a.Drivers {
		out.Drivers = append(out.Drivers, DriverAlertDTO{
			DriverID: d.Driver.ID,
			Name:     d.Driver.FullName(),
			Document: d.Document,
			Expiry:   toDate(&d.Driver.LicenseExpiry),
			Expired:  d.Expired,
		})
	}
	return out
}

func toDashboardDTO(d freight.DashboardSummary) DashboardDTO {
	return DashboardDTO{
		At:                d.At,
		MonthlyNetProfit:  d.MonthlyNetProfit,
		InProgressTrips:   d.InProgressTrips,
		TodayVolume:       d.TodayVolume,
		RecentTrips:       toTripDTOs(d.RecentTrips),
		ExpiringDocuments: toExpiringDTO(d.ExpiringDocuments),
	}
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the error body of every failed request.
type ErrorResponse struct {
	Error      string                   `json:"error"`
	Kind       freight.Kind             `json:"kind,omitempty"`
	Details    string                   `json:"details,omitempty"`
	Violations []freight.FieldViolation `json:"violations,omitempty"`
}
