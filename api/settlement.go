package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/warp/freight-engine/freight"
)

// SettlementPDF renders the trip settlement sheet: trip data, money figures
// and the expense lines.
// GET /api/trips/{id}/settlement.pdf
func (h *Handler) SettlementPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	d, err := h.Trips.Trip(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doc, err := renderSettlement(d, h.Clock.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="liquidacion-%s.pdf"`, d.Number))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func renderSettlement(d freight.TripDetail, printedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Liquidación de viaje "+d.Number, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr("LIQUIDACIÓN DE VIAJE"))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	line := func(label, value string) {
		pdf.Cell(45, 7, tr(label))
		pdf.Cell(0, 7, tr(value))
		pdf.Ln(7)
	}
	line("Número:", d.Number)
	line("Estado:", string(d.Status))
	line("Salida:", d.DepartureAt.Format("2006-01-02 15:04"))
	if d.ArrivalAt != nil {
		line("Llegada:", d.ArrivalAt.Format("2006-01-02 15:04"))
	}
	line("Recorrido:", d.Origin+" - "+d.Destination)
	if d.Vehicle != nil {
		line("Vehículo:", d.Vehicle.Plate+" "+d.Vehicle.Make)
	}
	if d.Driver != nil {
		line("Conductor:", d.Driver.FullName())
	}
	if d.Client != nil {
		line("Cliente:", d.Client.LegalName)
	}
	line("Volumen:", d.Volume.StringFixed(2))
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Gastos")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(30, 7, "Fecha", "1", 0, "", false, 0, "")
	pdf.CellFormat(35, 7, "Tipo", "1", 0, "", false, 0, "")
	pdf.CellFormat(90, 7, tr("Descripción"), "1", 0, "", false, 0, "")
	pdf.CellFormat(35, 7, "Monto", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if len(d.Expenses) == 0 {
		pdf.CellFormat(190, 7, "Sin gastos registrados", "1", 1, "C", false, 0, "")
	}
	for _, e := range d.Expenses {
		pdf.CellFormat(30, 7, e.Date.Format("2006-01-02"), "1", 0, "", false, 0, "")
		pdf.CellFormat(35, 7, tr(e.Type), "1", 0, "", false, 0, "")
		pdf.CellFormat(90, 7, tr(e.Description), "1", 0, "", false, 0, "")
		pdf.CellFormat(35, 7, money(e.Amount), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 11)
	total := func(label string, v decimal.Decimal) {
		pdf.CellFormat(155, 7, tr(label), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, money(v), "", 1, "R", false, 0, "")
	}
	total("Ingreso:", d.Revenue)
	total("Pago al conductor:", d.DriverPayment)
	total("Ganancia bruta:", d.GrossProfit())
	total("Total gastos:", d.TotalExpenses())
	pdf.SetFont("Helvetica", "B", 11)
	total("Ganancia neta:", d.NetProfit())
	pdf.SetFont("Helvetica", "", 11)
	total("Eficiencia por unidad:", d.Efficiency())

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.Cell(0, 6, "Emitido: "+printedAt.Format("2006-01-02 15:04"))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render settlement: %w", err)
	}
	return buf.Bytes(), nil
}

func money(v decimal.Decimal) string {
	return "$ " + v.StringFixed(2)
}
