package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/medsync/medsync/internal/domain/atencion"
)

var pdfColumns = []struct {
	title string
	width float64
}{
	{"RUT", 28},
	{"Paciente", 50},
	{"Fecha Cita", 26},
	{"Especialidad", 32},
	{"Bono", 22},
	{"Factura", 22},
	{"Monto Total", 26},
	{"Pagado", 26},
	{"Estado Pago", 26},
}

// RenderPDF lays the report out as a landscape table, one row per record,
// with a totals line at the bottom.
func RenderPDF(r *Report) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Reporte de Atenciones", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Reporte de Atenciones", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generado: "+r.GeneratedAt.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	if r.Filter.StartDate != nil && r.Filter.EndDate != nil {
		rangeLabel := fmt.Sprintf("Periodo: %s a %s",
			r.Filter.StartDate.Format("2006-01-02"), r.Filter.EndDate.Format("2006-01-02"))
		pdf.CellFormat(0, 6, rangeLabel, "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range pdfColumns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, a := range r.Rows {
		cells := pdfRow(a)
		for i, col := range pdfColumns {
			pdf.CellFormat(col.width, 6, cells[i], "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 8)
	label := fmt.Sprintf("Totales (%d atenciones)", r.Totals.Count)
	labelWidth := pdfColumns[0].width + pdfColumns[1].width + pdfColumns[2].width +
		pdfColumns[3].width + pdfColumns[4].width + pdfColumns[5].width
	pdf.CellFormat(labelWidth, 7, label, "1", 0, "R", false, 0, "")
	pdf.CellFormat(pdfColumns[6].width, 7, money(&r.Totals.MontoTotal), "1", 0, "L", false, 0, "")
	pdf.CellFormat(pdfColumns[7].width, 7, money(&r.Totals.MontoPagado), "1", 0, "L", false, 0, "")
	pdf.CellFormat(pdfColumns[8].width, 7, "", "1", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func pdfRow(a *atencion.Atencion) []string {
	return []string{
		str(a.PacienteRut),
		a.PacienteNombre,
		date(a.FechaCita),
		str(a.Especialidad),
		str(a.BonoNumero),
		str(a.FacturaNumero),
		money(a.MontoTotal),
		money(a.MontoPagado),
		str(a.EstadoPago),
	}
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func money(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("$%.0f", *f)
}
