package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/medsync/medsync/internal/domain/atencion"
)

const sheetName = "Atenciones"

var excelHeaders = []string{
	"RUT", "Paciente", "Email", "Telefono", "Fecha Cita", "Especialidad",
	"Profesional", "Estado Cita", "Prevision", "Bono", "Monto Bono",
	"Copago", "Bonificado", "Factura", "Monto Neto", "IVA", "Monto Total",
	"Pagado", "Estado Pago", "Fecha Pago",
}

// RenderExcel writes the report as a single-sheet workbook with a frozen
// header row and a totals row at the end.
func RenderExcel(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(sheet)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDDDDD"}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, h := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(excelHeaders), 1)
	if err := f.SetCellStyle(sheetName, "A1", endHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	for rowIdx, a := range r.Rows {
		row := rowIdx + 2
		for colIdx, v := range excelRow(a) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	totalsRow := len(r.Rows) + 2
	totals := map[int]interface{}{
		1:  fmt.Sprintf("Totales (%d)", r.Totals.Count),
		12: r.Totals.Copago,
		13: r.Totals.MontoBonificado,
		17: r.Totals.MontoTotal,
		18: r.Totals.MontoPagado,
	}
	for col, v := range totals {
		cell, _ := excelize.CoordinatesToCellName(col, totalsRow)
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return nil, fmt.Errorf("write totals: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render excel: %w", err)
	}
	return buf.Bytes(), nil
}

// excelRow flattens one record into the header order. Nil pointers become
// empty cells rather than zeros.
func excelRow(a *atencion.Atencion) []interface{} {
	return []interface{}{
		cellStr(a.PacienteRut),
		a.PacienteNombre,
		cellStr(a.PacienteEmail),
		cellStr(a.PacienteTelefono),
		cellDate(a.FechaCita),
		cellStr(a.Especialidad),
		cellStr(a.Profesional),
		cellStr(a.EstadoCita),
		cellStr(a.Prevision),
		cellStr(a.BonoNumero),
		cellFloat(a.BonoMonto),
		cellFloat(a.Copago),
		cellFloat(a.MontoBonificado),
		cellStr(a.FacturaNumero),
		cellFloat(a.MontoNeto),
		cellFloat(a.MontoIVA),
		cellFloat(a.MontoTotal),
		cellFloat(a.MontoPagado),
		cellStr(a.EstadoPago),
		cellDate(a.FechaPago),
	}
}

func cellStr(s *string) interface{} {
	if s == nil {
		return ""
	}
	return *s
}

func cellFloat(f *float64) interface{} {
	if f == nil {
		return ""
	}
	return *f
}

func cellDate(t *time.Time) interface{} {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
