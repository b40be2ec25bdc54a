// Package reports renders ledger data into downloadable files.
package reports

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tiendafacil/ledger_backend/ledger"
	"github.com/tiendafacil/ledger_backend/models"
)

const statementSheet = "Estado de cuenta"

// ClientStatement renders a client's annotated event log as an xlsx
// workbook: one row per event with cargo/abono columns and the running
// balance, plus a totals footer.
func ClientStatement(clientName string, calc ledger.DebtCalculation) (*excelize.File, error) {
	f := excelize.NewFile()
	idx, err := f.NewSheet(statementSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	if err := f.SetCellValue(statementSheet, "A1", "Cliente"); err != nil {
		return nil, err
	}
	f.SetCellValue(statementSheet, "B1", clientName)
	f.SetCellValue(statementSheet, "A2", "Generado")
	f.SetCellValue(statementSheet, "B2", time.Now().Format("2006-01-02 15:04"))

	headers := []string{"Fecha", "Concepto", "Cargo", "Abono", "Saldo"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 4)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(statementSheet, cell, h)
		f.SetCellStyle(statementSheet, cell, cell, bold)
	}

	row := 5
	for _, ev := range calc.Events {
		f.SetCellValue(statementSheet, fmt.Sprintf("A%d", row), ev.Fecha.Time().Format("2006-01-02"))
		f.SetCellValue(statementSheet, fmt.Sprintf("B%d", row), concepto(ev.TransactionEvent))
		switch ev.Tipo {
		case models.EventTypeVenta:
			cargo, _ := ev.TotalVenta.Float64()
			f.SetCellValue(statementSheet, fmt.Sprintf("C%d", row), cargo)
		case models.EventTypePago:
			abono, _ := ev.MontoPago.Float64()
			f.SetCellValue(statementSheet, fmt.Sprintf("D%d", row), abono)
		}
		saldo, _ := ev.RunningTotal.Float64()
		f.SetCellValue(statementSheet, fmt.Sprintf("E%d", row), saldo)
		row++
	}

	row++
	f.SetCellValue(statementSheet, fmt.Sprintf("A%d", row), "Deuda total")
	f.SetCellStyle(statementSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), bold)
	debt, _ := calc.TotalDebt.Float64()
	f.SetCellValue(statementSheet, fmt.Sprintf("E%d", row), debt)
	if calc.FavorBalance.IsPositive() {
		row++
		f.SetCellValue(statementSheet, fmt.Sprintf("A%d", row), "Saldo a favor")
		f.SetCellStyle(statementSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), bold)
		favor, _ := calc.FavorBalance.Float64()
		f.SetCellValue(statementSheet, fmt.Sprintf("E%d", row), favor)
	}

	if err := f.SetColWidth(statementSheet, "A", "E", 16); err != nil {
		return nil, err
	}
	return f, nil
}

func concepto(ev models.TransactionEvent) string {
	switch ev.Tipo {
	case models.EventTypeVenta:
		if ev.ProductoColor != "" {
			return fmt.Sprintf("Venta: %s (%s)", ev.Producto, ev.ProductoColor)
		}
		return "Venta: " + ev.Producto
	case models.EventTypePago:
		return "Pago"
	}
	return string(ev.Tipo)
}
