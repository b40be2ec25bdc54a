package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiendafacil/ledger_backend/ledger"
	"github.com/tiendafacil/ledger_backend/models"
)

func TestClientStatement(t *testing.T) {
	fecha := models.NewTimestamp(time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC))
	events := []models.TransactionEvent{
		{
			ID: "e1", ClienteId: "cli-1", Tipo: models.EventTypeVenta, Fecha: fecha,
			Producto: "Blusa", Cantidad: decimal.NewFromInt(1),
			CostoUnitario: decimal.NewFromInt(80), GananciaUnitaria: decimal.NewFromInt(20),
			TotalVenta: decimal.NewFromInt(100),
		},
		{
			ID: "e2", ClienteId: "cli-1", Tipo: models.EventTypePago,
			Fecha:     models.NewTimestamp(time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC)),
			MontoPago: decimal.NewFromInt(40),
		},
	}
	calc := ledger.CalculateClientDebt(events)

	f, err := ClientStatement("Ana", calc)
	if err != nil {
		t.Fatalf("ClientStatement: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue(statementSheet, "B1")
	if err != nil || got != "Ana" {
		t.Fatalf("B1 = %q err=%v, want Ana", got, err)
	}
	if got, _ := f.GetCellValue(statementSheet, "B5"); got != "Venta: Blusa" {
		t.Errorf("B5 = %q, want Venta: Blusa", got)
	}
	if got, _ := f.GetCellValue(statementSheet, "C5"); got != "100" {
		t.Errorf("C5 = %q, want 100", got)
	}
	if got, _ := f.GetCellValue(statementSheet, "D6"); got != "40" {
		t.Errorf("D6 = %q, want 40", got)
	}
	if got, _ := f.GetCellValue(statementSheet, "E6"); got != "60" {
		t.Errorf("E6 = %q, want 60", got)
	}
	if got, _ := f.GetCellValue(statementSheet, "E8"); got != "60" {
		t.Errorf("totals row E8 = %q, want 60", got)
	}
}
