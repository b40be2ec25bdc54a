package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tiendafacil/ledger_backend/models"
)

func venta(fecha time.Time, cantidad, costo, ganancia int64) models.TransactionEvent {
	c := decimal.NewFromInt(cantidad)
	cu := decimal.NewFromInt(costo)
	gu := decimal.NewFromInt(ganancia)
	return models.TransactionEvent{
		ClienteId:        "cliente-1",
		Tipo:             models.EventTypeVenta,
		Fecha:            models.NewTimestamp(fecha),
		Creado:           models.NewTimestamp(fecha),
		Producto:         "producto-1",
		Cantidad:         c,
		CostoUnitario:    cu,
		GananciaUnitaria: gu,
		TotalVenta:       c.Mul(cu.Add(gu)),
	}
}

func pago(fecha time.Time, monto int64) models.TransactionEvent {
	return models.TransactionEvent{
		ClienteId: "cliente-1",
		Tipo:      models.EventTypePago,
		Fecha:     models.NewTimestamp(fecha),
		Creado:    models.NewTimestamp(fecha),
		MontoPago: decimal.NewFromInt(monto),
	}
}

func day(n int) time.Time {
	return time.Date(2026, 3, n, 12, 0, 0, 0, time.UTC)
}

func TestCalculateClientDebt_SaleThenExactPayment(t *testing.T) {
	calc := CalculateClientDebt([]models.TransactionEvent{
		venta(day(1), 1, 60, 40), // 100
		pago(day(2), 100),
	})

	if !calc.TotalDebt.IsZero() {
		t.Fatalf("expected totalDebt 0, got %s", calc.TotalDebt)
	}
	if !calc.FavorBalance.IsZero() {
		t.Fatalf("expected favorBalance 0, got %s", calc.FavorBalance)
	}
	if len(calc.ZeroBalancePoints) != 1 || calc.ZeroBalancePoints[0] != 1 {
		t.Fatalf("expected zero balance point at index 1, got %v", calc.ZeroBalancePoints)
	}
}

func TestCalculateClientDebt_OverpaymentBecomesFavor(t *testing.T) {
	calc := CalculateClientDebt([]models.TransactionEvent{
		venta(day(1), 1, 60, 40), // 100
		pago(day(2), 150),
	})

	if !calc.TotalDebt.IsZero() {
		t.Fatalf("expected totalDebt 0, got %s", calc.TotalDebt)
	}
	if !calc.FavorBalance.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected favorBalance 50, got %s", calc.FavorBalance)
	}
	if len(calc.ZeroBalancePoints) != 0 {
		t.Fatalf("expected no zero balance points, got %v", calc.ZeroBalancePoints)
	}
}

func TestCalculateClientDebt_EmptyList(t *testing.T) {
	calc := CalculateClientDebt(nil)
	if !calc.TotalDebt.IsZero() || !calc.FavorBalance.IsZero() {
		t.Fatalf("expected zero balances, got debt=%s favor=%s", calc.TotalDebt, calc.FavorBalance)
	}
	if len(calc.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(calc.Events))
	}
}

func TestCalculateClientDebt_OrdersByFechaAndSkipsDeleted(t *testing.T) {
	deleted := venta(day(1), 5, 100, 0)
	deleted.Borrado = true

	// Input deliberately out of order.
	calc := CalculateClientDebt([]models.TransactionEvent{
		pago(day(3), 30),
		deleted,
		venta(day(2), 1, 50, 0), // 50
		venta(day(1), 1, 20, 0), // 20
	})

	if len(calc.Events) != 3 {
		t.Fatalf("expected 3 events after filtering, got %d", len(calc.Events))
	}
	wantRunning := []int64{20, 70, 40}
	for i, w := range wantRunning {
		if !calc.Events[i].RunningTotal.Equal(decimal.NewFromInt(w)) {
			t.Fatalf("event %d: expected running total %d, got %s", i, w, calc.Events[i].RunningTotal)
		}
	}
	if !calc.TotalDebt.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected totalDebt 40, got %s", calc.TotalDebt)
	}
}

func TestCalculateClientDebt_FechaTiesBreakOnCreado(t *testing.T) {
	first := venta(day(1), 1, 10, 0)
	second := pago(day(1), 10)
	second.Creado = models.NewTimestamp(day(1).Add(time.Minute))

	calc := CalculateClientDebt([]models.TransactionEvent{second, first})
	if !calc.Events[0].IsVenta() {
		t.Fatalf("expected the sale to be ordered first on fecha tie")
	}
	if len(calc.ZeroBalancePoints) != 1 || calc.ZeroBalancePoints[0] != 1 {
		t.Fatalf("expected zero balance point at index 1, got %v", calc.ZeroBalancePoints)
	}
}

func TestCalculateClientDebt_SignedSumAndExclusivity(t *testing.T) {
	cases := [][]models.TransactionEvent{
		{venta(day(1), 2, 30, 20)},
		{venta(day(1), 2, 30, 20), pago(day(2), 100)},
		{venta(day(1), 2, 30, 20), pago(day(2), 175)},
		{pago(day(1), 40)},
		{venta(day(1), 1, 10, 0), pago(day(2), 5), venta(day(3), 3, 5, 5), pago(day(4), 20)},
	}

	for ci, events := range cases {
		calc := CalculateClientDebt(events)

		signed := decimal.Zero
		for _, e := range events {
			signed = signed.Add(e.SignedAmount())
		}
		if !calc.TotalDebt.Sub(calc.FavorBalance).Equal(signed) {
			t.Fatalf("case %d: totalDebt-favor=%s, want signed sum %s",
				ci, calc.TotalDebt.Sub(calc.FavorBalance), signed)
		}
		if calc.TotalDebt.IsPositive() && calc.FavorBalance.IsPositive() {
			t.Fatalf("case %d: totalDebt and favorBalance are both positive", ci)
		}

		// Same input, same output.
		again := CalculateClientDebt(events)
		if !again.TotalDebt.Equal(calc.TotalDebt) || !again.FavorBalance.Equal(calc.FavorBalance) {
			t.Fatalf("case %d: recalculation changed the result", ci)
		}
	}
}

func TestSplitPayment(t *testing.T) {
	cases := []struct {
		debt, payment      int64
		wantDebt, wantFav  int64
		wantOver, wantZero bool
	}{
		{100, 60, 60, 0, false, false},
		{100, 100, 100, 0, false, true},
		{100, 150, 100, 50, true, true},
		{0, 50, 0, 50, true, false},
	}
	for _, tc := range cases {
		got := SplitPayment(decimal.NewFromInt(tc.debt), decimal.NewFromInt(tc.payment))
		if !got.DebtPayment.Equal(decimal.NewFromInt(tc.wantDebt)) {
			t.Fatalf("SplitPayment(%d,%d) debtPayment=%s, want %d", tc.debt, tc.payment, got.DebtPayment, tc.wantDebt)
		}
		if !got.FavorPayment.Equal(decimal.NewFromInt(tc.wantFav)) {
			t.Fatalf("SplitPayment(%d,%d) favorPayment=%s, want %d", tc.debt, tc.payment, got.FavorPayment, tc.wantFav)
		}
		if got.IsOverpayment != tc.wantOver {
			t.Fatalf("SplitPayment(%d,%d) isOverpayment=%v, want %v", tc.debt, tc.payment, got.IsOverpayment, tc.wantOver)
		}
		if got.ZeroBalanceReached != tc.wantZero {
			t.Fatalf("SplitPayment(%d,%d) zeroBalanceReached=%v, want %v", tc.debt, tc.payment, got.ZeroBalanceReached, tc.wantZero)
		}
	}
}

func TestSplitPayment_Conservation(t *testing.T) {
	for d := int64(0); d <= 200; d += 25 {
		for p := int64(0); p <= 200; p += 25 {
			got := SplitPayment(decimal.NewFromInt(d), decimal.NewFromInt(p))
			if !got.DebtPayment.Add(got.FavorPayment).Equal(decimal.NewFromInt(p)) {
				t.Fatalf("SplitPayment(%d,%d): debt+favor=%s, want %d",
					d, p, got.DebtPayment.Add(got.FavorPayment), p)
			}
		}
	}
}

func TestApplyPaymentWithVisualization(t *testing.T) {
	partial := ApplyPaymentWithVisualization(decimal.NewFromInt(100), decimal.NewFromInt(60))
	if len(partial) != 1 || partial[0].Kind != DisplayPayment {
		t.Fatalf("partial payment: expected single payment row, got %+v", partial)
	}

	exact := ApplyPaymentWithVisualization(decimal.NewFromInt(100), decimal.NewFromInt(100))
	if len(exact) != 2 || exact[1].Kind != DisplayZeroSeparator {
		t.Fatalf("exact payment: expected payment + zero separator, got %+v", exact)
	}

	over := ApplyPaymentWithVisualization(decimal.NewFromInt(100), decimal.NewFromInt(150))
	if len(over) != 3 || over[2].Kind != DisplayFavor {
		t.Fatalf("overpayment: expected payment + separator + favor, got %+v", over)
	}
	if !over[2].Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("overpayment: favor amount=%s, want 50", over[2].Amount)
	}
}

func TestCalculateDebtImpact(t *testing.T) {
	sale := venta(day(1), 2, 30, 20) // 100
	got := CalculateDebtImpact(decimal.NewFromInt(40), sale)
	if !got.NewDebt.Equal(decimal.NewFromInt(140)) || !got.DebtChange.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("sale impact: newDebt=%s change=%s", got.NewDebt, got.DebtChange)
	}
	if got.ReachesZero || got.CreatesOverpayment {
		t.Fatalf("sale impact should not reach zero or overpay: %+v", got)
	}

	got = CalculateDebtImpact(decimal.NewFromInt(100), pago(day(1), 60))
	if !got.NewDebt.Equal(decimal.NewFromInt(40)) || got.ReachesZero || got.CreatesOverpayment {
		t.Fatalf("partial payment impact: %+v", got)
	}

	got = CalculateDebtImpact(decimal.NewFromInt(100), pago(day(1), 100))
	if !got.NewDebt.IsZero() || !got.ReachesZero || got.CreatesOverpayment {
		t.Fatalf("exact payment impact: %+v", got)
	}

	// Clamped for display and flagged as overpayment, same rule as SplitPayment.
	got = CalculateDebtImpact(decimal.NewFromInt(100), pago(day(1), 150))
	if !got.NewDebt.IsZero() || !got.CreatesOverpayment {
		t.Fatalf("overpayment impact: %+v", got)
	}
	if !got.DebtChange.Equal(decimal.NewFromInt(-150)) {
		t.Fatalf("overpayment impact: debtChange=%s, want -150", got.DebtChange)
	}

	got = CalculateDebtImpact(decimal.Zero, pago(day(1), 25))
	if !got.CreatesOverpayment || got.ReachesZero {
		t.Fatalf("payment on zero debt: %+v", got)
	}
}

func TestValidateTransactionConsistency(t *testing.T) {
	ok := ValidateTransactionConsistency([]models.TransactionEvent{
		venta(day(1), 1, 60, 40),
		pago(day(2), 100),
	})
	if !ok.IsValid || len(ok.Errors) != 0 {
		t.Fatalf("expected valid report, got %+v", ok)
	}

	if empty := ValidateTransactionConsistency(nil); !empty.IsValid {
		t.Fatalf("empty list should be trivially valid")
	}

	bad := venta(day(1), 2, 30, 20)
	bad.TotalVenta = decimal.NewFromInt(120) // recorded 120, derived 100
	mismatch := ValidateTransactionConsistency([]models.TransactionEvent{bad})
	if mismatch.IsValid || len(mismatch.Errors) == 0 {
		t.Fatalf("expected total mismatch to be flagged, got %+v", mismatch)
	}

	negative := ValidateTransactionConsistency([]models.TransactionEvent{
		venta(day(1), 1, 10, 0),
		pago(day(2), 50),
	})
	if negative.IsValid {
		t.Fatalf("expected negative running debt to be flagged")
	}
	found := false
	for _, msg := range negative.Errors {
		if strings.Contains(msg, "Negative debt detected") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a 'Negative debt detected' error, got %v", negative.Errors)
	}
}
