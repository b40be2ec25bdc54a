package models

import (
	"github.com/shopspring/decimal"
)

// TotalTolerance is the maximum accepted drift between a sale's recorded
// total and the amount re-derived from cantidad * (costoUnitario +
// gananciaUnitaria). Stored totals came from a UI that rounded to cents.
var TotalTolerance = decimal.NewFromFloat(0.01)

// TransactionEvent is one entry in a client's ledger: a sale (tipo "venta")
// that increases debt or a payment (tipo "pago") that decreases it.
//
// The two variants share the envelope fields; the venta-only and pago-only
// fields are zero for the other variant. Tipo is the discriminator and is
// closed: everything switching on it handles exactly venta and pago.
type TransactionEvent struct {
	ID        string     `json:"id,omitempty"`
	ClienteId string     `json:"clienteId" validate:"required"`
	Tipo      EventType  `json:"tipo" validate:"required,oneof=venta pago"`
	Fecha     Timestamp  `json:"fecha"`
	Creado    Timestamp  `json:"creado"`
	Editado   *Timestamp `json:"editado,omitempty"`
	Borrado   bool       `json:"borrado"`
	Notas     string     `json:"notas,omitempty"`

	// venta
	Producto         string          `json:"producto,omitempty"`
	ProductoColor    string          `json:"productoColor,omitempty"`
	Cantidad         decimal.Decimal `json:"cantidad"`
	CostoUnitario    decimal.Decimal `json:"costoUnitario"`
	GananciaUnitaria decimal.Decimal `json:"gananciaUnitaria"`
	TotalVenta       decimal.Decimal `json:"totalVenta"`

	// pago
	MontoPago decimal.Decimal `json:"montoPago"`
}

func (e TransactionEvent) IsVenta() bool {
	return e.Tipo == EventTypeVenta
}

func (e TransactionEvent) IsPago() bool {
	return e.Tipo == EventTypePago
}

// ExpectedTotal re-derives the sale total from its unit amounts.
func (e TransactionEvent) ExpectedTotal() decimal.Decimal {
	return e.Cantidad.Mul(e.CostoUnitario.Add(e.GananciaUnitaria))
}

// SignedAmount is the event's effect on the running balance:
// positive for a sale, negative for a payment.
func (e TransactionEvent) SignedAmount() decimal.Decimal {
	switch e.Tipo {
	case EventTypeVenta:
		return e.TotalVenta
	case EventTypePago:
		return e.MontoPago.Neg()
	}
	return decimal.Zero
}

// Validate reports field-level problems as plain messages. Malformed events
// are surfaced, never thrown; the caller decides whether to reject or log.
func (e TransactionEvent) Validate() []string {
	var errs []string
	if e.ClienteId == "" {
		errs = append(errs, "clienteId is required")
	}
	switch e.Tipo {
	case EventTypeVenta:
		if e.Producto == "" {
			errs = append(errs, "producto is required for venta")
		}
		if !e.Cantidad.IsPositive() {
			errs = append(errs, "cantidad must be greater than 0")
		}
		if e.CostoUnitario.IsNegative() {
			errs = append(errs, "costoUnitario must not be negative")
		}
		if e.GananciaUnitaria.IsNegative() {
			errs = append(errs, "gananciaUnitaria must not be negative")
		}
		if diff := e.TotalVenta.Sub(e.ExpectedTotal()).Abs(); diff.GreaterThan(TotalTolerance) {
			errs = append(errs, "totalVenta does not match cantidad * (costoUnitario + gananciaUnitaria)")
		}
	case EventTypePago:
		if !e.MontoPago.IsPositive() {
			errs = append(errs, "montoPago must be greater than 0")
		}
	default:
		errs = append(errs, "tipo must be venta or pago")
	}
	return errs
}
