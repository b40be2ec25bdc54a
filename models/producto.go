package models

import "github.com/shopspring/decimal"

// Producto is a catalog entry. Precio is always derived from costo +
// ganancia; there is no independently stored sale price.
type Producto struct {
	ID        string          `json:"id,omitempty"`
	EmpresaId string          `json:"empresaId" validate:"required"`
	Nombre    string          `json:"nombre" validate:"required"`
	Colores   []string        `json:"colores,omitempty"`
	Costo     decimal.Decimal `json:"costo"`
	Ganancia  decimal.Decimal `json:"ganancia"`
	Stock     int             `json:"stock"`
	Notas     string          `json:"notas,omitempty"`
	Creado    Timestamp       `json:"creado"`
	Editado   *Timestamp      `json:"editado,omitempty"`
	Borrado   bool            `json:"borrado"`
}

func (p Producto) Precio() decimal.Decimal {
	return p.Costo.Add(p.Ganancia)
}
