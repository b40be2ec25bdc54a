package models

// Cliente is a ledger account holder. Debt is never stored on the client
// document; it is always recomputed from the event log.
type Cliente struct {
	ID        string     `json:"id,omitempty"`
	EmpresaId string     `json:"empresaId" validate:"required"`
	Nombre    string     `json:"nombre" validate:"required"`
	Telefono  string     `json:"telefono,omitempty"`
	Direccion string     `json:"direccion,omitempty"`
	Notas     string     `json:"notas,omitempty"`
	Creado    Timestamp  `json:"creado"`
	Editado   *Timestamp `json:"editado,omitempty"`
	Borrado   bool       `json:"borrado"`
}
