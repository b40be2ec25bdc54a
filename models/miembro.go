package models

// Miembro is a staff member of an empresa.
type Miembro struct {
	ID        string     `json:"id,omitempty"`
	EmpresaId string     `json:"empresaId" validate:"required"`
	Nombre    string     `json:"nombre" validate:"required"`
	Telefono  string     `json:"telefono,omitempty"`
	Rol       string     `json:"rol,omitempty" validate:"omitempty,oneof=admin vendedor"`
	Activo    bool       `json:"activo"`
	Creado    Timestamp  `json:"creado"`
	Editado   *Timestamp `json:"editado,omitempty"`
	Borrado   bool       `json:"borrado"`
}
