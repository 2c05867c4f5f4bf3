package entity

// Roles válidos para User.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleOperator   = "operator"
)

// User usuario del sistema. Oversight habilita recibir notificaciones de inconsistencias
// de las unidades en UnitIDs.
type User struct {
	Audit
	OrganizationID string
	Email          string
	Name           string
	Role           string
	UnitIDs        []string
	Oversight      bool
}

// Oversees indica si el usuario supervisa la unidad.
func (u *User) Oversees(unitID string) bool {
	if !u.Active || !u.Oversight {
		return false
	}
	for _, id := range u.UnitIDs {
		if id == unitID {
			return true
		}
	}
	return false
}
