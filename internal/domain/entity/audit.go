package entity

import "time"

// Audit campos comunes de identidad y auditoría embebidos en todas las entidades persistidas.
type Audit struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Active    bool
}

// Touch marca la entidad como modificada en now.
func (a *Audit) Touch(now time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}
