package repository

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// UnitRepository puerto de lectura de unidades organizacionales.
type UnitRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Unit, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]*entity.Unit, error)
}

// UserRepository puerto de lectura de usuarios para notificaciones.
type UserRepository interface {
	ListOversightByUnit(ctx context.Context, unitID string) ([]*entity.User, error)
}
