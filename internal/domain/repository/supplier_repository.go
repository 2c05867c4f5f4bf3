package repository

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// SupplierRepository define el puerto de persistencia para proveedores (DIP).
type SupplierRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Supplier, error)
	GetByTaxID(ctx context.Context, taxID string) (*entity.Supplier, error)
	// CreateIfAbsent crea el proveedor si no existe su TaxID (compare-and-create).
	// Devuelve el registro almacenado y si fue creado en esta llamada.
	CreateIfAbsent(ctx context.Context, s *entity.Supplier) (*entity.Supplier, bool, error)
	Update(ctx context.Context, s *entity.Supplier) error
}
