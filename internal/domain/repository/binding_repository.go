package repository

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// BindingRepository puerto de persistencia para vínculos producto-proveedor (DIP).
type BindingRepository interface {
	GetByID(ctx context.Context, id string) (*entity.ProductSupplierBinding, error)
	GetByProductAndSupplier(ctx context.Context, productID, supplierID string) (*entity.ProductSupplierBinding, error)
	// ListByProduct devuelve los vínculos del producto, el de compra más reciente primero.
	ListByProduct(ctx context.Context, productID string) ([]*entity.ProductSupplierBinding, error)
	// CreateIfAbsent compare-and-create por (ProductReferenceID, SupplierID).
	CreateIfAbsent(ctx context.Context, b *entity.ProductSupplierBinding) (*entity.ProductSupplierBinding, bool, error)
	UpdatePurchase(ctx context.Context, b *entity.ProductSupplierBinding) error
}
