package repository

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// InvoiceRepository puerto de persistencia para notas fiscales conciliadas (DIP).
type InvoiceRepository interface {
	// Create falla con domain.ErrDuplicateDocument si la chave ya existe.
	Create(ctx context.Context, inv *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	GetByAccessKey(ctx context.Context, accessKey string) (*entity.Invoice, error)
	// ExistsBySupplier indica si alguna nota conciliada referencia al proveedor.
	ExistsBySupplier(ctx context.Context, supplierID string) (bool, error)
}
