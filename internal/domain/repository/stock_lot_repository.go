package repository

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// StockLotRepository puerto para lotes de stock. Usado dentro de la unidad de trabajo
// de conciliación para garantizar consistencia.
type StockLotRepository interface {
	GetByID(ctx context.Context, id string) (*entity.StockLot, error)
	// GetForUpdate obtiene el lote y lo bloquea hasta el fin de la transacción. nil si no existe.
	GetForUpdate(ctx context.Context, key entity.LotKey) (*entity.StockLot, error)
	Create(ctx context.Context, lot *entity.StockLot) error
	Update(ctx context.Context, lot *entity.StockLot) error
	// FindForSale lotes del producto con ese código de lote en la unidad (cualquier proveedor).
	FindForSale(ctx context.Context, productID, unitID, lotCode string) ([]*entity.StockLot, error)
	ListByUnit(ctx context.Context, unitID string, limit, offset int) ([]*entity.StockLot, error)
	// ListBelowReorderPoint lotes no bloqueados con cantidad menor al punto de reposición.
	ListBelowReorderPoint(ctx context.Context, unitID string) ([]*entity.StockLot, error)
	// ExistsForProduct indica si el producto ya tuvo algún lote en cualquier unidad.
	ExistsForProduct(ctx context.Context, productID string) (bool, error)
}

// StockAdjustmentRepository registros inmutables de ajuste.
type StockAdjustmentRepository interface {
	Create(ctx context.Context, a *entity.StockAdjustment) error
	ListByLot(ctx context.Context, lotID string) ([]*entity.StockAdjustment, error)
	ListByImport(ctx context.Context, importID string) ([]*entity.StockAdjustment, error)
}

// ValueHistoryRepository registros inmutables de cambio de valor unitario.
type ValueHistoryRepository interface {
	Create(ctx context.Context, h *entity.ValueHistory) error
	ListByLot(ctx context.Context, lotID string) ([]*entity.ValueHistory, error)
}
