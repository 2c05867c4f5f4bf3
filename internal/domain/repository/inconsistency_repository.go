package repository

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// InconsistencyFilter filtros para listar inconsistencias.
type InconsistencyFilter struct {
	UnitID    string
	Status    string
	ImportID  string
	InvoiceID string
	Limit     int
	Offset    int
}

// InconsistencyRepository puerto de persistencia para hallazgos (DIP).
type InconsistencyRepository interface {
	Create(ctx context.Context, inc *entity.Inconsistency) error
	GetByID(ctx context.Context, id string) (*entity.Inconsistency, error)
	Update(ctx context.Context, inc *entity.Inconsistency) error
	List(ctx context.Context, f InconsistencyFilter) ([]*entity.Inconsistency, error)
	// AttachInvoice vincula los hallazgos de la importación con la nota creada.
	AttachInvoice(ctx context.Context, importID, invoiceID string) error
}
