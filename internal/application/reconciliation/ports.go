package reconciliation

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

// TxRepos repositorios atados a una misma transacción de BD.
type TxRepos struct {
	Lots         repository.StockLotRepository
	Adjustments  repository.StockAdjustmentRepository
	ValueHistory repository.ValueHistoryRepository
	Bindings     repository.BindingRepository
	Invoices     repository.InvoiceRepository
}

// TxRunner ejecuta fn dentro de una transacción; Commit si fn no falla, Rollback en caso contrario.
// Garantiza atomicidad de todas las mutaciones de una importación.
type TxRunner interface {
	Run(ctx context.Context, fn func(repos TxRepos) error) error
}

// LotLocker exclusión mutua por lote. Lock adquiere todas las claves en orden canónico
// y devuelve la función que las libera.
type LotLocker interface {
	Lock(ctx context.Context, keys []string) (unlock func(), err error)
}
