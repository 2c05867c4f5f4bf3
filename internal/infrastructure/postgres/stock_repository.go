package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

var (
	_ repository.StockLotRepository        = (*StockLotRepo)(nil)
	_ repository.StockAdjustmentRepository = (*AdjustmentRepo)(nil)
	_ repository.ValueHistoryRepository    = (*ValueHistoryRepo)(nil)
	_ repository.InvoiceRepository         = (*InvoiceRepo)(nil)
)

const lotColumns = `id, binding_id, product_reference_id, unit_id, lot_code, quantity, min_quantity, max_quantity,
	reorder_point, unit_value, total_value, expires_at, blocked, block_reason, last_movement_at,
	active, created_at, updated_at`

// orden de listados: mayor cantidad primero.
const lotOrder = ` ORDER BY quantity DESC, id`

// StockLotRepo implementación de StockLotRepository sobre PostgreSQL (usable con pool o tx).
type StockLotRepo struct {
	q Querier
}

// NewStockLotRepository construye el adaptador de lotes. Pasar pool o tx (Querier).
func NewStockLotRepository(q Querier) *StockLotRepo {
	return &StockLotRepo{q: q}
}

func scanLot(row pgx.Row) (*entity.StockLot, error) {
	var (
		l            entity.StockLot
		lastMovement *time.Time
	)
	err := row.Scan(&l.ID, &l.BindingID, &l.ProductReferenceID, &l.UnitID, &l.LotCode, &l.Quantity,
		&l.MinQuantity, &l.MaxQuantity, &l.ReorderPoint, &l.UnitValue, &l.TotalValue, &l.ExpiresAt,
		&l.Blocked, &l.BlockReason, &lastMovement, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.LastMovementAt = timeOrZero(lastMovement)
	return &l, nil
}

func (r *StockLotRepo) ExistsForProduct(ctx context.Context, productID string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_lots WHERE product_reference_id = $1)`, productID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("stock lots by product: %w", err)
	}
	return ok, nil
}

func (r *StockLotRepo) queryLots(ctx context.Context, query string, args ...any) ([]*entity.StockLot, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock lots: %w", err)
	}
	defer rows.Close()
	var out []*entity.StockLot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock lot: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *StockLotRepo) GetByID(ctx context.Context, id string) (*entity.StockLot, error) {
	l, err := scanLot(r.q.QueryRow(ctx, `SELECT `+lotColumns+` FROM stock_lots WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock lot: %w", err)
	}
	return l, nil
}

// GetForUpdate obtiene el lote y bloquea la fila (SELECT FOR UPDATE). nil si no existe.
func (r *StockLotRepo) GetForUpdate(ctx context.Context, key entity.LotKey) (*entity.StockLot, error) {
	query := `SELECT ` + lotColumns + ` FROM stock_lots
		WHERE binding_id = $1 AND unit_id = $2 AND lot_code = $3
		FOR UPDATE`
	l, err := scanLot(r.q.QueryRow(ctx, query, key.BindingID, key.UnitID, key.LotCode))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock lot for update: %w", err)
	}
	return l, nil
}

func (r *StockLotRepo) Create(ctx context.Context, l *entity.StockLot) error {
	query := `
		INSERT INTO stock_lots (` + lotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.q.Exec(ctx, query,
		l.ID, l.BindingID, l.ProductReferenceID, l.UnitID, l.LotCode, l.Quantity, l.MinQuantity, l.MaxQuantity,
		l.ReorderPoint, l.UnitValue, l.TotalValue, l.ExpiresAt, l.Blocked, l.BlockReason, nullTime(l.LastMovementAt),
		l.Active, createdAt(l.CreatedAt), updatedAt(l.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("lote %s: %w", l.Key(), domain.ErrDuplicate)
		}
		return fmt.Errorf("create stock lot: %w", err)
	}
	return nil
}

func (r *StockLotRepo) Update(ctx context.Context, l *entity.StockLot) error {
	query := `
		UPDATE stock_lots SET quantity = $2, min_quantity = $3, max_quantity = $4, reorder_point = $5,
			unit_value = $6, total_value = $7, expires_at = $8, blocked = $9, block_reason = $10,
			last_movement_at = $11, active = $12, updated_at = $13
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, l.ID, l.Quantity, l.MinQuantity, l.MaxQuantity, l.ReorderPoint,
		l.UnitValue, l.TotalValue, l.ExpiresAt, l.Blocked, l.BlockReason, nullTime(l.LastMovementAt),
		l.Active, updatedAt(l.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update stock lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *StockLotRepo) FindForSale(ctx context.Context, productID, unitID, lotCode string) ([]*entity.StockLot, error) {
	query := `SELECT ` + lotColumns + ` FROM stock_lots
		WHERE product_reference_id = $1 AND unit_id = $2 AND lot_code = $3` + lotOrder
	return r.queryLots(ctx, query, productID, unitID, lotCode)
}

func (r *StockLotRepo) ListByUnit(ctx context.Context, unitID string, limit, offset int) ([]*entity.StockLot, error) {
	lim, off := pageArgs(limit, offset)
	query := `SELECT ` + lotColumns + ` FROM stock_lots WHERE unit_id = $1` + lotOrder + ` LIMIT $2 OFFSET $3`
	return r.queryLots(ctx, query, unitID, lim, off)
}

func (r *StockLotRepo) ListBelowReorderPoint(ctx context.Context, unitID string) ([]*entity.StockLot, error) {
	query := `SELECT ` + lotColumns + ` FROM stock_lots
		WHERE unit_id = $1 AND NOT blocked AND reorder_point > 0 AND quantity < reorder_point` + lotOrder
	return r.queryLots(ctx, query, unitID)
}

// ── Ajustes ──

const adjustmentColumns = `id, stock_lot_id, import_id, invoice_id, previous_quantity, new_quantity, delta,
	reason, actor_id, document_number, occurred_at, created_at`

// AdjustmentRepo registros inmutables de ajuste de stock.
type AdjustmentRepo struct {
	q Querier
}

// NewAdjustmentRepository construye el adaptador.
func NewAdjustmentRepository(q Querier) *AdjustmentRepo {
	return &AdjustmentRepo{q: q}
}

func (r *AdjustmentRepo) Create(ctx context.Context, a *entity.StockAdjustment) error {
	query := `
		INSERT INTO stock_adjustments (` + adjustmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query, a.ID, a.StockLotID, a.ImportID, a.InvoiceID, a.PreviousQuantity,
		a.NewQuantity, a.Delta, a.Reason, a.ActorID, a.DocumentNumber, a.OccurredAt, createdAt(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("create stock adjustment: %w", err)
	}
	return nil
}

func (r *AdjustmentRepo) ListByLot(ctx context.Context, lotID string) ([]*entity.StockAdjustment, error) {
	return r.list(ctx, "stock_lot_id = $1", lotID)
}

func (r *AdjustmentRepo) ListByImport(ctx context.Context, importID string) ([]*entity.StockAdjustment, error) {
	return r.list(ctx, "import_id = $1", importID)
}

func (r *AdjustmentRepo) list(ctx context.Context, where string, arg any) ([]*entity.StockAdjustment, error) {
	rows, err := r.q.Query(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments WHERE `+where+` ORDER BY seq`, arg)
	if err != nil {
		return nil, fmt.Errorf("list stock adjustments: %w", err)
	}
	defer rows.Close()
	var out []*entity.StockAdjustment
	for rows.Next() {
		a := entity.StockAdjustment{Audit: entity.Audit{Active: true}}
		if err := rows.Scan(&a.ID, &a.StockLotID, &a.ImportID, &a.InvoiceID, &a.PreviousQuantity, &a.NewQuantity,
			&a.Delta, &a.Reason, &a.ActorID, &a.DocumentNumber, &a.OccurredAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock adjustment: %w", err)
		}
		a.UpdatedAt = a.CreatedAt
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ── Historial de valor ──

const valueHistoryColumns = `id, stock_lot_id, import_id, previous_value, new_value, actor_id, changed_at, created_at`

// ValueHistoryRepo registros inmutables de cambio de valor unitario.
type ValueHistoryRepo struct {
	q Querier
}

// NewValueHistoryRepository construye el adaptador.
func NewValueHistoryRepository(q Querier) *ValueHistoryRepo {
	return &ValueHistoryRepo{q: q}
}

func (r *ValueHistoryRepo) Create(ctx context.Context, h *entity.ValueHistory) error {
	query := `
		INSERT INTO value_history (` + valueHistoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, query, h.ID, h.StockLotID, h.ImportID, h.PreviousValue, h.NewValue, h.ActorID,
		h.ChangedAt, createdAt(h.CreatedAt))
	if err != nil {
		return fmt.Errorf("create value history: %w", err)
	}
	return nil
}

func (r *ValueHistoryRepo) ListByLot(ctx context.Context, lotID string) ([]*entity.ValueHistory, error) {
	rows, err := r.q.Query(ctx, `SELECT `+valueHistoryColumns+` FROM value_history WHERE stock_lot_id = $1 ORDER BY seq`, lotID)
	if err != nil {
		return nil, fmt.Errorf("list value history: %w", err)
	}
	defer rows.Close()
	var out []*entity.ValueHistory
	for rows.Next() {
		h := entity.ValueHistory{Audit: entity.Audit{Active: true}}
		if err := rows.Scan(&h.ID, &h.StockLotID, &h.ImportID, &h.PreviousValue, &h.NewValue, &h.ActorID,
			&h.ChangedAt, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan value history: %w", err)
		}
		h.UpdatedAt = h.CreatedAt
		out = append(out, &h)
	}
	return out, rows.Err()
}

// ── Notas fiscales ──

const invoiceColumns = `id, access_key, number, series, model, operation_kind, emitted_at, total_value,
	issuer_tax_id, recipient_tax_id, supplier_id, unit_id, import_id, item_count, active, created_at, updated_at`

// InvoiceRepo implementación de InvoiceRepository sobre PostgreSQL.
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador de notas fiscales.
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// Create inserta la nota; la restricción única de access_key la traduce a ErrDuplicateDocument.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.q.Exec(ctx, query, inv.ID, inv.AccessKey, inv.Number, inv.Series, inv.Model, inv.OperationKind,
		inv.EmittedAt, inv.TotalValue, inv.IssuerTaxID, inv.RecipientTaxID, inv.SupplierID, inv.UnitID,
		inv.ImportID, inv.ItemCount, inv.Active, createdAt(inv.CreatedAt), updatedAt(inv.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("chave %s: %w", inv.AccessKey, domain.ErrDuplicateDocument)
		}
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepo) getOne(ctx context.Context, where string, arg any) (*entity.Invoice, error) {
	var inv entity.Invoice
	err := r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+where, arg).Scan(
		&inv.ID, &inv.AccessKey, &inv.Number, &inv.Series, &inv.Model, &inv.OperationKind, &inv.EmittedAt,
		&inv.TotalValue, &inv.IssuerTaxID, &inv.RecipientTaxID, &inv.SupplierID, &inv.UnitID, &inv.ImportID,
		&inv.ItemCount, &inv.Active, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *InvoiceRepo) GetByAccessKey(ctx context.Context, accessKey string) (*entity.Invoice, error) {
	return r.getOne(ctx, "access_key = $1", accessKey)
}

func (r *InvoiceRepo) ExistsBySupplier(ctx context.Context, supplierID string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE supplier_id = $1)`, supplierID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("invoices by supplier: %w", err)
	}
	return ok, nil
}
