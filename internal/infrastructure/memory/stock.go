package memory

import (
	"context"
	"sort"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

var (
	_ repository.StockLotRepository        = (*LotRepo)(nil)
	_ repository.StockAdjustmentRepository = (*AdjustmentRepo)(nil)
	_ repository.ValueHistoryRepository    = (*ValueHistoryRepo)(nil)
	_ repository.InvoiceRepository         = (*InvoiceRepo)(nil)
)

// LotRepo lotes fuera de transacción (lecturas y escrituras directas).
type LotRepo struct{ s *Store }

// NewLotRepository construye el repositorio.
func NewLotRepository(s *Store) *LotRepo { return &LotRepo{s: s} }

func (r *LotRepo) GetByID(_ context.Context, id string) (*entity.StockLot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneLot(r.s.lots[id]), nil
}

// GetForUpdate fuera de transacción equivale a una lectura; el bloqueo lo da LotLocker.
func (r *LotRepo) GetForUpdate(_ context.Context, key entity.LotKey) (*entity.StockLot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneLot(r.s.lots[r.s.lotByKey[key.String()]]), nil
}

func (r *LotRepo) Create(_ context.Context, lot *entity.StockLot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertLot(lot)
}

func (r *LotRepo) Update(_ context.Context, lot *entity.StockLot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.lots[lot.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.lots[lot.ID] = cloneLot(lot)
	return nil
}

func (r *LotRepo) ExistsForProduct(_ context.Context, productID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, l := range r.s.lots {
		if l.ProductReferenceID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (r *LotRepo) FindForSale(_ context.Context, productID, unitID, lotCode string) ([]*entity.StockLot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.StockLot
	for _, l := range r.s.lots {
		if l.ProductReferenceID == productID && l.UnitID == unitID && l.LotCode == lotCode {
			out = append(out, cloneLot(l))
		}
	}
	sortLots(out)
	return out, nil
}

func (r *LotRepo) ListByUnit(_ context.Context, unitID string, limit, offset int) ([]*entity.StockLot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.StockLot
	for _, l := range r.s.lots {
		if l.UnitID == unitID {
			out = append(out, cloneLot(l))
		}
	}
	sortLots(out)
	return page(out, limit, offset), nil
}

func (r *LotRepo) ListBelowReorderPoint(_ context.Context, unitID string) ([]*entity.StockLot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.StockLot
	for _, l := range r.s.lots {
		if l.UnitID == unitID && !l.Blocked && l.NeedsReplenishment() {
			out = append(out, cloneLot(l))
		}
	}
	sortLots(out)
	return out, nil
}

func (s *Store) insertLot(lot *entity.StockLot) error {
	key := lot.Key().String()
	if _, ok := s.lotByKey[key]; ok {
		return domain.ErrDuplicate
	}
	s.lots[lot.ID] = cloneLot(lot)
	s.lotByKey[key] = lot.ID
	return nil
}

// AdjustmentRepo ajustes de stock.
type AdjustmentRepo struct{ s *Store }

// NewAdjustmentRepository construye el repositorio.
func NewAdjustmentRepository(s *Store) *AdjustmentRepo { return &AdjustmentRepo{s: s} }

func (r *AdjustmentRepo) Create(_ context.Context, a *entity.StockAdjustment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *a
	r.s.adjustments = append(r.s.adjustments, &c)
	return nil
}

func (r *AdjustmentRepo) ListByLot(_ context.Context, lotID string) ([]*entity.StockAdjustment, error) {
	return r.filter(func(a *entity.StockAdjustment) bool { return a.StockLotID == lotID }), nil
}

func (r *AdjustmentRepo) ListByImport(_ context.Context, importID string) ([]*entity.StockAdjustment, error) {
	return r.filter(func(a *entity.StockAdjustment) bool { return a.ImportID == importID }), nil
}

func (r *AdjustmentRepo) filter(keep func(*entity.StockAdjustment) bool) []*entity.StockAdjustment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.StockAdjustment
	for _, a := range r.s.adjustments {
		if keep(a) {
			c := *a
			out = append(out, &c)
		}
	}
	return out
}

// ValueHistoryRepo historial de valor unitario.
type ValueHistoryRepo struct{ s *Store }

// NewValueHistoryRepository construye el repositorio.
func NewValueHistoryRepository(s *Store) *ValueHistoryRepo { return &ValueHistoryRepo{s: s} }

func (r *ValueHistoryRepo) Create(_ context.Context, h *entity.ValueHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *h
	r.s.history = append(r.s.history, &c)
	return nil
}

func (r *ValueHistoryRepo) ListByLot(_ context.Context, lotID string) ([]*entity.ValueHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.ValueHistory
	for _, h := range r.s.history {
		if h.StockLotID == lotID {
			c := *h
			out = append(out, &c)
		}
	}
	return out, nil
}

// InvoiceRepo notas fiscales.
type InvoiceRepo struct{ s *Store }

// NewInvoiceRepository construye el repositorio.
func NewInvoiceRepository(s *Store) *InvoiceRepo { return &InvoiceRepo{s: s} }

func (r *InvoiceRepo) Create(_ context.Context, inv *entity.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertInvoice(inv)
}

func (r *InvoiceRepo) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if v, ok := r.s.invoices[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, nil
}

func (r *InvoiceRepo) GetByAccessKey(ctx context.Context, accessKey string) (*entity.Invoice, error) {
	r.s.mu.RLock()
	id, ok := r.s.invoiceByKey[accessKey]
	r.s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *InvoiceRepo) ExistsBySupplier(_ context.Context, supplierID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, inv := range r.s.invoices {
		if inv.SupplierID == supplierID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) insertInvoice(inv *entity.Invoice) error {
	if _, ok := s.invoiceByKey[inv.AccessKey]; ok {
		return domain.ErrDuplicateDocument
	}
	s.putInvoice(inv)
	return nil
}

// putInvoice escribe sin validar; el llamador ya comprobó la chave bajo el mutex.
func (s *Store) putInvoice(inv *entity.Invoice) {
	c := *inv
	s.invoices[inv.ID] = &c
	s.invoiceByKey[inv.AccessKey] = inv.ID
}

func sortLots(lots []*entity.StockLot) {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].Quantity.Equal(lots[j].Quantity) {
			return lots[i].Quantity.GreaterThan(lots[j].Quantity)
		}
		return lots[i].ID < lots[j].ID
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
