package memory

import (
	"context"

	"github.com/jhoicas/nfe-conciliacao/internal/application/reconciliation"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

var _ reconciliation.TxRunner = (*TxRunner)(nil)

// TxRunner unidad de trabajo en memoria: las escrituras quedan en un overlay privado y
// se aplican juntas en el Commit; si fn falla se descartan.
type TxRunner struct {
	s *Store
}

// NewTxRunner construye el runner.
func NewTxRunner(s *Store) *TxRunner { return &TxRunner{s: s} }

// Run ejecuta fn con repos atados a la transacción y hace Commit o descarta.
func (r *TxRunner) Run(ctx context.Context, fn func(repos reconciliation.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		s:        r.s,
		lots:     map[string]*entity.StockLot{},
		lotByKey: map[string]string{},
		bindings: map[string]*entity.ProductSupplierBinding{},
	}
	repos := reconciliation.TxRepos{
		Lots:         &txLots{LotRepo: LotRepo{s: r.s}, tx: tx},
		Adjustments:  &txAdjustments{AdjustmentRepo: AdjustmentRepo{s: r.s}, tx: tx},
		ValueHistory: &txHistory{ValueHistoryRepo: ValueHistoryRepo{s: r.s}, tx: tx},
		Bindings:     &txBindings{BindingRepo: BindingRepo{s: r.s}, tx: tx},
		Invoices:     &txInvoices{InvoiceRepo: InvoiceRepo{s: r.s}, tx: tx},
	}
	if err := fn(repos); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	s           *Store
	lots        map[string]*entity.StockLot
	lotByKey    map[string]string
	newLots     []string
	adjustments []*entity.StockAdjustment
	history     []*entity.ValueHistory
	invoices    []*entity.Invoice
	bindings    map[string]*entity.ProductSupplierBinding
}

// commit valida todo antes de la primera escritura: o se aplica completo o nada.
func (tx *memTx) commit() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range tx.invoices {
		if _, ok := s.invoiceByKey[inv.AccessKey]; ok {
			return domain.ErrDuplicateDocument
		}
	}
	for _, id := range tx.newLots {
		if _, ok := s.lotByKey[tx.lots[id].Key().String()]; ok {
			return domain.ErrDuplicate
		}
	}
	for id := range tx.bindings {
		if _, ok := s.bindings[id]; !ok {
			return domain.ErrNotFound
		}
	}

	for _, inv := range tx.invoices {
		s.putInvoice(inv)
	}
	for id, lot := range tx.lots {
		s.lots[id] = lot
		s.lotByKey[lot.Key().String()] = id
	}
	s.adjustments = append(s.adjustments, tx.adjustments...)
	s.history = append(s.history, tx.history...)
	for _, b := range tx.bindings {
		s.applyBindingPurchase(b)
	}
	return nil
}

type txLots struct {
	LotRepo
	tx *memTx
}

func (r *txLots) GetForUpdate(ctx context.Context, key entity.LotKey) (*entity.StockLot, error) {
	if id, ok := r.tx.lotByKey[key.String()]; ok {
		return cloneLot(r.tx.lots[id]), nil
	}
	return r.LotRepo.GetForUpdate(ctx, key)
}

func (r *txLots) GetByID(ctx context.Context, id string) (*entity.StockLot, error) {
	if l, ok := r.tx.lots[id]; ok {
		return cloneLot(l), nil
	}
	return r.LotRepo.GetByID(ctx, id)
}

func (r *txLots) Create(ctx context.Context, lot *entity.StockLot) error {
	key := lot.Key().String()
	if _, ok := r.tx.lotByKey[key]; ok {
		return domain.ErrDuplicate
	}
	if existing, _ := r.LotRepo.GetForUpdate(ctx, lot.Key()); existing != nil {
		return domain.ErrDuplicate
	}
	r.tx.lots[lot.ID] = cloneLot(lot)
	r.tx.lotByKey[key] = lot.ID
	r.tx.newLots = append(r.tx.newLots, lot.ID)
	return nil
}

func (r *txLots) Update(ctx context.Context, lot *entity.StockLot) error {
	if _, ok := r.tx.lots[lot.ID]; !ok {
		if existing, _ := r.LotRepo.GetByID(ctx, lot.ID); existing == nil {
			return domain.ErrNotFound
		}
	}
	r.tx.lots[lot.ID] = cloneLot(lot)
	r.tx.lotByKey[lot.Key().String()] = lot.ID
	return nil
}

type txAdjustments struct {
	AdjustmentRepo
	tx *memTx
}

func (r *txAdjustments) Create(_ context.Context, a *entity.StockAdjustment) error {
	c := *a
	r.tx.adjustments = append(r.tx.adjustments, &c)
	return nil
}

type txHistory struct {
	ValueHistoryRepo
	tx *memTx
}

func (r *txHistory) Create(_ context.Context, h *entity.ValueHistory) error {
	c := *h
	r.tx.history = append(r.tx.history, &c)
	return nil
}

type txBindings struct {
	BindingRepo
	tx *memTx
}

func (r *txBindings) UpdatePurchase(_ context.Context, b *entity.ProductSupplierBinding) error {
	c := *b
	r.tx.bindings[b.ID] = &c
	return nil
}

type txInvoices struct {
	InvoiceRepo
	tx *memTx
}

func (r *txInvoices) Create(ctx context.Context, inv *entity.Invoice) error {
	if existing, _ := r.InvoiceRepo.GetByAccessKey(ctx, inv.AccessKey); existing != nil {
		return domain.ErrDuplicateDocument
	}
	for _, pending := range r.tx.invoices {
		if pending.AccessKey == inv.AccessKey {
			return domain.ErrDuplicateDocument
		}
	}
	c := *inv
	r.tx.invoices = append(r.tx.invoices, &c)
	return nil
}
